package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registration-service/internal/models"
)

func validIdentityRequest() *SubmitIdentityRequest {
	return &SubmitIdentityRequest{
		Email:                "maria@example.com",
		FirstName:            "Maria",
		LastName:             "Garcia",
		Phone:                "+34600111222",
		Password:             "correct-horse-battery",
		PasswordConfirmation: "correct-horse-battery",
	}
}

func validBusinessRequest() *SubmitBusinessRequest {
	return &SubmitBusinessRequest{
		Name:    "Peluqueria Sol",
		PlaceID: "place-123",
		City:    "Madrid",
		Country: "ES",
	}
}

// advanceToPlanSelection runs a fresh session through identity and business
// selection and returns it.
func advanceToPlanSelection(t *testing.T, f *flowFixture) *models.RegistrationSession {
	t.Helper()
	ctx := context.Background()

	session, err := f.registration.StartSession(ctx)
	require.NoError(t, err)

	session, err = f.registration.SubmitIdentity(ctx, session.ID, validIdentityRequest())
	require.NoError(t, err)

	session, err = f.registration.SubmitBusinessSelection(ctx, session.ID, validBusinessRequest())
	require.NoError(t, err)
	return session
}

func TestBusinessSelectionPersistsPartialLead(t *testing.T) {
	f := newFlowFixture()
	session := advanceToPlanSelection(t, f)

	require.NotEmpty(t, session.BusinessID, "lead should be persisted eagerly")
	assert.Equal(t, models.StepSelectingPlan, session.Step)

	id, err := uuid.Parse(session.BusinessID)
	require.NoError(t, err)
	business, err := f.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationStatusPartial, business.RegistrationStatus)
	assert.Equal(t, "Peluqueria Sol", business.Name)
	assert.False(t, business.Active)
}

func TestSubmitIdentityRejectsPasswordMismatch(t *testing.T) {
	f := newFlowFixture()
	ctx := context.Background()

	session, err := f.registration.StartSession(ctx)
	require.NoError(t, err)

	req := validIdentityRequest()
	req.PasswordConfirmation = "something-else"
	_, err = f.registration.SubmitIdentity(ctx, session.ID, req)

	validationErr, ok := IsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, "password_confirmation", validationErr.Field)

	// The session did not advance.
	reloaded, err := f.registration.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepCollectingIdentity, reloaded.Step)
}

func TestDuplicateEmailAdvancesAndAttachesToExistingOwner(t *testing.T) {
	f := newFlowFixture()
	ctx := context.Background()

	existing := &models.Owner{ID: uuid.New(), Email: "maria@example.com"}
	f.owners.add(existing)
	f.store.ownerIDs["maria@example.com"] = existing.ID

	session, err := f.registration.StartSession(ctx)
	require.NoError(t, err)

	session, err = f.registration.SubmitIdentity(ctx, session.ID, validIdentityRequest())
	require.NoError(t, err, "duplicate email is a signal, not an error")
	assert.True(t, session.DuplicateOwner)

	session, err = f.registration.SubmitBusinessSelection(ctx, session.ID, validBusinessRequest())
	require.NoError(t, err)
	assert.Empty(t, session.BusinessID, "business creation is deferred for duplicate owners")
	assert.Empty(t, f.store.businesses)

	// Plan selection resolves the existing account and attaches the business.
	session, err = f.registration.SubmitPlanSelection(ctx, session.ID, "essential")
	require.NoError(t, err)
	require.NotEmpty(t, session.BusinessID)

	id, err := uuid.Parse(session.BusinessID)
	require.NoError(t, err)
	business, err := f.store.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, business.OwnerID)
}

func TestRequestPaymentRequiresBillingProfileBeforeIntent(t *testing.T) {
	f := newFlowFixture()
	ctx := context.Background()

	session := advanceToPlanSelection(t, f)
	session, err := f.registration.SubmitPlanSelection(ctx, session.ID, "essential")
	require.NoError(t, err)

	_, err = f.registration.RequestPayment(ctx, session.ID, nil)
	validationErr, ok := IsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, "billing_profile", validationErr.Field)

	// Nothing was created at the processor: no charge can exist that
	// activation would later refuse.
	assert.Empty(t, f.proc.Intents)
	assert.Empty(t, f.proc.Customers)
}

func TestRequestPaymentStoresProfileThenCreatesIntent(t *testing.T) {
	f := newFlowFixture()
	ctx := context.Background()

	session := advanceToPlanSelection(t, f)
	session, err := f.registration.SubmitPlanSelection(ctx, session.ID, "essential")
	require.NoError(t, err)

	result, err := f.registration.RequestPayment(ctx, session.ID, completeBillingProfileRequest())
	require.NoError(t, err)
	assert.False(t, result.Completed)
	assert.NotEmpty(t, result.IntentID)
	assert.NotEmpty(t, result.ClientSecret)
	assert.Equal(t, models.StepAwaitingPayment, result.Session.Step)

	id, err := uuid.Parse(session.BusinessID)
	require.NoError(t, err)
	business, err := f.store.GetByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, business.BillingProfile.IsComplete())
	assert.Len(t, f.proc.Intents, 1)
}

func TestTrialPlanActivatesWithoutPayment(t *testing.T) {
	f := newFlowFixture()
	ctx := context.Background()

	session := advanceToPlanSelection(t, f)
	session, err := f.registration.SubmitPlanSelection(ctx, session.ID, "trial")
	require.NoError(t, err)

	result, err := f.registration.RequestPayment(ctx, session.ID, nil)
	require.NoError(t, err)
	assert.True(t, result.Completed)
	assert.Equal(t, models.StepCompleted, result.Session.Step)

	id, err := uuid.Parse(session.BusinessID)
	require.NoError(t, err)
	business, err := f.store.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationStatusActive, business.RegistrationStatus)
	assert.Equal(t, models.SubscriptionStatusTrialing, business.Subscription.Status)
	assert.True(t, business.IsServable())
	require.NotNil(t, business.Subscription.ValidUntil)
	assert.WithinDuration(t, time.Now().UTC().AddDate(0, 0, 7), *business.Subscription.ValidUntil, time.Minute)

	// No processor objects exist for a free trial.
	assert.Empty(t, f.proc.Intents)
	assert.Empty(t, f.proc.Customers)
	assert.Empty(t, f.proc.Subscriptions)
}

func TestConfirmPaymentActivatesAndIsIdempotent(t *testing.T) {
	f := newFlowFixture()
	ctx := context.Background()

	session := advanceToPlanSelection(t, f)
	session, err := f.registration.SubmitPlanSelection(ctx, session.ID, "essential")
	require.NoError(t, err)

	result, err := f.registration.RequestPayment(ctx, session.ID, completeBillingProfileRequest())
	require.NoError(t, err)
	require.NoError(t, f.proc.SettleIntent(result.IntentID))

	confirmed, err := f.registration.ConfirmPayment(ctx, session.ID, result.IntentID)
	require.NoError(t, err)
	assert.Equal(t, models.StepCompleted, confirmed.Step)

	id, err := uuid.Parse(session.BusinessID)
	require.NoError(t, err)
	business, err := f.store.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationStatusActive, business.RegistrationStatus)
	assert.Equal(t, result.IntentID, business.Subscription.ActivatedIntentID)
	assert.Len(t, f.proc.Subscriptions, 1)

	// Re-confirming the consumed intent is a no-op.
	again, err := f.registration.ConfirmPayment(ctx, session.ID, result.IntentID)
	require.NoError(t, err)
	assert.Equal(t, models.StepCompleted, again.Step)
	assert.Len(t, f.proc.Subscriptions, 1)
}
