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

// seedActiveBusiness provisions a paid, active business backed by real mock
// processor objects, so lifecycle calls hit a consistent processor state.
func seedActiveBusiness(t *testing.T, f *flowFixture, planKey string) *models.Business {
	t.Helper()
	ctx := context.Background()

	customer, err := f.proc.CreateCustomer(ctx, "maria@example.com", "Peluqueria Sol", nil, nil)
	require.NoError(t, err)
	plan, err := f.plans.GetByKey(ctx, planKey)
	require.NoError(t, err)
	sub, err := f.proc.CreateSubscription(ctx, customer.ID, plan.ExternalPriceID, 0)
	require.NoError(t, err)

	validUntil := time.Now().UTC().AddDate(0, 1, 0)
	business := &models.Business{
		ID:                 uuid.New(),
		OwnerID:            uuid.New(),
		Name:               "Peluqueria Sol",
		RegistrationStatus: models.RegistrationStatusActive,
		Active:             true,
		BillingProfile:     completeBillingProfile(),
		Subscription: models.Subscription{
			PlanKey:                planKey,
			Status:                 models.SubscriptionStatusActive,
			ExternalCustomerID:     customer.ID,
			ExternalSubscriptionID: sub.ID,
			ValidUntil:             &validUntil,
			AutoRenew:              true,
		},
	}
	f.store.businesses[business.ID] = business
	return business
}

func TestPauseAndResume(t *testing.T) {
	f := newFlowFixture()
	ctx := context.Background()
	business := seedActiveBusiness(t, f, "premium")

	result, err := f.lifecycle.Pause(ctx, business.ID, 0)
	require.NoError(t, err)
	assert.False(t, result.OfferAccepted)
	assert.Equal(t, models.SubscriptionStatusPaused, result.Business.Subscription.Status)
	assert.NotNil(t, result.Business.Subscription.PausedAt)
	assert.True(t, f.proc.Paused[business.Subscription.ExternalSubscriptionID])

	resumed, err := f.lifecycle.Resume(ctx, business.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusActive, resumed.Subscription.Status)
	assert.Nil(t, resumed.Subscription.PausedAt)
	assert.False(t, f.proc.Paused[business.Subscription.ExternalSubscriptionID])
}

func TestPauseWithAcceptedRetentionOffer(t *testing.T) {
	f := newFlowFixture()
	ctx := context.Background()
	business := seedActiveBusiness(t, f, "premium")

	result, err := f.lifecycle.Pause(ctx, business.ID, 20)
	require.NoError(t, err)
	assert.True(t, result.OfferAccepted)
	assert.Equal(t, 20, result.Business.Subscription.DiscountPct)
	assert.Equal(t, models.SubscriptionStatusActive, result.Business.Subscription.Status)
	assert.False(t, f.proc.Paused[business.Subscription.ExternalSubscriptionID], "nothing is paused at the processor")
}

func TestCancelKeepsBusinessServableThroughGrace(t *testing.T) {
	f := newFlowFixture()
	ctx := context.Background()
	business := seedActiveBusiness(t, f, "premium")
	subID := business.Subscription.ExternalSubscriptionID

	canceled, err := f.lifecycle.Cancel(ctx, business.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationStatusCanceled, canceled.RegistrationStatus)
	assert.Equal(t, models.SubscriptionStatusCanceled, canceled.Subscription.Status)
	assert.NotNil(t, canceled.CancelRequestedAt)
	assert.False(t, canceled.Subscription.AutoRenew)
	assert.True(t, canceled.IsServable(), "cancellation alone never stops service")

	_, exists := f.proc.Subscriptions[subID]
	assert.False(t, exists, "subscription is torn down at the processor")

	// Repeat cancel is a no-op.
	again, err := f.lifecycle.Cancel(ctx, business.ID)
	require.NoError(t, err)
	assert.Equal(t, canceled.CancelRequestedAt, again.CancelRequestedAt)
}

func TestResumeWithinGraceReversesCancellation(t *testing.T) {
	f := newFlowFixture()
	ctx := context.Background()
	business := seedActiveBusiness(t, f, "premium")
	oldSubID := business.Subscription.ExternalSubscriptionID

	_, err := f.lifecycle.Cancel(ctx, business.ID)
	require.NoError(t, err)

	resumed, err := f.lifecycle.Resume(ctx, business.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationStatusActive, resumed.RegistrationStatus)
	assert.Equal(t, models.SubscriptionStatusActive, resumed.Subscription.Status)
	assert.True(t, resumed.Subscription.AutoRenew)
	assert.Nil(t, resumed.CancelRequestedAt)

	// A fresh subscription was provisioned against the same customer.
	assert.NotEqual(t, oldSubID, resumed.Subscription.ExternalSubscriptionID)
	_, exists := f.proc.Subscriptions[resumed.Subscription.ExternalSubscriptionID]
	assert.True(t, exists)
}

func TestResumePastGraceWindowRejected(t *testing.T) {
	f := newFlowFixture()
	ctx := context.Background()
	business := seedActiveBusiness(t, f, "premium")

	_, err := f.lifecycle.Cancel(ctx, business.ID)
	require.NoError(t, err)

	past := time.Now().UTC().AddDate(0, 0, -31)
	f.store.businesses[business.ID].CancelRequestedAt = &past

	_, err = f.lifecycle.Resume(ctx, business.ID)
	stateErr, ok := IsStateError(err)
	require.True(t, ok)
	assert.Equal(t, "resume", stateErr.Operation)
}

func TestSweepMovesExpiredCancellationsToPendingDeletion(t *testing.T) {
	f := newFlowFixture()
	ctx := context.Background()

	expired := seedActiveBusiness(t, f, "premium")
	recent := seedActiveBusiness(t, f, "essential")

	_, err := f.lifecycle.Cancel(ctx, expired.ID)
	require.NoError(t, err)
	_, err = f.lifecycle.Cancel(ctx, recent.ID)
	require.NoError(t, err)

	past := time.Now().UTC().AddDate(0, 0, -40)
	f.store.businesses[expired.ID].CancelRequestedAt = &past

	count, err := f.lifecycle.SweepGraceWindows(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	swept, err := f.store.GetByID(ctx, expired.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationStatusPendingDeletion, swept.RegistrationStatus)
	assert.False(t, swept.IsServable())

	untouched, err := f.store.GetByID(ctx, recent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationStatusCanceled, untouched.RegistrationStatus)
	assert.True(t, untouched.IsServable())
}

func TestChangePlanDowngradeSwapsImmediately(t *testing.T) {
	f := newFlowFixture()
	ctx := context.Background()
	business := seedActiveBusiness(t, f, "premium")

	result, err := f.lifecycle.ChangePlan(ctx, business.ID, "essential")
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Empty(t, result.ClientSecret)
	assert.Equal(t, "essential", result.Business.Subscription.PlanKey)
	assert.Equal(t, "price_essential_monthly", f.proc.Subscriptions[business.Subscription.ExternalSubscriptionID])
}

func TestChangePlanUpgradeRequiresConfirmation(t *testing.T) {
	f := newFlowFixture()
	ctx := context.Background()
	business := seedActiveBusiness(t, f, "essential")

	result, err := f.lifecycle.ChangePlan(ctx, business.ID, "premium")
	require.NoError(t, err)
	assert.False(t, result.Changed)
	require.NotEmpty(t, result.IntentID)
	require.NotEmpty(t, result.ClientSecret)

	// The plan is untouched until the upgrade payment is confirmed.
	current, err := f.store.GetByID(ctx, business.ID)
	require.NoError(t, err)
	assert.Equal(t, "essential", current.Subscription.PlanKey)

	// A repeat request reuses the pending intent.
	repeat, err := f.lifecycle.ChangePlan(ctx, business.ID, "premium")
	require.NoError(t, err)
	assert.Equal(t, result.IntentID, repeat.IntentID)

	require.NoError(t, f.proc.SettleIntent(result.IntentID))
	confirmed, err := f.lifecycle.ConfirmPlanChange(ctx, business.ID, "premium", result.IntentID)
	require.NoError(t, err)
	assert.True(t, confirmed.Changed)
	assert.Equal(t, "premium", confirmed.Business.Subscription.PlanKey)
	assert.Equal(t, "price_premium_monthly", f.proc.Subscriptions[business.Subscription.ExternalSubscriptionID])
}

func TestConfirmPlanChangeRejectsForeignIntent(t *testing.T) {
	f := newFlowFixture()
	ctx := context.Background()
	business := seedActiveBusiness(t, f, "essential")

	result, err := f.lifecycle.ChangePlan(ctx, business.ID, "premium")
	require.NoError(t, err)
	require.NotEmpty(t, result.IntentID)

	// A succeeded setup intent from a payment-method update must not
	// finalize the upgrade.
	foreign, err := f.lifecycle.UpdatePaymentMethod(ctx, business.ID)
	require.NoError(t, err)
	require.NoError(t, f.proc.SettleIntent(foreign.IntentID))

	_, err = f.lifecycle.ConfirmPlanChange(ctx, business.ID, "premium", foreign.IntentID)
	_, ok := IsStateError(err)
	require.True(t, ok)

	// The plan did not change.
	current, err := f.store.GetByID(ctx, business.ID)
	require.NoError(t, err)
	assert.Equal(t, "essential", current.Subscription.PlanKey)
}
