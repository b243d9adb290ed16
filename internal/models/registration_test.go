package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePlanFeaturesStringArray(t *testing.T) {
	features, err := NormalizePlanFeatures([]byte(`["Bookings", "Reminders"]`))
	require.NoError(t, err)

	require.Len(t, features, 2)
	assert.Equal(t, PlanFeature{Name: "Bookings", Included: true}, features[0])
	assert.Equal(t, PlanFeature{Name: "Reminders", Included: true}, features[1])
}

func TestNormalizePlanFeaturesObjectArray(t *testing.T) {
	raw := `[{"name":"Bookings","included":true},{"name":"Campaigns","included":false}]`
	features, err := NormalizePlanFeatures([]byte(raw))
	require.NoError(t, err)

	require.Len(t, features, 2)
	assert.True(t, features[0].Included)
	assert.Equal(t, "Campaigns", features[1].Name)
	assert.False(t, features[1].Included)
}

func TestNormalizePlanFeaturesMixedShapes(t *testing.T) {
	raw := `["Bookings", {"name":"Campaigns","included":false}]`
	features, err := NormalizePlanFeatures([]byte(raw))
	require.NoError(t, err)

	require.Len(t, features, 2)
	assert.Equal(t, PlanFeature{Name: "Bookings", Included: true}, features[0])
	assert.Equal(t, PlanFeature{Name: "Campaigns", Included: false}, features[1])
}

func TestNormalizePlanFeaturesRejectsBadInput(t *testing.T) {
	_, err := NormalizePlanFeatures([]byte(`{"not":"an array"}`))
	assert.Error(t, err)

	_, err = NormalizePlanFeatures([]byte(`[{"included":true}]`))
	assert.Error(t, err, "entries without a name are rejected")

	_, err = NormalizePlanFeatures([]byte(`[42]`))
	assert.Error(t, err)
}

func TestNormalizePlanFeaturesEmpty(t *testing.T) {
	features, err := NormalizePlanFeatures(nil)
	require.NoError(t, err)
	assert.Nil(t, features)

	features, err = NormalizePlanFeatures([]byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, features)
}

func TestPlanRequiresPayment(t *testing.T) {
	trial := SubscriptionPlan{Key: "trial", PriceCents: 0, TrialDays: 7}
	assert.False(t, trial.RequiresPayment())

	paid := SubscriptionPlan{Key: "premium", PriceCents: 5900}
	assert.True(t, paid.RequiresPayment())
}

func TestPlanFeatureListRoundTrip(t *testing.T) {
	plan := SubscriptionPlan{
		Features: MustNewJSONB([]PlanFeature{
			{Name: "Bookings", Included: true},
			{Name: "Campaigns", Included: false},
		}),
	}

	features, err := plan.FeatureList()
	require.NoError(t, err)
	require.Len(t, features, 2)
	assert.Equal(t, "Bookings", features[0].Name)
}

func TestBillingProfileIsComplete(t *testing.T) {
	profile := BillingProfile{
		CustomerType: CustomerTypeCompany,
		LegalName:    "La Tasca SL",
		TaxID:        "B12345678",
		Street:       "Calle Mayor 1",
		City:         "Madrid",
		PostalCode:   "28001",
		Country:      "ES",
	}
	assert.True(t, profile.IsComplete())

	missing := profile
	missing.TaxID = ""
	assert.False(t, missing.IsComplete())

	assert.False(t, (&BillingProfile{}).IsComplete())
}

func TestBusinessIsServable(t *testing.T) {
	now := time.Now()

	active := Business{Active: true, RegistrationStatus: RegistrationStatusActive}
	assert.True(t, active.IsServable())

	// Canceled but inside the grace window: still serving.
	canceled := Business{
		Active:             true,
		RegistrationStatus: RegistrationStatusCanceled,
		CancelRequestedAt:  &now,
	}
	assert.True(t, canceled.IsServable())

	pendingDeletion := Business{Active: true, RegistrationStatus: RegistrationStatusPendingDeletion}
	assert.False(t, pendingDeletion.IsServable())

	inactive := Business{Active: false, RegistrationStatus: RegistrationStatusActive}
	assert.False(t, inactive.IsServable())
}
