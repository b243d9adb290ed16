package processor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockProcessorCustomerAndIntents(t *testing.T) {
	m := NewMockProcessor()
	ctx := context.Background()

	customer, err := m.CreateCustomer(ctx, "maria@example.com", "Maria Garcia", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "maria@example.com", customer.Email)

	setup, err := m.CreateSetupIntent(ctx, customer.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, IntentKindSetup, setup.Kind)
	assert.False(t, setup.Succeeded())
	assert.NotEmpty(t, setup.ClientSecret)

	payment, err := m.CreatePaymentIntent(ctx, customer.ID, 5900, "eur", nil)
	require.NoError(t, err)
	assert.Equal(t, IntentKindPayment, payment.Kind)

	// Settling flips the intent to succeeded, as a client confirmation would.
	require.NoError(t, m.SettleIntent(payment.ID))
	fetched, err := m.GetIntent(ctx, payment.ID)
	require.NoError(t, err)
	assert.True(t, fetched.Succeeded())

	// The setup intent is untouched.
	fetched, err = m.GetIntent(ctx, setup.ID)
	require.NoError(t, err)
	assert.False(t, fetched.Succeeded())
}

func TestMockProcessorIntentsCarryMetadata(t *testing.T) {
	m := NewMockProcessor()
	ctx := context.Background()

	customer, err := m.CreateCustomer(ctx, "maria@example.com", "Maria Garcia", nil, nil)
	require.NoError(t, err)

	payment, err := m.CreatePaymentIntent(ctx, customer.ID, 2900, "eur", map[string]string{
		"business_id": "biz-1",
		"plan_key":    "essential",
	})
	require.NoError(t, err)

	fetched, err := m.GetIntent(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, "biz-1", fetched.Metadata["business_id"])
	assert.Equal(t, "essential", fetched.Metadata["plan_key"])
}

func TestMockProcessorRejectsUnknownCustomer(t *testing.T) {
	m := NewMockProcessor()
	ctx := context.Background()

	_, err := m.CreateSetupIntent(ctx, "cus_nope", nil)
	assert.Error(t, err)

	_, err = m.CreatePaymentIntent(ctx, "cus_nope", 100, "eur", nil)
	assert.Error(t, err)

	_, err = m.CreateSubscription(ctx, "cus_nope", "price_x", 0)
	assert.Error(t, err)
}

func TestMockProcessorSubscriptionLifecycle(t *testing.T) {
	m := NewMockProcessor()
	ctx := context.Background()

	customer, err := m.CreateCustomer(ctx, "maria@example.com", "Maria Garcia", nil, nil)
	require.NoError(t, err)

	sub, err := m.CreateSubscription(ctx, customer.ID, "price_premium_monthly", 0)
	require.NoError(t, err)
	assert.Equal(t, "active", sub.Status)

	require.NoError(t, m.PauseSubscription(ctx, sub.ID))
	assert.True(t, m.Paused[sub.ID])

	require.NoError(t, m.ResumeSubscription(ctx, sub.ID))
	assert.False(t, m.Paused[sub.ID])

	changed, err := m.ChangeSubscriptionPrice(ctx, sub.ID, "price_essential_monthly")
	require.NoError(t, err)
	assert.Equal(t, sub.ID, changed.ID)
	assert.Equal(t, "price_essential_monthly", m.Subscriptions[sub.ID])

	require.NoError(t, m.CancelSubscription(ctx, sub.ID))
	_, exists := m.Subscriptions[sub.ID]
	assert.False(t, exists)
}

func TestMockProcessorTrialSubscriptionsStartTrialing(t *testing.T) {
	m := NewMockProcessor()
	ctx := context.Background()

	customer, err := m.CreateCustomer(ctx, "maria@example.com", "Maria Garcia", nil, nil)
	require.NoError(t, err)

	sub, err := m.CreateSubscription(ctx, customer.ID, "price_premium_monthly", 7)
	require.NoError(t, err)
	assert.Equal(t, "trialing", sub.Status)
}

func TestMockProcessorErrorInjection(t *testing.T) {
	m := NewMockProcessor()
	ctx := context.Background()
	boom := errors.New("processor unavailable")

	m.CreateCustomerErr = boom
	_, err := m.CreateCustomer(ctx, "maria@example.com", "Maria Garcia", nil, nil)
	assert.ErrorIs(t, err, boom)

	m.CreateCustomerErr = nil
	customer, err := m.CreateCustomer(ctx, "maria@example.com", "Maria Garcia", nil, nil)
	require.NoError(t, err)

	m.CreatePaymentIntentErr = boom
	_, err = m.CreatePaymentIntent(ctx, customer.ID, 100, "eur", nil)
	assert.ErrorIs(t, err, boom)
}
