package processor

import (
	"context"
	"fmt"
	"log"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/setupintent"
	"github.com/stripe/stripe-go/v82/subscription"
)

// StripeProcessor implements PaymentProcessor using the Stripe API.
type StripeProcessor struct{}

// NewStripeProcessor creates a Stripe-backed processor.
func NewStripeProcessor(apiKey string) *StripeProcessor {
	stripe.Key = apiKey
	return &StripeProcessor{}
}

// CreateCustomer creates a customer in Stripe. When a billing identity is
// provided it becomes the customer's name, address and tax id, so invoices
// carry the legal invoicing details rather than the trading name.
func (p *StripeProcessor) CreateCustomer(ctx context.Context, email, name string, billing *CustomerBilling, metadata map[string]string) (*Customer, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	if billing != nil {
		params.Name = stripe.String(billing.LegalName)
		params.Address = &stripe.AddressParams{
			Line1:      stripe.String(billing.Street),
			City:       stripe.String(billing.City),
			PostalCode: stripe.String(billing.PostalCode),
			Country:    stripe.String(billing.Country),
		}
		if billing.TaxID != "" {
			params.TaxIDData = []*stripe.CustomerTaxIDDataParams{
				{Type: stripe.String("es_cif"), Value: stripe.String(billing.TaxID)},
			}
		}
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	cust, err := customer.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create stripe customer: %w", err)
	}

	log.Printf("[Stripe] Created customer %s for %s", cust.ID, email)
	return &Customer{ID: cust.ID, Email: email}, nil
}

// CreateSetupIntent creates a setup intent for off-session payment method capture
func (p *StripeProcessor) CreateSetupIntent(ctx context.Context, customerID string, metadata map[string]string) (*Intent, error) {
	params := &stripe.SetupIntentParams{
		Customer: stripe.String(customerID),
		AutomaticPaymentMethods: &stripe.SetupIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Usage: stripe.String("off_session"),
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	si, err := setupintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create setup intent: %w", err)
	}

	return &Intent{
		ID:           si.ID,
		ClientSecret: si.ClientSecret,
		Kind:         IntentKindSetup,
		Status:       string(si.Status),
	}, nil
}

// CreatePaymentIntent creates a payment intent that charges now and saves
// the payment method for future off-session billing
func (p *StripeProcessor) CreatePaymentIntent(ctx context.Context, customerID string, amountCents int64, currency string, metadata map[string]string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(currency),
		Customer: stripe.String(customerID),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		SetupFutureUsage: stripe.String(string(stripe.PaymentIntentSetupFutureUsageOffSession)),
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Kind:         IntentKindPayment,
		Status:       string(pi.Status),
	}, nil
}

// GetIntent retrieves a setup or payment intent by ID. The intent kind is
// derived from the ID prefix ("seti_" for setup intents).
func (p *StripeProcessor) GetIntent(ctx context.Context, intentID string) (*Intent, error) {
	if len(intentID) >= 5 && intentID[:5] == "seti_" {
		params := &stripe.SetupIntentParams{}
		params.Context = ctx
		si, err := setupintent.Get(intentID, params)
		if err != nil {
			return nil, fmt.Errorf("failed to get setup intent: %w", err)
		}
		return &Intent{
			ID:           si.ID,
			ClientSecret: si.ClientSecret,
			Kind:         IntentKindSetup,
			Status:       string(si.Status),
			Metadata:     si.Metadata,
		}, nil
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := paymentintent.Get(intentID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment intent: %w", err)
	}
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Kind:         IntentKindPayment,
		Status:       string(pi.Status),
		Metadata:     pi.Metadata,
	}, nil
}

// CreateSubscription creates a recurring subscription against a price
func (p *StripeProcessor) CreateSubscription(ctx context.Context, customerID, priceID string, trialDays int) (*ProvisionedSubscription, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(priceID)},
		},
	}
	params.Context = ctx
	if trialDays > 0 {
		params.TrialPeriodDays = stripe.Int64(int64(trialDays))
	}

	sub, err := subscription.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}

	log.Printf("[Stripe] Created subscription %s for customer %s", sub.ID, customerID)
	return &ProvisionedSubscription{ID: sub.ID, Status: string(sub.Status)}, nil
}

// ChangeSubscriptionPrice swaps the subscription's single item to a new price
func (p *StripeProcessor) ChangeSubscriptionPrice(ctx context.Context, subscriptionID, priceID string) (*ProvisionedSubscription, error) {
	getParams := &stripe.SubscriptionParams{}
	getParams.Context = ctx
	sub, err := subscription.Get(subscriptionID, getParams)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return nil, fmt.Errorf("subscription %s has no items", subscriptionID)
	}

	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:    stripe.String(sub.Items.Data[0].ID),
				Price: stripe.String(priceID),
			},
		},
		ProrationBehavior: stripe.String("create_prorations"),
	}
	params.Context = ctx

	updated, err := subscription.Update(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to change subscription price: %w", err)
	}

	log.Printf("[Stripe] Changed subscription %s to price %s", subscriptionID, priceID)
	return &ProvisionedSubscription{ID: updated.ID, Status: string(updated.Status)}, nil
}

// PauseSubscription voids collection while keeping the subscription alive
func (p *StripeProcessor) PauseSubscription(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionParams{
		PauseCollection: &stripe.SubscriptionPauseCollectionParams{
			Behavior: stripe.String(string(stripe.SubscriptionPauseCollectionBehaviorVoid)),
		},
	}
	params.Context = ctx

	if _, err := subscription.Update(subscriptionID, params); err != nil {
		return fmt.Errorf("failed to pause subscription: %w", err)
	}
	log.Printf("[Stripe] Paused collection on subscription %s", subscriptionID)
	return nil
}

// ResumeSubscription lifts a collection pause
func (p *StripeProcessor) ResumeSubscription(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	// Unsetting pause_collection requires the empty-value form.
	params.AddExtra("pause_collection", "")

	if _, err := subscription.Update(subscriptionID, params); err != nil {
		return fmt.Errorf("failed to resume subscription: %w", err)
	}
	log.Printf("[Stripe] Resumed collection on subscription %s", subscriptionID)
	return nil
}

// CancelSubscription cancels the subscription at the processor
func (p *StripeProcessor) CancelSubscription(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx

	if _, err := subscription.Cancel(subscriptionID, params); err != nil {
		return fmt.Errorf("failed to cancel subscription: %w", err)
	}
	log.Printf("[Stripe] Canceled subscription %s", subscriptionID)
	return nil
}
