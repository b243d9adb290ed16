// Package processor abstracts the external payment processor behind a
// domain-facing interface so services never touch processor SDK types
// directly and tests can run against an in-memory implementation.
package processor

import (
	"context"
)

// Intent kinds. A setup intent captures a payment method without charging;
// a payment intent charges immediately and can save the method for later.
const (
	IntentKindSetup   = "setup"
	IntentKindPayment = "payment"
)

// Intent is a client-confirmable payment continuation. Metadata carries the
// business and plan the intent was minted for, so a succeeded intent can be
// checked against the subscription it is about to activate.
type Intent struct {
	ID           string
	ClientSecret string
	Kind         string
	Status       string
	Metadata     map[string]string
}

// Succeeded reports whether the intent was confirmed by the client.
func (i *Intent) Succeeded() bool {
	return i.Status == "succeeded"
}

// Customer is the processor-side counterpart of a business.
type Customer struct {
	ID    string
	Email string
}

// CustomerBilling carries the invoicing identity attached to the processor
// customer, so charges and invoices carry the legal name, address and tax id.
type CustomerBilling struct {
	LegalName  string
	TaxID      string
	Street     string
	City       string
	PostalCode string
	Country    string
}

// ProvisionedSubscription is the processor-side subscription handle.
type ProvisionedSubscription struct {
	ID     string
	Status string
}

// PaymentProcessor is the interface the provisioning and lifecycle services
// program against.
type PaymentProcessor interface {
	// CreateCustomer registers a processor-side customer for a business,
	// with its billing identity when one is already on file.
	CreateCustomer(ctx context.Context, email, name string, billing *CustomerBilling, metadata map[string]string) (*Customer, error)

	// CreateSetupIntent starts a payment-method capture without charging.
	CreateSetupIntent(ctx context.Context, customerID string, metadata map[string]string) (*Intent, error)

	// CreatePaymentIntent starts an immediate charge that also saves the
	// payment method for future off-session billing.
	CreatePaymentIntent(ctx context.Context, customerID string, amountCents int64, currency string, metadata map[string]string) (*Intent, error)

	// GetIntent fetches the current state of a setup or payment intent.
	GetIntent(ctx context.Context, intentID string) (*Intent, error)

	// CreateSubscription provisions a recurring subscription against a price.
	CreateSubscription(ctx context.Context, customerID, priceID string, trialDays int) (*ProvisionedSubscription, error)

	// ChangeSubscriptionPrice swaps the subscription to a different price.
	ChangeSubscriptionPrice(ctx context.Context, subscriptionID, priceID string) (*ProvisionedSubscription, error)

	// PauseSubscription pauses collection without tearing the subscription down.
	PauseSubscription(ctx context.Context, subscriptionID string) error

	// ResumeSubscription lifts a collection pause.
	ResumeSubscription(ctx context.Context, subscriptionID string) error

	// CancelSubscription cancels the subscription at the processor.
	CancelSubscription(ctx context.Context, subscriptionID string) error
}
