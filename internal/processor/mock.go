package processor

import (
	"context"
	"fmt"
	"sync"
)

// MockProcessor is a test double that records calls and returns configurable
// results. Intents it creates start as requires_confirmation; tests mark them
// succeeded via SettleIntent.
type MockProcessor struct {
	mu sync.Mutex

	// Customers maps customerID -> email.
	Customers map[string]string
	// Intents maps intentID -> intent state.
	Intents map[string]*Intent
	// Subscriptions maps subscriptionID -> priceID.
	Subscriptions map[string]string
	// Paused tracks subscriptions with collection paused.
	Paused map[string]bool

	// Error fields allow tests to inject failures.
	CreateCustomerErr      error
	CreateSetupIntentErr   error
	CreatePaymentIntentErr error
	GetIntentErr           error
	CreateSubscriptionErr  error
	ChangePriceErr         error
	PauseErr               error
	ResumeErr              error
	CancelErr              error

	nextCustomerSeq int
	nextIntentSeq   int
	nextSubSeq      int
}

// NewMockProcessor creates a MockProcessor ready for use.
func NewMockProcessor() *MockProcessor {
	return &MockProcessor{
		Customers:     make(map[string]string),
		Intents:       make(map[string]*Intent),
		Subscriptions: make(map[string]string),
		Paused:        make(map[string]bool),
	}
}

// CreateCustomer creates a mock customer.
func (m *MockProcessor) CreateCustomer(_ context.Context, email, _ string, _ *CustomerBilling, _ map[string]string) (*Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateCustomerErr != nil {
		return nil, m.CreateCustomerErr
	}

	m.nextCustomerSeq++
	id := fmt.Sprintf("cus_mock_%d", m.nextCustomerSeq)
	m.Customers[id] = email
	return &Customer{ID: id, Email: email}, nil
}

func (m *MockProcessor) newIntent(kind, prefix string, metadata map[string]string) *Intent {
	m.nextIntentSeq++
	id := fmt.Sprintf("%s_mock_%d", prefix, m.nextIntentSeq)
	md := make(map[string]string, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	intent := &Intent{
		ID:           id,
		ClientSecret: fmt.Sprintf("%s_secret_%d", id, m.nextIntentSeq),
		Kind:         kind,
		Status:       "requires_confirmation",
		Metadata:     md,
	}
	m.Intents[id] = intent
	return intent
}

func copyIntent(intent *Intent) *Intent {
	md := make(map[string]string, len(intent.Metadata))
	for k, v := range intent.Metadata {
		md[k] = v
	}
	return &Intent{ID: intent.ID, ClientSecret: intent.ClientSecret, Kind: intent.Kind, Status: intent.Status, Metadata: md}
}

// CreateSetupIntent creates a mock setup intent.
func (m *MockProcessor) CreateSetupIntent(_ context.Context, customerID string, metadata map[string]string) (*Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateSetupIntentErr != nil {
		return nil, m.CreateSetupIntentErr
	}
	if _, ok := m.Customers[customerID]; !ok {
		return nil, fmt.Errorf("processor: unknown customer %s", customerID)
	}

	return copyIntent(m.newIntent(IntentKindSetup, "seti", metadata)), nil
}

// CreatePaymentIntent creates a mock payment intent.
func (m *MockProcessor) CreatePaymentIntent(_ context.Context, customerID string, _ int64, _ string, metadata map[string]string) (*Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreatePaymentIntentErr != nil {
		return nil, m.CreatePaymentIntentErr
	}
	if _, ok := m.Customers[customerID]; !ok {
		return nil, fmt.Errorf("processor: unknown customer %s", customerID)
	}

	return copyIntent(m.newIntent(IntentKindPayment, "pi", metadata)), nil
}

// GetIntent returns the current state of a mock intent.
func (m *MockProcessor) GetIntent(_ context.Context, intentID string) (*Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetIntentErr != nil {
		return nil, m.GetIntentErr
	}

	intent, ok := m.Intents[intentID]
	if !ok {
		return nil, fmt.Errorf("processor: intent %s not found", intentID)
	}
	return copyIntent(intent), nil
}

// SettleIntent marks a mock intent as succeeded, as a client confirmation would.
func (m *MockProcessor) SettleIntent(intentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	intent, ok := m.Intents[intentID]
	if !ok {
		return fmt.Errorf("processor: intent %s not found", intentID)
	}
	intent.Status = "succeeded"
	return nil
}

// CreateSubscription creates a mock subscription.
func (m *MockProcessor) CreateSubscription(_ context.Context, customerID, priceID string, trialDays int) (*ProvisionedSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateSubscriptionErr != nil {
		return nil, m.CreateSubscriptionErr
	}
	if _, ok := m.Customers[customerID]; !ok {
		return nil, fmt.Errorf("processor: unknown customer %s", customerID)
	}

	m.nextSubSeq++
	id := fmt.Sprintf("sub_mock_%d", m.nextSubSeq)
	m.Subscriptions[id] = priceID

	status := "active"
	if trialDays > 0 {
		status = "trialing"
	}
	return &ProvisionedSubscription{ID: id, Status: status}, nil
}

// ChangeSubscriptionPrice swaps a mock subscription to a new price.
func (m *MockProcessor) ChangeSubscriptionPrice(_ context.Context, subscriptionID, priceID string) (*ProvisionedSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ChangePriceErr != nil {
		return nil, m.ChangePriceErr
	}
	if _, ok := m.Subscriptions[subscriptionID]; !ok {
		return nil, fmt.Errorf("processor: subscription %s not found", subscriptionID)
	}

	m.Subscriptions[subscriptionID] = priceID
	return &ProvisionedSubscription{ID: subscriptionID, Status: "active"}, nil
}

// PauseSubscription pauses a mock subscription.
func (m *MockProcessor) PauseSubscription(_ context.Context, subscriptionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.PauseErr != nil {
		return m.PauseErr
	}
	if _, ok := m.Subscriptions[subscriptionID]; !ok {
		return fmt.Errorf("processor: subscription %s not found", subscriptionID)
	}
	m.Paused[subscriptionID] = true
	return nil
}

// ResumeSubscription resumes a mock subscription.
func (m *MockProcessor) ResumeSubscription(_ context.Context, subscriptionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ResumeErr != nil {
		return m.ResumeErr
	}
	if _, ok := m.Subscriptions[subscriptionID]; !ok {
		return fmt.Errorf("processor: subscription %s not found", subscriptionID)
	}
	delete(m.Paused, subscriptionID)
	return nil
}

// CancelSubscription cancels a mock subscription.
func (m *MockProcessor) CancelSubscription(_ context.Context, subscriptionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CancelErr != nil {
		return m.CancelErr
	}
	if _, ok := m.Subscriptions[subscriptionID]; !ok {
		return fmt.Errorf("processor: subscription %s not found", subscriptionID)
	}
	delete(m.Subscriptions, subscriptionID)
	delete(m.Paused, subscriptionID)
	return nil
}
