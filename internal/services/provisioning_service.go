package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"registration-service/internal/models"
	"registration-service/internal/nats"
	"registration-service/internal/processor"
	"registration-service/internal/redis"
)

// retryWithBackoff retries an operation with exponential backoff
func retryWithBackoff[T any](ctx context.Context, maxAttempts int, operation func() (T, error)) (T, error) {
	var result T
	var err error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err = operation()
		if err == nil {
			return result, nil
		}
		if attempt < maxAttempts {
			backoff := time.Duration(1<<uint(attempt-1)) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return result, err
}

// IntentResult is the payment continuation handed back to clients.
type IntentResult struct {
	IntentID     string `json:"intent_id"`
	ClientSecret string `json:"client_secret"`
	Kind         string `json:"kind"`
	// Reused is true when an existing intent for the same (business, plan)
	// pair was returned instead of a fresh one.
	Reused bool `json:"reused"`
}

// SubscribeResult is the outcome of a subscribe operation. Either the
// business is already active (trial plans) or a client-side payment
// confirmation is required and ClientSecret carries the continuation.
type SubscribeResult struct {
	Business       *models.Business `json:"business"`
	RequiresAction bool             `json:"requires_action"`
	IntentID       string           `json:"intent_id,omitempty"`
	ClientSecret   string           `json:"client_secret,omitempty"`
}

// ProvisioningService owns subscription provisioning: payment intent
// creation with natural-key idempotency, and activation.
type ProvisioningService struct {
	businessRepo BusinessStore
	planRepo     PlanStore
	billingSvc   *BillingService
	proc         processor.PaymentProcessor
	cache        Cache
	events       EventPublisher
}

// NewProvisioningService creates a new provisioning service
func NewProvisioningService(
	businessRepo BusinessStore,
	planRepo PlanStore,
	billingSvc *BillingService,
	proc processor.PaymentProcessor,
	cache Cache,
	events EventPublisher,
) *ProvisioningService {
	return &ProvisioningService{
		businessRepo: businessRepo,
		planRepo:     planRepo,
		billingSvc:   billingSvc,
		proc:         proc,
		cache:        cache,
		events:       events,
	}
}

// ensureCustomer returns the processor customer ID for a business, creating
// one on first use and persisting it on the record.
func (s *ProvisioningService) ensureCustomer(ctx context.Context, business *models.Business) (string, error) {
	if business.Subscription.ExternalCustomerID != "" {
		return business.Subscription.ExternalCustomerID, nil
	}

	email := ""
	if business.Owner != nil {
		email = business.Owner.Email
	}

	// Attach the invoicing identity so the processor customer carries the
	// legal name, address and tax id from the start.
	var billing *processor.CustomerBilling
	if business.BillingProfile.IsComplete() {
		billing = &processor.CustomerBilling{
			LegalName:  business.BillingProfile.LegalName,
			TaxID:      business.BillingProfile.TaxID,
			Street:     business.BillingProfile.Street,
			City:       business.BillingProfile.City,
			PostalCode: business.BillingProfile.PostalCode,
			Country:    business.BillingProfile.Country,
		}
	}

	cust, err := retryWithBackoff(ctx, 3, func() (*processor.Customer, error) {
		return s.proc.CreateCustomer(ctx, email, business.Name, billing, map[string]string{
			"business_id": business.ID.String(),
		})
	})
	if err != nil {
		return "", NewProcessorError("create customer", err, true)
	}

	business.Subscription.ExternalCustomerID = cust.ID
	if _, err := s.businessRepo.Update(ctx, business); err != nil {
		return "", fmt.Errorf("failed to persist customer id: %w", err)
	}
	return cust.ID, nil
}

// CreateIntent creates (or idempotently reuses) the payment intent for a
// (business, plan) pair. Repeated calls return the same client secret: the
// natural key, not a client-supplied token, is what dedupes.
func (s *ProvisioningService) CreateIntent(ctx context.Context, businessID uuid.UUID, planKey string) (*IntentResult, error) {
	plan, err := s.planRepo.GetByKey(ctx, planKey)
	if err != nil {
		return nil, err
	}
	if !plan.RequiresPayment() {
		return nil, NewValidationError("plan_key", fmt.Sprintf("plan %s does not require payment", planKey), nil)
	}

	business, err := s.businessRepo.GetByIDWithOwner(ctx, businessID)
	if err != nil {
		return nil, err
	}

	// The billing profile must be complete before any money is captured: a
	// confirmed intent that activation later refuses would leave a charge
	// with no subscription behind it.
	if err := s.billingSvc.EnsureCompleteForActivation(business); err != nil {
		return nil, err
	}

	// Reuse an existing unconsumed intent for this pair.
	if s.cache != nil {
		ref, err := s.cache.GetIntentRef(ctx, businessID.String(), planKey)
		if err != nil {
			log.Printf("[ProvisioningService] Intent cache read failed, proceeding without: %v", err)
		} else if ref != nil {
			intentsReused.Inc()
			return &IntentResult{
				IntentID:     ref.IntentID,
				ClientSecret: ref.ClientSecret,
				Kind:         ref.Kind,
				Reused:       true,
			}, nil
		}
	}

	customerID, err := s.ensureCustomer(ctx, business)
	if err != nil {
		return nil, err
	}

	metadata := map[string]string{
		"business_id": businessID.String(),
		"plan_key":    planKey,
	}

	var intent *processor.Intent
	if plan.TrialDays > 0 {
		// Trial on a paid plan: capture the method now, charge after the trial.
		intent, err = s.proc.CreateSetupIntent(ctx, customerID, metadata)
	} else {
		intent, err = s.proc.CreatePaymentIntent(ctx, customerID, plan.PriceCents, plan.Currency, metadata)
	}
	if err != nil {
		// Intent creation is the one step that fails hard: the client retries.
		return nil, NewProcessorError("create intent", err, true)
	}

	result := &IntentResult{
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Kind:         intent.Kind,
	}

	if s.cache != nil {
		stored, won, err := s.cache.PutIntentRefIfAbsent(ctx, &redis.IntentRef{
			IntentID:     intent.ID,
			ClientSecret: intent.ClientSecret,
			Kind:         intent.Kind,
			CustomerID:   customerID,
			BusinessID:   businessID.String(),
			PlanKey:      planKey,
		}, redis.DefaultIntentTTL)
		if err != nil {
			log.Printf("[ProvisioningService] Intent cache write failed: %v", err)
		} else if !won {
			// A concurrent request won; hand back its intent.
			result = &IntentResult{
				IntentID:     stored.IntentID,
				ClientSecret: stored.ClientSecret,
				Kind:         stored.Kind,
				Reused:       true,
			}
		}
	}

	// Record the chosen plan on the business.
	business.Subscription.PlanKey = planKey
	if business.RegistrationStatus == models.RegistrationStatusPartial {
		business.RegistrationStatus = models.RegistrationStatusPlanSelected
	}
	if _, err := s.businessRepo.Update(ctx, business); err != nil {
		return nil, fmt.Errorf("failed to record plan selection: %w", err)
	}

	if !result.Reused {
		intentsCreated.WithLabelValues(result.Kind).Inc()
	}
	log.Printf("[ProvisioningService] Intent %s (%s) ready for business %s plan %s (reused=%t)",
		result.IntentID, result.Kind, businessID, planKey, result.Reused)
	return result, nil
}

// validUntilFor computes the end of the first billing period.
func validUntilFor(plan *models.SubscriptionPlan, from time.Time) time.Time {
	if plan.TrialDays > 0 {
		return from.AddDate(0, 0, plan.TrialDays)
	}
	switch plan.Interval {
	case models.BillingIntervalQuarter:
		return from.AddDate(0, 3, 0)
	case models.BillingIntervalSemester:
		return from.AddDate(0, 6, 0)
	case models.BillingIntervalYear:
		return from.AddDate(1, 0, 0)
	default:
		return from.AddDate(0, 1, 0)
	}
}

// Subscribe provisions a subscription for a business on a plan. Free trial
// plans activate immediately with no payment intent; paid plans return a
// payment continuation to confirm client-side, after which Activate is called.
func (s *ProvisioningService) Subscribe(ctx context.Context, businessID uuid.UUID, planKey string) (*SubscribeResult, error) {
	plan, err := s.planRepo.GetByKey(ctx, planKey)
	if err != nil {
		return nil, err
	}

	if !plan.RequiresPayment() {
		business, err := s.activateTrial(ctx, businessID, plan)
		if err != nil {
			return nil, err
		}
		return &SubscribeResult{Business: business}, nil
	}

	intent, err := s.CreateIntent(ctx, businessID, planKey)
	if err != nil {
		return nil, err
	}

	business, err := s.businessRepo.GetByID(ctx, businessID)
	if err != nil {
		return nil, err
	}
	return &SubscribeResult{
		Business:       business,
		RequiresAction: true,
		IntentID:       intent.IntentID,
		ClientSecret:   intent.ClientSecret,
	}, nil
}

// activateTrial activates a zero-price plan: no processor objects are
// created, the validity window is the trial length.
func (s *ProvisioningService) activateTrial(ctx context.Context, businessID uuid.UUID, plan *models.SubscriptionPlan) (*models.Business, error) {
	business, err := s.businessRepo.GetByID(ctx, businessID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	validUntil := validUntilFor(plan, now)

	business.Subscription.PlanKey = plan.Key
	if plan.TrialDays > 0 {
		business.Subscription.Status = models.SubscriptionStatusTrialing
	} else {
		business.Subscription.Status = models.SubscriptionStatusActive
	}
	business.Subscription.ValidUntil = &validUntil
	business.RegistrationStatus = models.RegistrationStatusActive
	business.Active = true

	updated, err := s.businessRepo.Update(ctx, business)
	if err != nil {
		return nil, fmt.Errorf("failed to activate trial: %w", err)
	}

	activationsTotal.WithLabelValues("trial").Inc()
	s.publishActivated(updated)
	log.Printf("[ProvisioningService] Activated trial plan %s for business %s until %s",
		plan.Key, businessID, validUntil.Format(time.RFC3339))
	return updated, nil
}

// verifyIntentBinding checks that a succeeded intent was actually minted for
// the (business, plan) pair it is about to finalize. A confirmed intent from
// some other flow (a payment-method update, another plan) must not activate
// this subscription. The cached reference is authoritative while it lives;
// after it expires the intent's own metadata is the record.
func (s *ProvisioningService) verifyIntentBinding(ctx context.Context, businessID uuid.UUID, planKey, intentID string, intent *processor.Intent) error {
	if s.cache != nil {
		ref, err := s.cache.GetIntentRef(ctx, businessID.String(), planKey)
		if err != nil {
			log.Printf("[ProvisioningService] Intent cache read failed, falling back to metadata: %v", err)
		} else if ref != nil {
			if ref.IntentID == intentID {
				return nil
			}
			return NewStateError("activate", intent.Status, "payment intent does not match the pending intent for this plan")
		}
	}
	if intent.Metadata["business_id"] == businessID.String() && intent.Metadata["plan_key"] == planKey {
		return nil
	}
	return NewStateError("activate", intent.Status, "payment intent was not created for this business and plan")
}

// Activate finalizes a paid subscription after the client confirmed the
// payment intent. Idempotent on (business, intent): confirming the same
// intent twice returns the already-active record without touching the
// processor again.
func (s *ProvisioningService) Activate(ctx context.Context, businessID uuid.UUID, intentID string) (*models.Business, error) {
	business, err := s.businessRepo.GetByIDWithOwner(ctx, businessID)
	if err != nil {
		return nil, err
	}

	// Repeat confirmation of the consumed intent is a no-op.
	if business.Subscription.ActivatedIntentID == intentID &&
		business.RegistrationStatus == models.RegistrationStatusActive {
		return business, nil
	}

	plan, err := s.planRepo.GetByKey(ctx, business.Subscription.PlanKey)
	if err != nil {
		return nil, err
	}

	if err := s.billingSvc.EnsureCompleteForActivation(business); err != nil {
		return nil, err
	}

	intent, err := s.proc.GetIntent(ctx, intentID)
	if err != nil {
		return nil, NewProcessorError("verify intent", err, true)
	}
	if !intent.Succeeded() {
		return nil, NewStateError("activate", intent.Status, "payment intent is not confirmed")
	}
	if err := s.verifyIntentBinding(ctx, businessID, plan.Key, intentID, intent); err != nil {
		return nil, err
	}

	customerID, err := s.ensureCustomer(ctx, business)
	if err != nil {
		return nil, err
	}

	sub, err := retryWithBackoff(ctx, 3, func() (*processor.ProvisionedSubscription, error) {
		return s.proc.CreateSubscription(ctx, customerID, plan.ExternalPriceID, plan.TrialDays)
	})
	if err != nil {
		return nil, NewProcessorError("create subscription", err, true)
	}

	now := time.Now().UTC()
	validUntil := validUntilFor(plan, now)

	business.Subscription.ExternalSubscriptionID = sub.ID
	business.Subscription.ActivatedIntentID = intentID
	business.Subscription.ValidUntil = &validUntil
	if plan.TrialDays > 0 {
		business.Subscription.Status = models.SubscriptionStatusTrialing
	} else {
		business.Subscription.Status = models.SubscriptionStatusActive
	}
	business.RegistrationStatus = models.RegistrationStatusActive
	business.Active = true

	updated, err := s.businessRepo.Update(ctx, business)
	if err != nil {
		return nil, fmt.Errorf("failed to persist activation: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.DeleteIntentRef(ctx, businessID.String(), plan.Key); err != nil {
			log.Printf("[ProvisioningService] Failed to drop consumed intent ref: %v", err)
		}
	}

	activationsTotal.WithLabelValues("paid").Inc()
	s.publishActivated(updated)
	log.Printf("[ProvisioningService] Activated plan %s for business %s (subscription %s)",
		plan.Key, businessID, sub.ID)
	return updated, nil
}

func (s *ProvisioningService) publishActivated(business *models.Business) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := s.events.PublishSubscriptionEvent(ctx, nats.EventSubscriptionActivated, &nats.SubscriptionEvent{
			BusinessID:     business.ID.String(),
			PlanKey:        business.Subscription.PlanKey,
			Status:         business.Subscription.Status,
			SubscriptionID: business.Subscription.ExternalSubscriptionID,
		})
		if err != nil {
			log.Printf("[ProvisioningService] Failed to publish activation event: %v", err)
		}
	}()
}
