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

// ChangePlanResult is the outcome of a plan change. Either the swap happened
// synchronously (Changed) or a payment confirmation is required first and
// ClientSecret carries the continuation.
type ChangePlanResult struct {
	Business     *models.Business `json:"business"`
	Changed      bool             `json:"changed"`
	IntentID     string           `json:"intent_id,omitempty"`
	ClientSecret string           `json:"client_secret,omitempty"`
}

// PauseResult is the outcome of a pause request. When a retention offer was
// accepted the subscription stays active with the discount applied.
type PauseResult struct {
	Business      *models.Business `json:"business"`
	OfferAccepted bool             `json:"offer_accepted"`
}

// LifecycleService handles post-activation subscription transitions.
type LifecycleService struct {
	businessRepo BusinessStore
	planRepo     PlanStore
	proc         processor.PaymentProcessor
	cache        Cache
	events       EventPublisher
	graceDays    int
}

// NewLifecycleService creates a new lifecycle service
func NewLifecycleService(
	businessRepo BusinessStore,
	planRepo PlanStore,
	proc processor.PaymentProcessor,
	cache Cache,
	events EventPublisher,
	graceDays int,
) *LifecycleService {
	return &LifecycleService{
		businessRepo: businessRepo,
		planRepo:     planRepo,
		proc:         proc,
		cache:        cache,
		events:       events,
		graceDays:    graceDays,
	}
}

func (s *LifecycleService) publishEvent(eventType string, business *models.Business, previousPlan string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := s.events.PublishSubscriptionEvent(ctx, eventType, &nats.SubscriptionEvent{
			BusinessID:     business.ID.String(),
			PlanKey:        business.Subscription.PlanKey,
			PreviousPlan:   previousPlan,
			Status:         business.Subscription.Status,
			SubscriptionID: business.Subscription.ExternalSubscriptionID,
		})
		if err != nil {
			log.Printf("[LifecycleService] Failed to publish %s event: %v", eventType, err)
		}
	}()
}

// Pause pauses an active subscription. When acceptedOfferPct is non-zero the
// customer took the retention offer instead: the discount is recorded and
// the subscription stays active — nothing is paused at the processor.
func (s *LifecycleService) Pause(ctx context.Context, businessID uuid.UUID, acceptedOfferPct int) (*PauseResult, error) {
	business, err := s.businessRepo.GetByID(ctx, businessID)
	if err != nil {
		return nil, err
	}

	status := business.Subscription.Status
	if status != models.SubscriptionStatusActive && status != models.SubscriptionStatusTrialing {
		return nil, NewStateError("pause", status, "only active subscriptions can be paused")
	}

	if acceptedOfferPct > 0 {
		business.Subscription.DiscountPct = acceptedOfferPct
		updated, err := s.businessRepo.Update(ctx, business)
		if err != nil {
			return nil, fmt.Errorf("failed to record retention offer: %w", err)
		}
		lifecycleTransitions.WithLabelValues("retention_offer").Inc()
		log.Printf("[LifecycleService] Business %s accepted %d%% retention offer instead of pausing",
			businessID, acceptedOfferPct)
		return &PauseResult{Business: updated, OfferAccepted: true}, nil
	}

	if business.Subscription.ExternalSubscriptionID != "" {
		if err := s.proc.PauseSubscription(ctx, business.Subscription.ExternalSubscriptionID); err != nil {
			return nil, NewProcessorError("pause subscription", err, true)
		}
	}

	now := time.Now().UTC()
	business.Subscription.Status = models.SubscriptionStatusPaused
	business.Subscription.PausedAt = &now

	updated, err := s.businessRepo.Update(ctx, business)
	if err != nil {
		return nil, fmt.Errorf("failed to persist pause: %w", err)
	}

	lifecycleTransitions.WithLabelValues("pause").Inc()
	s.publishEvent(nats.EventSubscriptionPaused, updated, "")
	return &PauseResult{Business: updated}, nil
}

// Resume lifts a pause, or reverses a cancellation that is still inside its
// grace window. No new payment confirmation is needed either way: the
// captured payment method stays attached to the processor customer.
func (s *LifecycleService) Resume(ctx context.Context, businessID uuid.UUID) (*models.Business, error) {
	business, err := s.businessRepo.GetByID(ctx, businessID)
	if err != nil {
		return nil, err
	}

	if business.RegistrationStatus == models.RegistrationStatusPendingDeletion {
		return nil, NewStateError("resume", business.RegistrationStatus, "grace window has elapsed; subscribe again to reactivate")
	}

	switch business.Subscription.Status {
	case models.SubscriptionStatusPaused:
		if business.Subscription.ExternalSubscriptionID != "" {
			if err := s.proc.ResumeSubscription(ctx, business.Subscription.ExternalSubscriptionID); err != nil {
				return nil, NewProcessorError("resume subscription", err, true)
			}
		}
		business.Subscription.Status = models.SubscriptionStatusActive
		business.Subscription.PausedAt = nil

	case models.SubscriptionStatusCanceled:
		if !s.withinGraceWindow(business) {
			return nil, NewStateError("resume", business.Subscription.Status, "grace window has elapsed; subscribe again to reactivate")
		}
		// Cancel tore the subscription down at the processor, so reversing
		// it means provisioning a fresh one against the same customer.
		if err := s.reprovisionSubscription(ctx, business); err != nil {
			return nil, err
		}

	default:
		return nil, NewStateError("resume", business.Subscription.Status, "only paused or canceled subscriptions can be resumed")
	}

	updated, err := s.businessRepo.Update(ctx, business)
	if err != nil {
		return nil, fmt.Errorf("failed to persist resume: %w", err)
	}

	lifecycleTransitions.WithLabelValues("resume").Inc()
	s.publishEvent(nats.EventSubscriptionResumed, updated, "")
	return updated, nil
}

// withinGraceWindow reports whether a cancellation can still be reversed.
func (s *LifecycleService) withinGraceWindow(business *models.Business) bool {
	if business.CancelRequestedAt == nil {
		return false
	}
	return time.Now().UTC().Before(business.CancelRequestedAt.AddDate(0, 0, s.graceDays))
}

// reprovisionSubscription recreates the processor subscription for a business
// whose cancellation is being reversed, and resets the record to active.
func (s *LifecycleService) reprovisionSubscription(ctx context.Context, business *models.Business) error {
	plan, err := s.planRepo.GetByKey(ctx, business.Subscription.PlanKey)
	if err != nil {
		return err
	}

	if business.Subscription.ExternalCustomerID != "" && plan.RequiresPayment() {
		sub, err := s.proc.CreateSubscription(ctx, business.Subscription.ExternalCustomerID, plan.ExternalPriceID, 0)
		if err != nil {
			return NewProcessorError("create subscription", err, true)
		}
		business.Subscription.ExternalSubscriptionID = sub.ID
	}

	now := time.Now().UTC()
	validUntil := validUntilFor(plan, now)
	business.Subscription.Status = models.SubscriptionStatusActive
	business.Subscription.AutoRenew = true
	business.Subscription.ValidUntil = &validUntil
	business.RegistrationStatus = models.RegistrationStatusActive
	business.CancelRequestedAt = nil
	return nil
}

// Cancel requests cancellation. The subscription is torn down at the
// processor, but the business keeps serving through the grace window: only
// the sweep moves it to pending_deletion.
func (s *LifecycleService) Cancel(ctx context.Context, businessID uuid.UUID) (*models.Business, error) {
	business, err := s.businessRepo.GetByID(ctx, businessID)
	if err != nil {
		return nil, err
	}

	switch business.RegistrationStatus {
	case models.RegistrationStatusCanceled:
		// Repeat cancel is a no-op.
		return business, nil
	case models.RegistrationStatusPendingDeletion:
		return nil, NewStateError("cancel", business.RegistrationStatus, "business is already scheduled for deletion")
	case models.RegistrationStatusActive:
	default:
		return nil, NewStateError("cancel", business.RegistrationStatus, "no active subscription to cancel")
	}

	if business.Subscription.ExternalSubscriptionID != "" {
		if err := s.proc.CancelSubscription(ctx, business.Subscription.ExternalSubscriptionID); err != nil {
			return nil, NewProcessorError("cancel subscription", err, true)
		}
	}

	now := time.Now().UTC()
	business.Subscription.Status = models.SubscriptionStatusCanceled
	business.Subscription.AutoRenew = false
	business.RegistrationStatus = models.RegistrationStatusCanceled
	business.CancelRequestedAt = &now
	// Active stays as-is: the business is servable until the grace window ends.

	updated, err := s.businessRepo.Update(ctx, business)
	if err != nil {
		return nil, fmt.Errorf("failed to persist cancellation: %w", err)
	}

	lifecycleTransitions.WithLabelValues("cancel").Inc()
	s.publishEvent(nats.EventSubscriptionCanceled, updated, "")
	log.Printf("[LifecycleService] Business %s canceled; servable until %s",
		businessID, now.AddDate(0, 0, s.graceDays).Format(time.RFC3339))
	return updated, nil
}

// ChangePlan moves an active subscription to a different paid plan.
// Downgrades (and equal-price moves) swap synchronously. Upgrades require a
// payment confirmation first: the returned continuation is confirmed
// client-side and finalized with ConfirmPlanChange.
func (s *LifecycleService) ChangePlan(ctx context.Context, businessID uuid.UUID, newPlanKey string) (*ChangePlanResult, error) {
	business, err := s.businessRepo.GetByIDWithOwner(ctx, businessID)
	if err != nil {
		return nil, err
	}

	if business.Subscription.Status != models.SubscriptionStatusActive &&
		business.Subscription.Status != models.SubscriptionStatusTrialing {
		return nil, NewStateError("change plan", business.Subscription.Status, "subscription must be active")
	}
	if business.Subscription.PlanKey == newPlanKey {
		return nil, NewValidationError("plan_key", "business is already on this plan", nil)
	}

	newPlan, err := s.planRepo.GetByKey(ctx, newPlanKey)
	if err != nil {
		return nil, err
	}
	if !newPlan.RequiresPayment() {
		return nil, NewValidationError("plan_key", "cannot change to a trial plan", nil)
	}

	currentPlan, err := s.planRepo.GetByKey(ctx, business.Subscription.PlanKey)
	if err != nil {
		return nil, err
	}

	// Upgrades collect payment up front; the swap happens on confirmation.
	if newPlan.PriceCents > currentPlan.PriceCents {
		customerID := business.Subscription.ExternalCustomerID
		if customerID == "" {
			return nil, NewStateError("change plan", business.Subscription.Status, "business has no payment customer")
		}

		if s.cache != nil {
			if ref, err := s.cache.GetIntentRef(ctx, businessID.String(), newPlanKey); err == nil && ref != nil {
				intentsReused.Inc()
				return &ChangePlanResult{
					Business:     business,
					IntentID:     ref.IntentID,
					ClientSecret: ref.ClientSecret,
				}, nil
			}
		}

		intent, err := s.proc.CreatePaymentIntent(ctx, customerID, newPlan.PriceCents-currentPlan.PriceCents, newPlan.Currency, map[string]string{
			"business_id": businessID.String(),
			"plan_key":    newPlanKey,
			"reason":      "plan_upgrade",
		})
		if err != nil {
			return nil, NewProcessorError("create intent", err, true)
		}

		if s.cache != nil {
			if _, _, err := s.cache.PutIntentRefIfAbsent(ctx, &redis.IntentRef{
				IntentID:     intent.ID,
				ClientSecret: intent.ClientSecret,
				Kind:         intent.Kind,
				CustomerID:   customerID,
				BusinessID:   businessID.String(),
				PlanKey:      newPlanKey,
			}, redis.DefaultIntentTTL); err != nil {
				log.Printf("[LifecycleService] Intent cache write failed: %v", err)
			}
		}

		intentsCreated.WithLabelValues(intent.Kind).Inc()
		return &ChangePlanResult{
			Business:     business,
			IntentID:     intent.ID,
			ClientSecret: intent.ClientSecret,
		}, nil
	}

	return s.applyPlanChange(ctx, business, newPlan)
}

// ConfirmPlanChange finalizes an upgrade after the client confirmed the
// payment intent.
func (s *LifecycleService) ConfirmPlanChange(ctx context.Context, businessID uuid.UUID, newPlanKey, intentID string) (*ChangePlanResult, error) {
	business, err := s.businessRepo.GetByID(ctx, businessID)
	if err != nil {
		return nil, err
	}

	// Already swapped: repeat confirmation is a no-op.
	if business.Subscription.PlanKey == newPlanKey {
		return &ChangePlanResult{Business: business, Changed: true}, nil
	}

	newPlan, err := s.planRepo.GetByKey(ctx, newPlanKey)
	if err != nil {
		return nil, err
	}

	intent, err := s.proc.GetIntent(ctx, intentID)
	if err != nil {
		return nil, NewProcessorError("verify intent", err, true)
	}
	if !intent.Succeeded() {
		return nil, NewStateError("confirm plan change", intent.Status, "payment intent is not confirmed")
	}
	if err := s.verifyUpgradeIntent(ctx, businessID, newPlanKey, intentID, intent); err != nil {
		return nil, err
	}

	result, err := s.applyPlanChange(ctx, business, newPlan)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.DeleteIntentRef(ctx, businessID.String(), newPlanKey); err != nil {
			log.Printf("[LifecycleService] Failed to drop consumed intent ref: %v", err)
		}
	}
	return result, nil
}

// verifyUpgradeIntent checks that the confirmed intent is the one minted for
// this upgrade, not a succeeded intent from some other flow. The cached
// reference wins while it lives; the intent's metadata is the fallback.
func (s *LifecycleService) verifyUpgradeIntent(ctx context.Context, businessID uuid.UUID, planKey, intentID string, intent *processor.Intent) error {
	if s.cache != nil {
		ref, err := s.cache.GetIntentRef(ctx, businessID.String(), planKey)
		if err != nil {
			log.Printf("[LifecycleService] Intent cache read failed, falling back to metadata: %v", err)
		} else if ref != nil {
			if ref.IntentID == intentID {
				return nil
			}
			return NewStateError("confirm plan change", intent.Status, "payment intent does not match the pending upgrade intent")
		}
	}
	if intent.Metadata["business_id"] == businessID.String() && intent.Metadata["plan_key"] == planKey {
		return nil
	}
	return NewStateError("confirm plan change", intent.Status, "payment intent was not created for this plan change")
}

func (s *LifecycleService) applyPlanChange(ctx context.Context, business *models.Business, newPlan *models.SubscriptionPlan) (*ChangePlanResult, error) {
	if business.Subscription.ExternalSubscriptionID != "" {
		_, err := s.proc.ChangeSubscriptionPrice(ctx, business.Subscription.ExternalSubscriptionID, newPlan.ExternalPriceID)
		if err != nil {
			return nil, NewProcessorError("change subscription price", err, true)
		}
	}

	previousPlan := business.Subscription.PlanKey
	now := time.Now().UTC()
	validUntil := validUntilFor(newPlan, now)

	business.Subscription.PlanKey = newPlan.Key
	business.Subscription.ValidUntil = &validUntil

	updated, err := s.businessRepo.Update(ctx, business)
	if err != nil {
		return nil, fmt.Errorf("failed to persist plan change: %w", err)
	}

	lifecycleTransitions.WithLabelValues("change_plan").Inc()
	s.publishEvent(nats.EventPlanChanged, updated, previousPlan)
	log.Printf("[LifecycleService] Business %s changed plan %s -> %s", business.ID, previousPlan, newPlan.Key)
	return &ChangePlanResult{Business: updated, Changed: true}, nil
}

// UpdatePaymentMethod starts a payment-method replacement. This is never
// cached: every call yields a fresh setup intent on the existing customer.
func (s *LifecycleService) UpdatePaymentMethod(ctx context.Context, businessID uuid.UUID) (*IntentResult, error) {
	business, err := s.businessRepo.GetByID(ctx, businessID)
	if err != nil {
		return nil, err
	}

	customerID := business.Subscription.ExternalCustomerID
	if customerID == "" {
		return nil, NewStateError("update payment method", business.RegistrationStatus, "business has no payment customer")
	}

	intent, err := s.proc.CreateSetupIntent(ctx, customerID, map[string]string{
		"business_id": businessID.String(),
		"reason":      "payment_method_update",
	})
	if err != nil {
		return nil, NewProcessorError("create setup intent", err, true)
	}

	intentsCreated.WithLabelValues(intent.Kind).Inc()
	return &IntentResult{
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Kind:         intent.Kind,
	}, nil
}

// SweepGraceWindows moves businesses whose cancellation grace window has
// elapsed to pending_deletion and drops their serving flag. Returns how many
// were transitioned.
func (s *LifecycleService) SweepGraceWindows(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.graceDays)

	expired, err := s.businessRepo.ListCanceledBefore(ctx, cutoff, 500)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, business := range expired {
		if err := s.businessRepo.MarkPendingDeletion(ctx, business.ID, time.Now().UTC()); err != nil {
			log.Printf("[LifecycleService] Failed to schedule deletion for business %s: %v", business.ID, err)
			continue
		}
		count++
	}

	if count > 0 {
		lifecycleTransitions.WithLabelValues("pending_deletion").Add(float64(count))
	}
	return count, nil
}
