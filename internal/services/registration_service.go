package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"registration-service/internal/models"
	"registration-service/internal/nats"
	"registration-service/internal/repository"
)

// ErrSessionNotFound is returned when a registration session does not exist
// or has expired.
var ErrSessionNotFound = errors.New("registration session not found")

// RegistrationService orchestrates the multi-step registration flow. The
// session itself is a pure state machine (models.RegistrationSession); this
// service loads it, runs side effects, applies transitions and stores it back.
//
// Soft-fail policy: a duplicate owner email and a transient store failure
// both let the flow advance — a lost lead is worse than a delayed record.
// Payment intent creation is the exception: it fails hard and the client
// retries.
type RegistrationService struct {
	ownerRepo    OwnerStore
	businessRepo BusinessStore
	planRepo     PlanStore
	billing      *BillingService
	provisioning *ProvisioningService
	cache        Cache
	events       EventPublisher
	sessionTTL   time.Duration
}

// NewRegistrationService creates a new registration orchestrator
func NewRegistrationService(
	ownerRepo OwnerStore,
	businessRepo BusinessStore,
	planRepo PlanStore,
	billing *BillingService,
	provisioning *ProvisioningService,
	cache Cache,
	events EventPublisher,
	sessionTTL time.Duration,
) *RegistrationService {
	if sessionTTL <= 0 {
		sessionTTL = models.DefaultSessionTTL
	}
	return &RegistrationService{
		ownerRepo:    ownerRepo,
		businessRepo: businessRepo,
		planRepo:     planRepo,
		billing:      billing,
		provisioning: provisioning,
		cache:        cache,
		events:       events,
		sessionTTL:   sessionTTL,
	}
}

// SubmitIdentityRequest carries the identity step fields
type SubmitIdentityRequest struct {
	Email                string `json:"email" validate:"required,email"`
	FirstName            string `json:"first_name" validate:"required,min=2,max=100"`
	LastName             string `json:"last_name" validate:"required,min=2,max=100"`
	Phone                string `json:"phone"`
	Password             string `json:"password" validate:"required,min=8"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required"`
}

// SubmitBusinessRequest carries the business selection step fields
type SubmitBusinessRequest struct {
	Name       string `json:"name" validate:"required,min=2,max=255"`
	PlaceID    string `json:"place_id"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Vertical   string `json:"vertical"`
}

// RequestPaymentResult is what the payment step hands back to the client.
type RequestPaymentResult struct {
	Session      *models.RegistrationSession `json:"session"`
	Completed    bool                        `json:"completed"`
	IntentID     string                      `json:"intent_id,omitempty"`
	ClientSecret string                      `json:"client_secret,omitempty"`
}

// StartSession creates a fresh registration session.
func (s *RegistrationService) StartSession(ctx context.Context) (*models.RegistrationSession, error) {
	session := models.NewRegistrationSession(uuid.New().String())
	if err := s.cache.SaveSession(ctx, session, s.sessionTTL); err != nil {
		return nil, fmt.Errorf("failed to store registration session: %w", err)
	}
	sessionsStarted.Inc()
	log.Printf("[RegistrationService] Started session %s", session.ID)
	return session, nil
}

// GetSession loads a registration session.
func (s *RegistrationService) GetSession(ctx context.Context, sessionID string) (*models.RegistrationSession, error) {
	session, err := s.cache.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (s *RegistrationService) save(ctx context.Context, session *models.RegistrationSession) error {
	if err := s.cache.SaveSession(ctx, session, s.sessionTTL); err != nil {
		return fmt.Errorf("failed to store registration session: %w", err)
	}
	return nil
}

// SubmitIdentity records the identity step. A duplicate email does not
// abort: the flow advances with the duplicate flag set and the business is
// attached to the existing owner account later.
func (s *RegistrationService) SubmitIdentity(ctx context.Context, sessionID string, req *SubmitIdentityRequest) (*models.RegistrationSession, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if req.Password != req.PasswordConfirmation {
		return nil, NewValidationError("password_confirmation", "passwords do not match", nil)
	}

	duplicate := false
	existing, err := s.ownerRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		// Transient store failure: advance anyway, resolve at creation time.
		log.Printf("[RegistrationService] Owner lookup failed, advancing: %v", err)
	} else if existing != nil {
		duplicate = true
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	if err := session.ApplyIdentity(req.Email, req.FirstName, req.LastName, req.Phone, duplicate); err != nil {
		return nil, err
	}
	session.PasswordHash = string(hash)

	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// SubmitBusinessSelection records the chosen business and persists the
// partial record. Persistence failures and duplicate owners both advance
// the flow; only an invalid transition is an error.
func (s *RegistrationService) SubmitBusinessSelection(ctx context.Context, sessionID string, req *SubmitBusinessRequest) (*models.RegistrationSession, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	businessID := ""
	if !session.DuplicateOwner {
		owner := &models.Owner{
			Email:        session.Email,
			FirstName:    session.FirstName,
			LastName:     session.LastName,
			Phone:        session.Phone,
			PasswordHash: session.PasswordHash,
		}
		business := s.businessFromRequest(req)

		result := s.businessRepo.CreateWithOwner(ctx, owner, business)
		switch result.Outcome {
		case repository.BusinessCreated:
			businessID = result.BusinessID.String()
			leadsCaptured.Inc()
			s.publishLead(session, businessID, req.Name)
		case repository.BusinessDuplicateOwner:
			// Raced with another registration for the same email.
			session.DuplicateOwner = true
			log.Printf("[RegistrationService] Session %s: owner email already registered, advancing", sessionID)
		case repository.BusinessCreateFailed:
			// Soft-fail: the record is created at plan selection instead.
			log.Printf("[RegistrationService] Session %s: lead persistence failed, advancing: %s", sessionID, result.Reason)
		}
	}

	if err := session.ApplyBusinessSelection(businessID, req.Name, req.PlaceID); err != nil {
		return nil, err
	}
	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *RegistrationService) businessFromRequest(req *SubmitBusinessRequest) *models.Business {
	return &models.Business{
		Name:               req.Name,
		PlaceID:            req.PlaceID,
		Address:            req.Address,
		City:               req.City,
		PostalCode:         req.PostalCode,
		Country:            req.Country,
		Vertical:           req.Vertical,
		RegistrationStatus: models.RegistrationStatusPartial,
	}
}

// ensureBusiness guarantees a business record exists for the session before
// provisioning starts, covering the deferred-create paths (duplicate owner,
// earlier store failure).
func (s *RegistrationService) ensureBusiness(ctx context.Context, session *models.RegistrationSession) (uuid.UUID, error) {
	if session.BusinessID != "" {
		return uuid.Parse(session.BusinessID)
	}

	business := &models.Business{
		Name:               session.BusinessName,
		PlaceID:            session.PlaceID,
		RegistrationStatus: models.RegistrationStatusPartial,
	}

	if session.DuplicateOwner {
		owner, err := s.ownerRepo.GetByEmail(ctx, session.Email)
		if err != nil {
			return uuid.Nil, fmt.Errorf("failed to resolve existing owner: %w", err)
		}
		if owner == nil {
			return uuid.Nil, fmt.Errorf("owner account for %s no longer exists", session.Email)
		}
		created, err := s.businessRepo.CreateForOwner(ctx, owner.ID, business)
		if err != nil {
			return uuid.Nil, err
		}
		session.BusinessID = created.ID.String()
		return created.ID, nil
	}

	owner := &models.Owner{
		Email:        session.Email,
		FirstName:    session.FirstName,
		LastName:     session.LastName,
		Phone:        session.Phone,
		PasswordHash: session.PasswordHash,
	}
	result := s.businessRepo.CreateWithOwner(ctx, owner, business)
	switch result.Outcome {
	case repository.BusinessCreated:
		session.BusinessID = result.BusinessID.String()
		leadsCaptured.Inc()
		return result.BusinessID, nil
	case repository.BusinessDuplicateOwner:
		session.DuplicateOwner = true
		return s.ensureBusiness(ctx, session)
	default:
		return uuid.Nil, fmt.Errorf("failed to create business record: %s", result.Reason)
	}
}

// SubmitPlanSelection validates the plan and advances to the payment step.
func (s *RegistrationService) SubmitPlanSelection(ctx context.Context, sessionID, planKey string) (*models.RegistrationSession, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	plan, err := s.planRepo.GetByKey(ctx, planKey)
	if err != nil {
		return nil, NewValidationError("plan_key", fmt.Sprintf("unknown plan %s", planKey), nil)
	}
	if !plan.IsActive {
		return nil, NewValidationError("plan_key", fmt.Sprintf("plan %s is not available", planKey), nil)
	}

	if _, err := s.ensureBusiness(ctx, session); err != nil {
		return nil, err
	}

	if err := session.ApplyPlanSelection(plan.Key); err != nil {
		return nil, err
	}
	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// RequestPayment starts provisioning for the selected plan. The billing
// profile rides along on this step and is validated and stored before any
// intent is created. Zero-price trial plans activate immediately and complete
// the session; paid plans return the payment continuation. Intent creation
// failures are hard errors: the session is left untouched and the client
// retries.
func (s *RegistrationService) RequestPayment(ctx context.Context, sessionID string, profile *UpdateBillingProfileRequest) (*RequestPaymentResult, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Step != models.StepAwaitingPayment {
		return nil, NewStateError("request payment", session.Step, "plan must be selected first")
	}

	businessID, err := uuid.Parse(session.BusinessID)
	if err != nil {
		return nil, fmt.Errorf("session has no business record: %w", err)
	}

	if profile != nil {
		if _, err := s.billing.UpdateBillingProfile(ctx, businessID, profile); err != nil {
			return nil, err
		}
	}

	result, err := s.provisioning.Subscribe(ctx, businessID, session.PlanKey)
	if err != nil {
		return nil, err
	}

	if !result.RequiresAction {
		// Trial activation: the flow is done.
		if err := session.ApplyCompleted(); err != nil {
			return nil, err
		}
		if err := s.save(ctx, session); err != nil {
			return nil, err
		}
		sessionsCompleted.Inc()
		s.publishCompleted(session)
		return &RequestPaymentResult{Session: session, Completed: true}, nil
	}

	if err := session.ApplyPaymentRequested(result.IntentID, result.ClientSecret); err != nil {
		return nil, err
	}
	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	return &RequestPaymentResult{
		Session:      session,
		IntentID:     result.IntentID,
		ClientSecret: result.ClientSecret,
	}, nil
}

// ConfirmPayment finalizes the flow after the client confirmed the intent.
// Idempotent: re-confirming a completed session returns it unchanged.
func (s *RegistrationService) ConfirmPayment(ctx context.Context, sessionID, intentID string) (*models.RegistrationSession, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.IsTerminal() {
		return session, nil
	}
	if intentID == "" {
		intentID = session.IntentID
	}
	if intentID == "" {
		return nil, NewStateError("confirm payment", session.Step, "no payment intent to confirm")
	}

	businessID, err := uuid.Parse(session.BusinessID)
	if err != nil {
		return nil, fmt.Errorf("session has no business record: %w", err)
	}

	if _, err := s.provisioning.Activate(ctx, businessID, intentID); err != nil {
		return nil, err
	}

	if err := session.ApplyCompleted(); err != nil {
		return nil, err
	}
	if err := s.save(ctx, session); err != nil {
		return nil, err
	}

	sessionsCompleted.Inc()
	s.publishCompleted(session)
	return session, nil
}

// CancelPayment abandons the pending payment and returns the session to plan
// selection. The cached intent reference is dropped so a later request for
// the same plan mints a fresh intent.
func (s *RegistrationService) CancelPayment(ctx context.Context, sessionID string) (*models.RegistrationSession, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	planKey := session.PlanKey
	if err := session.ApplyPaymentCanceled(); err != nil {
		return nil, err
	}

	if session.BusinessID != "" && planKey != "" {
		if err := s.cache.DeleteIntentRef(ctx, session.BusinessID, planKey); err != nil {
			log.Printf("[RegistrationService] Failed to drop intent ref on cancel: %v", err)
		}
	}

	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *RegistrationService) publishLead(session *models.RegistrationSession, businessID, businessName string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := s.events.PublishLeadCaptured(ctx, &nats.LeadCapturedEvent{
			SessionID:    session.ID,
			BusinessID:   businessID,
			BusinessName: businessName,
			Email:        session.Email,
		})
		if err != nil {
			log.Printf("[RegistrationService] Failed to publish lead event: %v", err)
		}
	}()
}

func (s *RegistrationService) publishCompleted(session *models.RegistrationSession) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := s.events.PublishRegistrationCompleted(ctx, &nats.RegistrationCompletedEvent{
			SessionID:  session.ID,
			BusinessID: session.BusinessID,
			PlanKey:    session.PlanKey,
			Email:      session.Email,
		})
		if err != nil {
			log.Printf("[RegistrationService] Failed to publish completion event: %v", err)
		}
	}()
}
