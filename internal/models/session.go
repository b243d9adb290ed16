package models

import (
	"errors"
	"fmt"
	"time"
)

// Registration steps, in flow order.
const (
	StepCollectingIdentity = "collecting_identity"
	StepSelectingBusiness  = "selecting_business"
	StepSelectingPlan      = "selecting_plan"
	StepAwaitingPayment    = "awaiting_payment"
	StepCompleted          = "completed"
)

// ErrInvalidTransition is returned when a session operation is applied in a
// step that does not accept it.
var ErrInvalidTransition = errors.New("operation not valid in current registration step")

// DefaultSessionTTL is how long an idle registration session is kept.
const DefaultSessionTTL = 48 * time.Hour

// RegistrationSession is the serializable state of one registration flow.
// It accumulates the data captured at each step and is only mutated through
// the Apply* transitions below, so every reachable state is an intentional one.
// The session is a value: transitions either mutate it and return nil, or
// leave it untouched and return ErrInvalidTransition.
type RegistrationSession struct {
	ID   string `json:"id"`
	Step string `json:"step"`

	// Identity step
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Phone     string `json:"phone,omitempty"`
	// DuplicateOwner is set when the identity email already had an owner
	// account. The flow still advances; the flag is kept for the final
	// linking of the business to the existing owner.
	DuplicateOwner bool `json:"duplicate_owner,omitempty"`
	// PasswordHash is the bcrypt hash of the chosen credential, carried
	// until the owner account is persisted. Never the raw password.
	PasswordHash string `json:"password_hash,omitempty"`

	// Business selection step
	BusinessID   string `json:"business_id,omitempty"`
	BusinessName string `json:"business_name,omitempty"`
	PlaceID      string `json:"place_id,omitempty"`

	// Plan selection step
	PlanKey string `json:"plan_key,omitempty"`

	// Payment continuation
	IntentID     string `json:"intent_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRegistrationSession starts a session at the identity step.
func NewRegistrationSession(id string) *RegistrationSession {
	now := time.Now().UTC()
	return &RegistrationSession{
		ID:        id,
		Step:      StepCollectingIdentity,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *RegistrationSession) touch() {
	s.UpdatedAt = time.Now().UTC()
}

func (s *RegistrationSession) transitionErr(op string) error {
	return fmt.Errorf("%s in step %s: %w", op, s.Step, ErrInvalidTransition)
}

// ApplyIdentity records the captured identity and advances to business
// selection. A duplicate email is not an abort condition: the flow advances
// with the flag set and the business is later attached to the existing owner.
func (s *RegistrationSession) ApplyIdentity(email, firstName, lastName, phone string, duplicateOwner bool) error {
	if s.Step != StepCollectingIdentity {
		return s.transitionErr("submit identity")
	}
	s.Email = email
	s.FirstName = firstName
	s.LastName = lastName
	s.Phone = phone
	s.DuplicateOwner = duplicateOwner
	s.Step = StepSelectingBusiness
	s.touch()
	return nil
}

// ApplyBusinessSelection records the chosen business and advances to plan
// selection. BusinessID may be empty when persisting the lead failed; the
// flow still advances and the record is created later, at activation.
func (s *RegistrationSession) ApplyBusinessSelection(businessID, businessName, placeID string) error {
	if s.Step != StepSelectingBusiness {
		return s.transitionErr("select business")
	}
	s.BusinessID = businessID
	s.BusinessName = businessName
	s.PlaceID = placeID
	s.Step = StepSelectingPlan
	s.touch()
	return nil
}

// ApplyPlanSelection records the chosen plan and advances to the payment step.
func (s *RegistrationSession) ApplyPlanSelection(planKey string) error {
	if s.Step != StepSelectingPlan {
		return s.transitionErr("select plan")
	}
	s.PlanKey = planKey
	s.IntentID = ""
	s.ClientSecret = ""
	s.Step = StepAwaitingPayment
	s.touch()
	return nil
}

// ApplyPaymentRequested stores the payment continuation for the client.
// The session stays in awaiting_payment; re-requesting replaces the
// continuation with the (idempotently reused) intent.
func (s *RegistrationSession) ApplyPaymentRequested(intentID, clientSecret string) error {
	if s.Step != StepAwaitingPayment {
		return s.transitionErr("request payment")
	}
	s.IntentID = intentID
	s.ClientSecret = clientSecret
	s.touch()
	return nil
}

// ApplyPaymentCanceled abandons the pending payment and returns to plan
// selection so a different plan can be chosen.
func (s *RegistrationSession) ApplyPaymentCanceled() error {
	if s.Step != StepAwaitingPayment {
		return s.transitionErr("cancel payment")
	}
	s.IntentID = ""
	s.ClientSecret = ""
	s.PlanKey = ""
	s.Step = StepSelectingPlan
	s.touch()
	return nil
}

// ApplyCompleted marks the flow finished after activation.
func (s *RegistrationSession) ApplyCompleted() error {
	if s.Step != StepAwaitingPayment {
		return s.transitionErr("complete registration")
	}
	s.ClientSecret = ""
	s.Step = StepCompleted
	s.touch()
	return nil
}

// IsTerminal reports whether the session accepts no further transitions.
func (s *RegistrationSession) IsTerminal() bool {
	return s.Step == StepCompleted
}
