package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistrationSessionStartsAtIdentity(t *testing.T) {
	session := NewRegistrationSession("sess-1")

	assert.Equal(t, "sess-1", session.ID)
	assert.Equal(t, StepCollectingIdentity, session.Step)
	assert.False(t, session.IsTerminal())
}

func TestFullRegistrationFlow(t *testing.T) {
	session := NewRegistrationSession("sess-1")

	require.NoError(t, session.ApplyIdentity("maria@example.com", "Maria", "Garcia", "+34600111222", false))
	assert.Equal(t, StepSelectingBusiness, session.Step)
	assert.Equal(t, "maria@example.com", session.Email)

	require.NoError(t, session.ApplyBusinessSelection("biz-1", "La Tasca", "place-99"))
	assert.Equal(t, StepSelectingPlan, session.Step)
	assert.Equal(t, "La Tasca", session.BusinessName)

	require.NoError(t, session.ApplyPlanSelection("premium"))
	assert.Equal(t, StepAwaitingPayment, session.Step)
	assert.Equal(t, "premium", session.PlanKey)

	require.NoError(t, session.ApplyPaymentRequested("pi_123", "pi_123_secret"))
	assert.Equal(t, StepAwaitingPayment, session.Step)
	assert.Equal(t, "pi_123", session.IntentID)
	assert.Equal(t, "pi_123_secret", session.ClientSecret)

	require.NoError(t, session.ApplyCompleted())
	assert.Equal(t, StepCompleted, session.Step)
	assert.True(t, session.IsTerminal())
	assert.Empty(t, session.ClientSecret, "client secret should not outlive the flow")
}

func TestDuplicateOwnerAdvancesFlow(t *testing.T) {
	session := NewRegistrationSession("sess-1")

	require.NoError(t, session.ApplyIdentity("existing@example.com", "Ana", "Lopez", "", true))

	assert.Equal(t, StepSelectingBusiness, session.Step)
	assert.True(t, session.DuplicateOwner)
}

func TestBusinessSelectionAllowsEmptyBusinessID(t *testing.T) {
	session := NewRegistrationSession("sess-1")
	require.NoError(t, session.ApplyIdentity("maria@example.com", "Maria", "Garcia", "", false))

	// Persisting the lead may have failed; the flow still advances.
	require.NoError(t, session.ApplyBusinessSelection("", "La Tasca", ""))
	assert.Equal(t, StepSelectingPlan, session.Step)
	assert.Empty(t, session.BusinessID)
}

func TestPaymentCancelReturnsToPlanSelection(t *testing.T) {
	session := NewRegistrationSession("sess-1")
	require.NoError(t, session.ApplyIdentity("maria@example.com", "Maria", "Garcia", "", false))
	require.NoError(t, session.ApplyBusinessSelection("biz-1", "La Tasca", ""))
	require.NoError(t, session.ApplyPlanSelection("premium"))
	require.NoError(t, session.ApplyPaymentRequested("pi_123", "pi_123_secret"))

	require.NoError(t, session.ApplyPaymentCanceled())

	assert.Equal(t, StepSelectingPlan, session.Step)
	assert.Empty(t, session.PlanKey)
	assert.Empty(t, session.IntentID)
	assert.Empty(t, session.ClientSecret)

	// A different plan can now be chosen.
	require.NoError(t, session.ApplyPlanSelection("essential"))
	assert.Equal(t, "essential", session.PlanKey)
}

func TestRePaymentRequestReplacesContinuation(t *testing.T) {
	session := NewRegistrationSession("sess-1")
	require.NoError(t, session.ApplyIdentity("maria@example.com", "Maria", "Garcia", "", false))
	require.NoError(t, session.ApplyBusinessSelection("biz-1", "La Tasca", ""))
	require.NoError(t, session.ApplyPlanSelection("premium"))

	require.NoError(t, session.ApplyPaymentRequested("pi_123", "secret_1"))
	require.NoError(t, session.ApplyPaymentRequested("pi_123", "secret_1"))

	assert.Equal(t, StepAwaitingPayment, session.Step)
	assert.Equal(t, "pi_123", session.IntentID)
}

func TestInvalidTransitionsLeaveSessionUntouched(t *testing.T) {
	tests := []struct {
		name  string
		apply func(*RegistrationSession) error
	}{
		{"business before identity", func(s *RegistrationSession) error {
			return s.ApplyBusinessSelection("biz-1", "La Tasca", "")
		}},
		{"plan before identity", func(s *RegistrationSession) error {
			return s.ApplyPlanSelection("premium")
		}},
		{"payment before plan", func(s *RegistrationSession) error {
			return s.ApplyPaymentRequested("pi_123", "secret")
		}},
		{"cancel before payment", func(s *RegistrationSession) error {
			return s.ApplyPaymentCanceled()
		}},
		{"complete before payment", func(s *RegistrationSession) error {
			return s.ApplyCompleted()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := NewRegistrationSession("sess-1")
			err := tt.apply(session)

			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.Equal(t, StepCollectingIdentity, session.Step)
		})
	}
}

func TestCompletedSessionAcceptsNothing(t *testing.T) {
	session := NewRegistrationSession("sess-1")
	require.NoError(t, session.ApplyIdentity("maria@example.com", "Maria", "Garcia", "", false))
	require.NoError(t, session.ApplyBusinessSelection("biz-1", "La Tasca", ""))
	require.NoError(t, session.ApplyPlanSelection("trial"))
	require.NoError(t, session.ApplyCompleted())

	assert.ErrorIs(t, session.ApplyIdentity("x@example.com", "X", "Y", "", false), ErrInvalidTransition)
	assert.ErrorIs(t, session.ApplyPlanSelection("premium"), ErrInvalidTransition)
	assert.ErrorIs(t, session.ApplyCompleted(), ErrInvalidTransition)
}

func TestSessionSurvivesSerialization(t *testing.T) {
	session := NewRegistrationSession("sess-1")
	require.NoError(t, session.ApplyIdentity("maria@example.com", "Maria", "Garcia", "+34600111222", true))
	require.NoError(t, session.ApplyBusinessSelection("biz-1", "La Tasca", "place-99"))

	data, err := json.Marshal(session)
	require.NoError(t, err)

	var restored RegistrationSession
	require.NoError(t, json.Unmarshal(data, &restored))

	assert.Equal(t, session.Step, restored.Step)
	assert.Equal(t, session.Email, restored.Email)
	assert.True(t, restored.DuplicateOwner)

	// Restored sessions keep transitioning.
	require.NoError(t, restored.ApplyPlanSelection("premium"))
	assert.Equal(t, StepAwaitingPayment, restored.Step)
}
