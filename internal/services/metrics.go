package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "registration_sessions_started_total",
		Help: "Registration sessions started",
	})

	sessionsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "registration_sessions_completed_total",
		Help: "Registration sessions completed with an active subscription",
	})

	leadsCaptured = promauto.NewCounter(prometheus.CounterOpts{
		Name: "registration_leads_captured_total",
		Help: "Partial business records created during registration",
	})

	intentsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_intents_created_total",
		Help: "Payment continuations created, by intent kind",
	}, []string{"kind"})

	intentsReused = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_intents_reused_total",
		Help: "Intent requests served from the idempotency cache",
	})

	activationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subscription_activations_total",
		Help: "Subscription activations, by kind (trial or paid)",
	}, []string{"kind"})

	lifecycleTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subscription_lifecycle_transitions_total",
		Help: "Post-activation lifecycle transitions, by action",
	}, []string{"action"})
)
