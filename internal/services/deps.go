package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"registration-service/internal/models"
	"registration-service/internal/nats"
	"registration-service/internal/redis"
	"registration-service/internal/repository"
)

// The services program against these seams rather than concrete stores, so
// flow logic can be exercised without Postgres, Redis or NATS behind it.
// The repository and client types satisfy them directly.

// OwnerStore is the owner-account lookup surface.
type OwnerStore interface {
	GetByEmail(ctx context.Context, email string) (*models.Owner, error)
}

// BusinessStore is the business persistence surface.
type BusinessStore interface {
	CreateWithOwner(ctx context.Context, owner *models.Owner, business *models.Business) repository.CreateBusinessResult
	CreateForOwner(ctx context.Context, ownerID uuid.UUID, business *models.Business) (*models.Business, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Business, error)
	GetByIDWithOwner(ctx context.Context, id uuid.UUID) (*models.Business, error)
	Update(ctx context.Context, business *models.Business) (*models.Business, error)
	ListCanceledBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Business, error)
	MarkPendingDeletion(ctx context.Context, id uuid.UUID, scheduledAt time.Time) error
}

// PlanStore is the catalog lookup surface.
type PlanStore interface {
	GetByKey(ctx context.Context, key string) (*models.SubscriptionPlan, error)
}

// Cache holds registration sessions and unconsumed intent references.
type Cache interface {
	SaveSession(ctx context.Context, session *models.RegistrationSession, ttl time.Duration) error
	GetSession(ctx context.Context, sessionID string) (*models.RegistrationSession, error)
	PutIntentRefIfAbsent(ctx context.Context, ref *redis.IntentRef, ttl time.Duration) (*redis.IntentRef, bool, error)
	GetIntentRef(ctx context.Context, businessID, planKey string) (*redis.IntentRef, error)
	DeleteIntentRef(ctx context.Context, businessID, planKey string) error
}

// EventPublisher emits lifecycle events. Publishing is best-effort; a nil
// *nats.Client behind this interface degrades every publish to a logged skip.
type EventPublisher interface {
	PublishLeadCaptured(ctx context.Context, event *nats.LeadCapturedEvent) error
	PublishRegistrationCompleted(ctx context.Context, event *nats.RegistrationCompletedEvent) error
	PublishSubscriptionEvent(ctx context.Context, eventType string, event *nats.SubscriptionEvent) error
}
