package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"registration-service/internal/models"
)

// ErrBusinessNotFound is returned when a business lookup finds no row.
var ErrBusinessNotFound = errors.New("business not found")

// CreateBusinessOutcome is the typed result kind of a create attempt.
type CreateBusinessOutcome string

const (
	// BusinessCreated means a fresh Business (and owner, when new) was persisted.
	BusinessCreated CreateBusinessOutcome = "created"
	// BusinessDuplicateOwner means the owner email already has an account.
	// This is a recoverable signal for callers, not an error.
	BusinessDuplicateOwner CreateBusinessOutcome = "duplicate_owner"
	// BusinessCreateFailed means the store could not persist the record.
	BusinessCreateFailed CreateBusinessOutcome = "failed"
)

// CreateBusinessResult is the outcome of CreateWithOwner. Callers branch on
// Outcome instead of inspecting error strings.
type CreateBusinessResult struct {
	Outcome    CreateBusinessOutcome
	BusinessID uuid.UUID
	OwnerID    uuid.UUID
	Reason     string
}

// OwnerRepository handles owner account persistence
type OwnerRepository struct {
	db *gorm.DB
}

// NewOwnerRepository creates a new owner repository
func NewOwnerRepository(db *gorm.DB) *OwnerRepository {
	return &OwnerRepository{db: db}
}

// GetByEmail looks up an owner by email, case-insensitively.
// Returns (nil, nil) when no owner exists for the email.
func (r *OwnerRepository) GetByEmail(ctx context.Context, email string) (*models.Owner, error) {
	var owner models.Owner
	err := r.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&owner).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up owner by email: %w", err)
	}
	return &owner, nil
}

// GetByID retrieves an owner by ID
func (r *OwnerRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Owner, error) {
	var owner models.Owner
	if err := r.db.WithContext(ctx).First(&owner, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("owner not found")
		}
		return nil, fmt.Errorf("failed to get owner: %w", err)
	}
	return &owner, nil
}

// BusinessRepository handles business record persistence
type BusinessRepository struct {
	db *gorm.DB
}

// NewBusinessRepository creates a new business repository
func NewBusinessRepository(db *gorm.DB) *BusinessRepository {
	return &BusinessRepository{db: db}
}

// CreateWithOwner persists a business together with its owner in one
// transaction and reports the outcome as a typed result.
//
// Duplicate detection: the owner email is checked case-insensitively before
// insert, with the unique constraint on owners.email as the backstop against
// races. Either path yields BusinessDuplicateOwner with the business NOT
// created; the caller decides how to proceed (the registration flow advances
// and attaches the business to the existing owner later).
func (r *BusinessRepository) CreateWithOwner(ctx context.Context, owner *models.Owner, business *models.Business) CreateBusinessResult {
	owner.Email = strings.ToLower(strings.TrimSpace(owner.Email))

	var result CreateBusinessResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Owner
		err := tx.Where("email = ?", owner.Email).First(&existing).Error
		if err == nil {
			result = CreateBusinessResult{
				Outcome: BusinessDuplicateOwner,
				OwnerID: existing.ID,
			}
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check for existing owner: %w", err)
		}

		if err := tx.Create(owner).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// Lost a race on the unique email index.
				result = CreateBusinessResult{Outcome: BusinessDuplicateOwner}
				return nil
			}
			return fmt.Errorf("failed to create owner: %w", err)
		}

		business.OwnerID = owner.ID
		if err := tx.Create(business).Error; err != nil {
			return fmt.Errorf("failed to create business: %w", err)
		}

		result = CreateBusinessResult{
			Outcome:    BusinessCreated,
			BusinessID: business.ID,
			OwnerID:    owner.ID,
		}
		return nil
	})
	if err != nil {
		return CreateBusinessResult{Outcome: BusinessCreateFailed, Reason: err.Error()}
	}
	return result
}

// CreateForOwner persists a business attached to an existing owner.
func (r *BusinessRepository) CreateForOwner(ctx context.Context, ownerID uuid.UUID, business *models.Business) (*models.Business, error) {
	business.OwnerID = ownerID
	if err := r.db.WithContext(ctx).Create(business).Error; err != nil {
		return nil, fmt.Errorf("failed to create business: %w", err)
	}
	return business, nil
}

// GetByID retrieves a business by ID
func (r *BusinessRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Business, error) {
	var business models.Business
	if err := r.db.WithContext(ctx).First(&business, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBusinessNotFound
		}
		return nil, fmt.Errorf("failed to get business: %w", err)
	}
	return &business, nil
}

// GetByIDWithOwner retrieves a business with its owner preloaded
func (r *BusinessRepository) GetByIDWithOwner(ctx context.Context, id uuid.UUID) (*models.Business, error) {
	var business models.Business
	if err := r.db.WithContext(ctx).Preload("Owner").First(&business, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBusinessNotFound
		}
		return nil, fmt.Errorf("failed to get business: %w", err)
	}
	return &business, nil
}

// Update saves the full business record
func (r *BusinessRepository) Update(ctx context.Context, business *models.Business) (*models.Business, error) {
	if err := r.db.WithContext(ctx).Save(business).Error; err != nil {
		return nil, fmt.Errorf("failed to update business: %w", err)
	}
	return business, nil
}

// List lists businesses with pagination and filters
func (r *BusinessRepository) List(ctx context.Context, page, pageSize int, filters map[string]interface{}) ([]models.Business, int64, error) {
	var businesses []models.Business
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Business{})

	for field, value := range filters {
		switch field {
		case "registration_status":
			query = query.Where("registration_status = ?", value)
		case "owner_id":
			query = query.Where("owner_id = ?", value)
		case "active":
			query = query.Where("active = ?", value)
		}
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count businesses: %w", err)
	}

	offset := (page - 1) * pageSize
	if err := query.Offset(offset).Limit(pageSize).Order("created_at DESC").Find(&businesses).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list businesses: %w", err)
	}

	return businesses, total, nil
}

// ListCanceledBefore returns canceled businesses whose cancellation was
// requested before the cutoff and that have not yet been scheduled for
// deletion. Used by the grace-window sweep.
func (r *BusinessRepository) ListCanceledBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Business, error) {
	var businesses []models.Business
	err := r.db.WithContext(ctx).
		Where("registration_status = ?", models.RegistrationStatusCanceled).
		Where("cancel_requested_at IS NOT NULL AND cancel_requested_at < ?", cutoff).
		Limit(limit).
		Find(&businesses).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list canceled businesses: %w", err)
	}
	return businesses, nil
}

// MarkPendingDeletion transitions a canceled business past its grace window.
// The serving flag is dropped here, and only here: cancellation alone never
// stops service.
func (r *BusinessRepository) MarkPendingDeletion(ctx context.Context, id uuid.UUID, scheduledAt time.Time) error {
	err := r.db.WithContext(ctx).Model(&models.Business{}).
		Where("id = ? AND registration_status = ?", id, models.RegistrationStatusCanceled).
		Updates(map[string]interface{}{
			"registration_status":   models.RegistrationStatusPendingDeletion,
			"active":                false,
			"deletion_scheduled_at": scheduledAt,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark business pending deletion: %w", err)
	}
	return nil
}
