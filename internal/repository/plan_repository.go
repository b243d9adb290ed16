package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"registration-service/internal/models"
)

// ErrPlanNotFound is returned when a plan lookup finds no row.
var ErrPlanNotFound = errors.New("plan not found")

// PlanRepository handles subscription plan catalog persistence
type PlanRepository struct {
	db *gorm.DB
}

// NewPlanRepository creates a new plan repository
func NewPlanRepository(db *gorm.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

// GetByKey retrieves a plan by its catalog key
func (r *PlanRepository) GetByKey(ctx context.Context, key string) (*models.SubscriptionPlan, error) {
	var plan models.SubscriptionPlan
	if err := r.db.WithContext(ctx).Where("key = ?", key).First(&plan).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("plan %s: %w", key, ErrPlanNotFound)
		}
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return &plan, nil
}

// List returns plans matching the given filters, popular plans first.
func (r *PlanRepository) List(ctx context.Context, activeOnly, publicOnly bool) ([]models.SubscriptionPlan, error) {
	var plans []models.SubscriptionPlan

	query := r.db.WithContext(ctx).Model(&models.SubscriptionPlan{})
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	if publicOnly {
		query = query.Where("is_public = ?", true)
	}

	if err := query.Order("is_popular DESC, price_cents ASC").Find(&plans).Error; err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	return plans, nil
}

// CreateOrUpdate upserts a plan by key. Feature input is normalized at this
// boundary so everything downstream sees one shape.
func (r *PlanRepository) CreateOrUpdate(ctx context.Context, plan *models.SubscriptionPlan) (*models.SubscriptionPlan, error) {
	features, err := models.NormalizePlanFeatures(plan.Features)
	if err != nil {
		return nil, fmt.Errorf("invalid feature list for plan %s: %w", plan.Key, err)
	}
	if features == nil {
		features = []models.PlanFeature{}
	}
	normalized, err := json.Marshal(features)
	if err != nil {
		return nil, fmt.Errorf("failed to encode feature list: %w", err)
	}
	plan.Features = models.JSONB(normalized)

	var existing models.SubscriptionPlan
	err = r.db.WithContext(ctx).Where("key = ?", plan.Key).First(&existing).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to check for existing plan: %w", err)
		}
		if err := r.db.WithContext(ctx).Create(plan).Error; err != nil {
			return nil, fmt.Errorf("failed to create plan: %w", err)
		}
		return plan, nil
	}

	plan.ID = existing.ID
	plan.CreatedAt = existing.CreatedAt
	if err := r.db.WithContext(ctx).Save(plan).Error; err != nil {
		return nil, fmt.Errorf("failed to update plan: %w", err)
	}
	return plan, nil
}
