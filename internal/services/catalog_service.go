package services

import (
	"context"
	"fmt"
	"log"

	"registration-service/internal/models"
	"registration-service/internal/repository"
)

// CatalogService serves the subscription plan catalog.
type CatalogService struct {
	planRepo *repository.PlanRepository
}

// NewCatalogService creates a new catalog service
func NewCatalogService(planRepo *repository.PlanRepository) *CatalogService {
	return &CatalogService{
		planRepo: planRepo,
	}
}

// ListPlans returns catalog plans. Public callers only ever see active,
// public plans; internal callers can widen the filter.
func (s *CatalogService) ListPlans(ctx context.Context, activeOnly, publicOnly bool) ([]models.SubscriptionPlan, error) {
	plans, err := s.planRepo.List(ctx, activeOnly, publicOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	return plans, nil
}

// GetPlan returns a single plan by key.
func (s *CatalogService) GetPlan(ctx context.Context, key string) (*models.SubscriptionPlan, error) {
	return s.planRepo.GetByKey(ctx, key)
}

// SeedDefaultPlans upserts the default catalog. Feature lists are written in
// both raw shapes the catalog accepts; the repository normalizes them once
// at this boundary.
func (s *CatalogService) SeedDefaultPlans(ctx context.Context) error {
	plans := []*models.SubscriptionPlan{
		{
			Key:         "trial",
			Name:        "Free Trial",
			Description: "Try everything for a week, no payment method needed",
			PriceCents:  0,
			Currency:    "eur",
			Interval:    models.BillingIntervalMonth,
			TrialDays:   7,
			Features:    models.MustNewJSONB([]string{"Online booking", "Customer records", "Email support"}),
			IsActive:    true,
			IsPublic:    true,
		},
		{
			Key:         "essential",
			Name:        "Essential",
			Description: "Everything a single location needs",
			PriceCents:  2900,
			Currency:    "eur",
			Interval:    models.BillingIntervalMonth,
			Features: models.MustNewJSONB([]interface{}{
				map[string]interface{}{"name": "Online booking", "included": true},
				map[string]interface{}{"name": "Customer records", "included": true},
				map[string]interface{}{"name": "Campaigns", "included": false},
				"Email support",
			}),
			IsActive:        true,
			IsPublic:        true,
			ExternalPriceID: "price_essential_monthly",
		},
		{
			Key:         "premium",
			Name:        "Premium",
			Description: "For growing businesses with multiple staff",
			PriceCents:  5900,
			Currency:    "eur",
			Interval:    models.BillingIntervalMonth,
			Features: models.MustNewJSONB([]string{
				"Online booking", "Customer records", "Campaigns", "Priority support", "Advanced reporting",
			}),
			IsPopular:       true,
			IsActive:        true,
			IsPublic:        true,
			ExternalPriceID: "price_premium_monthly",
		},
	}

	for _, plan := range plans {
		if _, err := s.planRepo.CreateOrUpdate(ctx, plan); err != nil {
			return fmt.Errorf("failed to seed plan %s: %w", plan.Key, err)
		}
	}

	log.Printf("[CatalogService] Seeded %d default plans", len(plans))
	return nil
}
