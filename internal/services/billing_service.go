package services

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"registration-service/internal/models"
)

// Spanish tax identifier formats.
// NIF (individuals): 8 digits followed by a control letter.
// CIF (companies): organization letter, 7 digits, control digit or letter.
var (
	nifPattern = regexp.MustCompile(`^[0-9]{8}[A-Za-z]$`)
	cifPattern = regexp.MustCompile(`^[A-HJ-NP-SUVW][0-9]{7}[0-9A-J]$`)
)

// BillingService validates and stores billing profiles. Validation is pure:
// no network calls, field-level errors only.
type BillingService struct {
	businessRepo BusinessStore
}

// NewBillingService creates a new billing service
func NewBillingService(businessRepo BusinessStore) *BillingService {
	return &BillingService{
		businessRepo: businessRepo,
	}
}

// UpdateBillingProfileRequest carries the billing profile fields
type UpdateBillingProfileRequest struct {
	CustomerType string `json:"customer_type" validate:"required,oneof=individual company"`
	LegalName    string `json:"legal_name" validate:"required,min=2,max=255"`
	TaxID        string `json:"tax_id" validate:"required"`
	Street       string `json:"street" validate:"required"`
	City         string `json:"city" validate:"required"`
	PostalCode   string `json:"postal_code" validate:"required"`
	Country      string `json:"country" validate:"required,len=2"`
}

// ValidateProfile checks every field and returns the per-field failures.
// An empty map means the profile is valid and complete.
func (s *BillingService) ValidateProfile(req *UpdateBillingProfileRequest) map[string]string {
	errs := make(map[string]string)

	customerType := strings.ToLower(strings.TrimSpace(req.CustomerType))
	switch customerType {
	case models.CustomerTypeIndividual, models.CustomerTypeCompany:
	case "":
		errs["customer_type"] = "customer type is required"
	default:
		errs["customer_type"] = "customer type must be individual or company"
	}

	if strings.TrimSpace(req.LegalName) == "" {
		errs["legal_name"] = "legal name is required"
	}

	taxID := strings.ToUpper(strings.TrimSpace(req.TaxID))
	if taxID == "" {
		errs["tax_id"] = "tax id is required"
	} else {
		switch customerType {
		case models.CustomerTypeIndividual:
			if !nifPattern.MatchString(taxID) {
				errs["tax_id"] = "tax id must be a valid NIF for individuals"
			}
		case models.CustomerTypeCompany:
			if !cifPattern.MatchString(taxID) {
				errs["tax_id"] = "tax id must be a valid CIF for companies"
			}
		}
	}

	if strings.TrimSpace(req.Street) == "" {
		errs["street"] = "street is required"
	}
	if strings.TrimSpace(req.City) == "" {
		errs["city"] = "city is required"
	}
	if strings.TrimSpace(req.PostalCode) == "" {
		errs["postal_code"] = "postal code is required"
	}

	country := strings.ToUpper(strings.TrimSpace(req.Country))
	if len(country) != 2 {
		errs["country"] = "country must be a 2-letter ISO code"
	}

	return errs
}

// UpdateBillingProfile validates the profile and stores it on the business.
// The profile can be set at any point before or after activation; activation
// itself re-checks completeness.
func (s *BillingService) UpdateBillingProfile(ctx context.Context, businessID uuid.UUID, req *UpdateBillingProfileRequest) (*models.Business, error) {
	if fieldErrs := s.ValidateProfile(req); len(fieldErrs) > 0 {
		for field, msg := range fieldErrs {
			return nil, NewValidationError(field, msg, nil)
		}
	}

	business, err := s.businessRepo.GetByID(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to load business: %w", err)
	}

	business.BillingProfile = models.BillingProfile{
		CustomerType: strings.ToLower(strings.TrimSpace(req.CustomerType)),
		LegalName:    strings.TrimSpace(req.LegalName),
		TaxID:        strings.ToUpper(strings.TrimSpace(req.TaxID)),
		Street:       strings.TrimSpace(req.Street),
		City:         strings.TrimSpace(req.City),
		PostalCode:   strings.TrimSpace(req.PostalCode),
		Country:      strings.ToUpper(strings.TrimSpace(req.Country)),
	}

	updated, err := s.businessRepo.Update(ctx, business)
	if err != nil {
		return nil, fmt.Errorf("failed to store billing profile: %w", err)
	}

	log.Printf("[BillingService] Updated billing profile for business %s", businessID)
	return updated, nil
}

// EnsureCompleteForActivation verifies the stored profile is present and
// valid before a paid activation is allowed to proceed.
func (s *BillingService) EnsureCompleteForActivation(business *models.Business) error {
	profile := &business.BillingProfile
	if !profile.IsComplete() {
		return NewValidationError("billing_profile", "billing profile must be complete before activation", nil)
	}

	req := &UpdateBillingProfileRequest{
		CustomerType: profile.CustomerType,
		LegalName:    profile.LegalName,
		TaxID:        profile.TaxID,
		Street:       profile.Street,
		City:         profile.City,
		PostalCode:   profile.PostalCode,
		Country:      profile.Country,
	}
	if fieldErrs := s.ValidateProfile(req); len(fieldErrs) > 0 {
		for field, msg := range fieldErrs {
			return NewValidationError(field, msg, nil)
		}
	}
	return nil
}
