package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JSONB is a custom type for PostgreSQL JSONB fields
// It can hold any valid JSON value (objects, arrays, primitives)
type JSONB json.RawMessage

// Value implements the driver.Valuer interface for JSONB
func (j JSONB) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return []byte(j), nil
}

// Scan implements the sql.Scanner interface for JSONB
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		*j = JSONB(v)
		return nil
	case string:
		*j = JSONB([]byte(v))
		return nil
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler
func (j JSONB) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return []byte(j), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (j *JSONB) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		*j = nil
		return nil
	}
	*j = JSONB(data)
	return nil
}

// NewJSONB creates a JSONB from any value
func NewJSONB(v interface{}) (JSONB, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return JSONB(data), nil
}

// MustNewJSONB creates a JSONB from any value, panics on error
func MustNewJSONB(v interface{}) JSONB {
	j, err := NewJSONB(v)
	if err != nil {
		panic(err)
	}
	return j
}

// RegistrationStatus constants for Business.RegistrationStatus
const (
	RegistrationStatusPartial         = "partial"          // identity captured, no plan yet
	RegistrationStatusPlanSelected    = "plan_selected"    // plan chosen, payment pending
	RegistrationStatusActive          = "active"           // subscription provisioned
	RegistrationStatusCanceled        = "canceled"         // cancellation requested, grace window running
	RegistrationStatusPendingDeletion = "pending_deletion" // grace window elapsed, awaiting purge
)

// SubscriptionStatus constants
const (
	SubscriptionStatusTrialing = "trialing"
	SubscriptionStatusActive   = "active"
	SubscriptionStatusPaused   = "paused"
	SubscriptionStatusCanceled = "canceled"
	SubscriptionStatusPastDue  = "past_due"
)

// CustomerType constants for billing profiles
const (
	CustomerTypeIndividual = "individual"
	CustomerTypeCompany    = "company"
)

// Billing interval constants
const (
	BillingIntervalMonth    = "month"
	BillingIntervalQuarter  = "quarter"
	BillingIntervalSemester = "semester"
	BillingIntervalYear     = "year"
)

// Owner represents the person registering a business.
// Email is stored lower-cased and is globally unique: one owner account
// per email, regardless of how many registration attempts were made.
type Owner struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	Email        string    `json:"email" gorm:"unique;not null;index" validate:"required,email"`
	FirstName    string    `json:"first_name" gorm:"not null" validate:"required,min=2,max=100"`
	LastName     string    `json:"last_name" gorm:"not null" validate:"required,min=2,max=100"`
	Phone        string    `json:"phone"`
	PasswordHash string    `json:"-" gorm:"size:255"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Businesses []Business `json:"businesses,omitempty" gorm:"foreignKey:OwnerID"`
}

// TableName overrides the default table name
func (Owner) TableName() string {
	return "owners"
}

func (o *Owner) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// Subscription holds the provisioned subscription state for a business.
// Embedded into Business so the record and its subscription always move together.
type Subscription struct {
	PlanKey                string     `json:"plan_key" gorm:"size:100;index"`
	Status                 string     `json:"status" gorm:"size:20;index" validate:"omitempty,oneof=trialing active paused canceled past_due"`
	ExternalCustomerID     string     `json:"external_customer_id" gorm:"size:255"`
	ExternalSubscriptionID string     `json:"external_subscription_id" gorm:"size:255"`
	ValidUntil             *time.Time `json:"valid_until"`
	AutoRenew              bool       `json:"auto_renew" gorm:"default:true"`
	DiscountPct            int        `json:"discount_pct" gorm:"default:0"`
	PausedAt               *time.Time `json:"paused_at"`
	// ActivatedIntentID records the payment intent that activated this
	// subscription. A repeat confirmation with the same intent is a no-op.
	ActivatedIntentID string `json:"activated_intent_id" gorm:"size:255"`
}

// BillingProfile holds the invoicing identity for a business.
// Embedded into Business; must be complete before activation of a paid plan.
type BillingProfile struct {
	CustomerType string `json:"customer_type" gorm:"size:20" validate:"omitempty,oneof=individual company"`
	LegalName    string `json:"legal_name" gorm:"size:255"`
	TaxID        string `json:"tax_id" gorm:"size:20"`
	Street       string `json:"street" gorm:"size:255"`
	City         string `json:"city" gorm:"size:100"`
	PostalCode   string `json:"postal_code" gorm:"size:20"`
	Country      string `json:"country" gorm:"size:2"`
}

// IsComplete reports whether every field required for invoicing is present.
// Field-level validity (tax id format, country code) is checked separately.
func (p *BillingProfile) IsComplete() bool {
	return p.CustomerType != "" &&
		p.LegalName != "" &&
		p.TaxID != "" &&
		p.Street != "" &&
		p.City != "" &&
		p.PostalCode != "" &&
		p.Country != ""
}

// Business is the central record of the registration flow. It is created as
// soon as identity plus business selection are captured (status partial) so
// abandoned flows still leave a recoverable lead.
type Business struct {
	ID      uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	OwnerID uuid.UUID `json:"owner_id" gorm:"type:uuid;not null;index"`

	Name       string `json:"name" gorm:"not null" validate:"required,min=2,max=255"`
	PlaceID    string `json:"place_id" gorm:"size:255;index"` // external place reference chosen during registration
	Address    string `json:"address" gorm:"size:255"`
	City       string `json:"city" gorm:"size:100"`
	PostalCode string `json:"postal_code" gorm:"size:20"`
	Country    string `json:"country" gorm:"size:2"`
	Vertical   string `json:"vertical" gorm:"size:50"`

	RegistrationStatus string `json:"registration_status" gorm:"size:30;default:'partial';index" validate:"oneof=partial plan_selected active canceled pending_deletion"`

	// Active is the serving flag. It is independent of RegistrationStatus:
	// a canceled business keeps serving until the grace window elapses.
	Active bool `json:"active" gorm:"default:false;index"`

	Subscription   Subscription   `json:"subscription" gorm:"embedded;embeddedPrefix:subscription_"`
	BillingProfile BillingProfile `json:"billing_profile" gorm:"embedded;embeddedPrefix:billing_"`

	CancelRequestedAt   *time.Time `json:"cancel_requested_at" gorm:"index"`
	DeletionScheduledAt *time.Time `json:"deletion_scheduled_at" gorm:"index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Owner *Owner `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
}

// TableName overrides the default table name
func (Business) TableName() string {
	return "businesses"
}

func (b *Business) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// IsServable reports whether the business should still be served.
// Canceled businesses remain servable inside the grace window.
func (b *Business) IsServable() bool {
	return b.Active && b.RegistrationStatus != RegistrationStatusPendingDeletion
}

// PlanFeature is the normalized form of a catalog feature entry.
type PlanFeature struct {
	Name     string `json:"name"`
	Included bool   `json:"included"`
}

// NormalizePlanFeatures accepts the two shapes feature lists arrive in —
// a plain string array or an array of {name, included} records — and returns
// the normalized form. Plain strings are treated as included features.
func NormalizePlanFeatures(data []byte) ([]PlanFeature, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("feature list is not a JSON array: %w", err)
	}

	features := make([]PlanFeature, 0, len(raw))
	for i, entry := range raw {
		var name string
		if err := json.Unmarshal(entry, &name); err == nil {
			features = append(features, PlanFeature{Name: name, Included: true})
			continue
		}

		var feature PlanFeature
		if err := json.Unmarshal(entry, &feature); err != nil {
			return nil, fmt.Errorf("feature entry %d has unsupported shape: %w", i, err)
		}
		if feature.Name == "" {
			return nil, fmt.Errorf("feature entry %d is missing a name", i)
		}
		features = append(features, feature)
	}

	return features, nil
}

// SubscriptionPlan is a catalog entry. Prices are stored in minor units
// (cents) to match the payment processor.
type SubscriptionPlan struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	Key         string    `json:"key" gorm:"unique;not null;size:100" validate:"required"`
	Name        string    `json:"name" gorm:"not null" validate:"required"`
	Description string    `json:"description"`

	PriceCents int64  `json:"price_cents" gorm:"not null;default:0"`
	Currency   string `json:"currency" gorm:"size:3;default:'eur'"`
	Interval   string `json:"interval" gorm:"size:20;default:'month'" validate:"oneof=month quarter semester year"`
	TrialDays  int    `json:"trial_days" gorm:"default:0"`

	// Features holds the normalized feature list. Raw catalog input is
	// normalized once at the boundary via NormalizePlanFeatures.
	Features JSONB `json:"features" gorm:"type:jsonb;default:'[]'"`

	IsPopular bool `json:"is_popular" gorm:"default:false"`
	IsActive  bool `json:"is_active" gorm:"default:true;index"`
	IsPublic  bool `json:"is_public" gorm:"default:true;index"`

	// ExternalPriceID is the processor-side price this plan bills against.
	ExternalPriceID string `json:"external_price_id" gorm:"size:255"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName overrides the default table name
func (SubscriptionPlan) TableName() string {
	return "subscription_plans"
}

func (p *SubscriptionPlan) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// RequiresPayment reports whether subscribing to this plan needs a payment
// method up front. Zero-price trial plans activate without one.
func (p *SubscriptionPlan) RequiresPayment() bool {
	return p.PriceCents > 0
}

// FeatureList decodes the stored normalized feature list.
func (p *SubscriptionPlan) FeatureList() ([]PlanFeature, error) {
	if len(p.Features) == 0 {
		return nil, nil
	}
	var features []PlanFeature
	if err := json.Unmarshal(p.Features, &features); err != nil {
		return nil, fmt.Errorf("stored feature list is corrupt: %w", err)
	}
	return features, nil
}
