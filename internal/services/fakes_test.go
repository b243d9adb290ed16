package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"registration-service/internal/models"
	"registration-service/internal/nats"
	"registration-service/internal/processor"
	"registration-service/internal/redis"
	"registration-service/internal/repository"
)

// In-memory stands-ins for the persistence seams, so the flow services can be
// exercised end to end against the mock processor.

type fakeOwnerStore struct {
	mu     sync.Mutex
	owners map[string]*models.Owner
	err    error
}

func newFakeOwnerStore() *fakeOwnerStore {
	return &fakeOwnerStore{owners: make(map[string]*models.Owner)}
}

func (f *fakeOwnerStore) GetByEmail(_ context.Context, email string) (*models.Owner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	owner, ok := f.owners[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, nil
	}
	return owner, nil
}

func (f *fakeOwnerStore) add(owner *models.Owner) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if owner.ID == uuid.Nil {
		owner.ID = uuid.New()
	}
	f.owners[strings.ToLower(owner.Email)] = owner
}

type fakeBusinessStore struct {
	mu         sync.Mutex
	businesses map[uuid.UUID]*models.Business
	ownerIDs   map[string]uuid.UUID
	failCreate bool
}

func newFakeBusinessStore() *fakeBusinessStore {
	return &fakeBusinessStore{
		businesses: make(map[uuid.UUID]*models.Business),
		ownerIDs:   make(map[string]uuid.UUID),
	}
}

func (f *fakeBusinessStore) CreateWithOwner(_ context.Context, owner *models.Owner, business *models.Business) repository.CreateBusinessResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failCreate {
		return repository.CreateBusinessResult{Outcome: repository.BusinessCreateFailed, Reason: "store unavailable"}
	}

	email := strings.ToLower(strings.TrimSpace(owner.Email))
	if existingID, ok := f.ownerIDs[email]; ok {
		return repository.CreateBusinessResult{Outcome: repository.BusinessDuplicateOwner, OwnerID: existingID}
	}

	owner.ID = uuid.New()
	f.ownerIDs[email] = owner.ID

	business.ID = uuid.New()
	business.OwnerID = owner.ID
	f.businesses[business.ID] = business

	return repository.CreateBusinessResult{
		Outcome:    repository.BusinessCreated,
		BusinessID: business.ID,
		OwnerID:    owner.ID,
	}
}

func (f *fakeBusinessStore) CreateForOwner(_ context.Context, ownerID uuid.UUID, business *models.Business) (*models.Business, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	business.ID = uuid.New()
	business.OwnerID = ownerID
	f.businesses[business.ID] = business
	return business, nil
}

func (f *fakeBusinessStore) GetByID(_ context.Context, id uuid.UUID) (*models.Business, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	business, ok := f.businesses[id]
	if !ok {
		return nil, repository.ErrBusinessNotFound
	}
	return business, nil
}

func (f *fakeBusinessStore) GetByIDWithOwner(ctx context.Context, id uuid.UUID) (*models.Business, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeBusinessStore) Update(_ context.Context, business *models.Business) (*models.Business, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.businesses[business.ID] = business
	return business, nil
}

func (f *fakeBusinessStore) ListCanceledBefore(_ context.Context, cutoff time.Time, limit int) ([]models.Business, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Business
	for _, b := range f.businesses {
		if b.RegistrationStatus != models.RegistrationStatusCanceled {
			continue
		}
		if b.CancelRequestedAt == nil || !b.CancelRequestedAt.Before(cutoff) {
			continue
		}
		out = append(out, *b)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeBusinessStore) MarkPendingDeletion(_ context.Context, id uuid.UUID, scheduledAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	business, ok := f.businesses[id]
	if !ok || business.RegistrationStatus != models.RegistrationStatusCanceled {
		return nil
	}
	business.RegistrationStatus = models.RegistrationStatusPendingDeletion
	business.Active = false
	business.DeletionScheduledAt = &scheduledAt
	return nil
}

type fakePlanStore struct {
	plans map[string]*models.SubscriptionPlan
}

func newFakePlanStore() *fakePlanStore {
	return &fakePlanStore{plans: map[string]*models.SubscriptionPlan{
		"trial": {
			ID: uuid.New(), Key: "trial", Name: "Free Trial",
			PriceCents: 0, Currency: "eur", Interval: models.BillingIntervalMonth,
			TrialDays: 7, IsActive: true, IsPublic: true,
		},
		"essential": {
			ID: uuid.New(), Key: "essential", Name: "Essential",
			PriceCents: 2900, Currency: "eur", Interval: models.BillingIntervalMonth,
			IsActive: true, IsPublic: true, ExternalPriceID: "price_essential_monthly",
		},
		"premium": {
			ID: uuid.New(), Key: "premium", Name: "Premium",
			PriceCents: 5900, Currency: "eur", Interval: models.BillingIntervalMonth,
			IsActive: true, IsPublic: true, ExternalPriceID: "price_premium_monthly",
		},
	}}
}

func (f *fakePlanStore) GetByKey(_ context.Context, key string) (*models.SubscriptionPlan, error) {
	plan, ok := f.plans[key]
	if !ok {
		return nil, fmt.Errorf("plan %s: %w", key, repository.ErrPlanNotFound)
	}
	return plan, nil
}

type fakeCache struct {
	mu       sync.Mutex
	sessions map[string][]byte
	refs     map[string]*redis.IntentRef
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		sessions: make(map[string][]byte),
		refs:     make(map[string]*redis.IntentRef),
	}
}

// SaveSession round-trips through JSON the way the real store does, so state
// that does not survive serialization cannot hide behind shared pointers.
func (f *fakeCache) SaveSession(_ context.Context, session *models.RegistrationSession, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	f.sessions[session.ID] = data
	return nil
}

func (f *fakeCache) GetSession(_ context.Context, sessionID string) (*models.RegistrationSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	var session models.RegistrationSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func refKey(businessID, planKey string) string {
	return businessID + ":" + planKey
}

func (f *fakeCache) PutIntentRefIfAbsent(_ context.Context, ref *redis.IntentRef, _ time.Duration) (*redis.IntentRef, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := refKey(ref.BusinessID, ref.PlanKey)
	if existing, ok := f.refs[key]; ok {
		return existing, false, nil
	}
	ref.CreatedAt = time.Now().UTC()
	f.refs[key] = ref
	return ref, true, nil
}

func (f *fakeCache) GetIntentRef(_ context.Context, businessID, planKey string) (*redis.IntentRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ref, ok := f.refs[refKey(businessID, planKey)]
	if !ok {
		return nil, nil
	}
	return ref, nil
}

func (f *fakeCache) DeleteIntentRef(_ context.Context, businessID, planKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.refs, refKey(businessID, planKey))
	return nil
}

// flowFixture wires the full service stack against in-memory stores and the
// mock processor. Event publishing runs through a nil client, which degrades
// every publish to a logged skip.
type flowFixture struct {
	owners       *fakeOwnerStore
	store        *fakeBusinessStore
	plans        *fakePlanStore
	cache        *fakeCache
	proc         *processor.MockProcessor
	billing      *BillingService
	provisioning *ProvisioningService
	lifecycle    *LifecycleService
	registration *RegistrationService
}

func newFlowFixture() *flowFixture {
	f := &flowFixture{
		owners: newFakeOwnerStore(),
		store:  newFakeBusinessStore(),
		plans:  newFakePlanStore(),
		cache:  newFakeCache(),
		proc:   processor.NewMockProcessor(),
	}
	events := (*nats.Client)(nil)
	f.billing = NewBillingService(f.store)
	f.provisioning = NewProvisioningService(f.store, f.plans, f.billing, f.proc, f.cache, events)
	f.lifecycle = NewLifecycleService(f.store, f.plans, f.proc, f.cache, events, 30)
	f.registration = NewRegistrationService(f.owners, f.store, f.plans, f.billing, f.provisioning, f.cache, events, time.Hour)
	return f
}

func completeBillingProfileRequest() *UpdateBillingProfileRequest {
	return &UpdateBillingProfileRequest{
		CustomerType: models.CustomerTypeCompany,
		LegalName:    "Peluqueria Sol SL",
		TaxID:        "B12345678",
		Street:       "Calle Mayor 1",
		City:         "Madrid",
		PostalCode:   "28001",
		Country:      "ES",
	}
}

func completeBillingProfile() models.BillingProfile {
	return models.BillingProfile{
		CustomerType: models.CustomerTypeCompany,
		LegalName:    "Peluqueria Sol SL",
		TaxID:        "B12345678",
		Street:       "Calle Mayor 1",
		City:         "Madrid",
		PostalCode:   "28001",
		Country:      "ES",
	}
}
