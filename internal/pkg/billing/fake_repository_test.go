package billing

import (
	"context"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/PlanFox/app/models"
)

// memoryRepository mirrors the unique keys of the MySQL schema so the
// idempotency paths behave like they do against the database.
type memoryRepository struct {
	mu           sync.Mutex
	nextID       uint
	plans        map[uint]*models.UserPlan
	bySession    map[string]uint
	fulfillments map[string]*models.Fulfillment
	events       map[string]*models.PaymentWebhookEvent
	users        map[string]uint
	insertCalls  int
	lookupHook   func()
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		plans:        map[uint]*models.UserPlan{},
		bySession:    map[string]uint{},
		fulfillments: map[string]*models.Fulfillment{},
		events:       map[string]*models.PaymentWebhookEvent{},
		users:        map[string]uint{},
	}
}

func (r *memoryRepository) id() uint {
	r.nextID++
	return r.nextID
}

func (r *memoryRepository) FindPlanBySessionID(_ context.Context, sessionID string) (*models.UserPlan, error) {
	if r.lookupHook != nil {
		r.lookupHook()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.bySession[sessionID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *r.plans[id]
	return &cp, nil
}

func (r *memoryRepository) InsertPlanWithFulfillment(_ context.Context, plan *models.UserPlan, f *models.Fulfillment) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertCalls++
	if _, ok := r.bySession[plan.SessionID()]; ok {
		return false, nil
	}
	if _, ok := r.fulfillments[f.StripeSessionID]; ok {
		return false, gorm.ErrDuplicatedKey
	}
	plan.ID = r.id()
	stored := *plan
	r.plans[plan.ID] = &stored
	r.bySession[plan.SessionID()] = plan.ID
	f.UserPlanID = plan.ID
	f.ID = r.id()
	fc := *f
	r.fulfillments[f.StripeSessionID] = &fc
	return true, nil
}

func (r *memoryRepository) CreateSeededPlan(_ context.Context, plan *models.UserPlan, withFulfillment bool) (*models.Fulfillment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	plan.ID = r.id()
	stored := *plan
	r.plans[plan.ID] = &stored
	if !withFulfillment {
		return nil, nil
	}
	f := fulfillmentFor(plan, seedFulfillmentKey(plan.ID))
	f.ID = r.id()
	fc := *f
	r.fulfillments[f.StripeSessionID] = &fc
	return f, nil
}

func (r *memoryRepository) FindUserIDByEmail(_ context.Context, email string) (uint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.users[models.NormalizeEmail(email)]
	if !ok {
		return 0, gorm.ErrRecordNotFound
	}
	return id, nil
}

func (r *memoryRepository) ListPlansByOwner(_ context.Context, userID uint, email string) ([]models.UserPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.UserPlan
	for _, p := range r.plans {
		if p.IsOwnedBy(userID, email) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memoryRepository) ExpirePlans(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, p := range r.plans {
		if p.SubscriptionStatus == models.PlanStatusActive && p.ExpirationDate.Before(now) {
			p.SubscriptionStatus = models.PlanStatusExpired
			n++
		}
	}
	return n, nil
}

func (r *memoryRepository) CreateWebhookEventIfNotExists(_ context.Context, event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(event.Provider) + "|" + event.ProviderEventID
	if stored, ok := r.events[key]; ok {
		cp := *stored
		return false, &cp, nil
	}
	event.ID = r.id()
	stored := *event
	r.events[key] = &stored
	cp := stored
	return true, &cp, nil
}

func (r *memoryRepository) MarkWebhookProcessed(_ context.Context, id uint, processingError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.ID == id {
			now := time.Now().UTC()
			e.ProcessedAt = &now
			e.ProcessingError = processingError
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *memoryRepository) planCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.plans)
}

func (r *memoryRepository) fulfillmentCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fulfillments)
}

type recordingDispatcher struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, f *models.Fulfillment) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, f.StripeSessionID)
	return d.err
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}
