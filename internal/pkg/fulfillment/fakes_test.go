package fulfillment

import (
	"context"
	"errors"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/PlanFox/app/models"
	"github.com/ManuelReschke/PlanFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/PlanFox/internal/pkg/mail"
)

type memoryRepository struct {
	mu       sync.Mutex
	records  map[uint]*models.Fulfillment
	plans    map[uint]*models.UserPlan
	requeued []uint
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{records: map[uint]*models.Fulfillment{}, plans: map[uint]*models.UserPlan{}}
}

func (r *memoryRepository) add(f models.Fulfillment, plan models.UserPlan) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[f.ID] = &f
	r.plans[plan.ID] = &plan
}

func (r *memoryRepository) get(id uint) models.Fulfillment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.records[id]
}

func (r *memoryRepository) FindByID(_ context.Context, id uint) (*models.Fulfillment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.records[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *f
	return &cp, nil
}

func (r *memoryRepository) FindBySessionID(_ context.Context, sessionID string) (*models.Fulfillment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.records {
		if f.StripeSessionID == sessionID {
			cp := *f
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memoryRepository) FindPlan(_ context.Context, planID uint) (*models.UserPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plans[planID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memoryRepository) Claim(_ context.Context, id uint, staleBefore time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.records[id]
	if !ok {
		return false, nil
	}
	stuck := f.Status == models.FulfillmentStatusProcessing && f.UpdatedAt.Before(staleBefore)
	if !f.IsClaimable() && !stuck {
		return false, nil
	}
	f.Status = models.FulfillmentStatusProcessing
	f.Attempts++
	f.UpdatedAt = time.Now()
	return true, nil
}

func (r *memoryRepository) MarkCompleted(_ context.Context, id uint, archiveKey string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := r.records[id]
	if f.Status != models.FulfillmentStatusProcessing {
		return nil
	}
	f.Status = models.FulfillmentStatusCompleted
	f.ArchiveKey = archiveKey
	f.CompletedAt = &at
	f.LastError = ""
	return nil
}

func (r *memoryRepository) MarkFailed(_ context.Context, id uint, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := r.records[id]
	if f.Status != models.FulfillmentStatusProcessing {
		return nil
	}
	f.Status = models.FulfillmentStatusFailed
	f.LastError = lastError
	return nil
}

func (r *memoryRepository) ListRedispatchable(_ context.Context, staleBefore time.Time, maxAttempts, limit int) ([]models.Fulfillment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Fulfillment
	for _, f := range r.records {
		if f.Status == models.FulfillmentStatusCompleted || f.Attempts >= maxAttempts || !f.UpdatedAt.Before(staleBefore) {
			continue
		}
		out = append(out, *f)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memoryRepository) Requeue(_ context.Context, id uint, staleBefore, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.records[id]
	if !ok || f.Status == models.FulfillmentStatusCompleted || !f.UpdatedAt.Before(staleBefore) {
		return false, nil
	}
	if f.Status == models.FulfillmentStatusProcessing {
		f.Status = models.FulfillmentStatusPending
	}
	f.UpdatedAt = at
	r.requeued = append(r.requeued, id)
	return true, nil
}

func (r *memoryRepository) FailAbandoned(_ context.Context, staleBefore time.Time, maxAttempts int, reason string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, f := range r.records {
		if f.Status == models.FulfillmentStatusProcessing && f.Attempts >= maxAttempts && f.UpdatedAt.Before(staleBefore) {
			f.Status = models.FulfillmentStatusFailed
			f.LastError = reason
			n++
		}
	}
	return n, nil
}

func (r *memoryRepository) ResetForRetry(_ context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := r.records[id]
	if f.Status == models.FulfillmentStatusFailed {
		f.Status = models.FulfillmentStatusPending
		f.Attempts = 0
	}
	return nil
}

func (r *memoryRepository) CountByStatus(context.Context) (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]int64{}
	for _, f := range r.records {
		out[f.Status]++
	}
	return out, nil
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type memoryArchive struct {
	objects map[string][]byte
	puts    int
	err     error
}

func (a *memoryArchive) ObjectExists(_ context.Context, key string) (bool, error) {
	if a.err != nil {
		return false, a.err
	}
	_, ok := a.objects[key]
	return ok, nil
}

func (a *memoryArchive) PutDocument(_ context.Context, key string, body []byte, _ string, _ map[string]string) error {
	if a.err != nil {
		return a.err
	}
	if a.objects == nil {
		a.objects = map[string][]byte{}
	}
	a.objects[key] = body
	a.puts++
	return nil
}

type staticGenerator struct{ err error }

func (g staticGenerator) Generate(_ context.Context, f *models.Fulfillment, _ *models.UserPlan) (*Document, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &Document{Subject: "plan", ContentType: "text/html", Body: []byte("<p>" + f.StripeSessionID + "</p>")}, nil
}

type fakeEnqueuer struct {
	jobs []map[string]interface{}
	err  error
}

func (e *fakeEnqueuer) EnqueueJob(_ context.Context, jobType jobqueue.JobType, payload map[string]interface{}) (*jobqueue.Job, error) {
	if e.err != nil {
		return nil, e.err
	}
	if jobType != jobqueue.JobTypeFulfillment {
		return nil, errors.New("unexpected job type")
	}
	e.jobs = append(e.jobs, payload)
	return &jobqueue.Job{ID: "job", Type: jobType, Payload: payload}, nil
}
