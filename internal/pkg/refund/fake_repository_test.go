package refund

import (
	"context"
	"sync"

	"gorm.io/gorm"

	"github.com/ManuelReschke/PlanFox/app/models"
)

// memoryRepository enforces the unique active_plan_id slot like the schema does.
type memoryRepository struct {
	mu       sync.Mutex
	nextID   uint
	plans    map[uint]*models.UserPlan
	requests []*models.RefundRequest
	active   map[uint]string
	// skipCancel leaves the order active on approval so Reconcile has work.
	skipCancel bool
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{plans: map[uint]*models.UserPlan{}, active: map[uint]string{}}
}

func (r *memoryRepository) addPlan(p models.UserPlan) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans[p.ID] = &p
}

func (r *memoryRepository) plan(id uint) models.UserPlan {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.plans[id]
}

func (r *memoryRepository) nonRejected(planID uint) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, req := range r.requests {
		if req.UserPlanID == planID && req.BlocksNewRequest() {
			n++
		}
	}
	return n
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

func (r *memoryRepository) CountRequestsForPlan(_ context.Context, planID uint) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, req := range r.requests {
		if req.UserPlanID == planID {
			n++
		}
	}
	return n, nil
}

func (r *memoryRepository) CreateRequest(_ context.Context, req *models.RefundRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req.ActivePlanID != nil {
		if _, taken := r.active[*req.ActivePlanID]; taken {
			return ErrAlreadyRequested
		}
		r.active[*req.ActivePlanID] = req.PublicID
	}
	r.nextID++
	req.ID = r.nextID
	cp := *req
	r.requests = append(r.requests, &cp)
	return nil
}

func (r *memoryRepository) find(publicID string) *models.RefundRequest {
	for _, req := range r.requests {
		if req.PublicID == publicID {
			return req
		}
	}
	return nil
}

func (r *memoryRepository) FindByPublicID(_ context.Context, publicID string) (*models.RefundRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req := r.find(publicID)
	if req == nil {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *req
	return &cp, nil
}

func (r *memoryRepository) Decide(_ context.Context, d Decision) (*models.RefundRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req := r.find(d.PublicID)
	if req == nil {
		return nil, ErrRequestNotFound
	}
	if req.Status != models.RefundStatusPending {
		return nil, ErrAlreadyProcessed
	}
	at := d.DecidedAt
	req.ProcessedAt = &at
	req.ProcessedBy = d.Actor
	req.AdminNotes = d.Notes
	if d.Action == ActionApprove {
		req.Status = models.RefundStatusApproved
		if p := r.plans[req.UserPlanID]; p != nil && !r.skipCancel && p.SubscriptionStatus != models.PlanStatusCancelled {
			p.SubscriptionStatus = models.PlanStatusCancelled
		}
	} else {
		req.Status = models.RefundStatusRejected
		if req.ActivePlanID != nil {
			delete(r.active, *req.ActivePlanID)
		}
		req.ActivePlanID = nil
	}
	cp := *req
	return &cp, nil
}

func (r *memoryRepository) ListByOwner(_ context.Context, userID uint, email string) ([]models.RefundRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.RefundRequest
	for _, req := range r.requests {
		if (userID != 0 && req.UserID == userID) || (userID == 0 && req.CustomerEmail == models.NormalizeEmail(email)) {
			out = append(out, *req)
		}
	}
	return out, nil
}

func (r *memoryRepository) List(_ context.Context, status string, limit int) ([]models.RefundRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.RefundRequest
	for _, req := range r.requests {
		if status == "" || req.Status == status {
			out = append(out, *req)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memoryRepository) CancelPlansWithApprovedRefunds(context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, req := range r.requests {
		if req.Status != models.RefundStatusApproved {
			continue
		}
		if p := r.plans[req.UserPlanID]; p != nil && p.SubscriptionStatus != models.PlanStatusCancelled {
			p.SubscriptionStatus = models.PlanStatusCancelled
			n++
		}
	}
	return n, nil
}
