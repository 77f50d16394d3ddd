package refund

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ManuelReschke/PlanFox/app/models"
	"github.com/ManuelReschke/PlanFox/internal/pkg/database"
	"github.com/ManuelReschke/PlanFox/internal/pkg/env"
	"github.com/ManuelReschke/PlanFox/internal/pkg/jobqueue"
)

const (
	DefaultWindow      = 7 * 24 * time.Hour
	DefaultMaxAttempts = 3
	maxReasonLength    = 2000
	defaultListLimit   = 200
)

// Action is an admin verdict on a pending request.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// ParseAction validates the action enum.
func ParseAction(raw string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(raw))) {
	case ActionApprove:
		return ActionApprove, nil
	case ActionReject:
		return ActionReject, nil
	default:
		return "", ErrInvalidAction
	}
}

// Requester identifies the customer asking for a refund.
type Requester struct {
	UserID uint
	Email  string
}

// Service runs the refund state machine: pending -> approved | rejected.
type Service struct {
	repo        Repository
	now         func() time.Time
	window      time.Duration
	maxAttempts int
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithWindow overrides the reversibility window.
func WithWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithMaxAttempts caps how many requests an order may receive in total.
// Zero or less disables the cap.
func WithMaxAttempts(n int) Option {
	return func(s *Service) { s.maxAttempts = n }
}

// NewService creates the refund workflow.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:        repo,
		now:         time.Now,
		window:      DefaultWindow,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServiceFromDB reads REFUND_WINDOW_DAYS and REFUND_MAX_ATTEMPTS.
func NewServiceFromDB(db *gorm.DB, opts ...Option) *Service {
	base := []Option{
		WithWindow(env.GetEnvDuration("REFUND_WINDOW_DAYS", 7, 24*time.Hour)),
		WithMaxAttempts(env.GetEnvInt("REFUND_MAX_ATTEMPTS", DefaultMaxAttempts)),
	}
	return NewService(NewRepository(db), append(base, opts...)...)
}

// RequestRefund files a pending request for an order the requester owns.
// Amount and currency are copied from the order.
func (s *Service) RequestRefund(ctx context.Context, who Requester, planID uint, reason string) (*models.RefundRequest, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) > maxReasonLength {
		return nil, ErrInvalidReason
	}

	plan, err := s.repo.FindPlan(ctx, planID)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	if !plan.IsOwnedBy(who.UserID, who.Email) {
		return nil, ErrNotOwner
	}
	if plan.SubscriptionStatus == models.PlanStatusCancelled {
		return nil, ErrOrderNotRefundable
	}

	now := s.now().UTC()
	if now.Sub(plan.StartDate) > s.window {
		return nil, ErrWindowExpired
	}

	if s.maxAttempts > 0 {
		n, err := s.repo.CountRequestsForPlan(ctx, plan.ID)
		if err != nil {
			return nil, err
		}
		if n >= int64(s.maxAttempts) {
			return nil, ErrTooManyAttempts
		}
	}

	slot := plan.ID
	req := &models.RefundRequest{
		PublicID:      uuid.NewString(),
		UserPlanID:    plan.ID,
		ActivePlanID:  &slot,
		UserID:        who.UserID,
		CustomerEmail: models.NormalizeEmail(firstNonEmpty(who.Email, plan.CustomerEmail)),
		Amount:        plan.Amount,
		Currency:      plan.Currency,
		Reason:        reason,
		Status:        models.RefundStatusPending,
		RequestedAt:   now,
	}
	if err := s.repo.CreateRequest(ctx, req); err != nil {
		return nil, err
	}

	log.Infof("[Refund] Request %s filed for plan %d (%d %s)", req.PublicID, plan.ID, req.Amount, req.Currency)
	return req, nil
}

// DecideRefund approves or rejects a pending request. Approval cancels the
// order atomically with the status write.
func (s *Service) DecideRefund(ctx context.Context, publicID string, action Action, admin, notes string) (*models.RefundRequest, error) {
	publicID = strings.TrimSpace(publicID)
	if publicID == "" {
		return nil, ErrRequestNotFound
	}
	if action != ActionApprove && action != ActionReject {
		return nil, ErrInvalidAction
	}

	req, err := s.repo.Decide(ctx, Decision{
		PublicID:  publicID,
		Action:    action,
		Actor:     strings.TrimSpace(admin),
		Notes:     strings.TrimSpace(notes),
		DecidedAt: s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	log.Infof("[Refund] Request %s %sd by %s", req.PublicID, action, req.ProcessedBy)
	return req, nil
}

// ListRefundsForUser returns the requester's own requests.
func (s *Service) ListRefundsForUser(ctx context.Context, who Requester) ([]models.RefundRequest, error) {
	return s.repo.ListByOwner(ctx, who.UserID, who.Email)
}

// ListRefunds returns requests for admins, optionally filtered by status.
func (s *Service) ListRefunds(ctx context.Context, status string) ([]models.RefundRequest, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	switch status {
	case "", models.RefundStatusPending, models.RefundStatusApproved, models.RefundStatusRejected:
	default:
		return nil, ErrInvalidStatus
	}
	return s.repo.List(ctx, status, defaultListLimit)
}

// Reconcile cancels orders that carry an approved refund but are not cancelled.
func (s *Service) Reconcile(ctx context.Context) (int64, error) {
	n, err := s.repo.CancelPlansWithApprovedRefunds(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Warnf("[Refund] Reconciliation cancelled %d orders with approved refunds", n)
	}
	return n, nil
}

// ReconcileTask adapts Reconcile for the job manager.
func (s *Service) ReconcileTask(interval time.Duration) jobqueue.Task {
	return jobqueue.Task{
		Name:     "refund-reconciler",
		Interval: interval,
		Run: func(ctx context.Context) error {
			_, err := s.Reconcile(ctx)
			return err
		},
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
