package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PlanFox/app/models"
	"github.com/ManuelReschke/PlanFox/internal/pkg/database"
	"github.com/ManuelReschke/PlanFox/internal/pkg/env"
	"github.com/ManuelReschke/PlanFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/PlanFox/internal/pkg/mail"
	"github.com/ManuelReschke/PlanFox/internal/pkg/s3archive"
)

// DefaultStaleAfter is how long a record may sit untouched before the sweeper
// re-dispatches it or another worker may take over a stuck claim.
const DefaultStaleAfter = 10 * time.Minute

// Archiver stores a copy of delivered documents.
type Archiver interface {
	ObjectExists(ctx context.Context, objectKey string) (bool, error)
	PutDocument(ctx context.Context, objectKey string, body []byte, contentType string, metadata map[string]string) error
}

// Result describes one fulfillment run.
type Result struct {
	FulfillmentID uint   `json:"fulfillment_id"`
	SessionID     string `json:"session_id"`
	Status        string `json:"status"`
	Skipped       bool   `json:"skipped"`
	ArchiveKey    string `json:"archive_key,omitempty"`
}

// Service is the idempotent consumer of fulfillment work.
type Service struct {
	repo       Repository
	generator  ContentGenerator
	mailer     mail.Mailer
	archiver   Archiver
	now        func() time.Time
	staleAfter time.Duration
}

// Option customizes a Service.
type Option func(*Service)

// WithArchiver enables archiving of delivered documents.
func WithArchiver(a Archiver) Option {
	return func(s *Service) { s.archiver = a }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithStaleAfter overrides the stuck-claim window.
func WithStaleAfter(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.staleAfter = d
		}
	}
}

// NewService wires the worker with its collaborators.
func NewService(repo Repository, generator ContentGenerator, mailer mail.Mailer, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		generator:  generator,
		mailer:     mailer,
		now:        time.Now,
		staleAfter: env.GetEnvDuration("FULFILLMENT_STALE_MINUTES", int(DefaultStaleAfter/time.Minute), time.Minute),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fulfill generates, archives and delivers the content of one record.
// Completed records and records claimed by another worker are skipped, so
// duplicate jobs for the same session deliver at most once per success.
func (s *Service) Fulfill(ctx context.Context, id uint) (*Result, error) {
	f, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	res := &Result{FulfillmentID: f.ID, SessionID: f.StripeSessionID, Status: f.Status}
	if f.Status == models.FulfillmentStatusCompleted {
		log.Infof("[Fulfillment] Session %s already fulfilled, skipping", f.StripeSessionID)
		res.Skipped = true
		return res, nil
	}
	if f.Status == models.FulfillmentStatusFailed && f.Attempts >= models.FulfillmentMaxAttempts {
		return res, ErrAttemptsExceed
	}

	now := s.now().UTC()
	claimed, err := s.repo.Claim(ctx, f.ID, now.Add(-s.staleAfter))
	if err != nil {
		return nil, fmt.Errorf("claim fulfillment %d: %w", f.ID, err)
	}
	if !claimed {
		log.Infof("[Fulfillment] Session %s is handled by another worker (status=%s)", f.StripeSessionID, f.Status)
		res.Skipped = true
		return res, nil
	}

	archiveKey, err := s.run(ctx, f)
	if err != nil {
		if markErr := s.repo.MarkFailed(ctx, f.ID, err.Error()); markErr != nil {
			log.Errorf("[Fulfillment] Failed to record failure for session %s: %v", f.StripeSessionID, markErr)
		}
		log.Errorf("[Fulfillment] Session %s failed (attempt %d): %v", f.StripeSessionID, f.Attempts+1, err)
		res.Status = models.FulfillmentStatusFailed
		return res, err
	}

	if err := s.repo.MarkCompleted(ctx, f.ID, archiveKey, s.now().UTC()); err != nil {
		return nil, fmt.Errorf("mark fulfillment %d completed: %w", f.ID, err)
	}
	log.Infof("[Fulfillment] Delivered plan for session %s to %s", f.StripeSessionID, f.Email)
	res.Status = models.FulfillmentStatusCompleted
	res.ArchiveKey = archiveKey
	return res, nil
}

func (s *Service) run(ctx context.Context, f *models.Fulfillment) (string, error) {
	plan, err := s.repo.FindPlan(ctx, f.UserPlanID)
	if err != nil {
		return "", fmt.Errorf("load plan %d: %w", f.UserPlanID, err)
	}

	doc, err := s.generator.Generate(ctx, f, plan)
	if err != nil {
		return "", err
	}

	archiveKey := ""
	if s.archiver != nil {
		archiveKey = s3archive.ObjectKey(f.StripeSessionID, plan.StartDate)
		meta := map[string]string{
			"session-id":    f.StripeSessionID,
			"plan-id":       fmt.Sprintf("%d", plan.ID),
			"upload-source": "planfox-fulfillment",
		}
		// A retry after a failed delivery finds the copy from the first attempt.
		exists, err := s.archiver.ObjectExists(ctx, archiveKey)
		if err != nil {
			return "", fmt.Errorf("archive lookup: %w", err)
		}
		if !exists {
			if err := s.archiver.PutDocument(ctx, archiveKey, doc.Body, doc.ContentType, meta); err != nil {
				return "", fmt.Errorf("archive document: %w", err)
			}
		}
	}

	if err := s.mailer.Send(ctx, mail.Message{To: f.Email, Subject: doc.Subject, HTML: string(doc.Body)}); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	return archiveKey, nil
}

// FulfillSession runs fulfillment for a session synchronously. A record that
// exhausted its attempts gets a fresh budget, since this is an operator retry.
func (s *Service) FulfillSession(ctx context.Context, sessionID string) (*Result, error) {
	key := strings.TrimSpace(sessionID)
	if key == "" {
		return nil, ErrMissingKey
	}
	f, err := s.repo.FindBySessionID(ctx, key)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if f.Status == models.FulfillmentStatusFailed && f.Attempts >= models.FulfillmentMaxAttempts {
		if err := s.repo.ResetForRetry(ctx, f.ID); err != nil {
			return nil, err
		}
		log.Infof("[Fulfillment] Reset attempt budget for session %s", key)
	}
	return s.Fulfill(ctx, f.ID)
}

// HandleJob is the jobqueue handler for JobTypeFulfillment.
func (s *Service) HandleJob(ctx context.Context, job *jobqueue.Job) error {
	payload, err := jobqueue.FulfillmentJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("%w: decode payload: %v", jobqueue.ErrPermanent, err)
	}

	id := payload.FulfillmentID
	if id == 0 {
		f, err := s.repo.FindBySessionID(ctx, payload.SessionID)
		if err != nil {
			return fmt.Errorf("%w: unknown fulfillment for session %q", jobqueue.ErrPermanent, payload.SessionID)
		}
		id = f.ID
	}

	_, err = s.Fulfill(ctx, id)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrAttemptsExceed):
		return fmt.Errorf("%w: %v", jobqueue.ErrPermanent, err)
	default:
		return err
	}
}

// Stats returns fulfillment record counts by status.
func (s *Service) Stats(ctx context.Context) (map[string]int64, error) {
	return s.repo.CountByStatus(ctx)
}
