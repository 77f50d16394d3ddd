package fulfillment

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PlanFox/app/models"
	"github.com/ManuelReschke/PlanFox/internal/pkg/jobqueue"
)

const sweepBatchSize = 100

// Dispatcher hands a record to the queue.
type Dispatcher interface {
	Dispatch(ctx context.Context, f *models.Fulfillment) error
}

// Sweeper re-dispatches records whose job was lost: pending or failed records
// untouched for the stale window, and claims stuck in processing.
type Sweeper struct {
	repo       Repository
	dispatcher Dispatcher
	staleAfter time.Duration
	now        func() time.Time
}

// NewSweeper creates a sweeper.
func NewSweeper(repo Repository, dispatcher Dispatcher, staleAfter time.Duration) *Sweeper {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Sweeper{repo: repo, dispatcher: dispatcher, staleAfter: staleAfter, now: time.Now}
}

const abandonedReason = "worker lost the claim on its last attempt"

// Run performs one sweep and returns the number of re-dispatched records.
func (s *Sweeper) Run(ctx context.Context) (int, error) {
	now := s.now().UTC()
	staleBefore := now.Add(-s.staleAfter)

	abandoned, err := s.repo.FailAbandoned(ctx, staleBefore, models.FulfillmentMaxAttempts, abandonedReason)
	if err != nil {
		return 0, err
	}
	if abandoned > 0 {
		log.Warnf("[Fulfillment] Sweeper marked %d abandoned claims as failed", abandoned)
	}

	records, err := s.repo.ListRedispatchable(ctx, staleBefore, models.FulfillmentMaxAttempts, sweepBatchSize)
	if err != nil {
		return 0, err
	}

	dispatched := 0
	for i := range records {
		f := &records[i]
		// Requeue first so the next tick does not pick the record up again
		// while its job is still queued, and so the worker can claim it.
		released, err := s.repo.Requeue(ctx, f.ID, staleBefore, now)
		if err != nil {
			log.Errorf("[Fulfillment] Sweeper requeue %d failed: %v", f.ID, err)
			continue
		}
		if !released {
			continue
		}
		if err := s.dispatcher.Dispatch(ctx, f); err != nil {
			log.Errorf("[Fulfillment] Sweeper re-dispatch of session %s failed: %v", f.StripeSessionID, err)
			continue
		}
		dispatched++
	}
	if dispatched > 0 {
		log.Infof("[Fulfillment] Sweeper re-dispatched %d records", dispatched)
	}
	return dispatched, nil
}

// Task adapts the sweeper for the job manager.
func (s *Sweeper) Task(interval time.Duration) jobqueue.Task {
	return jobqueue.Task{
		Name:     "fulfillment-sweeper",
		Interval: interval,
		Run: func(ctx context.Context) error {
			_, err := s.Run(ctx)
			return err
		},
	}
}
