package fulfillment

import (
	"context"
	"errors"

	"github.com/ManuelReschke/PlanFox/app/models"
	"github.com/ManuelReschke/PlanFox/internal/pkg/jobqueue"
)

// Enqueuer is the part of the job queue the dispatcher needs.
type Enqueuer interface {
	EnqueueJob(ctx context.Context, jobType jobqueue.JobType, payload map[string]interface{}) (*jobqueue.Job, error)
}

// QueueDispatcher publishes fulfillment work to the durable job queue.
type QueueDispatcher struct {
	queue Enqueuer
}

// NewDispatcher creates a dispatcher on top of the job queue.
func NewDispatcher(queue Enqueuer) *QueueDispatcher {
	return &QueueDispatcher{queue: queue}
}

// Dispatch enqueues a fulfillment job. The record itself is already persisted,
// so a failed enqueue is recovered by the sweeper.
func (d *QueueDispatcher) Dispatch(ctx context.Context, f *models.Fulfillment) error {
	if f == nil || f.ID == 0 {
		return errors.New("fulfillment record is not persisted")
	}
	payload := jobqueue.FulfillmentJobPayload{
		FulfillmentID: f.ID,
		SessionID:     f.StripeSessionID,
	}
	_, err := d.queue.EnqueueJob(ctx, jobqueue.JobTypeFulfillment, payload.ToMap())
	return err
}
