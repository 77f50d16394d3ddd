package controllers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/PlanFox/internal/pkg/jobqueue"
)

// QueueStatsSource reports the work queue depth.
type QueueStatsSource interface {
	Stats(ctx context.Context) (*jobqueue.QueueStats, error)
}

// FulfillmentStatsSource reports fulfillment records by status.
type FulfillmentStatsSource interface {
	Stats(ctx context.Context) (map[string]int64, error)
}

// EventSnapshotSource reports counted business events.
type EventSnapshotSource interface {
	Snapshot(ctx context.Context) (map[string]int64, error)
}

// QueueController exposes queue and fulfillment counters to admins.
type QueueController struct {
	queue        QueueStatsSource
	fulfillments FulfillmentStatsSource
	events       EventSnapshotSource
}

// NewQueueController creates a QueueController.
func NewQueueController(queue QueueStatsSource, fulfillments FulfillmentStatsSource) *QueueController {
	return &QueueController{queue: queue, fulfillments: fulfillments}
}

// WithEvents adds the pending event counts to the stats output.
func (qc *QueueController) WithEvents(events EventSnapshotSource) *QueueController {
	qc.events = events
	return qc
}

// HandleQueueStats returns the current queue and fulfillment counters.
func (qc *QueueController) HandleQueueStats(c *fiber.Ctx) error {
	stats, err := qc.queue.Stats(c.UserContext())
	if err != nil {
		return errorJSON(c, err)
	}
	counts, err := qc.fulfillments.Stats(c.UserContext())
	if err != nil {
		return errorJSON(c, err)
	}
	out := fiber.Map{"queue": stats, "fulfillments": counts}
	if qc.events != nil {
		events, err := qc.events.Snapshot(c.UserContext())
		if err != nil {
			return errorJSON(c, err)
		}
		out["events"] = events
	}
	return c.JSON(out)
}
