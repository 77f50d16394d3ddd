package controllers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/PlanFox/app/models"
	"github.com/ManuelReschke/PlanFox/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/PlanFox/internal/pkg/refund"
	"github.com/ManuelReschke/PlanFox/internal/pkg/usercontext"
)

// RefundWorkflow is the slice of refund.Service the endpoints use.
type RefundWorkflow interface {
	RequestRefund(ctx context.Context, who refund.Requester, planID uint, reason string) (*models.RefundRequest, error)
	DecideRefund(ctx context.Context, publicID string, action refund.Action, admin, notes string) (*models.RefundRequest, error)
	ListRefundsForUser(ctx context.Context, who refund.Requester) ([]models.RefundRequest, error)
	ListRefunds(ctx context.Context, status string) ([]models.RefundRequest, error)
}

type refundRequestBody struct {
	OrderID uint   `json:"order_id" validate:"required"`
	Reason  string `json:"reason" validate:"max=2000"`
}

type refundDecisionBody struct {
	RefundID string `json:"refund_id" validate:"required,max=64"`
	Action   string `json:"action" validate:"required"`
	Notes    string `json:"notes" validate:"max=2000"`
}

// RefundController serves customer refund requests and admin decisions.
type RefundController struct {
	refunds RefundWorkflow
	events  EventCounter
}

// NewRefundController creates a RefundController.
func NewRefundController(refunds RefundWorkflow) *RefundController {
	return &RefundController{refunds: refunds, events: discardEvents{}}
}

// WithEvents makes the controller count requests and decisions.
func (rc *RefundController) WithEvents(events EventCounter) *RefundController {
	if events != nil {
		rc.events = events
	}
	return rc
}

func requester(c *fiber.Ctx) refund.Requester {
	u := usercontext.GetUserContext(c)
	return refund.Requester{UserID: u.UserID, Email: u.Email}
}

// HandleRequestRefund files a refund for one of the caller's orders.
func (rc *RefundController) HandleRequestRefund(c *fiber.Ctx) error {
	var body refundRequestBody
	if err := bindJSON(c, &body); err != nil {
		return errorJSON(c, err)
	}

	req, err := rc.refunds.RequestRefund(c.UserContext(), requester(c), body.OrderID, body.Reason)
	if err != nil {
		rc.events.Add(c.UserContext(), counter.RefundRefused)
		// Unknown orders answer like the other refusals.
		if errors.Is(err, refund.ErrOrderNotFound) {
			return errorJSONStatus(c, fiber.StatusBadRequest, err)
		}
		return errorJSON(c, err)
	}
	rc.events.Add(c.UserContext(), counter.RefundRequested)

	return c.JSON(fiber.Map{
		"success":  true,
		"refundId": req.PublicID,
		"refund":   req,
	})
}

// HandleListMyRefunds lists the caller's refund requests.
func (rc *RefundController) HandleListMyRefunds(c *fiber.Ctx) error {
	list, err := rc.refunds.ListRefundsForUser(c.UserContext(), requester(c))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(fiber.Map{"refunds": list})
}

// HandleAdminListRefunds lists requests, optionally filtered by ?status=.
func (rc *RefundController) HandleAdminListRefunds(c *fiber.Ctx) error {
	list, err := rc.refunds.ListRefunds(c.UserContext(), c.Query("status"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(fiber.Map{"refunds": list})
}

// HandleAdminDecideRefund approves or rejects a pending request.
func (rc *RefundController) HandleAdminDecideRefund(c *fiber.Ctx) error {
	var body refundDecisionBody
	if err := bindJSON(c, &body); err != nil {
		return errorJSON(c, err)
	}
	action, err := refund.ParseAction(body.Action)
	if err != nil {
		return errorJSON(c, err)
	}

	req, err := rc.refunds.DecideRefund(c.UserContext(), body.RefundID, action, actorName(c), body.Notes)
	if err != nil {
		return errorJSON(c, err)
	}
	if action == refund.ActionApprove {
		rc.events.Add(c.UserContext(), counter.RefundApproved)
	} else {
		rc.events.Add(c.UserContext(), counter.RefundRejected)
	}
	return c.JSON(fiber.Map{"success": true, "refund": req})
}
