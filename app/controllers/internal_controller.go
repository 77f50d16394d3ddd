package controllers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/PlanFox/app/models"
	"github.com/ManuelReschke/PlanFox/internal/pkg/billing"
	"github.com/ManuelReschke/PlanFox/internal/pkg/fulfillment"
)

// FulfillmentRunner runs fulfillment for a checkout session on demand.
type FulfillmentRunner interface {
	FulfillSession(ctx context.Context, sessionID string) (*fulfillment.Result, error)
}

// PlanSeeder creates orders for trusted internal callers.
type PlanSeeder interface {
	SeedPlan(ctx context.Context, in billing.SeedPlanInput) (*models.UserPlan, error)
}

type fulfillmentTriggerBody struct {
	SessionID string `json:"session_id" validate:"required,max=191"`
}

// InternalController serves endpoints guarded by the internal shared secret.
type InternalController struct {
	runner FulfillmentRunner
	seeder PlanSeeder
}

// NewInternalController creates an InternalController.
func NewInternalController(runner FulfillmentRunner, seeder PlanSeeder) *InternalController {
	return &InternalController{runner: runner, seeder: seeder}
}

// HandleTriggerFulfillment generates and delivers the content of a session now.
func (ic *InternalController) HandleTriggerFulfillment(c *fiber.Ctx) error {
	var body fulfillmentTriggerBody
	if err := bindJSON(c, &body); err != nil {
		return errorJSON(c, err)
	}
	result, err := ic.runner.FulfillSession(c.UserContext(), body.SessionID)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "result": result})
}

// HandleSeedPlan creates an active order without a payment session.
func (ic *InternalController) HandleSeedPlan(c *fiber.Ctx) error {
	var body billing.SeedPlanInput
	if err := bindJSON(c, &body); err != nil {
		return errorJSON(c, err)
	}
	plan, err := ic.seeder.SeedPlan(c.UserContext(), body)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "plan": plan})
}
