package controllers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/PlanFox/internal/pkg/usercontext"
)

// CapabilityLister resolves what an account may do.
type CapabilityLister interface {
	Capabilities(ctx context.Context, userID uint) ([]string, error)
}

// AccountController describes the authenticated caller.
type AccountController struct {
	capabilities CapabilityLister
}

// NewAccountController creates an AccountController.
func NewAccountController(capabilities CapabilityLister) *AccountController {
	return &AccountController{capabilities: capabilities}
}

// HandleGetAccount returns the caller's identity and granted capabilities.
func (ac *AccountController) HandleGetAccount(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	caps, err := ac.capabilities.Capabilities(c.UserContext(), userCtx.UserID)
	if err != nil {
		return errorJSON(c, err)
	}
	if caps == nil {
		caps = []string{}
	}

	return c.JSON(fiber.Map{
		"user_id":      userCtx.UserID,
		"email":        userCtx.Email,
		"name":         userCtx.Username,
		"source":       userCtx.Source,
		"capabilities": caps,
	})
}
