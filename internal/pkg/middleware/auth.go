package middleware

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PlanFox/internal/pkg/usercontext"
)

// CapabilityChecker answers whether a user holds a capability.
type CapabilityChecker interface {
	IsAuthorized(ctx context.Context, userID uint, capability string) (bool, error)
}

// RequireAPISessionAuth ensures an authenticated identity for API routes and returns JSON 401 instead of redirect.
func RequireAPISessionAuth(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "login required",
		})
	}
	return c.Next()
}

// RequireCapability answers 401 for anonymous callers and 403 for callers
// lacking capability.
func RequireCapability(checker CapabilityChecker, capability string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userCtx := usercontext.GetUserContext(c)
		if !userCtx.IsLoggedIn {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthorized",
				"message": "login required",
			})
		}
		ok, err := checker.IsAuthorized(c.UserContext(), userCtx.UserID, capability)
		if err != nil {
			log.Errorf("[Authz] Capability check %s for user %d failed: %v", capability, userCtx.UserID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":   "internal_server_error",
				"message": "authorization check failed",
			})
		}
		if !ok {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":   "forbidden",
				"message": "missing capability " + capability,
			})
		}
		return c.Next()
	}
}
