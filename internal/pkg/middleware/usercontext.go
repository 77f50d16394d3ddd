package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/PlanFox/app/models"
	"github.com/ManuelReschke/PlanFox/internal/pkg/session"
	"github.com/ManuelReschke/PlanFox/internal/pkg/usercontext"
)

// UserContextMiddleware sets up the user context for every request from the
// Redis-backed session. Requests without a session are anonymous.
func UserContextMiddleware(c *fiber.Ctx) error {
	id, ok := session.LoadIdentity(c)
	if !ok {
		usercontext.Set(c, usercontext.Anonymous())
		return c.Next()
	}

	usercontext.Set(c, usercontext.UserContext{
		UserID:     id.UserID,
		Username:   id.Name,
		Email:      models.NormalizeEmail(id.Email),
		IsLoggedIn: true,
		Source:     usercontext.SourceSession,
	})
	return c.Next()
}
