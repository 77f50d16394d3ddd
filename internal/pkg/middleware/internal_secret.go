package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// InternalSecretHeader carries the shared secret of internal callers.
const InternalSecretHeader = "X-Internal-Secret"

// RequireInternalSecret guards privileged internal endpoints. The header
// must match secret exactly; an unset secret rejects every call.
func RequireInternalSecret(secret string) fiber.Handler {
	if secret == "" {
		log.Warn("[Auth] INTERNAL_API_SECRET is empty, internal endpoints are disabled")
	}
	return func(c *fiber.Ctx) error {
		got := c.Get(InternalSecretHeader)
		if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthorized",
				"message": "invalid internal secret",
			})
		}
		return c.Next()
	}
}
