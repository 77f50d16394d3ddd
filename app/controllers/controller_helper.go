package controllers

import (
	"context"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PlanFox/internal/pkg/apperror"
	"github.com/ManuelReschke/PlanFox/internal/pkg/usercontext"
)

var validate = validator.New()

// EventCounter records named business events.
type EventCounter interface {
	Add(ctx context.Context, name string)
}

type discardEvents struct{}

func (discardEvents) Add(context.Context, string) {}

var errInvalidBody = apperror.New(apperror.KindValidation, "invalid_request", "request body is invalid")

// errorJSON writes the API error body for err with its mapped status.
func errorJSON(c *fiber.Ctx, err error) error {
	return errorJSONStatus(c, apperror.HTTPStatus(err), err)
}

func errorJSONStatus(c *fiber.Ctx, status int, err error) error {
	if status >= fiber.StatusInternalServerError && apperror.KindOf(err) == apperror.KindInternal {
		log.Errorf("[API] %s %s failed: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(fiber.Map{
		"error":   apperror.Code(err),
		"message": apperror.Message(err),
	})
}

// bindJSON parses and validates the request body into dst.
func bindJSON(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return errInvalidBody
	}
	if err := validate.Struct(dst); err != nil {
		return apperror.Wrap(apperror.KindValidation, "invalid_request", err)
	}
	return nil
}

// actorName identifies the logged-in user in audit columns.
func actorName(c *fiber.Ctx) string {
	u := usercontext.GetUserContext(c)
	if u.Email != "" {
		return u.Email
	}
	if u.Username != "" {
		return u.Username
	}
	return "user:" + strconv.FormatUint(uint64(u.UserID), 10)
}

// GetClientIP determines the client addresses considering proxies and dual stack.
// Cloudflare's header wins, then X-Forwarded-For in order, then the socket
// address and X-Real-IP. The first address of each family is returned.
func GetClientIP(c *fiber.Ctx) (string, string) {
	candidates := []string{c.Get("CF-Connecting-IP")}
	candidates = append(candidates, strings.Split(c.Get("X-Forwarded-For"), ",")...)
	// ::ffff: prefixed addresses are IPv4 mapped into IPv6
	ip := c.IP()
	if strings.HasPrefix(ip, "::ffff:") && strings.Contains(ip, ".") {
		ip = strings.TrimPrefix(ip, "::ffff:")
	}
	candidates = append(candidates, ip, c.Get("X-Real-IP"))

	ipv4, ipv6 := "", ""
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		switch {
		case candidate == "":
		case strings.Contains(candidate, ":"):
			if ipv6 == "" {
				ipv6 = candidate
			}
		default:
			if ipv4 == "" {
				ipv4 = candidate
			}
		}
	}
	return ipv4, ipv6
}

// ClientKey is the per-client rate limit key.
func ClientKey(c *fiber.Ctx) string {
	if id := usercontext.GetUserID(c); id != 0 {
		return "user:" + strconv.FormatUint(uint64(id), 10)
	}
	ipv4, ipv6 := GetClientIP(c)
	if ipv4 != "" {
		return ipv4
	}
	return ipv6
}
