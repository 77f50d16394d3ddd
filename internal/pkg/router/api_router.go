package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/PlanFox/app/controllers"
	"github.com/ManuelReschke/PlanFox/app/models"
	"github.com/ManuelReschke/PlanFox/internal/pkg/constants"
	"github.com/ManuelReschke/PlanFox/internal/pkg/middleware"
)

const defaultRefundRateMax = 10

type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	v1 := app.Group(constants.APIPrefix)
	v1.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// Gateway facing: authenticated by signature or checkout session, not by user.
	v1.Post(constants.WebhookStripeRoute, h.deps.Payments.HandleStripeWebhook)
	v1.Get(constants.PaymentsVerifyRoute, h.deps.Payments.HandleVerifyPayment)

	apiKey := middleware.APIKeyAuthMiddleware(h.deps.Users)

	// Customer
	v1.Get(constants.AccountRoute, apiKey, middleware.RequireAPISessionAuth, h.deps.Account.HandleGetAccount)
	v1.Get(constants.PlansRoute, apiKey, middleware.RequireAPISessionAuth, h.deps.Payments.HandleListPlans)
	v1.Get(constants.RefundsRoute, apiKey, middleware.RequireAPISessionAuth, h.deps.Refunds.HandleListMyRefunds)
	v1.Post(constants.RefundsRoute, apiKey, middleware.RequireAPISessionAuth, h.refundLimiter(), h.deps.Refunds.HandleRequestRefund)

	// Admin
	v1.Get(constants.AdminRefundsRoute, apiKey,
		middleware.RequireCapability(h.deps.Authorizer, models.CapabilityRefundsRead),
		h.deps.Refunds.HandleAdminListRefunds)
	v1.Post(constants.AdminDecisionRoute, apiKey,
		middleware.RequireCapability(h.deps.Authorizer, models.CapabilityRefundsDecide),
		h.deps.Refunds.HandleAdminDecideRefund)
	v1.Get(constants.AdminQueueStatsRoute, apiKey,
		middleware.RequireCapability(h.deps.Authorizer, models.CapabilityQueueRead),
		h.deps.Queue.HandleQueueStats)
}

func (h ApiRouter) refundLimiter() fiber.Handler {
	limit := h.deps.RefundRateMax
	if limit <= 0 {
		limit = defaultRefundRateMax
	}
	return limiter.New(limiter.Config{
		Max:          limit,
		Expiration:   time.Minute,
		KeyGenerator: controllers.ClientKey,
		Storage:      h.deps.RateLimitStorage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate_limited",
				"message": "too many refund requests, try again later",
			})
		},
	})
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}
