package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/PlanFox/internal/pkg/constants"
	"github.com/ManuelReschke/PlanFox/internal/pkg/middleware"
)

type HttpRouter struct {
	deps Dependencies
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware)

	app.Get(constants.HealthRoute, h.deps.Health.HandleHealthz)
	app.Get(constants.PaymentSuccessRoute, h.deps.Payments.HandlePaymentSuccessPage)

	internal := app.Group(constants.InternalPrefix, middleware.RequireInternalSecret(h.deps.InternalSecret))
	internal.Post(constants.InternalFulfillmentRoute, h.deps.Internal.HandleTriggerFulfillment)
	internal.Post(constants.InternalPlansRoute, h.deps.Internal.HandleSeedPlan)
}

func NewHttpRouter(deps Dependencies) *HttpRouter {
	return &HttpRouter{deps: deps}
}
