package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/PlanFox/app/controllers"
	"github.com/ManuelReschke/PlanFox/app/repository"
	"github.com/ManuelReschke/PlanFox/internal/pkg/middleware"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the controllers and guards the routes are built from.
type Dependencies struct {
	Payments *controllers.PaymentController
	Refunds  *controllers.RefundController
	Internal *controllers.InternalController
	Queue    *controllers.QueueController
	Health   *controllers.HealthController
	Account  *controllers.AccountController

	Users          repository.UserRepository
	Authorizer     middleware.CapabilityChecker
	InternalSecret string

	// RateLimitStorage backs the refund request limiter; nil keeps counters in memory.
	RateLimitStorage fiber.Storage
	RefundRateMax    int
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	// HttpRouter installs the session backed user context first; the API
	// routes rely on it for customer identity.
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
