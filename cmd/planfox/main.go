package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/storage/redis"
	"github.com/gofiber/template/html/v2"
	"gorm.io/gorm"

	"github.com/ManuelReschke/PlanFox/app/controllers"
	"github.com/ManuelReschke/PlanFox/app/repository"
	"github.com/ManuelReschke/PlanFox/internal/pkg/authz"
	"github.com/ManuelReschke/PlanFox/internal/pkg/billing"
	"github.com/ManuelReschke/PlanFox/internal/pkg/cache"
	"github.com/ManuelReschke/PlanFox/internal/pkg/database"
	"github.com/ManuelReschke/PlanFox/internal/pkg/env"
	"github.com/ManuelReschke/PlanFox/internal/pkg/fulfillment"
	"github.com/ManuelReschke/PlanFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/PlanFox/internal/pkg/mail"
	"github.com/ManuelReschke/PlanFox/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/PlanFox/internal/pkg/refund"
	"github.com/ManuelReschke/PlanFox/internal/pkg/router"
	"github.com/ManuelReschke/PlanFox/internal/pkg/s3archive"
	"github.com/ManuelReschke/PlanFox/internal/pkg/session"
	"github.com/ManuelReschke/PlanFox/views"
)

func main() {
	app, manager := NewApplication()
	manager.Start()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Info("Shutting down...")
		if err := app.ShutdownWithTimeout(15 * time.Second); err != nil {
			log.Errorf("HTTP shutdown: %v", err)
		}
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	manager.Stop()
	if err != nil {
		log.Fatal(err)
	}
}

func NewApplication() (*fiber.App, *jobqueue.Manager) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	session.NewSessionStore()

	db := database.GetDB()
	repository.InitializeRepositories(db)
	repos := repository.GetGlobalRepositories()

	authorizer := authz.NewFromRepositories(repos)
	seedCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if _, err := authorizer.SeedAdmins(seedCtx, authz.ParseEmailList(env.GetEnv("ADMIN_EMAILS", ""))); err != nil {
		log.Errorf("[Authz] Seeding admins failed: %v", err)
	}
	cancel()

	manager := jobqueue.GetManager()
	queue := manager.GetQueue()

	fulfillments := newFulfillmentService(db)
	queue.RegisterHandler(jobqueue.JobTypeFulfillment, fulfillments.HandleJob)
	dispatcher := fulfillment.NewDispatcher(queue)

	payments := billing.NewServiceFromDB(db, billing.WithDispatcher(dispatcher))
	refunds := refund.NewServiceFromDB(db)

	staleAfter := env.GetEnvDuration("FULFILLMENT_STALE_MINUTES", 10, time.Minute)
	manager.AddTask(fulfillment.NewSweeper(fulfillment.NewRepository(db), dispatcher, staleAfter).Task(time.Minute))
	manager.AddTask(refunds.ReconcileTask(5 * time.Minute))
	events := counter.New(cache.GetClient())
	manager.AddTask(jobqueue.Task{
		Name:     "event-counter-flush",
		Interval: env.GetEnvDuration("EVENT_FLUSH_MINUTES", 60, time.Minute),
		Run:      events.Flush,
	})
	manager.AddTask(jobqueue.Task{
		Name:     "plan-expiry",
		Interval: 15 * time.Minute,
		Run: func(ctx context.Context) error {
			_, err := payments.ExpirePlans(ctx)
			return err
		},
	})

	app := fiber.New(fiber.Config{
		Views: html.NewFileSystem(http.FS(views.FS), ".html"),
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	if password := env.GetEnv("METRICS_PASSWORD", ""); password != "" {
		app.Get("/metrics", basicauth.New(basicauth.Config{
			Users: map[string]string{
				env.GetEnv("METRICS_USER", "admin"): password,
			},
		}), monitor.New())
	}

	// SWAGGER / OPENAPI
	if docs := findFile("public/docs/v1/openapi.yml"); docs != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: docs,
			Path:     "v1",
		}))
	}

	// ROUTER
	router.InstallRouter(app, router.Dependencies{
		Payments: controllers.NewPaymentController(payments, billing.NewStripeClientFromEnv()).WithEvents(events),
		Refunds:  controllers.NewRefundController(refunds).WithEvents(events),
		Internal: controllers.NewInternalController(fulfillments, payments),
		Queue:    controllers.NewQueueController(queue, fulfillments).WithEvents(events),
		Health: controllers.NewHealthController(map[string]controllers.HealthCheck{
			"database": func(ctx context.Context) error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
			"cache": func(ctx context.Context) error {
				return cache.GetClient().Ping(ctx).Err()
			},
		}),
		Account:          controllers.NewAccountController(authorizer),
		Users:            repos.User,
		Authorizer:       authorizer,
		InternalSecret:   env.GetEnv("INTERNAL_API_SECRET", ""),
		RateLimitStorage: redis.New(session.RedisConfig(2)),
		RefundRateMax:    env.GetEnvInt("REFUND_RATE_LIMIT_PER_MINUTE", 10),
	})

	return app, manager
}

func newFulfillmentService(db *gorm.DB) *fulfillment.Service {
	generator, err := fulfillment.NewTemplateGenerator()
	if err != nil {
		panic(err)
	}

	var opts []fulfillment.Option
	cfg, err := s3archive.LoadConfig()
	if err != nil {
		log.Errorf("[S3Archive] Invalid configuration, archive disabled: %v", err)
	} else if cfg.IsEnabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		client, err := s3archive.NewClient(ctx, cfg)
		cancel()
		if err != nil {
			log.Errorf("[S3Archive] Client setup failed, archive disabled: %v", err)
		} else {
			opts = append(opts, fulfillment.WithArchiver(client))
		}
	}

	return fulfillment.NewService(fulfillment.NewRepository(db), generator, mail.NewSMTPMailerFromEnv(), opts...)
}

// findFile resolves a project relative path from the usual working directories.
func findFile(rel string) string {
	for _, base := range []string{"./", "../../", "../../../"} {
		if _, err := os.Stat(base + rel); err == nil {
			return base + rel
		}
	}
	return ""
}
