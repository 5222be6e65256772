// Package main provides the salesflow API server.
package main

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/dukex/salesflow/pkg/analytics"
	"github.com/dukex/salesflow/pkg/metrics"
	"github.com/dukex/salesflow/pkg/persistence"
	"github.com/dukex/salesflow/pkg/pipeline"
	"github.com/dukex/salesflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

const shutdownTimeout = 10 * time.Second

type API struct {
	logger      *slog.Logger
	engine      *pipeline.Engine
	aggregator  *analytics.Aggregator
	definitions persistence.DefinitionStore
	metrics     *metrics.Metrics
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	engine *pipeline.Engine,
	aggregator *analytics.Aggregator,
	definitions persistence.DefinitionStore,
	metrics *metrics.Metrics,
) *API {
	return &API{
		logger:      logger,
		engine:      engine,
		aggregator:  aggregator,
		definitions: definitions,
		metrics:     metrics,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.logger, a.engine, a.aggregator, a.validate, a.definitions)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))
	app.Use(a.metrics.Middleware())

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker(healthcheck.Config{
		Probe: func(c fiber.Ctx) bool {
			return a.engine.HealthCheck(c.Context()) == nil
		},
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Salesflow API")
	})

	app.Get("/metrics", adaptor.HTTPHandler(a.metrics.Handler()))

	handlers.Register(app)

	return app
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	errs := make(chan error, 1)

	go func() {
		errs <- app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})
	}()

	a.logger.InfoContext(ctx, "Salesflow API listening", "port", port)

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		a.logger.Info("Shutting down Salesflow API")

		return app.ShutdownWithTimeout(shutdownTimeout)
	}
}
