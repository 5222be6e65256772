package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/dukex/salesflow/pkg/analytics"
	"github.com/dukex/salesflow/pkg/cache"
	"github.com/dukex/salesflow/pkg/cmd"
	"github.com/dukex/salesflow/pkg/eventbus"
	"github.com/dukex/salesflow/pkg/log"
	"github.com/dukex/salesflow/pkg/metrics"
	"github.com/dukex/salesflow/pkg/pipeline"
	"github.com/urfave/cli/v3"
)

func RunAPICommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Start api",
		Flags: append(cmd.CommonFlags(),
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   9091,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the analytics cache (disabled when empty)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.DurationFlag{
				Name:    "cache-ttl",
				Usage:   "How long computed metrics and forecasts are cached",
				Value:   cache.DefaultTTL,
				Sources: cli.EnvVars("CACHE_TTL"),
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("api")

			logger.InfoContext(ctx, "Initializing Salesflow API")

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			tracer, shutdownTracer, err := cmd.NewTracer(ctx, command.Bool("otel-enabled"), "salesflow-api")
			if err != nil {
				return fmt.Errorf("failed to initialize tracer: %w", err)
			}
			defer func() {
				if err := shutdownTracer(context.Background()); err != nil {
					logger.Error("Failed to shutdown tracer provider", "error", err)
				}
			}()

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}
			defer func() {
				if err := persistence.Close(context.Background()); err != nil {
					logger.Error("Failed to close persistence", "error", err)
				}
			}()

			_, table, err := cmd.LoadPipeline(ctx, logger, persistence, command.String("pipeline-definition"))
			if err != nil {
				return err
			}

			eventBus, err := cmd.NewEventBus(logger, command.String("event-bus"), command.String("kafka-brokers"), "api", int64(command.Int("event-buffer")))
			if err != nil {
				return err
			}
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.Error("Failed to close event bus", "error", err)
				}
			}()

			registry := metrics.New()

			aggregatorOpts := []analytics.Option{analytics.WithCacheRecorder(registry), analytics.WithTracer(tracer)}

			redisCache, err := cmd.NewCache(ctx, logger, command.String("redis-url"), command.Duration("cache-ttl"))
			if err != nil {
				return err
			}

			if redisCache != nil {
				defer func() {
					if err := redisCache.Close(); err != nil {
						logger.Error("Failed to close analytics cache", "error", err)
					}
				}()

				aggregatorOpts = append(aggregatorOpts, analytics.WithCache(redisCache))
			}

			aggregator := analytics.New(log.WithModule("analytics"), persistence, table.Catalog(), aggregatorOpts...)

			if err := eventbus.HandleAll(eventBus, aggregator.HandleEvent, analytics.InvalidationEvents...); err != nil {
				return fmt.Errorf("failed to register cache invalidation: %w", err)
			}

			if err := eventBus.Subscribe(ctx); err != nil {
				return fmt.Errorf("failed to subscribe to pipeline events: %w", err)
			}

			engine := pipeline.NewEngine(log.WithModule("pipeline"), persistence, table,
				pipeline.WithPublisher(eventBus),
				pipeline.WithRecorder(registry),
				pipeline.WithTracer(tracer),
			)

			api := NewAPI(logger, engine, aggregator, persistence, registry)

			if err := api.Start(ctx, command.Int("port")); err != nil {
				logger.ErrorContext(ctx, "API server stopped", "error", err)

				return err
			}

			return nil
		},
	}
}
