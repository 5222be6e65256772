// Package main provides the salesflow worker: the automatic transition sweeper
// and the stage notifier.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/salesflow/pkg/automation"
	"github.com/dukex/salesflow/pkg/cmd"
	"github.com/dukex/salesflow/pkg/config"
	"github.com/dukex/salesflow/pkg/eventbus"
	"github.com/dukex/salesflow/pkg/log"
	"github.com/dukex/salesflow/pkg/messaging"
	"github.com/dukex/salesflow/pkg/metrics"
	"github.com/dukex/salesflow/pkg/persistence"
	"github.com/dukex/salesflow/pkg/pipeline"
	"github.com/go-playground/validator/v10"
	"github.com/urfave/cli/v3"
)

// worker holds what both commands need. close releases it in reverse order.
type worker struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    *eventbus.WatermillEventBus
	definition  *config.Definition
	engine      *pipeline.Engine
	metrics     *metrics.Metrics
	closers     []func() error
}

func newWorker(ctx context.Context, logger *slog.Logger, command *cli.Command) (*worker, error) {
	w := &worker{logger: logger, metrics: metrics.New()}

	tracer, shutdownTracer, err := cmd.NewTracer(ctx, command.Bool("otel-enabled"), "salesflow-worker")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	w.closers = append(w.closers, func() error { return shutdownTracer(context.Background()) })

	w.persistence, err = cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		w.close()

		return nil, err
	}

	w.closers = append(w.closers, func() error { return w.persistence.Close(context.Background()) })

	definition, table, err := cmd.LoadPipeline(ctx, logger, w.persistence, command.String("pipeline-definition"))
	if err != nil {
		w.close()

		return nil, err
	}

	w.definition = definition

	w.eventBus, err = cmd.NewEventBus(logger, command.String("event-bus"), command.String("kafka-brokers"), "worker", int64(command.Int("event-buffer")))
	if err != nil {
		w.close()

		return nil, err
	}

	w.closers = append(w.closers, w.eventBus.Close)

	w.engine = pipeline.NewEngine(log.WithModule("pipeline"), w.persistence, table,
		pipeline.WithPublisher(w.eventBus),
		pipeline.WithRecorder(w.metrics),
		pipeline.WithTracer(tracer),
	)

	return w, nil
}

func (w *worker) sweeper(command *cli.Command) *automation.Sweeper {
	return automation.NewSweeper(log.WithModule("automation"), w.engine, w.engine.Rules(),
		automation.WithSchedule(command.String("sweep-schedule")),
		automation.WithSweepRecorder(w.metrics),
	)
}

func (w *worker) gateway(command *cli.Command) (messaging.Gateway, error) {
	url := command.String("gateway-url")
	if url == "" {
		w.logger.Warn("No messaging gateway configured, automations are only logged")

		return messaging.NewLogGateway(w.logger), nil
	}

	cfg := messaging.WebhookConfig{
		URL:      url,
		Token:    command.String("gateway-token"),
		Timeout:  command.Duration("gateway-timeout"),
		Attempts: 3,
		Delay:    time.Second,
	}

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid messaging gateway configuration: %w", err)
	}

	return messaging.NewWebhookGateway(w.logger, cfg), nil
}

func (w *worker) close() {
	for i := len(w.closers) - 1; i >= 0; i-- {
		if err := w.closers[i](); err != nil {
			w.logger.Error("Failed to release worker resource", "error", err)
		}
	}

	w.closers = nil
}
