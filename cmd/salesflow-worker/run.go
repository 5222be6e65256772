package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/salesflow/pkg/automation"
	"github.com/dukex/salesflow/pkg/cmd"
	"github.com/dukex/salesflow/pkg/log"
	"github.com/urfave/cli/v3"
)

func workerFlags() []cli.Flag {
	return append(cmd.CommonFlags(),
		&cli.StringFlag{
			Name:    "sweep-schedule",
			Usage:   "Cron schedule of the automatic transition sweep",
			Value:   automation.DefaultSchedule,
			Sources: cli.EnvVars("SWEEP_SCHEDULE"),
		},
	)
}

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Start the sweeper and the stage notifier",
		Flags: append(workerFlags(),
			&cli.StringFlag{
				Name:    "gateway-url",
				Usage:   "Messaging gateway endpoint (messages are only logged when empty)",
				Sources: cli.EnvVars("GATEWAY_URL"),
			},
			&cli.StringFlag{
				Name:    "gateway-token",
				Usage:   "Bearer token for the messaging gateway",
				Sources: cli.EnvVars("GATEWAY_TOKEN"),
			},
			&cli.DurationFlag{
				Name:    "gateway-timeout",
				Usage:   "Timeout of a single gateway request",
				Value:   10 * time.Second,
				Sources: cli.EnvVars("GATEWAY_TIMEOUT"),
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("salesflow-worker")

			logger.InfoContext(ctx, "Initializing Salesflow Worker")

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			w, err := newWorker(ctx, logger, command)
			if err != nil {
				return err
			}
			defer w.close()

			gateway, err := w.gateway(command)
			if err != nil {
				return err
			}

			notifier := automation.NewNotifier(log.WithModule("automation"), w.definition, w.engine.Catalog(), w.engine, gateway).
				WithRecorder(w.metrics)

			if err := notifier.Register(w.eventBus); err != nil {
				return fmt.Errorf("failed to register notifier: %w", err)
			}

			if err := w.eventBus.Subscribe(ctx); err != nil {
				return fmt.Errorf("failed to subscribe to pipeline events: %w", err)
			}

			sweeper := w.sweeper(command)
			if err := sweeper.Start(ctx); err != nil {
				return err
			}
			defer sweeper.Stop()

			logger.InfoContext(ctx, "Salesflow Worker started")

			<-ctx.Done()

			logger.Info("Shutting down Salesflow Worker")

			return nil
		},
	}
}

func NewSweepCommand() *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "Run one automatic transition sweep and exit",
		Flags: workerFlags(),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("salesflow-worker")

			w, err := newWorker(ctx, logger, command)
			if err != nil {
				return err
			}
			defer w.close()

			report, err := w.sweeper(command).SweepOnce(ctx)
			if err != nil {
				return err
			}

			if report.Failed > 0 {
				return fmt.Errorf("sweep finished with %d failed moves", report.Failed)
			}

			return nil
		},
	}
}
