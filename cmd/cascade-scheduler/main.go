package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/cascadehq/cascade/pkg/cmd"
	"github.com/cascadehq/cascade/pkg/execution"
	"github.com/cascadehq/cascade/pkg/log"
	"github.com/cascadehq/cascade/pkg/workers"
)

func main() {
	logger := log.WithModule("scheduler")

	command := &cli.Command{
		Name:                  "cascade-scheduler",
		Usage:                 "Poll due schedules and delay wake-ups into executions",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka broker list",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.DurationFlag{
				Name:    "poll-interval",
				Usage:   "How often to poll for due schedule entries",
				Value:   10 * time.Second,
				Sources: cli.EnvVars("SCHEDULER_POLL_INTERVAL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Cascade scheduler")

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			bus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), "cascade-scheduler", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := bus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			reg := cmd.NewRegistry(logger, nil, cmd.NewAdapterRegistry(), nil)
			orchestrator := execution.NewOrchestrator(logger, store, reg, bus)

			scheduler := workers.NewScheduler(
				logger,
				store,
				orchestrator,
				workers.WithPollInterval(command.Duration("poll-interval")),
			)

			return scheduler.Run(ctx)
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		logger.Error("Scheduler terminated", "error", err)
		os.Exit(1)
	}
}
