package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/cascadehq/cascade/pkg/analytics"
	"github.com/cascadehq/cascade/pkg/cmd"
	"github.com/cascadehq/cascade/pkg/execution"
	"github.com/cascadehq/cascade/pkg/log"
	"github.com/cascadehq/cascade/pkg/otelhelper"
	"github.com/cascadehq/cascade/pkg/triggers"
	"github.com/cascadehq/cascade/pkg/workers"
)

func main() {
	command := &cli.Command{
		Name:                  "cascade-worker",
		Usage:                 "Start workers to advance workflow executions",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Sources: cli.EnvVars("WORKER_ID"),
			},
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
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the execution lease (empty runs a process-local lease)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.IntFlag{
				Name:    "concurrency",
				Usage:   "Number of executions advanced concurrently",
				Value:   workers.DefaultConcurrency,
				Sources: cli.EnvVars("WORKER_CONCURRENCY"),
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

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing Cascade worker")

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

			bus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), "cascade-worker", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := bus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			lease, err := cmd.NewLease(logger, command.String("redis-url"))
			if err != nil {
				return err
			}

			reg := cmd.NewRegistry(logger, nil, cmd.NewAdapterRegistry(), nil)
			orchestrator := execution.NewOrchestrator(logger, store, reg, bus)
			aggregator := analytics.NewAggregator(logger, store)

			poolOpts := []workers.PoolOption{
				workers.WithConcurrency(command.Int("concurrency")),
			}

			if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
				tracer, err := otelhelper.NewTracer(ctx, "cascade-worker")
				if err != nil {
					return err
				}

				poolOpts = append(poolOpts, workers.WithTracer(tracer))
			}

			// Handlers must be registered before the pool subscribes.
			evaluator := triggers.NewEvaluator(logger, store.TriggerRepository(), orchestrator)
			if err := evaluator.Bind(bus); err != nil {
				return err
			}

			pool := workers.NewPool(workerID, logger, orchestrator, lease, store, aggregator, poolOpts...)

			if err := pool.Start(ctx, bus); err != nil {
				return err
			}

			<-ctx.Done()
			logger.Info("Shutting down worker")
			pool.Wait()

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		log.WithModule("worker").Error("Worker terminated", "error", err)
		os.Exit(1)
	}
}
