package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cascadehq/cascade/pkg/analytics"
	"github.com/cascadehq/cascade/pkg/eventbus"
	"github.com/cascadehq/cascade/pkg/events"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/otelhelper"
	"github.com/cascadehq/cascade/pkg/persistence"
)

// Advancer walks one execution until it finishes or suspends. The
// orchestrator implements it.
type Advancer interface {
	Advance(ctx context.Context, executionID string) error
}

const (
	// DefaultConcurrency is the number of executions one pool advances at
	// a time. Node progression within an execution stays sequential.
	DefaultConcurrency = 8

	// DefaultLeaseTTL bounds how long a crashed worker strands a run.
	DefaultLeaseTTL = 5 * time.Minute
)

// Pool consumes ExecutionQueued events and advances executions concurrently,
// with a lease per execution so no two workers ever advance the same run.
type Pool struct {
	id          string
	logger      *slog.Logger
	advancer    Advancer
	lease       Lease
	store       persistence.Persistence
	aggregator  *analytics.Aggregator
	tracer      trace.Tracer
	concurrency int
	leaseTTL    time.Duration

	jobs chan string
	wg   sync.WaitGroup
}

type PoolOption func(*Pool)

func WithConcurrency(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

func WithLeaseTTL(ttl time.Duration) PoolOption {
	return func(p *Pool) {
		if ttl > 0 {
			p.leaseTTL = ttl
		}
	}
}

// WithTracer enables a span per advanced execution.
func WithTracer(tracer trace.Tracer) PoolOption {
	return func(p *Pool) {
		p.tracer = tracer
	}
}

func NewPool(id string, logger *slog.Logger, advancer Advancer, lease Lease, store persistence.Persistence, aggregator *analytics.Aggregator, opts ...PoolOption) *Pool {
	p := &Pool{
		id:          id,
		logger:      logger.With("module", "worker", "worker_id", id),
		advancer:    advancer,
		lease:       lease,
		store:       store,
		aggregator:  aggregator,
		concurrency: DefaultConcurrency,
		leaseTTL:    DefaultLeaseTTL,
	}

	for _, opt := range opts {
		opt(p)
	}

	p.jobs = make(chan string, p.concurrency*2)

	return p
}

// Start registers the bus subscription and launches the worker goroutines.
// It returns immediately; Wait blocks until the workers drain after ctx is
// cancelled.
func (p *Pool) Start(ctx context.Context, bus eventbus.EventBus) error {
	if err := bus.Handle(events.ExecutionQueuedEvent, p.handleQueued); err != nil {
		return err
	}

	if err := bus.Subscribe(ctx); err != nil {
		return err
	}

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)

		go func() {
			defer p.wg.Done()

			for {
				select {
				case <-ctx.Done():
					return
				case executionID, ok := <-p.jobs:
					if !ok {
						return
					}

					p.process(ctx, executionID)
				}
			}
		}()
	}

	p.logger.InfoContext(ctx, "Worker pool started", "concurrency", p.concurrency)

	return nil
}

// Wait blocks until every worker goroutine has stopped.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) handleQueued(ctx context.Context, event any) error {
	queued, ok := event.(*events.ExecutionQueued)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event, events.ExecutionQueuedEvent)
	}

	select {
	case p.jobs <- queued.ExecutionID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) process(ctx context.Context, executionID string) {
	acquired, err := p.lease.Acquire(ctx, executionID, p.id, p.leaseTTL)
	if err != nil {
		p.logger.ErrorContext(ctx, "Lease acquisition failed",
			"execution_id", executionID, "error", err)

		return
	}

	if !acquired {
		p.logger.DebugContext(ctx, "Execution already leased",
			"execution_id", executionID)

		return
	}

	defer func() {
		if err := p.lease.Release(ctx, executionID, p.id); err != nil {
			p.logger.ErrorContext(ctx, "Lease release failed",
				"execution_id", executionID, "error", err)
		}
	}()

	p.logger.InfoContext(ctx, "Advancing execution", "execution_id", executionID)

	ctx, span := p.startSpan(ctx, executionID)
	defer span.End()

	if err := p.advancer.Advance(ctx, executionID); err != nil {
		otelhelper.SetError(span, err)
		p.logger.ErrorContext(ctx, "Advance failed",
			"execution_id", executionID, "error", err)

		return
	}

	p.recordAnalytics(ctx, executionID)
}

func (p *Pool) startSpan(ctx context.Context, executionID string) (context.Context, trace.Span) {
	if p.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	return otelhelper.StartSpan(ctx, p.tracer, "worker.advance",
		attribute.String(otelhelper.ExecutionIDKey, executionID),
		attribute.String(otelhelper.WorkerIDKey, p.id),
	)
}

// recordAnalytics folds terminal executions into the persisted rollups.
func (p *Pool) recordAnalytics(ctx context.Context, executionID string) {
	if p.aggregator == nil {
		return
	}

	execution, err := p.store.ExecutionRepository().GetByID(ctx, executionID)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to reload execution for rollups",
			"execution_id", executionID, "error", err)

		return
	}

	if !execution.Status.Terminal() {
		return
	}

	// Retried executions re-enter the rollups once per terminal outcome.
	if execution.Status == models.ExecutionStatusCancelled && execution.StartedAt == nil {
		return
	}

	if err := p.aggregator.RecordTerminal(ctx, execution); err != nil {
		p.logger.ErrorContext(ctx, "Failed to record rollups",
			"execution_id", executionID, "error", err)
	}
}
