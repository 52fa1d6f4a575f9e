// Package triggers matches incoming domain events against the active
// workflow triggers and starts executions for the matches.
package triggers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cascadehq/cascade/pkg/conditions"
	"github.com/cascadehq/cascade/pkg/eventbus"
	"github.com/cascadehq/cascade/pkg/events"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
)

var ErrInvalidEvent = errors.New("invalid domain event")

// ExecutionStarter creates an execution for a matched trigger. The
// orchestrator implements it; the indirection keeps this package free of
// execution-state concerns.
type ExecutionStarter interface {
	StartFromTrigger(ctx context.Context, trigger *models.WorkflowTrigger, event models.DomainEvent) (*models.WorkflowExecution, error)
}

type Evaluator struct {
	logger   *slog.Logger
	triggers persistence.TriggerRepository
	starter  ExecutionStarter
}

func NewEvaluator(logger *slog.Logger, triggers persistence.TriggerRepository, starter ExecutionStarter) *Evaluator {
	return &Evaluator{
		logger:   logger.With("module", "trigger_evaluator"),
		triggers: triggers,
		starter:  starter,
	}
}

// HandleDomainEvent matches the event against active triggers and starts one
// execution per match. Non-matching events are dropped. A failing trigger
// never blocks the remaining matches; failures are joined into the returned
// error.
func (e *Evaluator) HandleDomainEvent(ctx context.Context, event models.DomainEvent) ([]*models.WorkflowExecution, error) {
	if event.Module == "" || event.EventType == "" {
		return nil, fmt.Errorf("%w: module and event_type are required", ErrInvalidEvent)
	}

	candidates, err := e.triggers.FindActiveByEvent(ctx, event.Module, event.EventType)
	if err != nil {
		return nil, fmt.Errorf("find triggers for %s.%s: %w", event.Module, event.EventType, err)
	}

	if len(candidates) == 0 {
		e.logger.DebugContext(ctx, "No triggers for event",
			"event_module", event.Module, "event_type", event.EventType)

		return nil, nil
	}

	var (
		started   []*models.WorkflowExecution
		startErrs []error
	)

	for _, trigger := range candidates {
		if !trigger.Matches(event) {
			continue
		}

		if trigger.Conditions != nil {
			matched, evalErr := conditions.Evaluate(trigger.Conditions, event.Payload)
			if evalErr != nil {
				e.logger.WarnContext(ctx, "Trigger condition evaluation failed",
					"trigger_id", trigger.ID, "workflow_id", trigger.WorkflowID, "error", evalErr)

				continue
			}

			if !matched {
				e.logger.DebugContext(ctx, "Trigger conditions not met",
					"trigger_id", trigger.ID, "workflow_id", trigger.WorkflowID)

				continue
			}
		}

		execution, startErr := e.starter.StartFromTrigger(ctx, trigger, event)
		if startErr != nil {
			e.logger.ErrorContext(ctx, "Failed to start execution for trigger",
				"trigger_id", trigger.ID, "workflow_id", trigger.WorkflowID, "error", startErr)
			startErrs = append(startErrs, fmt.Errorf("trigger %s: %w", trigger.ID, startErr))

			continue
		}

		e.logger.InfoContext(ctx, "Execution started from trigger",
			"trigger_id", trigger.ID, "workflow_id", trigger.WorkflowID,
			"execution_id", execution.ID)

		started = append(started, execution)
	}

	return started, errors.Join(startErrs...)
}

// Bind subscribes the evaluator to domain events on the bus.
func (e *Evaluator) Bind(bus eventbus.EventSubscriber) error {
	return bus.Handle(events.DomainEventReceivedEvent, func(ctx context.Context, event any) error {
		received, ok := event.(*events.DomainEventReceived)
		if !ok {
			return fmt.Errorf("%w: unexpected payload %T", ErrInvalidEvent, event)
		}

		_, err := e.HandleDomainEvent(ctx, received.Event)

		return err
	})
}
