package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cascadehq/cascade/pkg/eventbus"
	"github.com/cascadehq/cascade/pkg/events"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
	"github.com/cascadehq/cascade/pkg/registry"
)

var (
	ErrWorkflowNotExecutable = errors.New("workflow is not executable")
	ErrInvalidTransition     = errors.New("invalid execution state transition")
	ErrRetryLimitExceeded    = errors.New("execution retry limit exceeded")
)

// DefaultExecutionRetries bounds how many times a failed execution may be
// retried through the API.
const DefaultExecutionRetries = 3

// DefaultNodeTimeout applies when a node does not set timeout_ms.
const DefaultNodeTimeout = 30 * time.Second

// Orchestrator owns the execution state machine. One instance serves both
// the API (creation, control actions) and the workers (Advance).
type Orchestrator struct {
	logger   *slog.Logger
	store    persistence.Persistence
	registry *registry.Registry
	bus      eventbus.EventPublisher

	now func() time.Time
}

func NewOrchestrator(logger *slog.Logger, store persistence.Persistence, reg *registry.Registry, bus eventbus.EventPublisher) *Orchestrator {
	return &Orchestrator{
		logger:   logger.With("module", "orchestrator"),
		store:    store,
		registry: reg,
		bus:      bus,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// StartRequest describes a new execution. DelayMs defers the queued start
// without occupying a worker.
type StartRequest struct {
	WorkflowID  string
	TriggerID   *string
	TriggerData map[string]any
	Variables   map[string]any
	Priority    models.ExecutionPriority
	DelayMs     int64
}

// Start creates an execution synchronously: the execution row plus one
// NodeExecution per executable node, with the node configs snapshotted so
// concurrent edits never touch an in-flight run. The actual walk happens on
// a worker after the ExecutionQueued event.
func (o *Orchestrator) Start(ctx context.Context, req StartRequest) (*models.WorkflowExecution, error) {
	workflow, err := o.store.WorkflowRepository().GetByID(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}

	if !workflow.IsExecutable() {
		return nil, fmt.Errorf("%w: workflow %s is %s", ErrWorkflowNotExecutable, workflow.ID, workflow.Status)
	}

	workflowNodes, err := o.store.NodeRepository().ListByWorkflow(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}

	connections, err := o.store.ConnectionRepository().ListByWorkflow(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}

	g, err := buildGraph(workflowNodes, connections)
	if err != nil {
		return nil, err
	}

	if len(g.order) == 0 {
		return nil, fmt.Errorf("%w: workflow %s has no executable nodes", ErrInvalidGraph, workflow.ID)
	}

	priority := req.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}

	now := o.now()
	execution := &models.WorkflowExecution{
		ID:             uuid.New().String(),
		WorkflowID:     workflow.ID,
		OrganizationID: workflow.OrganizationID,
		TriggerID:      req.TriggerID,
		Status:         models.ExecutionStatusPending,
		Priority:       priority,
		TriggerData:    req.TriggerData,
		MaxRetries:     DefaultExecutionRetries,
		NodeSnapshot:   workflowNodes,
		CreatedAt:      now,
	}

	nodeExecutions := make([]*models.NodeExecution, 0, len(g.order))
	for index, nodeID := range g.order {
		node := g.nodes[nodeID]
		nodeExecutions = append(nodeExecutions, &models.NodeExecution{
			ID:             uuid.New().String(),
			ExecutionID:    execution.ID,
			NodeID:         node.NodeID,
			Status:         models.NodeStatusPending,
			ExecutionOrder: index,
			MaxRetries:     node.RetryLimit,
		})
	}

	if err := o.store.ExecutionRepository().Create(ctx, execution, nodeExecutions); err != nil {
		return nil, err
	}

	if len(req.Variables) > 0 {
		seed := make([]*models.ExecutionVariable, 0, len(req.Variables))
		for name, value := range req.Variables {
			seed = append(seed, &models.ExecutionVariable{
				ExecutionID: execution.ID,
				Name:        name,
				Value:       value,
				DataType:    models.InferDataType(value),
				Source:      models.VariableSourceAPI,
				UpdatedAt:   now,
			})
		}

		if err := o.store.ExecutionRepository().SaveVariables(ctx, execution.ID, seed); err != nil {
			return nil, err
		}
	}

	o.appendLog(ctx, execution.ID, models.LogLevelInfo, "execution created", models.LogCategoryLifecycle, map[string]any{
		"workflow_id": workflow.ID,
		"priority":    string(priority),
	})

	if req.DelayMs > 0 {
		wakeup := &models.DelayWakeup{
			ID:          uuid.New().String(),
			ExecutionID: execution.ID,
			ResumeAt:    now.Add(time.Duration(req.DelayMs) * time.Millisecond),
			CreatedAt:   now,
		}

		if err := o.store.ExecutionRepository().CreateDelayWakeup(ctx, wakeup); err != nil {
			return nil, err
		}

		o.logger.InfoContext(ctx, "Execution start deferred",
			"execution_id", execution.ID, "resume_at", wakeup.ResumeAt)

		return execution, nil
	}

	if err := o.publishQueued(ctx, execution); err != nil {
		return nil, err
	}

	return execution, nil
}

// StartFromTrigger implements triggers.ExecutionStarter. The event payload
// becomes the execution's trigger data, with the event envelope kept under
// "event" for conditions and templates.
func (o *Orchestrator) StartFromTrigger(ctx context.Context, trigger *models.WorkflowTrigger, event models.DomainEvent) (*models.WorkflowExecution, error) {
	triggerData := make(map[string]any, len(event.Payload)+1)
	for key, value := range event.Payload {
		triggerData[key] = value
	}

	triggerData["event"] = map[string]any{
		"module":      event.Module,
		"event_type":  event.EventType,
		"entity_type": event.EntityType,
		"entity_id":   event.EntityID,
		"occurred_at": event.OccurredAt,
	}

	triggerID := trigger.ID

	return o.Start(ctx, StartRequest{
		WorkflowID:  trigger.WorkflowID,
		TriggerID:   &triggerID,
		TriggerData: triggerData,
		DelayMs:     trigger.DelayMs,
	})
}

// StartFromSchedule starts an execution for a due schedule entry and advances
// its NextDueAt.
func (o *Orchestrator) StartFromSchedule(ctx context.Context, entry *models.ScheduleEntry) (*models.WorkflowExecution, error) {
	triggerData := map[string]any{
		"schedule": map[string]any{
			"entry_id": entry.ID,
			"due_at":   entry.NextDueAt,
		},
	}

	var triggerID *string
	if entry.TriggerID != "" {
		id := entry.TriggerID
		triggerID = &id
	}

	execution, err := o.Start(ctx, StartRequest{
		WorkflowID:  entry.WorkflowID,
		TriggerID:   triggerID,
		TriggerData: triggerData,
	})
	if err != nil {
		return nil, err
	}

	if err := entry.UpdateNextDueAt(); err != nil {
		return nil, err
	}

	if err := o.store.ScheduleRepository().Save(ctx, entry); err != nil {
		return nil, err
	}

	return execution, nil
}

// WakeDelay completes a due delay suspension: the waiting node (if any) is
// marked completed, the wakeup row removed, and the execution re-queued.
// A terminal execution only has its stale wakeup row dropped; its node
// executions are left untouched.
func (o *Orchestrator) WakeDelay(ctx context.Context, wakeup *models.DelayWakeup) error {
	repo := o.store.ExecutionRepository()

	execution, err := repo.GetByID(ctx, wakeup.ExecutionID)
	if err != nil {
		return err
	}

	if execution.Status.Terminal() {
		o.logger.WarnContext(ctx, "Skipping wakeup of terminal execution",
			"execution_id", execution.ID, "status", string(execution.Status))

		return repo.DeleteDelayWakeup(ctx, wakeup.ID)
	}

	if wakeup.NodeExecutionID != "" {
		nodeExecutions, err := repo.NodeExecutions(ctx, execution.ID)
		if err != nil {
			return err
		}

		now := o.now()

		for _, nodeExecution := range nodeExecutions {
			if nodeExecution.ID != wakeup.NodeExecutionID {
				continue
			}

			nodeExecution.Status = models.NodeStatusCompleted
			nodeExecution.CompletedAt = &now
			nodeExecution.Output = map[string]any{"resumed_at": now}

			if nodeExecution.StartedAt != nil {
				duration := now.Sub(*nodeExecution.StartedAt).Milliseconds()
				nodeExecution.DurationMs = &duration
			}

			if err := repo.UpdateNodeExecution(ctx, nodeExecution); err != nil {
				return err
			}

			break
		}
	}

	if err := repo.DeleteDelayWakeup(ctx, wakeup.ID); err != nil {
		return err
	}

	if execution.Status == models.ExecutionStatusPaused {
		execution.Status = models.ExecutionStatusPending
		if err := repo.Update(ctx, execution); err != nil {
			return err
		}

		event := events.ExecutionResumed{
			BaseEvent:   events.NewBaseEvent(events.ExecutionResumedEvent, execution.WorkflowID),
			ExecutionID: execution.ID,
		}
		if err := o.bus.Publish(ctx, execution.WorkflowID, event); err != nil {
			return err
		}
	}

	return o.publishQueued(ctx, execution)
}

func (o *Orchestrator) publishQueued(ctx context.Context, execution *models.WorkflowExecution) error {
	event := events.ExecutionQueued{
		BaseEvent:   events.NewBaseEvent(events.ExecutionQueuedEvent, execution.WorkflowID),
		ExecutionID: execution.ID,
		TriggerData: execution.TriggerData,
	}
	if execution.TriggerID != nil {
		event.TriggerID = *execution.TriggerID
	}

	return o.bus.Publish(ctx, execution.WorkflowID, event)
}

func (o *Orchestrator) appendLog(ctx context.Context, executionID string, level models.LogLevel, message, category string, details map[string]any) {
	err := o.store.ExecutionRepository().AppendLog(ctx, &models.ExecutionLog{
		ID:          uuid.New().String(),
		ExecutionID: executionID,
		Level:       level,
		Message:     message,
		Details:     details,
		Category:    category,
		CreatedAt:   o.now(),
	})
	if err != nil {
		o.logger.ErrorContext(ctx, "Failed to append execution log",
			"execution_id", executionID, "error", err)
	}
}
