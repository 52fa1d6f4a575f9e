package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/cascadehq/cascade/pkg/execution"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
)

// ErrExecutionNotFound is returned when an execution is not found.
var ErrExecutionNotFound = persistence.ErrExecutionNotFound

// TriggerExecutionRequest starts a workflow manually through the API.
type TriggerExecutionRequest struct {
	TriggerData map[string]any
	Variables   map[string]any
	Priority    models.ExecutionPriority
	DelayMs     int64
}

// ExecutionDetail is one execution with its node records, variables, and log.
type ExecutionDetail struct {
	Execution      *models.WorkflowExecution   `json:"execution"`
	NodeExecutions []*models.NodeExecution     `json:"node_executions"`
	Variables      []*models.ExecutionVariable `json:"variables"`
	Logs           []*models.ExecutionLog      `json:"logs"`
}

// ListExecutionsRequest filters execution history reads.
type ListExecutionsRequest struct {
	WorkflowID string
	Status     *models.ExecutionStatus
	Limit      int
	Offset     int
}

// Execution exposes run control to the API. The state machine itself lives
// in the orchestrator; this layer validates requests and maps orchestrator
// errors to service errors.
type Execution struct {
	persistence  persistence.Persistence
	orchestrator *execution.Orchestrator
}

// NewExecution creates a new execution service.
func NewExecution(persistence persistence.Persistence, orchestrator *execution.Orchestrator) *Execution {
	return &Execution{
		persistence:  persistence,
		orchestrator: orchestrator,
	}
}

// Trigger starts a workflow manually. The created execution is queued; a
// worker picks it up asynchronously.
func (e *Execution) Trigger(ctx context.Context, workflowID string, req *TriggerExecutionRequest) (*models.WorkflowExecution, error) {
	if req.DelayMs < 0 {
		return nil, NewValidationError("TriggerExecution", "INVALID_DELAY",
			"delay_ms cannot be negative", ErrInvalidRequest)
	}

	priority := req.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}

	run, err := e.orchestrator.Start(ctx, execution.StartRequest{
		WorkflowID:  workflowID,
		TriggerData: req.TriggerData,
		Variables:   req.Variables,
		Priority:    priority,
		DelayMs:     req.DelayMs,
	})
	if err != nil {
		return nil, mapOrchestratorError(err)
	}

	return run, nil
}

// FetchByID retrieves one execution with its node records, variables, and log.
func (e *Execution) FetchByID(ctx context.Context, executionID string) (*ExecutionDetail, error) {
	repo := e.persistence.ExecutionRepository()

	run, err := repo.GetByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	nodeExecutions, err := repo.NodeExecutions(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load node executions: %w", err)
	}

	variables, err := repo.Variables(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load variables: %w", err)
	}

	logs, err := repo.Logs(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load logs: %w", err)
	}

	return &ExecutionDetail{
		Execution:      run,
		NodeExecutions: nodeExecutions,
		Variables:      variables,
		Logs:           logs,
	}, nil
}

// List returns execution history for a workflow, newest first.
func (e *Execution) List(ctx context.Context, req ListExecutionsRequest) ([]*models.WorkflowExecution, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	if req.Limit > 100 {
		req.Limit = 100
	}

	if req.Offset < 0 {
		req.Offset = 0
	}

	return e.persistence.ExecutionRepository().List(ctx, persistence.ListExecutionsOptions{
		WorkflowID: req.WorkflowID,
		Status:     req.Status,
		Limit:      req.Limit,
		Offset:     req.Offset,
	})
}

// Cancel aborts an execution.
func (e *Execution) Cancel(ctx context.Context, executionID, reason string) error {
	return mapOrchestratorError(e.orchestrator.Cancel(ctx, executionID, reason))
}

// Pause suspends a pending or running execution.
func (e *Execution) Pause(ctx context.Context, executionID string) error {
	return mapOrchestratorError(e.orchestrator.Pause(ctx, executionID))
}

// Resume re-queues a paused execution.
func (e *Execution) Resume(ctx context.Context, executionID string) error {
	return mapOrchestratorError(e.orchestrator.Resume(ctx, executionID))
}

// Retry re-queues a failed execution from its first non-completed node.
func (e *Execution) Retry(ctx context.Context, executionID string) error {
	return mapOrchestratorError(e.orchestrator.Retry(ctx, executionID))
}

// Bulk applies one control action to many executions, independently per id.
func (e *Execution) Bulk(ctx context.Context, action string, executionIDs []string) ([]execution.BulkResult, error) {
	switch execution.BulkAction(action) {
	case execution.BulkActionCancel, execution.BulkActionPause, execution.BulkActionResume:
	default:
		return nil, NewValidationError("BulkExecutions", "INVALID_BULK_ACTION",
			fmt.Sprintf("unknown action %q", action), ErrInvalidBulkAction)
	}

	if len(executionIDs) == 0 {
		return nil, NewValidationError("BulkExecutions", "INVALID_BULK_ACTION",
			"execution_ids cannot be empty", ErrInvalidBulkAction)
	}

	return e.orchestrator.Bulk(ctx, execution.BulkAction(action), executionIDs)
}

// mapOrchestratorError translates orchestrator sentinels into service errors
// so the HTTP layer maps them to the right status codes.
func mapOrchestratorError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, execution.ErrWorkflowNotExecutable):
		return &ServiceError{Op: "TriggerExecution", Code: "WORKFLOW_NOT_ACTIVE", Message: err.Error(), Err: ErrWorkflowNotTriggerable}
	case errors.Is(err, execution.ErrInvalidTransition), errors.Is(err, execution.ErrRetryLimitExceeded):
		return &ServiceError{Op: "ControlExecution", Code: "INVALID_TRANSITION", Message: err.Error(), Err: ErrExecutionNotControllable}
	case errors.Is(err, execution.ErrInvalidGraph), errors.Is(err, execution.ErrCycleDetected):
		return &ServiceError{Op: "TriggerExecution", Code: "INVALID_GRAPH", Message: err.Error(), Err: ErrInvalidRequest}
	default:
		return err
	}
}
