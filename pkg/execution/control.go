package execution

import (
	"context"
	"fmt"

	"github.com/cascadehq/cascade/pkg/events"
	"github.com/cascadehq/cascade/pkg/models"
)

// BulkAction is a control verb applied to many executions at once.
type BulkAction string

const (
	BulkActionCancel BulkAction = "cancel"
	BulkActionPause  BulkAction = "pause"
	BulkActionResume BulkAction = "resume"
)

// BulkResult reports the outcome for one execution id of a bulk request.
// Each id is handled independently; one failure never rolls back the rest.
type BulkResult struct {
	ExecutionID string `json:"execution_id"`
	OK          bool   `json:"ok"`
	Error       string `json:"error,omitempty"`
}

// Cancel aborts an execution from pending, running, or paused. Running
// workers observe the new status between node steps and stop cooperatively.
func (o *Orchestrator) Cancel(ctx context.Context, executionID, reason string) error {
	repo := o.store.ExecutionRepository()

	execution, err := repo.GetByID(ctx, executionID)
	if err != nil {
		return err
	}

	if !execution.CanCancel() {
		return fmt.Errorf("%w: cannot cancel %s execution %s", ErrInvalidTransition, execution.Status, executionID)
	}

	now := o.now()
	execution.Status = models.ExecutionStatusCancelled
	execution.CompletedAt = &now

	if execution.StartedAt != nil {
		duration := now.Sub(*execution.StartedAt).Milliseconds()
		execution.DurationMs = &duration
	}

	if err := repo.Update(ctx, execution); err != nil {
		return err
	}

	nodeExecutions, err := repo.NodeExecutions(ctx, executionID)
	if err != nil {
		return err
	}

	for _, nodeExecution := range nodeExecutions {
		if nodeExecution.Status != models.NodeStatusPending && nodeExecution.Status != models.NodeStatusRunning {
			continue
		}

		nodeExecution.Status = models.NodeStatusCancelled
		if err := repo.UpdateNodeExecution(ctx, nodeExecution); err != nil {
			return err
		}
	}

	o.appendLog(ctx, executionID, models.LogLevelInfo, "execution cancelled", models.LogCategoryLifecycle, map[string]any{
		"reason": reason,
	})

	event := events.ExecutionCancelled{
		BaseEvent:   events.NewBaseEvent(events.ExecutionCancelledEvent, execution.WorkflowID),
		ExecutionID: execution.ID,
		Reason:      reason,
	}

	return o.bus.Publish(ctx, execution.WorkflowID, event)
}

// Pause holds a pending or running execution. Workers stop at the next node
// boundary; nothing in flight is interrupted.
func (o *Orchestrator) Pause(ctx context.Context, executionID string) error {
	repo := o.store.ExecutionRepository()

	execution, err := repo.GetByID(ctx, executionID)
	if err != nil {
		return err
	}

	if !execution.CanPause() {
		return fmt.Errorf("%w: cannot pause %s execution %s", ErrInvalidTransition, execution.Status, executionID)
	}

	execution.Status = models.ExecutionStatusPaused
	if err := repo.Update(ctx, execution); err != nil {
		return err
	}

	o.appendLog(ctx, executionID, models.LogLevelInfo, "execution paused", models.LogCategoryLifecycle, nil)

	event := events.ExecutionPaused{
		BaseEvent:   events.NewBaseEvent(events.ExecutionPausedEvent, execution.WorkflowID),
		ExecutionID: execution.ID,
	}

	return o.bus.Publish(ctx, execution.WorkflowID, event)
}

// Resume re-queues a paused execution.
func (o *Orchestrator) Resume(ctx context.Context, executionID string) error {
	repo := o.store.ExecutionRepository()

	execution, err := repo.GetByID(ctx, executionID)
	if err != nil {
		return err
	}

	if !execution.CanResume() {
		return fmt.Errorf("%w: cannot resume %s execution %s", ErrInvalidTransition, execution.Status, executionID)
	}

	execution.Status = models.ExecutionStatusPending
	if err := repo.Update(ctx, execution); err != nil {
		return err
	}

	o.appendLog(ctx, executionID, models.LogLevelInfo, "execution resumed", models.LogCategoryLifecycle, nil)

	event := events.ExecutionResumed{
		BaseEvent:   events.NewBaseEvent(events.ExecutionResumedEvent, execution.WorkflowID),
		ExecutionID: execution.ID,
	}
	if err := o.bus.Publish(ctx, execution.WorkflowID, event); err != nil {
		return err
	}

	return o.publishQueued(ctx, execution)
}

// Retry re-queues a failed execution. Completed nodes keep their status and
// never re-fire; failed and cancelled nodes go back to pending with a fresh
// node retry budget.
func (o *Orchestrator) Retry(ctx context.Context, executionID string) error {
	repo := o.store.ExecutionRepository()

	execution, err := repo.GetByID(ctx, executionID)
	if err != nil {
		return err
	}

	if execution.Status != models.ExecutionStatusFailed {
		return fmt.Errorf("%w: cannot retry %s execution %s", ErrInvalidTransition, execution.Status, executionID)
	}

	if !execution.CanRetry() {
		return fmt.Errorf("%w: execution %s used %d of %d retries",
			ErrRetryLimitExceeded, executionID, execution.RetryCount, execution.MaxRetries)
	}

	nodeExecutions, err := repo.NodeExecutions(ctx, executionID)
	if err != nil {
		return err
	}

	for _, nodeExecution := range nodeExecutions {
		if nodeExecution.Status != models.NodeStatusFailed && nodeExecution.Status != models.NodeStatusCancelled {
			continue
		}

		nodeExecution.Status = models.NodeStatusPending
		nodeExecution.RetryCount = 0
		nodeExecution.Error = ""
		nodeExecution.StartedAt = nil
		nodeExecution.CompletedAt = nil
		nodeExecution.DurationMs = nil

		if err := repo.UpdateNodeExecution(ctx, nodeExecution); err != nil {
			return err
		}
	}

	execution.RetryCount++
	execution.Status = models.ExecutionStatusPending
	execution.Progress = 0
	execution.Error = ""
	execution.ErrorDetails = nil
	execution.FailedAt = nil
	execution.CompletedAt = nil
	execution.DurationMs = nil

	if err := repo.Update(ctx, execution); err != nil {
		return err
	}

	o.appendLog(ctx, executionID, models.LogLevelInfo, "execution retried", models.LogCategoryLifecycle, map[string]any{
		"attempt": execution.RetryCount,
	})

	event := events.ExecutionRetried{
		BaseEvent:   events.NewBaseEvent(events.ExecutionRetriedEvent, execution.WorkflowID),
		ExecutionID: execution.ID,
		Attempt:     execution.RetryCount,
	}
	if err := o.bus.Publish(ctx, execution.WorkflowID, event); err != nil {
		return err
	}

	return o.publishQueued(ctx, execution)
}

// Bulk applies one control action to many executions, atomically per id.
func (o *Orchestrator) Bulk(ctx context.Context, action BulkAction, executionIDs []string) ([]BulkResult, error) {
	results := make([]BulkResult, 0, len(executionIDs))

	for _, executionID := range executionIDs {
		var err error

		switch action {
		case BulkActionCancel:
			err = o.Cancel(ctx, executionID, "bulk cancel")
		case BulkActionPause:
			err = o.Pause(ctx, executionID)
		case BulkActionResume:
			err = o.Resume(ctx, executionID)
		default:
			return nil, fmt.Errorf("%w: unknown bulk action %q", ErrInvalidTransition, action)
		}

		result := BulkResult{ExecutionID: executionID, OK: err == nil}
		if err != nil {
			result.Error = err.Error()
		}

		results = append(results, result)
	}

	return results, nil
}
