package models

import "time"

// ExecutionStatus is the state machine of one workflow run.
//
//	pending -> running -> {completed, failed, cancelled}
//	running <-> paused (bulk actions only)
//	failed  -> pending (explicit retry)
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
	ExecutionStatusPaused    ExecutionStatus = "paused"
)

// Terminal reports whether no further transitions are accepted except retry.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// ExecutionPriority orders queued executions within a worker pool.
type ExecutionPriority string

const (
	PriorityLow    ExecutionPriority = "low"
	PriorityNormal ExecutionPriority = "normal"
	PriorityHigh   ExecutionPriority = "high"
)

// WorkflowExecution is one run instance of a workflow. NodeSnapshot freezes
// the node configs at trigger time so edits to the workflow never alter an
// in-flight run.
type WorkflowExecution struct {
	ID             string            `json:"id"`
	WorkflowID     string            `json:"workflow_id"     validate:"required"`
	OrganizationID string            `json:"organization_id" validate:"required"`
	TriggerID      *string           `json:"trigger_id,omitempty"`
	Status         ExecutionStatus   `json:"status"`
	Priority       ExecutionPriority `json:"priority"`
	TriggerData    map[string]any    `json:"trigger_data,omitempty"`

	Progress   int   `json:"progress"` // 0..100, monotonic while running
	RetryCount int   `json:"retry_count"`
	MaxRetries int   `json:"max_retries"`
	DurationMs *int64 `json:"duration_ms,omitempty"`

	Error        string         `json:"error,omitempty"`
	ErrorDetails map[string]any `json:"error_details,omitempty"`

	NodeSnapshot []*WorkflowNode `json:"node_snapshot,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`
}

// CanCancel reports whether a cancel request is accepted in this state.
func (e *WorkflowExecution) CanCancel() bool {
	switch e.Status {
	case ExecutionStatusPending, ExecutionStatusRunning, ExecutionStatusPaused:
		return true
	default:
		return false
	}
}

// CanRetry reports whether a retry request is accepted: failed only, with
// retry budget remaining.
func (e *WorkflowExecution) CanRetry() bool {
	return e.Status == ExecutionStatusFailed && e.RetryCount < e.MaxRetries
}

// CanPause reports whether the execution may be paused.
func (e *WorkflowExecution) CanPause() bool {
	return e.Status == ExecutionStatusRunning || e.Status == ExecutionStatusPending
}

// CanResume reports whether the execution may be resumed.
func (e *WorkflowExecution) CanResume() bool {
	return e.Status == ExecutionStatusPaused
}

// NodeStatus is the state of one node within an execution.
type NodeStatus string

const (
	NodeStatusPending   NodeStatus = "pending"
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusCompleted NodeStatus = "completed"
	NodeStatusFailed    NodeStatus = "failed"
	NodeStatusSkipped   NodeStatus = "skipped"   // Pruned branch, never an error
	NodeStatusCancelled NodeStatus = "cancelled" // Execution aborted before the node ran
)

// Settled reports whether the node contributes to progress and will not run
// again within the current attempt.
func (s NodeStatus) Settled() bool {
	return s == NodeStatusCompleted || s == NodeStatusSkipped
}

// NodeExecution is the execution record of a single node within one run.
type NodeExecution struct {
	ID          string     `json:"id"`
	ExecutionID string     `json:"execution_id" validate:"required"`
	NodeID      string     `json:"node_id"      validate:"required"`
	Status      NodeStatus `json:"status"`

	ExecutionOrder int    `json:"execution_order"`
	RetryCount     int    `json:"retry_count"`
	MaxRetries     int    `json:"max_retries"`
	DurationMs     *int64 `json:"duration_ms,omitempty"`

	Input  map[string]any `json:"input,omitempty"`
	Output map[string]any `json:"output,omitempty"`
	Error  string         `json:"error,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// DelayWakeup is the durable record of a suspended DELAY (or schedule wait).
// The scheduler polls ResumeAt and re-queues the owning execution; suspension
// never busy-waits in a worker.
type DelayWakeup struct {
	ID              string    `json:"id"`
	ExecutionID     string    `json:"execution_id"`
	NodeExecutionID string    `json:"node_execution_id"`
	ResumeAt        time.Time `json:"resume_at"`
	CreatedAt       time.Time `json:"created_at"`
}
