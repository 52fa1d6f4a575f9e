// Package persistence provides standardized error types for storage operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrNodeNotFound indicates a node was not found by its natural key.
	ErrNodeNotFound = errors.New("node not found")

	// ErrConnectionNotFound indicates a connection was not found by its natural key.
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrTriggerNotFound indicates a trigger was not found by the given identifier.
	ErrTriggerNotFound = errors.New("trigger not found")

	// ErrExecutionNotFound indicates an execution was not found by the given identifier.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrNodeExecutionNotFound indicates a node execution record was not found.
	ErrNodeExecutionNotFound = errors.New("node execution not found")

	// ErrScheduleNotFound indicates a schedule entry was not found.
	ErrScheduleNotFound = errors.New("schedule entry not found")

	// ErrDuplicateNode indicates a node with the same (workflow_id, node_id) already exists.
	ErrDuplicateNode = errors.New("duplicate node id")

	// ErrDuplicateConnection indicates a connection with the same (workflow_id, edge_id) already exists.
	ErrDuplicateConnection = errors.New("duplicate edge id")
)

// WorkflowError wraps workflow-related errors with operation context.
type WorkflowError struct {
	Op         string // Operation being performed (e.g., "GetByID", "Save")
	WorkflowID string
	Err        error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s operation failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

func (e *WorkflowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewWorkflowError creates a new workflow error with context.
func NewWorkflowError(op, workflowID string, err error) *WorkflowError {
	return &WorkflowError{Op: op, WorkflowID: workflowID, Err: err}
}

// ExecutionError wraps execution-related errors with operation context.
type ExecutionError struct {
	Op          string
	ExecutionID string
	NodeID      string // Optional, set for node execution operations
	Err         error
}

func (e *ExecutionError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s operation failed for node %s of execution %s: %v", e.Op, e.NodeID, e.ExecutionID, e.Err)
	}

	return fmt.Sprintf("%s operation failed for execution %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewExecutionError creates a new execution error with context.
func NewExecutionError(op, executionID string, err error) *ExecutionError {
	return &ExecutionError{Op: op, ExecutionID: executionID, Err: err}
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsNodeNotFound checks if an error indicates a node was not found.
func IsNodeNotFound(err error) bool {
	return errors.Is(err, ErrNodeNotFound)
}

// IsConnectionNotFound checks if an error indicates a connection was not found.
func IsConnectionNotFound(err error) bool {
	return errors.Is(err, ErrConnectionNotFound)
}

// IsTriggerNotFound checks if an error indicates a trigger was not found.
func IsTriggerNotFound(err error) bool {
	return errors.Is(err, ErrTriggerNotFound)
}

// IsExecutionNotFound checks if an error indicates an execution was not found.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsDuplicateKey checks if an error indicates a natural key conflict.
func IsDuplicateKey(err error) bool {
	return errors.Is(err, ErrDuplicateNode) || errors.Is(err, ErrDuplicateConnection)
}
