// Package models defines the core domain models for event-driven workflow automation.
package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "draft"    // Editable, not triggerable
	WorkflowStatusActive   WorkflowStatus = "active"   // Triggerable
	WorkflowStatusPaused   WorkflowStatus = "paused"   // Temporarily not triggerable
	WorkflowStatusArchived WorkflowStatus = "archived" // Historical, read only
)

// Workflow represents a node-based automation owned by one organization.
// Aggregate counters are incremented by the orchestrator and only reset by
// an explicit recompute.
type Workflow struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"        validate:"required"`
	Name           string         `json:"name"                   validate:"required,min=3"`
	Description    string         `json:"description"`
	Status         WorkflowStatus `json:"status"                 validate:"required"`
	Nodes          []*WorkflowNode       `json:"nodes,omitempty"`
	Connections    []*WorkflowConnection `json:"connections,omitempty"`
	Triggers       []*WorkflowTrigger    `json:"triggers,omitempty"`

	TotalExecutions      int64      `json:"total_executions"`
	SuccessfulExecutions int64      `json:"successful_executions"`
	FailedExecutions     int64      `json:"failed_executions"`
	LastExecutedAt       *time.Time `json:"last_executed_at,omitempty"`

	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt *time.Time     `json:"deleted_at,omitempty"`
}

// IsExecutable reports whether triggers may start new executions.
func (w *Workflow) IsExecutable() bool {
	return w.Status == WorkflowStatusActive && w.DeletedAt == nil
}
