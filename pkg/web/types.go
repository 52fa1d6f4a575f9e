// Package web provides the HTTP API for workflow management, execution
// control, and analytics.
package web

import "github.com/cascadehq/cascade/pkg/models"

// CreateWorkflowRequest represents the request body for creating a new workflow.
type CreateWorkflowRequest struct {
	Name           string         `json:"name"                validate:"required,min=3"`
	Description    string         `json:"description"`
	OrganizationID string         `json:"organization_id"     validate:"required"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// UpdateWorkflowRequest represents the request body for updating a workflow.
// All fields are optional to support partial updates.
type UpdateWorkflowRequest struct {
	Name        *string        `json:"name,omitempty"        validate:"omitempty,min=3"`
	Description *string        `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// UpdateWorkflowStatusRequest moves a workflow through its lifecycle.
type UpdateWorkflowStatusRequest struct {
	Status models.WorkflowStatus `json:"status" validate:"required,oneof=draft active paused archived"`
}

// NodeRequest represents the request body for creating or replacing a node.
type NodeRequest struct {
	NodeID         string         `json:"node_id"         validate:"required"`
	Type           string         `json:"type"            validate:"required"`
	Name           string         `json:"name"            validate:"required,min=1"`
	Config         map[string]any `json:"config"`
	PositionX      int            `json:"position_x"`
	PositionY      int            `json:"position_y"`
	ExecutionOrder int            `json:"execution_order"`
	IsOptional     bool           `json:"is_optional"`
	RetryLimit     int            `json:"retry_limit"     validate:"min=0,max=10"`
	TimeoutMs      int64          `json:"timeout_ms"      validate:"min=0"`
}

func (r *NodeRequest) toModel(workflowID string) *models.WorkflowNode {
	return &models.WorkflowNode{
		WorkflowID:     workflowID,
		NodeID:         r.NodeID,
		Type:           models.NodeType(r.Type),
		Name:           r.Name,
		Config:         r.Config,
		PositionX:      r.PositionX,
		PositionY:      r.PositionY,
		ExecutionOrder: r.ExecutionOrder,
		IsOptional:     r.IsOptional,
		RetryLimit:     r.RetryLimit,
		TimeoutMs:      r.TimeoutMs,
	}
}

// ConnectionRequest represents the request body for creating or replacing an
// edge.
type ConnectionRequest struct {
	EdgeID         string                 `json:"edge_id"          validate:"required"`
	SourceNodeID   string                 `json:"source_node_id"   validate:"required"`
	TargetNodeID   string                 `json:"target_node_id"   validate:"required"`
	SourceHandle   string                 `json:"source_handle,omitempty"`
	TargetHandle   string                 `json:"target_handle,omitempty"`
	Conditions     *models.ConditionGroup `json:"conditions,omitempty"`
	ExecutionOrder int                    `json:"execution_order"`
}

func (r *ConnectionRequest) toModel(workflowID string) *models.WorkflowConnection {
	return &models.WorkflowConnection{
		WorkflowID:     workflowID,
		EdgeID:         r.EdgeID,
		SourceNodeID:   r.SourceNodeID,
		TargetNodeID:   r.TargetNodeID,
		SourceHandle:   r.SourceHandle,
		TargetHandle:   r.TargetHandle,
		Conditions:     r.Conditions,
		ExecutionOrder: r.ExecutionOrder,
	}
}

// TriggerRequest represents the request body for creating or updating a
// trigger binding.
type TriggerRequest struct {
	Type       string                 `json:"type"        validate:"required,oneof=event schedule manual"`
	Name       string                 `json:"name"        validate:"required,min=1"`
	Module     string                 `json:"module,omitempty"`
	EventType  string                 `json:"event_type,omitempty"`
	EntityType string                 `json:"entity_type,omitempty"`
	Conditions *models.ConditionGroup `json:"conditions,omitempty"`
	DelayMs    int64                  `json:"delay_ms"    validate:"min=0"`
	IsActive   bool                   `json:"is_active"`

	CronExpression string `json:"cron_expression,omitempty"`
	Frequency      string `json:"frequency,omitempty"       validate:"omitempty,oneof=hourly daily weekly monthly"`
	Timezone       string `json:"timezone,omitempty"`
}

// TriggerExecutionRequest starts a workflow run manually.
type TriggerExecutionRequest struct {
	TriggerData map[string]any `json:"trigger_data,omitempty"`
	Variables   map[string]any `json:"variables,omitempty"`
	Priority    string         `json:"priority,omitempty"    validate:"omitempty,oneof=low normal high"`
	DelayMs     int64          `json:"delay_ms"              validate:"min=0"`
}

// CancelExecutionRequest carries the operator's reason for the audit log.
type CancelExecutionRequest struct {
	Reason string `json:"reason,omitempty"`
}

// BulkExecutionsRequest applies one control action to many executions.
type BulkExecutionsRequest struct {
	Action       string   `json:"action"        validate:"required,oneof=cancel pause resume"`
	ExecutionIDs []string `json:"execution_ids" validate:"required,min=1,max=100"`
}
