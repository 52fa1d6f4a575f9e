package models

// NodeType identifies the handler responsible for a node.
type NodeType string

const (
	NodeTypeTrigger   NodeType = "trigger" // Virtual graph entry, never executed
	NodeTypeAction    NodeType = "action"
	NodeTypeQuery     NodeType = "query"
	NodeTypeLoop      NodeType = "loop"
	NodeTypeFilter    NodeType = "filter"
	NodeTypeCondition NodeType = "condition"
	NodeTypeDelay     NodeType = "delay"
	NodeTypeSchedule  NodeType = "schedule"
)

// AllNodeTypes lists every executable and virtual node type.
var AllNodeTypes = []NodeType{
	NodeTypeTrigger,
	NodeTypeAction,
	NodeTypeQuery,
	NodeTypeLoop,
	NodeTypeFilter,
	NodeTypeCondition,
	NodeTypeDelay,
	NodeTypeSchedule,
}

// Valid reports whether t is a known node type.
func (t NodeType) Valid() bool {
	for _, nt := range AllNodeTypes {
		if nt == t {
			return true
		}
	}

	return false
}

// WorkflowNode represents a node instance in a workflow graph. NodeID is the
// external graph identifier assigned by the visual editor and, together with
// WorkflowID, forms the natural key used by bulk canvas saves.
type WorkflowNode struct {
	ID         string         `json:"id"`
	WorkflowID string         `json:"workflow_id"     validate:"required"`
	NodeID     string         `json:"node_id"         validate:"required"`
	Type       NodeType       `json:"type"            validate:"required"`
	Name       string         `json:"name"            validate:"required,min=1"`
	Config     map[string]any `json:"config"`
	PositionX  int            `json:"position_x"`
	PositionY  int            `json:"position_y"`

	ExecutionOrder int   `json:"execution_order"`
	IsOptional     bool  `json:"is_optional"`
	RetryLimit     int   `json:"retry_limit"     validate:"min=0,max=10"`
	TimeoutMs      int64 `json:"timeout_ms"      validate:"min=0"`
}

// IsExecutable reports whether the orchestrator runs a handler for this node.
// Trigger nodes are the virtual graph entry and are never executed.
func (n *WorkflowNode) IsExecutable() bool {
	return n.Type != NodeTypeTrigger
}

// WorkflowConnection is a directed edge between two nodes of the same
// workflow. EdgeID is the external graph identifier; WorkflowID+EdgeID is the
// natural key for bulk canvas saves.
type WorkflowConnection struct {
	ID           string `json:"id"`
	WorkflowID   string `json:"workflow_id"    validate:"required"`
	EdgeID       string `json:"edge_id"        validate:"required"`
	SourceNodeID string `json:"source_node_id" validate:"required"`
	TargetNodeID string `json:"target_node_id" validate:"required"`
	SourceHandle string `json:"source_handle,omitempty"`
	TargetHandle string `json:"target_handle,omitempty"`

	// Conditions gates traversal of this edge; condition nodes route on the
	// branch handles "true" and "false" instead.
	Conditions     *ConditionGroup `json:"conditions,omitempty"`
	ExecutionOrder int             `json:"execution_order"`
}

// Branch handles used by condition and filter nodes to prune edges.
const (
	BranchTrue  = "true"
	BranchFalse = "false"
)
