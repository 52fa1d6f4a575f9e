// Package condition provides the branching node: a condition tree evaluated
// against the execution variables selects the true or false edge.
package condition

import (
	"context"
	"fmt"

	"github.com/cascadehq/cascade/pkg/conditions"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/nodes"
)

// Handler implements the condition node.
type Handler struct{}

// NewHandler creates a condition node handler.
func NewHandler() *Handler {
	return &Handler{}
}

// Type returns the node type.
func (h *Handler) Type() models.NodeType {
	return models.NodeTypeCondition
}

// Schema returns the JSON schema for condition node configuration.
func (h *Handler) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"conditions": map[string]any{
				"type":        "object",
				"description": "Condition tree evaluated against execution variables and trigger data.",
			},
		},
		"required": []string{"conditions"},
	}
}

// Validate checks the condition tree decodes and carries predicates.
func (h *Handler) Validate(config map[string]any) error {
	group, err := nodes.ConfigConditionGroup(config, "conditions")
	if err != nil {
		return err
	}

	if group.IsEmpty() {
		return fmt.Errorf("%w: empty condition tree", nodes.ErrInvalidConfig)
	}

	return nil
}

// Execute evaluates the tree and routes to the matching branch edge.
func (h *Handler) Execute(_ context.Context, ec nodes.ExecContext) (*nodes.Result, error) {
	group, err := nodes.ConfigConditionGroup(ec.Node.Config, "conditions")
	if err != nil {
		return nil, err
	}

	doc := ec.Variables.Snapshot()
	if ec.TriggerData != nil {
		doc["trigger"] = ec.TriggerData
	}

	outcome, err := conditions.Evaluate(group, doc)
	if err != nil {
		return nil, fmt.Errorf("condition evaluation failed: %w", err)
	}

	branch := models.BranchFalse
	if outcome {
		branch = models.BranchTrue
	}

	return &nodes.Result{
		Output: map[string]any{"outcome": outcome},
		Branch: branch,
	}, nil
}
