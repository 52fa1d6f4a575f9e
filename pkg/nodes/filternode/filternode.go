// Package filternode provides the filter node: it narrows an array variable
// with a condition tree and routes on whether anything survived.
package filternode

import (
	"context"
	"fmt"

	"github.com/cascadehq/cascade/pkg/conditions"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/nodes"
)

// Handler implements the filter node.
type Handler struct{}

// NewHandler creates a filter node handler.
func NewHandler() *Handler {
	return &Handler{}
}

// Type returns the node type.
func (h *Handler) Type() models.NodeType {
	return models.NodeTypeFilter
}

// Schema returns the JSON schema for filter node configuration.
func (h *Handler) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"source_key": map[string]any{
				"type":        "string",
				"description": "Variable holding the array to filter.",
				"minLength":   1,
			},
			"result_key": map[string]any{
				"type":        "string",
				"description": "Variable receiving the matching items.",
				"minLength":   1,
			},
			"fallback_key": map[string]any{
				"type":        "string",
				"description": "Variable set to true when nothing matched.",
			},
			"conditions": map[string]any{
				"type":        "object",
				"description": "Condition tree applied to each item.",
			},
		},
		"required": []string{"source_key", "result_key", "conditions"},
	}
}

// Validate checks the referenced keys and the condition tree.
func (h *Handler) Validate(config map[string]any) error {
	if _, err := nodes.RequireConfigString(config, "source_key"); err != nil {
		return err
	}

	if _, err := nodes.RequireConfigString(config, "result_key"); err != nil {
		return err
	}

	group, err := nodes.ConfigConditionGroup(config, "conditions")
	if err != nil {
		return err
	}

	if group.IsEmpty() {
		return fmt.Errorf("%w: empty condition tree", nodes.ErrInvalidConfig)
	}

	return nil
}

// Execute filters the source array item by item. Items that are not objects
// are matched against the tree under the "item" field.
func (h *Handler) Execute(_ context.Context, ec nodes.ExecContext) (*nodes.Result, error) {
	config := ec.Node.Config

	sourceKey, err := nodes.RequireConfigString(config, "source_key")
	if err != nil {
		return nil, err
	}

	resultKey, err := nodes.RequireConfigString(config, "result_key")
	if err != nil {
		return nil, err
	}

	group, err := nodes.ConfigConditionGroup(config, "conditions")
	if err != nil {
		return nil, err
	}

	items, err := ec.Variables.GetArray(sourceKey)
	if err != nil {
		return nil, err
	}

	matched := make([]any, 0, len(items))

	for _, item := range items {
		doc, ok := item.(map[string]any)
		if !ok {
			doc = map[string]any{"item": item}
		}

		keep, err := conditions.Evaluate(group, doc)
		if err != nil {
			return nil, fmt.Errorf("filter evaluation failed: %w", err)
		}

		if keep {
			matched = append(matched, item)
		}
	}

	ec.Variables.Set(resultKey, matched, ec.Node.NodeID)

	branch := models.BranchTrue

	if len(matched) == 0 {
		branch = models.BranchFalse

		if fallbackKey := nodes.ConfigString(config, "fallback_key", ""); fallbackKey != "" {
			ec.Variables.Set(fallbackKey, true, ec.Node.NodeID)
		}
	}

	return &nodes.Result{
		Output: map[string]any{
			"matched": len(matched),
			"total":   len(items),
		},
		Branch: branch,
	}, nil
}
