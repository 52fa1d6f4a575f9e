// Package loop provides the loop node: it plans per-item iteration of the
// downstream subgraph. The orchestrator executes the plan; the handler only
// selects and bounds the items.
package loop

import (
	"context"
	"fmt"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/nodes"
)

// DefaultMaxIterations bounds loops whose config does not set a limit.
const DefaultMaxIterations = 100

// Error policies for partial iteration failures.
const (
	OnErrorFail     = "fail"
	OnErrorContinue = "continue"
)

// Handler implements the loop node.
type Handler struct{}

// NewHandler creates a loop node handler.
func NewHandler() *Handler {
	return &Handler{}
}

// Type returns the node type.
func (h *Handler) Type() models.NodeType {
	return models.NodeTypeLoop
}

// Schema returns the JSON schema for loop node configuration.
func (h *Handler) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"source_key": map[string]any{
				"type":        "string",
				"description": "Variable holding the array to iterate.",
				"minLength":   1,
			},
			"item_variable": map[string]any{
				"type":        "string",
				"description": "Variable bound to the current item each iteration.",
				"minLength":   1,
			},
			"index_variable": map[string]any{
				"type":        "string",
				"description": "Variable bound to the zero-based iteration index.",
			},
			"max_iterations": map[string]any{
				"type":    "integer",
				"minimum": 1,
			},
			"result_key": map[string]any{
				"type":        "string",
				"description": "Variable receiving the per-iteration results array.",
			},
			"on_error": map[string]any{
				"type": "string",
				"enum": []string{OnErrorFail, OnErrorContinue},
			},
		},
		"required": []string{"source_key", "item_variable"},
	}
}

// Validate checks the iteration config.
func (h *Handler) Validate(config map[string]any) error {
	if _, err := nodes.RequireConfigString(config, "source_key"); err != nil {
		return err
	}

	if _, err := nodes.RequireConfigString(config, "item_variable"); err != nil {
		return err
	}

	if max := nodes.ConfigInt(config, "max_iterations", DefaultMaxIterations); max < 1 {
		return fmt.Errorf("%w: max_iterations must be at least 1", nodes.ErrInvalidConfig)
	}

	switch policy := nodes.ConfigString(config, "on_error", OnErrorFail); policy {
	case OnErrorFail, OnErrorContinue:
	default:
		return fmt.Errorf("%w: unknown on_error policy %q", nodes.ErrInvalidConfig, policy)
	}

	return nil
}

// Execute reads the source array and returns the iteration plan. The items
// are capped at max_iterations; an empty source yields an empty plan and the
// downstream subgraph is skipped.
func (h *Handler) Execute(_ context.Context, ec nodes.ExecContext) (*nodes.Result, error) {
	config := ec.Node.Config

	sourceKey, err := nodes.RequireConfigString(config, "source_key")
	if err != nil {
		return nil, err
	}

	itemVariable, err := nodes.RequireConfigString(config, "item_variable")
	if err != nil {
		return nil, err
	}

	items, err := ec.Variables.GetArray(sourceKey)
	if err != nil {
		return nil, err
	}

	maxIterations := nodes.ConfigInt(config, "max_iterations", DefaultMaxIterations)
	if len(items) > maxIterations {
		items = items[:maxIterations]
	}

	return &nodes.Result{
		Output: map[string]any{"iterations": len(items)},
		Loop: &nodes.LoopPlan{
			Items:           items,
			ItemVariable:    itemVariable,
			IndexVariable:   nodes.ConfigString(config, "index_variable", ""),
			ResultKey:       nodes.ConfigString(config, "result_key", ""),
			ContinueOnError: nodes.ConfigString(config, "on_error", OnErrorFail) == OnErrorContinue,
		},
	}, nil
}
