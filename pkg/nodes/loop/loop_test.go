package loop_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/nodes"
	"github.com/cascadehq/cascade/pkg/nodes/loop"
	"github.com/cascadehq/cascade/pkg/variables"
)

func execContext(config map[string]any, vars map[string]any) nodes.ExecContext {
	resolver := variables.NewResolver("exec-1", nil)
	resolver.Merge(vars, "query-1")

	return nodes.ExecContext{
		ExecutionID: "exec-1",
		Node: &models.WorkflowNode{
			NodeID: "loop-1",
			Type:   models.NodeTypeLoop,
			Config: config,
		},
		Variables: resolver,
	}
}

func TestExecute_PlansIteration(t *testing.T) {
	handler := loop.NewHandler()

	ec := execContext(map[string]any{
		"source_key":     "leads",
		"item_variable":  "lead",
		"index_variable": "i",
		"result_key":     "outcomes",
	}, map[string]any{"leads": []any{"a", "b", "c"}})

	result, err := handler.Execute(context.Background(), ec)
	require.NoError(t, err)
	require.NotNil(t, result.Loop)
	assert.Len(t, result.Loop.Items, 3)
	assert.Equal(t, "lead", result.Loop.ItemVariable)
	assert.Equal(t, "i", result.Loop.IndexVariable)
	assert.Equal(t, "outcomes", result.Loop.ResultKey)
	assert.False(t, result.Loop.ContinueOnError)
}

func TestExecute_CapsAtMaxIterations(t *testing.T) {
	handler := loop.NewHandler()

	ec := execContext(map[string]any{
		"source_key":     "leads",
		"item_variable":  "lead",
		"max_iterations": float64(2),
	}, map[string]any{"leads": []any{"a", "b", "c", "d"}})

	result, err := handler.Execute(context.Background(), ec)
	require.NoError(t, err)
	assert.Len(t, result.Loop.Items, 2)
	assert.Equal(t, 2, result.Output["iterations"])
}

func TestExecute_ContinuePolicy(t *testing.T) {
	handler := loop.NewHandler()

	ec := execContext(map[string]any{
		"source_key":    "leads",
		"item_variable": "lead",
		"on_error":      loop.OnErrorContinue,
	}, map[string]any{"leads": []any{"a"}})

	result, err := handler.Execute(context.Background(), ec)
	require.NoError(t, err)
	assert.True(t, result.Loop.ContinueOnError)
}

func TestExecute_EmptySourceYieldsEmptyPlan(t *testing.T) {
	handler := loop.NewHandler()

	ec := execContext(map[string]any{
		"source_key":    "leads",
		"item_variable": "lead",
	}, map[string]any{"leads": []any{}})

	result, err := handler.Execute(context.Background(), ec)
	require.NoError(t, err)
	assert.Empty(t, result.Loop.Items)
}

func TestExecute_NonArraySourceFails(t *testing.T) {
	handler := loop.NewHandler()

	ec := execContext(map[string]any{
		"source_key":    "leads",
		"item_variable": "lead",
	}, map[string]any{"leads": "not-an-array"})

	_, err := handler.Execute(context.Background(), ec)
	assert.ErrorIs(t, err, variables.ErrTypeMismatch)
}

func TestValidate(t *testing.T) {
	handler := loop.NewHandler()

	assert.NoError(t, handler.Validate(map[string]any{"source_key": "s", "item_variable": "v"}))
	assert.ErrorIs(t, handler.Validate(map[string]any{"item_variable": "v"}), nodes.ErrInvalidConfig)
	assert.ErrorIs(t, handler.Validate(map[string]any{
		"source_key": "s", "item_variable": "v", "on_error": "explode",
	}), nodes.ErrInvalidConfig)
	assert.ErrorIs(t, handler.Validate(map[string]any{
		"source_key": "s", "item_variable": "v", "max_iterations": float64(0),
	}), nodes.ErrInvalidConfig)
}
