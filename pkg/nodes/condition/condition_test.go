package condition_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/nodes"
	"github.com/cascadehq/cascade/pkg/nodes/condition"
	"github.com/cascadehq/cascade/pkg/variables"
)

func execContext(config map[string]any, vars map[string]any) nodes.ExecContext {
	resolver := variables.NewResolver("exec-1", nil)
	resolver.Merge(vars, models.VariableSourceTrigger)

	return nodes.ExecContext{
		ExecutionID: "exec-1",
		WorkflowID:  "wf-1",
		Node: &models.WorkflowNode{
			NodeID: "cond-1",
			Type:   models.NodeTypeCondition,
			Config: config,
		},
		Variables: resolver,
	}
}

func TestExecute_RoutesTrueBranch(t *testing.T) {
	handler := condition.NewHandler()

	ec := execContext(map[string]any{
		"conditions": map[string]any{
			"logic": "and",
			"conditions": []any{
				map[string]any{"field": "deal.amount", "operator": "greater_than", "value": 1000},
			},
		},
	}, map[string]any{"deal": map[string]any{"amount": float64(2500)}})

	result, err := handler.Execute(context.Background(), ec)
	require.NoError(t, err)
	assert.Equal(t, models.BranchTrue, result.Branch)
	assert.Equal(t, true, result.Output["outcome"])
}

func TestExecute_RoutesFalseBranch(t *testing.T) {
	handler := condition.NewHandler()

	ec := execContext(map[string]any{
		"conditions": map[string]any{
			"conditions": []any{
				map[string]any{"field": "deal.stage", "operator": "equals", "value": "won"},
			},
		},
	}, map[string]any{"deal": map[string]any{"stage": "open"}})

	result, err := handler.Execute(context.Background(), ec)
	require.NoError(t, err)
	assert.Equal(t, models.BranchFalse, result.Branch)
}

func TestExecute_ReadsTriggerData(t *testing.T) {
	handler := condition.NewHandler()

	ec := execContext(map[string]any{
		"conditions": map[string]any{
			"conditions": []any{
				map[string]any{"field": "trigger.source", "operator": "equals", "value": "crm"},
			},
		},
	}, nil)
	ec.TriggerData = map[string]any{"source": "crm"}

	result, err := handler.Execute(context.Background(), ec)
	require.NoError(t, err)
	assert.Equal(t, models.BranchTrue, result.Branch)
}

func TestValidate_RejectsEmptyTree(t *testing.T) {
	handler := condition.NewHandler()

	err := handler.Validate(map[string]any{"conditions": map[string]any{"logic": "and"}})
	assert.ErrorIs(t, err, nodes.ErrInvalidConfig)
}
