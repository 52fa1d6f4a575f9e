package filternode_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/nodes"
	"github.com/cascadehq/cascade/pkg/nodes/filternode"
	"github.com/cascadehq/cascade/pkg/variables"
)

func execContext(config map[string]any, vars map[string]any) nodes.ExecContext {
	resolver := variables.NewResolver("exec-1", nil)
	resolver.Merge(vars, "query-1")

	return nodes.ExecContext{
		ExecutionID: "exec-1",
		Node: &models.WorkflowNode{
			NodeID: "filter-1",
			Type:   models.NodeTypeFilter,
			Config: config,
		},
		Variables: resolver,
	}
}

func overdueConfig() map[string]any {
	return map[string]any{
		"source_key":   "invoices",
		"result_key":   "overdue",
		"fallback_key": "nothing_overdue",
		"conditions": map[string]any{
			"conditions": []any{
				map[string]any{"field": "days_late", "operator": "greater_than", "value": 0},
			},
		},
	}
}

func TestExecute_KeepsMatchingItems(t *testing.T) {
	handler := filternode.NewHandler()

	ec := execContext(overdueConfig(), map[string]any{
		"invoices": []any{
			map[string]any{"id": "i1", "days_late": float64(3)},
			map[string]any{"id": "i2", "days_late": float64(0)},
			map[string]any{"id": "i3", "days_late": float64(12)},
		},
	})

	result, err := handler.Execute(context.Background(), ec)
	require.NoError(t, err)
	assert.Equal(t, models.BranchTrue, result.Branch)
	assert.Equal(t, 2, result.Output["matched"])

	overdue, err := ec.Variables.GetArray("overdue")
	require.NoError(t, err)
	require.Len(t, overdue, 2)

	_, ok := ec.Variables.Get("nothing_overdue")
	assert.False(t, ok, "fallback must stay unset when items matched")
}

func TestExecute_EmptyResultSetsFallback(t *testing.T) {
	handler := filternode.NewHandler()

	ec := execContext(overdueConfig(), map[string]any{
		"invoices": []any{
			map[string]any{"id": "i1", "days_late": float64(0)},
		},
	})

	result, err := handler.Execute(context.Background(), ec)
	require.NoError(t, err)
	assert.Equal(t, models.BranchFalse, result.Branch)

	fallback, ok := ec.Variables.Get("nothing_overdue")
	require.True(t, ok)
	assert.Equal(t, true, fallback)

	overdue, err := ec.Variables.GetArray("overdue")
	require.NoError(t, err)
	assert.Empty(t, overdue)
}

func TestExecute_ScalarItemsMatchUnderItemField(t *testing.T) {
	handler := filternode.NewHandler()

	ec := execContext(map[string]any{
		"source_key": "scores",
		"result_key": "high",
		"conditions": map[string]any{
			"conditions": []any{
				map[string]any{"field": "item", "operator": "gte", "value": 80},
			},
		},
	}, map[string]any{"scores": []any{float64(95), float64(40), float64(80)}})

	result, err := handler.Execute(context.Background(), ec)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Output["matched"])
}

func TestExecute_MissingSourceFails(t *testing.T) {
	handler := filternode.NewHandler()

	ec := execContext(overdueConfig(), nil)

	_, err := handler.Execute(context.Background(), ec)
	assert.ErrorIs(t, err, variables.ErrVariableNotFound)
}
