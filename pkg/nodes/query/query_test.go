package query_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/nodes"
	"github.com/cascadehq/cascade/pkg/nodes/query"
	"github.com/cascadehq/cascade/pkg/variables"
)

func fixtureSource() *query.InMemorySource {
	return &query.InMemorySource{
		Records: map[string][]map[string]any{
			"contacts": {
				{"id": "c1", "name": "Ada", "score": float64(90)},
				{"id": "c2", "name": "Grace", "score": float64(75)},
				{"id": "c3", "name": "Edsger", "score": float64(40)},
			},
		},
	}
}

func execContext(config map[string]any) nodes.ExecContext {
	return nodes.ExecContext{
		ExecutionID:    "exec-1",
		OrganizationID: "org-1",
		Node: &models.WorkflowNode{
			NodeID: "query-1",
			Type:   models.NodeTypeQuery,
			Config: config,
		},
		Variables: variables.NewResolver("exec-1", nil),
	}
}

func TestExecute_FiltersOrdersAndLimits(t *testing.T) {
	handler := query.NewHandler(fixtureSource())

	ec := execContext(map[string]any{
		"model": "contacts",
		"filters": map[string]any{
			"conditions": []any{
				map[string]any{"field": "score", "operator": "gte", "value": 50},
			},
		},
		"order_by":   "score",
		"descending": true,
		"limit":      float64(1),
		"result_key": "top_contacts",
	})

	result, err := handler.Execute(context.Background(), ec)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Output["count"])

	rows, err := ec.Variables.GetArray("top_contacts")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Ada", rows[0].(map[string]any)["name"])
}

func TestExecute_SelectProjectsFields(t *testing.T) {
	handler := query.NewHandler(fixtureSource())

	ec := execContext(map[string]any{
		"model":      "contacts",
		"select":     []any{"name"},
		"result_key": "names",
	})

	_, err := handler.Execute(context.Background(), ec)
	require.NoError(t, err)

	rows, err := ec.Variables.GetArray("names")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	first := rows[0].(map[string]any)
	assert.Contains(t, first, "name")
	assert.NotContains(t, first, "score")
}

func TestExecute_EmptyResultSetsFallback(t *testing.T) {
	handler := query.NewHandler(fixtureSource())

	ec := execContext(map[string]any{
		"model": "contacts",
		"filters": map[string]any{
			"conditions": []any{
				map[string]any{"field": "score", "operator": "greater_than", "value": 1000},
			},
		},
		"result_key":   "rich",
		"fallback_key": "none_found",
	})

	result, err := handler.Execute(context.Background(), ec)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Output["count"])

	fallback, ok := ec.Variables.Get("none_found")
	require.True(t, ok)
	assert.Equal(t, true, fallback)
}

func TestValidate_RequiresModelAndResultKey(t *testing.T) {
	handler := query.NewHandler(fixtureSource())

	assert.ErrorIs(t, handler.Validate(map[string]any{"result_key": "r"}), nodes.ErrInvalidConfig)
	assert.ErrorIs(t, handler.Validate(map[string]any{"model": "contacts"}), nodes.ErrInvalidConfig)
	assert.NoError(t, handler.Validate(map[string]any{"model": "contacts", "result_key": "r"}))
}
