package conditions

import (
	"testing"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateCondition_Operators(t *testing.T) {
	doc := map[string]any{
		"status": "won",
		"deal": map[string]any{
			"amount": float64(1200),
			"tags":   []any{"priority", "q3"},
		},
		"notes":   "",
		"contact": map[string]any{"email": "ada@example.com"},
	}

	tests := []struct {
		name      string
		condition models.Condition
		expected  bool
	}{
		{
			name:      "equals string",
			condition: models.Condition{Field: "status", Operator: models.OperatorEquals, Value: "won"},
			expected:  true,
		},
		{
			name:      "equals numeric coercion",
			condition: models.Condition{Field: "deal.amount", Operator: models.OperatorEquals, Value: 1200},
			expected:  true,
		},
		{
			name:      "not equals",
			condition: models.Condition{Field: "status", Operator: models.OperatorNotEquals, Value: "lost"},
			expected:  true,
		},
		{
			name:      "greater than",
			condition: models.Condition{Field: "deal.amount", Operator: models.OperatorGreaterThan, Value: 1000},
			expected:  true,
		},
		{
			name:      "less than fails",
			condition: models.Condition{Field: "deal.amount", Operator: models.OperatorLessThan, Value: 1000},
			expected:  false,
		},
		{
			name:      "gte boundary",
			condition: models.Condition{Field: "deal.amount", Operator: models.OperatorGte, Value: 1200},
			expected:  true,
		},
		{
			name:      "lte boundary",
			condition: models.Condition{Field: "deal.amount", Operator: models.OperatorLte, Value: 1200},
			expected:  true,
		},
		{
			name:      "contains substring",
			condition: models.Condition{Field: "contact.email", Operator: models.OperatorContains, Value: "@example"},
			expected:  true,
		},
		{
			name:      "contains array member",
			condition: models.Condition{Field: "deal.tags", Operator: models.OperatorContains, Value: "priority"},
			expected:  true,
		},
		{
			name:      "in list",
			condition: models.Condition{Field: "status", Operator: models.OperatorIn, Value: []any{"open", "won"}},
			expected:  true,
		},
		{
			name:      "between inclusive",
			condition: models.Condition{Field: "deal.amount", Operator: models.OperatorBetween, Value: []any{1000, 1200}},
			expected:  true,
		},
		{
			name:      "is_empty on empty string",
			condition: models.Condition{Field: "notes", Operator: models.OperatorIsEmpty},
			expected:  true,
		},
		{
			name:      "is_empty on missing field",
			condition: models.Condition{Field: "missing.path", Operator: models.OperatorIsEmpty},
			expected:  true,
		},
		{
			name:      "is_not_empty",
			condition: models.Condition{Field: "status", Operator: models.OperatorIsNotEmpty},
			expected:  true,
		},
		{
			name:      "negate flips result",
			condition: models.Condition{Field: "status", Operator: models.OperatorEquals, Value: "won", Negate: true},
			expected:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := EvaluateCondition(&tt.condition, doc)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestEvaluateCondition_UnknownOperator(t *testing.T) {
	_, err := EvaluateCondition(&models.Condition{Field: "status", Operator: "matches_regex"}, map[string]any{})
	require.ErrorIs(t, err, ErrUnknownOperator)
}

func TestEvaluate_GroupLogic(t *testing.T) {
	doc := map[string]any{"amount": float64(50), "stage": "open"}

	andGroup := &models.ConditionGroup{
		Logic: models.LogicAnd,
		Conditions: []*models.Condition{
			{Field: "amount", Operator: models.OperatorGreaterThan, Value: 10},
			{Field: "stage", Operator: models.OperatorEquals, Value: "open"},
		},
	}

	orGroup := &models.ConditionGroup{
		Logic: models.LogicOr,
		Conditions: []*models.Condition{
			{Field: "amount", Operator: models.OperatorGreaterThan, Value: 100},
			{Field: "stage", Operator: models.OperatorEquals, Value: "open"},
		},
	}

	result, err := Evaluate(andGroup, doc)
	require.NoError(t, err)
	assert.True(t, result)

	result, err = Evaluate(orGroup, doc)
	require.NoError(t, err)
	assert.True(t, result)
}

func TestEvaluate_NestedGroups(t *testing.T) {
	doc := map[string]any{"amount": float64(50), "stage": "lost", "owner": "ada"}

	group := &models.ConditionGroup{
		Logic: models.LogicAnd,
		Conditions: []*models.Condition{
			{Field: "owner", Operator: models.OperatorEquals, Value: "ada"},
		},
		Groups: []*models.ConditionGroup{
			{
				Logic: models.LogicOr,
				Conditions: []*models.Condition{
					{Field: "stage", Operator: models.OperatorEquals, Value: "open"},
					{Field: "amount", Operator: models.OperatorLessThan, Value: 100},
				},
			},
		},
	}

	result, err := Evaluate(group, doc)
	require.NoError(t, err)
	assert.True(t, result)
}

func TestEvaluate_EmptyGroupIsTrue(t *testing.T) {
	result, err := Evaluate(nil, map[string]any{})
	require.NoError(t, err)
	assert.True(t, result)

	result, err = Evaluate(&models.ConditionGroup{}, map[string]any{})
	require.NoError(t, err)
	assert.True(t, result)
}

func TestEvaluate_GroupNegate(t *testing.T) {
	doc := map[string]any{"stage": "open"}

	group := &models.ConditionGroup{
		Negate: true,
		Conditions: []*models.Condition{
			{Field: "stage", Operator: models.OperatorEquals, Value: "open"},
		},
	}

	result, err := Evaluate(group, doc)
	require.NoError(t, err)
	assert.False(t, result)
}

func TestLookup(t *testing.T) {
	doc := map[string]any{
		"a": map[string]any{"b": map[string]any{"c": 1}},
	}

	value, ok := Lookup(doc, "a.b.c")
	assert.True(t, ok)
	assert.Equal(t, 1, value)

	_, ok = Lookup(doc, "a.x")
	assert.False(t, ok)

	_, ok = Lookup(doc, "")
	assert.False(t, ok)
}
