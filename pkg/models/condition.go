package models

import (
	"encoding/json"
	"fmt"
)

// ConditionOperator compares a payload field against a target value.
type ConditionOperator string

const (
	OperatorEquals      ConditionOperator = "equals"
	OperatorNotEquals   ConditionOperator = "not_equals"
	OperatorGreaterThan ConditionOperator = "greater_than"
	OperatorLessThan    ConditionOperator = "less_than"
	OperatorGte         ConditionOperator = "gte"
	OperatorLte         ConditionOperator = "lte"
	OperatorContains    ConditionOperator = "contains"
	OperatorIn          ConditionOperator = "in"
	OperatorBetween     ConditionOperator = "between"
	OperatorIsEmpty     ConditionOperator = "is_empty"
	OperatorIsNotEmpty  ConditionOperator = "is_not_empty"
)

// ConditionLogic combines the results of sibling conditions.
type ConditionLogic string

const (
	LogicAnd ConditionLogic = "and"
	LogicOr  ConditionLogic = "or"
)

// Condition is a single field/operator/value predicate. Field is a dotted
// path into the evaluation document ("deal.amount", "contact.email").
type Condition struct {
	Field    string            `json:"field"    validate:"required"`
	Operator ConditionOperator `json:"operator" validate:"required"`
	Value    any               `json:"value,omitempty"`
	Negate   bool              `json:"negate,omitempty"`
}

// ConditionGroup is a tree of predicates combined with AND/OR. A group may
// nest further groups; an empty group evaluates to true.
type ConditionGroup struct {
	Logic      ConditionLogic    `json:"logic"`
	Conditions []*Condition      `json:"conditions,omitempty"`
	Groups     []*ConditionGroup `json:"groups,omitempty"`
	Negate     bool              `json:"negate,omitempty"`
}

// ConditionGroupFromMap decodes a condition tree from decoded JSON, as found
// inside node configs. A *ConditionGroup passes through unchanged.
func ConditionGroupFromMap(raw any) (*ConditionGroup, error) {
	switch value := raw.(type) {
	case *ConditionGroup:
		return value, nil
	case map[string]any:
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("invalid condition group: %w", err)
		}

		var group ConditionGroup
		if err := json.Unmarshal(data, &group); err != nil {
			return nil, fmt.Errorf("invalid condition group: %w", err)
		}

		return &group, nil
	default:
		return nil, fmt.Errorf("invalid condition group: unexpected type %T", raw)
	}
}

// IsEmpty reports whether the group carries no predicates at any depth.
func (g *ConditionGroup) IsEmpty() bool {
	if g == nil {
		return true
	}

	if len(g.Conditions) > 0 {
		return false
	}

	for _, sub := range g.Groups {
		if !sub.IsEmpty() {
			return false
		}
	}

	return true
}
