// Package conditions evaluates field/operator/value predicate trees against
// JSON-like documents. The same evaluator backs trigger matching and the
// CONDITION and FILTER node handlers.
package conditions

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cascadehq/cascade/pkg/models"
)

// ErrUnknownOperator is returned for operators the evaluator does not know.
var ErrUnknownOperator = errors.New("unknown condition operator")

// Evaluate applies a condition group to a document. A nil or empty group
// evaluates to true.
func Evaluate(group *models.ConditionGroup, doc map[string]any) (bool, error) {
	if group.IsEmpty() {
		return true, nil
	}

	logic := group.Logic
	if logic == "" {
		logic = models.LogicAnd
	}

	results := make([]bool, 0, len(group.Conditions)+len(group.Groups))

	for _, condition := range group.Conditions {
		ok, err := EvaluateCondition(condition, doc)
		if err != nil {
			return false, err
		}

		results = append(results, ok)
	}

	for _, sub := range group.Groups {
		ok, err := Evaluate(sub, doc)
		if err != nil {
			return false, err
		}

		results = append(results, ok)
	}

	combined := combine(logic, results)
	if group.Negate {
		combined = !combined
	}

	return combined, nil
}

// EvaluateCondition applies a single predicate to a document. A missing field
// is not an error: it compares as nil (and is_empty matches it).
func EvaluateCondition(condition *models.Condition, doc map[string]any) (bool, error) {
	value, _ := Lookup(doc, condition.Field)

	result, err := apply(condition.Operator, value, condition.Value)
	if err != nil {
		return false, fmt.Errorf("condition on field %q: %w", condition.Field, err)
	}

	if condition.Negate {
		result = !result
	}

	return result, nil
}

// Lookup resolves a dotted path ("deal.amount") in nested maps.
func Lookup(doc map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}

	var current any = doc

	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

func combine(logic models.ConditionLogic, results []bool) bool {
	if logic == models.LogicOr {
		for _, r := range results {
			if r {
				return true
			}
		}

		return false
	}

	for _, r := range results {
		if !r {
			return false
		}
	}

	return true
}

func apply(operator models.ConditionOperator, actual, expected any) (bool, error) {
	switch operator {
	case models.OperatorEquals:
		return equals(actual, expected), nil
	case models.OperatorNotEquals:
		return !equals(actual, expected), nil
	case models.OperatorGreaterThan, models.OperatorLessThan, models.OperatorGte, models.OperatorLte:
		return compare(operator, actual, expected)
	case models.OperatorContains:
		return contains(actual, expected), nil
	case models.OperatorIn:
		return in(actual, expected)
	case models.OperatorBetween:
		return between(actual, expected)
	case models.OperatorIsEmpty:
		return isEmpty(actual), nil
	case models.OperatorIsNotEmpty:
		return !isEmpty(actual), nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownOperator, operator)
	}
}

func equals(actual, expected any) bool {
	if actual == nil || expected == nil {
		return actual == nil && expected == nil
	}

	// Numbers compare numerically so JSON float64 matches config ints.
	if a, aok := toFloat(actual); aok {
		if b, bok := toFloat(expected); bok {
			return a == b
		}
	}

	return fmt.Sprintf("%v", actual) == fmt.Sprintf("%v", expected)
}

func compare(operator models.ConditionOperator, actual, expected any) (bool, error) {
	a, aok := toFloat(actual)
	b, bok := toFloat(expected)

	if !aok || !bok {
		return false, fmt.Errorf("operator %q requires numeric operands, got %T and %T", operator, actual, expected)
	}

	switch operator {
	case models.OperatorGreaterThan:
		return a > b, nil
	case models.OperatorLessThan:
		return a < b, nil
	case models.OperatorGte:
		return a >= b, nil
	default:
		return a <= b, nil
	}
}

func contains(actual, expected any) bool {
	switch v := actual.(type) {
	case string:
		return strings.Contains(v, fmt.Sprintf("%v", expected))
	case []any:
		for _, item := range v {
			if equals(item, expected) {
				return true
			}
		}

		return false
	default:
		return false
	}
}

func in(actual, expected any) (bool, error) {
	list, ok := expected.([]any)
	if !ok {
		return false, errors.New(`operator "in" requires an array value`)
	}

	for _, item := range list {
		if equals(actual, item) {
			return true, nil
		}
	}

	return false, nil
}

func between(actual, expected any) (bool, error) {
	bounds, ok := expected.([]any)
	if !ok || len(bounds) != 2 {
		return false, errors.New(`operator "between" requires a [low, high] value`)
	}

	value, vok := toFloat(actual)
	low, lok := toFloat(bounds[0])
	high, hok := toFloat(bounds[1])

	if !vok || !lok || !hok {
		return false, errors.New(`operator "between" requires numeric operands`)
	}

	return value >= low && value <= high, nil
}

func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	default:
		return false
	}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)

		return f, err == nil
	default:
		return 0, false
	}
}
