// Package nodes defines the contract between the execution orchestrator and
// the typed node handlers. One subpackage per node type implements Handler.
package nodes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/variables"
)

// ErrInvalidConfig is returned when a node config fails semantic validation.
var ErrInvalidConfig = errors.New("invalid node configuration")

// ExecContext carries everything a handler may read during one invocation.
// Handlers write outputs through the Result; variable reads go through the
// resolver so missing references fail uniformly.
type ExecContext struct {
	ExecutionID    string
	WorkflowID     string
	OrganizationID string

	Node        *models.WorkflowNode
	Variables   *variables.Resolver
	TriggerData map[string]any

	Logger *slog.Logger
}

// LoopPlan tells the orchestrator how to iterate the downstream subgraph.
// Handlers never walk the graph themselves.
type LoopPlan struct {
	Items           []any
	ItemVariable    string
	IndexVariable   string
	ResultKey       string
	ContinueOnError bool
}

// Result is a handler's outcome for one invocation.
type Result struct {
	// Output is recorded on the NodeExecution and merged into variables
	// under the node's result key where the handler chose one.
	Output map[string]any

	// Branch routes condition and filter nodes: only edges whose source
	// handle equals Branch stay live. Empty keeps every outgoing edge.
	Branch string

	// ResumeAt suspends the execution until the given time. The
	// orchestrator persists a durable wake-up and parks the run.
	ResumeAt *time.Time

	// Loop is set by loop handlers to request subgraph iteration.
	Loop *LoopPlan
}

// Handler executes one node type.
type Handler interface {
	Type() models.NodeType

	// Schema returns the JSON schema the registry validates configs
	// against before save and before execution.
	Schema() map[string]any

	// Validate performs semantic checks the schema cannot express
	// (bounds, mutually exclusive fields).
	Validate(config map[string]any) error

	Execute(ctx context.Context, ec ExecContext) (*Result, error)
}

// Config helpers shared by the handler packages. Node configs arrive as
// decoded JSON, so numbers are float64.

// ConfigString reads a string field, returning fallback when absent.
func ConfigString(config map[string]any, key, fallback string) string {
	if value, ok := config[key].(string); ok {
		return value
	}

	return fallback
}

// RequireConfigString reads a required, non-empty string field.
func RequireConfigString(config map[string]any, key string) (string, error) {
	value, ok := config[key].(string)
	if !ok || value == "" {
		return "", fmt.Errorf("%w: missing required field %q", ErrInvalidConfig, key)
	}

	return value, nil
}

// ConfigInt reads a numeric field, returning fallback when absent or not a
// number.
func ConfigInt(config map[string]any, key string, fallback int) int {
	switch value := config[key].(type) {
	case float64:
		return int(value)
	case int:
		return value
	case int64:
		return int(value)
	default:
		return fallback
	}
}

// ConfigBool reads a boolean field, returning fallback when absent.
func ConfigBool(config map[string]any, key string, fallback bool) bool {
	if value, ok := config[key].(bool); ok {
		return value
	}

	return fallback
}

// ConfigStrings reads a string-array field.
func ConfigStrings(config map[string]any, key string) []string {
	raw, ok := config[key].([]any)
	if !ok {
		return nil
	}

	values := make([]string, 0, len(raw))

	for _, item := range raw {
		if value, ok := item.(string); ok {
			values = append(values, value)
		}
	}

	return values
}

// ConfigConditionGroup decodes a condition tree field. Returns nil when the
// field is absent.
func ConfigConditionGroup(config map[string]any, key string) (*models.ConditionGroup, error) {
	raw, ok := config[key]
	if !ok || raw == nil {
		return nil, nil
	}

	group, err := models.ConditionGroupFromMap(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: field %q: %w", ErrInvalidConfig, key, err)
	}

	return group, nil
}
