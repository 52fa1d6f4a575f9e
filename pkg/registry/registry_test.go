package registry_test

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadehq/cascade/pkg/adapters"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/nodes/query"
	"github.com/cascadehq/cascade/pkg/registry"
)

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	r := registry.NewRegistry(logger)
	r.RegisterDefaultHandlers(&query.InMemorySource{}, adapters.NewRegistry(), nil)

	return r
}

func TestRegistry_AllTypesRegistered(t *testing.T) {
	r := newRegistry(t)

	for _, nodeType := range models.AllNodeTypes {
		if nodeType == models.NodeTypeTrigger {
			continue
		}

		_, err := r.Handler(nodeType)
		assert.NoError(t, err, "handler for %s", nodeType)
	}
}

func TestRegistry_UnknownType(t *testing.T) {
	r := newRegistry(t)

	_, err := r.Handler("webhook")
	assert.ErrorIs(t, err, registry.ErrHandlerNotRegistered)
}

func TestValidateConfig_SchemaRejection(t *testing.T) {
	r := newRegistry(t)

	// delay_ms has a schema minimum of 1.
	err := r.ValidateConfig(models.NodeTypeDelay, map[string]any{"delay_ms": float64(-100)})
	require.Error(t, err)
	assert.ErrorIs(t, err, registry.ErrConfigRejected)
}

func TestValidateConfig_MissingRequiredField(t *testing.T) {
	r := newRegistry(t)

	err := r.ValidateConfig(models.NodeTypeQuery, map[string]any{"model": "contacts"})
	assert.ErrorIs(t, err, registry.ErrConfigRejected)
}

func TestValidateConfig_SemanticValidationRuns(t *testing.T) {
	r := newRegistry(t)

	// Passes the schema but fails the handler's cron-xor-frequency rule.
	err := r.ValidateConfig(models.NodeTypeSchedule, map[string]any{
		"cron_expression": "0 9 * * *",
		"frequency":       "daily",
	})
	assert.ErrorIs(t, err, models.ErrInvalidSchedule)
}

func TestValidateConfig_TriggerNodesSkipValidation(t *testing.T) {
	r := newRegistry(t)

	assert.NoError(t, r.ValidateConfig(models.NodeTypeTrigger, nil))
}

func TestValidateNode(t *testing.T) {
	r := newRegistry(t)

	err := r.ValidateNode(&models.WorkflowNode{
		NodeID: "n1",
		Type:   models.NodeTypeDelay,
		Config: map[string]any{"delay_ms": float64(5000)},
	})
	assert.NoError(t, err)

	err = r.ValidateNode(&models.WorkflowNode{NodeID: "n2", Type: "smoke-signal"})
	assert.ErrorIs(t, err, registry.ErrHandlerNotRegistered)
}
