package delay_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/nodes"
	"github.com/cascadehq/cascade/pkg/nodes/delay"
)

func execContext(config map[string]any) nodes.ExecContext {
	return nodes.ExecContext{
		ExecutionID: "exec-1",
		Node: &models.WorkflowNode{
			NodeID: "delay-1",
			Type:   models.NodeTypeDelay,
			Config: config,
		},
	}
}

func TestExecute_ComputesResumeAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	handler := delay.NewHandlerWithClock(func() time.Time { return now })

	result, err := handler.Execute(context.Background(), execContext(map[string]any{
		"delay_ms": float64(90_000),
	}))
	require.NoError(t, err)
	require.NotNil(t, result.ResumeAt)
	assert.Equal(t, now.Add(90*time.Second), *result.ResumeAt)
}

func TestValidate_Bounds(t *testing.T) {
	handler := delay.NewHandler()

	sevenDays := 7 * 24 * time.Hour

	tests := []struct {
		name    string
		delayMs float64
		wantErr bool
	}{
		{"one second", 1000, false},
		{"exactly seven days", float64(sevenDays.Milliseconds()), false},
		{"over seven days", float64(sevenDays.Milliseconds() + 1), true},
		{"zero", 0, true},
		{"negative", -5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := handler.Validate(map[string]any{"delay_ms": tt.delayMs})
			if tt.wantErr {
				assert.ErrorIs(t, err, nodes.ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidate_MissingDelay(t *testing.T) {
	handler := delay.NewHandler()

	assert.ErrorIs(t, handler.Validate(map[string]any{}), nodes.ErrInvalidConfig)
}
