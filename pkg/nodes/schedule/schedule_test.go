package schedule_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/nodes"
	"github.com/cascadehq/cascade/pkg/nodes/schedule"
)

func execContext(config map[string]any) nodes.ExecContext {
	return nodes.ExecContext{
		ExecutionID: "exec-1",
		Node: &models.WorkflowNode{
			NodeID: "sched-1",
			Type:   models.NodeTypeSchedule,
			Config: config,
		},
	}
}

func TestExecute_CronNextOccurrence(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC) // Monday
	handler := schedule.NewHandlerWithClock(func() time.Time { return now })

	result, err := handler.Execute(context.Background(), execContext(map[string]any{
		"cron_expression": "0 9 * * *",
	}))
	require.NoError(t, err)
	require.NotNil(t, result.ResumeAt)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), result.ResumeAt.UTC())
}

func TestExecute_FrequencyDaily(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)
	handler := schedule.NewHandlerWithClock(func() time.Time { return now })

	result, err := handler.Execute(context.Background(), execContext(map[string]any{
		"frequency": "daily",
	}))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), result.ResumeAt.UTC())
}

func TestValidate_CronXorFrequency(t *testing.T) {
	handler := schedule.NewHandler()

	assert.NoError(t, handler.Validate(map[string]any{"cron_expression": "*/5 * * * *"}))
	assert.NoError(t, handler.Validate(map[string]any{"frequency": "weekly"}))

	assert.ErrorIs(t, handler.Validate(map[string]any{}), models.ErrInvalidSchedule)
	assert.ErrorIs(t, handler.Validate(map[string]any{
		"cron_expression": "0 9 * * *",
		"frequency":       "daily",
	}), models.ErrInvalidSchedule)
	assert.ErrorIs(t, handler.Validate(map[string]any{"cron_expression": "not a cron"}), models.ErrInvalidSchedule)
	assert.ErrorIs(t, handler.Validate(map[string]any{
		"frequency": "daily",
		"timezone":  "Mars/Olympus_Mons",
	}), models.ErrInvalidSchedule)
}
