package analytics_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadehq/cascade/pkg/analytics"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence/memory"
)

func newAggregator(t *testing.T) (*memory.Persistence, *analytics.Aggregator) {
	t.Helper()

	store := memory.NewPersistence()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	require.NoError(t, store.WorkflowRepository().Save(context.Background(), &models.Workflow{
		ID: "wf-1", OrganizationID: "org-1", Name: "analyzed", Status: models.WorkflowStatusActive,
	}))

	return store, analytics.NewAggregator(logger, store)
}

func saveExecution(t *testing.T, store *memory.Persistence, status models.ExecutionStatus, createdAt time.Time, durationMs *int64, errMsg string) *models.WorkflowExecution {
	t.Helper()

	execution := &models.WorkflowExecution{
		ID:             uuid.New().String(),
		WorkflowID:     "wf-1",
		OrganizationID: "org-1",
		Status:         status,
		Priority:       models.PriorityNormal,
		DurationMs:     durationMs,
		Error:          errMsg,
		CreatedAt:      createdAt,
	}

	if status.Terminal() {
		completed := createdAt.Add(time.Minute)
		execution.CompletedAt = &completed
	}

	require.NoError(t, store.ExecutionRepository().Create(context.Background(), execution, nil))

	return execution
}

func ms(v int64) *int64 { return &v }

func TestAggregate_NullDurationsExcludedFromNumerics(t *testing.T) {
	store, aggregator := newAggregator(t)
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	// Durations 10, 20, 30, null, 40: totals count five, numerics four.
	saveExecution(t, store, models.ExecutionStatusCompleted, base, ms(10), "")
	saveExecution(t, store, models.ExecutionStatusCompleted, base.Add(time.Minute), ms(20), "")
	saveExecution(t, store, models.ExecutionStatusCompleted, base.Add(2*time.Minute), ms(30), "")
	saveExecution(t, store, models.ExecutionStatusCancelled, base.Add(3*time.Minute), nil, "")
	saveExecution(t, store, models.ExecutionStatusCompleted, base.Add(4*time.Minute), ms(40), "")

	report, err := aggregator.Aggregate(context.Background(), analytics.Query{
		WorkflowID: "wf-1",
		From:       base.Add(-time.Hour),
		To:         base.Add(time.Hour),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(5), report.Total)
	assert.Equal(t, int64(4), report.Completed)
	assert.Equal(t, int64(1), report.Cancelled)

	assert.Equal(t, int64(4), report.Duration.Count)
	assert.InDelta(t, 25.0, report.Duration.AvgMs, 0.001)
	assert.Equal(t, int64(10), report.Duration.MinMs)
	assert.Equal(t, int64(40), report.Duration.MaxMs)
	assert.Equal(t, int64(40), report.Duration.P95Ms)
}

func TestAggregate_SuccessRateIgnoresNonFinished(t *testing.T) {
	store, aggregator := newAggregator(t)
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	saveExecution(t, store, models.ExecutionStatusCompleted, base, ms(5), "")
	saveExecution(t, store, models.ExecutionStatusCompleted, base, ms(5), "")
	saveExecution(t, store, models.ExecutionStatusFailed, base, ms(5), "boom")
	saveExecution(t, store, models.ExecutionStatusRunning, base, nil, "")
	saveExecution(t, store, models.ExecutionStatusCancelled, base, nil, "")

	report, err := aggregator.Aggregate(context.Background(), analytics.Query{
		WorkflowID: "wf-1",
		From:       base.Add(-time.Hour),
		To:         base.Add(time.Hour),
	})
	require.NoError(t, err)

	assert.InDelta(t, 2.0/3.0, report.SuccessRate, 0.001)
	assert.Equal(t, int64(1), report.Running)
}

func TestAggregate_TopErrorsNormalized(t *testing.T) {
	store, aggregator := newAggregator(t)
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	saveExecution(t, store, models.ExecutionStatusFailed, base, nil,
		"delivery failed for 550e8400-e29b-41d4-a716-446655440000")
	saveExecution(t, store, models.ExecutionStatusFailed, base, nil,
		"delivery failed for 6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	saveExecution(t, store, models.ExecutionStatusFailed, base, nil,
		"timeout after 30000 ms")

	report, err := aggregator.Aggregate(context.Background(), analytics.Query{
		WorkflowID: "wf-1",
		From:       base.Add(-time.Hour),
		To:         base.Add(time.Hour),
	})
	require.NoError(t, err)

	require.Len(t, report.TopErrors, 2)
	assert.Equal(t, "delivery failed for <id>", report.TopErrors[0].Message)
	assert.Equal(t, int64(2), report.TopErrors[0].Count)
	assert.Equal(t, "timeout after <n> ms", report.TopErrors[1].Message)
}

func TestAggregate_TrendBuckets(t *testing.T) {
	store, aggregator := newAggregator(t)
	base := time.Date(2026, 3, 10, 9, 15, 0, 0, time.UTC)

	saveExecution(t, store, models.ExecutionStatusCompleted, base, ms(5), "")
	saveExecution(t, store, models.ExecutionStatusFailed, base.Add(10*time.Minute), nil, "x")
	saveExecution(t, store, models.ExecutionStatusCompleted, base.Add(2*time.Hour), ms(5), "")

	report, err := aggregator.Aggregate(context.Background(), analytics.Query{
		WorkflowID:  "wf-1",
		From:        base.Add(-time.Hour),
		To:          base.Add(3 * time.Hour),
		Granularity: analytics.GranularityHour,
	})
	require.NoError(t, err)

	require.Len(t, report.Trend, 2)
	assert.Equal(t, base.Truncate(time.Hour), report.Trend[0].Start)
	assert.Equal(t, int64(2), report.Trend[0].Total)
	assert.Equal(t, int64(1), report.Trend[0].Failed)
	assert.Equal(t, int64(1), report.Trend[1].Total)
}

func TestAggregate_EmptyRangeZeroes(t *testing.T) {
	_, aggregator := newAggregator(t)

	report, err := aggregator.Aggregate(context.Background(), analytics.Query{
		WorkflowID: "wf-1",
		From:       time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		To:         time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(0), report.Total)
	assert.Equal(t, float64(0), report.SuccessRate)
	assert.Empty(t, report.TopErrors)
	assert.Empty(t, report.Trend)
	assert.Equal(t, int64(0), report.Duration.Count)
}

func TestAggregate_InvalidRange(t *testing.T) {
	_, aggregator := newAggregator(t)

	_, err := aggregator.Aggregate(context.Background(), analytics.Query{
		WorkflowID: "wf-1",
		From:       time.Now(),
		To:         time.Now().Add(-time.Hour),
	})
	assert.ErrorIs(t, err, analytics.ErrInvalidRange)

	_, err = aggregator.Aggregate(context.Background(), analytics.Query{
		WorkflowID:  "wf-1",
		To:          time.Now(),
		Granularity: "fortnight",
	})
	assert.ErrorIs(t, err, analytics.ErrInvalidRange)
}

func TestRecordTerminal_MaintainsRollups(t *testing.T) {
	store, aggregator := newAggregator(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	first := saveExecution(t, store, models.ExecutionStatusCompleted, base, ms(100), "")
	second := saveExecution(t, store, models.ExecutionStatusFailed, base.Add(time.Hour), ms(300), "x")

	require.NoError(t, aggregator.RecordTerminal(ctx, first))
	require.NoError(t, aggregator.RecordTerminal(ctx, second))

	rollups, err := store.RollupRepository().Range(ctx, "wf-1", models.RollupDaily,
		base.AddDate(0, 0, -1), base.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, rollups, 1)

	rollup := rollups[0]
	assert.Equal(t, int64(2), rollup.TotalCount)
	assert.Equal(t, int64(1), rollup.CompletedCount)
	assert.Equal(t, int64(1), rollup.FailedCount)
	assert.Equal(t, int64(2), rollup.DurationCount)
	assert.Equal(t, int64(400), rollup.DurationSumMs)
	assert.Equal(t, int64(100), rollup.DurationMinMs)
	assert.Equal(t, int64(300), rollup.DurationMaxMs)

	weekly, err := store.RollupRepository().Range(ctx, "wf-1", models.RollupWeekly,
		base.AddDate(0, 0, -7), base.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Len(t, weekly, 1)
}

func TestRecordTerminal_RejectsNonTerminal(t *testing.T) {
	store, aggregator := newAggregator(t)

	execution := saveExecution(t, store, models.ExecutionStatusRunning,
		time.Now().UTC(), nil, "")

	err := aggregator.RecordTerminal(context.Background(), execution)
	assert.ErrorIs(t, err, analytics.ErrInvalidRange)
}
