package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/cascadehq/cascade/pkg/models"
)

// RollupRepository stores persisted analytics rollups keyed by
// (workflow_id, period, bucket_start).
type RollupRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRollupRepository creates a new rollup repository.
func NewRollupRepository(db *sql.DB, logger *slog.Logger) *RollupRepository {
	return &RollupRepository{db: db, logger: logger}
}

// Upsert merges a rollup delta into the stored bucket. Counters add up;
// duration min and max fold with the stored extremes, treating a bucket with
// no recorded durations as empty rather than zero.
func (rr *RollupRepository) Upsert(ctx context.Context, rollup *models.AnalyticsRollup) error {
	query := `
		INSERT INTO analytics_rollups (id, workflow_id, period, bucket_start,
			total_count, completed_count, failed_count, cancelled_count,
			duration_count, duration_sum_ms, duration_min_ms, duration_max_ms, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		ON CONFLICT (workflow_id, period, bucket_start) DO UPDATE SET
			total_count = analytics_rollups.total_count + EXCLUDED.total_count,
			completed_count = analytics_rollups.completed_count + EXCLUDED.completed_count,
			failed_count = analytics_rollups.failed_count + EXCLUDED.failed_count,
			cancelled_count = analytics_rollups.cancelled_count + EXCLUDED.cancelled_count,
			duration_count = analytics_rollups.duration_count + EXCLUDED.duration_count,
			duration_sum_ms = analytics_rollups.duration_sum_ms + EXCLUDED.duration_sum_ms,
			duration_min_ms = CASE
				WHEN analytics_rollups.duration_count = 0 THEN EXCLUDED.duration_min_ms
				WHEN EXCLUDED.duration_count = 0 THEN analytics_rollups.duration_min_ms
				ELSE LEAST(analytics_rollups.duration_min_ms, EXCLUDED.duration_min_ms)
			END,
			duration_max_ms = GREATEST(analytics_rollups.duration_max_ms, EXCLUDED.duration_max_ms),
			updated_at = NOW()
	`

	_, err := rr.db.ExecContext(ctx, query,
		rollup.ID,
		rollup.WorkflowID,
		rollup.Period,
		rollup.BucketStart,
		rollup.TotalCount,
		rollup.CompletedCount,
		rollup.FailedCount,
		rollup.CancelledCount,
		rollup.DurationCount,
		rollup.DurationSumMs,
		rollup.DurationMinMs,
		rollup.DurationMaxMs,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert analytics rollup: %w", err)
	}

	return nil
}

// Range returns the stored rollups of one workflow and period between from
// (inclusive) and to (exclusive), ordered by bucket start.
func (rr *RollupRepository) Range(ctx context.Context, workflowID string, period models.RollupPeriod, from, to time.Time) ([]*models.AnalyticsRollup, error) {
	query := `
		SELECT id, workflow_id, period, bucket_start,
			total_count, completed_count, failed_count, cancelled_count,
			duration_count, duration_sum_ms, duration_min_ms, duration_max_ms, updated_at
		FROM analytics_rollups
		WHERE workflow_id = $1 AND period = $2 AND bucket_start >= $3 AND bucket_start < $4
		ORDER BY bucket_start
	`

	rows, err := rr.db.QueryContext(ctx, query, workflowID, period, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query analytics rollups: %w", err)
	}

	defer closeRows(ctx, rr.logger, rows)

	var rollups []*models.AnalyticsRollup

	for rows.Next() {
		var rollup models.AnalyticsRollup

		err := rows.Scan(
			&rollup.ID,
			&rollup.WorkflowID,
			&rollup.Period,
			&rollup.BucketStart,
			&rollup.TotalCount,
			&rollup.CompletedCount,
			&rollup.FailedCount,
			&rollup.CancelledCount,
			&rollup.DurationCount,
			&rollup.DurationSumMs,
			&rollup.DurationMinMs,
			&rollup.DurationMaxMs,
			&rollup.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analytics rollup: %w", err)
		}

		rollups = append(rollups, &rollup)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating analytics rollups: %w", err)
	}

	return rollups, nil
}
