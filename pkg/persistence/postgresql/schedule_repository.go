package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
)

// ScheduleRepository stores the durable schedule entries the scheduler polls.
type ScheduleRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(db *sql.DB, logger *slog.Logger) *ScheduleRepository {
	return &ScheduleRepository{db: db, logger: logger}
}

// Save inserts or updates a schedule entry.
func (sr *ScheduleRepository) Save(ctx context.Context, entry *models.ScheduleEntry) error {
	query := `
		INSERT INTO schedule_entries (id, workflow_id, trigger_id, cron_expression, frequency,
			timezone, next_due_at, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			cron_expression = EXCLUDED.cron_expression,
			frequency = EXCLUDED.frequency,
			timezone = EXCLUDED.timezone,
			next_due_at = EXCLUDED.next_due_at,
			active = EXCLUDED.active,
			updated_at = NOW()
	`

	_, err := sr.db.ExecContext(ctx, query,
		entry.ID,
		entry.WorkflowID,
		entry.TriggerID,
		entry.CronExpression,
		entry.Frequency,
		entry.Timezone,
		entry.NextDueAt,
		entry.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to save schedule entry: %w", err)
	}

	return nil
}

// Delete removes a schedule entry by its ID.
func (sr *ScheduleRepository) Delete(ctx context.Context, id string) error {
	result, err := sr.db.ExecContext(ctx, `DELETE FROM schedule_entries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete schedule entry: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.ErrScheduleNotFound
	}

	return nil
}

// DueSchedules returns active entries whose next due time has passed, oldest
// first. The caller advances next_due_at after firing.
func (sr *ScheduleRepository) DueSchedules(ctx context.Context, now time.Time, limit int) ([]*models.ScheduleEntry, error) {
	query := `
		SELECT id, workflow_id, trigger_id, cron_expression, frequency, timezone,
			next_due_at, active, created_at, updated_at
		FROM schedule_entries
		WHERE active AND next_due_at <= $1
		ORDER BY next_due_at
		LIMIT $2
	`

	rows, err := sr.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due schedules: %w", err)
	}

	defer closeRows(ctx, sr.logger, rows)

	var entries []*models.ScheduleEntry

	for rows.Next() {
		var entry models.ScheduleEntry

		err := rows.Scan(
			&entry.ID,
			&entry.WorkflowID,
			&entry.TriggerID,
			&entry.CronExpression,
			&entry.Frequency,
			&entry.Timezone,
			&entry.NextDueAt,
			&entry.Active,
			&entry.CreatedAt,
			&entry.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule entry: %w", err)
		}

		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedule entries: %w", err)
	}

	return entries, nil
}
