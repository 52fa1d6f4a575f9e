package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
)

// TriggerRepository handles workflow trigger database operations.
type TriggerRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTriggerRepository creates a new trigger repository.
func NewTriggerRepository(db *sql.DB, logger *slog.Logger) *TriggerRepository {
	return &TriggerRepository{db: db, logger: logger}
}

const triggerColumns = `id, workflow_id, type, name, module, event_type, entity_type,
	conditions, delay_ms, is_active, created_at, updated_at`

// ListByWorkflow returns all triggers of a workflow.
func (tr *TriggerRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowTrigger, error) {
	query := `SELECT ` + triggerColumns + ` FROM workflow_triggers WHERE workflow_id = $1 ORDER BY created_at`

	return tr.queryTriggers(ctx, query, workflowID)
}

// GetByID returns a trigger by its ID.
func (tr *TriggerRepository) GetByID(ctx context.Context, id string) (*models.WorkflowTrigger, error) {
	query := `SELECT ` + triggerColumns + ` FROM workflow_triggers WHERE id = $1`

	trigger, err := scanTrigger(tr.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrTriggerNotFound
		}

		return nil, fmt.Errorf("failed to scan trigger: %w", err)
	}

	return trigger, nil
}

// Save inserts or updates a trigger.
func (tr *TriggerRepository) Save(ctx context.Context, trigger *models.WorkflowTrigger) error {
	conditionsJSON, err := marshalJSON(trigger.Conditions)
	if err != nil {
		return persistence.NewWorkflowError("SaveTrigger", trigger.WorkflowID, err)
	}

	query := `
		INSERT INTO workflow_triggers (id, workflow_id, type, name, module, event_type, entity_type,
			conditions, delay_ms, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			type = EXCLUDED.type,
			name = EXCLUDED.name,
			module = EXCLUDED.module,
			event_type = EXCLUDED.event_type,
			entity_type = EXCLUDED.entity_type,
			conditions = EXCLUDED.conditions,
			delay_ms = EXCLUDED.delay_ms,
			is_active = EXCLUDED.is_active,
			updated_at = NOW()
	`

	_, err = tr.db.ExecContext(ctx, query,
		trigger.ID,
		trigger.WorkflowID,
		trigger.Type,
		trigger.Name,
		trigger.Module,
		trigger.EventType,
		trigger.EntityType,
		conditionsJSON,
		trigger.DelayMs,
		trigger.IsActive,
	)
	if err != nil {
		return persistence.NewWorkflowError("SaveTrigger", trigger.WorkflowID, err)
	}

	return nil
}

// Delete removes a trigger by its ID.
func (tr *TriggerRepository) Delete(ctx context.Context, id string) error {
	result, err := tr.db.ExecContext(ctx, `DELETE FROM workflow_triggers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete trigger: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.ErrTriggerNotFound
	}

	return nil
}

// FindActiveByEvent returns active event triggers matching the event class,
// restricted to active workflows. Condition trees are evaluated by the
// caller against the event payload.
func (tr *TriggerRepository) FindActiveByEvent(ctx context.Context, module, eventType string) ([]*models.WorkflowTrigger, error) {
	query := `
		SELECT t.id, t.workflow_id, t.type, t.name, t.module, t.event_type, t.entity_type,
			t.conditions, t.delay_ms, t.is_active, t.created_at, t.updated_at
		FROM workflow_triggers t
		JOIN workflows w ON w.id = t.workflow_id
		WHERE t.is_active
		  AND t.type = 'event'
		  AND t.module = $1
		  AND t.event_type = $2
		  AND w.status = 'active'
		  AND w.deleted_at IS NULL
		ORDER BY t.created_at
	`

	return tr.queryTriggers(ctx, query, module, eventType)
}

func (tr *TriggerRepository) queryTriggers(ctx context.Context, query string, args ...any) ([]*models.WorkflowTrigger, error) {
	rows, err := tr.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow triggers: %w", err)
	}

	defer closeRows(ctx, tr.logger, rows)

	var triggers []*models.WorkflowTrigger

	for rows.Next() {
		trigger, err := scanTrigger(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trigger: %w", err)
		}

		triggers = append(triggers, trigger)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating triggers: %w", err)
	}

	return triggers, nil
}

func scanTrigger(row interface{ Scan(...any) error }) (*models.WorkflowTrigger, error) {
	var (
		trigger        models.WorkflowTrigger
		conditionsJSON []byte
	)

	err := row.Scan(
		&trigger.ID,
		&trigger.WorkflowID,
		&trigger.Type,
		&trigger.Name,
		&trigger.Module,
		&trigger.EventType,
		&trigger.EntityType,
		&conditionsJSON,
		&trigger.DelayMs,
		&trigger.IsActive,
		&trigger.CreatedAt,
		&trigger.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(conditionsJSON) > 0 {
		trigger.Conditions = &models.ConditionGroup{}
		if err := unmarshalJSON(conditionsJSON, trigger.Conditions); err != nil {
			return nil, err
		}
	}

	return &trigger, nil
}
