package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
)

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

const workflowColumns = `id, organization_id, name, description, status,
	total_executions, successful_executions, failed_executions, last_executed_at,
	metadata, created_at, updated_at, deleted_at`

// List returns workflows matching the filter, newest first.
func (wr *WorkflowRepository) List(ctx context.Context, opts persistence.ListWorkflowsOptions) ([]*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE deleted_at IS NULL`
	args := []any{}

	if opts.OrganizationID != "" {
		args = append(args, opts.OrganizationID)
		query += fmt.Sprintf(" AND organization_id = $%d", len(args))
	}

	if opts.Status != nil {
		args = append(args, *opts.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := wr.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer closeRows(ctx, wr.logger, rows)

	var workflows []*models.Workflow

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

// GetByID returns a workflow by its ID. Soft-deleted workflows are not found.
func (wr *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE id = $1 AND deleted_at IS NULL`

	workflow, err := scanWorkflow(wr.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	return workflow, nil
}

// Save inserts or updates a workflow definition. Aggregate counters are not
// written here; they belong to IncrementCounters and RecomputeCounters.
func (wr *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	metadataJSON, err := marshalJSON(workflow.Metadata)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	query := `
		INSERT INTO workflows (id, organization_id, name, description, status, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			metadata = EXCLUDED.metadata,
			updated_at = NOW()
	`

	_, err = wr.db.ExecContext(ctx, query,
		workflow.ID,
		workflow.OrganizationID,
		workflow.Name,
		workflow.Description,
		workflow.Status,
		metadataJSON,
	)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	return nil
}

// Delete soft deletes a workflow by setting deleted_at.
func (wr *WorkflowRepository) Delete(ctx context.Context, id string) error {
	query := `UPDATE workflows SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`

	result, err := wr.db.ExecContext(ctx, query, id)
	if err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	if rowsAffected == 0 {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

// IncrementCounters bumps the aggregate counters after a terminal execution.
func (wr *WorkflowRepository) IncrementCounters(ctx context.Context, workflowID string, succeeded bool, executedAt time.Time) error {
	query := `
		UPDATE workflows SET
			total_executions = total_executions + 1,
			successful_executions = successful_executions + CASE WHEN $2 THEN 1 ELSE 0 END,
			failed_executions = failed_executions + CASE WHEN $2 THEN 0 ELSE 1 END,
			last_executed_at = GREATEST(COALESCE(last_executed_at, $3), $3),
			updated_at = NOW()
		WHERE id = $1
	`

	result, err := wr.db.ExecContext(ctx, query, workflowID, succeeded, executedAt)
	if err != nil {
		return persistence.NewWorkflowError("IncrementCounters", workflowID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewWorkflowError("IncrementCounters", workflowID, err)
	}

	if rowsAffected == 0 {
		return persistence.NewWorkflowError("IncrementCounters", workflowID, persistence.ErrWorkflowNotFound)
	}

	return nil
}

// RecomputeCounters rebuilds the aggregate counters from execution history.
// Cancelled runs count toward the total but neither success nor failure.
func (wr *WorkflowRepository) RecomputeCounters(ctx context.Context, workflowID string) error {
	query := `
		UPDATE workflows SET
			total_executions = stats.total,
			successful_executions = stats.succeeded,
			failed_executions = stats.failed,
			last_executed_at = stats.last_executed_at,
			updated_at = NOW()
		FROM (
			SELECT
				COUNT(*) FILTER (WHERE status IN ('completed', 'failed', 'cancelled')) AS total,
				COUNT(*) FILTER (WHERE status = 'completed') AS succeeded,
				COUNT(*) FILTER (WHERE status = 'failed') AS failed,
				MAX(completed_at) AS last_executed_at
			FROM workflow_executions
			WHERE workflow_id = $1
		) AS stats
		WHERE id = $1
	`

	result, err := wr.db.ExecContext(ctx, query, workflowID)
	if err != nil {
		return persistence.NewWorkflowError("RecomputeCounters", workflowID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewWorkflowError("RecomputeCounters", workflowID, err)
	}

	if rowsAffected == 0 {
		return persistence.NewWorkflowError("RecomputeCounters", workflowID, persistence.ErrWorkflowNotFound)
	}

	return nil
}

func scanWorkflow(row interface{ Scan(...any) error }) (*models.Workflow, error) {
	var (
		workflow       models.Workflow
		metadataJSON   []byte
		lastExecutedAt sql.NullTime
		deletedAt      sql.NullTime
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.OrganizationID,
		&workflow.Name,
		&workflow.Description,
		&workflow.Status,
		&workflow.TotalExecutions,
		&workflow.SuccessfulExecutions,
		&workflow.FailedExecutions,
		&lastExecutedAt,
		&metadataJSON,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
		&deletedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSON(metadataJSON, &workflow.Metadata); err != nil {
		return nil, err
	}

	workflow.LastExecutedAt = timePtr(lastExecutedAt)
	workflow.DeletedAt = timePtr(deletedAt)

	return &workflow, nil
}
