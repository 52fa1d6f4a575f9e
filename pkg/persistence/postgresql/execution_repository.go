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

// ExecutionRepository handles execution state, node executions, variables,
// logs, and delay wake-ups.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

const executionColumns = `id, workflow_id, organization_id, trigger_id, status, priority,
	trigger_data, progress, retry_count, max_retries, duration_ms, error, error_details,
	node_snapshot, created_at, started_at, completed_at, failed_at`

// Create persists the execution together with one NodeExecution per node in a
// single transaction, so a trigger either fully materializes a run or not at
// all.
func (er *ExecutionRepository) Create(ctx context.Context, execution *models.WorkflowExecution, nodes []*models.NodeExecution) error {
	triggerDataJSON, err := marshalJSON(execution.TriggerData)
	if err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	errorDetailsJSON, err := marshalJSON(execution.ErrorDetails)
	if err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	snapshotJSON, err := marshalJSON(execution.NodeSnapshot)
	if err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	transaction, err := er.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	insertExecution := `
		INSERT INTO workflow_executions (id, workflow_id, organization_id, trigger_id, status, priority,
			trigger_data, progress, retry_count, max_retries, error, error_details, node_snapshot, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err = transaction.ExecContext(ctx, insertExecution,
		execution.ID,
		execution.WorkflowID,
		execution.OrganizationID,
		execution.TriggerID,
		execution.Status,
		execution.Priority,
		triggerDataJSON,
		execution.Progress,
		execution.RetryCount,
		execution.MaxRetries,
		execution.Error,
		errorDetailsJSON,
		snapshotJSON,
		execution.CreatedAt,
	)
	if err != nil {
		_ = transaction.Rollback()

		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	insertNode := `
		INSERT INTO node_executions (id, execution_id, node_id, status, execution_order,
			retry_count, max_retries, input, output, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	for _, node := range nodes {
		inputJSON, err := marshalJSON(node.Input)
		if err != nil {
			_ = transaction.Rollback()

			return &persistence.ExecutionError{Op: "Create", ExecutionID: execution.ID, NodeID: node.NodeID, Err: err}
		}

		outputJSON, err := marshalJSON(node.Output)
		if err != nil {
			_ = transaction.Rollback()

			return &persistence.ExecutionError{Op: "Create", ExecutionID: execution.ID, NodeID: node.NodeID, Err: err}
		}

		_, err = transaction.ExecContext(ctx, insertNode,
			node.ID,
			execution.ID,
			node.NodeID,
			node.Status,
			node.ExecutionOrder,
			node.RetryCount,
			node.MaxRetries,
			inputJSON,
			outputJSON,
			node.Error,
		)
		if err != nil {
			_ = transaction.Rollback()

			return &persistence.ExecutionError{Op: "Create", ExecutionID: execution.ID, NodeID: node.NodeID, Err: err}
		}
	}

	if err := transaction.Commit(); err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	return nil
}

// GetByID returns an execution by its ID.
func (er *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM workflow_executions WHERE id = $1`

	execution, err := scanExecution(er.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return execution, nil
}

// Update rewrites the mutable execution fields.
func (er *ExecutionRepository) Update(ctx context.Context, execution *models.WorkflowExecution) error {
	triggerDataJSON, err := marshalJSON(execution.TriggerData)
	if err != nil {
		return persistence.NewExecutionError("Update", execution.ID, err)
	}

	errorDetailsJSON, err := marshalJSON(execution.ErrorDetails)
	if err != nil {
		return persistence.NewExecutionError("Update", execution.ID, err)
	}

	query := `
		UPDATE workflow_executions SET
			status = $2,
			priority = $3,
			trigger_data = $4,
			progress = $5,
			retry_count = $6,
			max_retries = $7,
			duration_ms = $8,
			error = $9,
			error_details = $10,
			started_at = $11,
			completed_at = $12,
			failed_at = $13
		WHERE id = $1
	`

	result, err := er.db.ExecContext(ctx, query,
		execution.ID,
		execution.Status,
		execution.Priority,
		triggerDataJSON,
		execution.Progress,
		execution.RetryCount,
		execution.MaxRetries,
		execution.DurationMs,
		execution.Error,
		errorDetailsJSON,
		execution.StartedAt,
		execution.CompletedAt,
		execution.FailedAt,
	)
	if err != nil {
		return persistence.NewExecutionError("Update", execution.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewExecutionError("Update", execution.ID, err)
	}

	if rowsAffected == 0 {
		return persistence.NewExecutionError("Update", execution.ID, persistence.ErrExecutionNotFound)
	}

	return nil
}

// List returns executions matching the filter, newest first.
func (er *ExecutionRepository) List(ctx context.Context, opts persistence.ListExecutionsOptions) ([]*models.WorkflowExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM workflow_executions WHERE 1=1`
	args := []any{}

	if opts.WorkflowID != "" {
		args = append(args, opts.WorkflowID)
		query += fmt.Sprintf(" AND workflow_id = $%d", len(args))
	}

	if opts.Status != nil {
		args = append(args, *opts.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	if opts.From != nil {
		args = append(args, *opts.From)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}

	if opts.To != nil {
		args = append(args, *opts.To)
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
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

	rows, err := er.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer closeRows(ctx, er.logger, rows)

	var executions []*models.WorkflowExecution

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

// NodeExecutions returns the node records of an execution in execution order.
func (er *ExecutionRepository) NodeExecutions(ctx context.Context, executionID string) ([]*models.NodeExecution, error) {
	query := `
		SELECT id, execution_id, node_id, status, execution_order, retry_count, max_retries,
			duration_ms, input, output, error, started_at, completed_at
		FROM node_executions
		WHERE execution_id = $1
		ORDER BY execution_order, node_id
	`

	rows, err := er.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query node executions: %w", err)
	}

	defer closeRows(ctx, er.logger, rows)

	var nodes []*models.NodeExecution

	for rows.Next() {
		node, err := scanNodeExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node execution: %w", err)
		}

		nodes = append(nodes, node)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating node executions: %w", err)
	}

	return nodes, nil
}

// UpdateNodeExecution rewrites one node execution record.
func (er *ExecutionRepository) UpdateNodeExecution(ctx context.Context, nodeExecution *models.NodeExecution) error {
	inputJSON, err := marshalJSON(nodeExecution.Input)
	if err != nil {
		return &persistence.ExecutionError{Op: "UpdateNodeExecution", ExecutionID: nodeExecution.ExecutionID, NodeID: nodeExecution.NodeID, Err: err}
	}

	outputJSON, err := marshalJSON(nodeExecution.Output)
	if err != nil {
		return &persistence.ExecutionError{Op: "UpdateNodeExecution", ExecutionID: nodeExecution.ExecutionID, NodeID: nodeExecution.NodeID, Err: err}
	}

	query := `
		UPDATE node_executions SET
			status = $3,
			retry_count = $4,
			duration_ms = $5,
			input = $6,
			output = $7,
			error = $8,
			started_at = $9,
			completed_at = $10
		WHERE execution_id = $1 AND node_id = $2
	`

	result, err := er.db.ExecContext(ctx, query,
		nodeExecution.ExecutionID,
		nodeExecution.NodeID,
		nodeExecution.Status,
		nodeExecution.RetryCount,
		nodeExecution.DurationMs,
		inputJSON,
		outputJSON,
		nodeExecution.Error,
		nodeExecution.StartedAt,
		nodeExecution.CompletedAt,
	)
	if err != nil {
		return &persistence.ExecutionError{Op: "UpdateNodeExecution", ExecutionID: nodeExecution.ExecutionID, NodeID: nodeExecution.NodeID, Err: err}
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return &persistence.ExecutionError{Op: "UpdateNodeExecution", ExecutionID: nodeExecution.ExecutionID, NodeID: nodeExecution.NodeID, Err: err}
	}

	if rowsAffected == 0 {
		return &persistence.ExecutionError{Op: "UpdateNodeExecution", ExecutionID: nodeExecution.ExecutionID, NodeID: nodeExecution.NodeID, Err: persistence.ErrNodeExecutionNotFound}
	}

	return nil
}

// SaveVariables upserts execution variables in one transaction. Later writes
// to the same name replace the value and its source.
func (er *ExecutionRepository) SaveVariables(ctx context.Context, executionID string, variables []*models.ExecutionVariable) error {
	transaction, err := er.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.NewExecutionError("SaveVariables", executionID, err)
	}

	query := `
		INSERT INTO execution_variables (execution_id, name, value, data_type, source, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (execution_id, name) DO UPDATE SET
			value = EXCLUDED.value,
			data_type = EXCLUDED.data_type,
			source = EXCLUDED.source,
			updated_at = EXCLUDED.updated_at
	`

	for _, variable := range variables {
		valueJSON, err := marshalJSON(variable.Value)
		if err != nil {
			_ = transaction.Rollback()

			return persistence.NewExecutionError("SaveVariables", executionID, err)
		}

		_, err = transaction.ExecContext(ctx, query,
			executionID,
			variable.Name,
			valueJSON,
			variable.DataType,
			variable.Source,
			variable.UpdatedAt,
		)
		if err != nil {
			_ = transaction.Rollback()

			return persistence.NewExecutionError("SaveVariables", executionID, err)
		}
	}

	if err := transaction.Commit(); err != nil {
		return persistence.NewExecutionError("SaveVariables", executionID, err)
	}

	return nil
}

// Variables returns the execution variables ordered by name.
func (er *ExecutionRepository) Variables(ctx context.Context, executionID string) ([]*models.ExecutionVariable, error) {
	query := `
		SELECT execution_id, name, value, data_type, source, updated_at
		FROM execution_variables
		WHERE execution_id = $1
		ORDER BY name
	`

	rows, err := er.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution variables: %w", err)
	}

	defer closeRows(ctx, er.logger, rows)

	var variables []*models.ExecutionVariable

	for rows.Next() {
		var (
			variable  models.ExecutionVariable
			valueJSON []byte
		)

		err := rows.Scan(&variable.ExecutionID, &variable.Name, &valueJSON, &variable.DataType, &variable.Source, &variable.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution variable: %w", err)
		}

		if err := unmarshalJSON(valueJSON, &variable.Value); err != nil {
			return nil, err
		}

		variables = append(variables, &variable)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating execution variables: %w", err)
	}

	return variables, nil
}

// AppendLog appends one log line to an execution.
func (er *ExecutionRepository) AppendLog(ctx context.Context, log *models.ExecutionLog) error {
	detailsJSON, err := marshalJSON(log.Details)
	if err != nil {
		return persistence.NewExecutionError("AppendLog", log.ExecutionID, err)
	}

	query := `
		INSERT INTO execution_logs (id, execution_id, level, message, details, category, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = er.db.ExecContext(ctx, query,
		log.ID,
		log.ExecutionID,
		log.Level,
		log.Message,
		detailsJSON,
		log.Category,
		log.CreatedAt,
	)
	if err != nil {
		return persistence.NewExecutionError("AppendLog", log.ExecutionID, err)
	}

	return nil
}

// Logs returns the execution log lines oldest first.
func (er *ExecutionRepository) Logs(ctx context.Context, executionID string) ([]*models.ExecutionLog, error) {
	query := `
		SELECT id, execution_id, level, message, details, category, created_at
		FROM execution_logs
		WHERE execution_id = $1
		ORDER BY created_at, id
	`

	rows, err := er.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution logs: %w", err)
	}

	defer closeRows(ctx, er.logger, rows)

	var logs []*models.ExecutionLog

	for rows.Next() {
		var (
			log         models.ExecutionLog
			detailsJSON []byte
		)

		err := rows.Scan(&log.ID, &log.ExecutionID, &log.Level, &log.Message, &detailsJSON, &log.Category, &log.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution log: %w", err)
		}

		if err := unmarshalJSON(detailsJSON, &log.Details); err != nil {
			return nil, err
		}

		logs = append(logs, &log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating execution logs: %w", err)
	}

	return logs, nil
}

// CreateDelayWakeup persists the durable wake-up record of a suspended delay.
func (er *ExecutionRepository) CreateDelayWakeup(ctx context.Context, wakeup *models.DelayWakeup) error {
	query := `
		INSERT INTO delay_wakeups (id, execution_id, node_execution_id, resume_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := er.db.ExecContext(ctx, query,
		wakeup.ID,
		wakeup.ExecutionID,
		wakeup.NodeExecutionID,
		wakeup.ResumeAt,
		wakeup.CreatedAt,
	)
	if err != nil {
		return persistence.NewExecutionError("CreateDelayWakeup", wakeup.ExecutionID, err)
	}

	return nil
}

// DueDelayWakeups returns wake-ups whose resume time has passed, oldest first.
func (er *ExecutionRepository) DueDelayWakeups(ctx context.Context, now time.Time, limit int) ([]*models.DelayWakeup, error) {
	query := `
		SELECT id, execution_id, node_execution_id, resume_at, created_at
		FROM delay_wakeups
		WHERE resume_at <= $1
		ORDER BY resume_at
		LIMIT $2
	`

	rows, err := er.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query delay wakeups: %w", err)
	}

	defer closeRows(ctx, er.logger, rows)

	var wakeups []*models.DelayWakeup

	for rows.Next() {
		var wakeup models.DelayWakeup

		err := rows.Scan(&wakeup.ID, &wakeup.ExecutionID, &wakeup.NodeExecutionID, &wakeup.ResumeAt, &wakeup.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delay wakeup: %w", err)
		}

		wakeups = append(wakeups, &wakeup)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating delay wakeups: %w", err)
	}

	return wakeups, nil
}

// DeleteDelayWakeup removes a consumed wake-up record.
func (er *ExecutionRepository) DeleteDelayWakeup(ctx context.Context, id string) error {
	_, err := er.db.ExecContext(ctx, `DELETE FROM delay_wakeups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete delay wakeup: %w", err)
	}

	return nil
}

func scanExecution(row interface{ Scan(...any) error }) (*models.WorkflowExecution, error) {
	var (
		execution        models.WorkflowExecution
		triggerID        sql.NullString
		triggerDataJSON  []byte
		errorDetailsJSON []byte
		snapshotJSON     []byte
		durationMs       sql.NullInt64
		startedAt        sql.NullTime
		completedAt      sql.NullTime
		failedAt         sql.NullTime
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.OrganizationID,
		&triggerID,
		&execution.Status,
		&execution.Priority,
		&triggerDataJSON,
		&execution.Progress,
		&execution.RetryCount,
		&execution.MaxRetries,
		&durationMs,
		&execution.Error,
		&errorDetailsJSON,
		&snapshotJSON,
		&execution.CreatedAt,
		&startedAt,
		&completedAt,
		&failedAt,
	)
	if err != nil {
		return nil, err
	}

	if triggerID.Valid {
		execution.TriggerID = &triggerID.String
	}

	if err := unmarshalJSON(triggerDataJSON, &execution.TriggerData); err != nil {
		return nil, err
	}

	if err := unmarshalJSON(errorDetailsJSON, &execution.ErrorDetails); err != nil {
		return nil, err
	}

	if err := unmarshalJSON(snapshotJSON, &execution.NodeSnapshot); err != nil {
		return nil, err
	}

	execution.DurationMs = int64Ptr(durationMs)
	execution.StartedAt = timePtr(startedAt)
	execution.CompletedAt = timePtr(completedAt)
	execution.FailedAt = timePtr(failedAt)

	return &execution, nil
}

func scanNodeExecution(row interface{ Scan(...any) error }) (*models.NodeExecution, error) {
	var (
		node        models.NodeExecution
		durationMs  sql.NullInt64
		inputJSON   []byte
		outputJSON  []byte
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)

	err := row.Scan(
		&node.ID,
		&node.ExecutionID,
		&node.NodeID,
		&node.Status,
		&node.ExecutionOrder,
		&node.RetryCount,
		&node.MaxRetries,
		&durationMs,
		&inputJSON,
		&outputJSON,
		&node.Error,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSON(inputJSON, &node.Input); err != nil {
		return nil, err
	}

	if err := unmarshalJSON(outputJSON, &node.Output); err != nil {
		return nil, err
	}

	node.DurationMs = int64Ptr(durationMs)
	node.StartedAt = timePtr(startedAt)
	node.CompletedAt = timePtr(completedAt)

	return &node, nil
}
