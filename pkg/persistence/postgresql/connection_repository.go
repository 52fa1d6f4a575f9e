package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
)

// ConnectionRepository handles workflow edge database operations. Edges are
// addressed by their natural key (workflow_id, edge_id).
type ConnectionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewConnectionRepository creates a new connection repository.
func NewConnectionRepository(db *sql.DB, logger *slog.Logger) *ConnectionRepository {
	return &ConnectionRepository{db: db, logger: logger}
}

const connectionColumns = `id, workflow_id, edge_id, source_node_id, target_node_id,
	source_handle, target_handle, conditions, execution_order`

// ListByWorkflow returns all connections of a workflow in execution order.
func (cr *ConnectionRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowConnection, error) {
	query := `SELECT ` + connectionColumns + ` FROM workflow_connections WHERE workflow_id = $1 ORDER BY execution_order, edge_id`

	rows, err := cr.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow connections: %w", err)
	}

	defer closeRows(ctx, cr.logger, rows)

	var connections []*models.WorkflowConnection

	for rows.Next() {
		connection, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}

		connections = append(connections, connection)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating connections: %w", err)
	}

	return connections, nil
}

// Save inserts or updates a connection, matching on the natural key.
func (cr *ConnectionRepository) Save(ctx context.Context, connection *models.WorkflowConnection) error {
	return saveConnection(ctx, cr.db, connection)
}

// Delete removes a connection by its natural key.
func (cr *ConnectionRepository) Delete(ctx context.Context, workflowID, edgeID string) error {
	query := `DELETE FROM workflow_connections WHERE workflow_id = $1 AND edge_id = $2`

	result, err := cr.db.ExecContext(ctx, query, workflowID, edgeID)
	if err != nil {
		return persistence.NewWorkflowError("DeleteConnection", workflowID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewWorkflowError("DeleteConnection", workflowID, err)
	}

	if rowsAffected == 0 {
		return persistence.NewWorkflowError("DeleteConnection", workflowID, persistence.ErrConnectionNotFound)
	}

	return nil
}

// ReplaceAll atomically replaces every connection of a workflow.
func (cr *ConnectionRepository) ReplaceAll(ctx context.Context, workflowID string, connections []*models.WorkflowConnection) error {
	transaction, err := cr.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.NewWorkflowError("ReplaceAllConnections", workflowID, err)
	}

	_, err = transaction.ExecContext(ctx, `DELETE FROM workflow_connections WHERE workflow_id = $1`, workflowID)
	if err != nil {
		_ = transaction.Rollback()

		return persistence.NewWorkflowError("ReplaceAllConnections", workflowID, err)
	}

	for _, connection := range connections {
		connection.WorkflowID = workflowID

		if err := saveConnection(ctx, transaction, connection); err != nil {
			_ = transaction.Rollback()

			return err
		}
	}

	if err := transaction.Commit(); err != nil {
		return persistence.NewWorkflowError("ReplaceAllConnections", workflowID, err)
	}

	return nil
}

func saveConnection(ctx context.Context, db execer, connection *models.WorkflowConnection) error {
	conditionsJSON, err := marshalJSON(connection.Conditions)
	if err != nil {
		return persistence.NewWorkflowError("SaveConnection", connection.WorkflowID, err)
	}

	query := `
		INSERT INTO workflow_connections (id, workflow_id, edge_id, source_node_id, target_node_id,
			source_handle, target_handle, conditions, execution_order, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		ON CONFLICT (workflow_id, edge_id) DO UPDATE SET
			source_node_id = EXCLUDED.source_node_id,
			target_node_id = EXCLUDED.target_node_id,
			source_handle = EXCLUDED.source_handle,
			target_handle = EXCLUDED.target_handle,
			conditions = EXCLUDED.conditions,
			execution_order = EXCLUDED.execution_order,
			updated_at = NOW()
	`

	_, err = db.ExecContext(ctx, query,
		connection.ID,
		connection.WorkflowID,
		connection.EdgeID,
		connection.SourceNodeID,
		connection.TargetNodeID,
		connection.SourceHandle,
		connection.TargetHandle,
		conditionsJSON,
		connection.ExecutionOrder,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewWorkflowError("SaveConnection", connection.WorkflowID, persistence.ErrDuplicateConnection)
		}

		return persistence.NewWorkflowError("SaveConnection", connection.WorkflowID, err)
	}

	return nil
}

func scanConnection(row interface{ Scan(...any) error }) (*models.WorkflowConnection, error) {
	var (
		connection     models.WorkflowConnection
		conditionsJSON []byte
	)

	err := row.Scan(
		&connection.ID,
		&connection.WorkflowID,
		&connection.EdgeID,
		&connection.SourceNodeID,
		&connection.TargetNodeID,
		&connection.SourceHandle,
		&connection.TargetHandle,
		&conditionsJSON,
		&connection.ExecutionOrder,
	)
	if err != nil {
		return nil, err
	}

	if len(conditionsJSON) > 0 {
		connection.Conditions = &models.ConditionGroup{}
		if err := unmarshalJSON(conditionsJSON, connection.Conditions); err != nil {
			return nil, err
		}
	}

	return &connection, nil
}
