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

// NodeRepository handles workflow node database operations. Nodes are
// addressed by their natural key (workflow_id, node_id) assigned by the
// visual editor.
type NodeRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewNodeRepository creates a new node repository.
func NewNodeRepository(db *sql.DB, logger *slog.Logger) *NodeRepository {
	return &NodeRepository{db: db, logger: logger}
}

const nodeColumns = `id, workflow_id, node_id, type, name, config,
	position_x, position_y, execution_order, is_optional, retry_limit, timeout_ms`

// ListByWorkflow returns all nodes of a workflow in execution order.
func (nr *NodeRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowNode, error) {
	query := `SELECT ` + nodeColumns + ` FROM workflow_nodes WHERE workflow_id = $1 ORDER BY execution_order, node_id`

	rows, err := nr.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow nodes: %w", err)
	}

	defer closeRows(ctx, nr.logger, rows)

	var nodes []*models.WorkflowNode

	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}

		nodes = append(nodes, node)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating nodes: %w", err)
	}

	return nodes, nil
}

// GetByNodeID returns one node by its natural key.
func (nr *NodeRepository) GetByNodeID(ctx context.Context, workflowID, nodeID string) (*models.WorkflowNode, error) {
	query := `SELECT ` + nodeColumns + ` FROM workflow_nodes WHERE workflow_id = $1 AND node_id = $2`

	node, err := scanNode(nr.db.QueryRowContext(ctx, query, workflowID, nodeID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("GetByNodeID", workflowID, persistence.ErrNodeNotFound)
		}

		return nil, fmt.Errorf("failed to scan node: %w", err)
	}

	return node, nil
}

// Save inserts or updates a node, matching on the natural key.
func (nr *NodeRepository) Save(ctx context.Context, node *models.WorkflowNode) error {
	return saveNode(ctx, nr.db, node)
}

// Delete removes a node by its natural key.
func (nr *NodeRepository) Delete(ctx context.Context, workflowID, nodeID string) error {
	query := `DELETE FROM workflow_nodes WHERE workflow_id = $1 AND node_id = $2`

	result, err := nr.db.ExecContext(ctx, query, workflowID, nodeID)
	if err != nil {
		return persistence.NewWorkflowError("DeleteNode", workflowID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewWorkflowError("DeleteNode", workflowID, err)
	}

	if rowsAffected == 0 {
		return persistence.NewWorkflowError("DeleteNode", workflowID, persistence.ErrNodeNotFound)
	}

	return nil
}

// ReplaceAll atomically replaces every node of a workflow. Used by bulk
// canvas saves from the visual editor.
func (nr *NodeRepository) ReplaceAll(ctx context.Context, workflowID string, nodes []*models.WorkflowNode) error {
	transaction, err := nr.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.NewWorkflowError("ReplaceAllNodes", workflowID, err)
	}

	_, err = transaction.ExecContext(ctx, `DELETE FROM workflow_nodes WHERE workflow_id = $1`, workflowID)
	if err != nil {
		_ = transaction.Rollback()

		return persistence.NewWorkflowError("ReplaceAllNodes", workflowID, err)
	}

	for _, node := range nodes {
		node.WorkflowID = workflowID

		if err := saveNode(ctx, transaction, node); err != nil {
			_ = transaction.Rollback()

			return err
		}
	}

	if err := transaction.Commit(); err != nil {
		return persistence.NewWorkflowError("ReplaceAllNodes", workflowID, err)
	}

	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveNode(ctx context.Context, db execer, node *models.WorkflowNode) error {
	configJSON, err := marshalJSON(node.Config)
	if err != nil {
		return persistence.NewWorkflowError("SaveNode", node.WorkflowID, err)
	}

	query := `
		INSERT INTO workflow_nodes (id, workflow_id, node_id, type, name, config,
			position_x, position_y, execution_order, is_optional, retry_limit, timeout_ms,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		ON CONFLICT (workflow_id, node_id) DO UPDATE SET
			type = EXCLUDED.type,
			name = EXCLUDED.name,
			config = EXCLUDED.config,
			position_x = EXCLUDED.position_x,
			position_y = EXCLUDED.position_y,
			execution_order = EXCLUDED.execution_order,
			is_optional = EXCLUDED.is_optional,
			retry_limit = EXCLUDED.retry_limit,
			timeout_ms = EXCLUDED.timeout_ms,
			updated_at = NOW()
	`

	_, err = db.ExecContext(ctx, query,
		node.ID,
		node.WorkflowID,
		node.NodeID,
		node.Type,
		node.Name,
		configJSON,
		node.PositionX,
		node.PositionY,
		node.ExecutionOrder,
		node.IsOptional,
		node.RetryLimit,
		node.TimeoutMs,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewWorkflowError("SaveNode", node.WorkflowID, persistence.ErrDuplicateNode)
		}

		return persistence.NewWorkflowError("SaveNode", node.WorkflowID, err)
	}

	return nil
}

func scanNode(row interface{ Scan(...any) error }) (*models.WorkflowNode, error) {
	var (
		node       models.WorkflowNode
		configJSON []byte
	)

	err := row.Scan(
		&node.ID,
		&node.WorkflowID,
		&node.NodeID,
		&node.Type,
		&node.Name,
		&configJSON,
		&node.PositionX,
		&node.PositionY,
		&node.ExecutionOrder,
		&node.IsOptional,
		&node.RetryLimit,
		&node.TimeoutMs,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSON(configJSON, &node.Config); err != nil {
		return nil, err
	}

	return &node, nil
}
