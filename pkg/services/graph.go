package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/cascadehq/cascade/pkg/execution"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
	"github.com/cascadehq/cascade/pkg/registry"
)

// Graph manages the nodes and connections of a workflow. Running executions
// are unaffected by edits because they execute against a node snapshot.
type Graph struct {
	persistence persistence.Persistence
	registry    *registry.Registry
}

// NewGraph creates a new graph service.
func NewGraph(persistence persistence.Persistence, registry *registry.Registry) *Graph {
	return &Graph{
		persistence: persistence,
		registry:    registry,
	}
}

// editableWorkflow loads the workflow and rejects edits on archived ones.
func (g *Graph) editableWorkflow(ctx context.Context, workflowID string) (*models.Workflow, error) {
	workflow, err := g.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow == nil {
		return nil, persistence.ErrWorkflowNotFound
	}

	if workflow.Status == models.WorkflowStatusArchived {
		return nil, ErrWorkflowArchived
	}

	return workflow, nil
}

// ListNodes returns the nodes of a workflow.
func (g *Graph) ListNodes(ctx context.Context, workflowID string) ([]*models.WorkflowNode, error) {
	if _, err := g.persistence.WorkflowRepository().GetByID(ctx, workflowID); err != nil {
		return nil, err
	}

	return g.persistence.NodeRepository().ListByWorkflow(ctx, workflowID)
}

// GetNode retrieves a node by its graph identifier.
func (g *Graph) GetNode(ctx context.Context, workflowID, nodeID string) (*models.WorkflowNode, error) {
	return g.persistence.NodeRepository().GetByNodeID(ctx, workflowID, nodeID)
}

// CreateNode validates and adds a node to the workflow graph.
func (g *Graph) CreateNode(ctx context.Context, workflowID string, node *models.WorkflowNode) (*models.WorkflowNode, error) {
	if _, err := g.editableWorkflow(ctx, workflowID); err != nil {
		return nil, err
	}

	node.ID = uuid.New().String()
	node.WorkflowID = workflowID

	if node.Config == nil {
		node.Config = make(map[string]any)
	}

	if err := g.registry.ValidateNode(node); err != nil {
		return nil, NewValidationError("CreateNode", "INVALID_NODE_CONFIG", err.Error(), ErrInvalidNodeConfig)
	}

	if err := g.persistence.NodeRepository().Save(ctx, node); err != nil {
		return nil, fmt.Errorf("failed to save node: %w", err)
	}

	return node, nil
}

// UpdateNode updates a node's config, name, position, and retry policy. The
// node type cannot change.
func (g *Graph) UpdateNode(ctx context.Context, workflowID, nodeID string, node *models.WorkflowNode) (*models.WorkflowNode, error) {
	if _, err := g.editableWorkflow(ctx, workflowID); err != nil {
		return nil, err
	}

	existing, err := g.persistence.NodeRepository().GetByNodeID(ctx, workflowID, nodeID)
	if err != nil {
		return nil, err
	}

	existing.Name = node.Name
	existing.Config = node.Config
	existing.PositionX = node.PositionX
	existing.PositionY = node.PositionY
	existing.ExecutionOrder = node.ExecutionOrder
	existing.IsOptional = node.IsOptional
	existing.RetryLimit = node.RetryLimit
	existing.TimeoutMs = node.TimeoutMs

	if existing.Config == nil {
		existing.Config = make(map[string]any)
	}

	if err := g.registry.ValidateNode(existing); err != nil {
		return nil, NewValidationError("UpdateNode", "INVALID_NODE_CONFIG", err.Error(), ErrInvalidNodeConfig)
	}

	if err := g.persistence.NodeRepository().Save(ctx, existing); err != nil {
		return nil, fmt.Errorf("failed to update node: %w", err)
	}

	return existing, nil
}

// DeleteNode removes a node and every connection touching it.
func (g *Graph) DeleteNode(ctx context.Context, workflowID, nodeID string) error {
	if _, err := g.editableWorkflow(ctx, workflowID); err != nil {
		return err
	}

	if _, err := g.persistence.NodeRepository().GetByNodeID(ctx, workflowID, nodeID); err != nil {
		return err
	}

	connections, err := g.persistence.ConnectionRepository().ListByWorkflow(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("failed to list connections: %w", err)
	}

	for _, connection := range connections {
		if connection.SourceNodeID != nodeID && connection.TargetNodeID != nodeID {
			continue
		}

		if err := g.persistence.ConnectionRepository().Delete(ctx, workflowID, connection.EdgeID); err != nil {
			return fmt.Errorf("failed to delete connection %s: %w", connection.EdgeID, err)
		}
	}

	if err := g.persistence.NodeRepository().Delete(ctx, workflowID, nodeID); err != nil {
		return fmt.Errorf("failed to delete node: %w", err)
	}

	return nil
}

// ListConnections returns the edges of a workflow.
func (g *Graph) ListConnections(ctx context.Context, workflowID string) ([]*models.WorkflowConnection, error) {
	if _, err := g.persistence.WorkflowRepository().GetByID(ctx, workflowID); err != nil {
		return nil, err
	}

	return g.persistence.ConnectionRepository().ListByWorkflow(ctx, workflowID)
}

// CreateConnection validates and adds an edge to the workflow graph. The
// resulting graph must stay acyclic.
func (g *Graph) CreateConnection(ctx context.Context, workflowID string, connection *models.WorkflowConnection) (*models.WorkflowConnection, error) {
	if _, err := g.editableWorkflow(ctx, workflowID); err != nil {
		return nil, err
	}

	connection.ID = uuid.New().String()
	connection.WorkflowID = workflowID

	nodes, err := g.persistence.NodeRepository().ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}

	connections, err := g.persistence.ConnectionRepository().ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}

	if err := execution.ValidateGraph(nodes, append(connections, connection)); err != nil {
		return nil, NewValidationError("CreateConnection", "INVALID_CONNECTION", err.Error(), ErrInvalidConnectionData)
	}

	if err := g.persistence.ConnectionRepository().Save(ctx, connection); err != nil {
		return nil, fmt.Errorf("failed to save connection: %w", err)
	}

	return connection, nil
}

// DeleteConnection removes an edge by its graph identifier.
func (g *Graph) DeleteConnection(ctx context.Context, workflowID, edgeID string) error {
	if _, err := g.editableWorkflow(ctx, workflowID); err != nil {
		return err
	}

	return g.persistence.ConnectionRepository().Delete(ctx, workflowID, edgeID)
}

// SyncNodes atomically replaces the node set of a workflow. This backs the
// visual editor's bulk canvas save.
func (g *Graph) SyncNodes(ctx context.Context, workflowID string, nodes []*models.WorkflowNode) ([]*models.WorkflowNode, error) {
	if _, err := g.editableWorkflow(ctx, workflowID); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(nodes))

	for _, node := range nodes {
		if node.NodeID == "" {
			return nil, NewValidationError("SyncNodes", "INVALID_NODE_CONFIG", "node_id is required", ErrInvalidNodeConfig)
		}

		if seen[node.NodeID] {
			return nil, NewValidationError("SyncNodes", "INVALID_NODE_CONFIG",
				fmt.Sprintf("duplicate node id %q", node.NodeID), ErrInvalidNodeConfig)
		}

		seen[node.NodeID] = true

		node.WorkflowID = workflowID
		if node.ID == "" {
			node.ID = uuid.New().String()
		}

		if node.Config == nil {
			node.Config = make(map[string]any)
		}

		if err := g.registry.ValidateNode(node); err != nil {
			return nil, NewValidationError("SyncNodes", "INVALID_NODE_CONFIG",
				fmt.Sprintf("node %s: %v", node.NodeID, err), ErrInvalidNodeConfig)
		}
	}

	connections, err := g.persistence.ConnectionRepository().ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}

	// Edges referencing nodes that disappear from the canvas go with them.
	kept := make([]*models.WorkflowConnection, 0, len(connections))

	for _, connection := range connections {
		if seen[connection.SourceNodeID] && seen[connection.TargetNodeID] {
			kept = append(kept, connection)
		}
	}

	if err := execution.ValidateGraph(nodes, kept); err != nil {
		return nil, NewValidationError("SyncNodes", "INVALID_GRAPH", err.Error(), ErrInvalidNodeConfig)
	}

	if err := g.persistence.NodeRepository().ReplaceAll(ctx, workflowID, nodes); err != nil {
		return nil, fmt.Errorf("failed to replace nodes: %w", err)
	}

	if len(kept) != len(connections) {
		if err := g.persistence.ConnectionRepository().ReplaceAll(ctx, workflowID, kept); err != nil {
			return nil, fmt.Errorf("failed to prune connections: %w", err)
		}
	}

	return nodes, nil
}

// SyncConnections atomically replaces the edge set of a workflow.
func (g *Graph) SyncConnections(ctx context.Context, workflowID string, connections []*models.WorkflowConnection) ([]*models.WorkflowConnection, error) {
	if _, err := g.editableWorkflow(ctx, workflowID); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(connections))

	for _, connection := range connections {
		if connection.EdgeID == "" {
			return nil, NewValidationError("SyncConnections", "INVALID_CONNECTION", "edge_id is required", ErrInvalidConnectionData)
		}

		if seen[connection.EdgeID] {
			return nil, NewValidationError("SyncConnections", "INVALID_CONNECTION",
				fmt.Sprintf("duplicate edge id %q", connection.EdgeID), ErrInvalidConnectionData)
		}

		seen[connection.EdgeID] = true

		connection.WorkflowID = workflowID
		if connection.ID == "" {
			connection.ID = uuid.New().String()
		}
	}

	nodes, err := g.persistence.NodeRepository().ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}

	if err := execution.ValidateGraph(nodes, connections); err != nil {
		return nil, NewValidationError("SyncConnections", "INVALID_GRAPH", err.Error(), ErrInvalidConnectionData)
	}

	if err := g.persistence.ConnectionRepository().ReplaceAll(ctx, workflowID, connections); err != nil {
		return nil, fmt.Errorf("failed to replace connections: %w", err)
	}

	return connections, nil
}
