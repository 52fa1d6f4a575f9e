// Package testutil provides shared builders and helpers for tests.
package testutil

import (
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/cascadehq/cascade/pkg/models"
)

// Logger returns a quiet slog logger for tests.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// CreateTestWorkflow builds an active workflow with overridable defaults.
func CreateTestWorkflow(overrides ...func(*models.Workflow)) *models.Workflow {
	workflow := &models.Workflow{
		ID:             uuid.New().String(),
		OrganizationID: "org-test",
		Name:           "Test Workflow",
		Description:    "A workflow for testing",
		Status:         models.WorkflowStatusActive,
	}

	for _, override := range overrides {
		override(workflow)
	}

	return workflow
}

// WithStatus sets the workflow status.
func WithStatus(status models.WorkflowStatus) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Status = status
	}
}

// WithOrganization sets the owning organization.
func WithOrganization(organizationID string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.OrganizationID = organizationID
	}
}

// CreateTestNode builds a workflow node with overridable defaults.
func CreateTestNode(workflowID, nodeID string, nodeType models.NodeType, config map[string]any) *models.WorkflowNode {
	return &models.WorkflowNode{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		NodeID:     nodeID,
		Type:       nodeType,
		Name:       nodeID,
		Config:     config,
	}
}

// CreateTestConnection builds an edge between two nodes.
func CreateTestConnection(workflowID, edgeID, source, target string) *models.WorkflowConnection {
	return &models.WorkflowConnection{
		ID:           uuid.New().String(),
		WorkflowID:   workflowID,
		EdgeID:       edgeID,
		SourceNodeID: source,
		TargetNodeID: target,
	}
}
