package services

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
)

// ErrWorkflowNotFound is returned when a workflow is not found.
var ErrWorkflowNotFound = persistence.ErrWorkflowNotFound

// Allowed status transitions. Archived is a dead end; everything else moves
// freely between draft, active, and paused.
var workflowTransitions = map[models.WorkflowStatus][]models.WorkflowStatus{
	models.WorkflowStatusDraft:    {models.WorkflowStatusActive, models.WorkflowStatusArchived},
	models.WorkflowStatusActive:   {models.WorkflowStatusPaused, models.WorkflowStatusDraft, models.WorkflowStatusArchived},
	models.WorkflowStatusPaused:   {models.WorkflowStatusActive, models.WorkflowStatusDraft, models.WorkflowStatusArchived},
	models.WorkflowStatusArchived: {},
}

type Workflow struct {
	persistence persistence.Persistence
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(persistence persistence.Persistence) *Workflow {
	return &Workflow{
		persistence: persistence,
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListWorkflowsRequest contains options for listing workflows.
type ListWorkflowsRequest struct {
	// Pagination
	Limit  int `validate:"min=1,max=100"`
	Offset int `validate:"min=0"`

	// Filtering
	OrganizationID string
	Status         *models.WorkflowStatus
}

// ListWorkflowsResponse contains the result of listing workflows.
type ListWorkflowsResponse struct {
	Workflows   []*models.Workflow `json:"workflows"`
	HasNextPage bool               `json:"has_next_page"`
}

// ListWorkflows retrieves workflows with filtering and pagination.
func (w *Workflow) ListWorkflows(ctx context.Context, req ListWorkflowsRequest) (*ListWorkflowsResponse, error) {
	if err := w.validateListWorkflowsRequest(&req); err != nil {
		return nil, err
	}

	// Over-fetch by one row to detect a next page without a count query.
	opts := persistence.ListWorkflowsOptions{
		OrganizationID: req.OrganizationID,
		Status:         req.Status,
		Limit:          req.Limit + 1,
		Offset:         req.Offset,
	}

	workflows, err := w.persistence.WorkflowRepository().List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	hasNextPage := len(workflows) > req.Limit
	if hasNextPage {
		workflows = workflows[:req.Limit]
	}

	return &ListWorkflowsResponse{
		Workflows:   workflows,
		HasNextPage: hasNextPage,
	}, nil
}

// validateListWorkflowsRequest validates and sets defaults for the request.
func (w *Workflow) validateListWorkflowsRequest(req *ListWorkflowsRequest) error {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	if req.Limit > 100 {
		req.Limit = 100
	}

	if req.Offset < 0 {
		req.Offset = 0
	}

	if req.Status != nil {
		allowedStatuses := []models.WorkflowStatus{
			models.WorkflowStatusDraft,
			models.WorkflowStatusActive,
			models.WorkflowStatusPaused,
			models.WorkflowStatusArchived,
		}

		if !slices.Contains(allowedStatuses, *req.Status) {
			return NewValidationError(
				"validateListWorkflowsRequest",
				"INVALID_STATUS",
				fmt.Sprintf("invalid status '%s'", *req.Status),
				ErrInvalidStatus,
			)
		}
	}

	if req.OrganizationID != "" {
		req.OrganizationID = strings.TrimSpace(req.OrganizationID)
		if req.OrganizationID == "" {
			return ErrEmptyOrganizationID
		}
	}

	return nil
}

// FetchByID retrieves a workflow by its ID.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if workflow == nil {
		return nil, ErrWorkflowNotFound
	}

	return workflow, nil
}

// Create adds a new workflow to the repository. New workflows start as
// drafts unless the caller says otherwise.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow.OrganizationID == "" {
		return nil, ErrEmptyOrganizationID
	}

	now := time.Now().UTC()
	workflow.ID = uuid.New().String()
	workflow.CreatedAt = now
	workflow.UpdatedAt = now

	if workflow.Status == "" {
		workflow.Status = models.WorkflowStatusDraft
	}

	err := w.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	return workflow, nil
}

// Update modifies an existing workflow by its ID. Archived workflows are
// immutable.
func (w *Workflow) Update(ctx context.Context, workflowID string, workflow *models.Workflow) (*models.Workflow, error) {
	existing, err := w.FetchByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if existing.Status == models.WorkflowStatusArchived {
		return nil, ErrWorkflowArchived
	}

	workflow.ID = workflowID
	workflow.OrganizationID = existing.OrganizationID
	workflow.CreatedAt = existing.CreatedAt
	workflow.UpdatedAt = time.Now().UTC()

	err = w.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	return workflow, nil
}

// UpdateStatus moves a workflow through its lifecycle.
func (w *Workflow) UpdateStatus(ctx context.Context, workflowID string, status models.WorkflowStatus) (*models.Workflow, error) {
	existing, err := w.FetchByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if existing.Status == status {
		return existing, nil
	}

	allowed, ok := workflowTransitions[existing.Status]
	if !ok || !slices.Contains(allowed, status) {
		if existing.Status == models.WorkflowStatusArchived {
			return nil, ErrWorkflowArchived
		}

		return nil, NewValidationError(
			"UpdateStatus",
			"INVALID_STATUS",
			fmt.Sprintf("cannot move workflow from %s to %s", existing.Status, status),
			ErrInvalidStatus,
		)
	}

	existing.Status = status
	existing.UpdatedAt = time.Now().UTC()

	if err := w.persistence.WorkflowRepository().Save(ctx, existing); err != nil {
		return nil, fmt.Errorf("failed to update workflow status: %w", err)
	}

	return existing, nil
}

// Delete soft-deletes a workflow by its ID.
func (w *Workflow) Delete(ctx context.Context, workflowID string) error {
	if _, err := w.FetchByID(ctx, workflowID); err != nil {
		return err
	}

	err := w.persistence.WorkflowRepository().Delete(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	return nil
}

// RecomputeCounters rebuilds the aggregate execution counters from history.
func (w *Workflow) RecomputeCounters(ctx context.Context, workflowID string) error {
	if _, err := w.FetchByID(ctx, workflowID); err != nil {
		return err
	}

	return w.persistence.WorkflowRepository().RecomputeCounters(ctx, workflowID)
}
