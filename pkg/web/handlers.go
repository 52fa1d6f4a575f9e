package web

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/cascadehq/cascade/pkg/analytics"
	"github.com/cascadehq/cascade/pkg/auth"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/registry"
	"github.com/cascadehq/cascade/pkg/services"
)

// APIHandlers bundles the services behind the HTTP surface.
type APIHandlers struct {
	logger           *slog.Logger
	workflowService  *services.Workflow
	graphService     *services.Graph
	triggerService   *services.Trigger
	executionService *services.Execution
	aggregator       *analytics.Aggregator
	registry         *registry.Registry
	checker          auth.Checker
	validator        *validator.Validate
}

func NewAPIHandlers(
	logger *slog.Logger,
	workflowService *services.Workflow,
	graphService *services.Graph,
	triggerService *services.Trigger,
	executionService *services.Execution,
	aggregator *analytics.Aggregator,
	registry *registry.Registry,
	checker auth.Checker,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		logger:           logger,
		workflowService:  workflowService,
		graphService:     graphService,
		triggerService:   triggerService,
		executionService: executionService,
		aggregator:       aggregator,
		registry:         registry,
		checker:          checker,
		validator:        validator,
	}
}

// authorize checks the caller's role within an organization. Writes need an
// editor role; reads accept any role. Errors are raw service errors; callers
// map them through handleServiceError so a non-nil error always reaches the
// problem response exactly once.
func (h *APIHandlers) authorize(c fiber.Ctx, organizationID string, write bool) error {
	role, err := h.checker.RequirePermission(c.Context(), organizationID)
	if err != nil {
		return err
	}

	if write && !role.CanEdit() {
		return fmt.Errorf("%w: editor role required", auth.ErrForbidden)
	}

	return nil
}

// authorizeWorkflow loads a workflow and checks access against its owning
// organization. The workflow is non-nil exactly when the error is nil.
func (h *APIHandlers) authorizeWorkflow(c fiber.Ctx, workflowID string, write bool) (*models.Workflow, error) {
	workflow, err := h.workflowService.FetchByID(c.Context(), workflowID)
	if err != nil {
		return nil, err
	}

	if err := h.authorize(c, workflow.OrganizationID, write); err != nil {
		return nil, err
	}

	return workflow, nil
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	req := services.ListWorkflowsRequest{
		OrganizationID: c.Query("organization_id"),
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return badRequest(c, "Invalid limit: "+err.Error())
		}

		req.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return badRequest(c, "Invalid offset: "+err.Error())
		}

		req.Offset = offset
	}

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.WorkflowStatus(statusStr)
		req.Status = &status
	}

	if req.OrganizationID == "" {
		return badRequest(c, "organization_id query parameter is required")
	}

	if err := h.authorize(c, req.OrganizationID, false); err != nil {
		return handleServiceError(c, err)
	}

	result, err := h.workflowService.ListWorkflows(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows":     result.Workflows,
		"has_next_page": result.HasNextPage,
		"pagination": fiber.Map{
			"limit":  req.Limit,
			"offset": req.Offset,
		},
	})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflow, err := h.authorizeWorkflow(c, c.Params("id"), false)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.authorize(c, req.OrganizationID, true); err != nil {
		return handleServiceError(c, err)
	}

	workflow := &models.Workflow{
		Name:           req.Name,
		Description:    req.Description,
		OrganizationID: req.OrganizationID,
		Metadata:       req.Metadata,
	}

	created, err := h.workflowService.Create(c.Context(), workflow)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.authorizeWorkflow(c, c.Params("id"), true)
	if err != nil {
		return handleServiceError(c, err)
	}

	// Apply partial updates; the graph is managed through its own endpoints.
	if req.Name != nil {
		existing.Name = *req.Name
	}

	if req.Description != nil {
		existing.Description = *req.Description
	}

	if req.Metadata != nil {
		existing.Metadata = req.Metadata
	}

	updated, err := h.workflowService.Update(c.Context(), existing.ID, existing)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) UpdateWorkflowStatus(c fiber.Ctx) error {
	var req UpdateWorkflowStatusRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.authorizeWorkflow(c, c.Params("id"), true)
	if err != nil {
		return handleServiceError(c, err)
	}

	updated, err := h.workflowService.UpdateStatus(c.Context(), existing.ID, req.Status)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	existing, err := h.authorizeWorkflow(c, c.Params("id"), true)
	if err != nil {
		return handleServiceError(c, err)
	}

	if err := h.workflowService.Delete(c.Context(), existing.ID); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"node_types": h.registry.Types(),
		"timestamp":  time.Now().UTC(),
	})
}
