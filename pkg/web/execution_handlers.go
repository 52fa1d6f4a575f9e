package web

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/cascadehq/cascade/pkg/analytics"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/services"
)

func (h *APIHandlers) TriggerExecution(c fiber.Ctx) error {
	var req TriggerExecutionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow, err := h.authorizeWorkflow(c, c.Params("id"), true)
	if err != nil {
		return handleServiceError(c, err)
	}

	run, err := h.executionService.Trigger(c.Context(), workflow.ID, &services.TriggerExecutionRequest{
		TriggerData: req.TriggerData,
		Variables:   req.Variables,
		Priority:    models.ExecutionPriority(req.Priority),
		DelayMs:     req.DelayMs,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(run)
}

func (h *APIHandlers) GetWorkflowExecutions(c fiber.Ctx) error {
	workflow, err := h.authorizeWorkflow(c, c.Params("id"), false)
	if err != nil {
		return handleServiceError(c, err)
	}

	req := services.ListExecutionsRequest{WorkflowID: workflow.ID}

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
		status := models.ExecutionStatus(statusStr)
		req.Status = &status
	}

	runs, err := h.executionService.List(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"executions": runs})
}

// authorizeExecution loads an execution and checks access through its
// workflow's organization. The detail is non-nil exactly when the error is
// nil; callers map the error through handleServiceError.
func (h *APIHandlers) authorizeExecution(c fiber.Ctx, executionID string, write bool) (*services.ExecutionDetail, error) {
	detail, err := h.executionService.FetchByID(c.Context(), executionID)
	if err != nil {
		return nil, err
	}

	if err := h.authorize(c, detail.Execution.OrganizationID, write); err != nil {
		return nil, err
	}

	return detail, nil
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	detail, err := h.authorizeExecution(c, c.Params("id"), false)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(detail)
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	// The reason body is optional.
	var req CancelExecutionRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	detail, err := h.authorizeExecution(c, c.Params("id"), true)
	if err != nil {
		return handleServiceError(c, err)
	}

	if err := h.executionService.Cancel(c.Context(), detail.Execution.ID, req.Reason); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) PauseExecution(c fiber.Ctx) error {
	detail, err := h.authorizeExecution(c, c.Params("id"), true)
	if err != nil {
		return handleServiceError(c, err)
	}

	if err := h.executionService.Pause(c.Context(), detail.Execution.ID); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ResumeExecution(c fiber.Ctx) error {
	detail, err := h.authorizeExecution(c, c.Params("id"), true)
	if err != nil {
		return handleServiceError(c, err)
	}

	if err := h.executionService.Resume(c.Context(), detail.Execution.ID); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) RetryExecution(c fiber.Ctx) error {
	detail, err := h.authorizeExecution(c, c.Params("id"), true)
	if err != nil {
		return handleServiceError(c, err)
	}

	if err := h.executionService.Retry(c.Context(), detail.Execution.ID); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}

// BulkExecutions applies one control action to up to 100 executions. Every
// id is authorized against its own workflow's organization before anything
// runs, so a single response reports per-id outcomes without partial auth.
func (h *APIHandlers) BulkExecutions(c fiber.Ctx) error {
	var req BulkExecutionsRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	for _, executionID := range req.ExecutionIDs {
		detail, err := h.executionService.FetchByID(c.Context(), executionID)
		if err != nil {
			continue // Missing ids surface in the per-id results below.
		}

		if err := h.authorize(c, detail.Execution.OrganizationID, true); err != nil {
			return handleServiceError(c, err)
		}
	}

	results, err := h.executionService.Bulk(c.Context(), req.Action, req.ExecutionIDs)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"results": results})
}

func (h *APIHandlers) GetWorkflowAnalytics(c fiber.Ctx) error {
	workflow, err := h.authorizeWorkflow(c, c.Params("id"), false)
	if err != nil {
		return handleServiceError(c, err)
	}

	query := analytics.Query{
		WorkflowID:  workflow.ID,
		NodeID:      c.Query("node_id"),
		Granularity: analytics.Granularity(c.Query("granularity")),
	}

	from, err := parseTimeQuery(c.Query("from"), time.Now().UTC().AddDate(0, 0, -30))
	if err != nil {
		return badRequest(c, "Invalid from: "+err.Error())
	}

	to, err := parseTimeQuery(c.Query("to"), time.Now().UTC())
	if err != nil {
		return badRequest(c, "Invalid to: "+err.Error())
	}

	query.From = from
	query.To = to

	report, err := h.aggregator.Aggregate(c.Context(), query)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(report)
}

func parseTimeQuery(value string, fallback time.Time) (time.Time, error) {
	if value == "" {
		return fallback, nil
	}

	return time.Parse(time.RFC3339, value)
}
