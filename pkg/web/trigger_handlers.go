package web

import (
	"github.com/gofiber/fiber/v3"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/services"
)

func triggerRequestToService(req *TriggerRequest) *services.CreateTriggerRequest {
	return &services.CreateTriggerRequest{
		Type:           models.TriggerType(req.Type),
		Name:           req.Name,
		Module:         req.Module,
		EventType:      req.EventType,
		EntityType:     req.EntityType,
		Conditions:     req.Conditions,
		DelayMs:        req.DelayMs,
		IsActive:       req.IsActive,
		CronExpression: req.CronExpression,
		Frequency:      models.ScheduleFrequency(req.Frequency),
		Timezone:       req.Timezone,
	}
}

func (h *APIHandlers) GetWorkflowTriggers(c fiber.Ctx) error {
	workflow, err := h.authorizeWorkflow(c, c.Params("id"), false)
	if err != nil {
		return handleServiceError(c, err)
	}

	triggers, err := h.triggerService.ListByWorkflow(c.Context(), workflow.ID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"triggers": triggers})
}

func (h *APIHandlers) CreateWorkflowTrigger(c fiber.Ctx) error {
	var req TriggerRequest
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

	trigger, err := h.triggerService.Create(c.Context(), workflow.ID, triggerRequestToService(&req))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(trigger)
}

func (h *APIHandlers) GetTrigger(c fiber.Ctx) error {
	trigger, err := h.triggerService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	if _, err := h.authorizeWorkflow(c, trigger.WorkflowID, false); err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(trigger)
}

func (h *APIHandlers) UpdateTrigger(c fiber.Ctx) error {
	var req TriggerRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	trigger, err := h.triggerService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	if _, err := h.authorizeWorkflow(c, trigger.WorkflowID, true); err != nil {
		return handleServiceError(c, err)
	}

	updated, err := h.triggerService.Update(c.Context(), trigger.ID, triggerRequestToService(&req))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteTrigger(c fiber.Ctx) error {
	trigger, err := h.triggerService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	if _, err := h.authorizeWorkflow(c, trigger.WorkflowID, true); err != nil {
		return handleServiceError(c, err)
	}

	if err := h.triggerService.Delete(c.Context(), trigger.ID); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
