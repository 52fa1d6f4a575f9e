package web

import (
	"github.com/gofiber/fiber/v3"

	"github.com/cascadehq/cascade/pkg/models"
)

func (h *APIHandlers) GetWorkflowNodes(c fiber.Ctx) error {
	workflow, err := h.authorizeWorkflow(c, c.Params("id"), false)
	if err != nil {
		return handleServiceError(c, err)
	}

	nodes, err := h.graphService.ListNodes(c.Context(), workflow.ID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"nodes": nodes})
}

func (h *APIHandlers) GetWorkflowNode(c fiber.Ctx) error {
	workflow, err := h.authorizeWorkflow(c, c.Params("id"), false)
	if err != nil {
		return handleServiceError(c, err)
	}

	node, err := h.graphService.GetNode(c.Context(), workflow.ID, c.Params("nodeId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(node)
}

func (h *APIHandlers) CreateWorkflowNode(c fiber.Ctx) error {
	var req NodeRequest
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

	node, err := h.graphService.CreateNode(c.Context(), workflow.ID, req.toModel(workflow.ID))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(node)
}

func (h *APIHandlers) UpdateWorkflowNode(c fiber.Ctx) error {
	var req NodeRequest
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

	node, err := h.graphService.UpdateNode(c.Context(), workflow.ID, c.Params("nodeId"), req.toModel(workflow.ID))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(node)
}

func (h *APIHandlers) DeleteWorkflowNode(c fiber.Ctx) error {
	workflow, err := h.authorizeWorkflow(c, c.Params("id"), true)
	if err != nil {
		return handleServiceError(c, err)
	}

	if err := h.graphService.DeleteNode(c.Context(), workflow.ID, c.Params("nodeId")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// SyncWorkflowNodes atomically replaces the node set from a bulk canvas save.
func (h *APIHandlers) SyncWorkflowNodes(c fiber.Ctx) error {
	var req struct {
		Nodes []NodeRequest `json:"nodes" validate:"required"`
	}

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

	nodes := make([]*models.WorkflowNode, len(req.Nodes))
	for i := range req.Nodes {
		nodes[i] = req.Nodes[i].toModel(workflow.ID)
	}

	synced, err := h.graphService.SyncNodes(c.Context(), workflow.ID, nodes)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"nodes": synced})
}

func (h *APIHandlers) GetWorkflowConnections(c fiber.Ctx) error {
	workflow, err := h.authorizeWorkflow(c, c.Params("id"), false)
	if err != nil {
		return handleServiceError(c, err)
	}

	connections, err := h.graphService.ListConnections(c.Context(), workflow.ID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"connections": connections})
}

func (h *APIHandlers) CreateWorkflowConnection(c fiber.Ctx) error {
	var req ConnectionRequest
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

	connection, err := h.graphService.CreateConnection(c.Context(), workflow.ID, req.toModel(workflow.ID))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(connection)
}

func (h *APIHandlers) DeleteWorkflowConnection(c fiber.Ctx) error {
	workflow, err := h.authorizeWorkflow(c, c.Params("id"), true)
	if err != nil {
		return handleServiceError(c, err)
	}

	if err := h.graphService.DeleteConnection(c.Context(), workflow.ID, c.Params("edgeId")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// SyncWorkflowConnections atomically replaces the edge set from a bulk
// canvas save.
func (h *APIHandlers) SyncWorkflowConnections(c fiber.Ctx) error {
	var req struct {
		Connections []ConnectionRequest `json:"connections" validate:"required"`
	}

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

	connections := make([]*models.WorkflowConnection, len(req.Connections))
	for i := range req.Connections {
		connections[i] = req.Connections[i].toModel(workflow.ID)
	}

	synced, err := h.graphService.SyncConnections(c.Context(), workflow.ID, connections)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"connections": synced})
}
