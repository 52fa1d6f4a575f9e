package web

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/cascadehq/cascade/pkg/auth"
)

// BearerToken extracts the Authorization bearer token into the request
// context, where the auth checker reads it.
func BearerToken() fiber.Handler {
	return func(c fiber.Ctx) error {
		header := c.Get("Authorization")
		if token, ok := strings.CutPrefix(header, "Bearer "); ok && token != "" {
			c.SetContext(context.WithValue(c.Context(), auth.TokenKey, token))
		}

		return c.Next()
	}
}

// RegisterRoutes mounts the API surface onto the app.
func (h *APIHandlers) RegisterRoutes(app *fiber.App) {
	app.Get("/health", h.HealthCheck)

	w := app.Group("/workflows")
	w.Get("/", h.GetWorkflows)
	w.Post("/", h.CreateWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Patch("/:id", h.UpdateWorkflow)
	w.Delete("/:id", h.DeleteWorkflow)
	w.Post("/:id/status", h.UpdateWorkflowStatus)

	// Graph endpoints. PUT replaces the whole node or edge set from a bulk
	// canvas save.
	w.Get("/:id/nodes", h.GetWorkflowNodes)
	w.Post("/:id/nodes", h.CreateWorkflowNode)
	w.Put("/:id/nodes", h.SyncWorkflowNodes)
	w.Get("/:id/nodes/:nodeId", h.GetWorkflowNode)
	w.Patch("/:id/nodes/:nodeId", h.UpdateWorkflowNode)
	w.Delete("/:id/nodes/:nodeId", h.DeleteWorkflowNode)

	w.Get("/:id/connections", h.GetWorkflowConnections)
	w.Post("/:id/connections", h.CreateWorkflowConnection)
	w.Put("/:id/connections", h.SyncWorkflowConnections)
	w.Delete("/:id/connections/:edgeId", h.DeleteWorkflowConnection)

	w.Get("/:id/triggers", h.GetWorkflowTriggers)
	w.Post("/:id/triggers", h.CreateWorkflowTrigger)

	w.Post("/:id/executions", h.TriggerExecution)
	w.Get("/:id/executions", h.GetWorkflowExecutions)
	w.Get("/:id/analytics", h.GetWorkflowAnalytics)

	t := app.Group("/triggers")
	t.Get("/:id", h.GetTrigger)
	t.Patch("/:id", h.UpdateTrigger)
	t.Delete("/:id", h.DeleteTrigger)

	e := app.Group("/executions")
	e.Post("/bulk", h.BulkExecutions)
	e.Get("/:id", h.GetExecution)
	e.Post("/:id/cancel", h.CancelExecution)
	e.Post("/:id/pause", h.PauseExecution)
	e.Post("/:id/resume", h.ResumeExecution)
	e.Post("/:id/retry", h.RetryExecution)
}
