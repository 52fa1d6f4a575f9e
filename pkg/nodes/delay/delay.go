// Package delay provides the delay node: it suspends the execution until a
// due time by handing the orchestrator a resume timestamp. The wait is
// durable; no worker goroutine sleeps on it.
package delay

import (
	"context"
	"fmt"
	"time"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/nodes"
)

// MaxDelay bounds a single delay node.
const MaxDelay = 7 * 24 * time.Hour

// Handler implements the delay node.
type Handler struct {
	now func() time.Time
}

// NewHandler creates a delay node handler.
func NewHandler() *Handler {
	return &Handler{now: time.Now}
}

// NewHandlerWithClock creates a delay handler with a fixed clock for tests.
func NewHandlerWithClock(now func() time.Time) *Handler {
	return &Handler{now: now}
}

// Type returns the node type.
func (h *Handler) Type() models.NodeType {
	return models.NodeTypeDelay
}

// Schema returns the JSON schema for delay node configuration.
func (h *Handler) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"delay_ms": map[string]any{
				"type":        "integer",
				"description": "Milliseconds to wait before the next node runs.",
				"minimum":     1,
				"maximum":     MaxDelay.Milliseconds(),
			},
		},
		"required": []string{"delay_ms"},
	}
}

// Validate bounds the delay to (0, 7 days].
func (h *Handler) Validate(config map[string]any) error {
	delayMs := nodes.ConfigInt(config, "delay_ms", 0)

	if delayMs <= 0 {
		return fmt.Errorf("%w: delay_ms must be positive", nodes.ErrInvalidConfig)
	}

	if time.Duration(delayMs)*time.Millisecond > MaxDelay {
		return fmt.Errorf("%w: delay_ms exceeds the 7 day maximum", nodes.ErrInvalidConfig)
	}

	return nil
}

// Execute computes the resume time. The orchestrator persists the wake-up
// and parks the execution.
func (h *Handler) Execute(_ context.Context, ec nodes.ExecContext) (*nodes.Result, error) {
	if err := h.Validate(ec.Node.Config); err != nil {
		return nil, err
	}

	delayMs := nodes.ConfigInt(ec.Node.Config, "delay_ms", 0)
	resumeAt := h.now().UTC().Add(time.Duration(delayMs) * time.Millisecond)

	return &nodes.Result{
		Output:   map[string]any{"resume_at": resumeAt.Format(time.RFC3339)},
		ResumeAt: &resumeAt,
	}, nil
}
