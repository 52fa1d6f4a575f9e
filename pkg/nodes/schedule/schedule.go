// Package schedule provides the schedule node: it suspends the execution
// until the next occurrence of a cron expression or coarse frequency.
package schedule

import (
	"context"
	"time"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/nodes"
)

// Handler implements the schedule node.
type Handler struct {
	now func() time.Time
}

// NewHandler creates a schedule node handler.
func NewHandler() *Handler {
	return &Handler{now: time.Now}
}

// NewHandlerWithClock creates a schedule handler with a fixed clock for tests.
func NewHandlerWithClock(now func() time.Time) *Handler {
	return &Handler{now: now}
}

// Type returns the node type.
func (h *Handler) Type() models.NodeType {
	return models.NodeTypeSchedule
}

// Schema returns the JSON schema for schedule node configuration.
func (h *Handler) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"cron_expression": map[string]any{
				"type":        "string",
				"description": "Five-field cron expression. Mutually exclusive with frequency.",
			},
			"frequency": map[string]any{
				"type": "string",
				"enum": []string{
					string(models.FrequencyHourly),
					string(models.FrequencyDaily),
					string(models.FrequencyWeekly),
					string(models.FrequencyMonthly),
				},
			},
			"timezone": map[string]any{
				"type":        "string",
				"description": "IANA timezone name applied to the schedule.",
			},
		},
	}
}

// Validate enforces the cron-xor-frequency rule and parses the expression.
func (h *Handler) Validate(config map[string]any) error {
	_, err := entryFromConfig(config)

	return err
}

// Execute computes the next occurrence after now and suspends until it.
func (h *Handler) Execute(_ context.Context, ec nodes.ExecContext) (*nodes.Result, error) {
	entry, err := entryFromConfig(ec.Node.Config)
	if err != nil {
		return nil, err
	}

	resumeAt, err := entry.NextAfter(h.now().UTC())
	if err != nil {
		return nil, err
	}

	return &nodes.Result{
		Output:   map[string]any{"resume_at": resumeAt.Format(time.RFC3339)},
		ResumeAt: &resumeAt,
	}, nil
}

func entryFromConfig(config map[string]any) (*models.ScheduleEntry, error) {
	entry := &models.ScheduleEntry{
		// Validate requires an owner; the node's schedule is not persisted
		// as a ScheduleEntry row, so any non-empty value serves.
		WorkflowID:     "node",
		CronExpression: nodes.ConfigString(config, "cron_expression", ""),
		Frequency:      models.ScheduleFrequency(nodes.ConfigString(config, "frequency", "")),
		Timezone:       nodes.ConfigString(config, "timezone", ""),
	}

	if err := entry.Validate(); err != nil {
		return nil, err
	}

	return entry, nil
}
