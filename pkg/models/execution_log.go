package models

import "time"

// LogLevel of an execution log line.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Log categories used by the orchestrator.
const (
	LogCategoryLifecycle = "lifecycle"
	LogCategoryNode      = "node"
	LogCategoryTrigger   = "trigger"
	LogCategoryDelivery  = "delivery"
)

// ExecutionLog is one append-only log line attached to an execution.
type ExecutionLog struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"execution_id" validate:"required"`
	Level       LogLevel       `json:"level"`
	Message     string         `json:"message"      validate:"required"`
	Details     map[string]any `json:"details,omitempty"`
	Category    string         `json:"category,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
