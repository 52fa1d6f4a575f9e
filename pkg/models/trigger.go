package models

import "time"

// TriggerType distinguishes how a trigger is fired.
type TriggerType string

const (
	TriggerTypeEvent    TriggerType = "event"    // Matched against domain events
	TriggerTypeSchedule TriggerType = "schedule" // Fired by the scheduler poller
	TriggerTypeManual   TriggerType = "manual"   // Fired through the API
)

// WorkflowTrigger binds a workflow to a class of domain events or to a
// schedule. Event triggers match on (module, event type[, entity type]) and an
// optional condition tree over the event payload.
type WorkflowTrigger struct {
	ID         string      `json:"id"`
	WorkflowID string      `json:"workflow_id" validate:"required"`
	Type       TriggerType `json:"type"        validate:"required"`
	Name       string      `json:"name"        validate:"required,min=1"`

	Module     string          `json:"module,omitempty"`
	EventType  string          `json:"event_type,omitempty"`
	EntityType string          `json:"entity_type,omitempty"`
	Conditions *ConditionGroup `json:"conditions,omitempty"`

	// DelayMs postpones the queued execution start after a match.
	DelayMs  int64 `json:"delay_ms"  validate:"min=0"`
	IsActive bool  `json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DomainEvent is an incoming event from another module (CRM, projects,
// billing) offered to the trigger evaluator.
type DomainEvent struct {
	ID         string         `json:"id"`
	Module     string         `json:"module"      validate:"required"`
	EventType  string         `json:"event_type"  validate:"required"`
	EntityType string         `json:"entity_type,omitempty"`
	EntityID   string         `json:"entity_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Matches reports whether the trigger's event class matches the event.
// EntityType is only compared when the trigger constrains it.
func (t *WorkflowTrigger) Matches(event DomainEvent) bool {
	if t.Type != TriggerTypeEvent || !t.IsActive {
		return false
	}

	if t.Module != event.Module || t.EventType != event.EventType {
		return false
	}

	if t.EntityType != "" && t.EntityType != event.EntityType {
		return false
	}

	return true
}
