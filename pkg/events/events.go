// Package events defines the event types exchanged between the API,
// trigger evaluator and workers over the event bus.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/cascadehq/cascade/pkg/models"
)

type EventType string

// Topic is the single bus topic all lifecycle events travel on.
const Topic = "cascade.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Execution lifecycle.
	ExecutionQueuedEvent    EventType = "execution.queued"
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCancelledEvent EventType = "execution.cancelled"
	ExecutionPausedEvent    EventType = "execution.paused"
	ExecutionResumedEvent   EventType = "execution.resumed"
	ExecutionRetriedEvent   EventType = "execution.retried"

	// Per-node progress.
	NodeCompletedEvent EventType = "node.completed"
	NodeFailedEvent    EventType = "node.failed"

	// Ingress from external systems, consumed by the trigger evaluator.
	DomainEventReceivedEvent EventType = "domain.event.received"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	WorkerID   string         `json:"worker_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

// ExecutionQueued asks a worker to pick up a freshly created execution.
type ExecutionQueued struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	TriggerID   string         `json:"trigger_id,omitempty"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
}

func (e ExecutionQueued) GetType() EventType {
	return ExecutionQueuedEvent
}

type ExecutionStarted struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	Duration    time.Duration `json:"duration"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	Error       string        `json:"error"`
	Duration    time.Duration `json:"duration"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type ExecutionCancelled struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	Reason      string `json:"reason,omitempty"`
}

func (e ExecutionCancelled) GetType() EventType {
	return ExecutionCancelledEvent
}

type ExecutionPaused struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	// NodeID is the node the execution is waiting on, set when the pause
	// came from a DELAY or SCHEDULE node rather than an operator.
	NodeID   string     `json:"node_id,omitempty"`
	ResumeAt *time.Time `json:"resume_at,omitempty"`
}

func (e ExecutionPaused) GetType() EventType {
	return ExecutionPausedEvent
}

type ExecutionResumed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
}

func (e ExecutionResumed) GetType() EventType {
	return ExecutionResumedEvent
}

// ExecutionRetried re-queues a failed execution, resuming from the first
// node that never completed.
type ExecutionRetried struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	Attempt     int    `json:"attempt"`
}

func (e ExecutionRetried) GetType() EventType {
	return ExecutionRetriedEvent
}

type NodeCompleted struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	NodeID      string         `json:"node_id"`
	Output      map[string]any `json:"output,omitempty"`
	DurationMs  int64          `json:"duration_ms"`
}

func (e NodeCompleted) GetType() EventType {
	return NodeCompletedEvent
}

type NodeFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
	Error       string `json:"error"`
	Attempt     int    `json:"attempt"`
}

func (e NodeFailed) GetType() EventType {
	return NodeFailedEvent
}

// DomainEventReceived is a business event from an external system
// (CRM, billing, calendar). The trigger evaluator matches it against
// active workflow triggers.
type DomainEventReceived struct {
	BaseEvent

	Event models.DomainEvent `json:"event"`
}

func (e DomainEventReceived) GetType() EventType {
	return DomainEventReceivedEvent
}
