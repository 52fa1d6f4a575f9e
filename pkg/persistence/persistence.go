// Package persistence provides the data storage abstraction for workflows,
// executions, triggers, schedules, and analytics rollups.
package persistence

import (
	"context"
	"time"

	"github.com/cascadehq/cascade/pkg/models"
)

// Persistence aggregates the repositories of one storage backend.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	NodeRepository() NodeRepository
	ConnectionRepository() ConnectionRepository
	TriggerRepository() TriggerRepository
	ExecutionRepository() ExecutionRepository
	ScheduleRepository() ScheduleRepository
	RollupRepository() RollupRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ListWorkflowsOptions filters and pages workflow listings.
type ListWorkflowsOptions struct {
	OrganizationID string
	Status         *models.WorkflowStatus
	Limit          int
	Offset         int
}

// WorkflowRepository stores workflow definitions and aggregate counters.
type WorkflowRepository interface {
	List(ctx context.Context, opts ListWorkflowsOptions) ([]*models.Workflow, error)
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error

	// IncrementCounters bumps the aggregate counters after a terminal
	// execution. Counters are never decremented here; RecomputeCounters is
	// the only way to reset them from execution history.
	IncrementCounters(ctx context.Context, workflowID string, succeeded bool, executedAt time.Time) error
	RecomputeCounters(ctx context.Context, workflowID string) error
}

// NodeRepository stores workflow nodes keyed by (workflow_id, node_id).
type NodeRepository interface {
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowNode, error)
	GetByNodeID(ctx context.Context, workflowID, nodeID string) (*models.WorkflowNode, error)
	Save(ctx context.Context, node *models.WorkflowNode) error
	Delete(ctx context.Context, workflowID, nodeID string) error

	// ReplaceAll atomically replaces every node of a workflow, matching by
	// the natural key. Used by bulk canvas saves from the visual editor.
	ReplaceAll(ctx context.Context, workflowID string, nodes []*models.WorkflowNode) error
}

// ConnectionRepository stores edges keyed by (workflow_id, edge_id).
type ConnectionRepository interface {
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowConnection, error)
	Save(ctx context.Context, connection *models.WorkflowConnection) error
	Delete(ctx context.Context, workflowID, edgeID string) error
	ReplaceAll(ctx context.Context, workflowID string, connections []*models.WorkflowConnection) error
}

// TriggerRepository stores trigger bindings.
type TriggerRepository interface {
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowTrigger, error)
	GetByID(ctx context.Context, id string) (*models.WorkflowTrigger, error)
	Save(ctx context.Context, trigger *models.WorkflowTrigger) error
	Delete(ctx context.Context, id string) error

	// FindActiveByEvent returns active event triggers matching the event
	// class; condition trees are evaluated by the caller.
	FindActiveByEvent(ctx context.Context, module, eventType string) ([]*models.WorkflowTrigger, error)
}

// ListExecutionsOptions filters execution history reads.
type ListExecutionsOptions struct {
	WorkflowID string
	Status     *models.ExecutionStatus
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

// ExecutionRepository stores executions and their node executions, variables,
// logs, and delay wake-ups.
type ExecutionRepository interface {
	// Create persists the execution together with one NodeExecution per
	// node in a single transaction.
	Create(ctx context.Context, execution *models.WorkflowExecution, nodes []*models.NodeExecution) error

	GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error)
	Update(ctx context.Context, execution *models.WorkflowExecution) error
	List(ctx context.Context, opts ListExecutionsOptions) ([]*models.WorkflowExecution, error)

	NodeExecutions(ctx context.Context, executionID string) ([]*models.NodeExecution, error)
	UpdateNodeExecution(ctx context.Context, nodeExecution *models.NodeExecution) error

	SaveVariables(ctx context.Context, executionID string, variables []*models.ExecutionVariable) error
	Variables(ctx context.Context, executionID string) ([]*models.ExecutionVariable, error)

	AppendLog(ctx context.Context, log *models.ExecutionLog) error
	Logs(ctx context.Context, executionID string) ([]*models.ExecutionLog, error)

	CreateDelayWakeup(ctx context.Context, wakeup *models.DelayWakeup) error
	DueDelayWakeups(ctx context.Context, now time.Time, limit int) ([]*models.DelayWakeup, error)
	DeleteDelayWakeup(ctx context.Context, id string) error
}

// ScheduleRepository stores the durable schedule entries the scheduler polls.
type ScheduleRepository interface {
	Save(ctx context.Context, entry *models.ScheduleEntry) error
	Delete(ctx context.Context, id string) error
	DueSchedules(ctx context.Context, now time.Time, limit int) ([]*models.ScheduleEntry, error)
}

// RollupRepository stores persisted analytics rollups.
type RollupRepository interface {
	Upsert(ctx context.Context, rollup *models.AnalyticsRollup) error
	Range(ctx context.Context, workflowID string, period models.RollupPeriod, from, to time.Time) ([]*models.AnalyticsRollup, error)
}
