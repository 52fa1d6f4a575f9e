// Package memory provides an in-memory persistence implementation used by
// unit tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
)

// Persistence implements persistence.Persistence with mutex-protected maps.
// Reads return copies of the stored records so callers never share mutable
// state with the store.
type Persistence struct {
	mu sync.RWMutex

	workflows   map[string]*models.Workflow
	nodes       map[string]map[string]*models.WorkflowNode       // workflowID -> nodeID
	connections map[string]map[string]*models.WorkflowConnection // workflowID -> edgeID
	triggers    map[string]*models.WorkflowTrigger

	executions     map[string]*models.WorkflowExecution
	nodeExecutions map[string]map[string]*models.NodeExecution // executionID -> nodeID
	variables      map[string]map[string]*models.ExecutionVariable
	logs           map[string][]*models.ExecutionLog
	wakeups        map[string]*models.DelayWakeup

	schedules map[string]*models.ScheduleEntry
	rollups   map[string]*models.AnalyticsRollup // workflowID|period|bucket
}

// NewPersistence creates an empty in-memory store.
func NewPersistence() *Persistence {
	return &Persistence{
		workflows:      make(map[string]*models.Workflow),
		nodes:          make(map[string]map[string]*models.WorkflowNode),
		connections:    make(map[string]map[string]*models.WorkflowConnection),
		triggers:       make(map[string]*models.WorkflowTrigger),
		executions:     make(map[string]*models.WorkflowExecution),
		nodeExecutions: make(map[string]map[string]*models.NodeExecution),
		variables:      make(map[string]map[string]*models.ExecutionVariable),
		logs:           make(map[string][]*models.ExecutionLog),
		wakeups:        make(map[string]*models.DelayWakeup),
		schedules:      make(map[string]*models.ScheduleEntry),
		rollups:        make(map[string]*models.AnalyticsRollup),
	}
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return &workflowRepository{store: p}
}

func (p *Persistence) NodeRepository() persistence.NodeRepository {
	return &nodeRepository{store: p}
}

func (p *Persistence) ConnectionRepository() persistence.ConnectionRepository {
	return &connectionRepository{store: p}
}

func (p *Persistence) TriggerRepository() persistence.TriggerRepository {
	return &triggerRepository{store: p}
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return &executionRepository{store: p}
}

func (p *Persistence) ScheduleRepository() persistence.ScheduleRepository {
	return &scheduleRepository{store: p}
}

func (p *Persistence) RollupRepository() persistence.RollupRepository {
	return &rollupRepository{store: p}
}

// HealthCheck always succeeds for the in-memory store.
func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

// Close discards all stored data.
func (p *Persistence) Close(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.workflows = make(map[string]*models.Workflow)
	p.executions = make(map[string]*models.WorkflowExecution)

	return nil
}

type workflowRepository struct {
	store *Persistence
}

func (wr *workflowRepository) List(_ context.Context, opts persistence.ListWorkflowsOptions) ([]*models.Workflow, error) {
	wr.store.mu.RLock()
	defer wr.store.mu.RUnlock()

	var workflows []*models.Workflow

	for _, workflow := range wr.store.workflows {
		if workflow.DeletedAt != nil {
			continue
		}

		if opts.OrganizationID != "" && workflow.OrganizationID != opts.OrganizationID {
			continue
		}

		if opts.Status != nil && workflow.Status != *opts.Status {
			continue
		}

		copied := *workflow
		workflows = append(workflows, &copied)
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.After(workflows[j].CreatedAt)
	})

	return page(workflows, opts.Limit, opts.Offset), nil
}

func (wr *workflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	wr.store.mu.RLock()
	defer wr.store.mu.RUnlock()

	workflow, ok := wr.store.workflows[id]
	if !ok || workflow.DeletedAt != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	copied := *workflow

	return &copied, nil
}

func (wr *workflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	wr.store.mu.Lock()
	defer wr.store.mu.Unlock()

	copied := *workflow
	now := time.Now().UTC()
	copied.UpdatedAt = now

	if existing, ok := wr.store.workflows[workflow.ID]; ok {
		copied.CreatedAt = existing.CreatedAt
		copied.TotalExecutions = existing.TotalExecutions
		copied.SuccessfulExecutions = existing.SuccessfulExecutions
		copied.FailedExecutions = existing.FailedExecutions
		copied.LastExecutedAt = existing.LastExecutedAt
	} else if copied.CreatedAt.IsZero() {
		copied.CreatedAt = now
	}

	wr.store.workflows[workflow.ID] = &copied

	// Reflect stamped timestamps and preserved counters back so the caller
	// observes exactly what was stored.
	workflow.CreatedAt = copied.CreatedAt
	workflow.UpdatedAt = copied.UpdatedAt
	workflow.TotalExecutions = copied.TotalExecutions
	workflow.SuccessfulExecutions = copied.SuccessfulExecutions
	workflow.FailedExecutions = copied.FailedExecutions
	workflow.LastExecutedAt = copied.LastExecutedAt

	return nil
}

func (wr *workflowRepository) Delete(_ context.Context, id string) error {
	wr.store.mu.Lock()
	defer wr.store.mu.Unlock()

	workflow, ok := wr.store.workflows[id]
	if !ok || workflow.DeletedAt != nil {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	now := time.Now().UTC()
	workflow.DeletedAt = &now
	workflow.UpdatedAt = now

	return nil
}

func (wr *workflowRepository) IncrementCounters(_ context.Context, workflowID string, succeeded bool, executedAt time.Time) error {
	wr.store.mu.Lock()
	defer wr.store.mu.Unlock()

	workflow, ok := wr.store.workflows[workflowID]
	if !ok {
		return persistence.NewWorkflowError("IncrementCounters", workflowID, persistence.ErrWorkflowNotFound)
	}

	workflow.TotalExecutions++
	if succeeded {
		workflow.SuccessfulExecutions++
	} else {
		workflow.FailedExecutions++
	}

	if workflow.LastExecutedAt == nil || executedAt.After(*workflow.LastExecutedAt) {
		copied := executedAt
		workflow.LastExecutedAt = &copied
	}

	return nil
}

func (wr *workflowRepository) RecomputeCounters(_ context.Context, workflowID string) error {
	wr.store.mu.Lock()
	defer wr.store.mu.Unlock()

	workflow, ok := wr.store.workflows[workflowID]
	if !ok {
		return persistence.NewWorkflowError("RecomputeCounters", workflowID, persistence.ErrWorkflowNotFound)
	}

	var total, succeeded, failed int64

	var lastExecutedAt *time.Time

	for _, execution := range wr.store.executions {
		if execution.WorkflowID != workflowID || !execution.Status.Terminal() {
			continue
		}

		total++

		switch execution.Status {
		case models.ExecutionStatusCompleted:
			succeeded++
		case models.ExecutionStatusFailed:
			failed++
		}

		if execution.CompletedAt != nil && (lastExecutedAt == nil || execution.CompletedAt.After(*lastExecutedAt)) {
			lastExecutedAt = execution.CompletedAt
		}
	}

	workflow.TotalExecutions = total
	workflow.SuccessfulExecutions = succeeded
	workflow.FailedExecutions = failed
	workflow.LastExecutedAt = lastExecutedAt

	return nil
}

type nodeRepository struct {
	store *Persistence
}

func (nr *nodeRepository) ListByWorkflow(_ context.Context, workflowID string) ([]*models.WorkflowNode, error) {
	nr.store.mu.RLock()
	defer nr.store.mu.RUnlock()

	var nodes []*models.WorkflowNode

	for _, node := range nr.store.nodes[workflowID] {
		copied := *node
		nodes = append(nodes, &copied)
	}

	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].ExecutionOrder != nodes[j].ExecutionOrder {
			return nodes[i].ExecutionOrder < nodes[j].ExecutionOrder
		}

		return nodes[i].NodeID < nodes[j].NodeID
	})

	return nodes, nil
}

func (nr *nodeRepository) GetByNodeID(_ context.Context, workflowID, nodeID string) (*models.WorkflowNode, error) {
	nr.store.mu.RLock()
	defer nr.store.mu.RUnlock()

	node, ok := nr.store.nodes[workflowID][nodeID]
	if !ok {
		return nil, persistence.NewWorkflowError("GetByNodeID", workflowID, persistence.ErrNodeNotFound)
	}

	copied := *node

	return &copied, nil
}

func (nr *nodeRepository) Save(_ context.Context, node *models.WorkflowNode) error {
	nr.store.mu.Lock()
	defer nr.store.mu.Unlock()

	if nr.store.nodes[node.WorkflowID] == nil {
		nr.store.nodes[node.WorkflowID] = make(map[string]*models.WorkflowNode)
	}

	copied := *node
	nr.store.nodes[node.WorkflowID][node.NodeID] = &copied

	return nil
}

func (nr *nodeRepository) Delete(_ context.Context, workflowID, nodeID string) error {
	nr.store.mu.Lock()
	defer nr.store.mu.Unlock()

	if _, ok := nr.store.nodes[workflowID][nodeID]; !ok {
		return persistence.NewWorkflowError("DeleteNode", workflowID, persistence.ErrNodeNotFound)
	}

	delete(nr.store.nodes[workflowID], nodeID)

	return nil
}

func (nr *nodeRepository) ReplaceAll(_ context.Context, workflowID string, nodes []*models.WorkflowNode) error {
	nr.store.mu.Lock()
	defer nr.store.mu.Unlock()

	replacement := make(map[string]*models.WorkflowNode, len(nodes))

	for _, node := range nodes {
		if _, ok := replacement[node.NodeID]; ok {
			return persistence.NewWorkflowError("ReplaceAllNodes", workflowID, persistence.ErrDuplicateNode)
		}

		copied := *node
		copied.WorkflowID = workflowID
		replacement[node.NodeID] = &copied
	}

	nr.store.nodes[workflowID] = replacement

	return nil
}

type connectionRepository struct {
	store *Persistence
}

func (cr *connectionRepository) ListByWorkflow(_ context.Context, workflowID string) ([]*models.WorkflowConnection, error) {
	cr.store.mu.RLock()
	defer cr.store.mu.RUnlock()

	var connections []*models.WorkflowConnection

	for _, connection := range cr.store.connections[workflowID] {
		copied := *connection
		connections = append(connections, &copied)
	}

	sort.Slice(connections, func(i, j int) bool {
		if connections[i].ExecutionOrder != connections[j].ExecutionOrder {
			return connections[i].ExecutionOrder < connections[j].ExecutionOrder
		}

		return connections[i].EdgeID < connections[j].EdgeID
	})

	return connections, nil
}

func (cr *connectionRepository) Save(_ context.Context, connection *models.WorkflowConnection) error {
	cr.store.mu.Lock()
	defer cr.store.mu.Unlock()

	if cr.store.connections[connection.WorkflowID] == nil {
		cr.store.connections[connection.WorkflowID] = make(map[string]*models.WorkflowConnection)
	}

	copied := *connection
	cr.store.connections[connection.WorkflowID][connection.EdgeID] = &copied

	return nil
}

func (cr *connectionRepository) Delete(_ context.Context, workflowID, edgeID string) error {
	cr.store.mu.Lock()
	defer cr.store.mu.Unlock()

	if _, ok := cr.store.connections[workflowID][edgeID]; !ok {
		return persistence.NewWorkflowError("DeleteConnection", workflowID, persistence.ErrConnectionNotFound)
	}

	delete(cr.store.connections[workflowID], edgeID)

	return nil
}

func (cr *connectionRepository) ReplaceAll(_ context.Context, workflowID string, connections []*models.WorkflowConnection) error {
	cr.store.mu.Lock()
	defer cr.store.mu.Unlock()

	replacement := make(map[string]*models.WorkflowConnection, len(connections))

	for _, connection := range connections {
		if _, ok := replacement[connection.EdgeID]; ok {
			return persistence.NewWorkflowError("ReplaceAllConnections", workflowID, persistence.ErrDuplicateConnection)
		}

		copied := *connection
		copied.WorkflowID = workflowID
		replacement[connection.EdgeID] = &copied
	}

	cr.store.connections[workflowID] = replacement

	return nil
}

type triggerRepository struct {
	store *Persistence
}

func (tr *triggerRepository) ListByWorkflow(_ context.Context, workflowID string) ([]*models.WorkflowTrigger, error) {
	tr.store.mu.RLock()
	defer tr.store.mu.RUnlock()

	var triggers []*models.WorkflowTrigger

	for _, trigger := range tr.store.triggers {
		if trigger.WorkflowID != workflowID {
			continue
		}

		copied := *trigger
		triggers = append(triggers, &copied)
	}

	sort.Slice(triggers, func(i, j int) bool {
		return triggers[i].CreatedAt.Before(triggers[j].CreatedAt)
	})

	return triggers, nil
}

func (tr *triggerRepository) GetByID(_ context.Context, id string) (*models.WorkflowTrigger, error) {
	tr.store.mu.RLock()
	defer tr.store.mu.RUnlock()

	trigger, ok := tr.store.triggers[id]
	if !ok {
		return nil, persistence.ErrTriggerNotFound
	}

	copied := *trigger

	return &copied, nil
}

func (tr *triggerRepository) Save(_ context.Context, trigger *models.WorkflowTrigger) error {
	tr.store.mu.Lock()
	defer tr.store.mu.Unlock()

	copied := *trigger
	now := time.Now().UTC()
	copied.UpdatedAt = now

	if existing, ok := tr.store.triggers[trigger.ID]; ok {
		copied.CreatedAt = existing.CreatedAt
	} else if copied.CreatedAt.IsZero() {
		copied.CreatedAt = now
	}

	tr.store.triggers[trigger.ID] = &copied

	trigger.CreatedAt = copied.CreatedAt
	trigger.UpdatedAt = copied.UpdatedAt

	return nil
}

func (tr *triggerRepository) Delete(_ context.Context, id string) error {
	tr.store.mu.Lock()
	defer tr.store.mu.Unlock()

	if _, ok := tr.store.triggers[id]; !ok {
		return persistence.ErrTriggerNotFound
	}

	delete(tr.store.triggers, id)

	return nil
}

func (tr *triggerRepository) FindActiveByEvent(_ context.Context, module, eventType string) ([]*models.WorkflowTrigger, error) {
	tr.store.mu.RLock()
	defer tr.store.mu.RUnlock()

	var triggers []*models.WorkflowTrigger

	for _, trigger := range tr.store.triggers {
		if trigger.Type != models.TriggerTypeEvent || !trigger.IsActive {
			continue
		}

		if trigger.Module != module || trigger.EventType != eventType {
			continue
		}

		workflow, ok := tr.store.workflows[trigger.WorkflowID]
		if !ok || !workflow.IsExecutable() {
			continue
		}

		copied := *trigger
		triggers = append(triggers, &copied)
	}

	sort.Slice(triggers, func(i, j int) bool {
		return triggers[i].CreatedAt.Before(triggers[j].CreatedAt)
	})

	return triggers, nil
}

type executionRepository struct {
	store *Persistence
}

func (er *executionRepository) Create(_ context.Context, execution *models.WorkflowExecution, nodes []*models.NodeExecution) error {
	er.store.mu.Lock()
	defer er.store.mu.Unlock()

	nodeRecords := make(map[string]*models.NodeExecution, len(nodes))

	for _, node := range nodes {
		if _, ok := nodeRecords[node.NodeID]; ok {
			return &persistence.ExecutionError{Op: "Create", ExecutionID: execution.ID, NodeID: node.NodeID, Err: persistence.ErrDuplicateNode}
		}

		copied := *node
		copied.ExecutionID = execution.ID
		nodeRecords[node.NodeID] = &copied
	}

	copied := *execution
	er.store.executions[execution.ID] = &copied
	er.store.nodeExecutions[execution.ID] = nodeRecords

	return nil
}

func (er *executionRepository) GetByID(_ context.Context, id string) (*models.WorkflowExecution, error) {
	er.store.mu.RLock()
	defer er.store.mu.RUnlock()

	execution, ok := er.store.executions[id]
	if !ok {
		return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
	}

	copied := *execution

	return &copied, nil
}

func (er *executionRepository) Update(_ context.Context, execution *models.WorkflowExecution) error {
	er.store.mu.Lock()
	defer er.store.mu.Unlock()

	if _, ok := er.store.executions[execution.ID]; !ok {
		return persistence.NewExecutionError("Update", execution.ID, persistence.ErrExecutionNotFound)
	}

	copied := *execution
	er.store.executions[execution.ID] = &copied

	return nil
}

func (er *executionRepository) List(_ context.Context, opts persistence.ListExecutionsOptions) ([]*models.WorkflowExecution, error) {
	er.store.mu.RLock()
	defer er.store.mu.RUnlock()

	var executions []*models.WorkflowExecution

	for _, execution := range er.store.executions {
		if opts.WorkflowID != "" && execution.WorkflowID != opts.WorkflowID {
			continue
		}

		if opts.Status != nil && execution.Status != *opts.Status {
			continue
		}

		if opts.From != nil && execution.CreatedAt.Before(*opts.From) {
			continue
		}

		if opts.To != nil && !execution.CreatedAt.Before(*opts.To) {
			continue
		}

		copied := *execution
		executions = append(executions, &copied)
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].CreatedAt.After(executions[j].CreatedAt)
	})

	return page(executions, opts.Limit, opts.Offset), nil
}

func (er *executionRepository) NodeExecutions(_ context.Context, executionID string) ([]*models.NodeExecution, error) {
	er.store.mu.RLock()
	defer er.store.mu.RUnlock()

	var nodes []*models.NodeExecution

	for _, node := range er.store.nodeExecutions[executionID] {
		copied := *node
		nodes = append(nodes, &copied)
	}

	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].ExecutionOrder != nodes[j].ExecutionOrder {
			return nodes[i].ExecutionOrder < nodes[j].ExecutionOrder
		}

		return nodes[i].NodeID < nodes[j].NodeID
	})

	return nodes, nil
}

func (er *executionRepository) UpdateNodeExecution(_ context.Context, nodeExecution *models.NodeExecution) error {
	er.store.mu.Lock()
	defer er.store.mu.Unlock()

	records := er.store.nodeExecutions[nodeExecution.ExecutionID]
	if _, ok := records[nodeExecution.NodeID]; !ok {
		return &persistence.ExecutionError{
			Op:          "UpdateNodeExecution",
			ExecutionID: nodeExecution.ExecutionID,
			NodeID:      nodeExecution.NodeID,
			Err:         persistence.ErrNodeExecutionNotFound,
		}
	}

	copied := *nodeExecution
	records[nodeExecution.NodeID] = &copied

	return nil
}

func (er *executionRepository) SaveVariables(_ context.Context, executionID string, variables []*models.ExecutionVariable) error {
	er.store.mu.Lock()
	defer er.store.mu.Unlock()

	if er.store.variables[executionID] == nil {
		er.store.variables[executionID] = make(map[string]*models.ExecutionVariable)
	}

	for _, variable := range variables {
		copied := *variable
		copied.ExecutionID = executionID
		er.store.variables[executionID][variable.Name] = &copied
	}

	return nil
}

func (er *executionRepository) Variables(_ context.Context, executionID string) ([]*models.ExecutionVariable, error) {
	er.store.mu.RLock()
	defer er.store.mu.RUnlock()

	var variables []*models.ExecutionVariable

	for _, variable := range er.store.variables[executionID] {
		copied := *variable
		variables = append(variables, &copied)
	}

	sort.Slice(variables, func(i, j int) bool {
		return variables[i].Name < variables[j].Name
	})

	return variables, nil
}

func (er *executionRepository) AppendLog(_ context.Context, log *models.ExecutionLog) error {
	er.store.mu.Lock()
	defer er.store.mu.Unlock()

	copied := *log
	er.store.logs[log.ExecutionID] = append(er.store.logs[log.ExecutionID], &copied)

	return nil
}

func (er *executionRepository) Logs(_ context.Context, executionID string) ([]*models.ExecutionLog, error) {
	er.store.mu.RLock()
	defer er.store.mu.RUnlock()

	logs := make([]*models.ExecutionLog, 0, len(er.store.logs[executionID]))

	for _, log := range er.store.logs[executionID] {
		copied := *log
		logs = append(logs, &copied)
	}

	return logs, nil
}

func (er *executionRepository) CreateDelayWakeup(_ context.Context, wakeup *models.DelayWakeup) error {
	er.store.mu.Lock()
	defer er.store.mu.Unlock()

	copied := *wakeup
	er.store.wakeups[wakeup.ID] = &copied

	return nil
}

func (er *executionRepository) DueDelayWakeups(_ context.Context, now time.Time, limit int) ([]*models.DelayWakeup, error) {
	er.store.mu.RLock()
	defer er.store.mu.RUnlock()

	var wakeups []*models.DelayWakeup

	for _, wakeup := range er.store.wakeups {
		if wakeup.ResumeAt.After(now) {
			continue
		}

		copied := *wakeup
		wakeups = append(wakeups, &copied)
	}

	sort.Slice(wakeups, func(i, j int) bool {
		return wakeups[i].ResumeAt.Before(wakeups[j].ResumeAt)
	})

	if limit > 0 && len(wakeups) > limit {
		wakeups = wakeups[:limit]
	}

	return wakeups, nil
}

func (er *executionRepository) DeleteDelayWakeup(_ context.Context, id string) error {
	er.store.mu.Lock()
	defer er.store.mu.Unlock()

	delete(er.store.wakeups, id)

	return nil
}

type scheduleRepository struct {
	store *Persistence
}

func (sr *scheduleRepository) Save(_ context.Context, entry *models.ScheduleEntry) error {
	sr.store.mu.Lock()
	defer sr.store.mu.Unlock()

	copied := *entry
	sr.store.schedules[entry.ID] = &copied

	return nil
}

func (sr *scheduleRepository) Delete(_ context.Context, id string) error {
	sr.store.mu.Lock()
	defer sr.store.mu.Unlock()

	if _, ok := sr.store.schedules[id]; !ok {
		return persistence.ErrScheduleNotFound
	}

	delete(sr.store.schedules, id)

	return nil
}

func (sr *scheduleRepository) DueSchedules(_ context.Context, now time.Time, limit int) ([]*models.ScheduleEntry, error) {
	sr.store.mu.RLock()
	defer sr.store.mu.RUnlock()

	var entries []*models.ScheduleEntry

	for _, entry := range sr.store.schedules {
		if !entry.IsDue(now) {
			continue
		}

		copied := *entry
		entries = append(entries, &copied)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].NextDueAt.Before(entries[j].NextDueAt)
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	return entries, nil
}

type rollupRepository struct {
	store *Persistence
}

func rollupKey(workflowID string, period models.RollupPeriod, bucketStart time.Time) string {
	return workflowID + "|" + string(period) + "|" + bucketStart.UTC().Format(time.RFC3339)
}

func (rr *rollupRepository) Upsert(_ context.Context, rollup *models.AnalyticsRollup) error {
	rr.store.mu.Lock()
	defer rr.store.mu.Unlock()

	key := rollupKey(rollup.WorkflowID, rollup.Period, rollup.BucketStart)

	existing, ok := rr.store.rollups[key]
	if !ok {
		copied := *rollup
		copied.UpdatedAt = time.Now().UTC()
		rr.store.rollups[key] = &copied

		return nil
	}

	existing.TotalCount += rollup.TotalCount
	existing.CompletedCount += rollup.CompletedCount
	existing.FailedCount += rollup.FailedCount
	existing.CancelledCount += rollup.CancelledCount

	if rollup.DurationCount > 0 {
		if existing.DurationCount == 0 || rollup.DurationMinMs < existing.DurationMinMs {
			existing.DurationMinMs = rollup.DurationMinMs
		}

		if rollup.DurationMaxMs > existing.DurationMaxMs {
			existing.DurationMaxMs = rollup.DurationMaxMs
		}
	}

	existing.DurationCount += rollup.DurationCount
	existing.DurationSumMs += rollup.DurationSumMs
	existing.UpdatedAt = time.Now().UTC()

	return nil
}

func (rr *rollupRepository) Range(_ context.Context, workflowID string, period models.RollupPeriod, from, to time.Time) ([]*models.AnalyticsRollup, error) {
	rr.store.mu.RLock()
	defer rr.store.mu.RUnlock()

	var rollups []*models.AnalyticsRollup

	for _, rollup := range rr.store.rollups {
		if rollup.WorkflowID != workflowID || rollup.Period != period {
			continue
		}

		if rollup.BucketStart.Before(from) || !rollup.BucketStart.Before(to) {
			continue
		}

		copied := *rollup
		rollups = append(rollups, &copied)
	}

	sort.Slice(rollups, func(i, j int) bool {
		return rollups[i].BucketStart.Before(rollups[j].BucketStart)
	})

	return rollups, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}

		items = items[offset:]
	}

	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	return items
}
