package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cascadehq/cascade/pkg/events"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/nodes"
	"github.com/cascadehq/cascade/pkg/variables"
)

// ErrNodeTimeout marks a node failure caused by its per-node deadline.
// Timeouts consume the node's retry budget like any other failure.
var ErrNodeTimeout = errors.New("node execution timed out")

// run carries the mutable state of one Advance pass.
type run struct {
	execution      *models.WorkflowExecution
	graph          *graph
	nodeExecutions map[string]*models.NodeExecution // by NodeID
	resolver       *variables.Resolver

	// prunedEdges holds edge ids cut by condition and filter branches.
	prunedEdges map[string]struct{}
}

// Advance walks the execution's node graph until it completes, fails,
// suspends, or is stopped externally. Safe to call again on an execution a
// previous worker advanced partially; settled nodes are never re-run.
func (o *Orchestrator) Advance(ctx context.Context, executionID string) error {
	repo := o.store.ExecutionRepository()

	execution, err := repo.GetByID(ctx, executionID)
	if err != nil {
		return err
	}

	switch execution.Status {
	case models.ExecutionStatusPending, models.ExecutionStatusRunning:
	default:
		o.logger.InfoContext(ctx, "Skipping advance, execution not runnable",
			"execution_id", executionID, "status", string(execution.Status))

		return nil
	}

	workflowNodes := execution.NodeSnapshot
	if len(workflowNodes) == 0 {
		workflowNodes, err = o.store.NodeRepository().ListByWorkflow(ctx, execution.WorkflowID)
		if err != nil {
			return err
		}
	}

	connections, err := o.store.ConnectionRepository().ListByWorkflow(ctx, execution.WorkflowID)
	if err != nil {
		return err
	}

	g, err := buildGraph(workflowNodes, connections)
	if err != nil {
		return o.failExecution(ctx, execution, nil, "", err)
	}

	nodeExecutionList, err := repo.NodeExecutions(ctx, executionID)
	if err != nil {
		return err
	}

	nodeExecutions := make(map[string]*models.NodeExecution, len(nodeExecutionList))
	for _, nodeExecution := range nodeExecutionList {
		nodeExecutions[nodeExecution.NodeID] = nodeExecution
	}

	persisted, err := repo.Variables(ctx, executionID)
	if err != nil {
		return err
	}

	r := &run{
		execution:      execution,
		graph:          g,
		nodeExecutions: nodeExecutions,
		resolver:       variables.NewResolver(executionID, persisted),
		prunedEdges:    make(map[string]struct{}),
	}

	// Re-seed outputs of nodes completed by an earlier attempt so downstream
	// reads resolve after a retry or a delay wake-up.
	for _, nodeExecution := range nodeExecutionList {
		if nodeExecution.Status == models.NodeStatusCompleted && len(nodeExecution.Output) > 0 {
			r.resolver.Merge(nodeExecution.Output, nodeExecution.NodeID)
		}
	}

	if execution.Status == models.ExecutionStatusPending {
		now := o.now()
		execution.Status = models.ExecutionStatusRunning

		if execution.StartedAt == nil {
			execution.StartedAt = &now
		}

		if err := repo.Update(ctx, execution); err != nil {
			return err
		}

		event := events.ExecutionStarted{
			BaseEvent:   events.NewBaseEvent(events.ExecutionStartedEvent, execution.WorkflowID),
			ExecutionID: execution.ID,
		}
		if err := o.bus.Publish(ctx, execution.WorkflowID, event); err != nil {
			return err
		}
	}

	return o.walk(ctx, r)
}

func (o *Orchestrator) walk(ctx context.Context, r *run) error {
	repo := o.store.ExecutionRepository()

	for _, nodeID := range r.graph.order {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Cooperative cancel and pause: re-read the status between steps.
		current, err := repo.GetByID(ctx, r.execution.ID)
		if err != nil {
			return err
		}

		if current.Status != models.ExecutionStatusRunning {
			o.logger.InfoContext(ctx, "Stopping walk, execution state changed externally",
				"execution_id", r.execution.ID, "status", string(current.Status))

			return nil
		}

		nodeExecution := r.nodeExecutions[nodeID]
		if nodeExecution == nil || nodeExecution.Status.Settled() ||
			nodeExecution.Status == models.NodeStatusFailed ||
			nodeExecution.Status == models.NodeStatusCancelled {
			continue
		}

		node := r.graph.nodes[nodeID]

		if o.isPruned(r, nodeID) {
			if err := o.skipNode(ctx, r, nodeExecution); err != nil {
				return err
			}

			continue
		}

		result, nodeErr := o.runNode(ctx, r, node, nodeExecution)
		if nodeErr != nil {
			if node.IsOptional {
				o.logger.WarnContext(ctx, "Optional node failed, continuing",
					"execution_id", r.execution.ID, "node_id", nodeID, "error", nodeErr)

				if err := o.updateProgress(ctx, r); err != nil {
					return err
				}

				continue
			}

			return o.failExecution(ctx, r.execution, r.nodeExecutions, nodeID, nodeErr)
		}

		if result.Branch != "" {
			o.pruneBranches(r, nodeID, result.Branch)
		}

		if result.ResumeAt != nil {
			return o.suspend(ctx, r, node, nodeExecution, *result.ResumeAt)
		}

		if result.Loop != nil {
			if err := o.runLoop(ctx, r, node, result.Loop); err != nil {
				if node.IsOptional {
					o.logger.WarnContext(ctx, "Optional loop failed, continuing",
						"execution_id", r.execution.ID, "node_id", nodeID, "error", err)

					continue
				}

				return o.failExecution(ctx, r.execution, r.nodeExecutions, nodeID, err)
			}
		}

		if err := o.persistVariables(ctx, r); err != nil {
			return err
		}

		if err := o.updateProgress(ctx, r); err != nil {
			return err
		}
	}

	return o.completeExecution(ctx, r)
}

// isPruned reports whether every incoming edge of the node is dead: cut by a
// branch, or sourced from a skipped node. Roots and trigger-fed nodes are
// never pruned. A failed optional predecessor still satisfies its edges.
func (o *Orchestrator) isPruned(r *run, nodeID string) bool {
	incoming := r.graph.predecessors(nodeID)
	if len(incoming) == 0 {
		return false
	}

	for _, edge := range incoming {
		if _, cut := r.prunedEdges[edge.EdgeID]; cut {
			continue
		}

		source := r.graph.nodes[edge.SourceNodeID]
		if source.Type == models.NodeTypeTrigger {
			return false
		}

		sourceExecution := r.nodeExecutions[edge.SourceNodeID]
		if sourceExecution == nil {
			continue
		}

		switch sourceExecution.Status {
		case models.NodeStatusCompleted:
			return false
		case models.NodeStatusFailed:
			if source.IsOptional {
				return false
			}
		}
	}

	return true
}

// pruneBranches cuts the outgoing edges whose source handle does not match
// the taken branch. Edges without a handle always stay live.
func (o *Orchestrator) pruneBranches(r *run, nodeID, branch string) {
	for _, edge := range r.graph.outgoing[nodeID] {
		if edge.SourceHandle != "" && edge.SourceHandle != branch {
			r.prunedEdges[edge.EdgeID] = struct{}{}
		}
	}
}

func (o *Orchestrator) skipNode(ctx context.Context, r *run, nodeExecution *models.NodeExecution) error {
	now := o.now()
	nodeExecution.Status = models.NodeStatusSkipped
	nodeExecution.CompletedAt = &now

	// Skipping propagates: every outgoing edge of a skipped node is dead.
	for _, edge := range r.graph.outgoing[nodeExecution.NodeID] {
		r.prunedEdges[edge.EdgeID] = struct{}{}
	}

	if err := o.store.ExecutionRepository().UpdateNodeExecution(ctx, nodeExecution); err != nil {
		return err
	}

	return o.updateProgress(ctx, r)
}

// runNode executes one node within its retry budget, applying the per-node
// timeout to every attempt.
func (o *Orchestrator) runNode(ctx context.Context, r *run, node *models.WorkflowNode, nodeExecution *models.NodeExecution) (*nodes.Result, error) {
	handler, err := o.registry.Handler(node.Type)
	if err != nil {
		return nil, err
	}

	repo := o.store.ExecutionRepository()

	timeout := DefaultNodeTimeout
	if node.TimeoutMs > 0 {
		timeout = time.Duration(node.TimeoutMs) * time.Millisecond
	}

	ec := nodes.ExecContext{
		ExecutionID:    r.execution.ID,
		WorkflowID:     r.execution.WorkflowID,
		OrganizationID: r.execution.OrganizationID,
		Node:           node,
		Variables:      r.resolver,
		TriggerData:    r.execution.TriggerData,
		Logger:         o.logger.With("execution_id", r.execution.ID, "node_id", node.NodeID),
	}

	var lastErr error

	for attempt := 0; attempt <= nodeExecution.MaxRetries; attempt++ {
		started := o.now()
		nodeExecution.Status = models.NodeStatusRunning
		nodeExecution.StartedAt = &started
		nodeExecution.RetryCount = attempt

		if err := repo.UpdateNodeExecution(ctx, nodeExecution); err != nil {
			return nil, err
		}

		nodeCtx, cancel := context.WithTimeout(ctx, timeout)
		result, execErr := handler.Execute(nodeCtx, ec)
		cancel()

		if execErr == nil {
			now := o.now()
			duration := now.Sub(started).Milliseconds()

			nodeExecution.Status = models.NodeStatusCompleted
			nodeExecution.Output = result.Output
			nodeExecution.Error = ""
			nodeExecution.CompletedAt = &now
			nodeExecution.DurationMs = &duration

			if err := repo.UpdateNodeExecution(ctx, nodeExecution); err != nil {
				return nil, err
			}

			if len(result.Output) > 0 {
				r.resolver.Merge(result.Output, node.NodeID)
			}

			event := events.NodeCompleted{
				BaseEvent:   events.NewBaseEvent(events.NodeCompletedEvent, r.execution.WorkflowID),
				ExecutionID: r.execution.ID,
				NodeID:      node.NodeID,
				Output:      result.Output,
				DurationMs:  duration,
			}
			if err := o.bus.Publish(ctx, r.execution.WorkflowID, event); err != nil {
				o.logger.ErrorContext(ctx, "Failed to publish node completion",
					"execution_id", r.execution.ID, "node_id", node.NodeID, "error", err)
			}

			return result, nil
		}

		if errors.Is(execErr, context.DeadlineExceeded) && ctx.Err() == nil {
			execErr = fmt.Errorf("%w after %s: %w", ErrNodeTimeout, timeout, execErr)
		}

		lastErr = execErr

		o.appendLog(ctx, r.execution.ID, models.LogLevelWarn, "node attempt failed", models.LogCategoryNode, map[string]any{
			"node_id": node.NodeID,
			"attempt": attempt,
			"error":   execErr.Error(),
		})

		event := events.NodeFailed{
			BaseEvent:   events.NewBaseEvent(events.NodeFailedEvent, r.execution.WorkflowID),
			ExecutionID: r.execution.ID,
			NodeID:      node.NodeID,
			Error:       execErr.Error(),
			Attempt:     attempt,
		}
		if err := o.bus.Publish(ctx, r.execution.WorkflowID, event); err != nil {
			o.logger.ErrorContext(ctx, "Failed to publish node failure",
				"execution_id", r.execution.ID, "node_id", node.NodeID, "error", err)
		}

		if ctx.Err() != nil {
			break
		}
	}

	now := o.now()
	nodeExecution.Status = models.NodeStatusFailed
	nodeExecution.Error = lastErr.Error()
	nodeExecution.CompletedAt = &now

	if nodeExecution.StartedAt != nil {
		duration := now.Sub(*nodeExecution.StartedAt).Milliseconds()
		nodeExecution.DurationMs = &duration
	}

	if err := repo.UpdateNodeExecution(ctx, nodeExecution); err != nil {
		return nil, err
	}

	return nil, lastErr
}

// runLoop executes the loop body once per item. The body is every executable
// node downstream of the loop node; iteration results collect the output of
// the body's final node.
func (o *Orchestrator) runLoop(ctx context.Context, r *run, loopNode *models.WorkflowNode, plan *nodes.LoopPlan) error {
	body := r.graph.subgraphFrom(loopNode.NodeID)

	if len(plan.Items) == 0 {
		for _, nodeID := range body {
			if nodeExecution := r.nodeExecutions[nodeID]; nodeExecution != nil &&
				nodeExecution.Status == models.NodeStatusPending {
				if err := o.skipNode(ctx, r, nodeExecution); err != nil {
					return err
				}
			}
		}

		if plan.ResultKey != "" {
			r.resolver.Set(plan.ResultKey, []any{}, loopNode.NodeID)
		}

		return nil
	}

	results := make([]any, 0, len(plan.Items))

	for index, item := range plan.Items {
		if err := ctx.Err(); err != nil {
			return err
		}

		r.resolver.Set(plan.ItemVariable, item, loopNode.NodeID)
		if plan.IndexVariable != "" {
			r.resolver.Set(plan.IndexVariable, index, loopNode.NodeID)
		}

		iterationResult, err := o.runIteration(ctx, r, body)
		if err != nil {
			if !plan.ContinueOnError {
				return fmt.Errorf("iteration %d: %w", index, err)
			}

			o.appendLog(ctx, r.execution.ID, models.LogLevelWarn, "loop iteration failed", models.LogCategoryNode, map[string]any{
				"node_id":   loopNode.NodeID,
				"iteration": index,
				"error":     err.Error(),
			})

			results = append(results, map[string]any{"error": err.Error(), "index": index})

			continue
		}

		results = append(results, iterationResult)
	}

	if plan.ResultKey != "" {
		r.resolver.Set(plan.ResultKey, results, loopNode.NodeID)
	}

	return nil
}

func (o *Orchestrator) runIteration(ctx context.Context, r *run, body []string) (any, error) {
	var last map[string]any

	for _, nodeID := range body {
		nodeExecution := r.nodeExecutions[nodeID]
		if nodeExecution == nil {
			continue
		}

		if o.isPruned(r, nodeID) {
			if nodeExecution.Status == models.NodeStatusPending {
				if err := o.skipNode(ctx, r, nodeExecution); err != nil {
					return nil, err
				}
			}

			continue
		}

		node := r.graph.nodes[nodeID]

		result, err := o.runNode(ctx, r, node, nodeExecution)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", nodeID, err)
		}

		if result.Branch != "" {
			o.pruneBranches(r, nodeID, result.Branch)
		}

		if result.Output != nil {
			last = result.Output
		}
	}

	return last, nil
}

// suspend parks the execution on a durable wakeup. The scheduler re-queues it
// once ResumeAt passes; no worker holds the run while it waits.
func (o *Orchestrator) suspend(ctx context.Context, r *run, node *models.WorkflowNode, nodeExecution *models.NodeExecution, resumeAt time.Time) error {
	repo := o.store.ExecutionRepository()

	// The waiting node stays running; WakeDelay completes it.
	nodeExecution.Status = models.NodeStatusRunning
	if err := repo.UpdateNodeExecution(ctx, nodeExecution); err != nil {
		return err
	}

	wakeup := &models.DelayWakeup{
		ID:              uuid.New().String(),
		ExecutionID:     r.execution.ID,
		NodeExecutionID: nodeExecution.ID,
		ResumeAt:        resumeAt,
		CreatedAt:       o.now(),
	}
	if err := repo.CreateDelayWakeup(ctx, wakeup); err != nil {
		return err
	}

	if err := o.persistVariables(ctx, r); err != nil {
		return err
	}

	r.execution.Status = models.ExecutionStatusPaused
	if err := repo.Update(ctx, r.execution); err != nil {
		return err
	}

	o.appendLog(ctx, r.execution.ID, models.LogLevelInfo, "execution suspended", models.LogCategoryLifecycle, map[string]any{
		"node_id":   node.NodeID,
		"resume_at": resumeAt,
	})

	event := events.ExecutionPaused{
		BaseEvent:   events.NewBaseEvent(events.ExecutionPausedEvent, r.execution.WorkflowID),
		ExecutionID: r.execution.ID,
		NodeID:      node.NodeID,
		ResumeAt:    &resumeAt,
	}

	return o.bus.Publish(ctx, r.execution.WorkflowID, event)
}

func (o *Orchestrator) persistVariables(ctx context.Context, r *run) error {
	vars := r.resolver.Variables()
	if len(vars) == 0 {
		return nil
	}

	return o.store.ExecutionRepository().SaveVariables(ctx, r.execution.ID, vars)
}

// updateProgress recomputes settled/total. Progress never moves backwards
// while running.
func (o *Orchestrator) updateProgress(ctx context.Context, r *run) error {
	total := len(r.graph.order)
	if total == 0 {
		return nil
	}

	settled := 0
	for _, nodeExecution := range r.nodeExecutions {
		if nodeExecution.Status.Settled() {
			settled++
		}
	}

	progress := settled * 100 / total
	if progress <= r.execution.Progress {
		return nil
	}

	r.execution.Progress = progress

	return o.store.ExecutionRepository().Update(ctx, r.execution)
}

func (o *Orchestrator) completeExecution(ctx context.Context, r *run) error {
	repo := o.store.ExecutionRepository()
	now := o.now()

	r.execution.Status = models.ExecutionStatusCompleted
	r.execution.Progress = 100
	r.execution.CompletedAt = &now

	if r.execution.StartedAt != nil {
		duration := now.Sub(*r.execution.StartedAt).Milliseconds()
		r.execution.DurationMs = &duration
	}

	if err := repo.Update(ctx, r.execution); err != nil {
		return err
	}

	if err := o.store.WorkflowRepository().IncrementCounters(ctx, r.execution.WorkflowID, true, now); err != nil {
		o.logger.ErrorContext(ctx, "Failed to increment workflow counters",
			"workflow_id", r.execution.WorkflowID, "error", err)
	}

	o.appendLog(ctx, r.execution.ID, models.LogLevelInfo, "execution completed", models.LogCategoryLifecycle, nil)

	event := events.ExecutionCompleted{
		BaseEvent:   events.NewBaseEvent(events.ExecutionCompletedEvent, r.execution.WorkflowID),
		ExecutionID: r.execution.ID,
	}
	if r.execution.DurationMs != nil {
		event.Duration = time.Duration(*r.execution.DurationMs) * time.Millisecond
	}

	return o.bus.Publish(ctx, r.execution.WorkflowID, event)
}

// failExecution records the terminal failure and cancels whatever never ran.
func (o *Orchestrator) failExecution(ctx context.Context, execution *models.WorkflowExecution, nodeExecutions map[string]*models.NodeExecution, failedNodeID string, cause error) error {
	repo := o.store.ExecutionRepository()
	now := o.now()

	for _, nodeExecution := range nodeExecutions {
		if nodeExecution.Status != models.NodeStatusPending {
			continue
		}

		nodeExecution.Status = models.NodeStatusCancelled
		if err := repo.UpdateNodeExecution(ctx, nodeExecution); err != nil {
			return err
		}
	}

	execution.Status = models.ExecutionStatusFailed
	execution.Error = cause.Error()
	execution.ErrorDetails = map[string]any{"node_id": failedNodeID}
	execution.FailedAt = &now

	if execution.StartedAt != nil {
		duration := now.Sub(*execution.StartedAt).Milliseconds()
		execution.DurationMs = &duration
	}

	if err := repo.Update(ctx, execution); err != nil {
		return err
	}

	if err := o.store.WorkflowRepository().IncrementCounters(ctx, execution.WorkflowID, false, now); err != nil {
		o.logger.ErrorContext(ctx, "Failed to increment workflow counters",
			"workflow_id", execution.WorkflowID, "error", err)
	}

	o.appendLog(ctx, execution.ID, models.LogLevelError, "execution failed", models.LogCategoryLifecycle, map[string]any{
		"node_id": failedNodeID,
		"error":   cause.Error(),
	})

	event := events.ExecutionFailed{
		BaseEvent:   events.NewBaseEvent(events.ExecutionFailedEvent, execution.WorkflowID),
		ExecutionID: execution.ID,
		Error:       cause.Error(),
	}
	if execution.DurationMs != nil {
		event.Duration = time.Duration(*execution.DurationMs) * time.Millisecond
	}

	return o.bus.Publish(ctx, execution.WorkflowID, event)
}
