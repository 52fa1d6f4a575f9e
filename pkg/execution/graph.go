// Package execution orchestrates workflow runs: it creates executions from
// triggers, walks the node graph, and owns the execution state machine.
package execution

import (
	"errors"
	"fmt"
	"sort"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/nodes"
)

var (
	ErrInvalidGraph  = errors.New("invalid workflow graph")
	ErrCycleDetected = errors.New("workflow graph contains a cycle")
)

// graph is the traversal view of one workflow: adjacency over node ids plus
// a precomputed topological order of the executable nodes reachable from the
// trigger entry.
type graph struct {
	nodes    map[string]*models.WorkflowNode
	outgoing map[string][]*models.WorkflowConnection
	incoming map[string][]*models.WorkflowConnection

	// order lists reachable executable node ids in topological order.
	order []string
}

func buildGraph(workflowNodes []*models.WorkflowNode, connections []*models.WorkflowConnection) (*graph, error) {
	g := &graph{
		nodes:    make(map[string]*models.WorkflowNode, len(workflowNodes)),
		outgoing: make(map[string][]*models.WorkflowConnection),
		incoming: make(map[string][]*models.WorkflowConnection),
	}

	for _, node := range workflowNodes {
		if _, exists := g.nodes[node.NodeID]; exists {
			return nil, fmt.Errorf("%w: duplicate node id %q", ErrInvalidGraph, node.NodeID)
		}

		g.nodes[node.NodeID] = node
	}

	for _, connection := range connections {
		if _, ok := g.nodes[connection.SourceNodeID]; !ok {
			return nil, fmt.Errorf("%w: edge %q references unknown source %q",
				ErrInvalidGraph, connection.EdgeID, connection.SourceNodeID)
		}

		if _, ok := g.nodes[connection.TargetNodeID]; !ok {
			return nil, fmt.Errorf("%w: edge %q references unknown target %q",
				ErrInvalidGraph, connection.EdgeID, connection.TargetNodeID)
		}

		if connection.SourceNodeID == connection.TargetNodeID {
			return nil, fmt.Errorf("%w: edge %q is a self loop", ErrInvalidGraph, connection.EdgeID)
		}

		g.outgoing[connection.SourceNodeID] = append(g.outgoing[connection.SourceNodeID], connection)
		g.incoming[connection.TargetNodeID] = append(g.incoming[connection.TargetNodeID], connection)
	}

	order, err := g.topologicalOrder()
	if err != nil {
		return nil, err
	}

	g.order = order

	return g, nil
}

// topologicalOrder runs Kahn's algorithm over every node, so a cycle is
// rejected even when it sits in a detached component with no entry node. The
// returned order is then narrowed to the executable nodes reachable from the
// entry set. Ties break on ExecutionOrder, then node id, so the walk is
// deterministic.
func (g *graph) topologicalOrder() ([]string, error) {
	indegree := make(map[string]int, len(g.nodes))
	for id := range g.nodes {
		indegree[id] = 0
	}

	for _, edges := range g.outgoing {
		for _, edge := range edges {
			indegree[edge.TargetNodeID]++
		}
	}

	ready := make([]string, 0, len(g.nodes))
	for id, degree := range indegree {
		if degree == 0 {
			ready = append(ready, id)
		}
	}

	order := make([]string, 0, len(g.nodes))

	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool {
			a, b := g.nodes[ready[i]], g.nodes[ready[j]]
			if a.ExecutionOrder != b.ExecutionOrder {
				return a.ExecutionOrder < b.ExecutionOrder
			}

			return a.NodeID < b.NodeID
		})

		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		for _, edge := range g.outgoing[id] {
			indegree[edge.TargetNodeID]--
			if indegree[edge.TargetNodeID] == 0 {
				ready = append(ready, edge.TargetNodeID)
			}
		}
	}

	if len(order) != len(g.nodes) {
		return nil, ErrCycleDetected
	}

	reachable := g.reachable()

	executable := order[:0]
	for _, id := range order {
		if _, ok := reachable[id]; !ok {
			continue
		}

		if g.nodes[id].IsExecutable() {
			executable = append(executable, id)
		}
	}

	return executable, nil
}

// reachable returns the nodes reachable from the entry set. Trigger nodes are
// the virtual entry; a workflow without one starts at its roots.
func (g *graph) reachable() map[string]struct{} {
	var entry []string

	for id, node := range g.nodes {
		if node.Type == models.NodeTypeTrigger {
			entry = append(entry, id)
		}
	}

	if len(entry) == 0 {
		for id := range g.nodes {
			if len(g.incoming[id]) == 0 {
				entry = append(entry, id)
			}
		}
	}

	seen := make(map[string]struct{}, len(g.nodes))

	var visit func(id string)
	visit = func(id string) {
		if _, ok := seen[id]; ok {
			return
		}

		seen[id] = struct{}{}

		for _, edge := range g.outgoing[id] {
			visit(edge.TargetNodeID)
		}
	}

	for _, id := range entry {
		visit(id)
	}

	return seen
}

// subgraphFrom returns the executable nodes strictly downstream of the given
// node, in topological order. Used to run a loop body per iteration.
func (g *graph) subgraphFrom(nodeID string) []string {
	downstream := make(map[string]struct{})

	var visit func(id string)
	visit = func(id string) {
		for _, edge := range g.outgoing[id] {
			if _, ok := downstream[edge.TargetNodeID]; ok {
				continue
			}

			downstream[edge.TargetNodeID] = struct{}{}
			visit(edge.TargetNodeID)
		}
	}

	visit(nodeID)

	ordered := make([]string, 0, len(downstream))
	for _, id := range g.order {
		if _, ok := downstream[id]; ok {
			ordered = append(ordered, id)
		}
	}

	return ordered
}

func (g *graph) predecessors(nodeID string) []*models.WorkflowConnection {
	return g.incoming[nodeID]
}

// ValidateGraph checks structure ahead of execution: known edge endpoints,
// acyclicity, and variable references that can be proven missing. A sourceKey
// counts as provable only when no node produces it and no trigger node exists
// to supply trigger data at run time.
func ValidateGraph(workflowNodes []*models.WorkflowNode, connections []*models.WorkflowConnection) error {
	g, err := buildGraph(workflowNodes, connections)
	if err != nil {
		return err
	}

	hasTrigger := false
	produced := make(map[string]struct{})

	for _, node := range workflowNodes {
		if node.Type == models.NodeTypeTrigger {
			hasTrigger = true
		}

		for _, key := range []string{"result_key", "fallback_key", "item_variable", "index_variable"} {
			if value := nodes.ConfigString(node.Config, key, ""); value != "" {
				produced[value] = struct{}{}
			}
		}
	}

	if hasTrigger {
		return nil
	}

	for _, id := range g.order {
		node := g.nodes[id]

		sourceKey := nodes.ConfigString(node.Config, "source_key", "")
		if sourceKey == "" {
			continue
		}

		if _, ok := produced[sourceKey]; !ok {
			return fmt.Errorf("%w: node %q reads %q which no node produces",
				ErrInvalidGraph, node.NodeID, sourceKey)
		}
	}

	return nil
}
