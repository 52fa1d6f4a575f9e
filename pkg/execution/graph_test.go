package execution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadehq/cascade/pkg/models"
)

func node(nodeID string, nodeType models.NodeType) *models.WorkflowNode {
	return &models.WorkflowNode{
		WorkflowID: "wf-1",
		NodeID:     nodeID,
		Type:       nodeType,
		Name:       nodeID,
		Config:     map[string]any{},
	}
}

func edge(edgeID, source, target string) *models.WorkflowConnection {
	return &models.WorkflowConnection{
		WorkflowID:   "wf-1",
		EdgeID:       edgeID,
		SourceNodeID: source,
		TargetNodeID: target,
	}
}

func TestBuildGraph_TopologicalOrder(t *testing.T) {
	g, err := buildGraph(
		[]*models.WorkflowNode{
			node("t", models.NodeTypeTrigger),
			node("c", models.NodeTypeAction),
			node("a", models.NodeTypeQuery),
			node("b", models.NodeTypeFilter),
		},
		[]*models.WorkflowConnection{
			edge("e1", "t", "a"),
			edge("e2", "a", "b"),
			edge("e3", "b", "c"),
		},
	)
	require.NoError(t, err)

	// Trigger nodes are virtual and excluded from the executable order.
	assert.Equal(t, []string{"a", "b", "c"}, g.order)
}

func TestBuildGraph_CycleFailsFast(t *testing.T) {
	_, err := buildGraph(
		[]*models.WorkflowNode{
			node("a", models.NodeTypeQuery),
			node("b", models.NodeTypeFilter),
			node("c", models.NodeTypeAction),
		},
		[]*models.WorkflowConnection{
			edge("e1", "a", "b"),
			edge("e2", "b", "c"),
			edge("e3", "c", "a"),
		},
	)
	assert.ErrorIs(t, err, ErrCycleDetected)
}

func TestBuildGraph_DetachedCycleFailsFast(t *testing.T) {
	// The cycle has no zero-indegree entry and sits apart from the trigger
	// component; it must still be rejected, not silently dropped.
	_, err := buildGraph(
		[]*models.WorkflowNode{
			node("t", models.NodeTypeTrigger),
			node("a", models.NodeTypeQuery),
			node("x", models.NodeTypeAction),
			node("y", models.NodeTypeAction),
		},
		[]*models.WorkflowConnection{
			edge("e1", "t", "a"),
			edge("e2", "x", "y"),
			edge("e3", "y", "x"),
		},
	)
	assert.ErrorIs(t, err, ErrCycleDetected)
}

func TestBuildGraph_UnknownEndpoint(t *testing.T) {
	_, err := buildGraph(
		[]*models.WorkflowNode{node("a", models.NodeTypeQuery)},
		[]*models.WorkflowConnection{edge("e1", "a", "ghost")},
	)
	assert.ErrorIs(t, err, ErrInvalidGraph)
}

func TestBuildGraph_SelfLoop(t *testing.T) {
	_, err := buildGraph(
		[]*models.WorkflowNode{node("a", models.NodeTypeQuery)},
		[]*models.WorkflowConnection{edge("e1", "a", "a")},
	)
	assert.ErrorIs(t, err, ErrInvalidGraph)
}

func TestBuildGraph_UnreachableNodesExcluded(t *testing.T) {
	g, err := buildGraph(
		[]*models.WorkflowNode{
			node("t", models.NodeTypeTrigger),
			node("a", models.NodeTypeQuery),
			node("orphan", models.NodeTypeAction),
		},
		[]*models.WorkflowConnection{edge("e1", "t", "a")},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, g.order)
}

func TestSubgraphFrom(t *testing.T) {
	g, err := buildGraph(
		[]*models.WorkflowNode{
			node("loop", models.NodeTypeLoop),
			node("a", models.NodeTypeQuery),
			node("b", models.NodeTypeAction),
			node("side", models.NodeTypeAction),
		},
		[]*models.WorkflowConnection{
			edge("e1", "loop", "a"),
			edge("e2", "a", "b"),
		},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, g.subgraphFrom("loop"))
	assert.Empty(t, g.subgraphFrom("side"))
}

func TestValidateGraph_MissingSourceKey(t *testing.T) {
	loopNode := node("loop", models.NodeTypeLoop)
	loopNode.Config = map[string]any{"source_key": "leads", "item_variable": "lead"}

	// No trigger node and nothing produces "leads": provably missing.
	err := ValidateGraph([]*models.WorkflowNode{loopNode}, nil)
	assert.ErrorIs(t, err, ErrInvalidGraph)

	// A query producing it satisfies the reference.
	queryNode := node("q", models.NodeTypeQuery)
	queryNode.Config = map[string]any{"model": "leads", "result_key": "leads"}

	err = ValidateGraph(
		[]*models.WorkflowNode{queryNode, loopNode},
		[]*models.WorkflowConnection{edge("e1", "q", "loop")},
	)
	assert.NoError(t, err)

	// With a trigger node the key may arrive as trigger data.
	err = ValidateGraph(
		[]*models.WorkflowNode{node("t", models.NodeTypeTrigger), loopNode},
		[]*models.WorkflowConnection{edge("e1", "t", "loop")},
	)
	assert.NoError(t, err)
}
