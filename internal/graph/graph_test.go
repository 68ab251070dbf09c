package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
)

func TestBFSOrdersByScoreThenLexical(t *testing.T) {
	b := NewBuilder()
	b.AddNode(model.GraphNode{NodeID: "a", Kind: model.NodeTool})
	b.AddNode(model.GraphNode{NodeID: "b", Kind: model.NodeTool})
	b.AddNode(model.GraphNode{NodeID: "c", Kind: model.NodeTool})
	b.AddEdge(model.GraphEdge{From: "a", To: "b", Kind: model.EdgeDataFlow, Weight: 1})
	b.AddEdge(model.GraphEdge{From: "a", To: "c", Kind: model.EdgeDataFlow, Weight: 1})
	g := b.Build()

	paths := g.BFS("a", nil, 2)
	require.Len(t, paths, 2)
	assert.Equal(t, []string{"a", "b"}, paths[0].Nodes)
	assert.Equal(t, []string{"a", "c"}, paths[1].Nodes)
	assert.InDelta(t, 0.5, paths[0].Score, 1e-9)
}

func TestBFSRespectsEdgeKindFilter(t *testing.T) {
	b := NewBuilder()
	b.AddNode(model.GraphNode{NodeID: "a"})
	b.AddNode(model.GraphNode{NodeID: "b"})
	b.AddEdge(model.GraphEdge{From: "a", To: "b", Kind: model.EdgeSequential})
	g := b.Build()

	assert.Empty(t, g.BFS("a", []model.EdgeKind{model.EdgeDataFlow}, 3))
	assert.Len(t, g.BFS("a", []model.EdgeKind{model.EdgeSequential}, 3), 1)
}

func TestTypeSystemIdentity(t *testing.T) {
	ts := NewTypeSystem()
	assert.Equal(t, 1.0, ts.Compatible("issues/list", "issues/list"))
}

func TestTypeSystemInheritanceDecay(t *testing.T) {
	ts := NewTypeSystem()
	ts.AddInheritance("child", "parent")
	assert.InDelta(t, 0.8, ts.Compatible("child", "parent"), 1e-9)
}

func TestTypeSystemUnrelatedIsZero(t *testing.T) {
	ts := NewTypeSystem()
	assert.Equal(t, 0.0, ts.Compatible("a", "b"))
}

func TestTypeSystemCustomRuleOverrides(t *testing.T) {
	ts := NewTypeSystem()
	ts.AddInheritance("child", "parent")
	ts.AddRule(model.TypeCompatibilityRule{Parent: "parent", Child: "child", Confidence: 0.42})
	assert.InDelta(t, 0.42, ts.Compatible("child", "parent"), 1e-9)
}
