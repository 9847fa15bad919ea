package graph

import (
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
)

// state is a key-preserving view of a graph: node weights by key plus the
// multiset of edges.
type state struct {
	nodes map[NodeKey]string
	edges []string
}

func snapshot(g *Graph[string, int]) state {
	s := state{nodes: map[NodeKey]string{}}
	for _, key := range g.NodeKeys() {
		s.nodes[key], _ = g.NodeWeight(key)
	}
	for _, key := range g.EdgeKeys() {
		src, dst, _ := g.Endpoints(key)
		weight, _ := g.EdgeWeight(key)
		s.edges = append(s.edges, fmt.Sprintf("%d->%d:%d", src, dst, weight))
	}
	slices.Sort(s.edges)
	return s
}

func TestGraphStableKeys(t *testing.T) {
	g := New[string, int]()
	a := g.AddNode("a")
	b := g.AddNode("b")
	c := g.AddNode("c")

	ab, err := g.AddEdge(a, b, 1)
	require.NoError(t, err)
	bc, err := g.AddEdge(b, c, 2)
	require.NoError(t, err)

	weight, ok := g.RemoveNode(b)
	require.True(t, ok)
	assert.Equal(t, "b", weight)

	assert.False(t, g.ContainsEdge(ab))
	assert.False(t, g.ContainsEdge(bc))
	assert.Equal(t, []NodeKey{a, c}, g.NodeKeys())

	d := g.AddNode("d")
	assert.NotEqual(t, b, d, "removed keys are not reused")

	_, ok = g.RemoveNode(b)
	assert.False(t, ok)
}

func TestGraphAddEdgeRequiresEndpoints(t *testing.T) {
	g := New[string, int]()
	a := g.AddNode("a")

	_, err := g.AddEdge(a, 42, 1)
	assert.True(t, sdkerrors.IsIndexNotFound(err))
	_, err = g.AddEdge(42, a, 1)
	assert.True(t, sdkerrors.IsIndexNotFound(err))
	assert.Zero(t, g.EdgeCount())
}

func TestGraphParallelEdgesAndSelfLoops(t *testing.T) {
	g := New[string, int]()
	a := g.AddNode("a")
	b := g.AddNode("b")

	first, _ := g.AddEdge(a, b, 1)
	_, _ = g.AddEdge(a, b, 2)
	_, _ = g.AddEdge(b, b, 3)

	assert.Equal(t, 2, g.CountEdges(a, b))
	assert.Equal(t, 1, g.CountEdges(b, b))
	assert.Zero(t, g.CountEdges(b, a))

	found, ok := g.FindEdge(a, b)
	require.True(t, ok)
	assert.Equal(t, first, found)

	assert.Equal(t, []NodeKey{a, b}, g.Neighbors(b, Incoming))
	assert.Equal(t, []NodeKey{b}, g.Neighbors(a, Outgoing))
	assert.Equal(t, []NodeKey{}, g.Neighbors(a, Incoming))

	refs := g.Edges(b, Incoming)
	require.Len(t, refs, 3)
	assert.Equal(t, 1, refs[0].Weight)
	assert.Equal(t, 3, refs[2].Weight)

	g.RemoveNode(b)
	assert.Zero(t, g.EdgeCount())
}

func TestGraphWeights(t *testing.T) {
	g := New[string, int]()
	a := g.AddNode("a")
	e, _ := g.AddEdge(a, a, 5)

	require.NoError(t, g.SetNodeWeight(a, "A"))
	require.NoError(t, g.SetEdgeWeight(e, 6))

	weight, _ := g.NodeWeight(a)
	assert.Equal(t, "A", weight)
	ew, _ := g.EdgeWeight(e)
	assert.Equal(t, 6, ew)

	assert.True(t, sdkerrors.IsIndexNotFound(g.SetNodeWeight(9, "x")))
	assert.True(t, sdkerrors.IsIndexNotFound(g.SetEdgeWeight(9, 0)))

	removed, ok := g.RemoveEdge(e)
	assert.True(t, ok)
	assert.Equal(t, 6, removed)
	_, ok = g.EdgeWeight(e)
	assert.False(t, ok)
}

func TestGraphUnion(t *testing.T) {
	g := New[string, int]()
	x := g.AddNode("x")

	other := New[string, int]()
	p := other.AddNode("p")
	q := other.AddNode("q")
	_, _ = other.AddEdge(p, q, 7)

	mapping := g.Union(other)
	require.Len(t, mapping, 2)
	assert.NotEqual(t, x, mapping[p])
	assert.NotEqual(t, mapping[p], mapping[q])

	assert.Equal(t, 3, g.NodeCount())
	assert.Equal(t, 1, g.CountEdges(mapping[p], mapping[q]))
	weight, _ := g.NodeWeight(mapping[q])
	assert.Equal(t, "q", weight)

	// The source graph is untouched
	assert.Equal(t, 2, other.NodeCount())
	assert.Equal(t, 1, other.EdgeCount())
}

func TestGraphClone(t *testing.T) {
	g := New[string, int]()
	a := g.AddNode("a")
	b := g.AddNode("b")
	_, _ = g.AddEdge(a, b, 1)

	c := g.Clone()
	assert.Equal(t, snapshot(g), snapshot(c))

	c.RemoveNode(a)
	assert.Equal(t, 2, g.NodeCount())
	assert.NotEqual(t, a, c.AddNode("z"))
}
