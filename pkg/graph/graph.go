// Package graph provides a directed multigraph with stable keys and the
// take/put-back adapters that operate on it.
//
// Node and edge keys are allocated from monotonic counters and never reused
// implicitly, so removing an element never invalidates the keys of the others.
package graph

import (
	"slices"

	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
)

// NodeKey identifies a node for the lifetime of its graph.
type NodeKey uint64

// EdgeKey identifies an edge for the lifetime of its graph.
type EdgeKey uint64

// Direction selects incoming or outgoing edges of a node.
type Direction int

const (
	Outgoing Direction = iota
	Incoming
)

// String returns the direction name.
func (d Direction) String() string {
	if d == Incoming {
		return "incoming"
	}
	return "outgoing"
}

// EdgeRef describes one edge.
type EdgeRef[E any] struct {
	Key    EdgeKey
	Source NodeKey
	Target NodeKey
	Weight E
}

type edge[E any] struct {
	source NodeKey
	target NodeKey
	weight E
}

// Graph is a directed multigraph with node weights N and edge weights E.
// Parallel edges and self-loops are allowed. It is not safe for concurrent use.
type Graph[N, E any] struct {
	nodes map[NodeKey]N
	edges map[EdgeKey]*edge[E]
	out   map[NodeKey]map[EdgeKey]struct{}
	in    map[NodeKey]map[EdgeKey]struct{}

	nextNode NodeKey
	nextEdge EdgeKey
}

// New creates an empty graph.
func New[N, E any]() *Graph[N, E] {
	return &Graph[N, E]{
		nodes: make(map[NodeKey]N),
		edges: make(map[EdgeKey]*edge[E]),
		out:   make(map[NodeKey]map[EdgeKey]struct{}),
		in:    make(map[NodeKey]map[EdgeKey]struct{}),
	}
}

// AddNode adds a node and returns its key.
func (g *Graph[N, E]) AddNode(weight N) NodeKey {
	key := g.nextNode
	g.nextNode++
	g.insertNode(key, weight)
	return key
}

func (g *Graph[N, E]) insertNode(key NodeKey, weight N) {
	g.nodes[key] = weight
	g.out[key] = make(map[EdgeKey]struct{})
	g.in[key] = make(map[EdgeKey]struct{})
	if key >= g.nextNode {
		g.nextNode = key + 1
	}
}

// AddEdge adds an edge from source to target.
func (g *Graph[N, E]) AddEdge(source, target NodeKey, weight E) (EdgeKey, error) {
	if !g.ContainsNode(source) {
		return 0, sdkerrors.IndexNotFound("edge source node %d", source)
	}
	if !g.ContainsNode(target) {
		return 0, sdkerrors.IndexNotFound("edge target node %d", target)
	}

	key := g.nextEdge
	g.insertEdge(key, source, target, weight)
	return key, nil
}

// insertEdge adds an edge under a given key. Both endpoints must exist and
// key must not be in use.
func (g *Graph[N, E]) insertEdge(key EdgeKey, source, target NodeKey, weight E) {
	g.edges[key] = &edge[E]{source: source, target: target, weight: weight}
	g.out[source][key] = struct{}{}
	g.in[target][key] = struct{}{}
	if key >= g.nextEdge {
		g.nextEdge = key + 1
	}
}

// joins reports whether edge key exists and runs from source to target.
func (g *Graph[N, E]) joins(key EdgeKey, source, target NodeKey) bool {
	e, ok := g.edges[key]
	return ok && e.source == source && e.target == target
}

// RemoveNode removes a node and all its incident edges.
func (g *Graph[N, E]) RemoveNode(key NodeKey) (N, bool) {
	weight, ok := g.nodes[key]
	if !ok {
		return weight, false
	}

	for edgeKey := range g.out[key] {
		g.RemoveEdge(edgeKey)
	}
	for edgeKey := range g.in[key] {
		g.RemoveEdge(edgeKey)
	}

	delete(g.nodes, key)
	delete(g.out, key)
	delete(g.in, key)
	return weight, true
}

// RemoveEdge removes an edge.
func (g *Graph[N, E]) RemoveEdge(key EdgeKey) (E, bool) {
	e, ok := g.edges[key]
	if !ok {
		var zero E
		return zero, false
	}

	delete(g.out[e.source], key)
	delete(g.in[e.target], key)
	delete(g.edges, key)
	return e.weight, true
}

// ContainsNode reports whether the node exists.
func (g *Graph[N, E]) ContainsNode(key NodeKey) bool {
	_, ok := g.nodes[key]
	return ok
}

// ContainsEdge reports whether the edge exists.
func (g *Graph[N, E]) ContainsEdge(key EdgeKey) bool {
	_, ok := g.edges[key]
	return ok
}

// CountEdges returns the number of edges from source to target.
func (g *Graph[N, E]) CountEdges(source, target NodeKey) int {
	n := 0
	for edgeKey := range g.out[source] {
		if g.edges[edgeKey].target == target {
			n++
		}
	}
	return n
}

// FindEdge returns the lowest-keyed edge from source to target.
func (g *Graph[N, E]) FindEdge(source, target NodeKey) (EdgeKey, bool) {
	found := false
	var best EdgeKey
	for edgeKey := range g.out[source] {
		if g.edges[edgeKey].target != target {
			continue
		}
		if !found || edgeKey < best {
			best = edgeKey
			found = true
		}
	}
	return best, found
}

// NodeWeight returns the weight of a node.
func (g *Graph[N, E]) NodeWeight(key NodeKey) (N, bool) {
	weight, ok := g.nodes[key]
	return weight, ok
}

// EdgeWeight returns the weight of an edge.
func (g *Graph[N, E]) EdgeWeight(key EdgeKey) (E, bool) {
	e, ok := g.edges[key]
	if !ok {
		var zero E
		return zero, false
	}
	return e.weight, true
}

// SetNodeWeight replaces the weight of an existing node.
func (g *Graph[N, E]) SetNodeWeight(key NodeKey, weight N) error {
	if !g.ContainsNode(key) {
		return sdkerrors.IndexNotFound("node %d", key)
	}
	g.nodes[key] = weight
	return nil
}

// SetEdgeWeight replaces the weight of an existing edge.
func (g *Graph[N, E]) SetEdgeWeight(key EdgeKey, weight E) error {
	e, ok := g.edges[key]
	if !ok {
		return sdkerrors.IndexNotFound("edge %d", key)
	}
	e.weight = weight
	return nil
}

// Endpoints returns the source and target of an edge.
func (g *Graph[N, E]) Endpoints(key EdgeKey) (source, target NodeKey, ok bool) {
	e, ok := g.edges[key]
	if !ok {
		return 0, 0, false
	}
	return e.source, e.target, true
}

// Edges returns the edges of a node in the given direction, ordered by key.
func (g *Graph[N, E]) Edges(key NodeKey, dir Direction) []EdgeRef[E] {
	adjacency := g.out[key]
	if dir == Incoming {
		adjacency = g.in[key]
	}

	keys := sortedKeys(adjacency)
	refs := make([]EdgeRef[E], len(keys))
	for i, edgeKey := range keys {
		e := g.edges[edgeKey]
		refs[i] = EdgeRef[E]{Key: edgeKey, Source: e.source, Target: e.target, Weight: e.weight}
	}
	return refs
}

// Neighbors returns the distinct nodes adjacent to key in the given
// direction, in ascending order. The result is never nil.
func (g *Graph[N, E]) Neighbors(key NodeKey, dir Direction) []NodeKey {
	seen := make(map[NodeKey]struct{})
	for _, ref := range g.Edges(key, dir) {
		if dir == Incoming {
			seen[ref.Source] = struct{}{}
		} else {
			seen[ref.Target] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// NodeKeys returns every node key in ascending order.
func (g *Graph[N, E]) NodeKeys() []NodeKey {
	return sortedKeys(g.nodes)
}

// EdgeKeys returns every edge key in ascending order.
func (g *Graph[N, E]) EdgeKeys() []EdgeKey {
	return sortedKeys(g.edges)
}

// NodeCount returns the number of nodes.
func (g *Graph[N, E]) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges.
func (g *Graph[N, E]) EdgeCount() int {
	return len(g.edges)
}

// Union adds a copy of other to g as a disjoint subgraph and returns the key
// each node of other received in g.
func (g *Graph[N, E]) Union(other *Graph[N, E]) map[NodeKey]NodeKey {
	return g.merge(other, nil)
}

// merge is Union where nodes of other listed in reuse receive the given key.
// Reused keys must not be present in g.
func (g *Graph[N, E]) merge(other *Graph[N, E], reuse map[NodeKey]NodeKey) map[NodeKey]NodeKey {
	nodeKeys := other.NodeKeys()
	edgeKeys := other.EdgeKeys()

	mapping := make(map[NodeKey]NodeKey, len(nodeKeys))
	weights := make([]N, len(nodeKeys))
	for i, key := range nodeKeys {
		weights[i] = other.nodes[key]
	}
	edges := make([]edge[E], len(edgeKeys))
	for i, key := range edgeKeys {
		edges[i] = *other.edges[key]
	}

	for i, key := range nodeKeys {
		if target, ok := reuse[key]; ok {
			g.insertNode(target, weights[i])
			mapping[key] = target
			continue
		}
		mapping[key] = g.AddNode(weights[i])
	}

	for _, e := range edges {
		// Both endpoints were just inserted
		_, _ = g.AddEdge(mapping[e.source], mapping[e.target], e.weight)
	}

	return mapping
}

// Clone returns a deep copy of g with identical keys.
func (g *Graph[N, E]) Clone() *Graph[N, E] {
	c := New[N, E]()
	for key, weight := range g.nodes {
		c.insertNode(key, weight)
	}
	for key, e := range g.edges {
		c.edges[key] = &edge[E]{source: e.source, target: e.target, weight: e.weight}
		c.out[e.source][key] = struct{}{}
		c.in[e.target][key] = struct{}{}
	}
	c.nextNode = g.nextNode
	c.nextEdge = g.nextEdge
	return c
}

func sortedKeys[K NodeKey | EdgeKey, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
