package graph

import (
	"slices"

	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/takeput"
	"go.uber.org/zap"
)

// Ambient is an edge between an extracted node and one of its neighbors,
// recorded when the node was taken. Edge is the key the edge had at that time.
type Ambient[E any] struct {
	Edge     EdgeKey
	Neighbor NodeKey
	Weight   E
}

// Extracted is what Splicer.Take hands to a processor.
type Extracted[N, E any] struct {
	Payload  N
	Incoming []Ambient[E]
	Outgoing []Ambient[E]
}

// SpliceTarget is the reinsertion target of a splice. A nil allowed set
// admits every neighbor; an empty one admits none.
type SpliceTarget struct {
	Node            NodeKey
	AllowedIncoming []NodeKey
	AllowedOutgoing []NodeKey
}

// Replacement is a subgraph with two boundary ports that takes the place of
// a node. Incoming edges are rewired onto Entry and outgoing edges leave from
// Exit. Entry and Exit may be the same node.
type Replacement[N, E any] struct {
	Graph    *Graph[N, E]
	Entry    NodeKey
	Exit     NodeKey
	Incoming []Ambient[E]
	Outgoing []Ambient[E]
}

// Single wraps one payload into a replacement whose only node is both ports,
// carrying the extracted edges through unchanged.
func Single[N, E any](ex Extracted[N, E]) Replacement[N, E] {
	g := New[N, E]()
	key := g.AddNode(ex.Payload)
	return Replacement[N, E]{
		Graph:    g,
		Entry:    key,
		Exit:     key,
		Incoming: ex.Incoming,
		Outgoing: ex.Outgoing,
	}
}

// Splicer replaces nodes of a graph by subgraphs.
//
// Take swaps a node's payload for the zero value and records its edges.
// PutBack removes the node, merges the replacement in its place and rewires
// the recorded edges that are still present onto the replacement's ports.
// The entry port inherits the key of the replaced node.
type Splicer[N, E any] struct {
	G      *Graph[N, E]
	Logger *zap.Logger

	remaps map[NodeKey]map[NodeKey]NodeKey
}

// NewSplicer creates a splicer over g.
func NewSplicer[N, E any](g *Graph[N, E], logger *zap.Logger) *Splicer[N, E] {
	return &Splicer[N, E]{
		G:      g,
		Logger: logger,
		remaps: make(map[NodeKey]map[NodeKey]NodeKey),
	}
}

// Remap returns the keys that the nodes of the last replacement spliced in at
// node received in the graph.
func (s *Splicer[N, E]) Remap(node NodeKey) (map[NodeKey]NodeKey, bool) {
	mapping, ok := s.remaps[node]
	return mapping, ok
}

// Validate implements takeput.Container.
func (s *Splicer[N, E]) Validate(node NodeKey) error {
	if !s.G.ContainsNode(node) {
		return sdkerrors.IndexNotFound("node %d", node)
	}
	return nil
}

// Take implements takeput.Container.
func (s *Splicer[N, E]) Take(node NodeKey) (Extracted[N, E], error) {
	if err := s.Validate(node); err != nil {
		return Extracted[N, E]{}, err
	}

	var zero N
	ex := Extracted[N, E]{Payload: s.G.nodes[node]}
	s.G.nodes[node] = zero

	for _, ref := range s.G.Edges(node, Incoming) {
		ex.Incoming = append(ex.Incoming, Ambient[E]{Edge: ref.Key, Neighbor: ref.Source, Weight: ref.Weight})
	}
	for _, ref := range s.G.Edges(node, Outgoing) {
		ex.Outgoing = append(ex.Outgoing, Ambient[E]{Edge: ref.Key, Neighbor: ref.Target, Weight: ref.Weight})
	}

	return ex, nil
}

// PutBack implements takeput.Container.
//
// The target node must still exist and the replacement must be a separate
// graph containing both ports, otherwise ErrInvariantViolation is returned
// and the graph is left unchanged. A recorded edge is rewired only while the
// edge it was recorded from still joins the neighbor and the node, and the
// neighbor is allowed by target. A recorded self-loop is rewired once, from
// the exit port to the entry port. A rewired edge whose endpoints end up
// unchanged keeps its key.
func (s *Splicer[N, E]) PutBack(target SpliceTarget, repl Replacement[N, E]) error {
	node := target.Node

	if !s.G.ContainsNode(node) {
		return sdkerrors.InvariantViolation("splice target node %d is not in the graph", node)
	}
	if repl.Graph == nil {
		return sdkerrors.InvariantViolation("replacement for node %d has no graph", node)
	}
	if repl.Graph == s.G {
		return sdkerrors.InvariantViolation("replacement for node %d is the graph being spliced", node)
	}
	if !repl.Graph.ContainsNode(repl.Entry) {
		return sdkerrors.InvariantViolation("entry port %d missing from replacement for node %d", repl.Entry, node)
	}
	if !repl.Graph.ContainsNode(repl.Exit) {
		return sdkerrors.InvariantViolation("exit port %d missing from replacement for node %d", repl.Exit, node)
	}

	incoming := s.filter(repl.Incoming, target.AllowedIncoming, func(a Ambient[E]) bool {
		return a.Neighbor != node && s.G.joins(a.Edge, a.Neighbor, node)
	})
	outgoing := s.filter(repl.Outgoing, target.AllowedOutgoing, func(a Ambient[E]) bool {
		return s.G.joins(a.Edge, node, a.Neighbor)
	})

	s.G.RemoveNode(node)
	mapping := s.G.merge(repl.Graph, map[NodeKey]NodeKey{repl.Entry: node})
	if s.remaps == nil {
		s.remaps = make(map[NodeKey]map[NodeKey]NodeKey)
	}
	s.remaps[node] = mapping

	entry, exit := mapping[repl.Entry], mapping[repl.Exit]
	for _, a := range incoming {
		s.rewire(a, a.Neighbor, entry, a.Neighbor, node)
	}
	for _, a := range outgoing {
		to := a.Neighbor
		if to == node {
			to = entry
		}
		s.rewire(a, exit, to, node, a.Neighbor)
	}

	nopIfNil(s.Logger).Debug("Spliced node",
		zap.Uint64("node", uint64(node)),
		zap.Int("replacement_nodes", repl.Graph.NodeCount()),
		zap.Int("rewired_incoming", len(incoming)),
		zap.Int("rewired_outgoing", len(outgoing)),
	)

	return nil
}

// filter keeps the recorded edges for which present holds and whose neighbor
// is allowed. Each recorded edge is kept at most once.
func (s *Splicer[N, E]) filter(recorded []Ambient[E], allowed []NodeKey, present func(Ambient[E]) bool) []Ambient[E] {
	seen := make(map[EdgeKey]struct{}, len(recorded))
	kept := make([]Ambient[E], 0, len(recorded))
	for _, a := range recorded {
		if allowed != nil && !slices.Contains(allowed, a.Neighbor) {
			continue
		}
		if _, dup := seen[a.Edge]; dup || !present(a) {
			continue
		}
		seen[a.Edge] = struct{}{}
		kept = append(kept, a)
	}
	return kept
}

// rewire adds a recorded edge between source and target. The recorded key is
// reused when the endpoints match those the edge had before the splice.
func (s *Splicer[N, E]) rewire(a Ambient[E], source, target, oldSource, oldTarget NodeKey) {
	if source == oldSource && target == oldTarget && !s.G.ContainsEdge(a.Edge) {
		s.G.insertEdge(a.Edge, source, target, a.Weight)
		return
	}
	// Both endpoints exist: neighbors survived the filter and ports were merged
	_, _ = s.G.AddEdge(source, target, a.Weight)
}

// AllIndicesInOut implements takeput.Container. Every node is paired with
// itself and its current neighbor sets.
func (s *Splicer[N, E]) AllIndicesInOut() []takeput.IndexPair[NodeKey, SpliceTarget] {
	keys := s.G.NodeKeys()
	pairs := make([]takeput.IndexPair[NodeKey, SpliceTarget], len(keys))
	for i, key := range keys {
		pairs[i] = takeput.IndexPair[NodeKey, SpliceTarget]{
			In: key,
			Out: SpliceTarget{
				Node:            key,
				AllowedIncoming: s.G.Neighbors(key, Incoming),
				AllowedOutgoing: s.G.Neighbors(key, Outgoing),
			},
		}
	}
	return pairs
}

// IdentityProcessor implements takeput.Container.
func (s *Splicer[N, E]) IdentityProcessor() takeput.Processor[Extracted[N, E], Replacement[N, E]] {
	logger := nopIfNil(s.Logger)
	return func(ex Extracted[N, E]) (Replacement[N, E], error) {
		logger.Debug("Doing nothing on node", zap.Any("payload", ex.Payload))
		return Single(ex), nil
	}
}

// Claims implements takeput.Claimer. A splice claims its node.
func (s *Splicer[N, E]) Claims(pair takeput.IndexPair[NodeKey, SpliceTarget]) []any {
	return []any{pair.In, pair.Out.Node}
}
