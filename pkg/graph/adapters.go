package graph

import (
	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/takeput"
	"go.uber.org/zap"
)

// NodeWeights adapts the node weights of a graph. Indices are node keys and
// the graph structure is never touched.
type NodeWeights[N, E any] struct {
	G      *Graph[N, E]
	Logger *zap.Logger
}

// Validate implements takeput.Container.
func (a *NodeWeights[N, E]) Validate(key NodeKey) error {
	if !a.G.ContainsNode(key) {
		return sdkerrors.IndexNotFound("node %d", key)
	}
	return nil
}

// Take implements takeput.Container.
func (a *NodeWeights[N, E]) Take(key NodeKey) (N, error) {
	var zero N
	weight, ok := a.G.NodeWeight(key)
	if !ok {
		return zero, sdkerrors.IndexNotFound("node %d", key)
	}
	a.G.nodes[key] = zero
	return weight, nil
}

// PutBack implements takeput.Container.
func (a *NodeWeights[N, E]) PutBack(key NodeKey, weight N) error {
	return a.G.SetNodeWeight(key, weight)
}

// AllIndicesInOut implements takeput.Container.
func (a *NodeWeights[N, E]) AllIndicesInOut() []takeput.IndexPair[NodeKey, NodeKey] {
	return takeput.Pairs(a.G.NodeKeys()...)
}

// IdentityProcessor implements takeput.Container.
func (a *NodeWeights[N, E]) IdentityProcessor() takeput.Processor[N, N] {
	logger := nopIfNil(a.Logger)
	return func(weight N) (N, error) {
		logger.Debug("Doing nothing on node weight", zap.Any("weight", weight))
		return weight, nil
	}
}

// Claims implements takeput.Claimer.
func (a *NodeWeights[N, E]) Claims(pair takeput.IndexPair[NodeKey, NodeKey]) []any {
	return []any{pair.In, pair.Out}
}

// EdgeWeights adapts the edge weights of a graph. Indices are edge keys and
// endpoints are never touched.
type EdgeWeights[N, E any] struct {
	G      *Graph[N, E]
	Logger *zap.Logger
}

// Validate implements takeput.Container.
func (a *EdgeWeights[N, E]) Validate(key EdgeKey) error {
	if !a.G.ContainsEdge(key) {
		return sdkerrors.IndexNotFound("edge %d", key)
	}
	return nil
}

// Take implements takeput.Container.
func (a *EdgeWeights[N, E]) Take(key EdgeKey) (E, error) {
	var zero E
	e, ok := a.G.edges[key]
	if !ok {
		return zero, sdkerrors.IndexNotFound("edge %d", key)
	}
	weight := e.weight
	e.weight = zero
	return weight, nil
}

// PutBack implements takeput.Container.
func (a *EdgeWeights[N, E]) PutBack(key EdgeKey, weight E) error {
	return a.G.SetEdgeWeight(key, weight)
}

// AllIndicesInOut implements takeput.Container.
func (a *EdgeWeights[N, E]) AllIndicesInOut() []takeput.IndexPair[EdgeKey, EdgeKey] {
	return takeput.Pairs(a.G.EdgeKeys()...)
}

// IdentityProcessor implements takeput.Container.
func (a *EdgeWeights[N, E]) IdentityProcessor() takeput.Processor[E, E] {
	logger := nopIfNil(a.Logger)
	return func(weight E) (E, error) {
		logger.Debug("Doing nothing on edge weight", zap.Any("weight", weight))
		return weight, nil
	}
}

// Claims implements takeput.Claimer.
func (a *EdgeWeights[N, E]) Claims(pair takeput.IndexPair[EdgeKey, EdgeKey]) []any {
	return []any{pair.In, pair.Out}
}

func nopIfNil(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
