package takeput

import (
	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"go.uber.org/zap"
)

// Sequence adapts a slice. Indices are positions.
type Sequence[T any] struct {
	Items []T

	// Logger receives identity-processor debug logs (nil for no logging)
	Logger *zap.Logger
}

// NewSequence wraps items without copying them.
func NewSequence[T any](items []T) *Sequence[T] {
	return &Sequence[T]{Items: items}
}

// Validate implements Container.
func (s *Sequence[T]) Validate(i int) error {
	if i < 0 || i >= len(s.Items) {
		return sdkerrors.IndexNotFound("position %d of sequence of length %d", i, len(s.Items))
	}
	return nil
}

// Take implements Container.
func (s *Sequence[T]) Take(i int) (T, error) {
	var zero T
	if err := s.Validate(i); err != nil {
		return zero, err
	}

	item := s.Items[i]
	s.Items[i] = zero
	return item, nil
}

// PutBack implements Container.
func (s *Sequence[T]) PutBack(i int, result T) error {
	if err := s.Validate(i); err != nil {
		return err
	}

	s.Items[i] = result
	return nil
}

// AllIndicesInOut implements Container.
func (s *Sequence[T]) AllIndicesInOut() []IndexPair[int, int] {
	return positions(len(s.Items))
}

// IdentityProcessor implements Container.
func (s *Sequence[T]) IdentityProcessor() Processor[T, T] {
	return identity[T](loggerOrNop(s.Logger), "sequence element")
}

// Claims implements Claimer.
func (s *Sequence[T]) Claims(pair IndexPair[int, int]) []any {
	return []any{pair.In, pair.Out}
}

// NonEmpty adapts a sequence with at least one element.
// Position 0 is the head, position i > 0 is Tail[i-1].
type NonEmpty[T any] struct {
	Head T
	Tail []T

	// Logger receives identity-processor debug logs (nil for no logging)
	Logger *zap.Logger
}

// NewNonEmpty builds a non-empty sequence from its head and tail.
func NewNonEmpty[T any](head T, tail ...T) *NonEmpty[T] {
	return &NonEmpty[T]{Head: head, Tail: tail}
}

// Len returns the number of elements, always at least 1.
func (n *NonEmpty[T]) Len() int {
	return 1 + len(n.Tail)
}

// Slice returns the elements in order.
func (n *NonEmpty[T]) Slice() []T {
	out := make([]T, 0, n.Len())
	out = append(out, n.Head)
	return append(out, n.Tail...)
}

func (n *NonEmpty[T]) slot(i int) (*T, error) {
	switch {
	case i == 0:
		return &n.Head, nil
	case i > 0 && i <= len(n.Tail):
		return &n.Tail[i-1], nil
	}
	return nil, sdkerrors.IndexNotFound("position %d of non-empty sequence of length %d", i, n.Len())
}

// Validate implements Container.
func (n *NonEmpty[T]) Validate(i int) error {
	_, err := n.slot(i)
	return err
}

// Take implements Container.
func (n *NonEmpty[T]) Take(i int) (T, error) {
	var zero T
	slot, err := n.slot(i)
	if err != nil {
		return zero, err
	}

	item := *slot
	*slot = zero
	return item, nil
}

// PutBack implements Container.
func (n *NonEmpty[T]) PutBack(i int, result T) error {
	slot, err := n.slot(i)
	if err != nil {
		return err
	}

	*slot = result
	return nil
}

// AllIndicesInOut implements Container.
func (n *NonEmpty[T]) AllIndicesInOut() []IndexPair[int, int] {
	return positions(n.Len())
}

// IdentityProcessor implements Container.
func (n *NonEmpty[T]) IdentityProcessor() Processor[T, T] {
	return identity[T](loggerOrNop(n.Logger), "non-empty sequence element")
}

// Claims implements Claimer.
func (n *NonEmpty[T]) Claims(pair IndexPair[int, int]) []any {
	return []any{pair.In, pair.Out}
}

func positions(n int) []IndexPair[int, int] {
	pairs := make([]IndexPair[int, int], n)
	for i := range pairs {
		pairs[i] = IndexPair[int, int]{In: i, Out: i}
	}
	return pairs
}

// identity returns a processor that logs the element it leaves unchanged.
func identity[T any](logger *zap.Logger, what string) Processor[T, T] {
	return func(item T) (T, error) {
		logger.Debug("Doing nothing on "+what, zap.Any("element", item))
		return item, nil
	}
}

func loggerOrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
