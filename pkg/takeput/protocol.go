package takeput

// IndexPair is the source and destination of one work item.
type IndexPair[In, Out any] struct {
	In  In
	Out Out
}

// Pairs pairs every index with itself.
func Pairs[T any](indices ...T) []IndexPair[T, T] {
	pairs := make([]IndexPair[T, T], len(indices))
	for i, idx := range indices {
		pairs[i] = IndexPair[T, T]{In: idx, Out: idx}
	}
	return pairs
}

// Processor transforms one extracted element into a reinsertable result.
// It runs on its own goroutine and must not touch the container.
type Processor[I, R any] func(item I) (R, error)

// Pure lifts an infallible function into a Processor.
func Pure[I, R any](fn func(I) R) Processor[I, R] {
	return func(item I) (R, error) {
		return fn(item), nil
	}
}

// Container is implemented by anything whose elements can be removed,
// processed elsewhere and put back.
//
// Take leaves a neutral placeholder behind, never a hole. Take and PutBack are
// only ever called from the dispatching goroutine.
type Container[In, Out, I, R any] interface {
	// Validate reports ErrIndexNotFound when in does not address an element.
	// It must not mutate the container.
	Validate(in In) error

	// Take removes and returns the element at in.
	Take(in In) (I, error)

	// PutBack writes result at out.
	PutBack(out Out, result R) error

	// AllIndicesInOut returns every element paired with itself, in a
	// deterministic order.
	AllIndicesInOut() []IndexPair[In, Out]

	// IdentityProcessor returns a processor for which taking, processing and
	// putting back every element of AllIndicesInOut reproduces the container.
	IdentityProcessor() Processor[I, R]
}

// Claimer is implemented by containers able to name the locations a work item
// touches. Claims must return comparable values. Work items of one chunk are
// independent when their claims are disjoint.
type Claimer[In, Out any] interface {
	Claims(pair IndexPair[In, Out]) []any
}
