// Package takeput implements a take / process / put-back protocol over
// indexable containers and a bounded parallel dispatcher that drives it.
//
// A Container hands out one element per extraction index (Take), accepts a
// processed result at a reinsertion target (PutBack) and knows the canonical
// correspondence between the two (AllIndicesInOut). Dispatch partitions the
// work items into chunks of at most Parallelism items. For every chunk it
// takes each element on the calling goroutine, processes the elements
// concurrently and reinserts the results sequentially before the next chunk
// starts.
//
// Basic usage:
//
//	seq := takeput.NewSequence([]int{0, 1, 2, 3, 4, 5})
//	_, err := takeput.ProcessAll(ctx, seq, takeput.Pairs(1, 3, 5),
//		takeput.Pure(func(x int) int { return x + 1 }))
//	// seq.Items == []int{0, 2, 2, 4, 4, 6}
//
// Running the identity processor of a container over all of its indices
// leaves the container observably unchanged:
//
//	_, err := takeput.Identity(ctx, dispatcher, seq)
package takeput
