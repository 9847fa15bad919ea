package takeput

import (
	"time"

	"github.com/google/uuid"
)

// Report summarizes one Dispatch call.
type Report struct {
	// DispatchID identifies the dispatch in logs and spans
	DispatchID string
	// Parallelism is the bound the dispatch ran with
	Parallelism int
	// Items is the number of work items requested
	Items int
	// Chunks is the number of chunks started
	Chunks int
	// Extracted counts successful Take calls
	Extracted int
	// Reinserted counts successful PutBack calls
	Reinserted int
	// Failed holds every failed work item, ordered by position
	Failed []*ItemError
	// Skipped counts work items never taken
	Skipped int
	// PeakConcurrent is the highest number of simultaneously running tasks
	PeakConcurrent int64
	// AverageWait is the mean time a task waited for a live-task slot
	AverageWait time.Duration
	// Duration is the wall time of the dispatch
	Duration time.Duration
}

func newReport(items, parallelism int) *Report {
	return &Report{
		DispatchID:  uuid.NewString(),
		Parallelism: parallelism,
		Items:       items,
	}
}

// Succeeded reports whether every work item was reinserted.
func (r *Report) Succeeded() bool {
	return len(r.Failed) == 0 && r.Reinserted == r.Items
}
