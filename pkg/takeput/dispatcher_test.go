package takeput

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// recordingSequence logs every Take and PutBack it receives.
type recordingSequence struct {
	*Sequence[int]

	mu     sync.Mutex
	events []event
}

type event struct {
	op       string
	position int
}

func newRecordingSequence(n int) *recordingSequence {
	items := make([]int, n)
	for i := range items {
		items[i] = i
	}
	return &recordingSequence{Sequence: NewSequence(items)}
}

func (r *recordingSequence) Take(i int) (int, error) {
	r.record("take", i)
	return r.Sequence.Take(i)
}

func (r *recordingSequence) PutBack(i int, result int) error {
	r.record("put", i)
	return r.Sequence.PutBack(i, result)
}

func (r *recordingSequence) record(op string, i int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{op: op, position: i})
}

// rejectingSequence fails PutBack at one position.
type rejectingSequence struct {
	*Sequence[int]
	reject int
}

func (r *rejectingSequence) PutBack(i int, result int) error {
	if i == r.reject {
		return errors.New("slot is sealed")
	}
	return r.Sequence.PutBack(i, result)
}

func increment(x int) int { return x + 1 }

func TestDispatchChunkBarrier(t *testing.T) {
	const parallelism = 3
	seq := newRecordingSequence(8)
	d := NewDispatcher(DefaultConfig().WithParallelism(parallelism))

	report, err := Dispatch(context.Background(), d, seq, seq.AllIndicesInOut(), Pure(increment))
	require.NoError(t, err)
	assert.Equal(t, 3, report.Chunks)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, seq.Items)

	putsPerChunk := map[int]int{}
	highestTaken := -1
	for _, e := range seq.events {
		chunk := e.position / parallelism
		switch e.op {
		case "take":
			if chunk > 0 {
				assert.Equal(t, parallelism, putsPerChunk[chunk-1], "chunk %d taken before chunk %d was put back", chunk, chunk-1)
			}
			if chunk > highestTaken {
				highestTaken = chunk
			}
		case "put":
			assert.Equal(t, chunk, highestTaken, "put back of chunk %d after a later chunk was taken", chunk)
			putsPerChunk[chunk]++
		}
	}
	assert.Len(t, seq.events, 16)
}

func TestDispatchBoundsLiveTasks(t *testing.T) {
	const parallelism = 2
	seq := newRecordingSequence(12)
	d := NewDispatcher(DefaultConfig().WithParallelism(parallelism))

	var live, maxLive int64
	process := func(x int) (int, error) {
		n := atomic.AddInt64(&live, 1)
		for {
			m := atomic.LoadInt64(&maxLive)
			if n <= m || atomic.CompareAndSwapInt64(&maxLive, m, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt64(&live, -1)
		return x * 10, nil
	}

	report, err := Dispatch(context.Background(), d, seq, seq.AllIndicesInOut(), process)
	require.NoError(t, err)

	assert.LessOrEqual(t, maxLive, int64(parallelism))
	assert.LessOrEqual(t, report.PeakConcurrent, int64(parallelism))
	assert.GreaterOrEqual(t, report.PeakConcurrent, int64(1))
	assert.LessOrEqual(t, report.AverageWait, report.Duration)
	assert.Equal(t, 6, report.Chunks)
	assert.Equal(t, 110, seq.Items[11])
}

func TestDispatchEmptyInput(t *testing.T) {
	seq := newRecordingSequence(4)
	d := NewDispatcher(DefaultConfig().WithParallelism(2))

	called := false
	report, err := Dispatch(context.Background(), d, seq, nil, func(x int) (int, error) {
		called = true
		return x, nil
	})
	require.NoError(t, err)

	assert.False(t, called)
	assert.Empty(t, seq.events)
	assert.Equal(t, []int{0, 1, 2, 3}, seq.Items)
	assert.Zero(t, report.Chunks)
	assert.Zero(t, report.AverageWait)
	assert.True(t, report.Succeeded())
}

func TestDispatchInvalidIndexFailsBeforeTake(t *testing.T) {
	seq := newRecordingSequence(6)
	d := NewDispatcher(DefaultConfig().WithParallelism(4))

	report, err := Dispatch(context.Background(), d, seq, Pairs(1, 9), Pure(increment))
	require.Error(t, err)

	assert.True(t, sdkerrors.IsIndexNotFound(err))
	assert.Empty(t, seq.events)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, seq.Items)

	require.Len(t, report.Failed, 1)
	assert.Equal(t, 1, report.Failed[0].Position)
	assert.Equal(t, PhaseValidate, report.Failed[0].Phase)
	assert.Equal(t, 1, report.Skipped)
}

func TestDispatchProcessorErrorStopsLaterChunks(t *testing.T) {
	seq := newRecordingSequence(6)
	d := NewDispatcher(DefaultConfig().WithParallelism(2))

	process := func(x int) (int, error) {
		if x == 2 {
			return 0, fmt.Errorf("cannot handle %d", x)
		}
		return x + 100, nil
	}

	report, err := Dispatch(context.Background(), d, seq, seq.AllIndicesInOut(), process)
	require.Error(t, err)
	assert.ErrorIs(t, err, sdkerrors.ErrProcessingFailed)
	assert.Contains(t, err.Error(), "chunk 1")

	// Position 2 stays taken, position 3 of the same chunk is still put back
	assert.Equal(t, []int{100, 101, 0, 103, 4, 5}, seq.Items)
	assert.Equal(t, 2, report.Chunks)
	assert.Equal(t, 4, report.Extracted)
	assert.Equal(t, 3, report.Reinserted)
	assert.Equal(t, 2, report.Skipped)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, PhaseProcess, report.Failed[0].Phase)
	assert.False(t, report.Succeeded())
}

func TestDispatchRecoversPanics(t *testing.T) {
	seq := NewSequence([]int{1, 2, 3})
	d := NewDispatcher(DefaultConfig().WithParallelism(3))

	report, err := Dispatch(context.Background(), d, seq, seq.AllIndicesInOut(), Pure(func(x int) int {
		if x == 2 {
			panic("boom")
		}
		return x
	}))
	require.Error(t, err)
	assert.True(t, sdkerrors.IsDeliveryFailure(err))
	assert.Equal(t, sdkerrors.CodeDeliveryFailed, sdkerrors.Categorize(err))

	var panicErr *PanicError
	require.True(t, errors.As(err, &panicErr))
	assert.Equal(t, "boom", panicErr.Value)
	assert.NotEmpty(t, panicErr.Stack)

	var itemErr *ItemError
	require.True(t, errors.As(err, &itemErr))
	assert.Equal(t, 1, itemErr.Position)
	assert.Equal(t, 2, report.Reinserted)
}

func TestDispatchPutBackFailure(t *testing.T) {
	seq := &rejectingSequence{Sequence: NewSequence([]int{1, 2, 3}), reject: 0}
	d := NewDispatcher(DefaultConfig().WithParallelism(3))

	report, err := Dispatch(context.Background(), d, seq, Pairs(0, 1, 2), Pure(increment))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slot is sealed")

	require.Len(t, report.Failed, 1)
	assert.Equal(t, PhasePutBack, report.Failed[0].Phase)
	assert.Equal(t, []int{0, 3, 4}, seq.Items)
}

func TestDispatchIndependenceCheck(t *testing.T) {
	seq := newRecordingSequence(4)
	d := NewDispatcher(DefaultConfig().WithParallelism(4).WithIndependenceCheck(true))

	report, err := Dispatch(context.Background(), d, seq, Pairs(1, 2, 1), Pure(increment))
	require.Error(t, err)
	assert.ErrorIs(t, err, sdkerrors.ErrAliasedWorkItem)
	assert.Empty(t, seq.events)

	require.Len(t, report.Failed, 1)
	assert.Equal(t, 2, report.Failed[0].Position)

	// The same positions in different chunks do not alias
	d = NewDispatcher(DefaultConfig().WithParallelism(1).WithIndependenceCheck(true))
	_, err = Dispatch(context.Background(), d, seq, Pairs(1, 2, 1), Pure(increment))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 3, 3, 3}, seq.Items)
}

func TestDispatchCancelledContext(t *testing.T) {
	seq := newRecordingSequence(3)
	d := NewDispatcher(DefaultConfig().WithParallelism(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := Dispatch(ctx, d, seq, seq.AllIndicesInOut(), Pure(increment))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, sdkerrors.CodeCancelled, sdkerrors.Categorize(err))
	assert.Empty(t, seq.events)
	assert.Equal(t, 3, report.Skipped)
}

func TestDispatchFailureHookAndLogs(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)

	var hooked []*ItemError
	config := DefaultConfig().
		WithParallelism(2).
		WithLogger(zap.New(core)).
		WithFailureHook(func(ctx context.Context, err *ItemError) {
			hooked = append(hooked, err)
		})
	d := NewDispatcher(config)

	seq := NewSequence([]int{1, 2})
	_, err := Dispatch(context.Background(), d, seq, Pairs(0, 5), Pure(increment))
	require.Error(t, err)

	require.Len(t, hooked, 1)
	assert.Equal(t, 1, hooked[0].Position)

	failures := logs.FilterMessage("Work item failed").All()
	require.Len(t, failures, 1)
	fields := failures[0].ContextMap()
	assert.Equal(t, sdkerrors.CodeIndexNotFound, fields["code"])
	assert.Equal(t, PhaseValidate, fields["phase"])
	assert.NotEmpty(t, fields["dispatch_id"])

	assert.Equal(t, 1, logs.FilterMessage("Dispatch failed").Len())
}

func TestDispatchSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	d := NewDispatcher(DefaultConfig().WithParallelism(2).WithTracerProvider(tp))
	seq := NewSequence([]int{1, 2, 3})

	report, err := Dispatch(context.Background(), d, seq, seq.AllIndicesInOut(), Pure(increment))
	require.NoError(t, err)

	names := map[string]int{}
	var root sdktrace.ReadOnlySpan
	for _, span := range recorder.Ended() {
		names[span.Name()]++
		if span.Name() == "takeput.dispatch" {
			root = span
		}
	}
	assert.Equal(t, 1, names["takeput.dispatch"])
	assert.Equal(t, 2, names["takeput.chunk"])

	require.NotNil(t, root)
	var id string
	wait := int64(-1)
	for _, attr := range root.Attributes() {
		switch attr.Key {
		case "dispatch.id":
			id = attr.Value.AsString()
		case "dispatch.average_wait_ns":
			wait = attr.Value.AsInt64()
		}
	}
	assert.Equal(t, report.DispatchID, id)
	assert.Equal(t, report.AverageWait.Nanoseconds(), wait)
}

func TestDispatchRejectsNilArguments(t *testing.T) {
	_, err := Dispatch[int, int, int, int](context.Background(), nil, nil, nil, Pure(increment))
	assert.Error(t, err)

	_, err = Dispatch[int, int, int, int](context.Background(), nil, NewSequence([]int{1}), nil, nil)
	assert.Error(t, err)
}

func TestChunkPairs(t *testing.T) {
	assert.Empty(t, chunkPairs([]int{}, 3))
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, chunkPairs([]int{1, 2, 3, 4, 5}, 2))
	assert.Equal(t, [][]int{{1}, {2}}, chunkPairs([]int{1, 2}, 0))
}

func TestDefaultConfigDetectsParallelism(t *testing.T) {
	t.Setenv("DAEDALUS_PARALLELISM", "5")

	d := NewDispatcher(DefaultConfig())
	assert.Equal(t, 5, d.Parallelism())
}
