package takeput

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"time"

	"github.com/wehubfusion/Daedalus/pkg/concurrency"
	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const tracerName = "github.com/wehubfusion/Daedalus/pkg/takeput"

// Dispatcher runs work items against containers in bounded parallel chunks.
// A Dispatcher holds no per-dispatch state and may be shared.
type Dispatcher struct {
	config Config
	logger *zap.Logger
	tracer trace.Tracer
}

// NewDispatcher creates a dispatcher. Zero fields of config are defaulted.
func NewDispatcher(config Config) *Dispatcher {
	config.Validate()

	return &Dispatcher{
		config: config,
		logger: config.Logger,
		tracer: config.TracerProvider.Tracer(tracerName),
	}
}

// Parallelism returns the chunk size and live-task bound.
func (d *Dispatcher) Parallelism() int {
	return d.config.Parallelism
}

// task is an extracted element awaiting processing.
type task[Out, I any] struct {
	position int
	out      Out
	item     I
}

// completion is what a task delivers on the completion channel.
type completion[Out, R any] struct {
	position int
	out      Out
	result   R
	err      *ItemError
}

// ProcessAll runs Dispatch with a default dispatcher.
func ProcessAll[In, Out, I, R any](ctx context.Context, c Container[In, Out, I, R], pairs []IndexPair[In, Out], process Processor[I, R]) (*Report, error) {
	return Dispatch(ctx, NewDispatcher(DefaultConfig()), c, pairs, process)
}

// Identity runs the identity processor of c over all of its indices.
// On success c is observably unchanged.
func Identity[In, Out, I, R any](ctx context.Context, d *Dispatcher, c Container[In, Out, I, R]) (*Report, error) {
	return Dispatch(ctx, d, c, c.AllIndicesInOut(), c.IdentityProcessor())
}

// Dispatch takes every pair's element out of c, processes it with process on
// its own goroutine and puts the result back at the pair's destination.
//
// Pairs are split into consecutive chunks of at most d.Parallelism() items.
// A chunk's elements are all validated before any of them is taken, and every
// result of a chunk is put back before the next chunk starts. The first chunk
// with a failed work item stops the dispatch; the returned error joins the
// chunk's ItemErrors. The context is only consulted between chunks.
//
// A work item whose process or delivery fails is not put back: its source
// location keeps the zero value left by Take and the original element is lost.
func Dispatch[In, Out, I, R any](ctx context.Context, d *Dispatcher, c Container[In, Out, I, R], pairs []IndexPair[In, Out], process Processor[I, R]) (*Report, error) {
	if d == nil {
		d = NewDispatcher(DefaultConfig())
	}
	if c == nil {
		return nil, errors.New("container cannot be nil")
	}
	if process == nil {
		return nil, errors.New("processor cannot be nil")
	}

	start := time.Now()
	report := newReport(len(pairs), d.config.Parallelism)
	logger := d.logger.With(zap.String("dispatch_id", report.DispatchID))

	ctx, span := d.tracer.Start(ctx, "takeput.dispatch",
		trace.WithAttributes(
			attribute.String("dispatch.id", report.DispatchID),
			attribute.Int("dispatch.items", len(pairs)),
			attribute.Int("dispatch.parallelism", d.config.Parallelism),
		),
	)
	defer span.End()

	logger.Debug("Starting dispatch",
		zap.Int("items", len(pairs)),
		zap.Int("parallelism", d.config.Parallelism),
	)

	limiter := concurrency.NewLimiter(d.config.Parallelism)
	chunks := chunkPairs(pairs, d.config.Parallelism)

	var dispatchErr error
	offset := 0
	for k, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			dispatchErr = fmt.Errorf("dispatch cancelled before chunk %d: %w", k, err)
			break
		}

		report.Chunks++
		failures := runChunk(ctx, d, logger, limiter, c, chunk, offset, k, process, report)
		if len(failures) > 0 {
			report.Failed = append(report.Failed, failures...)
			d.notifyFailures(ctx, logger, k, failures)
			dispatchErr = fmt.Errorf("chunk %d: %w", k, joinItemErrors(failures))
			break
		}
		offset += len(chunk)
	}

	report.Skipped = len(pairs) - report.Extracted - notTaken(report.Failed)
	report.PeakConcurrent = limiter.GetMetrics().PeakConcurrent
	report.AverageWait = limiter.GetAverageWaitTime()
	report.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("dispatch.chunks", report.Chunks),
		attribute.Int("dispatch.reinserted", report.Reinserted),
		attribute.Int("dispatch.failed", len(report.Failed)),
		attribute.Int("dispatch.skipped", report.Skipped),
		attribute.Int64("dispatch.peak_concurrent", report.PeakConcurrent),
		attribute.Int64("dispatch.average_wait_ns", report.AverageWait.Nanoseconds()),
	)

	if dispatchErr != nil {
		span.RecordError(dispatchErr)
		span.SetStatus(codes.Error, "dispatch failed")
		logger.Error("Dispatch failed",
			zap.Error(dispatchErr),
			zap.String("code", sdkerrors.Categorize(dispatchErr)),
			zap.Int("reinserted", report.Reinserted),
			zap.Int("failed", len(report.Failed)),
			zap.Int("skipped", report.Skipped),
		)
		return report, dispatchErr
	}

	span.SetStatus(codes.Ok, "")
	logger.Info("Dispatch completed",
		zap.Int("items", report.Items),
		zap.Int("chunks", report.Chunks),
		zap.Int64("peak_concurrent", report.PeakConcurrent),
		zap.Duration("average_wait", report.AverageWait),
		zap.Duration("duration", report.Duration),
	)

	return report, nil
}

// runChunk validates, takes, processes and puts back one chunk.
// It returns the chunk's failures ordered by position.
func runChunk[In, Out, I, R any](
	ctx context.Context,
	d *Dispatcher,
	logger *zap.Logger,
	limiter *concurrency.Limiter,
	c Container[In, Out, I, R],
	chunk []IndexPair[In, Out],
	offset, k int,
	process Processor[I, R],
	report *Report,
) []*ItemError {
	ctx, span := d.tracer.Start(ctx, "takeput.chunk",
		trace.WithAttributes(
			attribute.Int("chunk.index", k),
			attribute.Int("chunk.size", len(chunk)),
		),
	)
	defer span.End()

	if d.config.CheckIndependence {
		if failures := checkIndependence(c, chunk, offset); len(failures) > 0 {
			return failChunk(span, failures)
		}
	}

	var failures []*ItemError
	for i, pair := range chunk {
		if err := c.Validate(pair.In); err != nil {
			failures = append(failures, &ItemError{Position: offset + i, Phase: PhaseValidate, Cause: err})
		}
	}
	if len(failures) > 0 {
		return failChunk(span, failures)
	}

	// Elements taken before a failing Take are still processed and put back
	tasks := make([]task[Out, I], 0, len(chunk))
	for i, pair := range chunk {
		item, err := c.Take(pair.In)
		if err != nil {
			failures = append(failures, &ItemError{Position: offset + i, Phase: PhaseTake, Cause: err})
			continue
		}
		tasks = append(tasks, task[Out, I]{position: offset + i, out: pair.Out, item: item})
	}
	report.Extracted += len(tasks)

	logger.Debug("Spawning chunk",
		zap.Int("chunk", k),
		zap.Int("items", len(tasks)),
	)

	// Tasks are not cancellable once spawned
	taskCtx := context.WithoutCancel(ctx)
	results := make(chan completion[Out, R], len(tasks))

	var g errgroup.Group
	for _, t := range tasks {
		g.Go(func() error {
			results <- runTask(taskCtx, limiter, t, process)
			return nil
		})
	}

	go func() {
		_ = g.Wait()
		close(results)
	}()

	for done := range results {
		if done.err != nil {
			failures = append(failures, done.err)
			continue
		}
		if err := c.PutBack(done.out, done.result); err != nil {
			failures = append(failures, &ItemError{Position: done.position, Phase: PhasePutBack, Cause: err})
			continue
		}
		report.Reinserted++
	}

	if len(failures) > 0 {
		return failChunk(span, failures)
	}
	return nil
}

// runTask processes one element while holding a limiter slot.
// A panic in process is recovered and delivered as an ItemError.
func runTask[Out, I, R any](ctx context.Context, limiter *concurrency.Limiter, t task[Out, I], process Processor[I, R]) (done completion[Out, R]) {
	done.position = t.position
	done.out = t.out

	if err := limiter.Acquire(ctx); err != nil {
		done.err = &ItemError{
			Position: t.position,
			Phase:    PhaseProcess,
			Cause:    fmt.Errorf("%w: %w", sdkerrors.ErrDeliveryFailed, err),
		}
		return done
	}
	defer limiter.Release()

	defer func() {
		if r := recover(); r != nil {
			done.err = &ItemError{
				Position: t.position,
				Phase:    PhaseProcess,
				Cause:    fmt.Errorf("%w: %w", sdkerrors.ErrDeliveryFailed, &PanicError{Value: r, Stack: debug.Stack()}),
			}
		}
	}()

	result, err := process(t.item)
	if err != nil {
		done.err = &ItemError{
			Position: t.position,
			Phase:    PhaseProcess,
			Cause:    fmt.Errorf("%w: %w", sdkerrors.ErrProcessingFailed, err),
		}
		return done
	}

	done.result = result
	return done
}

// checkIndependence reports every work item whose claims overlap those of an
// earlier item of the same chunk.
func checkIndependence[In, Out, I, R any](c Container[In, Out, I, R], chunk []IndexPair[In, Out], offset int) []*ItemError {
	claimer, ok := any(c).(Claimer[In, Out])
	if !ok {
		return nil
	}

	owner := make(map[any]int)
	var failures []*ItemError
	for i, pair := range chunk {
		position := offset + i
		for _, key := range claimer.Claims(pair) {
			first, seen := owner[key]
			if !seen {
				owner[key] = position
				continue
			}
			if first == position {
				continue
			}
			failures = append(failures, &ItemError{
				Position: position,
				Phase:    PhaseValidate,
				Cause:    fmt.Errorf("%w: %v already claimed by work item %d", sdkerrors.ErrAliasedWorkItem, key, first),
			})
			break
		}
	}
	return failures
}

// notifyFailures logs every failure and forwards it to the failure hook.
func (d *Dispatcher) notifyFailures(ctx context.Context, logger *zap.Logger, k int, failures []*ItemError) {
	for _, failure := range failures {
		logger.Error("Work item failed",
			zap.Int("chunk", k),
			zap.Int("position", failure.Position),
			zap.String("phase", failure.Phase),
			zap.String("code", sdkerrors.Categorize(failure)),
			zap.Error(failure.Cause),
		)
		if d.config.OnFailure != nil {
			d.config.OnFailure(ctx, failure)
		}
	}
}

func failChunk(span trace.Span, failures []*ItemError) []*ItemError {
	sort.Slice(failures, func(i, j int) bool {
		return failures[i].Position < failures[j].Position
	})

	span.SetAttributes(attribute.Int("chunk.failed", len(failures)))
	span.SetStatus(codes.Error, failures[0].Error())
	return failures
}

func joinItemErrors(failures []*ItemError) error {
	errs := make([]error, len(failures))
	for i, failure := range failures {
		errs[i] = failure
	}
	return errors.Join(errs...)
}

// notTaken counts failures that happened before their element was taken.
func notTaken(failures []*ItemError) int {
	n := 0
	for _, failure := range failures {
		if failure.Phase == PhaseValidate || failure.Phase == PhaseTake {
			n++
		}
	}
	return n
}

// chunkPairs groups pairs into consecutive chunks of the specified size.
func chunkPairs[T any](pairs []T, size int) [][]T {
	if size <= 0 {
		size = 1
	}

	numChunks := (len(pairs) + size - 1) / size
	chunks := make([][]T, 0, numChunks)

	for i := 0; i < len(pairs); i += size {
		end := i + size
		if end > len(pairs) {
			end = len(pairs)
		}
		chunks = append(chunks, pairs[i:end])
	}

	return chunks
}
