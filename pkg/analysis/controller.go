package analysis

import (
	"context"
	"time"

	tserrors "github.com/c2buck/audio-transcriber/pkg/errors"
	"github.com/c2buck/audio-transcriber/pkg/inference"
	"github.com/c2buck/audio-transcriber/pkg/logging"
	"github.com/c2buck/audio-transcriber/pkg/observability"
	"github.com/c2buck/audio-transcriber/pkg/transcript"
)

// SegmentAnalyzer analyzes single segments for the Controller.
type SegmentAnalyzer interface {
	// Prepare makes the model usable. Errors here fail the run.
	Prepare(ctx context.Context, model string, onPull func(inference.PullProgress)) error

	// Analyze never fails; errors are recorded on the result.
	Analyze(ctx context.Context, seg transcript.Segment, caseContext, model string) Result
}

// EventKind identifies a ProgressEvent.
type EventKind string

const (
	// EventPull reports model download progress during preflight.
	EventPull EventKind = "pull"
	// EventSegment is emitted after each analyzed segment.
	EventSegment EventKind = "segment"
	// EventDone is the last event of a run.
	EventDone EventKind = "done"
)

// ProgressEvent reports run progress. Segment events arrive in index order.
type ProgressEvent struct {
	Kind       EventKind
	RunID      string
	Completed  int
	Total      int
	SourceID   string
	Index      int
	IsRelevant bool
	Err        error
	State      State
	Snapshot   ProgressSnapshot
	Pull       *inference.PullProgress
}

// Controller drives a Run through its segments one at a time.
type Controller struct {
	analyzer SegmentAnalyzer
	logger   logging.Logger
	metrics  *observability.ReviewMetrics
	tracer   *observability.Tracer
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithControllerLogger sets the controller logger.
func WithControllerLogger(logger logging.Logger) ControllerOption {
	return func(c *Controller) { c.logger = logger }
}

// WithControllerMetrics records run metrics.
func WithControllerMetrics(m *observability.ReviewMetrics) ControllerOption {
	return func(c *Controller) { c.metrics = m }
}

// WithControllerTracer records run spans.
func WithControllerTracer(t *observability.Tracer) ControllerOption {
	return func(c *Controller) { c.tracer = t }
}

// NewController creates a controller over analyzer.
func NewController(analyzer SegmentAnalyzer, opts ...ControllerOption) *Controller {
	c := &Controller{
		analyzer: analyzer,
		logger:   logging.NewNopLogger(),
		tracer:   observability.NewTracer(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(logging.F("component", "controller"))
	return c
}

// Start runs the review on its own goroutine and streams progress. The
// channel is closed after the EventDone event. Pull events are dropped when
// the consumer falls behind; segment and done events are not.
func (c *Controller) Start(ctx context.Context, run *Run) (<-chan ProgressEvent, error) {
	if err := run.begin(); err != nil {
		return nil, err
	}

	events := make(chan ProgressEvent, run.Total()+2)
	go func() {
		defer close(events)
		c.execute(ctx, run, func(ev ProgressEvent) {
			if ev.Kind == EventPull {
				select {
				case events <- ev:
				default:
				}
				return
			}
			events <- ev
		})
	}()
	return events, nil
}

// Run executes the review synchronously, calling onProgress for each event.
// It returns the run error when the run fails, and nil when it completes or
// is cancelled.
func (c *Controller) Run(ctx context.Context, run *Run, onProgress func(ProgressEvent)) error {
	if err := run.begin(); err != nil {
		return err
	}
	if onProgress == nil {
		onProgress = func(ProgressEvent) {}
	}
	c.execute(ctx, run, onProgress)
	if run.State() == StateFailed {
		return run.Err()
	}
	return nil
}

func (c *Controller) execute(ctx context.Context, run *Run, emit func(ProgressEvent)) {
	stop := context.AfterFunc(ctx, run.Cancel)
	defer stop()

	segments := run.segments
	total := len(segments)
	logger := c.logger.With(logging.F("run_id", run.ID), logging.F("model", run.Model))

	ctx, span := c.tracer.StartRunSpan(ctx, run.ID, run.Model, total)
	defer span.End()
	helper := observability.NewSpanHelper(span)

	progress := NewProgress(total)
	progress.Start()
	c.metrics.SetSegmentsRemaining(total)
	logger.Info("Review started", logging.F("segments", total))

	cancelled := func() bool {
		if ctx.Err() != nil {
			run.Cancel()
		}
		return run.IsCancelled()
	}

	finish := func(state State, err error) {
		run.finish(state, err)
		progress.Finish(state)
		snap := progress.Snapshot()
		elapsed := time.Since(run.StartedAt())

		c.metrics.RecordRun(string(state), elapsed.Seconds())
		c.metrics.SetSegmentsRemaining(0)
		if err != nil {
			helper.SetError(err, string(tserrors.CodeOf(err)), false)
		} else {
			helper.SetSuccess()
		}

		fields := []logging.Field{
			logging.F("state", string(state)),
			logging.F("completed", len(run.Results())),
			logging.F("total", total),
			logging.F("elapsed_ms", elapsed.Milliseconds()),
		}
		switch state {
		case StateFailed:
			logger.Error("Review failed", append(fields, logging.Err(err))...)
		case StateCancelled:
			logger.Warn("Review cancelled", fields...)
		default:
			logger.Info("Review completed", fields...)
		}

		emit(ProgressEvent{
			Kind:      EventDone,
			RunID:     run.ID,
			Completed: snap.Completed,
			Total:     total,
			Err:       err,
			State:     state,
			Snapshot:  snap,
		})
	}

	if cancelled() {
		finish(StateCancelled, nil)
		return
	}

	err := c.analyzer.Prepare(ctx, run.Model, func(p inference.PullProgress) {
		emit(ProgressEvent{
			Kind:  EventPull,
			RunID: run.ID,
			Total: total,
			State: StateRunning,
			Pull:  &p,
		})
	})
	if err != nil {
		if cancelled() || tserrors.IsCode(err, tserrors.ErrContextCancelled) {
			finish(StateCancelled, nil)
			return
		}
		finish(StateFailed, err)
		return
	}

	// In-flight generation is not interrupted by cancellation; it runs to
	// completion or to its own timeout.
	work := context.WithoutCancel(ctx)

	for i, seg := range segments {
		if cancelled() {
			finish(StateCancelled, nil)
			return
		}

		progress.SetCurrent(seg.SourceID)
		res := c.analyzer.Analyze(work, seg, run.CaseContext, run.Model)

		if i == 0 && tserrors.IsFatalToRun(res.Err) {
			finish(StateFailed, res.Err)
			return
		}

		completed := run.append(res)
		progress.Record(res)
		c.metrics.SetSegmentsRemaining(total - completed)

		emit(ProgressEvent{
			Kind:       EventSegment,
			RunID:      run.ID,
			Completed:  completed,
			Total:      total,
			SourceID:   seg.SourceID,
			Index:      seg.Index,
			IsRelevant: res.IsRelevant,
			Err:        res.Err,
			State:      StateRunning,
			Snapshot:   progress.Snapshot(),
		})
	}

	finish(StateCompleted, nil)
}
