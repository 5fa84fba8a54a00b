package analysis

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	tserrors "github.com/c2buck/audio-transcriber/pkg/errors"
	"github.com/c2buck/audio-transcriber/pkg/transcript"
)

// State is the lifecycle state of a Run.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateCancelled, StateFailed:
		return true
	}
	return false
}

func (s State) String() string {
	return string(s)
}

// Run holds the state of one review: the segments, the case facts, the
// cancellation flag and the results collected so far. Results are appended
// only by the Controller.
type Run struct {
	ID          string
	CaseContext string
	Model       string

	segments  []transcript.Segment
	cancelled atomic.Bool

	mu         sync.RWMutex
	state      State
	results    []Result
	err        error
	createdAt  time.Time
	startedAt  time.Time
	finishedAt time.Time
}

// NewRun creates an idle run over a copy of segments.
func NewRun(segments []transcript.Segment, caseContext, model string) *Run {
	segs := make([]transcript.Segment, len(segments))
	copy(segs, segments)
	return &Run{
		ID:          uuid.New().String(),
		CaseContext: caseContext,
		Model:       model,
		segments:    segs,
		state:       StateIdle,
		results:     make([]Result, 0, len(segs)),
		createdAt:   time.Now(),
	}
}

// Segments returns the run's segments in index order.
func (r *Run) Segments() []transcript.Segment {
	out := make([]transcript.Segment, len(r.segments))
	copy(out, r.segments)
	return out
}

// Total returns the number of segments in the run.
func (r *Run) Total() int {
	return len(r.segments)
}

// Cancel requests cooperative cancellation. It is idempotent and takes effect
// at the next segment boundary.
func (r *Run) Cancel() {
	r.cancelled.Store(true)
}

// IsCancelled reports whether cancellation was requested.
func (r *Run) IsCancelled() bool {
	return r.cancelled.Load()
}

// State returns the current state.
func (r *Run) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Err returns the error that failed the run, if any.
func (r *Run) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// Results returns a copy of the results collected so far, in index order.
func (r *Run) Results() []Result {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Result, len(r.results))
	copy(out, r.results)
	return out
}

// StartedAt returns when the run began, or the zero time.
func (r *Run) StartedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.startedAt
}

// FinishedAt returns when the run reached a terminal state, or the zero time.
func (r *Run) FinishedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.finishedAt
}

func (r *Run) begin() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateIdle {
		return fmt.Errorf("run %s is %s: %w", r.ID, r.state, tserrors.ErrInvalidState)
	}
	r.state = StateRunning
	r.startedAt = time.Now()
	return nil
}

func (r *Run) append(res Result) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
	return len(r.results)
}

func (r *Run) finish(state State, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.IsTerminal() {
		return
	}
	r.state = state
	r.err = err
	r.finishedAt = time.Now()
	if state == StateFailed {
		r.results = r.results[:0]
	}
}

// Summary holds run-level counts.
type Summary struct {
	RunID          string        `json:"run_id" yaml:"run_id"`
	Model          string        `json:"model" yaml:"model"`
	State          State         `json:"state" yaml:"state"`
	Total          int           `json:"total" yaml:"total"`
	Succeeded      int           `json:"succeeded" yaml:"succeeded"`
	Failed         int           `json:"failed" yaml:"failed"`
	NotAttempted   int           `json:"not_attempted" yaml:"not_attempted"`
	Relevant       int           `json:"relevant" yaml:"relevant"`
	Evidence       int           `json:"evidence" yaml:"evidence"`
	HighConfidence int           `json:"high_confidence" yaml:"high_confidence"`
	Processing     time.Duration `json:"processing" yaml:"processing"`
	Elapsed        time.Duration `json:"elapsed" yaml:"elapsed"`
	Error          string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// Summary computes run-level counts from the current results.
func (r *Run) Summary() Summary {
	results := r.Results()
	s := Summarize(results, len(r.segments))
	s.RunID = r.ID
	s.Model = r.Model
	s.State = r.State()

	r.mu.RLock()
	if !r.startedAt.IsZero() {
		end := r.finishedAt
		if end.IsZero() {
			end = time.Now()
		}
		s.Elapsed = end.Sub(r.startedAt)
	}
	if r.err != nil {
		s.Error = r.err.Error()
	}
	r.mu.RUnlock()
	return s
}

// Summarize counts results out of total segments.
func Summarize(results []Result, total int) Summary {
	s := Summary{Total: total}
	for _, res := range results {
		s.Processing += res.Metrics.Duration
		if res.Failed() {
			s.Failed++
			continue
		}
		s.Succeeded++
		if res.IsRelevant {
			s.Relevant++
		}
		s.Evidence += len(res.Evidence)
		for _, ev := range res.Evidence {
			if ev.Confidence == ConfidenceHigh {
				s.HighConfidence++
			}
		}
	}
	s.NotAttempted = total - len(results)
	if s.NotAttempted < 0 {
		s.NotAttempted = 0
	}
	return s
}
