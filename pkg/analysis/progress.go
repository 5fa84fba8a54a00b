package analysis

import (
	"sync"
	"time"
)

// Progress tracks the progress of a review run.
type Progress struct {
	mu sync.RWMutex

	// Counts
	Total     int
	Completed int
	Relevant  int
	Failed    int

	// Current state
	CurrentSource string
	State         State

	// Timing
	StartedAt time.Time
	UpdatedAt time.Time
}

// NewProgress creates a new progress tracker.
func NewProgress(total int) *Progress {
	now := time.Now()
	return &Progress{
		Total:     total,
		State:     StateIdle,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// Start marks the progress as started.
func (p *Progress) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.State = StateRunning
	p.StartedAt = time.Now()
	p.UpdatedAt = p.StartedAt
}

// SetCurrent updates the recording being analyzed.
func (p *Progress) SetCurrent(sourceID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CurrentSource = sourceID
	p.UpdatedAt = time.Now()
}

// Record counts one finished segment.
func (p *Progress) Record(res Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Completed++
	switch {
	case res.Failed():
		p.Failed++
	case res.IsRelevant:
		p.Relevant++
	}
	p.UpdatedAt = time.Now()
}

// Finish marks the progress with a terminal state.
func (p *Progress) Finish(state State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.State = state
	p.CurrentSource = ""
	p.UpdatedAt = time.Now()
}

// Snapshot returns a read-only copy of the current progress.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	elapsed := time.Since(p.StartedAt).Seconds()
	var estimatedRemaining *float64
	if p.Completed > 0 && !p.State.IsTerminal() {
		remaining := p.Total - p.Completed
		rate := elapsed / float64(p.Completed)
		est := rate * float64(remaining)
		estimatedRemaining = &est
	}

	return ProgressSnapshot{
		Total:                     p.Total,
		Completed:                 p.Completed,
		Relevant:                  p.Relevant,
		Failed:                    p.Failed,
		CurrentSource:             p.CurrentSource,
		State:                     p.State,
		StartedAt:                 p.StartedAt,
		ElapsedSeconds:            elapsed,
		EstimatedRemainingSeconds: estimatedRemaining,
	}
}

// ProgressSnapshot is an immutable snapshot of progress state.
type ProgressSnapshot struct {
	Total                     int
	Completed                 int
	Relevant                  int
	Failed                    int
	CurrentSource             string
	State                     State
	StartedAt                 time.Time
	ElapsedSeconds            float64
	EstimatedRemainingSeconds *float64
}

// PercentComplete returns the percentage of segments analyzed.
func (s ProgressSnapshot) PercentComplete() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Completed) / float64(s.Total) * 100
}

// IsComplete returns true if all segments have been analyzed.
func (s ProgressSnapshot) IsComplete() bool {
	return s.Completed >= s.Total
}

// ETA returns the estimated remaining time, or 0 when unknown.
func (s ProgressSnapshot) ETA() time.Duration {
	if s.EstimatedRemainingSeconds == nil {
		return 0
	}
	return time.Duration(*s.EstimatedRemainingSeconds * float64(time.Second)).Truncate(time.Second)
}
