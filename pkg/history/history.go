// Package history records finished review runs so they can be listed later.
// SQLite is the default backend; PostgreSQL is available for shared setups.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/c2buck/audio-transcriber/pkg/analysis"
	"github.com/c2buck/audio-transcriber/pkg/logging"
)

// Drivers accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

// DefaultListLimit is used when List is called with a non-positive limit.
const DefaultListLimit = 20

// RunRecord is one finished run.
type RunRecord struct {
	RunID          string    `json:"run_id" yaml:"run_id"`
	Transcript     string    `json:"transcript" yaml:"transcript"`
	Model          string    `json:"model" yaml:"model"`
	State          string    `json:"state" yaml:"state"`
	CaseFacts      string    `json:"case_facts" yaml:"case_facts"`
	OutputDir      string    `json:"output_dir,omitempty" yaml:"output_dir,omitempty"`
	Total          int       `json:"total" yaml:"total"`
	Succeeded      int       `json:"succeeded" yaml:"succeeded"`
	Failed         int       `json:"failed" yaml:"failed"`
	NotAttempted   int       `json:"not_attempted" yaml:"not_attempted"`
	Relevant       int       `json:"relevant" yaml:"relevant"`
	Evidence       int       `json:"evidence" yaml:"evidence"`
	HighConfidence int       `json:"high_confidence" yaml:"high_confidence"`
	Error          string    `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt      time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt     time.Time `json:"finished_at" yaml:"finished_at"`
}

// Duration returns how long the run took.
func (r RunRecord) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// RecordFromRun builds a record from a finished run.
func RecordFromRun(run *analysis.Run, transcriptPath, outputDir string) RunRecord {
	s := run.Summary()
	return RunRecord{
		RunID:          run.ID,
		Transcript:     transcriptPath,
		Model:          run.Model,
		State:          string(s.State),
		CaseFacts:      run.CaseContext,
		OutputDir:      outputDir,
		Total:          s.Total,
		Succeeded:      s.Succeeded,
		Failed:         s.Failed,
		NotAttempted:   s.NotAttempted,
		Relevant:       s.Relevant,
		Evidence:       s.Evidence,
		HighConfidence: s.HighConfidence,
		Error:          s.Error,
		StartedAt:      run.StartedAt().UTC(),
		FinishedAt:     run.FinishedAt().UTC(),
	}
}

// Store persists run records.
type Store interface {
	// Record inserts or replaces the record for its run id.
	Record(ctx context.Context, rec RunRecord) error

	// List returns the most recent records first.
	List(ctx context.Context, limit int) ([]RunRecord, error)

	// Get returns one record, or an error wrapping errors.ErrNotFound.
	Get(ctx context.Context, runID string) (*RunRecord, error)

	Close() error
}

// Open returns the store for driver. An empty driver selects sqlite.
func Open(ctx context.Context, driver, dsn string, logger logging.Logger) (Store, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	logger = logger.With(logging.F("component", "history"), logging.F("driver", driver))

	switch driver {
	case DriverSQLite, "":
		return OpenSQLite(ctx, dsn, logger)
	case DriverPostgres:
		return OpenPostgres(ctx, dsn, logger)
	case DriverNone:
		return NopStore{}, nil
	default:
		return nil, fmt.Errorf("unknown history driver: %q", driver)
	}
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
