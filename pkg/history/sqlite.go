package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	tserrors "github.com/c2buck/audio-transcriber/pkg/errors"
	"github.com/c2buck/audio-transcriber/pkg/logging"
)

const runColumns = `run_id, transcript, model, state, case_facts, output_dir,
	total, succeeded, failed, not_attempted, relevant, evidence, high_confidence,
	error, started_at, finished_at`

// SQLiteStore keeps run history in a local SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger logging.Logger
}

// OpenSQLite opens (creating if needed) the database at path and applies
// pending migrations.
func OpenSQLite(ctx context.Context, path string, logger logging.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite history path is required: %w", tserrors.ErrValidation)
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps :memory: databases and writers consistent.
	db.SetMaxOpenConns(1)

	// Verify connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db, path: path, logger: logger}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at REAL NOT NULL
		)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("scan migration: %w", err)
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, m := range sqliteMigrations {
		if applied[m.Version] {
			continue
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %s failed: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
			m.Version, unixSeconds(time.Now())); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", m.Version, err)
		}
		s.logger.Debug("Applied history migration", logging.F("version", m.Version))
	}
	return nil
}

// Record inserts or replaces a run record.
func (s *SQLiteStore) Record(ctx context.Context, rec RunRecord) error {
	if rec.RunID == "" {
		return fmt.Errorf("run id is required: %w", tserrors.ErrValidation)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Transcript, rec.Model, rec.State, rec.CaseFacts, rec.OutputDir,
		rec.Total, rec.Succeeded, rec.Failed, rec.NotAttempted, rec.Relevant, rec.Evidence,
		rec.HighConfidence, rec.Error, unixSeconds(rec.StartedAt), unixSeconds(rec.FinishedAt))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	s.logger.Debug("Recorded run", logging.F("run_id", rec.RunID), logging.F("state", rec.State))
	return nil
}

// List returns the most recent runs first.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		rec, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *rec)
	}
	return runs, rows.Err()
}

// Get returns the run with the given id.
func (s *SQLiteStore) Get(ctx context.Context, runID string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	rec, err := scanSQLiteRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, tserrors.ErrNotFound)
	}
	return rec, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRun(row scanner) (*RunRecord, error) {
	var rec RunRecord
	var startedAt, finishedAt float64
	if err := row.Scan(&rec.RunID, &rec.Transcript, &rec.Model, &rec.State, &rec.CaseFacts,
		&rec.OutputDir, &rec.Total, &rec.Succeeded, &rec.Failed, &rec.NotAttempted,
		&rec.Relevant, &rec.Evidence, &rec.HighConfidence, &rec.Error,
		&startedAt, &finishedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	rec.StartedAt = timeFromUnix(startedAt)
	rec.FinishedAt = timeFromUnix(finishedAt)
	return &rec, nil
}

func unixSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(ts float64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}
