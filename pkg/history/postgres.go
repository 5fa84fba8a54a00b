package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	tserrors "github.com/c2buck/audio-transcriber/pkg/errors"
	"github.com/c2buck/audio-transcriber/pkg/logging"
)

// Pool sizing for the history store. A CLI process records one run at a time.
const (
	postgresMaxConns        = 4
	postgresMaxConnIdleTime = 5 * time.Minute
	postgresConnectTimeout  = 10 * time.Second
)

// PostgresStore keeps run history in a shared PostgreSQL database.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// OpenPostgres connects to dsn, verifies the connection and applies
// pending migrations.
func OpenPostgres(ctx context.Context, dsn string, logger logging.Logger) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres history dsn is required: %w", tserrors.ErrValidation)
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.MaxConns = postgresMaxConns
	poolConfig.MaxConnIdleTime = postgresMaxConnIdleTime
	if poolConfig.ConnConfig.ConnectTimeout == 0 {
		poolConfig.ConnConfig.ConnectTimeout = postgresConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify the connection works
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStore{pool: pool, logger: logger}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS transcriber_schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := s.pool.Query(ctx, "SELECT version FROM transcriber_schema_migrations")
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return err
		}
		applied[version] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, m := range postgresMigrations {
		if applied[m.Version] {
			continue
		}
		err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, "INSERT INTO transcriber_schema_migrations (version) VALUES ($1)", m.Version)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %s failed: %w", m.Version, err)
		}
		s.logger.Debug("Applied history migration", logging.F("version", m.Version))
	}
	return nil
}

// Record inserts or updates a run record.
func (s *PostgresStore) Record(ctx context.Context, rec RunRecord) error {
	if rec.RunID == "" {
		return fmt.Errorf("run id is required: %w", tserrors.ErrValidation)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transcriber_runs (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (run_id) DO UPDATE SET
			state = EXCLUDED.state,
			succeeded = EXCLUDED.succeeded,
			failed = EXCLUDED.failed,
			not_attempted = EXCLUDED.not_attempted,
			relevant = EXCLUDED.relevant,
			evidence = EXCLUDED.evidence,
			high_confidence = EXCLUDED.high_confidence,
			error = EXCLUDED.error,
			finished_at = EXCLUDED.finished_at`,
		rec.RunID, rec.Transcript, rec.Model, rec.State, rec.CaseFacts, rec.OutputDir,
		rec.Total, rec.Succeeded, rec.Failed, rec.NotAttempted, rec.Relevant, rec.Evidence,
		rec.HighConfidence, rec.Error, rec.StartedAt, rec.FinishedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	s.logger.Debug("Recorded run", logging.F("run_id", rec.RunID), logging.F("state", rec.State))
	return nil
}

// List returns the most recent runs first.
func (s *PostgresStore) List(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+runColumns+`
		FROM transcriber_runs
		ORDER BY started_at DESC
		LIMIT $1`, limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		rec, err := scanPostgresRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *rec)
	}
	return runs, rows.Err()
}

// Get returns the run with the given id.
func (s *PostgresStore) Get(ctx context.Context, runID string) (*RunRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM transcriber_runs WHERE run_id = $1`, runID)
	rec, err := scanPostgresRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, tserrors.ErrNotFound)
	}
	return rec, err
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPostgresRun(row pgx.Row) (*RunRecord, error) {
	var rec RunRecord
	if err := row.Scan(&rec.RunID, &rec.Transcript, &rec.Model, &rec.State, &rec.CaseFacts,
		&rec.OutputDir, &rec.Total, &rec.Succeeded, &rec.Failed, &rec.NotAttempted,
		&rec.Relevant, &rec.Evidence, &rec.HighConfidence, &rec.Error,
		&rec.StartedAt, &rec.FinishedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	rec.StartedAt = rec.StartedAt.UTC()
	rec.FinishedAt = rec.FinishedAt.UTC()
	return &rec, nil
}
