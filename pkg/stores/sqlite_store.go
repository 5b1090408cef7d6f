package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/rigup/rigup/pkg/engine"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore persists runs, execution records, and state transitions.
// It implements engine.Sink so the executor can write through it directly.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &SQLiteStore{path: cfg.Path}, nil
}

// Init opens the database, enables WAL mode, and runs migrations.
func (s *SQLiteStore) Init(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return s.migrate()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// RunStarted persists the new run. Part of engine.Sink.
func (s *SQLiteStore) RunStarted(ctx context.Context, result *engine.RunResult, plan *engine.Plan) error {
	requested, err := json.Marshal(plan.Requested)
	if err != nil {
		return fmt.Errorf("failed to encode requested set: %w", err)
	}
	prof, err := json.Marshal(plan.Profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO runs (id, plan_id, status, requested, profile, started_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		result.RunID,
		plan.ID,
		string(result.Status),
		string(requested),
		string(prof),
		result.StartedAt,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// StateChanged appends a capability state transition. Part of engine.Sink.
func (s *SQLiteStore) StateChanged(ctx context.Context, runID, capabilityID string, state engine.CapabilityState) error {
	query := `
		INSERT INTO state_changes (run_id, capability_id, state, changed_at)
		VALUES (?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, runID, capabilityID, string(state), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save state change: %w", err)
	}
	return nil
}

// RecordAppended appends an execution record. Part of engine.Sink.
func (s *SQLiteStore) RecordAppended(ctx context.Context, rec engine.ExecutionRecord) error {
	query := `
		INSERT INTO records (id, run_id, capability_id, action, outcome, summary, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.RunID,
		rec.CapabilityID,
		rec.Action,
		string(rec.Outcome),
		rec.Summary,
		rec.StartedAt,
		rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append record: %w", err)
	}
	return nil
}

// RunCompleted finalizes the run row. Part of engine.Sink.
func (s *SQLiteStore) RunCompleted(ctx context.Context, result *engine.RunResult) error {
	query := `
		UPDATE runs
		SET status = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		string(result.Status),
		result.CompletedAt,
		time.Now().UTC(),
		result.RunID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", result.RunID)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `
		SELECT id, plan_id, status, requested, profile, started_at, completed_at, created_at, updated_at
		FROM runs
		WHERE id = ?
	`
	run := &Run{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID,
		&run.PlanID,
		&run.Status,
		&run.Requested,
		&run.Profile,
		&run.StartedAt,
		&run.CompletedAt,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns lists runs newest first with pagination.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*Run, error) {
	query := `
		SELECT id, plan_id, status, requested, profile, started_at, completed_at, created_at, updated_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run := &Run{}
		err := rows.Scan(
			&run.ID,
			&run.PlanID,
			&run.Status,
			&run.Requested,
			&run.Profile,
			&run.StartedAt,
			&run.CompletedAt,
			&run.CreatedAt,
			&run.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// ListRecords returns the execution records of a run in append order.
func (s *SQLiteStore) ListRecords(ctx context.Context, runID string) ([]*Record, error) {
	query := `
		SELECT id, run_id, capability_id, action, outcome, summary, started_at, completed_at
		FROM records
		WHERE run_id = ?
		ORDER BY started_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	records := []*Record{}
	for rows.Next() {
		rec := &Record{}
		err := rows.Scan(
			&rec.ID,
			&rec.RunID,
			&rec.CapabilityID,
			&rec.Action,
			&rec.Outcome,
			&rec.Summary,
			&rec.StartedAt,
			&rec.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return records, nil
}

// LastStates returns the latest recorded state per capability across all
// runs, for the status command.
func (s *SQLiteStore) LastStates(ctx context.Context) (map[string]string, error) {
	query := `
		SELECT capability_id, state
		FROM state_changes
		WHERE id IN (
			SELECT MAX(id) FROM state_changes GROUP BY capability_id
		)
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query states: %w", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var capID, state string
		if err := rows.Scan(&capID, &state); err != nil {
			return nil, fmt.Errorf("failed to scan state: %w", err)
		}
		out[capID] = state
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating states: %w", err)
	}
	return out, nil
}
