// Package runstore persists finished workflow runs.
package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Travbz/doc-smith/internal/domain"
)

// SQLiteStore implements domain.RunStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ domain.RunStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and runs
// the schema migration.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open run db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate run db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id            TEXT PRIMARY KEY,
			workflow_type TEXT NOT NULL,
			status        TEXT NOT NULL,
			progress      TEXT NOT NULL DEFAULT '{}',
			steps         TEXT NOT NULL DEFAULT '[]',
			error         TEXT NOT NULL DEFAULT '',
			started_at    TEXT NOT NULL,
			finished_at   TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS runs_finished_at ON runs (finished_at);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveRun(ctx context.Context, snap domain.RunSnapshot) error {
	progJSON, err := json.Marshal(snap.Progress)
	if err != nil {
		return fmt.Errorf("marshal run progress: %w", err)
	}
	stepsJSON, err := json.Marshal(snap.Steps)
	if err != nil {
		return fmt.Errorf("marshal run steps: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, workflow_type, status, progress, steps, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			workflow_type = excluded.workflow_type,
			status = excluded.status,
			progress = excluded.progress,
			steps = excluded.steps,
			error = excluded.error,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at`,
		snap.ID, snap.WorkflowType, string(snap.Status), string(progJSON), string(stepsJSON), snap.Error,
		formatTime(snap.StartedAt), formatTime(snap.FinishedAt),
	)
	return err
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*domain.RunSnapshot, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, workflow_type, status, progress, steps, error, started_at, finished_at FROM runs WHERE id = ?", id,
	)
	snap, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewSubSystemError("workflow", "SQLiteStore.GetRun", domain.ErrNotFound, id)
	}
	return snap, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]domain.RunSnapshot, error) {
	query := "SELECT id, workflow_type, status, progress, steps, error, started_at, finished_at FROM runs ORDER BY finished_at DESC, id DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.RunSnapshot
	for rows.Next() {
		snap, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *snap)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.NewSubSystemError("workflow", "SQLiteStore.DeleteRun", domain.ErrNotFound, id)
	}
	return nil
}

// Prune deletes runs that finished before cutoff and returns how many
// were removed.
func (s *SQLiteStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE finished_at < ?", formatTime(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*domain.RunSnapshot, error) {
	var snap domain.RunSnapshot
	var status, progStr, stepsStr, startedStr, finishedStr string
	if err := row.Scan(&snap.ID, &snap.WorkflowType, &status, &progStr, &stepsStr, &snap.Error, &startedStr, &finishedStr); err != nil {
		return nil, err
	}
	snap.Status = domain.WorkflowStatus(status)
	if err := json.Unmarshal([]byte(progStr), &snap.Progress); err != nil {
		return nil, fmt.Errorf("unmarshal run progress: %w", err)
	}
	if err := json.Unmarshal([]byte(stepsStr), &snap.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal run steps: %w", err)
	}
	snap.StartedAt, _ = time.Parse(time.RFC3339Nano, startedStr)
	snap.FinishedAt, _ = time.Parse(time.RFC3339Nano, finishedStr)
	return &snap, nil
}

// formatTime uses a fixed-width UTC layout so lexical order matches time order.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}
