// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package history records finished conversion sessions in SQLite.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ManuGH/pdfgray/internal/persistence/sqlite"
	"github.com/ManuGH/pdfgray/internal/session"
)

// FileName is the database file inside the data directory.
const FileName = "history.db"

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var migrations = []string{
	`CREATE TABLE conversions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id TEXT,
		file_name TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		gray_levels INTEGER NOT NULL,
		status TEXT NOT NULL CHECK(status IN ('completed', 'error')),
		page_count INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		started_at TEXT,
		finished_at TEXT NOT NULL
	);
	CREATE INDEX idx_conversions_finished ON conversions(finished_at);`,
	`ALTER TABLE conversions ADD COLUMN duration_ms INTEGER NOT NULL DEFAULT 0;`,
}

// Entry is one recorded conversion.
type Entry struct {
	ID         int64
	TaskID     string
	FileName   string
	FileSize   int64
	GrayLevels int
	Status     session.Status
	PageCount  int
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
}

// Store is the history database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (and migrates) the history database in dataDir.
func Open(ctx context.Context, dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(dataDir, FileName)
	db, err := sqlite.Open(path, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	if err := sqlite.Migrate(ctx, db, migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Record stores a terminal session outcome. Only completed and error
// outcomes are accepted.
func (s *Store) Record(ctx context.Context, o session.Outcome) error {
	if !o.Status.IsTerminal() {
		return fmt.Errorf("history: outcome status %q is not terminal", o.Status)
	}
	var started sql.NullString
	var duration int64
	if !o.StartedAt.IsZero() {
		started = sql.NullString{String: o.StartedAt.UTC().Format(timeLayout), Valid: true}
		duration = o.FinishedAt.Sub(o.StartedAt).Milliseconds()
	}
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO conversions (task_id, file_name, file_size, gray_levels, status, page_count, error, started_at, finished_at, duration_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullString(o.TaskID), o.FileName, o.FileSize, o.GrayLevels, string(o.Status), o.PageCount,
		nullString(o.Error), started, o.FinishedAt.UTC().Format(timeLayout), duration)
	if err != nil {
		return fmt.Errorf("history: insert: %w", err)
	}
	return nil
}

// List returns the newest entries first. limit <= 0 returns everything.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `
	SELECT id, task_id, file_name, file_size, gray_levels, status, page_count, error, started_at, finished_at, duration_ms
	FROM conversions
	ORDER BY finished_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var (
			e                Entry
			taskID, errMsg   sql.NullString
			started          sql.NullString
			finished, status string
			durationMillis   int64
		)
		if err := rows.Scan(&e.ID, &taskID, &e.FileName, &e.FileSize, &e.GrayLevels, &status,
			&e.PageCount, &errMsg, &started, &finished, &durationMillis); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		e.TaskID, e.Error = taskID.String, errMsg.String
		e.Status = session.Status(status)
		e.Duration = time.Duration(durationMillis) * time.Millisecond
		if started.Valid {
			e.StartedAt, _ = time.Parse(timeLayout, started.String)
		}
		if e.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
			return nil, fmt.Errorf("history: bad finished_at %q: %w", finished, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Summary counts entries per status.
type Summary struct {
	Completed int
	Failed    int
}

// Summarize returns counts per terminal status.
func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	var sum Summary
	err := s.db.QueryRowContext(ctx, `
	SELECT
		COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END), 0)
	FROM conversions`).Scan(&sum.Completed, &sum.Failed)
	if err != nil {
		return Summary{}, fmt.Errorf("history: summarize: %w", err)
	}
	return sum, nil
}

// ErrCorrupt is returned by Check when the integrity check reports problems.
var ErrCorrupt = errors.New("history: database integrity check failed")

// Check runs an integrity check over the database file.
func (s *Store) Check(ctx context.Context, mode sqlite.Mode) error {
	issues, err := sqlite.VerifyIntegrity(ctx, s.path, mode)
	if err != nil {
		return err
	}
	if len(issues) > 0 {
		return fmt.Errorf("%w: %v", ErrCorrupt, issues)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
