// Package history keeps a SQLite record of every run and document outcome
// so operators can review past batches.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"autorndc/internal/batch"
	"autorndc/internal/classify"
	"autorndc/internal/engine"
	"autorndc/internal/fields"
)

// Store manages the run history database.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Run is one row of the runs table.
type Run struct {
	ID        string
	Kind      string
	Started   time.Time
	Total     int
	Skipped   int
	Succeeded int
	Alerts    int
	Failed    int
	Cancelled bool
	Aborted   bool
	Duration  time.Duration
}

// Document is one row of the documents table.
type Document struct {
	ID        string
	RunID     string
	Code      string
	Status    string
	Reason    string
	ErrorCode string
	Retries   int
	Surcharge int64
	At        time.Time
}

// NewStore creates or opens the history database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, dbPath: dbPath}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		total INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		succeeded INTEGER NOT NULL,
		alerts INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		cancelled INTEGER NOT NULL DEFAULT 0,
		aborted INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		code TEXT NOT NULL,
		status TEXT NOT NULL,
		reason TEXT,
		error_code TEXT,
		retries INTEGER NOT NULL,
		surcharge INTEGER NOT NULL,
		recorded_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_run ON documents(run_id);
	CREATE INDEX IF NOT EXISTS idx_documents_code ON documents(code);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordDocument stores one document outcome. It implements batch.Journal.
func (s *Store) RecordDocument(ctx context.Context, runID string, kind fields.Kind, code string, out engine.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	errCode := ""
	if out.Code != classify.Unknown {
		errCode = out.Code.String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, run_id, kind, code, status, reason, error_code, retries, surcharge, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), runID, kind.Slug(), code, out.Status.String(), out.Reason, errCode,
		out.Retries, out.Surcharge, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record document %s: %w", code, err)
	}
	return nil
}

// RecordRun upserts the run summary.
func (s *Store) RecordRun(ctx context.Context, rep batch.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (id, kind, started_at, total, skipped, succeeded, alerts, failed, cancelled, aborted, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rep.RunID, rep.Kind.Slug(), rep.Started.UTC(), rep.Total, rep.Skipped, rep.Succeeded,
		rep.Alerts, rep.Failed, boolToInt(rep.Cancelled), boolToInt(rep.Aborted), rep.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// Runs lists the most recent runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, started_at, total, skipped, succeeded, alerts, failed, cancelled, aborted, duration_ms
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var cancelled, aborted int
		var ms int64
		if err := rows.Scan(&r.ID, &r.Kind, &r.Started, &r.Total, &r.Skipped, &r.Succeeded,
			&r.Alerts, &r.Failed, &cancelled, &aborted, &ms); err != nil {
			return nil, err
		}
		r.Cancelled, r.Aborted = cancelled != 0, aborted != 0
		r.Duration = time.Duration(ms) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Documents lists the documents of a run in recording order.
func (s *Store) Documents(ctx context.Context, runID string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, code, status, COALESCE(reason, ''), COALESCE(error_code, ''), retries, surcharge, recorded_at
		FROM documents WHERE run_id = ? ORDER BY recorded_at, rowid`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.RunID, &d.Code, &d.Status, &d.Reason, &d.ErrorCode,
			&d.Retries, &d.Surcharge, &d.At); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
