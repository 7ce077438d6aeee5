package checkpoint

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite keeps processed codes of every kind in one database, one row per
// (kind, code).
type SQLite struct {
	set
	db   *sql.DB
	kind string
}

// OpenSQLite opens or creates the database and loads codes for kind.
func OpenSQLite(path, kind string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint db: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLite{set: newSet(), db: db, kind: kind}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS processed (
		kind TEXT NOT NULL,
		code TEXT NOT NULL,
		marked_at DATETIME NOT NULL,
		PRIMARY KEY (kind, code)
	);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init checkpoint schema: %w", err)
	}
	rows, err := s.db.Query(`SELECT code FROM processed WHERE kind = ?`, s.kind)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return fmt.Errorf("load checkpoint: %w", err)
		}
		s.done[code] = true
	}
	return rows.Err()
}

func (s *SQLite) Mark(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT OR IGNORE INTO processed (kind, code, marked_at) VALUES (?, ?, ?)`,
		s.kind, code, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("mark %s: %w", code, err)
	}
	s.done[code] = true
	return nil
}

func (s *SQLite) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`DELETE FROM processed WHERE kind = ?`, s.kind); err != nil {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	s.done = make(map[string]bool)
	return nil
}

func (s *SQLite) Close() error { return s.db.Close() }
