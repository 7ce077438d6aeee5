package eventlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// JSONSink keeps every event in memory and rewrites the whole array on each
// write, so the file is always a complete document.
type JSONSink struct {
	mu     sync.Mutex
	path   string
	events []Event
}

// NewJSON writes to path.
func NewJSON(path string) *JSONSink {
	return &JSONSink{path: path}
}

// Path returns the file being written.
func (s *JSONSink) Path() string { return s.path }

func (s *JSONSink) Write(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)

	data, err := json.MarshalIndent(s.events, "", "  ")
	if err != nil {
		return fmt.Errorf("encode events: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write events: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func (s *JSONSink) Close() error { return nil }

// Load reads a JSON event log.
func Load(path string) ([]Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var events []Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return events, nil
}
