// Package checkpoint persists the codes already processed so an interrupted
// run can resume where it stopped.
package checkpoint

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// Store is a set of processed codes.
type Store interface {
	// Processed reports whether code was already handled.
	Processed(code string) bool
	// Mark records code as handled.
	Mark(code string) error
	// Pending filters codes down to the unprocessed ones, keeping order.
	Pending(codes []string) []string
	// Codes lists every processed code.
	Codes() []string
	// Clear forgets everything.
	Clear() error
	Close() error
}

// Backend names a store implementation.
type Backend string

const (
	BackendFile   Backend = "file"
	BackendSQLite Backend = "sqlite"
)

type set struct {
	mu   sync.RWMutex
	done map[string]bool
}

func newSet() set { return set{done: make(map[string]bool)} }

func (s *set) Processed(code string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.done[code]
}

func (s *set) Pending(codes []string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		if !s.done[c] {
			out = append(out, c)
		}
	}
	return out
}

func (s *set) Codes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.done))
	for c := range s.done {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// LineFile appends one code per line. Used for remesas.
type LineFile struct {
	set
	path string
}

// OpenLineFile loads path if it exists.
func OpenLineFile(path string) (*LineFile, error) {
	s := &LineFile{set: newSet(), path: path}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if code := strings.TrimSpace(sc.Text()); code != "" {
			s.done[code] = true
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	return s, nil
}

func (s *LineFile) Mark(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done[code] {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open checkpoint: %w", err)
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, code); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	s.done[code] = true
	return nil
}

func (s *LineFile) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = make(map[string]bool)
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}

func (s *LineFile) Close() error { return nil }

// jsonDoc is the manifest checkpoint layout.
type jsonDoc struct {
	Date      string   `json:"fecha"`
	Processed []string `json:"procesados"`
}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONFile rewrites {"fecha", "procesados"} on each mark. Used for manifests.
type JSONFile struct {
	set
	path  string
	order []string
	now   func() time.Time
}

// OpenJSONFile loads path if it exists. A corrupt file is treated as empty.
func OpenJSONFile(path string) (*JSONFile, error) {
	s := &JSONFile{set: newSet(), path: path, now: time.Now}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var doc jsonDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return s, nil
	}
	for _, c := range doc.Processed {
		if !s.done[c] {
			s.done[c] = true
			s.order = append(s.order, c)
		}
	}
	return s, nil
}

func (s *JSONFile) Mark(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done[code] {
		return nil
	}
	order := append(append([]string(nil), s.order...), code)
	data, err := json.MarshalIndent(jsonDoc{Date: s.now().Format(time.RFC3339), Processed: order}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	s.order = order
	s.done[code] = true
	return nil
}

func (s *JSONFile) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = make(map[string]bool)
	s.order = nil
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}

func (s *JSONFile) Close() error { return nil }

// FileName is the default checkpoint file for a document kind slug.
func FileName(slug string) string {
	if slug == "manifiestos" {
		return "manifiestos_checkpoint.json"
	}
	return "checkpoint_" + slug + ".txt"
}

// Open returns the store for backend. File backends pick the format from
// the file extension.
func Open(backend Backend, dir, slug string) (Store, error) {
	switch backend {
	case BackendSQLite:
		return OpenSQLite(filepath.Join(dir, "checkpoint.db"), slug)
	case BackendFile, "":
		path := filepath.Join(dir, FileName(slug))
		if strings.HasSuffix(path, ".json") {
			return OpenJSONFile(path)
		}
		return OpenLineFile(path)
	}
	return nil, fmt.Errorf("unknown checkpoint backend %q", backend)
}
