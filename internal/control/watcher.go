// Package control lets an operator pause, resume or cancel a headless run by
// writing a word into a control file.
package control

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"autorndc/internal/logging"
)

// Command is an operator instruction.
type Command string

const (
	CommandNone   Command = ""
	CommandPause  Command = "pause"
	CommandResume Command = "resume"
	CommandCancel Command = "cancel"
)

// Target receives commands. batch.Control satisfies it.
type Target interface {
	Pause()
	Resume()
	Cancel()
}

// Parse reads the first word of a control file. Spanish forms are accepted.
func Parse(content string) (Command, error) {
	word := strings.ToLower(strings.TrimSpace(content))
	if i := strings.IndexAny(word, " \t\r\n"); i >= 0 {
		word = word[:i]
	}
	switch word {
	case "":
		return CommandNone, nil
	case "pause", "pausa", "pausar":
		return CommandPause, nil
	case "resume", "reanudar", "continuar":
		return CommandResume, nil
	case "cancel", "cancelar", "detener":
		return CommandCancel, nil
	}
	return CommandNone, fmt.Errorf("unknown control command %q", word)
}

// Watcher applies commands written to a file.
type Watcher struct {
	path   string
	target Target
	log    *logging.Logger
	// OnCommand is called after a command is applied.
	OnCommand func(Command)
}

// NewWatcher watches path on behalf of target.
func NewWatcher(path string, target Target, log *logging.Logger) *Watcher {
	if log == nil {
		log = logging.Nop().Get(logging.CategoryBatch)
	}
	return &Watcher{path: path, target: target, log: log}
}

// Path returns the watched file.
func (w *Watcher) Path() string { return w.path }

// Run truncates the control file so stale commands from a previous run are
// not replayed, then applies commands until ctx ends.
func (w *Watcher) Run(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create control dir: %w", err)
	}
	if err := os.WriteFile(w.path, nil, 0644); err != nil {
		return fmt.Errorf("reset control file: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start control watcher: %w", err)
	}
	defer fw.Close()

	// Editors replace files on save, so the directory is watched.
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.log.Info("control file: %s (pause, resume, cancel)", w.path)

	name := filepath.Clean(w.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != name || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.apply()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("control watcher: %v", err)
		}
	}
}

func (w *Watcher) apply() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		w.log.Warn("read control file: %v", err)
		return
	}
	cmd, err := Parse(string(data))
	if err != nil {
		w.log.Warn("%v", err)
		return
	}
	switch cmd {
	case CommandNone:
		return
	case CommandPause:
		w.target.Pause()
	case CommandResume:
		w.target.Resume()
	case CommandCancel:
		w.target.Cancel()
	}
	w.log.Info("control command: %s", cmd)
	if w.OnCommand != nil {
		w.OnCommand(cmd)
	}
}
