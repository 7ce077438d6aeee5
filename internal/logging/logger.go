// Package logging provides categorized loggers for autorndc on top of zap.
// A Registry is built once per run and handed to each component, so there is
// no package-level logger state.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot       Category = "boot"       // Startup, config, credentials
	CategoryBrowser    Category = "browser"    // Driver launch, navigation, dialogs
	CategoryEngine     Category = "engine"     // Retry loop and corrections
	CategoryBatch      Category = "batch"      // Orchestrator, pause/cancel
	CategoryCheckpoint Category = "checkpoint" // Processed-code persistence
	CategoryRecovery   Category = "recovery"   // Outage detection and reconnect
	CategoryStore      Category = "store"      // Event logs and run history
	CategoryUI         Category = "ui"         // Terminal UI
)

// Options mirrors config.LoggingConfig to avoid an import cycle.
type Options struct {
	Level      string
	Categories map[string]bool
	// Dir enables the per-run JSON log file when non-empty.
	Dir string
}

// Registry hands out one Logger per category.
type Registry struct {
	base    *zap.Logger
	opts    Options
	file    *os.File
	mu      sync.RWMutex
	loggers map[Category]*Logger
}

// NewRegistry wraps base. When opts.Dir is set, every entry is also written
// as JSON to <Dir>/autorndc_<date>.log.
func NewRegistry(base *zap.Logger, opts Options) (*Registry, error) {
	if base == nil {
		base = zap.NewNop()
	}
	r := &Registry{opts: opts, loggers: make(map[Category]*Logger)}

	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create logs directory: %w", err)
		}
		path := filepath.Join(opts.Dir, fmt.Sprintf("autorndc_%s.log", time.Now().Format("2006-01-02")))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		r.file = f

		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), ParseLevel(opts.Level))
		base = zap.New(zapcore.NewTee(base.Core(), fileCore), zap.AddCaller())
	}
	r.base = base
	return r, nil
}

// Nop returns a registry that discards everything.
func Nop() *Registry {
	r, _ := NewRegistry(zap.NewNop(), Options{})
	return r
}

// ParseLevel maps a config string to a zap level. Unknown values are info.
func ParseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// IsCategoryEnabled returns whether a specific category is enabled.
// Categories not listed are enabled.
func (r *Registry) IsCategoryEnabled(category Category) bool {
	if r.opts.Categories == nil {
		return true
	}
	enabled, exists := r.opts.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) the logger for the given category.
// A disabled category gets a no-op logger.
func (r *Registry) Get(category Category) *Logger {
	r.mu.RLock()
	if l, ok := r.loggers[category]; ok {
		r.mu.RUnlock()
		return l
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.loggers[category]; ok {
		return l
	}

	z := zap.NewNop()
	if r.IsCategoryEnabled(category) {
		z = r.base.Named(string(category))
	}
	l := &Logger{category: category, sugar: z.Sugar()}
	r.loggers[category] = l
	return l
}

// Zap exposes the underlying logger for components that take *zap.Logger.
func (r *Registry) Zap() *zap.Logger { return r.base }

// Close flushes and closes the log file, if any.
func (r *Registry) Close() error {
	_ = r.base.Sync()
	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		return err
	}
	return nil
}

// Logger is a category-scoped printf-style logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

// Category returns the logger's category.
func (l *Logger) Category() Category { return l.category }

func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// With returns a child logger carrying key/value pairs on every entry.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	logger *Logger
	op     string
	start  time.Time
}

// StartTimer begins timing an operation
func StartTimer(l *Logger, operation string) *Timer {
	return &Timer{logger: l, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	t.logger.Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		t.logger.Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		t.logger.Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
