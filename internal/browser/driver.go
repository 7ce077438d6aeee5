// Package browser drives the portal's web forms. The rest of the program
// talks to a Driver and never touches the automation engine directly.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"autorndc/internal/logging"
)

var (
	// ErrTimeout is returned when a bounded wait elapses.
	ErrTimeout = errors.New("browser: timed out")
	// ErrSessionLost is returned when the browser or page went away.
	ErrSessionLost = errors.New("browser: session lost")
	// ErrNotFound is returned when an element or dialog is absent.
	ErrNotFound = errors.New("browser: not found")
)

// Driver is the form surface the retry engine depends on. Element
// arguments are DOM ids without the leading '#'.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	// WaitReady waits for the document to finish loading and for pending
	// ajax requests to drain.
	WaitReady(ctx context.Context, timeout time.Duration) error

	Fill(ctx context.Context, id, value string) error
	// Read returns an input's value, or the text of any other element.
	Read(ctx context.Context, id string) (string, error)
	SelectText(ctx context.Context, id, label string) error
	SelectValue(ctx context.Context, id, value string) error
	// Click activates an element without waiting for any dialog it opens.
	Click(ctx context.Context, id string) error
	// Blur sends Tab to the element so the page runs its change handlers.
	Blur(ctx context.Context, id string) error

	WaitPresent(ctx context.Context, id string, timeout time.Duration) error
	WaitClickable(ctx context.Context, id string, timeout time.Duration) error
	// WaitValue waits for a non-empty value and returns it.
	WaitValue(ctx context.Context, id string, timeout time.Duration) (string, error)
	Displayed(ctx context.Context, id string) (bool, error)

	// AlertPresent waits up to timeout for a JavaScript dialog.
	AlertPresent(ctx context.Context, timeout time.Duration) bool
	// DismissAlert accepts the open dialog and returns its text.
	DismissAlert(ctx context.Context) (string, error)

	// ClearLocalState empties localStorage and sessionStorage.
	ClearLocalState(ctx context.Context) error
	Close() error
}

// Engines.
const (
	EngineRod        = "rod"
	EnginePlaywright = "playwright"
)

// Config holds browser configuration.
type Config struct {
	Engine            string
	Headless          bool
	Bin               string
	Flags             []string
	ViewportWidth     int
	ViewportHeight    int
	NavigationTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Engine:            EngineRod,
		ViewportWidth:     1366,
		ViewportHeight:    900,
		NavigationTimeout: 30 * time.Second,
	}
}

func (c Config) viewport() (int, int) {
	w, h := c.ViewportWidth, c.ViewportHeight
	if w == 0 {
		w = 1366
	}
	if h == 0 {
		h = 900
	}
	return w, h
}

func (c Config) navTimeout() time.Duration {
	if c.NavigationTimeout <= 0 {
		return 30 * time.Second
	}
	return c.NavigationTimeout
}

// Open launches the configured engine.
func Open(ctx context.Context, cfg Config, log *logging.Logger) (Driver, error) {
	switch cfg.Engine {
	case "", EngineRod:
		return NewRod(ctx, cfg, log)
	case EnginePlaywright:
		return NewPlaywright(cfg, log)
	}
	return nil, fmt.Errorf("unknown browser engine %q", cfg.Engine)
}

// Opener starts a fresh driver. Recovery uses it to reconnect.
type Opener func(ctx context.Context) (Driver, error)

var lostMarkers = []string{
	"target closed",
	"session closed",
	"browser has been closed",
	"use of closed network connection",
	"websocket",
	"no such window",
	"connection refused",
}

// wrap maps engine errors onto the package sentinels, keeping the cause.
func wrap(op, id string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrSessionLost) || errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s %s: %w: %w", op, id, ErrTimeout, err)
	}
	msg := strings.ToLower(err.Error())
	for _, m := range lostMarkers {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%s %s: %w: %w", op, id, ErrSessionLost, err)
		}
	}
	return fmt.Errorf("%s %s: %w", op, id, err)
}

const readyScript = `() => document.readyState === 'complete' && (typeof jQuery === 'undefined' || jQuery.active === 0)`

const clearStateScript = `() => { try { localStorage.clear(); sessionStorage.clear(); } catch (e) {} return true; }`

// pollInterval is how often waits re-check the page.
const pollInterval = 200 * time.Millisecond

// poll calls check until it reports done, the timeout elapses or ctx ends.
func poll(ctx context.Context, timeout time.Duration, check func() (bool, error)) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		done, err := check()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return ErrTimeout
		case <-ticker.C:
		}
	}
}
