package batch

import (
	"context"
	"sync"
	"sync/atomic"
)

// Control is the operator's pause and cancel switch for a run. It is safe
// for concurrent use. Both signals are observed at document boundaries.
type Control struct {
	mu     sync.Mutex
	paused bool
	gate   chan struct{} // closed while running

	cancelled  atomic.Bool
	done       chan struct{}
	cancelOnce sync.Once

	// OnHold is called when the engine asks for operator input.
	OnHold func(reason string)
}

// NewControl returns a running, uncancelled control.
func NewControl() *Control {
	gate := make(chan struct{})
	close(gate)
	return &Control{gate: gate, done: make(chan struct{})}
}

// Pause stops the run before the next document.
func (c *Control) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return
	}
	c.paused = true
	c.gate = make(chan struct{})
}

// Resume releases a paused run.
func (c *Control) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return
	}
	c.paused = false
	close(c.gate)
}

// Cancel stops the run before the next document. It also releases a pause.
func (c *Control) Cancel() {
	c.cancelOnce.Do(func() {
		c.cancelled.Store(true)
		close(c.done)
	})
}

func (c *Control) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *Control) Cancelled() bool { return c.cancelled.Load() }

// Done is closed on Cancel.
func (c *Control) Done() <-chan struct{} { return c.done }

// Wait blocks while paused. It returns early on cancel or when ctx ends.
func (c *Control) Wait(ctx context.Context) error {
	c.mu.Lock()
	gate := c.gate
	c.mu.Unlock()

	select {
	case <-gate:
		return nil
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Hold pauses the run, notifies OnHold and blocks until resumed. A cancel
// while held is returned as an error so the document ends.
func (c *Control) Hold(ctx context.Context, reason string) error {
	c.Pause()
	if c.OnHold != nil {
		c.OnHold(reason)
	}
	if err := c.Wait(ctx); err != nil {
		return err
	}
	if c.Cancelled() {
		return ErrCancelled
	}
	return nil
}
