// Package browsertest provides an in-memory browser.Driver for tests.
package browsertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"autorndc/internal/browser"
)

// FillCall records one Fill.
type FillCall struct {
	ID    string
	Value string
}

// Fake is a scripted page. Elements exist when they have a value. Clicks
// and navigations run optional hooks that mutate the page, which is how
// tests script portal responses.
type Fake struct {
	mu sync.Mutex

	values   map[string]string
	hidden   map[string]bool
	selected map[string]string
	alerts   []string
	failures map[string]error

	Fills       []FillCall
	Clicks      []string
	Navigations []string
	Reloads     int
	Cleared     int
	Closed      bool

	// OnClick runs after a click on the element id.
	OnClick map[string]func(f *Fake)
	// OnNavigate runs after every navigation.
	OnNavigate func(f *Fake, url string)
}

var _ browser.Driver = (*Fake)(nil)

// New returns an empty page.
func New() *Fake {
	return &Fake{
		values:   make(map[string]string),
		hidden:   make(map[string]bool),
		selected: make(map[string]string),
		failures: make(map[string]error),
		OnClick:  make(map[string]func(f *Fake)),
	}
}

// Set makes the element present with the given value.
func (f *Fake) Set(id, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[id] = value
}

// SetLocked is Set for use inside hooks, which already hold the lock.
func (f *Fake) SetLocked(id, value string) { f.values[id] = value }

// RemoveLocked deletes an element from inside a hook.
func (f *Fake) RemoveLocked(id string) { delete(f.values, id) }

// Hide keeps the element present but not displayed.
func (f *Fake) Hide(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hidden[id] = true
}

// QueueAlert opens a dialog with text.
func (f *Fake) QueueAlert(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, text)
}

// QueueAlertLocked is QueueAlert for use inside hooks.
func (f *Fake) QueueAlertLocked(text string) { f.alerts = append(f.alerts, text) }

// Fail makes the next call of op on id return err. Use "" as id for
// page-level operations such as "navigate".
func (f *Fake) Fail(op, id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op+":"+id] = err
}

// Value returns the current value of an element.
func (f *Fake) Value(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[id]
}

// Selected returns the last option chosen on a select element.
func (f *Fake) Selected(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selected[id]
}

// FillsFor lists the values filled into id, oldest first.
func (f *Fake) FillsFor(id string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.Fills {
		if c.ID == id {
			out = append(out, c.Value)
		}
	}
	return out
}

// ClickCount counts clicks on id.
func (f *Fake) ClickCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Clicks {
		if c == id {
			n++
		}
	}
	return n
}

func (f *Fake) failure(op, id string) error {
	key := op + ":" + id
	if err, ok := f.failures[key]; ok {
		delete(f.failures, key)
		return err
	}
	return nil
}

func (f *Fake) present(id string) error {
	if _, ok := f.values[id]; !ok {
		return fmt.Errorf("element %s: %w", id, browser.ErrNotFound)
	}
	return nil
}

func (f *Fake) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("navigate", ""); err != nil {
		return err
	}
	f.Navigations = append(f.Navigations, url)
	if f.OnNavigate != nil {
		f.OnNavigate(f, url)
	}
	return ctx.Err()
}

func (f *Fake) Reload(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reloads++
	return f.failure("reload", "")
}

func (f *Fake) WaitReady(ctx context.Context, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failure("wait ready", "")
}

func (f *Fake) Fill(ctx context.Context, id, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("fill", id); err != nil {
		return err
	}
	if err := f.present(id); err != nil {
		return err
	}
	f.values[id] = value
	f.Fills = append(f.Fills, FillCall{ID: id, Value: value})
	return nil
}

func (f *Fake) Read(ctx context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("read", id); err != nil {
		return "", err
	}
	if err := f.present(id); err != nil {
		return "", err
	}
	return f.values[id], nil
}

func (f *Fake) SelectText(ctx context.Context, id, label string) error {
	return f.choose("select", id, label)
}

func (f *Fake) SelectValue(ctx context.Context, id, value string) error {
	return f.choose("select", id, value)
}

func (f *Fake) choose(op, id, v string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(op, id); err != nil {
		return err
	}
	if err := f.present(id); err != nil {
		return err
	}
	f.selected[id] = v
	return nil
}

func (f *Fake) Click(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("click", id); err != nil {
		return err
	}
	if err := f.present(id); err != nil {
		return err
	}
	f.Clicks = append(f.Clicks, id)
	if hook, ok := f.OnClick[id]; ok {
		hook(f)
	}
	return nil
}

func (f *Fake) Blur(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("blur", id); err != nil {
		return err
	}
	if hook, ok := f.OnClick["blur:"+id]; ok {
		hook(f)
	}
	return f.present(id)
}

func (f *Fake) WaitPresent(ctx context.Context, id string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("wait present", id); err != nil {
		return err
	}
	if _, ok := f.values[id]; !ok {
		return fmt.Errorf("wait present %s: %w", id, browser.ErrTimeout)
	}
	return nil
}

func (f *Fake) WaitClickable(ctx context.Context, id string, timeout time.Duration) error {
	return f.WaitPresent(ctx, id, timeout)
}

func (f *Fake) WaitValue(ctx context.Context, id string, _ time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v := f.values[id]; v != "" {
		return v, nil
	}
	return "", fmt.Errorf("wait value %s: %w", id, browser.ErrTimeout)
}

func (f *Fake) Displayed(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.values[id]
	return ok && !f.hidden[id], nil
}

func (f *Fake) AlertPresent(ctx context.Context, _ time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.alerts) > 0
}

func (f *Fake) DismissAlert(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.alerts) == 0 {
		return "", browser.ErrNotFound
	}
	msg := f.alerts[0]
	f.alerts = f.alerts[1:]
	return msg, nil
}

func (f *Fake) ClearLocalState(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Cleared++
	return f.failure("clear state", "")
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}
