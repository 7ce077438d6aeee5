package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"autorndc/internal/logging"
)

// PlaywrightDriver drives Chromium through playwright. Dialogs are accepted
// as soon as they open; their text is queued for AlertPresent.
type PlaywrightDriver struct {
	cfg     Config
	log     *logging.Logger
	pw      *playwright.Playwright
	browser playwright.Browser
	page    playwright.Page

	dialogs chan string
	mu      sync.Mutex
	pending string
}

var _ Driver = (*PlaywrightDriver)(nil)

// NewPlaywright starts the playwright server and a Chromium page.
func NewPlaywright(cfg Config, log *logging.Logger) (*PlaywrightDriver, error) {
	pw, err := playwright.Run(&playwright.RunOptions{Verbose: false})
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	launchOptions := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
		Args:     cfg.Flags,
	}
	if cfg.Bin != "" {
		launchOptions.ExecutablePath = playwright.String(cfg.Bin)
	}
	browser, err := pw.Chromium.Launch(launchOptions)
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}

	w, h := cfg.viewport()
	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: w, Height: h},
	})
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("new context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("new page: %w", err)
	}
	page.SetDefaultTimeout(float64(elementWait.Milliseconds()))

	d := &PlaywrightDriver{
		cfg:     cfg,
		log:     log,
		pw:      pw,
		browser: browser,
		page:    page,
		dialogs: make(chan string, 4),
	}
	page.OnDialog(func(dialog playwright.Dialog) {
		msg := dialog.Message()
		if err := dialog.Accept(); err != nil {
			log.Warn("accept dialog: %v", err)
		}
		select {
		case d.dialogs <- msg:
		default:
			log.Warn("dialog dropped, queue full: %s", msg)
		}
	})
	log.Info("playwright chromium ready (headless=%v)", cfg.Headless)
	return d, nil
}

func ms(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}

func pwWrap(op, id string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, playwright.ErrTimeout):
		return fmt.Errorf("%s %s: %w: %w", op, id, ErrTimeout, err)
	case errors.Is(err, playwright.ErrTargetClosed):
		return fmt.Errorf("%s %s: %w: %w", op, id, ErrSessionLost, err)
	}
	return wrap(op, id, err)
}

func (d *PlaywrightDriver) locator(id string) playwright.Locator {
	return d.page.Locator("#" + id)
}

func (d *PlaywrightDriver) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := d.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   ms(d.cfg.navTimeout()),
		WaitUntil: playwright.WaitUntilStateLoad,
	})
	return pwWrap("navigate", url, err)
}

func (d *PlaywrightDriver) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := d.page.Reload(playwright.PageReloadOptions{Timeout: ms(d.cfg.navTimeout())})
	return pwWrap("reload", "", err)
}

func (d *PlaywrightDriver) WaitReady(ctx context.Context, timeout time.Duration) error {
	err := poll(ctx, timeout, func() (bool, error) {
		v, err := d.page.Evaluate(readyScript)
		if err != nil {
			return false, nil
		}
		ready, _ := v.(bool)
		return ready, nil
	})
	return pwWrap("wait ready", "", err)
}

func (d *PlaywrightDriver) Fill(ctx context.Context, id, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return pwWrap("fill", id, d.locator(id).Fill(value))
}

func (d *PlaywrightDriver) Read(ctx context.Context, id string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	v, err := d.locator(id).Evaluate(`el => (el.value !== undefined ? el.value : el.innerText) || ''`, nil)
	if err != nil {
		return "", pwWrap("read", id, err)
	}
	s, _ := v.(string)
	return strings.TrimSpace(s), nil
}

func (d *PlaywrightDriver) SelectText(ctx context.Context, id, label string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := d.locator(id).SelectOption(playwright.SelectOptionValues{Labels: &[]string{label}})
	return pwWrap("select", id, err)
}

func (d *PlaywrightDriver) SelectValue(ctx context.Context, id, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := d.locator(id).SelectOption(playwright.SelectOptionValues{Values: &[]string{value}})
	return pwWrap("select", id, err)
}

func (d *PlaywrightDriver) Click(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := d.locator(id).Evaluate(`el => setTimeout(() => el.click(), 0)`, nil)
	return pwWrap("click", id, err)
}

func (d *PlaywrightDriver) Blur(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return pwWrap("blur", id, d.locator(id).Press("Tab"))
}

func (d *PlaywrightDriver) WaitPresent(ctx context.Context, id string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := d.locator(id).WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: ms(timeout),
	})
	return pwWrap("wait present", id, err)
}

func (d *PlaywrightDriver) WaitClickable(ctx context.Context, id string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	loc := d.locator(id)
	if err := loc.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: ms(timeout),
	}); err != nil {
		return pwWrap("wait clickable", id, err)
	}
	err := poll(ctx, timeout, func() (bool, error) {
		enabled, err := loc.IsEnabled()
		if err != nil {
			return false, nil
		}
		return enabled, nil
	})
	return pwWrap("wait clickable", id, err)
}

func (d *PlaywrightDriver) WaitValue(ctx context.Context, id string, timeout time.Duration) (string, error) {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	var value string
	err := poll(tctx, timeout, func() (bool, error) {
		v, err := d.Read(tctx, id)
		if err != nil {
			return false, nil
		}
		value = v
		return v != "", nil
	})
	if err != nil {
		return "", pwWrap("wait value", id, err)
	}
	return value, nil
}

func (d *PlaywrightDriver) Displayed(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	visible, err := d.locator(id).IsVisible()
	return visible, pwWrap("displayed", id, err)
}

func (d *PlaywrightDriver) AlertPresent(ctx context.Context, timeout time.Duration) bool {
	d.mu.Lock()
	if d.pending != "" {
		d.mu.Unlock()
		return true
	}
	d.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg := <-d.dialogs:
		d.mu.Lock()
		d.pending = msg
		d.mu.Unlock()
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// DismissAlert returns the queued dialog text. The dialog itself was
// already accepted by the OnDialog handler.
func (d *PlaywrightDriver) DismissAlert(ctx context.Context) (string, error) {
	d.mu.Lock()
	msg := d.pending
	d.pending = ""
	d.mu.Unlock()
	if msg != "" {
		return msg, nil
	}
	select {
	case msg = <-d.dialogs:
		return msg, nil
	default:
		return "", wrap("dismiss alert", "", ErrNotFound)
	}
}

func (d *PlaywrightDriver) ClearLocalState(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := d.page.Evaluate(clearStateScript)
	return pwWrap("clear state", "", err)
}

func (d *PlaywrightDriver) Close() error {
	var errs []error
	if d.browser != nil {
		errs = append(errs, d.browser.Close())
		d.browser = nil
	}
	if d.pw != nil {
		errs = append(errs, d.pw.Stop())
		d.pw = nil
	}
	return errors.Join(errs...)
}
