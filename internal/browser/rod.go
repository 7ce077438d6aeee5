package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"autorndc/internal/logging"
)

// elementWait bounds element lookups that have no explicit timeout.
const elementWait = 10 * time.Second

// RodDriver owns a Chrome instance and the single incognito page the portal
// is driven through.
type RodDriver struct {
	cfg      Config
	log      *logging.Logger
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page

	ctx    context.Context
	cancel context.CancelFunc

	dialogs chan string
	mu      sync.Mutex
	pending string
}

var _ Driver = (*RodDriver)(nil)

// NewRod launches Chrome, opens an incognito page and starts listening for
// JavaScript dialogs.
func NewRod(ctx context.Context, cfg Config, log *logging.Logger) (*RodDriver, error) {
	l, controlURL, err := launch(cfg)
	if err != nil {
		return nil, err
	}

	dctx, cancel := context.WithCancel(context.Background())
	browser := rod.New().ControlURL(controlURL).Context(dctx)
	if err := browser.Connect(); err != nil {
		cancel()
		l.Kill()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	incognito, err := browser.Incognito()
	if err != nil {
		cancel()
		_ = browser.Close()
		return nil, fmt.Errorf("incognito context: %w", err)
	}
	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		cancel()
		_ = browser.Close()
		return nil, fmt.Errorf("create page: %w", err)
	}

	w, h := cfg.viewport()
	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             w,
		Height:            h,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		log.Warn("failed to set viewport: %v", err)
	}

	d := &RodDriver{
		cfg:      cfg,
		log:      log,
		launcher: l,
		browser:  browser,
		page:     page,
		ctx:      dctx,
		cancel:   cancel,
		dialogs:  make(chan string, 4),
	}
	d.listenDialogs()

	if ctx.Err() != nil {
		_ = d.Close()
		return nil, ctx.Err()
	}
	log.Info("chrome ready (headless=%v)", cfg.Headless)
	return d, nil
}

func launch(cfg Config) (*launcher.Launcher, string, error) {
	l := launcher.New().Headless(cfg.Headless)
	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}
	for _, rawFlag := range cfg.Flags {
		flagStr := strings.TrimLeft(rawFlag, "-")
		name, val, hasVal := strings.Cut(flagStr, "=")
		if hasVal {
			l = l.Set(flags.Flag(name), val)
		} else {
			l = l.Set(flags.Flag(name))
		}
	}
	url, err := l.Launch()
	if err == nil {
		return l, url, nil
	}
	// Retry without the extra flags; a bad flag should not stop the run.
	fallback := launcher.New().Headless(cfg.Headless)
	if cfg.Bin != "" {
		fallback = fallback.Bin(cfg.Bin)
	}
	alt, altErr := fallback.Launch()
	if altErr != nil {
		return nil, "", fmt.Errorf("launch chrome: %w (fallback: %v)", err, altErr)
	}
	return fallback, alt, nil
}

// listenDialogs records the text of every dialog the page opens. The dialog
// stays open until DismissAlert handles it.
func (d *RodDriver) listenDialogs() {
	wait := d.page.Context(d.ctx).EachEvent(func(e *proto.PageJavascriptDialogOpening) {
		d.log.Debug("dialog opened: %s", e.Message)
		select {
		case d.dialogs <- e.Message:
		default:
			d.log.Warn("dialog dropped, queue full: %s", e.Message)
		}
	})
	go wait()
}

func (d *RodDriver) pageCtx(ctx context.Context) *rod.Page {
	return d.page.Context(ctx)
}

func (d *RodDriver) element(ctx context.Context, id string, timeout time.Duration) (*rod.Element, error) {
	el, err := d.pageCtx(ctx).Timeout(timeout).Element("#" + id)
	if err != nil {
		return nil, err
	}
	return el.CancelTimeout(), nil
}

func (d *RodDriver) Navigate(ctx context.Context, url string) error {
	p := d.pageCtx(ctx).Timeout(d.cfg.navTimeout())
	if err := p.Navigate(url); err != nil {
		return wrap("navigate", url, err)
	}
	return wrap("navigate", url, p.WaitLoad())
}

func (d *RodDriver) Reload(ctx context.Context) error {
	p := d.pageCtx(ctx).Timeout(d.cfg.navTimeout())
	if err := p.Reload(); err != nil {
		return wrap("reload", "", err)
	}
	return wrap("reload", "", p.WaitLoad())
}

func (d *RodDriver) WaitReady(ctx context.Context, timeout time.Duration) error {
	err := poll(ctx, timeout, func() (bool, error) {
		res, err := d.pageCtx(ctx).Eval(readyScript)
		if err != nil {
			// Evaluation fails while the page is navigating; keep polling.
			return false, nil
		}
		return res.Value.Bool(), nil
	})
	return wrap("wait ready", "", err)
}

func (d *RodDriver) Fill(ctx context.Context, id, value string) error {
	el, err := d.element(ctx, id, elementWait)
	if err != nil {
		return wrap("fill", id, err)
	}
	if err := el.SelectAllText(); err != nil {
		return wrap("fill", id, err)
	}
	return wrap("fill", id, el.Input(value))
}

func (d *RodDriver) Read(ctx context.Context, id string) (string, error) {
	el, err := d.element(ctx, id, elementWait)
	if err != nil {
		return "", wrap("read", id, err)
	}
	res, err := el.Eval(`function () { return (this.value !== undefined ? this.value : this.innerText) || '' }`)
	if err != nil {
		return "", wrap("read", id, err)
	}
	return strings.TrimSpace(res.Value.Str()), nil
}

func (d *RodDriver) SelectText(ctx context.Context, id, label string) error {
	el, err := d.element(ctx, id, elementWait)
	if err != nil {
		return wrap("select", id, err)
	}
	return wrap("select", id, el.Select([]string{label}, true, rod.SelectorTypeText))
}

func (d *RodDriver) SelectValue(ctx context.Context, id, value string) error {
	el, err := d.element(ctx, id, elementWait)
	if err != nil {
		return wrap("select", id, err)
	}
	sel := fmt.Sprintf(`option[value=%q]`, value)
	return wrap("select", id, el.Select([]string{sel}, true, rod.SelectorTypeCSSSector))
}

// Click schedules the click inside the page so a dialog opened by the
// handler cannot block the CDP call.
func (d *RodDriver) Click(ctx context.Context, id string) error {
	el, err := d.element(ctx, id, elementWait)
	if err != nil {
		return wrap("click", id, err)
	}
	_, err = el.Eval(`function () { const el = this; setTimeout(() => el.click(), 0); return true }`)
	return wrap("click", id, err)
}

func (d *RodDriver) Blur(ctx context.Context, id string) error {
	el, err := d.element(ctx, id, elementWait)
	if err != nil {
		return wrap("blur", id, err)
	}
	return wrap("blur", id, el.Type(input.Tab))
}

func (d *RodDriver) WaitPresent(ctx context.Context, id string, timeout time.Duration) error {
	_, err := d.element(ctx, id, timeout)
	return wrap("wait present", id, err)
}

func (d *RodDriver) WaitClickable(ctx context.Context, id string, timeout time.Duration) error {
	el, err := d.pageCtx(ctx).Timeout(timeout).Element("#" + id)
	if err != nil {
		return wrap("wait clickable", id, err)
	}
	if err := el.WaitVisible(); err != nil {
		return wrap("wait clickable", id, err)
	}
	return wrap("wait clickable", id, el.WaitEnabled())
}

func (d *RodDriver) WaitValue(ctx context.Context, id string, timeout time.Duration) (string, error) {
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
		return "", wrap("wait value", id, err)
	}
	return value, nil
}

func (d *RodDriver) Displayed(ctx context.Context, id string) (bool, error) {
	has, el, err := d.pageCtx(ctx).Has("#" + id)
	if err != nil {
		return false, wrap("displayed", id, err)
	}
	if !has {
		return false, nil
	}
	visible, err := el.Visible()
	return visible, wrap("displayed", id, err)
}

func (d *RodDriver) AlertPresent(ctx context.Context, timeout time.Duration) bool {
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

func (d *RodDriver) DismissAlert(ctx context.Context) (string, error) {
	d.mu.Lock()
	msg := d.pending
	d.pending = ""
	d.mu.Unlock()
	if msg == "" {
		select {
		case msg = <-d.dialogs:
		default:
			return "", wrap("dismiss alert", "", ErrNotFound)
		}
	}
	err := proto.PageHandleJavaScriptDialog{Accept: true}.Call(d.pageCtx(ctx))
	if err != nil {
		return msg, wrap("dismiss alert", "", err)
	}
	return msg, nil
}

func (d *RodDriver) ClearLocalState(ctx context.Context) error {
	_, err := d.pageCtx(ctx).Eval(clearStateScript)
	return wrap("clear state", "", err)
}

// Close shuts the page and the browser process.
func (d *RodDriver) Close() error {
	var err error
	if d.browser != nil {
		err = d.browser.Close()
		d.browser = nil
	}
	d.cancel()
	if d.launcher != nil {
		d.launcher.Cleanup()
		d.launcher = nil
	}
	return err
}
