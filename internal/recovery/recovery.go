// Package recovery detects infrastructure failures and waits for the portal
// to come back before a run continues.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"autorndc/internal/browser"
	"autorndc/internal/logging"
)

// ErrExhausted is returned when the portal never came back.
var ErrExhausted = errors.New("portal did not recover")

var infraMarkers = []string{
	"timeout",
	"connection",
	"no such window",
	"invalid session",
	"chrome not reachable",
	"websocket",
	"target closed",
}

// IsInfrastructure reports whether err means the browser or the portal is
// unreachable, as opposed to a problem with one document.
func IsInfrastructure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, browser.ErrTimeout) || errors.Is(err, browser.ErrSessionLost) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range infraMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// Prober checks whether the portal answers.
type Prober interface {
	Probe(ctx context.Context) error
}

// HTTPProber fetches the portal home page and checks that it is real HTML
// served from the portal host.
type HTTPProber struct {
	URL        string
	HostMarker string
	Client     *http.Client
}

// NewHTTPProber probes base with a bounded client.
func NewHTTPProber(base string) *HTTPProber {
	return &HTTPProber{
		URL:        base,
		HostMarker: "rndc",
		Client:     &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *HTTPProber) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", p.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("probe %s: HTTP %d", p.URL, resp.StatusCode)
	}

	body, err := charset.NewReader(io.LimitReader(resp.Body, 2<<20), resp.Header.Get("Content-Type"))
	if err != nil {
		return fmt.Errorf("decode probe body: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return fmt.Errorf("parse probe body: %w", err)
	}
	if doc.Find("body").Length() == 0 {
		return fmt.Errorf("probe %s: no html body", p.URL)
	}

	final := p.URL
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	u, err := url.Parse(final)
	if err != nil {
		return fmt.Errorf("probe landed on %q: %w", final, err)
	}
	if p.HostMarker != "" && !strings.Contains(strings.ToLower(u.Host), p.HostMarker) {
		return fmt.Errorf("probe landed on %s, not the portal", u.Host)
	}
	return nil
}

// Supervisor waits for the portal after an infrastructure failure.
type Supervisor struct {
	Prober      Prober
	Interval    time.Duration
	MaxAttempts int
	Log         *logging.Logger

	// OnAttempt reports progress before each wait.
	OnAttempt func(attempt, max int, waited time.Duration)
	Sleep     func(ctx context.Context, d time.Duration) error
}

// Defaults: one probe a minute for an hour.
const (
	DefaultInterval    = 60 * time.Second
	DefaultMaxAttempts = 60
)

// NewSupervisor returns a supervisor with the default schedule.
func NewSupervisor(p Prober, log *logging.Logger) *Supervisor {
	if log == nil {
		log = logging.Nop().Get(logging.CategoryRecovery)
	}
	return &Supervisor{Prober: p, Interval: DefaultInterval, MaxAttempts: DefaultMaxAttempts, Log: log}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recover sleeps one interval before every probe and returns once a probe
// succeeds. It returns ErrExhausted after MaxAttempts failed probes.
func (s *Supervisor) Recover(ctx context.Context) error {
	wait := s.Sleep
	if wait == nil {
		wait = sleep
	}
	max := s.MaxAttempts
	if max < 1 {
		max = 1
	}
	s.Log.Warn("portal unreachable, waiting for recovery (%d probes every %s)", max, s.Interval)

	for attempt := 1; attempt <= max; attempt++ {
		waited := time.Duration(attempt) * s.Interval
		if s.OnAttempt != nil {
			s.OnAttempt(attempt, max, waited)
		}
		if err := wait(ctx, s.Interval); err != nil {
			return err
		}
		err := s.Prober.Probe(ctx)
		if err == nil {
			s.Log.Info("portal recovered after %d probes (%s)", attempt, waited)
			return nil
		}
		s.Log.Debug("probe %d/%d failed: %v", attempt, max, err)
	}
	s.Log.Error("portal not recovered after %d probes", max)
	return fmt.Errorf("%w after %d probes", ErrExhausted, max)
}
