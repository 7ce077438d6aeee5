// Package engine runs the submit, classify, correct and resubmit loop for a
// single document.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"autorndc/internal/classify"
	"autorndc/internal/eventlog"
	"autorndc/internal/fields"
	"autorndc/internal/logging"
	"autorndc/internal/portal"
	"autorndc/internal/recovery"
)

// Status is the final state of a document.
type Status int

const (
	StatusSuccess Status = iota
	StatusTerminal
	// StatusRetryable is the state between a correctable alert and the next
	// submit. Process never returns it.
	StatusRetryable
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusTerminal:
		return "terminal"
	case StatusRetryable:
		return "retryable"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Outcome is how one document ended.
type Outcome struct {
	Status    Status
	Reason    string
	Code      classify.Code
	Retries   int
	Surcharge int64
	// Alerted is set when the portal answered with at least one alert.
	Alerted bool
	// Mark asks the caller to checkpoint the document even though it did
	// not succeed, so it is never retried.
	Mark bool
}

// Succeeded reports a successful outcome.
func (o Outcome) Succeeded() bool { return o.Status == StatusSuccess }

// Checkpoint reports whether the document should be recorded as processed.
func (o Outcome) Checkpoint() bool { return o.Succeeded() || o.Mark }

// Fault is an infrastructure failure: the browser or the portal stopped
// answering. The batch recovers the session and retries the document.
type Fault struct {
	Op   string
	Code string
	Err  error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s %s: %v", f.Op, f.Code, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

// Stop ends a document without a fault. Forms return it for conditions the
// portal or the data make final.
type Stop struct {
	Reason string
	Mark   bool
	Err    error
}

func (s *Stop) Error() string {
	if s.Err != nil {
		return s.Reason + ": " + s.Err.Error()
	}
	return s.Reason
}

func (s *Stop) Unwrap() error { return s.Err }

// Policy decides what happens when a save shows neither an alert nor the
// success marker.
type Policy string

const (
	// PolicyRetry waits and resubmits. The attempt counts as a retry.
	PolicyRetry Policy = "retry"
	// PolicyPause holds the run until an operator resumes it, then resubmits.
	PolicyPause Policy = "pause"
	// PolicyFail ends the document.
	PolicyFail Policy = "fail"
)

// ParsePolicy validates a configured policy. Empty means PolicyRetry.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyRetry, nil
	case PolicyRetry, PolicyPause, PolicyFail:
		return p, nil
	}
	return "", fmt.Errorf("unknown no-alert policy %q (want retry, pause or fail)", s)
}

// Gate holds the run for operator input.
type Gate interface {
	Hold(ctx context.Context, reason string) error
}

// RetryState is the per-document retry counter and accumulated surcharge.
type RetryState struct {
	Retries   int
	Surcharge int64
}

// Document is the working state of one code.
type Document struct {
	Code  string
	Model fields.Model
	State RetryState
}

// Form is one fulfillment form type.
type Form interface {
	Kind() fields.Kind
	// Fill loads the document and writes the first attempt.
	Fill(ctx context.Context, doc *Document) error
	// Submit saves the form and reports what the portal showed.
	Submit(ctx context.Context, doc *Document) (portal.Result, error)
	// Correct revises and rewrites the form after a correctable alert.
	Correct(ctx context.Context, doc *Document, code classify.Code) error
}

// Env carries the collaborators shared by every document in a run.
type Env struct {
	Session *portal.Session
	Log     *logging.Logger
	Events  *eventlog.Recorder
	Gate    Gate
	Now     func() time.Time
	Sleep   func(ctx context.Context, d time.Duration) error
}

func (e *Env) defaults(kind fields.Kind) {
	if e.Log == nil {
		e.Log = logging.Nop().Get(logging.CategoryEngine)
	}
	if e.Events == nil {
		e.Events = eventlog.NewRecorder(kind)
	}
	if e.Now == nil {
		e.Now = time.Now
	}
	if e.Sleep == nil {
		e.Sleep = portal.Sleep
	}
}

// Options bound the loop.
type Options struct {
	MaxRetries    int
	NoAlertPolicy Policy
	NoAlertDelay  time.Duration
}

// Engine processes documents of one kind.
type Engine struct {
	env  Env
	form Form
	opts Options

	mu sync.Mutex
	// suspended holds the retry state of documents interrupted by a Fault
	// until they are processed again.
	suspended map[string]RetryState
}

// New returns an engine for form.
func New(env Env, form Form, opts Options) *Engine {
	env.defaults(form.Kind())
	if opts.NoAlertPolicy == "" {
		opts.NoAlertPolicy = PolicyRetry
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Engine{env: env, form: form, opts: opts, suspended: make(map[string]RetryState)}
}

// Kind returns the document kind handled.
func (e *Engine) Kind() fields.Kind { return e.form.Kind() }

// Process runs one document to completion. The error is a *Fault for
// infrastructure failures, or the context's error when the run is stopped.
// Validation results are always reported through the Outcome.
//
// After a Fault the retry counter and surcharge are kept, and the next
// Process call for the same code resumes from them.
func (e *Engine) Process(ctx context.Context, code string) (out Outcome, err error) {
	log := e.env.Log.With("codigo", code)
	timer := logging.StartTimer(log, "process "+code)
	defer timer.StopWithThreshold(2 * time.Minute)

	doc := &Document{Code: code, State: e.resume(code)}
	defer func() {
		var fault *Fault
		if errors.As(err, &fault) {
			e.suspend(doc)
			return
		}
		e.Forget(code)
	}()

	if err := e.form.Fill(ctx, doc); err != nil {
		return e.settle(ctx, doc, "fill", err)
	}

	alerted := false
	for {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		res, err := e.form.Submit(ctx, doc)
		if err != nil {
			return e.settle(ctx, doc, "submit", err)
		}

		var step Outcome
		switch {
		case res.Succeeded:
			step = e.outcome(doc, StatusSuccess, "completado correctamente")
		case res.HasAlert:
			alerted = true
			step = e.onAlert(doc, res.Alert)
		default:
			step = e.onNoAlert(ctx, doc)
		}
		step.Alerted = alerted

		if step.Status != StatusRetryable {
			e.finish(doc, step)
			return step, nil
		}

		if doc.State.Retries >= e.opts.MaxRetries {
			out := e.outcome(doc, StatusTerminal, fmt.Sprintf("reintentos agotados (%d)", e.opts.MaxRetries))
			out.Code, out.Alerted = step.Code, alerted
			e.finish(doc, out)
			return out, nil
		}

		if err := e.retry(ctx, doc, step); err != nil {
			out, ferr := e.settle(ctx, doc, "correct", err)
			out.Alerted = alerted
			return out, ferr
		}
	}
}

func (e *Engine) resume(code string) RetryState {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.suspended[code]
	if ok {
		e.env.Log.Info("%s: resuming at retry %d, surcharge %d", code, st.Retries, st.Surcharge)
	}
	return st
}

func (e *Engine) suspend(doc *Document) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.suspended[doc.Code] = doc.State
}

// Forget drops the retry state kept for code after a Fault. The batch calls
// it when it gives up on the document.
func (e *Engine) Forget(code string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.suspended, code)
}

func (e *Engine) outcome(doc *Document, s Status, reason string) Outcome {
	return Outcome{Status: s, Reason: reason, Retries: doc.State.Retries, Surcharge: doc.State.Surcharge}
}

// onAlert classifies alert text into the next step.
func (e *Engine) onAlert(doc *Document, text string) Outcome {
	code := classify.Classify(text)
	e.env.note(e.env.Events.Alert(doc.Code, code.String(), text,
		eventlog.Retry(doc.State.Retries), eventlog.Surcharge(doc.State.Surcharge)))
	if err := e.env.Events.Snapshot(doc.Code, text, doc.Model.Pairs()); err != nil {
		e.env.Log.Warn("field snapshot for %s: %v", doc.Code, err)
	}
	e.env.Log.Info("%s: alert %s: %s", doc.Code, code, text)

	var out Outcome
	switch code.Kind() {
	case classify.KindAlreadyCompleted:
		out = e.outcome(doc, StatusSuccess, "ya cumplido en el portal")
	case classify.KindUnrecoverable:
		out = e.outcome(doc, StatusTerminal, "error no recuperable: "+text)
	case classify.KindCorrectable:
		out = e.outcome(doc, StatusRetryable, "corrigiendo "+code.String())
	default:
		out = e.outcome(doc, StatusTerminal, "alerta no manejada: "+text)
	}
	out.Code = code
	return out
}

// onNoAlert applies the configured policy when the save showed nothing.
func (e *Engine) onNoAlert(ctx context.Context, doc *Document) Outcome {
	e.env.Log.Warn("%s: no alert and no confirmation after save", doc.Code)
	switch e.opts.NoAlertPolicy {
	case PolicyFail:
		return e.outcome(doc, StatusTerminal, "sin alerta y sin confirmación de guardado")
	case PolicyPause:
		if e.env.Gate != nil {
			reason := fmt.Sprintf("%s: sin alerta ni confirmación, revise el formulario", doc.Code)
			if err := e.env.Gate.Hold(ctx, reason); err != nil {
				return e.outcome(doc, StatusTerminal, "pausa interrumpida: "+err.Error())
			}
			break
		}
		e.env.Log.Warn("no pause gate configured, retrying")
		fallthrough
	default:
		if err := e.env.Sleep(ctx, e.opts.NoAlertDelay); err != nil {
			return e.outcome(doc, StatusTerminal, "espera interrumpida: "+err.Error())
		}
	}
	return e.outcome(doc, StatusRetryable, "reenvío sin alerta")
}

// retry counts the attempt and applies the correction for step. The count
// stands even when the correction fails, so a resumed document cannot
// exceed MaxRetries.
func (e *Engine) retry(ctx context.Context, doc *Document, step Outcome) error {
	before := doc.Model
	doc.State.Retries++
	if step.Code != classify.Unknown {
		if err := e.form.Correct(ctx, doc, step.Code); err != nil {
			return err
		}
	}

	var changed []string
	for _, r := range doc.Model.Diff(before) {
		changed = append(changed, r.ID())
	}
	msg := step.Reason
	if doc.State.Surcharge > 0 {
		msg = fmt.Sprintf("%s | flete $%d", msg, doc.State.Surcharge)
	}
	e.env.note(e.env.Events.Retry(doc.Code, doc.State.Retries, msg,
		eventlog.ErrorCode(codeToken(step.Code)),
		eventlog.Surcharge(doc.State.Surcharge),
		eventlog.Changed(changed...)))
	e.env.Log.Info("%s: retry %d/%d (%s)", doc.Code, doc.State.Retries, e.opts.MaxRetries, msg)
	return nil
}

func codeToken(c classify.Code) string {
	if c == classify.Unknown {
		return ""
	}
	return c.String()
}

// settle converts a form error into an outcome or a fault.
func (e *Engine) settle(ctx context.Context, doc *Document, op string, err error) (Outcome, error) {
	var stop *Stop
	switch {
	case errors.As(err, &stop):
		out := e.outcome(doc, StatusTerminal, stop.Error())
		out.Mark = stop.Mark
		e.finish(doc, out)
		return out, nil
	case ctx.Err() != nil:
		return Outcome{}, ctx.Err()
	case recovery.IsInfrastructure(err):
		e.env.Log.Error("%s: infrastructure failure during %s: %v", doc.Code, op, err)
		return Outcome{}, &Fault{Op: op, Code: doc.Code, Err: err}
	}
	out := e.outcome(doc, StatusTerminal, fmt.Sprintf("%s: %v", op, err))
	e.env.note(e.env.Events.Exception(doc.Code, err, "Error procesando documento"))
	e.env.Log.Error("%s: %s failed: %v", doc.Code, op, err)
	return out, nil
}

func (e *Engine) finish(doc *Document, out Outcome) {
	opts := []eventlog.Option{
		eventlog.Retry(out.Retries),
		eventlog.Surcharge(out.Surcharge),
		eventlog.ErrorCode(codeToken(out.Code)),
	}
	if out.Succeeded() {
		e.env.note(e.env.Events.Success(doc.Code, out.Reason, opts...))
		e.env.Log.Info("%s: %s (retries=%d surcharge=%d)", doc.Code, out.Reason, out.Retries, out.Surcharge)
		return
	}
	e.env.note(e.env.Events.Error(doc.Code, out.Reason, opts...))
	e.env.Log.Warn("%s: %s", doc.Code, out.Reason)
}
