// Package batch runs a list of document codes through the engine, with
// checkpointing, operator pause/cancel and portal outage recovery.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"autorndc/internal/checkpoint"
	"autorndc/internal/engine"
	"autorndc/internal/eventlog"
	"autorndc/internal/fields"
	"autorndc/internal/logging"
)

var (
	// ErrCancelled ends a held document when the operator cancels.
	ErrCancelled = errors.New("run cancelled")
	// ErrAborted is returned by Run when the portal could not be recovered.
	ErrAborted = errors.New("run aborted: portal not recovered")
)

// DefaultDocumentAttempts bounds infrastructure retries of one document.
const DefaultDocumentAttempts = 3

// Processor handles one document. engine.Engine satisfies it.
type Processor interface {
	Kind() fields.Kind
	Process(ctx context.Context, code string) (engine.Outcome, error)
}

// Recoverer blocks until the portal answers again.
type Recoverer interface {
	Recover(ctx context.Context) error
}

// forgetter is implemented by processors that keep per-code state across
// faults.
type forgetter interface {
	Forget(code string)
}

// Journal persists run history.
type Journal interface {
	RecordDocument(ctx context.Context, runID string, kind fields.Kind, code string, out engine.Outcome) error
	RecordRun(ctx context.Context, rep Report) error
}

// Report summarizes a run.
type Report struct {
	RunID     string
	Kind      fields.Kind
	Started   time.Time
	Total     int
	Skipped   int
	Succeeded int
	// Alerts counts documents that saw at least one portal alert.
	Alerts    int
	Failed    int
	Cancelled bool
	Aborted   bool
	Duration  time.Duration
}

// Processed is the number of documents attempted in this run.
func (r Report) Processed() int { return r.Succeeded + r.Failed }

// Status is a progress notification.
type Status struct {
	Time    time.Time
	Code    string
	Index   int // 1-based position among pending codes
	Pending int
	Done    bool
	Message string
}

// Runner drives one batch. Zero-value optional fields are filled in by Run.
type Runner struct {
	Processor  Processor
	Checkpoint checkpoint.Store
	Control    *Control
	Recoverer  Recoverer
	// Reconnect opens a fresh browser session and logs in again after a
	// successful recovery.
	Reconnect        func(ctx context.Context) error
	DocumentAttempts int
	Log              *logging.Logger
	Events           *eventlog.Recorder
	Journal          Journal
	OnStatus         func(Status)
	Now              func() time.Time
	// Abort, when set, interrupts the document in flight once cancelled.
	// Cancelling Run's context or the Control only stops the run at the next
	// document boundary.
	Abort context.Context
}

func (r *Runner) defaults() {
	if r.Control == nil {
		r.Control = NewControl()
	}
	if r.DocumentAttempts <= 0 {
		r.DocumentAttempts = DefaultDocumentAttempts
	}
	if r.Log == nil {
		r.Log = logging.Nop().Get(logging.CategoryBatch)
	}
	if r.Events == nil {
		r.Events = eventlog.NewRecorder(r.Processor.Kind())
	}
	if r.Now == nil {
		r.Now = time.Now
	}
}

func (r *Runner) status(s Status) {
	s.Time = r.Now()
	r.Log.Debug("status: %s", s.Message)
	if r.OnStatus != nil {
		r.OnStatus(s)
	}
}

// Run processes codes in order. The checkpoint is cleared only when every
// pending code was attempted. Cancellation, through ctx or the Control, is
// observed between documents: the document in flight is finished and
// counted. The error is non-nil only when the run was aborted by an
// unrecovered outage or by Abort.
func (r *Runner) Run(ctx context.Context, codes []string) (Report, error) {
	r.defaults()
	kind := r.Processor.Kind()
	rep := Report{RunID: uuid.NewString(), Kind: kind, Started: r.Now(), Total: len(codes)}
	log := r.Log.With("run", rep.RunID)

	pending := codes
	if r.Checkpoint != nil {
		pending = r.Checkpoint.Pending(codes)
	}
	rep.Skipped = len(codes) - len(pending)
	if rep.Skipped > 0 {
		msg := fmt.Sprintf("Reanudando: %d de %d %s ya procesados, %d pendientes",
			rep.Skipped, len(codes), kind.Slug(), len(pending))
		log.Info("%s", msg)
		r.note(r.Events.Info("", msg))
		r.status(Status{Pending: len(pending), Message: msg})
	}

	var runErr error
loop:
	for i, code := range pending {
		if r.stopped(ctx) {
			rep.Cancelled = true
			break
		}
		if err := r.Control.Wait(ctx); err != nil {
			rep.Cancelled = true
			break
		}
		if r.stopped(ctx) {
			rep.Cancelled = true
			break
		}

		r.status(Status{Code: code, Index: i + 1, Pending: len(pending),
			Message: fmt.Sprintf("Procesando %s (%d/%d)", code, i+1, len(pending))})

		docCtx, release := r.documentContext(ctx)
		out, err := r.document(ctx, docCtx, code)
		release()
		switch {
		case errors.Is(err, ErrAborted):
			rep.Aborted = true
			runErr = err
			log.Error("%s: %v", code, err)
			break loop
		case err != nil:
			rep.Cancelled = true
			runErr = err
			break loop
		}

		r.tally(&rep, out)
		if out.Checkpoint() && r.Checkpoint != nil {
			if err := r.Checkpoint.Mark(code); err != nil {
				log.Error("checkpoint %s: %v", code, err)
			}
		}
		if r.Journal != nil {
			if err := r.Journal.RecordDocument(context.WithoutCancel(ctx), rep.RunID, kind, code, out); err != nil {
				log.Warn("history %s: %v", code, err)
			}
		}
		r.status(Status{Code: code, Index: i + 1, Pending: len(pending),
			Message: fmt.Sprintf("%s: %s", code, out.Reason)})
	}

	if !rep.Cancelled && !rep.Aborted && r.Checkpoint != nil {
		if err := r.Checkpoint.Clear(); err != nil {
			log.Error("clear checkpoint: %v", err)
		}
	}
	rep.Duration = r.Now().Sub(rep.Started)

	if r.Journal != nil {
		// The run context may already be cancelled; history still gets the row.
		if err := r.Journal.RecordRun(context.WithoutCancel(ctx), rep); err != nil {
			log.Warn("history run: %v", err)
		}
	}
	r.status(Status{Pending: len(pending), Done: true, Message: summary(rep)})
	log.Info("%s", summary(rep))
	return rep, runErr
}

func (r *Runner) stopped(ctx context.Context) bool {
	return r.Control.Cancelled() || ctx.Err() != nil
}

// documentContext keeps ctx's values but not its cancellation, so a stop
// request never lands mid-submission. Only Abort ends it.
func (r *Runner) documentContext(ctx context.Context) (context.Context, func()) {
	doc := context.WithoutCancel(ctx)
	if r.Abort == nil {
		return doc, func() {}
	}
	doc, cancel := context.WithCancel(doc)
	stop := context.AfterFunc(r.Abort, cancel)
	return doc, func() {
		stop()
		cancel()
	}
}

func (r *Runner) note(err error) {
	if err != nil {
		r.Log.Warn("event log: %v", err)
	}
}

func (r *Runner) tally(rep *Report, out engine.Outcome) {
	if out.Alerted {
		rep.Alerts++
	}
	if out.Succeeded() {
		rep.Succeeded++
		return
	}
	rep.Failed++
}

// document processes one code under docCtx, recovering the session on
// faults. Recovery waits stop when ctx is cancelled.
func (r *Runner) document(ctx, docCtx context.Context, code string) (engine.Outcome, error) {
	var last error
	for attempt := 1; attempt <= r.DocumentAttempts; attempt++ {
		out, err := r.safeProcess(docCtx, code)
		var fault *engine.Fault
		if !errors.As(err, &fault) {
			return out, err
		}
		last = fault
		r.Log.Warn("%s: attempt %d/%d failed: %v", code, attempt, r.DocumentAttempts, fault)
		r.note(r.Events.Exception(code, fault, fmt.Sprintf("Fallo de conexión (intento %d/%d)", attempt, r.DocumentAttempts)))

		if err := r.recover(ctx, code); err != nil {
			r.forget(code)
			return engine.Outcome{}, err
		}
	}
	r.forget(code)

	reason := fmt.Sprintf("falló tras %d intentos: %v", r.DocumentAttempts, last)
	r.note(r.Events.Error(code, reason))
	return engine.Outcome{Status: engine.StatusTerminal, Reason: reason}, nil
}

func (r *Runner) forget(code string) {
	if f, ok := r.Processor.(forgetter); ok {
		f.Forget(code)
	}
}

// recover waits for the portal and rebuilds the session. A failed
// reconnect is logged and left to the next attempt.
func (r *Runner) recover(ctx context.Context, code string) error {
	if r.Recoverer != nil {
		r.status(Status{Code: code, Message: "Servidor no disponible, esperando recuperación"})
		if err := r.Recoverer.Recover(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.note(r.Events.Error(code, "No se pudo recuperar la conexión: "+err.Error()))
			return fmt.Errorf("%w: %v", ErrAborted, err)
		}
	}
	if r.Reconnect != nil {
		if err := r.Reconnect(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.Log.Error("reconnect: %v", err)
		}
	}
	return nil
}

// safeProcess turns a panic in the processor into a terminal outcome.
func (r *Runner) safeProcess(ctx context.Context, code string) (out engine.Outcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			perr := fmt.Errorf("panic: %v", p)
			r.Log.Error("%s: %v", code, perr)
			r.note(r.Events.Exception(code, perr, "Error inesperado"))
			out, err = engine.Outcome{Status: engine.StatusTerminal, Reason: perr.Error()}, nil
		}
	}()
	return r.Processor.Process(ctx, code)
}

func summary(rep Report) string {
	state := "completado"
	switch {
	case rep.Aborted:
		state = "abortado"
	case rep.Cancelled:
		state = "cancelado"
	}
	return fmt.Sprintf("Proceso %s: %d exitosos, %d fallidos, %d con alertas, %d omitidos de %d (%s)",
		state, rep.Succeeded, rep.Failed, rep.Alerts, rep.Skipped, rep.Total, rep.Duration.Round(time.Second))
}
