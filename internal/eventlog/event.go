// Package eventlog records per-document processing events to CSV and JSON
// files and analyses them afterwards.
package eventlog

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"autorndc/internal/fields"
)

// Type is the event category written to the TipoEvento column.
type Type string

const (
	TypeSuccess   Type = "EXITO"
	TypeAlert     Type = "ALERTA"
	TypeError     Type = "ERROR"
	TypeRetry     Type = "REINTENTO"
	TypeException Type = "EXCEPCION"
	TypeInfo      Type = "INFO"
)

// Event is one row of the event log. JSON keys match the files produced by
// earlier versions of the tool so old logs still load.
type Event struct {
	Timestamp     time.Time         `json:"timestamp"`
	Process       string            `json:"tipo_proceso"`
	Type          Type              `json:"tipo_evento"`
	Code          string            `json:"codigo"`
	Message       string            `json:"mensaje"`
	ErrorCode     string            `json:"codigo_error"`
	Retry         int               `json:"reintento"`
	Surcharge     int64             `json:"valor_flete"`
	ChangedFields []string          `json:"campos_modificados"`
	Extra         map[string]string `json:"datos_adicionales"`
	StackTrace    string            `json:"stack_trace"`
}

// Sink persists events.
type Sink interface {
	Write(Event) error
	Close() error
}

// Snapshotter receives the full field snapshot written alongside alerts.
type Snapshotter interface {
	Snapshot(code, message string, pairs [][2]string) error
}

// Recorder stamps and fans events out to its sinks. It is safe for
// concurrent use.
type Recorder struct {
	kind  fields.Kind
	now   func() time.Time
	sinks []Sink
	snap  Snapshotter

	mu     sync.Mutex
	events []Event
}

// NewRecorder returns a recorder for one document kind.
func NewRecorder(kind fields.Kind, sinks ...Sink) *Recorder {
	return &Recorder{kind: kind, now: time.Now, sinks: sinks}
}

// WithSnapshots attaches the legacy field snapshot writer.
func (r *Recorder) WithSnapshots(s Snapshotter) *Recorder {
	r.snap = s
	return r
}

// WithClock replaces the timestamp source.
func (r *Recorder) WithClock(now func() time.Time) *Recorder {
	r.now = now
	return r
}

// Option decorates an event before it is written.
type Option func(*Event)

// ErrorCode sets the CRE/CMA code column.
func ErrorCode(c string) Option { return func(e *Event) { e.ErrorCode = c } }

// Retry sets the retry number.
func Retry(n int) Option { return func(e *Event) { e.Retry = n } }

// Surcharge sets the additional freight value.
func Surcharge(v int64) Option { return func(e *Event) { e.Surcharge = v } }

// Changed lists modified field ids.
func Changed(ids ...string) Option {
	return func(e *Event) { e.ChangedFields = append(e.ChangedFields, ids...) }
}

// Extra adds a key/value to datos_adicionales.
func Extra(k, v string) Option {
	return func(e *Event) {
		if e.Extra == nil {
			e.Extra = make(map[string]string)
		}
		e.Extra[k] = v
	}
}

// Record writes one event to every sink. Sink failures are joined and
// returned; the event is kept in memory regardless.
func (r *Recorder) Record(t Type, code, message string, opts ...Option) error {
	ev := Event{
		Timestamp: r.now(),
		Process:   r.kind.String(),
		Type:      t,
		Code:      code,
		Message:   message,
	}
	for _, o := range opts {
		o(&ev)
	}
	if ev.ChangedFields == nil {
		ev.ChangedFields = []string{}
	}
	if ev.Extra == nil {
		ev.Extra = map[string]string{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	var errs []error
	for _, s := range r.sinks {
		if err := s.Write(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Recorder) Success(code, message string, opts ...Option) error {
	return r.Record(TypeSuccess, code, message, opts...)
}

func (r *Recorder) Alert(code, errorCode, message string, opts ...Option) error {
	return r.Record(TypeAlert, code, message, append(opts, ErrorCode(errorCode))...)
}

func (r *Recorder) Error(code, message string, opts ...Option) error {
	return r.Record(TypeError, code, message, opts...)
}

func (r *Recorder) Retry(code string, n int, message string, opts ...Option) error {
	return r.Record(TypeRetry, code, message, append(opts, Retry(n))...)
}

func (r *Recorder) Info(code, message string, opts ...Option) error {
	return r.Record(TypeInfo, code, message, opts...)
}

// Exception records err with the current goroutine's stack.
func (r *Recorder) Exception(code string, err error, message string, opts ...Option) error {
	stack := string(debug.Stack())
	opts = append(opts, func(e *Event) { e.StackTrace = fmt.Sprintf("%v\n%s", err, stack) })
	return r.Record(TypeException, code, fmt.Sprintf("%s: %v", message, err), opts...)
}

// Snapshot writes the legacy field snapshot row when a writer is attached.
func (r *Recorder) Snapshot(code, message string, pairs [][2]string) error {
	if r.snap == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap.Snapshot(code, message, pairs)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Stats summarises the recorded events.
func (r *Recorder) Stats() Stats {
	return Summarize(r.Events())
}

// Close closes every sink.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for _, s := range r.sinks {
		errs = append(errs, s.Close())
	}
	if c, ok := r.snap.(interface{ Close() error }); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
