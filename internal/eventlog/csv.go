package eventlog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// maxStackTrace bounds the StackTrace column.
const maxStackTrace = 500

// Header is the column layout of the event CSV.
var Header = []string{
	"Timestamp", "TipoProceso", "TipoEvento", "Codigo", "Mensaje",
	"CodigoError", "Reintento", "ValorFlete", "CamposModificados", "StackTrace",
}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// CSVSink appends one row per event.
type CSVSink struct {
	mu   sync.Mutex
	path string
	f    *os.File
	w    *csv.Writer
}

// OpenCSV opens or creates path, writing the header to new files.
func OpenCSV(path string) (*CSVSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	_, statErr := os.Stat(path)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event csv: %w", err)
	}
	s := &CSVSink{path: path, f: f, w: csv.NewWriter(f)}
	if os.IsNotExist(statErr) {
		if err := s.writeRow(Header); err != nil {
			f.Close()
			return nil, err
		}
	}
	return s, nil
}

// Path returns the file being written.
func (s *CSVSink) Path() string { return s.path }

func (s *CSVSink) writeRow(row []string) error {
	if err := s.w.Write(row); err != nil {
		return fmt.Errorf("write event csv: %w", err)
	}
	s.w.Flush()
	return s.w.Error()
}

func (s *CSVSink) Write(ev Event) error {
	changed, err := json.MarshalToString(ev.ChangedFields)
	if err != nil {
		return fmt.Errorf("encode changed fields: %w", err)
	}
	stack := ev.StackTrace
	if len(stack) > maxStackTrace {
		stack = stack[:maxStackTrace]
	}
	row := []string{
		ev.Timestamp.Format(time.RFC3339),
		ev.Process,
		string(ev.Type),
		ev.Code,
		ev.Message,
		ev.ErrorCode,
		strconv.Itoa(ev.Retry),
		strconv.FormatInt(ev.Surcharge, 10),
		changed,
		stack,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeRow(row)
}

func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Flush()
	return s.f.Close()
}

// FieldsCSV is the field snapshot log: one row per alert with the value of
// every form field, headed by the field ids of the first snapshot.
type FieldsCSV struct {
	path string
	now  func() time.Time
}

// NewFieldsCSV writes snapshots to path.
func NewFieldsCSV(path string) *FieldsCSV {
	return &FieldsCSV{path: path, now: time.Now}
}

func (f *FieldsCSV) Snapshot(code, message string, pairs [][2]string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	_, statErr := os.Stat(f.path)
	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open snapshot csv: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if os.IsNotExist(statErr) {
		header := []string{"Timestamp", "Codigo", "Mensaje"}
		for _, p := range pairs {
			header = append(header, p[0])
		}
		if err := w.Write(header); err != nil {
			return err
		}
	}
	row := []string{f.now().Format("2006-01-02 15:04:05"), code, message}
	for _, p := range pairs {
		row = append(row, p[1])
	}
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// Paths returns the event CSV, event JSON and snapshot CSV file names for a
// run started at t.
func Paths(dir, slug string, t time.Time) (csvPath, jsonPath, snapshotPath string) {
	stamp := t.Format("2006-01-02_15-04-05")
	csvPath = filepath.Join(dir, fmt.Sprintf("eventos_%s_%s.csv", slug, stamp))
	jsonPath = filepath.Join(dir, fmt.Sprintf("eventos_%s_%s.json", slug, stamp))
	snapshotPath = filepath.Join(dir, fmt.Sprintf("log_%s_%s.csv", slug, stamp))
	return
}
