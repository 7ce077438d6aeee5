package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"autorndc/internal/batch"
)

// Controls is the subset of batch.Control the model drives.
type Controls interface {
	Pause()
	Resume()
	Cancel()
	Paused() bool
}

// StatusMsg carries a runner progress update.
type StatusMsg batch.Status

// HoldMsg reports that the run is waiting for the operator.
type HoldMsg struct{ Reason string }

// DoneMsg ends the run.
type DoneMsg struct {
	Report batch.Report
	Err    error
}

// maxLines bounds the status log kept in memory.
const maxLines = 500

// RunModel shows a running batch.
type RunModel struct {
	title    string
	styles   Styles
	controls Controls
	updates  <-chan tea.Msg

	spinner  spinner.Model
	progress progress.Model
	viewport viewport.Model

	lines   []string
	current string
	index   int
	pending int
	held    string
	done    bool
	report  batch.Report
	err     error
	width   int
}

// NewRunModel reads updates until a DoneMsg arrives.
func NewRunModel(title string, controls Controls, updates <-chan tea.Msg, styles Styles) RunModel {
	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.Spinner))
	return RunModel{
		title:    title,
		styles:   styles,
		controls: controls,
		updates:  updates,
		spinner:  sp,
		progress: progress.New(progress.WithDefaultGradient(), progress.WithWidth(60)),
		viewport: viewport.New(80, 12),
		width:    80,
	}
}

func (m RunModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.next())
}

func (m RunModel) next() tea.Cmd {
	ch := m.updates
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

func (m *RunModel) logf(format string, args ...interface{}) {
	line := time.Now().Format("15:04:05") + " " + fmt.Sprintf(format, args...)
	m.lines = append(m.lines, line)
	if len(m.lines) > maxLines {
		m.lines = m.lines[len(m.lines)-maxLines:]
	}
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

func (m RunModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.viewport.Width = msg.Width - 4
		if h := msg.Height - 10; h > 3 {
			m.viewport.Height = h
		}
		if w := msg.Width - 10; w > 10 {
			m.progress.Width = w
		}
		return m, nil

	case tea.KeyMsg:
		return m.onKey(msg)

	case StatusMsg:
		if msg.Code != "" {
			m.current = msg.Code
		}
		if msg.Index > 0 {
			m.index = msg.Index
		}
		if msg.Pending > 0 {
			m.pending = msg.Pending
		}
		if msg.Message != "" {
			m.logf("%s", msg.Message)
		}
		return m, m.next()

	case HoldMsg:
		m.held = msg.Reason
		m.logf("En pausa: %s (r para reanudar)", msg.Reason)
		return m, m.next()

	case DoneMsg:
		m.done = true
		m.report = msg.Report
		m.err = msg.Err
		m.current = ""
		return m, nil

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m RunModel) onKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "p":
		if !m.done && !m.controls.Paused() {
			m.controls.Pause()
			m.logf("Pausa solicitada, se detiene al terminar el documento actual")
		}
	case "r":
		if !m.done && m.controls.Paused() {
			m.controls.Resume()
			m.held = ""
			m.logf("Reanudado")
		}
	case "c", "ctrl+c":
		if m.done {
			return m, tea.Quit
		}
		m.controls.Cancel()
		m.logf("Cancelación solicitada, se detiene al terminar el documento actual")
	case "q", "esc":
		if m.done {
			return m, tea.Quit
		}
	default:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

// Done reports whether the run finished.
func (m RunModel) Done() bool { return m.done }

// Percent is the share of pending documents started.
func (m RunModel) Percent() float64 {
	if m.done {
		return 1
	}
	if m.pending == 0 {
		return 0
	}
	return float64(m.index-1) / float64(m.pending)
}

func (m RunModel) View() string {
	var b strings.Builder
	b.WriteString(m.styles.Header.Render(m.title))
	b.WriteString("\n\n")

	switch {
	case m.done:
		b.WriteString(m.styles.Report.Render(ReportText(m.report, m.err, m.styles)))
	case m.held != "":
		b.WriteString(m.styles.Warning.Render("EN PAUSA: " + m.held))
	case m.controls.Paused():
		b.WriteString(m.styles.Warning.Render("EN PAUSA"))
	case m.current != "":
		b.WriteString(fmt.Sprintf("%s %s %s", m.spinner.View(),
			m.styles.Current.Render(m.current), m.styles.Muted.Render(fmt.Sprintf("(%d/%d)", m.index, m.pending))))
	default:
		b.WriteString(m.spinner.View() + " Iniciando...")
	}
	b.WriteString("\n\n")
	b.WriteString(m.progress.ViewAs(m.Percent()))
	b.WriteString("\n")
	b.WriteString(m.styles.Log.Render(m.viewport.View()))
	b.WriteString("\n")

	help := "p pausar • r reanudar • c cancelar"
	if m.done {
		help = "q salir"
	}
	b.WriteString(m.styles.Footer.Render(help))
	return b.String()
}

// ReportText renders the final counts.
func ReportText(rep batch.Report, err error, s Styles) string {
	var b strings.Builder
	state := s.Success.Render("Completado")
	switch {
	case rep.Aborted:
		state = s.Error.Render("Abortado")
	case rep.Cancelled:
		state = s.Warning.Render("Cancelado")
	}
	fmt.Fprintf(&b, "%s  %s\n", state, s.Muted.Render(rep.Duration.Round(time.Second).String()))
	fmt.Fprintf(&b, "Total: %d  Omitidos: %d\n", rep.Total, rep.Skipped)
	fmt.Fprintf(&b, "%s %d  %s %d  %s %d",
		s.Success.Render("Exitosos:"), rep.Succeeded,
		s.Error.Render("Fallidos:"), rep.Failed,
		s.Warning.Render("Con alertas:"), rep.Alerts)
	if err != nil {
		fmt.Fprintf(&b, "\n%s", s.Error.Render(err.Error()))
	}
	return b.String()
}
