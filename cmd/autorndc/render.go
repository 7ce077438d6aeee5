package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	"autorndc/internal/batch"
	"autorndc/internal/eventlog"
	"autorndc/internal/fields"
)

// renderMarkdown renders md for the terminal, falling back to the raw text.
func renderMarkdown(md string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

// reportMarkdown is the end-of-run summary: the runner's document counts
// followed by the event statistics.
func reportMarkdown(rep batch.Report, stats eventlog.Stats, kind fields.Kind, files []string) string {
	var b strings.Builder
	state := "Completado"
	switch {
	case rep.Aborted:
		state = "Abortado: el portal no se recuperó"
	case rep.Cancelled:
		state = "Cancelado"
	}
	fmt.Fprintf(&b, "# %s: %s\n\n", kind.String(), state)
	b.WriteString("| Total | Omitidos | Exitosos | Fallidos | Con alertas | Duración |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %d | %s |\n\n",
		rep.Total, rep.Skipped, rep.Succeeded, rep.Failed, rep.Alerts, rep.Duration.Round(time.Second))
	if rep.RunID != "" {
		fmt.Fprintf(&b, "Ejecución `%s`\n\n", rep.RunID)
	}
	b.WriteString(stats.Markdown(kind.String(), files...))
	return b.String()
}
