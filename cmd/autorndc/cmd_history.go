package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"autorndc/internal/history"
)

var (
	historyLimit int
	historyRun   string
	historyRaw   bool
)

// historyCmd lists past runs, or the documents of one run.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := history.NewStore(cfg.History.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		md, err := historyMarkdown(cmd.Context(), store)
		if err != nil {
			return err
		}
		if !historyRaw {
			md = renderMarkdown(md)
		}
		fmt.Fprintln(cmd.OutOrStdout(), md)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to show")
	historyCmd.Flags().StringVar(&historyRun, "run", "", "Show the documents of one run")
	historyCmd.Flags().BoolVar(&historyRaw, "raw", false, "Print markdown without terminal styling")
}

func historyMarkdown(ctx context.Context, store *history.Store) (string, error) {
	var b strings.Builder
	if historyRun != "" {
		docs, err := store.Documents(ctx, historyRun)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "# Ejecución `%s`\n\n", historyRun)
		if len(docs) == 0 {
			b.WriteString("Sin documentos registrados\n")
			return b.String(), nil
		}
		b.WriteString("| Código | Estado | Error | Reintentos | Motivo |\n|---|---|---|---:|---|\n")
		for _, d := range docs {
			fmt.Fprintf(&b, "| %s | %s | %s | %d | %s |\n",
				cell(d.Code), d.Status, cell(d.ErrorCode), d.Retries, cell(d.Reason))
		}
		return b.String(), nil
	}

	runs, err := store.Runs(ctx, historyLimit)
	if err != nil {
		return "", err
	}
	b.WriteString("# Historial\n\n")
	if len(runs) == 0 {
		b.WriteString("Sin ejecuciones registradas\n")
		return b.String(), nil
	}
	b.WriteString("| ID | Tipo | Inicio | Total | OK | Fallidos | Alertas | Estado | Duración |\n")
	b.WriteString("|---|---|---|---:|---:|---:|---:|---|---|\n")
	for _, r := range runs {
		fmt.Fprintf(&b, "| `%s` | %s | %s | %d | %d | %d | %d | %s | %s |\n",
			r.ID, r.Kind, r.Started.Format("2006-01-02 15:04"), r.Total, r.Succeeded, r.Failed, r.Alerts,
			runState(r), r.Duration.Round(time.Second))
	}
	return b.String(), nil
}

// cell keeps portal messages from breaking the table row.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}

func runState(r history.Run) string {
	switch {
	case r.Aborted:
		return "abortado"
	case r.Cancelled:
		return "cancelado"
	default:
		return "completo"
	}
}
