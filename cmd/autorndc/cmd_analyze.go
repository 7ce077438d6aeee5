package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"autorndc/internal/eventlog"
)

var analyzeRaw bool

// analyzeCmd summarizes a JSON event log from a previous run.
var analyzeCmd = &cobra.Command{
	Use:   "analyze <log.json>",
	Short: "Analyze the event log of a previous run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		events, err := eventlog.Load(args[0])
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return fmt.Errorf("%s: no events", args[0])
		}
		md := eventlog.Analyze(events).Markdown(filepath.Base(args[0]))
		if !analyzeRaw {
			md = renderMarkdown(md)
		}
		fmt.Fprintln(cmd.OutOrStdout(), md)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeRaw, "raw", false, "Print markdown without terminal styling")
}
