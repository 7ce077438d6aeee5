package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"autorndc/internal/update"
)

var versionCheck bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and optionally check for a newer release",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "autorndc %s\n", version)
		if !versionCheck {
			return nil
		}
		res, err := update.NewChecker(cfg.Update.URL).Check(cmd.Context(), version)
		if err != nil {
			return fmt.Errorf("update check: %w", err)
		}
		if !res.Available {
			fmt.Fprintln(out, "Está usando la última versión")
			return nil
		}
		fmt.Fprintf(out, "Nueva versión disponible: %s\n%s\n", res.Latest, res.URL)
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionCheck, "check", false, "Query the release feed for a newer version")
}
