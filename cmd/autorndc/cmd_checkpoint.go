package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"autorndc/internal/checkpoint"
	"autorndc/internal/fields"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect or reset the processed-code checkpoint",
}

var checkpointShowCmd = &cobra.Command{
	Use:   "show remesas|manifiestos",
	Short: "List the codes already processed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, kind, err := openCheckpoint(args[0])
		if err != nil {
			return err
		}
		defer store.Close()

		codes := store.Codes()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%d %s procesados\n", len(codes), kind.Slug())
		for _, c := range codes {
			fmt.Fprintln(out, c)
		}
		return nil
	},
}

var checkpointClearCmd = &cobra.Command{
	Use:   "clear remesas|manifiestos",
	Short: "Forget every processed code so the next run starts over",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, kind, err := openCheckpoint(args[0])
		if err != nil {
			return err
		}
		defer store.Close()

		n := len(store.Codes())
		if err := store.Clear(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Checkpoint de %s borrado (%d códigos)\n", kind.Slug(), n)
		return nil
	},
}

func init() {
	checkpointCmd.AddCommand(checkpointShowCmd, checkpointClearCmd)
}

func openCheckpoint(arg string) (checkpoint.Store, fields.Kind, error) {
	kind, err := fields.ParseKind(arg)
	if err != nil {
		return nil, kind, err
	}
	store, err := checkpoint.Open(checkpoint.Backend(cfg.Checkpoint.Backend), cfg.Paths.CheckpointDir, kind.Slug())
	return store, kind, err
}
