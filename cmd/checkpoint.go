package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"docmirror/internal/app"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect or reset the change feed checkpoint",
}

var checkpointShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored feed position",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheckpointShow(cmd.Context())
	},
}

var checkpointResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the stored feed position so the listener restarts from now",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheckpointReset(cmd.Context())
	},
}

func init() {
	checkpointCmd.AddCommand(checkpointShowCmd)
	checkpointCmd.AddCommand(checkpointResetCmd)
	rootCmd.AddCommand(checkpointCmd)
}

func runCheckpointShow(ctx context.Context) error {
	a, err := app.Setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	seq, err := a.Checkpoints.Load(ctx)
	if err != nil {
		return err
	}
	fmt.Println(seq)
	return nil
}

func runCheckpointReset(ctx context.Context) error {
	a, err := app.Setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Checkpoints.Reset(ctx); err != nil {
		return err
	}
	fmt.Println("Checkpoint cleared.")
	return nil
}
