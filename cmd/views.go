package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"docmirror/internal/app"
)

var viewsCmd = &cobra.Command{
	Use:   "views <slug> [slug...]",
	Short: "Show view counts for posts",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runViews(cmd.Context(), args)
	},
}

func init() {
	rootCmd.AddCommand(viewsCmd)
}

func runViews(ctx context.Context, slugs []string) error {
	a, err := app.Setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	counts, err := a.Views.Counts(ctx, slugs)
	if err != nil {
		return err
	}
	for _, slug := range slugs {
		fmt.Printf("%s\t%d\n", slug, counts[slug])
	}
	return nil
}
