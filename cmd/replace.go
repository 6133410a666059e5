package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"docmirror/internal/app"
	"docmirror/internal/ingest"
)

var replaceCmd = &cobra.Command{
	Use:   "replace <items.json>",
	Short: "Replace the batch namespace with the items in a JSON file",
	Long: `Replace reconciles the batch namespace against a JSON array of items:

  [{"slug": "cv", "title": "CV", "content": "...", "metadata": {...}}, ...]

Items whose content hash is unchanged are skipped without re-embedding,
changed items are embedded and upserted, and previously stored items absent
from the file are removed. The whole batch commits in one transaction.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReplace(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(replaceCmd)
}

func runReplace(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %q: %w", path, err)
	}

	var items []ingest.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("failed to parse %q: %w", path, err)
	}

	a, err := app.Setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.Pipeline.ReplaceNamespace(ctx, items)
	if err != nil {
		return fmt.Errorf("batch replace failed: %w", err)
	}

	fmt.Printf("Batch complete\n")
	fmt.Printf("  processed: %d\n", result.Processed)
	fmt.Printf("  updated:   %d\n", result.Updated)
	fmt.Printf("  skipped:   %d\n", result.Skipped)
	for _, e := range result.Errors {
		fmt.Printf("  error:     %s: %v\n", e.Slug, e.Err)
	}
	return nil
}
