package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"docmirror/internal/app"
)

var (
	searchLimit     int
	searchThreshold float32
	searchNav       bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run a semantic search against the index",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSearch(cmd.Context(), strings.Join(args, " "))
	},
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 5, "maximum number of results")
	searchCmd.Flags().Float32Var(&searchThreshold, "threshold", 0.3, "minimum cosine similarity")
	searchCmd.Flags().BoolVar(&searchNav, "nav", false, "pin navigation entries ahead of results")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(ctx context.Context, query string) error {
	a, err := app.Setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	search := a.Retrieval.Search
	if searchNav {
		search = a.Retrieval.SearchWithNavigation
	}

	results, err := search(ctx, query, searchLimit, searchThreshold)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}

	for i, r := range results {
		fmt.Printf("%d. %s (%.4f)\n", i+1, r.Title, r.Similarity)
		fmt.Printf("   slug: %s\n", r.Slug)
		snippet := r.Content
		if len(snippet) > 200 {
			snippet = snippet[:200] + "..."
		}
		fmt.Printf("   %s\n", snippet)
	}
	return nil
}
