// Package cmd defines the command line interface. main.go stays minimal;
// all command routing lives here.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "docmirror",
	Short: "Searchable vector mirror of a chunked document store",
	Long: `docmirror maintains a continuously updated, semantically searchable
mirror of a CouchDB document store in Postgres with pgvector.

It follows the source change feed, reassembles chunked documents, embeds
their content, and serves ranked retrieval and grounded chat over the
resulting index.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
