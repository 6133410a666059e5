package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"docmirror/internal/app"
	"docmirror/internal/chat"
)

var (
	askLimit     int
	askThreshold float32
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question answered from indexed content",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAsk(cmd.Context(), strings.Join(args, " "))
	},
}

func init() {
	askCmd.Flags().IntVar(&askLimit, "limit", 5, "context chunks to retrieve")
	askCmd.Flags().Float32Var(&askThreshold, "threshold", 0.3, "minimum cosine similarity for context")
	rootCmd.AddCommand(askCmd)
}

func runAsk(ctx context.Context, question string) error {
	a, err := app.Setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	stream, err := a.Chat.Stream(ctx,
		[]chat.Message{{Role: chat.RoleUser, Content: question}},
		askLimit, askThreshold)
	if err != nil {
		return err
	}

	for chunk := range stream {
		fmt.Fprint(os.Stdout, chunk)
	}
	fmt.Println()
	return nil
}
