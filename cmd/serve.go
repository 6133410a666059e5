package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"docmirror/internal/app"
)

const stopTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Follow the source change feed and keep the mirror current",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	slog.SetDefault(a.Logger)

	a.Logger.Info("starting change feed listener",
		"database", a.Config.CouchDBDatabase,
		"prefixes", a.Config.AllowedPrefixes())

	a.Listener.Start(ctx)

	<-ctx.Done()
	a.Logger.Info("shutting down")
	if err := a.Listener.Stop(stopTimeout); err != nil {
		return fmt.Errorf("shutdown incomplete: %w", err)
	}
	return nil
}
