// Package cmd contains the docqa CLI commands.
package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/docuquery/docqa/internal/app"
	"github.com/docuquery/docqa/internal/config"
	"github.com/docuquery/docqa/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "docqa",
	Short: "Document question answering over your own files",
	Long: `docqa ingests documents into a PostgreSQL vector store and answers
questions about them using retrieval-augmented generation.

Run "docqa serve" to start the HTTP API, or use "docqa ingest" and
"docqa ask" for one-shot operations from the terminal.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads and validates configuration, returning it with a
// logger built from its log settings.
func loadConfig() (*config.Config, log.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{
		Level: log.ParseLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})

	return cfg, logger, nil
}

// withApp loads configuration, sets the application up, runs fn, and
// tears everything down afterwards. The context is canceled on SIGINT
// and SIGTERM.
func withApp(fn func(ctx context.Context, a *app.App) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	return fn(ctx, a)
}
