// Package cmd provides the inkwell CLI.
//
// Commands:
//   - serve: HTTP API server
//   - mcp: Model Context Protocol server on stdio
//   - generate, update, search, view, reconcile: one-shot operations
//     against the same stores the server uses
//   - version: build information
//
// Every command loads configuration the same way (env > config file >
// defaults) and handles SIGINT/SIGTERM via context cancellation.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/inkops/inkwell/internal/app"
	"github.com/inkops/inkwell/internal/config"
	"github.com/inkops/inkwell/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "inkwell",
	Short: "Inkwell generates and maintains living documentation",
	Long: `Inkwell turns source material into versioned documents, keeps them
current through instructed LLM revisions, and indexes every committed
version for semantic search.

Run "inkwell serve" for the HTTP API or "inkwell mcp" to expose the
read-only tools to MCP clients.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// newLogger builds the process logger from the configured level.
func newLogger(cfg *config.Config) *slog.Logger {
	logger := log.New(log.Config{Level: log.ParseLevel(cfg.LogLevel)})
	slog.SetDefault(logger)
	return logger
}

// withApp loads config, assembles the application, runs fn under a
// signal-aware context, and tears everything down afterwards. The
// one-shot commands all share this frame.
func withApp(fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := newLogger(cfg)

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
