package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/inkops/inkwell/internal/api"
	"github.com/inkops/inkwell/internal/app"
)

// Server timeout configuration.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 2 * time.Minute // generation requests hold the connection
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the JSON API server. Endpoints live under /api/v1; /health and
/ready serve probes. The reconciliation janitor runs in-process when
janitor_interval_secs is set.`,
	Args: cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:8080", "listen address (host:port)")
	rootCmd.AddCommand(serveCmd)
}

// parseRateBurst reads INKWELL_RATE_BURST from the environment.
// Returns 0 (use default) when unset or invalid.
func parseRateBurst() int {
	v := os.Getenv("INKWELL_RATE_BURST")
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// trustProxy reads INKWELL_TRUST_PROXY. Only enable behind a reverse
// proxy that overwrites the forwarding headers.
func trustProxy() bool {
	switch os.Getenv("INKWELL_TRUST_PROXY") {
	case "1", "true", "yes":
		return true
	}
	return false
}

func runServe() error {
	if err := validateAddr(serveAddr); err != nil {
		return fmt.Errorf("invalid address %q: %w", serveAddr, err)
	}

	return withApp(func(ctx context.Context, a *app.App) error {
		logger := a.Logger
		logger.Info("starting HTTP API server", "version", Version)

		apiServer, err := api.NewServer(api.ServerConfig{
			Logger:     logger,
			Generator:  a.Generator,
			Maintainer: a.Maintainer,
			Docs:       a.Docs,
			Searcher:   a.Searcher,
			Sync:       a.Coordinator,
			Pool:       a.Pool,
			TrustProxy: trustProxy(),
			RateBurst:  parseRateBurst(),
			TopK:       a.Config.TopK,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}

		srv := &http.Server{
			Addr:              serveAddr,
			Handler:           apiServer.Handler(),
			ReadHeaderTimeout: readHeaderTimeout,
			ReadTimeout:       readTimeout,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       idleTimeout,
		}

		logger.Info("HTTP server ready",
			"addr", serveAddr,
			"api", "/api/v1/*",
			"health", "/health, /ready",
		)

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.ListenAndServe()
		}()

		select {
		case <-ctx.Done():
			logger.Info("shutting down HTTP server")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutting down server: %w", err)
			}
			<-errCh
			return nil
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("HTTP server: %w", err)
		}
	})
}
