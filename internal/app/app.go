// Package app assembles the service: configuration, tracing, database,
// Genkit, the agents, and the sync machinery. Setup builds everything
// in dependency order and Close tears it down in reverse.
package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inkops/inkwell/internal/agent"
	"github.com/inkops/inkwell/internal/config"
	"github.com/inkops/inkwell/internal/docsync"
	"github.com/inkops/inkwell/internal/document"
	"github.com/inkops/inkwell/internal/ingest"
	"github.com/inkops/inkwell/internal/vector"
)

// closeTimeout bounds the trace flush during shutdown.
const closeTimeout = 5 * time.Second

// App is the assembled service.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Genkit *genkit.Genkit
	Pool   *pgxpool.Pool

	Docs        *document.Store
	Embedder    *vector.Embedder
	Searcher    *vector.Searcher
	Coordinator *docsync.Coordinator
	Generator   *agent.Generator
	Maintainer  *agent.Maintainer
	Fetcher     *ingest.Fetcher

	// bgCancel stops the janitor and pending background sweeps.
	bgCancel  context.CancelFunc
	janitorWG sync.WaitGroup

	traceShutdown func(context.Context) error
}

// Close releases everything Setup built: background work first so
// nothing touches the pool after it closes, then the pool, then the
// trace flush. Safe on a partially initialized App.
func (a *App) Close() error {
	if a.bgCancel != nil {
		a.bgCancel()
	}
	a.janitorWG.Wait()
	if a.Coordinator != nil {
		a.Coordinator.Wait()
	}

	if a.Pool != nil {
		a.Pool.Close()
	}

	if a.traceShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := a.traceShutdown(ctx); err != nil {
			a.logger().Warn("flushing traces", "error", err)
		}
	}

	a.logger().Info("application closed")
	return nil
}

func (a *App) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}
