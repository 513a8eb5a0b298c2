package docsync

import (
	"context"
	"log/slog"
	"time"
)

// DefaultJanitorInterval is used when NewJanitor receives a non-positive
// interval. Serving code treats a zero configured interval as "janitor off"
// and should not construct one at all.
const DefaultJanitorInterval = 15 * time.Minute

// Janitor periodically reconciles the whole index against the document
// store, cleaning up what failed sweeps and crashed syncs left behind.
type Janitor struct {
	coordinator *Coordinator
	interval    time.Duration
	logger      *slog.Logger
}

// NewJanitor creates a janitor running ReconcileAll once per interval.
func NewJanitor(coordinator *Coordinator, interval time.Duration, logger *slog.Logger) *Janitor {
	if interval <= 0 {
		interval = DefaultJanitorInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		coordinator: coordinator,
		interval:    interval,
		logger:      logger,
	}
}

// Run blocks until ctx is canceled, reconciling once per interval. Callers
// must track the goroutine with a WaitGroup.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

// runOnce executes a single reconciliation pass.
func (j *Janitor) runOnce(ctx context.Context) {
	results, err := j.coordinator.ReconcileAll(ctx)
	if err != nil {
		j.logger.Warn("index reconciliation incomplete", "error", err)
	}
	if len(results) > 0 {
		j.logger.Info("index repairs applied", "count", len(results))
	}
}
