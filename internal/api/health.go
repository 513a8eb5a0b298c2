package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// readinessTimeout bounds the database ping so a hung pool cannot stall
// the probe.
const readinessTimeout = 5 * time.Second

// probeHandler serves the liveness and readiness endpoints. They sit
// outside the middleware stack so probes stay cheap.
type probeHandler struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// health reports process liveness.
func (h *probeHandler) health(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"}, h.logger)
}

// ready reports whether the database is reachable, with pool counters
// for operators. Without a pool it degrades to a liveness answer.
func (h *probeHandler) ready(w http.ResponseWriter, r *http.Request) {
	if h.pool == nil {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"}, h.logger)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	if err := h.pool.Ping(ctx); err != nil {
		h.logger.Warn("readiness ping failed", "error", err)
		WriteError(w, http.StatusServiceUnavailable, "db_unavailable", "database not reachable", h.logger)
		return
	}

	stat := h.pool.Stat()
	WriteJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"pool": map[string]int32{
			"total":    stat.TotalConns(),
			"idle":     stat.IdleConns(),
			"acquired": stat.AcquiredConns(),
			"max":      stat.MaxConns(),
		},
	}, h.logger)
}
