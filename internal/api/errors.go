package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/inkops/inkwell/internal/agent"
	"github.com/inkops/inkwell/internal/document"
	"github.com/inkops/inkwell/internal/vector"
)

// writeDomainError maps domain sentinels to HTTP statuses.
//
// Validation failures are the caller's fault (400). Lost version races
// surface as 409 so clients can re-read and retry. Agent errors wrap
// model failures and malformed model output alike; both are upstream
// faults, so they map to 502. Everything else is a plain 500 with the
// detail kept in logs, not the response.
func writeDomainError(w http.ResponseWriter, err error, logger *slog.Logger) {
	switch {
	case errors.Is(err, document.ErrNotFound),
		errors.Is(err, document.ErrVersionNotFound):
		WriteError(w, http.StatusNotFound, "not_found", "document or version not found", logger)

	case errors.Is(err, document.ErrVersionConflict):
		WriteError(w, http.StatusConflict, "version_conflict", "document changed concurrently, retry", logger)

	case errors.Is(err, document.ErrInvalidTitle),
		errors.Is(err, document.ErrInvalidType),
		errors.Is(err, document.ErrEmptyContent),
		errors.Is(err, document.ErrContentTooLong),
		errors.Is(err, agent.ErrEmptySource),
		errors.Is(err, agent.ErrEmptyInstruction),
		errors.Is(err, agent.ErrInstructionTooLong),
		errors.Is(err, vector.ErrEmptyQuery):
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error(), logger)

	case errors.Is(err, agent.ErrGeneration):
		logger.Error("generation failed", "error", err)
		WriteError(w, http.StatusBadGateway, "generation_failed", "document generation failed", logger)

	case errors.Is(err, agent.ErrMaintenance):
		logger.Error("maintenance failed", "error", err)
		WriteError(w, http.StatusBadGateway, "maintenance_failed", "document update failed", logger)

	default:
		logger.Error("request failed", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", logger)
	}
}
