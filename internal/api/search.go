package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/inkops/inkwell/internal/vector"
)

// searchHandler serves semantic search over indexed chunks.
type searchHandler struct {
	searcher Searcher
	topK     int
	logger   *slog.Logger
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
	DocID string `json:"doc_id"` // optional scope to one document
}

type searchResponse struct {
	Query   string          `json:"query"`
	Results []vector.Result `json:"results"`
}

// search embeds the query and returns the nearest chunks. Unlike the
// document endpoints, a failing index here is a failing request: there
// is no durable write to fall back on, so embedding or query errors
// surface as 502.
func (h *searchHandler) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	opts := []vector.QueryOption{}
	switch {
	case req.TopK > 0:
		opts = append(opts, vector.WithTopK(req.TopK))
	case h.topK > 0:
		opts = append(opts, vector.WithTopK(h.topK))
	}
	if req.DocID != "" {
		docID, err := uuid.Parse(req.DocID)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_request", "doc_id must be a UUID", h.logger)
			return
		}
		opts = append(opts, vector.WithDocID(docID))
	}

	results, err := h.searcher.Search(r.Context(), req.Query, opts...)
	if err != nil {
		if errors.Is(err, vector.ErrEmptyQuery) {
			writeDomainError(w, err, h.logger)
			return
		}
		h.logger.Error("search failed", "error", err)
		WriteError(w, http.StatusBadGateway, "retrieval_failed", "search is unavailable", h.logger)
		return
	}

	if results == nil {
		results = []vector.Result{}
	}
	WriteJSON(w, http.StatusOK, searchResponse{Query: req.Query, Results: results}, h.logger)
}
