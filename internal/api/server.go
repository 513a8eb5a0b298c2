// Package api provides the JSON HTTP API for inkwell.
//
// Endpoints (under /api/v1):
//
//	POST   /documents/generate        generate a document from source text
//	POST   /documents                 create a document from given content
//	GET    /documents                 list documents
//	GET    /documents/{id}            document head + current content
//	PUT    /documents/{id}            manual edit: content, title, or type
//	DELETE /documents/{id}            delete document, versions, and chunks
//	POST   /documents/{id}/update     instruct the maintenance agent
//	GET    /documents/{id}/history    version lineage
//	GET    /documents/{id}/versions/{n} one historical version
//	POST   /documents/{id}/audit      LLM consistency report
//	POST   /documents/{id}/reconcile  idempotent index repair
//	POST   /search                    semantic search over chunks
//
// /health and /ready sit outside the middleware stack so probes stay
// cheap. Errors use the envelope {"error": {"code", "message"}}.
//
// File structure:
//   - server.go: dependencies, routes, middleware stack
//   - documents.go: document lifecycle handlers
//   - search.go: semantic search handler
//   - health.go: liveness/readiness probes
//   - middleware.go, ratelimit.go, response.go: the ambient plumbing
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inkops/inkwell/internal/agent"
	"github.com/inkops/inkwell/internal/docsync"
	"github.com/inkops/inkwell/internal/document"
	"github.com/inkops/inkwell/internal/vector"
)

// Generator produces first-version document content. Satisfied by
// *agent.Generator.
type Generator interface {
	Generate(ctx context.Context, req agent.GenerateRequest) (*agent.GenerateResult, error)
}

// Maintainer revises and audits stored documents. Satisfied by
// *agent.Maintainer.
type Maintainer interface {
	Update(ctx context.Context, req agent.UpdateRequest) (*agent.UpdateResult, error)
	Audit(ctx context.Context, docID uuid.UUID) (*agent.AuditReport, error)
}

// DocumentStore is the document lineage surface the handlers read and
// write. Satisfied by *document.Store.
type DocumentStore interface {
	Create(ctx context.Context, params document.CreateParams) (*document.Document, error)
	AppendVersion(ctx context.Context, params document.AppendVersionParams) (*document.Version, error)
	UpdateMeta(ctx context.Context, docID uuid.UUID, title string, docType document.Type) (*document.Document, error)
	Get(ctx context.Context, docID uuid.UUID) (*document.Document, error)
	GetCurrent(ctx context.Context, docID uuid.UUID) (*document.Document, *document.Version, error)
	GetVersion(ctx context.Context, docID uuid.UUID, number int) (*document.Version, error)
	History(ctx context.Context, docID uuid.UUID) ([]*document.Version, error)
	List(ctx context.Context, params document.ListParams) ([]*document.Document, error)
	Delete(ctx context.Context, docID uuid.UUID) error
}

// Searcher answers semantic queries. Satisfied by *vector.Searcher.
type Searcher interface {
	Search(ctx context.Context, query string, opts ...vector.QueryOption) ([]vector.Result, error)
}

// Syncer aligns the chunk index with committed versions. Satisfied by
// *docsync.Coordinator.
type Syncer interface {
	Sync(ctx context.Context, docID uuid.UUID, oldVersion, newVersion int, content string) error
	Reconcile(ctx context.Context, docID uuid.UUID) (docsync.ReconcileResult, error)
}

var (
	_ Generator     = (*agent.Generator)(nil)
	_ Maintainer    = (*agent.Maintainer)(nil)
	_ DocumentStore = (*document.Store)(nil)
	_ Searcher      = (*vector.Searcher)(nil)
	_ Syncer        = (*docsync.Coordinator)(nil)
)

// ServerConfig contains the dependencies for creating the API server.
type ServerConfig struct {
	Logger     *slog.Logger
	Generator  Generator
	Maintainer Maintainer
	Docs       DocumentStore
	Searcher   Searcher
	Sync       Syncer
	Pool       *pgxpool.Pool // Optional: nil disables pool stats in /ready
	TrustProxy bool          // Trust X-Real-IP/X-Forwarded-For (behind reverse proxy)
	RateBurst  int           // Rate limiter burst per IP (0 = default 60)
	TopK       int           // Default search top-K (0 = vector.DefaultTopK)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates an API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Docs == nil {
		return nil, errors.New("document store is required")
	}
	if cfg.Generator == nil {
		return nil, errors.New("generator is required")
	}
	if cfg.Maintainer == nil {
		return nil, errors.New("maintainer is required")
	}
	if cfg.Searcher == nil {
		return nil, errors.New("searcher is required")
	}
	if cfg.Sync == nil {
		return nil, errors.New("syncer is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dh := &documentHandler{
		generator:  cfg.Generator,
		maintainer: cfg.Maintainer,
		docs:       cfg.Docs,
		sync:       cfg.Sync,
		logger:     logger,
	}
	sh := &searchHandler{
		searcher: cfg.Searcher,
		topK:     cfg.TopK,
		logger:   logger,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/documents/generate", dh.generate)
	mux.HandleFunc("POST /api/v1/documents", dh.create)
	mux.HandleFunc("GET /api/v1/documents", dh.list)
	mux.HandleFunc("GET /api/v1/documents/{id}", dh.get)
	mux.HandleFunc("PUT /api/v1/documents/{id}", dh.edit)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", dh.delete)
	mux.HandleFunc("POST /api/v1/documents/{id}/update", dh.update)
	mux.HandleFunc("GET /api/v1/documents/{id}/history", dh.history)
	mux.HandleFunc("GET /api/v1/documents/{id}/versions/{n}", dh.getVersion)
	mux.HandleFunc("POST /api/v1/documents/{id}/audit", dh.audit)
	mux.HandleFunc("POST /api/v1/documents/{id}/reconcile", dh.reconcile)

	mux.HandleFunc("POST /api/v1/search", sh.search)

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Middleware stack (outermost first):
	//   Recovery → RequestID → Logging → RateLimit → Routes
	// RequestID must precede Logging so request_id shows in log attributes.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	probes := &probeHandler{pool: cfg.Pool, logger: logger}

	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", probes.health)
	topMux.HandleFunc("GET /ready", probes.ready)
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
