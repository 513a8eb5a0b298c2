// Package mcp exposes the document store to MCP clients (Claude
// Desktop, IDE assistants) over the Model Context Protocol.
//
// The surface is deliberately read-only: document_search, document_get,
// and document_history. Writes stay behind the HTTP API where rate
// limiting and the sync coordinator apply; an MCP client misbehaving
// can at worst read.
package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/inkops/inkwell/internal/document"
	"github.com/inkops/inkwell/internal/vector"
)

// DocumentStore is the read surface the tools need. Satisfied by
// *document.Store.
type DocumentStore interface {
	GetCurrent(ctx context.Context, docID uuid.UUID) (*document.Document, *document.Version, error)
	History(ctx context.Context, docID uuid.UUID) ([]*document.Version, error)
}

// Searcher answers semantic queries. Satisfied by *vector.Searcher.
type Searcher interface {
	Search(ctx context.Context, query string, opts ...vector.QueryOption) ([]vector.Result, error)
}

// Config holds MCP server dependencies.
type Config struct {
	Name     string
	Version  string
	Docs     DocumentStore
	Searcher Searcher
	Logger   *slog.Logger
}

// Server wraps the MCP SDK server around the document read surface.
type Server struct {
	mcpServer *mcp.Server
	docs      DocumentStore
	searcher  Searcher
	logger    *slog.Logger
}

// NewServer creates an MCP server with the document tools registered.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Name == "" {
		return nil, errors.New("server name is required")
	}
	if cfg.Version == "" {
		return nil, errors.New("server version is required")
	}
	if cfg.Docs == nil {
		return nil, errors.New("document store is required")
	}
	if cfg.Searcher == nil {
		return nil, errors.New("searcher is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		docs:     cfg.Docs,
		searcher: cfg.Searcher,
		logger:   logger,
	}

	if err := s.registerTools(); err != nil {
		return nil, err
	}
	return s, nil
}

// Run serves the MCP protocol on the given transport. Blocks until the
// context is canceled or the transport closes.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}
