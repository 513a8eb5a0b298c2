package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/inkops/inkwell/internal/vector"
)

func (s *Server) registerTools() error {
	if err := s.registerSearch(); err != nil {
		return fmt.Errorf("registering document_search: %w", err)
	}
	if err := s.registerGet(); err != nil {
		return fmt.Errorf("registering document_get: %w", err)
	}
	if err := s.registerHistory(); err != nil {
		return fmt.Errorf("registering document_history: %w", err)
	}
	return nil
}

// SearchInput is the input schema for document_search.
type SearchInput struct {
	Query string `json:"query" jsonschema:"Natural-language query to search the indexed documents for"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"Maximum number of chunks to return (default 5, max 50)"`
	DocID string `json:"doc_id,omitempty" jsonschema:"Optional document UUID to scope the search to"`
}

func (s *Server) registerSearch() error {
	inputSchema, err := jsonschema.For[SearchInput](nil)
	if err != nil {
		return fmt.Errorf("creating input schema: %w", err)
	}

	tool := &mcp.Tool{
		Name:        "document_search",
		Description: "Semantic search over the maintained documents. Returns the most similar chunks with their document id, version, and similarity score.",
		InputSchema: inputSchema,
	}

	mcp.AddTool(s.mcpServer, tool, func(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, any, error) {
		var opts []vector.QueryOption
		if in.TopK > 0 {
			opts = append(opts, vector.WithTopK(in.TopK))
		}
		if in.DocID != "" {
			docID, err := uuid.Parse(in.DocID)
			if err != nil {
				return errorResult("doc_id must be a UUID"), nil, nil
			}
			opts = append(opts, vector.WithDocID(docID))
		}

		results, err := s.searcher.Search(ctx, in.Query, opts...)
		if err != nil {
			s.logger.Warn("mcp search failed", "error", err)
			return errorResult("search failed: " + err.Error()), nil, nil
		}

		return dataToMCP(map[string]any{
			"query":   in.Query,
			"results": results,
		}), nil, nil
	})

	return nil
}

// GetInput is the input schema for document_get.
type GetInput struct {
	DocID string `json:"doc_id" jsonschema:"Document UUID to fetch"`
}

// getOutput mirrors the HTTP document detail shape.
type getOutput struct {
	DocID     uuid.UUID `json:"doc_id"`
	Title     string    `json:"title"`
	DocType   string    `json:"doc_type"`
	Version   int       `json:"version"`
	Content   string    `json:"content"`
	CreatedBy string    `json:"created_by"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Server) registerGet() error {
	inputSchema, err := jsonschema.For[GetInput](nil)
	if err != nil {
		return fmt.Errorf("creating input schema: %w", err)
	}

	tool := &mcp.Tool{
		Name:        "document_get",
		Description: "Fetch a document's head metadata and current content by id.",
		InputSchema: inputSchema,
	}

	mcp.AddTool(s.mcpServer, tool, func(ctx context.Context, _ *mcp.CallToolRequest, in GetInput) (*mcp.CallToolResult, any, error) {
		docID, err := uuid.Parse(in.DocID)
		if err != nil {
			return errorResult("doc_id must be a UUID"), nil, nil
		}

		doc, version, err := s.docs.GetCurrent(ctx, docID)
		if err != nil {
			return errorResult("loading document: " + err.Error()), nil, nil
		}

		return dataToMCP(getOutput{
			DocID:     doc.ID,
			Title:     doc.Title,
			DocType:   string(doc.Type),
			Version:   version.Number,
			Content:   version.Content,
			CreatedBy: version.CreatedBy,
			UpdatedAt: doc.UpdatedAt,
		}), nil, nil
	})

	return nil
}

// HistoryInput is the input schema for document_history.
type HistoryInput struct {
	DocID string `json:"doc_id" jsonschema:"Document UUID whose version lineage to list"`
}

type historyEntry struct {
	Version   int       `json:"version"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	Size      int       `json:"size"`
}

func (s *Server) registerHistory() error {
	inputSchema, err := jsonschema.For[HistoryInput](nil)
	if err != nil {
		return fmt.Errorf("creating input schema: %w", err)
	}

	tool := &mcp.Tool{
		Name:        "document_history",
		Description: "List a document's version lineage, newest first. Content is omitted; use document_get for the current text.",
		InputSchema: inputSchema,
	}

	mcp.AddTool(s.mcpServer, tool, func(ctx context.Context, _ *mcp.CallToolRequest, in HistoryInput) (*mcp.CallToolResult, any, error) {
		docID, err := uuid.Parse(in.DocID)
		if err != nil {
			return errorResult("doc_id must be a UUID"), nil, nil
		}

		versions, err := s.docs.History(ctx, docID)
		if err != nil {
			return errorResult("loading history: " + err.Error()), nil, nil
		}

		entries := make([]historyEntry, 0, len(versions))
		for _, v := range versions {
			entries = append(entries, historyEntry{
				Version:   v.Number,
				CreatedBy: v.CreatedBy,
				CreatedAt: v.CreatedAt,
				Size:      len(v.Content),
			})
		}
		return dataToMCP(map[string]any{
			"doc_id":   docID,
			"versions": entries,
		}), nil, nil
	})

	return nil
}
