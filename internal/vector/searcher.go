package vector

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxQueryLength caps search query text; longer queries are truncated rather
// than rejected.
const MaxQueryLength = 8192

// Searcher answers text queries by embedding them and searching the chunk
// index. It is the read path shared by the HTTP search endpoint, the MCP
// tools, and maintenance retrieval.
type Searcher struct {
	embedder *Embedder
	store    *Store
}

// NewSearcher creates a Searcher.
func NewSearcher(embedder *Embedder, store *Store) (*Searcher, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	return &Searcher{embedder: embedder, store: store}, nil
}

// Search embeds the query text and returns the nearest chunks. Zero hits is
// a valid outcome and yields an empty slice.
func (s *Searcher) Search(ctx context.Context, query string, opts ...QueryOption) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	query = truncateQuery(query)

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return s.store.Query(ctx, embedding, opts...)
}

// truncateQuery caps query text at MaxQueryLength bytes without splitting
// a rune, so the embedding provider always receives valid UTF-8.
func truncateQuery(query string) string {
	if len(query) <= MaxQueryLength {
		return query
	}
	cut := MaxQueryLength
	for cut > 0 && !utf8.RuneStart(query[cut]) {
		cut--
	}
	return strings.TrimSpace(query[:cut])
}
