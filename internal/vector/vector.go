// Package vector maintains the embedding index for document chunks and
// serves similarity queries over it, backed by PostgreSQL + pgvector.
//
// The index is a cache derived from document versions, never the source of
// truth. Rows key on the deterministic chunk id, so re-indexing the same
// version is idempotent, and the store exposes the primitives the sync
// coordinator needs to replace a version's chunks without ever leaving a
// document unrepresented: upsert first, delete stale versions after.
package vector

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// Chunk is one indexed chunk row: a slice of a document version together
// with its embedding.
type Chunk struct {
	ID        string
	DocID     uuid.UUID
	Version   int
	Index     int
	Content   string
	Embedding pgvector.Vector
}

// Result is a single similarity hit. Content serializes as "text" to
// keep the search payload distinct from full document content fields.
type Result struct {
	ChunkID    string    `json:"chunk_id"`
	DocID      uuid.UUID `json:"doc_id"`
	Version    int       `json:"version_number"`
	Index      int       `json:"chunk_index"`
	Content    string    `json:"text"`
	Similarity float64   `json:"similarity"`
}

// Query limits.
const (
	DefaultTopK = 5
	MaxTopK     = 50

	// DefaultQueryTimeout bounds a single similarity search so a slow
	// index scan cannot block callers indefinitely.
	DefaultQueryTimeout = 10 * time.Second
)

// QueryOption configures a similarity query using the functional options
// pattern.
type QueryOption func(*queryConfig)

type queryConfig struct {
	topK    int
	docID   *uuid.UUID
	timeout time.Duration
}

// WithTopK sets the maximum number of results to return. Values outside
// [1, MaxTopK] are clamped.
func WithTopK(k int) QueryOption {
	return func(c *queryConfig) {
		c.topK = k
	}
}

// WithDocID restricts the query to chunks of a single document. Maintenance
// retrieval uses this to pull context only from the document being updated.
func WithDocID(id uuid.UUID) QueryOption {
	return func(c *queryConfig) {
		c.docID = &id
	}
}

// WithTimeout overrides the per-query timeout.
func WithTimeout(d time.Duration) QueryOption {
	return func(c *queryConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func buildQueryConfig(opts []QueryOption) *queryConfig {
	cfg := &queryConfig{
		topK:    DefaultTopK,
		timeout: DefaultQueryTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.topK < 1 {
		cfg.topK = DefaultTopK
	}
	if cfg.topK > MaxTopK {
		cfg.topK = MaxTopK
	}
	return cfg
}
