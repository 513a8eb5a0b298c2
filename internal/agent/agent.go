// Package agent implements the LLM-backed document agents: generation
// of new documents from source material and retrieval-augmented
// maintenance of existing ones.
//
// The package is organized around three actors:
//
//   - LLM wraps a genkit model with a retry policy, a proactive rate
//     limiter, and a circuit breaker. It is the only place model calls
//     happen.
//   - Generator turns source text into first-version document content.
//     It persists nothing; callers store the result.
//   - Maintainer revises stored documents under optimistic version
//     control and hands changed content to the sync layer. It also
//     audits documents without writing.
//
// Store access goes through the small interfaces declared here so
// tests can substitute fakes without a database.
package agent

import (
	"context"

	"github.com/google/uuid"

	"github.com/inkops/inkwell/internal/document"
	"github.com/inkops/inkwell/internal/vector"
)

// DocumentStore is the slice of the document store the maintenance
// agent uses. *document.Store satisfies it.
type DocumentStore interface {
	GetCurrent(ctx context.Context, docID uuid.UUID) (*document.Document, *document.Version, error)
	AppendVersion(ctx context.Context, params document.AppendVersionParams) (*document.Version, error)
}

// Retriever supplies similarity context for maintenance and audit
// prompts. *vector.Searcher satisfies it.
type Retriever interface {
	Search(ctx context.Context, query string, opts ...vector.QueryOption) ([]vector.Result, error)
}

// Syncer keeps the chunk index aligned with document versions after an
// update. *docsync.Coordinator satisfies it.
type Syncer interface {
	Sync(ctx context.Context, docID uuid.UUID, oldVersion, newVersion int, content string) error
}
