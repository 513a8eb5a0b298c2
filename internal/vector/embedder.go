package vector

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/pgvector/pgvector-go"
	"google.golang.org/genai"
)

// Embedder converts text into fixed-dimension vectors ready for pgvector
// storage. It pins the provider's output dimensionality to the index
// dimension so schema and embeddings can never drift apart.
type Embedder struct {
	embedder ai.Embedder
	dim      int32
	logger   *slog.Logger
}

// NewEmbedder wraps a Genkit embedder for a vector index of the given
// dimension.
func NewEmbedder(embedder ai.Embedder, dim int, logger *slog.Logger) (*Embedder, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if dim < 1 || dim > 4096 {
		return nil, fmt.Errorf("embedding dimension %d out of range 1-4096", dim)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Embedder{embedder: embedder, dim: int32(dim), logger: logger}, nil
}

// Dimension returns the configured vector dimension.
func (e *Embedder) Dimension() int { return int(e.dim) }

// Embed generates a vector embedding for the given text.
func (e *Embedder) Embed(ctx context.Context, text string) (pgvector.Vector, error) {
	dim := e.dim
	resp, err := e.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   []*ai.Document{ai.DocumentFromText(text, nil)},
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("embedding text: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, ErrEmptyEmbedding
	}
	raw := resp.Embeddings[0].Embedding
	if len(raw) != int(e.dim) {
		return pgvector.Vector{}, fmt.Errorf("%w: got %d, want %d",
			ErrDimensionMismatch, len(raw), e.dim)
	}
	return pgvector.NewVector(raw), nil
}
