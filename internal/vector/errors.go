package vector

import "errors"

var (
	// ErrEmptyEmbedding indicates the provider returned no vector for the
	// input text.
	ErrEmptyEmbedding = errors.New("empty embedding response")

	// ErrDimensionMismatch indicates the provider returned a vector whose
	// length differs from the configured index dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmptyQuery indicates a similarity search with no query text.
	ErrEmptyQuery = errors.New("search query is required")
)
