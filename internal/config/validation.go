package config

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
)

// Chunking bounds. A chunk below the floor carries too little context to
// embed usefully; above the ceiling it exceeds embedder input limits.
const (
	MinChunkSize = 100
	MaxChunkSize = 5000
)

// Retrieval bounds for top-K.
const (
	MinTopK = 1
	MaxTopK = 50
)

// maxRetryBudget caps the conflict and delete retry budgets.
const maxRetryBudget = 10

// maxTimeoutSecs caps any single external-call timeout (10 minutes).
const maxTimeoutSecs = 600

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// Provider and its credentials. API keys are read by the Genkit plugins
	// directly from the environment; we only verify presence here.
	switch c.Provider {
	case ProviderGemini, ProviderGoogleAI:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required for provider %q\n"+
				"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
				ErrMissingAPIKey, c.Provider)
		}
	case ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY environment variable is required for provider %q",
				ErrMissingAPIKey, c.Provider)
		}
	case ProviderOllama:
		if c.OllamaHost == "" {
			return fmt.Errorf("%w: ollama_host cannot be empty", ErrInvalidOllamaHost)
		}
	default:
		return fmt.Errorf("%w: %q is not one of: gemini, ollama, openai", ErrInvalidProvider, c.Provider)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}

	// Temperature range: 0.0 (deterministic) to 2.0.
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	// Embedding configuration.
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}
	if c.EmbeddingDim < 1 || c.EmbeddingDim > 4096 {
		return fmt.Errorf("%w: must be between 1 and 4096, got %d", ErrInvalidEmbeddingDim, c.EmbeddingDim)
	}
	if c.EmbeddingDim != DefaultEmbeddingDim {
		slog.Warn("embedding_dim differs from the migrated schema width",
			"configured", c.EmbeddingDim,
			"schema", DefaultEmbeddingDim,
			"note", "the document_chunks.embedding column must be migrated to match")
	}

	// Chunking configuration.
	if c.ChunkSize < MinChunkSize || c.ChunkSize > MaxChunkSize {
		return fmt.Errorf("%w: chunk_size must be between %d and %d, got %d",
			ErrInvalidChunking, MinChunkSize, MaxChunkSize, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size), got %d with chunk_size %d",
			ErrInvalidChunking, c.ChunkOverlap, c.ChunkSize)
	}

	// Retrieval configuration.
	if c.TopK < MinTopK || c.TopK > MaxTopK {
		return fmt.Errorf("%w: must be between %d and %d, got %d", ErrInvalidTopK, MinTopK, MaxTopK, c.TopK)
	}

	// Retry budgets.
	if c.ConflictRetries < 0 || c.ConflictRetries > maxRetryBudget {
		return fmt.Errorf("%w: conflict_retries must be between 0 and %d, got %d",
			ErrInvalidRetries, maxRetryBudget, c.ConflictRetries)
	}
	if c.DeleteRetries < 0 || c.DeleteRetries > maxRetryBudget {
		return fmt.Errorf("%w: delete_retries must be between 0 and %d, got %d",
			ErrInvalidRetries, maxRetryBudget, c.DeleteRetries)
	}

	// Timeouts.
	for _, tm := range []struct {
		name string
		secs int
	}{
		{"llm_timeout_secs", c.LLMTimeoutSec},
		{"embed_timeout_secs", c.EmbedTimeoutSec},
		{"query_timeout_secs", c.QueryTimeoutSec},
	} {
		if tm.secs < 1 || tm.secs > maxTimeoutSecs {
			return fmt.Errorf("%w: %s must be between 1 and %d, got %d",
				ErrInvalidTimeout, tm.name, maxTimeoutSecs, tm.secs)
		}
	}
	if c.JanitorIntervalSec < 0 || c.JanitorIntervalSec > 86400 {
		return fmt.Errorf("%w: janitor_interval_secs must be between 0 and 86400, got %d",
			ErrInvalidTimeout, c.JanitorIntervalSec)
	}

	// PostgreSQL configuration.
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}
	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: postgres_password must be set", ErrInvalidPostgresPassword)
	}
	if c.PostgresPassword == "inkwell_dev_password" {
		slog.Warn("using default development password for PostgreSQL",
			"warning", "change postgres_password for production deployments")
	}
	if len(c.PostgresPassword) < 8 {
		return fmt.Errorf("%w: postgres_password must be at least 8 characters (got %d)",
			ErrInvalidPostgresPassword, len(c.PostgresPassword))
	}

	// Modern SSL modes only; the deprecated allow/prefer modes are MITM
	// vulnerable.
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	return nil
}
