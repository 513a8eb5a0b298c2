// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.inkwell/config.yaml or ./config.yaml)
//  3. Default values
//
// Categories:
//   - AI: provider, model, temperature, embedder model and dimensionality
//   - Generation/maintenance: output bounds, conflict retry budget, timeouts
//   - Chunking: target size and overlap for retrieval segments
//   - Retrieval: default top-K
//   - Sync: delete retry budget, janitor interval
//   - Storage: PostgreSQL connection (see storage.go)
//   - Observability: OTLP trace exporter endpoint
//
// Sensitive values (passwords, API keys) are never logged; Config masks them
// in String() and MarshalJSON(). Validation lives in validation.go and uses
// sentinel errors checkable with errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required provider API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidEmbeddingDim indicates the embedding dimensionality is out of range.
	ErrInvalidEmbeddingDim = errors.New("invalid embedding dimensionality")

	// ErrInvalidChunking indicates chunk size/overlap values are out of range.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidTopK indicates the retrieval top-K default is out of range.
	ErrInvalidTopK = errors.New("invalid top_k")

	// ErrInvalidRetries indicates a retry budget is out of range.
	ErrInvalidRetries = errors.New("invalid retry budget")

	// ErrInvalidTimeout indicates a timeout value is out of range.
	ErrInvalidTimeout = errors.New("invalid timeout")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidOllamaHost indicates the Ollama host is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderOllama   = "ollama"
	ProviderOpenAI   = "openai"
	ProviderGoogleAI = "googleai"
)

const (
	// DefaultEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 outputs 3072 dimensions by default but supports
	// truncation via OutputDimensionality; the chunk schema stores
	// DefaultEmbeddingDim-wide vectors.
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultEmbeddingDim is the vector width written to document_chunks.
	// Changing it requires a schema migration of the embedding column.
	DefaultEmbeddingDim = 768

	// DefaultChunkSize is the target chunk length in characters.
	DefaultChunkSize = 1000

	// DefaultChunkOverlap is the character overlap between adjacent chunks.
	DefaultChunkOverlap = 200

	// DefaultTopK is the default number of chunks returned by retrieval.
	DefaultTopK = 5

	// DefaultConflictRetries is how many times a version conflict is retried
	// with a fresh read before surfacing to the caller.
	DefaultConflictRetries = 3
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields, update MarshalJSON.
type Config struct {
	// AI provider and model configuration
	Provider    string  `mapstructure:"provider" json:"provider"`     // "gemini" (default), "ollama", "openai"
	ModelName   string  `mapstructure:"model_name" json:"model_name"` // e.g. "gemini-2.5-flash", "llama3.3", "gpt-4o"
	Temperature float32 `mapstructure:"temperature" json:"temperature"`

	// Ollama configuration (only used when provider is "ollama")
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"`

	// Embedding configuration
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`
	EmbeddingDim  int    `mapstructure:"embedding_dim" json:"embedding_dim"`

	// Chunking configuration
	ChunkSize    int `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap" json:"chunk_overlap"`

	// Retrieval configuration
	TopK int `mapstructure:"top_k" json:"top_k"`

	// Maintenance configuration
	ConflictRetries int `mapstructure:"conflict_retries" json:"conflict_retries"`

	// Sync configuration
	DeleteRetries      int `mapstructure:"delete_retries" json:"delete_retries"`
	JanitorIntervalSec int `mapstructure:"janitor_interval_secs" json:"janitor_interval_secs"` // 0 disables the loop

	// Timeouts, in seconds (helpers below convert to time.Duration)
	LLMTimeoutSec   int `mapstructure:"llm_timeout_secs" json:"llm_timeout_secs"`
	EmbedTimeoutSec int `mapstructure:"embed_timeout_secs" json:"embed_timeout_secs"`
	QueryTimeoutSec int `mapstructure:"query_timeout_secs" json:"query_timeout_secs"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Observability configuration. Empty endpoint disables tracing.
	OTLPEndpoint string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name" json:"service_name"`
	Environment  string `mapstructure:"environment" json:"environment"`

	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".inkwell")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env cover it.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL, when set, overrides the individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// AI defaults. Low temperature: document generation rewards fidelity to
	// the source over creativity.
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("temperature", 0.3)
	viper.SetDefault("ollama_host", "http://localhost:11434")

	// Embedding defaults
	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("embedding_dim", DefaultEmbeddingDim)

	// Chunking defaults
	viper.SetDefault("chunk_size", DefaultChunkSize)
	viper.SetDefault("chunk_overlap", DefaultChunkOverlap)

	// Retrieval defaults
	viper.SetDefault("top_k", DefaultTopK)

	// Maintenance / sync defaults
	viper.SetDefault("conflict_retries", DefaultConflictRetries)
	viper.SetDefault("delete_retries", 3)
	viper.SetDefault("janitor_interval_secs", 0)

	// Timeout defaults
	viper.SetDefault("llm_timeout_secs", 60)
	viper.SetDefault("embed_timeout_secs", 30)
	viper.SetDefault("query_timeout_secs", 5)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "inkwell")
	viper.SetDefault("postgres_password", "inkwell_dev_password")
	viper.SetDefault("postgres_db_name", "inkwell")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Observability defaults (tracing off until an endpoint is configured)
	viper.SetDefault("otlp_endpoint", "")
	viper.SetDefault("service_name", "inkwell")
	viper.SetDefault("environment", "dev")

	// Logging
	viper.SetDefault("log_level", "info")
}

// bindEnvVariables binds environment overrides explicitly.
//
// Provider API keys are NOT bound here: GEMINI_API_KEY and OPENAI_API_KEY are
// read directly by the Genkit plugins. Validate() checks their presence based
// on the selected provider.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug, not a
	// runtime condition.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "INKWELL_PROVIDER")
	mustBind("model_name", "INKWELL_MODEL_NAME")
	mustBind("ollama_host", "INKWELL_OLLAMA_HOST")
	mustBind("embedder_model", "INKWELL_EMBEDDER_MODEL")
	mustBind("top_k", "INKWELL_TOP_K")
	mustBind("janitor_interval_secs", "INKWELL_JANITOR_INTERVAL_SECS")
	mustBind("otlp_endpoint", "INKWELL_OTLP_ENDPOINT")
	mustBind("environment", "INKWELL_ENVIRONMENT")
	mustBind("log_level", "INKWELL_LOG_LEVEL")
}

// Timeout helpers.

// LLMTimeout bounds a single model invocation.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSec) * time.Second
}

// EmbedTimeout bounds one embedding batch.
func (c *Config) EmbedTimeout() time.Duration {
	return time.Duration(c.EmbedTimeoutSec) * time.Second
}

// QueryTimeout bounds a vector similarity query.
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSec) * time.Second
}

// JanitorInterval returns the reconciliation loop period, 0 when disabled.
func (c *Config) JanitorInterval() time.Duration {
	return time.Duration(c.JanitorIntervalSec) * time.Second
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks (U+2588) avoid accidental substring matches against the
// real secret.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Secrets of 8 chars or
// fewer are fully masked; longer secrets show the first and last 2 characters
// for debug utility.
//
// THREAT MODEL: defends against accidental logging of real secrets, not
// against a compromised log store. Rotate secrets if logs leak.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	prefix := make([]byte, 2)
	suffix := make([]byte, 2)
	copy(prefix, s[:2])
	copy(suffix, s[len(s)-2:])
	return string(prefix) + "<" + maskedValue + ">" + string(suffix)
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
//
// Masked fields: PostgresPassword. When adding new sensitive fields, update
// this method; the masking test fails otherwise.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// FullModelName returns the provider-qualified model name for Genkit.
// Examples: "googleai/gemini-2.5-flash", "ollama/llama3.3", "openai/gpt-4o".
// A ModelName already containing "/" is returned as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	switch c.Provider {
	case ProviderOllama:
		return ProviderOllama + "/" + c.ModelName
	case ProviderOpenAI:
		return ProviderOpenAI + "/" + c.ModelName
	default:
		return ProviderGoogleAI + "/" + c.ModelName
	}
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
