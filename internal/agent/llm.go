package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"
)

// LLMConfig configures the model wrapper.
type LLMConfig struct {
	Genkit    *genkit.Genkit
	ModelName string // provider-qualified, e.g. "googleai/gemini-2.5-flash"
	Logger    *slog.Logger

	Retry          RetryConfig          // zero value applies DefaultRetryConfig
	CircuitBreaker CircuitBreakerConfig // zero value applies DefaultCircuitBreakerConfig
	RateLimiter    *rate.Limiter        // nil applies the default 10 req/s, burst 30
}

func (cfg LLMConfig) validate() error {
	if cfg.Genkit == nil {
		return errors.New("genkit instance is required")
	}
	if cfg.ModelName == "" {
		return errors.New("model name is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// LLM is the single entry point for model calls. Every call runs under
// the retry policy, the proactive rate limiter, and a circuit breaker
// shared by all callers holding the same instance.
type LLM struct {
	g       *genkit.Genkit
	model   string
	retry   RetryConfig
	breaker *CircuitBreaker
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewLLM builds the wrapper, applying defaults for unset resilience
// settings.
func NewLLM(cfg LLMConfig) (*LLM, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	retry := cfg.Retry
	if retry.MaxRetries == 0 {
		retry = DefaultRetryConfig()
	}

	cbCfg := cfg.CircuitBreaker
	if cbCfg.FailureThreshold == 0 {
		cbCfg = DefaultCircuitBreakerConfig()
	}

	rl := cfg.RateLimiter
	if rl == nil {
		rl = rate.NewLimiter(10, 30)
	}

	return &LLM{
		g:       cfg.Genkit,
		model:   cfg.ModelName,
		retry:   retry,
		breaker: NewCircuitBreaker(cbCfg),
		limiter: rl,
		logger:  cfg.Logger,
	}, nil
}

// ModelName returns the provider-qualified model identifier.
func (l *LLM) ModelName() string {
	return l.model
}

// Generate sends one system+user prompt pair to the model and returns
// the trimmed text reply. An empty system prompt is omitted.
func (l *LLM) Generate(ctx context.Context, system, prompt string) (string, error) {
	if err := l.breaker.Allow(); err != nil {
		l.logger.Warn("rejecting model call",
			"state", l.breaker.State().String())
		return "", fmt.Errorf("model unavailable: %w", err)
	}

	opts := make([]ai.GenerateOption, 0, 3)
	opts = append(opts, ai.WithModelName(l.model))
	if system != "" {
		opts = append(opts, ai.WithSystem(system))
	}
	opts = append(opts, ai.WithPrompt(prompt))

	resp, err := l.generateWithRetry(ctx, opts)
	if err != nil {
		l.breaker.Failure()
		return "", err
	}
	l.breaker.Success()

	return strings.TrimSpace(resp.Text()), nil
}
