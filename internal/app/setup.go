package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inkops/inkwell/db"
	"github.com/inkops/inkwell/internal/agent"
	"github.com/inkops/inkwell/internal/chunk"
	"github.com/inkops/inkwell/internal/config"
	"github.com/inkops/inkwell/internal/docsync"
	"github.com/inkops/inkwell/internal/document"
	"github.com/inkops/inkwell/internal/ingest"
	"github.com/inkops/inkwell/internal/observability"
	"github.com/inkops/inkwell/internal/vector"
)

// Setup builds the application in dependency order: tracing, database,
// Genkit, stores, sync coordinator, agents. On any failure the pieces
// already built are released before the error returns.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if cfg == nil {
		return nil, config.ErrConfigNil
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	// Tracing first: Genkit's TracerProvider must have its span
	// processor registered before genkit.Init.
	shutdown, err := observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}
	a.traceShutdown = shutdown

	pool, err := providePool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	aiEmbedder := provideEmbedder(g, cfg)
	if aiEmbedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}

	embedder, err := vector.NewEmbedder(aiEmbedder, cfg.EmbeddingDim, logger)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	a.Embedder = embedder

	docs, err := document.NewStore(pool, logger)
	if err != nil {
		return nil, fmt.Errorf("creating document store: %w", err)
	}
	a.Docs = docs

	chunks, err := vector.NewStore(pool, logger)
	if err != nil {
		return nil, fmt.Errorf("creating chunk store: %w", err)
	}

	searcher, err := vector.NewSearcher(embedder, chunks)
	if err != nil {
		return nil, fmt.Errorf("creating searcher: %w", err)
	}
	a.Searcher = searcher

	chunker := chunk.New(
		chunk.WithSize(cfg.ChunkSize),
		chunk.WithOverlap(cfg.ChunkOverlap),
	)

	bgCtx, bgCancel := context.WithCancel(context.WithoutCancel(ctx))
	a.bgCancel = bgCancel

	coordinator, err := docsync.NewCoordinator(docsync.Config{
		Index:         chunks,
		Embedder:      embedder,
		Docs:          docs,
		Chunker:       chunker,
		Logger:        logger,
		EmbedTimeout:  cfg.EmbedTimeout(),
		DeleteRetries: cfg.DeleteRetries,
		BackgroundCtx: bgCtx,
	})
	if err != nil {
		return nil, fmt.Errorf("creating sync coordinator: %w", err)
	}
	a.Coordinator = coordinator

	llm, err := agent.NewLLM(agent.LLMConfig{
		Genkit:    g,
		ModelName: cfg.FullModelName(),
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating model wrapper: %w", err)
	}

	generator, err := agent.NewGenerator(llm, logger)
	if err != nil {
		return nil, fmt.Errorf("creating generator: %w", err)
	}
	a.Generator = generator

	maintainer, err := agent.NewMaintainer(agent.MaintainerConfig{
		LLM:             llm,
		Docs:            docs,
		Retriever:       searcher,
		Syncer:          coordinator,
		Logger:          logger,
		ConflictRetries: cfg.ConflictRetries,
		ContextTopK:     cfg.TopK,
		QueryTimeout:    cfg.QueryTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating maintainer: %w", err)
	}
	a.Maintainer = maintainer

	a.Fetcher = ingest.New(ingest.WithLogger(logger))

	if interval := cfg.JanitorInterval(); interval > 0 {
		janitor := docsync.NewJanitor(coordinator, interval, logger)
		a.janitorWG.Add(1)
		go func() {
			defer a.janitorWG.Done()
			janitor.Run(bgCtx)
		}()
		logger.Info("reconciliation janitor started", "interval", interval)
	}

	return a, nil
}

// providePool runs migrations, then opens the pgx pool and verifies
// connectivity with a bounded ping.
func providePool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	applyPoolDefaults(poolCfg)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

func applyPoolDefaults(poolCfg *pgxpool.Config) {
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute
}

// provideGenkit initializes Genkit with the configured provider plugin.
// Gemini is the default; ollama and openai are selected explicitly.
func provideGenkit(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*genkit.Genkit, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g := genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama has no auto-discovery; models and embedders register
		// explicitly.
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)
		return g, nil

	case config.ProviderOpenAI:
		g := genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		logger.Info("initialized genkit with openai provider", "model", cfg.ModelName)
		return g, nil

	default: // gemini
		g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized genkit with gemini provider", "model", cfg.ModelName)
		return g, nil
	}
}

// provideEmbedder looks up the embedder the provider plugin registered.
// Each provider keys embedders differently: gemini by model name,
// ollama by server address, openai by auto-registered action name.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderOllama:
		return ollama.Embedder(g, cfg.OllamaHost)
	case config.ProviderOpenAI:
		return genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
	default: // gemini
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}
