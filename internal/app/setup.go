package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/groundbot/groundbot/db"
	"github.com/groundbot/groundbot/internal/answer"
	"github.com/groundbot/groundbot/internal/config"
	"github.com/groundbot/groundbot/internal/index"
	"github.com/groundbot/groundbot/internal/ingest"
	"github.com/groundbot/groundbot/internal/log"
	"github.com/groundbot/groundbot/internal/observability"
	"github.com/groundbot/groundbot/internal/pack"
	"github.com/groundbot/groundbot/internal/rerank"
	"github.com/groundbot/groundbot/internal/security"
	"github.com/groundbot/groundbot/internal/topic"
)

// Setup creates and initializes the application. Returns an App with
// embedded cleanup; call Close() to release everything.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg, Logger: logger}

	// on error, release everything already initialized
	defer func() {
		if retErr != nil {
			_ = a.Close()
		}
	}()

	a.otelCleanup = provideOtelShutdown(ctx, cfg, logger)

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = embedder

	store, err := index.NewStore(pool, embedder, logger)
	if err != nil {
		return nil, err
	}
	a.Index = store

	crawler := ingest.NewCrawler(cfg.Crawler, security.NewURL(), logger)
	chunker := ingest.NewChunker(
		ingest.WithChunkSize(cfg.Retrieval.ChunkSize),
		ingest.WithOverlap(cfg.Retrieval.ChunkOverlap),
	)
	ingestor := ingest.New(crawler, chunker, store, logger)

	packStore, err := pack.NewStore(pool)
	if err != nil {
		return nil, err
	}
	a.Packs = pack.NewManager(packStore, ingestor, store, pack.Config{
		MaxPagesStageA: cfg.Crawler.MaxPagesStageA,
		MaxPagesStageB: cfg.Crawler.MaxPagesStageB,
		TTLDays:        cfg.PackTTLDays,
	}, logger)

	classifier := topic.NewClassifier(g, cfg.ModelName, logger)

	var engineOpts []answer.Option
	if cfg.Retrieval.LLMRerank {
		engineOpts = append(engineOpts, answer.WithReranker(rerank.NewModelReranker(g, cfg.ModelName, logger)))
	}
	a.Engine = answer.NewEngine(g, classifier, a.Packs, store, answer.Config{
		ModelName:     cfg.ModelName,
		TopK:          cfg.Retrieval.TopK,
		MaxCitations:  cfg.Retrieval.MaxCitations,
		MinConfidence: cfg.Retrieval.MinConfidence,
	}, logger, engineOpts...)

	a.Flow = answer.NewFlow(g, a.Engine)

	return a, nil
}

// provideOtelShutdown sets up tracing before Genkit initialization so
// the TracerProvider is ready when flows register.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger log.Logger) func() {
	shutdown, err := observability.Setup(ctx, observability.Config{
		AgentHost:   cfg.Tracing.AgentHost,
		ServiceName: cfg.Tracing.ServiceName,
		Environment: cfg.Tracing.Environment,
	}, logger)
	if err != nil || shutdown == nil {
		return func() {}
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideDBPool runs migrations and creates the PostgreSQL pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideGenkit initializes Genkit with the configured AI provider.
// Supports gemini (default), ollama, and openai.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = config.ProviderGemini
	}

	var g *genkit.Genkit

	switch provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery)
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized Genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		logger.Info("initialized Genkit with openai provider", "model", cfg.ModelName)

	default:
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized Genkit with gemini provider", "model", cfg.ModelName)
	}

	return g, nil
}

// provideEmbedder looks up the embedder registered by the provider
// plugin. Each provider registers embedders differently: gemini via
// GoogleAIEmbedder, ollama keyed by server address, openai by name.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderOllama:
		return ollama.Embedder(g, cfg.OllamaHost)
	case config.ProviderOpenAI:
		return genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
	default:
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}
