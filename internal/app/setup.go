package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"github.com/sqlsage/sqlsage/internal/agent"
	"github.com/sqlsage/sqlsage/internal/config"
	"github.com/sqlsage/sqlsage/internal/gateway"
	"github.com/sqlsage/sqlsage/internal/index"
	"github.com/sqlsage/sqlsage/internal/intent"
	"github.com/sqlsage/sqlsage/internal/memory"
	"github.com/sqlsage/sqlsage/internal/router"
	"github.com/sqlsage/sqlsage/internal/schema"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup — call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = embedder

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	// One admission budget and one request-rate budget across all model
	// roles.
	sem := gateway.NewSemaphore(cfg.MaxConcurrentCalls)
	gwCfg := gateway.Config{
		MaxAttempts:        cfg.MaxAttempts,
		BackoffBaseSeconds: cfg.BackoffBaseSeconds,
		Jitter:             cfg.Jitter,
		Limiter:            newRateLimiter(cfg.RequestsPerMinute),
		Semaphore:          sem,
	}
	sqlInv := gateway.New(newGenkitClient(g, cfg.SQLModel, cfg.Temperature), gwCfg, logger)
	codeInv := gateway.New(newGenkitClient(g, cfg.CodeModel, cfg.Temperature), gwCfg, logger)
	chatInv := gateway.New(newGenkitClient(g, cfg.ChatModel, cfg.Temperature), gwCfg, logger)

	schemaIdx, historyIdx, err := provideIndices(ctx, cfg, pool, embedder, chatInv, logger)
	if err != nil {
		return nil, err
	}

	a.Memory = memory.NewStore(cfg.MaxSessions, logger)

	ag, err := agent.New(agent.Config{
		ConnectionID: cfg.PostgresDBName,
		Invoker:      sqlInv,
		CodeInvoker:  codeInv,
		Schema:       schemaIdx,
		History:      historyIdx,
		Querier:      pool,
		Recorder:     NewLogRecorder(logger),
		TopK:         cfg.SearchTopK,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	a.Agent = ag

	rt, err := router.New(router.Config{
		Classifier: intent.New(chatInv, logger),
		Invoker:    chatInv,
		CacheSize:  cfg.CacheSize,
		CacheTTL:   cfg.CacheTTL,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	a.Router = rt

	return a, nil
}

// newRateLimiter converts the per-minute budget into a limiter shared by all
// model roles. 0 disables proactive limiting; the provider still answers 429
// and the gateway retry handles it.
func newRateLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(requestsPerMinute)/60, 1)
}

// provideGenkit initializes Genkit with the configured AI provider.
func provideGenkit(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*genkit.Genkit, error) {
	switch cfg.Provider {
	case "", config.ProviderGemini, config.ProviderGoogleAI:
		g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized Genkit", "provider", "gemini",
			"sql_model", cfg.SQLModel, "code_model", cfg.CodeModel, "chat_model", cfg.ChatModel)
		return g, nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidProvider, cfg.Provider)
	}
}

// provideDBPool creates the PostgreSQL connection pool for the configured
// connection and verifies it responds.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString())
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

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideIndices extracts the live schema and opens both vector indices.
// A failure here is fatal for the agent instance: an agent without its
// retrieval context would silently generate worse SQL.
func provideIndices(
	ctx context.Context,
	cfg *config.Config,
	pool *pgxpool.Pool,
	embedder ai.Embedder,
	invoker index.Invoker,
	logger *slog.Logger,
) (*index.Schema, *index.History, error) {
	embed := index.NewEmbeddingFunc(embedder)

	schemaIdx, err := index.NewSchema(cfg.IndexDir, cfg.PostgresDBName, embed, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("opening schema index: %w", err)
	}

	docs, err := schema.Extract(ctx, pool)
	if err != nil {
		return nil, nil, fmt.Errorf("extracting schema: %w", err)
	}
	if err := schemaIdx.Ensure(ctx, docs); err != nil {
		return nil, nil, fmt.Errorf("building schema index: %w", err)
	}

	historyIdx, err := index.NewHistory(cfg.IndexDir, embed, invoker, index.HistoryConfig{
		Summarize:          cfg.SummarizeHistory,
		SummarizeThreshold: cfg.SummarizeThreshold,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("opening history index: %w", err)
	}

	return schemaIdx, historyIdx, nil
}
