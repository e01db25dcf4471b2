package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"ai-quant/internal/broker/alpaca"
	"ai-quant/internal/broker/brokerobs"
	"ai-quant/internal/broker/mock"
	"ai-quant/internal/collect"
	"ai-quant/internal/guard"
	"ai-quant/internal/interfaces"
	"ai-quant/internal/logger"
	"ai-quant/internal/runner"
	"ai-quant/internal/scoring"
	"ai-quant/internal/scoring/scorerobs"
	"ai-quant/internal/signal"
	"ai-quant/internal/storage"
	"ai-quant/internal/store"
	"ai-quant/internal/trace"
	"ai-quant/internal/tradelog"
)

// initializeSystem initializes environment, logger and tracer
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}

	return nil
}

// compressOldLogs compresses old tradelog files if retention is configured
func compressOldLogs(ctx context.Context) {
	if v := os.Getenv("TRADER_LOG_RETENTION_DAYS"); v != "" {
		var n int
		fmt.Sscanf(v, "%d", &n)
		if err := tradelog.CompressOlder(n); err != nil {
			logger.Warn(ctx, "Failed to compress old logs", "error", err)
		}
	}
}

// initializeStore connects to Postgres and ensures the schema exists
func initializeStore(ctx context.Context) (*storage.Repository, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	repo := storage.NewRepository(pool)
	if err := repo.InitSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return repo, nil
}

// initializeCollector builds the merged RSS + Reddit collector
func initializeCollector(cfg *store.Config) interfaces.Collector {
	timeout := time.Duration(cfg.CollectTimeoutSeconds) * time.Second
	sources := []interfaces.Collector{
		collect.NewRSSCollector(cfg.Feeds, timeout),
	}
	if len(cfg.Reddit.Subreddits) > 0 {
		sources = append(sources, collect.NewRedditCollector(cfg.Reddit.Subreddits, cfg.Reddit.Limit, timeout))
	}
	return collect.NewService(sources...)
}

// initializeScorer initializes the scoring client with observability
func initializeScorer(ctx context.Context, cfg *store.Config) interfaces.Scorer {
	var scorer interfaces.Scorer

	switch cfg.Scoring.Provider {
	case "OPENAI":
		scorer = scoring.NewOpenAIScorer(scoring.OpenAIParams{
			Endpoint:  cfg.Scoring.Endpoint,
			Model:     cfg.Scoring.Model,
			APIKeyEnv: cfg.Scoring.APIKeyEnv,
		})
	case "DEEPSEEK":
		endpoint := cfg.Scoring.Endpoint
		if endpoint == "" {
			endpoint = "https://api.deepseek.com/chat/completions"
		}
		scorer = scoring.NewOpenAIScorer(scoring.OpenAIParams{
			Endpoint:  endpoint,
			Model:     cfg.Scoring.Model,
			APIKeyEnv: cfg.Scoring.APIKeyEnv,
		})
	default:
		scorer = scoring.NewNoopScorer()
		logger.Warn(ctx, "No scoring provider configured - using Noop scorer (never trades)")
	}

	return scorerobs.Wrap(scorer)
}

// initializeGateway initializes the brokerage gateway with observability
func initializeGateway(ctx context.Context, cfg *store.Config) interfaces.Gateway {
	var gw interfaces.Gateway

	switch cfg.Broker.Provider {
	case "ALPACA":
		gw = alpaca.New(alpaca.Params{
			Endpoint:     cfg.Broker.Endpoint,
			DataEndpoint: cfg.Broker.DataEndpoint,
			KeyID:        os.Getenv("APCA_API_KEY_ID"),
			Secret:       os.Getenv("APCA_API_SECRET_KEY"),
		})
	default:
		gw = mock.New()
		logger.Info(ctx, "Using MOCK brokerage gateway")
	}

	if !cfg.Live() {
		logger.Warn(ctx, "Running in SIMULATE mode - orders will not be submitted")
	}

	return brokerobs.Wrap(gw)
}

// initializeRunner wires the full pipeline
func initializeRunner(cfg *store.Config, repo *storage.Repository, scorer interfaces.Scorer, gw interfaces.Gateway) *runner.Runner {
	orch := scoring.NewOrchestrator(scorer, repo, scoring.OrchestratorParams{
		BatchSize:   cfg.Scoring.BatchSize,
		CallTimeout: time.Duration(cfg.Scoring.TimeoutSeconds) * time.Second,
		Concurrency: cfg.Scoring.Concurrency,
		Policy: scoring.Policy{
			MaxAttempts: cfg.Scoring.MaxAttempts,
			BaseDelay:   time.Duration(cfg.Scoring.BackoffBaseMS) * time.Millisecond,
			Multiplier:  cfg.Scoring.BackoffMultiplier,
		},
		RatePerSecond: cfg.Scoring.RatePerSecond,
		MaxSummaryLen: cfg.Scoring.MaxSummaryLen,
	})

	g := guard.New(gw, guard.Params{
		Mode:         cfg.Mode,
		NotionalUSD:  cfg.NotionalUSD,
		PriceTimeout: time.Duration(cfg.Broker.PriceTimeoutSeconds) * time.Second,
		OrderTimeout: time.Duration(cfg.Broker.OrderTimeoutSeconds) * time.Second,
	})

	return runner.New(cfg, initializeCollector(cfg), orch, signal.NewSelector(repo), g, repo, gw)
}
