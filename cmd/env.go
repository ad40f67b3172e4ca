package main

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/civicsignal/legisearch/internal/cost"
	"github.com/civicsignal/legisearch/internal/monitoring"
	"github.com/civicsignal/legisearch/internal/orchestrator"
	"github.com/civicsignal/legisearch/internal/rank"
	"github.com/civicsignal/legisearch/internal/resilience"
	"github.com/civicsignal/legisearch/internal/search"
	"github.com/civicsignal/legisearch/internal/store"
	"github.com/civicsignal/legisearch/internal/stream"
	anthropicpkg "github.com/civicsignal/legisearch/pkg/anthropic"
)

// serviceEnv bundles everything a command needs to answer questions.
type serviceEnv struct {
	Orchestrator *orchestrator.Orchestrator
	Registry     *stream.Registry
	Searcher     search.Client
	Backend      *search.PostgresClient
	History      store.Store
	Metrics      *monitoring.Collector
	RankConfig   *rank.Config

	closers []func()
}

// Close releases held resources in reverse acquisition order.
func (e *serviceEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// initService wires the search backend, model provider, history store,
// and orchestrator from loaded config.
func initService(ctx context.Context) (*serviceEnv, error) {
	env := &serviceEnv{}

	rankCfg, err := rank.LoadConfig(cfg.Retrieval.ConfigPath)
	if err != nil {
		if !os.IsNotExist(eris.Cause(err)) {
			return nil, eris.Wrap(err, "load retrieval config")
		}
		zap.L().Info("no retrieval config file, using defaults",
			zap.String("path", cfg.Retrieval.ConfigPath))
		rankCfg = rank.DefaultConfig()
	}
	env.RankConfig = rankCfg

	if cfg.Search.DatabaseURL == "" {
		return nil, eris.New("search.database_url is required (LEGISEARCH_SEARCH_DATABASE_URL)")
	}
	pool, err := search.Connect(ctx, cfg.Search.DatabaseURL)
	if err != nil {
		return nil, err
	}
	env.closers = append(env.closers, pool.Close)

	var embedder search.Embedder = search.NewOpenAIEmbedder(search.EmbedderConfig{
		APIKey:     cfg.Embedding.Key,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
	})
	if cfg.Embedding.CacheSize > 0 {
		cached, err := search.NewCachedEmbedder(embedder, cfg.Embedding.CacheSize)
		if err != nil {
			env.Close()
			return nil, err
		}
		embedder = cached
	}

	env.Backend = search.NewPostgresClient(pool, embedder, rankCfg.Weights, search.PostgresConfig{
		RatePerSecond: cfg.Search.RequestsPerSec,
		RateBurst:     cfg.Search.Burst,
	})
	env.Searcher = search.NewGuardedClient(env.Backend, resilience.NewBreaker(5, 30*time.Second))

	if cfg.History.Enabled {
		st, err := store.NewSQLite(cfg.History.Path)
		if err != nil {
			env.Close()
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			env.Close()
			return nil, eris.Wrap(err, "migrate history store")
		}
		env.History = st
		env.closers = append(env.closers, func() { _ = st.Close() })
	} else {
		zap.L().Info("session history disabled")
	}

	rates := cost.DefaultRates()
	for m, p := range cfg.Pricing.Anthropic {
		rates.Anthropic[m] = cost.ModelRate{
			Input:         p.Input,
			Output:        p.Output,
			CacheWriteMul: p.CacheWriteMul,
			CacheReadMul:  p.CacheReadMul,
		}
	}
	if cfg.Pricing.Embedding.PerMTok > 0 {
		rates.Embedding.PerMTok = cfg.Pricing.Embedding.PerMTok
	}

	temp := cfg.Anthropic.Temperature
	env.Orchestrator = orchestrator.New(
		anthropicpkg.NewClient(cfg.Anthropic.Key),
		env.Searcher,
		rankCfg,
		cost.NewCalculator(rates),
		env.History,
		orchestrator.Config{
			Model:            cfg.Anthropic.Model,
			MaxTokens:        cfg.Anthropic.MaxTokens,
			Temperature:      &temp,
			MaxModelTurns:    cfg.Anthropic.MaxModelTurns,
			DefaultLimit:     cfg.Search.DefaultLimit,
			DefaultThreshold: cfg.Search.DefaultThreshold,
		},
	)

	env.Registry = stream.NewRegistry()
	env.Metrics = monitoring.NewCollector()

	return env, nil
}
