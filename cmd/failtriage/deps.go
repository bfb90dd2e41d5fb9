package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vpetrenko/failtriage/internal/analysis"
	"github.com/vpetrenko/failtriage/internal/cache"
	"github.com/vpetrenko/failtriage/internal/config"
	"github.com/vpetrenko/failtriage/internal/extract"
	"github.com/vpetrenko/failtriage/internal/knowledge"
	"github.com/vpetrenko/failtriage/internal/llm"
	"github.com/vpetrenko/failtriage/internal/pipeline"
	"github.com/vpetrenko/failtriage/internal/testops"
	"github.com/vpetrenko/failtriage/pkg/models"
)

// deps bundles everything a command needs, plus the close hooks to run on
// exit.
type deps struct {
	cfg      *config.Config
	client   *testops.Client
	runner   *pipeline.Runner
	cache    cache.Cache
	feedback knowledge.FeedbackStore

	closers []func()
}

func (d *deps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func newClient(cfg *config.Config) *testops.Client {
	return testops.NewClient(testops.Options{
		Endpoint: cfg.TestOps.Endpoint,
		Token:    cfg.TestOps.Token,
		Timeout:  cfg.TestOps.RequestTimeout,
		PageSize: cfg.TestOps.PageSize,
		MaxPages: cfg.TestOps.MaxPages,
	})
}

// buildDeps assembles the full pipeline from config. Optional backends that
// fail to come up disable their stage instead of aborting; required ones
// return an error.
func buildDeps(ctx context.Context) (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	d := &deps{cfg: cfg}
	d.client = newClient(cfg)

	extractor := extract.New(d.client, int64(cfg.TestOps.DetailConcurrency))
	triager := pipeline.NewTriager(d.client, extractor, cfg.TestOps.Endpoint)

	var engine *analysis.Engine
	if cfg.Cluster.Enabled {
		engine = analysis.NewEngine(cfg.Cluster.Threshold)
	}

	kbStore, err := buildKBStore(ctx, cfg, d)
	if err != nil {
		return nil, err
	}

	if cfg.Redis.URL != "" {
		redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("create redis cache: %w", err)
		}
		if err := redisCache.Ping(ctx); err != nil {
			slog.Warn("redis unreachable, caching disabled", "error", err)
			redisCache.Close()
		} else {
			d.cache = redisCache
			d.closers = append(d.closers, func() { redisCache.Close() })
		}
	}

	var orchestrator *pipeline.Orchestrator
	if cfg.Analysis.Enabled {
		analyzer := llm.NewClient(llm.Options{
			BaseURL: cfg.Analysis.BaseURL,
			FlowID:  cfg.Analysis.FlowID,
			APIKey:  cfg.Analysis.APIKey,
			Timeout: cfg.Analysis.Timeout,
		})
		orchestrator = pipeline.NewOrchestrator(pipeline.OrchestratorOptions{
			Analyzer:    analyzer,
			Cache:       d.cache,
			MaxRetries:  cfg.Analysis.MaxRetries,
			BaseDelay:   cfg.Analysis.BaseDelay,
			Concurrency: cfg.Analysis.Concurrency,
			CacheTTL:    cfg.Analysis.CacheTTL,
		})
	}

	d.runner = pipeline.NewRunner(pipeline.RunnerOptions{
		Triager:      triager,
		Engine:       engine,
		KBStore:      kbStore,
		Feedback:     d.feedback,
		Orchestrator: orchestrator,
		Sink:         d.client,
		Scope:        models.ProjectScope(cfg.TestOps.ProjectID),
		MinScore:     cfg.Knowledge.MinScore,
		MaxResults:   cfg.Knowledge.MaxResults,
		PushMatches:  cfg.Knowledge.Push,
		PushAnalyses: cfg.Analysis.Push,
	})
	return d, nil
}

func buildKBStore(ctx context.Context, cfg *config.Config, d *deps) (knowledge.Store, error) {
	if !cfg.Knowledge.Enabled {
		return nil, nil
	}

	switch cfg.Knowledge.Backend {
	case "postgres":
		pool, err := knowledge.Connect(ctx, cfg.Knowledge.DatabaseURL, 0)
		if err != nil {
			// The runner records the degradation; matching is skipped.
			slog.Warn("knowledge database unavailable", "error", err)
			return unavailableStore{}, nil
		}
		d.closers = append(d.closers, pool.Close)
		// Feedback votes live in the same database; the YAML backend has
		// no write path, so votes stay disabled there.
		d.feedback = knowledge.NewPostgresFeedback(pool)
		return knowledge.NewPostgresStore(pool), nil
	case "yaml":
		store, err := knowledge.LoadYAMLStore(cfg.Knowledge.FilePath)
		if err != nil {
			return nil, fmt.Errorf("load knowledge file: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown knowledge backend %q", cfg.Knowledge.Backend)
	}
}

// unavailableStore stands in for a knowledge database that was down at
// startup, so each run records the degradation.
type unavailableStore struct{}

func (unavailableStore) ListEntries(context.Context, models.Scope) ([]models.KnowledgeEntry, error) {
	return nil, knowledge.ErrStoreUnavailable
}
