package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/vpetrenko/failtriage/internal/cache"
	"github.com/vpetrenko/failtriage/internal/llm"
	"github.com/vpetrenko/failtriage/pkg/models"
)

// Orchestrator drives cluster analysis with bounded concurrency and
// per-cluster retries. Permits are held only while a call is in flight, so
// a cluster waiting out its backoff never starves others.
type Orchestrator struct {
	analyzer   llm.Analyzer
	cache      cache.Cache
	maxRetries int
	baseDelay  time.Duration
	cacheTTL   time.Duration
	sem        *semaphore.Weighted

	// sleep is swappable so tests can observe the backoff schedule without
	// waiting it out.
	sleep func(ctx context.Context, d time.Duration) error
}

// OrchestratorOptions configures an Orchestrator. Cache may be nil to
// disable result caching.
type OrchestratorOptions struct {
	Analyzer    llm.Analyzer
	Cache       cache.Cache
	MaxRetries  int
	BaseDelay   time.Duration
	Concurrency int
	CacheTTL    time.Duration
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Orchestrator{
		analyzer:   opts.Analyzer,
		cache:      opts.Cache,
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseDelay,
		cacheTTL:   opts.CacheTTL,
		sem:        semaphore.NewWeighted(int64(opts.Concurrency)),
		sleep:      sleepCtx,
	}
}

// Run analyzes every cluster request and returns one terminal result per
// cluster id. A cluster's failure never affects another cluster.
func (o *Orchestrator) Run(ctx context.Context, reqs []models.AnalysisRequest) map[string]*models.AnalysisResult {
	results := make(map[string]*models.AnalysisResult, len(reqs))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, req := range reqs {
		mu.Lock()
		results[req.ClusterID] = &models.AnalysisResult{
			ClusterID: req.ClusterID,
			Status:    models.AnalysisPending,
		}
		mu.Unlock()

		wg.Add(1)
		go func(req models.AnalysisRequest) {
			defer wg.Done()
			result := o.analyzeOne(ctx, req)
			mu.Lock()
			results[req.ClusterID] = result
			mu.Unlock()
		}(req)
	}

	wg.Wait()
	return results
}

// analyzeOne walks one cluster through the attempt state machine:
// pending -> in_flight{attempt} -> succeeded | exhausted.
func (o *Orchestrator) analyzeOne(ctx context.Context, req models.AnalysisRequest) *models.AnalysisResult {
	result := &models.AnalysisResult{
		ClusterID: req.ClusterID,
		Status:    models.AnalysisPending,
	}

	if sections, ok := o.cached(ctx, req.ClusterID); ok {
		result.Status = models.AnalysisSucceeded
		result.Sections = sections
		slog.Debug("analysis cache hit", "cluster_id", req.ClusterID)
		return result
	}

	for attempt := 0; ; attempt++ {
		if err := o.sem.Acquire(ctx, 1); err != nil {
			result.Status = models.AnalysisExhausted
			result.Error = err.Error()
			return result
		}
		result.Status = models.AnalysisInFlight
		result.Attempts = attempt + 1

		sections, err := o.analyzer.Analyze(ctx, req)
		o.sem.Release(1)

		if err == nil {
			result.Status = models.AnalysisSucceeded
			result.Sections = &sections
			result.Error = ""
			o.store(ctx, req.ClusterID, &sections)
			return result
		}

		result.Error = err.Error()
		if !llm.IsRetryable(err) || attempt >= o.maxRetries {
			result.Status = models.AnalysisExhausted
			slog.Warn("cluster analysis exhausted",
				"cluster_id", req.ClusterID, "attempts", result.Attempts, "error", err)
			return result
		}

		delay := o.baseDelay * (1 << attempt)
		slog.Debug("retrying cluster analysis",
			"cluster_id", req.ClusterID, "attempt", result.Attempts, "delay", delay)
		if err := o.sleep(ctx, delay); err != nil {
			result.Status = models.AnalysisExhausted
			result.Error = err.Error()
			return result
		}
	}
}

func (o *Orchestrator) cached(ctx context.Context, clusterID string) (*models.AnalysisSections, bool) {
	if o.cache == nil {
		return nil, false
	}
	raw, found, err := o.cache.Get(ctx, cache.AnalysisKey(clusterID))
	if err != nil || !found {
		return nil, false
	}
	var sections models.AnalysisSections
	if err := json.Unmarshal(raw, &sections); err != nil {
		return nil, false
	}
	return &sections, true
}

func (o *Orchestrator) store(ctx context.Context, clusterID string, sections *models.AnalysisSections) {
	if o.cache == nil {
		return
	}
	raw, err := json.Marshal(sections)
	if err != nil {
		return
	}
	if err := o.cache.Set(ctx, cache.AnalysisKey(clusterID), raw, o.cacheTTL); err != nil {
		slog.Warn("caching analysis result failed", "cluster_id", clusterID, "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
