package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vpetrenko/failtriage/internal/cache"
	"github.com/vpetrenko/failtriage/internal/llm"
	"github.com/vpetrenko/failtriage/pkg/models"
)

// fakeAnalyzer scripts per-call errors and tracks in-flight concurrency.
type fakeAnalyzer struct {
	mu       sync.Mutex
	errs     []error
	calls    int
	inFlight int32
	maxSeen  int32
	delay    time.Duration
}

func (f *fakeAnalyzer) Analyze(_ context.Context, req models.AnalysisRequest) (models.AnalysisSections, error) {
	cur := atomic.AddInt32(&f.inFlight, 1)
	for {
		seen := atomic.LoadInt32(&f.maxSeen)
		if cur <= seen || atomic.CompareAndSwapInt32(&f.maxSeen, seen, cur) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	atomic.AddInt32(&f.inFlight, -1)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return models.AnalysisSections{}, err
		}
	}
	return models.AnalysisSections{Situation: "verdict for " + req.ClusterID}, nil
}

// memoryCache is an in-process Cache for tests.
type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: make(map[string][]byte)}
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *memoryCache) Ping(_ context.Context) error { return nil }

func (c *memoryCache) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	return 1, nil
}

var _ cache.Cache = (*memoryCache)(nil)

func req(id string) models.AnalysisRequest {
	return models.AnalysisRequest{ClusterID: id, Label: "label " + id, Document: "doc", MemberCount: 1}
}

func TestOrchestrator_Success(t *testing.T) {
	o := NewOrchestrator(OrchestratorOptions{
		Analyzer:    &fakeAnalyzer{},
		MaxRetries:  3,
		BaseDelay:   time.Second,
		Concurrency: 2,
	})

	results := o.Run(context.Background(), []models.AnalysisRequest{req("a"), req("b")})
	require.Len(t, results, 2)
	for id, r := range results {
		assert.Equal(t, models.AnalysisSucceeded, r.Status, id)
		require.NotNil(t, r.Sections)
		assert.Equal(t, "verdict for "+id, r.Sections.Situation)
		assert.Equal(t, 1, r.Attempts)
	}
}

func TestOrchestrator_BackoffScheduleThenExhausted(t *testing.T) {
	analyzer := &fakeAnalyzer{errs: []error{
		llm.ErrRateLimited, llm.ErrRateLimited, llm.ErrRateLimited, llm.ErrRateLimited,
	}}
	o := NewOrchestrator(OrchestratorOptions{
		Analyzer:    analyzer,
		MaxRetries:  3,
		BaseDelay:   time.Second,
		Concurrency: 1,
	})

	var mu sync.Mutex
	var delays []time.Duration
	o.sleep = func(_ context.Context, d time.Duration) error {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
		return nil
	}

	results := o.Run(context.Background(), []models.AnalysisRequest{req("a")})
	r := results["a"]
	require.NotNil(t, r)
	assert.Equal(t, models.AnalysisExhausted, r.Status)
	assert.Equal(t, 4, r.Attempts)
	assert.NotEmpty(t, r.Error)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, delays)
}

func TestOrchestrator_RetryThenSuccess(t *testing.T) {
	analyzer := &fakeAnalyzer{errs: []error{llm.ErrUnavailable, nil}}
	o := NewOrchestrator(OrchestratorOptions{
		Analyzer:    analyzer,
		MaxRetries:  3,
		BaseDelay:   time.Millisecond,
		Concurrency: 1,
	})
	o.sleep = func(context.Context, time.Duration) error { return nil }

	results := o.Run(context.Background(), []models.AnalysisRequest{req("a")})
	r := results["a"]
	assert.Equal(t, models.AnalysisSucceeded, r.Status)
	assert.Equal(t, 2, r.Attempts)
	assert.Empty(t, r.Error)
}

func TestOrchestrator_TerminalErrorSkipsRetries(t *testing.T) {
	analyzer := &fakeAnalyzer{errs: []error{llm.ErrBadResponse}}
	o := NewOrchestrator(OrchestratorOptions{
		Analyzer:    analyzer,
		MaxRetries:  3,
		BaseDelay:   time.Second,
		Concurrency: 1,
	})
	o.sleep = func(context.Context, time.Duration) error {
		t.Fatal("sleep must not be called for a terminal error")
		return nil
	}

	results := o.Run(context.Background(), []models.AnalysisRequest{req("a")})
	r := results["a"]
	assert.Equal(t, models.AnalysisExhausted, r.Status)
	assert.Equal(t, 1, r.Attempts)
	assert.Equal(t, 1, analyzer.calls)
}

func TestOrchestrator_ConcurrencyCeiling(t *testing.T) {
	analyzer := &fakeAnalyzer{delay: 20 * time.Millisecond}
	o := NewOrchestrator(OrchestratorOptions{
		Analyzer:    analyzer,
		MaxRetries:  0,
		Concurrency: 3,
	})

	reqs := make([]models.AnalysisRequest, 10)
	for i := range reqs {
		reqs[i] = req(string(rune('a' + i)))
	}

	results := o.Run(context.Background(), reqs)
	assert.Len(t, results, 10)
	assert.LessOrEqual(t, atomic.LoadInt32(&analyzer.maxSeen), int32(3))
}

func TestOrchestrator_OneFailureDoesNotAffectOthers(t *testing.T) {
	analyzer := &fakeAnalyzer{errs: []error{llm.ErrBadResponse}}
	o := NewOrchestrator(OrchestratorOptions{
		Analyzer:    analyzer,
		MaxRetries:  0,
		Concurrency: 1,
	})

	results := o.Run(context.Background(), []models.AnalysisRequest{req("a"), req("b")})
	statuses := map[models.AnalysisStatus]int{}
	for _, r := range results {
		statuses[r.Status]++
	}
	assert.Equal(t, 1, statuses[models.AnalysisExhausted])
	assert.Equal(t, 1, statuses[models.AnalysisSucceeded])
}

func TestOrchestrator_CacheHitSkipsAnalyzer(t *testing.T) {
	mem := newMemoryCache()
	analyzer := &fakeAnalyzer{}
	o := NewOrchestrator(OrchestratorOptions{
		Analyzer:    analyzer,
		Cache:       mem,
		MaxRetries:  0,
		Concurrency: 1,
		CacheTTL:    time.Hour,
	})

	// First run populates the cache.
	first := o.Run(context.Background(), []models.AnalysisRequest{req("a")})
	require.Equal(t, models.AnalysisSucceeded, first["a"].Status)
	require.Equal(t, 1, analyzer.calls)

	second := o.Run(context.Background(), []models.AnalysisRequest{req("a")})
	assert.Equal(t, models.AnalysisSucceeded, second["a"].Status)
	require.NotNil(t, second["a"].Sections)
	assert.Equal(t, "verdict for a", second["a"].Sections.Situation)
	assert.Equal(t, 1, analyzer.calls, "cached result must not hit the analyzer again")
}

func TestOrchestrator_CancelledContextStops(t *testing.T) {
	analyzer := &fakeAnalyzer{errs: []error{llm.ErrRateLimited, llm.ErrRateLimited}}
	o := NewOrchestrator(OrchestratorOptions{
		Analyzer:    analyzer,
		MaxRetries:  5,
		BaseDelay:   time.Second,
		Concurrency: 1,
	})
	o.sleep = sleepCtx

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := o.Run(ctx, []models.AnalysisRequest{req("a")})
	assert.Equal(t, models.AnalysisExhausted, results["a"].Status)
}
