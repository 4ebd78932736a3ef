// Package pipeline orchestrates one analysis run: corpus build, parallel
// scoring and aggregation, and result caching, with progress reported to an
// injected sink. It has no dependency on any presentation runtime.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"revsense/internal/aggregate"
	"revsense/internal/corpus"
	"revsense/internal/resultcache"
	"revsense/internal/sentiment"
	"revsense/pkg/contracts/domain"
)

// progressPerSecond bounds how often a sink is notified mid-run.
const progressPerSecond = 20

// Options tune a Runner. Zero values select the documented defaults.
type Options struct {
	// Workers is the scoring pool size; 0 derives it from host
	// parallelism, clamped to [2,8].
	Workers int
	// MemoSize bounds the scorer's memoization cache.
	MemoSize int
	// SizeThreshold switches the corpus build to the chunked path.
	SizeThreshold int64
	// ChunkSize is the row budget per chunk.
	ChunkSize int
	// MinReviews is the minimum review count per product.
	MinReviews int
	// DisableCache skips both the cache probe and the cache write.
	DisableCache bool
}

// RunResult is the outcome of one completed analysis run.
type RunResult struct {
	ID        string `json:"id"`
	Source    string `json:"source"`
	FromCache bool   `json:"from_cache"`
	// Workers is the scoring worker count the run used. Zero on a cache
	// hit, where no scoring happened; the field is then omitted from JSON.
	Workers  int               `json:"workers,omitempty"`
	Duration time.Duration     `json:"duration"`
	Results  domain.ResultSet  `json:"results"`
	Overall  aggregate.Overall `json:"overall"`
}

// Runner executes analysis runs. At most one run is active at a time; a
// second invocation while one is in flight fails with ErrRunInProgress
// instead of queuing. The scorer and its memoization cache are shared
// across runs, so repeated texts stay cheap between files.
type Runner struct {
	scorer *sentiment.Scorer
	cache  *resultcache.Store
	logger *slog.Logger
	opts   Options

	mu      sync.Mutex
	running bool

	lastMu sync.RWMutex
	last   *RunResult
}

// NewRunner creates a Runner. cache may be nil only when opts.DisableCache
// is set.
func NewRunner(cache *resultcache.Store, logger *slog.Logger, opts Options) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		scorer: sentiment.NewScorerSize(opts.MemoSize),
		cache:  cache,
		logger: logger.With(slog.String("component", "pipeline")),
		opts:   opts,
	}
}

// Running reports whether an analysis is currently in flight.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// LastResult returns the most recently completed run, or nil.
func (r *Runner) LastResult() *RunResult {
	r.lastMu.RLock()
	defer r.lastMu.RUnlock()
	return r.last
}

// Run analyzes the tabular file at sourcePath and returns the per-product
// result set. When an entry for the file's current identity exists in the
// result cache, the build and scoring stages are skipped entirely.
//
// Progress lands on sink throttled and monotonic; sink may be nil. ctx
// cancellation aborts between chunks and batches.
func (r *Runner) Run(ctx context.Context, sourcePath string, sink ProgressSink) (*RunResult, error) {
	if !r.begin() {
		return nil, ErrRunInProgress
	}
	defer r.end()

	started := time.Now()
	runID := uuid.New().String()
	logger := r.logger.With(slog.String("run_id", runID), slog.String("source", sourcePath))
	out := throttle(sink, progressPerSecond)

	result, err := r.run(ctx, sourcePath, runID, logger, out)
	if err != nil {
		runsTotal.WithLabelValues("failed").Inc()
		logger.Error("analysis failed",
			slog.Duration("duration", time.Since(started)),
			slog.String("error", err.Error()))
		return nil, err
	}

	result.Duration = time.Since(started)
	runsTotal.WithLabelValues("completed").Inc()
	logger.Info("analysis complete",
		slog.Bool("from_cache", result.FromCache),
		slog.Int("products", len(result.Results)),
		slog.Int("reviews", result.Results.TotalReviews()),
		slog.Duration("duration", result.Duration))

	r.lastMu.Lock()
	r.last = result
	r.lastMu.Unlock()

	out.Progress(100, "Analysis complete")
	return result, nil
}

func (r *Runner) run(ctx context.Context, sourcePath, runID string, logger *slog.Logger, out ProgressSink) (*RunResult, error) {
	var key resultcache.Key
	useCache := !r.opts.DisableCache && r.cache != nil

	if useCache {
		k, err := r.cache.KeyFor(sourcePath)
		if err != nil {
			return nil, err
		}
		key = k

		if r.cache.Has(key) {
			cached, err := r.cache.Load(key)
			if err == nil {
				cacheHitsTotal.Inc()
				logger.Info("serving cached results", slog.String("entry", key.Filename()))
				return &RunResult{
					ID:        runID,
					Source:    sourcePath,
					FromCache: true,
					Results:   cached,
					Overall:   aggregate.Summarize(cached),
				}, nil
			}
			// A damaged entry is recoverable: re-run instead of using it.
			logger.Warn("cache entry unreadable, re-analyzing",
				slog.String("error", err.Error()))
		}
		cacheMissesTotal.Inc()
	}

	src, err := corpus.Open(sourcePath)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	builder := corpus.NewBuilder(logger)
	if r.opts.SizeThreshold > 0 {
		builder.SizeThreshold = r.opts.SizeThreshold
	}
	if r.opts.ChunkSize > 0 {
		builder.ChunkSize = r.opts.ChunkSize
	}
	if r.opts.MinReviews > 0 {
		builder.MinReviews = r.opts.MinReviews
	}
	builder.Progress = func(fraction float64) {
		out.Progress(ingestPct(fraction), "Reading reviews")
	}

	reviews, err := builder.Build(ctx, src)
	if err != nil {
		return nil, err
	}
	if len(reviews) == 0 {
		return nil, &EmptyCorpusError{Source: sourcePath}
	}
	out.Progress(ingestSpanEnd, "Corpus ready")

	agg := aggregate.New(r.scorer, r.opts.Workers, logger)
	agg.Progress = func(fraction float64) {
		out.Progress(scorePct(fraction), "Scoring reviews")
	}

	logger.Info("scoring corpus",
		slog.Int("products", len(reviews)),
		slog.Int("reviews", reviews.TotalReviews()),
		slog.Int("workers", agg.Workers()))

	results, err := agg.Aggregate(ctx, reviews)
	if err != nil {
		return nil, err
	}
	reviewsScoredTotal.Add(float64(reviews.TotalReviews()))

	if useCache {
		// Cache writes are fire-and-forget: a failure costs only a future
		// re-analysis and must never fail the run.
		if err := r.cache.Save(key, results); err != nil {
			logger.Warn("failed to cache results", slog.String("error", err.Error()))
		}
	}

	return &RunResult{
		ID:      runID,
		Source:  sourcePath,
		Workers: agg.Workers(),
		Results: results,
		Overall: aggregate.Summarize(results),
	}, nil
}

// LoadCached returns the cached result set for sourcePath without running
// an analysis. A damaged or missing entry surfaces as
// *resultcache.ReadError so callers can offer a fresh run instead.
func (r *Runner) LoadCached(sourcePath string) (domain.ResultSet, error) {
	if r.cache == nil {
		return nil, errors.New("result cache disabled")
	}
	key, err := r.cache.KeyFor(sourcePath)
	if err != nil {
		return nil, err
	}
	return r.cache.Load(key)
}

// HasCached reports whether a cache entry exists for the file's current
// identity.
func (r *Runner) HasCached(sourcePath string) bool {
	if r.cache == nil {
		return false
	}
	key, err := r.cache.KeyFor(sourcePath)
	if err != nil {
		return false
	}
	return r.cache.Has(key)
}

func (r *Runner) begin() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return false
	}
	r.running = true
	return true
}

func (r *Runner) end() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}
