package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"revsense/internal/sentiment"
	"revsense/pkg/contracts/domain"
)

// Worker pool bounds. Scoring is lexicon-lookup-bound, so parallelism past
// a small cap only adds contention on the shared memoization cache.
const (
	MinWorkers = 2
	MaxWorkers = 8

	// minBatchRows is the floor on batch size; larger batches reduce
	// per-task scheduling overhead.
	minBatchRows = 1000
)

// Scorer is the single-text polarity collaborator.
type Scorer interface {
	Score(text string) sentiment.Score
}

// WorkerCount derives the pool size from host parallelism, clamped to
// [MinWorkers, MaxWorkers].
func WorkerCount() int {
	return ClampWorkers(runtime.NumCPU())
}

// ClampWorkers clamps n to the supported worker range.
func ClampWorkers(n int) int {
	if n < MinWorkers {
		return MinWorkers
	}
	if n > MaxWorkers {
		return MaxWorkers
	}
	return n
}

// BatchSize computes the batch row count for n flattened reviews across the
// given worker count. This sizing is a throughput trade-off, not a
// correctness requirement.
func BatchSize(n, workers int) int {
	if workers < 1 {
		workers = 1
	}
	size := n / (workers * 2)
	if size < minBatchRows {
		size = minBatchRows
	}
	if size < 1 {
		size = 1
	}
	return size
}

// Aggregator scores a review corpus across a bounded worker pool and merges
// the per-product counters into sentiment summaries.
type Aggregator struct {
	scorer  Scorer
	workers int
	logger  *slog.Logger

	// Progress, when set, receives the fraction of batches completed in
	// [0,1]. Delivery is fire-and-forget.
	Progress func(fraction float64)
}

// New returns an Aggregator using the given scorer and worker count. A
// non-positive worker count selects WorkerCount().
func New(scorer Scorer, workers int, logger *slog.Logger) *Aggregator {
	if workers <= 0 {
		workers = WorkerCount()
	} else {
		workers = ClampWorkers(workers)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		scorer:  scorer,
		workers: workers,
		logger:  logger.With(slog.String("component", "aggregate")),
	}
}

// Workers returns the effective worker count.
func (a *Aggregator) Workers() int { return a.workers }

// batch is a contiguous slice [start,end) of the flattened review sequence.
type batch struct {
	index int
	start int
	end   int
}

// Aggregate flattens the corpus, scores it in batches across the worker
// pool and merges per-product counters. Batches execute in any order but
// results are reassembled in original batch order before aggregation, so
// the outcome is deterministic and each review is processed exactly once.
//
// A panic while scoring a batch does not abort the run: every product with
// a review in the failed batch receives a placeholder summary carrying the
// error, and unaffected products complete normally.
func (a *Aggregator) Aggregate(ctx context.Context, corpus domain.ReviewCorpus) (domain.ResultSet, error) {
	products := corpus.Products()

	// Flatten into two parallel sequences of equal length.
	total := corpus.TotalReviews()
	productOf := make([]string, 0, total)
	reviewText := make([]string, 0, total)
	for _, product := range products {
		for _, text := range corpus[product] {
			productOf = append(productOf, product)
			reviewText = append(reviewText, text)
		}
	}

	if total == 0 {
		return domain.ResultSet{}, nil
	}

	size := BatchSize(total, a.workers)
	var batches []batch
	for start := 0; start < total; start += size {
		end := start + size
		if end > total {
			end = total
		}
		batches = append(batches, batch{index: len(batches), start: start, end: end})
	}

	a.logger.Debug("scoring corpus",
		slog.Int("reviews", total),
		slog.Int("batches", len(batches)),
		slog.Int("batch_size", size),
		slog.Int("workers", a.workers))

	// Slots indexed by batch number restore original order regardless of
	// completion order.
	scores := make([][]sentiment.Score, len(batches))
	batchErrs := make([]error, len(batches))
	done := make(chan int, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for _, bt := range batches {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			scores[bt.index], batchErrs[bt.index] = a.scoreBatch(reviewText[bt.start:bt.end])
			done <- bt.index
			return nil
		})
	}

	// Coalesced progress as batches complete; drained before returning so
	// callers never observe late deliveries.
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		completed := 0
		for range done {
			completed++
			if a.Progress != nil {
				a.Progress(float64(completed) / float64(len(batches)))
			}
		}
	}()

	err := g.Wait()
	close(done)
	<-progressDone
	if err != nil {
		return nil, err
	}

	return a.merge(products, productOf, batches, scores, batchErrs), nil
}

// scoreBatch scores one batch, converting a scorer panic into an error so a
// bad batch degrades instead of killing the run.
func (a *Aggregator) scoreBatch(texts []string) (scores []sentiment.Score, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			scores = nil
			err = fmt.Errorf("scoring batch failed: %v", rec)
		}
	}()

	scores = make([]sentiment.Score, len(texts))
	for i, text := range texts {
		scores[i] = a.scorer.Score(text)
	}
	return scores, nil
}

// counters accumulates classification counts for one product.
type counters struct {
	pos, neg, neu, total int
}

// merge walks the flattened sequence in original order, incrementing each
// product's counters, then converts counters to summaries. Products touched
// by a failed batch are overridden with an error placeholder.
func (a *Aggregator) merge(products, productOf []string, batches []batch, scores [][]sentiment.Score, batchErrs []error) domain.ResultSet {
	counts := make(map[string]*counters, len(products))
	for _, p := range products {
		counts[p] = &counters{}
	}
	failed := make(map[string]string)

	for _, bt := range batches {
		if batchErrs[bt.index] != nil {
			msg := batchErrs[bt.index].Error()
			for i := bt.start; i < bt.end; i++ {
				failed[productOf[i]] = msg
			}
			a.logger.Warn("batch failed, emitting placeholders",
				slog.Int("batch", bt.index),
				slog.String("error", msg))
			continue
		}
		for i := bt.start; i < bt.end; i++ {
			c := counts[productOf[i]]
			c.total++
			switch scores[bt.index][i-bt.start].Class() {
			case sentiment.ClassPositive:
				c.pos++
			case sentiment.ClassNegative:
				c.neg++
			default:
				c.neu++
			}
		}
	}

	results := make(domain.ResultSet, len(products))
	for _, product := range products {
		if msg, ok := failed[product]; ok {
			results[product] = domain.SentimentSummary{Error: msg}
			continue
		}
		results[product] = summarize(counts[product])
	}
	return results
}

// summarize converts raw counters to the rounded percentage summary.
func summarize(c *counters) domain.SentimentSummary {
	if c.total == 0 {
		return domain.ZeroSummary()
	}
	total := float64(c.total)
	return domain.SentimentSummary{
		Pos:      round2(float64(c.pos) / total * 100),
		Neg:      round2(float64(c.neg) / total * 100),
		Neu:      round2(float64(c.neu) / total * 100),
		Total:    c.total,
		Compound: round4(float64(c.pos-c.neg) / total),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
