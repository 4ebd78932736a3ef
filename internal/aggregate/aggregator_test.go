package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"revsense/internal/sentiment"
	"revsense/pkg/contracts/domain"
)

// stubScorer classifies by fixed per-text compounds, panicking on texts it
// was told to fail.
type stubScorer struct {
	compounds map[string]float64
	failOn    map[string]bool
}

func (s *stubScorer) Score(text string) sentiment.Score {
	if s.failOn[text] {
		panic("lexicon exploded")
	}
	return sentiment.Score{Compound: s.compounds[text]}
}

func TestClampWorkers(t *testing.T) {
	assert.Equal(t, 2, ClampWorkers(0))
	assert.Equal(t, 2, ClampWorkers(1))
	assert.Equal(t, 4, ClampWorkers(4))
	assert.Equal(t, 8, ClampWorkers(8))
	assert.Equal(t, 8, ClampWorkers(64))
}

func TestBatchSize(t *testing.T) {
	assert.Equal(t, 1000, BatchSize(10, 4))
	assert.Equal(t, 1000, BatchSize(0, 4))
	assert.Equal(t, 12_500, BatchSize(100_000, 4))
}

func TestAggregateCounts(t *testing.T) {
	corpus := domain.ReviewCorpus{
		"Widget": {"good one", "bad one", "plain one"},
	}
	scorer := &stubScorer{compounds: map[string]float64{
		"good one":  0.8,
		"bad one":   -0.8,
		"plain one": 0.0,
	}}

	a := New(scorer, 4, slog.Default())
	results, err := a.Aggregate(context.Background(), corpus)
	require.NoError(t, err)

	got := results["Widget"]
	assert.Equal(t, 3, got.Total)
	assert.InDelta(t, 33.33, got.Pos, 0.001)
	assert.InDelta(t, 33.33, got.Neg, 0.001)
	assert.InDelta(t, 33.33, got.Neu, 0.001)
	assert.InDelta(t, 0.0, got.Compound, 0.0001)
}

func TestAggregateSharesSumTo100(t *testing.T) {
	compounds := make(map[string]float64)
	var reviews []string
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 257; i++ {
		text := fmt.Sprintf("review %d", i)
		reviews = append(reviews, text)
		compounds[text] = rng.Float64()*2 - 1
	}
	corpus := domain.ReviewCorpus{"Widget": reviews}

	a := New(&stubScorer{compounds: compounds}, 4, slog.Default())
	results, err := a.Aggregate(context.Background(), corpus)
	require.NoError(t, err)

	got := results["Widget"]
	assert.Equal(t, 257, got.Total)
	assert.InDelta(t, 100.0, got.Pos+got.Neg+got.Neu, 0.02)
}

func TestAggregateOrderIndependent(t *testing.T) {
	compounds := map[string]float64{}
	var reviews []string
	for i := 0; i < 50; i++ {
		text := fmt.Sprintf("review %d", i)
		reviews = append(reviews, text)
		compounds[text] = float64(i%3-1) * 0.5
	}
	corpus := domain.ReviewCorpus{"Widget": reviews}

	a := New(&stubScorer{compounds: compounds}, 4, slog.Default())
	first, err := a.Aggregate(context.Background(), corpus)
	require.NoError(t, err)

	shuffled := append([]string(nil), reviews...)
	rand.New(rand.NewSource(42)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	second, err := a.Aggregate(context.Background(), domain.ReviewCorpus{"Widget": shuffled})
	require.NoError(t, err)

	assert.Equal(t, first["Widget"], second["Widget"])
}

func TestAggregateBatchFailurePlaceholders(t *testing.T) {
	corpus := domain.ReviewCorpus{
		"Broken": {"cursed text"},
		"Fine":   {"lovely text"},
	}
	scorer := &stubScorer{
		compounds: map[string]float64{"lovely text": 0.9},
		failOn:    map[string]bool{"cursed text": true},
	}

	a := New(scorer, 2, slog.Default())
	results, err := a.Aggregate(context.Background(), corpus)
	require.NoError(t, err)

	// One batch holds both products here, so both degrade to placeholders.
	broken := results["Broken"]
	assert.Zero(t, broken.Total)
	assert.Zero(t, broken.Pos)
	assert.Contains(t, broken.Error, "lexicon exploded")
}

func TestAggregateEmptyCorpus(t *testing.T) {
	a := New(&stubScorer{}, 2, slog.Default())
	results, err := a.Aggregate(context.Background(), domain.ReviewCorpus{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestAggregateProgressMonotonic(t *testing.T) {
	compounds := map[string]float64{}
	var reviews []string
	for i := 0; i < 30; i++ {
		text := fmt.Sprintf("review %d", i)
		reviews = append(reviews, text)
		compounds[text] = 0
	}

	a := New(&stubScorer{compounds: compounds}, 2, slog.Default())
	var fractions []float64
	a.Progress = func(f float64) { fractions = append(fractions, f) }

	_, err := a.Aggregate(context.Background(), domain.ReviewCorpus{"Widget": reviews})
	require.NoError(t, err)

	for i := 1; i < len(fractions); i++ {
		assert.GreaterOrEqual(t, fractions[i], fractions[i-1])
	}
}

// TestAggregateWidgetScenario runs the real lexicon scorer end to end.
func TestAggregateWidgetScenario(t *testing.T) {
	corpus := domain.ReviewCorpus{
		"Widget": {
			"This is great and wonderful",
			"Terrible, broke immediately",
			"It is a widget",
		},
	}

	a := New(sentiment.NewScorer(), 4, slog.Default())
	results, err := a.Aggregate(context.Background(), corpus)
	require.NoError(t, err)

	got := results["Widget"]
	assert.Equal(t, 3, got.Total)
	assert.InDelta(t, 33.33, got.Pos, 0.01)
	assert.InDelta(t, 33.33, got.Neg, 0.01)
	assert.InDelta(t, 33.33, got.Neu, 0.01)
	assert.InDelta(t, 0.0, got.Compound, 0.0001)
	assert.InDelta(t, 100.0, got.Pos+got.Neg+got.Neu, 0.02)
}
