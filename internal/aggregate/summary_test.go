package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"revsense/pkg/contracts/domain"
)

func TestSummarize(t *testing.T) {
	rs := domain.ResultSet{
		"A": {Pos: 100, Neg: 0, Neu: 0, Total: 3, Compound: 1},
		"B": {Pos: 0, Neg: 100, Neu: 0, Total: 1, Compound: -1},
		"C": {}, // zero summary, contributes nothing
	}

	got := Summarize(rs)
	assert.Equal(t, 3, got.Products)
	assert.Equal(t, 4, got.Reviews)
	assert.InDelta(t, 1.33, got.AvgReviews, 0.001)
	assert.InDelta(t, 75.0, got.WeightedPositive, 0.001)
	assert.InDelta(t, 25.0, got.WeightedNegative, 0.001)
	assert.InDelta(t, 0.0, got.WeightedNeutral, 0.001)
}

func TestSummarizeEmpty(t *testing.T) {
	got := Summarize(domain.ResultSet{})
	assert.Zero(t, got.Products)
	assert.Zero(t, got.Reviews)
	assert.Zero(t, got.WeightedPositive)
}

func TestTopRankings(t *testing.T) {
	rs := domain.ResultSet{
		"A": {Pos: 90, Neg: 10, Total: 5},
		"B": {Pos: 50, Neg: 50, Total: 5},
		"C": {Pos: 10, Neg: 90, Total: 5},
		"D": {}, // excluded: no reviews
	}

	top := TopPositive(rs, 2)
	assert.Equal(t, []ProductShare{{"A", 90}, {"B", 50}}, top)

	bottom := TopNegative(rs, 2)
	assert.Equal(t, []ProductShare{{"C", 90}, {"B", 50}}, bottom)
}

func TestTopRankingsTieBreak(t *testing.T) {
	rs := domain.ResultSet{
		"B": {Pos: 50, Total: 2},
		"A": {Pos: 50, Total: 2},
	}
	top := TopPositive(rs, 0)
	assert.Equal(t, []ProductShare{{"A", 50}, {"B", 50}}, top)
}
