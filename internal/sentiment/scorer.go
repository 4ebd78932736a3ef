package sentiment

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonreiter/govader"
)

// Classification thresholds on the compound score. These constants are the
// single source of truth used by both the scorer and the aggregator; a
// compound of exactly +0.05 or -0.05 classifies neutral.
const (
	PositiveThreshold = 0.05
	NegativeThreshold = -0.05
)

// DefaultMemoSize bounds the number of distinct texts memoized by a Scorer.
const DefaultMemoSize = 10_000

// Class labels the polarity of a scored text.
type Class string

const (
	ClassPositive Class = "positive"
	ClassNegative Class = "negative"
	ClassNeutral  Class = "neutral"
)

// Classify maps a compound score to its class using the fixed thresholds.
func Classify(compound float64) Class {
	switch {
	case compound > PositiveThreshold:
		return ClassPositive
	case compound < NegativeThreshold:
		return ClassNegative
	default:
		return ClassNeutral
	}
}

// Score is the polarity result for a single text.
type Score struct {
	Compound float64
}

// Class returns the classification of the score.
func (s Score) Class() Class {
	return Classify(s.Compound)
}

// Scorer computes lexicon-based polarity scores. Scoring is a pure function
// of the input text, so results are memoized in a bounded LRU shared by all
// callers; the Scorer is safe for concurrent use.
type Scorer struct {
	mu      sync.Mutex
	analyze func(text string) float64
	memo    *lru.Cache[string, float64]
}

// NewScorer returns a Scorer backed by the VADER lexicon analyzer with the
// default memoization capacity.
func NewScorer() *Scorer {
	return NewScorerSize(DefaultMemoSize)
}

// NewScorerSize returns a Scorer with the given memoization capacity.
func NewScorerSize(capacity int) *Scorer {
	if capacity <= 0 {
		capacity = DefaultMemoSize
	}
	sia := govader.NewSentimentIntensityAnalyzer()
	return newScorer(capacity, func(text string) float64 {
		return sia.PolarityScores(text).Compound
	})
}

// newScorer wires an arbitrary analyze function; tests use this to count
// underlying analyzer invocations.
func newScorer(capacity int, analyze func(string) float64) *Scorer {
	memo, err := lru.New[string, float64](capacity)
	if err != nil {
		// lru.New only fails on non-positive sizes, which the callers
		// above never pass.
		panic(err)
	}
	return &Scorer{analyze: analyze, memo: memo}
}

// Score returns the compound polarity for text. Identical inputs never
// re-invoke the underlying analyzer while the entry remains cached.
func (s *Scorer) Score(text string) Score {
	if compound, ok := s.memo.Get(text); ok {
		return Score{Compound: compound}
	}

	// The govader analyzer mutates internal tokenizer state, so scoring is
	// serialized; the LRU above absorbs the contention for repeated texts.
	s.mu.Lock()
	compound := s.analyze(text)
	s.mu.Unlock()

	s.memo.Add(text, compound)
	return Score{Compound: compound}
}

// MemoLen reports the number of memoized texts.
func (s *Scorer) MemoLen() int {
	return s.memo.Len()
}
