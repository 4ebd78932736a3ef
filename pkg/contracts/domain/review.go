package domain

import "sort"

// ReviewRecord is a single tabular row reduced to its four logical fields.
// It is transient: records exist only while a corpus is being built and are
// never persisted.
type ReviewRecord struct {
	Title   string
	Text    string
	Rating  float64
	Product string
}

// ReviewCorpus groups qualifying review texts by product key. Product keys
// are trimmed, case-sensitive strings; an entry never holds an empty list.
type ReviewCorpus map[string][]string

// Add appends a review text to the product's list.
func (c ReviewCorpus) Add(product, text string) {
	c[product] = append(c[product], text)
}

// TotalReviews returns the number of review texts across all products.
func (c ReviewCorpus) TotalReviews() int {
	n := 0
	for _, reviews := range c {
		n += len(reviews)
	}
	return n
}

// Products returns the product keys in sorted order for deterministic
// iteration.
func (c ReviewCorpus) Products() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SentimentSummary is the per-product aggregate. Pos, Neg and Neu are
// percentages that sum to 100.0 within rounding when Total > 0; all fields
// are zero when Total == 0. Error is set only on placeholder summaries
// emitted for products whose scoring batch failed.
type SentimentSummary struct {
	Pos      float64 `json:"pos"`
	Neg      float64 `json:"neg"`
	Neu      float64 `json:"neu"`
	Total    int     `json:"total"`
	Compound float64 `json:"compound"`
	Error    string  `json:"error,omitempty"`
}

// ZeroSummary is the summary emitted for a product with no scorable reviews.
func ZeroSummary() SentimentSummary {
	return SentimentSummary{}
}

// ResultSet maps product keys to their sentiment summaries. It is the unit
// persisted to the result cache and handed to presentation.
type ResultSet map[string]SentimentSummary

// Products returns the product keys in sorted order.
func (rs ResultSet) Products() []string {
	keys := make([]string, 0, len(rs))
	for k := range rs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// TotalReviews returns the number of reviews represented by the result set.
func (rs ResultSet) TotalReviews() int {
	n := 0
	for _, s := range rs {
		n += s.Total
	}
	return n
}
