package aggregate

import (
	"sort"

	"revsense/pkg/contracts/domain"
)

// Overall is the review-weighted aggregate across every product in a
// result set.
type Overall struct {
	Products         int     `json:"products"`
	Reviews          int     `json:"reviews"`
	AvgReviews       float64 `json:"avg_reviews_per_product"`
	WeightedPositive float64 `json:"weighted_positive"`
	WeightedNegative float64 `json:"weighted_negative"`
	WeightedNeutral  float64 `json:"weighted_neutral"`
}

// Summarize computes overall statistics, weighting each product's shares by
// its review count. Placeholder and zero summaries contribute nothing.
func Summarize(rs domain.ResultSet) Overall {
	o := Overall{Products: len(rs)}
	var pos, neg, neu float64
	for _, s := range rs {
		o.Reviews += s.Total
		pos += s.Pos * float64(s.Total)
		neg += s.Neg * float64(s.Total)
		neu += s.Neu * float64(s.Total)
	}
	if o.Reviews > 0 {
		total := float64(o.Reviews)
		o.WeightedPositive = round2(pos / total)
		o.WeightedNegative = round2(neg / total)
		o.WeightedNeutral = round2(neu / total)
	}
	if o.Products > 0 {
		o.AvgReviews = round2(float64(o.Reviews) / float64(o.Products))
	}
	return o
}

// ProductShare pairs a product with one of its percentage shares, used for
// top-N rankings.
type ProductShare struct {
	Product string  `json:"product"`
	Share   float64 `json:"share"`
}

// TopPositive returns the n products with the highest positive share.
func TopPositive(rs domain.ResultSet, n int) []ProductShare {
	return topBy(rs, n, func(s domain.SentimentSummary) float64 { return s.Pos })
}

// TopNegative returns the n products with the highest negative share.
func TopNegative(rs domain.ResultSet, n int) []ProductShare {
	return topBy(rs, n, func(s domain.SentimentSummary) float64 { return s.Neg })
}

func topBy(rs domain.ResultSet, n int, share func(domain.SentimentSummary) float64) []ProductShare {
	ranked := make([]ProductShare, 0, len(rs))
	for product, s := range rs {
		if s.Total == 0 {
			continue
		}
		ranked = append(ranked, ProductShare{Product: product, Share: share(s)})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Share != ranked[j].Share {
			return ranked[i].Share > ranked[j].Share
		}
		return ranked[i].Product < ranked[j].Product
	})
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
