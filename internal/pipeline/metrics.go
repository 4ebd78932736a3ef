package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "revsense_analysis_runs_total",
		Help: "Completed analysis runs by outcome.",
	}, []string{"status"})

	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "revsense_result_cache_hits_total",
		Help: "Analysis runs served entirely from the result cache.",
	})

	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "revsense_result_cache_misses_total",
		Help: "Analysis runs that required a fresh build and scoring pass.",
	})

	reviewsScoredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "revsense_reviews_scored_total",
		Help: "Review texts pushed through the sentiment scorer.",
	})
)
