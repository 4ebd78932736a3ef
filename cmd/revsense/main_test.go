package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"revsense/internal/aggregate"
	"revsense/internal/config"
	"revsense/internal/pipeline"
	"revsense/pkg/contracts/domain"
)

func TestBuildRunnerHonorsFlags(t *testing.T) {
	cfg = config.Default()
	cfg.Cache.Dir = t.TempDir()
	workers = 3
	minReviews = 7
	noCache = false
	defer func() { workers, minReviews = 0, 0 }()

	runner, store, err := buildRunner()
	require.NoError(t, err)
	require.NotNil(t, runner)
	require.NotNil(t, store)
	assert.Equal(t, cfg.Cache.Dir, store.Dir())
}

func TestBuildRunnerNoCache(t *testing.T) {
	cfg = config.Default()
	cfg.Cache.Dir = t.TempDir()
	noCache = true
	defer func() { noCache = false }()

	runner, store, err := buildRunner()
	require.NoError(t, err)
	require.NotNil(t, runner)
	assert.Nil(t, store)
}

func TestResolveOutputPath(t *testing.T) {
	assert.Equal(t, "out.csv", resolveOutputPath("out.csv", "xlsx"), "an explicit extension wins")
	assert.Equal(t, "out.xlsx", resolveOutputPath("out", "xlsx"))
	assert.Equal(t, "results/out.json", resolveOutputPath("results/out", "json"))
}

func TestPrintResult(t *testing.T) {
	results := domain.ResultSet{
		"Widget": {Pos: 50, Neg: 25, Neu: 25, Total: 4},
		"Gadget": {Error: "scoring batch failed"},
	}
	result := &pipeline.RunResult{
		ID:       "run-1",
		Source:   "reviews.csv",
		Workers:  2,
		Duration: 120 * time.Millisecond,
		Results:  results,
		Overall:  aggregate.Summarize(results),
	}

	topN = 5
	assert.NotPanics(t, func() { printResult(result) })

	result.FromCache = true
	assert.NotPanics(t, func() { printResult(result) })
}
