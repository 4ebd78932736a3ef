package http

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"revsense/internal/config"
	"revsense/internal/corpus"
	"revsense/internal/pipeline"
	"revsense/internal/resultcache"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeReviewsCSV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reviews.csv")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := csv.NewWriter(f)
	require.NoError(t, w.WriteAll([][]string{
		{"Review Title", "Review", "Rating", "Product"},
		{"Love it", "This widget is great and works wonderfully", "5", "Widget"},
		{"Broken", "Terrible quality, broke after one day", "1", "Widget"},
		{"Solid", "Excellent gadget, highly recommended", "5", "Gadget"},
	}))
	require.NoError(t, f.Close())
	return path
}

func newTestServer(t *testing.T) (*httptest.Server, *resultcache.Store) {
	t.Helper()
	store, err := resultcache.NewStore(t.TempDir(), testLogger())
	require.NoError(t, err)

	runner := pipeline.NewRunner(store, testLogger(), pipeline.Options{})
	router := NewRouter(RouterDeps{
		Runner:  runner,
		Store:   store,
		Config:  config.Default(),
		Logger:  testLogger(),
		Version: "test",
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, store
}

func postAnalyze(t *testing.T, srv *httptest.Server, path string, wait bool) *http.Response {
	t.Helper()
	body, err := json.Marshal(map[string]string{"file_path": path})
	require.NoError(t, err)

	url := srv.URL + "/api/analyze"
	if wait {
		url += "?wait=true"
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestAnalyzeWaitReturnsResults(t *testing.T) {
	srv, _ := newTestServer(t)
	path := writeReviewsCSV(t)

	resp := postAnalyze(t, srv, path, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, true, body["success"])

	result := body["result"].(map[string]interface{})
	assert.Equal(t, path, result["source"])
	assert.Equal(t, false, result["from_cache"])

	results := result["results"].(map[string]interface{})
	assert.Contains(t, results, "Widget")
	assert.Contains(t, results, "Gadget")
	assert.NotEmpty(t, body["top_positive"])
}

func TestAnalyzeValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/analyze", "application/json", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeBody(t, resp)
	errObj := body["error"].(map[string]interface{})
	assert.Equal(t, "VALIDATION_FAILED", errObj["error_code"])
}

func TestAnalyzeMissingSource(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postAnalyze(t, srv, filepath.Join(t.TempDir(), "absent.csv"), true)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	body := decodeBody(t, resp)
	errObj := body["error"].(map[string]interface{})
	assert.Equal(t, "SOURCE_NOT_FOUND", errObj["error_code"])
}

func TestAnalyzeAsyncAccepted(t *testing.T) {
	srv, _ := newTestServer(t)
	path := writeReviewsCSV(t)

	resp := postAnalyze(t, srv, path, false)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "started", body["status"])
	assert.NotEmpty(t, body["run_id"])
}

func TestGetResultsBeforeAnyRun(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/results")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetResultsAfterRun(t *testing.T) {
	srv, _ := newTestServer(t)
	path := writeReviewsCSV(t)
	postAnalyze(t, srv, path, true)

	resp, err := http.Get(srv.URL + "/api/results?top=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Len(t, body["top_positive"], 1)
}

func TestGetResultsBadTopParam(t *testing.T) {
	srv, _ := newTestServer(t)
	path := writeReviewsCSV(t)
	postAnalyze(t, srv, path, true)

	resp, err := http.Get(srv.URL + "/api/results?top=nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExportCSV(t *testing.T) {
	srv, _ := newTestServer(t)
	path := writeReviewsCSV(t)
	postAnalyze(t, srv, path, true)

	resp, err := http.Get(srv.URL + "/api/results/export?format=csv")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/csv")
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "sentiment_results.csv")

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}))

	records, err := csv.NewReader(bytes.NewReader(data[3:])).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "Product", records[0][0])
	assert.Len(t, records, 3)
}

func TestExportJSON(t *testing.T) {
	srv, _ := newTestServer(t)
	path := writeReviewsCSV(t)
	postAnalyze(t, srv, path, true)

	resp, err := http.Get(srv.URL + "/api/results/export?format=json")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var results map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&results))
	assert.Contains(t, results, "Widget")
}

func TestCacheEndpoints(t *testing.T) {
	srv, store := newTestServer(t)
	path := writeReviewsCSV(t)
	postAnalyze(t, srv, path, true)

	resp, err := http.Get(srv.URL + "/api/cache")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, store.Dir(), body["dir"])
	assert.Len(t, body["entries"], 1)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/cache", nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer delResp.Body.Close()
	require.Equal(t, http.StatusOK, delResp.StatusCode)

	delBody := decodeBody(t, delResp)
	assert.Equal(t, float64(1), delBody["deleted"])
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNotFoundEnvelope(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/nonsense")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	body := decodeBody(t, resp)
	errObj := body["error"].(map[string]interface{})
	assert.Equal(t, "NOT_FOUND", errObj["error_code"])
}

func TestMapError(t *testing.T) {
	assert.Equal(t, "ANALYSIS_IN_PROGRESS", mapError(pipeline.ErrRunInProgress).ErrorCode)
	assert.Equal(t, "SOURCE_NOT_FOUND", mapError(fmt.Errorf("open: %w", fs.ErrNotExist)).ErrorCode)
	assert.Equal(t, "EMPTY_CORPUS", mapError(&pipeline.EmptyCorpusError{Source: "x.csv"}).ErrorCode)
	assert.Equal(t, "SCHEMA_ERROR", mapError(&corpus.SchemaError{Column: "review text", Headers: []string{"a"}}).ErrorCode)
	assert.Equal(t, "NO_RESULTS", mapError(&resultcache.ReadError{Path: "p", Err: errors.New("corrupt")}).ErrorCode)
	assert.Equal(t, "ANALYSIS_FAILED", mapError(errors.New("boom")).ErrorCode)
}

func TestRateLimiterWired(t *testing.T) {
	store, err := resultcache.NewStore(t.TempDir(), testLogger())
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Server.RateLimitRPS = 1
	cfg.Server.RateLimitBurst = 1

	router := NewRouter(RouterDeps{
		Runner:  pipeline.NewRunner(store, testLogger(), pipeline.Options{}),
		Store:   store,
		Config:  cfg,
		Logger:  testLogger(),
		Version: "test",
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	limited := false
	for i := 0; i < 5; i++ {
		resp, err := http.Get(srv.URL + "/healthz")
		require.NoError(t, err)
		if resp.StatusCode == http.StatusTooManyRequests {
			assert.Equal(t, "1", resp.Header.Get("Retry-After"))
			body := decodeBody(t, resp)
			errObj := body["error"].(map[string]interface{})
			assert.Equal(t, "RATE_LIMIT_EXCEEDED", errObj["error_code"])
			limited = true
		}
		resp.Body.Close()
	}
	assert.True(t, limited, "burst of requests should trip the limiter")
}
