// Package http exposes the analysis pipeline over a JSON REST API with
// websocket progress streaming.
package http

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"revsense/internal/aggregate"
	"revsense/internal/corpus"
	apierrors "revsense/internal/errors"
	"revsense/internal/exporter"
	"revsense/internal/middleware"
	"revsense/internal/pipeline"
	"revsense/internal/resultcache"
	"revsense/internal/websocket"
)

const defaultTopN = 5

// AnalysisHandler serves the analysis endpoints.
type AnalysisHandler struct {
	runner   *pipeline.Runner
	hub      *websocket.Hub
	export   *exporter.Writer
	store    *resultcache.Store
	validate *validator.Validate
	logger   *slog.Logger
}

// NewAnalysisHandler creates the handler. hub and store may be nil; the
// cache endpoints then report the cache as disabled.
func NewAnalysisHandler(runner *pipeline.Runner, hub *websocket.Hub, store *resultcache.Store, logger *slog.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		runner:   runner,
		hub:      hub,
		export:   exporter.NewWriter(logger),
		store:    store,
		validate: validator.New(),
		logger:   logger.With(slog.String("component", "analysis_handler")),
	}
}

// Routes returns the analysis routes.
func (h *AnalysisHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Post("/analyze", h.Analyze)
	r.Get("/results", h.GetResults)
	r.Get("/results/export", h.ExportResults)

	r.Route("/cache", func(r chi.Router) {
		r.Get("/", h.ListCache)
		r.Delete("/", h.ClearCache)
	})

	return r
}

// AnalyzeRequest is the body for POST /analyze.
type AnalyzeRequest struct {
	FilePath string `json:"file_path" validate:"required"`
}

// Bind implements render.Binder.
func (req *AnalyzeRequest) Bind(r *http.Request) error {
	return nil
}

// Analyze starts an analysis run. By default the run proceeds in the
// background with progress streamed over the websocket hub and the call
// returns 202; with ?wait=true the call blocks and returns the result.
func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With(slog.String("trace_id", middleware.GetRequestID(ctx)))

	var req AnalyzeRequest
	if err := render.Bind(r, &req); err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.InvalidRequestWithError(err)))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrValidation("file_path", "file_path is required")))
		return
	}
	if h.runner.Running() {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrAnalysisInProgress))
		return
	}

	runRef := middleware.GetRequestID(ctx)
	sink := pipeline.ProgressFunc(func(pct float64, message string) {
		if h.hub != nil {
			h.hub.BroadcastProgress(runRef, pct, message)
		}
	})

	if r.URL.Query().Get("wait") == "true" {
		result, err := h.runner.Run(ctx, req.FilePath, sink)
		if err != nil {
			render.Render(w, r, apierrors.NewErrorResponse(mapError(err)))
			return
		}
		render.JSON(w, r, resultResponse(result, defaultTopN))
		return
	}

	go h.runDetached(req.FilePath, sink, logger)

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]interface{}{
		"success": true,
		"run_id":  runRef,
		"status":  "started",
		"source":  req.FilePath,
	})
}

// runDetached executes a run outside the request lifecycle and reports the
// outcome over the hub.
func (h *AnalysisHandler) runDetached(path string, sink pipeline.ProgressSink, logger *slog.Logger) {
	if h.hub != nil {
		h.hub.BroadcastStatus("running", fmt.Sprintf("Analyzing %s", path))
	}

	result, err := h.runner.Run(context.Background(), path, sink)
	if err != nil {
		logger.Error("background analysis failed",
			slog.String("source", path),
			slog.String("error", err.Error()))
		if h.hub != nil {
			apiErr := mapError(err)
			h.hub.BroadcastError(apiErr.ErrorCode, apiErr.Message)
		}
		return
	}

	if h.hub != nil {
		h.hub.BroadcastComplete(resultResponse(result, defaultTopN))
	}
}

// GetResults returns the most recent completed run. ?top=N sizes the
// per-direction product rankings.
func (h *AnalysisHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	result := h.runner.LastResult()
	if result == nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrNoResults))
		return
	}

	topN := defaultTopN
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrValidation("top", "top must be a non-negative integer")))
			return
		}
		topN = n
	}

	render.JSON(w, r, resultResponse(result, topN))
}

// ExportResults streams the most recent result set in the requested format
// (?format=csv|xlsx|json, default csv).
func (h *AnalysisHandler) ExportResults(w http.ResponseWriter, r *http.Request) {
	result := h.runner.LastResult()
	if result == nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrNoResults))
		return
	}

	format := exporter.ParseFormat(r.URL.Query().Get("format"))
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "sentiment_results."+string(format)))

	if err := h.export.ExportTo(w, format, result.Results); err != nil {
		h.logger.Error("export failed",
			slog.String("format", string(format)),
			slog.String("error", err.Error()))
	}
}

// ListCache returns the stored cache entries, newest first.
func (h *AnalysisHandler) ListCache(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.NotFoundError("result cache")))
		return
	}
	entries, err := h.store.Entries()
	if err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrInternalServer))
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"success": true,
		"dir":     h.store.Dir(),
		"entries": entries,
	})
}

// ClearCache deletes every cache entry.
func (h *AnalysisHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.NotFoundError("result cache")))
		return
	}
	deleted, err := h.store.Clear()
	if err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrInternalServer))
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"success": true,
		"deleted": deleted,
	})
}

// resultResponse projects a run result into the API response shape.
func resultResponse(result *pipeline.RunResult, topN int) map[string]interface{} {
	return map[string]interface{}{
		"success":      true,
		"result":       result,
		"top_positive": aggregate.TopPositive(result.Results, topN),
		"top_negative": aggregate.TopNegative(result.Results, topN),
	}
}

// mapError translates pipeline errors into API errors.
func mapError(err error) *apierrors.APIError {
	if errors.Is(err, pipeline.ErrRunInProgress) {
		return apierrors.ErrAnalysisInProgress
	}
	if errors.Is(err, fs.ErrNotExist) {
		return apierrors.NewWithDetails(apierrors.ErrSourceNotFound.StatusCode,
			apierrors.ErrSourceNotFound.ErrorCode, apierrors.ErrSourceNotFound.Message, err.Error())
	}

	var emptyErr *pipeline.EmptyCorpusError
	if errors.As(err, &emptyErr) {
		return apierrors.NewWithDetails(apierrors.ErrEmptyCorpus.StatusCode,
			apierrors.ErrEmptyCorpus.ErrorCode, apierrors.ErrEmptyCorpus.Message, emptyErr.Source)
	}

	var schemaErr *corpus.SchemaError
	if errors.As(err, &schemaErr) {
		return apierrors.NewWithDetails(apierrors.ErrBadSchema.StatusCode,
			apierrors.ErrBadSchema.ErrorCode, schemaErr.Error(), schemaErr.Headers)
	}

	var readErr *resultcache.ReadError
	if errors.As(err, &readErr) {
		return apierrors.NewWithDetails(apierrors.ErrNoResults.StatusCode,
			apierrors.ErrNoResults.ErrorCode, apierrors.ErrNoResults.Message, readErr.Error())
	}

	return apierrors.ErrAnalysisExecution(err)
}
