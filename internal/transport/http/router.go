package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"revsense/internal/config"
	apierrors "revsense/internal/errors"
	"revsense/internal/middleware"
	"revsense/internal/pipeline"
	"revsense/internal/resultcache"
	ws "revsense/internal/websocket"
)

// RouterDeps holds everything the router needs.
type RouterDeps struct {
	Runner  *pipeline.Runner
	Hub     *ws.Hub
	Store   *resultcache.Store
	Config  *config.Config
	Logger  *slog.Logger
	Version string
}

// NewRouter assembles the full HTTP surface: the analysis API under /api,
// health and metrics endpoints, and the websocket upgrade path.
func NewRouter(deps RouterDeps) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.StructuredLogger(logger))
	r.Use(middleware.Recoverer(logger))
	if rps := deps.Config.Server.RateLimitRPS; rps > 0 {
		limiter := middleware.NewRateLimiter(rps, deps.Config.Server.RateLimitBurst, logger)
		r.Use(limiter.Handler)
	}
	r.Use(chimiddleware.Compress(5))

	r.Get("/healthz", healthHandler(deps.Version))
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", websocketHandler(deps, logger))

	analysis := NewAnalysisHandler(deps.Runner, deps.Hub, deps.Store, logger)
	r.Route("/api", func(r chi.Router) {
		r.Mount("/", analysis.Routes())
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrNotFound))
	})

	return r
}

func healthHandler(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]interface{}{
			"status":  "ok",
			"version": version,
		})
	}
}

func websocketHandler(deps RouterDeps, logger *slog.Logger) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  deps.Config.WebSocket.ReadBufferSize,
		WriteBufferSize: deps.Config.WebSocket.WriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			// The server binds locally and serves its own UI.
			return true
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Hub == nil {
			render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrWebSocketUpgrade))
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("websocket upgrade failed",
				slog.String("error", err.Error()),
				slog.String("remote_addr", r.RemoteAddr))
			return
		}
		ws.ServeWS(deps.Hub, conn, deps.Config.WebSocket.PingPeriod, deps.Config.WebSocket.PongWait)
	}
}
