package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iconidentify/vidgrab/internal/api/handler"
	mw "github.com/iconidentify/vidgrab/internal/api/middleware"
)

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(
	downloadHandler *handler.DownloadHandler,
	platformsHandler *handler.PlatformsHandler,
	healthHandler *handler.HealthHandler,
	historyHandler *handler.HistoryHandler,
	docsHandler *handler.DocsHandler,
	logger *slog.Logger,
	apiKeyRequired bool,
	apiKey string,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CleanPath) // Normalize paths (e.g., //health -> /health)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger(logger))
	r.Use(mw.Recovery(logger))
	// Long enough for a full media transfer on a slow link.
	r.Use(middleware.Timeout(10 * time.Minute))
	r.Use(mw.CORS)

	// Public endpoints
	r.Get("/health", healthHandler.Live)
	r.Get("/platforms", platformsHandler.List)
	r.Get("/docs", docsHandler.Index)
	r.Get("/docs/openapi.json", docsHandler.OpenAPI)
	r.Handle("/metrics", promhttp.Handler())

	// Download surface (authenticated when a key is configured)
	r.Group(func(r chi.Router) {
		r.Use(mw.APIKeyAuth(apiKeyRequired, apiKey))

		r.Post("/download", downloadHandler.Download)
		r.Post("/info", downloadHandler.Info)
		r.Get("/history", historyHandler.Recent)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"not found","code":"NotFound"}`))
	})

	return r
}
