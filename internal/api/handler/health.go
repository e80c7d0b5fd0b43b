package handler

import (
	"net/http"
	"time"

	"github.com/iconidentify/vidgrab/internal/service"
)

var startTime = time.Now()

// HealthHandler handles the health check endpoint.
type HealthHandler struct {
	svc              *service.DownloadService
	version          string
	rateLimitEnabled bool
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(svc *service.DownloadService, version string, rateLimitEnabled bool) *HealthHandler {
	return &HealthHandler{
		svc:              svc,
		version:          version,
		rateLimitEnabled: rateLimitEnabled,
	}
}

// HealthResponse is the JSON response for health checks.
type HealthResponse struct {
	Status           string   `json:"status"`
	Version          string   `json:"version"`
	Timestamp        string   `json:"timestamp"`
	UptimeSeconds    int64    `json:"uptime_seconds"`
	Platforms        []string `json:"platforms"`
	RateLimitEnabled bool     `json:"rate_limit_enabled"`
}

// Live handles GET /health.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	platforms := []string{}
	for _, p := range h.svc.Platforms() {
		platforms = append(platforms, string(p))
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:           "ok",
		Version:          h.version,
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
		UptimeSeconds:    int64(time.Since(startTime).Seconds()),
		Platforms:        platforms,
		RateLimitEnabled: h.rateLimitEnabled,
	})
}
