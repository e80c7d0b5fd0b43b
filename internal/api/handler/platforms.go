package handler

import (
	"net/http"

	"github.com/iconidentify/vidgrab/internal/domain"
	"github.com/iconidentify/vidgrab/internal/service"
)

// PlatformsHandler serves the supported-platform listing.
type PlatformsHandler struct {
	svc *service.DownloadService
}

// NewPlatformsHandler creates a new platforms handler.
func NewPlatformsHandler(svc *service.DownloadService) *PlatformsHandler {
	return &PlatformsHandler{svc: svc}
}

// PlatformInfo describes one supported platform.
type PlatformInfo struct {
	Name     string   `json:"name"`
	Examples []string `json:"examples"`
}

// PlatformsResponse is the JSON response for GET /platforms.
type PlatformsResponse struct {
	Platforms []PlatformInfo `json:"platforms"`
}

var platformExamples = map[domain.Platform][]string{
	domain.PlatformInstagram: {
		"https://www.instagram.com/reel/ABC123/",
		"https://www.instagram.com/p/ABC123/",
	},
	domain.PlatformTikTok: {
		"https://www.tiktok.com/@username/video/1234567890",
		"https://vm.tiktok.com/XYZ123/",
	},
}

// List handles GET /platforms.
func (h *PlatformsHandler) List(w http.ResponseWriter, r *http.Request) {
	resp := PlatformsResponse{Platforms: []PlatformInfo{}}
	for _, p := range h.svc.Platforms() {
		resp.Platforms = append(resp.Platforms, PlatformInfo{
			Name:     string(p),
			Examples: platformExamples[p],
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
