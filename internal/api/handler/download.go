package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/iconidentify/vidgrab/internal/domain"
	"github.com/iconidentify/vidgrab/internal/service"
)

// DownloadHandler handles download and metadata requests.
type DownloadHandler struct {
	svc    *service.DownloadService
	apiKey string
	logger *slog.Logger
}

// NewDownloadHandler creates a new download handler. apiKey feeds the
// client identity hash and may be empty when auth is disabled.
func NewDownloadHandler(svc *service.DownloadService, apiKey string, logger *slog.Logger) *DownloadHandler {
	return &DownloadHandler{
		svc:    svc,
		apiKey: apiKey,
		logger: logger,
	}
}

// DownloadRequest is the JSON request body for both /download and /info.
type DownloadRequest struct {
	URL string `json:"url"`
}

// InfoResponse describes resolved media without transferring it.
type InfoResponse struct {
	Platform    string `json:"platform"`
	MediaID     string `json:"media_id"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size,omitempty"`
	Filename    string `json:"filename"`
	MediaURL    string `json:"media_url"`
}

// Download handles POST /download. On success the response body is the
// media itself, streamed with Content-Length and an attachment
// filename.
func (h *DownloadHandler) Download(w http.ResponseWriter, r *http.Request) {
	var req DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body",
			Code:  string(domain.CodeInvalidURL),
		})
		return
	}

	delivery, err := h.svc.Download(r.Context(), domain.DownloadRequest{
		URL:      req.URL,
		ClientID: h.clientID(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	defer delivery.Close()

	desc := delivery.Descriptor
	w.Header().Set("Content-Type", desc.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(delivery.Size(), 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", desc.Filename()))
	w.Header().Set("X-Platform", string(desc.Platform))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, delivery); err != nil {
		// Headers are gone; all we can do is note the broken transfer.
		h.logger.Warn("client transfer interrupted", "error", err, "media_id", desc.MediaID)
	}
}

// Info handles POST /info. Runs the same validation, rate-limit, and
// extraction pipeline but returns metadata instead of bytes.
func (h *DownloadHandler) Info(w http.ResponseWriter, r *http.Request) {
	var req DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body",
			Code:  string(domain.CodeInvalidURL),
		})
		return
	}

	desc, err := h.svc.Resolve(r.Context(), domain.DownloadRequest{
		URL:      req.URL,
		ClientID: h.clientID(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := InfoResponse{
		Platform:    string(desc.Platform),
		MediaID:     desc.MediaID,
		ContentType: desc.ContentType,
		Filename:    desc.Filename(),
		MediaURL:    desc.SourceURL,
	}
	if desc.DeclaredSize > 0 {
		resp.Size = desc.DeclaredSize
	}
	writeJSON(w, http.StatusOK, resp)
}

// clientID derives the rate-limit key from the caller's address and
// the API key.
func (h *DownloadHandler) clientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	sum := sha256.Sum256([]byte(ip + ":" + h.apiKey))
	return hex.EncodeToString(sum[:])[:16]
}
