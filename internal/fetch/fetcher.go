// Package fetch moves media bytes from upstream CDNs to local spool
// files. It knows nothing about platforms or policy; callers wrap its
// readers with whatever guards they need.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/iconidentify/vidgrab/internal/domain"
)

// Fetcher performs streaming GETs against direct media URLs.
type Fetcher struct {
	// client carries no overall timeout; large transfers are bounded by
	// request context and header timeout instead.
	client    *http.Client
	userAgent string
}

// NewFetcher creates a fetcher.
func NewFetcher(userAgent string) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: 30 * time.Second,
			},
		},
		userAgent: userAgent,
	}
}

// Result is an open media stream. Callers must close Body.
type Result struct {
	Body        io.ReadCloser
	ContentType string

	// Size is the upstream-declared length, -1 when unknown.
	Size int64
}

// Fetch opens a streaming GET against the media URL. Upstream refusals
// are normalized into the domain taxonomy: CDN URLs are short-lived, so
// auth failures mean the resolved descriptor has expired.
func (f *Fetcher) Fetch(ctx context.Context, mediaURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "video/mp4,video/*;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.ErrTimeout
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrUpstreamTransient, "media fetch failed")
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: media URL expired", domain.ErrUpstreamTransient)
	case http.StatusNotFound, http.StatusGone:
		resp.Body.Close()
		return nil, domain.ErrContentNotFound
	case http.StatusTooManyRequests:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: media host throttled", domain.ErrUpstreamTransient)
	default:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: media status %d", domain.ErrUpstreamTransient, resp.StatusCode)
	}

	size := resp.ContentLength
	if size < 0 {
		if cl := resp.Header.Get("Content-Length"); cl != "" {
			size, _ = strconv.ParseInt(cl, 10, 64)
		}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "video/mp4"
	}

	return &Result{
		Body:        resp.Body,
		ContentType: contentType,
		Size:        size,
	}, nil
}
