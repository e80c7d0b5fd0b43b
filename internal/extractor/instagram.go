package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/iconidentify/vidgrab/internal/domain"
)

// igAppID is the web app identifier Instagram expects on metadata
// requests. Without it the JSON endpoint answers with a login wall.
const igAppID = "936619743392459"

var igShortcodePattern = regexp.MustCompile(`/(?:reels?|p|tv)/([A-Za-z0-9_-]+)`)

// Instagram resolves instagram.com post, reel, and tv URLs.
//
// The primary path is the web profile JSON endpoint, which is throttled
// and occasionally answers with a login wall. When it returns something
// we cannot interpret, the embed page is scraped as a fallback before
// giving up.
type Instagram struct {
	client    *http.Client
	baseURL   string
	userAgent string
}

// NewInstagram creates the Instagram extractor. baseURL is the
// instagram.com origin, overridable in tests.
func NewInstagram(client *http.Client, baseURL, userAgent string) *Instagram {
	return &Instagram{
		client:    client,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		userAgent: userAgent,
	}
}

// Platform implements Extractor.
func (e *Instagram) Platform() domain.Platform {
	return domain.PlatformInstagram
}

// Match implements Extractor. Matches instagram.com hosts whose path
// has a known post shape.
func (e *Instagram) Match(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	if host != "instagram.com" && !strings.HasSuffix(host, ".instagram.com") {
		return false
	}
	return igShortcodePattern.MatchString(u.Path)
}

// Resolve implements Extractor.
func (e *Instagram) Resolve(ctx context.Context, rawURL string) (domain.MediaDescriptor, error) {
	shortcode := extractShortcode(rawURL)
	if shortcode == "" {
		return domain.MediaDescriptor{}, domain.NewExtractError(
			domain.PlatformInstagram, "resolve", domain.ErrContentNotFound, "no shortcode in URL")
	}

	videoURL, primaryErr := e.resolveFromAPI(ctx, shortcode)
	if primaryErr != nil {
		// Definitive answers are final; only ambiguous failures fall
		// through to the embed scrape.
		if errors.Is(primaryErr, domain.ErrContentNotFound) ||
			errors.Is(primaryErr, domain.ErrContentRestricted) ||
			errors.Is(primaryErr, domain.ErrTimeout) {
			return domain.MediaDescriptor{}, primaryErr
		}

		var fallbackErr error
		videoURL, fallbackErr = e.resolveFromEmbed(ctx, shortcode)
		if fallbackErr != nil {
			return domain.MediaDescriptor{}, primaryErr
		}
	}

	desc := domain.MediaDescriptor{
		SourceURL:    videoURL,
		MediaID:      shortcode,
		Platform:     domain.PlatformInstagram,
		ContentType:  "video/mp4",
		DeclaredSize: -1,
		ResolvedAt:   time.Now().UTC(),
	}

	// Size hint and real content type via HEAD. Best effort: the CDN
	// sometimes rejects HEAD, and the streamed size check is the backstop.
	if ct, size, err := e.probe(ctx, videoURL); err == nil {
		if ct != "" {
			desc.ContentType = ct
		}
		desc.DeclaredSize = size
	}

	return desc, nil
}

// igMediaItem is one media entry in the web profile JSON response.
type igMediaItem struct {
	MediaType     int             `json:"media_type"`
	VideoVersions []igVideoSource `json:"video_versions"`
	CarouselMedia []igMediaItem   `json:"carousel_media"`
}

type igVideoSource struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type igAPIResponse struct {
	Items []igMediaItem `json:"items"`
}

// Instagram media_type values.
const (
	igTypeVideo    = 2
	igTypeCarousel = 8
)

// resolveFromAPI fetches the post's metadata JSON and picks the direct
// video URL.
func (e *Instagram) resolveFromAPI(ctx context.Context, shortcode string) (string, error) {
	endpoint := fmt.Sprintf("%s/p/%s/?__a=1&__d=dis", e.baseURL, shortcode)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", domain.NewExtractError(domain.PlatformInstagram, "resolve", domain.ErrUpstreamTransient, err.Error())
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-IG-App-ID", igAppID)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", e.wrap("resolve", classifyTransportError(err), err.Error())
	}
	defer resp.Body.Close()

	// Redirect to the login page means the post needs authentication.
	if strings.Contains(resp.Request.URL.Path, "/accounts/login") {
		return "", e.wrap("resolve", domain.ErrContentRestricted, "login wall")
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", e.wrap("resolve", domain.ErrContentNotFound, "post does not exist")
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", e.wrap("resolve", domain.ErrContentRestricted, fmt.Sprintf("status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", e.wrap("resolve", domain.ErrUpstreamTransient, "upstream throttled")
	case resp.StatusCode != http.StatusOK:
		return "", e.wrap("resolve", domain.ErrUpstreamTransient, fmt.Sprintf("status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", e.wrap("resolve", classifyTransportError(err), err.Error())
	}

	var parsed igAPIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		// HTML instead of JSON usually means the endpoint shape moved.
		return "", e.wrap("resolve", domain.ErrUpstreamShapeChanged, "non-JSON metadata response")
	}
	if len(parsed.Items) == 0 {
		return "", e.wrap("resolve", domain.ErrUpstreamShapeChanged, "no items in metadata response")
	}

	videoURL := firstVideoURL(parsed.Items[0])
	if videoURL == "" {
		// The post exists but holds no video (image post, or a
		// carousel with no video items).
		return "", e.wrap("resolve", domain.ErrContentNotFound, "post has no video")
	}
	return videoURL, nil
}

// firstVideoURL picks the direct URL from an item, descending into
// carousel children. Carousel policy: first video item wins.
func firstVideoURL(item igMediaItem) string {
	if item.MediaType == igTypeVideo && len(item.VideoVersions) > 0 {
		return item.VideoVersions[0].URL
	}
	if item.MediaType == igTypeCarousel {
		for _, child := range item.CarouselMedia {
			if child.MediaType == igTypeVideo && len(child.VideoVersions) > 0 {
				return child.VideoVersions[0].URL
			}
		}
	}
	return ""
}

var embedVideoPattern = regexp.MustCompile(`"video_url"\s*:\s*"((?:[^"\\]|\\.)*)"`)

// resolveFromEmbed scrapes the public embed page for the video URL.
func (e *Instagram) resolveFromEmbed(ctx context.Context, shortcode string) (string, error) {
	endpoint := fmt.Sprintf("%s/p/%s/embed/", e.baseURL, shortcode)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", domain.NewExtractError(domain.PlatformInstagram, "embed", domain.ErrUpstreamTransient, err.Error())
	}
	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", e.wrap("embed", classifyTransportError(err), err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", e.wrap("embed", domain.ErrUpstreamTransient, fmt.Sprintf("status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", e.wrap("embed", classifyTransportError(err), err.Error())
	}

	m := embedVideoPattern.FindSubmatch(body)
	if m == nil {
		return "", e.wrap("embed", domain.ErrUpstreamShapeChanged, "no video_url in embed page")
	}

	videoURL, err := unescapeJSONString(string(m[1]))
	if err != nil {
		return "", e.wrap("embed", domain.ErrUpstreamShapeChanged, "unescape video_url")
	}
	return videoURL, nil
}

// probe issues a HEAD request against the direct media URL.
func (e *Instagram) probe(ctx context.Context, mediaURL string) (contentType string, size int64, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, mediaURL, nil)
	if err != nil {
		return "", -1, err
	}
	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", -1, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", -1, fmt.Errorf("probe status %d", resp.StatusCode)
	}
	return resp.Header.Get("Content-Type"), resp.ContentLength, nil
}

func (e *Instagram) wrap(op string, sentinel error, detail string) error {
	return domain.NewExtractError(domain.PlatformInstagram, op, sentinel, detail)
}

// extractShortcode pulls the post shortcode from a URL path.
func extractShortcode(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	m := igShortcodePattern.FindStringSubmatch(u.Path)
	if m == nil {
		return ""
	}
	return m[1]
}

// unescapeJSONString decodes a JSON string body (without quotes),
// handling & and friends the way the embedded page escapes them.
func unescapeJSONString(s string) (string, error) {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return "", err
	}
	return out, nil
}

// classifyTransportError maps a transport-level error to the taxonomy.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrTimeout
	}
	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		return domain.ErrTimeout
	}
	return domain.ErrUpstreamTransient
}
