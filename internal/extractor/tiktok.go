package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/iconidentify/vidgrab/internal/domain"
)

var tiktokVideoIDPattern = regexp.MustCompile(`/video/(\d+)`)

// shortLinkHosts are TikTok's redirect domains for shared links.
var shortLinkHosts = map[string]bool{
	"vm.tiktok.com": true,
	"vt.tiktok.com": true,
}

// TikTok resolves tiktok.com video URLs, including vm/vt short links,
// through the tikwm resolve API. The API's response blob is not
// contractually stable; any shape drift surfaces as
// ErrUpstreamShapeChanged so operators notice instead of clients
// seeing bogus not-found answers.
type TikTok struct {
	client    *http.Client
	baseURL   string
	userAgent string

	// maxRedirects caps short-link resolution hops.
	maxRedirects int
}

// NewTikTok creates the TikTok extractor. baseURL is the tikwm origin,
// overridable in tests.
func NewTikTok(client *http.Client, baseURL, userAgent string) *TikTok {
	return &TikTok{
		client:       client,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		userAgent:    userAgent,
		maxRedirects: 5,
	}
}

// Platform implements Extractor.
func (e *TikTok) Platform() domain.Platform {
	return domain.PlatformTikTok
}

// Match implements Extractor. Matches tiktok.com hosts with a video
// path and the short-link redirect domains.
func (e *TikTok) Match(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	if shortLinkHosts[host] {
		return len(strings.Trim(u.Path, "/")) > 0
	}
	if host != "tiktok.com" && !strings.HasSuffix(host, ".tiktok.com") {
		return false
	}
	return tiktokVideoIDPattern.MatchString(u.Path)
}

// Resolve implements Extractor.
func (e *TikTok) Resolve(ctx context.Context, rawURL string) (domain.MediaDescriptor, error) {
	postURL := rawURL

	// Short links redirect to the canonical video URL; resolve them
	// first so the media ID is real and the target is verifiably TikTok.
	if u, err := url.Parse(rawURL); err == nil && shortLinkHosts[strings.ToLower(u.Hostname())] {
		resolved, err := e.resolveShortLink(ctx, rawURL)
		if err != nil {
			return domain.MediaDescriptor{}, err
		}
		postURL = resolved
	}

	videoURL, videoID, size, err := e.resolveFromAPI(ctx, postURL)
	if err != nil {
		return domain.MediaDescriptor{}, err
	}

	return domain.MediaDescriptor{
		SourceURL:    videoURL,
		MediaID:      videoID,
		Platform:     domain.PlatformTikTok,
		ContentType:  "video/mp4",
		DeclaredSize: size,
		ResolvedAt:   time.Now().UTC(),
	}, nil
}

// resolveShortLink follows the redirect chain of a vm/vt link and
// returns the canonical video URL.
func (e *TikTok) resolveShortLink(ctx context.Context, shortURL string) (string, error) {
	client := &http.Client{
		Transport: e.client.Transport,
		Timeout:   e.client.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= e.maxRedirects {
				return fmt.Errorf("stopped after %d redirects", e.maxRedirects)
			}
			return nil
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, shortURL, nil)
	if err != nil {
		return "", e.wrap("shortlink", domain.ErrUpstreamTransient, err.Error())
	}
	req.Header.Set("User-Agent", e.userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", e.wrap("shortlink", classifyTransportError(err), err.Error())
	}
	resp.Body.Close()

	final := resp.Request.URL
	host := strings.ToLower(final.Hostname())
	if host != "tiktok.com" && !strings.HasSuffix(host, ".tiktok.com") {
		return "", e.wrap("shortlink", domain.ErrContentNotFound,
			"short link resolved outside tiktok.com: "+host)
	}
	return final.String(), nil
}

// tikwmResponse is the resolve API envelope. code 0 means success;
// anything else carries a human-readable msg.
type tikwmResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		ID     string `json:"id"`
		Play   string `json:"play"`
		WMPlay string `json:"wmplay"`
		HDPlay string `json:"hdplay"`
		Size   int64  `json:"size"`
		HDSize int64  `json:"hd_size"`
	} `json:"data"`
}

// resolveFromAPI posts the video URL to the tikwm resolve endpoint and
// picks the best available direct URL: HD no-watermark, then
// no-watermark, then watermarked.
func (e *TikTok) resolveFromAPI(ctx context.Context, postURL string) (videoURL, videoID string, size int64, err error) {
	form := url.Values{"url": {postURL}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.baseURL+"/api/", strings.NewReader(form.Encode()))
	if err != nil {
		return "", "", 0, e.wrap("resolve", domain.ErrUpstreamTransient, err.Error())
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", "", 0, e.wrap("resolve", classifyTransportError(err), err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", "", 0, e.wrap("resolve", domain.ErrUpstreamTransient, "resolver throttled")
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", 0, e.wrap("resolve", domain.ErrUpstreamTransient, fmt.Sprintf("status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", "", 0, e.wrap("resolve", classifyTransportError(err), err.Error())
	}

	var parsed tikwmResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", "", 0, e.wrap("resolve", domain.ErrUpstreamShapeChanged, "non-JSON resolver response")
	}

	if parsed.Code != 0 {
		return "", "", 0, e.wrap("resolve", classifyAPIMessage(parsed.Msg), parsed.Msg)
	}

	switch {
	case parsed.Data.HDPlay != "":
		videoURL, size = parsed.Data.HDPlay, parsed.Data.HDSize
	case parsed.Data.Play != "":
		videoURL, size = parsed.Data.Play, parsed.Data.Size
	case parsed.Data.WMPlay != "":
		videoURL, size = parsed.Data.WMPlay, parsed.Data.Size
	default:
		// Successful envelope with no playable URL: the blob moved.
		return "", "", 0, e.wrap("resolve", domain.ErrUpstreamShapeChanged, "no play URL in resolver data")
	}

	// The resolver sometimes returns CDN paths relative to its origin.
	if strings.HasPrefix(videoURL, "/") {
		videoURL = e.baseURL + videoURL
	}

	videoID = parsed.Data.ID
	if videoID == "" {
		videoID = extractTikTokID(postURL)
	}
	if size <= 0 {
		size = -1
	}
	return videoURL, videoID, size, nil
}

// classifyAPIMessage maps tikwm failure messages onto the taxonomy.
// The message set is undocumented; unknown messages count as transient
// so clients may retry while operators watch the logs.
func classifyAPIMessage(msg string) error {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "private"):
		return domain.ErrContentRestricted
	case strings.Contains(lower, "parsing is failed"),
		strings.Contains(lower, "not exist"),
		strings.Contains(lower, "invalid"):
		return domain.ErrContentNotFound
	case strings.Contains(lower, "limit"),
		strings.Contains(lower, "frequent"):
		return domain.ErrUpstreamTransient
	default:
		return domain.ErrUpstreamTransient
	}
}

func (e *TikTok) wrap(op string, sentinel error, detail string) error {
	return domain.NewExtractError(domain.PlatformTikTok, op, sentinel, detail)
}

// extractTikTokID pulls the numeric video ID from a canonical URL,
// falling back to the last path segment.
func extractTikTokID(rawURL string) string {
	if m := tiktokVideoIDPattern.FindStringSubmatch(rawURL); m != nil {
		return m[1]
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}
