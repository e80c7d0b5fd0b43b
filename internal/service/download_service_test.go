package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iconidentify/vidgrab/internal/domain"
	"github.com/iconidentify/vidgrab/internal/extractor"
	"github.com/iconidentify/vidgrab/internal/fetch"
	"github.com/iconidentify/vidgrab/internal/policy"
	"github.com/iconidentify/vidgrab/internal/ratelimit"
	"github.com/iconidentify/vidgrab/internal/repository"
)

// fakeExtractor is a scriptable extractor for orchestrator tests.
type fakeExtractor struct {
	platform domain.Platform
	host     string
	desc     domain.MediaDescriptor
	err      error
	block    bool

	mu    sync.Mutex
	calls int
}

func (f *fakeExtractor) Platform() domain.Platform { return f.platform }

func (f *fakeExtractor) Match(u *url.URL) bool {
	return strings.HasSuffix(u.Hostname(), f.host)
}

func (f *fakeExtractor) Resolve(ctx context.Context, rawURL string) (domain.MediaDescriptor, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return domain.MediaDescriptor{}, ctx.Err()
	}
	if f.err != nil {
		return domain.MediaDescriptor{}, f.err
	}
	return f.desc, nil
}

func (f *fakeExtractor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeFetcher serves a canned payload as the media body.
type fakeFetcher struct {
	payload []byte
	body    io.ReadCloser
	err     error

	mu    sync.Mutex
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context, mediaURL string) (*fetch.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	body := f.body
	if body == nil {
		body = io.NopCloser(bytes.NewReader(f.payload))
	}
	return &fetch.Result{
		Body:        body,
		ContentType: "video/mp4",
		Size:        int64(len(f.payload)),
	}, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// captureHistory records outcomes for assertions.
type captureHistory struct {
	mu   sync.Mutex
	recs []repository.HistoryRecord
}

func (c *captureHistory) Record(_ context.Context, rec repository.HistoryRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recs = append(c.recs, rec)
	return nil
}

func (c *captureHistory) Recent(context.Context, int) ([]repository.HistoryRecord, error) {
	return nil, nil
}
func (c *captureHistory) Purge(context.Context, time.Time) (int64, error) { return 0, nil }
func (c *captureHistory) Close() error                                    { return nil }

func (c *captureHistory) last(t *testing.T) repository.HistoryRecord {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.recs) == 0 {
		t.Fatal("no history recorded")
	}
	return c.recs[len(c.recs)-1]
}

type fixture struct {
	svc     *DownloadService
	ext     *fakeExtractor
	fetcher *fakeFetcher
	history *captureHistory
}

type fixtureOpt func(*fixtureConfig)

type fixtureConfig struct {
	maxBytes  int64
	limit     int
	rlEnabled bool
}

func withMaxBytes(n int64) fixtureOpt { return func(c *fixtureConfig) { c.maxBytes = n } }
func withLimit(n int) fixtureOpt      { return func(c *fixtureConfig) { c.limit = n } }

func newFixture(t *testing.T, ext *fakeExtractor, fetcher *fakeFetcher, opts ...fixtureOpt) *fixture {
	t.Helper()

	cfg := fixtureConfig{maxBytes: 1 << 20, limit: 5, rlEnabled: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	history := &captureHistory{}
	svc := NewDownloadService(
		policy.NewAllowList([]string{"instagram.com", "tiktok.com"}),
		policy.NewSizeGuard(cfg.maxBytes),
		ratelimit.New(cfg.rlEnabled, cfg.limit, time.Minute),
		extractor.NewRegistry(ext),
		fetcher,
		history,
		nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		t.TempDir(),
		100*time.Millisecond,
	)
	return &fixture{svc: svc, ext: ext, fetcher: fetcher, history: history}
}

func igExtractor() *fakeExtractor {
	return &fakeExtractor{
		platform: domain.PlatformInstagram,
		host:     "instagram.com",
		desc: domain.MediaDescriptor{
			SourceURL:    "https://cdn.example/v.mp4",
			MediaID:      "ABC123",
			Platform:     domain.PlatformInstagram,
			ContentType:  "video/mp4",
			DeclaredSize: -1,
			ResolvedAt:   time.Now(),
		},
	}
}

func request() domain.DownloadRequest {
	return domain.DownloadRequest{
		URL:      "https://www.instagram.com/reel/ABC123/",
		ClientID: "client-1",
	}
}

func TestDownload_Success(t *testing.T) {
	payload := []byte(strings.Repeat("v", 4096))
	f := newFixture(t, igExtractor(), &fakeFetcher{payload: payload})

	delivery, err := f.svc.Download(context.Background(), request())
	if err != nil {
		t.Fatalf("Download error: %v", err)
	}
	defer delivery.Close()

	if delivery.Size() != int64(len(payload)) {
		t.Errorf("Size() = %d, want %d", delivery.Size(), len(payload))
	}
	if delivery.Descriptor.MediaID != "ABC123" {
		t.Errorf("MediaID = %q", delivery.Descriptor.MediaID)
	}

	body, err := io.ReadAll(delivery)
	if err != nil {
		t.Fatalf("read delivery: %v", err)
	}
	if !bytes.Equal(body, payload) {
		t.Error("delivered bytes differ from upstream payload")
	}

	rec := f.history.last(t)
	if rec.Status != string(domain.OutcomeSucceeded) || rec.Code != string(domain.CodeOK) {
		t.Errorf("history = %s/%s", rec.Status, rec.Code)
	}
	if rec.Bytes != int64(len(payload)) {
		t.Errorf("history bytes = %d", rec.Bytes)
	}
}

func TestDownload_DomainNotAllowed(t *testing.T) {
	ext := igExtractor()
	f := newFixture(t, ext, &fakeFetcher{}, withLimit(1))

	_, err := f.svc.Download(context.Background(), domain.DownloadRequest{
		URL:      "https://evil.example.com/video",
		ClientID: "client-1",
	})
	if !errors.Is(err, domain.ErrDomainNotAllowed) {
		t.Fatalf("err = %v, want ErrDomainNotAllowed", err)
	}
	if ext.callCount() != 0 {
		t.Error("no extraction may happen for a disallowed domain")
	}

	// The rejected request must not have consumed the rate budget.
	if _, err := f.svc.Download(context.Background(), request()); err != nil {
		t.Errorf("allowed request after rejection failed: %v", err)
	}
}

func TestDownload_InvalidURL(t *testing.T) {
	f := newFixture(t, igExtractor(), &fakeFetcher{})

	_, err := f.svc.Download(context.Background(), domain.DownloadRequest{URL: "   ", ClientID: "c"})
	if !errors.Is(err, domain.ErrInvalidURL) {
		t.Errorf("err = %v, want ErrInvalidURL", err)
	}
}

func TestDownload_PlatformUnsupported(t *testing.T) {
	// tiktok.com is on the allow-list but only the instagram extractor
	// is registered, so classification falls through.
	ext := igExtractor()
	f := newFixture(t, ext, &fakeFetcher{})

	_, err := f.svc.Download(context.Background(), domain.DownloadRequest{
		URL:      "https://www.tiktok.com/@u/video/1",
		ClientID: "c",
	})
	if !errors.Is(err, domain.ErrPlatformUnsupported) {
		t.Errorf("err = %v, want ErrPlatformUnsupported", err)
	}
}

func TestDownload_RateLimited(t *testing.T) {
	f := newFixture(t, igExtractor(), &fakeFetcher{payload: []byte("v")}, withLimit(1))

	if _, err := f.svc.Download(context.Background(), request()); err != nil {
		t.Fatalf("first request failed: %v", err)
	}

	_, err := f.svc.Download(context.Background(), request())
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}

	var rlErr *RateLimitError
	if !errors.As(err, &rlErr) {
		t.Fatal("error should carry retry-after guidance")
	}
	if rlErr.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want positive", rlErr.RetryAfter)
	}
}

func TestDownload_DeclaredSizeExceeded(t *testing.T) {
	ext := igExtractor()
	ext.desc.DeclaredSize = 600 * 1024 * 1024
	fetcher := &fakeFetcher{}
	f := newFixture(t, ext, fetcher, withMaxBytes(500*1024*1024))

	_, err := f.svc.Download(context.Background(), request())
	if !errors.Is(err, domain.ErrSizeExceeded) {
		t.Fatalf("err = %v, want ErrSizeExceeded", err)
	}
	if fetcher.callCount() != 0 {
		t.Error("no transfer may start when the declared size exceeds the limit")
	}

	rec := f.history.last(t)
	if rec.Status != string(domain.OutcomeRejected) {
		t.Errorf("history status = %s, want rejected", rec.Status)
	}
}

func TestDownload_StreamedSizeExceeded(t *testing.T) {
	payload := []byte(strings.Repeat("v", 2048))
	f := newFixture(t, igExtractor(), &fakeFetcher{payload: payload}, withMaxBytes(1024))

	_, err := f.svc.Download(context.Background(), request())
	if !errors.Is(err, domain.ErrSizeExceeded) {
		t.Fatalf("err = %v, want ErrSizeExceeded (not a truncated success)", err)
	}

	rec := f.history.last(t)
	if rec.Code != string(domain.CodeSizeExceeded) {
		t.Errorf("history code = %s", rec.Code)
	}
}

func TestDownload_ExtractionTimeout(t *testing.T) {
	ext := igExtractor()
	ext.block = true
	f := newFixture(t, ext, &fakeFetcher{})

	_, err := f.svc.Download(context.Background(), request())
	if !errors.Is(err, domain.ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout", err)
	}
}

func TestDownload_ExtractorFailureNormalized(t *testing.T) {
	ext := igExtractor()
	ext.err = domain.NewExtractError(domain.PlatformInstagram, "resolve",
		domain.ErrUpstreamShapeChanged, "metadata moved")
	f := newFixture(t, ext, &fakeFetcher{})

	_, err := f.svc.Download(context.Background(), request())
	if !errors.Is(err, domain.ErrUpstreamShapeChanged) {
		t.Fatalf("err = %v, want ErrUpstreamShapeChanged", err)
	}

	rec := f.history.last(t)
	if rec.Platform != string(domain.PlatformInstagram) {
		t.Errorf("history platform = %s, want instagram attribution", rec.Platform)
	}
	if rec.Status != string(domain.OutcomeFailed) {
		t.Errorf("history status = %s, want failed", rec.Status)
	}
}

func TestDownload_ClientGoneMidTransfer(t *testing.T) {
	// A body that produces data forever; only context cancellation can
	// stop the transfer.
	pr, pw := io.Pipe()
	go func() {
		chunk := bytes.Repeat([]byte("v"), 1024)
		for {
			if _, err := pw.Write(chunk); err != nil {
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()
	defer pw.Close()

	f := newFixture(t, igExtractor(), &fakeFetcher{body: io.NopCloser(pr)})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Download(ctx, request())
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, domain.ErrTimeout) {
			t.Errorf("err = %v, want ErrTimeout classification", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("transfer did not stop after cancellation")
	}
}

func TestResolve_ReturnsDescriptorWithoutTransfer(t *testing.T) {
	fetcher := &fakeFetcher{}
	f := newFixture(t, igExtractor(), fetcher)

	desc, err := f.svc.Resolve(context.Background(), request())
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if desc.MediaID != "ABC123" {
		t.Errorf("MediaID = %q", desc.MediaID)
	}
	if fetcher.callCount() != 0 {
		t.Error("Resolve must not transfer media")
	}
}
