package handler

import (
	"bytes"
	"context"
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
	"github.com/iconidentify/vidgrab/internal/service"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubExtractor resolves every matching URL to a fixed descriptor.
type stubExtractor struct {
	platform domain.Platform
	host     string
	desc     domain.MediaDescriptor
	err      error
}

func (s *stubExtractor) Platform() domain.Platform { return s.platform }

func (s *stubExtractor) Match(u *url.URL) bool {
	return strings.HasSuffix(u.Hostname(), s.host)
}

func (s *stubExtractor) Resolve(context.Context, string) (domain.MediaDescriptor, error) {
	if s.err != nil {
		return domain.MediaDescriptor{}, s.err
	}
	return s.desc, nil
}

// stubFetcher serves a canned payload.
type stubFetcher struct {
	payload []byte
}

func (s *stubFetcher) Fetch(context.Context, string) (*fetch.Result, error) {
	return &fetch.Result{
		Body:        io.NopCloser(bytes.NewReader(s.payload)),
		ContentType: "video/mp4",
		Size:        int64(len(s.payload)),
	}, nil
}

// memHistory is an in-memory repository.HistoryStore.
type memHistory struct {
	mu   sync.Mutex
	recs []repository.HistoryRecord
	err  error
}

func (m *memHistory) Record(_ context.Context, rec repository.HistoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memHistory) Recent(_ context.Context, limit int) ([]repository.HistoryRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repository.HistoryRecord
	for i := len(m.recs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.recs[i])
	}
	return out, nil
}

func (m *memHistory) Purge(context.Context, time.Time) (int64, error) { return 0, nil }
func (m *memHistory) Close() error                                    { return nil }

type serviceOpts struct {
	extractor *stubExtractor
	payload   []byte
	maxBytes  int64
	limit     int
}

func defaultExtractor() *stubExtractor {
	return &stubExtractor{
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

// newTestService builds a real pipeline over stub upstreams.
func newTestService(t *testing.T, opts serviceOpts) (*service.DownloadService, *memHistory) {
	t.Helper()

	if opts.extractor == nil {
		opts.extractor = defaultExtractor()
	}
	if opts.payload == nil {
		opts.payload = []byte("video-bytes")
	}
	if opts.maxBytes == 0 {
		opts.maxBytes = 1 << 20
	}
	if opts.limit == 0 {
		opts.limit = 100
	}

	history := &memHistory{}
	svc := service.NewDownloadService(
		policy.NewAllowList([]string{"instagram.com", "tiktok.com"}),
		policy.NewSizeGuard(opts.maxBytes),
		ratelimit.New(true, opts.limit, time.Minute),
		extractor.NewRegistry(opts.extractor),
		&stubFetcher{payload: opts.payload},
		history,
		nil,
		testLogger(),
		t.TempDir(),
		time.Second,
	)
	return svc, history
}
