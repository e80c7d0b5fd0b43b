// Package service contains the download orchestrator: the per-request
// state machine composing validation, rate limiting, extraction, size
// guarding, and transfer into one uniform outcome.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/iconidentify/vidgrab/internal/domain"
	"github.com/iconidentify/vidgrab/internal/extractor"
	"github.com/iconidentify/vidgrab/internal/fetch"
	"github.com/iconidentify/vidgrab/internal/metrics"
	"github.com/iconidentify/vidgrab/internal/policy"
	"github.com/iconidentify/vidgrab/internal/ratelimit"
	"github.com/iconidentify/vidgrab/internal/repository"
)

// requestState names the stops of the per-request state machine.
// Transitions are strictly forward; any failure short-circuits to a
// terminal outcome carrying the originating reason.
type requestState string

const (
	stateReceived    requestState = "received"
	stateValidated   requestState = "validated"
	stateRateChecked requestState = "rate_checked"
	stateResolved    requestState = "resolved"
	stateSizeChecked requestState = "size_checked"
	stateStreaming   requestState = "streaming"
)

// MediaFetcher opens a streaming read against a direct media URL.
type MediaFetcher interface {
	Fetch(ctx context.Context, mediaURL string) (*fetch.Result, error)
}

// RateLimitError is returned when a request is rejected by the rate
// limiter; it carries the retry-after guidance surfaced to the client.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error {
	return domain.ErrRateLimited
}

// DownloadService orchestrates one download per call. All dependencies
// are stateless or internally synchronized, so a single instance serves
// concurrent requests.
type DownloadService struct {
	allow          *policy.AllowList
	guard          *policy.SizeGuard
	limiter        *ratelimit.Limiter
	registry       *extractor.Registry
	fetcher        MediaFetcher
	history        repository.HistoryStore
	metrics        *metrics.Metrics
	logger         *slog.Logger
	spoolDir       string
	extractTimeout time.Duration
}

// NewDownloadService creates the orchestrator.
func NewDownloadService(
	allow *policy.AllowList,
	guard *policy.SizeGuard,
	limiter *ratelimit.Limiter,
	registry *extractor.Registry,
	fetcher MediaFetcher,
	history repository.HistoryStore,
	m *metrics.Metrics,
	logger *slog.Logger,
	spoolDir string,
	extractTimeout time.Duration,
) *DownloadService {
	return &DownloadService{
		allow:          allow,
		guard:          guard,
		limiter:        limiter,
		registry:       registry,
		fetcher:        fetcher,
		history:        history,
		metrics:        m,
		logger:         logger,
		spoolDir:       spoolDir,
		extractTimeout: extractTimeout,
	}
}

// Delivery is a completed, size-checked transfer ready to replay to the
// client. Close releases the spool; callers must always close it.
type Delivery struct {
	Descriptor domain.MediaDescriptor
	spool      *fetch.Spool
}

// Size returns the exact byte count of the buffered media.
func (d *Delivery) Size() int64 {
	return d.spool.Size()
}

// Read implements io.Reader over the buffered media.
func (d *Delivery) Read(p []byte) (int, error) {
	return d.spool.Read(p)
}

// Close discards the buffered media.
func (d *Delivery) Close() error {
	return d.spool.Close()
}

// Platforms returns the platforms with a registered extractor.
func (s *DownloadService) Platforms() []domain.Platform {
	return s.registry.Platforms()
}

// Download runs the full pipeline for one request. On success the
// returned Delivery holds the media, fully transferred from upstream
// and size-checked. On failure the error unwraps into the domain
// taxonomy. The terminal outcome is recorded either way.
func (s *DownloadService) Download(ctx context.Context, req domain.DownloadRequest) (*Delivery, error) {
	start := time.Now()
	if s.metrics != nil {
		done := s.metrics.TrackInFlight()
		defer done()
	}
	s.transition(req, stateReceived, "url", req.URL)

	desc, err := s.resolve(ctx, req, true)
	if err != nil {
		s.finish(req, start, failureOutcome(err, descPlatform(desc)))
		return nil, err
	}

	// Resolved → SizeChecked: reject oversized transfers before any
	// bytes move when upstream declared a length.
	if err := s.guard.CheckDeclared(desc); err != nil {
		s.finish(req, start, failureOutcome(err, desc.Platform))
		return nil, err
	}
	s.transition(req, stateSizeChecked, "declared_size", desc.DeclaredSize)

	// SizeChecked → Streaming: transfer upstream bytes into the spool
	// with the streamed size check as backstop. The request context
	// cancels the upstream read if the client goes away.
	res, err := s.fetcher.Fetch(ctx, desc.SourceURL)
	if err != nil {
		err = s.normalizeFetchError(ctx, err)
		s.finish(req, start, failureOutcome(err, desc.Platform))
		return nil, err
	}
	s.transition(req, stateStreaming, "media_url", desc.SourceURL)

	spool, err := fetch.NewSpool(s.spoolDir, s.guard.Reader(newContextReader(ctx, res.Body)))
	res.Body.Close()
	if err != nil {
		// The spool already discarded its partial file; only the
		// classified reason survives.
		err = s.normalizeFetchError(ctx, err)
		s.finish(req, start, failureOutcome(err, desc.Platform))
		return nil, err
	}

	outcome := domain.Outcome{
		Status:        domain.OutcomeSucceeded,
		Code:          domain.CodeOK,
		Platform:      desc.Platform,
		MediaID:       desc.MediaID,
		ContentType:   desc.ContentType,
		BytesStreamed: spool.Size(),
	}
	s.finish(req, start, outcome)

	return &Delivery{Descriptor: desc, spool: spool}, nil
}

// Resolve runs the pipeline up to extraction and returns the descriptor
// without transferring media. Backs the metadata-only endpoint.
func (s *DownloadService) Resolve(ctx context.Context, req domain.DownloadRequest) (domain.MediaDescriptor, error) {
	return s.resolve(ctx, req, false)
}

// resolve performs Received → Validated → RateChecked → Resolved.
func (s *DownloadService) resolve(ctx context.Context, req domain.DownloadRequest, logStates bool) (domain.MediaDescriptor, error) {
	// Received → Validated: sanitize, then the allow-list. A rejection
	// here never touches the rate-limit counter.
	cleanURL, err := policy.SanitizeURL(req.URL)
	if err != nil {
		return domain.MediaDescriptor{}, err
	}
	if !s.allow.Allows(cleanURL) {
		return domain.MediaDescriptor{}, domain.ErrDomainNotAllowed
	}
	if logStates {
		s.transition(req, stateValidated, "url", cleanURL)
	}

	ext, err := s.registry.ForURL(cleanURL)
	if err != nil {
		return domain.MediaDescriptor{}, err
	}

	// Validated → RateChecked
	decision := s.limiter.Admit(req.ClientID)
	if !decision.Admitted {
		return domain.MediaDescriptor{}, &RateLimitError{RetryAfter: decision.RetryAfter}
	}
	if logStates {
		s.transition(req, stateRateChecked, "remaining", decision.Remaining)
	}

	// RateChecked → Resolved: the only upstream call with its own
	// deadline; everything after uses the request context.
	extractCtx, cancel := context.WithTimeout(ctx, s.extractTimeout)
	defer cancel()

	desc, err := ext.Resolve(extractCtx, cleanURL)
	if err != nil {
		if extractCtx.Err() == context.DeadlineExceeded {
			return domain.MediaDescriptor{}, domain.NewExtractError(
				ext.Platform(), "resolve", domain.ErrTimeout, "extraction deadline exceeded")
		}
		return domain.MediaDescriptor{}, err
	}
	if logStates {
		s.transition(req, stateResolved, "media_id", desc.MediaID)
	}

	return desc, nil
}

// normalizeFetchError folds context cancellation into the taxonomy.
func (s *DownloadService) normalizeFetchError(ctx context.Context, err error) error {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return domain.ErrTimeout
	case context.Canceled:
		// Client went away mid-transfer; classified as timeout for the
		// outcome record, nobody is listening for the response.
		return domain.ErrTimeout
	}
	return err
}

// transition logs a state-machine advance.
func (s *DownloadService) transition(req domain.DownloadRequest, to requestState, key string, val any) {
	s.logger.Debug("download state",
		"state", string(to),
		"client", req.ClientID,
		key, val,
	)
}

// finish stamps the outcome's duration and records it in logs, metrics,
// and history. History writes use a detached context so a vanished
// client cannot lose the record.
func (s *DownloadService) finish(req domain.DownloadRequest, start time.Time, outcome domain.Outcome) {
	outcome.Duration = time.Since(start)

	level := slog.LevelInfo
	if outcome.Code == domain.CodeUpstreamShapeChanged || outcome.Code == domain.CodeInternal {
		// Shape drift needs operator attention; make it stand out.
		level = slog.LevelError
	}
	s.logger.Log(context.Background(), level, "download finished",
		"status", string(outcome.Status),
		"code", string(outcome.Code),
		"platform", string(outcome.Platform),
		"bytes", outcome.BytesStreamed,
		"duration", outcome.Duration,
		"detail", outcome.Detail,
		"client", req.ClientID,
	)

	if s.metrics != nil {
		s.metrics.ObserveOutcome(outcome)
	}

	recCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rec := repository.HistoryRecord{
		ID:        uuid.NewString(),
		URL:       req.URL,
		Platform:  string(outcome.Platform),
		Status:    string(outcome.Status),
		Code:      string(outcome.Code),
		MediaID:   outcome.MediaID,
		Bytes:     outcome.BytesStreamed,
		Duration:  outcome.Duration.Milliseconds(),
		ClientID:  req.ClientID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.history.Record(recCtx, rec); err != nil {
		s.logger.Warn("history record failed", "error", err)
	}
}

// failureOutcome builds the terminal outcome for err. Platform
// attribution prefers the extractor's own context over the caller's
// fallback.
func failureOutcome(err error, platform domain.Platform) domain.Outcome {
	var extErr *domain.ExtractError
	if errors.As(err, &extErr) {
		platform = extErr.Platform
	}

	code := domain.CodeFor(err)

	status := domain.OutcomeFailed
	switch code {
	case domain.CodeInvalidURL, domain.CodeDomainNotAllowed,
		domain.CodeRateLimited, domain.CodePlatformUnsupported,
		domain.CodeSizeExceeded:
		status = domain.OutcomeRejected
	}

	return domain.Outcome{
		Status:   status,
		Code:     code,
		Platform: platform,
		Detail:   err.Error(),
	}
}

// descPlatform tolerates the zero descriptor of early failures.
func descPlatform(d domain.MediaDescriptor) domain.Platform {
	if d.Platform == "" {
		return domain.PlatformUnsupported
	}
	return d.Platform
}

// contextReader fails reads promptly once ctx is done, so a dropped
// client connection stops the upstream transfer instead of buffering to
// a vanished recipient.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func newContextReader(ctx context.Context, r io.Reader) *contextReader {
	return &contextReader{ctx: ctx, r: r}
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
