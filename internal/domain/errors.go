package domain

import (
	"errors"
	"net/http"
)

// Domain errors. Every failure surfaced by the pipeline normalizes to
// exactly one of these before it reaches a handler.
var (
	// ErrInvalidURL is returned when the submitted URL cannot be parsed.
	ErrInvalidURL = errors.New("invalid URL")

	// ErrDomainNotAllowed is returned when the URL host is not on the allow-list.
	ErrDomainNotAllowed = errors.New("domain not allowed")

	// ErrRateLimited is returned when the client exceeded its request window.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrPlatformUnsupported is returned when no extractor matches the URL.
	ErrPlatformUnsupported = errors.New("unsupported platform")

	// ErrContentNotFound is returned when the post does not exist or holds no video.
	ErrContentNotFound = errors.New("content not found")

	// ErrContentRestricted is returned for private or login-walled posts.
	ErrContentRestricted = errors.New("content is private or restricted")

	// ErrUpstreamTransient is returned for retryable upstream failures.
	// The server never retries; the client may.
	ErrUpstreamTransient = errors.New("upstream temporarily unavailable")

	// ErrUpstreamShapeChanged is returned when an upstream response no
	// longer matches the expected structure. Requires operator attention.
	ErrUpstreamShapeChanged = errors.New("upstream response format changed")

	// ErrSizeExceeded is returned when a transfer exceeds the configured maximum.
	ErrSizeExceeded = errors.New("download size limit exceeded")

	// ErrTimeout is returned when an upstream call exceeds its deadline.
	ErrTimeout = errors.New("upstream request timed out")
)

// Code is the stable machine-readable code for an outcome, exposed to
// clients in error responses.
type Code string

const (
	CodeOK                   Code = "OK"
	CodeInvalidURL           Code = "INVALID_URL"
	CodeDomainNotAllowed     Code = "DOMAIN_NOT_ALLOWED"
	CodeRateLimited          Code = "RATE_LIMITED"
	CodePlatformUnsupported  Code = "PLATFORM_UNSUPPORTED"
	CodeContentNotFound      Code = "CONTENT_NOT_FOUND"
	CodeContentRestricted    Code = "CONTENT_RESTRICTED"
	CodeUpstreamTransient    Code = "UPSTREAM_TRANSIENT"
	CodeUpstreamShapeChanged Code = "UPSTREAM_SHAPE_CHANGED"
	CodeSizeExceeded         Code = "SIZE_EXCEEDED"
	CodeTimeout              Code = "TIMEOUT"
	CodeInternal             Code = "INTERNAL_ERROR"
)

// CodeFor maps an error to its taxonomy code. Unknown errors map to
// CodeInternal so no upstream detail leaks to the caller.
func CodeFor(err error) Code {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrInvalidURL):
		return CodeInvalidURL
	case errors.Is(err, ErrDomainNotAllowed):
		return CodeDomainNotAllowed
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, ErrPlatformUnsupported):
		return CodePlatformUnsupported
	case errors.Is(err, ErrContentNotFound):
		return CodeContentNotFound
	case errors.Is(err, ErrContentRestricted):
		return CodeContentRestricted
	case errors.Is(err, ErrUpstreamShapeChanged):
		return CodeUpstreamShapeChanged
	case errors.Is(err, ErrUpstreamTransient):
		return CodeUpstreamTransient
	case errors.Is(err, ErrSizeExceeded):
		return CodeSizeExceeded
	case errors.Is(err, ErrTimeout):
		return CodeTimeout
	default:
		return CodeInternal
	}
}

// HTTPStatus maps a code to the HTTP status returned to the client.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeOK:
		return http.StatusOK
	case CodeInvalidURL, CodePlatformUnsupported:
		return http.StatusBadRequest
	case CodeDomainNotAllowed, CodeContentRestricted:
		return http.StatusForbidden
	case CodeContentNotFound:
		return http.StatusNotFound
	case CodeSizeExceeded:
		return http.StatusRequestEntityTooLarge
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeUpstreamTransient, CodeUpstreamShapeChanged:
		return http.StatusBadGateway
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the client may usefully retry the request.
func (c Code) Retryable() bool {
	return c == CodeRateLimited || c == CodeUpstreamTransient || c == CodeTimeout
}

// ExtractError wraps an extractor failure with platform context. The
// wrapped error is always one of the taxonomy sentinels; Detail carries
// the platform-specific cause for logs only.
type ExtractError struct {
	Platform Platform
	Op       string
	Detail   string
	Err      error
}

func (e *ExtractError) Error() string {
	msg := string(e.Platform) + " " + e.Op + ": " + e.Err.Error()
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// NewExtractError creates an ExtractError.
func NewExtractError(platform Platform, op string, err error, detail string) *ExtractError {
	return &ExtractError{Platform: platform, Op: op, Detail: detail, Err: err}
}
