package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/iconidentify/vidgrab/internal/domain"
	"github.com/iconidentify/vidgrab/internal/service"
)

// ErrorResponse is the JSON body for every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeDomainError maps a pipeline error onto the stable error code and
// its HTTP status. Rate-limit rejections additionally carry Retry-After
// and a retryAfterSeconds hint in the body.
func writeDomainError(w http.ResponseWriter, err error) {
	var rlErr *service.RateLimitError
	if errors.As(err, &rlErr) {
		seconds := int(rlErr.RetryAfter.Seconds())
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(struct {
			Error             string `json:"error"`
			Code              string `json:"code"`
			RetryAfterSeconds int    `json:"retryAfterSeconds"`
		}{
			Error:             "rate limit exceeded",
			Code:              string(domain.CodeRateLimited),
			RetryAfterSeconds: seconds,
		})
		return
	}

	code := domain.CodeFor(err)
	writeJSON(w, code.HTTPStatus(), ErrorResponse{
		Error: errorMessage(code, err),
		Code:  string(code),
	})
}

// errorMessage keeps client-facing text stable per code; upstream
// detail stays in the logs.
func errorMessage(code domain.Code, err error) string {
	switch code {
	case domain.CodeInvalidURL:
		return "invalid or malformed URL"
	case domain.CodeDomainNotAllowed:
		return "domain is not on the allow-list"
	case domain.CodePlatformUnsupported:
		return "no extractor for this URL"
	case domain.CodeContentNotFound:
		return "content not found or deleted"
	case domain.CodeContentRestricted:
		return "content is private or restricted"
	case domain.CodeUpstreamTransient:
		return "upstream platform error, try again later"
	case domain.CodeUpstreamShapeChanged:
		return "upstream response format not recognized"
	case domain.CodeSizeExceeded:
		return "media exceeds the maximum download size"
	case domain.CodeTimeout:
		return "request timed out"
	default:
		return "internal server error"
	}
}
