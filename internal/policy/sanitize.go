package policy

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/iconidentify/vidgrab/internal/domain"
)

// maxURLLength caps submitted URLs. Anything longer is rejected rather
// than truncated.
const maxURLLength = 2048

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// SanitizeURL cleans a client-submitted URL and validates its basic
// shape. It strips NUL bytes and HTML tags, trims whitespace, and
// rejects empty, oversized, or unparseable input with
// domain.ErrInvalidURL.
func SanitizeURL(raw string) (string, error) {
	raw = strings.ReplaceAll(raw, "\x00", "")
	raw = htmlTagPattern.ReplaceAllString(raw, "")
	raw = strings.TrimSpace(raw)

	if raw == "" || len(raw) > maxURLLength {
		return "", domain.ErrInvalidURL
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", domain.ErrInvalidURL
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", domain.ErrInvalidURL
	}

	return raw, nil
}
