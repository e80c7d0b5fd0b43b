// Package extractor resolves social-media post URLs to direct media
// descriptors. One extractor exists per platform; the registry selects
// one by syntactic URL classification. Upstream surfaces here are
// undocumented and change without notice, so every failure is
// normalized into the domain error taxonomy before it leaves this
// package.
package extractor

import (
	"context"
	"net/url"

	"github.com/iconidentify/vidgrab/internal/domain"
)

// Extractor resolves a post URL to a media descriptor.
type Extractor interface {
	// Platform returns the platform this extractor handles.
	Platform() domain.Platform

	// Match reports whether this extractor can handle the URL.
	// The URL is pre-parsed so extractors can reliably check the host.
	Match(u *url.URL) bool

	// Resolve fetches upstream metadata and returns the descriptor for
	// the post's video. Failures unwrap to one of ErrContentNotFound,
	// ErrContentRestricted, ErrUpstreamTransient,
	// ErrUpstreamShapeChanged, or ErrTimeout.
	Resolve(ctx context.Context, rawURL string) (domain.MediaDescriptor, error)
}

// Registry holds the registered platform extractors.
type Registry struct {
	extractors []Extractor
}

// NewRegistry creates a registry from the given extractors.
func NewRegistry(extractors ...Extractor) *Registry {
	return &Registry{extractors: extractors}
}

// Classify maps a URL to its platform. Purely syntactic: it never
// verifies that the URL resolves to a real post.
func (r *Registry) Classify(rawURL string) domain.Platform {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return domain.PlatformUnsupported
	}
	for _, e := range r.extractors {
		if e.Match(u) {
			return e.Platform()
		}
	}
	return domain.PlatformUnsupported
}

// ForURL returns the extractor handling the URL, or
// ErrPlatformUnsupported when none matches.
func (r *Registry) ForURL(rawURL string) (Extractor, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, domain.ErrPlatformUnsupported
	}
	for _, e := range r.extractors {
		if e.Match(u) {
			return e, nil
		}
	}
	return nil, domain.ErrPlatformUnsupported
}

// Platforms returns the platforms with a registered extractor.
func (r *Registry) Platforms() []domain.Platform {
	out := make([]domain.Platform, 0, len(r.extractors))
	for _, e := range r.extractors {
		out = append(out, e.Platform())
	}
	return out
}
