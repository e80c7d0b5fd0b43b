// Package domain contains the core types and error taxonomy for the
// download pipeline. Types here are immutable once constructed and carry
// no behavior beyond classification helpers.
package domain

import "time"

// Platform identifies the source platform of a post URL.
type Platform string

const (
	PlatformInstagram   Platform = "instagram"
	PlatformTikTok      Platform = "tiktok"
	PlatformUnsupported Platform = "unsupported"
)

// SupportedPlatforms lists the platforms downloads are accepted for.
func SupportedPlatforms() []Platform {
	return []Platform{PlatformInstagram, PlatformTikTok}
}

// DownloadRequest is an accepted request to fetch a post's video.
// Immutable once constructed.
type DownloadRequest struct {
	// URL is the sanitized post URL as submitted by the client.
	URL string

	// ClientID identifies the requesting client for rate limiting.
	// Derived from the remote address and API key, never empty.
	ClientID string
}

// MediaDescriptor is the resolved location of a post's video, produced
// by an extractor. DeclaredSize is -1 when the upstream response carried
// no size hint.
type MediaDescriptor struct {
	SourceURL    string
	MediaID      string
	Platform     Platform
	ContentType  string
	DeclaredSize int64
	ResolvedAt   time.Time
}

// Filename returns the attachment filename for the descriptor,
// e.g. "instagram_ABC123.mp4".
func (d MediaDescriptor) Filename() string {
	return string(d.Platform) + "_" + d.MediaID + ".mp4"
}

// OutcomeStatus is the terminal state of a download request.
type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeRejected  OutcomeStatus = "rejected"
	OutcomeFailed    OutcomeStatus = "failed"
)

// Outcome is the terminal result of one download request. Exactly one
// is produced per request; it is never persisted beyond history metadata.
type Outcome struct {
	Status        OutcomeStatus
	Code          Code
	Platform      Platform
	MediaID       string
	ContentType   string
	BytesStreamed int64
	Detail        string
	Duration      time.Duration
}

// Succeeded reports whether the outcome is a success.
func (o Outcome) Succeeded() bool {
	return o.Status == OutcomeSucceeded
}
