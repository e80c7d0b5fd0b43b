// Package repository persists download history records. Only request
// metadata is stored; media bytes never outlive the request.
package repository

import (
	"context"
	"time"
)

// HistoryRecord is one finished download request.
type HistoryRecord struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Platform  string    `json:"platform"`
	Status    string    `json:"status"`
	Code      string    `json:"code"`
	MediaID   string    `json:"media_id,omitempty"`
	Bytes     int64     `json:"bytes"`
	Duration  int64     `json:"duration_ms"`
	ClientID  string    `json:"client_id"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryStore records and queries download outcomes.
type HistoryStore interface {
	// Record persists one outcome.
	Record(ctx context.Context, rec HistoryRecord) error

	// Recent returns the newest records, newest first.
	Recent(ctx context.Context, limit int) ([]HistoryRecord, error)

	// Purge removes records older than the cutoff, returning the count.
	Purge(ctx context.Context, olderThan time.Time) (int64, error)

	// Close releases the underlying storage.
	Close() error
}
