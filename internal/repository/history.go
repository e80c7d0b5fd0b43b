package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS download_history (
	id          TEXT PRIMARY KEY,
	url         TEXT NOT NULL,
	platform    TEXT NOT NULL,
	status      TEXT NOT NULL,
	code        TEXT NOT NULL,
	media_id    TEXT NOT NULL DEFAULT '',
	bytes       INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	client_id   TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_created_at ON download_history(created_at);
`

// SQLiteHistory is a HistoryStore backed by a local SQLite file.
type SQLiteHistory struct {
	db *sql.DB
}

// NewSQLiteHistory opens (creating if needed) the history database at path.
func NewSQLiteHistory(path string) (*SQLiteHistory, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	// SQLite allows one writer; bounding the pool avoids lock churn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}

	return &SQLiteHistory{db: db}, nil
}

// Record implements HistoryStore.
func (s *SQLiteHistory) Record(ctx context.Context, rec HistoryRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO download_history
			(id, url, platform, status, code, media_id, bytes, duration_ms, client_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.URL, rec.Platform, rec.Status, rec.Code,
		rec.MediaID, rec.Bytes, rec.Duration, rec.ClientID, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert history record: %w", err)
	}
	return nil
}

// Recent implements HistoryStore.
func (s *SQLiteHistory) Recent(ctx context.Context, limit int) ([]HistoryRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, url, platform, status, code, media_id, bytes, duration_ms, client_id, created_at
		FROM download_history
		ORDER BY created_at DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []HistoryRecord
	for rows.Next() {
		var rec HistoryRecord
		if err := rows.Scan(
			&rec.ID, &rec.URL, &rec.Platform, &rec.Status, &rec.Code,
			&rec.MediaID, &rec.Bytes, &rec.Duration, &rec.ClientID, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan history record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Purge implements HistoryStore.
func (s *SQLiteHistory) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM download_history WHERE created_at < ?`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge history: %w", err)
	}
	return res.RowsAffected()
}

// Close implements HistoryStore.
func (s *SQLiteHistory) Close() error {
	return s.db.Close()
}

// NoopHistory discards all records. Used when history is disabled.
type NoopHistory struct{}

func (NoopHistory) Record(context.Context, HistoryRecord) error { return nil }
func (NoopHistory) Recent(context.Context, int) ([]HistoryRecord, error) {
	return nil, nil
}
func (NoopHistory) Purge(context.Context, time.Time) (int64, error) { return 0, nil }
func (NoopHistory) Close() error                                    { return nil }
