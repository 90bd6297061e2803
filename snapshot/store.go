package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Store wraps a SQLite database holding snapshots and the watch log.
// Concurrent cycles for distinct targets may share one Store; the caller
// serializes writers per target.
type Store struct {
	DB *sql.DB
}

// NewStore wraps an opened database.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// Load returns the snapshot for (url, selector), or (nil, nil) when no
// prior snapshot exists. A store failure is an error; the caller must not
// confuse it with a first run.
func (s *Store) Load(ctx context.Context, url, selector string) (*PageSnapshot, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT url, selector, digest, sentences_json, raw_hash, etag,
		last_modified, captured_at, checked_at
		FROM snapshots WHERE url = ? AND selector = ?`, url, selector)

	var snap PageSnapshot
	var sentencesJSON string
	err := row.Scan(&snap.URL, &snap.Selector, &snap.Digest, &sentencesJSON,
		&snap.RawHash, &snap.ETag, &snap.LastModified, &snap.CapturedAt, &snap.CheckedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(sentencesJSON), &snap.Sentences); err != nil {
		return nil, fmt.Errorf("decode sentences: %w", err)
	}
	return &snap, nil
}

// Save upserts the snapshot for its (url, selector) key, overwriting the
// previous observation.
func (s *Store) Save(ctx context.Context, snap *PageSnapshot) error {
	now := time.Now().UnixMilli()
	if snap.CapturedAt == 0 {
		snap.CapturedAt = now
	}
	if snap.CheckedAt == 0 {
		snap.CheckedAt = now
	}
	sentencesJSON, err := json.Marshal(snap.Sentences)
	if err != nil {
		return fmt.Errorf("encode sentences: %w", err)
	}

	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO snapshots (url, selector, digest, sentences_json, raw_hash,
		etag, last_modified, captured_at, checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url, selector) DO UPDATE SET
			digest = excluded.digest,
			sentences_json = excluded.sentences_json,
			raw_hash = excluded.raw_hash,
			etag = excluded.etag,
			last_modified = excluded.last_modified,
			captured_at = excluded.captured_at,
			checked_at = excluded.checked_at`,
		snap.URL, snap.Selector, snap.Digest, string(sentencesJSON), snap.RawHash,
		snap.ETag, snap.LastModified, snap.CapturedAt, snap.CheckedAt,
	)
	return err
}

// Touch bumps checked_at without changing the observed content. Used when a
// cycle found nothing new.
func (s *Store) Touch(ctx context.Context, url, selector string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE snapshots SET checked_at = ? WHERE url = ? AND selector = ?`,
		time.Now().UnixMilli(), url, selector)
	return err
}

// Delete removes the snapshot for (url, selector).
func (s *Store) Delete(ctx context.Context, url, selector string) error {
	_, err := s.DB.ExecContext(ctx,
		`DELETE FROM snapshots WHERE url = ? AND selector = ?`, url, selector)
	return err
}

// InsertLog records one cycle outcome.
func (s *Store) InsertLog(ctx context.Context, e *WatchLogEntry) error {
	if e.CheckedAt == 0 {
		e.CheckedAt = time.Now().UnixMilli()
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO watch_log (id, url, status, status_code, digest,
		added_count, added_chars, error_message, duration_ms, checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.URL, e.Status, e.StatusCode, e.Digest,
		e.AddedCount, e.AddedChars, e.ErrorMsg, e.DurationMs, e.CheckedAt,
	)
	return err
}

// History returns the most recent watch log entries for a URL.
func (s *Store) History(ctx context.Context, url string, limit int) ([]*WatchLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, url, status, status_code, digest, added_count, added_chars,
		error_message, duration_ms, checked_at
		FROM watch_log WHERE url = ?
		ORDER BY checked_at DESC LIMIT ?`, url, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLogRows(rows)
}

// RecentChanges returns the most recent cycles that reported new content,
// across all URLs.
func (s *Store) RecentChanges(ctx context.Context, limit int) ([]*WatchLogEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, url, status, status_code, digest, added_count, added_chars,
		error_message, duration_ms, checked_at
		FROM watch_log WHERE status = ?
		ORDER BY checked_at DESC LIMIT ?`, StatusChanged, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLogRows(rows)
}

func scanLogRows(rows *sql.Rows) ([]*WatchLogEntry, error) {
	var entries []*WatchLogEntry
	for rows.Next() {
		var e WatchLogEntry
		var statusCode sql.NullInt64
		err := rows.Scan(&e.ID, &e.URL, &e.Status, &statusCode, &e.Digest,
			&e.AddedCount, &e.AddedChars, &e.ErrorMsg, &e.DurationMs, &e.CheckedAt)
		if err != nil {
			return nil, fmt.Errorf("scan watch log: %w", err)
		}
		e.StatusCode = int(statusCode.Int64)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
