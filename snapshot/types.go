// Package snapshot persists the last-observed normalized content of each
// monitored page in SQLite, plus a per-cycle watch log.
package snapshot

// PageSnapshot is the persisted record of a page's last observation.
// One row per (url, selector), overwritten whenever content advances.
type PageSnapshot struct {
	URL      string `json:"url"`
	Selector string `json:"selector,omitempty"`
	// Digest is the SHA-256 digest of the normalized sentence sequence.
	Digest    string   `json:"digest"`
	Sentences []string `json:"sentences"`
	// RawHash is the SHA-256 of the raw response body, used by the fetcher
	// to short-circuit before normalization.
	RawHash      string `json:"raw_hash,omitempty"`
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
	CapturedAt   int64  `json:"captured_at"`
	CheckedAt    int64  `json:"checked_at"`
}

// WatchLogEntry records the outcome of one monitoring cycle.
type WatchLogEntry struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	Status     string `json:"status"` // baseline|unchanged|reordered|noise|changed|error
	StatusCode int    `json:"status_code,omitempty"`
	Digest     string `json:"digest,omitempty"`
	AddedCount int    `json:"added_count,omitempty"`
	AddedChars int    `json:"added_chars,omitempty"`
	ErrorMsg   string `json:"error_message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	CheckedAt  int64  `json:"checked_at"`
}

// Cycle statuses recorded in the watch log.
const (
	StatusBaseline  = "baseline"
	StatusUnchanged = "unchanged"
	StatusReordered = "reordered"
	StatusNoise     = "noise"
	StatusChanged   = "changed"
	StatusError     = "error"
)
