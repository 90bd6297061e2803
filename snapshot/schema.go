package snapshot

import "database/sql"

// Schema is the complete pagewatch state schema.
const Schema = `
-- Last-observed normalized content per monitored target
CREATE TABLE IF NOT EXISTS snapshots (
    url            TEXT NOT NULL,
    selector       TEXT NOT NULL DEFAULT '',
    digest         TEXT NOT NULL,
    sentences_json TEXT NOT NULL DEFAULT '[]',
    raw_hash       TEXT NOT NULL DEFAULT '',
    etag           TEXT NOT NULL DEFAULT '',
    last_modified  TEXT NOT NULL DEFAULT '',
    captured_at    INTEGER NOT NULL,
    checked_at     INTEGER NOT NULL,
    PRIMARY KEY (url, selector)
);

-- One row per monitoring cycle (observability)
CREATE TABLE IF NOT EXISTS watch_log (
    id            TEXT PRIMARY KEY,
    url           TEXT NOT NULL,
    status        TEXT NOT NULL,
    status_code   INTEGER,
    digest        TEXT NOT NULL DEFAULT '',
    added_count   INTEGER NOT NULL DEFAULT 0,
    added_chars   INTEGER NOT NULL DEFAULT 0,
    error_message TEXT NOT NULL DEFAULT '',
    duration_ms   INTEGER NOT NULL DEFAULT 0,
    checked_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_watch_log_url ON watch_log(url, checked_at DESC);
CREATE INDEX IF NOT EXISTS idx_watch_log_status ON watch_log(status, checked_at DESC);
`

// ApplySchema creates all tables and indexes on the given database.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
