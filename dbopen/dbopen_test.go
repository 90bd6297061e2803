package dbopen

import (
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func TestOpen_FilePragmas(t *testing.T) {
	// WHAT: Open applies foreign_keys and busy_timeout pragmas to a file
	// database.
	// WHY: All writers rely on these being set centrally, not per call site.
	db, err := Open(filepath.Join(t.TempDir(), "t.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("query: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}
}

func TestOpen_WithSchema(t *testing.T) {
	// WHAT: WithSchema executes DDL during open; repeated WithSchema
	// options run in order.
	// WHY: Callers hand over their schema and get back a ready database.
	db := OpenMemory(t,
		WithSchema(`CREATE TABLE a (id INTEGER PRIMARY KEY)`),
		WithSchema(`CREATE TABLE b (a_id INTEGER REFERENCES a(id))`),
	)
	if _, err := db.Exec(`INSERT INTO a (id) VALUES (1)`); err != nil {
		t.Fatalf("insert a: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO b (a_id) VALUES (1)`); err != nil {
		t.Fatalf("insert b: %v", err)
	}
}

func TestOpen_BadSchema(t *testing.T) {
	// WHAT: A broken schema fails Open instead of returning a half-built
	// database.
	// WHY: Startup failures beat runtime surprises.
	_, err := Open(":memory:", WithSchema(`CREATE TABEL oops`))
	if err == nil {
		t.Fatal("broken schema accepted")
	}
}

func TestOpenMemory_SharedAcrossQueries(t *testing.T) {
	// WHAT: All queries on an OpenMemory database see the same data.
	// WHY: Each ":memory:" connection is its own database; the pool must be
	// pinned to one connection or tests see tables vanish.
	db := OpenMemory(t, WithSchema(`CREATE TABLE x (n INTEGER)`))
	for i := 0; i < 5; i++ {
		if _, err := db.Exec(`INSERT INTO x (n) VALUES (?)`, i); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM x`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 5 {
		t.Errorf("count = %d, want 5", count)
	}
}
