/*
Package sqlite provides SQLite-backed implementations of the casefile stores.

Tables:

  - callers: one enrichment record per ANI, guarded by a version column.
  - call_state: in-flight SessionContexts, one row per call.
  - consent_log: the append-only consent ledger. This package never issues
    UPDATE or DELETE against it.

Usage:

	db, err := sqlite.Open("./casefile.db")
	if err != nil {
		return err
	}
	defer db.Close()

	cache := enrichment.New(db.Callers(), gw)
	ledger := consent.NewLedger(db.Consent())

The schema is created on Open. Use ":memory:" for tests.
*/
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS callers (
	ani TEXT PRIMARY KEY,
	owner_name TEXT NOT NULL DEFAULT '',
	candidate_email TEXT NOT NULL DEFAULT '',
	candidate_address_raw TEXT NOT NULL DEFAULT '',
	candidate_address_normalized TEXT NOT NULL DEFAULT '',
	line_type TEXT NOT NULL DEFAULT '',
	sms_eligible INTEGER NOT NULL DEFAULT 0,
	geocode_lat REAL NOT NULL DEFAULT 0,
	geocode_lng REAL NOT NULL DEFAULT 0,
	geocode_confidence TEXT NOT NULL DEFAULT '',
	dpv_match_code TEXT NOT NULL DEFAULT '',
	validated_email TEXT NOT NULL DEFAULT '',
	validated_address TEXT NOT NULL DEFAULT '',
	last_validated_at_address TEXT NOT NULL DEFAULT '',
	last_validated_at_email TEXT NOT NULL DEFAULT '',
	last_validated_at_linetype TEXT NOT NULL DEFAULT '',
	record_source TEXT NOT NULL DEFAULT '',
	delta_flags_json TEXT NOT NULL DEFAULT '[]',
	version INTEGER NOT NULL,
	last_call_at TEXT NOT NULL DEFAULT '',
	extras_json TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS call_state (
	call_id TEXT PRIMARY KEY,
	ani TEXT NOT NULL,
	step TEXT NOT NULL,
	attempt_counts_json TEXT NOT NULL,
	follow_up_required INTEGER NOT NULL DEFAULT 0,
	follow_up_reason TEXT NOT NULL DEFAULT '',
	context_json TEXT NOT NULL,
	created_at TEXT NOT NULL,
	ended_at TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS consent_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ani TEXT NOT NULL,
	call_id TEXT NOT NULL,
	type TEXT NOT NULL CHECK (type IN ('sms', 'email_send')),
	granted INTEGER NOT NULL,
	transcript_snippet TEXT NOT NULL DEFAULT '',
	timestamp TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_consent_log_ani ON consent_log(ani);
CREATE INDEX IF NOT EXISTS idx_consent_log_call_id ON consent_log(call_id);
`

// DB owns the connection shared by the three stores.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Callers returns the caller store.
func (d *DB) Callers() *CallerStore {
	return &CallerStore{db: d.db}
}

// Consent returns the consent log.
func (d *DB) Consent() *ConsentStore {
	return &ConsentStore{db: d.db}
}

// Calls returns the call state store.
func (d *DB) Calls() *CallStateStore {
	return &CallStateStore{db: d.db}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
