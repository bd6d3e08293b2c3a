package storage

import (
	"database/sql"
	"strings"
)

const migrationsSQL = `
CREATE TABLE IF NOT EXISTS samples (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	fingerprint_id TEXT,
	body BLOB NOT NULL,
	compressed INTEGER NOT NULL DEFAULT 0,
	word_count INTEGER NOT NULL,
	source TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_samples_owner ON samples(owner_id);

CREATE INDEX IF NOT EXISTS idx_samples_fingerprint ON samples(fingerprint_id);

CREATE TABLE IF NOT EXISTS fingerprints (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('pending','computing','active','failed')),
	version INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fingerprints_owner ON fingerprints(owner_id);

CREATE TABLE IF NOT EXISTS trait_sets (
	fingerprint_id TEXT NOT NULL,
	version INTEGER NOT NULL,
	metrics TEXT NOT NULL,
	signature TEXT NOT NULL,
	traits TEXT NOT NULL,
	pitfalls TEXT NOT NULL,
	thresholds TEXT NOT NULL,
	summary TEXT NOT NULL,
	skipped_samples TEXT,
	created_at TIMESTAMP NOT NULL,
	UNIQUE(fingerprint_id, version)
);

CREATE TABLE IF NOT EXISTS locks (
	owner_id TEXT NOT NULL,
	category TEXT NOT NULL,
	enabled INTEGER NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	UNIQUE(owner_id, category)
)
`

// InitDB runs migrations on the given DB connection using the embedded SQL.
func InitDB(db *sql.DB) error {
	stmts := strings.Split(migrationsSQL, ";")
	for _, s := range stmts {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}
