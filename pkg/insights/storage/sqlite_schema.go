package storage

// Schema defines the SQLite schema for insights.
//
// The partial unique index on open insights is the deduplication
// guarantee: at most one open row per (project, category, signal key).
// Acknowledged and resolved rows fall outside the index, so a recurring
// condition can open a fresh insight.
const Schema = `
CREATE TABLE IF NOT EXISTS insights (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	category TEXT NOT NULL,
	severity TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	signal_key TEXT NOT NULL,
	evidence TEXT NOT NULL DEFAULT '{}',
	state TEXT NOT NULL DEFAULT 'open',
	created_at INTEGER NOT NULL,
	acknowledged_at INTEGER,
	resolved_at INTEGER
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_insights_open_once
	ON insights(project_id, category, signal_key) WHERE state = 'open';

CREATE INDEX IF NOT EXISTS idx_insights_project ON insights(project_id, created_at);
CREATE INDEX IF NOT EXISTS idx_insights_state ON insights(state);

CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	applied_at INTEGER NOT NULL
);
`

// SchemaVersion is the current schema version.
const SchemaVersion = 1

// InsertSchemaVersion records the schema version on initialization.
const InsertSchemaVersion = `
INSERT OR IGNORE INTO schema_version (version, applied_at) VALUES (?, ?);
`
