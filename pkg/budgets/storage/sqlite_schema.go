package storage

// Schema defines the SQLite schema for budgets and alerts.
//
// The UNIQUE index on (budget_id, threshold_pct, period_start) is the
// at-most-once guarantee for alerts: concurrent evaluators race on the
// insert and exactly one wins, independent of any in-process locking.
const Schema = `
CREATE TABLE IF NOT EXISTS budgets (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	period_start INTEGER NOT NULL,
	period_end INTEGER NOT NULL,
	allocated_usd REAL NOT NULL,
	bands TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_budgets_project ON budgets(project_id, period_start);

CREATE TABLE IF NOT EXISTS alerts (
	id TEXT PRIMARY KEY,
	budget_id TEXT NOT NULL,
	project_id TEXT NOT NULL,
	threshold_pct REAL NOT NULL,
	severity TEXT NOT NULL,
	period_start INTEGER NOT NULL,
	consumed_usd REAL NOT NULL,
	consumed_pct REAL NOT NULL,
	state TEXT NOT NULL DEFAULT 'open',
	fired_at INTEGER NOT NULL,
	acknowledged_at INTEGER,
	acknowledged_by TEXT NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_alerts_once
	ON alerts(budget_id, threshold_pct, period_start);

CREATE INDEX IF NOT EXISTS idx_alerts_project ON alerts(project_id, fired_at);
CREATE INDEX IF NOT EXISTS idx_alerts_state ON alerts(state);

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
