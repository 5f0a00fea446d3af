package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the metering database schema.
const Schema = `
-- Raw telemetry events (append-only)
CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    stream TEXT NOT NULL,
    dimension TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,

    -- Measures
    cost_usd REAL NOT NULL DEFAULT 0,
    latency_ms REAL NOT NULL DEFAULT 0,
    rows_examined REAL NOT NULL DEFAULT 0,
    risk_score REAL NOT NULL DEFAULT 0,

    -- Opaque structured payload (JSON)
    payload TEXT,

    environment TEXT NOT NULL DEFAULT 'production',
    recorded_at TIMESTAMP NOT NULL
);

-- Rollup buckets, unique per (series, bucket start, width)
CREATE TABLE IF NOT EXISTS rollups (
    project_id TEXT NOT NULL,
    stream TEXT NOT NULL,
    dimension TEXT NOT NULL,
    bucket_start TIMESTAMP NOT NULL,
    width TEXT NOT NULL,

    event_count INTEGER NOT NULL,
    cost_sum REAL NOT NULL, cost_avg REAL NOT NULL, cost_max REAL NOT NULL, cost_min REAL NOT NULL,
    latency_sum REAL NOT NULL, latency_avg REAL NOT NULL, latency_max REAL NOT NULL, latency_min REAL NOT NULL,
    rows_sum REAL NOT NULL, rows_avg REAL NOT NULL, rows_max REAL NOT NULL, rows_min REAL NOT NULL,
    risk_sum REAL NOT NULL, risk_avg REAL NOT NULL, risk_max REAL NOT NULL, risk_min REAL NOT NULL,

    computed_at TIMESTAMP NOT NULL,

    PRIMARY KEY (project_id, stream, dimension, width, bucket_start)
);

-- Aggregation high-water marks per series and width
CREATE TABLE IF NOT EXISTS watermarks (
    project_id TEXT NOT NULL,
    stream TEXT NOT NULL,
    dimension TEXT NOT NULL,
    width TEXT NOT NULL,
    mark TIMESTAMP NOT NULL,

    PRIMARY KEY (project_id, stream, dimension, width)
);

-- Purge horizon: latest retention cutoff applied to raw events.
-- Single row keyed by id=1.
CREATE TABLE IF NOT EXISTS purge_horizon (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    horizon TIMESTAMP NOT NULL
);

-- Schema version table
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

-- Indexes for common queries
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
CREATE INDEX IF NOT EXISTS idx_events_project_timestamp ON events(project_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_events_series ON events(project_id, stream, dimension, timestamp);
CREATE INDEX IF NOT EXISTS idx_rollups_bucket_start ON rollups(bucket_start);
`

// InsertSchemaVersion inserts the schema version into the schema_version table.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version from the database.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`
