package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"devguard-hq/devguard/pkg/metering"
)

// SQLiteConfig contains configuration for the SQLite metering store.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections.
	// SQLite supports a single writer; default: 1.
	MaxOpenConns int

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/metering.db",
		MaxOpenConns: 1,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStore implements metering.EventStore and metering.RollupStore using
// SQLite in WAL mode. Bucket replacement runs inside a transaction, so
// readers only ever observe the last fully committed bucket value.
type SQLiteStore struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// Interface guards.
var (
	_ metering.EventStore  = (*SQLiteStore)(nil)
	_ metering.RollupStore = (*SQLiteStore)(nil)
)

// NewSQLiteStore opens (or creates) the metering database at the configured
// path and initializes the schema.
func NewSQLiteStore(config *SQLiteConfig) (*SQLiteStore, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}

	logger := slog.Default().With("component", "metering.storage.sqlite")

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		config.Path, int(config.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, metering.NewStorageError("sqlite", "open", err)
	}

	maxConns := config.MaxOpenConns
	if maxConns <= 0 {
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{
		db:     db,
		config: config,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite metering store initialized",
		"path", config.Path,
		"max_open_conns", maxConns,
	)

	return s, nil
}

// initialize sets up the database schema and verifies the schema version.
func (s *SQLiteStore) initialize() error {
	if _, err := s.db.Exec(Schema); err != nil {
		return metering.NewStorageError("sqlite", "create_schema", err)
	}

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return metering.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return metering.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return metering.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	return nil
}

// Append persists one raw event.
func (s *SQLiteStore) Append(ctx context.Context, event *metering.Event) error {
	payload, _ := json.Marshal(event.Payload)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (
			id, project_id, stream, dimension, timestamp,
			cost_usd, latency_ms, rows_examined, risk_score,
			payload, environment, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.ID, event.ProjectID, string(event.Stream), event.Dimension, event.Timestamp.UTC(),
		event.Measures.CostUSD, event.Measures.LatencyMS, event.Measures.Rows, event.Measures.RiskScore,
		string(payload), event.Environment, event.RecordedAt.UTC(),
	)
	if err != nil {
		return metering.NewStorageError("sqlite", "append", err)
	}

	return nil
}

// Query returns events matching the filters ordered by (timestamp, id).
func (s *SQLiteStore) Query(ctx context.Context, query *metering.EventQuery) ([]*metering.Event, error) {
	whereClause, args := buildEventWhere(query)

	sqlQuery := `
		SELECT id, project_id, stream, dimension, timestamp,
		       cost_usd, latency_ms, rows_examined, risk_score,
		       payload, environment, recorded_at
		FROM events`
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}
	sqlQuery += " ORDER BY timestamp ASC, id ASC"

	if query.Limit > 0 {
		sqlQuery += fmt.Sprintf(" LIMIT %d", query.Limit)
	}
	if query.Offset > 0 {
		if query.Limit <= 0 {
			sqlQuery += " LIMIT -1"
		}
		sqlQuery += fmt.Sprintf(" OFFSET %d", query.Offset)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, metering.NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	events := []*metering.Event{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, metering.NewStorageError("sqlite", "scan", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, metering.NewStorageError("sqlite", "query", err)
	}

	return events, nil
}

// Count returns the number of events matching the filters.
func (s *SQLiteStore) Count(ctx context.Context, query *metering.EventQuery) (int64, error) {
	whereClause, args := buildEventWhere(query)

	sqlQuery := "SELECT COUNT(*) FROM events"
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, sqlQuery, args...).Scan(&count); err != nil {
		return 0, metering.NewStorageError("sqlite", "count", err)
	}

	return count, nil
}

// Keys returns the distinct series present in the given range.
func (s *SQLiteStore) Keys(ctx context.Context, r metering.TimeRange) ([]metering.Key, error) {
	sqlQuery := "SELECT DISTINCT project_id, stream, dimension FROM events"
	var conditions []string
	var args []interface{}
	if !r.Start.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, r.Start.UTC())
	}
	if !r.End.IsZero() {
		conditions = append(conditions, "timestamp < ?")
		args = append(args, r.End.UTC())
	}
	if len(conditions) > 0 {
		sqlQuery += " WHERE " + strings.Join(conditions, " AND ")
	}
	sqlQuery += " ORDER BY project_id, stream, dimension"

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, metering.NewStorageError("sqlite", "keys", err)
	}
	defer rows.Close()

	var keys []metering.Key
	for rows.Next() {
		var key metering.Key
		var stream string
		if err := rows.Scan(&key.ProjectID, &stream, &key.Dimension); err != nil {
			return nil, metering.NewStorageError("sqlite", "scan", err)
		}
		key.Stream = metering.Stream(stream)
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, metering.NewStorageError("sqlite", "keys", err)
	}

	return keys, nil
}

// DeleteBefore removes events with timestamp strictly before cutoff and
// advances the purge horizon in the same transaction.
func (s *SQLiteStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, metering.NewStorageError("sqlite", "delete_before", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, "DELETE FROM events WHERE timestamp < ?", cutoff.UTC())
	if err != nil {
		return 0, metering.NewStorageError("sqlite", "delete_before", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, metering.NewStorageError("sqlite", "delete_before", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO purge_horizon (id, horizon) VALUES (1, ?)
		ON CONFLICT (id) DO UPDATE SET horizon = MAX(horizon, excluded.horizon)
	`, cutoff.UTC())
	if err != nil {
		return 0, metering.NewStorageError("sqlite", "advance_horizon", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, metering.NewStorageError("sqlite", "delete_before", err)
	}

	return deleted, nil
}

// PurgeHorizon returns the latest purge cutoff, or the zero time when no
// purge has run.
func (s *SQLiteStore) PurgeHorizon(ctx context.Context) (time.Time, error) {
	var horizon time.Time
	err := s.db.QueryRowContext(ctx, "SELECT horizon FROM purge_horizon WHERE id = 1").Scan(&horizon)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, metering.NewStorageError("sqlite", "purge_horizon", err)
	}
	return horizon.UTC(), nil
}

// Replace atomically overwrites each bucket in rollups.
func (s *SQLiteStore) Replace(ctx context.Context, rollups []*metering.Rollup) error {
	if len(rollups) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return metering.NewStorageError("sqlite", "replace", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO rollups (
			project_id, stream, dimension, bucket_start, width,
			event_count,
			cost_sum, cost_avg, cost_max, cost_min,
			latency_sum, latency_avg, latency_max, latency_min,
			rows_sum, rows_avg, rows_max, rows_min,
			risk_sum, risk_avg, risk_max, risk_min,
			computed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (project_id, stream, dimension, width, bucket_start) DO UPDATE SET
			event_count = excluded.event_count,
			cost_sum = excluded.cost_sum, cost_avg = excluded.cost_avg,
			cost_max = excluded.cost_max, cost_min = excluded.cost_min,
			latency_sum = excluded.latency_sum, latency_avg = excluded.latency_avg,
			latency_max = excluded.latency_max, latency_min = excluded.latency_min,
			rows_sum = excluded.rows_sum, rows_avg = excluded.rows_avg,
			rows_max = excluded.rows_max, rows_min = excluded.rows_min,
			risk_sum = excluded.risk_sum, risk_avg = excluded.risk_avg,
			risk_max = excluded.risk_max, risk_min = excluded.risk_min,
			computed_at = excluded.computed_at
	`)
	if err != nil {
		return metering.NewStorageError("sqlite", "replace", err)
	}
	defer stmt.Close()

	for _, r := range rollups {
		m := r.Measures
		_, err := stmt.ExecContext(ctx,
			r.Key.ProjectID, string(r.Key.Stream), r.Key.Dimension,
			r.BucketStart.UTC(), string(r.Width),
			m.Count,
			m.Cost.Sum, m.Cost.Avg, m.Cost.Max, m.Cost.Min,
			m.Latency.Sum, m.Latency.Avg, m.Latency.Max, m.Latency.Min,
			m.Rows.Sum, m.Rows.Avg, m.Rows.Max, m.Rows.Min,
			m.RiskScore.Sum, m.RiskScore.Avg, m.RiskScore.Max, m.RiskScore.Min,
			r.ComputedAt.UTC(),
		)
		if err != nil {
			return metering.NewStorageError("sqlite", "replace", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return metering.NewStorageError("sqlite", "replace", err)
	}

	return nil
}

// QueryRollups is the RollupStore query; buckets come back ordered by
// bucket start ascending.
func (s *SQLiteStore) QueryRollups(ctx context.Context, query *metering.RollupQuery) ([]*metering.Rollup, error) {
	conditions := []string{"width = ?"}
	args := []interface{}{string(query.Width)}

	if query.Key.ProjectID != "" {
		conditions = append(conditions, "project_id = ?")
		args = append(args, query.Key.ProjectID)
	}
	if query.Key.Stream != "" {
		conditions = append(conditions, "stream = ?")
		args = append(args, string(query.Key.Stream))
	}
	if query.Key.Dimension != "" {
		conditions = append(conditions, "dimension = ?")
		args = append(args, query.Key.Dimension)
	}
	if !query.Range.Start.IsZero() {
		conditions = append(conditions, "bucket_start >= ?")
		args = append(args, query.Range.Start.UTC())
	}
	if !query.Range.End.IsZero() {
		conditions = append(conditions, "bucket_start < ?")
		args = append(args, query.Range.End.UTC())
	}

	sqlQuery := `
		SELECT project_id, stream, dimension, bucket_start, width,
		       event_count,
		       cost_sum, cost_avg, cost_max, cost_min,
		       latency_sum, latency_avg, latency_max, latency_min,
		       rows_sum, rows_avg, rows_max, rows_min,
		       risk_sum, risk_avg, risk_max, risk_min,
		       computed_at
		FROM rollups
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY bucket_start ASC`

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, metering.NewStorageError("sqlite", "query_rollups", err)
	}
	defer rows.Close()

	rollups := []*metering.Rollup{}
	for rows.Next() {
		r, err := scanRollup(rows)
		if err != nil {
			return nil, metering.NewStorageError("sqlite", "scan", err)
		}
		rollups = append(rollups, r)
	}
	if err := rows.Err(); err != nil {
		return nil, metering.NewStorageError("sqlite", "query_rollups", err)
	}

	return rollups, nil
}

// Watermark returns the aggregation high-water mark for one series.
func (s *SQLiteStore) Watermark(ctx context.Context, key metering.Key, width metering.Width) (time.Time, error) {
	var mark time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT mark FROM watermarks
		WHERE project_id = ? AND stream = ? AND dimension = ? AND width = ?
	`, key.ProjectID, string(key.Stream), key.Dimension, string(width)).Scan(&mark)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, metering.NewStorageError("sqlite", "watermark", err)
	}
	return mark.UTC(), nil
}

// SetWatermark advances the high-water mark; it never moves backwards.
func (s *SQLiteStore) SetWatermark(ctx context.Context, key metering.Key, width metering.Width, mark time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO watermarks (project_id, stream, dimension, width, mark)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (project_id, stream, dimension, width) DO UPDATE SET
			mark = MAX(mark, excluded.mark)
	`, key.ProjectID, string(key.Stream), key.Dimension, string(width), mark.UTC())
	if err != nil {
		return metering.NewStorageError("sqlite", "set_watermark", err)
	}
	return nil
}

// Watermarks returns all high-water marks for the given width.
func (s *SQLiteStore) Watermarks(ctx context.Context, width metering.Width) (map[metering.Key]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project_id, stream, dimension, mark FROM watermarks WHERE width = ?
	`, string(width))
	if err != nil {
		return nil, metering.NewStorageError("sqlite", "watermarks", err)
	}
	defer rows.Close()

	marks := make(map[metering.Key]time.Time)
	for rows.Next() {
		var key metering.Key
		var stream string
		var mark time.Time
		if err := rows.Scan(&key.ProjectID, &stream, &key.Dimension, &mark); err != nil {
			return nil, metering.NewStorageError("sqlite", "scan", err)
		}
		key.Stream = metering.Stream(stream)
		marks[key] = mark.UTC()
	}
	if err := rows.Err(); err != nil {
		return nil, metering.NewStorageError("sqlite", "watermarks", err)
	}

	return marks, nil
}

// Ping verifies the database connection is alive.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return metering.NewStorageError("sqlite", "ping", err)
	}
	return nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return metering.NewStorageError("sqlite", "close", err)
	}
	s.logger.Info("SQLite metering store closed")
	return nil
}

// buildEventWhere builds a SQL WHERE clause from event query filters.
func buildEventWhere(query *metering.EventQuery) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if query.ProjectID != "" {
		conditions = append(conditions, "project_id = ?")
		args = append(args, query.ProjectID)
	}
	if query.Stream != "" {
		conditions = append(conditions, "stream = ?")
		args = append(args, string(query.Stream))
	}
	if query.Dimension != "" {
		conditions = append(conditions, "dimension = ?")
		args = append(args, query.Dimension)
	}
	if query.Start != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, query.Start.UTC())
	}
	if query.End != nil {
		conditions = append(conditions, "timestamp < ?")
		args = append(args, query.End.UTC())
	}

	return strings.Join(conditions, " AND "), args
}

// scanEvent scans a database row into an Event.
func scanEvent(rows *sql.Rows) (*metering.Event, error) {
	var event metering.Event
	var stream, payload string

	err := rows.Scan(
		&event.ID, &event.ProjectID, &stream, &event.Dimension, &event.Timestamp,
		&event.Measures.CostUSD, &event.Measures.LatencyMS, &event.Measures.Rows, &event.Measures.RiskScore,
		&payload, &event.Environment, &event.RecordedAt,
	)
	if err != nil {
		return nil, err
	}

	event.Stream = metering.Stream(stream)
	event.Timestamp = event.Timestamp.UTC()
	event.RecordedAt = event.RecordedAt.UTC()
	if payload != "" && payload != "null" {
		json.Unmarshal([]byte(payload), &event.Payload)
	}

	return &event, nil
}

// scanRollup scans a database row into a Rollup.
func scanRollup(rows *sql.Rows) (*metering.Rollup, error) {
	var r metering.Rollup
	var stream, width string
	m := &r.Measures

	err := rows.Scan(
		&r.Key.ProjectID, &stream, &r.Key.Dimension, &r.BucketStart, &width,
		&m.Count,
		&m.Cost.Sum, &m.Cost.Avg, &m.Cost.Max, &m.Cost.Min,
		&m.Latency.Sum, &m.Latency.Avg, &m.Latency.Max, &m.Latency.Min,
		&m.Rows.Sum, &m.Rows.Avg, &m.Rows.Max, &m.Rows.Min,
		&m.RiskScore.Sum, &m.RiskScore.Avg, &m.RiskScore.Max, &m.RiskScore.Min,
		&r.ComputedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Key.Stream = metering.Stream(stream)
	r.Width = metering.Width(width)
	r.BucketStart = r.BucketStart.UTC()
	r.ComputedAt = r.ComputedAt.UTC()

	return &r, nil
}
