package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"devguard-hq/devguard/pkg/insights"
	"devguard-hq/devguard/pkg/metering"
)

// SQLiteStore implements insights.Store using SQLite. The open-insight
// uniqueness lives in a partial index, so deduplication holds across
// processes without any application locking.
type SQLiteStore struct {
	db *sql.DB
}

// Interface guard.
var _ insights.Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite-backed insight store at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, metering.NewStorageError("sqlite", "open", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, metering.NewStorageError("sqlite", "init_schema", err)
	}

	return store, nil
}

// initSchema creates tables and records the schema version.
func (s *SQLiteStore) initSchema() error {
	if _, err := s.db.Exec(Schema); err != nil {
		return err
	}
	_, err := s.db.Exec(InsertSchemaVersion, SchemaVersion, time.Now().Unix())
	return err
}

// Create persists a new insight. Returns a ConflictError when an open
// insight with the same (project, category, signal key) exists.
func (s *SQLiteStore) Create(ctx context.Context, insight *insights.Insight) error {
	evidence, err := json.Marshal(insight.Evidence)
	if err != nil {
		return metering.NewStorageError("sqlite", "create_insight", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO insights
			(id, project_id, category, severity, title, description,
			 signal_key, evidence, state, created_at, acknowledged_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		insight.ID,
		insight.ProjectID,
		string(insight.Category),
		string(insight.Severity),
		insight.Title,
		insight.Description,
		insight.SignalKey,
		string(evidence),
		string(insight.State),
		insight.CreatedAt.UTC().Unix(),
		nullableTime(insight.AcknowledgedAt),
		nullableTime(insight.ResolvedAt),
	)
	if err != nil {
		return metering.NewStorageError("sqlite", "create_insight", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return metering.NewStorageError("sqlite", "create_insight", err)
	}
	if affected == 0 {
		return metering.NewConflictError("insight",
			fmt.Sprintf("%s/%s/%s", insight.ProjectID, insight.Category, insight.SignalKey))
	}

	return nil
}

// Get returns an insight by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*insights.Insight, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, category, severity, title, description,
		       signal_key, evidence, state, created_at, acknowledged_at, resolved_at
		FROM insights WHERE id = ?`, id)

	insight, err := scanInsight(row)
	if err == sql.ErrNoRows {
		return nil, metering.NewNotFoundError("insight", id)
	}
	if err != nil {
		return nil, metering.NewStorageError("sqlite", "get_insight", err)
	}

	return insight, nil
}

// List returns insights matching the query ordered by created_at
// descending.
func (s *SQLiteStore) List(ctx context.Context, query *insights.Query) ([]*insights.Insight, error) {
	sqlQuery := `
		SELECT id, project_id, category, severity, title, description,
		       signal_key, evidence, state, created_at, acknowledged_at, resolved_at
		FROM insights`

	var conditions []string
	var args []interface{}
	if query.ProjectID != "" {
		conditions = append(conditions, "project_id = ?")
		args = append(args, query.ProjectID)
	}
	if query.Category != "" {
		conditions = append(conditions, "category = ?")
		args = append(args, string(query.Category))
	}
	if query.Severity != "" {
		conditions = append(conditions, "severity = ?")
		args = append(args, string(query.Severity))
	}
	if query.State != "" {
		conditions = append(conditions, "state = ?")
		args = append(args, string(query.State))
	}
	for i, cond := range conditions {
		if i == 0 {
			sqlQuery += " WHERE " + cond
		} else {
			sqlQuery += " AND " + cond
		}
	}

	sqlQuery += ` ORDER BY created_at DESC, id ASC`
	if query.Limit > 0 {
		sqlQuery += fmt.Sprintf(" LIMIT %d", query.Limit)
		if query.Offset > 0 {
			sqlQuery += fmt.Sprintf(" OFFSET %d", query.Offset)
		}
	} else if query.Offset > 0 {
		sqlQuery += fmt.Sprintf(" LIMIT -1 OFFSET %d", query.Offset)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, metering.NewStorageError("sqlite", "list_insights", err)
	}
	defer rows.Close()

	var results []*insights.Insight
	for rows.Next() {
		insight, err := scanInsight(rows)
		if err != nil {
			return nil, metering.NewStorageError("sqlite", "list_insights", err)
		}
		results = append(results, insight)
	}

	if err := rows.Err(); err != nil {
		return nil, metering.NewStorageError("sqlite", "list_insights", err)
	}

	return results, nil
}

// Update overwrites an insight's mutable fields.
func (s *SQLiteStore) Update(ctx context.Context, insight *insights.Insight) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE insights SET state = ?, acknowledged_at = ?, resolved_at = ?
		WHERE id = ?`,
		string(insight.State),
		nullableTime(insight.AcknowledgedAt),
		nullableTime(insight.ResolvedAt),
		insight.ID,
	)
	if err != nil {
		return metering.NewStorageError("sqlite", "update_insight", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return metering.NewStorageError("sqlite", "update_insight", err)
	}
	if affected == 0 {
		return metering.NewNotFoundError("insight", insight.ID)
	}

	return nil
}

// Ping verifies the database connection is alive.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// rowScanner abstracts *sql.Row and *sql.Rows for the scan helper.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanInsight scans one insight row.
func scanInsight(row rowScanner) (*insights.Insight, error) {
	var (
		insight   insights.Insight
		category  string
		severity  string
		evidence  string
		state     string
		createdAt int64
		ackAt     sql.NullInt64
		resAt     sql.NullInt64
	)

	err := row.Scan(
		&insight.ID,
		&insight.ProjectID,
		&category,
		&severity,
		&insight.Title,
		&insight.Description,
		&insight.SignalKey,
		&evidence,
		&state,
		&createdAt,
		&ackAt,
		&resAt,
	)
	if err != nil {
		return nil, err
	}

	insight.Category = insights.Category(category)
	insight.Severity = insights.Severity(severity)
	insight.State = insights.State(state)
	insight.CreatedAt = time.Unix(createdAt, 0).UTC()
	if ackAt.Valid {
		t := time.Unix(ackAt.Int64, 0).UTC()
		insight.AcknowledgedAt = &t
	}
	if resAt.Valid {
		t := time.Unix(resAt.Int64, 0).UTC()
		insight.ResolvedAt = &t
	}

	if evidence != "" {
		if err := json.Unmarshal([]byte(evidence), &insight.Evidence); err != nil {
			return nil, fmt.Errorf("failed to unmarshal evidence: %w", err)
		}
	}

	return &insight, nil
}

// nullableTime converts an optional time to a driver value.
func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Unix()
}
