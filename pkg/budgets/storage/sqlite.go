package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"devguard-hq/devguard/pkg/budgets"
	"devguard-hq/devguard/pkg/metering"
)

// SQLiteStore implements budgets.Store using SQLite.
//
// Budgets and alerts share one database file, separate from raw telemetry
// so budget administration never contends with event ingestion. Alert
// uniqueness is enforced by the database, not by application locks: the
// insert either lands or reports a conflict, even across processes.
type SQLiteStore struct {
	db *sql.DB
}

// Interface guard.
var _ budgets.Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite-backed budget store at dbPath.
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

// CreateBudget persists a new budget.
func (s *SQLiteStore) CreateBudget(ctx context.Context, budget *budgets.Budget) error {
	bands, err := json.Marshal(budget.Bands)
	if err != nil {
		return metering.NewStorageError("sqlite", "create_budget", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO budgets (id, project_id, name, period_start, period_end, allocated_usd, bands, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		budget.ID,
		budget.ProjectID,
		budget.Name,
		budget.PeriodStart.UTC().Unix(),
		budget.PeriodEnd.UTC().Unix(),
		budget.AllocatedUSD,
		string(bands),
		budget.CreatedAt.UTC().Unix(),
		budget.UpdatedAt.UTC().Unix(),
	)
	if err != nil {
		return metering.NewStorageError("sqlite", "create_budget", err)
	}

	return nil
}

// GetBudget returns a budget by ID.
func (s *SQLiteStore) GetBudget(ctx context.Context, id string) (*budgets.Budget, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, name, period_start, period_end, allocated_usd, bands, created_at, updated_at
		FROM budgets WHERE id = ?`, id)

	budget, err := scanBudget(row)
	if err == sql.ErrNoRows {
		return nil, metering.NewNotFoundError("budget", id)
	}
	if err != nil {
		return nil, metering.NewStorageError("sqlite", "get_budget", err)
	}

	return budget, nil
}

// UpdateBudget overwrites an existing budget.
func (s *SQLiteStore) UpdateBudget(ctx context.Context, budget *budgets.Budget) error {
	bands, err := json.Marshal(budget.Bands)
	if err != nil {
		return metering.NewStorageError("sqlite", "update_budget", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE budgets
		SET project_id = ?, name = ?, period_start = ?, period_end = ?, allocated_usd = ?, bands = ?, updated_at = ?
		WHERE id = ?`,
		budget.ProjectID,
		budget.Name,
		budget.PeriodStart.UTC().Unix(),
		budget.PeriodEnd.UTC().Unix(),
		budget.AllocatedUSD,
		string(bands),
		budget.UpdatedAt.UTC().Unix(),
		budget.ID,
	)
	if err != nil {
		return metering.NewStorageError("sqlite", "update_budget", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return metering.NewStorageError("sqlite", "update_budget", err)
	}
	if affected == 0 {
		return metering.NewNotFoundError("budget", budget.ID)
	}

	return nil
}

// DeleteBudget removes a budget and its alerts.
func (s *SQLiteStore) DeleteBudget(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return metering.NewStorageError("sqlite", "delete_budget", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM budgets WHERE id = ?`, id)
	if err != nil {
		return metering.NewStorageError("sqlite", "delete_budget", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return metering.NewStorageError("sqlite", "delete_budget", err)
	}
	if affected == 0 {
		return metering.NewNotFoundError("budget", id)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM alerts WHERE budget_id = ?`, id); err != nil {
		return metering.NewStorageError("sqlite", "delete_budget", err)
	}

	if err := tx.Commit(); err != nil {
		return metering.NewStorageError("sqlite", "delete_budget", err)
	}

	return nil
}

// ListBudgets returns budgets for a project ordered by period start
// descending. An empty projectID returns all budgets.
func (s *SQLiteStore) ListBudgets(ctx context.Context, projectID string) ([]*budgets.Budget, error) {
	sqlQuery := `
		SELECT id, project_id, name, period_start, period_end, allocated_usd, bands, created_at, updated_at
		FROM budgets`
	var args []interface{}
	if projectID != "" {
		sqlQuery += ` WHERE project_id = ?`
		args = append(args, projectID)
	}
	sqlQuery += ` ORDER BY period_start DESC, id ASC`

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, metering.NewStorageError("sqlite", "list_budgets", err)
	}
	defer rows.Close()

	var results []*budgets.Budget
	for rows.Next() {
		budget, err := scanBudget(rows)
		if err != nil {
			return nil, metering.NewStorageError("sqlite", "list_budgets", err)
		}
		results = append(results, budget)
	}

	if err := rows.Err(); err != nil {
		return nil, metering.NewStorageError("sqlite", "list_budgets", err)
	}

	return results, nil
}

// CreateAlert persists a new alert. The unique index on
// (budget_id, threshold_pct, period_start) makes the insert race-safe:
// a loser observes zero affected rows and gets a ConflictError.
func (s *SQLiteStore) CreateAlert(ctx context.Context, alert *budgets.Alert) error {
	var ackAt interface{}
	if alert.AcknowledgedAt != nil {
		ackAt = alert.AcknowledgedAt.UTC().Unix()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO alerts
			(id, budget_id, project_id, threshold_pct, severity, period_start,
			 consumed_usd, consumed_pct, state, fired_at, acknowledged_at, acknowledged_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID,
		alert.BudgetID,
		alert.ProjectID,
		alert.ThresholdPct,
		alert.Severity,
		alert.PeriodStart.UTC().Unix(),
		alert.ConsumedUSD,
		alert.ConsumedPct,
		string(alert.State),
		alert.FiredAt.UTC().Unix(),
		ackAt,
		alert.AcknowledgedBy,
	)
	if err != nil {
		return metering.NewStorageError("sqlite", "create_alert", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return metering.NewStorageError("sqlite", "create_alert", err)
	}
	if affected == 0 {
		return metering.NewConflictError("alert",
			fmt.Sprintf("%s/%.1f%%/%d", alert.BudgetID, alert.ThresholdPct, alert.PeriodStart.UTC().Unix()))
	}

	return nil
}

// GetAlert returns an alert by ID.
func (s *SQLiteStore) GetAlert(ctx context.Context, id string) (*budgets.Alert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, budget_id, project_id, threshold_pct, severity, period_start,
		       consumed_usd, consumed_pct, state, fired_at, acknowledged_at, acknowledged_by
		FROM alerts WHERE id = ?`, id)

	alert, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, metering.NewNotFoundError("alert", id)
	}
	if err != nil {
		return nil, metering.NewStorageError("sqlite", "get_alert", err)
	}

	return alert, nil
}

// ListAlerts returns alerts matching the query ordered by fired_at
// descending.
func (s *SQLiteStore) ListAlerts(ctx context.Context, query *budgets.AlertQuery) ([]*budgets.Alert, error) {
	sqlQuery := `
		SELECT id, budget_id, project_id, threshold_pct, severity, period_start,
		       consumed_usd, consumed_pct, state, fired_at, acknowledged_at, acknowledged_by
		FROM alerts`

	var conditions []string
	var args []interface{}
	if query.BudgetID != "" {
		conditions = append(conditions, "budget_id = ?")
		args = append(args, query.BudgetID)
	}
	if query.ProjectID != "" {
		conditions = append(conditions, "project_id = ?")
		args = append(args, query.ProjectID)
	}
	if query.Severity != "" {
		conditions = append(conditions, "severity = ?")
		args = append(args, query.Severity)
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

	sqlQuery += ` ORDER BY fired_at DESC, id ASC`
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
		return nil, metering.NewStorageError("sqlite", "list_alerts", err)
	}
	defer rows.Close()

	var results []*budgets.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, metering.NewStorageError("sqlite", "list_alerts", err)
		}
		results = append(results, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, metering.NewStorageError("sqlite", "list_alerts", err)
	}

	return results, nil
}

// UpdateAlert overwrites an alert's mutable fields.
func (s *SQLiteStore) UpdateAlert(ctx context.Context, alert *budgets.Alert) error {
	var ackAt interface{}
	if alert.AcknowledgedAt != nil {
		ackAt = alert.AcknowledgedAt.UTC().Unix()
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET state = ?, acknowledged_at = ?, acknowledged_by = ?
		WHERE id = ?`,
		string(alert.State), ackAt, alert.AcknowledgedBy, alert.ID,
	)
	if err != nil {
		return metering.NewStorageError("sqlite", "update_alert", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return metering.NewStorageError("sqlite", "update_alert", err)
	}
	if affected == 0 {
		return metering.NewNotFoundError("alert", alert.ID)
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

// rowScanner abstracts *sql.Row and *sql.Rows for the scan helpers.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanBudget scans one budget row.
func scanBudget(row rowScanner) (*budgets.Budget, error) {
	var (
		budget      budgets.Budget
		periodStart int64
		periodEnd   int64
		bands       string
		createdAt   int64
		updatedAt   int64
	)

	err := row.Scan(
		&budget.ID,
		&budget.ProjectID,
		&budget.Name,
		&periodStart,
		&periodEnd,
		&budget.AllocatedUSD,
		&bands,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	budget.PeriodStart = time.Unix(periodStart, 0).UTC()
	budget.PeriodEnd = time.Unix(periodEnd, 0).UTC()
	budget.CreatedAt = time.Unix(createdAt, 0).UTC()
	budget.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	if err := json.Unmarshal([]byte(bands), &budget.Bands); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bands: %w", err)
	}

	return &budget, nil
}

// scanAlert scans one alert row.
func scanAlert(row rowScanner) (*budgets.Alert, error) {
	var (
		alert       budgets.Alert
		periodStart int64
		state       string
		firedAt     int64
		ackAt       sql.NullInt64
	)

	err := row.Scan(
		&alert.ID,
		&alert.BudgetID,
		&alert.ProjectID,
		&alert.ThresholdPct,
		&alert.Severity,
		&periodStart,
		&alert.ConsumedUSD,
		&alert.ConsumedPct,
		&state,
		&firedAt,
		&ackAt,
		&alert.AcknowledgedBy,
	)
	if err != nil {
		return nil, err
	}

	alert.PeriodStart = time.Unix(periodStart, 0).UTC()
	alert.State = budgets.AlertState(state)
	alert.FiredAt = time.Unix(firedAt, 0).UTC()
	if ackAt.Valid {
		t := time.Unix(ackAt.Int64, 0).UTC()
		alert.AcknowledgedAt = &t
	}

	return &alert, nil
}
