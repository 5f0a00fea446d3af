package budgets

import (
	"context"
	"time"

	"devguard-hq/devguard/pkg/metering"
)

// Band is one alert threshold within a budget. Bands are ordered by
// ascending threshold; crossing a band fires at most one alert per
// budget period.
type Band struct {
	// ThresholdPct is the consumption percentage (0-100) at which the
	// band fires.
	ThresholdPct float64 `json:"threshold_pct" yaml:"threshold_pct"`

	// Severity labels the band ("warning", "critical").
	Severity string `json:"severity" yaml:"severity"`

	// Actions are the notification channels to invoke when the band
	// fires ("log", "webhook"). The evaluator records the alert either
	// way; actions are delivery, not state.
	Actions []string `json:"actions,omitempty" yaml:"actions,omitempty"`
}

// Budget is a spending allocation for one project over a fixed period.
type Budget struct {
	// ID is a UUID assigned on creation.
	ID string `json:"id" yaml:"id"`

	// ProjectID scopes the budget to a tenant project.
	ProjectID string `json:"project_id" yaml:"project_id"`

	// Name is a human-readable label.
	Name string `json:"name" yaml:"name"`

	// PeriodStart and PeriodEnd bound the budget period [start, end).
	PeriodStart time.Time `json:"period_start" yaml:"period_start"`
	PeriodEnd   time.Time `json:"period_end" yaml:"period_end"`

	// AllocatedUSD is the total allocation for the period.
	AllocatedUSD float64 `json:"allocated_usd" yaml:"allocated_usd"`

	// Bands are the alert thresholds, ascending by ThresholdPct.
	Bands []Band `json:"bands" yaml:"bands"`

	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// Validate checks budget fields before persistence.
func (b *Budget) Validate() error {
	if b.ProjectID == "" {
		return metering.NewValidationError("project_id", "must not be empty")
	}
	if b.AllocatedUSD <= 0 {
		return metering.NewValidationError("allocated_usd", "must be positive")
	}
	if b.PeriodStart.IsZero() || b.PeriodEnd.IsZero() || !b.PeriodEnd.After(b.PeriodStart) {
		return metering.NewValidationError("period", "period_end must be after period_start")
	}
	prev := 0.0
	for _, band := range b.Bands {
		if band.ThresholdPct <= 0 || band.ThresholdPct > 100 {
			return metering.NewValidationError("bands", "threshold_pct must be in (0, 100]")
		}
		if band.ThresholdPct <= prev {
			return metering.NewValidationError("bands", "thresholds must be strictly ascending")
		}
		prev = band.ThresholdPct
	}
	return nil
}

// AlertState is the lifecycle state of a fired alert.
type AlertState string

const (
	// AlertOpen is a fired alert awaiting acknowledgement.
	AlertOpen AlertState = "open"
	// AlertAcknowledged is an alert a human has seen.
	AlertAcknowledged AlertState = "acknowledged"
)

// Alert records one budget band crossing. Alerts are unique per
// (budget, band threshold, period start): the storage layer enforces
// at-most-once creation, so concurrent evaluators cannot double-fire.
type Alert struct {
	// ID is a UUID assigned on creation.
	ID string `json:"id"`

	// BudgetID references the budget whose band was crossed.
	BudgetID string `json:"budget_id"`

	// ProjectID is denormalized from the budget for listing.
	ProjectID string `json:"project_id"`

	// ThresholdPct is the band that fired.
	ThresholdPct float64 `json:"threshold_pct"`

	// Severity is the band's severity at fire time.
	Severity string `json:"severity"`

	// PeriodStart identifies the budget period the alert belongs to.
	PeriodStart time.Time `json:"period_start"`

	// ConsumedUSD and ConsumedPct snapshot consumption at fire time.
	ConsumedUSD float64 `json:"consumed_usd"`
	ConsumedPct float64 `json:"consumed_pct"`

	// State is the alert lifecycle state.
	State AlertState `json:"state"`

	FiredAt        time.Time  `json:"fired_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
}

// AlertQuery filters alerts. Zero-valued fields are ignored.
type AlertQuery struct {
	BudgetID  string     `json:"budget_id,omitempty"`
	ProjectID string     `json:"project_id,omitempty"`
	Severity  string     `json:"severity,omitempty"`
	State     AlertState `json:"state,omitempty"`

	// Pagination.
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// Store persists budgets and alerts.
//
// CreateAlert is the at-most-once primitive: implementations enforce
// uniqueness on (budget_id, threshold_pct, period_start) and return
// *metering.ConflictError when the alert already exists, regardless of
// how many processes race on the insert.
type Store interface {
	// CreateBudget persists a new budget.
	CreateBudget(ctx context.Context, budget *Budget) error

	// GetBudget returns a budget by ID, or *metering.NotFoundError.
	GetBudget(ctx context.Context, id string) (*Budget, error)

	// UpdateBudget overwrites an existing budget.
	UpdateBudget(ctx context.Context, budget *Budget) error

	// DeleteBudget removes a budget and its alerts.
	DeleteBudget(ctx context.Context, id string) error

	// ListBudgets returns budgets for a project, or all budgets when
	// projectID is empty, ordered by period start descending.
	ListBudgets(ctx context.Context, projectID string) ([]*Budget, error)

	// CreateAlert persists a new alert. Returns *metering.ConflictError
	// when an alert for the same (budget, band, period) already exists.
	CreateAlert(ctx context.Context, alert *Alert) error

	// GetAlert returns an alert by ID, or *metering.NotFoundError.
	GetAlert(ctx context.Context, id string) (*Alert, error)

	// ListAlerts returns alerts matching the query ordered by fired_at
	// descending.
	ListAlerts(ctx context.Context, query *AlertQuery) ([]*Alert, error)

	// UpdateAlert overwrites an existing alert's mutable fields (state,
	// acknowledgement).
	UpdateAlert(ctx context.Context, alert *Alert) error

	// Close releases resources held by the store.
	Close() error
}
