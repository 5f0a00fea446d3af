package insights

import (
	"context"
	"time"

	"devguard-hq/devguard/pkg/metering"
)

// Category classifies an insight.
type Category string

const (
	// CategoryCost covers spend anomalies.
	CategoryCost Category = "cost"
	// CategoryPerformance covers latency and query regressions.
	CategoryPerformance Category = "performance"
	// CategorySecurity covers dependency risk findings.
	CategorySecurity Category = "security"
)

// Severity ranks an insight.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// State is the insight lifecycle state. Transitions only move forward:
// open -> acknowledged -> resolved, with open -> resolved allowed as a
// shortcut. Resolved is terminal.
type State string

const (
	StateOpen         State = "open"
	StateAcknowledged State = "acknowledged"
	StateResolved     State = "resolved"
)

// canTransition reports whether the lifecycle allows from -> to.
func canTransition(from, to State) bool {
	switch from {
	case StateOpen:
		return to == StateAcknowledged || to == StateResolved
	case StateAcknowledged:
		return to == StateResolved
	}
	return false
}

// Signal is one rule input: a single telemetry series with its current
// and previous observation windows, read from daily rollups. Rules see
// nothing else, which is what keeps them pure and replayable.
type Signal struct {
	// Key identifies the series.
	Key metering.Key

	// Window is the current observation window.
	Window metering.TimeRange

	// Current aggregates the series over Window.
	Current metering.RollupMeasures

	// Previous aggregates the series over the window immediately before
	// Window, for trend comparison. Zero when there is no history.
	Previous metering.RollupMeasures
}

// Outcome is a rule's verdict on one signal. A non-triggered outcome
// carries no other fields.
type Outcome struct {
	// Triggered reports whether the rule fired.
	Triggered bool

	// Category, Severity, Title, and Description describe the finding.
	Category    Category
	Severity    Severity
	Title       string
	Description string

	// SignalKey identifies what the finding is about, used for open-
	// insight deduplication. Same rule, same series, same key.
	SignalKey string

	// Evidence carries the numbers the rule based its verdict on.
	Evidence map[string]any
}

// Insight is a persisted finding.
type Insight struct {
	// ID is a UUID assigned on creation.
	ID string `json:"id"`

	// ProjectID scopes the insight to a tenant project.
	ProjectID string `json:"project_id"`

	Category    Category `json:"category"`
	Severity    Severity `json:"severity"`
	Title       string   `json:"title"`
	Description string   `json:"description"`

	// SignalKey is the deduplication key: at most one open insight may
	// exist per (project, category, signal key).
	SignalKey string `json:"signal_key"`

	// Evidence is the rule's supporting data, stored verbatim.
	Evidence map[string]any `json:"evidence,omitempty"`

	State State `json:"state"`

	CreatedAt      time.Time  `json:"created_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

// Query filters insights. Zero-valued fields are ignored.
type Query struct {
	ProjectID string   `json:"project_id,omitempty"`
	Category  Category `json:"category,omitempty"`
	Severity  Severity `json:"severity,omitempty"`
	State     State    `json:"state,omitempty"`

	// Pagination.
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// Store persists insights.
//
// Create enforces the deduplication invariant: it returns
// *metering.ConflictError when an open insight already exists for the
// same (project, category, signal key). Acknowledged and resolved
// insights do not block new ones, so a recurring condition reopens.
type Store interface {
	// Create persists a new insight.
	Create(ctx context.Context, insight *Insight) error

	// Get returns an insight by ID, or *metering.NotFoundError.
	Get(ctx context.Context, id string) (*Insight, error)

	// List returns insights matching the query ordered by created_at
	// descending.
	List(ctx context.Context, query *Query) ([]*Insight, error)

	// Update overwrites an insight's mutable fields (state, timestamps).
	Update(ctx context.Context, insight *Insight) error

	// Close releases resources held by the store.
	Close() error
}
