package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"devguard-hq/devguard/pkg/budgets"
	"devguard-hq/devguard/pkg/metering"
)

// MemoryStore implements budgets.Store using in-memory maps. This
// implementation is intended for testing only. Alert uniqueness is
// enforced under the store mutex, which gives the same check-and-insert
// atomicity the SQLite unique index provides.
type MemoryStore struct {
	budgets map[string]*budgets.Budget
	alerts  map[string]*budgets.Alert
	fired   map[alertKey]string // uniqueness key -> alert ID
	mu      sync.RWMutex
}

type alertKey struct {
	budgetID     string
	thresholdPct float64
	periodStart  time.Time
}

// Interface guard.
var _ budgets.Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory budget store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		budgets: make(map[string]*budgets.Budget),
		alerts:  make(map[string]*budgets.Alert),
		fired:   make(map[alertKey]string),
	}
}

// CreateBudget persists a new budget.
func (s *MemoryStore) CreateBudget(ctx context.Context, budget *budgets.Budget) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	budgetCopy := *budget
	s.budgets[budget.ID] = &budgetCopy
	return nil
}

// GetBudget returns a budget by ID.
func (s *MemoryStore) GetBudget(ctx context.Context, id string) (*budgets.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	budget, ok := s.budgets[id]
	if !ok {
		return nil, metering.NewNotFoundError("budget", id)
	}
	budgetCopy := *budget
	return &budgetCopy, nil
}

// UpdateBudget overwrites an existing budget.
func (s *MemoryStore) UpdateBudget(ctx context.Context, budget *budgets.Budget) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.budgets[budget.ID]; !ok {
		return metering.NewNotFoundError("budget", budget.ID)
	}
	budgetCopy := *budget
	s.budgets[budget.ID] = &budgetCopy
	return nil
}

// DeleteBudget removes a budget and its alerts.
func (s *MemoryStore) DeleteBudget(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.budgets[id]; !ok {
		return metering.NewNotFoundError("budget", id)
	}
	delete(s.budgets, id)

	for alertID, alert := range s.alerts {
		if alert.BudgetID == id {
			delete(s.fired, alertKey{
				budgetID:     alert.BudgetID,
				thresholdPct: alert.ThresholdPct,
				periodStart:  alert.PeriodStart.UTC(),
			})
			delete(s.alerts, alertID)
		}
	}
	return nil
}

// ListBudgets returns budgets for a project ordered by period start
// descending.
func (s *MemoryStore) ListBudgets(ctx context.Context, projectID string) ([]*budgets.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*budgets.Budget
	for _, budget := range s.budgets {
		if projectID != "" && budget.ProjectID != projectID {
			continue
		}
		budgetCopy := *budget
		results = append(results, &budgetCopy)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].PeriodStart.Equal(results[j].PeriodStart) {
			return results[i].ID < results[j].ID
		}
		return results[i].PeriodStart.After(results[j].PeriodStart)
	})

	return results, nil
}

// CreateAlert persists a new alert with check-and-insert atomicity on
// (budget, band, period).
func (s *MemoryStore) CreateAlert(ctx context.Context, alert *budgets.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := alertKey{
		budgetID:     alert.BudgetID,
		thresholdPct: alert.ThresholdPct,
		periodStart:  alert.PeriodStart.UTC(),
	}
	if _, exists := s.fired[key]; exists {
		return metering.NewConflictError("alert",
			fmt.Sprintf("%s/%.1f%%/%d", alert.BudgetID, alert.ThresholdPct, alert.PeriodStart.UTC().Unix()))
	}

	alertCopy := *alert
	s.alerts[alert.ID] = &alertCopy
	s.fired[key] = alert.ID
	return nil
}

// GetAlert returns an alert by ID.
func (s *MemoryStore) GetAlert(ctx context.Context, id string) (*budgets.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	alert, ok := s.alerts[id]
	if !ok {
		return nil, metering.NewNotFoundError("alert", id)
	}
	alertCopy := *alert
	return &alertCopy, nil
}

// ListAlerts returns alerts matching the query ordered by fired_at
// descending.
func (s *MemoryStore) ListAlerts(ctx context.Context, query *budgets.AlertQuery) ([]*budgets.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*budgets.Alert
	for _, alert := range s.alerts {
		if query.BudgetID != "" && alert.BudgetID != query.BudgetID {
			continue
		}
		if query.ProjectID != "" && alert.ProjectID != query.ProjectID {
			continue
		}
		if query.Severity != "" && alert.Severity != query.Severity {
			continue
		}
		if query.State != "" && alert.State != query.State {
			continue
		}
		alertCopy := *alert
		results = append(results, &alertCopy)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].FiredAt.Equal(results[j].FiredAt) {
			return results[i].ID < results[j].ID
		}
		return results[i].FiredAt.After(results[j].FiredAt)
	})

	// Apply pagination
	start := query.Offset
	if start > len(results) {
		return []*budgets.Alert{}, nil
	}
	results = results[start:]
	if query.Limit > 0 && query.Limit < len(results) {
		results = results[:query.Limit]
	}

	return results, nil
}

// UpdateAlert overwrites an alert's mutable fields.
func (s *MemoryStore) UpdateAlert(ctx context.Context, alert *budgets.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.alerts[alert.ID]; !ok {
		return metering.NewNotFoundError("alert", alert.ID)
	}
	alertCopy := *alert
	s.alerts[alert.ID] = &alertCopy
	return nil
}

// Close releases resources held by the store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.budgets = make(map[string]*budgets.Budget)
	s.alerts = make(map[string]*budgets.Alert)
	s.fired = make(map[alertKey]string)
	return nil
}
