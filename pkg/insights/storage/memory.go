package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"devguard-hq/devguard/pkg/insights"
	"devguard-hq/devguard/pkg/metering"
)

// MemoryStore implements insights.Store using in-memory maps. This
// implementation is intended for testing only. The open-insight check
// and the insert happen under one mutex, matching the atomicity of the
// SQLite partial unique index.
type MemoryStore struct {
	insights map[string]*insights.Insight
	open     map[openKey]string // dedupe key -> insight ID while open
	mu       sync.RWMutex
}

type openKey struct {
	projectID string
	category  insights.Category
	signalKey string
}

// Interface guard.
var _ insights.Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory insight store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		insights: make(map[string]*insights.Insight),
		open:     make(map[openKey]string),
	}
}

// Create persists a new insight with open-insight deduplication.
func (s *MemoryStore) Create(ctx context.Context, insight *insights.Insight) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := openKey{
		projectID: insight.ProjectID,
		category:  insight.Category,
		signalKey: insight.SignalKey,
	}
	if insight.State == insights.StateOpen {
		if _, exists := s.open[key]; exists {
			return metering.NewConflictError("insight",
				fmt.Sprintf("%s/%s/%s", insight.ProjectID, insight.Category, insight.SignalKey))
		}
		s.open[key] = insight.ID
	}

	insightCopy := *insight
	s.insights[insight.ID] = &insightCopy
	return nil
}

// Get returns an insight by ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (*insights.Insight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	insight, ok := s.insights[id]
	if !ok {
		return nil, metering.NewNotFoundError("insight", id)
	}
	insightCopy := *insight
	return &insightCopy, nil
}

// List returns insights matching the query ordered by created_at
// descending.
func (s *MemoryStore) List(ctx context.Context, query *insights.Query) ([]*insights.Insight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*insights.Insight
	for _, insight := range s.insights {
		if query.ProjectID != "" && insight.ProjectID != query.ProjectID {
			continue
		}
		if query.Category != "" && insight.Category != query.Category {
			continue
		}
		if query.Severity != "" && insight.Severity != query.Severity {
			continue
		}
		if query.State != "" && insight.State != query.State {
			continue
		}
		insightCopy := *insight
		results = append(results, &insightCopy)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].ID < results[j].ID
		}
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})

	// Apply pagination
	start := query.Offset
	if start > len(results) {
		return []*insights.Insight{}, nil
	}
	results = results[start:]
	if query.Limit > 0 && query.Limit < len(results) {
		results = results[:query.Limit]
	}

	return results, nil
}

// Update overwrites an insight's mutable fields and releases the dedupe
// slot when the insight leaves the open state.
func (s *MemoryStore) Update(ctx context.Context, insight *insights.Insight) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.insights[insight.ID]
	if !ok {
		return metering.NewNotFoundError("insight", insight.ID)
	}

	if existing.State == insights.StateOpen && insight.State != insights.StateOpen {
		delete(s.open, openKey{
			projectID: existing.ProjectID,
			category:  existing.Category,
			signalKey: existing.SignalKey,
		})
	}

	insightCopy := *insight
	s.insights[insight.ID] = &insightCopy
	return nil
}

// Close releases resources held by the store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.insights = make(map[string]*insights.Insight)
	s.open = make(map[openKey]string)
	return nil
}
