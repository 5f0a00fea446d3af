package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"devguard-hq/devguard/pkg/metering"
)

// MemoryStore implements metering.EventStore and metering.RollupStore using
// in-memory maps. This implementation is intended for testing only and
// should not be used in production.
type MemoryStore struct {
	events     map[string]*metering.Event
	rollups    map[rollupKey]*metering.Rollup
	watermarks map[watermarkKey]time.Time
	horizon    time.Time
	mu         sync.RWMutex
}

type rollupKey struct {
	key         metering.Key
	width       metering.Width
	bucketStart time.Time
}

type watermarkKey struct {
	key   metering.Key
	width metering.Width
}

// Interface guards.
var (
	_ metering.EventStore  = (*MemoryStore)(nil)
	_ metering.RollupStore = (*MemoryStore)(nil)
)

// NewMemoryStore creates a new in-memory metering store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:     make(map[string]*metering.Event),
		rollups:    make(map[rollupKey]*metering.Rollup),
		watermarks: make(map[watermarkKey]time.Time),
	}
}

// Append persists one raw event to memory.
func (s *MemoryStore) Append(ctx context.Context, event *metering.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Copy to avoid mutation by the caller
	eventCopy := *event
	s.events[event.ID] = &eventCopy

	return nil
}

// Query returns events matching the filters ordered by (timestamp, id).
func (s *MemoryStore) Query(ctx context.Context, query *metering.EventQuery) ([]*metering.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*metering.Event
	for _, event := range s.events {
		if matchesEventQuery(event, query) {
			eventCopy := *event
			results = append(results, &eventCopy)
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Timestamp.Equal(results[j].Timestamp) {
			return results[i].ID < results[j].ID
		}
		return results[i].Timestamp.Before(results[j].Timestamp)
	})

	// Apply pagination
	start := query.Offset
	if start > len(results) {
		return []*metering.Event{}, nil
	}
	results = results[start:]
	if query.Limit > 0 && query.Limit < len(results) {
		results = results[:query.Limit]
	}

	return results, nil
}

// Count returns the number of events matching the filters.
func (s *MemoryStore) Count(ctx context.Context, query *metering.EventQuery) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, event := range s.events {
		if matchesEventQuery(event, query) {
			count++
		}
	}

	return count, nil
}

// Keys returns the distinct series present in the given range.
func (s *MemoryStore) Keys(ctx context.Context, r metering.TimeRange) ([]metering.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[metering.Key]struct{})
	for _, event := range s.events {
		if !r.IsZero() && !r.Contains(event.Timestamp) {
			continue
		}
		seen[metering.Key{
			ProjectID: event.ProjectID,
			Stream:    event.Stream,
			Dimension: event.Dimension,
		}] = struct{}{}
	}

	keys := make([]metering.Key, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ProjectID != keys[j].ProjectID {
			return keys[i].ProjectID < keys[j].ProjectID
		}
		if keys[i].Stream != keys[j].Stream {
			return keys[i].Stream < keys[j].Stream
		}
		return keys[i].Dimension < keys[j].Dimension
	})

	return keys, nil
}

// DeleteBefore removes events with timestamp strictly before cutoff and
// advances the purge horizon.
func (s *MemoryStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, event := range s.events {
		if event.Timestamp.Before(cutoff) {
			delete(s.events, id)
			deleted++
		}
	}

	if cutoff.After(s.horizon) {
		s.horizon = cutoff
	}

	return deleted, nil
}

// PurgeHorizon returns the latest purge cutoff.
func (s *MemoryStore) PurgeHorizon(ctx context.Context) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.horizon, nil
}

// Replace atomically overwrites each bucket in rollups.
func (s *MemoryStore) Replace(ctx context.Context, rollups []*metering.Rollup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range rollups {
		rollupCopy := *r
		s.rollups[rollupKey{
			key:         r.Key,
			width:       r.Width,
			bucketStart: r.BucketStart.UTC(),
		}] = &rollupCopy
	}

	return nil
}

// QueryRollups returns buckets matching the query ordered by bucket start.
func (s *MemoryStore) QueryRollups(ctx context.Context, query *metering.RollupQuery) ([]*metering.Rollup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*metering.Rollup
	for k, r := range s.rollups {
		if k.width != query.Width {
			continue
		}
		if query.Key.ProjectID != "" && k.key.ProjectID != query.Key.ProjectID {
			continue
		}
		if query.Key.Stream != "" && k.key.Stream != query.Key.Stream {
			continue
		}
		if query.Key.Dimension != "" && k.key.Dimension != query.Key.Dimension {
			continue
		}
		if !query.Range.Start.IsZero() && k.bucketStart.Before(query.Range.Start.UTC()) {
			continue
		}
		if !query.Range.End.IsZero() && !k.bucketStart.Before(query.Range.End.UTC()) {
			continue
		}
		rollupCopy := *r
		results = append(results, &rollupCopy)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].BucketStart.Before(results[j].BucketStart)
	})

	return results, nil
}

// Watermark returns the aggregation high-water mark for one series.
func (s *MemoryStore) Watermark(ctx context.Context, key metering.Key, width metering.Width) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.watermarks[watermarkKey{key: key, width: width}], nil
}

// SetWatermark advances the high-water mark; it never moves backwards.
func (s *MemoryStore) SetWatermark(ctx context.Context, key metering.Key, width metering.Width, mark time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := watermarkKey{key: key, width: width}
	if mark.After(s.watermarks[k]) {
		s.watermarks[k] = mark
	}

	return nil
}

// Watermarks returns all high-water marks for the given width.
func (s *MemoryStore) Watermarks(ctx context.Context, width metering.Width) (map[metering.Key]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	marks := make(map[metering.Key]time.Time)
	for k, mark := range s.watermarks {
		if k.width == width {
			marks[k.key] = mark
		}
	}

	return marks, nil
}

// Close releases resources held by the store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = make(map[string]*metering.Event)
	s.rollups = make(map[rollupKey]*metering.Rollup)
	s.watermarks = make(map[watermarkKey]time.Time)
	return nil
}

// Size returns the number of raw events in storage (for testing).
func (s *MemoryStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.events)
}

// matchesEventQuery checks if an event matches the query filters.
func matchesEventQuery(event *metering.Event, query *metering.EventQuery) bool {
	if query.ProjectID != "" && event.ProjectID != query.ProjectID {
		return false
	}
	if query.Stream != "" && event.Stream != query.Stream {
		return false
	}
	if query.Dimension != "" && event.Dimension != query.Dimension {
		return false
	}
	if query.Start != nil && event.Timestamp.Before(*query.Start) {
		return false
	}
	if query.End != nil && !event.Timestamp.Before(*query.End) {
		return false
	}

	return true
}
