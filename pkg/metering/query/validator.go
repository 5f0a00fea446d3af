package query

import (
	"fmt"

	"devguard-hq/devguard/pkg/metering"
)

const (
	// DefaultLimit is the default number of events to return if not specified.
	DefaultLimit = 100

	// MaxLimit is the maximum number of events that can be returned in a single query.
	MaxLimit = 10000
)

// Validate validates an event query and returns an error if any parameters
// are invalid.
func Validate(q *metering.EventQuery) error {
	if q.Limit < 0 {
		return metering.NewValidationError("limit", fmt.Sprintf("must be >= 0, got %d", q.Limit))
	}
	if q.Limit > MaxLimit {
		return metering.NewValidationError("limit", fmt.Sprintf("must be <= %d, got %d", MaxLimit, q.Limit))
	}

	if q.Offset < 0 {
		return metering.NewValidationError("offset", fmt.Sprintf("must be >= 0, got %d", q.Offset))
	}

	if q.Stream != "" && !q.Stream.Valid() {
		return metering.NewValidationError("stream", fmt.Sprintf("unknown stream %q", q.Stream))
	}

	if q.Start != nil && q.End != nil {
		if q.Start.After(*q.End) {
			return metering.NewValidationError("range", "start must be before end")
		}
	}

	return nil
}

// ApplyDefaults applies default values to an event query.
func ApplyDefaults(q *metering.EventQuery) {
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
}

// ValidateRollup validates a rollup query.
func ValidateRollup(q *metering.RollupQuery) error {
	if !q.Width.Valid() {
		return metering.NewValidationError("width", fmt.Sprintf("unsupported bucket width %q", q.Width))
	}

	if q.Key.Stream != "" && !q.Key.Stream.Valid() {
		return metering.NewValidationError("stream", fmt.Sprintf("unknown stream %q", q.Key.Stream))
	}

	if !q.Range.IsZero() {
		if q.Range.Start.IsZero() || q.Range.End.IsZero() {
			return metering.NewValidationError("range", "start and end must both be set")
		}
		if !q.Range.End.After(q.Range.Start) {
			return metering.NewValidationError("range", "end must be after start")
		}
	}

	return nil
}
