package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"devguard-hq/devguard/pkg/metering"
	"devguard-hq/devguard/pkg/telemetry/metrics"
)

// Config contains configuration for the event recorder.
type Config struct {
	// AsyncBuffer is the size of the async write channel buffer.
	// Default: 1000
	AsyncBuffer int

	// WriteTimeout is the timeout for writing an event to storage.
	// Default: 5 seconds
	WriteTimeout time.Duration
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		AsyncBuffer:  1000,
		WriteTimeout: 5 * time.Second,
	}
}

// Recorder is the only write path into the raw event store. It validates
// incoming telemetry events and appends them asynchronously so bulk
// ingestion never blocks on aggregation or slow storage.
type Recorder struct {
	store     metering.EventStore
	config    *Config
	eventChan chan *metering.Event
	wg        sync.WaitGroup
	done      chan struct{}
	logger    *slog.Logger
	metrics   *metrics.Collector

	// closeMu orders enqueues against shutdown: Record sends under the
	// read lock, Close flips closed under the write lock before it
	// signals the worker, so every accepted event is in the channel by
	// the time the final drain runs.
	closeMu sync.RWMutex
	closed  bool
}

// SetMetrics attaches a metrics collector. Must be called before the
// first Record; a nil collector is allowed and records nothing.
func (r *Recorder) SetMetrics(c *metrics.Collector) {
	r.metrics = c
}

// New creates a new event recorder with the provided store and configuration.
func New(store metering.EventStore, config *Config) *Recorder {
	if config == nil {
		config = DefaultConfig()
	}

	r := &Recorder{
		store:     store,
		config:    config,
		eventChan: make(chan *metering.Event, config.AsyncBuffer),
		done:      make(chan struct{}),
		logger:    slog.Default().With("component", "metering.recorder"),
	}

	// Background worker drains the channel
	r.wg.Add(1)
	go r.worker()

	r.logger.Info("event recorder initialized",
		"async_buffer", config.AsyncBuffer,
		"write_timeout", config.WriteTimeout,
	)

	return r
}

// Record validates the event, assigns an identifier, and enqueues it for
// async writing. It returns the generated identifier immediately; exactly
// one durable write happens per accepted event. No rollup or alert
// computation happens synchronously.
func (r *Recorder) Record(ctx context.Context, event *metering.Event) (string, error) {
	accepted, err := r.prepare(event)
	if err != nil {
		if event != nil {
			r.metrics.RecordEventRejected(string(event.Stream))
		}
		return "", err
	}

	r.closeMu.RLock()
	defer r.closeMu.RUnlock()
	if r.closed {
		return "", metering.NewStorageError("recorder", "enqueue", context.Canceled)
	}

	select {
	case r.eventChan <- accepted:
		return accepted.ID, nil
	case <-time.After(r.config.WriteTimeout):
		r.logger.Error("event channel full, dropping event",
			"event_id", accepted.ID,
			"project_id", accepted.ProjectID,
			"channel_capacity", r.config.AsyncBuffer,
		)
		r.metrics.RecordEventDropped(string(accepted.Stream))
		return "", metering.NewStorageError("recorder", "enqueue", context.DeadlineExceeded)
	}
}

// RecordSync validates and writes the event synchronously, returning only
// after the append is durable. Intended for callers that must confirm the
// write, such as backfill tooling.
func (r *Recorder) RecordSync(ctx context.Context, event *metering.Event) (string, error) {
	accepted, err := r.prepare(event)
	if err != nil {
		if event != nil {
			r.metrics.RecordEventRejected(string(event.Stream))
		}
		return "", err
	}

	start := time.Now()
	if err := r.store.Append(ctx, accepted); err != nil {
		return "", err
	}
	r.metrics.RecordEvent(string(accepted.Stream), accepted.Dimension, time.Since(start))

	return accepted.ID, nil
}

// Close gracefully shuts down the recorder, draining the async channel and
// waiting for all pending writes to complete. Enqueues that already
// returned an ID are written before Close returns; later Records fail.
// Close is idempotent.
func (r *Recorder) Close() error {
	r.closeMu.Lock()
	if r.closed {
		r.closeMu.Unlock()
		return nil
	}
	r.closed = true
	r.closeMu.Unlock()

	r.logger.Info("shutting down event recorder")

	close(r.done)
	r.wg.Wait()

	r.logger.Info("event recorder shut down complete")
	return nil
}

// prepare validates the incoming event and returns an accepted copy with
// identity and recorded-at assigned. Validation happens before any write.
func (r *Recorder) prepare(event *metering.Event) (*metering.Event, error) {
	if event == nil {
		return nil, metering.NewValidationError("event", "event is required")
	}
	if event.ProjectID == "" {
		return nil, metering.NewValidationError("project_id", "project scope is required")
	}
	if !event.Stream.Valid() {
		return nil, metering.NewValidationError("stream", "unknown stream "+string(event.Stream))
	}
	if event.Dimension == "" {
		return nil, metering.NewValidationError("dimension", "dimension key is required")
	}
	if event.Timestamp.IsZero() {
		return nil, metering.NewValidationError("timestamp", "timestamp is required")
	}
	if err := validateMeasures(event.Measures); err != nil {
		return nil, err
	}

	accepted := *event
	accepted.ID = uuid.New().String()
	accepted.Timestamp = event.Timestamp.UTC()
	accepted.RecordedAt = time.Now().UTC()
	if accepted.Environment == "" {
		accepted.Environment = "production"
	}

	return &accepted, nil
}

// validateMeasures rejects negative numeric measures.
func validateMeasures(m metering.Measures) error {
	switch {
	case m.CostUSD < 0:
		return metering.NewValidationError("measures.cost_usd", "must be non-negative")
	case m.LatencyMS < 0:
		return metering.NewValidationError("measures.latency_ms", "must be non-negative")
	case m.Rows < 0:
		return metering.NewValidationError("measures.rows", "must be non-negative")
	case m.RiskScore < 0:
		return metering.NewValidationError("measures.risk_score", "must be non-negative")
	}
	return nil
}

// worker is the background goroutine that drains the event channel and
// writes events to the store.
func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case event := <-r.eventChan:
			r.writeEvent(event)

		case <-r.done:
			// Drain remaining events before exit
			r.logger.Info("draining event channel before shutdown",
				"pending_count", len(r.eventChan),
			)
			for {
				select {
				case event := <-r.eventChan:
					r.writeEvent(event)
				default:
					r.logger.Info("event channel drained")
					return
				}
			}
		}
	}
}

// writeEvent writes a single event to the store.
func (r *Recorder) writeEvent(event *metering.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()

	if err := r.store.Append(ctx, event); err != nil {
		r.logger.Error("failed to store event",
			"event_id", event.ID,
			"project_id", event.ProjectID,
			"stream", event.Stream,
			"error", err,
		)
		return
	}

	duration := time.Since(start)
	r.metrics.RecordEvent(string(event.Stream), event.Dimension, duration)

	r.logger.Debug("event recorded",
		"event_id", event.ID,
		"project_id", event.ProjectID,
		"stream", event.Stream,
		"dimension", event.Dimension,
		"duration_ms", duration.Milliseconds(),
	)

	if duration > r.config.WriteTimeout/2 {
		r.logger.Warn("slow event write",
			"event_id", event.ID,
			"duration_ms", duration.Milliseconds(),
		)
	}
}
