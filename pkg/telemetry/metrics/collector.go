package metrics

import (
	"fmt"
	"sync"
	"time"

	"devguard-hq/devguard/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector is the main orchestrator for all Prometheus metrics. It
// manages metric registration and provides a unified interface for
// recording metrics across the ingestion and evaluation pipeline.
//
// Dimension values come from user telemetry (connection identifiers,
// provider names), so the collector guards every dimension-labelled
// metric with a cardinality limiter. Once the limit is hit, new
// dimensions aggregate under "other" instead of growing the registry.
//
// A nil *Collector records nothing, so components can hold one without
// checking whether metrics are configured.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	// Ingestion and aggregation metrics
	pipelineMetrics *PipelineMetrics

	// Budget and insight metrics
	engineMetrics *EngineMetrics

	// Cardinality tracking
	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a new metrics collector with the specified
// configuration and Prometheus registry. If registry is nil, a fresh
// registry is used.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = "devguard"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "metering"
	}
	if len(cfg.WriteDurationBuckets) == 0 {
		// Event writes are sub-millisecond to tens of milliseconds
		cfg.WriteDurationBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0}
	}
	if len(cfg.RunDurationBuckets) == 0 {
		// Aggregation and evaluation runs span milliseconds to minutes
		cfg.RunDurationBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0, 120.0}
	}

	c := &Collector{
		config:             cfg,
		registry:           registry,
		cardinalityLimiter: NewCardinalityLimiter(10000),
	}

	c.pipelineMetrics = NewPipelineMetrics(cfg, registry)
	c.engineMetrics = NewEngineMetrics(cfg, registry)

	return c
}

// RecordEvent records one accepted telemetry event.
func (c *Collector) RecordEvent(stream, dimension string, writeDuration time.Duration) {
	if c == nil || !c.config.Enabled {
		return
	}

	dimension = c.boundDimension(stream, dimension)
	c.pipelineMetrics.RecordEvent(stream, dimension, writeDuration)
}

// RecordEventRejected records an event that failed validation.
func (c *Collector) RecordEventRejected(stream string) {
	if c == nil || !c.config.Enabled {
		return
	}

	c.pipelineMetrics.RecordRejected(stream)
}

// RecordEventDropped records an event dropped by the async recorder.
func (c *Collector) RecordEventDropped(stream string) {
	if c == nil || !c.config.Enabled {
		return
	}

	c.pipelineMetrics.RecordDropped(stream)
}

// RecordAggregation records one aggregation run.
func (c *Collector) RecordAggregation(width, status string, duration time.Duration, buckets int) {
	if c == nil || !c.config.Enabled {
		return
	}

	c.pipelineMetrics.RecordAggregation(width, status, duration, buckets)
}

// RecordBudgetEvaluation records one budget evaluation pass.
func (c *Collector) RecordBudgetEvaluation(duration time.Duration) {
	if c == nil || !c.config.Enabled {
		return
	}

	c.engineMetrics.RecordEvaluation(duration)
}

// RecordAlertFired records one fired budget alert.
func (c *Collector) RecordAlertFired(severity string) {
	if c == nil || !c.config.Enabled {
		return
	}

	c.engineMetrics.RecordAlert(severity)
}

// RecordInsight records one generated insight.
func (c *Collector) RecordInsight(category, severity string) {
	if c == nil || !c.config.Enabled {
		return
	}

	c.engineMetrics.RecordInsight(category, severity)
}

// RecordPurge records one retention purge run.
func (c *Collector) RecordPurge(deleted int64, partial bool) {
	if c == nil || !c.config.Enabled {
		return
	}

	c.pipelineMetrics.RecordPurge(deleted, partial)
}

// boundDimension applies the cardinality limit to a dimension label.
func (c *Collector) boundDimension(stream, dimension string) string {
	labelSet := fmt.Sprintf("event:%s:%s", stream, dimension)
	if !c.cardinalityLimiter.Allow(labelSet) {
		return "other"
	}
	return dimension
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label combinations per metric.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the
// specified maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow checks if a label set is allowed. Returns true if the label set
// already exists or if the cardinality limit has not been reached.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[labelSet]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
