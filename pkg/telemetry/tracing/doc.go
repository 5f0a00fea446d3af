// Package tracing provides OpenTelemetry tracing for the DevGuard
// pipeline.
//
// # Overview
//
// Spans cover the scheduled pipeline runs: aggregation, budget
// evaluation, insight generation, and retention pruning. New installs
// the global tracer provider and W3C propagator, so components create
// spans through the package-level Start without holding a tracer.
//
// # Usage
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, version)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
// Inside a pipeline component:
//
//	ctx, span := tracing.Start(ctx, "rollup.aggregate")
//	defer span.End()
//
//	// ... aggregate ...
//
//	tracing.SetRollupAttributes(span, string(width), buckets, partial)
//	tracing.SetStatus(span, err)
//
// When tracing is disabled the global provider stays a noop and Start
// costs under a microsecond, so components never check whether tracing
// is configured.
//
// # Sampling
//
// Three strategies are supported: "always", "never", and "ratio"
// (trace-ID-hash based, consistent across services). All are wrapped in
// ParentBased so a trace is either recorded whole or not at all.
//
//	telemetry:
//	  tracing:
//	    enabled: true
//	    sampler: ratio
//	    sample_ratio: 0.1
//
// # Propagation
//
// Services embedding the recorder library can pass their request
// context into Record; the engine's spans then join the caller's trace.
// Extract and Inject handle the W3C traceparent and tracestate headers
// for HTTP carriers, ExtractFromMap and InjectToMap for everything
// else.
package tracing
