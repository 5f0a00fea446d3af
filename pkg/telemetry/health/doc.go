// Package health provides liveness and readiness probes for the DevGuard
// operational listener.
//
// # Overview
//
// The health package implements the /health, /ready, and /version
// endpoints served alongside the Prometheus metrics endpoint. Components
// register probe functions with a Checker; readiness aggregates them.
//
// # Endpoints
//
//   - /health: Liveness probe - indicates if the process is running
//   - /ready: Readiness probe - indicates if stores and schedulers are healthy
//   - /version: Build information - version, commit, build time
//
// # Usage
//
//	checker := health.New(5 * time.Second)
//
//	checker.Register("event_store", health.StoreCheck(eventStore))
//	checker.Register("rollup_scheduler", health.SchedulerCheck(rollupScheduler))
//
//	mux := http.NewServeMux()
//	health.Register(mux, checker, "1.0.0", "abc123", "2026-08-26")
//
// # Liveness vs Readiness
//
// Liveness (/health) only reports that the process is alive; it never
// runs component probes and always answers quickly. Readiness (/ready)
// runs every registered probe concurrently, each bounded by the checker
// timeout, and returns 503 when any component is unhealthy so that load
// balancers stop routing to a degraded engine.
//
// # Component Probes
//
// The engine registers probes for each SQLite store (via StoreCheck,
// which pings the connection) and each cron scheduler (via
// SchedulerCheck, which verifies the scheduler is still running).
//
// # Example Responses
//
// Readiness response (/ready):
//
//	{
//	    "status": "ready",
//	    "checks": {
//	        "event_store": {"status": "ok", "duration_ms": 0.4},
//	        "budget_store": {"status": "ok", "duration_ms": 0.3},
//	        "rollup_scheduler": {"status": "ok"}
//	    },
//	    "timestamp": "2026-08-26T10:30:00Z"
//	}
//
// Degraded response (/ready, HTTP 503):
//
//	{
//	    "status": "degraded",
//	    "checks": {
//	        "event_store": {"status": "unhealthy", "message": "database is locked"}
//	    },
//	    "timestamp": "2026-08-26T10:30:00Z"
//	}
package health
