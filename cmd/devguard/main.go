// DevGuard is a telemetry aggregation and budget-alert engine for
// development infrastructure.
//
// It ingests telemetry events (API calls, database queries, dependency
// scans), aggregates them into hourly and daily rollups, evaluates
// spending budgets against consumption, and generates operational
// insights from aggregated signals.
//
// Usage:
//
//	# Start the engine with default configuration
//	devguard run
//
//	# Start with custom configuration file
//	devguard run --config /path/to/config.yaml
//
//	# Validate a configuration file
//	devguard validate --config /path/to/config.yaml
//
//	# Query recorded events
//	devguard events query --project proj-1 --stream api_call
//
//	# Export events to a file
//	devguard events export --format csv --output events.csv
//
//	# List and acknowledge budget alerts
//	devguard alerts list --project proj-1
//	devguard alerts ack <alert-id> --by ops@example.com
//
//	# Show version information
//	devguard version
package main

func main() {
	Execute()
}
