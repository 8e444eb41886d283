// Steward runs the data-lifecycle subsystem of a compliance assessment
// platform: GDPR exports and purges as durable background jobs, a
// tamper-evident audit trail, and TTL-based retention of operational data.
//
// Usage:
//
//	# Start the API server, worker pool and retention scheduler
//	steward run --config /etc/steward/steward.yaml
//
//	# Verify the audit trail for October
//	steward audit verify --from 2026-10-01T00:00:00Z --to 2026-10-31T23:59:59Z
//
//	# Run a retention sweep now
//	steward sweep operational_logs temp_data
//
//	# Inspect a job
//	steward jobs status 3f2b...
package main

func main() {
	Execute()
}
