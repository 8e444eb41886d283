// Package governance defines the core model of the GDPR data-lifecycle
// subsystem: job records, audit events, retention categories, the error
// taxonomy, and the interfaces of every store the subsystem reads or writes.
//
// # Architecture
//
// The subsystem is organised in layers, leaves first:
//
//  1. Audit Event Store - append-only, HMAC-tagged governance events (audit, storage)
//  2. Retention Policy Registry - per-category TTL configuration (retention)
//  3. Job Store - durable job records and their state transitions (storage)
//  4. Worker Pool - claims pending jobs and runs type-specific handlers (jobs)
//  5. Handlers - export bundles and the two-phase purge (export, purge)
//  6. TTL Sweeper - periodic batched deletion of expired operational data (retention)
//  7. Confirmation Gate - purge challenges and request deduplication (gate)
//
// # Job Lifecycle
//
// A job moves through a strict DAG:
//
//	pending → processing → completed
//	                     → failed
//	processing → pending   (reaper or transient retry, retry_count+1)
//
// A job is claimed exactly once per attempt. The claim stamps a claim id on
// the record and only the holder of that claim may finish the job.
//
// # Error Taxonomy
//
//   - ValidationError: rejected before a job record exists, never retried
//   - TransientStoreError: a collaborating store failed; the job is retried
//   - IntegrityError: an audit tag did not verify; reported, never corrected
//   - InvariantViolation: a logic error such as a premature hard delete
//
// Job status responses carry only PublicMessage text. Detailed causes are
// written to operator logs.
package governance
