package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the governance database schema.
//
// Timestamps are stored as unix nanoseconds so that audit event timestamps
// round-trip exactly and the integrity tag of a stored event can be
// recomputed byte for byte.
const Schema = `
-- Job records
CREATE TABLE IF NOT EXISTS jobs (
    id TEXT PRIMARY KEY,
    job_type TEXT NOT NULL,
    engagement_id TEXT NOT NULL DEFAULT '',
    actor TEXT NOT NULL DEFAULT '',
    correlation_id TEXT NOT NULL,

    -- State
    status TEXT NOT NULL,
    parameters TEXT,
    result TEXT,
    error_message TEXT,

    -- Gate
    dedup_key TEXT,
    confirmation_token_hash TEXT,

    -- Retry and ownership
    retry_count INTEGER NOT NULL DEFAULT 0,
    max_retries INTEGER NOT NULL DEFAULT 0,
    worker_id TEXT,
    claim_id TEXT,

    -- Timestamps (unix nanoseconds)
    created_at INTEGER NOT NULL,
    available_at INTEGER NOT NULL,
    started_at INTEGER,
    completed_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_jobs_engagement_status ON jobs(engagement_id, status);
CREATE INDEX IF NOT EXISTS idx_jobs_claim ON jobs(status, available_at, created_at);
CREATE INDEX IF NOT EXISTS idx_jobs_correlation_status ON jobs(correlation_id, status);

-- At most one in-flight job per dedup key
CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_active_dedup ON jobs(dedup_key)
    WHERE dedup_key IS NOT NULL AND status IN ('pending', 'processing');

-- Audit events
CREATE TABLE IF NOT EXISTS audit_events (
    id TEXT PRIMARY KEY,
    event_type TEXT NOT NULL,
    ts INTEGER NOT NULL,
    actor TEXT NOT NULL,
    engagement_id TEXT NOT NULL DEFAULT '',
    details TEXT NOT NULL,
    correlation_id TEXT NOT NULL DEFAULT '',
    key_id TEXT NOT NULL,
    integrity_tag TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_engagement_ts ON audit_events(engagement_id, ts);
CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_events(ts);
CREATE INDEX IF NOT EXISTS idx_audit_correlation ON audit_events(correlation_id);

-- Audit events are immutable once written
CREATE TRIGGER IF NOT EXISTS audit_events_immutable
BEFORE UPDATE ON audit_events
BEGIN
    SELECT RAISE(ABORT, 'audit events are immutable');
END;

-- Schema version table
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);
`

// InsertSchemaVersion inserts the schema version into the schema_version table.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version from the database.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`
