package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"

	"maturity-hq/steward/pkg/governance"
)

const jobColumns = `
	id, job_type, engagement_id, actor, correlation_id,
	status, parameters, result, error_message,
	dedup_key, confirmation_token_hash,
	retry_count, max_retries, worker_id, claim_id,
	created_at, available_at, started_at, completed_at`

// SQLiteJobStore implements governance.JobStore using SQLite.
type SQLiteJobStore struct {
	owner  *SQLiteDB
	db     *sql.DB
	logger *slog.Logger
}

// Create persists a new pending job and returns its id.
func (s *SQLiteJobStore) Create(ctx context.Context, job *governance.JobRecord) (string, error) {
	prepareJob(job)
	if err := s.insert(ctx, job); err != nil {
		if isUniqueViolation(err) {
			return "", &governance.ConflictError{Reason: "an equivalent job is already in flight"}
		}
		return "", governance.NewStorageError("sqlite", "create", err)
	}
	return job.ID, nil
}

// CreateUnique persists job unless an active job holds the same dedup key.
func (s *SQLiteJobStore) CreateUnique(ctx context.Context, job *governance.JobRecord) (string, bool, error) {
	if job.DedupKey == "" {
		id, err := s.Create(ctx, job)
		return id, err == nil, err
	}
	prepareJob(job)

	for attempt := 0; attempt < 3; attempt++ {
		err := s.insert(ctx, job)
		if err == nil {
			return job.ID, true, nil
		}
		if !isUniqueViolation(err) {
			return "", false, governance.NewStorageError("sqlite", "create_unique", err)
		}

		existing, err := s.FindActive(ctx, job.DedupKey)
		if err == nil {
			return existing.ID, false, nil
		}
		if !errors.Is(err, governance.ErrNotFound) {
			return "", false, err
		}
		// The holder finished between insert and lookup; try again.
	}
	return "", false, governance.NewStorageError("sqlite", "create_unique",
		fmt.Errorf("dedup key %s kept changing hands", job.DedupKey))
}

func (s *SQLiteJobStore) insert(ctx context.Context, job *governance.JobRecord) error {
	params, err := marshalMap(job.Parameters)
	if err != nil {
		return fmt.Errorf("failed to marshal parameters: %w", err)
	}
	result, err := marshalMap(job.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO jobs (`+jobColumns+`) VALUES (
		?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, string(job.JobType), job.EngagementID, job.Actor, job.CorrelationID,
		string(job.Status), params, result, nullableString(job.ErrorMessage),
		nullableString(job.DedupKey), nullableString(job.ConfirmationTokenHash),
		job.RetryCount, job.MaxRetries, nullableString(job.WorkerID), nullableString(job.ClaimID),
		toNanos(job.CreatedAt), toNanos(job.AvailableAt), nullableNanos(job.StartedAt), nullableNanos(job.CompletedAt),
	)
	return err
}

// FindActive returns the pending or processing job holding dedupKey.
func (s *SQLiteJobStore) FindActive(ctx context.Context, dedupKey string) (*governance.JobRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs
		WHERE dedup_key = ? AND status IN ('pending', 'processing') LIMIT 1`, dedupKey)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, governance.ErrNotFound
	}
	if err != nil {
		return nil, governance.NewStorageError("sqlite", "find_active", err)
	}
	return job, nil
}

// ClaimNext claims the oldest claimable pending job of the given types. The
// candidate selection and the status change run as one statement, so two
// workers can never observe the same job.
func (s *SQLiteJobStore) ClaimNext(ctx context.Context, types []governance.JobType, workerID string, now time.Time) (*governance.JobRecord, error) {
	if len(types) == 0 {
		return nil, nil
	}
	claimID := uuid.New().String()
	args := []any{workerID, claimID, toNanos(now), toNanos(now)}
	for _, t := range types {
		args = append(args, string(t))
	}

	res, err := s.db.ExecContext(ctx, `UPDATE jobs
		SET status = 'processing', worker_id = ?, claim_id = ?, started_at = ?
		WHERE status = 'pending' AND id = (
			SELECT id FROM jobs
			WHERE status = 'pending' AND available_at <= ? AND job_type IN (`+placeholders(len(types))+`)
			ORDER BY available_at ASC, created_at ASC, id ASC
			LIMIT 1)`, args...)
	if err != nil {
		return nil, governance.NewStorageError("sqlite", "claim_next", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, governance.NewStorageError("sqlite", "claim_next", err)
	}
	if n == 0 {
		return nil, nil
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE claim_id = ?`, claimID)
	job, err := scanJob(row)
	if err != nil {
		return nil, governance.NewStorageError("sqlite", "claim_next", err)
	}
	return job, nil
}

// Claim claims one specific pending job.
func (s *SQLiteJobStore) Claim(ctx context.Context, id, workerID string, now time.Time) (*governance.JobRecord, error) {
	job, err := s.claim(ctx, id, workerID, now)
	if errors.Is(err, governance.ErrNotClaimable) {
		if _, getErr := s.Get(ctx, id); errors.Is(getErr, governance.ErrNotFound) {
			return nil, getErr
		}
	}
	return job, err
}

func (s *SQLiteJobStore) claim(ctx context.Context, id, workerID string, now time.Time) (*governance.JobRecord, error) {
	claimID := uuid.New().String()
	res, err := s.db.ExecContext(ctx, `UPDATE jobs
		SET status = 'processing', worker_id = ?, claim_id = ?, started_at = ?
		WHERE id = ? AND status = 'pending'`,
		workerID, claimID, toNanos(now), id)
	if err != nil {
		return nil, governance.NewStorageError("sqlite", "claim", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, governance.NewStorageError("sqlite", "claim", err)
	}
	if n != 1 {
		return nil, governance.ErrNotClaimable
	}
	return s.Get(ctx, id)
}

// Update applies a transition to a processing job owned by claimID.
func (s *SQLiteJobStore) Update(ctx context.Context, id, claimID string, u governance.JobUpdate) error {
	if err := governance.CheckTransition(governance.JobStatusProcessing, u.Status); err != nil {
		return err
	}

	var (
		res sql.Result
		err error
	)
	switch u.Status {
	case governance.JobStatusCompleted, governance.JobStatusFailed:
		var result any
		result, err = marshalMap(u.Result)
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		res, err = s.db.ExecContext(ctx, `UPDATE jobs
			SET status = ?, result = ?, error_message = ?, completed_at = ?
			WHERE id = ? AND status = 'processing' AND claim_id = ?`,
			string(u.Status), result, nullableString(u.ErrorMessage), toNanos(u.At),
			id, claimID)
	case governance.JobStatusPending:
		res, err = s.db.ExecContext(ctx, `UPDATE jobs
			SET status = 'pending', retry_count = retry_count + 1, available_at = ?,
			    error_message = ?, worker_id = NULL, claim_id = NULL, started_at = NULL
			WHERE id = ? AND status = 'processing' AND claim_id = ?`,
			toNanos(u.AvailableAt), nullableString(u.ErrorMessage),
			id, claimID)
	}
	if err != nil {
		return governance.NewStorageError("sqlite", "update", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return governance.NewStorageError("sqlite", "update", err)
	}
	if n != 1 {
		return governance.ErrNotClaimable
	}
	return nil
}

// Get returns a job by id.
func (s *SQLiteJobStore) Get(ctx context.Context, id string) (*governance.JobRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, governance.ErrNotFound)
	}
	if err != nil {
		return nil, governance.NewStorageError("sqlite", "get", err)
	}
	return job, nil
}

// ListByEngagement returns an engagement's jobs, newest first.
func (s *SQLiteJobStore) ListByEngagement(ctx context.Context, engagementID string, status governance.JobStatus) ([]*governance.JobRecord, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE engagement_id = ?`
	args := []any{engagementID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`
	return s.list(ctx, "list_by_engagement", query, args...)
}

// ListByStatus returns up to limit jobs in status, oldest first.
func (s *SQLiteJobStore) ListByStatus(ctx context.Context, status governance.JobStatus, limit int) ([]*governance.JobRecord, error) {
	if limit <= 0 {
		limit = 1000
	}
	return s.list(ctx, "list_by_status",
		`SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY created_at ASC LIMIT ?`,
		string(status), limit)
}

func (s *SQLiteJobStore) list(ctx context.Context, op, query string, args ...any) ([]*governance.JobRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, governance.NewStorageError("sqlite", op, err)
	}
	defer rows.Close()

	var jobs []*governance.JobRecord
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, governance.NewStorageError("sqlite", op, err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, governance.NewStorageError("sqlite", op, err)
	}
	return jobs, nil
}

// DeleteExpired removes up to limit terminal jobs completed at or before
// cutoff. A terminal job is kept while another job of its correlation chain
// is still pending or processing.
func (s *SQLiteJobStore) DeleteExpired(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id IN (
		SELECT j.id FROM jobs j
		WHERE j.status IN ('completed', 'failed') AND j.completed_at <= ?
		AND NOT EXISTS (
			SELECT 1 FROM jobs a
			WHERE a.correlation_id = j.correlation_id
			AND a.status IN ('pending', 'processing'))
		ORDER BY j.completed_at ASC
		LIMIT ?)`, toNanos(cutoff), limit)
	if err != nil {
		return 0, governance.NewStorageError("sqlite", "delete_expired", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, governance.NewStorageError("sqlite", "delete_expired", err)
	}
	return n, nil
}

// Ping checks that the database is reachable.
func (s *SQLiteJobStore) Ping(ctx context.Context) error {
	return s.owner.Ping(ctx)
}

// Close closes the shared database.
func (s *SQLiteJobStore) Close() error {
	return s.owner.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*governance.JobRecord, error) {
	var (
		job                    governance.JobRecord
		jobType, status        string
		params, result, errMsg sql.NullString
		dedupKey, tokenHash    sql.NullString
		workerID, claimID      sql.NullString
		createdAt, availableAt int64
		startedAt, completedAt sql.NullInt64
	)
	err := row.Scan(
		&job.ID, &jobType, &job.EngagementID, &job.Actor, &job.CorrelationID,
		&status, &params, &result, &errMsg,
		&dedupKey, &tokenHash,
		&job.RetryCount, &job.MaxRetries, &workerID, &claimID,
		&createdAt, &availableAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	job.JobType = governance.JobType(jobType)
	job.Status = governance.JobStatus(status)
	job.ErrorMessage = errMsg.String
	job.DedupKey = dedupKey.String
	job.ConfirmationTokenHash = tokenHash.String
	job.WorkerID = workerID.String
	job.ClaimID = claimID.String
	job.CreatedAt = fromNanos(createdAt)
	job.AvailableAt = fromNanos(availableAt)
	if startedAt.Valid {
		t := fromNanos(startedAt.Int64)
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := fromNanos(completedAt.Int64)
		job.CompletedAt = &t
	}
	if job.Parameters, err = unmarshalMap(params); err != nil {
		return nil, fmt.Errorf("failed to decode parameters: %w", err)
	}
	if job.Result, err = unmarshalMap(result); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return &job, nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
