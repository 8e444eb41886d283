package business

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"maturity-hq/steward/pkg/governance"
)

// maxBatchParams keeps IN lists below SQLite's host parameter limit.
const maxBatchParams = 500

const schema = `
CREATE TABLE IF NOT EXISTS engagements (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	client_name TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'active',
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS assessments (
	id TEXT PRIMARY KEY,
	engagement_id TEXT NOT NULL,
	framework TEXT NOT NULL,
	title TEXT NOT NULL,
	score REAL NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	deleted_at INTEGER
);

CREATE TABLE IF NOT EXISTS answers (
	id TEXT PRIMARY KEY,
	assessment_id TEXT NOT NULL,
	engagement_id TEXT NOT NULL,
	question_id TEXT NOT NULL,
	value TEXT NOT NULL,
	comment TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	deleted_at INTEGER
);

CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	engagement_id TEXT NOT NULL,
	filename TEXT NOT NULL,
	content_type TEXT NOT NULL,
	size INTEGER NOT NULL,
	checksum TEXT NOT NULL DEFAULT '',
	uploaded_by TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	deleted_at INTEGER
);

CREATE TABLE IF NOT EXISTS findings (
	id TEXT PRIMARY KEY,
	engagement_id TEXT NOT NULL,
	assessment_id TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL,
	severity TEXT NOT NULL,
	recommendation TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	deleted_at INTEGER
);

CREATE TABLE IF NOT EXISTS members (
	engagement_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	role TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (engagement_id, user_id)
);

CREATE TABLE IF NOT EXISTS operational_logs (
	id TEXT PRIMARY KEY,
	engagement_id TEXT NOT NULL DEFAULT '',
	level TEXT NOT NULL,
	message TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS temp_data (
	key TEXT PRIMARY KEY,
	value BLOB,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assessments_engagement ON assessments(engagement_id, deleted_at);
CREATE INDEX IF NOT EXISTS idx_answers_engagement ON answers(engagement_id, deleted_at);
CREATE INDEX IF NOT EXISTS idx_documents_engagement ON documents(engagement_id, deleted_at);
CREATE INDEX IF NOT EXISTS idx_findings_engagement ON findings(engagement_id, deleted_at);
CREATE INDEX IF NOT EXISTS idx_operational_logs_created ON operational_logs(created_at);
CREATE INDEX IF NOT EXISTS idx_temp_data_created ON temp_data(created_at);
`

// SQLiteConfig configures the SQLite business store.
type SQLiteConfig struct {
	// Path is the database file.
	Path string

	// CheckpointInterval is how often to checkpoint the WAL.
	// Default: 5 minutes
	CheckpointInterval time.Duration

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// SQLiteStore implements governance.BusinessStore on SQLite.
type SQLiteStore struct {
	db                 *sql.DB
	checkpointInterval time.Duration
	clock              governance.Clock
	done               chan struct{}
	closeOnce          sync.Once
	logger             *slog.Logger
}

// OpenSQLite opens (and if needed creates) the business database.
func OpenSQLite(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = 5 * time.Minute
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		cfg.Path, cfg.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &SQLiteStore{
		db:                 db,
		checkpointInterval: cfg.CheckpointInterval,
		clock:              governance.SystemClock,
		done:               make(chan struct{}),
		logger:             slog.Default().With("component", "business.sqlite"),
	}
	go s.checkpointLoop()
	return s, nil
}

// SetClock overrides the time source used for soft-delete stamps.
func (s *SQLiteStore) SetClock(clock governance.Clock) {
	s.clock = clock
}

// DB returns the underlying database handle.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close stops the checkpoint loop and closes the database. It is idempotent.
func (s *SQLiteStore) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		close(s.done)
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		closeErr = s.db.Close()
	})
	return closeErr
}

func (s *SQLiteStore) checkpointLoop() {
	ticker := time.NewTicker(s.checkpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)"); err != nil {
				s.logger.Warn("wal checkpoint failed", "error", err)
			}
		case <-s.done:
			return
		}
	}
}

func transient(op string, err error) error {
	return governance.NewTransientStoreError("business", op, err)
}

// GetEngagement returns an engagement by id.
func (s *SQLiteStore) GetEngagement(ctx context.Context, id string) (*governance.Engagement, error) {
	var (
		e         governance.Engagement
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, client_name, status, created_at FROM engagements WHERE id = ?`, id,
	).Scan(&e.ID, &e.Name, &e.ClientName, &e.Status, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("engagement %s: %w", id, governance.ErrNotFound)
	}
	if err != nil {
		return nil, transient("get_engagement", err)
	}
	e.CreatedAt = fromNanos(createdAt)
	return &e, nil
}

// ListAssessments returns the visible assessments of an engagement.
func (s *SQLiteStore) ListAssessments(ctx context.Context, engagementID string) ([]governance.Assessment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, engagement_id, framework, title, score, created_at
		FROM assessments WHERE engagement_id = ? AND deleted_at IS NULL ORDER BY created_at, id`, engagementID)
	if err != nil {
		return nil, transient("list_assessments", err)
	}
	defer rows.Close()

	out := []governance.Assessment{}
	for rows.Next() {
		var a governance.Assessment
		var createdAt int64
		if err := rows.Scan(&a.ID, &a.EngagementID, &a.Framework, &a.Title, &a.Score, &createdAt); err != nil {
			return nil, transient("list_assessments", err)
		}
		a.CreatedAt = fromNanos(createdAt)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, transient("list_assessments", err)
	}
	return out, nil
}

// ListAnswers returns the visible answers of an engagement.
func (s *SQLiteStore) ListAnswers(ctx context.Context, engagementID string) ([]governance.Answer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, assessment_id, engagement_id, question_id, value, comment, created_at
		FROM answers WHERE engagement_id = ? AND deleted_at IS NULL ORDER BY created_at, id`, engagementID)
	if err != nil {
		return nil, transient("list_answers", err)
	}
	defer rows.Close()

	out := []governance.Answer{}
	for rows.Next() {
		var a governance.Answer
		var updatedAt int64
		if err := rows.Scan(&a.ID, &a.AssessmentID, &a.EngagementID, &a.QuestionID, &a.Value, &a.Comment, &updatedAt); err != nil {
			return nil, transient("list_answers", err)
		}
		a.UpdatedAt = fromNanos(updatedAt)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, transient("list_answers", err)
	}
	return out, nil
}

// ListDocuments returns the visible document metadata of an engagement.
func (s *SQLiteStore) ListDocuments(ctx context.Context, engagementID string) ([]governance.Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, engagement_id, filename, content_type, size, checksum, uploaded_by, created_at
		FROM documents WHERE engagement_id = ? AND deleted_at IS NULL ORDER BY created_at, id`, engagementID)
	if err != nil {
		return nil, transient("list_documents", err)
	}
	defer rows.Close()

	out := []governance.Document{}
	for rows.Next() {
		var d governance.Document
		var uploadedAt int64
		if err := rows.Scan(&d.ID, &d.EngagementID, &d.Filename, &d.ContentType, &d.Size, &d.Checksum, &d.UploadedBy, &uploadedAt); err != nil {
			return nil, transient("list_documents", err)
		}
		d.UploadedAt = fromNanos(uploadedAt)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, transient("list_documents", err)
	}
	return out, nil
}

// ListFindings returns the visible findings of an engagement.
func (s *SQLiteStore) ListFindings(ctx context.Context, engagementID string) ([]governance.Finding, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, engagement_id, assessment_id, title, severity, recommendation, created_at
		FROM findings WHERE engagement_id = ? AND deleted_at IS NULL ORDER BY created_at, id`, engagementID)
	if err != nil {
		return nil, transient("list_findings", err)
	}
	defer rows.Close()

	out := []governance.Finding{}
	for rows.Next() {
		var f governance.Finding
		var createdAt int64
		if err := rows.Scan(&f.ID, &f.EngagementID, &f.AssessmentID, &f.Title, &f.Severity, &f.Recommendation, &createdAt); err != nil {
			return nil, transient("list_findings", err)
		}
		f.CreatedAt = fromNanos(createdAt)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, transient("list_findings", err)
	}
	return out, nil
}

// ListMembers returns the members of an engagement.
func (s *SQLiteStore) ListMembers(ctx context.Context, engagementID string) ([]governance.Member, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT engagement_id, user_id, role, created_at
		FROM members WHERE engagement_id = ? ORDER BY created_at, user_id`, engagementID)
	if err != nil {
		return nil, transient("list_members", err)
	}
	defer rows.Close()

	out := []governance.Member{}
	for rows.Next() {
		var m governance.Member
		var addedAt int64
		if err := rows.Scan(&m.EngagementID, &m.UserID, &m.Role, &addedAt); err != nil {
			return nil, transient("list_members", err)
		}
		m.AddedAt = fromNanos(addedAt)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, transient("list_members", err)
	}
	return out, nil
}

// RecordIDs returns the ids of an engagement's records of one kind.
func (s *SQLiteStore) RecordIDs(ctx context.Context, kind governance.RecordKind, engagementID string, vis governance.Visibility) ([]string, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	query := `SELECT id FROM ` + table + ` WHERE engagement_id = ?`
	switch vis {
	case governance.VisibilityVisible:
		query += ` AND deleted_at IS NULL`
	case governance.VisibilityDeleted:
		query += ` AND deleted_at IS NOT NULL`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, engagementID)
	if err != nil {
		return nil, transient("record_ids", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, transient("record_ids", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, transient("record_ids", err)
	}
	return ids, nil
}

// SoftDelete hides visible records.
func (s *SQLiteStore) SoftDelete(ctx context.Context, kind governance.RecordKind, ids []string) (int64, error) {
	table, err := tableFor(kind)
	if err != nil {
		return 0, err
	}
	return s.execBatched(ctx, "soft_delete", ids, []any{toNanos(s.clock())}, func(n int) string {
		return `UPDATE ` + table + ` SET deleted_at = ? WHERE deleted_at IS NULL AND id IN (` + placeholders(n) + `)`
	})
}

// HardDelete removes soft-deleted records.
func (s *SQLiteStore) HardDelete(ctx context.Context, kind governance.RecordKind, ids []string) (int64, error) {
	table, err := tableFor(kind)
	if err != nil {
		return 0, err
	}
	return s.execBatched(ctx, "hard_delete", ids, nil, func(n int) string {
		return `DELETE FROM ` + table + ` WHERE deleted_at IS NOT NULL AND id IN (` + placeholders(n) + `)`
	})
}

// Recover restores soft-deleted records.
func (s *SQLiteStore) Recover(ctx context.Context, kind governance.RecordKind, ids []string) (int64, error) {
	table, err := tableFor(kind)
	if err != nil {
		return 0, err
	}
	return s.execBatched(ctx, "recover", ids, nil, func(n int) string {
		return `UPDATE ` + table + ` SET deleted_at = NULL WHERE deleted_at IS NOT NULL AND id IN (` + placeholders(n) + `)`
	})
}

// execBatched runs a statement over ids in chunks inside one transaction.
// lead holds arguments bound before the id list.
func (s *SQLiteStore) execBatched(ctx context.Context, op string, ids []string, lead []any, build func(n int) string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, transient(op, err)
	}
	defer tx.Rollback()

	var total int64
	for start := 0; start < len(ids); start += maxBatchParams {
		chunk := ids[start:min(start+maxBatchParams, len(ids))]
		args := append([]any{}, lead...)
		for _, id := range chunk {
			args = append(args, id)
		}
		res, err := tx.ExecContext(ctx, build(len(chunk)), args...)
		if err != nil {
			return 0, transient(op, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, transient(op, err)
		}
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, transient(op, err)
	}
	return total, nil
}

// CreateEngagement inserts an engagement.
func (s *SQLiteStore) CreateEngagement(ctx context.Context, e governance.Engagement) error {
	if e.Status == "" {
		e.Status = "active"
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO engagements (id, name, client_name, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.Name, e.ClientName, e.Status, toNanos(s.stamp(e.CreatedAt)))
	return wrapInsert("engagement", err)
}

// AddAssessment inserts an assessment.
func (s *SQLiteStore) AddAssessment(ctx context.Context, a governance.Assessment) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO assessments (id, engagement_id, framework, title, score, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.EngagementID, a.Framework, a.Title, a.Score, toNanos(s.stamp(a.CreatedAt)))
	return wrapInsert("assessment", err)
}

// AddAnswer inserts an answer.
func (s *SQLiteStore) AddAnswer(ctx context.Context, a governance.Answer) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO answers (id, assessment_id, engagement_id, question_id, value, comment, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.AssessmentID, a.EngagementID, a.QuestionID, a.Value, a.Comment, toNanos(s.stamp(a.UpdatedAt)))
	return wrapInsert("answer", err)
}

// AddDocument inserts document metadata.
func (s *SQLiteStore) AddDocument(ctx context.Context, d governance.Document) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO documents (id, engagement_id, filename, content_type, size, checksum, uploaded_by, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.EngagementID, d.Filename, d.ContentType, d.Size, d.Checksum, d.UploadedBy, toNanos(s.stamp(d.UploadedAt)))
	return wrapInsert("document", err)
}

// AddFinding inserts a finding.
func (s *SQLiteStore) AddFinding(ctx context.Context, f governance.Finding) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO findings (id, engagement_id, assessment_id, title, severity, recommendation, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.EngagementID, f.AssessmentID, f.Title, f.Severity, f.Recommendation, toNanos(s.stamp(f.CreatedAt)))
	return wrapInsert("finding", err)
}

// AddMember inserts an engagement membership.
func (s *SQLiteStore) AddMember(ctx context.Context, m governance.Member) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO members (engagement_id, user_id, role, created_at) VALUES (?, ?, ?, ?)`,
		m.EngagementID, m.UserID, m.Role, toNanos(s.stamp(m.AddedAt)))
	return wrapInsert("member", err)
}

// AppendLog inserts an operational log line.
func (s *SQLiteStore) AppendLog(ctx context.Context, l OperationalLog) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO operational_logs (id, engagement_id, level, message, created_at) VALUES (?, ?, ?, ?, ?)`,
		l.ID, l.EngagementID, l.Level, l.Message, toNanos(s.stamp(l.CreatedAt)))
	return wrapInsert("operational log", err)
}

// PutTemp stores a scratch value, replacing any previous value for the key.
func (s *SQLiteStore) PutTemp(ctx context.Context, e TempEntry) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO temp_data (key, value, created_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, created_at = excluded.created_at`,
		e.Key, e.Value, toNanos(s.stamp(e.CreatedAt)))
	return wrapInsert("temp entry", err)
}

// OperationalLogs returns the sweep target of the operational_logs category.
func (s *SQLiteStore) OperationalLogs() governance.Sweepable {
	return governance.SweepFunc(func(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
		return s.deleteExpired(ctx, "operational_logs", "id", cutoff, limit)
	})
}

// TempData returns the sweep target of the temp_data category.
func (s *SQLiteStore) TempData() governance.Sweepable {
	return governance.SweepFunc(func(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
		return s.deleteExpired(ctx, "temp_data", "key", cutoff, limit)
	})
}

// Count returns the number of rows in table. It is meant for diagnostics
// and tests.
func (s *SQLiteStore) Count(ctx context.Context, table string) (int64, error) {
	switch table {
	case "engagements", "assessments", "answers", "documents", "findings", "members", "operational_logs", "temp_data":
	default:
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		return 0, transient("count", err)
	}
	return n, nil
}

func (s *SQLiteStore) deleteExpired(ctx context.Context, table, key string, cutoff time.Time, limit int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE `+key+` IN (
		SELECT `+key+` FROM `+table+` WHERE created_at <= ? ORDER BY created_at LIMIT ?)`,
		toNanos(cutoff), limit)
	if err != nil {
		return 0, transient("delete_expired_"+table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, transient("delete_expired_"+table, err)
	}
	return n, nil
}

func (s *SQLiteStore) stamp(t time.Time) time.Time {
	if t.IsZero() {
		return s.clock()
	}
	return t
}

func wrapInsert(what string, err error) error {
	if err != nil {
		return fmt.Errorf("failed to insert %s: %w", what, err)
	}
	return nil
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
