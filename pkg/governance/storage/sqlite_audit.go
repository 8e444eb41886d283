package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"maturity-hq/steward/pkg/governance"
)

const auditColumns = `id, event_type, ts, actor, engagement_id, details, correlation_id, key_id, integrity_tag`

// SQLiteAuditStore implements governance.AuditStore using SQLite. Rows are
// never updated; a trigger rejects UPDATE statements.
type SQLiteAuditStore struct {
	owner  *SQLiteDB
	db     *sql.DB
	logger *slog.Logger
}

// Append persists an event.
func (s *SQLiteAuditStore) Append(ctx context.Context, ev *governance.AuditEvent) error {
	details, err := json.Marshal(ev.Details)
	if err != nil {
		return governance.NewStorageError("sqlite", "append", fmt.Errorf("failed to marshal details: %w", err))
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO audit_events (`+auditColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, string(ev.EventType), toNanos(ev.Timestamp), ev.Actor, ev.EngagementID,
		string(details), ev.CorrelationID, ev.KeyID, ev.IntegrityTag,
	)
	if err != nil {
		return governance.NewStorageError("sqlite", "append", err)
	}
	return nil
}

// Get returns an event by id.
func (s *SQLiteAuditStore) Get(ctx context.Context, id string) (*governance.AuditEvent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+auditColumns+` FROM audit_events WHERE id = ?`, id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("audit event %s: %w", id, governance.ErrNotFound)
	}
	if err != nil {
		return nil, governance.NewStorageError("sqlite", "get", err)
	}
	return ev, nil
}

// Query returns events matching q ordered by timestamp.
func (s *SQLiteAuditStore) Query(ctx context.Context, q *governance.AuditQuery) ([]*governance.AuditEvent, error) {
	if q == nil {
		q = &governance.AuditQuery{}
	}
	where, args := buildAuditWhere(q)

	order := "ASC"
	if strings.EqualFold(q.SortOrder, "desc") {
		order = "DESC"
	}
	query := `SELECT ` + auditColumns + ` FROM audit_events` + where +
		` ORDER BY ts ` + order + `, id ` + order
	if q.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, q.Limit, q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, governance.NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	var events []*governance.AuditEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, governance.NewStorageError("sqlite", "query", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, governance.NewStorageError("sqlite", "query", err)
	}
	return events, nil
}

// Count returns the number of events matching q, ignoring pagination.
func (s *SQLiteAuditStore) Count(ctx context.Context, q *governance.AuditQuery) (int64, error) {
	if q == nil {
		q = &governance.AuditQuery{}
	}
	where, args := buildAuditWhere(q)
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_events`+where, args...).Scan(&n); err != nil {
		return 0, governance.NewStorageError("sqlite", "count", err)
	}
	return n, nil
}

// Delete removes every event matching q.
func (s *SQLiteAuditStore) Delete(ctx context.Context, q *governance.AuditQuery) (int64, error) {
	if q == nil {
		return 0, governance.NewStorageError("sqlite", "delete", errors.New("delete requires a query"))
	}
	where, args := buildAuditWhere(q)
	if where == "" {
		return 0, governance.NewStorageError("sqlite", "delete", errors.New("refusing unfiltered delete"))
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_events`+where, args...)
	if err != nil {
		return 0, governance.NewStorageError("sqlite", "delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, governance.NewStorageError("sqlite", "delete", err)
	}
	s.logger.Info("audit events deleted", "count", n)
	return n, nil
}

// DeleteExpired removes up to limit events with timestamp at or before cutoff.
func (s *SQLiteAuditStore) DeleteExpired(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_events WHERE id IN (
		SELECT id FROM audit_events WHERE ts <= ? ORDER BY ts ASC LIMIT ?)`,
		toNanos(cutoff), limit)
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
func (s *SQLiteAuditStore) Ping(ctx context.Context) error {
	return s.owner.Ping(ctx)
}

// Close closes the shared database.
func (s *SQLiteAuditStore) Close() error {
	return s.owner.Close()
}

// buildAuditWhere builds a WHERE clause from query filters.
func buildAuditWhere(q *governance.AuditQuery) (string, []any) {
	var conditions []string
	var args []any

	if q.StartTime != nil {
		conditions = append(conditions, "ts >= ?")
		args = append(args, toNanos(*q.StartTime))
	}
	if q.EndTime != nil {
		conditions = append(conditions, "ts <= ?")
		args = append(args, toNanos(*q.EndTime))
	}
	if q.EngagementID != "" {
		conditions = append(conditions, "engagement_id = ?")
		args = append(args, q.EngagementID)
	}
	if len(q.EventTypes) > 0 {
		conditions = append(conditions, "event_type IN ("+placeholders(len(q.EventTypes))+")")
		for _, et := range q.EventTypes {
			args = append(args, string(et))
		}
	}
	if len(q.ExcludeEventTypes) > 0 {
		conditions = append(conditions, "event_type NOT IN ("+placeholders(len(q.ExcludeEventTypes))+")")
		for _, et := range q.ExcludeEventTypes {
			args = append(args, string(et))
		}
	}
	if q.CorrelationID != "" {
		conditions = append(conditions, "correlation_id = ?")
		args = append(args, q.CorrelationID)
	}
	if q.ExcludeCorrelationID != "" {
		conditions = append(conditions, "correlation_id <> ?")
		args = append(args, q.ExcludeCorrelationID)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func scanEvent(row rowScanner) (*governance.AuditEvent, error) {
	var (
		ev        governance.AuditEvent
		eventType string
		ts        int64
		details   sql.NullString
	)
	err := row.Scan(&ev.ID, &eventType, &ts, &ev.Actor, &ev.EngagementID,
		&details, &ev.CorrelationID, &ev.KeyID, &ev.IntegrityTag)
	if err != nil {
		return nil, err
	}
	ev.EventType = governance.EventType(eventType)
	ev.Timestamp = fromNanos(ts)
	if ev.Details, err = unmarshalMap(details); err != nil {
		return nil, fmt.Errorf("failed to decode details of %s: %w", ev.ID, err)
	}
	return &ev, nil
}
