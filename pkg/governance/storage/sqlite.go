package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"maturity-hq/steward/pkg/governance"
)

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections to the database.
	// Writes are serialized by SQLite regardless; a single connection keeps
	// compare-and-swap claims free of SQLITE_BUSY retries.
	// Default: 1
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 1
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/governance.db",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteDB is a governance database holding both the job store and the
// audit event store.
type SQLiteDB struct {
	db        *sql.DB
	config    *SQLiteConfig
	logger    *slog.Logger
	closeOnce sync.Once
	closeErr  error
}

// OpenSQLite opens the database, enables WAL mode if configured and creates
// the schema.
func OpenSQLite(config *SQLiteConfig) (*SQLiteDB, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.MaxOpenConns <= 0 {
		config.MaxOpenConns = 1
	}
	if config.MaxIdleConns <= 0 {
		config.MaxIdleConns = 1
	}

	logger := slog.Default().With("component", "governance.storage.sqlite")

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, governance.NewStorageError("sqlite", "open", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &SQLiteDB{
		db:     db,
		config: config,
		logger: logger,
	}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite governance storage initialized",
		"path", config.Path,
		"wal_mode", config.WALMode,
		"max_open_conns", config.MaxOpenConns,
	)
	return s, nil
}

// initialize sets up the database schema and enables WAL mode.
func (s *SQLiteDB) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return governance.NewStorageError("sqlite", "enable_wal", err)
		}
		s.logger.Debug("WAL mode enabled")
	}

	busyTimeoutMs := s.config.BusyTimeout.Milliseconds()
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", busyTimeoutMs)); err != nil {
		return governance.NewStorageError("sqlite", "set_busy_timeout", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return governance.NewStorageError("sqlite", "create_schema", err)
	}

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return governance.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return governance.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return governance.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	s.logger.Debug("schema version verified", "version", version)
	return nil
}

// Jobs returns the job store backed by this database.
func (s *SQLiteDB) Jobs() *SQLiteJobStore {
	return &SQLiteJobStore{owner: s, db: s.db, logger: s.logger.With("store", "jobs")}
}

// Audit returns the audit event store backed by this database.
func (s *SQLiteDB) Audit() *SQLiteAuditStore {
	return &SQLiteAuditStore{owner: s, db: s.db, logger: s.logger.With("store", "audit")}
}

// DB exposes the underlying handle for maintenance tooling.
func (s *SQLiteDB) DB() *sql.DB {
	return s.db
}

// Ping checks that the database is reachable.
func (s *SQLiteDB) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return governance.NewStorageError("sqlite", "ping", err)
	}
	return nil
}

// Close closes the database. It is safe to call more than once; both stores
// share the handle.
func (s *SQLiteDB) Close() error {
	s.closeOnce.Do(func() {
		s.logger.Info("closing SQLite governance storage")
		if err := s.db.Close(); err != nil {
			s.closeErr = governance.NewStorageError("sqlite", "close", err)
		}
	})
	return s.closeErr
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullableNanos(t *time.Time) any {
	if t == nil {
		return nil
	}
	return toNanos(*t)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func marshalMap(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// unmarshalMap decodes numbers as json.Number so re-encoding is byte-stable.
func unmarshalMap(s sql.NullString) (map[string]any, error) {
	if !s.Valid || s.String == "" || s.String == "null" {
		return nil, nil
	}
	dec := json.NewDecoder(strings.NewReader(s.String))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
