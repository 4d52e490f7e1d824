// Package store implements the Integrity Store: the persisted relational
// model for requirements, tasks and architecture decisions, and the atomic
// write procedures that keep transitions, hierarchy edges, derived counters
// and the audit log consistent.
//
// Every mutating operation runs as one atomic unit. Inside the unit the
// current state is re-read (and row-locked on Postgres), validated with the
// lifecycle package, written, and audited before commit. Nothing is cached
// between calls.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	_ "modernc.org/sqlite"

	"github.com/HendryAvila/lifecycle/internal/lifecycle"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds store configuration.
type Config struct {
	// Dialect selects the backing database.
	Dialect Dialect
	// DataDir holds lifecycle.db when Dialect is sqlite and Path is empty.
	DataDir string
	// Path is an explicit SQLite file path.
	Path string
	// DSN is the Postgres connection string.
	DSN string

	// MaxTxAttempts bounds retries of a unit that lost a write race.
	MaxTxAttempts int
	// MaxAllocAttempts bounds identifier allocation retries.
	MaxAllocAttempts int

	// RequireApprovedRequirements rejects tasks created against
	// requirements that have not been approved yet.
	RequireApprovedRequirements bool
	// RequireCompleteTasks rejects moving a requirement to Validated while
	// any linked task is not Complete.
	RequireCompleteTasks bool

	Logger *slog.Logger
}

// DefaultConfig returns the default configuration: SQLite under ~/.lifecycle.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Dialect:              DialectSQLite,
		DataDir:              filepath.Join(home, ".lifecycle"),
		MaxTxAttempts:        5,
		MaxAllocAttempts:     5,
		RequireCompleteTasks: true,
	}
}

// ─── Collaborators ───────────────────────────────────────────────────────────

// MetricsRecorder receives one observation per public store operation.
type MetricsRecorder interface {
	ObserveOperation(op, result string, d time.Duration)
	IncRetry(reason string)
}

// EventSink receives the audit events of a unit after it commits.
// Failures are logged and never affect the committed mutation.
type EventSink interface {
	Publish(ctx context.Context, events []Event) error
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is the Integrity Store backed by SQLite or Postgres.
type Store struct {
	db      *sql.DB
	cfg     Config
	dialect Dialect
	log     *slog.Logger
	metrics MetricsRecorder
	sink    EventSink
	hooks   storeHooks
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type storeHooks struct {
	exec   func(ctx context.Context, q querier, query string, args ...any) (sql.Result, error)
	commit func(tx *sql.Tx) error
}

// New opens the configured database, applies pragmas (SQLite) and runs
// migrations.
func New(cfg Config) (*Store, error) {
	if cfg.Dialect == "" {
		cfg.Dialect = DialectSQLite
	}
	if cfg.MaxTxAttempts <= 0 {
		cfg.MaxTxAttempts = 5
	}
	if cfg.MaxAllocAttempts <= 0 {
		cfg.MaxAllocAttempts = 5
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		db  *sql.DB
		err error
	)
	switch cfg.Dialect {
	case DialectSQLite:
		db, err = openSQLite(cfg)
	case DialectPostgres:
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("store: unknown dialect %q", cfg.Dialect)
	}
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, cfg: cfg, dialect: cfg.Dialect, log: logger}
	if err := s.migrate(context.Background()); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("store: migration: %w", err)
	}
	return s, nil
}

func openSQLite(cfg Config) (*sql.DB, error) {
	path := cfg.Path
	if path == "" {
		path = filepath.Join(cfg.DataDir, "lifecycle.db")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}

	db, err := openDB("sqlite", path+"?_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	// Single writer: units queue on the connection instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close() //nolint:errcheck
			return nil, fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}
	return db, nil
}

func openPostgres(cfg Config) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("store: postgres dialect requires a DSN")
	}
	db, err := openDB("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}
	return db, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dialect returns the active dialect.
func (s *Store) Dialect() Dialect { return s.dialect }

// SetMetrics injects an optional MetricsRecorder.
func (s *Store) SetMetrics(m MetricsRecorder) { s.metrics = m }

// SetEventSink injects an optional post-commit EventSink.
func (s *Store) SetEventSink(sink EventSink) { s.sink = sink }

// ─── Atomic units ────────────────────────────────────────────────────────────

// unit is one open transaction plus the events it will emit on commit.
type unit struct {
	s         *Store
	ctx       context.Context
	tx        *sql.Tx
	requestID string
	events    []Event
}

func (u *unit) exec(query string, args ...any) (sql.Result, error) {
	query = u.s.dialect.rebind(query)
	if u.s.hooks.exec != nil {
		return u.s.hooks.exec(u.ctx, u.tx, query, args...)
	}
	return u.tx.ExecContext(u.ctx, query, args...)
}

func (u *unit) query(query string, args ...any) (*sql.Rows, error) {
	return u.tx.QueryContext(u.ctx, u.s.dialect.rebind(query), args...)
}

func (u *unit) queryRow(query string, args ...any) *sql.Row {
	return u.tx.QueryRowContext(u.ctx, u.s.dialect.rebind(query), args...)
}

// lock serializes units touching the same named resource. SQLite already
// has a single writer, so this is a no-op there.
func (u *unit) lock(name string) error {
	stmt := u.s.dialect.advisoryLock()
	if stmt == "" {
		return nil
	}
	if _, err := u.tx.ExecContext(u.ctx, stmt, name); err != nil {
		return fmt.Errorf("lock %s: %w", name, err)
	}
	return nil
}

func (s *Store) commit(tx *sql.Tx) error {
	if s.hooks.commit != nil {
		return s.hooks.commit(tx)
	}
	return tx.Commit()
}

// withTx runs fn as one atomic unit. Units that lose a write race are
// retried from scratch up to MaxTxAttempts, then reported as
// ConcurrencyConflict. Any other error rolls back and is returned as is.
func (s *Store) withTx(ctx context.Context, op string, fn func(u *unit) error) error {
	for attempt := 1; ; attempt++ {
		u, err := s.begin(ctx)
		if err != nil {
			if isRetryable(err) && attempt < s.cfg.MaxTxAttempts {
				s.retried(op, "begin", attempt, err)
				continue
			}
			if isRetryable(err) {
				return lifecycle.ConcurrencyConflict(op, attempt)
			}
			return fmt.Errorf("store: %s: begin: %w", op, err)
		}

		err = fn(u)
		if err == nil {
			err = s.commit(u.tx)
			if err == nil {
				s.log.Debug("unit committed", "op", op, "request_id", u.requestID, "events", len(u.events))
				s.publish(ctx, u.events)
				return nil
			}
		}
		u.tx.Rollback() //nolint:errcheck

		if !isRetryable(err) {
			return err
		}
		if attempt >= s.cfg.MaxTxAttempts {
			return lifecycle.ConcurrencyConflict(op, attempt)
		}
		s.retried(op, "conflict", attempt, err)
	}
}

func (s *Store) begin(ctx context.Context) (*unit, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &unit{s: s, ctx: ctx, tx: tx, requestID: uuid.NewString()}, nil
}

func (s *Store) retried(op, reason string, attempt int, err error) {
	s.log.Warn("retrying unit", "op", op, "reason", reason, "attempt", attempt, "error", err)
	if s.metrics != nil {
		s.metrics.IncRetry(reason)
	}
}

func (s *Store) publish(ctx context.Context, events []Event) {
	if s.sink == nil || len(events) == 0 {
		return
	}
	if err := s.sink.Publish(ctx, events); err != nil {
		s.log.Warn("event publish failed", "events", len(events), "error", err)
	}
}

// observe records the outcome of a public operation. Call as
// defer s.observe("op", time.Now(), &err).
func (s *Store) observe(op string, start time.Time, errp *error) {
	if s.metrics == nil {
		return
	}
	result := "ok"
	if errp != nil && *errp != nil {
		result = "error"
		if code := lifecycle.CodeOf(*errp); code != "" {
			result = strings.ToLower(string(code))
		}
	}
	s.metrics.ObserveOperation(op, result, time.Since(start))
}

// ─── Driver error classification ─────────────────────────────────────────────

// isUniqueViolation reports a unique or primary key constraint failure.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}

// isRetryable reports a serialization, deadlock or lock-timeout failure.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return true
		}
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}
