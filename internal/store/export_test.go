package store

import (
	"context"
	"database/sql"
)

// DB exposes the internal *sql.DB for test helpers in store_test.
// This file only compiles during `go test`.
func (s *Store) DB() *sql.DB {
	return s.db
}

// SetExecHook runs fn before every write statement issued inside a unit.
// A non-nil error from fn is returned in place of executing the statement.
func (s *Store) SetExecHook(fn func(query string) error) {
	s.hooks.exec = func(ctx context.Context, q querier, query string, args ...any) (sql.Result, error) {
		if err := fn(query); err != nil {
			return nil, err
		}
		return q.ExecContext(ctx, query, args...)
	}
}

// SetCommitHook replaces transaction commit.
func (s *Store) SetCommitHook(fn func(tx *sql.Tx) error) {
	s.hooks.commit = fn
}
