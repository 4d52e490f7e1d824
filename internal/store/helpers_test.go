package store_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/lifecycle/internal/lifecycle"
	"github.com/HendryAvila/lifecycle/internal/store"
)

const postgresDSNEnv = "LIFECYCLE_TEST_POSTGRES_DSN"

// newTestStore creates a SQLite-backed Store in a temp directory.
func newTestStore(t *testing.T, opts ...func(*store.Config)) *store.Store {
	t.Helper()
	cfg := store.DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "lifecycle.db")
	for _, o := range opts {
		o(&cfg)
	}
	s, err := store.New(cfg)
	require.NoError(t, err, "failed to create store")
	t.Cleanup(func() { s.Close() })
	return s
}

// newPostgresStore creates a Store in a throwaway schema, or skips when no
// Postgres DSN is configured.
func newPostgresStore(t *testing.T, opts ...func(*store.Config)) *store.Store {
	t.Helper()
	dsn := os.Getenv(postgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", postgresDSNEnv)
	}

	admin, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	schema := "lc_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	_, err = admin.Exec("CREATE SCHEMA " + schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		admin.Exec("DROP SCHEMA " + schema + " CASCADE") //nolint:errcheck
		admin.Close()
	})

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	cfg := store.DefaultConfig()
	cfg.Dialect = store.DialectPostgres
	cfg.DSN = dsn + sep + "search_path=" + schema
	for _, o := range opts {
		o(&cfg)
	}
	s, err := store.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// forEachDialect runs fn against SQLite and, when configured, Postgres.
func forEachDialect(t *testing.T, fn func(t *testing.T, s *store.Store)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, newTestStore(t)) })
	t.Run("postgres", func(t *testing.T) { fn(t, newPostgresStore(t)) })
}

func withPolicy(approved, complete bool) func(*store.Config) {
	return func(c *store.Config) {
		c.RequireApprovedRequirements = approved
		c.RequireCompleteTasks = complete
	}
}

func mustRequirement(t *testing.T, s *store.Store, typ lifecycle.RequirementType) string {
	t.Helper()
	id, err := s.CreateRequirement(context.Background(), store.CreateRequirementParams{
		Type:         typ,
		Title:        "Users can reset their password",
		Priority:     lifecycle.PriorityP1,
		CurrentState: "Password resets go through support",
		DesiredState: "Users reset passwords from the login page",
		Author:       "alice",
	})
	require.NoError(t, err)
	return id
}

func mustTask(t *testing.T, s *store.Store, parent string, reqIDs ...string) string {
	t.Helper()
	id, err := s.CreateTask(context.Background(), store.CreateTaskParams{
		Title:          "Build reset form",
		Priority:       lifecycle.PriorityP2,
		ParentTaskID:   parent,
		RequirementIDs: reqIDs,
		Actor:          "bob",
	})
	require.NoError(t, err)
	return id
}

func mustADR(t *testing.T, s *store.Store, reqIDs ...string) string {
	t.Helper()
	id, err := s.CreateArchitecture(context.Background(), store.CreateArchitectureParams{
		Type:           lifecycle.ArchADR,
		Title:          "Use signed reset tokens",
		Context:        "Reset links must expire",
		Decision:       "HMAC-signed tokens with a 30 minute TTL",
		Authors:        []string{"carol"},
		RequirementIDs: reqIDs,
	})
	require.NoError(t, err)
	return id
}

func mustTransition(t *testing.T, s *store.Store, id string, to lifecycle.State) {
	t.Helper()
	_, err := s.TransitionStatus(context.Background(), id, to, "tester", "")
	require.NoError(t, err, "transition %s -> %s", id, to)
}

// walk applies a sequence of transitions.
func walk(t *testing.T, s *store.Store, id string, states ...lifecycle.State) {
	t.Helper()
	for _, st := range states {
		mustTransition(t, s, id, st)
	}
}

func statusOf(t *testing.T, s *store.Store, id string) lifecycle.State {
	t.Helper()
	kind, err := lifecycle.KindOf(id)
	require.NoError(t, err)
	table := map[lifecycle.Kind]string{
		lifecycle.KindRequirement:  "requirements",
		lifecycle.KindTask:         "tasks",
		lifecycle.KindArchitecture: "architecture",
	}[kind]
	var st lifecycle.State
	q := fmt.Sprintf("SELECT status FROM %s WHERE id = '%s'", table, id)
	require.NoError(t, s.DB().QueryRow(q).Scan(&st))
	return st
}

func forceStatus(t *testing.T, s *store.Store, id string, st lifecycle.State) {
	t.Helper()
	kind, err := lifecycle.KindOf(id)
	require.NoError(t, err)
	table := map[lifecycle.Kind]string{
		lifecycle.KindRequirement:  "requirements",
		lifecycle.KindTask:         "tasks",
		lifecycle.KindArchitecture: "architecture",
	}[kind]
	_, err = s.DB().Exec(fmt.Sprintf("UPDATE %s SET status = '%s' WHERE id = '%s'", table, st, id))
	require.NoError(t, err)
}

func history(t *testing.T, s *store.Store, id string) []store.Event {
	t.Helper()
	events, err := s.History(context.Background(), id)
	require.NoError(t, err)
	return events
}

func countEvents(events []store.Event, kind store.EventKind) int {
	n := 0
	for _, ev := range events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func requirement(t *testing.T, s *store.Store, id string) *store.Requirement {
	t.Helper()
	r, err := s.GetRequirement(context.Background(), id)
	require.NoError(t, err)
	return r
}
