package store

import (
	"context"
	"fmt"
	"strings"
)

// currentSchemaVersion is bumped whenever schemaStatements changes shape.
const currentSchemaVersion = 1

// ─── Migrations ──────────────────────────────────────────────────────────────

func schemaStatements(d Dialect) []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS requirements (
			id                      TEXT    PRIMARY KEY,
			requirement_number      INTEGER NOT NULL,
			type                    TEXT    NOT NULL,
			version                 INTEGER NOT NULL DEFAULT 0,
			title                   TEXT    NOT NULL,
			status                  TEXT    NOT NULL,
			priority                TEXT    NOT NULL,
			risk_level              TEXT    NOT NULL,
			current_state           TEXT    NOT NULL,
			desired_state           TEXT    NOT NULL,
			functional_requirements TEXT    NOT NULL DEFAULT '[]',
			acceptance_criteria     TEXT    NOT NULL DEFAULT '[]',
			business_value          TEXT    NOT NULL DEFAULT '',
			author                  TEXT    NOT NULL DEFAULT '',
			decomposition_level     INTEGER NOT NULL DEFAULT 0 CHECK (decomposition_level BETWEEN 0 AND 3),
			complexity_score        INTEGER NOT NULL DEFAULT 0 CHECK (complexity_score BETWEEN 0 AND 10),
			scope_assessment        TEXT    NOT NULL DEFAULT '',
			task_count              INTEGER NOT NULL DEFAULT 0,
			tasks_completed         INTEGER NOT NULL DEFAULT 0,
			created_at              TEXT    NOT NULL,
			updated_at              TEXT    NOT NULL,
			UNIQUE (requirement_number, type, version)
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id                  TEXT    PRIMARY KEY,
			task_number         INTEGER NOT NULL,
			subtask_number      INTEGER NOT NULL DEFAULT 0,
			version             INTEGER NOT NULL DEFAULT 0,
			title               TEXT    NOT NULL,
			status              TEXT    NOT NULL,
			priority            TEXT    NOT NULL,
			effort              TEXT    NOT NULL DEFAULT '',
			user_story          TEXT    NOT NULL DEFAULT '',
			acceptance_criteria TEXT    NOT NULL DEFAULT '[]',
			assignee            TEXT    NOT NULL DEFAULT '',
			external_ref        TEXT    NOT NULL DEFAULT '',
			parent_task_id      TEXT    REFERENCES tasks(id),
			created_at          TEXT    NOT NULL,
			updated_at          TEXT    NOT NULL,
			UNIQUE (task_number, subtask_number, version)
		)`,
		`CREATE TABLE IF NOT EXISTS architecture (
			id                 TEXT    PRIMARY KEY,
			type               TEXT    NOT NULL,
			arch_number        INTEGER NOT NULL,
			component          TEXT    NOT NULL DEFAULT '',
			version            INTEGER NOT NULL DEFAULT 0,
			title              TEXT    NOT NULL,
			status             TEXT    NOT NULL,
			context            TEXT    NOT NULL,
			decision_outcome   TEXT    NOT NULL,
			decision_drivers   TEXT    NOT NULL DEFAULT '[]',
			considered_options TEXT    NOT NULL DEFAULT '[]',
			consequences       TEXT    NOT NULL DEFAULT '',
			authors            TEXT    NOT NULL DEFAULT '[]',
			superseded_by      TEXT    REFERENCES architecture(id),
			created_at         TEXT    NOT NULL,
			updated_at         TEXT    NOT NULL,
			UNIQUE (type, arch_number, component, version)
		)`,
		`CREATE TABLE IF NOT EXISTS requirement_tasks (
			requirement_id TEXT NOT NULL REFERENCES requirements(id),
			task_id        TEXT NOT NULL REFERENCES tasks(id),
			created_at     TEXT NOT NULL,
			PRIMARY KEY (requirement_id, task_id)
		)`,
		`CREATE TABLE IF NOT EXISTS requirement_architecture (
			requirement_id  TEXT NOT NULL REFERENCES requirements(id),
			architecture_id TEXT NOT NULL REFERENCES architecture(id),
			created_at      TEXT NOT NULL,
			PRIMARY KEY (requirement_id, architecture_id)
		)`,
		`CREATE TABLE IF NOT EXISTS task_dependencies (
			task_id            TEXT NOT NULL REFERENCES tasks(id),
			depends_on_task_id TEXT NOT NULL REFERENCES tasks(id),
			dependency_type    TEXT NOT NULL,
			created_at         TEXT NOT NULL,
			PRIMARY KEY (task_id, depends_on_task_id, dependency_type)
		)`,
		`CREATE TABLE IF NOT EXISTS requirement_dependencies (
			requirement_id            TEXT NOT NULL REFERENCES requirements(id),
			depends_on_requirement_id TEXT NOT NULL REFERENCES requirements(id),
			dependency_type           TEXT NOT NULL,
			created_at                TEXT NOT NULL,
			PRIMARY KEY (requirement_id, depends_on_requirement_id, dependency_type)
		)`,
		`CREATE TABLE IF NOT EXISTS lifecycle_events (
			id          ` + d.serial() + `,
			entity_type TEXT NOT NULL,
			entity_id   TEXT NOT NULL,
			event_type  TEXT NOT NULL,
			from_value  TEXT NOT NULL DEFAULT '',
			to_value    TEXT NOT NULL DEFAULT '',
			actor       TEXT NOT NULL DEFAULT '',
			request_id  TEXT NOT NULL,
			created_at  TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS reviews (
			id          ` + d.serial() + `,
			entity_type TEXT NOT NULL,
			entity_id   TEXT NOT NULL,
			reviewer    TEXT NOT NULL,
			comment     TEXT NOT NULL,
			created_at  TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_entity ON lifecycle_events(entity_type, entity_id)`,
		`CREATE INDEX IF NOT EXISTS idx_reviews_entity ON reviews(entity_type, entity_id)`,
		`CREATE INDEX IF NOT EXISTS idx_req_status ON requirements(status)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_task_id)`,
		`CREATE INDEX IF NOT EXISTS idx_arch_status ON architecture(status)`,
		`CREATE INDEX IF NOT EXISTS idx_req_tasks_task ON requirement_tasks(task_id)`,
		`CREATE INDEX IF NOT EXISTS idx_req_arch_arch ON requirement_architecture(architecture_id)`,
		`CREATE INDEX IF NOT EXISTS idx_req_deps_target ON requirement_dependencies(depends_on_requirement_id)`,
		`CREATE INDEX IF NOT EXISTS idx_task_deps_target ON task_dependencies(depends_on_task_id)`,
	}
}

func (s *Store) migrate(ctx context.Context) error {
	version, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if version >= currentSchemaVersion {
		return nil
	}

	for _, stmt := range schemaStatements(s.dialect) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			head := strings.SplitN(strings.TrimSpace(stmt), "(", 2)[0]
			return fmt.Errorf("execute %q: %w", head, err)
		}
	}

	if err := s.setSchemaVersion(ctx, currentSchemaVersion); err != nil {
		return err
	}
	s.log.Info("schema migrated", "dialect", s.dialect, "from", version, "to", currentSchemaVersion)
	return nil
}

// SchemaVersion returns the applied schema version, 0 for a fresh database.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	switch s.dialect {
	case DialectPostgres:
		if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
			return 0, fmt.Errorf("ensure schema_version: %w", err)
		}
		if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version); err != nil {
			return 0, fmt.Errorf("get schema version: %w", err)
		}
	default:
		if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
			return 0, fmt.Errorf("get user_version: %w", err)
		}
	}
	return version, nil
}

func (s *Store) setSchemaVersion(ctx context.Context, version int) error {
	var err error
	switch s.dialect {
	case DialectPostgres:
		_, err = s.db.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES ($1)`, version)
	default:
		_, err = s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version))
	}
	if err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	return nil
}
