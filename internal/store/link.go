package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/HendryAvila/lifecycle/internal/lifecycle"
)

// ─── Relationships ───────────────────────────────────────────────────────────

// LinkEntities records "a rel b". Entity kinds are inferred from the ids;
// rel may be empty when only one relationship exists between the kinds.
// "TASK implements REQ" and "ARCH addresses REQ" are stored from the
// requirement's side.
// A link that already exists is a no-op: created is false and no event is
// written. Hierarchy and blocking edges are checked for depth and cycles
// inside the same unit as the insert.
func (s *Store) LinkEntities(ctx context.Context, a, b string, rel lifecycle.Relationship, actor string) (created bool, err error) {
	defer s.observe("link_entities", time.Now(), &err)

	fromKind, err := lifecycle.KindOf(a)
	if err != nil {
		return false, err
	}
	toKind, err := lifecycle.KindOf(b)
	if err != nil {
		return false, err
	}
	if lifecycle.Reversed(fromKind, toKind, rel) {
		a, b = b, a
		fromKind, toKind = toKind, fromKind
	}
	if rel == "" {
		rel = lifecycle.DefaultRelationship(fromKind, toKind)
	}
	if err := lifecycle.ValidateRelationship(fromKind, toKind, rel); err != nil {
		return false, err
	}

	err = s.withTx(ctx, "link_entities", func(u *unit) error {
		created = false
		// Task rows are locked before requirement rows, in the same order
		// TransitionStatus takes them.
		if toKind == lifecycle.KindTask && fromKind == lifecycle.KindRequirement {
			if _, err := u.statusOf(toKind, b, true); err != nil {
				return err
			}
			if _, err := u.statusOf(fromKind, a, true); err != nil {
				return err
			}
		} else {
			if _, err := u.statusOf(fromKind, a, true); err != nil {
				return err
			}
			if _, err := u.statusOf(toKind, b, false); err != nil {
				return err
			}
		}

		var err error
		switch {
		case fromKind == lifecycle.KindRequirement && toKind == lifecycle.KindTask:
			created, err = u.linkRequirementTask(a, b, actor)
		case fromKind == lifecycle.KindRequirement && toKind == lifecycle.KindArchitecture:
			created, err = u.linkRequirementArchitecture(a, b, actor)
		case fromKind == lifecycle.KindTask && rel == lifecycle.RelParent:
			created, err = u.setTaskParent(a, b, actor)
		case fromKind == lifecycle.KindTask:
			created, err = u.linkTasks(a, b, rel, actor)
		case rel == lifecycle.RelParent:
			created, err = u.setRequirementParent(a, b, actor)
		default:
			created, err = u.linkRequirements(a, b, rel, actor)
		}
		return err
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// insertLink runs an idempotent insert and reports whether a row was added.
func (u *unit) insertLink(query string, args ...any) (bool, error) {
	res, err := u.exec(query+" ON CONFLICT DO NOTHING", args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (u *unit) linkRequirementTask(reqID, taskID, actor string) (bool, error) {
	if err := u.lockRequirements([]string{reqID}); err != nil {
		return false, err
	}
	created, err := u.insertLink(
		`INSERT INTO requirement_tasks (requirement_id, task_id, created_at) VALUES (?, ?, ?)`,
		reqID, taskID, now(),
	)
	if err != nil {
		return false, fmt.Errorf("link %s to %s: %w", reqID, taskID, err)
	}
	if !created {
		return false, nil
	}
	if err := u.recomputeCounters(reqID); err != nil {
		return false, err
	}
	return true, u.linkEvent(lifecycle.KindRequirement, reqID, lifecycle.RelImplements, taskID, actor)
}

func (u *unit) linkRequirementArchitecture(reqID, archID, actor string) (bool, error) {
	created, err := u.insertLink(
		`INSERT INTO requirement_architecture (requirement_id, architecture_id, created_at) VALUES (?, ?, ?)`,
		reqID, archID, now(),
	)
	if err != nil {
		return false, fmt.Errorf("link %s to %s: %w", reqID, archID, err)
	}
	if !created {
		return false, nil
	}
	return true, u.linkEvent(lifecycle.KindRequirement, reqID, lifecycle.RelAddresses, archID, actor)
}

func (u *unit) linkTasks(from, to string, rel lifecycle.Relationship, actor string) (bool, error) {
	blocking := lifecycle.Blocking(lifecycle.KindTask, lifecycle.KindTask, rel)
	if from == to && !blocking {
		return false, lifecycle.Validationf("%s cannot be linked to itself", from)
	}
	if blocking {
		if err := u.lock("task_dependencies"); err != nil {
			return false, err
		}
		g, err := u.loadDependencyGraph(
			`SELECT task_id, depends_on_task_id FROM task_dependencies WHERE dependency_type IN (?, ?)`,
			lifecycle.RelBlocks, lifecycle.RelRequires,
		)
		if err != nil {
			return false, err
		}
		if err := lifecycle.CheckDependency(g, lifecycle.KindTask, from, to); err != nil {
			return false, err
		}
	}
	created, err := u.insertLink(
		`INSERT INTO task_dependencies (task_id, depends_on_task_id, dependency_type, created_at) VALUES (?, ?, ?, ?)`,
		from, to, rel, now(),
	)
	if err != nil {
		return false, fmt.Errorf("link %s to %s: %w", from, to, err)
	}
	if !created {
		return false, nil
	}
	return true, u.linkEvent(lifecycle.KindTask, from, rel, to, actor)
}

func (u *unit) linkRequirements(from, to string, rel lifecycle.Relationship, actor string) (bool, error) {
	blocking := lifecycle.Blocking(lifecycle.KindRequirement, lifecycle.KindRequirement, rel)
	if from == to && !blocking {
		return false, lifecycle.Validationf("%s cannot be linked to itself", from)
	}
	if blocking {
		if err := u.lock("requirement_dependencies"); err != nil {
			return false, err
		}
		g, err := u.loadDependencyGraph(
			`SELECT requirement_id, depends_on_requirement_id FROM requirement_dependencies WHERE dependency_type = ?`,
			lifecycle.RelDepends,
		)
		if err != nil {
			return false, err
		}
		if err := lifecycle.CheckDependency(g, lifecycle.KindRequirement, from, to); err != nil {
			return false, err
		}
	}
	created, err := u.insertLink(
		`INSERT INTO requirement_dependencies (requirement_id, depends_on_requirement_id, dependency_type, created_at)
		 VALUES (?, ?, ?, ?)`,
		from, to, rel, now(),
	)
	if err != nil {
		return false, fmt.Errorf("link %s to %s: %w", from, to, err)
	}
	if !created {
		return false, nil
	}
	return true, u.linkEvent(lifecycle.KindRequirement, from, rel, to, actor)
}

// ─── Hierarchy edges ─────────────────────────────────────────────────────────

// setRequirementParent attaches child under parent. The child's subtree is
// re-levelled in the same unit.
func (u *unit) setRequirementParent(child, parent, actor string) (bool, error) {
	if err := u.lock("requirement_hierarchy"); err != nil {
		return false, err
	}
	arena, err := u.requirementArena()
	if err != nil {
		return false, err
	}
	if arena.Parent(child) == parent {
		return false, nil
	}
	levels, err := lifecycle.CheckRequirementParent(arena, child, parent)
	if err != nil {
		return false, err
	}

	_, err = u.exec(
		`INSERT INTO requirement_dependencies (requirement_id, depends_on_requirement_id, dependency_type, created_at)
		 VALUES (?, ?, ?, ?)`,
		child, parent, lifecycle.RelParent, now(),
	)
	if err != nil {
		return false, fmt.Errorf("link %s under %s: %w", child, parent, err)
	}
	ts := now()
	for id, lvl := range levels {
		if _, err := u.exec(`UPDATE requirements SET decomposition_level = ?, updated_at = ? WHERE id = ?`, lvl, ts, id); err != nil {
			return false, fmt.Errorf("set level of %s: %w", id, err)
		}
	}
	return true, u.linkEvent(lifecycle.KindRequirement, child, lifecycle.RelParent, parent, actor)
}

// setTaskParent points child.parent_task_id at parent. The walk to the
// root is unbounded because task hierarchies have no depth cap.
func (u *unit) setTaskParent(child, parent, actor string) (bool, error) {
	if err := u.lock("task_hierarchy"); err != nil {
		return false, err
	}
	arena, err := u.taskArena()
	if err != nil {
		return false, err
	}
	if arena.Parent(child) == parent {
		return false, nil
	}
	if err := lifecycle.CheckTaskParent(arena, child, parent); err != nil {
		return false, err
	}
	if _, err := u.exec(`UPDATE tasks SET parent_task_id = ?, updated_at = ? WHERE id = ?`, parent, now(), child); err != nil {
		return false, fmt.Errorf("set parent of %s: %w", child, err)
	}
	return true, u.linkEvent(lifecycle.KindTask, child, lifecycle.RelParent, parent, actor)
}

func (u *unit) linkEvent(kind lifecycle.Kind, from string, rel lifecycle.Relationship, to, actor string) error {
	_, err := u.appendEvent(kind, from, EventRelationshipAdded, string(rel), to, actor)
	return err
}

// ─── Arena loading ───────────────────────────────────────────────────────────

// requirementArena loads every requirement with its parent edge and level.
func (u *unit) requirementArena() (*lifecycle.Arena, error) {
	return loadRequirementArena(u.ctx, u.tx, u.s.dialect)
}

func (u *unit) taskArena() (*lifecycle.Arena, error) {
	return loadTaskArena(u.ctx, u.tx)
}

func loadRequirementArena(ctx context.Context, q querier, d Dialect) (*lifecycle.Arena, error) {
	rows, err := q.QueryContext(ctx, d.rebind(
		`SELECT r.id, COALESCE(p.depends_on_requirement_id, ''), r.decomposition_level
		 FROM requirements r
		 LEFT JOIN requirement_dependencies p ON p.requirement_id = r.id AND p.dependency_type = ?
		 ORDER BY r.id`),
		lifecycle.RelParent,
	)
	if err != nil {
		return nil, fmt.Errorf("load requirement hierarchy: %w", err)
	}
	defer rows.Close()

	arena := lifecycle.NewArena()
	for rows.Next() {
		var (
			id, parent string
			level      int
		)
		if err := rows.Scan(&id, &parent, &level); err != nil {
			return nil, err
		}
		arena.Add(id, parent, level)
	}
	return arena, rows.Err()
}

func loadTaskArena(ctx context.Context, q querier) (*lifecycle.Arena, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, parent_task_id FROM tasks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load task hierarchy: %w", err)
	}
	defer rows.Close()

	arena := lifecycle.NewArena()
	for rows.Next() {
		var (
			id     string
			parent sql.NullString
		)
		if err := rows.Scan(&id, &parent); err != nil {
			return nil, err
		}
		arena.Add(id, fromNull(parent), 0)
	}
	return arena, rows.Err()
}

func (u *unit) loadDependencyGraph(query string, args ...any) (*lifecycle.Graph, error) {
	rows, err := u.query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("load dependency graph: %w", err)
	}
	defer rows.Close()

	g := lifecycle.NewGraph()
	for rows.Next() {
		var from, to string
		if err := rows.Scan(&from, &to); err != nil {
			return nil, err
		}
		g.AddEdge(from, to)
	}
	return g, rows.Err()
}
