package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/HendryAvila/lifecycle/internal/lifecycle"
)

var tables = map[lifecycle.Kind]string{
	lifecycle.KindRequirement:  "requirements",
	lifecycle.KindTask:         "tasks",
	lifecycle.KindArchitecture: "architecture",
}

// statusOf re-reads the persisted status of an entity. With lock set the
// row stays locked until the unit ends (Postgres).
func (u *unit) statusOf(kind lifecycle.Kind, id string, lock bool) (lifecycle.State, error) {
	table, ok := tables[kind]
	if !ok {
		return "", lifecycle.ValidateKind(kind)
	}
	q := fmt.Sprintf("SELECT status FROM %s WHERE id = ?", table)
	if lock {
		q += u.s.dialect.forUpdate()
	}
	var status lifecycle.State
	err := u.queryRow(q, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", lifecycle.NotFound(kind, id)
	}
	if err != nil {
		return "", fmt.Errorf("read %s %s: %w", kind, id, err)
	}
	return status, nil
}

// lockRequirements takes row locks on requirements in id order so that
// counter recomputation always sees the latest committed task rows.
func (u *unit) lockRequirements(ids []string) error {
	if len(ids) == 0 || u.s.dialect.forUpdate() == "" {
		return nil
	}
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	args := make([]any, len(sorted))
	for i, id := range sorted {
		args[i] = id
	}
	rows, err := u.query(
		`SELECT id FROM requirements WHERE id IN (`+placeholders(len(sorted))+`) ORDER BY id`+u.s.dialect.forUpdate(),
		args...,
	)
	if err != nil {
		return fmt.Errorf("lock requirements: %w", err)
	}
	return rows.Close()
}

func (u *unit) linkedRequirements(taskID string) ([]string, error) {
	rows, err := u.query(`SELECT requirement_id FROM requirement_tasks WHERE task_id = ? ORDER BY requirement_id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("linked requirements: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ─── Derived counters ────────────────────────────────────────────────────────

// recomputeCounters rebuilds task_count and tasks_completed from the link
// table. They are never incremented in place.
func (u *unit) recomputeCounters(reqIDs ...string) error {
	for _, id := range reqIDs {
		_, err := u.exec(
			`UPDATE requirements SET
				task_count = (SELECT COUNT(*) FROM requirement_tasks rt WHERE rt.requirement_id = requirements.id),
				tasks_completed = (SELECT COUNT(*) FROM requirement_tasks rt JOIN tasks t ON t.id = rt.task_id
					WHERE rt.requirement_id = requirements.id AND t.status = ?),
				updated_at = ?
			 WHERE id = ?`,
			lifecycle.StateComplete, now(), id,
		)
		if err != nil {
			return fmt.Errorf("recompute counters for %s: %w", id, err)
		}
	}
	return nil
}

// ─── Transitions ─────────────────────────────────────────────────────────────

// TransitionStatus moves an entity to a new status. A request for the
// current status succeeds with a nil event and writes nothing. The comment,
// if any, is stored as a review in the same unit.
func (s *Store) TransitionStatus(ctx context.Context, id string, to lifecycle.State, actor, comment string) (ev *Event, err error) {
	defer s.observe("transition_status", time.Now(), &err)

	kind, err := lifecycle.KindOf(id)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.ValidateState(kind, to); err != nil {
		return nil, err
	}

	err = s.withTx(ctx, "transition_status", func(u *unit) error {
		ev = nil
		from, err := u.statusOf(kind, id, true)
		if err != nil {
			return err
		}

		var reqIDs []string
		touchesComplete := kind == lifecycle.KindTask &&
			(from == lifecycle.StateComplete || to == lifecycle.StateComplete)
		if touchesComplete {
			if reqIDs, err = u.linkedRequirements(id); err != nil {
				return err
			}
			if err := u.lockRequirements(reqIDs); err != nil {
				return err
			}
		}

		if err := lifecycle.Validate(kind, from, to); err != nil {
			return withEntity(err, id)
		}
		if from == to {
			return nil
		}
		if err := u.checkPolicy(kind, id, from, to); err != nil {
			return err
		}

		table := tables[kind]
		if _, err := u.exec(fmt.Sprintf("UPDATE %s SET status = ?, updated_at = ? WHERE id = ?", table), to, now(), id); err != nil {
			return fmt.Errorf("update %s status: %w", kind, err)
		}
		if touchesComplete {
			if err := u.recomputeCounters(reqIDs...); err != nil {
				return err
			}
		}
		if strings.TrimSpace(comment) != "" {
			if err := u.addReview(kind, id, reviewerName(actor), comment); err != nil {
				return err
			}
		}
		ev, err = u.appendEvent(kind, id, EventStatusChanged, string(from), string(to), actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// checkPolicy applies the configurable gates that sit on top of the
// transition tables.
func (u *unit) checkPolicy(kind lifecycle.Kind, id string, from, to lifecycle.State) error {
	if kind != lifecycle.KindRequirement || to != lifecycle.StateValidated || !u.s.cfg.RequireCompleteTasks {
		return nil
	}
	rows, err := u.query(
		`SELECT t.id FROM requirement_tasks rt JOIN tasks t ON t.id = rt.task_id
		 WHERE rt.requirement_id = ? AND t.status <> ? ORDER BY t.id`,
		id, lifecycle.StateComplete,
	)
	if err != nil {
		return fmt.Errorf("incomplete tasks: %w", err)
	}
	defer rows.Close()
	var open []string
	for rows.Next() {
		var tid string
		if err := rows.Scan(&tid); err != nil {
			return err
		}
		open = append(open, tid)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(open) > 0 {
		return lifecycle.InvalidTransition(kind, id, from, to, "linked tasks not Complete: "+strings.Join(open, ", "))
	}
	return nil
}

// Supersede marks an architecture document Superseded by replacement in
// one unit. Supersession is single-hop: the replacement must not itself be
// superseded.
func (s *Store) Supersede(ctx context.Context, id, replacement, actor, comment string) (ev *Event, err error) {
	defer s.observe("supersede", time.Now(), &err)

	for _, ref := range []string{id, replacement} {
		if k, err := lifecycle.KindOf(ref); err != nil || k != lifecycle.KindArchitecture {
			return nil, lifecycle.Validationf("%q is not an architecture identifier", ref)
		}
	}
	if id == replacement {
		return nil, lifecycle.Validationf("%s cannot supersede itself", id)
	}

	err = s.withTx(ctx, "supersede", func(u *unit) error {
		ev = nil
		var (
			from    lifecycle.State
			current sql.NullString
		)
		err := u.queryRow(`SELECT status, superseded_by FROM architecture WHERE id = ?`+u.s.dialect.forUpdate(), id).
			Scan(&from, &current)
		if errors.Is(err, sql.ErrNoRows) {
			return lifecycle.NotFound(lifecycle.KindArchitecture, id)
		}
		if err != nil {
			return fmt.Errorf("read architecture %s: %w", id, err)
		}

		var (
			replStatus lifecycle.State
			replBy     sql.NullString
		)
		err = u.queryRow(`SELECT status, superseded_by FROM architecture WHERE id = ?`, replacement).Scan(&replStatus, &replBy)
		if errors.Is(err, sql.ErrNoRows) {
			return lifecycle.NotFound(lifecycle.KindArchitecture, replacement)
		}
		if err != nil {
			return fmt.Errorf("read architecture %s: %w", replacement, err)
		}
		if replStatus == lifecycle.StateSuperseded || replBy.Valid {
			return lifecycle.Validationf("replacement %s is itself superseded", replacement)
		}

		if from == lifecycle.StateSuperseded {
			if fromNull(current) == replacement {
				return nil
			}
			return &lifecycle.Error{
				Code:    lifecycle.CodeValidation,
				Message: fmt.Sprintf("already superseded by %s", fromNull(current)),
				Kind:    lifecycle.KindArchitecture,
				ID:      id,
			}
		}
		if err := lifecycle.Validate(lifecycle.KindArchitecture, from, lifecycle.StateSuperseded); err != nil {
			return withEntity(err, id)
		}

		_, err = u.exec(`UPDATE architecture SET status = ?, superseded_by = ?, updated_at = ? WHERE id = ?`,
			lifecycle.StateSuperseded, replacement, now(), id)
		if err != nil {
			return fmt.Errorf("supersede %s: %w", id, err)
		}
		if strings.TrimSpace(comment) != "" {
			if err := u.addReview(lifecycle.KindArchitecture, id, reviewerName(actor), comment); err != nil {
				return err
			}
		}
		ev, err = u.appendEvent(lifecycle.KindArchitecture, id, EventStatusChanged, string(from), string(lifecycle.StateSuperseded), actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// withEntity stamps the entity id onto a lifecycle error.
func withEntity(err error, id string) error {
	var le *lifecycle.Error
	if errors.As(err, &le) && le.ID == "" {
		le.ID = id
	}
	return err
}

func reviewerName(actor string) string {
	if actor == "" {
		return "system"
	}
	return actor
}
