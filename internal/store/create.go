package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/HendryAvila/lifecycle/internal/lifecycle"
)

// errIDCollision marks an insert that lost an identifier race. It never
// escapes the package: allocate retries and then reports IdentifierConflict.
var errIDCollision = errors.New("identifier collision")

// approvedForTasks are the requirement states tasks may be created against
// when RequireApprovedRequirements is on.
var approvedForTasks = map[lifecycle.State]bool{
	lifecycle.StateApproved:     true,
	lifecycle.StateArchitecture: true,
	lifecycle.StateReady:        true,
	lifecycle.StateImplemented:  true,
	lifecycle.StateValidated:    true,
}

// ─── Identifier allocation ───────────────────────────────────────────────────

// allocate runs create as a fresh unit until it stops colliding on the
// identifier, bounded by MaxAllocAttempts. On Postgres create takes an
// advisory lock on its numbering scope first, so collisions only come
// from writers outside the store.
func (s *Store) allocate(ctx context.Context, op string, kind lifecycle.Kind, create func(u *unit) (string, error)) (string, error) {
	for attempt := 1; attempt <= s.cfg.MaxAllocAttempts; attempt++ {
		var id string
		err := s.withTx(ctx, op, func(u *unit) error {
			var err error
			id, err = create(u)
			return err
		})
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, errIDCollision) {
			return "", err
		}
		s.retried(op, "allocation", attempt, err)
	}
	return "", lifecycle.IdentifierConflict(kind, s.cfg.MaxAllocAttempts)
}

// nextNumber returns MAX(column)+1 over rows matching where.
func (u *unit) nextNumber(table, column, where string, args ...any) (int, error) {
	var n int
	q := fmt.Sprintf("SELECT COALESCE(MAX(%s), 0) + 1 FROM %s", column, table)
	if where != "" {
		q += " WHERE " + where
	}
	if err := u.queryRow(q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("next %s.%s: %w", table, column, err)
	}
	return n, nil
}

// insertEntity runs an entity INSERT, translating a uniqueness failure
// into errIDCollision.
func (u *unit) insertEntity(query string, args ...any) error {
	if _, err := u.exec(query, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %v", errIDCollision, err)
		}
		return err
	}
	return nil
}

// ─── Requirements ────────────────────────────────────────────────────────────

// CreateRequirement validates p, allocates the next number for its type and
// inserts the requirement in Draft. When p.ParentID is set the requirement
// is attached under it in the same unit, so a rejected parent leaves
// nothing behind.
func (s *Store) CreateRequirement(ctx context.Context, p CreateRequirementParams) (id string, err error) {
	defer s.observe("create_requirement", time.Now(), &err)

	if p.Risk == "" {
		p.Risk = lifecycle.RiskMedium
	}
	if err := validateRequirement(p); err != nil {
		return "", err
	}
	if p.ParentID != "" {
		if k, err := lifecycle.KindOf(p.ParentID); err != nil || k != lifecycle.KindRequirement {
			return "", lifecycle.Validationf("parent %q is not a requirement identifier", p.ParentID)
		}
	}

	return s.allocate(ctx, "create_requirement", lifecycle.KindRequirement, func(u *unit) (string, error) {
		if err := u.lock("alloc:requirement:" + string(p.Type)); err != nil {
			return "", err
		}
		number, err := u.nextNumber("requirements", "requirement_number", "type = ?", p.Type)
		if err != nil {
			return "", err
		}
		id := lifecycle.RequirementID(number, p.Type, 0)
		ts := now()
		status := lifecycle.InitialState(lifecycle.KindRequirement)

		err = u.insertEntity(
			`INSERT INTO requirements (id, requirement_number, type, version, title, status, priority, risk_level,
				current_state, desired_state, functional_requirements, acceptance_criteria, business_value, author,
				decomposition_level, complexity_score, scope_assessment, task_count, tasks_completed, created_at, updated_at)
			 VALUES (?, ?, ?, 0, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, 0, 0, ?, ?)`,
			id, number, p.Type, p.Title, status, p.Priority, p.Risk,
			p.CurrentState, p.DesiredState, encodeList(p.FunctionalRequirements), encodeList(p.AcceptanceCriteria),
			p.BusinessValue, p.Author, p.ComplexityScore, p.Scope, ts, ts,
		)
		if err != nil {
			return "", err
		}
		if _, err := u.appendEvent(lifecycle.KindRequirement, id, EventCreated, "", string(status), p.Author); err != nil {
			return "", err
		}
		if p.ParentID != "" {
			if _, err := u.statusOf(lifecycle.KindRequirement, p.ParentID, false); err != nil {
				return "", err
			}
			if _, err := u.setRequirementParent(id, p.ParentID, p.Author); err != nil {
				return "", err
			}
		}
		return id, nil
	})
}

func validateRequirement(p CreateRequirementParams) error {
	if strings.TrimSpace(p.Title) == "" {
		return lifecycle.Validationf("title is required")
	}
	if strings.TrimSpace(p.CurrentState) == "" {
		return lifecycle.Validationf("current_state is required")
	}
	if strings.TrimSpace(p.DesiredState) == "" {
		return lifecycle.Validationf("desired_state is required")
	}
	checks := []error{
		lifecycle.ValidateRequirementType(p.Type),
		lifecycle.ValidatePriority(p.Priority),
		lifecycle.ValidateRisk(p.Risk),
		lifecycle.ValidateScope(p.Scope),
		lifecycle.ValidateComplexity(p.ComplexityScore),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	return nil
}

// ─── Tasks ───────────────────────────────────────────────────────────────────

// CreateTask inserts a task in Not Started. Top-level tasks take the next
// task number; subtasks reuse their parent's number and take the next free
// subnumber under it. Listed requirements are linked in the same unit.
func (s *Store) CreateTask(ctx context.Context, p CreateTaskParams) (id string, err error) {
	defer s.observe("create_task", time.Now(), &err)

	if strings.TrimSpace(p.Title) == "" {
		return "", lifecycle.Validationf("title is required")
	}
	if err := lifecycle.ValidatePriority(p.Priority); err != nil {
		return "", err
	}
	if err := lifecycle.ValidateEffort(p.Effort); err != nil {
		return "", err
	}
	reqIDs, err := uniqueIDs(p.RequirementIDs, lifecycle.KindRequirement)
	if err != nil {
		return "", err
	}
	if p.ParentTaskID != "" {
		if k, err := lifecycle.KindOf(p.ParentTaskID); err != nil || k != lifecycle.KindTask {
			return "", lifecycle.Validationf("parent %q is not a task identifier", p.ParentTaskID)
		}
	}

	return s.allocate(ctx, "create_task", lifecycle.KindTask, func(u *unit) (string, error) {
		if err := u.lockRequirements(reqIDs); err != nil {
			return "", err
		}
		if err := u.checkRequirementsForTask(reqIDs); err != nil {
			return "", err
		}
		if err := u.lock("alloc:task"); err != nil {
			return "", err
		}

		var (
			number, sub int
			err         error
		)
		if p.ParentTaskID != "" {
			if number, err = u.taskNumber(p.ParentTaskID); err != nil {
				return "", err
			}
			if sub, err = u.nextNumber("tasks", "subtask_number", "task_number = ?", number); err != nil {
				return "", err
			}
		} else if number, err = u.nextNumber("tasks", "task_number", ""); err != nil {
			return "", err
		}

		id := lifecycle.TaskID(number, sub, 0)
		ts := now()
		status := lifecycle.InitialState(lifecycle.KindTask)
		err = u.insertEntity(
			`INSERT INTO tasks (id, task_number, subtask_number, version, title, status, priority, effort,
				user_story, acceptance_criteria, assignee, external_ref, parent_task_id, created_at, updated_at)
			 VALUES (?, ?, ?, 0, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, number, sub, p.Title, status, p.Priority, p.Effort,
			p.UserStory, encodeList(p.AcceptanceCriteria), p.Assignee, p.ExternalRef, nullable(p.ParentTaskID), ts, ts,
		)
		if err != nil {
			return "", err
		}
		if _, err := u.appendEvent(lifecycle.KindTask, id, EventCreated, "", string(status), p.Actor); err != nil {
			return "", err
		}
		if p.ParentTaskID != "" {
			if err := u.linkEvent(lifecycle.KindTask, id, lifecycle.RelParent, p.ParentTaskID, p.Actor); err != nil {
				return "", err
			}
		}

		for _, reqID := range reqIDs {
			if _, err := u.linkRequirementTask(reqID, id, p.Actor); err != nil {
				return "", err
			}
		}
		return id, nil
	})
}

func (u *unit) taskNumber(id string) (int, error) {
	var n int
	err := u.queryRow(`SELECT task_number FROM tasks WHERE id = ?`+u.s.dialect.forUpdate(), id).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, lifecycle.NotFound(lifecycle.KindTask, id)
	}
	if err != nil {
		return 0, fmt.Errorf("read task %s: %w", id, err)
	}
	return n, nil
}

// checkRequirementsForTask verifies each requirement exists and, when the
// policy is on, has been approved.
func (u *unit) checkRequirementsForTask(ids []string) error {
	var rejected []string
	for _, id := range ids {
		status, err := u.statusOf(lifecycle.KindRequirement, id, false)
		if err != nil {
			return err
		}
		if u.s.cfg.RequireApprovedRequirements && !approvedForTasks[status] {
			rejected = append(rejected, fmt.Sprintf("%s (%s)", id, status))
		}
	}
	if len(rejected) > 0 {
		return lifecycle.Validationf("tasks can only be created for approved requirements: %s", strings.Join(rejected, ", "))
	}
	return nil
}

// ─── Architecture ────────────────────────────────────────────────────────────

// CreateArchitecture inserts an ADR in Proposed or a TDD/INTG document in
// Draft. Numbers are allocated per architecture type.
func (s *Store) CreateArchitecture(ctx context.Context, p CreateArchitectureParams) (id string, err error) {
	defer s.observe("create_architecture", time.Now(), &err)

	if err := lifecycle.ValidateArchitectureType(p.Type); err != nil {
		return "", err
	}
	if strings.TrimSpace(p.Title) == "" {
		return "", lifecycle.Validationf("title is required")
	}
	if strings.TrimSpace(p.Context) == "" {
		return "", lifecycle.Validationf("context is required")
	}
	if strings.TrimSpace(p.Decision) == "" {
		return "", lifecycle.Validationf("decision is required")
	}
	component := ""
	if p.Type != lifecycle.ArchADR {
		component, err = lifecycle.NormalizeComponent(p.Component)
		if err != nil {
			return "", err
		}
	}
	reqIDs, err := uniqueIDs(p.RequirementIDs, lifecycle.KindRequirement)
	if err != nil {
		return "", err
	}
	actor := p.Actor
	if actor == "" && len(p.Authors) > 0 {
		actor = p.Authors[0]
	}

	return s.allocate(ctx, "create_architecture", lifecycle.KindArchitecture, func(u *unit) (string, error) {
		for _, reqID := range reqIDs {
			if _, err := u.statusOf(lifecycle.KindRequirement, reqID, false); err != nil {
				return "", err
			}
		}
		if err := u.lock("alloc:architecture:" + string(p.Type)); err != nil {
			return "", err
		}
		number, err := u.nextNumber("architecture", "arch_number", "type = ?", p.Type)
		if err != nil {
			return "", err
		}
		id := lifecycle.ArchitectureID(p.Type, number, component, 0)
		ts := now()
		status := lifecycle.InitialArchitectureState(p.Type)

		err = u.insertEntity(
			`INSERT INTO architecture (id, type, arch_number, component, version, title, status, context,
				decision_outcome, decision_drivers, considered_options, consequences, authors, created_at, updated_at)
			 VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, p.Type, number, component, p.Title, status, p.Context,
			p.Decision, encodeList(p.DecisionDrivers), encodeList(p.ConsideredOptions), p.Consequences,
			encodeList(p.Authors), ts, ts,
		)
		if err != nil {
			return "", err
		}
		if _, err := u.appendEvent(lifecycle.KindArchitecture, id, EventCreated, "", string(status), actor); err != nil {
			return "", err
		}
		for _, reqID := range reqIDs {
			if _, err := u.linkRequirementArchitecture(reqID, id, actor); err != nil {
				return "", err
			}
		}
		return id, nil
	})
}

// uniqueIDs drops duplicates and checks every id is of the given kind.
func uniqueIDs(ids []string, kind lifecycle.Kind) ([]string, error) {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if id == "" || seen[id] {
			continue
		}
		k, err := lifecycle.KindOf(id)
		if err != nil {
			return nil, err
		}
		if k != kind {
			return nil, lifecycle.Validationf("%q is not a %s identifier", id, kind)
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}
