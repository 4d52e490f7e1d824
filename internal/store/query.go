package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/HendryAvila/lifecycle/internal/lifecycle"
)

const (
	requirementColumns = `id, requirement_number, type, version, title, status, priority, risk_level,
		current_state, desired_state, functional_requirements, acceptance_criteria, business_value, author,
		decomposition_level, complexity_score, scope_assessment, task_count, tasks_completed, created_at, updated_at`
	taskColumns = `id, task_number, subtask_number, version, title, status, priority, effort,
		user_story, acceptance_criteria, assignee, external_ref, parent_task_id, created_at, updated_at`
	architectureColumns = `id, type, arch_number, component, version, title, status, context,
		decision_outcome, decision_drivers, considered_options, consequences, authors, superseded_by, created_at, updated_at`
)

type scanner interface {
	Scan(dest ...any) error
}

func scanRequirement(sc scanner) (Requirement, error) {
	var (
		r          Requirement
		funcs, acc string
	)
	err := sc.Scan(&r.ID, &r.Number, &r.Type, &r.Version, &r.Title, &r.Status, &r.Priority, &r.Risk,
		&r.CurrentState, &r.DesiredState, &funcs, &acc, &r.BusinessValue, &r.Author,
		&r.DecompositionLevel, &r.ComplexityScore, &r.Scope, &r.TaskCount, &r.TasksCompleted, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return r, err
	}
	r.FunctionalRequirements = decodeList(funcs)
	r.AcceptanceCriteria = decodeList(acc)
	return r, nil
}

func scanTask(sc scanner) (Task, error) {
	var (
		t      Task
		acc    string
		parent sql.NullString
	)
	err := sc.Scan(&t.ID, &t.Number, &t.Subnumber, &t.Version, &t.Title, &t.Status, &t.Priority, &t.Effort,
		&t.UserStory, &acc, &t.Assignee, &t.ExternalRef, &parent, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	t.AcceptanceCriteria = decodeList(acc)
	t.ParentTaskID = fromNull(parent)
	return t, nil
}

func scanArchitecture(sc scanner) (Architecture, error) {
	var (
		a                      Architecture
		drivers, opts, authors string
		supersededBy           sql.NullString
	)
	err := sc.Scan(&a.ID, &a.Type, &a.Number, &a.Component, &a.Version, &a.Title, &a.Status, &a.Context,
		&a.Decision, &drivers, &opts, &a.Consequences, &authors, &supersededBy, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return a, err
	}
	a.DecisionDrivers = decodeList(drivers)
	a.ConsideredOptions = decodeList(opts)
	a.Authors = decodeList(authors)
	a.SupersededBy = fromNull(supersededBy)
	return a, nil
}

// ─── Single entity reads ─────────────────────────────────────────────────────

// GetRequirement returns one requirement.
func (s *Store) GetRequirement(ctx context.Context, id string) (*Requirement, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT `+requirementColumns+` FROM requirements WHERE id = ?`), id)
	r, err := scanRequirement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, lifecycle.NotFound(lifecycle.KindRequirement, id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get requirement: %w", err)
	}
	return &r, nil
}

// GetTask returns one task.
func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`), id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, lifecycle.NotFound(lifecycle.KindTask, id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get task: %w", err)
	}
	return &t, nil
}

// GetArchitecture returns one architecture document.
func (s *Store) GetArchitecture(ctx context.Context, id string) (*Architecture, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT `+architectureColumns+` FROM architecture WHERE id = ?`), id)
	a, err := scanArchitecture(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, lifecycle.NotFound(lifecycle.KindArchitecture, id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get architecture: %w", err)
	}
	return &a, nil
}

// ─── Details ─────────────────────────────────────────────────────────────────

// RequirementDetails is a requirement with everything linked to it.
type RequirementDetails struct {
	Requirement       Requirement    `json:"requirement"`
	CompletionPercent float64        `json:"completion_percent"`
	Tasks             []Task         `json:"tasks"`
	Architecture      []Architecture `json:"architecture"`
	Links             []Link         `json:"links"`
	Reviews           []Review       `json:"reviews"`
}

// TaskDetails is a task with its requirements, subtasks and links.
type TaskDetails struct {
	Task         Task          `json:"task"`
	Requirements []Requirement `json:"requirements"`
	Subtasks     []Task        `json:"subtasks"`
	Links        []Link        `json:"links"`
	Reviews      []Review      `json:"reviews"`
}

// ArchitectureDetails is an architecture document with its requirements.
type ArchitectureDetails struct {
	Architecture Architecture  `json:"architecture"`
	Requirements []Requirement `json:"requirements"`
	Links        []Link        `json:"links"`
	Reviews      []Review      `json:"reviews"`
}

// RequirementDetailsByID returns a requirement with its relationships.
func (s *Store) RequirementDetailsByID(ctx context.Context, id string) (*RequirementDetails, error) {
	r, err := s.GetRequirement(ctx, id)
	if err != nil {
		return nil, err
	}
	d := &RequirementDetails{Requirement: *r, CompletionPercent: r.CompletionPercent()}
	if d.Tasks, err = s.QueryTasks(ctx, TaskFilter{RequirementID: id, OrderBy: "id"}); err != nil {
		return nil, err
	}
	if d.Architecture, err = s.QueryArchitecture(ctx, ArchitectureFilter{RequirementID: id, OrderBy: "id"}); err != nil {
		return nil, err
	}
	if d.Links, err = s.Relationships(ctx, id); err != nil {
		return nil, err
	}
	if d.Reviews, err = s.Reviews(ctx, id); err != nil {
		return nil, err
	}
	return d, nil
}

// TaskDetailsByID returns a task with its relationships.
func (s *Store) TaskDetailsByID(ctx context.Context, id string) (*TaskDetails, error) {
	t, err := s.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	d := &TaskDetails{Task: *t}
	if d.Requirements, err = s.QueryRequirements(ctx, RequirementFilter{TaskID: id, OrderBy: "id"}); err != nil {
		return nil, err
	}
	if d.Subtasks, err = s.QueryTasks(ctx, TaskFilter{ParentTaskID: id, OrderBy: "id"}); err != nil {
		return nil, err
	}
	if d.Links, err = s.Relationships(ctx, id); err != nil {
		return nil, err
	}
	if d.Reviews, err = s.Reviews(ctx, id); err != nil {
		return nil, err
	}
	return d, nil
}

// ArchitectureDetailsByID returns an architecture document with its relationships.
func (s *Store) ArchitectureDetailsByID(ctx context.Context, id string) (*ArchitectureDetails, error) {
	a, err := s.GetArchitecture(ctx, id)
	if err != nil {
		return nil, err
	}
	d := &ArchitectureDetails{Architecture: *a}
	if d.Requirements, err = s.QueryRequirements(ctx, RequirementFilter{ArchitectureID: id, OrderBy: "id"}); err != nil {
		return nil, err
	}
	if d.Links, err = s.Relationships(ctx, id); err != nil {
		return nil, err
	}
	if d.Reviews, err = s.Reviews(ctx, id); err != nil {
		return nil, err
	}
	return d, nil
}

// Trace is the full lifecycle picture of one requirement.
type Trace struct {
	Requirement  Requirement    `json:"requirement"`
	Tasks        []Task         `json:"tasks"`
	Architecture []Architecture `json:"architecture"`
	Children     []Requirement  `json:"children"`
	Events       []Event        `json:"events"`
}

// TraceLifecycle walks a requirement to its tasks, architecture, direct
// decomposition children and audit trail.
func (s *Store) TraceLifecycle(ctx context.Context, id string) (*Trace, error) {
	r, err := s.GetRequirement(ctx, id)
	if err != nil {
		return nil, err
	}
	tr := &Trace{Requirement: *r}
	if tr.Tasks, err = s.QueryTasks(ctx, TaskFilter{RequirementID: id, OrderBy: "id"}); err != nil {
		return nil, err
	}
	if tr.Architecture, err = s.QueryArchitecture(ctx, ArchitectureFilter{RequirementID: id, OrderBy: "id"}); err != nil {
		return nil, err
	}
	if tr.Children, err = s.QueryRequirements(ctx, RequirementFilter{ParentID: id, OrderBy: "id"}); err != nil {
		return nil, err
	}
	if tr.Events, err = s.History(ctx, id); err != nil {
		return nil, err
	}
	return tr, nil
}

// ─── Filtered queries ────────────────────────────────────────────────────────

// RequirementFilter selects requirements. Zero fields match everything.
// Results are unordered unless OrderBy is set.
type RequirementFilter struct {
	Status         lifecycle.State
	Priority       lifecycle.Priority
	Type           lifecycle.RequirementType
	Search         string
	TaskID         string // requirements implemented by this task
	ArchitectureID string // requirements addressed by this document
	ParentID       string // direct decomposition children
	OrderBy        string
	Limit          int
}

// TaskFilter selects tasks.
type TaskFilter struct {
	Status        lifecycle.State
	Priority      lifecycle.Priority
	Assignee      string
	RequirementID string
	ParentTaskID  string
	OrderBy       string
	Limit         int
}

// ArchitectureFilter selects architecture documents.
type ArchitectureFilter struct {
	Status        lifecycle.State
	Type          lifecycle.ArchitectureType
	RequirementID string
	Search        string
	OrderBy       string
	Limit         int
}

var orderings = map[string]string{
	"id":         "id ASC",
	"created_at": "created_at ASC, id ASC",
	"updated_at": "updated_at DESC, id ASC",
	"priority":   "priority ASC, id ASC",
	"status":     "status ASC, id ASC",
}

// where accumulates AND-ed conditions and their arguments.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, args ...any) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) sql() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func finish(query string, orderBy string, limit int) (string, error) {
	if orderBy != "" {
		clause, ok := orderings[orderBy]
		if !ok {
			return "", lifecycle.Validationf("invalid order_by %q: must be one of: created_at, id, priority, status, updated_at", orderBy)
		}
		query += " ORDER BY " + clause
	}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return query, nil
}

// QueryRequirements returns requirements matching f.
func (s *Store) QueryRequirements(ctx context.Context, f RequirementFilter) ([]Requirement, error) {
	var w where
	if f.Status != "" {
		w.add("status = ?", f.Status)
	}
	if f.Priority != "" {
		w.add("priority = ?", f.Priority)
	}
	if f.Type != "" {
		w.add("type = ?", f.Type)
	}
	if f.Search != "" {
		pattern := "%" + strings.ToLower(f.Search) + "%"
		w.add("(LOWER(title) LIKE ? OR LOWER(desired_state) LIKE ? OR LOWER(current_state) LIKE ?)", pattern, pattern, pattern)
	}
	if f.TaskID != "" {
		w.add("id IN (SELECT requirement_id FROM requirement_tasks WHERE task_id = ?)", f.TaskID)
	}
	if f.ArchitectureID != "" {
		w.add("id IN (SELECT requirement_id FROM requirement_architecture WHERE architecture_id = ?)", f.ArchitectureID)
	}
	if f.ParentID != "" {
		w.add("id IN (SELECT requirement_id FROM requirement_dependencies WHERE depends_on_requirement_id = ? AND dependency_type = ?)",
			f.ParentID, lifecycle.RelParent)
	}
	q, err := finish(`SELECT `+requirementColumns+` FROM requirements`+w.sql(), f.OrderBy, f.Limit)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(q), w.args...)
	if err != nil {
		return nil, fmt.Errorf("store: query requirements: %w", err)
	}
	defer rows.Close()

	out := []Requirement{}
	for rows.Next() {
		r, err := scanRequirement(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan requirement: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// QueryTasks returns tasks matching f.
func (s *Store) QueryTasks(ctx context.Context, f TaskFilter) ([]Task, error) {
	var w where
	if f.Status != "" {
		w.add("status = ?", f.Status)
	}
	if f.Priority != "" {
		w.add("priority = ?", f.Priority)
	}
	if f.Assignee != "" {
		w.add("assignee = ?", f.Assignee)
	}
	if f.RequirementID != "" {
		w.add("id IN (SELECT task_id FROM requirement_tasks WHERE requirement_id = ?)", f.RequirementID)
	}
	if f.ParentTaskID != "" {
		w.add("parent_task_id = ?", f.ParentTaskID)
	}
	q, err := finish(`SELECT `+taskColumns+` FROM tasks`+w.sql(), f.OrderBy, f.Limit)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(q), w.args...)
	if err != nil {
		return nil, fmt.Errorf("store: query tasks: %w", err)
	}
	defer rows.Close()

	out := []Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// QueryArchitecture returns architecture documents matching f.
func (s *Store) QueryArchitecture(ctx context.Context, f ArchitectureFilter) ([]Architecture, error) {
	var w where
	if f.Status != "" {
		w.add("status = ?", f.Status)
	}
	if f.Type != "" {
		w.add("type = ?", f.Type)
	}
	if f.Search != "" {
		pattern := "%" + strings.ToLower(f.Search) + "%"
		w.add("(LOWER(title) LIKE ? OR LOWER(context) LIKE ? OR LOWER(decision_outcome) LIKE ?)", pattern, pattern, pattern)
	}
	if f.RequirementID != "" {
		w.add("id IN (SELECT architecture_id FROM requirement_architecture WHERE requirement_id = ?)", f.RequirementID)
	}
	q, err := finish(`SELECT `+architectureColumns+` FROM architecture`+w.sql(), f.OrderBy, f.Limit)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(q), w.args...)
	if err != nil {
		return nil, fmt.Errorf("store: query architecture: %w", err)
	}
	defer rows.Close()

	out := []Architecture{}
	for rows.Next() {
		a, err := scanArchitecture(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan architecture: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ─── Relationships ───────────────────────────────────────────────────────────

// Relationships returns every link row touching id, in either direction.
// Task parent edges come from parent_task_id.
func (s *Store) Relationships(ctx context.Context, id string) ([]Link, error) {
	kind, err := lifecycle.KindOf(id)
	if err != nil {
		return nil, err
	}

	type source struct {
		query    string
		fromKind lifecycle.Kind
		toKind   lifecycle.Kind
		rel      bool // query selects a relationship column
		fixed    lifecycle.Relationship
	}
	var sources []source
	switch kind {
	case lifecycle.KindRequirement:
		sources = []source{
			{`SELECT requirement_id, task_id, created_at FROM requirement_tasks WHERE requirement_id = ?`,
				lifecycle.KindRequirement, lifecycle.KindTask, false, lifecycle.RelImplements},
			{`SELECT requirement_id, architecture_id, created_at FROM requirement_architecture WHERE requirement_id = ?`,
				lifecycle.KindRequirement, lifecycle.KindArchitecture, false, lifecycle.RelAddresses},
			{`SELECT requirement_id, depends_on_requirement_id, created_at, dependency_type FROM requirement_dependencies
				WHERE requirement_id = ? OR depends_on_requirement_id = ?`,
				lifecycle.KindRequirement, lifecycle.KindRequirement, true, ""},
		}
	case lifecycle.KindTask:
		sources = []source{
			{`SELECT requirement_id, task_id, created_at FROM requirement_tasks WHERE task_id = ?`,
				lifecycle.KindRequirement, lifecycle.KindTask, false, lifecycle.RelImplements},
			{`SELECT task_id, depends_on_task_id, created_at, dependency_type FROM task_dependencies
				WHERE task_id = ? OR depends_on_task_id = ?`,
				lifecycle.KindTask, lifecycle.KindTask, true, ""},
			{`SELECT id, parent_task_id, updated_at FROM tasks WHERE parent_task_id IS NOT NULL AND (id = ? OR parent_task_id = ?)`,
				lifecycle.KindTask, lifecycle.KindTask, false, lifecycle.RelParent},
		}
	case lifecycle.KindArchitecture:
		sources = []source{
			{`SELECT requirement_id, architecture_id, created_at FROM requirement_architecture WHERE architecture_id = ?`,
				lifecycle.KindRequirement, lifecycle.KindArchitecture, false, lifecycle.RelAddresses},
		}
	}

	out := []Link{}
	for _, src := range sources {
		args := []any{id}
		if strings.Count(src.query, "?") == 2 {
			args = append(args, id)
		}
		rows, err := s.db.QueryContext(ctx, s.dialect.rebind(src.query), args...)
		if err != nil {
			return nil, fmt.Errorf("store: relationships: %w", err)
		}
		for rows.Next() {
			l := Link{FromKind: src.fromKind, ToKind: src.toKind, Relationship: src.fixed}
			dest := []any{&l.From, &l.To, &l.CreatedAt}
			if src.rel {
				dest = append(dest, &l.Relationship)
			}
			if err := rows.Scan(dest...); err != nil {
				rows.Close()
				return nil, fmt.Errorf("store: scan relationship: %w", err)
			}
			out = append(out, l)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
