package store

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/HendryAvila/lifecycle/internal/lifecycle"
)

// ─── Progress ────────────────────────────────────────────────────────────────

// Progress is the completion view of one requirement.
type Progress struct {
	ID                string          `json:"id"`
	Title             string          `json:"title"`
	Status            lifecycle.State `json:"status"`
	TaskCount         int             `json:"task_count"`
	TasksCompleted    int             `json:"tasks_completed"`
	CompletionPercent float64         `json:"completion_percent"`
}

// RequirementProgress returns the completion of one requirement from its
// stored counters.
func (s *Store) RequirementProgress(ctx context.Context, id string) (*Progress, error) {
	r, err := s.GetRequirement(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Progress{
		ID:                r.ID,
		Title:             r.Title,
		Status:            r.Status,
		TaskCount:         r.TaskCount,
		TasksCompleted:    r.TasksCompleted,
		CompletionPercent: r.CompletionPercent(),
	}, nil
}

// ─── Hierarchy views ─────────────────────────────────────────────────────────

// TreeNode is one entry of a hierarchy view. Depth is relative to the root
// of the view.
type TreeNode struct {
	ID     string          `json:"id"`
	Title  string          `json:"title"`
	Status lifecycle.State `json:"status"`
	Parent string          `json:"parent,omitempty"`
	Depth  int             `json:"depth"`
	Level  int             `json:"level"`
}

// RequirementTree returns root and its decomposition descendants, breadth first.
func (s *Store) RequirementTree(ctx context.Context, root string) ([]TreeNode, error) {
	if _, err := s.GetRequirement(ctx, root); err != nil {
		return nil, err
	}
	arena, err := loadRequirementArena(ctx, s.db, s.dialect)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return s.tree(ctx, arena, root, "requirements")
}

// TaskTree returns root and its subtasks at any depth, breadth first.
func (s *Store) TaskTree(ctx context.Context, root string) ([]TreeNode, error) {
	if _, err := s.GetTask(ctx, root); err != nil {
		return nil, err
	}
	arena, err := loadTaskArena(ctx, s.db)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return s.tree(ctx, arena, root, "tasks")
}

func (s *Store) tree(ctx context.Context, arena *lifecycle.Arena, root, table string) ([]TreeNode, error) {
	placed := arena.Subtree(root)
	ids := make([]any, len(placed))
	for i, p := range placed {
		ids[i] = p.ID
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(
		fmt.Sprintf(`SELECT id, title, status FROM %s WHERE id IN (%s)`, table, placeholders(len(ids)))), ids...)
	if err != nil {
		return nil, fmt.Errorf("store: tree: %w", err)
	}
	defer rows.Close()

	type info struct {
		title  string
		status lifecycle.State
	}
	infos := make(map[string]info, len(placed))
	for rows.Next() {
		var (
			id string
			in info
		)
		if err := rows.Scan(&id, &in.title, &in.status); err != nil {
			return nil, err
		}
		infos[id] = in
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]TreeNode, 0, len(placed))
	for _, p := range placed {
		in := infos[p.ID]
		out = append(out, TreeNode{
			ID:     p.ID,
			Title:  in.title,
			Status: in.status,
			Parent: arena.Parent(p.ID),
			Depth:  p.Depth,
			Level:  arena.Level(p.ID),
		})
	}
	return out, nil
}

// ─── Blocked items ───────────────────────────────────────────────────────────

// BlockedItem is an entity held back by its own status or by a blocking
// dependency that has not reached a terminal-success state.
type BlockedItem struct {
	Kind      lifecycle.Kind  `json:"kind"`
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Status    lifecycle.State `json:"status"`
	BlockedBy []string        `json:"blocked_by,omitempty"`
	Reason    string          `json:"reason"`
}

// BlockedItems lists blocked tasks and requirements. A task is blocked when
// its status is Blocked, or it has not started and a task it blocks on or
// requires is not Complete. A requirement is blocked when a requirement it
// depends on is neither Validated nor Deprecated.
func (s *Store) BlockedItems(ctx context.Context) ([]BlockedItem, error) {
	var out []BlockedItem

	blocked, err := s.QueryTasks(ctx, TaskFilter{Status: lifecycle.StateBlocked, OrderBy: "id"})
	if err != nil {
		return nil, err
	}
	for _, t := range blocked {
		out = append(out, BlockedItem{
			Kind: lifecycle.KindTask, ID: t.ID, Title: t.Title, Status: t.Status, Reason: "status is Blocked",
		})
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(
		`SELECT t.id, t.title, t.status, d.depends_on_task_id
		 FROM tasks t
		 JOIN task_dependencies d ON d.task_id = t.id AND d.dependency_type IN (?, ?)
		 JOIN tasks dt ON dt.id = d.depends_on_task_id
		 WHERE t.status = ? AND dt.status <> ?
		 ORDER BY t.id, d.depends_on_task_id`),
		lifecycle.RelBlocks, lifecycle.RelRequires, lifecycle.StateNotStarted, lifecycle.StateComplete,
	)
	if err != nil {
		return nil, fmt.Errorf("store: blocked tasks: %w", err)
	}
	taskItems, err := collectBlocked(rows, lifecycle.KindTask, "waiting on incomplete tasks")
	if err != nil {
		return nil, err
	}
	out = append(out, taskItems...)

	rows, err = s.db.QueryContext(ctx, s.dialect.rebind(
		`SELECT r.id, r.title, r.status, d.depends_on_requirement_id
		 FROM requirements r
		 JOIN requirement_dependencies d ON d.requirement_id = r.id AND d.dependency_type = ?
		 JOIN requirements dr ON dr.id = d.depends_on_requirement_id
		 WHERE r.status <> ? AND dr.status NOT IN (?, ?)
		 ORDER BY r.id, d.depends_on_requirement_id`),
		lifecycle.RelDepends, lifecycle.StateDeprecated, lifecycle.StateValidated, lifecycle.StateDeprecated,
	)
	if err != nil {
		return nil, fmt.Errorf("store: blocked requirements: %w", err)
	}
	reqItems, err := collectBlocked(rows, lifecycle.KindRequirement, "waiting on unvalidated requirements")
	if err != nil {
		return nil, err
	}
	return append(out, reqItems...), nil
}

type rowsIter interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// collectBlocked folds (id, title, status, blocker) rows into one item per id.
func collectBlocked(rows rowsIter, kind lifecycle.Kind, reason string) ([]BlockedItem, error) {
	defer rows.Close()
	var (
		out   []BlockedItem
		index = map[string]int{}
	)
	for rows.Next() {
		var (
			item    BlockedItem
			blocker string
		)
		if err := rows.Scan(&item.ID, &item.Title, &item.Status, &blocker); err != nil {
			return nil, fmt.Errorf("store: scan blocked item: %w", err)
		}
		if i, ok := index[item.ID]; ok {
			out[i].BlockedBy = append(out[i].BlockedBy, blocker)
			continue
		}
		item.Kind = kind
		item.Reason = reason
		item.BlockedBy = []string{blocker}
		index[item.ID] = len(out)
		out = append(out, item)
	}
	return out, rows.Err()
}

// ─── Project status ──────────────────────────────────────────────────────────

// ProjectStatus summarizes every active entity. Deprecated requirements and
// Abandoned tasks are left out of the counts.
type ProjectStatus struct {
	Requirements      map[lifecycle.State]int `json:"requirements"`
	Tasks             map[lifecycle.State]int `json:"tasks"`
	Architecture      map[lifecycle.State]int `json:"architecture"`
	TotalRequirements int                     `json:"total_requirements"`
	TotalTasks        int                     `json:"total_tasks"`
	AverageCompletion float64                 `json:"average_completion"`
	Blocked           []BlockedItem           `json:"blocked"`
}

// ProjectStatus computes the project-wide summary.
func (s *Store) ProjectStatus(ctx context.Context) (*ProjectStatus, error) {
	ps := &ProjectStatus{Blocked: []BlockedItem{}}
	var err error

	if ps.Requirements, err = s.countByStatus(ctx, "requirements", lifecycle.StateDeprecated); err != nil {
		return nil, err
	}
	if ps.Tasks, err = s.countByStatus(ctx, "tasks", lifecycle.StateAbandoned); err != nil {
		return nil, err
	}
	if ps.Architecture, err = s.countByStatus(ctx, "architecture", ""); err != nil {
		return nil, err
	}
	for _, n := range ps.Requirements {
		ps.TotalRequirements += n
	}
	for _, n := range ps.Tasks {
		ps.TotalTasks += n
	}

	var (
		sum   float64
		count int
	)
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(
		`SELECT task_count, tasks_completed FROM requirements WHERE status <> ?`), lifecycle.StateDeprecated)
	if err != nil {
		return nil, fmt.Errorf("store: completion: %w", err)
	}
	for rows.Next() {
		var total, done int
		if err := rows.Scan(&total, &done); err != nil {
			rows.Close()
			return nil, err
		}
		sum += completion(done, total)
		count++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if count > 0 {
		ps.AverageCompletion = math.Round(sum/float64(count)*100) / 100
	}

	blocked, err := s.BlockedItems(ctx)
	if err != nil {
		return nil, err
	}
	if blocked != nil {
		ps.Blocked = blocked
	}
	return ps, nil
}

func (s *Store) countByStatus(ctx context.Context, table string, exclude lifecycle.State) (map[lifecycle.State]int, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(
		fmt.Sprintf(`SELECT status, COUNT(*) FROM %s WHERE status <> ? GROUP BY status`, table)), exclude)
	if err != nil {
		return nil, fmt.Errorf("store: count %s: %w", table, err)
	}
	defer rows.Close()

	out := map[lifecycle.State]int{}
	for rows.Next() {
		var (
			st lifecycle.State
			n  int
		)
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		out[st] = n
	}
	return out, rows.Err()
}

// SortedStates returns the keys of a status count map in table order for kind.
func SortedStates(kind lifecycle.Kind, counts map[lifecycle.State]int) []lifecycle.State {
	order := map[lifecycle.State]int{}
	for i, st := range lifecycle.States(kind) {
		order[st] = i
	}
	out := make([]lifecycle.State, 0, len(counts))
	for st := range counts {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return order[out[i]] < order[out[j]] })
	return out
}
