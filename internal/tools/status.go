package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/lifecycle/internal/lifecycle"
	"github.com/HendryAvila/lifecycle/internal/store"
)

// ─── get_project_status ──────────────────────────────────────────────────────

// ProjectStatusTool handles the get_project_status MCP tool.
type ProjectStatusTool struct {
	store *store.Store
}

// NewProjectStatusTool creates a ProjectStatusTool.
func NewProjectStatusTool(s *store.Store) *ProjectStatusTool {
	return &ProjectStatusTool{store: s}
}

// Definition returns the MCP tool definition for get_project_status.
func (t *ProjectStatusTool) Definition() mcp.Tool {
	return mcp.NewTool("get_project_status",
		mcp.WithDescription(
			"Project dashboard: counts by status, average requirement completion and blocked items. "+
				"Deprecated requirements and abandoned tasks are left out.",
		),
	)
}

// Handle processes the get_project_status tool call.
func (t *ProjectStatusTool) Handle(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ps, err := t.store.ProjectStatus(ctx)
	if err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(RenderProjectStatus(ps)), nil
}

// RenderProjectStatus renders the dashboard as markdown. The CLI status
// command prints the same text.
func RenderProjectStatus(ps *store.ProjectStatus) string {
	var b strings.Builder
	b.WriteString("# Project Status\n\n")

	writeCounts := func(title string, kind lifecycle.Kind, counts map[lifecycle.State]int, total int) {
		fmt.Fprintf(&b, "## %s (%d)\n\n", title, total)
		states := store.SortedStates(kind, counts)
		if len(states) == 0 {
			b.WriteString("None.\n\n")
			return
		}
		for _, s := range states {
			fmt.Fprintf(&b, "- %s: %d\n", s, counts[s])
		}
		b.WriteString("\n")
	}

	writeCounts("Requirements", lifecycle.KindRequirement, ps.Requirements, ps.TotalRequirements)
	fmt.Fprintf(&b, "Average completion: %.2f%%\n\n", ps.AverageCompletion)
	writeCounts("Tasks", lifecycle.KindTask, ps.Tasks, ps.TotalTasks)

	archTotal := 0
	for _, n := range ps.Architecture {
		archTotal += n
	}
	writeCounts("Architecture", lifecycle.KindArchitecture, ps.Architecture, archTotal)

	fmt.Fprintf(&b, "## Blocked (%d)\n\n", len(ps.Blocked))
	if len(ps.Blocked) == 0 {
		b.WriteString("Nothing is blocked.\n")
	}
	for _, item := range ps.Blocked {
		fmt.Fprintf(&b, "- **%s** [%s] %s: %s", item.ID, item.Status, item.Title, item.Reason)
		if len(item.BlockedBy) > 0 {
			fmt.Fprintf(&b, " (waiting on %s)", strings.Join(item.BlockedBy, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// ─── get_entity_history ──────────────────────────────────────────────────────

// EntityHistoryTool handles the get_entity_history MCP tool.
type EntityHistoryTool struct {
	store *store.Store
}

// NewEntityHistoryTool creates an EntityHistoryTool.
func NewEntityHistoryTool(s *store.Store) *EntityHistoryTool {
	return &EntityHistoryTool{store: s}
}

// Definition returns the MCP tool definition for get_entity_history.
func (t *EntityHistoryTool) Definition() mcp.Tool {
	return mcp.NewTool("get_entity_history",
		mcp.WithDescription("Show the audit trail of an entity, oldest first, with its review comments."),
		mcp.WithString("entity_id", mcp.Required(), mcp.Description("Entity identifier")),
	)
}

// Handle processes the get_entity_history tool call.
func (t *EntityHistoryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := required(req, "entity_id"); res != nil {
		return res, nil
	}
	id := strings.TrimSpace(req.GetString("entity_id", ""))
	kind, err := lifecycle.KindOf(id)
	if err != nil {
		return toolError(err)
	}

	var status lifecycle.State
	switch kind {
	case lifecycle.KindRequirement:
		r, gerr := t.store.GetRequirement(ctx, id)
		if gerr != nil {
			return toolError(gerr)
		}
		status = r.Status
	case lifecycle.KindTask:
		task, gerr := t.store.GetTask(ctx, id)
		if gerr != nil {
			return toolError(gerr)
		}
		status = task.Status
	case lifecycle.KindArchitecture:
		a, gerr := t.store.GetArchitecture(ctx, id)
		if gerr != nil {
			return toolError(gerr)
		}
		status = a.Status
	}

	events, err := t.store.History(ctx, id)
	if err != nil {
		return toolError(err)
	}
	reviews, err := t.store.Reviews(ctx, id)
	if err != nil {
		return toolError(err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# History: %s [%s]\n\n", id, status)
	writeEvents(&b, events)
	writeReviews(&b, reviews)
	return mcp.NewToolResultText(b.String()), nil
}

// ─── get_transition_table ────────────────────────────────────────────────────

// TransitionTableTool handles the get_transition_table MCP tool.
type TransitionTableTool struct{}

// NewTransitionTableTool creates a TransitionTableTool.
func NewTransitionTableTool() *TransitionTableTool {
	return &TransitionTableTool{}
}

// Definition returns the MCP tool definition for get_transition_table.
func (t *TransitionTableTool) Definition() mcp.Tool {
	return mcp.NewTool("get_transition_table",
		mcp.WithDescription("Show the legal status transitions for one entity kind, or for all of them."),
		mcp.WithString("entity_type",
			mcp.Description("Entity kind (default: all)"),
			mcp.Enum("requirement", "task", "architecture"),
		),
	)
}

// Handle processes the get_transition_table tool call.
func (t *TransitionTableTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind := lifecycle.Kind(strings.ToLower(req.GetString("entity_type", "")))
	if kind == "" {
		return mcp.NewToolResultText(lifecycle.RenderAllTables()), nil
	}
	if err := lifecycle.ValidateKind(kind); err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(lifecycle.RenderTable(kind)), nil
}
