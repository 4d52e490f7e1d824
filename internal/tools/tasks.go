package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/lifecycle/internal/lifecycle"
	"github.com/HendryAvila/lifecycle/internal/store"
)

// ─── create_task ─────────────────────────────────────────────────────────────

// CreateTaskTool handles the create_task MCP tool.
type CreateTaskTool struct {
	store *store.Store
	actor string
}

// NewCreateTaskTool creates a CreateTaskTool.
func NewCreateTaskTool(s *store.Store, actor string) *CreateTaskTool {
	return &CreateTaskTool{store: s, actor: actor}
}

// Definition returns the MCP tool definition for create_task.
func (t *CreateTaskTool) Definition() mcp.Tool {
	return mcp.NewTool("create_task",
		mcp.WithDescription(
			"Create a task in Not Started, linked to the requirements it implements. "+
				"Top-level tasks get TASK-NNNN-00-00; pass parent_task_id to create a subtask "+
				"that shares the parent's number.",
		),
		mcp.WithString("title", mcp.Required(), mcp.Description("Short title")),
		mcp.WithString("priority",
			mcp.Required(),
			mcp.Description("P0 (critical) to P3 (low)"),
			mcp.Enum("P0", "P1", "P2", "P3"),
		),
		mcp.WithString("requirement_ids",
			mcp.Description("Requirements this task implements (comma or newline separated)"),
		),
		mcp.WithString("effort",
			mcp.Description("T-shirt size"),
			mcp.Enum("XS", "S", "M", "L", "XL"),
		),
		mcp.WithString("user_story", mcp.Description("As a ... I want ... so that ...")),
		mcp.WithString("acceptance_criteria", mcp.Description("One criterion per line")),
		mcp.WithString("assignee", mcp.Description("Who owns the task")),
		mcp.WithString("external_ref", mcp.Description("Issue tracker reference")),
		mcp.WithString("parent_task_id", mcp.Description("Create as a subtask of this task")),
		mcp.WithString("actor", mcp.Description("Who is making the change")),
	)
}

// Handle processes the create_task tool call.
func (t *CreateTaskTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := required(req, "title", "priority"); res != nil {
		return res, nil
	}
	reqIDs := listArg(req, "requirement_ids")

	id, err := t.store.CreateTask(ctx, store.CreateTaskParams{
		Title:              req.GetString("title", ""),
		Priority:           lifecycle.Priority(strings.ToUpper(req.GetString("priority", ""))),
		Effort:             lifecycle.Effort(strings.ToUpper(req.GetString("effort", ""))),
		UserStory:          req.GetString("user_story", ""),
		AcceptanceCriteria: textListArg(req, "acceptance_criteria"),
		Assignee:           req.GetString("assignee", ""),
		ExternalRef:        req.GetString("external_ref", ""),
		ParentTaskID:       strings.TrimSpace(req.GetString("parent_task_id", "")),
		RequirementIDs:     reqIDs,
		Actor:              actorArg(req, t.actor),
	})
	if err != nil {
		return toolError(err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Created task %s (Not Started).\n", id)
	if len(reqIDs) > 0 {
		fmt.Fprintf(&b, "Implements: %s\n", strings.Join(reqIDs, ", "))
	}
	b.WriteString("\n" + transitionHint(lifecycle.KindTask, lifecycle.StateNotStarted) + "\n")
	return mcp.NewToolResultText(b.String()), nil
}

// ─── update_task_status ──────────────────────────────────────────────────────

// UpdateTaskStatusTool handles the update_task_status MCP tool.
type UpdateTaskStatusTool struct {
	store *store.Store
	actor string
}

// NewUpdateTaskStatusTool creates an UpdateTaskStatusTool.
func NewUpdateTaskStatusTool(s *store.Store, actor string) *UpdateTaskStatusTool {
	return &UpdateTaskStatusTool{store: s, actor: actor}
}

// Definition returns the MCP tool definition for update_task_status.
func (t *UpdateTaskStatusTool) Definition() mcp.Tool {
	return statusToolDefinition("update_task_status", "task_id", lifecycle.KindTask,
		"Move a task along its lifecycle. Completing or reopening a task updates the "+
			"progress of every requirement it implements.")
}

// Handle processes the update_task_status tool call.
func (t *UpdateTaskStatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return handleStatusChange(ctx, t.store, req, "task_id", lifecycle.KindTask, t.actor)
}

// ─── query_tasks ─────────────────────────────────────────────────────────────

// QueryTasksTool handles the query_tasks MCP tool.
type QueryTasksTool struct {
	store *store.Store
}

// NewQueryTasksTool creates a QueryTasksTool.
func NewQueryTasksTool(s *store.Store) *QueryTasksTool {
	return &QueryTasksTool{store: s}
}

// Definition returns the MCP tool definition for query_tasks.
func (t *QueryTasksTool) Definition() mcp.Tool {
	return mcp.NewTool("query_tasks",
		mcp.WithDescription("List tasks, optionally filtered."),
		mcp.WithString("status", mcp.Description("Filter by status")),
		mcp.WithString("priority", mcp.Description("Filter by priority")),
		mcp.WithString("assignee", mcp.Description("Filter by assignee")),
		mcp.WithString("requirement_id", mcp.Description("Only tasks implementing this requirement")),
		mcp.WithString("parent_task_id", mcp.Description("Only subtasks of this task")),
		mcp.WithString("order_by",
			mcp.Description("Sort order (default: id)"),
			mcp.Enum("id", "created_at", "updated_at", "priority", "status"),
		),
		mcp.WithNumber("limit", mcp.Description("Max results (default: 50)")),
	)
}

// Handle processes the query_tasks tool call.
func (t *QueryTasksTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tasks, err := t.store.QueryTasks(ctx, store.TaskFilter{
		Status:        lifecycle.State(req.GetString("status", "")),
		Priority:      lifecycle.Priority(req.GetString("priority", "")),
		Assignee:      req.GetString("assignee", ""),
		RequirementID: req.GetString("requirement_id", ""),
		ParentTaskID:  req.GetString("parent_task_id", ""),
		OrderBy:       req.GetString("order_by", "id"),
		Limit:         intArg(req, "limit", 50),
	})
	if err != nil {
		return toolError(err)
	}
	if len(tasks) == 0 {
		return mcp.NewToolResultText("No tasks found."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d tasks:\n\n", len(tasks))
	for _, task := range tasks {
		extra := string(task.Priority)
		if task.Assignee != "" {
			extra += ", " + task.Assignee
		}
		b.WriteString(summaryLine(task.ID, task.Title, task.Status, extra))
	}
	return mcp.NewToolResultText(b.String()), nil
}

// ─── get_task_details ────────────────────────────────────────────────────────

// GetTaskDetailsTool handles the get_task_details MCP tool.
type GetTaskDetailsTool struct {
	store *store.Store
}

// NewGetTaskDetailsTool creates a GetTaskDetailsTool.
func NewGetTaskDetailsTool(s *store.Store) *GetTaskDetailsTool {
	return &GetTaskDetailsTool{store: s}
}

// Definition returns the MCP tool definition for get_task_details.
func (t *GetTaskDetailsTool) Definition() mcp.Tool {
	return mcp.NewTool("get_task_details",
		mcp.WithDescription("Show a task with its requirements, subtasks, relationships and reviews."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task identifier")),
	)
}

// Handle processes the get_task_details tool call.
func (t *GetTaskDetailsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := required(req, "task_id"); res != nil {
		return res, nil
	}
	d, err := t.store.TaskDetailsByID(ctx, strings.TrimSpace(req.GetString("task_id", "")))
	if err != nil {
		return toolError(err)
	}

	var b strings.Builder
	writeTask(&b, d.Task)
	if len(d.Requirements) > 0 {
		b.WriteString("\n### Implements\n\n")
		for _, r := range d.Requirements {
			b.WriteString(summaryLine(r.ID, r.Title, r.Status, fmt.Sprintf("%.2f%%", r.CompletionPercent())))
		}
	}
	if len(d.Subtasks) > 0 {
		b.WriteString("\n### Subtasks\n\n")
		for _, sub := range d.Subtasks {
			b.WriteString(summaryLine(sub.ID, sub.Title, sub.Status, ""))
		}
	}
	writeLinks(&b, d.Links)
	writeReviews(&b, d.Reviews)
	b.WriteString("\n" + transitionHint(lifecycle.KindTask, d.Task.Status) + "\n")
	return mcp.NewToolResultText(b.String()), nil
}
