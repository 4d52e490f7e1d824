package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/lifecycle/internal/lifecycle"
	"github.com/HendryAvila/lifecycle/internal/store"
)

// ─── create_requirement ──────────────────────────────────────────────────────

// CreateRequirementTool handles the create_requirement MCP tool.
type CreateRequirementTool struct {
	store *store.Store
	actor string
}

// NewCreateRequirementTool creates a CreateRequirementTool.
func NewCreateRequirementTool(s *store.Store, actor string) *CreateRequirementTool {
	return &CreateRequirementTool{store: s, actor: actor}
}

// Definition returns the MCP tool definition for create_requirement.
func (t *CreateRequirementTool) Definition() mcp.Tool {
	return mcp.NewTool("create_requirement",
		mcp.WithDescription(
			"Create a requirement in Draft. The identifier (REQ-NNNN-TYPE-00) is allocated per type. "+
				"Describe the gap between the current and the desired state.",
		),
		mcp.WithString("type",
			mcp.Required(),
			mcp.Description("Requirement type"),
			mcp.Enum("FUNC", "NFUNC", "TECH", "BUS", "INTF"),
		),
		mcp.WithString("title", mcp.Required(), mcp.Description("Short title")),
		mcp.WithString("priority",
			mcp.Required(),
			mcp.Description("P0 (critical) to P3 (low)"),
			mcp.Enum("P0", "P1", "P2", "P3"),
		),
		mcp.WithString("current_state", mcp.Required(), mcp.Description("How things work today")),
		mcp.WithString("desired_state", mcp.Required(), mcp.Description("How things should work")),
		mcp.WithString("risk_level",
			mcp.Description("Risk level (default: Medium)"),
			mcp.Enum("High", "Medium", "Low"),
		),
		mcp.WithString("functional_requirements", mcp.Description("One requirement per line")),
		mcp.WithString("acceptance_criteria", mcp.Description("One criterion per line")),
		mcp.WithString("business_value", mcp.Description("Why this matters")),
		mcp.WithString("author", mcp.Description("Who wrote the requirement")),
		mcp.WithNumber("complexity_score", mcp.Description("1-10")),
		mcp.WithString("scope_assessment",
			mcp.Description("How much the requirement covers"),
			mcp.Enum("single_feature", "multiple_features", "complex_workflow", "epic"),
		),
		mcp.WithString("parent_requirement_id",
			mcp.Description("Attach under this requirement (decomposition, max level 3)"),
		),
	)
}

// Handle processes the create_requirement tool call.
func (t *CreateRequirementTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := required(req, "type", "title", "priority", "current_state", "desired_state"); res != nil {
		return res, nil
	}
	author := req.GetString("author", "")
	if author == "" {
		author = t.actor
	}
	parent := strings.TrimSpace(req.GetString("parent_requirement_id", ""))

	id, err := t.store.CreateRequirement(ctx, store.CreateRequirementParams{
		Type:                   lifecycle.RequirementType(strings.ToUpper(req.GetString("type", ""))),
		Title:                  req.GetString("title", ""),
		Priority:               lifecycle.Priority(strings.ToUpper(req.GetString("priority", ""))),
		Risk:                   lifecycle.Risk(req.GetString("risk_level", "")),
		CurrentState:           req.GetString("current_state", ""),
		DesiredState:           req.GetString("desired_state", ""),
		FunctionalRequirements: textListArg(req, "functional_requirements"),
		AcceptanceCriteria:     textListArg(req, "acceptance_criteria"),
		BusinessValue:          req.GetString("business_value", ""),
		Author:                 author,
		ComplexityScore:        intArg(req, "complexity_score", 0),
		Scope:                  lifecycle.Scope(req.GetString("scope_assessment", "")),
		ParentID:               parent,
	})
	if err != nil {
		return toolError(err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Created requirement %s (Draft).\n", id)
	if parent != "" {
		fmt.Fprintf(&b, "Attached under %s.\n", parent)
	}

	b.WriteString("\n" + transitionHint(lifecycle.KindRequirement, lifecycle.StateDraft) + "\n")
	return mcp.NewToolResultText(b.String()), nil
}

// ─── update_requirement_status ───────────────────────────────────────────────

// UpdateRequirementStatusTool handles the update_requirement_status MCP tool.
type UpdateRequirementStatusTool struct {
	store *store.Store
	actor string
}

// NewUpdateRequirementStatusTool creates an UpdateRequirementStatusTool.
func NewUpdateRequirementStatusTool(s *store.Store, actor string) *UpdateRequirementStatusTool {
	return &UpdateRequirementStatusTool{store: s, actor: actor}
}

// Definition returns the MCP tool definition for update_requirement_status.
func (t *UpdateRequirementStatusTool) Definition() mcp.Tool {
	return statusToolDefinition("update_requirement_status", "requirement_id", lifecycle.KindRequirement,
		"Move a requirement along its lifecycle. Illegal transitions are rejected and leave no trace. "+
			"Moving to Validated requires every linked task to be Complete.")
}

// Handle processes the update_requirement_status tool call.
func (t *UpdateRequirementStatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return handleStatusChange(ctx, t.store, req, "requirement_id", lifecycle.KindRequirement, t.actor)
}

// statusToolDefinition builds the shared schema of the update_*_status tools.
func statusToolDefinition(name, idParam string, kind lifecycle.Kind, description string) mcp.Tool {
	states := lifecycle.States(kind)
	enum := make([]string, len(states))
	for i, s := range states {
		enum[i] = string(s)
	}
	return mcp.NewTool(name,
		mcp.WithDescription(description),
		mcp.WithString(idParam, mcp.Required(), mcp.Description("Identifier of the "+string(kind))),
		mcp.WithString("new_status", mcp.Required(), mcp.Description("Target status"), mcp.Enum(enum...)),
		mcp.WithString("comment", mcp.Description("Optional review comment stored with the change")),
		mcp.WithString("actor", mcp.Description("Who is making the change")),
	)
}

func handleStatusChange(ctx context.Context, s *store.Store, req mcp.CallToolRequest, idParam string, kind lifecycle.Kind, defaultActor string) (*mcp.CallToolResult, error) {
	if res := required(req, idParam, "new_status"); res != nil {
		return res, nil
	}
	id := strings.TrimSpace(req.GetString(idParam, ""))
	if k, err := lifecycle.KindOf(id); err != nil || k != kind {
		return mcp.NewToolResultError(fmt.Sprintf("%q is not a %s identifier", id, kind)), nil
	}
	to := lifecycle.State(req.GetString("new_status", ""))

	ev, err := s.TransitionStatus(ctx, id, to, actorArg(req, defaultActor), req.GetString("comment", ""))
	if err != nil {
		return toolError(err)
	}
	if ev == nil {
		return mcp.NewToolResultText(fmt.Sprintf("%s is already %s. Nothing changed.", id, to)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s → %s\n\n", id, ev.From, ev.To)
	b.WriteString(transitionHint(kind, to) + "\n")
	return mcp.NewToolResultText(b.String()), nil
}

// ─── query_requirements ──────────────────────────────────────────────────────

// QueryRequirementsTool handles the query_requirements MCP tool.
type QueryRequirementsTool struct {
	store *store.Store
}

// NewQueryRequirementsTool creates a QueryRequirementsTool.
func NewQueryRequirementsTool(s *store.Store) *QueryRequirementsTool {
	return &QueryRequirementsTool{store: s}
}

// Definition returns the MCP tool definition for query_requirements.
func (t *QueryRequirementsTool) Definition() mcp.Tool {
	return mcp.NewTool("query_requirements",
		mcp.WithDescription("List requirements, optionally filtered."),
		mcp.WithString("status", mcp.Description("Filter by status")),
		mcp.WithString("priority", mcp.Description("Filter by priority")),
		mcp.WithString("type", mcp.Description("Filter by requirement type")),
		mcp.WithString("search", mcp.Description("Case-insensitive text search over title and states")),
		mcp.WithString("parent_requirement_id", mcp.Description("Only direct children of this requirement")),
		mcp.WithString("order_by",
			mcp.Description("Sort order (default: id)"),
			mcp.Enum("id", "created_at", "updated_at", "priority", "status"),
		),
		mcp.WithNumber("limit", mcp.Description("Max results (default: 50)")),
	)
}

// Handle processes the query_requirements tool call.
func (t *QueryRequirementsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	reqs, err := t.store.QueryRequirements(ctx, store.RequirementFilter{
		Status:   lifecycle.State(req.GetString("status", "")),
		Priority: lifecycle.Priority(req.GetString("priority", "")),
		Type:     lifecycle.RequirementType(req.GetString("type", "")),
		Search:   req.GetString("search", ""),
		ParentID: req.GetString("parent_requirement_id", ""),
		OrderBy:  req.GetString("order_by", "id"),
		Limit:    intArg(req, "limit", 50),
	})
	if err != nil {
		return toolError(err)
	}
	if len(reqs) == 0 {
		return mcp.NewToolResultText("No requirements found."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d requirements:\n\n", len(reqs))
	for _, r := range reqs {
		b.WriteString(summaryLine(r.ID, r.Title, r.Status,
			fmt.Sprintf("%s, %d/%d tasks", r.Priority, r.TasksCompleted, r.TaskCount)))
	}
	return mcp.NewToolResultText(b.String()), nil
}

// ─── get_requirement_details ─────────────────────────────────────────────────

// GetRequirementDetailsTool handles the get_requirement_details MCP tool.
type GetRequirementDetailsTool struct {
	store *store.Store
}

// NewGetRequirementDetailsTool creates a GetRequirementDetailsTool.
func NewGetRequirementDetailsTool(s *store.Store) *GetRequirementDetailsTool {
	return &GetRequirementDetailsTool{store: s}
}

// Definition returns the MCP tool definition for get_requirement_details.
func (t *GetRequirementDetailsTool) Definition() mcp.Tool {
	return mcp.NewTool("get_requirement_details",
		mcp.WithDescription("Show a requirement with its tasks, architecture, relationships and reviews."),
		mcp.WithString("requirement_id", mcp.Required(), mcp.Description("Requirement identifier")),
	)
}

// Handle processes the get_requirement_details tool call.
func (t *GetRequirementDetailsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := required(req, "requirement_id"); res != nil {
		return res, nil
	}
	d, err := t.store.RequirementDetailsByID(ctx, strings.TrimSpace(req.GetString("requirement_id", "")))
	if err != nil {
		return toolError(err)
	}

	var b strings.Builder
	writeRequirement(&b, d.Requirement)
	if len(d.Tasks) > 0 {
		b.WriteString("\n### Tasks\n\n")
		for _, task := range d.Tasks {
			b.WriteString(summaryLine(task.ID, task.Title, task.Status, string(task.Priority)))
		}
	}
	if len(d.Architecture) > 0 {
		b.WriteString("\n### Architecture\n\n")
		for _, a := range d.Architecture {
			b.WriteString(summaryLine(a.ID, a.Title, a.Status, string(a.Type)))
		}
	}
	writeLinks(&b, d.Links)
	writeReviews(&b, d.Reviews)
	b.WriteString("\n" + transitionHint(lifecycle.KindRequirement, d.Requirement.Status) + "\n")
	return mcp.NewToolResultText(b.String()), nil
}

// ─── trace_requirement ───────────────────────────────────────────────────────

// TraceRequirementTool handles the trace_requirement MCP tool.
type TraceRequirementTool struct {
	store *store.Store
}

// NewTraceRequirementTool creates a TraceRequirementTool.
func NewTraceRequirementTool(s *store.Store) *TraceRequirementTool {
	return &TraceRequirementTool{store: s}
}

// Definition returns the MCP tool definition for trace_requirement.
func (t *TraceRequirementTool) Definition() mcp.Tool {
	return mcp.NewTool("trace_requirement",
		mcp.WithDescription(
			"Trace a requirement end to end: decomposition tree, implementing tasks, "+
				"architecture decisions and the full audit trail.",
		),
		mcp.WithString("requirement_id", mcp.Required(), mcp.Description("Requirement identifier")),
	)
}

// Handle processes the trace_requirement tool call.
func (t *TraceRequirementTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := required(req, "requirement_id"); res != nil {
		return res, nil
	}
	id := strings.TrimSpace(req.GetString("requirement_id", ""))
	tr, err := t.store.TraceLifecycle(ctx, id)
	if err != nil {
		return toolError(err)
	}
	tree, err := t.store.RequirementTree(ctx, id)
	if err != nil {
		return toolError(err)
	}

	var b strings.Builder
	r := tr.Requirement
	fmt.Fprintf(&b, "# Trace: %s\n\n", r.ID)
	fmt.Fprintf(&b, "**%s** [%s], %.2f%% complete\n", r.Title, r.Status, r.CompletionPercent())

	b.WriteString("\n## Decomposition\n\n")
	writeTree(&b, tree)

	b.WriteString("\n## Tasks\n\n")
	if len(tr.Tasks) == 0 {
		b.WriteString("No tasks linked.\n")
	}
	for _, task := range tr.Tasks {
		b.WriteString(summaryLine(task.ID, task.Title, task.Status, task.Assignee))
	}

	b.WriteString("\n## Architecture\n\n")
	if len(tr.Architecture) == 0 {
		b.WriteString("No architecture linked.\n")
	}
	for _, a := range tr.Architecture {
		b.WriteString(summaryLine(a.ID, a.Title, a.Status, string(a.Type)))
	}

	b.WriteString("\n## History\n\n")
	writeEvents(&b, tr.Events)
	return mcp.NewToolResultText(b.String()), nil
}
