package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/lifecycle/internal/lifecycle"
	"github.com/HendryAvila/lifecycle/internal/store"
)

// ─── create_architecture_decision ────────────────────────────────────────────

// CreateArchitectureTool handles the create_architecture_decision MCP tool.
type CreateArchitectureTool struct {
	store *store.Store
	actor string
}

// NewCreateArchitectureTool creates a CreateArchitectureTool.
func NewCreateArchitectureTool(s *store.Store, actor string) *CreateArchitectureTool {
	return &CreateArchitectureTool{store: s, actor: actor}
}

// Definition returns the MCP tool definition for create_architecture_decision.
func (t *CreateArchitectureTool) Definition() mcp.Tool {
	return mcp.NewTool("create_architecture_decision",
		mcp.WithDescription(
			"Record an architecture document. ADRs start Proposed; TDD and INTG documents start Draft "+
				"and are numbered per component (TDD-NNNN-COMPONENT-00).",
		),
		mcp.WithString("type",
			mcp.Description("Document type (default: ADR)"),
			mcp.Enum("ADR", "TDD", "INTG"),
		),
		mcp.WithString("title", mcp.Required(), mcp.Description("Short title")),
		mcp.WithString("context", mcp.Required(), mcp.Description("The forces at play")),
		mcp.WithString("decision_outcome", mcp.Required(), mcp.Description("What was decided")),
		mcp.WithString("component", mcp.Description("Component name, required for TDD and INTG")),
		mcp.WithString("decision_drivers", mcp.Description("One driver per line")),
		mcp.WithString("considered_options", mcp.Description("One option per line")),
		mcp.WithString("consequences", mcp.Description("What becomes easier or harder")),
		mcp.WithString("authors", mcp.Description("Comma separated author names")),
		mcp.WithString("requirement_ids", mcp.Description("Requirements this document addresses")),
		mcp.WithString("actor", mcp.Description("Who is making the change")),
	)
}

// Handle processes the create_architecture_decision tool call.
func (t *CreateArchitectureTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := required(req, "title", "context", "decision_outcome"); res != nil {
		return res, nil
	}
	archType := lifecycle.ArchitectureType(strings.ToUpper(req.GetString("type", string(lifecycle.ArchADR))))

	id, err := t.store.CreateArchitecture(ctx, store.CreateArchitectureParams{
		Type:              archType,
		Title:             req.GetString("title", ""),
		Context:           req.GetString("context", ""),
		Decision:          req.GetString("decision_outcome", ""),
		Component:         req.GetString("component", ""),
		DecisionDrivers:   textListArg(req, "decision_drivers"),
		ConsideredOptions: textListArg(req, "considered_options"),
		Consequences:      req.GetString("consequences", ""),
		Authors:           listArg(req, "authors"),
		RequirementIDs:    listArg(req, "requirement_ids"),
		Actor:             actorArg(req, t.actor),
	})
	if err != nil {
		return toolError(err)
	}

	initial := lifecycle.InitialArchitectureState(archType)
	var b strings.Builder
	fmt.Fprintf(&b, "Created %s %s (%s).\n\n", archType, id, initial)
	b.WriteString(transitionHint(lifecycle.KindArchitecture, initial) + "\n")
	return mcp.NewToolResultText(b.String()), nil
}

// ─── update_architecture_status ──────────────────────────────────────────────

// UpdateArchitectureStatusTool handles the update_architecture_status MCP tool.
type UpdateArchitectureStatusTool struct {
	store *store.Store
	actor string
}

// NewUpdateArchitectureStatusTool creates an UpdateArchitectureStatusTool.
func NewUpdateArchitectureStatusTool(s *store.Store, actor string) *UpdateArchitectureStatusTool {
	return &UpdateArchitectureStatusTool{store: s, actor: actor}
}

// Definition returns the MCP tool definition for update_architecture_status.
func (t *UpdateArchitectureStatusTool) Definition() mcp.Tool {
	return statusToolDefinition("update_architecture_status", "architecture_id", lifecycle.KindArchitecture,
		"Move an architecture document along its lifecycle. Use supersede_architecture "+
			"to replace an accepted decision.")
}

// Handle processes the update_architecture_status tool call.
func (t *UpdateArchitectureStatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return handleStatusChange(ctx, t.store, req, "architecture_id", lifecycle.KindArchitecture, t.actor)
}

// ─── supersede_architecture ──────────────────────────────────────────────────

// SupersedeArchitectureTool handles the supersede_architecture MCP tool.
type SupersedeArchitectureTool struct {
	store *store.Store
	actor string
}

// NewSupersedeArchitectureTool creates a SupersedeArchitectureTool.
func NewSupersedeArchitectureTool(s *store.Store, actor string) *SupersedeArchitectureTool {
	return &SupersedeArchitectureTool{store: s, actor: actor}
}

// Definition returns the MCP tool definition for supersede_architecture.
func (t *SupersedeArchitectureTool) Definition() mcp.Tool {
	return mcp.NewTool("supersede_architecture",
		mcp.WithDescription(
			"Mark an architecture document Superseded and record its replacement. "+
				"The replacement must exist and must not be superseded itself.",
		),
		mcp.WithString("architecture_id", mcp.Required(), mcp.Description("Document being replaced")),
		mcp.WithString("superseded_by", mcp.Required(), mcp.Description("Replacement document")),
		mcp.WithString("comment", mcp.Description("Optional review comment")),
		mcp.WithString("actor", mcp.Description("Who is making the change")),
	)
}

// Handle processes the supersede_architecture tool call.
func (t *SupersedeArchitectureTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := required(req, "architecture_id", "superseded_by"); res != nil {
		return res, nil
	}
	id := strings.TrimSpace(req.GetString("architecture_id", ""))
	repl := strings.TrimSpace(req.GetString("superseded_by", ""))

	ev, err := t.store.Supersede(ctx, id, repl, actorArg(req, t.actor), req.GetString("comment", ""))
	if err != nil {
		return toolError(err)
	}
	if ev == nil {
		return mcp.NewToolResultText(fmt.Sprintf("%s is already superseded by %s. Nothing changed.", id, repl)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s: %s → %s (superseded by %s)", id, ev.From, ev.To, repl)), nil
}

// ─── query_architecture_decisions ────────────────────────────────────────────

// QueryArchitectureTool handles the query_architecture_decisions MCP tool.
type QueryArchitectureTool struct {
	store *store.Store
}

// NewQueryArchitectureTool creates a QueryArchitectureTool.
func NewQueryArchitectureTool(s *store.Store) *QueryArchitectureTool {
	return &QueryArchitectureTool{store: s}
}

// Definition returns the MCP tool definition for query_architecture_decisions.
func (t *QueryArchitectureTool) Definition() mcp.Tool {
	return mcp.NewTool("query_architecture_decisions",
		mcp.WithDescription("List architecture documents, optionally filtered."),
		mcp.WithString("status", mcp.Description("Filter by status")),
		mcp.WithString("type", mcp.Description("Filter by type"), mcp.Enum("ADR", "TDD", "INTG")),
		mcp.WithString("requirement_id", mcp.Description("Only documents addressing this requirement")),
		mcp.WithString("search", mcp.Description("Case-insensitive text search over title, context and decision")),
		mcp.WithString("order_by",
			mcp.Description("Sort order (default: id)"),
			mcp.Enum("id", "created_at", "updated_at", "status"),
		),
		mcp.WithNumber("limit", mcp.Description("Max results (default: 50)")),
	)
}

// Handle processes the query_architecture_decisions tool call.
func (t *QueryArchitectureTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs, err := t.store.QueryArchitecture(ctx, store.ArchitectureFilter{
		Status:        lifecycle.State(req.GetString("status", "")),
		Type:          lifecycle.ArchitectureType(req.GetString("type", "")),
		RequirementID: req.GetString("requirement_id", ""),
		Search:        req.GetString("search", ""),
		OrderBy:       req.GetString("order_by", "id"),
		Limit:         intArg(req, "limit", 50),
	})
	if err != nil {
		return toolError(err)
	}
	if len(docs) == 0 {
		return mcp.NewToolResultText("No architecture documents found."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d architecture documents:\n\n", len(docs))
	for _, a := range docs {
		extra := string(a.Type)
		if a.SupersededBy != "" {
			extra += ", superseded by " + a.SupersededBy
		}
		b.WriteString(summaryLine(a.ID, a.Title, a.Status, extra))
	}
	return mcp.NewToolResultText(b.String()), nil
}

// ─── get_architecture_details ────────────────────────────────────────────────

// GetArchitectureDetailsTool handles the get_architecture_details MCP tool.
type GetArchitectureDetailsTool struct {
	store *store.Store
}

// NewGetArchitectureDetailsTool creates a GetArchitectureDetailsTool.
func NewGetArchitectureDetailsTool(s *store.Store) *GetArchitectureDetailsTool {
	return &GetArchitectureDetailsTool{store: s}
}

// Definition returns the MCP tool definition for get_architecture_details.
func (t *GetArchitectureDetailsTool) Definition() mcp.Tool {
	return mcp.NewTool("get_architecture_details",
		mcp.WithDescription("Show an architecture document with the requirements it addresses and its reviews."),
		mcp.WithString("architecture_id", mcp.Required(), mcp.Description("Architecture identifier")),
	)
}

// Handle processes the get_architecture_details tool call.
func (t *GetArchitectureDetailsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := required(req, "architecture_id"); res != nil {
		return res, nil
	}
	d, err := t.store.ArchitectureDetailsByID(ctx, strings.TrimSpace(req.GetString("architecture_id", "")))
	if err != nil {
		return toolError(err)
	}

	var b strings.Builder
	writeArchitecture(&b, d.Architecture)
	if len(d.Requirements) > 0 {
		b.WriteString("\n### Addresses\n\n")
		for _, r := range d.Requirements {
			b.WriteString(summaryLine(r.ID, r.Title, r.Status, ""))
		}
	}
	writeLinks(&b, d.Links)
	writeReviews(&b, d.Reviews)
	b.WriteString("\n" + transitionHint(lifecycle.KindArchitecture, d.Architecture.Status) + "\n")
	return mcp.NewToolResultText(b.String()), nil
}

// ─── add_architecture_review ─────────────────────────────────────────────────

// AddReviewTool handles the add_architecture_review MCP tool. Reviews can be
// attached to any entity, not only architecture documents.
type AddReviewTool struct {
	store *store.Store
	actor string
}

// NewAddReviewTool creates an AddReviewTool.
func NewAddReviewTool(s *store.Store, actor string) *AddReviewTool {
	return &AddReviewTool{store: s, actor: actor}
}

// Definition returns the MCP tool definition for add_architecture_review.
func (t *AddReviewTool) Definition() mcp.Tool {
	return mcp.NewTool("add_architecture_review",
		mcp.WithDescription("Attach a review comment to an entity. This is not a status change."),
		mcp.WithString("entity_id", mcp.Required(), mcp.Description("Requirement, task or architecture identifier")),
		mcp.WithString("comment", mcp.Required(), mcp.Description("Review text")),
		mcp.WithString("reviewer", mcp.Description("Who is reviewing (default: configured actor)")),
	)
}

// Handle processes the add_architecture_review tool call.
func (t *AddReviewTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := required(req, "entity_id", "comment"); res != nil {
		return res, nil
	}
	id := strings.TrimSpace(req.GetString("entity_id", ""))
	reviewer := strings.TrimSpace(req.GetString("reviewer", ""))
	if reviewer == "" {
		reviewer = t.actor
	}

	if err := t.store.AddReview(ctx, id, reviewer, req.GetString("comment", "")); err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(fmt.Sprintf("Review by %s added to %s.", reviewer, id)), nil
}
