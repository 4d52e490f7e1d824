package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/lifecycle/internal/lifecycle"
	"github.com/HendryAvila/lifecycle/internal/store"
)

// ─── create_relationship ─────────────────────────────────────────────────────

// CreateRelationshipTool handles the create_relationship MCP tool.
type CreateRelationshipTool struct {
	store *store.Store
	actor string
}

// NewCreateRelationshipTool creates a CreateRelationshipTool.
func NewCreateRelationshipTool(s *store.Store, actor string) *CreateRelationshipTool {
	return &CreateRelationshipTool{store: s, actor: actor}
}

// Definition returns the MCP tool definition for create_relationship.
func (t *CreateRelationshipTool) Definition() mcp.Tool {
	return mcp.NewTool("create_relationship",
		mcp.WithDescription(
			"Link two entities. The link reads \"source <relationship> target\":\n"+
				"- requirement → task: implements (task → requirement is accepted too)\n"+
				"- requirement → architecture: addresses (architecture → requirement is accepted too)\n"+
				"- task → task: parent, blocks, informs, requires\n"+
				"- requirement → requirement: parent, depends, refines, conflicts, relates\n\n"+
				"'parent' makes the source a child of the target. 'blocks', 'requires' and 'depends' "+
				"hold the source back until the target is done. Cycles and requirement trees reaching "+
				"beyond decomposition level 3 are rejected. Linking twice is harmless.",
		),
		mcp.WithString("source_id", mcp.Required(), mcp.Description("Source entity identifier")),
		mcp.WithString("target_id", mcp.Required(), mcp.Description("Target entity identifier")),
		mcp.WithString("relationship",
			mcp.Description("Relationship kind. Optional when only one kind exists between the two entity kinds."),
			mcp.Enum(
				string(lifecycle.RelImplements), string(lifecycle.RelAddresses), string(lifecycle.RelParent),
				string(lifecycle.RelDepends), string(lifecycle.RelRefines), string(lifecycle.RelConflicts),
				string(lifecycle.RelRelates), string(lifecycle.RelBlocks), string(lifecycle.RelInforms),
				string(lifecycle.RelRequires),
			),
		),
		mcp.WithString("actor", mcp.Description("Who is making the change")),
	)
}

// Handle processes the create_relationship tool call.
func (t *CreateRelationshipTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := required(req, "source_id", "target_id"); res != nil {
		return res, nil
	}
	src := strings.TrimSpace(req.GetString("source_id", ""))
	dst := strings.TrimSpace(req.GetString("target_id", ""))
	rel := lifecycle.Relationship(strings.ToLower(strings.TrimSpace(req.GetString("relationship", ""))))

	created, err := t.store.LinkEntities(ctx, src, dst, rel, actorArg(req, t.actor))
	if err != nil {
		return toolError(err)
	}
	label := string(rel)
	if label == "" {
		label = "linked to"
	}
	if !created {
		return mcp.NewToolResultText(fmt.Sprintf("%s %s %s already exists. Nothing changed.", src, label, dst)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Linked: %s %s %s", src, label, dst)), nil
}

// ─── query_relationships ─────────────────────────────────────────────────────

// QueryRelationshipsTool handles the query_relationships MCP tool.
type QueryRelationshipsTool struct {
	store *store.Store
}

// NewQueryRelationshipsTool creates a QueryRelationshipsTool.
func NewQueryRelationshipsTool(s *store.Store) *QueryRelationshipsTool {
	return &QueryRelationshipsTool{store: s}
}

// Definition returns the MCP tool definition for query_relationships.
func (t *QueryRelationshipsTool) Definition() mcp.Tool {
	return mcp.NewTool("query_relationships",
		mcp.WithDescription(
			"List every relationship touching an entity, in either direction. "+
				"For requirements and tasks the hierarchy below the entity is shown too.",
		),
		mcp.WithString("entity_id", mcp.Required(), mcp.Description("Entity identifier")),
	)
}

// Handle processes the query_relationships tool call.
func (t *QueryRelationshipsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := required(req, "entity_id"); res != nil {
		return res, nil
	}
	id := strings.TrimSpace(req.GetString("entity_id", ""))
	kind, err := lifecycle.KindOf(id)
	if err != nil {
		return toolError(err)
	}

	links, err := t.store.Relationships(ctx, id)
	if err != nil {
		return toolError(err)
	}

	var tree []store.TreeNode
	switch kind {
	case lifecycle.KindRequirement:
		tree, err = t.store.RequirementTree(ctx, id)
	case lifecycle.KindTask:
		tree, err = t.store.TaskTree(ctx, id)
	}
	if err != nil {
		return toolError(err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Relationships: %s\n", id)
	if len(links) == 0 {
		b.WriteString("\nNo relationships.\n")
	}
	writeLinks(&b, links)
	if len(tree) > 1 {
		b.WriteString("\n### Hierarchy\n\n")
		writeTree(&b, tree)
	}
	return mcp.NewToolResultText(b.String()), nil
}
