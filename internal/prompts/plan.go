package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// PlanPrompt handles the lifecycle-plan MCP prompt.
// It guides the AI from a goal to linked requirements, tasks and decisions.
type PlanPrompt struct{}

// NewPlanPrompt creates a PlanPrompt.
func NewPlanPrompt() *PlanPrompt {
	return &PlanPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *PlanPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("lifecycle-plan",
		mcp.WithPromptDescription(
			"Turn a goal into tracked work: a requirement, its decomposition, "+
				"implementing tasks and the architecture decisions behind them.",
		),
		mcp.WithArgument("goal",
			mcp.ArgumentDescription("What you want to build or change"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("type",
			mcp.ArgumentDescription("Requirement type: FUNC, NFUNC, TECH, BUS or INTF. Default: FUNC"),
		),
	)
}

// Handle processes the lifecycle-plan prompt request.
func (p *PlanPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	goal := "the goal I describe next"
	reqType := "FUNC"
	if args := req.Params.Arguments; args != nil {
		if g, ok := args["goal"]; ok && g != "" {
			goal = g
		}
		if t, ok := args["type"]; ok && t != "" {
			reqType = t
		}
	}

	return &mcp.GetPromptResult{
		Description: "Plan tracked work",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"I want to plan this: %s\n\n"+
						"1. Run `query_requirements` with a search for the key terms so we don't duplicate existing work\n"+
						"2. Create a %s requirement with `create_requirement`. Ask me for the current and desired state if they are unclear\n"+
						"3. If the goal spans several features, create child requirements with `parent_requirement_id` (top level is 0, the deepest is 3)\n"+
						"4. Record any significant technical choice with `create_architecture_decision` and link it via `requirement_ids`\n"+
						"5. Break each leaf requirement into tasks with `create_task`, and use `create_relationship` with `blocks` or `requires` for ordering\n"+
						"6. Finish with `trace_requirement` on the top requirement and show me the result",
					goal, reqType,
				)),
			},
		},
	}, nil
}
