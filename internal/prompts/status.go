// Package prompts implements MCP prompt handlers for the lifecycle engine.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// StatusPrompt handles the lifecycle-status MCP prompt.
// It instructs the AI to read and present the current project state.
type StatusPrompt struct{}

// NewStatusPrompt creates a StatusPrompt.
func NewStatusPrompt() *StatusPrompt {
	return &StatusPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StatusPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("lifecycle-status",
		mcp.WithPromptDescription(
			"Check where the project stands. "+
				"Shows requirement and task counts, average completion, "+
				"blocked work and what to do next.",
		),
	)
}

// Handle processes the lifecycle-status prompt request.
func (p *StatusPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{
		Description: "Lifecycle Project Status",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(
					"Please run `get_project_status` to check where my project stands.\n\n" +
						"Then:\n" +
						"1. Summarize requirements and tasks by status\n" +
						"2. List every blocked item and what it is waiting on\n" +
						"3. For requirements in Implemented, check with `get_requirement_details` whether all tasks are Complete\n" +
						"4. Tell me the next status change that would unblock the most work",
				),
			},
		},
	}, nil
}
