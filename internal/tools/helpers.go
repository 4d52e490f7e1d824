// Package tools implements MCP tool handlers for the lifecycle engine.
//
// Each tool is a struct that receives the store via its constructor and
// exposes Definition() for registration and Handle() with mcp-go's
// CallToolRequest signature. Tools are protocol glue: every rule is
// enforced by the store and the lifecycle package, and rejections come
// back as tool errors carrying the error code.
package tools

import (
	"errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/lifecycle/internal/lifecycle"
)

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// listArg reads a list argument. Clients may send a JSON array or a
// string with one item per line or comma.
func listArg(req mcp.CallToolRequest, key string) []string {
	var raw []string
	switch v := req.GetArguments()[key].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	case string:
		raw = strings.FieldsFunc(v, func(r rune) bool { return r == '\n' || r == ',' })
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "- ")); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// textListArg is listArg without comma splitting, for free-text items
// such as acceptance criteria.
func textListArg(req mcp.CallToolRequest, key string) []string {
	if v, ok := req.GetArguments()[key].(string); ok {
		var out []string
		for _, line := range strings.Split(v, "\n") {
			if line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "- ")); line != "" {
				out = append(out, line)
			}
		}
		return out
	}
	return listArg(req, key)
}

// actorArg returns the "actor" argument or the configured default.
func actorArg(req mcp.CallToolRequest, defaultActor string) string {
	if a := strings.TrimSpace(req.GetString("actor", "")); a != "" {
		return a
	}
	return defaultActor
}

// toolError turns a rejected operation into a tool result the model can
// act on. Infrastructure failures are returned as Go errors.
func toolError(err error) (*mcp.CallToolResult, error) {
	var le *lifecycle.Error
	if errors.As(err, &le) {
		return mcp.NewToolResultError(le.Error()), nil
	}
	return nil, err
}

// required returns an error result when any named argument is blank.
func required(req mcp.CallToolRequest, names ...string) *mcp.CallToolResult {
	for _, name := range names {
		if strings.TrimSpace(req.GetString(name, "")) == "" {
			return mcp.NewToolResultError("'" + name + "' is required")
		}
	}
	return nil
}
