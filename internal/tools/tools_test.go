package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/lifecycle/internal/lifecycle"
	"github.com/HendryAvila/lifecycle/internal/store"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

// newTestStore creates a store.Store in a temp directory for testing.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	cfg := store.DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "lifecycle.db")
	s, err := store.New(cfg)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// makeReq builds a mcp.CallToolRequest with the given arguments.
func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// resultText extracts the text content from a tool result.
func resultText(r *mcp.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// isErrorResult checks if a CallToolResult is an error result.
func isErrorResult(r *mcp.CallToolResult) bool {
	return r != nil && r.IsError
}

type handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

// call runs a handler and fails the test on a Go error.
func call(t *testing.T, h handler, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	result, err := h(context.Background(), makeReq(args))
	if err != nil {
		t.Fatalf("unexpected Go error: %v", err)
	}
	return result
}

// mustOK runs a handler and fails the test on an error result.
func mustOK(t *testing.T, h handler, args map[string]interface{}) string {
	t.Helper()
	result := call(t, h, args)
	if isErrorResult(result) {
		t.Fatalf("unexpected error result: %s", resultText(result))
	}
	return resultText(result)
}

// mustFail runs a handler and expects an error result containing want.
func mustFail(t *testing.T, h handler, args map[string]interface{}, want string) {
	t.Helper()
	result := call(t, h, args)
	if !isErrorResult(result) {
		t.Fatalf("expected error result, got: %s", resultText(result))
	}
	if !strings.Contains(resultText(result), want) {
		t.Errorf("error %q should contain %q", resultText(result), want)
	}
}

func createRequirement(t *testing.T, s *store.Store, reqType, title string) string {
	t.Helper()
	id, err := s.CreateRequirement(context.Background(), store.CreateRequirementParams{
		Type:         lifecycle.RequirementType(reqType),
		Title:        title,
		Priority:     lifecycle.PriorityP1,
		CurrentState: "today",
		DesiredState: "tomorrow",
	})
	if err != nil {
		t.Fatalf("create requirement: %v", err)
	}
	return id
}

func createTask(t *testing.T, s *store.Store, title string, reqIDs ...string) string {
	t.Helper()
	id, err := s.CreateTask(context.Background(), store.CreateTaskParams{
		Title:          title,
		Priority:       lifecycle.PriorityP2,
		RequirementIDs: reqIDs,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return id
}

func hasRequired(required []string, name string) bool {
	for _, r := range required {
		if r == name {
			return true
		}
	}
	return false
}

// ─── Definitions ─────────────────────────────────────────────────────────────

func TestDefinitions(t *testing.T) {
	s := newTestStore(t)

	tests := []struct {
		def      mcp.Tool
		name     string
		required []string
	}{
		{NewCreateRequirementTool(s, "").Definition(), "create_requirement", []string{"type", "title", "priority", "current_state", "desired_state"}},
		{NewUpdateRequirementStatusTool(s, "").Definition(), "update_requirement_status", []string{"requirement_id", "new_status"}},
		{NewQueryRequirementsTool(s).Definition(), "query_requirements", nil},
		{NewGetRequirementDetailsTool(s).Definition(), "get_requirement_details", []string{"requirement_id"}},
		{NewTraceRequirementTool(s).Definition(), "trace_requirement", []string{"requirement_id"}},
		{NewCreateTaskTool(s, "").Definition(), "create_task", []string{"title", "priority"}},
		{NewUpdateTaskStatusTool(s, "").Definition(), "update_task_status", []string{"task_id", "new_status"}},
		{NewQueryTasksTool(s).Definition(), "query_tasks", nil},
		{NewGetTaskDetailsTool(s).Definition(), "get_task_details", []string{"task_id"}},
		{NewCreateArchitectureTool(s, "").Definition(), "create_architecture_decision", []string{"title", "context", "decision_outcome"}},
		{NewUpdateArchitectureStatusTool(s, "").Definition(), "update_architecture_status", []string{"architecture_id", "new_status"}},
		{NewSupersedeArchitectureTool(s, "").Definition(), "supersede_architecture", []string{"architecture_id", "superseded_by"}},
		{NewQueryArchitectureTool(s).Definition(), "query_architecture_decisions", nil},
		{NewGetArchitectureDetailsTool(s).Definition(), "get_architecture_details", []string{"architecture_id"}},
		{NewAddReviewTool(s, "").Definition(), "add_architecture_review", []string{"entity_id", "comment"}},
		{NewCreateRelationshipTool(s, "").Definition(), "create_relationship", []string{"source_id", "target_id"}},
		{NewQueryRelationshipsTool(s).Definition(), "query_relationships", []string{"entity_id"}},
		{NewProjectStatusTool(s).Definition(), "get_project_status", nil},
		{NewEntityHistoryTool(s).Definition(), "get_entity_history", []string{"entity_id"}},
		{NewTransitionTableTool().Definition(), "get_transition_table", nil},
	}

	seen := map[string]bool{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.def.Name != tt.name {
				t.Errorf("tool name = %q, want %q", tt.def.Name, tt.name)
			}
			if tt.def.Description == "" {
				t.Error("description should not be empty")
			}
			for _, r := range tt.required {
				if _, ok := tt.def.InputSchema.Properties[r]; !ok {
					t.Errorf("missing %q parameter", r)
				}
				if !hasRequired(tt.def.InputSchema.Required, r) {
					t.Errorf("%q should be required", r)
				}
			}
		})
		if seen[tt.name] {
			t.Errorf("duplicate tool name %q", tt.name)
		}
		seen[tt.name] = true
	}
	if len(seen) != 20 {
		t.Errorf("tool count = %d, want 20", len(seen))
	}
}

// ─── Requirements ────────────────────────────────────────────────────────────

func TestCreateRequirementTool(t *testing.T) {
	s := newTestStore(t)
	tool := NewCreateRequirementTool(s, "tester")

	text := mustOK(t, tool.Handle, map[string]interface{}{
		"type":                "func",
		"title":               "Login",
		"priority":            "p1",
		"current_state":       "No login",
		"desired_state":       "Users can log in",
		"acceptance_criteria": "- valid password accepted\n- invalid password rejected",
		"complexity_score":    float64(4),
	})
	if !strings.Contains(text, "REQ-0001-FUNC-00") {
		t.Errorf("expected id in response, got: %s", text)
	}
	if !strings.Contains(text, "Allowed next states: Under Review, Deprecated.") {
		t.Errorf("expected transition hint, got: %s", text)
	}

	r, err := s.GetRequirement(context.Background(), "REQ-0001-FUNC-00")
	if err != nil {
		t.Fatalf("GetRequirement: %v", err)
	}
	if r.Author != "tester" {
		t.Errorf("author = %q, want default actor", r.Author)
	}
	if len(r.AcceptanceCriteria) != 2 || r.AcceptanceCriteria[1] != "invalid password rejected" {
		t.Errorf("acceptance criteria = %v", r.AcceptanceCriteria)
	}
	if r.ComplexityScore != 4 {
		t.Errorf("complexity = %d, want 4", r.ComplexityScore)
	}
}

func TestCreateRequirementTool_WithParent(t *testing.T) {
	s := newTestStore(t)
	parent := createRequirement(t, s, "BUS", "Parent")
	tool := NewCreateRequirementTool(s, "tester")

	text := mustOK(t, tool.Handle, map[string]interface{}{
		"type":                  "FUNC",
		"title":                 "Child",
		"priority":              "P2",
		"current_state":         "a",
		"desired_state":         "b",
		"parent_requirement_id": parent,
	})
	if !strings.Contains(text, "Attached under "+parent) {
		t.Errorf("expected attach confirmation, got: %s", text)
	}

	r, err := s.GetRequirement(context.Background(), "REQ-0001-FUNC-00")
	if err != nil {
		t.Fatalf("GetRequirement: %v", err)
	}
	if r.DecompositionLevel != 1 {
		t.Errorf("level = %d, want 1", r.DecompositionLevel)
	}
}

func TestCreateRequirementTool_RejectedParentCreatesNothing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ids := make([]string, 4)
	for i := range ids {
		ids[i] = createRequirement(t, s, "FUNC", fmt.Sprintf("Level %d", i))
		if i > 0 {
			if _, err := s.LinkEntities(ctx, ids[i], ids[i-1], lifecycle.RelParent, ""); err != nil {
				t.Fatalf("link %s under %s: %v", ids[i], ids[i-1], err)
			}
		}
	}
	tool := NewCreateRequirementTool(s, "tester")

	mustFail(t, tool.Handle, map[string]interface{}{
		"type":                  "FUNC",
		"title":                 "Too deep",
		"priority":              "P2",
		"current_state":         "a",
		"desired_state":         "b",
		"parent_requirement_id": ids[3],
	}, "DEPTH_EXCEEDED")

	reqs, err := s.QueryRequirements(ctx, store.RequirementFilter{})
	if err != nil {
		t.Fatalf("QueryRequirements: %v", err)
	}
	if len(reqs) != 4 {
		t.Errorf("requirements = %d, want 4", len(reqs))
	}
}

func TestCreateRequirementTool_Errors(t *testing.T) {
	s := newTestStore(t)
	tool := NewCreateRequirementTool(s, "")

	base := func() map[string]interface{} {
		return map[string]interface{}{
			"type": "FUNC", "title": "x", "priority": "P1", "current_state": "a", "desired_state": "b",
		}
	}

	args := base()
	delete(args, "title")
	mustFail(t, tool.Handle, args, "'title' is required")

	args = base()
	args["type"] = "NOPE"
	mustFail(t, tool.Handle, args, "VALIDATION_ERROR")

	args = base()
	args["priority"] = "P9"
	mustFail(t, tool.Handle, args, "VALIDATION_ERROR")
}

func TestUpdateRequirementStatusTool(t *testing.T) {
	s := newTestStore(t)
	id := createRequirement(t, s, "FUNC", "Login")
	tool := NewUpdateRequirementStatusTool(s, "tester")

	text := mustOK(t, tool.Handle, map[string]interface{}{
		"requirement_id": id,
		"new_status":     "Under Review",
		"comment":        "ready for review",
	})
	if !strings.Contains(text, "Draft → Under Review") {
		t.Errorf("expected transition in response, got: %s", text)
	}

	text = mustOK(t, tool.Handle, map[string]interface{}{
		"requirement_id": id,
		"new_status":     "Under Review",
	})
	if !strings.Contains(text, "Nothing changed") {
		t.Errorf("same-state update should be a no-op, got: %s", text)
	}

	mustFail(t, tool.Handle, map[string]interface{}{
		"requirement_id": id,
		"new_status":     "Validated",
	}, "INVALID_TRANSITION")

	reviews, err := s.Reviews(context.Background(), id)
	if err != nil {
		t.Fatalf("Reviews: %v", err)
	}
	if len(reviews) != 1 || reviews[0].Comment != "ready for review" {
		t.Errorf("reviews = %+v, want the transition comment", reviews)
	}
}

func TestUpdateRequirementStatusTool_WrongKind(t *testing.T) {
	s := newTestStore(t)
	req := createRequirement(t, s, "FUNC", "Login")
	task := createTask(t, s, "Build login", req)
	tool := NewUpdateRequirementStatusTool(s, "")

	mustFail(t, tool.Handle, map[string]interface{}{
		"requirement_id": task,
		"new_status":     "Under Review",
	}, "not a requirement identifier")
}

func TestUpdateRequirementStatusTool_ValidationGate(t *testing.T) {
	s := newTestStore(t)
	id := createRequirement(t, s, "FUNC", "Login")
	task := createTask(t, s, "Build login", id)
	tool := NewUpdateRequirementStatusTool(s, "")

	for _, st := range []string{"Under Review", "Approved", "Ready", "Implemented"} {
		mustOK(t, tool.Handle, map[string]interface{}{"requirement_id": id, "new_status": st})
	}
	mustFail(t, tool.Handle, map[string]interface{}{
		"requirement_id": id,
		"new_status":     "Validated",
	}, task)
}

func TestQueryRequirementsTool(t *testing.T) {
	s := newTestStore(t)
	createRequirement(t, s, "FUNC", "Login")
	createRequirement(t, s, "TECH", "Database")
	tool := NewQueryRequirementsTool(s)

	text := mustOK(t, tool.Handle, map[string]interface{}{})
	if !strings.Contains(text, "Found 2 requirements") {
		t.Errorf("expected 2 results, got: %s", text)
	}

	text = mustOK(t, tool.Handle, map[string]interface{}{"type": "TECH"})
	if !strings.Contains(text, "REQ-0001-TECH-00") || strings.Contains(text, "REQ-0001-FUNC-00") {
		t.Errorf("type filter not applied: %s", text)
	}

	text = mustOK(t, tool.Handle, map[string]interface{}{"status": "Approved"})
	if text != "No requirements found." {
		t.Errorf("expected empty result, got: %s", text)
	}

	mustFail(t, tool.Handle, map[string]interface{}{"order_by": "title; DROP TABLE requirements"}, "VALIDATION_ERROR")
}

func TestGetRequirementDetailsTool(t *testing.T) {
	s := newTestStore(t)
	id := createRequirement(t, s, "FUNC", "Login")
	task := createTask(t, s, "Build login", id)
	tool := NewGetRequirementDetailsTool(s)

	text := mustOK(t, tool.Handle, map[string]interface{}{"requirement_id": id})
	for _, want := range []string{"## " + id + ": Login", "### Tasks", task, "implements", "0/1 tasks"} {
		if !strings.Contains(text, want) {
			t.Errorf("details should contain %q, got: %s", want, text)
		}
	}

	mustFail(t, tool.Handle, map[string]interface{}{"requirement_id": "REQ-0099-FUNC-00"}, "NOT_FOUND")
}

func TestTraceRequirementTool(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	parent := createRequirement(t, s, "BUS", "Billing")
	child := createRequirement(t, s, "FUNC", "Invoices")
	if _, err := s.LinkEntities(ctx, child, parent, lifecycle.RelParent, ""); err != nil {
		t.Fatalf("link: %v", err)
	}
	task := createTask(t, s, "Invoice PDF", parent)
	if _, err := s.TransitionStatus(ctx, task, lifecycle.StateInProgress, "", ""); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if _, err := s.TransitionStatus(ctx, task, lifecycle.StateComplete, "", ""); err != nil {
		t.Fatalf("transition: %v", err)
	}

	text := mustOK(t, NewTraceRequirementTool(s).Handle, map[string]interface{}{"requirement_id": parent})
	for _, want := range []string{"# Trace: " + parent, "100.00% complete", "  - " + child, task, "| created |", "relationship_added"} {
		if !strings.Contains(text, want) {
			t.Errorf("trace should contain %q, got: %s", want, text)
		}
	}
}

// ─── Tasks ───────────────────────────────────────────────────────────────────

func TestCreateTaskTool(t *testing.T) {
	s := newTestStore(t)
	r1 := createRequirement(t, s, "FUNC", "Login")
	r2 := createRequirement(t, s, "FUNC", "Logout")
	tool := NewCreateTaskTool(s, "tester")

	text := mustOK(t, tool.Handle, map[string]interface{}{
		"title":           "Session handling",
		"priority":        "P1",
		"effort":          "m",
		"requirement_ids": []interface{}{r1, r2},
	})
	if !strings.Contains(text, "TASK-0001-00-00") {
		t.Errorf("expected id in response, got: %s", text)
	}
	if !strings.Contains(text, "Implements: "+r1+", "+r2) {
		t.Errorf("expected linked requirements, got: %s", text)
	}

	text = mustOK(t, tool.Handle, map[string]interface{}{
		"title":          "Cookie storage",
		"priority":       "P2",
		"parent_task_id": "TASK-0001-00-00",
	})
	if !strings.Contains(text, "TASK-0001-01-00") {
		t.Errorf("expected subtask id, got: %s", text)
	}

	r, err := s.GetRequirement(context.Background(), r2)
	if err != nil {
		t.Fatalf("GetRequirement: %v", err)
	}
	if r.TaskCount != 1 {
		t.Errorf("task_count = %d, want 1", r.TaskCount)
	}
}

func TestCreateTaskTool_Errors(t *testing.T) {
	s := newTestStore(t)
	tool := NewCreateTaskTool(s, "")

	mustFail(t, tool.Handle, map[string]interface{}{"title": "x"}, "'priority' is required")
	mustFail(t, tool.Handle, map[string]interface{}{
		"title": "x", "priority": "P1", "requirement_ids": "REQ-0042-FUNC-00",
	}, "NOT_FOUND")
	mustFail(t, tool.Handle, map[string]interface{}{
		"title": "x", "priority": "P1", "effort": "HUGE",
	}, "VALIDATION_ERROR")
}

func TestUpdateTaskStatusTool_UpdatesProgress(t *testing.T) {
	s := newTestStore(t)
	req := createRequirement(t, s, "FUNC", "Login")
	t1 := createTask(t, s, "One", req)
	createTask(t, s, "Two", req)
	tool := NewUpdateTaskStatusTool(s, "")

	mustOK(t, tool.Handle, map[string]interface{}{"task_id": t1, "new_status": "In Progress"})
	text := mustOK(t, tool.Handle, map[string]interface{}{"task_id": t1, "new_status": "Complete"})
	if !strings.Contains(text, "In Progress → Complete") {
		t.Errorf("expected transition, got: %s", text)
	}

	p, err := s.RequirementProgress(context.Background(), req)
	if err != nil {
		t.Fatalf("RequirementProgress: %v", err)
	}
	if p.CompletionPercent != 50 {
		t.Errorf("completion = %v, want 50", p.CompletionPercent)
	}

	mustFail(t, tool.Handle, map[string]interface{}{"task_id": t1, "new_status": "Abandoned"}, "INVALID_TRANSITION")
}

func TestQueryTasksTool(t *testing.T) {
	s := newTestStore(t)
	req := createRequirement(t, s, "FUNC", "Login")
	createTask(t, s, "One", req)
	createTask(t, s, "Unlinked")
	tool := NewQueryTasksTool(s)

	text := mustOK(t, tool.Handle, map[string]interface{}{"requirement_id": req})
	if !strings.Contains(text, "Found 1 tasks") {
		t.Errorf("expected 1 result, got: %s", text)
	}
	text = mustOK(t, tool.Handle, map[string]interface{}{"status": "Blocked"})
	if text != "No tasks found." {
		t.Errorf("expected empty result, got: %s", text)
	}
}

func TestGetTaskDetailsTool(t *testing.T) {
	s := newTestStore(t)
	req := createRequirement(t, s, "FUNC", "Login")
	parent := createTask(t, s, "Parent", req)
	sub, err := s.CreateTask(context.Background(), store.CreateTaskParams{
		Title: "Child", Priority: lifecycle.PriorityP3, ParentTaskID: parent,
	})
	if err != nil {
		t.Fatalf("create subtask: %v", err)
	}

	text := mustOK(t, NewGetTaskDetailsTool(s).Handle, map[string]interface{}{"task_id": parent})
	for _, want := range []string{"### Implements", req, "### Subtasks", sub} {
		if !strings.Contains(text, want) {
			t.Errorf("details should contain %q, got: %s", want, text)
		}
	}
}

// ─── Architecture ────────────────────────────────────────────────────────────

func TestCreateArchitectureTool(t *testing.T) {
	s := newTestStore(t)
	req := createRequirement(t, s, "TECH", "Storage")
	tool := NewCreateArchitectureTool(s, "tester")

	text := mustOK(t, tool.Handle, map[string]interface{}{
		"title":            "Use SQLite",
		"context":          "We need an embedded store",
		"decision_outcome": "SQLite with WAL",
		"authors":          "ana, bo",
		"requirement_ids":  req,
	})
	if !strings.Contains(text, "Created ADR ADR-0001 (Proposed)") {
		t.Errorf("unexpected response: %s", text)
	}

	text = mustOK(t, tool.Handle, map[string]interface{}{
		"type":             "TDD",
		"title":            "Auth design",
		"context":          "c",
		"decision_outcome": "d",
		"component":        "auth",
	})
	if !strings.Contains(text, "TDD-0001-AUTH-00 (Draft)") {
		t.Errorf("unexpected response: %s", text)
	}

	a, err := s.GetArchitecture(context.Background(), "ADR-0001")
	if err != nil {
		t.Fatalf("GetArchitecture: %v", err)
	}
	if len(a.Authors) != 2 || a.Authors[1] != "bo" {
		t.Errorf("authors = %v", a.Authors)
	}

	mustFail(t, tool.Handle, map[string]interface{}{
		"type": "TDD", "title": "x", "context": "c", "decision_outcome": "d",
	}, "VALIDATION_ERROR")
}

func TestSupersedeArchitectureTool(t *testing.T) {
	s := newTestStore(t)
	create := NewCreateArchitectureTool(s, "")
	update := NewUpdateArchitectureStatusTool(s, "")
	supersede := NewSupersedeArchitectureTool(s, "")

	for _, title := range []string{"Old", "New"} {
		mustOK(t, create.Handle, map[string]interface{}{"title": title, "context": "c", "decision_outcome": "d"})
	}
	for _, st := range []string{"Under Review", "Approved"} {
		mustOK(t, update.Handle, map[string]interface{}{"architecture_id": "ADR-0001", "new_status": st})
	}

	mustFail(t, supersede.Handle, map[string]interface{}{
		"architecture_id": "ADR-0001", "superseded_by": "ADR-0001",
	}, "VALIDATION_ERROR")

	text := mustOK(t, supersede.Handle, map[string]interface{}{
		"architecture_id": "ADR-0001", "superseded_by": "ADR-0002",
	})
	if !strings.Contains(text, "Approved → Superseded") {
		t.Errorf("unexpected response: %s", text)
	}

	text = mustOK(t, NewGetArchitectureDetailsTool(s).Handle, map[string]interface{}{"architecture_id": "ADR-0001"})
	if !strings.Contains(text, "**Superseded by:** ADR-0002") {
		t.Errorf("details should show replacement, got: %s", text)
	}
	if !strings.Contains(text, "Superseded is terminal.") {
		t.Errorf("details should mark terminal state, got: %s", text)
	}
}

func TestQueryArchitectureTool(t *testing.T) {
	s := newTestStore(t)
	create := NewCreateArchitectureTool(s, "")
	mustOK(t, create.Handle, map[string]interface{}{"title": "Use SQLite", "context": "c", "decision_outcome": "d"})
	mustOK(t, create.Handle, map[string]interface{}{
		"type": "INTG", "title": "Billing API", "context": "c", "decision_outcome": "d", "component": "billing",
	})
	tool := NewQueryArchitectureTool(s)

	text := mustOK(t, tool.Handle, map[string]interface{}{"type": "INTG"})
	if !strings.Contains(text, "INTG-0001-BILLING-00") || strings.Contains(text, "ADR-0001") {
		t.Errorf("type filter not applied: %s", text)
	}
	text = mustOK(t, tool.Handle, map[string]interface{}{"search": "sqlite"})
	if !strings.Contains(text, "ADR-0001") {
		t.Errorf("search should find the ADR, got: %s", text)
	}
}

func TestAddReviewTool(t *testing.T) {
	s := newTestStore(t)
	mustOK(t, NewCreateArchitectureTool(s, "").Handle, map[string]interface{}{
		"title": "Use SQLite", "context": "c", "decision_outcome": "d",
	})
	tool := NewAddReviewTool(s, "default-reviewer")

	text := mustOK(t, tool.Handle, map[string]interface{}{"entity_id": "ADR-0001", "comment": "Looks good"})
	if !strings.Contains(text, "default-reviewer") {
		t.Errorf("expected default reviewer, got: %s", text)
	}

	history, err := s.History(context.Background(), "ADR-0001")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("review should not emit events, got %d events", len(history))
	}

	mustFail(t, tool.Handle, map[string]interface{}{"entity_id": "ADR-0009", "comment": "x"}, "NOT_FOUND")
}

// ─── Relationships ───────────────────────────────────────────────────────────

func TestCreateRelationshipTool(t *testing.T) {
	s := newTestStore(t)
	a := createRequirement(t, s, "FUNC", "A")
	b := createRequirement(t, s, "FUNC", "B")
	task := createTask(t, s, "T")
	tool := NewCreateRelationshipTool(s, "")

	text := mustOK(t, tool.Handle, map[string]interface{}{"source_id": a, "target_id": task})
	if !strings.Contains(text, "Linked") {
		t.Errorf("unexpected response: %s", text)
	}
	text = mustOK(t, tool.Handle, map[string]interface{}{"source_id": a, "target_id": task})
	if !strings.Contains(text, "already exists") {
		t.Errorf("duplicate link should be a no-op, got: %s", text)
	}

	mustOK(t, tool.Handle, map[string]interface{}{"source_id": a, "target_id": b, "relationship": "depends"})
	mustFail(t, tool.Handle, map[string]interface{}{"source_id": b, "target_id": a, "relationship": "depends"}, "CIRCULAR_DEPENDENCY")
	mustFail(t, tool.Handle, map[string]interface{}{"source_id": a, "target_id": b}, "VALIDATION_ERROR")
	mustFail(t, tool.Handle, map[string]interface{}{"source_id": task, "target_id": a, "relationship": "blocks"}, "VALIDATION_ERROR")

	text = mustOK(t, tool.Handle, map[string]interface{}{"source_id": task, "target_id": a, "relationship": "implements"})
	if !strings.Contains(text, "already exists") {
		t.Errorf("task implements requirement is the same edge, got: %s", text)
	}
	other := createTask(t, s, "U")
	mustOK(t, tool.Handle, map[string]interface{}{"source_id": other, "target_id": b})
	r, err := s.GetRequirement(context.Background(), b)
	if err != nil {
		t.Fatalf("GetRequirement: %v", err)
	}
	if r.TaskCount != 1 {
		t.Errorf("task_count = %d, want 1", r.TaskCount)
	}
}

func TestCreateRelationshipTool_DepthExceeded(t *testing.T) {
	s := newTestStore(t)
	tool := NewCreateRelationshipTool(s, "")

	ids := make([]string, 5)
	for i := range ids {
		ids[i] = createRequirement(t, s, "FUNC", "level")
	}
	for i := 1; i < 4; i++ {
		mustOK(t, tool.Handle, map[string]interface{}{"source_id": ids[i], "target_id": ids[i-1], "relationship": "parent"})
	}
	mustFail(t, tool.Handle, map[string]interface{}{
		"source_id": ids[4], "target_id": ids[3], "relationship": "parent",
	}, "DEPTH_EXCEEDED")
}

func TestQueryRelationshipsTool(t *testing.T) {
	s := newTestStore(t)
	parent := createTask(t, s, "Parent")
	child, err := s.CreateTask(context.Background(), store.CreateTaskParams{
		Title: "Child", Priority: lifecycle.PriorityP2, ParentTaskID: parent,
	})
	if err != nil {
		t.Fatalf("create subtask: %v", err)
	}
	tool := NewQueryRelationshipsTool(s)

	text := mustOK(t, tool.Handle, map[string]interface{}{"entity_id": parent})
	for _, want := range []string{child + " **parent** " + parent, "### Hierarchy", "  - " + child} {
		if !strings.Contains(text, want) {
			t.Errorf("result should contain %q, got: %s", want, text)
		}
	}

	mustFail(t, tool.Handle, map[string]interface{}{"entity_id": "FOO-1"}, "VALIDATION_ERROR")
}

// ─── Status ──────────────────────────────────────────────────────────────────

func TestProjectStatusTool(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	req := createRequirement(t, s, "FUNC", "Login")
	createTask(t, s, "Waiting", req)
	blocked := createTask(t, s, "Stuck", req)
	if _, err := s.TransitionStatus(ctx, blocked, lifecycle.StateBlocked, "", ""); err != nil {
		t.Fatalf("transition: %v", err)
	}

	text := mustOK(t, NewProjectStatusTool(s).Handle, map[string]interface{}{})
	for _, want := range []string{"## Requirements (1)", "- Draft: 1", "## Tasks (2)", "- Not Started: 1", "- Blocked: 1", "## Blocked (1)", blocked} {
		if !strings.Contains(text, want) {
			t.Errorf("status should contain %q, got: %s", want, text)
		}
	}
}

func TestProjectStatusTool_Empty(t *testing.T) {
	s := newTestStore(t)
	text := mustOK(t, NewProjectStatusTool(s).Handle, map[string]interface{}{})
	if !strings.Contains(text, "Nothing is blocked.") {
		t.Errorf("empty project should report nothing blocked, got: %s", text)
	}
}

func TestEntityHistoryTool(t *testing.T) {
	s := newTestStore(t)
	id := createRequirement(t, s, "FUNC", "Login")
	mustOK(t, NewUpdateRequirementStatusTool(s, "ana").Handle, map[string]interface{}{
		"requirement_id": id, "new_status": "Under Review", "comment": "please look",
	})

	text := mustOK(t, NewEntityHistoryTool(s).Handle, map[string]interface{}{"entity_id": id})
	for _, want := range []string{"[Under Review]", "| created |", "| status_changed | Draft | Under Review | ana |", "please look"} {
		if !strings.Contains(text, want) {
			t.Errorf("history should contain %q, got: %s", want, text)
		}
	}

	mustFail(t, NewEntityHistoryTool(s).Handle, map[string]interface{}{"entity_id": "TASK-0009-00-00"}, "NOT_FOUND")
}

func TestTransitionTableTool(t *testing.T) {
	tool := NewTransitionTableTool()

	text := mustOK(t, tool.Handle, map[string]interface{}{})
	if text != lifecycle.RenderAllTables() {
		t.Error("default should render every table")
	}
	text = mustOK(t, tool.Handle, map[string]interface{}{"entity_type": "task"})
	if text != lifecycle.RenderTable(lifecycle.KindTask) {
		t.Error("entity_type should select one table")
	}
	mustFail(t, tool.Handle, map[string]interface{}{"entity_type": "epic"}, "VALIDATION_ERROR")
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func TestListArg(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want []string
	}{
		{"array", []interface{}{"a", " b ", 3}, []string{"a", "b"}},
		{"commas", "a, b,,c", []string{"a", "b", "c"}},
		{"bullets", "- a\n- b", []string{"a", "b"}},
		{"missing", nil, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := map[string]interface{}{}
			if tt.in != nil {
				args["items"] = tt.in
			}
			got := listArg(makeReq(args), "items")
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("listArg = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTextListArg_KeepsCommas(t *testing.T) {
	got := textListArg(makeReq(map[string]interface{}{"c": "a, b\n- c"}), "c")
	if len(got) != 2 || got[0] != "a, b" || got[1] != "c" {
		t.Errorf("textListArg = %v", got)
	}
}
