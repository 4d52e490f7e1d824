package store

import (
	"database/sql"
	"encoding/json"
	"math"
	"time"

	"github.com/HendryAvila/lifecycle/internal/lifecycle"
)

// timeNow is a package-level variable so tests can freeze time.
var timeNow = time.Now

func now() string {
	return timeNow().UTC().Format(time.RFC3339)
}

// ─── Entities ────────────────────────────────────────────────────────────────

// Requirement is a tracked requirement.
type Requirement struct {
	ID                     string                    `json:"id"`
	Number                 int                       `json:"requirement_number"`
	Type                   lifecycle.RequirementType `json:"type"`
	Version                int                       `json:"version"`
	Title                  string                    `json:"title"`
	Status                 lifecycle.State           `json:"status"`
	Priority               lifecycle.Priority        `json:"priority"`
	Risk                   lifecycle.Risk            `json:"risk_level"`
	CurrentState           string                    `json:"current_state"`
	DesiredState           string                    `json:"desired_state"`
	FunctionalRequirements []string                  `json:"functional_requirements"`
	AcceptanceCriteria     []string                  `json:"acceptance_criteria"`
	BusinessValue          string                    `json:"business_value,omitempty"`
	Author                 string                    `json:"author,omitempty"`
	DecompositionLevel     int                       `json:"decomposition_level"`
	ComplexityScore        int                       `json:"complexity_score,omitempty"`
	Scope                  lifecycle.Scope           `json:"scope_assessment,omitempty"`
	TaskCount              int                       `json:"task_count"`
	TasksCompleted         int                       `json:"tasks_completed"`
	CreatedAt              string                    `json:"created_at"`
	UpdatedAt              string                    `json:"updated_at"`
}

// CompletionPercent derives progress from the counters, rounded to two
// decimals. A requirement without tasks is at 0.
func (r Requirement) CompletionPercent() float64 {
	return completion(r.TasksCompleted, r.TaskCount)
}

func completion(done, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(done)/float64(total)*100*100) / 100
}

// Task is a unit of implementation work.
type Task struct {
	ID                 string             `json:"id"`
	Number             int                `json:"task_number"`
	Subnumber          int                `json:"subtask_number"`
	Version            int                `json:"version"`
	Title              string             `json:"title"`
	Status             lifecycle.State    `json:"status"`
	Priority           lifecycle.Priority `json:"priority"`
	Effort             lifecycle.Effort   `json:"effort,omitempty"`
	UserStory          string             `json:"user_story,omitempty"`
	AcceptanceCriteria []string           `json:"acceptance_criteria"`
	Assignee           string             `json:"assignee,omitempty"`
	ExternalRef        string             `json:"external_ref,omitempty"`
	ParentTaskID       string             `json:"parent_task_id,omitempty"`
	CreatedAt          string             `json:"created_at"`
	UpdatedAt          string             `json:"updated_at"`
}

// Architecture is an ADR, technical design or integration document.
type Architecture struct {
	ID                string                     `json:"id"`
	Type              lifecycle.ArchitectureType `json:"type"`
	Number            int                        `json:"arch_number"`
	Component         string                     `json:"component,omitempty"`
	Version           int                        `json:"version"`
	Title             string                     `json:"title"`
	Status            lifecycle.State            `json:"status"`
	Context           string                     `json:"context"`
	Decision          string                     `json:"decision_outcome"`
	DecisionDrivers   []string                   `json:"decision_drivers"`
	ConsideredOptions []string                   `json:"considered_options"`
	Consequences      string                     `json:"consequences,omitempty"`
	Authors           []string                   `json:"authors"`
	SupersededBy      string                     `json:"superseded_by,omitempty"`
	CreatedAt         string                     `json:"created_at"`
	UpdatedAt         string                     `json:"updated_at"`
}

// EventKind classifies an audit event.
type EventKind string

const (
	EventCreated           EventKind = "created"
	EventStatusChanged     EventKind = "status_changed"
	EventRelationshipAdded EventKind = "relationship_added"
)

// Event is one immutable audit log entry. For relationship_added events
// From holds the relationship kind and To the target identifier.
type Event struct {
	ID         int64          `json:"id"`
	EntityType lifecycle.Kind `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Kind       EventKind      `json:"event_type"`
	From       string         `json:"from_value,omitempty"`
	To         string         `json:"to_value,omitempty"`
	Actor      string         `json:"actor,omitempty"`
	RequestID  string         `json:"request_id"`
	CreatedAt  string         `json:"created_at"`
}

// Review is a free-text comment attached to an entity.
type Review struct {
	ID         int64          `json:"id"`
	EntityType lifecycle.Kind `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Reviewer   string         `json:"reviewer"`
	Comment    string         `json:"comment"`
	CreatedAt  string         `json:"created_at"`
}

// Link is one association row, read as "From Relationship To".
type Link struct {
	From         string                 `json:"from"`
	FromKind     lifecycle.Kind         `json:"from_kind"`
	To           string                 `json:"to"`
	ToKind       lifecycle.Kind         `json:"to_kind"`
	Relationship lifecycle.Relationship `json:"relationship"`
	CreatedAt    string                 `json:"created_at"`
}

// ─── Params ──────────────────────────────────────────────────────────────────

// CreateRequirementParams holds the input for a new requirement.
type CreateRequirementParams struct {
	Type                   lifecycle.RequirementType
	Title                  string
	Priority               lifecycle.Priority
	Risk                   lifecycle.Risk
	CurrentState           string
	DesiredState           string
	FunctionalRequirements []string
	AcceptanceCriteria     []string
	BusinessValue          string
	Author                 string
	ComplexityScore        int
	Scope                  lifecycle.Scope

	// ParentID attaches the new requirement under an existing one.
	ParentID string
}

// CreateTaskParams holds the input for a new task.
type CreateTaskParams struct {
	Title              string
	Priority           lifecycle.Priority
	Effort             lifecycle.Effort
	UserStory          string
	AcceptanceCriteria []string
	Assignee           string
	ExternalRef        string
	ParentTaskID       string
	RequirementIDs     []string
	Actor              string
}

// CreateArchitectureParams holds the input for a new architecture document.
type CreateArchitectureParams struct {
	Type              lifecycle.ArchitectureType
	Title             string
	Context           string
	Decision          string
	Component         string
	DecisionDrivers   []string
	ConsideredOptions []string
	Consequences      string
	Authors           []string
	RequirementIDs    []string
	Actor             string
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func encodeList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func decodeList(raw string) []string {
	var items []string
	if raw == "" {
		return []string{}
	}
	if err := json.Unmarshal([]byte(raw), &items); err != nil || items == nil {
		return []string{}
	}
	return items
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func fromNull(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}
