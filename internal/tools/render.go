package tools

import (
	"fmt"
	"strings"

	"github.com/HendryAvila/lifecycle/internal/lifecycle"
	"github.com/HendryAvila/lifecycle/internal/store"
)

// ─── Markdown rendering ──────────────────────────────────────────────────────

func writeList(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n**%s:**\n", heading)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}

func writeRequirement(b *strings.Builder, r store.Requirement) {
	fmt.Fprintf(b, "## %s: %s\n\n", r.ID, r.Title)
	fmt.Fprintf(b, "- **Status:** %s\n", r.Status)
	fmt.Fprintf(b, "- **Priority:** %s | **Risk:** %s | **Type:** %s\n", r.Priority, r.Risk, r.Type)
	fmt.Fprintf(b, "- **Level:** %d\n", r.DecompositionLevel)
	fmt.Fprintf(b, "- **Progress:** %d/%d tasks (%.2f%%)\n", r.TasksCompleted, r.TaskCount, r.CompletionPercent())
	if r.Author != "" {
		fmt.Fprintf(b, "- **Author:** %s\n", r.Author)
	}
	if r.ComplexityScore > 0 {
		fmt.Fprintf(b, "- **Complexity:** %d/10\n", r.ComplexityScore)
	}
	if r.Scope != "" {
		fmt.Fprintf(b, "- **Scope:** %s\n", r.Scope)
	}
	fmt.Fprintf(b, "\n**Current state:** %s\n\n**Desired state:** %s\n", r.CurrentState, r.DesiredState)
	if r.BusinessValue != "" {
		fmt.Fprintf(b, "\n**Business value:** %s\n", r.BusinessValue)
	}
	writeList(b, "Functional requirements", r.FunctionalRequirements)
	writeList(b, "Acceptance criteria", r.AcceptanceCriteria)
}

func writeTask(b *strings.Builder, t store.Task) {
	fmt.Fprintf(b, "## %s: %s\n\n", t.ID, t.Title)
	fmt.Fprintf(b, "- **Status:** %s\n", t.Status)
	fmt.Fprintf(b, "- **Priority:** %s", t.Priority)
	if t.Effort != "" {
		fmt.Fprintf(b, " | **Effort:** %s", t.Effort)
	}
	b.WriteString("\n")
	if t.Assignee != "" {
		fmt.Fprintf(b, "- **Assignee:** %s\n", t.Assignee)
	}
	if t.ParentTaskID != "" {
		fmt.Fprintf(b, "- **Parent:** %s\n", t.ParentTaskID)
	}
	if t.ExternalRef != "" {
		fmt.Fprintf(b, "- **External ref:** %s\n", t.ExternalRef)
	}
	if t.UserStory != "" {
		fmt.Fprintf(b, "\n**User story:** %s\n", t.UserStory)
	}
	writeList(b, "Acceptance criteria", t.AcceptanceCriteria)
}

func writeArchitecture(b *strings.Builder, a store.Architecture) {
	fmt.Fprintf(b, "## %s: %s\n\n", a.ID, a.Title)
	fmt.Fprintf(b, "- **Status:** %s\n", a.Status)
	fmt.Fprintf(b, "- **Type:** %s", a.Type)
	if a.Component != "" {
		fmt.Fprintf(b, " | **Component:** %s", a.Component)
	}
	b.WriteString("\n")
	if len(a.Authors) > 0 {
		fmt.Fprintf(b, "- **Authors:** %s\n", strings.Join(a.Authors, ", "))
	}
	if a.SupersededBy != "" {
		fmt.Fprintf(b, "- **Superseded by:** %s\n", a.SupersededBy)
	}
	fmt.Fprintf(b, "\n### Context\n\n%s\n\n### Decision\n\n%s\n", a.Context, a.Decision)
	writeList(b, "Decision drivers", a.DecisionDrivers)
	writeList(b, "Considered options", a.ConsideredOptions)
	if a.Consequences != "" {
		fmt.Fprintf(b, "\n### Consequences\n\n%s\n", a.Consequences)
	}
}

// summaryLine is the one-line form used in listings.
func summaryLine(id, title string, status lifecycle.State, extra string) string {
	line := fmt.Sprintf("- **%s** [%s] %s", id, status, title)
	if extra != "" {
		line += " (" + extra + ")"
	}
	return line + "\n"
}

func writeLinks(b *strings.Builder, links []store.Link) {
	if len(links) == 0 {
		return
	}
	b.WriteString("\n### Relationships\n\n")
	for _, l := range links {
		fmt.Fprintf(b, "- %s **%s** %s\n", l.From, l.Relationship, l.To)
	}
}

func writeReviews(b *strings.Builder, reviews []store.Review) {
	if len(reviews) == 0 {
		return
	}
	b.WriteString("\n### Reviews\n\n")
	for _, r := range reviews {
		fmt.Fprintf(b, "- %s (%s): %s\n", r.Reviewer, r.CreatedAt, r.Comment)
	}
}

func writeEvents(b *strings.Builder, events []store.Event) {
	if len(events) == 0 {
		b.WriteString("No events recorded.\n")
		return
	}
	b.WriteString("| # | When | Event | From | To | Actor |\n")
	b.WriteString("|---|------|-------|------|----|-------|\n")
	for _, ev := range events {
		fmt.Fprintf(b, "| %d | %s | %s | %s | %s | %s |\n", ev.ID, ev.CreatedAt, ev.Kind, ev.From, ev.To, ev.Actor)
	}
}

func writeTree(b *strings.Builder, nodes []store.TreeNode) {
	for _, n := range nodes {
		fmt.Fprintf(b, "%s- %s [%s] %s\n", strings.Repeat("  ", n.Depth), n.ID, n.Status, n.Title)
	}
}

// transitionHint lists where an entity can go next.
func transitionHint(kind lifecycle.Kind, status lifecycle.State) string {
	next := lifecycle.Next(kind, status)
	if len(next) == 0 {
		return fmt.Sprintf("%s is terminal.", status)
	}
	names := make([]string, len(next))
	for i, s := range next {
		names[i] = string(s)
	}
	return "Allowed next states: " + strings.Join(names, ", ") + "."
}
