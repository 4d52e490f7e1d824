package lifecycle

import (
	"fmt"
	"strings"
)

// --- Transition tables ---
//
// Each kind has a fixed directed graph over its state set. The tables are
// data: legality is a lookup keyed by (kind, from). Outgoing edges are kept
// in slices so rendering is deterministic.

type table struct {
	states  []State
	initial State
	edges   map[State][]State
}

var tables = map[Kind]table{
	KindRequirement: {
		states: []State{
			StateDraft, StateUnderReview, StateApproved, StateArchitecture,
			StateReady, StateImplemented, StateValidated, StateDeprecated,
		},
		initial: StateDraft,
		edges: map[State][]State{
			StateDraft:        {StateUnderReview, StateDeprecated},
			StateUnderReview:  {StateDraft, StateApproved, StateDeprecated},
			StateApproved:     {StateArchitecture, StateReady, StateDeprecated},
			StateArchitecture: {StateReady, StateApproved},
			StateReady:        {StateImplemented, StateDeprecated},
			StateImplemented:  {StateValidated, StateReady},
			StateValidated:    {StateDeprecated},
			StateDeprecated:   {},
		},
	},
	KindTask: {
		states: []State{
			StateNotStarted, StateInProgress, StateBlocked, StateComplete, StateAbandoned,
		},
		initial: StateNotStarted,
		edges: map[State][]State{
			StateNotStarted: {StateInProgress, StateBlocked, StateAbandoned},
			StateInProgress: {StateBlocked, StateComplete, StateNotStarted, StateAbandoned},
			StateBlocked:    {StateInProgress, StateNotStarted, StateAbandoned},
			StateComplete:   {StateInProgress},
			StateAbandoned:  {},
		},
	},
	// Draft/Proposed and Approved/Accepted are aliases: distinct stored
	// values with identical outgoing edges.
	KindArchitecture: {
		states: []State{
			StateDraft, StateProposed, StateUnderReview, StateApproved, StateAccepted,
			StateImplemented, StateRejected, StateDeprecated, StateSuperseded,
		},
		initial: StateProposed,
		edges: map[State][]State{
			StateDraft:       {StateUnderReview, StateRejected, StateDeprecated},
			StateProposed:    {StateUnderReview, StateRejected, StateDeprecated},
			StateUnderReview: {StateApproved, StateRejected, StateDraft},
			StateApproved:    {StateImplemented, StateDeprecated, StateSuperseded},
			StateAccepted:    {StateImplemented, StateDeprecated, StateSuperseded},
			StateImplemented: {StateDeprecated, StateSuperseded},
			StateRejected:    {},
			StateDeprecated:  {},
			StateSuperseded:  {},
		},
	},
}

// States returns the state set of kind in table order.
func States(kind Kind) []State {
	t, ok := tables[kind]
	if !ok {
		return nil
	}
	out := make([]State, len(t.states))
	copy(out, t.states)
	return out
}

// InitialState returns the state a new entity of kind is created in.
// Architecture documents other than ADRs start in Draft; see InitialArchitectureState.
func InitialState(kind Kind) State {
	return tables[kind].initial
}

// InitialArchitectureState returns the creation state for an architecture type.
func InitialArchitectureState(t ArchitectureType) State {
	if t == ArchADR {
		return StateProposed
	}
	return StateDraft
}

// Next returns the states reachable from s in one step.
func Next(kind Kind, s State) []State {
	next := tables[kind].edges[s]
	out := make([]State, len(next))
	copy(out, next)
	return out
}

// ValidateState returns an error if s is not in kind's state set.
func ValidateState(kind Kind, s State) error {
	if err := ValidateKind(kind); err != nil {
		return err
	}
	if _, ok := tables[kind].edges[s]; !ok {
		names := make([]string, 0, len(tables[kind].states))
		for _, st := range tables[kind].states {
			names = append(names, string(st))
		}
		return Validationf("invalid %s status %q: must be one of: %s", kind, s, strings.Join(names, ", "))
	}
	return nil
}

// IsTerminal reports whether s has no outgoing edges for kind.
func IsTerminal(kind Kind, s State) bool {
	next, ok := tables[kind].edges[s]
	return ok && len(next) == 0
}

// IsNoop reports whether a transition from -> to changes nothing.
func IsNoop(from, to State) bool { return from == to }

// Validate checks a requested transition. A same-state request is legal
// and callers must treat it as a no-op. Unknown states are validation
// errors; known pairs without an edge are InvalidTransition.
func Validate(kind Kind, from, to State) error {
	if err := ValidateState(kind, from); err != nil {
		return err
	}
	if err := ValidateState(kind, to); err != nil {
		return err
	}
	if from == to {
		return nil
	}
	if IsTerminal(kind, from) {
		return InvalidTransition(kind, "", from, to, fmt.Sprintf("%q is terminal", from))
	}
	for _, s := range tables[kind].edges[from] {
		if s == to {
			return nil
		}
	}
	return InvalidTransition(kind, "", from, to, "")
}

// RenderTable writes the transition table of kind as a markdown table.
func RenderTable(kind Kind) string {
	t, ok := tables[kind]
	if !ok {
		return ""
	}
	var b strings.Builder
	title := strings.ToUpper(string(kind[:1])) + string(kind[1:])
	fmt.Fprintf(&b, "## %s\n\n", title)
	fmt.Fprintf(&b, "Initial state: **%s**\n\n", t.initial)
	b.WriteString("| From | Allowed next states |\n")
	b.WriteString("|------|---------------------|\n")
	for _, s := range t.states {
		next := t.edges[s]
		cell := "(terminal)"
		if len(next) > 0 {
			names := make([]string, len(next))
			for i, n := range next {
				names[i] = string(n)
			}
			cell = strings.Join(names, ", ")
		}
		fmt.Fprintf(&b, "| %s | %s |\n", s, cell)
	}
	return b.String()
}

// RenderAllTables renders every kind's table in a fixed order.
func RenderAllTables() string {
	var b strings.Builder
	b.WriteString("# Lifecycle Transition Tables\n")
	for _, k := range []Kind{KindRequirement, KindTask, KindArchitecture} {
		b.WriteString("\n")
		b.WriteString(RenderTable(k))
	}
	return b.String()
}
