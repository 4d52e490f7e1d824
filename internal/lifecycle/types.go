// Package lifecycle holds the storage-independent rules for requirements,
// tasks and architecture decisions: their enumerations, the per-kind
// transition tables, identifier formats, and the hierarchy guard that keeps
// decomposition trees bounded and acyclic.
//
// Nothing in this package touches persistence. The store calls into it
// inside each atomic unit, after reading fresh state and before writing.
package lifecycle

import (
	"fmt"
	"sort"
	"strings"
)

// --- Entity kind ---

// Kind is one of the three tracked entity kinds.
type Kind string

const (
	KindRequirement  Kind = "requirement"
	KindTask         Kind = "task"
	KindArchitecture Kind = "architecture"
)

var validKinds = map[Kind]bool{
	KindRequirement:  true,
	KindTask:         true,
	KindArchitecture: true,
}

// ValidateKind returns an error if the kind is not recognized.
func ValidateKind(k Kind) error {
	if !validKinds[k] {
		return Validationf("invalid entity kind %q: must be one of: requirement, task, architecture", k)
	}
	return nil
}

// --- Lifecycle states ---

// State is a lifecycle status value. The set of legal values depends on Kind.
type State string

const (
	StateDraft        State = "Draft"
	StateUnderReview  State = "Under Review"
	StateApproved     State = "Approved"
	StateArchitecture State = "Architecture"
	StateReady        State = "Ready"
	StateImplemented  State = "Implemented"
	StateValidated    State = "Validated"
	StateDeprecated   State = "Deprecated"

	StateNotStarted State = "Not Started"
	StateInProgress State = "In Progress"
	StateBlocked    State = "Blocked"
	StateComplete   State = "Complete"
	StateAbandoned  State = "Abandoned"

	StateProposed   State = "Proposed"
	StateAccepted   State = "Accepted"
	StateRejected   State = "Rejected"
	StateSuperseded State = "Superseded"
)

// --- Requirement type ---

// RequirementType scopes requirement numbering.
type RequirementType string

const (
	TypeFunctional    RequirementType = "FUNC"
	TypeNonFunctional RequirementType = "NFUNC"
	TypeTechnical     RequirementType = "TECH"
	TypeBusiness      RequirementType = "BUS"
	TypeInterface     RequirementType = "INTF"
)

var validRequirementTypes = map[RequirementType]bool{
	TypeFunctional:    true,
	TypeNonFunctional: true,
	TypeTechnical:     true,
	TypeBusiness:      true,
	TypeInterface:     true,
}

// ValidateRequirementType returns an error if the type is not recognized.
func ValidateRequirementType(t RequirementType) error {
	if !validRequirementTypes[t] {
		return Validationf("invalid requirement type %q: must be one of: %s", t, joinKeys(validRequirementTypes))
	}
	return nil
}

// --- Priority ---

// Priority ranks requirements and tasks, P0 being the most urgent.
type Priority string

const (
	PriorityP0 Priority = "P0"
	PriorityP1 Priority = "P1"
	PriorityP2 Priority = "P2"
	PriorityP3 Priority = "P3"
)

var validPriorities = map[Priority]bool{
	PriorityP0: true,
	PriorityP1: true,
	PriorityP2: true,
	PriorityP3: true,
}

// ValidatePriority returns an error if the priority is not recognized.
func ValidatePriority(p Priority) error {
	if !validPriorities[p] {
		return Validationf("invalid priority %q: must be one of: P0, P1, P2, P3", p)
	}
	return nil
}

// --- Risk ---

// Risk is a requirement's risk level.
type Risk string

const (
	RiskHigh   Risk = "High"
	RiskMedium Risk = "Medium"
	RiskLow    Risk = "Low"
)

var validRisks = map[Risk]bool{
	RiskHigh:   true,
	RiskMedium: true,
	RiskLow:    true,
}

// ValidateRisk returns an error if the risk level is not recognized.
func ValidateRisk(r Risk) error {
	if !validRisks[r] {
		return Validationf("invalid risk level %q: must be one of: High, Medium, Low", r)
	}
	return nil
}

// --- Effort ---

// Effort is a task's t-shirt size estimate. Empty means unestimated.
type Effort string

const (
	EffortXS Effort = "XS"
	EffortS  Effort = "S"
	EffortM  Effort = "M"
	EffortL  Effort = "L"
	EffortXL Effort = "XL"
)

var validEfforts = map[Effort]bool{
	EffortXS: true,
	EffortS:  true,
	EffortM:  true,
	EffortL:  true,
	EffortXL: true,
}

// ValidateEffort returns an error if the effort is set but not recognized.
func ValidateEffort(e Effort) error {
	if e != "" && !validEfforts[e] {
		return Validationf("invalid effort %q: must be one of: XS, S, M, L, XL", e)
	}
	return nil
}

// --- Scope assessment ---

// Scope classifies how much a requirement covers. Empty means unassessed.
type Scope string

const (
	ScopeSingleFeature    Scope = "single_feature"
	ScopeMultipleFeatures Scope = "multiple_features"
	ScopeComplexWorkflow  Scope = "complex_workflow"
	ScopeEpic             Scope = "epic"
)

var validScopes = map[Scope]bool{
	ScopeSingleFeature:    true,
	ScopeMultipleFeatures: true,
	ScopeComplexWorkflow:  true,
	ScopeEpic:             true,
}

// ValidateScope returns an error if the scope is set but not recognized.
func ValidateScope(s Scope) error {
	if s != "" && !validScopes[s] {
		return Validationf("invalid scope assessment %q: must be one of: %s", s, joinKeys(validScopes))
	}
	return nil
}

// MaxComplexity bounds Requirement.ComplexityScore. Zero means unscored.
const MaxComplexity = 10

// ValidateComplexity returns an error if score is outside 0..MaxComplexity.
func ValidateComplexity(score int) error {
	if score < 0 || score > MaxComplexity {
		return Validationf("invalid complexity score %d: must be between 1 and %d", score, MaxComplexity)
	}
	return nil
}

// --- Architecture type ---

// ArchitectureType distinguishes decision records from design documents.
type ArchitectureType string

const (
	ArchADR  ArchitectureType = "ADR"
	ArchTDD  ArchitectureType = "TDD"
	ArchINTG ArchitectureType = "INTG"
)

var validArchitectureTypes = map[ArchitectureType]bool{
	ArchADR:  true,
	ArchTDD:  true,
	ArchINTG: true,
}

// ValidateArchitectureType returns an error if the type is not recognized.
func ValidateArchitectureType(t ArchitectureType) error {
	if !validArchitectureTypes[t] {
		return Validationf("invalid architecture type %q: must be one of: ADR, TDD, INTG", t)
	}
	return nil
}

// --- Relationships ---

// Relationship names an edge kind. An edge (a, b, rel) reads "a rel b".
type Relationship string

const (
	RelImplements Relationship = "implements"
	RelAddresses  Relationship = "addresses"
	RelParent     Relationship = "parent"
	RelDepends    Relationship = "depends"
	RelRefines    Relationship = "refines"
	RelConflicts  Relationship = "conflicts"
	RelRelates    Relationship = "relates"
	RelBlocks     Relationship = "blocks"
	RelInforms    Relationship = "informs"
	RelRequires   Relationship = "requires"
)

// EdgeKind is the (source kind, target kind) pair of a link.
type EdgeKind struct {
	From Kind
	To   Kind
}

var validRelationships = map[EdgeKind]map[Relationship]bool{
	{KindRequirement, KindTask}:         {RelImplements: true},
	{KindRequirement, KindArchitecture}: {RelAddresses: true},
	{KindTask, KindTask}: {
		RelParent: true, RelBlocks: true, RelInforms: true, RelRequires: true,
	},
	{KindRequirement, KindRequirement}: {
		RelParent: true, RelDepends: true, RelRefines: true, RelConflicts: true, RelRelates: true,
	},
}

// reversedRelationships are the kind pairs whose links may also be written
// from the dependent side, e.g. "TASK implements REQ".
var reversedRelationships = map[EdgeKind]Relationship{
	{KindTask, KindRequirement}:         RelImplements,
	{KindArchitecture, KindRequirement}: RelAddresses,
}

// Reversed reports whether a link from one kind to the other names the
// requirement as its target and has to be flipped before it is stored.
func Reversed(from, to Kind, rel Relationship) bool {
	r, ok := reversedRelationships[EdgeKind{from, to}]
	return ok && (rel == "" || rel == r)
}

// ValidateRelationship checks that rel is allowed between the two kinds.
func ValidateRelationship(from, to Kind, rel Relationship) error {
	allowed, ok := validRelationships[EdgeKind{from, to}]
	if !ok {
		return Validationf("cannot link %s to %s", from, to)
	}
	if !allowed[rel] {
		return Validationf("invalid relationship %q for %s to %s: must be one of: %s", rel, from, to, joinKeys(allowed))
	}
	return nil
}

// DefaultRelationship returns the only relationship allowed between two
// kinds, or "" when the caller has to choose.
func DefaultRelationship(from, to Kind) Relationship {
	allowed := validRelationships[EdgeKind{from, to}]
	if len(allowed) != 1 {
		return ""
	}
	for rel := range allowed {
		return rel
	}
	return ""
}

// Blocking reports whether an edge of this relationship holds its source
// back until the target reaches a terminal-success state.
func Blocking(from, to Kind, rel Relationship) bool {
	switch {
	case from == KindTask && to == KindTask:
		return rel == RelBlocks || rel == RelRequires
	case from == KindRequirement && to == KindRequirement:
		return rel == RelDepends
	}
	return false
}

func joinKeys[K ~string](m map[K]bool) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}

// String implements fmt.Stringer.
func (e EdgeKind) String() string {
	return fmt.Sprintf("%s->%s", e.From, e.To)
}
