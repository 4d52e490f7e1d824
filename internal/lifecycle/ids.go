package lifecycle

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// --- Identifiers ---
//
//	REQ-0001-FUNC-00           number per requirement type, version
//	TASK-0001-00-00            number, subnumber (0 for top level), version
//	ADR-0001                   number
//	TDD-0001-AUTH-00           number per type, component, version
//	INTG-0002-BILLING-00

// ID is a parsed structured identifier.
type ID struct {
	Kind      Kind
	Number    int
	Subnumber int // tasks only
	Version   int
	// Type is the requirement type or architecture type.
	Type      string
	Component string // TDD and INTG only
}

var (
	reqIDPattern  = regexp.MustCompile(`^REQ-(\d{4,})-([A-Z]+)-(\d{2,})$`)
	taskIDPattern = regexp.MustCompile(`^TASK-(\d{4,})-(\d{2,})-(\d{2,})$`)
	adrIDPattern  = regexp.MustCompile(`^ADR-(\d{4,})$`)
	docIDPattern  = regexp.MustCompile(`^(TDD|INTG)-(\d{4,})-([A-Z0-9]+)-(\d{2,})$`)

	componentPattern = regexp.MustCompile(`^[A-Z0-9]+$`)
)

// RequirementID formats a requirement identifier.
func RequirementID(number int, t RequirementType, version int) string {
	return fmt.Sprintf("REQ-%04d-%s-%02d", number, t, version)
}

// TaskID formats a task identifier.
func TaskID(number, subnumber, version int) string {
	return fmt.Sprintf("TASK-%04d-%02d-%02d", number, subnumber, version)
}

// ArchitectureID formats an architecture identifier. component and version
// are ignored for ADRs.
func ArchitectureID(t ArchitectureType, number int, component string, version int) string {
	if t == ArchADR {
		return fmt.Sprintf("ADR-%04d", number)
	}
	return fmt.Sprintf("%s-%04d-%s-%02d", t, number, component, version)
}

// NormalizeComponent upper-cases a TDD/INTG component name and checks it.
func NormalizeComponent(component string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(component))
	if !componentPattern.MatchString(c) {
		return "", Validationf("invalid component %q: letters and digits only", component)
	}
	return c, nil
}

// KindOf infers the entity kind from an identifier prefix.
func KindOf(id string) (Kind, error) {
	switch {
	case strings.HasPrefix(id, "REQ-"):
		return KindRequirement, nil
	case strings.HasPrefix(id, "TASK-"):
		return KindTask, nil
	case strings.HasPrefix(id, "ADR-"), strings.HasPrefix(id, "TDD-"), strings.HasPrefix(id, "INTG-"):
		return KindArchitecture, nil
	}
	return "", Validationf("unrecognized identifier %q", id)
}

// ParseID parses any entity identifier.
func ParseID(id string) (ID, error) {
	if m := reqIDPattern.FindStringSubmatch(id); m != nil {
		if err := ValidateRequirementType(RequirementType(m[2])); err != nil {
			return ID{}, err
		}
		return ID{Kind: KindRequirement, Number: atoi(m[1]), Type: m[2], Version: atoi(m[3])}, nil
	}
	if m := taskIDPattern.FindStringSubmatch(id); m != nil {
		return ID{Kind: KindTask, Number: atoi(m[1]), Subnumber: atoi(m[2]), Version: atoi(m[3])}, nil
	}
	if m := adrIDPattern.FindStringSubmatch(id); m != nil {
		return ID{Kind: KindArchitecture, Type: string(ArchADR), Number: atoi(m[1])}, nil
	}
	if m := docIDPattern.FindStringSubmatch(id); m != nil {
		return ID{Kind: KindArchitecture, Type: m[1], Number: atoi(m[2]), Component: m[3], Version: atoi(m[4])}, nil
	}
	return ID{}, Validationf("malformed identifier %q", id)
}

// String formats the identifier back to its canonical form.
func (id ID) String() string {
	switch id.Kind {
	case KindRequirement:
		return RequirementID(id.Number, RequirementType(id.Type), id.Version)
	case KindTask:
		return TaskID(id.Number, id.Subnumber, id.Version)
	case KindArchitecture:
		return ArchitectureID(ArchitectureType(id.Type), id.Number, id.Component, id.Version)
	}
	return ""
}

// atoi is only called on regexp-matched digit runs.
func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
