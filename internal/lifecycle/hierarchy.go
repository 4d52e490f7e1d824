package lifecycle

import "fmt"

// MaxRequirementDepth is the deepest decomposition level a requirement can sit at.
const MaxRequirementDepth = 3

// --- Hierarchy arena ---
//
// The store loads the relevant edges once per atomic unit into an Arena and
// the checks below walk it iteratively. No recursion and no recursive SQL:
// every walk is bounded either by MaxRequirementDepth or by a visited set.

// Arena is a parent-pointer forest indexed by entity identifier.
type Arena struct {
	parent   map[string]string
	level    map[string]int
	children map[string][]string
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{
		parent:   make(map[string]string),
		level:    make(map[string]int),
		children: make(map[string][]string),
	}
}

// Add registers id with its parent ("" for roots) and stored level.
func (a *Arena) Add(id, parent string, level int) {
	if old, ok := a.parent[id]; ok && old != "" {
		a.removeChild(old, id)
	}
	a.parent[id] = parent
	a.level[id] = level
	if parent != "" {
		a.children[parent] = append(a.children[parent], id)
	}
}

// SetParent points id at parent, keeping its stored level.
func (a *Arena) SetParent(id, parent string) {
	a.Add(id, parent, a.level[id])
}

func (a *Arena) removeChild(parent, id string) {
	kids := a.children[parent]
	for i, k := range kids {
		if k == id {
			a.children[parent] = append(kids[:i], kids[i+1:]...)
			return
		}
	}
}

// Parent returns the parent of id, or "" for roots and unknown ids.
func (a *Arena) Parent(id string) string { return a.parent[id] }

// Level returns the stored level of id.
func (a *Arena) Level(id string) int { return a.level[id] }

// Children returns the direct children of id in insertion order.
func (a *Arena) Children(id string) []string { return a.children[id] }

// Has reports whether id was added.
func (a *Arena) Has(id string) bool {
	_, ok := a.parent[id]
	return ok
}

// Ancestors walks from id toward the root and returns the chain, nearest
// first. The walk stops after limit steps (limit <= 0 means unbounded) or
// when a node repeats, so it terminates on malformed data.
func (a *Arena) Ancestors(id string, limit int) []string {
	var chain []string
	seen := map[string]bool{id: true}
	cur := a.parent[id]
	for cur != "" && !seen[cur] {
		if limit > 0 && len(chain) >= limit {
			break
		}
		chain = append(chain, cur)
		seen[cur] = true
		cur = a.parent[cur]
	}
	return chain
}

// Subtree returns id and all descendants with their depth relative to id,
// breadth first.
func (a *Arena) Subtree(id string) []Placed {
	out := []Placed{{ID: id, Depth: 0}}
	seen := map[string]bool{id: true}
	for i := 0; i < len(out); i++ {
		for _, c := range a.children[out[i].ID] {
			if seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, Placed{ID: c, Depth: out[i].Depth + 1})
		}
	}
	return out
}

// Placed is a node position produced by Subtree.
type Placed struct {
	ID    string
	Depth int
}

// --- Guards ---

// CheckRequirementParent validates attaching child under parent and returns
// the new decomposition level of every node in child's subtree.
//
// The parent chain is walked first so a cycle is reported as such even when
// it would also break the depth bound.
func CheckRequirementParent(a *Arena, child, parent string) (map[string]int, error) {
	if child == parent {
		return nil, circular(KindRequirement, child, parent)
	}
	if p := a.Parent(child); p != "" && p != parent {
		return nil, &Error{
			Code:    CodeValidation,
			Message: fmt.Sprintf("requirement already has parent %s", p),
			Kind:    KindRequirement, ID: child, Parent: parent, Child: child,
		}
	}

	cur := parent
	for steps := 0; cur != "" && steps <= MaxRequirementDepth; steps++ {
		if cur == child {
			return nil, circular(KindRequirement, child, parent)
		}
		cur = a.Parent(cur)
	}

	base := a.Level(parent)
	if base >= MaxRequirementDepth {
		return nil, depthExceeded(child, parent, base+1)
	}
	levels := make(map[string]int)
	for _, n := range a.Subtree(child) {
		lvl := base + 1 + n.Depth
		if lvl > MaxRequirementDepth {
			return nil, depthExceeded(child, parent, lvl)
		}
		levels[n.ID] = lvl
	}
	return levels, nil
}

// CheckTaskParent validates attaching child under parent. Task hierarchies
// have no depth cap, so the walk runs to the root.
func CheckTaskParent(a *Arena, child, parent string) error {
	if child == parent {
		return circular(KindTask, child, parent)
	}
	if p := a.Parent(child); p != "" && p != parent {
		return &Error{
			Code:    CodeValidation,
			Message: fmt.Sprintf("task already has parent %s", p),
			Kind:    KindTask, ID: child, Parent: parent, Child: child,
		}
	}
	for _, anc := range a.Ancestors(parent, 0) {
		if anc == child {
			return circular(KindTask, child, parent)
		}
	}
	return nil
}

func circular(kind Kind, child, parent string) *Error {
	return &Error{
		Code:    CodeCircularDependency,
		Message: fmt.Sprintf("%s would become its own ancestor", child),
		Kind:    kind, ID: child, Parent: parent, Child: child,
	}
}

func depthExceeded(child, parent string, level int) *Error {
	return &Error{
		Code:    CodeDepthExceeded,
		Message: fmt.Sprintf("decomposition level %d exceeds maximum %d", level, MaxRequirementDepth),
		Kind:    KindRequirement, ID: child, Parent: parent, Child: child,
	}
}

// --- Dependency graph ---

// Graph is a directed dependency graph: an edge a -> b means a waits on b.
type Graph struct {
	out map[string][]string
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{out: make(map[string][]string)}
}

// AddEdge records from -> to.
func (g *Graph) AddEdge(from, to string) {
	g.out[from] = append(g.out[from], to)
}

// Reaches reports whether to is reachable from from.
func (g *Graph) Reaches(from, to string) bool {
	if from == to {
		return true
	}
	seen := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range g.out[cur] {
			if next == to {
				return true
			}
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// CheckDependency rejects from -> to when it would close a cycle.
func CheckDependency(g *Graph, kind Kind, from, to string) error {
	if g.Reaches(to, from) {
		return &Error{
			Code:    CodeCircularDependency,
			Message: fmt.Sprintf("%s already depends on %s", to, from),
			Kind:    kind, ID: from, Parent: to, Child: from,
		}
	}
	return nil
}
