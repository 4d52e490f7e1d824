package lifecycle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chain builds R0 <- R1 <- ... <- R(n-1) with levels 0..n-1.
func chain(ids ...string) *Arena {
	a := NewArena()
	parent := ""
	for i, id := range ids {
		a.Add(id, parent, i)
		parent = id
	}
	return a
}

func TestCheckRequirementParent_SetsLevel(t *testing.T) {
	a := chain("R0", "R1")
	a.Add("X", "", 0)

	levels, err := CheckRequirementParent(a, "X", "R1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"X": 2}, levels)
}

func TestCheckRequirementParent_DepthExceeded(t *testing.T) {
	a := chain("R0", "R1", "R2", "R3")
	a.Add("R4", "", 0)

	_, err := CheckRequirementParent(a, "R4", "R3")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDepthExceeded)

	var le *Error
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "R3", le.Parent)
	assert.Equal(t, "R4", le.Child)
}

func TestCheckRequirementParent_SubtreeWouldOverflow(t *testing.T) {
	a := chain("R0", "R1")
	// S0 <- S1 <- S2 is a separate tree of height 2.
	a.Add("S0", "", 0)
	a.Add("S1", "S0", 1)
	a.Add("S2", "S1", 2)

	// S0 at level 2 would push S2 to level 4.
	_, err := CheckRequirementParent(a, "S0", "R1")
	assert.ErrorIs(t, err, ErrDepthExceeded)

	levels, err := CheckRequirementParent(a, "S0", "R0")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"S0": 1, "S1": 2, "S2": 3}, levels)
}

func TestCheckRequirementParent_Cycle(t *testing.T) {
	a := chain("A", "B", "C")

	_, err := CheckRequirementParent(a, "A", "C")
	assert.ErrorIs(t, err, ErrCircularDependency)

	_, err = CheckRequirementParent(a, "A", "A")
	assert.ErrorIs(t, err, ErrCircularDependency)
}

func TestCheckRequirementParent_SecondParent(t *testing.T) {
	a := chain("A", "B")
	a.Add("Z", "", 0)

	_, err := CheckRequirementParent(a, "B", "Z")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCheckRequirementParent_MalformedLoopTerminates(t *testing.T) {
	a := NewArena()
	a.Add("P", "Q", 1)
	a.Add("Q", "P", 1)
	a.Add("C", "", 0)

	_, err := CheckRequirementParent(a, "C", "P")
	assert.NoError(t, err)
}

func TestCheckTaskParent(t *testing.T) {
	a := chain("T1", "T2", "T3", "T4", "T5", "T6")
	a.Add("T9", "", 0)

	assert.NoError(t, CheckTaskParent(a, "T9", "T6"))
	assert.ErrorIs(t, CheckTaskParent(a, "T1", "T6"), ErrCircularDependency)
	assert.ErrorIs(t, CheckTaskParent(a, "T3", "T3"), ErrCircularDependency)
	assert.ErrorIs(t, CheckTaskParent(a, "T4", "T9"), ErrValidation)
}

func TestCheckTaskParent_MalformedLoopTerminates(t *testing.T) {
	a := NewArena()
	a.Add("P", "Q", 0)
	a.Add("Q", "P", 0)
	a.Add("C", "", 0)

	assert.NoError(t, CheckTaskParent(a, "C", "P"))
}

func TestArena_Ancestors(t *testing.T) {
	a := chain("A", "B", "C", "D")
	assert.Equal(t, []string{"C", "B", "A"}, a.Ancestors("D", 0))
	assert.Equal(t, []string{"C"}, a.Ancestors("D", 1))
	assert.Empty(t, a.Ancestors("A", 0))
}

func TestArena_SetParentMovesChild(t *testing.T) {
	a := chain("A", "B")
	a.Add("C", "", 0)
	a.SetParent("B", "C")
	assert.Empty(t, a.Children("A"))
	assert.Equal(t, []string{"B"}, a.Children("C"))
}

func TestCheckDependency(t *testing.T) {
	g := NewGraph()
	g.AddEdge("A", "B")
	g.AddEdge("B", "C")

	assert.NoError(t, CheckDependency(g, KindTask, "A", "C"))
	assert.ErrorIs(t, CheckDependency(g, KindTask, "C", "A"), ErrCircularDependency)
	assert.ErrorIs(t, CheckDependency(g, KindTask, "D", "D"), ErrCircularDependency)
}
