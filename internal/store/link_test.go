package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/lifecycle/internal/lifecycle"
	"github.com/HendryAvila/lifecycle/internal/store"
)

func link(t *testing.T, s *store.Store, a, b string, rel lifecycle.Relationship) {
	t.Helper()
	created, err := s.LinkEntities(context.Background(), a, b, rel, "linker")
	require.NoError(t, err, "%s %s %s", a, rel, b)
	require.True(t, created, "%s %s %s", a, rel, b)
}

// requirementChain creates n requirements, each a decomposition child of
// the previous one.
func requirementChain(t *testing.T, s *store.Store, n int) []string {
	t.Helper()
	ids := make([]string, n)
	for i := range ids {
		ids[i] = mustRequirement(t, s, lifecycle.TypeFunctional)
		if i > 0 {
			link(t, s, ids[i], ids[i-1], lifecycle.RelParent)
		}
	}
	return ids
}

// ─── Idempotence and events ─────────────────────────────────────────────────

func TestLinkEntities_Idempotent(t *testing.T) {
	forEachDialect(t, func(t *testing.T, s *store.Store) {
		ctx := context.Background()
		req := mustRequirement(t, s, lifecycle.TypeFunctional)
		task := mustTask(t, s, "")

		created, err := s.LinkEntities(ctx, req, task, "", "pm")
		require.NoError(t, err)
		assert.True(t, created)

		created, err = s.LinkEntities(ctx, req, task, lifecycle.RelImplements, "pm")
		require.NoError(t, err)
		assert.False(t, created)

		events := history(t, s, req)
		require.Equal(t, 1, countEvents(events, store.EventRelationshipAdded))
		last := events[len(events)-1]
		assert.Equal(t, "implements", last.From)
		assert.Equal(t, task, last.To)
		assert.Equal(t, "pm", last.Actor)

		assert.Equal(t, 1, requirement(t, s, req).TaskCount)
	})
}

func TestLinkEntities_RecomputesCountersOnLink(t *testing.T) {
	s := newTestStore(t)
	req := mustRequirement(t, s, lifecycle.TypeFunctional)
	task := mustTask(t, s, "")
	walk(t, s, task, lifecycle.StateInProgress, lifecycle.StateComplete)

	link(t, s, req, task, lifecycle.RelImplements)
	r := requirement(t, s, req)
	assert.Equal(t, 1, r.TaskCount)
	assert.Equal(t, 1, r.TasksCompleted)
}

func TestLinkEntities_InvalidRelationships(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	req := mustRequirement(t, s, lifecycle.TypeFunctional)
	task := mustTask(t, s, "")
	adr := mustADR(t, s)

	tests := []struct {
		name string
		a, b string
		rel  lifecycle.Relationship
	}{
		{"task blocks requirement", task, req, lifecycle.RelBlocks},
		{"architecture to task", adr, task, ""},
		{"wrong relationship", req, task, lifecycle.RelBlocks},
		{"ambiguous default", task, task, ""},
		{"self relates", req, req, lifecycle.RelRelates},
		{"self informs", task, task, lifecycle.RelInforms},
		{"bad identifier", "nope", task, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.LinkEntities(ctx, tt.a, tt.b, tt.rel, "")
			assert.ErrorIs(t, err, lifecycle.ErrValidation)
		})
	}

	_, err := s.LinkEntities(ctx, req, "TASK-0077-00-00", "", "")
	assert.ErrorIs(t, err, lifecycle.ErrNotFound)
}

func TestLinkEntities_ReverseDirection(t *testing.T) {
	forEachDialect(t, func(t *testing.T, s *store.Store) {
		ctx := context.Background()
		req := mustRequirement(t, s, lifecycle.TypeFunctional)
		task := mustTask(t, s, "")
		adr := mustADR(t, s)

		link(t, s, task, req, lifecycle.RelImplements)
		link(t, s, adr, req, "")

		created, err := s.LinkEntities(ctx, req, task, lifecycle.RelImplements, "linker")
		require.NoError(t, err)
		assert.False(t, created, "reverse link is the same edge")

		assert.Equal(t, 1, requirement(t, s, req).TaskCount)
		events := history(t, s, req)
		assert.Equal(t, 2, countEvents(events, store.EventRelationshipAdded))
		assert.Equal(t, 0, countEvents(history(t, s, task), store.EventRelationshipAdded))
	})
}

func TestLinkEntities_ConcurrentWithCompletion(t *testing.T) {
	forEachDialect(t, func(t *testing.T, s *store.Store) {
		ctx := context.Background()
		const n = 8
		reqs := make([]string, n)
		tasks := make([]string, n)
		for i := range tasks {
			reqs[i] = mustRequirement(t, s, lifecycle.TypeFunctional)
			tasks[i] = mustTask(t, s, "")
			mustTransition(t, s, tasks[i], lifecycle.StateInProgress)
		}

		done := make(chan error, 2*n)
		for i := range tasks {
			go func() {
				_, err := s.LinkEntities(ctx, reqs[i], tasks[i], lifecycle.RelImplements, "linker")
				done <- err
			}()
			go func() {
				_, err := s.TransitionStatus(ctx, tasks[i], lifecycle.StateComplete, "racer", "")
				done <- err
			}()
		}
		for range 2 * n {
			require.NoError(t, <-done)
		}

		for _, id := range reqs {
			r := requirement(t, s, id)
			assert.Equal(t, 1, r.TaskCount, id)
			assert.Equal(t, 1, r.TasksCompleted, id)
		}
	})
}

func TestRelationships(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	parent := mustRequirement(t, s, lifecycle.TypeFunctional)
	child := mustRequirement(t, s, lifecycle.TypeFunctional)
	task := mustTask(t, s, "", child)
	adr := mustADR(t, s, child)
	link(t, s, child, parent, lifecycle.RelParent)

	links, err := s.Relationships(ctx, child)
	require.NoError(t, err)

	got := map[lifecycle.Relationship]string{}
	for _, l := range links {
		if l.From == child {
			got[l.Relationship] = l.To
		}
	}
	assert.Equal(t, task, got[lifecycle.RelImplements])
	assert.Equal(t, adr, got[lifecycle.RelAddresses])
	assert.Equal(t, parent, got[lifecycle.RelParent])
}

// ─── Requirement hierarchy ──────────────────────────────────────────────────

func TestLinkEntities_RequirementLevels(t *testing.T) {
	forEachDialect(t, func(t *testing.T, s *store.Store) {
		chain := requirementChain(t, s, 4)
		for i, id := range chain {
			assert.Equal(t, i, requirement(t, s, id).DecompositionLevel, id)
		}
	})
}

func TestLinkEntities_DepthExceeded(t *testing.T) {
	forEachDialect(t, func(t *testing.T, s *store.Store) {
		ctx := context.Background()
		chain := requirementChain(t, s, 4)
		extra := mustRequirement(t, s, lifecycle.TypeFunctional)

		_, err := s.LinkEntities(ctx, extra, chain[3], lifecycle.RelParent, "")
		require.ErrorIs(t, err, lifecycle.ErrDepthExceeded)

		assert.Equal(t, 0, requirement(t, s, extra).DecompositionLevel)
		children, err := s.QueryRequirements(ctx, store.RequirementFilter{ParentID: chain[3]})
		require.NoError(t, err)
		assert.Empty(t, children, "no edge may be written")
		assert.Zero(t, countEvents(history(t, s, extra), store.EventRelationshipAdded))
	})
}

func TestLinkEntities_SubtreeDepthExceeded(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	top := requirementChain(t, s, 2)
	sub := requirementChain(t, s, 3)

	_, err := s.LinkEntities(ctx, sub[0], top[1], lifecycle.RelParent, "")
	require.ErrorIs(t, err, lifecycle.ErrDepthExceeded, "the grandchild would land at level 4")

	for i, id := range sub {
		assert.Equal(t, i, requirement(t, s, id).DecompositionLevel)
	}
}

func TestLinkEntities_SubtreeRelevelled(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	root := mustRequirement(t, s, lifecycle.TypeFunctional)
	sub := requirementChain(t, s, 2)

	link(t, s, sub[0], root, lifecycle.RelParent)
	assert.Equal(t, 1, requirement(t, s, sub[0]).DecompositionLevel)
	assert.Equal(t, 2, requirement(t, s, sub[1]).DecompositionLevel)

	tree, err := s.RequirementTree(ctx, root)
	require.NoError(t, err)
	require.Len(t, tree, 3)
	assert.Equal(t, root, tree[0].ID)
	assert.Equal(t, sub[1], tree[2].ID)
	assert.Equal(t, 2, tree[2].Depth)
	assert.Equal(t, sub[0], tree[2].Parent)
}

func TestLinkEntities_RequirementCycle(t *testing.T) {
	forEachDialect(t, func(t *testing.T, s *store.Store) {
		chain := requirementChain(t, s, 3)

		_, err := s.LinkEntities(context.Background(), chain[0], chain[2], lifecycle.RelParent, "")
		require.ErrorIs(t, err, lifecycle.ErrCircularDependency)
		assert.Equal(t, 0, requirement(t, s, chain[0]).DecompositionLevel)

		_, err = s.LinkEntities(context.Background(), chain[0], chain[0], lifecycle.RelParent, "")
		assert.ErrorIs(t, err, lifecycle.ErrCircularDependency)
	})
}

func TestLinkEntities_SingleParent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := mustRequirement(t, s, lifecycle.TypeFunctional)
	b := mustRequirement(t, s, lifecycle.TypeFunctional)
	child := mustRequirement(t, s, lifecycle.TypeFunctional)

	link(t, s, child, a, lifecycle.RelParent)
	created, err := s.LinkEntities(ctx, child, a, lifecycle.RelParent, "")
	require.NoError(t, err)
	assert.False(t, created)

	_, err = s.LinkEntities(ctx, child, b, lifecycle.RelParent, "")
	assert.ErrorIs(t, err, lifecycle.ErrValidation)
}

func TestLinkEntities_RequirementDependsCycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := mustRequirement(t, s, lifecycle.TypeFunctional)
	b := mustRequirement(t, s, lifecycle.TypeFunctional)
	c := mustRequirement(t, s, lifecycle.TypeFunctional)

	link(t, s, a, b, lifecycle.RelDepends)
	link(t, s, b, c, lifecycle.RelDepends)
	_, err := s.LinkEntities(ctx, c, a, lifecycle.RelDepends, "")
	assert.ErrorIs(t, err, lifecycle.ErrCircularDependency)

	link(t, s, c, a, lifecycle.RelRelates)
}

// ─── Task hierarchy and dependencies ────────────────────────────────────────

func TestLinkEntities_TaskParentCycle(t *testing.T) {
	forEachDialect(t, func(t *testing.T, s *store.Store) {
		ctx := context.Background()
		t1 := mustTask(t, s, "")
		t2 := mustTask(t, s, t1)
		t3 := mustTask(t, s, t2)

		_, err := s.LinkEntities(ctx, t1, t3, lifecycle.RelParent, "")
		require.ErrorIs(t, err, lifecycle.ErrCircularDependency)

		task, err := s.GetTask(ctx, t1)
		require.NoError(t, err)
		assert.Empty(t, task.ParentTaskID)
	})
}

func TestLinkEntities_TaskParent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	t1 := mustTask(t, s, "")
	t2 := mustTask(t, s, "")
	t3 := mustTask(t, s, "")

	link(t, s, t2, t1, lifecycle.RelParent)
	task, err := s.GetTask(ctx, t2)
	require.NoError(t, err)
	assert.Equal(t, t1, task.ParentTaskID)

	_, err = s.LinkEntities(ctx, t2, t3, lifecycle.RelParent, "")
	assert.ErrorIs(t, err, lifecycle.ErrValidation, "a task has one parent")

	tree, err := s.TaskTree(ctx, t1)
	require.NoError(t, err)
	require.Len(t, tree, 2)
	assert.Equal(t, t2, tree[1].ID)
}

func TestLinkEntities_TaskDependencyCycle(t *testing.T) {
	forEachDialect(t, func(t *testing.T, s *store.Store) {
		ctx := context.Background()
		t1 := mustTask(t, s, "")
		t2 := mustTask(t, s, "")
		t3 := mustTask(t, s, "")

		link(t, s, t1, t2, lifecycle.RelRequires)
		link(t, s, t2, t3, lifecycle.RelBlocks)

		_, err := s.LinkEntities(ctx, t3, t1, lifecycle.RelRequires, "")
		require.ErrorIs(t, err, lifecycle.ErrCircularDependency)
		_, err = s.LinkEntities(ctx, t3, t1, lifecycle.RelBlocks, "")
		require.ErrorIs(t, err, lifecycle.ErrCircularDependency)
		_, err = s.LinkEntities(ctx, t1, t1, lifecycle.RelRequires, "")
		require.ErrorIs(t, err, lifecycle.ErrCircularDependency)

		link(t, s, t3, t1, lifecycle.RelInforms)
	})
}
