package graph

import (
	"testing"

	"github.com/agentic-research/medgraph/api"
	"github.com/agentic-research/medgraph/internal/corpustest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sealed(t *testing.T, recs ...*api.ContentRecord) *Store {
	t.Helper()
	s := NewStore()
	for _, r := range recs {
		require.NoError(t, s.Register(r))
	}
	s.Seal()
	return s
}

func TestResolve_RelatedWithoutReciprocal(t *testing.T) {
	s := sealed(t,
		corpustest.Record("resp-anatomy", corpustest.Links(api.RelRelated, "resp-physiology")),
		corpustest.Record("resp-physiology"),
	)

	adj, rep := Resolve(s)
	assert.Equal(t, 0, rep.DanglingCount)
	assert.Equal(t, 1, rep.AsymmetryCount)
	assert.Equal(t, 0, rep.CycleCount)
	assert.Equal(t, Asymmetry{SourceID: "resp-anatomy", TargetID: "resp-physiology", Relationship: api.RelRelated}, rep.Asymmetries[0])

	require.Len(t, adj.Out("resp-anatomy"), 1)
	require.Len(t, adj.In("resp-physiology"), 1)
	assert.Equal(t, "resp-anatomy", adj.In("resp-physiology")[0].From)
}

func TestResolve_ReciprocalIsSymmetric(t *testing.T) {
	s := sealed(t,
		corpustest.Record("a", corpustest.Links(api.RelSibling, "b")),
		corpustest.Record("b", corpustest.Links(api.RelSibling, "a")),
	)
	_, rep := Resolve(s)
	assert.Equal(t, 0, rep.AsymmetryCount)
}

func TestResolve_ReciprocalMustShareRelationship(t *testing.T) {
	s := sealed(t,
		corpustest.Record("a", corpustest.Links(api.RelSibling, "b")),
		corpustest.Record("b", corpustest.Links(api.RelRelated, "a")),
	)
	_, rep := Resolve(s)
	assert.Equal(t, 2, rep.AsymmetryCount)
}

func TestResolve_SeeAlsoIsOneWay(t *testing.T) {
	s := sealed(t,
		corpustest.Record("a", corpustest.Links(api.RelSeeAlso, "b")),
		corpustest.Record("b"),
	)
	adj, rep := Resolve(s)
	assert.Equal(t, 0, rep.AsymmetryCount)
	assert.Len(t, adj.Out("a"), 1)
}

func TestResolve_DanglingTarget(t *testing.T) {
	s := sealed(t,
		corpustest.Record("a", corpustest.Links(api.RelRelated, "nonexistent-id", "b")),
		corpustest.Record("b", corpustest.Links(api.RelRelated, "a")),
	)

	adj, rep := Resolve(s)
	assert.Equal(t, 1, rep.DanglingCount)
	assert.Equal(t, "nonexistent-id", rep.Dangling[0].TargetID)
	assert.Equal(t, "a", rep.Dangling[0].SourceID)
	assert.Equal(t, 1, rep.DanglingFor("a"))
	assert.Equal(t, 0, rep.DanglingFor("b"))
	// dangling links are not symmetry-checked
	assert.Equal(t, 0, rep.AsymmetryCount)
	assert.Len(t, adj.Out("a"), 1)
	assert.True(t, s.Has("a"))
}

func TestResolve_HierarchyCycle(t *testing.T) {
	// a is parent of b, b is parent of a
	s := sealed(t,
		corpustest.Record("a", corpustest.Links(api.RelChild, "b")),
		corpustest.Record("b", corpustest.Links(api.RelChild, "a")),
	)
	_, rep := Resolve(s)
	require.Equal(t, 1, rep.CycleCount)
	assert.Equal(t, []string{"a", "b"}, rep.Cycles[0].Path)
	assert.Equal(t, "a -> b -> a", rep.Cycles[0].String())
}

func TestResolve_ParentAndChildNormalize(t *testing.T) {
	// a child b and b parent a are the same edge: no cycle.
	s := sealed(t,
		corpustest.Record("a", corpustest.Links(api.RelChild, "b")),
		corpustest.Record("b", corpustest.Links(api.RelParent, "a")),
	)
	_, rep := Resolve(s)
	assert.Equal(t, 0, rep.CycleCount)
	assert.Equal(t, 0, rep.AsymmetryCount)
}

func TestResolve_ThreeNodeCycleReportedOnce(t *testing.T) {
	s := sealed(t,
		corpustest.Record("c", corpustest.Links(api.RelChild, "a")),
		corpustest.Record("a", corpustest.Links(api.RelChild, "b")),
		corpustest.Record("b", corpustest.Links(api.RelChild, "c")),
	)
	_, rep := Resolve(s)
	require.Equal(t, 1, rep.CycleCount)
	assert.Equal(t, []string{"a", "b", "c"}, rep.Cycles[0].Path)
}

func TestResolve_RelatedLoopIsNotAHierarchyCycle(t *testing.T) {
	s := sealed(t,
		corpustest.Record("a", corpustest.Links(api.RelRelated, "b")),
		corpustest.Record("b", corpustest.Links(api.RelRelated, "a")),
	)
	_, rep := Resolve(s)
	assert.Equal(t, 0, rep.CycleCount)
}

func TestResolve_Orphans(t *testing.T) {
	s := sealed(t,
		corpustest.Record("a", corpustest.Links(api.RelSeeAlso, "b")),
		corpustest.Record("b"),
		corpustest.Record("lonely"),
		corpustest.Record("broken", corpustest.Links(api.RelRelated, "missing")),
	)
	adj, rep := Resolve(s)
	assert.Equal(t, []string{"broken", "lonely"}, rep.Orphans)
	assert.Equal(t, 1, adj.EdgeCount())
}

func TestResolve_EmptyStore(t *testing.T) {
	_, rep := Resolve(sealed(t))
	assert.Zero(t, rep.DanglingCount)
	assert.Empty(t, rep.Orphans)
}
