package facet

import (
	"testing"

	"github.com/agentic-research/medgraph/api"
	"github.com/agentic-research/medgraph/internal/corpustest"
	"github.com/agentic-research/medgraph/internal/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *graph.Store {
	t.Helper()
	s := graph.NewStore()
	recs := []*api.ContentRecord{
		corpustest.Record("asthma",
			corpustest.Systems("Respiratory"),
			corpustest.Topics("airway-disease"),
			corpustest.Keywords("bronchospasm", "Wheezing"),
			corpustest.Relevance(api.RelevanceCritical),
			corpustest.Exam(true, false, "Medicine"),
			corpustest.Typed(api.TypeCondition)),
		corpustest.Record("copd",
			corpustest.Systems("respiratory"),
			corpustest.Keywords("emphysema"),
			corpustest.Relevance(api.RelevanceHigh),
			corpustest.Typed(api.TypeCondition)),
		corpustest.Record("mi",
			corpustest.Systems("cardiovascular"),
			corpustest.Keywords("troponin"),
			corpustest.Relevance(api.RelevanceCritical),
			corpustest.Exam(true, true, "medicine", "surgery")),
		corpustest.Record("resp-anatomy",
			corpustest.Systems("respiratory", "ICD-11:CA"),
			corpustest.Keywords("alveolus", "wheeze"),
			corpustest.Relevance("medium")),
	}
	for _, r := range recs {
		require.NoError(t, s.Register(r))
	}
	return s
}

func TestIndex_Intersection(t *testing.T) {
	idx := Build(testStore(t))

	got := idx.QueryIDs(Filter{System: []string{"respiratory"}, ClinicalRelevance: []string{"critical"}})
	assert.Equal(t, []string{"asthma"}, got)
}

func TestIndex_CaseFolded(t *testing.T) {
	idx := Build(testStore(t))

	assert.Equal(t, []string{"asthma", "copd", "resp-anatomy"}, idx.QueryIDs(Filter{System: []string{"RESPIRATORY"}}))
	assert.Equal(t, []string{"asthma"}, idx.QueryIDs(Filter{Keyword: []string{"wheezing"}}))
	assert.Equal(t, []string{"asthma", "mi"}, idx.QueryIDs(Filter{Shelf: []string{"MEDICINE "}}))
}

func TestIndex_EmptyFilterReturnsAll(t *testing.T) {
	idx := Build(testStore(t))
	assert.Equal(t, []string{"asthma", "copd", "mi", "resp-anatomy"}, idx.QueryIDs(Filter{}))
	assert.True(t, Filter{System: []string{" "}}.IsEmpty())
}

func TestIndex_UnknownValueIsEmpty(t *testing.T) {
	idx := Build(testStore(t))
	assert.Empty(t, idx.QueryIDs(Filter{System: []string{"renal"}}))
	assert.Empty(t, idx.QueryIDs(Filter{System: []string{"respiratory"}, Topic: []string{"nothing"}}))
}

func TestIndex_ValuesWithinFacetAreConjunctive(t *testing.T) {
	idx := Build(testStore(t))
	assert.Equal(t, []string{"mi"}, idx.QueryIDs(Filter{Shelf: []string{"medicine", "surgery"}}))
	assert.Equal(t, []string{"mi"}, idx.QueryIDs(Filter{Exam: []string{"usmle", "nbme"}}))
}

func TestIndex_MediumFoldsToModerate(t *testing.T) {
	idx := Build(testStore(t))
	assert.Equal(t, []string{"resp-anatomy"}, idx.QueryIDs(Filter{ClinicalRelevance: []string{"moderate"}}))
	assert.Equal(t, []string{"resp-anatomy"}, idx.QueryIDs(Filter{ClinicalRelevance: []string{"Medium"}}))
}

func TestIndex_ExtraFacets(t *testing.T) {
	idx := Build(testStore(t))
	assert.Equal(t, []string{"asthma", "copd"}, idx.QueryIDs(Filter{Type: []string{"condition"}}))
	assert.Len(t, idx.QueryIDs(Filter{Level: []string{"2"}}), 4)
	assert.Empty(t, idx.QueryIDs(Filter{Level: []string{"5"}}))
	assert.Len(t, idx.QueryIDs(Filter{Status: []string{"published"}}), 4)
}

func TestIndex_IdempotentRebuild(t *testing.T) {
	s := testStore(t)
	first := Build(s).Buckets()
	second := Build(s).Buckets()
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"asthma", "copd", "resp-anatomy"}, second[System]["respiratory"])
}

func TestIndex_MatchKeywords(t *testing.T) {
	idx := Build(testStore(t))
	s := idx.store
	assert.Equal(t, []string{"asthma", "resp-anatomy"}, s.ResolveIDs(idx.MatchKeywords("WHEEZ")))
	assert.True(t, idx.MatchKeywords("zzz").IsEmpty())
}

func TestIndex_ValuesAndCounts(t *testing.T) {
	idx := Build(testStore(t))
	assert.Equal(t, []string{"cardiovascular", "icd-11:ca", "respiratory"}, idx.Values(System))
	assert.Equal(t, uint64(3), idx.Counts(System)["respiratory"])
	assert.Equal(t, uint64(2), idx.Counts(ClinicalRelevance)["critical"])
}

func TestIndex_QueryDoesNotMutateBuckets(t *testing.T) {
	idx := Build(testStore(t))
	before := idx.Bucket(System, "respiratory").GetCardinality()
	_ = idx.Query(Filter{System: []string{"respiratory"}, Keyword: []string{"emphysema"}})
	assert.Equal(t, before, idx.Bucket(System, "respiratory").GetCardinality())
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter([]string{"system=respiratory", "clinicalrelevance=critical", "system=renal"})
	require.NoError(t, err)
	assert.Equal(t, []string{"respiratory", "renal"}, f.System)
	assert.Equal(t, []string{"critical"}, f.ClinicalRelevance)
	assert.Equal(t, "system=respiratory AND system=renal AND clinicalRelevance=critical", f.String())

	_, err = ParseFilter([]string{"colour=red"})
	assert.Error(t, err)
	_, err = ParseFilter([]string{"system"})
	assert.Error(t, err)
}

func TestFilter_WithDoesNotAlias(t *testing.T) {
	base := Filter{System: make([]string, 1, 4)}
	base.System[0] = "respiratory"
	a := base.With(System, "renal")
	b := base.With(System, "cardiac")
	assert.Equal(t, []string{"respiratory", "renal"}, a.System)
	assert.Equal(t, []string{"respiratory", "cardiac"}, b.System)
}
