package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/agentic-research/medgraph/api"
	"github.com/agentic-research/medgraph/internal/corpus"
	"github.com/agentic-research/medgraph/internal/corpustest"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T) (*Server, *corpus.Generation) {
	t.Helper()
	gen, err := corpus.Build(corpus.NewBatch(
		corpustest.Record("asthma",
			corpustest.Named("Asthma"),
			corpustest.Systems("respiratory"),
			corpustest.Keywords("bronchospasm", "wheezing"),
			corpustest.Relevance(api.RelevanceCritical),
			corpustest.Versioned(3, "2026-03-01"),
			corpustest.Links(api.RelRelated, "resp-physiology")),
		corpustest.Record("copd",
			corpustest.Named("COPD", "Chronic bronchitis"),
			corpustest.Systems("respiratory"),
			corpustest.Keywords("emphysema"),
			corpustest.Relevance(api.RelevanceHigh),
			corpustest.Versioned(2, "2026-04-01"),
			corpustest.Links(api.RelSeeAlso, "asthma")),
		corpustest.Record("resp-physiology",
			corpustest.Systems("respiratory"),
			corpustest.Keywords("ventilation"),
			corpustest.Links(api.RelRelated, "asthma", "gas-exchange")),
		corpustest.Record("gas-exchange",
			corpustest.Systems("respiratory"),
			corpustest.Links(api.RelRelated, "resp-physiology")),
		corpustest.Record("mi",
			corpustest.Systems("cardiovascular"),
			corpustest.Relevance(api.RelevanceCritical)),
	))
	require.NoError(t, err)
	swap := corpus.NewHotSwap()
	swap.Swap(gen)
	return New(swap, corpus.DefaultPolicy(), nil), gen
}

func get(t *testing.T, h http.Handler, target string, out any) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func listIDs(l RecordList) []string {
	out := make([]string, 0, len(l.Records))
	for _, r := range l.Records {
		out = append(out, r.ID)
	}
	return out
}

func TestHTTP_Record(t *testing.T) {
	s, gen := testServer(t)
	h := s.Handler()

	var rec api.ContentRecord
	assert.Equal(t, http.StatusOK, get(t, h, "/records/asthma", &rec))
	assert.Equal(t, "Asthma", rec.Name)

	var body map[string]string
	assert.Equal(t, http.StatusNotFound, get(t, h, "/records/nonexistent-id", &body))
	assert.Contains(t, body["error"], "nonexistent-id")

	var list RecordList
	require.Equal(t, http.StatusOK, get(t, h, "/records?system=respiratory", &list))
	assert.Equal(t, gen.ID, list.Generation)
}

func TestHTTP_Facets(t *testing.T) {
	s, _ := testServer(t)
	h := s.Handler()

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"single facet", "system=respiratory", []string{"asthma", "copd", "gas-exchange", "resp-physiology"}},
		{"two facets", "system=respiratory&clinicalRelevance=critical", []string{"asthma"}},
		{"case folded", "system=RESPIRATORY&clinicalRelevance=Critical", []string{"asthma"}},
		{"repeated value is conjunctive", "system=respiratory&system=cardiovascular", []string{}},
		{"sort by version desc", "system=respiratory&sort=version&desc=true&limit=2", []string{"asthma", "copd"}},
		{"offset past end", "system=respiratory&offset=10", []string{}},
		{"unknown param ignored", "system=cardiovascular&color=blue", []string{"mi"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var list RecordList
			require.Equal(t, http.StatusOK, get(t, h, "/records?"+tt.query, &list))
			assert.Equal(t, tt.want, listIDs(list))
			assert.Equal(t, len(tt.want), list.Count)
		})
	}

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/records?sort=color", nil))
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/records?limit=many", nil))
}

func TestHTTP_Related(t *testing.T) {
	s, _ := testServer(t)
	h := s.Handler()

	var list RecordList
	require.Equal(t, http.StatusOK, get(t, h, "/records/asthma/related", &list))
	assert.Equal(t, []string{"asthma", "resp-physiology"}, listIDs(list))

	require.Equal(t, http.StatusOK, get(t, h, "/records/asthma/related?depth=2", &list))
	assert.ElementsMatch(t, []string{"asthma", "resp-physiology", "gas-exchange"}, listIDs(list))

	require.Equal(t, http.StatusOK, get(t, h, "/records/copd/related?depth=3&rel=related", &list))
	assert.Equal(t, []string{"copd"}, listIDs(list))

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/records/asthma/related?rel=cousin", nil))
	assert.Equal(t, http.StatusNotFound, get(t, h, "/records/nonexistent-id/related", nil))
}

func TestHTTP_SearchBacklinksPath(t *testing.T) {
	s, _ := testServer(t)
	h := s.Handler()

	var list RecordList
	require.Equal(t, http.StatusOK, get(t, h, "/search?q=bronch", &list))
	assert.Equal(t, []string{"asthma"}, listIDs(list))

	require.Equal(t, http.StatusOK, get(t, h, "/search?q=bronchitis&in=names", &list))
	assert.Equal(t, []string{"copd"}, listIDs(list))

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/search?q=", nil))
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/search?q=x&in=bodies", nil))
	assert.Equal(t, http.StatusNotFound, get(t, h, "/search?q=zzz", nil))

	require.Equal(t, http.StatusOK, get(t, h, "/records/asthma/backlinks", &list))
	assert.Equal(t, []string{"copd", "resp-physiology"}, listIDs(list))

	var path struct {
		Path []string `json:"path"`
	}
	require.Equal(t, http.StatusOK, get(t, h, "/path?from=copd&to=gas-exchange", &path))
	assert.Equal(t, []string{"copd", "asthma", "resp-physiology", "gas-exchange"}, path.Path)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/path?from=mi&to=asthma", nil))
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/path?from=mi", nil))
}

func TestHTTP_Where(t *testing.T) {
	s, _ := testServer(t)
	h := s.Handler()

	var list RecordList
	q := url.Values{"expr": {`record.version >= 2 && "respiratory" in record.tags.systems`}}
	require.Equal(t, http.StatusOK, get(t, h, "/where?"+q.Encode(), &list))
	assert.Equal(t, []string{"asthma", "copd"}, listIDs(list))

	q = url.Values{"expr": {"record.version >"}}
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/where?"+q.Encode(), nil))
}

func TestHTTP_ReportAndHealth(t *testing.T) {
	s, gen := testServer(t)
	h := s.Handler()

	var report struct {
		Generation struct {
			ID string `json:"id"`
		} `json:"generation"`
		Stats struct {
			Records int `json:"records"`
		} `json:"stats"`
		Findings []map[string]any `json:"findings"`
		Fails    bool             `json:"fails"`
	}
	require.Equal(t, http.StatusOK, get(t, h, "/report", &report))
	assert.Equal(t, gen.ID, report.Generation.ID)
	assert.Equal(t, 5, report.Stats.Records)
	assert.False(t, report.Fails)
	assert.NotNil(t, report.Findings)

	var health map[string]any
	require.Equal(t, http.StatusOK, get(t, h, "/healthz", &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, float64(5), health["records"])
}

func TestHTTP_BeforeFirstLoad(t *testing.T) {
	h := New(corpus.NewHotSwap(), corpus.DefaultPolicy(), nil).Handler()
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/records/asthma", nil))
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/report", nil))
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/healthz", nil))
}

func TestHTTP_Metrics(t *testing.T) {
	s, _ := testServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/records/asthma")
	require.NoError(t, err)
	_ = resp.Body.Close()

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `medgraph_queries_total{op="find_by_id",result="ok"}`)
}

func callTool(t *testing.T, s *Server, name string, args map[string]any) (string, bool) {
	t.Helper()
	handlers := map[string]toolFunc{
		"find_by_id":     s.toolFindByID,
		"find_by_facets": s.toolFindByFacets,
		"related_to":     s.toolRelatedTo,
		"search_keyword": s.toolSearchKeyword,
		"backlinks":      s.toolBacklinks,
	}
	fn, ok := handlers[name]
	require.True(t, ok, name)

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := s.tool(name, fn)(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text, res.IsError
}

func TestMCP_Tools(t *testing.T) {
	s, _ := testServer(t)
	require.NotNil(t, s.NewMCPServer("test"))

	out, isErr := callTool(t, s, "find_by_id", map[string]any{"id": "asthma"})
	require.False(t, isErr, out)
	var rec api.ContentRecord
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, "asthma", rec.ID)

	out, isErr = callTool(t, s, "find_by_facets", map[string]any{"system": "respiratory", "clinicalRelevance": "critical, high"})
	require.False(t, isErr, out)
	var sums []Summary
	require.NoError(t, json.Unmarshal([]byte(out), &sums))
	assert.Empty(t, sums)

	out, isErr = callTool(t, s, "find_by_facets", map[string]any{"system": "respiratory", "limit": float64(2)})
	require.False(t, isErr, out)
	require.NoError(t, json.Unmarshal([]byte(out), &sums))
	require.Len(t, sums, 2)
	assert.Equal(t, "asthma", sums[0].ID)

	out, isErr = callTool(t, s, "related_to", map[string]any{"id": "asthma", "depth": float64(2)})
	require.False(t, isErr, out)
	require.NoError(t, json.Unmarshal([]byte(out), &sums))
	assert.Len(t, sums, 3)

	out, isErr = callTool(t, s, "search_keyword", map[string]any{"text": "emphy"})
	require.False(t, isErr, out)
	require.NoError(t, json.Unmarshal([]byte(out), &sums))
	assert.Equal(t, "copd", sums[0].ID)

	out, isErr = callTool(t, s, "backlinks", map[string]any{"id": "gas-exchange"})
	require.False(t, isErr, out)
	require.NoError(t, json.Unmarshal([]byte(out), &sums))
	assert.Equal(t, "resp-physiology", sums[0].ID)
}

func TestMCP_Errors(t *testing.T) {
	s, _ := testServer(t)

	out, isErr := callTool(t, s, "find_by_id", map[string]any{"id": "nonexistent-id"})
	assert.True(t, isErr)
	assert.Contains(t, out, "not found")

	_, isErr = callTool(t, s, "find_by_id", map[string]any{})
	assert.True(t, isErr)

	_, isErr = callTool(t, s, "find_by_facets", map[string]any{})
	assert.True(t, isErr)

	_, isErr = callTool(t, s, "search_keyword", map[string]any{"text": "  "})
	assert.True(t, isErr)
}
