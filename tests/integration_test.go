package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentic-research/medgraph/api"
	"github.com/agentic-research/medgraph/internal/control"
	"github.com/agentic-research/medgraph/internal/corpus"
	"github.com/agentic-research/medgraph/internal/corpustest"
	"github.com/agentic-research/medgraph/internal/facet"
	"github.com/agentic-research/medgraph/internal/ingest"
	"github.com/agentic-research/medgraph/internal/logging"
	"github.com/agentic-research/medgraph/internal/query"
	"github.com/agentic-research/medgraph/internal/server"
	"github.com/agentic-research/medgraph/internal/watch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// testFixture is a corpus directory on disk, a manager loading from it and
// an HTTP server over the manager's live generation.
type testFixture struct {
	dir  string
	src  *ingest.DirSource
	mgr  *corpus.Manager
	http *httptest.Server
	log  *logging.Logger
}

func newFixture(t *testing.T, recs ...*api.ContentRecord) *testFixture {
	t.Helper()
	f := &testFixture{dir: t.TempDir(), log: logging.FromZap(zaptest.NewLogger(t))}
	for _, r := range recs {
		f.write(t, r)
	}
	src, err := ingest.NewDirSource(f.dir, ingest.Options{Log: f.log})
	require.NoError(t, err)
	f.src = src
	f.mgr = corpus.NewManager(src, f.log)
	_, err = f.mgr.Reload(context.Background())
	require.NoError(t, err)

	f.http = httptest.NewServer(server.New(f.mgr.HotSwap(), corpus.DefaultPolicy(), f.log).Handler())
	t.Cleanup(f.http.Close)
	return f
}

func (f *testFixture) write(t *testing.T, r *api.ContentRecord) {
	t.Helper()
	raw, err := json.MarshalIndent(r, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, r.ID+".json"), raw, 0o644))
}

func (f *testFixture) get(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(f.http.URL + path)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestEndToEnd_AsymmetricRelatedLink(t *testing.T) {
	f := newFixture(t,
		corpustest.Record("resp-anatomy",
			corpustest.Systems("respiratory"),
			corpustest.Links(api.RelRelated, "resp-physiology")),
		corpustest.Record("resp-physiology",
			corpustest.Systems("respiratory")),
	)

	gen, err := f.mgr.Current()
	require.NoError(t, err)
	assert.Equal(t, 0, gen.Resolution.DanglingCount)
	assert.Equal(t, 1, gen.Resolution.AsymmetryCount)

	var report struct {
		Findings []struct {
			Severity string `json:"severity"`
			Kind     string `json:"kind"`
			RecordID string `json:"recordId"`
		} `json:"findings"`
		Fails bool `json:"fails"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/report", &report))
	require.Len(t, report.Findings, 1)
	assert.Equal(t, string(corpus.KindAsymmetry), report.Findings[0].Kind)
	assert.Equal(t, "warning", report.Findings[0].Severity)
	assert.Equal(t, "resp-anatomy", report.Findings[0].RecordID)
	assert.False(t, report.Fails)
}

func TestEndToEnd_MissingTarget(t *testing.T) {
	f := newFixture(t,
		corpustest.Record("a", corpustest.Links(api.RelRelated, "nonexistent-id")),
		corpustest.Record("b"),
	)

	gen, err := f.mgr.Current()
	require.NoError(t, err)
	assert.Equal(t, 1, gen.Resolution.DanglingCount)
	assert.Equal(t, 2, gen.Store.Count())

	var rec api.ContentRecord
	require.Equal(t, http.StatusOK, f.get(t, "/records/b", &rec))
	assert.Equal(t, http.StatusNotFound, f.get(t, "/records/nonexistent-id", nil))
}

func TestEndToEnd_DuplicateKeepsPreviousGeneration(t *testing.T) {
	f := newFixture(t, corpustest.Record("asthma"), corpustest.Record("copd"))
	before, err := f.mgr.Current()
	require.NoError(t, err)

	dup := corpustest.Record("asthma")
	raw, err := json.Marshal(dup)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "asthma-copy.json"), raw, 0o644))

	_, err = f.mgr.Reload(context.Background())
	require.Error(t, err)

	after, err := f.mgr.Current()
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, http.StatusOK, f.get(t, "/records/copd", nil))
}

func TestEndToEnd_WatchReloadsAndReadersStayConsistent(t *testing.T) {
	f := newFixture(t,
		corpustest.Record("asthma", corpustest.Systems("respiratory")),
	)

	w, err := watch.New(f.dir, func(ctx context.Context) error {
		_, err := f.mgr.Reload(ctx)
		return err
	}, watch.Options{Match: f.src.Match, Debounce: 50 * time.Millisecond, Log: f.log})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})

	// Readers pin one generation per request: the record count they see must
	// match the generation they were answered from.
	var stop atomic.Bool
	var mixed atomic.Int32
	var readers sync.WaitGroup
	for range 4 {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for !stop.Load() {
				gen, err := f.mgr.Current()
				if err != nil {
					continue
				}
				recs, err := gen.Query.FindByFacets(facet.Filter{System: []string{"respiratory"}}, query.Options{})
				if err != nil || len(recs) != gen.Store.Count() {
					mixed.Add(1)
				}
			}
		}()
	}

	f.write(t, corpustest.Record("copd", corpustest.Systems("respiratory")))
	require.Eventually(t, func() bool {
		return f.get(t, "/records/copd", nil) == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	stop.Store(true)
	readers.Wait()
	assert.Zero(t, mixed.Load())

	gen, err := f.mgr.Current()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, gen.Seq, uint64(2))
}

func TestEndToEnd_ControlFileAndSnapshot(t *testing.T) {
	f := newFixture(t,
		corpustest.Record("asthma", corpustest.Systems("respiratory"), corpustest.Relevance(api.RelevanceCritical)),
		corpustest.Record("mi", corpustest.Systems("cardiovascular"), corpustest.Relevance(api.RelevanceCritical)),
	)

	ctl, err := control.OpenOrCreate(filepath.Join(t.TempDir(), "medgraph.ctl"))
	require.NoError(t, err)
	defer func() { _ = ctl.Close() }()
	f.mgr.OnSwap(control.NewPublisher(ctl, f.log).Publish)

	gen, err := f.mgr.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), ctl.Seq())
	assert.Equal(t, gen.ID, ctl.GenerationID())

	ids, err := ingest.SnapshotBucket(ctl.SnapshotPath(), facet.ClinicalRelevance, "critical")
	require.NoError(t, err)
	assert.Equal(t, []string{"asthma", "mi"}, ids)

	// the published snapshot is itself a loadable corpus
	snapDir := t.TempDir()
	raw, err := os.ReadFile(ctl.SnapshotPath())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(snapDir, "corpus.db"), raw, 0o644))
	src, err := ingest.NewDirSource(snapDir, ingest.Options{})
	require.NoError(t, err)
	reloaded, err := corpus.NewManager(src, f.log).Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, gen.Store.IDs(), reloaded.Store.IDs())
	assert.Equal(t, gen.Index.Buckets(), reloaded.Index.Buckets())
}
