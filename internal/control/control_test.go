package control

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/agentic-research/medgraph/internal/corpus"
	"github.com/agentic-research/medgraph/internal/corpustest"
	"github.com/agentic-research/medgraph/internal/facet"
	"github.com/agentic-research/medgraph/internal/ingest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_PublishAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "medgraph.ctl")

	c, err := OpenOrCreate(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), c.Seq())
	assert.Empty(t, c.SnapshotPath())

	require.NoError(t, c.Publish(1, "gen-one", "/tmp/a.db", 10))
	require.NoError(t, c.Publish(2, "gen-two", "/tmp/b.db", 12))
	require.NoError(t, c.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(BlockSize), info.Size())

	c, err = OpenOrCreate(path)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()
	assert.Equal(t, uint64(2), c.Seq())
	assert.Equal(t, uint64(12), c.Records())
	assert.Equal(t, "/tmp/b.db", c.SnapshotPath())
	assert.Equal(t, "gen-two", c.GenerationID())
}

func TestController_SharedMapping(t *testing.T) {
	path := filepath.Join(t.TempDir(), "medgraph.ctl")
	writer, err := OpenOrCreate(path)
	require.NoError(t, err)
	defer func() { _ = writer.Close() }()
	reader, err := OpenOrCreate(path)
	require.NoError(t, err)
	defer func() { _ = reader.Close() }()

	require.NoError(t, writer.Publish(7, "g", "/x.db", 1))
	assert.Equal(t, uint64(7), reader.Seq())
	assert.Equal(t, "/x.db", reader.SnapshotPath())
}

func TestController_ShorterPathClearsTail(t *testing.T) {
	c, err := OpenOrCreate(filepath.Join(t.TempDir(), "medgraph.ctl"))
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	require.NoError(t, c.Publish(1, "long-generation-id", "/a/very/long/snapshot.db", 1))
	require.NoError(t, c.Publish(2, "g2", "/b.db", 1))
	assert.Equal(t, "/b.db", c.SnapshotPath())
	assert.Equal(t, "g2", c.GenerationID())
}

func TestController_RejectsStaleAndOversized(t *testing.T) {
	c, err := OpenOrCreate(filepath.Join(t.TempDir(), "medgraph.ctl"))
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	require.NoError(t, c.Publish(3, "g", "/a.db", 1))
	assert.Error(t, c.Publish(3, "g", "/a.db", 1))
	assert.Error(t, c.Publish(2, "g", "/a.db", 1))

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	assert.Error(t, c.Publish(4, "g", string(long), 1))
	assert.Equal(t, uint64(3), c.Seq())
}

func TestOpenOrCreate_ForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-control-file")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))
	_, err := OpenOrCreate(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a control file")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(raw))

	big := filepath.Join(t.TempDir(), "page")
	page := make([]byte, BlockSize)
	copy(page, "SQLite format 3")
	require.NoError(t, os.WriteFile(big, page, 0o644))
	_, err = OpenOrCreate(big)
	assert.Error(t, err)
}

func TestPublisher_FollowsManager(t *testing.T) {
	dir := t.TempDir()
	ctl, err := OpenOrCreate(filepath.Join(dir, "medgraph.ctl"))
	require.NoError(t, err)
	defer func() { _ = ctl.Close() }()

	records := []string{"asthma"}
	m := corpus.NewManager(corpus.SourceFunc(func(context.Context) (*corpus.Batch, error) {
		b := corpus.NewBatch()
		for _, id := range records {
			b.Add(corpustest.Record(id, corpustest.Systems("respiratory")), id)
		}
		return b, nil
	}), nil)
	m.OnSwap(NewPublisher(ctl, nil).Publish)

	_, err = m.Reload(context.Background())
	require.NoError(t, err)
	first := ctl.SnapshotPath()
	assert.Equal(t, uint64(1), ctl.Seq())
	assert.FileExists(t, first)

	records = []string{"asthma", "copd"}
	gen, err := m.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), ctl.Seq())
	assert.Equal(t, gen.ID, ctl.GenerationID())
	assert.Equal(t, uint64(2), ctl.Records())
	assert.NoFileExists(t, first)

	ids, err := ingest.SnapshotBucket(ctl.SnapshotPath(), facet.System, "respiratory")
	require.NoError(t, err)
	assert.Equal(t, []string{"asthma", "copd"}, ids)
}

func TestPublisher_ContinuesAfterRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "medgraph.ctl")
	src := corpus.SourceFunc(func(context.Context) (*corpus.Batch, error) {
		b := corpus.NewBatch()
		b.Add(corpustest.Record("asthma", corpustest.Systems("respiratory")), "asthma")
		return b, nil
	})

	run := func(reloads int) *corpus.Generation {
		ctl, err := OpenOrCreate(path)
		require.NoError(t, err)
		defer func() { _ = ctl.Close() }()
		m := corpus.NewManager(src, nil)
		m.OnSwap(NewPublisher(ctl, nil).Publish)
		var gen *corpus.Generation
		for range reloads {
			gen, err = m.Reload(context.Background())
			require.NoError(t, err)
		}
		return gen
	}

	run(3)
	gen := run(1)

	ctl, err := OpenOrCreate(path)
	require.NoError(t, err)
	defer func() { _ = ctl.Close() }()
	assert.Equal(t, uint64(4), ctl.Seq())
	assert.Equal(t, gen.ID, ctl.GenerationID())
	assert.FileExists(t, ctl.SnapshotPath())
	assert.NoFileExists(t, ctl.SnapshotPath()+".tmp")

	ids, err := ingest.SnapshotBucket(ctl.SnapshotPath(), facet.System, "respiratory")
	require.NoError(t, err)
	assert.Equal(t, []string{"asthma"}, ids)

	// only the published snapshot is left next to the control file
	matches, err := filepath.Glob(path + ".gen*")
	require.NoError(t, err)
	assert.Equal(t, []string{ctl.SnapshotPath()}, matches)
}
