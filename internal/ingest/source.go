// Package ingest reads raw content records from files and writes generation
// snapshots. Everything here feeds corpus.Batch; nothing validates.
package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/agentic-research/medgraph/api"
	"github.com/agentic-research/medgraph/internal/corpus"
	"github.com/agentic-research/medgraph/internal/logging"
	"github.com/bmatcuk/doublestar/v4"
	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

// DefaultInclude matches every file kind DirSource can decode.
var DefaultInclude = []string{"**/*.json", "**/*.yaml", "**/*.yml", "**/*.db"}

type Options struct {
	// Include and Exclude are doublestar patterns over slash-separated paths
	// relative to the source root. A file is read when it matches some
	// Include pattern and no Exclude pattern.
	Include []string
	Exclude []string
	// Selector is a JSONPath applied to every JSON file. Each match must be a
	// record object or an array of them. Defaults to "$".
	Selector string
	Log      *logging.Logger
}

// DirSource loads every matching file under a directory on each Load call.
type DirSource struct {
	fs   billy.Filesystem
	opts Options
}

// NewDirSource reads from dir on the local disk.
func NewDirSource(dir string, opts Options) (*DirSource, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("corpus root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("corpus root %s is not a directory", dir)
	}
	return NewFSSource(osfs.New(dir), opts)
}

// NewFSSource reads from any billy filesystem, e.g. memfs in tests.
func NewFSSource(fs billy.Filesystem, opts Options) (*DirSource, error) {
	if len(opts.Include) == 0 {
		opts.Include = DefaultInclude
	}
	if opts.Selector == "" {
		opts.Selector = "$"
	}
	if opts.Log == nil {
		opts.Log = logging.Nop()
	}
	for _, p := range append(append([]string{}, opts.Include...), opts.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid glob pattern %q", p)
		}
	}
	if _, err := compileSelector(opts.Selector); err != nil {
		return nil, err
	}
	return &DirSource{fs: fs, opts: opts}, nil
}

// Root is the directory being read, as the filesystem reports it.
func (s *DirSource) Root() string {
	return s.fs.Root()
}

// Files lists the paths Load would read, in lexical order.
func (s *DirSource) Files() ([]string, error) {
	var files []string
	err := util.Walk(s.fs, "/", func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel := strings.TrimPrefix(filepath.ToSlash(p), "/")
		if s.Match(rel) {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", s.fs.Root(), err)
	}
	return files, nil
}

// Match reports whether a slash-separated relative path is selected.
func (s *DirSource) Match(rel string) bool {
	return matchAny(s.opts.Include, rel) && !matchAny(s.opts.Exclude, rel)
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}

// Load implements corpus.Source. Files that fail to decode are reported in
// the batch and do not fail the load; only an unreadable root does.
func (s *DirSource) Load(ctx context.Context) (*corpus.Batch, error) {
	files, err := s.Files()
	if err != nil {
		return nil, err
	}
	batch := &corpus.Batch{}
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.loadFile(batch, rel); err != nil {
			s.opts.Log.Warn("skipping unreadable corpus file", "path", rel, "error", err)
			batch.Fail(rel, err)
		}
	}
	s.opts.Log.Debug("corpus files read", "root", s.fs.Root(), "files", len(files), "records", len(batch.Records), "errors", len(batch.Errors))
	return batch, nil
}

func (s *DirSource) loadFile(batch *corpus.Batch, rel string) error {
	switch strings.ToLower(path.Ext(rel)) {
	case ".db":
		return s.loadSQLite(batch, rel)
	case ".json":
		data, err := util.ReadFile(s.fs, rel)
		if err != nil {
			return err
		}
		return decodeJSON(batch, rel, data, s.opts.Selector)
	case ".yaml", ".yml":
		data, err := util.ReadFile(s.fs, rel)
		if err != nil {
			return err
		}
		return decodeYAML(batch, rel, data)
	}
	return fmt.Errorf("unsupported file type %q", path.Ext(rel))
}

// loadSQLite needs a real file for the driver. Files that are not on the
// local disk (memfs) are copied to a temp file first.
func (s *DirSource) loadSQLite(batch *corpus.Batch, rel string) error {
	dbPath := filepath.Join(s.fs.Root(), filepath.FromSlash(rel))
	if _, err := os.Stat(dbPath); err != nil {
		tmp, err := s.copyToTemp(rel)
		if err != nil {
			return err
		}
		defer func() { _ = os.Remove(tmp) }() // best-effort cleanup
		dbPath = tmp
	}
	return StreamSQLite(dbPath, func(id string, rec *api.ContentRecord, err error) error {
		origin := rel + "#" + id
		if err != nil {
			batch.Fail(origin, err)
			return nil
		}
		batch.Add(rec, origin)
		return nil
	})
}

func (s *DirSource) copyToTemp(rel string) (string, error) {
	src, err := s.fs.Open(rel)
	if err != nil {
		return "", err
	}
	defer func() { _ = src.Close() }() // safe to ignore

	dst, err := os.CreateTemp("", "medgraph-*.db")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), dst.Close()
}
