// Package query answers read-only questions about one corpus generation.
// An Engine never mutates the store or indexes it was built over, so a single
// Engine can be shared by any number of goroutines.
package query

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/agentic-research/medgraph/api"
	"github.com/agentic-research/medgraph/internal/facet"
	"github.com/agentic-research/medgraph/internal/graph"
	"github.com/google/cel-go/cel"
)

var (
	// ErrNotFound is an expected outcome, not a failure.
	ErrNotFound     = graph.ErrNotFound
	ErrInvalidQuery = errors.New("invalid query")
)

type Engine struct {
	store *graph.Store
	adj   *graph.Adjacency
	index *facet.Index

	env *cel.Env

	docsOnce sync.Once
	docs     []map[string]any
}

// New builds an engine over a sealed store and the indexes derived from it.
func New(store *graph.Store, adj *graph.Adjacency, index *facet.Index) *Engine {
	env, err := cel.NewEnv(
		cel.Variable("record", cel.MapType(cel.StringType, cel.DynType)),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		// only fails on a malformed declaration above
		panic(fmt.Sprintf("query: cel env: %v", err))
	}
	return &Engine{store: store, adj: adj, index: index, env: env}
}

func (e *Engine) Store() *graph.Store {
	return e.store
}

func (e *Engine) Adjacency() *graph.Adjacency {
	return e.adj
}

func (e *Engine) Index() *facet.Index {
	return e.index
}

// FindByID returns ErrNotFound when no record has id.
func (e *Engine) FindByID(id string) (*api.ContentRecord, error) {
	return e.store.Get(id)
}

// FindByFacets returns the records matching every constraint of filter,
// ordered by opts (id ascending by default). An empty result is not an error.
func (e *Engine) FindByFacets(filter facet.Filter, opts Options) ([]*api.ContentRecord, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	recs := e.store.Resolve(e.index.Query(filter))
	return opts.apply(recs), nil
}

// RelatedTo walks outgoing cross-references breadth-first from id, up to
// maxDepth hops. The start record comes first, then each newly reached record
// in the order it was discovered; no record is visited twice. When rels is
// non-empty only links of those relationships are followed.
func (e *Engine) RelatedTo(id string, maxDepth int, rels ...api.Relationship) ([]*api.ContentRecord, error) {
	start, err := e.store.Get(id)
	if err != nil {
		return nil, err
	}
	maxDepth = max(maxDepth, 0)

	follow := func(r api.Relationship) bool {
		return len(rels) == 0 || slices.Contains(rels, r)
	}

	visited := map[string]bool{id: true}
	out := []*api.ContentRecord{start}
	frontier := []string{id}
	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, cur := range frontier {
			for _, edge := range e.adj.Out(cur) {
				if visited[edge.To] || !follow(edge.Relationship) {
					continue
				}
				visited[edge.To] = true
				rec, err := e.store.Get(edge.To)
				if err != nil {
					continue
				}
				out = append(out, rec)
				next = append(next, edge.To)
			}
		}
		frontier = next
	}
	return out, nil
}

// SearchKeyword matches text case-insensitively as a substring of keyword tag
// values only. Results are in id order. No match yields ErrNotFound.
func (e *Engine) SearchKeyword(text string) ([]*api.ContentRecord, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty search text", ErrInvalidQuery)
	}
	recs := e.store.Resolve(e.index.MatchKeywords(text))
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: no keyword matches %q", ErrNotFound, text)
	}
	return recs, nil
}

// SearchNames matches text against name, nameEs and alternate names.
func (e *Engine) SearchNames(text string) ([]*api.ContentRecord, error) {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return nil, fmt.Errorf("%w: empty search text", ErrInvalidQuery)
	}
	var out []*api.ContentRecord
	for rec := range e.store.All() {
		if nameMatches(rec, needle) {
			out = append(out, rec)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no name matches %q", ErrNotFound, text)
	}
	return out, nil
}

func nameMatches(rec *api.ContentRecord, needle string) bool {
	if strings.Contains(strings.ToLower(rec.Name), needle) || strings.Contains(strings.ToLower(rec.NameEs), needle) {
		return true
	}
	for _, alt := range rec.AlternateNames {
		if strings.Contains(strings.ToLower(alt), needle) {
			return true
		}
	}
	return false
}

// Backlinks returns the records whose resolved cross-references point at id,
// in id order.
func (e *Engine) Backlinks(id string) ([]*api.ContentRecord, error) {
	if !e.store.Has(id) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	seen := make(map[string]bool)
	var ids []string
	for _, edge := range e.adj.In(id) {
		if !seen[edge.From] {
			seen[edge.From] = true
			ids = append(ids, edge.From)
		}
	}
	slices.Sort(ids)
	return e.records(ids), nil
}

// Path returns the shortest chain of ids from one record to another along
// outgoing cross-references. It returns ErrNotFound when either end is
// missing or no chain exists.
func (e *Engine) Path(from, to string) ([]string, error) {
	for _, id := range []string{from, to} {
		if !e.store.Has(id) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
	}
	if from == to {
		return []string{from}, nil
	}

	prev := map[string]string{from: ""}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, edge := range e.adj.Out(cur) {
			if _, seen := prev[edge.To]; seen {
				continue
			}
			prev[edge.To] = cur
			if edge.To == to {
				return unwind(prev, from, to), nil
			}
			queue = append(queue, edge.To)
		}
	}
	return nil, fmt.Errorf("%w: no path from %s to %s", ErrNotFound, from, to)
}

func unwind(prev map[string]string, from, to string) []string {
	var path []string
	for cur := to; ; cur = prev[cur] {
		path = append(path, cur)
		if cur == from {
			break
		}
	}
	slices.Reverse(path)
	return path
}

func (e *Engine) records(ids []string) []*api.ContentRecord {
	out := make([]*api.ContentRecord, 0, len(ids))
	for _, id := range ids {
		if rec, err := e.store.Get(id); err == nil {
			out = append(out, rec)
		}
	}
	return out
}
