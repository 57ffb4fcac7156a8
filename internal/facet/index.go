// Package facet keeps inverted indexes from tag values to record ordinals.
// Buckets are roaring bitmaps over the ordinals assigned by graph.Store.Seal,
// so conjunctive filters are bitmap intersections and results come out in
// ascending id order.
package facet

import (
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring"
	"github.com/agentic-research/medgraph/api"
	"github.com/agentic-research/medgraph/internal/graph"
)

// Facet names a discrete attribute records can be filtered on.
type Facet string

const (
	System            Facet = "system"
	Topic             Facet = "topic"
	Keyword           Facet = "keyword"
	ClinicalRelevance Facet = "clinicalRelevance"
	Shelf             Facet = "shelf"
	Type              Facet = "type"
	Status            Facet = "status"
	Exam              Facet = "exam"
	Level             Facet = "level"
)

// Facets lists every facet in a stable order.
var Facets = []Facet{System, Topic, Keyword, ClinicalRelevance, Shelf, Type, Status, Exam, Level}

// ParseFacet accepts a facet name in any case.
func ParseFacet(name string) (Facet, bool) {
	for _, f := range Facets {
		if strings.EqualFold(string(f), name) {
			return f, true
		}
	}
	return "", false
}

// Normalize folds a raw tag value the same way Build does.
func Normalize(f Facet, v string) string {
	if f == ClinicalRelevance {
		return string(api.ClinicalRelevance(v).Normalize())
	}
	return strings.ToLower(strings.TrimSpace(v))
}

// Index is immutable once built.
type Index struct {
	store   *graph.Store
	buckets map[Facet]map[string]*roaring.Bitmap
}

// Build indexes every record in store from scratch. It seals the store if
// that has not happened yet.
func Build(store *graph.Store) *Index {
	store.Seal()
	idx := &Index{
		store:   store,
		buckets: make(map[Facet]map[string]*roaring.Bitmap, len(Facets)),
	}
	for _, f := range Facets {
		idx.buckets[f] = make(map[string]*roaring.Bitmap)
	}

	for rec := range store.All() {
		ord, ok := store.Ordinal(rec.ID)
		if !ok {
			continue
		}
		tags := rec.Tags
		idx.addAll(System, ord, tags.Systems)
		idx.addAll(Topic, ord, tags.Topics)
		idx.addAll(Keyword, ord, tags.Keywords)
		idx.add(ClinicalRelevance, ord, string(tags.ClinicalRelevance))
		idx.add(Type, ord, string(rec.Type))
		idx.add(Status, ord, string(rec.Status))
		if er := tags.ExamRelevance; er != nil {
			idx.addAll(Shelf, ord, er.Shelf)
			if er.USMLE {
				idx.add(Exam, ord, "usmle")
			}
			if er.NBME {
				idx.add(Exam, ord, "nbme")
			}
		}
		for level := range rec.Levels {
			idx.add(Level, ord, strconv.Itoa(level))
		}
	}

	for _, values := range idx.buckets {
		for _, bm := range values {
			bm.RunOptimize()
		}
	}
	return idx
}

func (idx *Index) addAll(f Facet, ord uint32, values []string) {
	for _, v := range values {
		idx.add(f, ord, v)
	}
}

func (idx *Index) add(f Facet, ord uint32, raw string) {
	v := Normalize(f, raw)
	if v == "" {
		return
	}
	bm, ok := idx.buckets[f][v]
	if !ok {
		bm = roaring.New()
		idx.buckets[f][v] = bm
	}
	bm.Add(ord)
}

// Bucket returns the ordinals tagged with value, or nil. The bitmap is
// shared; callers must not modify it.
func (idx *Index) Bucket(f Facet, value string) *roaring.Bitmap {
	return idx.buckets[f][Normalize(f, value)]
}

// Query intersects the buckets named by filter. An empty filter matches
// every record; an unknown value matches nothing.
func (idx *Index) Query(filter Filter) *roaring.Bitmap {
	cs := filter.constraints()
	if len(cs) == 0 {
		return idx.store.Universe()
	}
	var result *roaring.Bitmap
	for _, c := range cs {
		bm := idx.Bucket(c.facet, c.value)
		if bm == nil {
			return roaring.New()
		}
		if result == nil {
			result = bm.Clone()
			continue
		}
		result.And(bm)
		if result.IsEmpty() {
			break
		}
	}
	return result
}

// QueryIDs is Query resolved to ids, ascending.
func (idx *Index) QueryIDs(filter Filter) []string {
	return idx.store.ResolveIDs(idx.Query(filter))
}

// MatchKeywords unions every keyword bucket whose value contains substr,
// case-insensitively.
func (idx *Index) MatchKeywords(substr string) *roaring.Bitmap {
	return idx.MatchValues(Keyword, substr)
}

// MatchValues unions every bucket of f whose value contains substr.
func (idx *Index) MatchValues(f Facet, substr string) *roaring.Bitmap {
	needle := strings.ToLower(strings.TrimSpace(substr))
	var hits []*roaring.Bitmap
	for v, bm := range idx.buckets[f] {
		if strings.Contains(v, needle) {
			hits = append(hits, bm)
		}
	}
	return roaring.FastOr(hits...)
}

// Values lists the known values of f in ascending order.
func (idx *Index) Values(f Facet) []string {
	return slices.Sorted(maps.Keys(idx.buckets[f]))
}

// Counts returns the number of records in each bucket of f.
func (idx *Index) Counts(f Facet) map[string]uint64 {
	out := make(map[string]uint64, len(idx.buckets[f]))
	for v, bm := range idx.buckets[f] {
		out[v] = bm.GetCardinality()
	}
	return out
}

// Buckets returns a plain copy of every bucket as sorted id lists.
func (idx *Index) Buckets() map[Facet]map[string][]string {
	out := make(map[Facet]map[string][]string, len(idx.buckets))
	for f, values := range idx.buckets {
		m := make(map[string][]string, len(values))
		for v, bm := range values {
			m[v] = idx.store.ResolveIDs(bm)
		}
		out[f] = m
	}
	return out
}

// Bitmaps calls fn for every non-empty bucket, facets in Facets order and
// values ascending.
func (idx *Index) Bitmaps(fn func(f Facet, value string, bm *roaring.Bitmap) error) error {
	for _, f := range Facets {
		for _, v := range idx.Values(f) {
			if err := fn(f, v, idx.buckets[f][v]); err != nil {
				return err
			}
		}
	}
	return nil
}
