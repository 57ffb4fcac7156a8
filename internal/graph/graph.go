package graph

import (
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"
	"strings"

	"github.com/RoaringBitmap/roaring"
	"github.com/agentic-research/medgraph/api"
)

var (
	ErrNotFound    = errors.New("record not found")
	ErrDuplicateID = errors.New("duplicate record id")
	ErrSealed      = errors.New("store is sealed")
)

// DuplicateIDError lists every id registered more than once in a batch.
// It matches ErrDuplicateID under errors.Is.
type DuplicateIDError struct {
	IDs []string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("%s: %s", ErrDuplicateID, strings.Join(e.IDs, ", "))
}

func (e *DuplicateIDError) Is(target error) bool {
	return target == ErrDuplicateID
}

// Store is the arena of records for one corpus generation. Every other
// component refers to records by id (or by the ordinal assigned at Seal)
// and never holds its own copy.
//
// Register is not safe for concurrent use. Once sealed the store is
// immutable and every read method is safe from any number of goroutines.
type Store struct {
	records map[string]*api.ContentRecord

	// Set by Seal. Ordinals follow ascending id order so that iterating a
	// bitmap of ordinals yields ids in sorted order.
	sealed  bool
	ids     []string          // ordinal -> id
	ordinal map[string]uint32 // id -> ordinal
	all     *roaring.Bitmap
}

func NewStore() *Store {
	return &Store{
		records: make(map[string]*api.ContentRecord),
	}
}

// Register adds rec to the store. The store takes ownership of rec; callers
// must not modify it afterwards.
func (s *Store) Register(rec *api.ContentRecord) error {
	if s.sealed {
		return ErrSealed
	}
	if rec == nil {
		return errors.New("register: nil record")
	}
	if _, dup := s.records[rec.ID]; dup {
		return &DuplicateIDError{IDs: []string{rec.ID}}
	}
	s.records[rec.ID] = rec
	return nil
}

// Seal freezes the store and assigns ordinals. Calling it twice is a no-op.
func (s *Store) Seal() {
	if s.sealed {
		return
	}
	s.ids = slices.Sorted(maps.Keys(s.records))
	s.ordinal = make(map[string]uint32, len(s.ids))
	s.all = roaring.New()
	for i, id := range s.ids {
		s.ordinal[id] = uint32(i)
	}
	s.all.AddRange(0, uint64(len(s.ids)))
	s.sealed = true
}

func (s *Store) Sealed() bool {
	return s.sealed
}

// Get returns the record with the given id or ErrNotFound.
func (s *Store) Get(id string) (*api.ContentRecord, error) {
	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, nil
}

func (s *Store) Has(id string) bool {
	_, ok := s.records[id]
	return ok
}

func (s *Store) Count() int {
	return len(s.records)
}

// IDs returns all ids in ascending order.
func (s *Store) IDs() []string {
	if s.sealed {
		return slices.Clone(s.ids)
	}
	return slices.Sorted(maps.Keys(s.records))
}

// All yields every record in ascending id order. The sequence can be ranged
// over repeatedly and yields the same set each time.
func (s *Store) All() iter.Seq[*api.ContentRecord] {
	return func(yield func(*api.ContentRecord) bool) {
		ids := s.ids
		if !s.sealed {
			ids = slices.Sorted(maps.Keys(s.records))
		}
		for _, id := range ids {
			if !yield(s.records[id]) {
				return
			}
		}
	}
}

// Ordinal returns the bitmap position of id. Only valid after Seal.
func (s *Store) Ordinal(id string) (uint32, bool) {
	o, ok := s.ordinal[id]
	return o, ok
}

// IDAt is the inverse of Ordinal.
func (s *Store) IDAt(ord uint32) (string, bool) {
	if int(ord) >= len(s.ids) {
		return "", false
	}
	return s.ids[ord], true
}

// Universe returns a fresh bitmap holding every ordinal.
func (s *Store) Universe() *roaring.Bitmap {
	if s.all == nil {
		return roaring.New()
	}
	return s.all.Clone()
}

// Resolve materializes a bitmap of ordinals into records, in id order.
func (s *Store) Resolve(bm *roaring.Bitmap) []*api.ContentRecord {
	out := make([]*api.ContentRecord, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		if id, ok := s.IDAt(it.Next()); ok {
			out = append(out, s.records[id])
		}
	}
	return out
}

// ResolveIDs is Resolve without materializing the records.
func (s *Store) ResolveIDs(bm *roaring.Bitmap) []string {
	out := make([]string, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		if id, ok := s.IDAt(it.Next()); ok {
			out = append(out, id)
		}
	}
	return out
}
