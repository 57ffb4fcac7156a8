// Package corpus turns a batch of raw records into an immutable, queryable
// generation and publishes it for readers.
package corpus

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/agentic-research/medgraph/api"
	"github.com/agentic-research/medgraph/internal/facet"
	"github.com/agentic-research/medgraph/internal/graph"
	"github.com/agentic-research/medgraph/internal/linter"
	"github.com/agentic-research/medgraph/internal/query"
	"github.com/google/uuid"
)

// ErrNoGeneration is returned by readers before the first successful load.
var ErrNoGeneration = errors.New("no corpus generation loaded")

// CodeDuplicateQuarantined flags an id shared with a quarantined record.
// The build still succeeds, since only valid records are registered.
const CodeDuplicateQuarantined = "duplicate_id_quarantined"

// Batch is one complete set of raw records from a Source.
type Batch struct {
	Records []*api.ContentRecord
	// Origins[i] names where Records[i] came from. It may be shorter than
	// Records.
	Origins []string
	// Errors lists inputs that could not be decoded at all.
	Errors []SourceError
}

// SourceError is an input that produced no records.
type SourceError struct {
	Origin string `json:"origin"`
	Err    string `json:"error"`
}

// NewBatch wraps records that were not read from anywhere in particular.
func NewBatch(recs ...*api.ContentRecord) *Batch {
	return &Batch{Records: recs}
}

// Add appends a record with its origin.
func (b *Batch) Add(rec *api.ContentRecord, origin string) {
	for len(b.Origins) < len(b.Records) {
		b.Origins = append(b.Origins, "")
	}
	b.Records = append(b.Records, rec)
	b.Origins = append(b.Origins, origin)
}

// Fail records an input that could not be decoded.
func (b *Batch) Fail(origin string, err error) {
	b.Errors = append(b.Errors, SourceError{Origin: origin, Err: err.Error()})
}

func (b *Batch) origin(i int) string {
	if i < len(b.Origins) {
		return b.Origins[i]
	}
	return ""
}

// Quarantined is a record excluded from the store for schema errors.
type Quarantined struct {
	RecordID string         `json:"recordId"`
	Origin   string         `json:"origin,omitempty"`
	Issues   []linter.Issue `json:"issues"`
}

// LoadReport summarizes schema validation of one batch.
type LoadReport struct {
	Total        int            `json:"total"`
	Accepted     int            `json:"accepted"`
	Quarantined  []Quarantined  `json:"quarantined"`
	Warnings     []linter.Issue `json:"warnings"`
	SourceErrors []SourceError  `json:"sourceErrors"`
}

// Generation is one fully validated, stored, resolved and indexed corpus.
// Nothing in it changes after Build returns.
type Generation struct {
	ID       string    `json:"id"`
	Seq      uint64    `json:"seq"`
	LoadedAt time.Time `json:"loadedAt"`

	Store      *graph.Store     `json:"-"`
	Adjacency  *graph.Adjacency `json:"-"`
	Index      *facet.Index     `json:"-"`
	Query      *query.Engine    `json:"-"`
	Resolution *graph.Report    `json:"resolution"`
	Validation *LoadReport      `json:"validation"`
}

// Build runs Validate, Store, Resolve and Index over batch. Records with
// schema errors are quarantined and the batch carries on. Duplicate ids
// among the accepted records abort the build with one *graph.DuplicateIDError
// listing every offending id.
func Build(batch *Batch) (*Generation, error) {
	if batch == nil {
		batch = &Batch{}
	}
	rep := &LoadReport{
		Total:        len(batch.Records),
		Quarantined:  []Quarantined{},
		Warnings:     []linter.Issue{},
		SourceErrors: slices.Clone(batch.Errors),
	}
	if rep.SourceErrors == nil {
		rep.SourceErrors = []SourceError{}
	}

	store := graph.NewStore()
	var dups []string
	for i, rec := range batch.Records {
		res := linter.Validate(rec)
		if !res.Valid {
			q := Quarantined{Origin: batch.origin(i), Issues: res.Issues}
			if rec != nil {
				q.RecordID = rec.ID
			}
			rep.Quarantined = append(rep.Quarantined, q)
			continue
		}
		if err := store.Register(rec); err != nil {
			if !errors.Is(err, graph.ErrDuplicateID) {
				return nil, fmt.Errorf("register %s: %w", rec.ID, err)
			}
			if !slices.Contains(dups, rec.ID) {
				dups = append(dups, rec.ID)
			}
			continue
		}
		rep.Accepted++
		rep.Warnings = append(rep.Warnings, res.Warnings()...)
	}
	if len(dups) > 0 {
		slices.Sort(dups)
		return nil, &graph.DuplicateIDError{IDs: dups}
	}
	rep.Warnings = append(rep.Warnings, quarantinedDuplicates(batch.Records, rep.Quarantined)...)

	store.Seal()
	adj, resolution := graph.Resolve(store)
	index := facet.Build(store)

	return &Generation{
		ID:         uuid.NewString(),
		LoadedAt:   time.Now().UTC(),
		Store:      store,
		Adjacency:  adj,
		Index:      index,
		Query:      query.New(store, adj, index),
		Resolution: resolution,
		Validation: rep,
	}, nil
}

// quarantinedDuplicates warns once per id that appears more than once in the
// batch when at least one of the copies was quarantined.
func quarantinedDuplicates(recs []*api.ContentRecord, quarantined []Quarantined) []linter.Issue {
	seen := make(map[string]int, len(recs))
	for _, rec := range recs {
		if rec != nil && rec.ID != "" {
			seen[rec.ID]++
		}
	}
	var out []linter.Issue
	warned := map[string]bool{}
	for _, q := range quarantined {
		if q.RecordID == "" || seen[q.RecordID] < 2 || warned[q.RecordID] {
			continue
		}
		warned[q.RecordID] = true
		out = append(out, linter.Issue{
			RecordID: q.RecordID,
			Field:    "id",
			Code:     CodeDuplicateQuarantined,
			Severity: linter.SeverityWarning,
			Message:  fmt.Sprintf("id %q is used by %d records, %s", q.RecordID, seen[q.RecordID], quarantinedNote(q.Origin)),
		})
	}
	return out
}

func quarantinedNote(origin string) string {
	if origin == "" {
		return "at least one was quarantined"
	}
	return "including quarantined " + origin
}
