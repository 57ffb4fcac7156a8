package query

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/agentic-research/medgraph/api"
	"github.com/agentic-research/medgraph/internal/linter"
)

type SortField string

const (
	SortID        SortField = "id"
	SortName      SortField = "name"
	SortUpdatedAt SortField = "updatedAt"
	SortVersion   SortField = "version"
	SortRelevance SortField = "relevance"
)

// Options orders and pages a result set. The zero value sorts by id
// ascending with no paging. Ties always fall back to id ascending.
type Options struct {
	Sort   SortField `schema:"sort" json:"sort,omitempty"`
	Desc   bool      `schema:"desc" json:"desc,omitempty"`
	Offset int       `schema:"offset" json:"offset,omitempty"`
	Limit  int       `schema:"limit" json:"limit,omitempty"`
}

func (o Options) validate() error {
	switch o.Sort {
	case "", SortID, SortName, SortUpdatedAt, SortVersion, SortRelevance:
	default:
		return fmt.Errorf("%w: unknown sort field %q", ErrInvalidQuery, o.Sort)
	}
	if o.Offset < 0 || o.Limit < 0 {
		return fmt.Errorf("%w: offset and limit must not be negative", ErrInvalidQuery)
	}
	return nil
}

// apply expects recs in id order, which is what the store yields.
func (o Options) apply(recs []*api.ContentRecord) []*api.ContentRecord {
	if o.Sort != "" && o.Sort != SortID || o.Desc {
		less := o.compare()
		slices.SortStableFunc(recs, func(a, b *api.ContentRecord) int {
			c := less(a, b)
			if o.Desc {
				c = -c
			}
			if c != 0 {
				return c
			}
			return cmp.Compare(a.ID, b.ID)
		})
	}

	if o.Offset >= len(recs) {
		return []*api.ContentRecord{}
	}
	recs = recs[o.Offset:]
	if o.Limit > 0 && o.Limit < len(recs) {
		recs = recs[:o.Limit]
	}
	return recs
}

func (o Options) compare() func(a, b *api.ContentRecord) int {
	switch o.Sort {
	case SortName:
		return func(a, b *api.ContentRecord) int { return cmp.Compare(a.Name, b.Name) }
	case SortUpdatedAt:
		return func(a, b *api.ContentRecord) int {
			ta, _ := linter.ParseTimestamp(a.UpdatedAt)
			tb, _ := linter.ParseTimestamp(b.UpdatedAt)
			return ta.Compare(tb)
		}
	case SortVersion:
		return func(a, b *api.ContentRecord) int { return cmp.Compare(a.Version, b.Version) }
	case SortRelevance:
		return func(a, b *api.ContentRecord) int {
			return cmp.Compare(a.Tags.ClinicalRelevance.Rank(), b.Tags.ClinicalRelevance.Rank())
		}
	}
	return func(a, b *api.ContentRecord) int { return cmp.Compare(a.ID, b.ID) }
}
