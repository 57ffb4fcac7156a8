package facet

import (
	"fmt"
	"slices"
	"strings"
)

// Filter is a conjunction of facet constraints: every listed value of every
// listed facet must be present on a record for it to match. The schema tags
// let HTTP handlers decode a Filter straight from a query string.
type Filter struct {
	System            []string `schema:"system" json:"system,omitempty"`
	Topic             []string `schema:"topic" json:"topic,omitempty"`
	Keyword           []string `schema:"keyword" json:"keyword,omitempty"`
	ClinicalRelevance []string `schema:"clinicalRelevance" json:"clinicalRelevance,omitempty"`
	Shelf             []string `schema:"shelf" json:"shelf,omitempty"`
	Type              []string `schema:"type" json:"type,omitempty"`
	Status            []string `schema:"status" json:"status,omitempty"`
	Exam              []string `schema:"exam" json:"exam,omitempty"`
	Level             []string `schema:"level" json:"level,omitempty"`
}

func (f *Filter) slot(facet Facet) *[]string {
	switch facet {
	case System:
		return &f.System
	case Topic:
		return &f.Topic
	case Keyword:
		return &f.Keyword
	case ClinicalRelevance:
		return &f.ClinicalRelevance
	case Shelf:
		return &f.Shelf
	case Type:
		return &f.Type
	case Status:
		return &f.Status
	case Exam:
		return &f.Exam
	case Level:
		return &f.Level
	}
	return nil
}

type constraint struct {
	facet Facet
	value string
}

func (f Filter) constraints() []constraint {
	var out []constraint
	for _, facet := range Facets {
		for _, v := range *f.slot(facet) {
			if strings.TrimSpace(v) == "" {
				continue
			}
			out = append(out, constraint{facet, v})
		}
	}
	return out
}

// IsEmpty reports whether the filter constrains nothing.
func (f Filter) IsEmpty() bool {
	return len(f.constraints()) == 0
}

// With returns a copy of f that also requires value on facet.
func (f Filter) With(facet Facet, value string) Filter {
	if s := f.slot(facet); s != nil {
		*s = append(slices.Clone(*s), value)
	}
	return f
}

// ParseFilter builds a filter from "facet=value" pairs, as typed on the
// command line.
func ParseFilter(pairs []string) (Filter, error) {
	var f Filter
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok {
			return Filter{}, fmt.Errorf("facet constraint %q: want facet=value", p)
		}
		facet, ok := ParseFacet(strings.TrimSpace(name))
		if !ok {
			return Filter{}, fmt.Errorf("unknown facet %q", name)
		}
		f = f.With(facet, value)
	}
	return f, nil
}

func (f Filter) String() string {
	cs := f.constraints()
	parts := make([]string, 0, len(cs))
	for _, c := range cs {
		parts = append(parts, string(c.facet)+"="+c.value)
	}
	return strings.Join(parts, " AND ")
}
