// Package corpustest builds valid content records for tests.
package corpustest

import (
	"fmt"

	"github.com/agentic-research/medgraph/api"
)

// Option mutates a record under construction.
type Option func(*api.ContentRecord)

// Record returns a record that passes schema validation with no issues.
func Record(id string, opts ...Option) *api.ContentRecord {
	rec := &api.ContentRecord{
		ID:     id,
		Type:   api.TypeConcept,
		Name:   "Topic " + id,
		NameEs: "Tema " + id,
		Levels: map[int]*api.LevelContent{
			1: Level(1),
			2: Level(2),
		},
		Media: []api.MediaRef{
			{ID: "fig-1", Type: "diagram", Filename: id + ".svg", Title: "Overview"},
		},
		Citations: []api.Citation{
			{ID: "ref-1", Type: "textbook", Title: "Clinical Reference", Source: "Elsevier"},
		},
		Tags: api.Tags{
			Systems:           []string{"general"},
			Topics:            []string{"basics"},
			Keywords:          []string{id},
			ClinicalRelevance: api.RelevanceModerate,
		},
		CreatedAt: "2026-02-05",
		UpdatedAt: "2026-02-05",
		Version:   1,
		Status:    api.StatusPublished,
	}
	for _, opt := range opts {
		opt(rec)
	}
	return rec
}

// Level returns complete content for level n.
func Level(n int) *api.LevelContent {
	return &api.LevelContent{
		Level:       n,
		Summary:     fmt.Sprintf("Level %d summary.", n),
		Explanation: fmt.Sprintf("Level %d explanation.", n),
		KeyTerms: []api.KeyTerm{
			{Term: "alveolus", Definition: "Tiny air sac in the lung."},
		},
	}
}

// Links appends cross-references with the given relationship to each target.
func Links(rel api.Relationship, targets ...string) Option {
	return func(r *api.ContentRecord) {
		for _, t := range targets {
			r.CrossReferences = append(r.CrossReferences, api.CrossReferenceLink{
				TargetID:     t,
				TargetType:   api.TypeConcept,
				Relationship: rel,
				Label:        r.ID + " -> " + t,
			})
		}
	}
}

// Systems replaces the systems facet.
func Systems(v ...string) Option {
	return func(r *api.ContentRecord) { r.Tags.Systems = v }
}

// Topics replaces the topics facet.
func Topics(v ...string) Option {
	return func(r *api.ContentRecord) { r.Tags.Topics = v }
}

// Keywords replaces the keywords facet.
func Keywords(v ...string) Option {
	return func(r *api.ContentRecord) { r.Tags.Keywords = v }
}

// Relevance sets the clinical relevance grade.
func Relevance(c api.ClinicalRelevance) Option {
	return func(r *api.ContentRecord) { r.Tags.ClinicalRelevance = c }
}

// Exam sets exam relevance.
func Exam(usmle, nbme bool, shelf ...string) Option {
	return func(r *api.ContentRecord) {
		r.Tags.ExamRelevance = &api.ExamRelevance{USMLE: usmle, NBME: nbme, Shelf: shelf}
	}
}

// Named sets the display names.
func Named(name string, alternates ...string) Option {
	return func(r *api.ContentRecord) {
		r.Name = name
		r.AlternateNames = alternates
	}
}

// Typed sets the record type.
func Typed(t api.RecordType) Option {
	return func(r *api.ContentRecord) { r.Type = t }
}

// Versioned sets version and updatedAt.
func Versioned(v int, updatedAt string) Option {
	return func(r *api.ContentRecord) {
		r.Version = v
		r.UpdatedAt = updatedAt
	}
}
