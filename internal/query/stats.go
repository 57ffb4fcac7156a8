package query

import "github.com/agentic-research/medgraph/internal/facet"

// Stats summarizes a generation for dashboards and the /report endpoint.
type Stats struct {
	Records     int               `json:"records"`
	Links       int               `json:"links"`
	ByType      map[string]uint64 `json:"byType"`
	ByStatus    map[string]uint64 `json:"byStatus"`
	ByRelevance map[string]uint64 `json:"byRelevance"`
	BySystem    map[string]uint64 `json:"bySystem"`
}

func (e *Engine) Stats() Stats {
	return Stats{
		Records:     e.store.Count(),
		Links:       e.adj.EdgeCount(),
		ByType:      e.index.Counts(facet.Type),
		ByStatus:    e.index.Counts(facet.Status),
		ByRelevance: e.index.Counts(facet.ClinicalRelevance),
		BySystem:    e.index.Counts(facet.System),
	}
}
