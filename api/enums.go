package api

import "strings"

// RecordType is the closed set of record kinds.
type RecordType string

const (
	TypeCondition RecordType = "condition"
	TypeSystem    RecordType = "system"
	TypeConcept   RecordType = "concept"
	TypeStructure RecordType = "structure"
)

// RecordTypes lists every valid RecordType.
var RecordTypes = []RecordType{TypeCondition, TypeSystem, TypeConcept, TypeStructure}

func (t RecordType) Valid() bool {
	for _, v := range RecordTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Status is the publication state of a record.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

func (s Status) Valid() bool {
	return s == StatusDraft || s == StatusPublished
}

// Relationship is the semantic kind of a cross-reference.
type Relationship string

const (
	RelParent  Relationship = "parent"
	RelChild   Relationship = "child"
	RelSibling Relationship = "sibling"
	RelRelated Relationship = "related"
	// RelSeeAlso is a one-directional pointer. It is never symmetry-checked.
	RelSeeAlso Relationship = "see-also"
)

// Relationships lists every valid Relationship.
var Relationships = []Relationship{RelParent, RelChild, RelSibling, RelRelated, RelSeeAlso}

func (r Relationship) Valid() bool {
	for _, v := range Relationships {
		if r == v {
			return true
		}
	}
	return false
}

// Symmetric reports whether the relationship is expected to be declared on both ends.
func (r Relationship) Symmetric() bool {
	return r == RelSibling || r == RelRelated
}

// Hierarchical reports whether the relationship participates in the parent/child DAG.
func (r Relationship) Hierarchical() bool {
	return r == RelParent || r == RelChild
}

// ClinicalRelevance grades how clinically important a topic is.
type ClinicalRelevance string

const (
	RelevanceLow      ClinicalRelevance = "low"
	RelevanceModerate ClinicalRelevance = "moderate"
	RelevanceHigh     ClinicalRelevance = "high"
	RelevanceCritical ClinicalRelevance = "critical"
)

// Normalize folds case and maps the legacy "medium" grade onto moderate.
// Unknown values are returned folded but otherwise untouched.
func (c ClinicalRelevance) Normalize() ClinicalRelevance {
	v := ClinicalRelevance(strings.ToLower(strings.TrimSpace(string(c))))
	if v == "medium" {
		return RelevanceModerate
	}
	return v
}

func (c ClinicalRelevance) Valid() bool {
	switch c.Normalize() {
	case RelevanceLow, RelevanceModerate, RelevanceHigh, RelevanceCritical:
		return true
	}
	return false
}

// Rank orders relevance grades from low (1) to critical (4). Unknown grades rank 0.
func (c ClinicalRelevance) Rank() int {
	switch c.Normalize() {
	case RelevanceLow:
		return 1
	case RelevanceModerate:
		return 2
	case RelevanceHigh:
		return 3
	case RelevanceCritical:
		return 4
	}
	return 0
}

// MinLevel and MaxLevel bound the complexity tiers.
const (
	MinLevel = 1
	MaxLevel = 5
)
