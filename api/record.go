package api

// ContentRecord is one clinical topic taught at up to five complexity levels.
// Records arrive from the authoring layer already parsed and are treated as
// immutable snapshots once handed to the core.
type ContentRecord struct {
	// ID is the globally unique key of the record.
	ID string `json:"id" yaml:"id"`
	// Type is one of the closed RecordType set.
	Type RecordType `json:"type" yaml:"type"`
	// Name is the display name of the topic.
	Name string `json:"name" yaml:"name"`
	// NameEs is the optional Spanish display name.
	NameEs string `json:"nameEs,omitempty" yaml:"nameEs,omitempty"`
	// AlternateNames lists synonyms and abbreviations, in authoring order.
	AlternateNames []string `json:"alternateNames,omitempty" yaml:"alternateNames,omitempty"`
	// Levels maps a level number (1-5) to its content.
	Levels map[int]*LevelContent `json:"levels" yaml:"levels"`
	// Media lists diagrams and images attached to the record.
	Media []MediaRef `json:"media,omitempty" yaml:"media,omitempty"`
	// Citations lists the sources backing the record.
	Citations []Citation `json:"citations,omitempty" yaml:"citations,omitempty"`
	// CrossReferences links this record to other records by id.
	CrossReferences []CrossReferenceLink `json:"crossReferences,omitempty" yaml:"crossReferences,omitempty"`
	// Tags is the facet bag used for indexing and filtering.
	Tags Tags `json:"tags" yaml:"tags"`
	// CreatedAt and UpdatedAt are dates (2006-01-02) or RFC 3339 timestamps.
	CreatedAt string `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
	// Version is a monotonic revision counter maintained by the authoring layer.
	Version int `json:"version" yaml:"version"`
	// Status is draft or published.
	Status Status `json:"status" yaml:"status"`
	// Contributors names the authors of the record (optional).
	Contributors []string `json:"contributors,omitempty" yaml:"contributors,omitempty"`
}

// LevelContent is the teaching material for one complexity tier.
type LevelContent struct {
	Level                   int       `json:"level" yaml:"level"`
	Summary                 string    `json:"summary" yaml:"summary"`
	Explanation             string    `json:"explanation" yaml:"explanation"`
	KeyTerms                []KeyTerm `json:"keyTerms,omitempty" yaml:"keyTerms,omitempty"`
	Analogies               []string  `json:"analogies,omitempty" yaml:"analogies,omitempty"`
	Examples                []string  `json:"examples,omitempty" yaml:"examples,omitempty"`
	PatientCounselingPoints []string  `json:"patientCounselingPoints,omitempty" yaml:"patientCounselingPoints,omitempty"`
	ClinicalNotes           string    `json:"clinicalNotes,omitempty" yaml:"clinicalNotes,omitempty"`
}

// KeyTerm is a glossary entry inside a level.
type KeyTerm struct {
	Term          string   `json:"term" yaml:"term"`
	Definition    string   `json:"definition" yaml:"definition"`
	Pronunciation string   `json:"pronunciation,omitempty" yaml:"pronunciation,omitempty"`
	Etymology     string   `json:"etymology,omitempty" yaml:"etymology,omitempty"`
	RelatedTerms  []string `json:"relatedTerms,omitempty" yaml:"relatedTerms,omitempty"`
}

// MediaRef points at an asset owned by the rendering layer.
type MediaRef struct {
	ID          string `json:"id" yaml:"id"`
	Type        string `json:"type" yaml:"type"` // diagram, image, ...
	Filename    string `json:"filename" yaml:"filename"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Citation is a bibliographic source.
type Citation struct {
	ID      string   `json:"id" yaml:"id"`
	Type    string   `json:"type" yaml:"type"` // article, textbook, website
	Title   string   `json:"title" yaml:"title"`
	Authors []string `json:"authors,omitempty" yaml:"authors,omitempty"`
	Source  string   `json:"source" yaml:"source"`
	URL     string   `json:"url,omitempty" yaml:"url,omitempty"`
	Chapter string   `json:"chapter,omitempty" yaml:"chapter,omitempty"`
	Section string   `json:"section,omitempty" yaml:"section,omitempty"`
	License string   `json:"license,omitempty" yaml:"license,omitempty"`
}

// CrossReferenceLink is a directed, typed edge to another record.
// The target may not exist yet; unresolved links are reported, not rejected.
type CrossReferenceLink struct {
	TargetID     string       `json:"targetId" yaml:"targetId"`
	TargetType   RecordType   `json:"targetType,omitempty" yaml:"targetType,omitempty"`
	Relationship Relationship `json:"relationship" yaml:"relationship"`
	Label        string       `json:"label,omitempty" yaml:"label,omitempty"`
}

// Tags is the facet bag of a record. It has no identity role.
type Tags struct {
	Systems           []string          `json:"systems,omitempty" yaml:"systems,omitempty"`
	Topics            []string          `json:"topics,omitempty" yaml:"topics,omitempty"`
	Keywords          []string          `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	ClinicalRelevance ClinicalRelevance `json:"clinicalRelevance,omitempty" yaml:"clinicalRelevance,omitempty"`
	ExamRelevance     *ExamRelevance    `json:"examRelevance,omitempty" yaml:"examRelevance,omitempty"`
}

// ExamRelevance flags which board exams a record is relevant to.
type ExamRelevance struct {
	USMLE bool     `json:"usmle,omitempty" yaml:"usmle,omitempty"`
	NBME  bool     `json:"nbme,omitempty" yaml:"nbme,omitempty"`
	Shelf []string `json:"shelf,omitempty" yaml:"shelf,omitempty"`
}
