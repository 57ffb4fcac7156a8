// Package linter checks single content records against the record schema.
// It is pure: no I/O, no shared state, and it never fails. Every problem is
// reported as an Issue.
package linter

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/agentic-research/medgraph/api"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue codes. They are stable and meant to be grepped.
const (
	CodeIDMissing         = "id_missing"
	CodeIDFormat          = "id_format"
	CodeTypeInvalid       = "type_invalid"
	CodeNameMissing       = "name_missing"
	CodeLevelsEmpty       = "levels_empty"
	CodeLevelKeyRange     = "level_key_range"
	CodeLevelNil          = "level_nil"
	CodeLevelMismatch     = "level_mismatch"
	CodeSummaryEmpty      = "summary_empty"
	CodeExplanationEmpty  = "explanation_empty"
	CodeKeyTermEmpty      = "key_term_empty"
	CodeKeyTermDefEmpty   = "key_term_definition_empty"
	CodeMediaIDMissing    = "media_id_missing"
	CodeMediaDuplicate    = "media_duplicate_id"
	CodeCitationIDMissing = "citation_id_missing"
	CodeCitationDuplicate = "citation_duplicate_id"
	CodeRelevanceInvalid  = "clinical_relevance_invalid"
	CodeStatusInvalid     = "status_invalid"
	CodeXrefTargetMissing = "xref_target_missing"
	CodeXrefRelationship  = "xref_relationship_invalid"
	CodeXrefSelf          = "xref_self"
	CodeTimestampInvalid  = "timestamp_invalid"
	CodeTimestampOrder    = "timestamp_order"
	CodeVersionInvalid    = "version_invalid"
	CodeShelfEmpty        = "exam_shelf_empty"
	CodePlaceholder       = "placeholder_text"
	CodeICD11Format       = "icd11_format"
)

// Issue is a single schema problem found in a record.
type Issue struct {
	RecordID string   `json:"recordId"`
	Field    string   `json:"field"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s %s: %s (%s)", i.RecordID, i.Field, i.Message, i.Code)
}

// Result is the outcome of validating one record.
// Valid is false iff at least one error-severity issue was found.
type Result struct {
	Valid  bool    `json:"valid"`
	Issues []Issue `json:"issues"`
}

// Errors returns only the error-severity issues.
func (r Result) Errors() []Issue {
	return r.filter(SeverityError)
}

// Warnings returns only the warning-severity issues.
func (r Result) Warnings() []Issue {
	return r.filter(SeverityWarning)
}

func (r Result) filter(sev Severity) []Issue {
	var out []Issue
	for _, is := range r.Issues {
		if is.Severity == sev {
			out = append(out, is)
		}
	}
	return out
}

var (
	idPattern          = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9-]*$`)
	icd11Pattern       = regexp.MustCompile(`^[A-Z]\d{1,2}\.?\d{0,3}$`)
	placeholderPattern = regexp.MustCompile(`(?i)\b(TODO|FIXME|placeholder)\b`)
)

var timestampLayouts = []string{"2006-01-02", time.RFC3339, time.RFC3339Nano}

// checker accumulates issues for one record.
type checker struct {
	id     string
	issues []Issue
}

func (c *checker) add(sev Severity, field, code, format string, args ...any) {
	c.issues = append(c.issues, Issue{
		RecordID: c.id,
		Field:    field,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Severity: sev,
	})
}

func (c *checker) errorf(field, code, format string, args ...any) {
	c.add(SeverityError, field, code, format, args...)
}

func (c *checker) warnf(field, code, format string, args ...any) {
	c.add(SeverityWarning, field, code, format, args...)
}

// Validate checks rec against the record schema. A nil record yields a single
// id_missing error.
func Validate(rec *api.ContentRecord) Result {
	if rec == nil {
		c := &checker{}
		c.errorf("id", CodeIDMissing, "record is nil")
		return c.result()
	}

	c := &checker{id: rec.ID}
	c.identity(rec)
	c.levels(rec)
	c.media(rec.Media)
	c.citations(rec.Citations)
	c.crossReferences(rec)
	c.tags(rec.Tags)
	c.metadata(rec)
	return c.result()
}

func (c *checker) result() Result {
	valid := true
	for _, is := range c.issues {
		if is.Severity == SeverityError {
			valid = false
			break
		}
	}
	return Result{Valid: valid, Issues: c.issues}
}

func (c *checker) identity(rec *api.ContentRecord) {
	switch {
	case strings.TrimSpace(rec.ID) == "":
		c.errorf("id", CodeIDMissing, "id is empty")
	case !idPattern.MatchString(rec.ID):
		c.errorf("id", CodeIDFormat, "id %q must be alphanumeric with hyphens", rec.ID)
	}

	if !rec.Type.Valid() {
		c.errorf("type", CodeTypeInvalid, "type %q is not one of %v", rec.Type, api.RecordTypes)
	}

	if strings.TrimSpace(rec.Name) == "" {
		c.errorf("name", CodeNameMissing, "name is empty")
	} else {
		c.placeholder("name", rec.Name)
	}
}

func (c *checker) levels(rec *api.ContentRecord) {
	if len(rec.Levels) == 0 {
		c.errorf("levels", CodeLevelsEmpty, "record must teach at least one level")
		return
	}

	for _, key := range sortedLevelKeys(rec.Levels) {
		field := fmt.Sprintf("levels.%d", key)
		if key < api.MinLevel || key > api.MaxLevel {
			c.errorf(field, CodeLevelKeyRange, "level key %d outside %d-%d", key, api.MinLevel, api.MaxLevel)
			continue
		}
		lc := rec.Levels[key]
		if lc == nil {
			c.errorf(field, CodeLevelNil, "level %d has no content", key)
			continue
		}
		if lc.Level != key {
			c.errorf(field+".level", CodeLevelMismatch, "level field %d does not match key %d", lc.Level, key)
		}
		if strings.TrimSpace(lc.Summary) == "" {
			c.errorf(field+".summary", CodeSummaryEmpty, "summary is empty")
		} else {
			c.placeholder(field+".summary", lc.Summary)
		}
		if strings.TrimSpace(lc.Explanation) == "" {
			c.errorf(field+".explanation", CodeExplanationEmpty, "explanation is empty")
		} else {
			c.placeholder(field+".explanation", lc.Explanation)
		}
		if lc.ClinicalNotes != "" {
			c.placeholder(field+".clinicalNotes", lc.ClinicalNotes)
		}
		for i, kt := range lc.KeyTerms {
			ktField := fmt.Sprintf("%s.keyTerms.%d", field, i)
			if strings.TrimSpace(kt.Term) == "" {
				c.errorf(ktField+".term", CodeKeyTermEmpty, "key term %d has an empty term", i+1)
			} else {
				c.placeholder(ktField+".term", kt.Term)
			}
			if strings.TrimSpace(kt.Definition) == "" {
				c.errorf(ktField+".definition", CodeKeyTermDefEmpty, "key term %q has an empty definition", kt.Term)
			} else {
				c.placeholder(ktField+".definition", kt.Definition)
			}
		}
	}
}

func (c *checker) media(media []api.MediaRef) {
	seen := make(map[string]int, len(media))
	for i, m := range media {
		field := fmt.Sprintf("media.%d.id", i)
		if strings.TrimSpace(m.ID) == "" {
			c.errorf(field, CodeMediaIDMissing, "media %d has an empty id", i+1)
			continue
		}
		if first, dup := seen[m.ID]; dup {
			c.errorf(field, CodeMediaDuplicate, "media id %q already used by entry %d", m.ID, first+1)
			continue
		}
		seen[m.ID] = i
	}
}

func (c *checker) citations(cites []api.Citation) {
	seen := make(map[string]int, len(cites))
	for i, ct := range cites {
		field := fmt.Sprintf("citations.%d.id", i)
		if strings.TrimSpace(ct.ID) == "" {
			c.errorf(field, CodeCitationIDMissing, "citation %d has an empty id", i+1)
			continue
		}
		if first, dup := seen[ct.ID]; dup {
			c.errorf(field, CodeCitationDuplicate, "citation id %q already used by entry %d", ct.ID, first+1)
			continue
		}
		seen[ct.ID] = i
	}
}

func (c *checker) crossReferences(rec *api.ContentRecord) {
	for i, x := range rec.CrossReferences {
		field := fmt.Sprintf("crossReferences.%d", i)
		if strings.TrimSpace(x.TargetID) == "" {
			c.errorf(field+".targetId", CodeXrefTargetMissing, "cross-reference %d has no targetId", i+1)
		} else if x.TargetID == rec.ID {
			c.warnf(field+".targetId", CodeXrefSelf, "cross-reference %d points at its own record", i+1)
		}
		if !x.Relationship.Valid() {
			c.errorf(field+".relationship", CodeXrefRelationship, "relationship %q is not one of %v", x.Relationship, api.Relationships)
		}
	}
}

func (c *checker) tags(tags api.Tags) {
	if tags.ClinicalRelevance != "" && !tags.ClinicalRelevance.Valid() {
		c.errorf("tags.clinicalRelevance", CodeRelevanceInvalid, "clinicalRelevance %q is not one of low, moderate, high, critical", tags.ClinicalRelevance)
	}
	if tags.ExamRelevance != nil {
		for i, shelf := range tags.ExamRelevance.Shelf {
			if strings.TrimSpace(shelf) == "" {
				c.errorf(fmt.Sprintf("tags.examRelevance.shelf.%d", i), CodeShelfEmpty, "shelf exam entry %d is empty", i+1)
			}
		}
	}
	for i, sys := range tags.Systems {
		code, ok := strings.CutPrefix(sys, "ICD-11:")
		if !ok {
			continue
		}
		code = strings.TrimSpace(code)
		if !icd11Pattern.MatchString(code) {
			c.warnf(fmt.Sprintf("tags.systems.%d", i), CodeICD11Format, "ICD-11 code %q looks malformed", code)
		}
	}
}

func (c *checker) metadata(rec *api.ContentRecord) {
	if !rec.Status.Valid() {
		c.errorf("status", CodeStatusInvalid, "status %q is not one of draft, published", rec.Status)
	}
	if rec.Version < 1 {
		c.warnf("version", CodeVersionInvalid, "version %d should be a positive number", rec.Version)
	}

	created, okCreated := c.timestamp("createdAt", rec.CreatedAt)
	updated, okUpdated := c.timestamp("updatedAt", rec.UpdatedAt)
	if okCreated && okUpdated && updated.Before(created) {
		c.warnf("updatedAt", CodeTimestampOrder, "updatedAt %s is before createdAt %s", rec.UpdatedAt, rec.CreatedAt)
	}
}

// timestamp parses an optional timestamp. Empty values are skipped silently.
func (c *checker) timestamp(field, v string) (time.Time, bool) {
	if v == "" {
		return time.Time{}, false
	}
	t, ok := ParseTimestamp(v)
	if !ok {
		c.errorf(field, CodeTimestampInvalid, "%s %q is not a date or RFC 3339 timestamp", field, v)
	}
	return t, ok
}

func (c *checker) placeholder(field, text string) {
	if m := placeholderPattern.FindString(text); m != "" {
		c.warnf(field, CodePlaceholder, "contains placeholder marker %q", m)
	}
}

// ParseTimestamp accepts a plain date or an RFC 3339 timestamp.
func ParseTimestamp(v string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func sortedLevelKeys(levels map[int]*api.LevelContent) []int {
	return slices.Sorted(maps.Keys(levels))
}
