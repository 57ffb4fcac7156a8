package corpus

import (
	"fmt"
	"strings"

	"github.com/agentic-research/medgraph/internal/linter"
)

// Finding is one line of a validation report.
type Finding struct {
	Severity Severity `json:"severity"`
	Kind     Kind     `json:"kind"`
	RecordID string   `json:"recordId"`
	Field    string   `json:"field"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
}

// String renders the greppable tab-separated form:
// SEVERITY, recordId, field, code, message.
func (f Finding) String() string {
	return strings.Join([]string{
		strings.ToUpper(f.Severity.String()),
		f.RecordID,
		f.Field,
		f.Code,
		f.Message,
	}, "\t")
}

// Findings flattens the load and resolution reports of gen into findings
// graded by p. Order: source errors, schema issues in batch order, then
// resolver findings.
func Findings(gen *Generation, p Policy) []Finding {
	var out []Finding
	rep := gen.Validation

	for _, se := range rep.SourceErrors {
		out = append(out, Finding{
			Severity: p.Severity(KindParse),
			Kind:     KindParse,
			Field:    se.Origin,
			Code:     "parse_error",
			Message:  se.Err,
		})
	}

	for _, q := range rep.Quarantined {
		for _, is := range q.Issues {
			out = append(out, schemaFinding(p, is))
		}
	}
	for _, is := range rep.Warnings {
		out = append(out, schemaFinding(p, is))
	}

	res := gen.Resolution
	for _, d := range res.Dangling {
		out = append(out, Finding{
			Severity: p.Severity(KindDangling),
			Kind:     KindDangling,
			RecordID: d.SourceID,
			Field:    "crossReferences",
			Code:     "dangling_reference",
			Message:  fmt.Sprintf("%s link to %q does not resolve", d.Relationship, d.TargetID),
		})
	}
	for _, c := range res.Cycles {
		out = append(out, Finding{
			Severity: p.Severity(KindCycle),
			Kind:     KindCycle,
			RecordID: c.Path[0],
			Field:    "crossReferences",
			Code:     "hierarchy_cycle",
			Message:  "parent/child cycle " + c.String(),
		})
	}
	for _, a := range res.Asymmetries {
		out = append(out, Finding{
			Severity: p.Severity(KindAsymmetry),
			Kind:     KindAsymmetry,
			RecordID: a.SourceID,
			Field:    "crossReferences",
			Code:     "asymmetric_link",
			Message:  fmt.Sprintf("%s link to %q has no %s link back", a.Relationship, a.TargetID, a.Relationship),
		})
	}
	for _, id := range res.Orphans {
		out = append(out, Finding{
			Severity: p.Severity(KindOrphan),
			Kind:     KindOrphan,
			RecordID: id,
			Field:    "crossReferences",
			Code:     "orphan",
			Message:  "record has no resolved links in or out",
		})
	}
	return out
}

func schemaFinding(p Policy, is linter.Issue) Finding {
	kind := KindSchemaError
	if is.Severity == linter.SeverityWarning {
		kind = KindSchemaWarning
	}
	return Finding{
		Severity: p.Severity(kind),
		Kind:     kind,
		RecordID: is.RecordID,
		Field:    is.Field,
		Code:     is.Code,
		Message:  is.Message,
	}
}

// Count tallies findings by severity.
func Count(findings []Finding) map[Severity]int {
	out := make(map[Severity]int, 3)
	for _, f := range findings {
		out[f.Severity]++
	}
	return out
}
