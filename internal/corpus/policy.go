package corpus

import (
	"fmt"
	"strings"

	"github.com/agentic-research/medgraph/internal/config"
)

// Severity orders findings: info < warning < error.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func ParseSeverity(v string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "info":
		return SeverityInfo, nil
	case "warning", "warn":
		return SeverityWarning, nil
	case "error":
		return SeverityError, nil
	}
	return 0, fmt.Errorf("unknown severity %q", v)
}

// Kind classifies where a finding came from.
type Kind string

const (
	KindParse         Kind = "parse_error"
	KindSchemaError   Kind = "schema_error"
	KindSchemaWarning Kind = "schema_warning"
	KindDangling      Kind = "dangling_reference"
	KindCycle         Kind = "hierarchy_cycle"
	KindAsymmetry     Kind = "asymmetric_link"
	KindOrphan        Kind = "orphan"
)

// Policy decides how loud each kind of finding is and how loud a finding
// must be to fail a validation run.
type Policy struct {
	Levels map[Kind]Severity
	FailOn Severity
}

func DefaultPolicy() Policy {
	return Policy{
		Levels: map[Kind]Severity{
			KindParse:         SeverityError,
			KindSchemaError:   SeverityError,
			KindSchemaWarning: SeverityWarning,
			KindDangling:      SeverityError,
			KindCycle:         SeverityError,
			KindAsymmetry:     SeverityWarning,
			KindOrphan:        SeverityInfo,
		},
		FailOn: SeverityError,
	}
}

// PolicyFromConfig applies a validate block on top of DefaultPolicy.
// Parse and schema kinds are fixed; only resolver kinds are tunable.
func PolicyFromConfig(v *config.Validate) (Policy, error) {
	p := DefaultPolicy()
	if v == nil {
		return p, nil
	}
	tunable := []struct {
		kind Kind
		raw  string
	}{
		{KindDangling, v.Dangling},
		{KindCycle, v.Cycle},
		{KindAsymmetry, v.Asymmetry},
		{KindOrphan, v.Orphan},
	}
	for _, t := range tunable {
		if t.raw == "" {
			continue
		}
		sev, err := ParseSeverity(t.raw)
		if err != nil {
			return Policy{}, fmt.Errorf("%s: %w", t.kind, err)
		}
		p.Levels[t.kind] = sev
	}
	if v.FailOn != "" {
		sev, err := ParseSeverity(v.FailOn)
		if err != nil {
			return Policy{}, fmt.Errorf("fail_on: %w", err)
		}
		p.FailOn = sev
	}
	if v.Strict {
		p = p.Strict()
	}
	return p, nil
}

// Strict returns a copy that also fails on warnings.
func (p Policy) Strict() Policy {
	p.FailOn = min(p.FailOn, SeverityWarning)
	return p
}

func (p Policy) Severity(k Kind) Severity {
	if s, ok := p.Levels[k]; ok {
		return s
	}
	return SeverityError
}

// Fails reports whether any finding is at or above the fail threshold.
func (p Policy) Fails(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity >= p.FailOn {
			return true
		}
	}
	return false
}
