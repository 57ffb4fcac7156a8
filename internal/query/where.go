package query

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/agentic-research/medgraph/api"
	"github.com/google/cel-go/cel"
)

// Where returns the records for which the CEL expression expr evaluates to
// true. The record is bound as the map variable `record` with the same field
// names as its JSON form, e.g.
//
//	record.type == 'condition' && 'respiratory' in record.tags.systems
//
// A record on which evaluation fails (typically a missing key) does not match.
func (e *Engine) Where(expr string) ([]*api.ContentRecord, error) {
	prg, err := e.compile(expr)
	if err != nil {
		return nil, err
	}

	docs := e.documents()
	var out []*api.ContentRecord
	i := 0
	for rec := range e.store.All() {
		doc := docs[i]
		i++
		val, _, err := prg.Eval(map[string]any{"record": doc})
		if err != nil {
			continue
		}
		match, ok := val.Value().(bool)
		if !ok {
			return nil, fmt.Errorf("%w: expression yields %T, not bool", ErrInvalidQuery, val.Value())
		}
		if match {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (e *Engine) compile(expr string) (cel.Program, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrInvalidQuery)
	}
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, issues.Err())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	return prg, nil
}

// documents converts every record to its JSON map form once, in id order.
func (e *Engine) documents() []map[string]any {
	e.docsOnce.Do(func() {
		e.docs = make([]map[string]any, 0, e.store.Count())
		for rec := range e.store.All() {
			e.docs = append(e.docs, document(rec))
		}
	})
	return e.docs
}

func document(rec *api.ContentRecord) map[string]any {
	raw, err := json.Marshal(rec)
	if err != nil {
		return map[string]any{}
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return map[string]any{}
	}
	return integers(doc).(map[string]any)
}

// integers turns whole JSON numbers back into int64 so that expressions like
// record.version >= 2 compare as integers.
func integers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, x := range t {
			t[k] = integers(x)
		}
		return t
	case []any:
		for i, x := range t {
			t[i] = integers(x)
		}
		return t
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return int64(t)
		}
	}
	return v
}
