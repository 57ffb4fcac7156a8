package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/agentic-research/medgraph/api"
	"github.com/agentic-research/medgraph/internal/corpus"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"gopkg.in/yaml.v3"
)

func compileSelector(selector string) (jp.Expr, error) {
	x, err := jp.ParseString(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid jsonpath '%s': %w", selector, err)
	}
	return x, nil
}

// decodeJSON parses a JSON file, applies selector and decodes every match
// into a record. A match that is an array contributes each of its elements.
func decodeJSON(batch *corpus.Batch, origin string, data []byte, selector string) error {
	root, err := oj.Parse(data)
	if err != nil {
		return fmt.Errorf("parse json: %w", err)
	}
	x, err := compileSelector(selector)
	if err != nil {
		return err
	}

	var items []any
	for _, m := range x.Get(root) {
		if list, ok := m.([]any); ok {
			items = append(items, list...)
			continue
		}
		items = append(items, m)
	}
	if len(items) == 0 {
		return fmt.Errorf("selector %s matched nothing", selector)
	}

	for i, item := range items {
		itemOrigin := origin
		if len(items) > 1 {
			itemOrigin = fmt.Sprintf("%s#%d", origin, i)
		}
		rec, err := recordFromValue(item)
		if err != nil {
			batch.Fail(itemOrigin, err)
			continue
		}
		batch.Add(rec, itemOrigin)
	}
	return nil
}

// recordFromValue maps a generic JSON value onto the record struct through
// its json tags.
func recordFromValue(v any) (*api.ContentRecord, error) {
	if _, ok := v.(map[string]any); !ok {
		return nil, fmt.Errorf("expected a record object, got %T", v)
	}
	raw, err := oj.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("re-encode record: %w", err)
	}
	return decodeRecordJSON(raw)
}

func decodeRecordJSON(raw []byte) (*api.ContentRecord, error) {
	var rec api.ContentRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &rec, nil
}

// decodeYAML accepts one or more documents, each a record mapping or a
// sequence of record mappings.
func decodeYAML(batch *corpus.Batch, origin string, data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	n := 0
	for doc := 0; ; doc++ {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if n == 0 {
				return fmt.Errorf("parse yaml: %w", err)
			}
			batch.Fail(fmt.Sprintf("%s#doc%d", origin, doc), err)
			break
		}

		body := &node
		if body.Kind == yaml.DocumentNode && len(body.Content) == 1 {
			body = body.Content[0]
		}
		var nodes []*yaml.Node
		switch body.Kind {
		case yaml.MappingNode:
			nodes = []*yaml.Node{body}
		case yaml.SequenceNode:
			nodes = body.Content
		default:
			batch.Fail(fmt.Sprintf("%s#doc%d", origin, doc), fmt.Errorf("expected a mapping or sequence at line %d", body.Line))
			continue
		}
		for _, rn := range nodes {
			itemOrigin := fmt.Sprintf("%s:%d", origin, rn.Line)
			var rec api.ContentRecord
			if err := rn.Decode(&rec); err != nil {
				batch.Fail(itemOrigin, fmt.Errorf("decode record: %w", err))
				continue
			}
			batch.Add(&rec, itemOrigin)
			n++
		}
	}
	return nil
}
