package store

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// fieldFilter evaluates a QueryByField condition against raw JSON documents.
// Backends without server-side filtering (memory, Redis) share it.
type fieldFilter struct {
	path  []string
	op    Operator
	value any
}

func newFieldFilter(field string, op Operator, value any) (*fieldFilter, error) {
	switch op {
	case OpEqual, OpNotEqual, OpArrayContains:
	default:
		return nil, fmt.Errorf("store: unsupported operator %q", op)
	}
	if field == "" {
		return nil, fmt.Errorf("store: empty field name")
	}

	// Round-trip the value through JSON so it compares equal to decoded
	// document values (numbers become float64, structs become maps).
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("store: encode filter value: %w", err)
	}
	var normalized any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return nil, fmt.Errorf("store: decode filter value: %w", err)
	}

	return &fieldFilter{path: strings.Split(field, "."), op: op, value: normalized}, nil
}

// match reports whether the document satisfies the filter. Documents that
// lack the field never match, for any operator.
func (f *fieldFilter) match(data json.RawMessage) (bool, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return false, fmt.Errorf("store: decode document: %w", err)
	}

	var cur any = doc
	for _, key := range f.path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return false, nil
		}
		if cur, ok = obj[key]; !ok {
			return false, nil
		}
	}

	switch f.op {
	case OpEqual:
		return reflect.DeepEqual(cur, f.value), nil
	case OpNotEqual:
		return cur != nil && !reflect.DeepEqual(cur, f.value), nil
	case OpArrayContains:
		items, ok := cur.([]any)
		if !ok {
			return false, nil
		}
		for _, item := range items {
			if reflect.DeepEqual(item, f.value) {
				return true, nil
			}
		}
	}
	return false, nil
}
