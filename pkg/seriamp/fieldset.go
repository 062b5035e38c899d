// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package seriamp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// FieldSet is an insertion-ordered mapping of field names to decoded values.
// Values are bool, int, float64, string, or nil for "not applicable".
// The zero value is an empty set ready to use.
type FieldSet struct {
	keys   []string
	values map[string]any
}

// Fields builds a FieldSet from alternating keys and values
func Fields(kv ...any) FieldSet {
	var f FieldSet
	for i := 0; i+1 < len(kv); i += 2 {
		f.Set(fmt.Sprint(kv[i]), kv[i+1])
	}
	return f
}

// Set stores value under key, keeping the original position of existing keys
func (f *FieldSet) Set(key string, value any) {
	if f.values == nil {
		f.values = make(map[string]any)
	}
	if _, ok := f.values[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.values[key] = value
}

func (f FieldSet) Get(key string) (any, bool) {
	v, ok := f.values[key]
	return v, ok
}

func (f FieldSet) Len() int {
	return len(f.keys)
}

func (f FieldSet) Keys() []string {
	return append([]string(nil), f.keys...)
}

// Each calls fn for every field in insertion order
func (f FieldSet) Each(fn func(key string, value any)) {
	for _, k := range f.keys {
		fn(k, f.values[k])
	}
}

// Clone returns an independent copy
func (f FieldSet) Clone() FieldSet {
	var out FieldSet
	f.Each(out.Set)
	return out
}

// Merge copies every field of other into f, last write wins
func (f *FieldSet) Merge(other FieldSet) {
	other.Each(f.Set)
}

// Map returns the fields as an unordered map
func (f FieldSet) Map() map[string]any {
	out := make(map[string]any, len(f.keys))
	f.Each(func(k string, v any) { out[k] = v })
	return out
}

func (f FieldSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range f.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f.values[k])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (f FieldSet) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range f.keys {
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: k}
		valNode := &yaml.Node{}
		if err := valNode.Encode(f.values[k]); err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		node.Content = append(node.Content, keyNode, valNode)
	}
	return node, nil
}

// FormatValue renders a field value for terminal output
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "-"
	case bool:
		if val {
			return "on"
		}
		return "off"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case *float64:
		if val == nil {
			return "-"
		}
		return strconv.FormatFloat(*val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}
