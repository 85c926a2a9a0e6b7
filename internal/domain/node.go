// Package domain holds the entities and value types shared by every
// component of the extraction pipeline: the opaque payload tree,
// the tagged field-value union, and the persisted row shapes.
package domain

import (
	"bytes"
	"encoding/json"
)

// Node is an open, string-keyed tree used for anything with no fixed
// shape: snapshot payloads, column mappings, table rows. It never gets
// a compile-time schema — components that need specific keys read
// them dynamically.
//
// A Node is exactly one of:
//   - map[string]Node   (object)
//   - []Node            (array)
//   - string, float64, bool, nil (scalar)
type Node interface{}

// FromJSON decodes raw JSON into a Node tree, preserving object key
// order is NOT possible with encoding/json maps; callers that need
// order (column_mapping, column_order) must carry it out-of-band as
// an explicit []string, which is what TableSection does.
func FromJSON(raw []byte) (Node, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return normalize(v), nil
}

func normalize(v interface{}) Node {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]Node, len(t))
		for k, vv := range t {
			out[k] = normalize(vv)
		}
		return out
	case []interface{}:
		out := make([]Node, len(t))
		for i, vv := range t {
			out[i] = normalize(vv)
		}
		return out
	default:
		return t
	}
}

// ToJSON marshals a Node tree back to JSON bytes.
func ToJSON(n Node) ([]byte, error) {
	return json.Marshal(n)
}

// AsMap returns the Node as a map, or nil and false if it isn't one.
func AsMap(n Node) (map[string]Node, bool) {
	m, ok := n.(map[string]Node)
	return m, ok
}

// AsSlice returns the Node as a slice, or nil and false if it isn't one.
func AsSlice(n Node) ([]Node, bool) {
	s, ok := n.([]Node)
	return s, ok
}

// AsString returns the Node as a string, or "" and false if it isn't one.
func AsString(n Node) (string, bool) {
	s, ok := n.(string)
	return s, ok
}

// Get looks up a key in an object Node; returns nil, false for any
// other shape or a missing key.
func Get(n Node, key string) (Node, bool) {
	m, ok := AsMap(n)
	if !ok {
		return nil, false
	}
	v, ok := m[key]
	return v, ok
}

// OrderedKeys returns the keys of a JSON object as they appeared in the
// original text, since encoding/json discards map order. Used only for
// payload sections where SPEC_FULL needs insertion order (column
// mapping fallback) — callers should prefer decoding those sections
// with json.Decoder token-by-token when order matters; this helper
// is a convenience for the common "small object" case.
func OrderedKeys(raw json.RawMessage) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if _, ok := tok.(json.Delim); !ok {
		return nil, nil
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil
		}
		keys = append(keys, key)
		// skip the value
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
	}
	return keys, nil
}
