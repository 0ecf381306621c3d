package value

import (
	"bytes"
	"encoding/json"
	"slices"
	"strings"

	"github.com/roach88/n1qlorm/internal/dberr"
)

// Document is a schemaless JSON-like record. Values are the types produced
// by encoding/json (string, float64, bool, nil, []any, map[string]any) plus
// whatever the caller puts in before encoding.
type Document map[string]any

// SortedKeys returns the document keys in byte order for deterministic
// iteration.
func (d Document) SortedKeys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Clone returns a deep copy of d. Nested maps and slices are copied; other
// values are shared.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return Document(cloneMap(d))
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case Document:
		return Document(cloneMap(val))
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = cloneValue(elem)
		}
		return out
	default:
		return v
	}
}

// Encode serializes v to JSON after stripping Missing at every depth.
// HTML characters are not escaped, so the output can be inlined into N1QL
// text verbatim. Cycles and unsupported types yield a SERIALIZATION error.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(StripMissing(v)); err != nil {
		return nil, dberr.Wrap(dberr.CodeSerialization, err, "encode %T", v)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Decode parses a JSON object into a Document.
func Decode(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, dberr.Wrap(dberr.CodeSerialization, err, "decode document")
	}
	return doc, nil
}

// Lookup returns the value at a dotted path such as "address.city".
func Lookup(d Document, path string) (any, bool) {
	var cur any = map[string]any(d)
	for _, seg := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Assign sets the value at a dotted path, creating intermediate objects as
// needed. Existing non-object intermediates are replaced.
func Assign(d Document, path string, v any) {
	segs := strings.Split(path, ".")
	cur := map[string]any(d)
	for _, seg := range segs[:len(segs)-1] {
		next, ok := asMap(cur[seg])
		if !ok {
			next = make(map[string]any)
			cur[seg] = next
		}
		cur = next
	}
	cur[segs[len(segs)-1]] = v
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Document:
		return m, true
	default:
		return nil, false
	}
}

// Equal reports whether a and b encode to the same JSON. Used for array
// membership tests where numbers may have been decoded as float64.
func Equal(a, b any) bool {
	ea, err := Encode(a)
	if err != nil {
		return false
	}
	eb, err := Encode(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ea, eb)
}
