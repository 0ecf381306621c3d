package value

import (
	"errors"
	"reflect"
)

// missingType is unexported so the only value of the type is Missing.
type missingType struct{}

// Missing marks a field for removal rather than assignment.
// It is immutable and compared by type; it is never equal to nil or to any
// real value.
var Missing any = missingType{}

var errMissingEncoded = errors.New("missing sentinel cannot be encoded")

// MarshalJSON refuses to encode the sentinel. StripMissing must run first.
func (missingType) MarshalJSON() ([]byte, error) {
	return nil, errMissingEncoded
}

// String implements fmt.Stringer for diagnostics.
func (missingType) String() string {
	return "MISSING"
}

// IsMissing reports whether v is the Missing sentinel.
func IsMissing(v any) bool {
	_, ok := v.(missingType)
	return ok
}

// StripMissing returns a copy of v with every map entry and slice element
// whose value is Missing removed, at every depth. Containers are copied, the
// input is not modified. Scalars and unrecognized types are returned as is.
//
// A container that refers back to one of its ancestors is returned unchanged
// at the point of the cycle; Encode then reports the cycle as a
// serialization error.
func StripMissing(v any) any {
	return strip(v, make(map[uintptr]bool))
}

func strip(v any, path map[uintptr]bool) any {
	switch val := v.(type) {
	case Document:
		return Document(stripMap(val, path))
	case map[string]any:
		return stripMap(val, path)
	case []any:
		return stripSlice(val, path)
	case []Document:
		out := make([]Document, 0, len(val))
		for _, d := range val {
			out = append(out, Document(stripMap(d, path)))
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, 0, len(val))
		for _, m := range val {
			out = append(out, stripMap(m, path))
		}
		return out
	default:
		return v
	}
}

func stripMap(m map[string]any, path map[uintptr]bool) map[string]any {
	if m == nil {
		return nil
	}
	id := reflect.ValueOf(m).Pointer()
	if path[id] {
		return m
	}
	path[id] = true
	defer delete(path, id)

	out := make(map[string]any, len(m))
	for k, elem := range m {
		if IsMissing(elem) {
			continue
		}
		out[k] = strip(elem, path)
	}
	return out
}

func stripSlice(s []any, path map[uintptr]bool) []any {
	if s == nil {
		return nil
	}
	var id uintptr
	if len(s) > 0 {
		id = reflect.ValueOf(s).Pointer()
		if path[id] {
			return s
		}
		path[id] = true
		defer delete(path, id)
	}

	out := make([]any, 0, len(s))
	for _, elem := range s {
		if IsMissing(elem) {
			continue
		}
		out = append(out, strip(elem, path))
	}
	return out
}
