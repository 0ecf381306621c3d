package relation

import (
	"context"
	"fmt"

	"github.com/roach88/n1qlorm/internal/builder"
	"github.com/roach88/n1qlorm/internal/dberr"
	"github.com/roach88/n1qlorm/internal/engine"
	"github.com/roach88/n1qlorm/internal/queryir"
	"github.com/roach88/n1qlorm/internal/value"
)

// Relation is one declared relation of a model.
//
// The interface is sealed: the six kinds in this package are the only
// implementations.
type Relation interface {
	// Name is the declared relation name; eager loading stores results
	// under it.
	Name() string
	Kind() Kind

	// Load returns the related documents of parent.
	Load(ctx context.Context, conn *engine.Connection, parent value.Document) ([]value.Document, error)

	// Eager returns the related documents of every parent, keyed by
	// parent key. Parents without related documents have no entry.
	Eager(ctx context.Context, conn *engine.Connection, parents []value.Document) (map[string][]value.Document, error)

	relation()
}

// Queryable is a relation whose related documents are separate documents
// reachable with a query.
type Queryable interface {
	Relation

	// Query returns a builder constrained to the related documents of
	// parent. Callers may add clauses before running it.
	Query(conn *engine.Connection, parent value.Document) *builder.Builder
}

// Spec declares a relation.
type Spec struct {
	Name string
	Kind Kind

	// Related is the document type of the related documents. Unused by
	// embedded kinds.
	Related string

	// Field is the field the relation reads: the key array, embedded
	// object or array, foreign key, or foreign key array, depending on
	// the kind.
	Field string

	// KeyField identifies elements of an EmbeddedMany array. Defaults to
	// "id".
	KeyField string
}

// New builds the relation declared by spec.
func New(spec Spec) (Relation, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	switch spec.Kind {
	case KindOwnedArray:
		return OwnedArray(spec.Name, spec.Related, spec.Field), nil
	case KindEmbeddedOne:
		return EmbedsOne(spec.Name, spec.Field), nil
	case KindEmbeddedMany:
		return EmbedsMany(spec.Name, spec.Field, spec.KeyField), nil
	case KindHasMany:
		return HasMany(spec.Name, spec.Related, spec.Field), nil
	case KindBelongsTo:
		return BelongsTo(spec.Name, spec.Related, spec.Field), nil
	default:
		return BelongsToMany(spec.Name, spec.Related, spec.Field), nil
	}
}

func (s Spec) validate() error {
	switch {
	case s.Name == "":
		return dberr.New(dberr.CodeMisuse, "relation without a name")
	case kindNames[s.Kind] == "":
		return dberr.New(dberr.CodeMisuse, "relation %q: unknown kind %d", s.Name, s.Kind)
	case s.Field == "":
		return dberr.New(dberr.CodeMisuse, "relation %q: field is required", s.Name)
	case !s.Kind.Embedded() && s.Related == "":
		return dberr.New(dberr.CodeMisuse, "relation %q: related type is required for %s", s.Name, s.Kind)
	case s.Field == queryir.NativeKey:
		return dberr.New(dberr.CodeMisuse, "relation %q: field %q is the document key", s.Name, s.Field)
	}
	return nil
}

// keyOf returns the native key of a document read through a query or
// key lookup.
func keyOf(doc value.Document) (string, error) {
	k, ok := doc[queryir.NativeKey].(string)
	if !ok || k == "" {
		return "", dberr.New(dberr.CodeMisuse, "document has no %q", queryir.NativeKey)
	}
	return k, nil
}

func keysOf(parents []value.Document) ([]string, error) {
	keys := make([]string, 0, len(parents))
	for _, p := range parents {
		k, err := keyOf(p)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// keysIn reads a field holding one key or an array of keys. Non-string
// elements are skipped.
func keysIn(doc value.Document, field string) []string {
	v, ok := value.Lookup(doc, field)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func unique(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := keys[:0:0]
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

func anys(keys []string) []any {
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = k
	}
	return out
}

func asDocument(v any) (value.Document, bool) {
	switch m := v.(type) {
	case value.Document:
		return m, true
	case map[string]any:
		return value.Document(m), true
	default:
		return nil, false
	}
}

// byKey indexes documents by native key.
func byKey(docs []value.Document) map[string]value.Document {
	out := make(map[string]value.Document, len(docs))
	for _, d := range docs {
		if k, ok := d[queryir.NativeKey].(string); ok {
			out[k] = d
		}
	}
	return out
}

// nothing constrains a builder to match no document, for parents that
// reference no keys.
func nothing(b *builder.Builder) *builder.Builder {
	return b.WhereRaw("false")
}

func errField(rel, key, field string, got any) error {
	return dberr.New(dberr.CodeMisuse, "relation %q: %s.%s is %s", rel, key, field, describe(got))
}

func describe(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("a %T", v)
}
