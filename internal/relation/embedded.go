package relation

import (
	"context"

	"github.com/roach88/n1qlorm/internal/builder"
	"github.com/roach88/n1qlorm/internal/engine"
	"github.com/roach88/n1qlorm/internal/value"
)

// EmbeddedOne is a relation stored as an object inside the parent.
type EmbeddedOne struct {
	name  string
	field string
}

// EmbedsOne declares an EmbeddedOne relation stored at field.
func EmbedsOne(name, field string) *EmbeddedOne {
	return &EmbeddedOne{name: name, field: field}
}

func (r *EmbeddedOne) Name() string { return r.name }
func (r *EmbeddedOne) Kind() Kind   { return KindEmbeddedOne }
func (*EmbeddedOne) relation()      {}

// Load returns the embedded object, or nothing when the field is absent
// or not an object.
func (r *EmbeddedOne) Load(_ context.Context, _ *engine.Connection, parent value.Document) ([]value.Document, error) {
	v, _ := value.Lookup(parent, r.field)
	if d, ok := asDocument(v); ok {
		return []value.Document{d}, nil
	}
	return nil, nil
}

// Eager reads nothing; the objects are already in the parents.
func (r *EmbeddedOne) Eager(ctx context.Context, conn *engine.Connection, parents []value.Document) (map[string][]value.Document, error) {
	return eagerEmbedded(ctx, conn, r, parents)
}

// Save replaces the embedded object on the stored parent.
func (r *EmbeddedOne) Save(ctx context.Context, conn *engine.Connection, parentKey string, doc value.Document) (bool, error) {
	return conn.Mutate(ctx, "", parentKey, func(parent value.Document) (bool, error) {
		cur, _ := value.Lookup(parent, r.field)
		if value.Equal(cur, doc) {
			return false, nil
		}
		value.Assign(parent, r.field, map[string]any(doc.Clone()))
		return true, nil
	})
}

// Remove deletes the embedded object from the stored parent.
func (r *EmbeddedOne) Remove(ctx context.Context, conn *engine.Connection, parentKey string) (bool, error) {
	return conn.Mutate(ctx, "", parentKey, func(parent value.Document) (bool, error) {
		if _, ok := value.Lookup(parent, r.field); !ok {
			return false, nil
		}
		value.Assign(parent, r.field, value.Missing)
		return true, nil
	})
}

// EmbeddedMany is a relation stored as an array of objects inside the
// parent. Elements are identified by their key field.
type EmbeddedMany struct {
	name     string
	field    string
	keyField string
}

// EmbedsMany declares an EmbeddedMany relation stored at field. An empty
// keyField means "id".
func EmbedsMany(name, field, keyField string) *EmbeddedMany {
	if keyField == "" {
		keyField = "id"
	}
	return &EmbeddedMany{name: name, field: field, keyField: keyField}
}

func (r *EmbeddedMany) Name() string     { return r.name }
func (r *EmbeddedMany) Kind() Kind       { return KindEmbeddedMany }
func (r *EmbeddedMany) KeyField() string { return r.keyField }
func (*EmbeddedMany) relation()          {}

// Load returns the object elements of the embedded array.
func (r *EmbeddedMany) Load(_ context.Context, _ *engine.Connection, parent value.Document) ([]value.Document, error) {
	v, _ := value.Lookup(parent, r.field)
	arr, _ := v.([]any)
	var out []value.Document
	for _, e := range arr {
		if d, ok := asDocument(e); ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *EmbeddedMany) Eager(ctx context.Context, conn *engine.Connection, parents []value.Document) (map[string][]value.Document, error) {
	return eagerEmbedded(ctx, conn, r, parents)
}

// Add appends an element to the stored parent's array.
func (r *EmbeddedMany) Add(ctx context.Context, conn *engine.Connection, parentKey string, doc value.Document) (bool, error) {
	return conn.Push(ctx, "", parentKey, r.field, []any{map[string]any(doc.Clone())}, false)
}

// Update sets fields on the element whose key field equals key. A
// value.Missing value removes the field.
func (r *EmbeddedMany) Update(ctx context.Context, conn *engine.Connection, parentKey string, key any, values value.Document) (bool, error) {
	return r.mutate(ctx, conn, parentKey, func(arr []any) ([]any, bool, error) {
		changed := false
		for _, e := range arr {
			d, ok := asDocument(e)
			if !ok || !value.Equal(d[r.keyField], key) {
				continue
			}
			for f, v := range values {
				if value.IsMissing(v) {
					if _, ok := d[f]; ok {
						delete(d, f)
						changed = true
					}
					continue
				}
				if !value.Equal(d[f], v) {
					d[f] = v
					changed = true
				}
			}
		}
		return arr, changed, nil
	})
}

// UpdateAll sets fields on the element whose key field equals key in every
// document q matches, with one UPDATE ... FOR ... IN ... WHEN statement.
func (r *EmbeddedMany) UpdateAll(ctx context.Context, q *builder.Builder, key any, values value.Document) (int, error) {
	return q.UpdateEmbedded(ctx, r.field, r.keyField, key, values)
}

// Remove deletes the elements whose key field equals key.
func (r *EmbeddedMany) Remove(ctx context.Context, conn *engine.Connection, parentKey string, key any) (bool, error) {
	return r.mutate(ctx, conn, parentKey, func(arr []any) ([]any, bool, error) {
		kept := make([]any, 0, len(arr))
		for _, e := range arr {
			if d, ok := asDocument(e); ok && value.Equal(d[r.keyField], key) {
				continue
			}
			kept = append(kept, e)
		}
		return kept, len(kept) != len(arr), nil
	})
}

func (r *EmbeddedMany) mutate(ctx context.Context, conn *engine.Connection, parentKey string, fn func([]any) ([]any, bool, error)) (bool, error) {
	return conn.Mutate(ctx, "", parentKey, func(parent value.Document) (bool, error) {
		v, ok := value.Lookup(parent, r.field)
		if !ok || v == nil {
			return false, nil
		}
		arr, ok := v.([]any)
		if !ok {
			return false, errField(r.name, parentKey, r.field, v)
		}
		next, changed, err := fn(arr)
		if err != nil || !changed {
			return false, err
		}
		value.Assign(parent, r.field, next)
		return true, nil
	})
}

func eagerEmbedded(ctx context.Context, conn *engine.Connection, r Relation, parents []value.Document) (map[string][]value.Document, error) {
	out := make(map[string][]value.Document)
	for _, p := range parents {
		pk, err := keyOf(p)
		if err != nil {
			return nil, err
		}
		docs, err := r.Load(ctx, conn, p)
		if err != nil {
			return nil, err
		}
		if len(docs) > 0 {
			out[pk] = docs
		}
	}
	return out, nil
}
