package relation

import (
	"context"

	"github.com/roach88/n1qlorm/internal/builder"
	"github.com/roach88/n1qlorm/internal/engine"
	"github.com/roach88/n1qlorm/internal/value"
)

// OwnedArrayMembership is a relation whose parent holds the related keys
// in an array field. Related documents are read with USE KEYS or a
// multi-key lookup, never with an index scan.
type OwnedArrayMembership struct {
	name    string
	related string
	field   string
}

// OwnedArray declares an OwnedArrayMembership relation.
func OwnedArray(name, related, field string) *OwnedArrayMembership {
	return &OwnedArrayMembership{name: name, related: related, field: field}
}

func (r *OwnedArrayMembership) Name() string { return r.name }
func (r *OwnedArrayMembership) Kind() Kind   { return KindOwnedArray }
func (*OwnedArrayMembership) relation()      {}

// Query constrains to the keys listed on parent.
func (r *OwnedArrayMembership) Query(conn *engine.Connection, parent value.Document) *builder.Builder {
	b := builder.From(conn, r.related)
	keys := unique(keysIn(parent, r.field))
	if len(keys) == 0 {
		return nothing(b)
	}
	return b.UseKeys(keys...)
}

// Load returns the related documents in the order the parent lists them.
func (r *OwnedArrayMembership) Load(ctx context.Context, conn *engine.Connection, parent value.Document) ([]value.Document, error) {
	keys := unique(keysIn(parent, r.field))
	if len(keys) == 0 {
		return nil, nil
	}
	return builder.From(conn, r.related).FindMany(ctx, keys...)
}

// Eager reads the union of every parent's keys once.
func (r *OwnedArrayMembership) Eager(ctx context.Context, conn *engine.Connection, parents []value.Document) (map[string][]value.Document, error) {
	var all []string
	for _, p := range parents {
		all = append(all, keysIn(p, r.field)...)
	}
	all = unique(all)
	out := make(map[string][]value.Document)
	if len(all) == 0 {
		return out, nil
	}
	docs, err := builder.From(conn, r.related).FindMany(ctx, all...)
	if err != nil {
		return nil, err
	}
	found := byKey(docs)
	for _, p := range parents {
		pk, err := keyOf(p)
		if err != nil {
			return nil, err
		}
		for _, k := range unique(keysIn(p, r.field)) {
			if d, ok := found[k]; ok {
				out[pk] = append(out[pk], d)
			}
		}
	}
	return out, nil
}

// Attach adds keys to the parent's array, skipping keys already present.
func (r *OwnedArrayMembership) Attach(ctx context.Context, conn *engine.Connection, parentKey string, keys ...string) (bool, error) {
	return conn.Push(ctx, "", parentKey, r.field, anys(keys), true)
}

// Detach removes keys from the parent's array.
func (r *OwnedArrayMembership) Detach(ctx context.Context, conn *engine.Connection, parentKey string, keys ...string) (bool, error) {
	return conn.Pull(ctx, "", parentKey, r.field, anys(keys))
}

// NormalizedBelongsToMany is a relation whose related documents each hold
// an array of parent keys. It is read with an ANY ... SATISFIES scan.
type NormalizedBelongsToMany struct {
	name    string
	related string
	field   string
}

// BelongsToMany declares a NormalizedBelongsToMany relation; field is the
// parent key array on the related documents.
func BelongsToMany(name, related, field string) *NormalizedBelongsToMany {
	return &NormalizedBelongsToMany{name: name, related: related, field: field}
}

func (r *NormalizedBelongsToMany) Name() string { return r.name }
func (r *NormalizedBelongsToMany) Kind() Kind   { return KindBelongsToMany }
func (*NormalizedBelongsToMany) relation()      {}

// Query constrains to documents whose array contains the parent key.
func (r *NormalizedBelongsToMany) Query(conn *engine.Connection, parent value.Document) *builder.Builder {
	b := builder.From(conn, r.related)
	pk, err := keyOf(parent)
	if err != nil {
		return nothing(b)
	}
	return b.WhereAnyIn(r.field, pk)
}

func (r *NormalizedBelongsToMany) Load(ctx context.Context, conn *engine.Connection, parent value.Document) ([]value.Document, error) {
	if _, err := keyOf(parent); err != nil {
		return nil, err
	}
	res, err := r.Query(conn, parent).Get(ctx)
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

// Eager runs one scan for every parent key; a related document listing
// several parents is returned for each of them.
func (r *NormalizedBelongsToMany) Eager(ctx context.Context, conn *engine.Connection, parents []value.Document) (map[string][]value.Document, error) {
	keys, err := keysOf(parents)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]value.Document)
	keys = unique(keys)
	if len(keys) == 0 {
		return out, nil
	}
	res, err := builder.From(conn, r.related).WhereAnyIn(r.field, anys(keys)...).Get(ctx)
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(keys))
	for _, k := range keys {
		wanted[k] = true
	}
	for _, row := range res.Rows {
		for _, pk := range unique(keysIn(row, r.field)) {
			if wanted[pk] {
				out[pk] = append(out[pk], row)
			}
		}
	}
	return out, nil
}

// Attach adds the parent key to each related document. It reports whether
// any document changed.
func (r *NormalizedBelongsToMany) Attach(ctx context.Context, conn *engine.Connection, parentKey string, relatedKeys ...string) (bool, error) {
	return r.each(relatedKeys, func(k string) (bool, error) {
		return conn.Push(ctx, "", k, r.field, []any{parentKey}, true)
	})
}

// Detach removes the parent key from each related document.
func (r *NormalizedBelongsToMany) Detach(ctx context.Context, conn *engine.Connection, parentKey string, relatedKeys ...string) (bool, error) {
	return r.each(relatedKeys, func(k string) (bool, error) {
		return conn.Pull(ctx, "", k, r.field, []any{parentKey})
	})
}

func (r *NormalizedBelongsToMany) each(keys []string, fn func(string) (bool, error)) (bool, error) {
	changed := false
	for _, k := range keys {
		c, err := fn(k)
		if err != nil {
			return changed, err
		}
		changed = changed || c
	}
	return changed, nil
}
