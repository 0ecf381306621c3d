package relation

import (
	"context"

	"github.com/roach88/n1qlorm/internal/builder"
	"github.com/roach88/n1qlorm/internal/engine"
	"github.com/roach88/n1qlorm/internal/value"
)

// NormalizedHasMany is a relation whose related documents hold the parent
// key in a foreign key field.
type NormalizedHasMany struct {
	name       string
	related    string
	foreignKey string
}

// HasMany declares a NormalizedHasMany relation.
func HasMany(name, related, foreignKey string) *NormalizedHasMany {
	return &NormalizedHasMany{name: name, related: related, foreignKey: foreignKey}
}

func (r *NormalizedHasMany) Name() string { return r.name }
func (r *NormalizedHasMany) Kind() Kind   { return KindHasMany }
func (*NormalizedHasMany) relation()      {}

func (r *NormalizedHasMany) Query(conn *engine.Connection, parent value.Document) *builder.Builder {
	b := builder.From(conn, r.related)
	pk, err := keyOf(parent)
	if err != nil {
		return nothing(b)
	}
	return b.Where(r.foreignKey, pk)
}

func (r *NormalizedHasMany) Load(ctx context.Context, conn *engine.Connection, parent value.Document) ([]value.Document, error) {
	if _, err := keyOf(parent); err != nil {
		return nil, err
	}
	res, err := r.Query(conn, parent).Get(ctx)
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

// Eager runs one IN query over every parent key.
func (r *NormalizedHasMany) Eager(ctx context.Context, conn *engine.Connection, parents []value.Document) (map[string][]value.Document, error) {
	keys, err := keysOf(parents)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]value.Document)
	keys = unique(keys)
	if len(keys) == 0 {
		return out, nil
	}
	res, err := builder.From(conn, r.related).WhereIn(r.foreignKey, anys(keys)...).Get(ctx)
	if err != nil {
		return nil, err
	}
	for _, row := range res.Rows {
		if pk, ok := row[r.foreignKey].(string); ok {
			out[pk] = append(out[pk], row)
		}
	}
	return out, nil
}

// Create stores doc as a related document of the parent and returns its
// key.
func (r *NormalizedHasMany) Create(ctx context.Context, conn *engine.Connection, parentKey string, doc value.Document) (string, error) {
	d := doc.Clone()
	if d == nil {
		d = value.Document{}
	}
	d[r.foreignKey] = parentKey
	return builder.From(conn, r.related).InsertGetId(ctx, d)
}

// NormalizedBelongsTo is a relation whose parent holds the related key in
// a foreign key field.
type NormalizedBelongsTo struct {
	name       string
	related    string
	foreignKey string
}

// BelongsTo declares a NormalizedBelongsTo relation.
func BelongsTo(name, related, foreignKey string) *NormalizedBelongsTo {
	return &NormalizedBelongsTo{name: name, related: related, foreignKey: foreignKey}
}

func (r *NormalizedBelongsTo) Name() string { return r.name }
func (r *NormalizedBelongsTo) Kind() Kind   { return KindBelongsTo }
func (*NormalizedBelongsTo) relation()      {}

func (r *NormalizedBelongsTo) Query(conn *engine.Connection, parent value.Document) *builder.Builder {
	b := builder.From(conn, r.related)
	keys := keysIn(parent, r.foreignKey)
	if len(keys) != 1 {
		return nothing(b)
	}
	return b.UseKeys(keys[0])
}

func (r *NormalizedBelongsTo) Load(ctx context.Context, conn *engine.Connection, parent value.Document) ([]value.Document, error) {
	keys := keysIn(parent, r.foreignKey)
	if len(keys) != 1 {
		return nil, nil
	}
	doc, err := builder.From(conn, r.related).Find(ctx, keys[0])
	if err != nil || doc == nil {
		return nil, err
	}
	return []value.Document{doc}, nil
}

// Eager reads every distinct foreign key with one multi-key lookup.
func (r *NormalizedBelongsTo) Eager(ctx context.Context, conn *engine.Connection, parents []value.Document) (map[string][]value.Document, error) {
	var all []string
	for _, p := range parents {
		if keys := keysIn(p, r.foreignKey); len(keys) == 1 {
			all = append(all, keys[0])
		}
	}
	out := make(map[string][]value.Document)
	all = unique(all)
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
		keys := keysIn(p, r.foreignKey)
		if len(keys) != 1 {
			continue
		}
		if d, ok := found[keys[0]]; ok {
			out[pk] = []value.Document{d}
		}
	}
	return out, nil
}

// Associate points the stored child at relatedKey.
func (r *NormalizedBelongsTo) Associate(ctx context.Context, conn *engine.Connection, childKey, relatedKey string) (bool, error) {
	return conn.Mutate(ctx, "", childKey, func(doc value.Document) (bool, error) {
		if cur, _ := value.Lookup(doc, r.foreignKey); cur == relatedKey {
			return false, nil
		}
		value.Assign(doc, r.foreignKey, relatedKey)
		return true, nil
	})
}

// Dissociate removes the foreign key from the stored child.
func (r *NormalizedBelongsTo) Dissociate(ctx context.Context, conn *engine.Connection, childKey string) (bool, error) {
	return conn.Mutate(ctx, "", childKey, func(doc value.Document) (bool, error) {
		if _, ok := value.Lookup(doc, r.foreignKey); !ok {
			return false, nil
		}
		value.Assign(doc, r.foreignKey, value.Missing)
		return true, nil
	})
}
