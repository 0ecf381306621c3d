package builder

import (
	"context"

	"github.com/roach88/n1qlorm/internal/dberr"
	"github.com/roach88/n1qlorm/internal/n1ql"
	"github.com/roach88/n1qlorm/internal/queryir"
	"github.com/roach88/n1qlorm/internal/store"
	"github.com/roach88/n1qlorm/internal/value"
)

// Insert stores documents with key-value upserts. A document's "_id", if
// set, is its key; otherwise a key is generated.
func (b *Builder) Insert(ctx context.Context, docs ...value.Document) error {
	_, err := b.insert(ctx, docs)
	return err
}

// InsertGetId stores one document and returns its key.
func (b *Builder) InsertGetId(ctx context.Context, doc value.Document) (string, error) {
	keys, err := b.insert(ctx, []value.Document{doc})
	if err != nil {
		return "", err
	}
	return keys[0], nil
}

func (b *Builder) insert(ctx context.Context, docs []value.Document) ([]string, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(docs) == 0 {
		return nil, dberr.New(dberr.CodeMisuse, "insert without documents")
	}
	return b.conn.Insert(ctx, b.state.DocumentType, docs)
}

// InsertViaQuery stores one document with an INSERT statement and
// returns its key.
func (b *Builder) InsertViaQuery(ctx context.Context, doc value.Document) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	return b.conn.InsertViaQuery(ctx, b.state, doc, b.run)
}

// affected is the number of documents a mutation reported.
func affected(res *store.Result) int {
	if res.Metrics.MutationCount > 0 {
		return int(res.Metrics.MutationCount)
	}
	return len(res.Rows)
}

// Update sets fields on every matching document. A value.Missing value
// removes the field instead.
func (b *Builder) Update(ctx context.Context, values value.Document) (int, error) {
	if b.err != nil {
		return 0, b.err
	}
	res, err := b.conn.Update(ctx, b.state, values, b.run)
	if err != nil {
		return 0, err
	}
	return affected(res), nil
}

// UpdateEmbedded sets fields on the elements of the array field whose
// keyField equals key, in every matching document.
func (b *Builder) UpdateEmbedded(ctx context.Context, array, keyField string, key any, values value.Document) (int, error) {
	if b.err != nil {
		return 0, b.err
	}
	res, err := b.conn.UpdateEmbedded(ctx, b.state, n1ql.EmbeddedUpdate{
		Array:    array,
		KeyField: keyField,
		Key:      key,
		Values:   values,
	}, b.run)
	if err != nil {
		return 0, err
	}
	return affected(res), nil
}

// Unset removes fields from every matching document.
func (b *Builder) Unset(ctx context.Context, columns ...string) (int, error) {
	if b.err != nil {
		return 0, b.err
	}
	res, err := b.conn.Unset(ctx, b.state, columns, b.run)
	if err != nil {
		return 0, err
	}
	return affected(res), nil
}

// Delete removes every matching document and returns how many were
// removed.
func (b *Builder) Delete(ctx context.Context) (int, error) {
	if b.err != nil {
		return 0, b.err
	}
	return b.conn.Delete(ctx, b.state, b.run)
}

// Push appends values to the array field column of every matching
// document; with unique set, values already present are skipped. It
// reports whether any document changed.
//
// Each document is read and written back with a CAS check, one document
// at a time. A document deleted in between is skipped with a warning; one
// modified in between fails the call with CONFLICT.
func (b *Builder) Push(ctx context.Context, column string, values []any, unique bool) (bool, error) {
	return b.eachKey(ctx, func(key string) (bool, error) {
		return b.conn.Push(ctx, b.state.DocumentType, key, column, values, unique)
	})
}

// Pull removes values from the array field column of every matching
// document.
func (b *Builder) Pull(ctx context.Context, column string, values []any) (bool, error) {
	return b.eachKey(ctx, func(key string) (bool, error) {
		return b.conn.Pull(ctx, b.state.DocumentType, key, column, values)
	})
}

// eachKey runs fn for every matching document key: the USE KEYS list when
// the query is key-scoped, the keys of a select otherwise.
func (b *Builder) eachKey(ctx context.Context, fn func(key string) (bool, error)) (bool, error) {
	if b.err != nil {
		return false, b.err
	}
	keys, err := b.matchingKeys(ctx)
	if err != nil {
		return false, err
	}
	changed := false
	for _, key := range keys {
		c, err := fn(key)
		if err != nil {
			return changed, err
		}
		changed = changed || c
	}
	return changed, nil
}

func (b *Builder) matchingKeys(ctx context.Context) ([]string, error) {
	if b.state.Mode() == queryir.AccessKeys && b.state.OnlyTypeFilter() {
		return append([]string(nil), b.state.Keys...), nil
	}
	res, err := b.Get(ctx, queryir.NativeKey)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		if k, ok := row[queryir.NativeKey].(string); ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// DirtyTracker reports a document's unsaved changes.
type DirtyTracker interface {
	// Dirty returns fields whose values changed.
	Dirty() value.Document
	// Removed returns fields that were deleted.
	Removed() []string
}

// SaveDirty writes only the changed and removed fields of the document
// under key. It reports false, without I/O, when nothing changed.
func (b *Builder) SaveDirty(ctx context.Context, key string, t DirtyTracker) (bool, error) {
	if b.err != nil {
		return false, b.err
	}
	values := t.Dirty().Clone()
	if values == nil {
		values = value.Document{}
	}
	for _, f := range t.Removed() {
		values[f] = value.Missing
	}
	delete(values, queryir.NativeKey)
	delete(values, b.state.TypeField)
	if len(values) == 0 {
		return false, nil
	}
	if _, err := b.Clone().UseKeys(key).Update(ctx, values); err != nil {
		return false, err
	}
	return true, nil
}
