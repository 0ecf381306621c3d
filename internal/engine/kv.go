package engine

import (
	"context"
	"sync"

	"github.com/roach88/n1qlorm/internal/dberr"
	"github.com/roach88/n1qlorm/internal/queryir"
	"github.com/roach88/n1qlorm/internal/store"
	"github.com/roach88/n1qlorm/internal/value"
)

// Get reads one document by key. A missing key is a NOT_FOUND error.
func (c *Connection) Get(ctx context.Context, key string) (*store.Item, error) {
	t := c.begin(OpKVGet, key, nil, 0)
	item, err := c.kv.Get(ctx, key)
	if err != nil {
		return nil, t.done(ctx, 0, err)
	}
	return item, t.done(ctx, 1, nil)
}

// rowOf returns the document as a query row: a copy with the native key
// under "_id".
func rowOf(item *store.Item) value.Document {
	doc := item.Doc.Clone()
	if doc == nil {
		doc = value.Document{}
	}
	doc[queryir.NativeKey] = item.Key
	return doc
}

// matchesType reports whether doc carries the state's discriminator, or
// the state has none.
func (c *Connection) matchesType(s *queryir.State, doc value.Document) bool {
	if s.DocumentType == "" {
		return true
	}
	return doc[s.TypeField] == s.DocumentType
}

// getMany reads every key of s, in key order, skipping missing keys and
// documents of another type. Several keys are fetched in parallel over the
// worker pool.
func (c *Connection) getMany(ctx context.Context, s *queryir.State) (*store.Result, error) {
	items := make([]*store.Item, len(s.Keys))
	errs := make([]error, len(s.Keys))

	if len(s.Keys) == 1 {
		items[0], errs[0] = c.Get(ctx, s.Keys[0])
	} else {
		var wg sync.WaitGroup
		for i, key := range s.Keys {
			wg.Add(1)
			err := c.pool.Submit(func() {
				defer wg.Done()
				items[i], errs[i] = c.Get(ctx, key)
			})
			if err != nil {
				wg.Done()
				errs[i] = dberr.Wrap(dberr.CodeTransient, err, "schedule get %q", key)
			}
		}
		wg.Wait()
	}

	var rows []value.Document
	for i, item := range items {
		if err := errs[i]; err != nil {
			if dberr.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		if !c.matchesType(s, item.Doc) {
			continue
		}
		rows = append(rows, rowOf(item))
	}

	rows = window(rows, s.Offset, s.Limit)
	return &store.Result{
		Rows:    rows,
		Metrics: store.Metrics{ResultCount: uint64(len(rows))},
	}, nil
}

func window(rows []value.Document, offset, limit int) []value.Document {
	if offset > 0 {
		if offset >= len(rows) {
			return nil
		}
		rows = rows[offset:]
	}
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

func (c *Connection) removeMany(ctx context.Context, s *queryir.State) (int, error) {
	removed := 0
	for _, key := range s.Keys {
		if s.DocumentType != "" {
			item, err := c.Get(ctx, key)
			if dberr.IsNotFound(err) {
				continue
			}
			if err != nil {
				return removed, err
			}
			if !c.matchesType(s, item.Doc) {
				continue
			}
		}
		t := c.begin(OpKVRemove, key, nil, 0)
		err := t.done(ctx, 1, c.kv.Remove(ctx, key))
		if dberr.IsNotFound(err) {
			continue
		}
		if err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Insert stores each document with a key-value upsert and returns the keys
// in input order.
//
// The key is the document's "_id" when it is a non-empty string, otherwise
// generated. "_id" is never stored in the body. The discriminator field is
// set to docType unless docType is empty.
func (c *Connection) Insert(ctx context.Context, docType string, docs []value.Document) ([]string, error) {
	keys := make([]string, 0, len(docs))
	for _, doc := range docs {
		body := doc.Clone()
		if body == nil {
			body = value.Document{}
		}
		key, _ := body[queryir.NativeKey].(string)
		delete(body, queryir.NativeKey)
		if key == "" {
			key = c.keys.Generate(docType)
		}
		if docType != "" {
			body[c.typeField] = docType
		}

		t := c.begin(OpKVUpsert, key, nil, 0)
		_, err := c.kv.Upsert(ctx, key, body)
		if err := t.done(ctx, 1, err); err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Mutate applies fn to the document under key and writes it back with a
// CAS-guarded replace. fn reports whether it changed the document; an
// unchanged document is not written.
//
// A missing document, or one whose discriminator is not docType, is logged
// and treated as "nothing changed". An empty docType accepts any document.
// A concurrent write between the read and the replace fails with CONFLICT.
func (c *Connection) Mutate(ctx context.Context, docType, key string, fn func(doc value.Document) (bool, error)) (bool, error) {
	item, err := c.Get(ctx, key)
	if dberr.IsNotFound(err) {
		c.logger.WarnContext(ctx, "document not found, mutation skipped", "key", key)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if docType != "" && item.Doc[c.typeField] != docType {
		c.logger.WarnContext(ctx, "document of another type, mutation skipped",
			"key", key, "want", docType, "got", item.Doc[c.typeField])
		return false, nil
	}

	changed, err := fn(item.Doc)
	if err != nil || !changed {
		return false, err
	}

	t := c.begin(OpKVReplace, key, nil, 0)
	_, err = c.kv.Replace(ctx, key, item.Doc, item.CAS)
	if err := t.done(ctx, 1, err); err != nil {
		if dberr.IsNotFound(err) {
			c.logger.WarnContext(ctx, "document removed during mutation, skipped", "key", key)
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Push appends values to the array at column (a dotted path). With unique
// set, values already present are skipped. An absent field starts empty.
// docType restricts the write as in Mutate.
func (c *Connection) Push(ctx context.Context, docType, key, column string, values []any, unique bool) (bool, error) {
	return c.Mutate(ctx, docType, key, func(doc value.Document) (bool, error) {
		arr, err := arrayAt(doc, key, column)
		if err != nil {
			return false, err
		}
		changed := false
		for _, v := range values {
			if unique && containsValue(arr, v) {
				continue
			}
			arr = append(arr, v)
			changed = true
		}
		if changed {
			value.Assign(doc, column, arr)
		}
		return changed, nil
	})
}

// Pull removes every element equal to one of values from the array at
// column.
func (c *Connection) Pull(ctx context.Context, docType, key, column string, values []any) (bool, error) {
	return c.Mutate(ctx, docType, key, func(doc value.Document) (bool, error) {
		arr, err := arrayAt(doc, key, column)
		if err != nil {
			return false, err
		}
		kept := make([]any, 0, len(arr))
		for _, elem := range arr {
			if containsValue(values, elem) {
				continue
			}
			kept = append(kept, elem)
		}
		if len(kept) == len(arr) {
			return false, nil
		}
		value.Assign(doc, column, kept)
		return true, nil
	})
}

func arrayAt(doc value.Document, key, column string) ([]any, error) {
	cur, ok := value.Lookup(doc, column)
	if !ok || cur == nil {
		return nil, nil
	}
	arr, ok := cur.([]any)
	if !ok {
		return nil, errNotArray(key, column, cur)
	}
	return append([]any(nil), arr...), nil
}

func containsValue(arr []any, v any) bool {
	for _, elem := range arr {
		if value.Equal(elem, v) {
			return true
		}
	}
	return false
}
