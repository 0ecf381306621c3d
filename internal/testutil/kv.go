package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/n1qlorm/internal/dberr"
	"github.com/roach88/n1qlorm/internal/store"
	"github.com/roach88/n1qlorm/internal/value"
)

// MemoryKV is an in-memory store.KeyValue for tests.
//
// Documents are cloned on the way in and out. Every write bumps a global
// CAS counter. Calls are recorded as "op key" strings.
type MemoryKV struct {
	mu    sync.Mutex
	docs  map[string]memEntry
	cas   uint64
	calls []string
	fail  map[string]error

	// BeforeReplace, when set, runs after a Replace has been requested and
	// before its CAS check. Tests use it to simulate a concurrent writer.
	BeforeReplace func(key string)
}

type memEntry struct {
	doc value.Document
	cas store.CAS
}

// NewMemoryKV creates an empty store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{docs: make(map[string]memEntry), fail: make(map[string]error)}
}

// Seed stores documents without recording calls.
func (m *MemoryKV) Seed(docs map[string]value.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, d := range docs {
		m.cas++
		m.docs[k] = memEntry{doc: d.Clone(), cas: store.CAS(m.cas)}
	}
}

// FailNext makes the next call of op ("get", "upsert", "insert",
// "replace", "remove") return err.
func (m *MemoryKV) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[op] = err
}

// Calls returns the recorded calls.
func (m *MemoryKV) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Keys returns the stored keys in order.
func (m *MemoryKV) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.docs))
	for k := range m.docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Doc returns a copy of the stored document, or nil.
func (m *MemoryKV) Doc(key string) value.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.docs[key]
	if !ok {
		return nil
	}
	return e.doc.Clone()
}

func (m *MemoryKV) enter(op, key string) error {
	m.calls = append(m.calls, op+" "+key)
	if err, ok := m.fail[op]; ok {
		delete(m.fail, op)
		return err
	}
	return nil
}

func (m *MemoryKV) put(key string, doc value.Document) (store.CAS, error) {
	stripped, ok := value.StripMissing(doc).(value.Document)
	if !ok {
		return 0, dberr.New(dberr.CodeSerialization, "document %q", key)
	}
	if _, err := value.Encode(stripped); err != nil {
		return 0, err
	}
	m.cas++
	m.docs[key] = memEntry{doc: stripped.Clone(), cas: store.CAS(m.cas)}
	return store.CAS(m.cas), nil
}

func notFound(key string) error {
	return dberr.New(dberr.CodeNotFound, "document %q not found", key)
}

// Get implements store.KeyValue.
func (m *MemoryKV) Get(_ context.Context, key string) (*store.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("get", key); err != nil {
		return nil, err
	}
	e, ok := m.docs[key]
	if !ok {
		return nil, notFound(key)
	}
	return &store.Item{Key: key, Doc: e.doc.Clone(), CAS: e.cas}, nil
}

// Upsert implements store.KeyValue.
func (m *MemoryKV) Upsert(_ context.Context, key string, doc value.Document) (store.CAS, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("upsert", key); err != nil {
		return 0, err
	}
	return m.put(key, doc)
}

// Insert implements store.KeyValue.
func (m *MemoryKV) Insert(_ context.Context, key string, doc value.Document) (store.CAS, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("insert", key); err != nil {
		return 0, err
	}
	if _, ok := m.docs[key]; ok {
		return 0, dberr.New(dberr.CodeConstraint, "document %q exists", key)
	}
	return m.put(key, doc)
}

// Replace implements store.KeyValue.
func (m *MemoryKV) Replace(_ context.Context, key string, doc value.Document, cas store.CAS) (store.CAS, error) {
	m.mu.Lock()
	if err := m.enter("replace", key); err != nil {
		m.mu.Unlock()
		return 0, err
	}
	hook := m.BeforeReplace
	m.mu.Unlock()

	if hook != nil {
		hook(key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.docs[key]
	if !ok {
		return 0, notFound(key)
	}
	if e.cas != cas {
		return 0, dberr.New(dberr.CodeConflict, "document %q: cas %d, have %d", key, cas, e.cas)
	}
	return m.put(key, doc)
}

// Remove implements store.KeyValue.
func (m *MemoryKV) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("remove", key); err != nil {
		return err
	}
	if _, ok := m.docs[key]; !ok {
		return notFound(key)
	}
	delete(m.docs, key)
	return nil
}

// String summarizes the store for failure messages.
func (m *MemoryKV) String() string {
	return fmt.Sprintf("MemoryKV%v", m.Keys())
}
