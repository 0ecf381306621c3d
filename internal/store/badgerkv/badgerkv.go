// Package badgerkv implements store.KeyValue on an embedded BadgerDB.
//
// It backs the local CLI mode and integration tests. There is no query
// service: a Connection built on it runs key-value operations only.
//
// Each value is an 8-byte big-endian CAS followed by the JSON body. CAS
// values come from a counter seeded with the wall clock at open, so tokens
// issued after a restart never repeat earlier ones. Read-check-write
// sequences run in one badger transaction; a concurrent commit on the same
// key surfaces as CONFLICT.
package badgerkv

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/roach88/n1qlorm/internal/dberr"
	"github.com/roach88/n1qlorm/internal/store"
	"github.com/roach88/n1qlorm/internal/value"
)

const casSize = 8

// Store is a store.KeyValue backed by BadgerDB.
//
// Thread-safety: safe for concurrent use.
type Store struct {
	db     *badger.DB
	cas    atomic.Uint64
	logger *slog.Logger
}

var _ store.KeyValue = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Open opens the database at path. An empty path opens an in-memory
// database.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	bopts := badger.DefaultOptions(path)
	if path == "" {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts.Logger = nil
	bopts.NumVersionsToKeep = 1

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger %q: %w", path, err)
	}
	s.db = db
	s.cas.Store(uint64(time.Now().UnixNano()))
	s.logger.Debug("badger store opened", "path", path, "in_memory", path == "")
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) nextCAS() store.CAS {
	return store.CAS(s.cas.Add(1))
}

func encodeEntry(cas store.CAS, doc value.Document) ([]byte, error) {
	body, err := value.Encode(doc)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, casSize+len(body))
	binary.BigEndian.PutUint64(buf, uint64(cas))
	copy(buf[casSize:], body)
	return buf, nil
}

func decodeEntry(key string, raw []byte) (*store.Item, error) {
	if len(raw) < casSize {
		return nil, dberr.New(dberr.CodeSerialization, "entry %q: %d bytes", key, len(raw))
	}
	doc, err := value.Decode(raw[casSize:])
	if err != nil {
		return nil, err
	}
	return &store.Item{
		Key: key,
		Doc: doc,
		CAS: store.CAS(binary.BigEndian.Uint64(raw)),
	}, nil
}

// read loads key inside txn. A missing key yields (nil, nil).
func read(txn *badger.Txn, key string) (*store.Item, error) {
	it, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	raw, err := it.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	return decodeEntry(key, raw)
}

func notFound(key string) error {
	return dberr.New(dberr.CodeNotFound, "document %q not found", key)
}

// Get implements store.KeyValue.
func (s *Store) Get(ctx context.Context, key string) (*store.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify(err, "get %q", key)
	}
	var item *store.Item
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		item, err = read(txn, key)
		return err
	})
	if err != nil {
		return nil, classify(err, "get %q", key)
	}
	if item == nil {
		return nil, notFound(key)
	}
	return item, nil
}

// write runs check against the current item (nil when absent) and stores
// doc under a new CAS if check passes.
func (s *Store) write(ctx context.Context, op, key string, doc value.Document, check func(cur *store.Item) error) (store.CAS, error) {
	if err := ctx.Err(); err != nil {
		return 0, classify(err, "%s %q", op, key)
	}
	cas := s.nextCAS()
	entry, err := encodeEntry(cas, doc)
	if err != nil {
		return 0, err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if check != nil {
			cur, err := read(txn, key)
			if err != nil {
				return err
			}
			if err := check(cur); err != nil {
				return err
			}
		}
		return txn.Set([]byte(key), entry)
	})
	if err != nil {
		return 0, classify(err, "%s %q", op, key)
	}
	return cas, nil
}

// Upsert implements store.KeyValue.
func (s *Store) Upsert(ctx context.Context, key string, doc value.Document) (store.CAS, error) {
	return s.write(ctx, "upsert", key, doc, nil)
}

// Insert implements store.KeyValue.
func (s *Store) Insert(ctx context.Context, key string, doc value.Document) (store.CAS, error) {
	return s.write(ctx, "insert", key, doc, func(cur *store.Item) error {
		if cur != nil {
			return dberr.New(dberr.CodeConstraint, "document %q exists", key)
		}
		return nil
	})
}

// Replace implements store.KeyValue.
func (s *Store) Replace(ctx context.Context, key string, doc value.Document, cas store.CAS) (store.CAS, error) {
	return s.write(ctx, "replace", key, doc, func(cur *store.Item) error {
		if cur == nil {
			return notFound(key)
		}
		if cur.CAS != cas {
			return dberr.New(dberr.CodeConflict, "document %q: cas %d, have %d", key, cas, cur.CAS)
		}
		return nil
	})
}

// Remove implements store.KeyValue.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return classify(err, "remove %q", key)
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		cur, err := read(txn, key)
		if err != nil {
			return err
		}
		if cur == nil {
			return notFound(key)
		}
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return classify(err, "remove %q", key)
	}
	return nil
}

// Keys returns up to limit keys starting with prefix, in key order. A
// limit of 0 returns all of them.
func (s *Store) Keys(ctx context.Context, prefix string, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify(err, "scan %q", prefix)
	}
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(prefix)); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
			if limit > 0 && len(keys) == limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, classify(err, "scan %q", prefix)
	}
	return keys, nil
}

// classify maps badger errors onto dberr codes. Errors that already carry
// a code pass through.
func classify(err error, format string, args ...any) error {
	if dberr.CodeOf(err) != "" {
		return err
	}
	code := dberr.CodeTransient
	switch {
	case errors.Is(err, badger.ErrConflict):
		code = dberr.CodeConflict
	case errors.Is(err, badger.ErrDBClosed):
		code = dberr.CodeUnavailable
	case errors.Is(err, badger.ErrEmptyKey), errors.Is(err, badger.ErrInvalidKey):
		code = dberr.CodeMisuse
	}
	return dberr.Wrap(code, err, format, args...)
}
