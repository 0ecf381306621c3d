package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/n1qlorm/internal/value"
)

// Consistency is the scan consistency requested for a query.
type Consistency int

const (
	// NotBounded returns whatever the indexes hold right now.
	NotBounded Consistency = 1
	// RequestPlus waits for indexes to catch up with the request time.
	RequestPlus Consistency = 2
)

// String returns the configuration spelling of c, or "" for the zero
// value used by key-value calls.
func (c Consistency) String() string {
	switch c {
	case 0:
		return ""
	case NotBounded:
		return "not_bounded"
	case RequestPlus:
		return "request_plus"
	default:
		return fmt.Sprintf("consistency(%d)", int(c))
	}
}

// ParseConsistency accepts "request_plus" or "not_bounded" in any case.
// An empty string yields RequestPlus.
func ParseConsistency(s string) (Consistency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "request_plus", "requestplus":
		return RequestPlus, nil
	case "not_bounded", "notbounded":
		return NotBounded, nil
	default:
		return 0, fmt.Errorf("unknown consistency %q", s)
	}
}

// CAS is an opaque document version token.
type CAS uint64

// Item is one document read through the key-value API.
type Item struct {
	Key string
	Doc value.Document
	CAS CAS
}

// KeyValue is the point-access API of a document store.
type KeyValue interface {
	// Get returns the document stored under key, or a NOT_FOUND error.
	Get(ctx context.Context, key string) (*Item, error)

	// Upsert creates or overwrites the document.
	Upsert(ctx context.Context, key string, doc value.Document) (CAS, error)

	// Insert creates the document, failing with CONSTRAINT if key exists.
	Insert(ctx context.Context, key string, doc value.Document) (CAS, error)

	// Replace overwrites the document if its CAS still equals cas.
	// A mismatch is a CONFLICT error, a missing key NOT_FOUND.
	Replace(ctx context.Context, key string, doc value.Document, cas CAS) (CAS, error)

	// Remove deletes the document, or returns NOT_FOUND.
	Remove(ctx context.Context, key string) error
}

// QueryOptions carries per-statement execution settings. Timeout is
// advisory and forwarded to the driver unchanged.
type QueryOptions struct {
	Bindings    []any
	Consistency Consistency
	Timeout     time.Duration
}

// Metrics are the execution metrics reported by the query service.
type Metrics struct {
	ElapsedTime   time.Duration
	ResultCount   uint64
	MutationCount uint64

	// SortCount is the number of documents that matched before LIMIT and
	// OFFSET; it is reported only for sorted queries.
	SortCount uint64
}

// Result is a fully materialized query response.
type Result struct {
	Rows    []value.Document
	Metrics Metrics
}

// Querier runs N1QL statements.
type Querier interface {
	Query(ctx context.Context, statement string, opts QueryOptions) (*Result, error)
}

// Backend is a complete document store handle.
type Backend interface {
	KeyValue
	Querier
	Close() error
}

// RowDocument converts one decoded query row into a Document. Rows that
// are not objects, as produced by "select raw", are wrapped under "value".
func RowDocument(row any) value.Document {
	switch r := row.(type) {
	case map[string]any:
		return value.Document(r)
	case value.Document:
		return r
	default:
		return value.Document{"value": r}
	}
}
