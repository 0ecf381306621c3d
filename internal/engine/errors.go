package engine

import "github.com/roach88/n1qlorm/internal/dberr"

// ErrNoQueryService is returned by N1QL operations on a connection created
// without a store.Querier.
var ErrNoQueryService = dberr.New(dberr.CodeUnavailable, "query service not configured for this backend")

// errNotArray reports a push or pull on a field holding a non-array value.
func errNotArray(key, column string, got any) error {
	return dberr.New(dberr.CodeMisuse, "document %q: field %q holds %T, not an array", key, column, got)
}
