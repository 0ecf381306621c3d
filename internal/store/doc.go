// Package store defines the contracts between the execution adapter and a
// document store: a key-value API for point reads and writes, and a query
// API that runs N1QL text.
//
// # Key-value
//
// KeyValue operations address one document by its store-native key. Every
// read returns a CAS token; Replace requires the token of the version it
// overwrites and fails with a CONFLICT error when the document changed in
// between. Missing keys are reported as NOT_FOUND.
//
// # Query
//
// Querier runs compiled statements. Results are materialized in full before
// they are returned; there are no cursors. Bindings travel as positional
// parameters unless the caller has already inlined them into the text.
//
// # Consistency
//
// NotBounded and RequestPlus mirror the query service's scan consistency
// levels. RequestPlus waits for index updates up to the time of the
// request and is the default.
//
// Implementations live in sub-packages: couchbase (gocb) for a real
// cluster and badgerkv for an embedded key-value store used by tests and
// the local CLI backend.
package store
