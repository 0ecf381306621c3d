// Package engine is the execution adapter between the query builder and a
// document store.
//
// A Connection owns one store handle (a store.KeyValue plus a
// store.Querier) and decides, per operation, which API to use:
//
//	operation        key-scoped, type filter only    otherwise
//	---------        ----------------------------    ---------
//	select / find    KV get (parallel for many keys) N1QL SELECT
//	insert           KV upsert                       KV upsert
//	delete           KV remove                       N1QL DELETE
//	update / unset   N1QL UPDATE                     N1QL UPDATE
//	push / pull      KV get + CAS replace            (per key)
//
// Compilation always happens before any I/O; a compile error never reaches
// the store.
//
// EVENTS:
//
// Every statement and key-value call is reported to the registered
// listeners as a QueryEvent after it completes, with its bindings,
// consistency level, outcome and duration. Events carry a monotonic
// sequence number from the connection's Sequence.
//
// CONCURRENCY:
//
// A Connection is safe for concurrent use; it holds no per-query state.
// Multi-key reads fan out over a bounded ants pool. Push and pull are
// read-modify-write cycles guarded by CAS: a concurrent writer makes them
// fail with a CONFLICT error instead of losing an update. Nothing is
// retried here.
package engine
