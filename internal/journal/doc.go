// Package journal keeps a durable SQLite log of the statements issued by the
// execution adapter, for the CLI history command and for post-mortem
// inspection.
//
// The journal is a QueryFired listener: attach it with
// engine.WithListener(j) and every N1QL statement and key-value call is
// appended with its bindings, consistency level, outcome and duration.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//
// Bindings are stored as JSON text. Values that cannot be encoded are
// stored as their %v rendering so a bad binding never drops a row.
package journal
