// Package queryir holds the in-progress representation of one N1QL query:
// target keyspace and document type, predicates, projections, ordering,
// pagination, the access path and positional bindings.
//
// A State is created per logical query, including every nested sub-query
// used inside a grouped boolean expression, and is owned by exactly one
// caller. It carries no locks.
//
// SEALED PREDICATES:
//
// Predicate is a sealed interface using the marker method pattern, so the
// grammar can switch exhaustively over the predicate kinds:
//
//	switch p := pred.(type) {
//	case *Basic:    // col op ?
//	case *In:       // col [not] in [?, ?]
//	case *InSub:    // col [not] in (select raw ...)
//	case *Between:  // col [not] between ? and ?
//	case *Null:     // (col is null or col is missing)
//	case *Raw:      // verbatim text with its own placeholders
//	case *AnyIn:    // any v in col satisfies v in [?, ?] end
//	case *Column:   // col op col
//	case *Nested:   // ( ...sub-state predicates... )
//	}
//
// ACCESS PATH:
//
// The access path is a small state machine:
//
//	Unset --UseKeys--> KeyMode  --UseKeys-->  KeyMode
//	Unset --UseIndex-> IndexMode --UseIndex-> IndexMode
//	KeyMode --UseIndex--> error (CONFLICTING_ACCESS_PATH)
//	IndexMode --UseKeys--> error (CONFLICTING_ACCESS_PATH)
//
// Validate re-checks the same rule at compile time, together with index
// kinds, so a State assembled by hand cannot bypass it.
//
// BINDINGS:
//
// Positional values are stored per clause category (select, where, having)
// in the order the builder received them. Flat returns them in statement
// order, which matches the left-to-right order of "?" placeholders in the
// compiled SELECT.
package queryir
