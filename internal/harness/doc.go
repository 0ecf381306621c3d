// Package harness runs YAML query scenarios through the builder and
// records every statement and key-value call they fire.
//
// A scenario seeds documents, scripts the query service's replies, and
// lists flow steps. Each step describes a builder (document type plus
// clause calls) and one terminal operation:
//
//	name: unset_by_key
//	description: unset compiles to a key-scoped UPDATE
//	seed:
//	  items::1: {eloquent_type: items, note1: x}
//	flow:
//	  - name: unset
//	    query:
//	      from: items
//	      clauses:
//	        - use_keys: [items::1]
//	    op: unset
//	    args: {columns: [note1]}
//	    expect:
//	      sql: "update `default` use keys \"items::1\" unset `note1` returning ..."
//
// Run executes a scenario against in-memory fakes with deterministic keys,
// variable names and clock, so the resulting trace can be compared with a
// golden file (RunWithGolden). RunOn executes the same steps against a
// connection on a real backend.
//
// Expectations check the compiled text, the bindings, the number of
// statements a step sent, row counts, returned values and error codes.
// Assertions run after the flow and check the trace order, statement
// counts, and stored documents.
package harness
