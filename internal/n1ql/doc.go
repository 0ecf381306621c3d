// Package n1ql compiles query states into N1QL text.
//
// Compilation is pure: a Grammar reads a queryir.State and returns a
// Statement (text plus positional values) or an error, and never touches
// the network. Errors from compilation are always reported before any
// execution is attempted.
//
// Quoting wraps every identifier segment in backticks, doubling embedded
// backticks; reserved words are always quoted, also under the Minimal
// quoter. The native key pseudo-column _id is rewritten to
// meta(`bucket`).`id` in projections and predicates alike.
//
// Example:
//
//	s := queryir.New("default")
//	s.SetTarget("items")
//	s.AddPredicate(&queryir.Basic{Column: "name", Operator: "=", Value: "knife"}, queryir.BindWhere, "knife")
//	stmt, _ := n1ql.NewGrammar().CompileSelect(s)
//	// select `default`.*, meta(`default`).`id` as `_id` from `default`
//	//   where `eloquent_type` = ? and `name` = ?
//
// ApplyBindings offers the inline parameter mode: placeholders are replaced
// by JSON literals, skipping quoted identifiers and string literals.
package n1ql
