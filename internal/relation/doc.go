// Package relation maps the six supported relation kinds onto builder
// queries and key-value mutations.
//
// Every relation is declared with an explicit name. The kinds are closed:
//
//	OwnedArrayMembership   parent holds an array of related keys
//	EmbeddedOne            parent holds the related object in a field
//	EmbeddedMany           parent holds an array of related objects
//	NormalizedHasMany      related documents hold the parent key in a field
//	NormalizedBelongsTo    parent holds the related key in a field
//	NormalizedBelongsToMany related documents hold an array of parent keys
//
// Load reads the related documents of one parent; Eager reads them for a
// batch of parents with one statement (or one multi-key read) and groups
// them by parent key. Writes to a single parent or related document go
// through Connection.Mutate and are CAS-guarded.
package relation
