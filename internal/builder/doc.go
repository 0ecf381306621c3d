// Package builder is the fluent query API.
//
//	items, err := builder.From(conn, "items").
//		Where("qty", ">", 0).
//		WhereAnyIn("tags", "kitchen").
//		OrderBy("name", "asc").
//		Get(ctx)
//
// A Builder targets one document type. From adds the discriminator filter
// `eloquent_type` = <type> as the first predicate; nested groups built
// with WhereNested start without it.
//
// # Access paths
//
// UseKeys and UseIndex are mutually exclusive; the second one records a
// CONFLICTING_ACCESS_PATH error. Equality on "_id" is turned into USE
// KEYS. A key-scoped select with no other filter runs as key-value reads,
// skipping keys that do not exist or hold another type.
//
// # Errors
//
// Clause methods never return errors. The first one is kept and returned
// by every terminal method (Get, Count, Update, ToSQL, ...) before any
// statement is compiled or sent.
//
// # Mutations
//
// Insert writes through the key-value API. Update, Unset, UpdateEmbedded
// and Delete compile statements, except that Delete of known keys removes
// them directly. Push and Pull are read-modify-write cycles guarded by CAS;
// they are not atomic across documents.
package builder
