package n1ql

import "golang.org/x/text/cases"

// reserved holds the N1QL reserved words in lower case.
var reserved = toSet(
	"advise", "all", "alter", "analyze", "and", "any", "array", "as", "asc", "at",
	"begin", "between", "binary", "boolean", "break", "bucket", "build", "by",
	"call", "case", "cast", "cluster", "collate", "collection", "commit", "committed",
	"connect", "continue", "correlated", "cover", "create", "current",
	"database", "dataset", "datastore", "declare", "decrement", "delete", "derived",
	"desc", "describe", "distinct", "do", "drop",
	"each", "element", "else", "end", "every", "except", "exclude", "execute",
	"exists", "explain",
	"false", "fetch", "filter", "first", "flatten", "flatten_keys", "flush",
	"following", "for", "force", "from", "fts", "function",
	"golang", "grant", "group", "groups", "gsi",
	"hash", "having",
	"if", "ignore", "ilike", "in", "include", "increment", "index", "infer",
	"inline", "inner", "insert", "intersect", "into", "is", "isolation",
	"javascript", "join",
	"key", "keys", "keyspace", "known",
	"language", "last", "left", "let", "letting", "level", "like", "limit", "lsm",
	"map", "mapping", "matched", "materialized", "merge", "minus", "missing",
	"namespace", "nest", "nl", "no", "not", "nth_value", "null", "nulls", "number",
	"object", "offset", "on", "option", "options", "or", "order", "others",
	"outer", "over",
	"parse", "partition", "password", "path", "pool", "preceding", "prepare",
	"primary", "private", "privilege", "probe", "procedure", "public",
	"range", "raw", "realm", "reduce", "rename", "replace", "respect", "return",
	"returning", "revoke", "right", "role", "rollback", "row", "rows",
	"satisfies", "savepoint", "schema", "scope", "select", "self", "semi", "set",
	"show", "some", "start", "statistics", "string", "system",
	"then", "ties", "to", "tran", "transaction", "trigger", "true", "truncate",
	"unbounded", "under", "union", "unique", "unknown", "unnest", "unset",
	"update", "upsert", "use", "user", "using",
	"validate", "value", "valued", "values", "via", "view",
	"when", "where", "while", "window", "with", "within", "work",
	"xor",
)

func toSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// IsReserved reports whether name is a N1QL reserved word. The comparison
// is case-insensitive under Unicode case folding.
func IsReserved(name string) bool {
	_, ok := reserved[cases.Fold().String(name)]
	return ok
}

// ReservedWords returns the reserved words in lower case, unordered.
func ReservedWords() []string {
	out := make([]string, 0, len(reserved))
	for w := range reserved {
		out = append(out, w)
	}
	return out
}
