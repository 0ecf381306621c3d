package relation

import (
	"strings"

	"github.com/roach88/n1qlorm/internal/dberr"
)

// Kind identifies a relation kind.
type Kind int

const (
	KindOwnedArray Kind = iota + 1
	KindEmbeddedOne
	KindEmbeddedMany
	KindHasMany
	KindBelongsTo
	KindBelongsToMany
)

var kindNames = map[Kind]string{
	KindOwnedArray:    "owned_array",
	KindEmbeddedOne:   "embeds_one",
	KindEmbeddedMany:  "embeds_many",
	KindHasMany:       "has_many",
	KindBelongsTo:     "belongs_to",
	KindBelongsToMany: "belongs_to_many",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Embedded reports whether related documents live inside the parent.
func (k Kind) Embedded() bool {
	return k == KindEmbeddedOne || k == KindEmbeddedMany
}

// Single reports whether the relation resolves to at most one document.
func (k Kind) Single() bool {
	return k == KindEmbeddedOne || k == KindBelongsTo
}

// ParseKind parses a kind name as written in model declarations.
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, dberr.New(dberr.CodeMisuse, "unknown relation kind %q", s)
}
