package n1ql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/n1qlorm/internal/dberr"
	"github.com/roach88/n1qlorm/internal/value"
)

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "name", want: "`name`"},
		{in: "*", want: "*"},
		{in: "`name`", want: "`name`"},
		{in: "a`b", want: "`a``b`"},
		{in: "address.city", want: "`address`.`city`"},
		{in: "a.b.c", want: "`a`.`b`.`c`"},
		{in: "default.*", want: "`default`.*"},
		{in: "`a`.`b`", want: "`a`.`b`"},
		{in: "`a.b`", want: "`a.b`"},
		{in: "name as n", want: "`name as n`"},
		{in: "first-name", want: "`first-name`"},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, QuoteIdentifier(tc.in))
		})
	}
}

func TestQuoteProjection(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "name as n", want: "`name` as `n`"},
		{in: "price AS cost", want: "`price` as `cost`"},
		{in: "address.city as city", want: "`address`.`city` as `city`"},
		{in: "`a as b`", want: "`a as b`"},
		{in: "name", want: "`name`"},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, Quoter{}.Projection(tc.in))
		})
	}
}

func TestQuoteIdentifier_Idempotent(t *testing.T) {
	inputs := []string{"name", "a.b", "x`y", "with space", "`pre`", "_id", "select", "a.b as c"}
	for _, q := range []Quoter{{}, {Minimal: true}} {
		for _, in := range inputs {
			once := q.Identifier(in)
			assert.Equal(t, once, q.Identifier(once), "minimal=%v input=%q", q.Minimal, in)
		}
	}
}

func TestQuoteIdentifier_ReservedAlwaysWrapped(t *testing.T) {
	words := ReservedWords()
	require.Greater(t, len(words), 150)

	for _, q := range []Quoter{{}, {Minimal: true}} {
		for _, w := range words {
			for _, variant := range []string{w, strings.ToUpper(w), strings.ToUpper(w[:1]) + w[1:]} {
				got := q.Identifier(variant)
				assert.Equal(t, "`"+variant+"`", got, "minimal=%v", q.Minimal)
			}
		}
	}
}

func TestMinimalQuoter(t *testing.T) {
	q := Quoter{Minimal: true}

	assert.Equal(t, "name", q.Identifier("name"))
	assert.Equal(t, "address.city", q.Identifier("address.city"))
	assert.Equal(t, "`user`.name", q.Identifier("user.name"))
	assert.Equal(t, "`build`", q.Identifier("build"))
	assert.Equal(t, "`PASSWORD`", q.Identifier("PASSWORD"))
	assert.Equal(t, "`9lives`", q.Identifier("9lives"))
}

func TestIsReserved(t *testing.T) {
	assert.True(t, IsReserved("build"))
	assert.True(t, IsReserved("Build"))
	assert.True(t, IsReserved("PASSWORD"))
	assert.False(t, IsReserved("knife"))
	assert.False(t, IsReserved(""))
}

func TestQuoteValue(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{name: "string", in: "knife", want: `"knife"`},
		{name: "number", in: 3, want: `3`},
		{name: "null", in: nil, want: `null`},
		{name: "array", in: []any{1, "a"}, want: `[1,"a"]`},
		{name: "object strips missing", in: map[string]any{"a": 1, "b": value.Missing}, want: `{"a":1}`},
		{name: "no html escape", in: "<a&b>", want: `"<a&b>"`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := QuoteValue(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestQuoteValue_Cycle(t *testing.T) {
	cyclic := []any{nil}
	cyclic[0] = cyclic

	_, err := QuoteValue(cyclic)

	require.Error(t, err)
	assert.True(t, dberr.IsSerialization(err))
}
