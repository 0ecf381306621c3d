package builder

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/n1qlorm/internal/n1ql"
	"github.com/roach88/n1qlorm/internal/queryir"
)

// Where adds a comparison. It takes (column, value) for equality or
// (column, operator, value).
//
// A nil value with "=" or "is" becomes a null test; with "!=", "<>" or
// "is not" a not-null test.
//
// Equality on "_id" joined with and is served as USE KEYS instead of a
// predicate. Other comparisons on "_id", and any inside a nested group,
// compare the meta id.
func (b *Builder) Where(column string, args ...any) *Builder {
	return b.where(column, queryir.And, args)
}

// OrWhere is Where joined with or.
func (b *Builder) OrWhere(column string, args ...any) *Builder {
	return b.where(column, queryir.Or, args)
}

func (b *Builder) where(column string, conj queryir.Conjunction, args []any) *Builder {
	var (
		op string
		v  any
	)
	switch len(args) {
	case 1:
		op, v = "=", args[0]
	case 2:
		s, ok := args[0].(string)
		if !ok {
			return b.misuse("where %q: operator must be a string, got %T", column, args[0])
		}
		op, v = normalizeOperator(s), args[1]
	default:
		return b.misuse("where %q: want value or operator and value, got %d arguments", column, len(args))
	}
	if !queryir.ValidOperator(op) {
		return b.misuse("where %q: unsupported operator %q", column, op)
	}

	if column == queryir.NativeKey && isEquality(op) && conj == queryir.And && v != nil && !b.group {
		return b.UseKeys(keyStrings(v)...)
	}

	if v == nil {
		switch op {
		case "=", "==", "is":
			return b.addNull(column, false, conj)
		case "!=", "<>", "is not":
			return b.addNull(column, true, conj)
		}
	}

	b.state.AddPredicate(&queryir.Basic{
		Column:      column,
		Operator:    op,
		Value:       v,
		Conjunction: conj,
	}, queryir.BindWhere, v)
	return b
}

// WhereIn adds `column in [...]`. Slices among values are flattened, so an
// array-of-ids attribute can be passed directly.
func (b *Builder) WhereIn(column string, values ...any) *Builder {
	return b.addIn(column, values, false, queryir.And)
}

// WhereNotIn adds `column not in [...]`.
func (b *Builder) WhereNotIn(column string, values ...any) *Builder {
	return b.addIn(column, values, true, queryir.And)
}

// OrWhereIn is WhereIn joined with or.
func (b *Builder) OrWhereIn(column string, values ...any) *Builder {
	return b.addIn(column, values, false, queryir.Or)
}

// OrWhereNotIn is WhereNotIn joined with or.
func (b *Builder) OrWhereNotIn(column string, values ...any) *Builder {
	return b.addIn(column, values, true, queryir.Or)
}

func (b *Builder) addIn(column string, values []any, not bool, conj queryir.Conjunction) *Builder {
	flat := Flatten(values...)
	b.state.AddPredicate(&queryir.In{
		Column:      column,
		Values:      flat,
		Not:         not,
		Conjunction: conj,
	}, queryir.BindWhere, flat...)
	return b
}

// WhereBetween adds `column between ? and ?`.
func (b *Builder) WhereBetween(column string, low, high any) *Builder {
	return b.addBetween(column, low, high, false, queryir.And)
}

// WhereNotBetween adds `column not between ? and ?`.
func (b *Builder) WhereNotBetween(column string, low, high any) *Builder {
	return b.addBetween(column, low, high, true, queryir.And)
}

// OrWhereBetween is WhereBetween joined with or.
func (b *Builder) OrWhereBetween(column string, low, high any) *Builder {
	return b.addBetween(column, low, high, false, queryir.Or)
}

func (b *Builder) addBetween(column string, low, high any, not bool, conj queryir.Conjunction) *Builder {
	b.state.AddPredicate(&queryir.Between{
		Column:      column,
		Low:         low,
		High:        high,
		Not:         not,
		Conjunction: conj,
	}, queryir.BindWhere, low, high)
	return b
}

// WhereNull matches documents where column is null or absent.
func (b *Builder) WhereNull(column string) *Builder {
	return b.addNull(column, false, queryir.And)
}

// WhereNotNull matches documents where column is present and not null.
func (b *Builder) WhereNotNull(column string) *Builder {
	return b.addNull(column, true, queryir.And)
}

// OrWhereNull is WhereNull joined with or.
func (b *Builder) OrWhereNull(column string) *Builder {
	return b.addNull(column, false, queryir.Or)
}

// OrWhereNotNull is WhereNotNull joined with or.
func (b *Builder) OrWhereNotNull(column string) *Builder {
	return b.addNull(column, true, queryir.Or)
}

func (b *Builder) addNull(column string, not bool, conj queryir.Conjunction) *Builder {
	b.state.AddPredicate(&queryir.Null{Column: column, Not: not, Conjunction: conj}, queryir.BindWhere)
	return b
}

// WhereAnyIn matches documents whose array field column holds at least one
// of values.
func (b *Builder) WhereAnyIn(column string, values ...any) *Builder {
	return b.addAnyIn(column, values, queryir.And)
}

// OrWhereAnyIn is WhereAnyIn joined with or.
func (b *Builder) OrWhereAnyIn(column string, values ...any) *Builder {
	return b.addAnyIn(column, values, queryir.Or)
}

func (b *Builder) addAnyIn(column string, values []any, conj queryir.Conjunction) *Builder {
	flat := Flatten(values...)
	newVar := n1ql.RandomVar
	if g := b.conn.Grammar(); g.NewVar != nil {
		newVar = g.NewVar
	}
	b.state.AddPredicate(&queryir.AnyIn{
		Column:      column,
		Values:      flat,
		Var:         newVar(),
		Conjunction: conj,
	}, queryir.BindWhere, flat...)
	return b
}

// WhereColumn compares two fields.
func (b *Builder) WhereColumn(first, operator, second string) *Builder {
	return b.addColumn(first, operator, second, queryir.And)
}

// OrWhereColumn is WhereColumn joined with or.
func (b *Builder) OrWhereColumn(first, operator, second string) *Builder {
	return b.addColumn(first, operator, second, queryir.Or)
}

func (b *Builder) addColumn(first, operator, second string, conj queryir.Conjunction) *Builder {
	op := normalizeOperator(operator)
	if !queryir.ValidOperator(op) {
		return b.misuse("where column %q: unsupported operator %q", first, operator)
	}
	b.state.AddPredicate(&queryir.Column{First: first, Operator: op, Second: second, Conjunction: conj}, queryir.BindWhere)
	return b
}

// WhereNested groups the predicates added by fn in parentheses. The nested
// builder has no discriminator filter. An empty group adds nothing.
func (b *Builder) WhereNested(fn func(q *Builder)) *Builder {
	return b.addNested(fn, queryir.And)
}

// OrWhereNested is WhereNested joined with or.
func (b *Builder) OrWhereNested(fn func(q *Builder)) *Builder {
	return b.addNested(fn, queryir.Or)
}

func (b *Builder) addNested(fn func(q *Builder), conj queryir.Conjunction) *Builder {
	q := b.sub()
	q.group = true
	fn(q)
	if q.err != nil {
		return b.fail(q.err)
	}
	if len(q.state.Predicates) == 0 {
		return b
	}
	b.state.AddPredicate(&queryir.Nested{Sub: q.state, Conjunction: conj}, queryir.BindWhere, q.state.Flat()...)
	return b
}

// WhereInSub adds `column in (select raw <col> ...)`. fn builds the
// sub-select and must select exactly one column; call Type on it to filter
// by document type.
func (b *Builder) WhereInSub(column string, fn func(q *Builder)) *Builder {
	return b.addInSub(column, fn, false)
}

// WhereNotInSub adds `column not in (select raw <col> ...)`.
func (b *Builder) WhereNotInSub(column string, fn func(q *Builder)) *Builder {
	return b.addInSub(column, fn, true)
}

func (b *Builder) addInSub(column string, fn func(q *Builder), not bool) *Builder {
	q := b.sub()
	fn(q)
	if q.err != nil {
		return b.fail(q.err)
	}
	if len(q.state.Projections) != 1 {
		return b.misuse("sub-select for %q must select one column, has %d", column, len(q.state.Projections))
	}
	q.state.RawSelect = true
	b.state.AddPredicate(&queryir.InSub{
		Column:      column,
		Sub:         q.state,
		Not:         not,
		Conjunction: queryir.And,
	}, queryir.BindWhere, q.state.Flat()...)
	return b
}

// WhereRaw adds verbatim predicate text whose "?" placeholders consume
// values.
func (b *Builder) WhereRaw(sql string, values ...any) *Builder {
	return b.addRaw(sql, values, queryir.And)
}

// OrWhereRaw is WhereRaw joined with or.
func (b *Builder) OrWhereRaw(sql string, values ...any) *Builder {
	return b.addRaw(sql, values, queryir.Or)
}

func (b *Builder) addRaw(sql string, values []any, conj queryir.Conjunction) *Builder {
	if strings.TrimSpace(sql) == "" {
		return b.misuse("empty raw predicate")
	}
	b.state.AddPredicate(&queryir.Raw{SQL: sql, Values: values, Conjunction: conj}, queryir.BindWhere, values...)
	return b
}

// Flatten expands nested slices and arrays into one list. Byte slices are
// kept whole.
func Flatten(values ...any) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = flattenInto(out, v)
	}
	return out
}

func flattenInto(out []any, v any) []any {
	switch t := v.(type) {
	case nil:
		return append(out, nil)
	case []byte:
		return append(out, t)
	case []any:
		for _, e := range t {
			out = flattenInto(out, e)
		}
		return out
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return append(out, v)
	}
	for i := 0; i < rv.Len(); i++ {
		out = flattenInto(out, rv.Index(i).Interface())
	}
	return out
}

func normalizeOperator(op string) string {
	return strings.Join(strings.Fields(strings.ToLower(op)), " ")
}

func isEquality(op string) bool {
	return op == "=" || op == "=="
}

// keyStrings renders a key or list of keys as strings.
func keyStrings(v any) []string {
	flat := Flatten(v)
	keys := make([]string, len(flat))
	for i, k := range flat {
		if s, ok := k.(string); ok {
			keys[i] = s
			continue
		}
		keys[i] = fmt.Sprint(k)
	}
	return keys
}
