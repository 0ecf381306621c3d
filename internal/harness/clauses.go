package harness

import (
	"fmt"

	"github.com/roach88/n1qlorm/internal/builder"
	"github.com/roach88/n1qlorm/internal/engine"
)

// Build creates the builder a query describes. Clause errors that the
// builder itself detects are recorded on the builder, not returned;
// malformed clause arguments are returned.
func Build(conn *engine.Connection, q Query) (*builder.Builder, error) {
	b := builder.From(conn, q.From)
	for i, c := range q.Clauses {
		name, arg, err := c.name()
		if err != nil {
			return nil, err
		}
		if err := applyClause(b, name, arg); err != nil {
			return nil, fmt.Errorf("clauses[%d] %s: %w", i, name, err)
		}
	}
	return b, nil
}

func applyClause(b *builder.Builder, name string, arg any) error {
	a := argListOf(arg)
	switch name {
	case "where", "or_where":
		col, err := a.str(0)
		if err != nil {
			return err
		}
		if len(a) < 2 || len(a) > 3 {
			return fmt.Errorf("want [column, value] or [column, operator, value]")
		}
		if name == "where" {
			b.Where(col, a[1:]...)
		} else {
			b.OrWhere(col, a[1:]...)
		}
	case "where_in", "where_not_in", "or_where_in", "where_any_in":
		col, err := a.str(0)
		if err != nil {
			return err
		}
		values, err := a.list(1)
		if err != nil {
			return err
		}
		switch name {
		case "where_in":
			b.WhereIn(col, values...)
		case "where_not_in":
			b.WhereNotIn(col, values...)
		case "or_where_in":
			b.OrWhereIn(col, values...)
		default:
			b.WhereAnyIn(col, values...)
		}
	case "where_between", "where_not_between":
		col, err := a.str(0)
		if err != nil {
			return err
		}
		if len(a) != 3 {
			return fmt.Errorf("want [column, low, high]")
		}
		if name == "where_between" {
			b.WhereBetween(col, a[1], a[2])
		} else {
			b.WhereNotBetween(col, a[1], a[2])
		}
	case "where_null", "where_not_null":
		col, err := a.str(0)
		if err != nil {
			return err
		}
		if name == "where_null" {
			b.WhereNull(col)
		} else {
			b.WhereNotNull(col)
		}
	case "where_column":
		cols, err := a.strs()
		if err != nil || len(cols) != 3 {
			return fmt.Errorf("want [first, operator, second]")
		}
		b.WhereColumn(cols[0], cols[1], cols[2])
	case "where_raw":
		sql, err := a.str(0)
		if err != nil {
			return err
		}
		values, err := a.list(1)
		if err != nil {
			return err
		}
		b.WhereRaw(sql, values...)
	case "use_keys":
		keys, err := a.strs()
		if err != nil {
			return err
		}
		b.UseKeys(keys...)
	case "use_index":
		idx, err := a.strs()
		if err != nil || len(idx) != 2 {
			return fmt.Errorf("want [name, kind]")
		}
		b.UseIndex(idx[0], idx[1])
	case "select", "add_select", "group_by", "returning":
		cols, err := a.strs()
		if err != nil {
			return err
		}
		switch name {
		case "select":
			b.Select(cols...)
		case "add_select":
			b.AddSelect(cols...)
		case "group_by":
			b.GroupBy(cols...)
		default:
			b.Returning(cols...)
		}
	case "distinct":
		b.Distinct()
	case "having":
		col, err := a.str(0)
		if err != nil {
			return err
		}
		op, err := a.str(1)
		if err != nil || len(a) != 3 {
			return fmt.Errorf("want [column, operator, value]")
		}
		b.Having(col, op, a[2])
	case "order_by":
		col, err := a.str(0)
		if err != nil {
			return err
		}
		dir := "asc"
		if len(a) > 1 {
			if dir, err = a.str(1); err != nil {
				return err
			}
		}
		b.OrderBy(col, dir)
	case "order_by_raw":
		sql, err := a.str(0)
		if err != nil {
			return err
		}
		b.OrderByRaw(sql)
	case "limit", "offset":
		n, err := a.int(0)
		if err != nil {
			return err
		}
		if name == "limit" {
			b.Limit(n)
		} else {
			b.Offset(n)
		}
	case "for_page":
		page, err := a.int(0)
		if err != nil {
			return err
		}
		per, err := a.int(1)
		if err != nil {
			return err
		}
		b.ForPage(page, per)
	case "nested", "or_nested":
		var inner []Clause
		for _, c := range a {
			m, ok := c.(map[string]any)
			if !ok {
				return fmt.Errorf("nested clauses must be maps, got %T", c)
			}
			inner = append(inner, Clause(m))
		}
		var ferr error
		fn := func(q *builder.Builder) {
			for _, c := range inner {
				n, v, err := c.name()
				if err == nil {
					err = applyClause(q, n, v)
				}
				if err != nil && ferr == nil {
					ferr = err
				}
			}
		}
		if name == "nested" {
			b.WhereNested(fn)
		} else {
			b.OrWhereNested(fn)
		}
		return ferr
	default:
		return fmt.Errorf("unknown clause %q", name)
	}
	return nil
}

// argList is a clause argument: a YAML list, or a scalar treated as a
// one-element list.
type argList []any

func argListOf(v any) argList { return argList(asList(v)) }

func asList(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	default:
		return []any{v}
	}
}

func (a argList) str(i int) (string, error) {
	if i >= len(a) {
		return "", fmt.Errorf("missing argument %d", i)
	}
	s, ok := a[i].(string)
	if !ok {
		return "", fmt.Errorf("argument %d: want string, got %T", i, a[i])
	}
	return s, nil
}

func (a argList) int(i int) (int, error) {
	if i >= len(a) {
		return 0, fmt.Errorf("missing argument %d", i)
	}
	n, ok := a[i].(int)
	if !ok {
		return 0, fmt.Errorf("argument %d: want integer, got %T", i, a[i])
	}
	return n, nil
}

func (a argList) list(i int) ([]any, error) {
	if i >= len(a) {
		return nil, nil
	}
	return asList(a[i]), nil
}

func (a argList) strs() ([]string, error) {
	out := make([]string, len(a))
	for i := range a {
		s, err := a.str(i)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}
