package builder

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/roach88/n1qlorm/internal/dberr"
	"github.com/roach88/n1qlorm/internal/queryir"
	"github.com/roach88/n1qlorm/internal/store"
	"github.com/roach88/n1qlorm/internal/value"
)

// Get runs the query and returns every row. columns, when given, replace
// the projection for this call only.
func (b *Builder) Get(ctx context.Context, columns ...string) (*store.Result, error) {
	if b.err != nil {
		return nil, b.err
	}
	s := b.state
	if len(columns) > 0 {
		s = s.Clone()
		s.Projections = append([]string(nil), columns...)
	}
	return b.conn.Select(ctx, s, b.run)
}

// First returns the first row, or nil when nothing matches.
func (b *Builder) First(ctx context.Context, columns ...string) (value.Document, error) {
	q := b.Clone().Limit(1)
	res, err := q.Get(ctx, columns...)
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 {
		return nil, nil
	}
	return res.Rows[0], nil
}

// Find returns the document stored under key, or nil when it does not
// exist or has another type.
func (b *Builder) Find(ctx context.Context, key string) (value.Document, error) {
	return b.Clone().UseKeys(key).First(ctx)
}

// FindMany returns the documents stored under keys, in key order. Missing
// keys are skipped.
func (b *Builder) FindMany(ctx context.Context, keys ...string) ([]value.Document, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	res, err := b.Clone().UseKeys(keys...).Get(ctx)
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

// aggregate runs fn over column and returns the single value, or nil when
// the service returned no row.
func (b *Builder) aggregate(ctx context.Context, fn, column string) (any, error) {
	if b.err != nil {
		return nil, b.err
	}
	if fn != "count" && (column == "" || column == "*") {
		return nil, dberr.New(dberr.CodeMisuse, "%s needs a column", fn)
	}
	s := b.state.Clone()
	s.Aggregate = &queryir.Aggregate{Function: fn, Column: column}
	s.Orders = nil
	s.Projections = nil
	res, err := b.conn.Select(ctx, s, b.run)
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 {
		return nil, nil
	}
	return res.Rows[0]["aggregate"], nil
}

// Count returns the number of matching documents.
func (b *Builder) Count(ctx context.Context) (int64, error) {
	v, err := b.aggregate(ctx, "count", "*")
	if err != nil {
		return 0, err
	}
	return toInt64(v)
}

// Sum returns the sum of column over matching documents.
func (b *Builder) Sum(ctx context.Context, column string) (float64, error) {
	v, err := b.aggregate(ctx, "sum", column)
	if err != nil {
		return 0, err
	}
	return toFloat64(v)
}

// Avg returns the mean of column, or 0 when nothing matches.
func (b *Builder) Avg(ctx context.Context, column string) (float64, error) {
	v, err := b.aggregate(ctx, "avg", column)
	if err != nil {
		return 0, err
	}
	return toFloat64(v)
}

// Min returns the smallest value of column, or nil when nothing matches.
func (b *Builder) Min(ctx context.Context, column string) (any, error) {
	return b.aggregate(ctx, "min", column)
}

// Max returns the largest value of column, or nil when nothing matches.
func (b *Builder) Max(ctx context.Context, column string) (any, error) {
	return b.aggregate(ctx, "max", column)
}

// Exists reports whether at least one document matches.
func (b *Builder) Exists(ctx context.Context) (bool, error) {
	if b.state.Mode() == queryir.AccessKeys {
		doc, err := b.First(ctx)
		return doc != nil, err
	}
	n, err := b.Count(ctx)
	return n > 0, err
}

// Value returns column of the first row, or nil.
func (b *Builder) Value(ctx context.Context, column string) (any, error) {
	doc, err := b.First(ctx, column)
	if err != nil || doc == nil {
		return nil, err
	}
	v, _ := value.Lookup(doc, lastSegment(column))
	return v, nil
}

// Pluck returns column of every row.
func (b *Builder) Pluck(ctx context.Context, column string) ([]any, error) {
	res, err := b.Get(ctx, column)
	if err != nil {
		return nil, err
	}
	field := lastSegment(column)
	out := make([]any, 0, len(res.Rows))
	for _, row := range res.Rows {
		v, _ := value.Lookup(row, field)
		out = append(out, v)
	}
	return out, nil
}

// lastSegment is the row key for a projected dotted path: the query
// service names `a`.`b` as "b".
func lastSegment(column string) string {
	if i := strings.LastIndex(column, "."); i >= 0 {
		return column[i+1:]
	}
	return column
}

// Page is one page of results.
type Page struct {
	Rows    []value.Document
	Total   uint64
	Page    int
	PerPage int
	Metrics store.Metrics
}

// LastPage is the number of the final page, at least 1.
func (p *Page) LastPage() int {
	if p.PerPage < 1 || p.Total == 0 {
		return 1
	}
	return int((p.Total + uint64(p.PerPage) - 1) / uint64(p.PerPage))
}

// Paginate returns page (from 1) of perPage rows and the total number of
// matching documents.
//
// A sorted query takes the total from the sort count reported with the
// page, with no second statement. Otherwise an empty first page has a
// total of zero, and any other page runs a count query.
func (b *Builder) Paginate(ctx context.Context, perPage, page int) (*Page, error) {
	q := b.Clone().ForPage(page, perPage)
	res, err := q.Get(ctx)
	if err != nil {
		return nil, err
	}
	p := &Page{Rows: res.Rows, Page: page, PerPage: perPage, Metrics: res.Metrics}

	switch {
	case len(b.state.Orders) > 0:
		p.Total = res.Metrics.SortCount
	case page == 1 && res.Metrics.ResultCount == 0 && len(res.Rows) == 0:
		p.Total = 0
	default:
		n, err := b.Count(ctx)
		if err != nil {
			return nil, err
		}
		p.Total = uint64(n)
	}
	return p, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return int64(n), nil
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case uint64:
		return int64(n), nil
	case json.Number:
		return n.Int64()
	default:
		return 0, dberr.New(dberr.CodeSerialization, "aggregate: unexpected %T", v)
	}
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	default:
		return 0, dberr.New(dberr.CodeSerialization, "aggregate: unexpected %T", v)
	}
}
