package harness

import (
	"context"
	"fmt"

	"github.com/roach88/n1qlorm/internal/builder"
	"github.com/roach88/n1qlorm/internal/dberr"
	"github.com/roach88/n1qlorm/internal/value"
)

// execute runs one step. Errors raised by the builder or the connection
// are part of the step result; only malformed steps return an error.
func (h *Harness) execute(ctx context.Context, step Step) (StepResult, error) {
	sr := StepResult{Name: step.Name, Op: step.Op}
	b, err := Build(h.conn, step.Query)
	if err != nil {
		return sr, err
	}
	a := step.Args

	var (
		out     any
		rows    []value.Document
		opErr   error
		hasRows bool
	)
	switch step.Op {
	case "sql":
		sr.SQL, opErr = b.ToSQL()
		sr.Bindings = b.GetBindings()
	case "inline":
		sr.SQL, opErr = b.Inline()
	case "get":
		res, err := b.Get(ctx, a.Columns...)
		if err == nil {
			rows, hasRows = res.Rows, true
		}
		opErr = err
	case "first":
		doc, err := b.First(ctx, a.Columns...)
		if doc != nil {
			rows = []value.Document{doc}
		}
		hasRows, opErr = err == nil, err
	case "find":
		doc, err := b.Find(ctx, a.Key)
		if doc != nil {
			rows = []value.Document{doc}
		}
		hasRows, opErr = err == nil, err
	case "exists":
		out, opErr = b.Exists(ctx)
	case "value":
		out, opErr = b.Value(ctx, a.Column)
	case "pluck":
		out, opErr = b.Pluck(ctx, a.Column)
	case "count":
		out, opErr = b.Count(ctx)
	case "sum":
		out, opErr = b.Sum(ctx, a.Column)
	case "avg":
		out, opErr = b.Avg(ctx, a.Column)
	case "min":
		out, opErr = b.Min(ctx, a.Column)
	case "max":
		out, opErr = b.Max(ctx, a.Column)
	case "paginate":
		page, err := b.Paginate(ctx, a.PerPage, a.Page)
		if err == nil {
			rows, hasRows = page.Rows, true
			out = map[string]any{"total": page.Total, "last_page": page.LastPage()}
		}
		opErr = err
	case "insert":
		docs := make([]value.Document, len(a.Docs))
		for i, d := range a.Docs {
			docs[i] = value.Document(d)
		}
		opErr = b.Insert(ctx, docs...)
	case "insert_query":
		var doc value.Document
		if len(a.Docs) > 0 {
			doc = value.Document(a.Docs[0])
		}
		out, opErr = b.InsertViaQuery(ctx, doc)
	case "update":
		out, opErr = b.Update(ctx, withMissing(a.Set, a.Columns))
	case "update_embedded":
		out, opErr = b.UpdateEmbedded(ctx, a.Array, a.KeyField, a.Match, value.Document(a.Set))
	case "unset":
		out, opErr = b.Unset(ctx, a.Columns...)
	case "delete":
		out, opErr = b.Delete(ctx)
	case "push":
		out, opErr = b.Push(ctx, a.Column, a.Values, a.Unique)
	case "pull":
		out, opErr = b.Pull(ctx, a.Column, a.Values)
	case "load":
		rows, opErr = h.load(ctx, b, a)
		hasRows = opErr == nil
	default:
		return sr, fmt.Errorf("unknown op %q", step.Op)
	}

	if opErr != nil {
		sr.Error = string(dberr.CodeOf(opErr))
		if sr.Error == "" {
			sr.Error = opErr.Error()
		}
		return sr, nil
	}
	if hasRows {
		sr.Rows = make([]any, len(rows))
		for i, r := range rows {
			sr.Rows[i] = map[string]any(r)
		}
	}
	sr.Value = out
	return sr, nil
}

// withMissing adds a value.Missing entry for each column to unset.
func withMissing(set map[string]any, unset []string) value.Document {
	doc := make(value.Document, len(set)+len(unset))
	for k, v := range set {
		doc[k] = v
	}
	for _, c := range unset {
		doc[c] = value.Missing
	}
	return doc
}

// load runs the query and eager-loads the named relations of a model
// onto the rows.
func (h *Harness) load(ctx context.Context, b *builder.Builder, a Args) ([]value.Document, error) {
	m, ok := h.models.Model(a.Model)
	if !ok {
		return nil, dberr.New(dberr.CodeMisuse, "no model named %q", a.Model)
	}
	set, err := m.RelationSet()
	if err != nil {
		return nil, err
	}
	res, err := b.Get(ctx)
	if err != nil {
		return nil, err
	}
	if err := set.With(ctx, h.conn, res.Rows, a.With...); err != nil {
		return nil, err
	}
	return res.Rows, nil
}
