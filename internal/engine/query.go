package engine

import (
	"context"
	"time"

	"github.com/roach88/n1qlorm/internal/dberr"
	"github.com/roach88/n1qlorm/internal/n1ql"
	"github.com/roach88/n1qlorm/internal/queryir"
	"github.com/roach88/n1qlorm/internal/store"
	"github.com/roach88/n1qlorm/internal/value"
)

// RunOptions overrides connection defaults for one call. Zero values keep
// the defaults.
type RunOptions struct {
	Consistency store.Consistency
	Timeout     time.Duration
}

func (c *Connection) queryOptions(ro RunOptions) store.QueryOptions {
	opts := store.QueryOptions{Consistency: c.consistency, Timeout: c.timeout}
	if ro.Consistency != 0 {
		opts.Consistency = ro.Consistency
	}
	if ro.Timeout > 0 {
		opts.Timeout = ro.Timeout
	}
	return opts
}

// Run executes a compiled statement. In inline mode the bindings are
// substituted first; a binding that cannot be serialized fails before the
// statement is sent.
func (c *Connection) Run(ctx context.Context, op string, stmt n1ql.Statement, ro RunOptions) (*store.Result, error) {
	opts := c.queryOptions(ro)
	text := stmt.Text
	if c.inline {
		inlined, err := n1ql.Inline(stmt)
		if err != nil {
			return nil, dberr.WithStatement(err, stmt.Text)
		}
		text = inlined.Text
	} else {
		opts.Bindings = stmt.Bindings
	}

	t := c.begin(op, text, opts.Bindings, opts.Consistency)
	if c.querier == nil {
		return nil, t.done(ctx, 0, dberr.WithStatement(ErrNoQueryService, text))
	}
	res, err := c.querier.Query(ctx, text, opts)
	if err != nil {
		return nil, t.done(ctx, 0, dberr.WithStatement(err, text))
	}
	if res == nil {
		res = &store.Result{}
	}
	return res, t.done(ctx, uint64(len(res.Rows)), nil)
}

// Statement runs caller-provided N1QL text.
func (c *Connection) Statement(ctx context.Context, text string, bindings []any, ro RunOptions) (*store.Result, error) {
	return c.Run(ctx, OpRaw, n1ql.Statement{Text: text, Bindings: bindings}, ro)
}

// Select returns the documents matched by s.
//
// A key-scoped state whose only predicate is the type filter is served by
// key-value reads; everything else compiles to a SELECT.
func (c *Connection) Select(ctx context.Context, s *queryir.State, ro RunOptions) (*store.Result, error) {
	if err := queryir.Validate(s); err != nil {
		return nil, err
	}
	if keyReadable(s) {
		return c.getMany(ctx, s)
	}
	stmt, err := c.grammar.CompileSelect(s)
	if err != nil {
		return nil, err
	}
	if s.MatchesNothing {
		return emptyResult(), nil
	}
	return c.Run(ctx, OpSelect, stmt, ro)
}

// emptyResult answers a state that matches no document.
func emptyResult() *store.Result {
	return &store.Result{Rows: []value.Document{}}
}

// keyReadable reports whether s can be answered by key-value gets alone.
func keyReadable(s *queryir.State) bool {
	return s.Mode() == queryir.AccessKeys &&
		s.OnlyTypeFilter() &&
		len(s.Projections) == 0 &&
		s.Aggregate == nil &&
		len(s.Orders) == 0 &&
		len(s.Groups) == 0 &&
		len(s.Havings) == 0 &&
		!s.Distinct &&
		!s.RawSelect
}

// Update sets and unsets fields on every matched document.
func (c *Connection) Update(ctx context.Context, s *queryir.State, values value.Document, ro RunOptions) (*store.Result, error) {
	stmt, err := c.grammar.CompileUpdate(s, values)
	if err != nil {
		return nil, err
	}
	if s.MatchesNothing {
		return emptyResult(), nil
	}
	return c.Run(ctx, OpUpdate, stmt, ro)
}

// Unset removes fields from every matched document.
func (c *Connection) Unset(ctx context.Context, s *queryir.State, columns []string, ro RunOptions) (*store.Result, error) {
	stmt, err := c.grammar.CompileUnset(s, columns)
	if err != nil {
		return nil, err
	}
	if s.MatchesNothing {
		return emptyResult(), nil
	}
	return c.Run(ctx, OpUpdate, stmt, ro)
}

// UpdateEmbedded updates matching elements of an embedded array.
func (c *Connection) UpdateEmbedded(ctx context.Context, s *queryir.State, u n1ql.EmbeddedUpdate, ro RunOptions) (*store.Result, error) {
	stmt, err := c.grammar.CompileUpdateEmbedded(s, u)
	if err != nil {
		return nil, err
	}
	if s.MatchesNothing {
		return emptyResult(), nil
	}
	return c.Run(ctx, OpUpdate, stmt, ro)
}

// Delete removes the matched documents and returns how many were removed.
//
// A key-scoped state with only the type filter is served by key-value
// calls: each key is read to check its type and then removed. Keys that do
// not exist are skipped.
func (c *Connection) Delete(ctx context.Context, s *queryir.State, ro RunOptions) (int, error) {
	if err := queryir.Validate(s); err != nil {
		return 0, err
	}
	if keyReadable(s) && s.Limit == 0 && s.Offset == 0 {
		return c.removeMany(ctx, s)
	}
	stmt, err := c.grammar.CompileDelete(s)
	if err != nil {
		return 0, err
	}
	if s.MatchesNothing {
		return 0, nil
	}
	res, err := c.Run(ctx, OpDelete, stmt, ro)
	if err != nil {
		return 0, err
	}
	return len(res.Rows), nil
}

// InsertViaQuery runs the legacy whole-record INSERT statement and returns
// the document key.
func (c *Connection) InsertViaQuery(ctx context.Context, s *queryir.State, values value.Document, ro RunOptions) (string, error) {
	stmt, err := c.grammar.CompileLegacyInsert(s, values)
	if err != nil {
		return "", err
	}
	if _, err := c.Run(ctx, OpInsert, stmt, ro); err != nil {
		return "", err
	}
	return stmt.Key, nil
}
