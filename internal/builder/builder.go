package builder

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/n1qlorm/internal/dberr"
	"github.com/roach88/n1qlorm/internal/engine"
	"github.com/roach88/n1qlorm/internal/n1ql"
	"github.com/roach88/n1qlorm/internal/queryir"
	"github.com/roach88/n1qlorm/internal/store"
)

// Builder accumulates one query and runs it on a Connection.
//
// Clause methods return the receiver for chaining. The first clause error
// is recorded; later clause calls still return the builder, and every
// terminal method returns the recorded error without compiling or doing
// I/O.
//
// A Builder is owned by one caller and is not safe for concurrent use.
type Builder struct {
	conn  *engine.Connection
	state *queryir.State
	err   error
	run   engine.RunOptions

	// group marks a nested predicate group, which has no access path of
	// its own.
	group bool
}

// From starts a query for documents of docType. An empty docType adds no
// discriminator filter.
func From(conn *engine.Connection, docType string) *Builder {
	b := &Builder{conn: conn, state: conn.NewState()}
	b.state.SetTarget(docType)
	return b
}

// sub returns a builder on a fresh sub-state with no discriminator filter.
func (b *Builder) sub() *Builder {
	return &Builder{conn: b.conn, state: b.state.Sub()}
}

// Clone returns an independent copy. Nested groups and sub-selects are
// shared; they are not modified after they are added.
func (b *Builder) Clone() *Builder {
	return &Builder{conn: b.conn, state: b.state.Clone(), err: b.err, run: b.run}
}

// State exposes the accumulated query state.
func (b *Builder) State() *queryir.State { return b.state }

// Connection returns the connection the builder runs on.
func (b *Builder) Connection() *engine.Connection { return b.conn }

// Err returns the first error recorded by a clause method.
func (b *Builder) Err() error { return b.err }

func (b *Builder) fail(err error) *Builder {
	if b.err == nil && err != nil {
		b.err = err
	}
	return b
}

func (b *Builder) misuse(format string, args ...any) *Builder {
	return b.fail(dberr.New(dberr.CodeMisuse, format, args...))
}

// Type sets the document type on a builder, typically a nested one that
// started without a discriminator.
func (b *Builder) Type(docType string) *Builder {
	b.state.SetTarget(docType)
	return b
}

// UseKeys restricts the query to the given document keys.
func (b *Builder) UseKeys(keys ...string) *Builder {
	return b.fail(b.state.UseKeys(keys...))
}

// UseIndex adds a USE INDEX hint. kind is "GSI" or "VIEW" in any case;
// anything else fails at compile time.
func (b *Builder) UseIndex(name string, kind string) *Builder {
	return b.fail(b.state.UseIndex(name, queryir.IndexKind(strings.ToUpper(kind))))
}

// Select sets the projection. "_id" selects the document key.
func (b *Builder) Select(columns ...string) *Builder {
	b.state.Projections = append(b.state.Projections[:0], columns...)
	return b
}

// AddSelect appends to the projection.
func (b *Builder) AddSelect(columns ...string) *Builder {
	b.state.Projections = append(b.state.Projections, columns...)
	return b
}

// Distinct makes the select distinct.
func (b *Builder) Distinct() *Builder {
	b.state.Distinct = true
	return b
}

// GroupBy appends grouping columns.
func (b *Builder) GroupBy(columns ...string) *Builder {
	b.state.Groups = append(b.state.Groups, columns...)
	return b
}

// Having adds `column operator ?` to the HAVING clause.
func (b *Builder) Having(column, operator string, v any) *Builder {
	return b.having(column, operator, v, queryir.And)
}

// OrHaving adds an or-joined HAVING term.
func (b *Builder) OrHaving(column, operator string, v any) *Builder {
	return b.having(column, operator, v, queryir.Or)
}

func (b *Builder) having(column, operator string, v any, conj queryir.Conjunction) *Builder {
	op := normalizeOperator(operator)
	if !queryir.ValidOperator(op) {
		return b.misuse("having %q: unsupported operator %q", column, operator)
	}
	b.state.Havings = append(b.state.Havings, queryir.Having{Column: column, Operator: op, Conjunction: conj})
	b.state.AddBinding(queryir.BindHaving, v)
	return b
}

// HavingRaw adds verbatim HAVING text; its placeholders consume values.
func (b *Builder) HavingRaw(sql string, values ...any) *Builder {
	b.state.Havings = append(b.state.Havings, queryir.Having{Raw: sql, Conjunction: queryir.And})
	b.state.AddBinding(queryir.BindHaving, values...)
	return b
}

// OrderBy adds an ORDER BY term. direction is "asc" or "desc".
func (b *Builder) OrderBy(column, direction string) *Builder {
	dir := strings.ToLower(strings.TrimSpace(direction))
	if dir != "asc" && dir != "desc" {
		return b.misuse("order by %q: direction %q", column, direction)
	}
	b.state.Orders = append(b.state.Orders, queryir.Order{Column: column, Direction: dir})
	return b
}

// OrderByDesc is OrderBy(column, "desc").
func (b *Builder) OrderByDesc(column string) *Builder {
	return b.OrderBy(column, "desc")
}

// OrderByRaw adds a verbatim ORDER BY term.
func (b *Builder) OrderByRaw(sql string) *Builder {
	b.state.Orders = append(b.state.Orders, queryir.Order{Raw: sql})
	return b
}

// Limit sets the row limit. Zero removes it.
func (b *Builder) Limit(n int) *Builder {
	if n < 0 {
		return b.misuse("negative limit %d", n)
	}
	b.state.Limit = n
	return b
}

// Offset sets the number of rows skipped.
func (b *Builder) Offset(n int) *Builder {
	if n < 0 {
		return b.misuse("negative offset %d", n)
	}
	b.state.Offset = n
	return b
}

// ForPage selects one page of perPage rows. Pages start at 1.
func (b *Builder) ForPage(page, perPage int) *Builder {
	if page < 1 || perPage < 1 {
		return b.misuse("page %d of size %d", page, perPage)
	}
	b.state.Limit = perPage
	b.state.Offset = (page - 1) * perPage
	b.state.Paginating = true
	return b
}

// Returning sets the columns echoed back by UPDATE and DELETE.
func (b *Builder) Returning(columns ...string) *Builder {
	b.state.Returning = append(b.state.Returning[:0], columns...)
	return b
}

// WithTimeout attaches an advisory timeout forwarded to the query service.
func (b *Builder) WithTimeout(d time.Duration) *Builder {
	b.run.Timeout = d
	return b
}

// WithConsistency overrides the connection's scan consistency.
func (b *Builder) WithConsistency(c store.Consistency) *Builder {
	b.run.Consistency = c
	return b
}

// ToSQL compiles the select statement without running it.
func (b *Builder) ToSQL() (string, error) {
	stmt, err := b.compile()
	return stmt.Text, err
}

// GetBindings returns the positional values in placeholder order.
func (b *Builder) GetBindings() []any {
	return b.state.Flat()
}

// Inline compiles the select statement with its values substituted into
// the text.
func (b *Builder) Inline() (string, error) {
	stmt, err := b.compile()
	if err != nil {
		return "", err
	}
	inlined, err := n1ql.Inline(stmt)
	return inlined.Text, err
}

func (b *Builder) compile() (n1ql.Statement, error) {
	if b.err != nil {
		return n1ql.Statement{}, b.err
	}
	return b.conn.Grammar().CompileSelect(b.state)
}

func (b *Builder) String() string {
	text, err := b.ToSQL()
	if err != nil {
		return fmt.Sprintf("<invalid query: %v>", err)
	}
	return text
}
