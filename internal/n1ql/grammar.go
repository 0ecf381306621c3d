package n1ql

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/n1qlorm/internal/dberr"
	"github.com/roach88/n1qlorm/internal/queryir"
	"github.com/roach88/n1qlorm/internal/value"
)

// Statement is compiled N1QL text plus its positional values.
type Statement struct {
	Text     string
	Bindings []any

	// Key is the document key chosen for a legacy INSERT.
	Key string
}

// Grammar compiles query states to N1QL text.
//
// Keywords are emitted in lower case. Every value travels as a "?"
// placeholder except USE KEYS, which is rendered as a JSON literal.
type Grammar struct {
	Quoter Quoter

	// NewVar returns a fresh variable name for ANY ... SATISFIES and
	// FOR ... IN clauses.
	NewVar func() string

	// NewKey returns a document key for a legacy INSERT without one.
	NewKey func(docType string) string
}

// NewGrammar returns a Grammar with full quoting and UUID-based names.
func NewGrammar() *Grammar {
	return &Grammar{
		NewVar: RandomVar,
		NewKey: GenerateKey,
	}
}

// RandomVar returns a variable name unlikely to collide with a field.
func RandomVar() string {
	id := uuid.New()
	return "v" + hex.EncodeToString(id[:6])
}

// GenerateKey returns "<type>::<uuid>". An empty type yields a bare UUID.
func GenerateKey(docType string) string {
	id := uuid.NewString()
	if docType == "" {
		return id
	}
	return docType + "::" + id
}

func (g *Grammar) newVar() string {
	if g.NewVar != nil {
		return g.NewVar()
	}
	return RandomVar()
}

// CompileSelect compiles a SELECT statement.
//
// Shape:
//
//	select [distinct|raw] <cols> from `b` <use> where <preds>
//	  group by <cols> having <preds> order by <cols> limit n offset n
func (g *Grammar) CompileSelect(s *queryir.State) (Statement, error) {
	if err := queryir.Validate(s); err != nil {
		return Statement{}, err
	}
	text, err := g.selectText(s)
	if err != nil {
		return Statement{}, err
	}
	return Statement{Text: text, Bindings: s.Flat()}, nil
}

func (g *Grammar) selectText(s *queryir.State) (string, error) {
	use, err := g.CompileUse(s)
	if err != nil {
		return "", err
	}
	where, err := g.compileWheres(s)
	if err != nil {
		return "", err
	}
	parts := []string{
		g.compileColumns(s),
		"from " + g.Quoter.Identifier(s.Collection),
		use,
		where,
		g.compileGroups(s),
		g.compileHavings(s),
		g.compileOrders(s),
	}
	if s.Limit > 0 {
		parts = append(parts, "limit "+strconv.Itoa(s.Limit))
	}
	if s.Offset > 0 {
		parts = append(parts, "offset "+strconv.Itoa(s.Offset))
	}
	return joinParts(parts), nil
}

func (g *Grammar) compileColumns(s *queryir.State) string {
	if s.Aggregate != nil {
		return "select " + g.compileAggregate(s)
	}
	if s.RawSelect && len(s.Projections) == 1 {
		return "select raw " + g.wrapColumn(s, s.Projections[0])
	}
	keyword := "select "
	switch {
	case s.Distinct:
		keyword = "select distinct "
	}
	return keyword + strings.Join(g.projection(s, s.Projections), ", ")
}

func (g *Grammar) compileAggregate(s *queryir.State) string {
	agg := s.Aggregate
	col := agg.Column
	if col == "" || col == "*" {
		col = "*"
	} else {
		col = g.wrapColumn(s, col)
	}
	if s.Distinct && col != "*" {
		col = "distinct " + col
	}
	return fmt.Sprintf("%s(%s) as %s", strings.ToLower(agg.Function), col, g.Quoter.Identifier("aggregate"))
}

// projection renders a column list, defaulting to the whole document plus
// the meta id. The native key column becomes the meta id expression.
// Duplicates are dropped.
func (g *Grammar) projection(s *queryir.State, cols []string) []string {
	bucket := g.Quoter.Identifier(s.Collection)
	if len(cols) == 0 {
		return []string{bucket + ".*", g.metaID(s) + " as " + g.Quoter.Identifier(queryir.NativeKey)}
	}
	seen := make(map[string]bool, len(cols))
	out := make([]string, 0, len(cols))
	for _, col := range cols {
		var rendered string
		switch {
		case col == "*":
			rendered = bucket + ".*"
		case col == queryir.NativeKey:
			rendered = g.metaID(s) + " as " + g.Quoter.Identifier(queryir.NativeKey)
		default:
			rendered = g.Quoter.Projection(col)
		}
		if seen[rendered] {
			continue
		}
		seen[rendered] = true
		out = append(out, rendered)
	}
	return out
}

func (g *Grammar) metaID(s *queryir.State) string {
	return "meta(" + g.Quoter.Identifier(s.Collection) + ")." + g.Quoter.Identifier("id")
}

// wrapColumn quotes a predicate column, rewriting the native key.
func (g *Grammar) wrapColumn(s *queryir.State, col string) string {
	if col == queryir.NativeKey {
		return g.metaID(s)
	}
	return g.Quoter.Identifier(col)
}

// CompileUse renders the access path: "", "use keys <literal>" or
// "use index (`i` using GSI, ...)".
func (g *Grammar) CompileUse(s *queryir.State) (string, error) {
	switch {
	case len(s.Keys) > 0 && len(s.Indexes) > 0:
		return "", dberr.New(dberr.CodeConflictingAccessPath, "use keys and use index both set")
	case len(s.Keys) > 0:
		var keys any = s.Keys
		if s.SingleKey {
			keys = s.Keys[0]
		}
		lit, err := QuoteValue(keys)
		if err != nil {
			return "", err
		}
		return "use keys " + lit, nil
	case len(s.Indexes) > 0:
		hints := make([]string, 0, len(s.Indexes))
		for _, h := range s.Indexes {
			if h.Kind != queryir.IndexGSI && h.Kind != queryir.IndexView {
				return "", dberr.New(dberr.CodeUnsupportedIndexKind, "index %q: kind %q", h.Name, h.Kind)
			}
			hints = append(hints, g.Quoter.Identifier(h.Name)+" using "+string(h.Kind))
		}
		return "use index (" + strings.Join(hints, ", ") + ")", nil
	default:
		return "", nil
	}
}

func (g *Grammar) compileWheres(s *queryir.State) (string, error) {
	body, err := g.compilePredicates(s)
	if err != nil || body == "" {
		return "", err
	}
	return "where " + body, nil
}

// compilePredicates joins predicates by their conjunctions, dropping the
// leading one.
func (g *Grammar) compilePredicates(s *queryir.State) (string, error) {
	var b strings.Builder
	for i, p := range s.Predicates {
		frag, err := g.compilePredicate(s, p)
		if err != nil {
			return "", fmt.Errorf("predicate %d: %w", i, err)
		}
		if i > 0 {
			b.WriteString(" ")
			b.WriteString(conjunction(p.Conj()))
			b.WriteString(" ")
		}
		b.WriteString(frag)
	}
	return b.String(), nil
}

func conjunction(c queryir.Conjunction) string {
	if c == queryir.Or {
		return "or"
	}
	return "and"
}

func (g *Grammar) compilePredicate(s *queryir.State, p queryir.Predicate) (string, error) {
	switch pred := p.(type) {
	case *queryir.Basic:
		return g.wrapColumn(s, pred.Column) + " " + strings.ToLower(pred.Operator) + " ?", nil
	case *queryir.In:
		return g.CompileWhereIn(s, pred), nil
	case *queryir.InSub:
		return g.compileWhereInSub(s, pred)
	case *queryir.Between:
		op := " between ? and ?"
		if pred.Not {
			op = " not between ? and ?"
		}
		return g.wrapColumn(s, pred.Column) + op, nil
	case *queryir.Null:
		return g.CompileWhereNull(s, pred), nil
	case *queryir.Raw:
		return pred.SQL, nil
	case *queryir.AnyIn:
		return g.compileWhereAnyIn(s, pred), nil
	case *queryir.Column:
		return g.wrapColumn(s, pred.First) + " " + strings.ToLower(pred.Operator) + " " + g.wrapColumn(s, pred.Second), nil
	case *queryir.Nested:
		inner, err := g.compilePredicates(pred.Sub)
		if err != nil {
			return "", err
		}
		return "(" + inner + ")", nil
	default:
		return "", dberr.New(dberr.CodeMisuse, "unsupported predicate %T", p)
	}
}

// CompileWhereIn renders `col [not] in [?, ...]`.
func (g *Grammar) CompileWhereIn(s *queryir.State, p *queryir.In) string {
	op := " in "
	if p.Not {
		op = " not in "
	}
	return g.wrapColumn(s, p.Column) + op + placeholders(len(p.Values))
}

// CompileWhereNull renders the schemaless null test. A field counts as
// null when it is null or absent.
func (g *Grammar) CompileWhereNull(s *queryir.State, p *queryir.Null) string {
	col := g.wrapColumn(s, p.Column)
	if p.Not {
		return "(" + col + " is not null and " + col + " is not missing)"
	}
	return "(" + col + " is null or " + col + " is missing)"
}

func (g *Grammar) compileWhereInSub(s *queryir.State, p *queryir.InSub) (string, error) {
	sub, err := g.selectText(p.Sub)
	if err != nil {
		return "", err
	}
	op := " in "
	if p.Not {
		op = " not in "
	}
	return g.wrapColumn(s, p.Column) + op + "(" + sub + ")", nil
}

func (g *Grammar) compileWhereAnyIn(s *queryir.State, p *queryir.AnyIn) string {
	v := p.Var
	if v == "" {
		v = g.newVar()
	}
	qv := g.Quoter.Identifier(v)
	return "any " + qv + " in " + g.wrapColumn(s, p.Column) + " satisfies " + qv + " in " + placeholders(len(p.Values)) + " end"
}

func placeholders(n int) string {
	if n == 0 {
		return "[]"
	}
	return "[" + strings.TrimSuffix(strings.Repeat("?, ", n), ", ") + "]"
}

func (g *Grammar) compileGroups(s *queryir.State) string {
	if len(s.Groups) == 0 {
		return ""
	}
	cols := make([]string, len(s.Groups))
	for i, c := range s.Groups {
		cols[i] = g.wrapColumn(s, c)
	}
	return "group by " + strings.Join(cols, ", ")
}

func (g *Grammar) compileHavings(s *queryir.State) string {
	if len(s.Havings) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("having ")
	for i, h := range s.Havings {
		if i > 0 {
			b.WriteString(" " + conjunction(h.Conjunction) + " ")
		}
		if h.Raw != "" {
			b.WriteString(h.Raw)
			continue
		}
		b.WriteString(g.wrapColumn(s, h.Column) + " " + strings.ToLower(h.Operator) + " ?")
	}
	return b.String()
}

func (g *Grammar) compileOrders(s *queryir.State) string {
	if len(s.Orders) == 0 {
		return ""
	}
	terms := make([]string, len(s.Orders))
	for i, o := range s.Orders {
		if o.Raw != "" {
			terms[i] = o.Raw
			continue
		}
		dir := strings.ToLower(o.Direction)
		if dir != "desc" {
			dir = "asc"
		}
		terms[i] = g.wrapColumn(s, o.Column) + " " + dir
	}
	return "order by " + strings.Join(terms, ", ")
}

func (g *Grammar) compileReturning(s *queryir.State) string {
	return "returning " + strings.Join(g.projection(s, s.Returning), ", ")
}

// CompileUpdate compiles an UPDATE. Values equal to value.Missing go to the
// UNSET list; Missing nested inside other values is stripped.
//
// Bindings are the SET values in key order followed by the WHERE values.
func (g *Grammar) CompileUpdate(s *queryir.State, values value.Document) (Statement, error) {
	if err := queryir.Validate(s); err != nil {
		return Statement{}, err
	}
	var (
		sets     []string
		unsets   []string
		bindings []any
	)
	for _, k := range values.SortedKeys() {
		v := values[k]
		if value.IsMissing(v) {
			unsets = append(unsets, g.Quoter.Identifier(k))
			continue
		}
		sets = append(sets, g.Quoter.Identifier(k)+" = ?")
		bindings = append(bindings, value.StripMissing(v))
	}
	if len(sets) == 0 && len(unsets) == 0 {
		return Statement{}, dberr.New(dberr.CodeMisuse, "update without values")
	}
	return g.compileMutation(s, sets, unsets, bindings)
}

// EmbeddedUpdate targets the elements of an embedded array whose KeyField
// equals Key.
type EmbeddedUpdate struct {
	Array    string
	KeyField string
	Key      any
	Values   value.Document
}

// CompileUpdateEmbedded sets fields on matching elements of an embedded
// array:
//
//	update `b` set `v`.`f` = ? for `v` in `arr` when `v`.`id` = ? end ...
func (g *Grammar) CompileUpdateEmbedded(s *queryir.State, u EmbeddedUpdate) (Statement, error) {
	if err := queryir.Validate(s); err != nil {
		return Statement{}, err
	}
	if len(u.Values) == 0 {
		return Statement{}, dberr.New(dberr.CodeMisuse, "embedded update without values")
	}
	v := g.newVar()
	qv := g.Quoter.Identifier(v)
	loop := " for " + qv + " in " + g.Quoter.Identifier(u.Array) +
		" when " + qv + "." + g.Quoter.Identifier(u.KeyField) + " = ? end"

	var (
		sets, unsets       []string
		setArgs, unsetArgs []any
	)
	for _, k := range u.Values.SortedKeys() {
		field := qv + "." + g.Quoter.Identifier(k)
		val := u.Values[k]
		if value.IsMissing(val) {
			unsets = append(unsets, field+loop)
			unsetArgs = append(unsetArgs, u.Key)
			continue
		}
		sets = append(sets, field+" = ?"+loop)
		setArgs = append(setArgs, value.StripMissing(val), u.Key)
	}
	return g.compileMutation(s, sets, unsets, append(setArgs, unsetArgs...))
}

func (g *Grammar) compileMutation(s *queryir.State, sets, unsets []string, bindings []any) (Statement, error) {
	use, err := g.CompileUse(s)
	if err != nil {
		return Statement{}, err
	}
	where, err := g.compileWheres(s)
	if err != nil {
		return Statement{}, err
	}
	parts := []string{"update " + g.Quoter.Identifier(s.Collection), use}
	if len(sets) > 0 {
		parts = append(parts, "set "+strings.Join(sets, ", "))
	}
	if len(unsets) > 0 {
		parts = append(parts, "unset "+strings.Join(unsets, ", "))
	}
	parts = append(parts, where)
	if s.Limit > 0 {
		parts = append(parts, "limit "+strconv.Itoa(s.Limit))
	}
	parts = append(parts, g.compileReturning(s))

	return Statement{
		Text:     joinParts(parts),
		Bindings: append(bindings, s.Bindings(queryir.BindWhere)...),
	}, nil
}

// CompileUnset removes the given fields from every matching document.
func (g *Grammar) CompileUnset(s *queryir.State, columns []string) (Statement, error) {
	if len(columns) == 0 {
		return Statement{}, dberr.New(dberr.CodeMisuse, "unset without columns")
	}
	values := make(value.Document, len(columns))
	for _, c := range columns {
		values[c] = value.Missing
	}
	return g.CompileUpdate(s, values)
}

// CompileDelete compiles a DELETE.
func (g *Grammar) CompileDelete(s *queryir.State) (Statement, error) {
	if err := queryir.Validate(s); err != nil {
		return Statement{}, err
	}
	use, err := g.CompileUse(s)
	if err != nil {
		return Statement{}, err
	}
	where, err := g.compileWheres(s)
	if err != nil {
		return Statement{}, err
	}
	parts := []string{"delete from " + g.Quoter.Identifier(s.Collection), use, where}
	if s.Limit > 0 {
		parts = append(parts, "limit "+strconv.Itoa(s.Limit))
	}
	parts = append(parts, g.compileReturning(s))
	return Statement{Text: joinParts(parts), Bindings: s.Bindings(queryir.BindWhere)}, nil
}

// CompileInsert always fails: inserts are executed as key-value upserts.
func (g *Grammar) CompileInsert(*queryir.State, []value.Document) (Statement, error) {
	return Statement{}, dberr.New(dberr.CodeMisuse,
		"insert statements are not compiled; inserts run as key-value upserts")
}

// CompileLegacyInsert compiles the whole-record insert kept for
// compatibility:
//
//	insert into `b` (key, value) values (?, ?) returning ...
//
// The key is taken from the native key field when present, otherwise
// generated. The discriminator field is added to the body.
func (g *Grammar) CompileLegacyInsert(s *queryir.State, values value.Document) (Statement, error) {
	if s.Collection == "" {
		return Statement{}, dberr.New(dberr.CodeMisuse, "insert without bucket")
	}
	body := values.Clone()
	if body == nil {
		body = value.Document{}
	}
	key, _ := body[queryir.NativeKey].(string)
	delete(body, queryir.NativeKey)
	if key == "" {
		newKey := g.NewKey
		if newKey == nil {
			newKey = GenerateKey
		}
		key = newKey(s.DocumentType)
	}
	if s.DocumentType != "" {
		body[s.TypeField] = s.DocumentType
	}
	doc, ok := value.StripMissing(body).(value.Document)
	if !ok {
		return Statement{}, dberr.New(dberr.CodeSerialization, "insert body is not a document")
	}
	if _, err := value.Encode(doc); err != nil {
		return Statement{}, err
	}
	text := joinParts([]string{
		"insert into " + g.Quoter.Identifier(s.Collection),
		"(key, value) values (?, ?)",
		g.compileReturning(s),
	})
	return Statement{Text: text, Bindings: []any{key, doc}, Key: key}, nil
}

func joinParts(parts []string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
