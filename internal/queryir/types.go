package queryir

import "github.com/roach88/n1qlorm/internal/dberr"

// NativeKey is the pseudo-column that names a document's store key.
// It is never a real field; the grammar rewrites it to meta(`bucket`).`id`.
const NativeKey = "_id"

// DefaultTypeField is the discriminator field written on every document.
const DefaultTypeField = "eloquent_type"

// Conjunction joins a predicate to the one before it.
type Conjunction string

const (
	And Conjunction = "and"
	Or  Conjunction = "or"
)

// IndexKind is the index type named in a USE INDEX hint.
type IndexKind string

const (
	IndexGSI  IndexKind = "GSI"
	IndexView IndexKind = "VIEW"
)

// IndexHint names a secondary index for USE INDEX.
type IndexHint struct {
	Name string
	Kind IndexKind
}

// AccessMode is the state of the access path machine.
type AccessMode int

const (
	AccessUnset AccessMode = iota
	AccessKeys
	AccessIndex
)

// String returns the mode name for diagnostics.
func (m AccessMode) String() string {
	switch m {
	case AccessKeys:
		return "keys"
	case AccessIndex:
		return "index"
	default:
		return "unset"
	}
}

// BindingCategory partitions positional values by clause.
type BindingCategory int

const (
	BindSelect BindingCategory = iota
	BindWhere
	BindHaving
)

// bindingOrder is the order categories appear in a compiled SELECT.
var bindingOrder = []BindingCategory{BindSelect, BindWhere, BindHaving}

// Order is one ORDER BY term.
type Order struct {
	Column    string
	Direction string // "asc" | "desc"
	Raw       string // verbatim expression; overrides Column/Direction
}

// Having is one HAVING term. Raw, when set, is used verbatim.
type Having struct {
	Column      string
	Operator    string
	Raw         string
	Conjunction Conjunction
}

// Aggregate is a single aggregate directive: count(*), sum(col), ...
type Aggregate struct {
	Function string
	Column   string
}

// Predicate is a filter clause. Sealed: only types in this package
// implement it.
type Predicate interface {
	predicateNode()
	Conj() Conjunction
}

// Basic is `column operator ?`.
type Basic struct {
	Column      string
	Operator    string
	Value       any
	Conjunction Conjunction
}

// In is `column [not] in [?, ...]`. Values are already flattened.
type In struct {
	Column      string
	Values      []any
	Not         bool
	Conjunction Conjunction
}

// InSub is `column [not] in (<sub-select>)`.
type InSub struct {
	Column      string
	Sub         *State
	Not         bool
	Conjunction Conjunction
}

// Between is `column [not] between ? and ?`.
type Between struct {
	Column      string
	Low, High   any
	Not         bool
	Conjunction Conjunction
}

// Null is the schemaless null test: a field can be null or absent.
type Null struct {
	Column      string
	Not         bool
	Conjunction Conjunction
}

// Raw is verbatim predicate text. Its "?" placeholders consume Values.
type Raw struct {
	SQL         string
	Values      []any
	Conjunction Conjunction
}

// AnyIn tests whether any element of an array-valued field equals one of
// Values. Var is the bound variable name, scoped to this clause only.
type AnyIn struct {
	Column      string
	Values      []any
	Var         string
	Conjunction Conjunction
}

// Column compares two fields: `first operator second`.
type Column struct {
	First       string
	Operator    string
	Second      string
	Conjunction Conjunction
}

// Nested groups the predicates of a sub-state in parentheses.
type Nested struct {
	Sub         *State
	Conjunction Conjunction
}

func (*Basic) predicateNode()   {}
func (*In) predicateNode()      {}
func (*InSub) predicateNode()   {}
func (*Between) predicateNode() {}
func (*Null) predicateNode()    {}
func (*Raw) predicateNode()     {}
func (*AnyIn) predicateNode()   {}
func (*Column) predicateNode()  {}
func (*Nested) predicateNode()  {}

func (p *Basic) Conj() Conjunction   { return p.Conjunction }
func (p *In) Conj() Conjunction      { return p.Conjunction }
func (p *InSub) Conj() Conjunction   { return p.Conjunction }
func (p *Between) Conj() Conjunction { return p.Conjunction }
func (p *Null) Conj() Conjunction    { return p.Conjunction }
func (p *Raw) Conj() Conjunction     { return p.Conjunction }
func (p *AnyIn) Conj() Conjunction   { return p.Conjunction }
func (p *Column) Conj() Conjunction  { return p.Conjunction }
func (p *Nested) Conj() Conjunction  { return p.Conjunction }

// State is the mutable representation of one query.
type State struct {
	// Collection is the bucket (keyspace) name.
	Collection string

	// DocumentType is the discriminator value; "" means no implicit filter.
	DocumentType string

	// TypeField is the discriminator field name.
	TypeField string

	Predicates  []Predicate
	Projections []string
	RawSelect   bool // select raw <single projection>, for IN sub-selects
	Distinct    bool
	Orders      []Order
	Groups      []string
	Havings     []Having
	Limit       int // 0 = no limit
	Offset      int // 0 = no offset
	Aggregate   *Aggregate

	// Keys is the USE KEYS list. SingleKey renders it as a scalar literal.
	Keys      []string
	SingleKey bool

	// MatchesNothing is set by an empty key list. The state then carries a
	// "false" predicate and execution returns nothing without I/O.
	MatchesNothing bool

	// Indexes is the USE INDEX list.
	Indexes []IndexHint

	// Returning lists columns echoed back by UPDATE, DELETE and INSERT.
	// Empty means the whole document plus the meta id.
	Returning []string

	// Paginating marks a query built with ForPage; total counts may then
	// come from sort metrics rather than a second query.
	Paginating bool

	bindings map[BindingCategory][]any
}

// New returns an empty State for a bucket with the default discriminator
// field.
func New(collection string) *State {
	return &State{
		Collection: collection,
		TypeField:  DefaultTypeField,
		bindings:   make(map[BindingCategory][]any),
	}
}

// Sub returns a fresh State on the same bucket with no document type, for
// nested groups and sub-selects.
func (s *State) Sub() *State {
	sub := New(s.Collection)
	sub.TypeField = s.TypeField
	return sub
}

// SetTarget sets the document type and, unless typ is empty, appends the
// implicit discriminator equality predicate.
func (s *State) SetTarget(typ string) {
	s.DocumentType = typ
	if typ == "" {
		return
	}
	s.AddPredicate(&Basic{
		Column:      s.TypeField,
		Operator:    "=",
		Value:       typ,
		Conjunction: And,
	}, BindWhere, typ)
}

// AddPredicate appends p and its positional values.
func (s *State) AddPredicate(p Predicate, cat BindingCategory, values ...any) {
	s.Predicates = append(s.Predicates, p)
	s.AddBinding(cat, values...)
}

// AddBinding appends positional values to a category.
func (s *State) AddBinding(cat BindingCategory, values ...any) {
	if len(values) == 0 {
		return
	}
	if s.bindings == nil {
		s.bindings = make(map[BindingCategory][]any)
	}
	s.bindings[cat] = append(s.bindings[cat], values...)
}

// Bindings returns the values of one category.
func (s *State) Bindings(cat BindingCategory) []any {
	return s.bindings[cat]
}

// Flat returns all positional values in statement order.
func (s *State) Flat() []any {
	var out []any
	for _, cat := range bindingOrder {
		out = append(out, s.bindings[cat]...)
	}
	return out
}

// Mode reports the current access path state.
func (s *State) Mode() AccessMode {
	switch {
	case len(s.Keys) > 0:
		return AccessKeys
	case len(s.Indexes) > 0:
		return AccessIndex
	default:
		return AccessUnset
	}
}

// UseKeys moves the access path to KeyMode. A single key renders as a
// scalar literal, several as an array. Re-setting keys replaces them.
//
// An empty list matches no document: the access path stays unset and the
// state is marked MatchesNothing.
func (s *State) UseKeys(keys ...string) error {
	if len(s.Indexes) > 0 {
		return dberr.New(dberr.CodeConflictingAccessPath,
			"cannot use keys: index %q already set", s.Indexes[0].Name)
	}
	if len(keys) == 0 {
		s.Keys, s.SingleKey = nil, false
		if !s.MatchesNothing {
			s.MatchesNothing = true
			s.Predicates = append(s.Predicates, &Raw{SQL: "false", Conjunction: And})
		}
		return nil
	}
	s.Keys = append([]string(nil), keys...)
	s.SingleKey = len(keys) == 1
	return nil
}

// UseIndex moves the access path to IndexMode, appending a hint.
// The kind is checked at compile time.
func (s *State) UseIndex(name string, kind IndexKind) error {
	if len(s.Keys) > 0 {
		return dberr.New(dberr.CodeConflictingAccessPath,
			"cannot use index %q: keys already set", name)
	}
	for _, h := range s.Indexes {
		if h.Name == name && h.Kind == kind {
			return nil
		}
	}
	s.Indexes = append(s.Indexes, IndexHint{Name: name, Kind: kind})
	return nil
}

// OnlyTypeFilter reports whether the only predicate is the implicit
// discriminator filter (or there are none). Key-path fast paths require it.
func (s *State) OnlyTypeFilter() bool {
	switch len(s.Predicates) {
	case 0:
		return true
	case 1:
		b, ok := s.Predicates[0].(*Basic)
		return ok && s.DocumentType != "" && b.Column == s.TypeField && b.Operator == "=" && b.Value == s.DocumentType
	default:
		return false
	}
}

// Clone returns a copy whose slices and bindings can be modified without
// affecting s. Predicates and sub-states are shared.
func (s *State) Clone() *State {
	cp := *s
	cp.Predicates = append([]Predicate(nil), s.Predicates...)
	cp.Projections = append([]string(nil), s.Projections...)
	cp.Orders = append([]Order(nil), s.Orders...)
	cp.Groups = append([]string(nil), s.Groups...)
	cp.Havings = append([]Having(nil), s.Havings...)
	cp.Keys = append([]string(nil), s.Keys...)
	cp.Indexes = append([]IndexHint(nil), s.Indexes...)
	cp.Returning = append([]string(nil), s.Returning...)
	if s.Aggregate != nil {
		agg := *s.Aggregate
		cp.Aggregate = &agg
	}
	cp.bindings = make(map[BindingCategory][]any, len(s.bindings))
	for k, v := range s.bindings {
		cp.bindings[k] = append([]any(nil), v...)
	}
	return &cp
}
