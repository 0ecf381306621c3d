package schema

import (
	"fmt"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/n1qlorm/internal/relation"
)

// Model is a compiled model declaration.
type Model struct {
	Name string `json:"name"`

	// Type is the discriminator value stored on the model's documents.
	// Defaults to Name.
	Type string `json:"type"`

	// Fields maps attribute names to type names: string, int, number,
	// bool, array, object or any.
	Fields map[string]string `json:"fields,omitempty"`

	Indexes   []Index         `json:"indexes,omitempty"`
	Relations []relation.Spec `json:"relations,omitempty"`
}

// Index is a USE INDEX hint available to the model's queries.
type Index struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// RelationSet builds the model's relations.
func (m *Model) RelationSet() (*relation.Set, error) {
	set, err := relation.NewSet()
	if err != nil {
		return nil, err
	}
	for _, spec := range m.Relations {
		r, err := relation.New(spec)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", m.Name, err)
		}
		if err := set.Add(r); err != nil {
			return nil, fmt.Errorf("model %s: %w", m.Name, err)
		}
	}
	return set, nil
}

// CompileModel parses a CUE value into a Model. The value should be the
// model struct itself, e.g. the value at path "model.users".
func CompileModel(v cue.Value) (*Model, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	m := &Model{}
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		m.Name = labels[len(labels)-1].String()
	}
	m.Type = m.Name

	typeVal := v.LookupPath(cue.ParsePath("type"))
	if typeVal.Exists() {
		s, err := typeVal.String()
		if err != nil {
			return nil, &CompileError{Field: "type", Message: "must be a string", Pos: typeVal.Pos()}
		}
		m.Type = s
	}

	var err error
	if m.Fields, err = parseFields(v); err != nil {
		return nil, err
	}
	if m.Indexes, err = parseIndexes(v); err != nil {
		return nil, err
	}
	if m.Relations, err = parseRelations(v); err != nil {
		return nil, err
	}
	return m, nil
}

func parseFields(v cue.Value) (map[string]string, error) {
	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return nil, nil
	}
	iter, err := fieldsVal.Fields(cue.Optional(true))
	if err != nil {
		return nil, formatCUEError(err)
	}
	fields := make(map[string]string)
	for iter.Next() {
		name, err := typeName(iter.Value())
		if err != nil {
			return nil, err
		}
		fields[iter.Label()] = name
	}
	return fields, nil
}

// typeName maps a CUE kind to a field type name.
func typeName(v cue.Value) (string, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		return "string", nil
	case cue.IntKind:
		return "int", nil
	case cue.FloatKind, cue.NumberKind:
		return "number", nil
	case cue.BoolKind:
		return "bool", nil
	case cue.ListKind:
		return "array", nil
	case cue.StructKind:
		return "object", nil
	case cue.TopKind:
		return "any", nil
	default:
		return "", &CompileError{
			Field:   "fields",
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

func parseIndexes(v cue.Value) ([]Index, error) {
	idxVal := v.LookupPath(cue.ParsePath("indexes"))
	if !idxVal.Exists() {
		return nil, nil
	}
	var out []Index
	if err := idxVal.Decode(&out); err != nil {
		return nil, formatCUEError(err)
	}
	return out, nil
}

// relationDecl is the CUE shape of one relation.
type relationDecl struct {
	Kind     string `json:"kind"`
	Related  string `json:"related"`
	Field    string `json:"field"`
	KeyField string `json:"key_field"`
}

func parseRelations(v cue.Value) ([]relation.Spec, error) {
	relVal := v.LookupPath(cue.ParsePath("relation"))
	if !relVal.Exists() {
		return nil, nil
	}
	iter, err := relVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var specs []relation.Spec
	for iter.Next() {
		var d relationDecl
		if err := iter.Value().Decode(&d); err != nil {
			return nil, formatCUEError(err)
		}
		kind, err := relation.ParseKind(d.Kind)
		if err != nil {
			return nil, &CompileError{
				Field:   "relation." + iter.Label() + ".kind",
				Message: fmt.Sprintf("unknown relation kind %q", d.Kind),
				Pos:     iter.Value().Pos(),
			}
		}
		specs = append(specs, relation.Spec{
			Name:     iter.Label(),
			Kind:     kind,
			Related:  d.Related,
			Field:    d.Field,
			KeyField: d.KeyField,
		})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs, nil
}

// CompileError is a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError keeps the first CUE error and its position.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return err
}
