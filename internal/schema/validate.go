package schema

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/n1qlorm/internal/queryir"
	"github.com/roach88/n1qlorm/internal/relation"
)

// Validation error codes.
const (
	ErrModelTypeEmpty    = "E101" // document type is empty
	ErrDuplicateName     = "E102" // duplicate model, type, or relation name
	ErrReservedField     = "E103" // field shadows the key or the discriminator
	ErrInvalidFieldType  = "E104" // unknown field type name
	ErrInvalidIndex      = "E105" // index name empty or kind not GSI/VIEW
	ErrInvalidRelation   = "E110" // relation spec incomplete
	ErrUnknownRelated    = "E111" // related type not declared
	ErrRelationShadows   = "E112" // relation name collides with an attribute
	ErrInvalidIdentifier = "E113" // name not usable as a document field
)

var validFieldTypes = map[string]bool{
	"string": true, "int": true, "number": true, "bool": true,
	"array": true, "object": true, "any": true,
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// ValidationError is one problem found in a set of models.
type ValidationError struct {
	Model   string `json:"model"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s.%s: %s", e.Code, e.Model, e.Field, e.Message)
}

// Validate checks models against each other. typeField is the
// discriminator field name, which no model may declare as an attribute.
// It returns every error found.
func Validate(models []Model, typeField string) []ValidationError {
	var errs []ValidationError
	add := func(m *Model, field, code, format string, args ...any) {
		errs = append(errs, ValidationError{Model: m.Name, Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
	}

	names := make(map[string]bool)
	types := make(map[string]bool)
	for i := range models {
		m := &models[i]
		if names[m.Name] {
			add(m, "name", ErrDuplicateName, "duplicate model name %q", m.Name)
		}
		names[m.Name] = true
		if strings.TrimSpace(m.Type) == "" {
			add(m, "type", ErrModelTypeEmpty, "document type is required")
			continue
		}
		if types[m.Type] {
			add(m, "type", ErrDuplicateName, "document type %q declared by two models", m.Type)
		}
		types[m.Type] = true
	}

	for i := range models {
		m := &models[i]
		for _, f := range sortedFields(m.Fields) {
			typ := m.Fields[f]
			switch {
			case f == queryir.NativeKey:
				add(m, "fields."+f, ErrReservedField, "%q is the document key and cannot be an attribute", f)
			case f == typeField:
				add(m, "fields."+f, ErrReservedField, "%q is the type discriminator and cannot be an attribute", f)
			case !identifierPattern.MatchString(f):
				add(m, "fields."+f, ErrInvalidIdentifier, "invalid field name")
			}
			if !validFieldTypes[typ] {
				add(m, "fields."+f, ErrInvalidFieldType, "unknown type %q", typ)
			}
		}

		for j, idx := range m.Indexes {
			field := fmt.Sprintf("indexes[%d]", j)
			if idx.Name == "" {
				add(m, field, ErrInvalidIndex, "index name is required")
			}
			kind := queryir.IndexKind(strings.ToUpper(idx.Kind))
			if kind != queryir.IndexGSI && kind != queryir.IndexView {
				add(m, field, ErrInvalidIndex, "index kind %q is not GSI or VIEW", idx.Kind)
			}
		}

		relNames := make(map[string]bool)
		for _, spec := range m.Relations {
			field := "relation." + spec.Name
			if relNames[spec.Name] {
				add(m, field, ErrDuplicateName, "duplicate relation name %q", spec.Name)
			}
			relNames[spec.Name] = true

			if _, err := relation.New(spec); err != nil {
				add(m, field, ErrInvalidRelation, "%v", err)
				continue
			}
			if !identifierPattern.MatchString(spec.Field) {
				add(m, field+".field", ErrInvalidIdentifier, "invalid field name %q", spec.Field)
			}
			if spec.Field == typeField {
				add(m, field+".field", ErrReservedField, "%q is the type discriminator", spec.Field)
			}
			if !spec.Kind.Embedded() && !types[spec.Related] {
				add(m, field+".related", ErrUnknownRelated, "no model stores type %q", spec.Related)
			}
			if _, ok := m.Fields[spec.Name]; ok && !(spec.Kind.Embedded() && spec.Field == spec.Name) {
				add(m, field, ErrRelationShadows, "relation name %q collides with an attribute", spec.Name)
			}
		}
	}
	return errs
}

func sortedFields(fields map[string]string) []string {
	out := make([]string, 0, len(fields))
	for k := range fields {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
