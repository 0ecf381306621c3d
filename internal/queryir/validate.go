package queryir

import (
	"errors"
	"fmt"

	"github.com/roach88/n1qlorm/internal/dberr"
)

// validOperators lists comparison operators accepted by Basic and Column
// predicates. Keys are lower case.
var validOperators = map[string]bool{
	"=": true, "==": true, "<": true, ">": true, "<=": true, ">=": true,
	"<>": true, "!=": true,
	"like": true, "not like": true,
	"is": true, "is not": true,
	"within": true, "not within": true,
}

// ValidOperator reports whether op is a supported comparison operator.
func ValidOperator(op string) bool {
	return validOperators[op]
}

// Validate checks a State before compilation:
//  1. keys and index hints are mutually exclusive
//  2. every index hint kind is GSI or VIEW
//  3. every operator is supported
//  4. nested and sub-select states satisfy the same rules
//
// It returns every violation joined, the first one decides the error code
// reported by dberr.CodeOf.
//
// Validate is a pure function with no side effects.
func Validate(s *State) error {
	if s == nil {
		return dberr.New(dberr.CodeMisuse, "nil query state")
	}
	v := &validator{}
	v.validateState(s, "")
	return errors.Join(v.errs...)
}

// validator accumulates errors during traversal.
type validator struct {
	errs []error
}

func (v *validator) add(code dberr.Code, format string, args ...any) {
	v.errs = append(v.errs, dberr.New(code, format, args...))
}

func (v *validator) validateState(s *State, where string) {
	if len(s.Keys) > 0 && len(s.Indexes) > 0 {
		v.add(dberr.CodeConflictingAccessPath, "%suse keys and use index both set", where)
	}
	for _, h := range s.Indexes {
		if h.Kind != IndexGSI && h.Kind != IndexView {
			v.add(dberr.CodeUnsupportedIndexKind, "%sindex %q: kind %q not in {GSI, VIEW}", where, h.Name, h.Kind)
		}
	}
	for i, p := range s.Predicates {
		v.validatePredicate(p, fmt.Sprintf("%spredicate %d: ", where, i))
	}
}

func (v *validator) validatePredicate(p Predicate, where string) {
	switch pred := p.(type) {
	case *Basic:
		if !ValidOperator(pred.Operator) {
			v.add(dberr.CodeMisuse, "%sunsupported operator %q", where, pred.Operator)
		}
	case *Column:
		if !ValidOperator(pred.Operator) {
			v.add(dberr.CodeMisuse, "%sunsupported operator %q", where, pred.Operator)
		}
	case *Nested:
		if pred.Sub == nil {
			v.add(dberr.CodeMisuse, "%snested group without sub-query", where)
			return
		}
		v.validateState(pred.Sub, where)
	case *InSub:
		if pred.Sub == nil {
			v.add(dberr.CodeMisuse, "%sin sub-select without sub-query", where)
			return
		}
		v.validateState(pred.Sub, where)
	case *In, *Between, *Null, *Raw, *AnyIn:
		// nothing structural to check
	case nil:
		v.add(dberr.CodeMisuse, "%snil predicate", where)
	default:
		v.add(dberr.CodeMisuse, "%sunknown predicate type %T", where, p)
	}
}
