package queryir

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidationResult lists every problem found in a query.
type ValidationResult struct {
	Valid    bool
	Problems []string
}

// Err folds the problems into a single error, or nil when the query is valid.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return errors.New("invalid query: " + strings.Join(r.Problems, "; "))
}

// Validate checks a query before compilation:
//  1. Table and column names are plain identifiers
//  2. Select lists its columns explicitly
//  3. Update and Delete carry a filter
//  4. In has at least one value, and every literal is non-nil
//  5. Assignments bind supported driver types
//  6. Limit is not negative
//
// Validate is a pure function with no side effects.
func Validate(query Query) ValidationResult {
	v := &validator{}
	v.validateQuery(query)

	return ValidationResult{
		Valid:    len(v.problems) == 0,
		Problems: v.problems,
	}
}

type validator struct {
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) identifier(kind, name string) {
	if !identifierPattern.MatchString(name) {
		v.addProblem("%s %q is not a plain identifier", kind, name)
	}
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case nil:
		v.addProblem("nil query")
	case Select:
		v.validateSelect(query)
	case *Select:
		v.validateSelect(*query)
	case Delete:
		v.validateDelete(query)
	case *Delete:
		v.validateDelete(*query)
	case Insert:
		v.validateInsert(query)
	case *Insert:
		v.validateInsert(*query)
	case Update:
		v.validateUpdate(query)
	case *Update:
		v.validateUpdate(*query)
	default:
		v.addProblem("unknown query type: %T", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	v.identifier("table", sel.From)
	if len(sel.Columns) == 0 {
		v.addProblem("select from %s has no columns", sel.From)
	}
	for _, col := range sel.Columns {
		v.identifier("column", col)
	}
	if sel.Limit < 0 {
		v.addProblem("negative limit %d", sel.Limit)
	}
	if sel.Filter != nil {
		v.validatePredicate(sel.Filter)
	}
}

func (v *validator) validateDelete(del Delete) {
	v.identifier("table", del.From)
	if del.Filter == nil {
		v.addProblem("delete from %s has no filter", del.From)
		return
	}
	v.validatePredicate(del.Filter)
}

func (v *validator) validateInsert(ins Insert) {
	v.identifier("table", ins.Into)
	if len(ins.Values) == 0 {
		v.addProblem("insert into %s has no values", ins.Into)
	}
	v.validateAssignments(ins.Values)
}

func (v *validator) validateUpdate(upd Update) {
	v.identifier("table", upd.Table)
	if len(upd.Set) == 0 {
		v.addProblem("update of %s sets no columns", upd.Table)
	}
	v.validateAssignments(upd.Set)
	if upd.Filter == nil {
		v.addProblem("update of %s has no filter", upd.Table)
		return
	}
	v.validatePredicate(upd.Filter)
}

func (v *validator) validateAssignments(set []Assignment) {
	seen := make(map[string]bool, len(set))
	for _, a := range set {
		v.identifier("column", a.Column)
		if seen[a.Column] {
			v.addProblem("column %s assigned twice", a.Column)
		}
		seen[a.Column] = true
		switch a.Value.(type) {
		case string, int64, float64, bool, []byte:
		default:
			v.addProblem("column %s: unsupported value type %T", a.Column, a.Value)
		}
	}
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case Equals:
		v.identifier("column", pred.Field)
		if pred.Value == nil {
			v.addProblem("column %s compared to nil", pred.Field)
		}
	case AtMost:
		v.identifier("column", pred.Field)
		if pred.Value == nil {
			v.addProblem("column %s compared to nil", pred.Field)
		}
	case In:
		v.identifier("column", pred.Field)
		if len(pred.Values) == 0 {
			v.addProblem("column %s IN empty list", pred.Field)
		}
		for i, val := range pred.Values {
			if val == nil {
				v.addProblem("column %s IN value %d is nil", pred.Field, i)
			}
		}
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case Or:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case nil:
		v.addProblem("nil predicate")
	default:
		v.addProblem("unknown predicate type: %T", p)
	}
}
