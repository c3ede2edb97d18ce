// Package querysql compiles queryir queries to parameterized SQLite SQL.
package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/beacon/internal/ir"
	"github.com/roach88/beacon/internal/queryir"
)

// Compile converts a query to parameterized SQL.
// Returns (sql, params, error).
//
// Every Select is ordered by id ascending. Values are always bound as ?
// parameters, never interpolated.
func Compile(q queryir.Query) (string, []any, error) {
	if err := queryir.Validate(q).Err(); err != nil {
		return "", nil, err
	}

	switch query := q.(type) {
	case queryir.Select:
		return compileSelect(query)
	case *queryir.Select:
		return compileSelect(*query)
	case queryir.Delete:
		return compileDelete(query)
	case *queryir.Delete:
		return compileDelete(*query)
	case queryir.Insert:
		return compileInsert(query)
	case *queryir.Insert:
		return compileInsert(*query)
	case queryir.Update:
		return compileUpdate(query)
	case *queryir.Update:
		return compileUpdate(*query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

func compileSelect(q queryir.Select) (string, []any, error) {
	var sb strings.Builder
	var params []any

	fmt.Fprintf(&sb, "SELECT %s FROM %s", strings.Join(q.Columns, ", "), q.From)

	if q.Filter != nil {
		where, whereParams, err := compilePredicate(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
		params = whereParams
	}

	sb.WriteString(" ORDER BY id ASC")

	if q.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		params = append(params, int64(q.Limit))
	}

	return sb.String(), params, nil
}

func compileDelete(q queryir.Delete) (string, []any, error) {
	where, params, err := compilePredicate(q.Filter)
	if err != nil {
		return "", nil, fmt.Errorf("compile filter: %w", err)
	}
	return fmt.Sprintf("DELETE FROM %s WHERE %s", q.From, where), params, nil
}

func compileInsert(q queryir.Insert) (string, []any, error) {
	columns := make([]string, len(q.Values))
	params := make([]any, len(q.Values))
	for i, a := range q.Values {
		columns[i] = a.Column
		params[i] = a.Value
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		q.Into,
		strings.Join(columns, ", "),
		placeholders(len(params)))
	return sql, params, nil
}

func compileUpdate(q queryir.Update) (string, []any, error) {
	set := make([]string, len(q.Set))
	params := make([]any, 0, len(q.Set))
	for i, a := range q.Set {
		set[i] = a.Column + " = ?"
		params = append(params, a.Value)
	}

	where, whereParams, err := compilePredicate(q.Filter)
	if err != nil {
		return "", nil, fmt.Errorf("compile filter: %w", err)
	}
	params = append(params, whereParams...)

	return fmt.Sprintf("UPDATE %s SET %s WHERE %s", q.Table, strings.Join(set, ", "), where), params, nil
}

func compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case queryir.Equals:
		param, err := valueToParam(pred.Value)
		if err != nil {
			return "", nil, err
		}
		return pred.Field + " = ?", []any{param}, nil
	case queryir.AtMost:
		param, err := valueToParam(pred.Value)
		if err != nil {
			return "", nil, err
		}
		return pred.Field + " <= ?", []any{param}, nil
	case queryir.In:
		return compileIn(pred)
	case queryir.And:
		return compileAnd(pred)
	case queryir.Or:
		return compileOr(pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func compileIn(in queryir.In) (string, []any, error) {
	params := make([]any, 0, len(in.Values))
	for _, v := range in.Values {
		param, err := valueToParam(v)
		if err != nil {
			return "", nil, err
		}
		params = append(params, param)
	}

	// A single value compiles to plain equality.
	if len(params) == 1 {
		return in.Field + " = ?", params, nil
	}
	return fmt.Sprintf("%s IN (%s)", in.Field, placeholders(len(params))), params, nil
}

func compileAnd(and queryir.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil // Vacuous truth
	}

	parts := make([]string, 0, len(and.Predicates))
	var params []any
	for _, pred := range and.Predicates {
		sql, predParams, err := compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		if _, nested := pred.(queryir.And); nested && len(and.Predicates) > 1 {
			sql = "(" + sql + ")"
		}
		parts = append(parts, sql)
		params = append(params, predParams...)
	}
	return strings.Join(parts, " AND "), params, nil
}

// compileOr always parenthesizes so it composes under AND.
func compileOr(or queryir.Or) (string, []any, error) {
	if len(or.Predicates) == 0 {
		return "1 = 0", nil, nil
	}

	parts := make([]string, 0, len(or.Predicates))
	var params []any
	for _, pred := range or.Predicates {
		sql, predParams, err := compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		params = append(params, predParams...)
	}
	return "(" + strings.Join(parts, " OR ") + ")", params, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// valueToParam converts an ir.Value to a database/sql driver value.
func valueToParam(v ir.Value) (any, error) {
	switch val := v.(type) {
	case ir.String:
		return string(val), nil
	case ir.Int:
		return int64(val), nil
	case ir.Double:
		return float64(val), nil
	case ir.Bool:
		return bool(val), nil
	default:
		return nil, fmt.Errorf("unsupported value type for SQL parameter: %T", v)
	}
}
