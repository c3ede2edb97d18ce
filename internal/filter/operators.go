package filter

import (
	"strings"

	"github.com/roach88/beacon/internal/ir"
)

// Operators compiles operators outside the built-in set.
//
// Compile consults an Operators only for tokens that are not built in. An
// operator that no Operators supports fails to compile.
type Operators interface {
	Supports(op string) bool
	Compile(op string, operand Operand) (Matcher, error)
}

// builtinOperators maps each built-in operator to its matcher factory.
var builtinOperators = map[string]func(Operand) Matcher{
	"eq":       eqMatcher,
	"gt":       orderMatcher(func(a, b float64) bool { return a > b }),
	"gte":      orderMatcher(func(a, b float64) bool { return a >= b }),
	"lt":       orderMatcher(func(a, b float64) bool { return a < b }),
	"lte":      orderMatcher(func(a, b float64) bool { return a <= b }),
	"contains": containsMatcher,
	"in":       inMatcher,
}

// IsBuiltin reports whether op (without not_) is a built-in operator.
func IsBuiltin(op string) bool {
	_, ok := builtinOperators[op]
	return ok
}

func never(ir.Value) bool { return false }

// eqMatcher is strict: a number never equals its string form.
func eqMatcher(operand Operand) Matcher {
	if operand.IsList() {
		return never
	}
	want := operand.Scalar
	return func(v ir.Value) bool {
		return ir.Equal(v, want)
	}
}

// orderMatcher compares numerically. Non-numeric values and operands never
// match.
func orderMatcher(cmp func(a, b float64) bool) func(Operand) Matcher {
	return func(operand Operand) Matcher {
		if operand.IsList() {
			return never
		}
		bound, ok := ir.Number(operand.Scalar)
		if !ok {
			return never
		}
		return func(v ir.Value) bool {
			n, ok := ir.Number(v)
			return ok && cmp(n, bound)
		}
	}
}

// containsMatcher matches when the string value contains the operand string.
func containsMatcher(operand Operand) Matcher {
	needle, ok := operand.Scalar.(ir.String)
	if operand.IsList() || !ok {
		return never
	}
	return func(v ir.Value) bool {
		s, ok := v.(ir.String)
		return ok && strings.Contains(string(s), string(needle))
	}
}

// inMatcher matches list membership, or for a string operand, a value that
// is a substring of it.
func inMatcher(operand Operand) Matcher {
	if operand.IsList() {
		list := operand.List
		return func(v ir.Value) bool {
			for _, candidate := range list {
				if ir.Equal(v, candidate) {
					return true
				}
			}
			return false
		}
	}

	haystack, ok := operand.Scalar.(ir.String)
	if !ok {
		return never
	}
	return func(v ir.Value) bool {
		s, ok := v.(ir.String)
		return ok && strings.Contains(string(haystack), string(s))
	}
}
