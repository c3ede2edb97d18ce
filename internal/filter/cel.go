package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/roach88/beacon/internal/ir"
)

var celNewEnv = cel.NewEnv

// celExpressions holds the CEL source of each string operator. Both
// variables are strings; arg is the leaf operand after any rewriting.
var celExpressions = map[string]string{
	"beginswith": `value.startsWith(arg)`,
	"endswith":   `value.endsWith(arg)`,
	"matches":    `value.matches(arg)`,
	"like":       `value.matches(arg)`,
}

// CELOperators evaluates the string operators beginswith, endswith, matches
// and like with CEL programs. Operator names are case-insensitive.
//
// matches takes a regular expression that must match the whole value. like
// takes a wildcard pattern where * matches any run of characters and ?
// matches exactly one.
type CELOperators struct {
	programs map[string]cel.Program
}

// NewCELOperators compiles every operator program once.
func NewCELOperators() (*CELOperators, error) {
	env, err := celNewEnv(
		cel.Variable("value", cel.StringType),
		cel.Variable("arg", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}

	programs := make(map[string]cel.Program, len(celExpressions))
	for op, expr := range celExpressions {
		ast, issues := env.Compile(expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("compile %s: %w", op, issues.Err())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("program %s: %w", op, err)
		}
		programs[op] = prg
	}
	return &CELOperators{programs: programs}, nil
}

// Supports implements Operators.
func (c *CELOperators) Supports(op string) bool {
	_, ok := c.programs[strings.ToLower(op)]
	return ok
}

// Compile implements Operators. The operand must be a string.
func (c *CELOperators) Compile(op string, operand Operand) (Matcher, error) {
	name := strings.ToLower(op)
	prg, ok := c.programs[name]
	if !ok {
		return nil, fmt.Errorf("unsupported operator %q", op)
	}

	s, ok := operand.Scalar.(ir.String)
	if operand.IsList() || !ok {
		return nil, fmt.Errorf("operand must be a string, got %s", operandKind(operand))
	}
	arg := string(s)

	switch name {
	case "matches":
		arg = "^(?:" + arg + ")$"
	case "like":
		arg = likePattern(arg)
	}
	if name == "matches" || name == "like" {
		if _, err := regexp.Compile(arg); err != nil {
			return nil, fmt.Errorf("invalid pattern: %w", err)
		}
	}

	return func(v ir.Value) bool {
		str, ok := v.(ir.String)
		if !ok {
			return false
		}
		out, _, err := prg.Eval(map[string]any{
			"value": string(str),
			"arg":   arg,
		})
		if err != nil {
			return false
		}
		match, ok := out.Value().(bool)
		return ok && match
	}, nil
}

// likePattern turns a wildcard pattern into an anchored regular expression.
func likePattern(pattern string) string {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return b.String()
}

func operandKind(o Operand) string {
	if o.IsList() {
		return "list"
	}
	if o.Scalar == nil {
		return "null"
	}
	return o.Scalar.Kind().String()
}
