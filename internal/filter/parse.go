package filter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/beacon/internal/ir"
)

// Filter is a compiled filter expression.
type Filter struct {
	Root   Node
	Source string
}

func (f *Filter) String() string {
	return f.Root.String()
}

// Option configures Compile.
type Option func(*compiler)

// WithOperators lets Compile hand operators outside the built-in set to ops.
func WithOperators(ops Operators) Option {
	return func(c *compiler) {
		c.ops = ops
	}
}

type compiler struct {
	ops Operators
}

// Compile parses a JSON filter expression into a predicate tree.
//
// Grammar:
//
//	filter  := simple | logical | [filter, ...] | null
//	simple  := {"<key.path>": {"[not_]<op>": operand}}
//	logical := {"AND"|"OR": [filter, ...]}
//
// Lists are flattened into the enclosing predicate list and null contributes
// nothing. Several top-level predicates are combined with AND. Every
// failure is a *FilterError with code INVALID_FILTER.
func Compile(src []byte, opts ...Option) (*Filter, error) {
	c := &compiler{}
	for _, opt := range opts {
		opt(c)
	}

	dec := json.NewDecoder(bytes.NewReader(src))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, invalidf("$", "malformed JSON: %v", err)
	}
	if dec.More() {
		return nil, invalidf("$", "trailing data after filter")
	}

	nodes, err := c.cumulate(raw, "$")
	if err != nil {
		return nil, err
	}

	var root Node
	switch len(nodes) {
	case 0:
		return nil, invalidf("$", "filter has no predicates")
	case 1:
		root = nodes[0]
	default:
		root = &And{Children: nodes}
	}
	return &Filter{Root: root, Source: string(src)}, nil
}

// MustCompile is like Compile but panics on error. For tests and constants.
func MustCompile(src string, opts ...Option) *Filter {
	f, err := Compile([]byte(src), opts...)
	if err != nil {
		panic(err)
	}
	return f
}

func (c *compiler) cumulate(v any, path string) ([]Node, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case []any:
		var nodes []Node
		for i, elem := range val {
			sub, err := c.cumulate(elem, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, sub...)
		}
		return nodes, nil
	case map[string]any:
		node, err := c.object(val, path)
		if err != nil {
			return nil, err
		}
		return []Node{node}, nil
	default:
		return nil, invalidf(path, "expected a filter object or list, got %s", jsonKind(v))
	}
}

func (c *compiler) object(obj map[string]any, path string) (Node, error) {
	if len(obj) != 1 {
		return nil, invalidf(path, "expected exactly one key, got %d", len(obj))
	}
	var key string
	var val any
	for k, v := range obj {
		key, val = k, v
	}

	switch strings.ToUpper(key) {
	case "AND", "OR":
		return c.logical(key, val, path+"."+key)
	default:
		return c.leaf(key, val, path+"."+key)
	}
}

func (c *compiler) logical(key string, val any, path string) (Node, error) {
	children, ok := val.([]any)
	if !ok {
		return nil, invalidf(path, "operator %s must have a list as child, got %s", key, jsonKind(val))
	}
	if len(children) == 0 {
		return nil, invalidf(path, "operator %s has no children", key)
	}

	nodes, err := c.cumulate(children, path)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, invalidf(path, "operator %s has no predicates", key)
	}

	if strings.ToUpper(key) == "AND" {
		return &And{Children: nodes}, nil
	}
	return &Or{Children: nodes}, nil
}

func (c *compiler) leaf(keyPath string, val any, path string) (Node, error) {
	content, ok := val.(map[string]any)
	if !ok {
		return nil, invalidf(path, "expected an operator object, got %s", jsonKind(val))
	}
	if len(content) != 1 {
		return nil, invalidf(path, "expected exactly one operator, got %d", len(content))
	}

	var token string
	var rawOperand any
	for k, v := range content {
		token, rawOperand = k, v
	}
	opPath := path + "." + token

	op, negate := strings.CutPrefix(token, "not_")
	if op == "" {
		return nil, invalidf(opPath, "empty operator")
	}

	operand, err := toOperand(rawOperand, opPath)
	if err != nil {
		return nil, err
	}

	leaf := &Leaf{Path: keyPath, Op: op, Negate: negate, Operand: operand}
	if factory, ok := builtinOperators[op]; ok {
		leaf.match = factory(operand)
		return leaf, nil
	}

	if c.ops == nil || !c.ops.Supports(op) {
		return nil, invalidf(opPath, "unsupported operator %q", op)
	}
	m, err := c.ops.Compile(op, operand)
	if err != nil {
		if IsInvalidFilter(err) {
			return nil, err
		}
		return nil, invalidf(opPath, "operator %s: %v", op, err)
	}
	leaf.match = m
	return leaf, nil
}

func toOperand(v any, path string) (Operand, error) {
	list, ok := v.([]any)
	if !ok {
		scalar, err := toScalar(v, path)
		if err != nil {
			return Operand{}, err
		}
		return Operand{Scalar: scalar}, nil
	}

	values := make([]ir.Value, 0, len(list))
	for i, elem := range list {
		scalar, err := toScalar(elem, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return Operand{}, err
		}
		values = append(values, scalar)
	}
	return Operand{List: values}, nil
}

func toScalar(v any, path string) (ir.Value, error) {
	switch v.(type) {
	case nil, map[string]any, []any:
		return nil, invalidf(path, "operand must be a string, number or bool, got %s", jsonKind(v))
	}
	val, err := ir.FromAny(v)
	if err != nil {
		return nil, invalidf(path, "operand: %v", err)
	}
	return val, nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case json.Number:
		return "number"
	case string:
		return "string"
	case []any:
		return "list"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
