package filter

import (
	"strings"

	"github.com/roach88/beacon/internal/ir"
)

// Node is a compiled predicate tree node.
//
// This is a sealed interface - only Leaf, And and Or implement it.
type Node interface {
	filterNode() // Marker method - seals interface to this package
	String() string
}

// Operand is the right-hand side of a leaf: a scalar or a list of scalars.
type Operand struct {
	Scalar ir.Value   // Set when List is nil
	List   []ir.Value // Non-nil for list operands, possibly empty
}

// IsList reports whether the operand is a list.
func (o Operand) IsList() bool {
	return o.List != nil
}

func (o Operand) String() string {
	if !o.IsList() {
		return renderValue(o.Scalar)
	}
	parts := make([]string, len(o.List))
	for i, v := range o.List {
		parts[i] = renderValue(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Matcher tests one property value against a leaf's operand.
type Matcher func(v ir.Value) bool

// Leaf compares the value at Path with Operand using Op.
// Negate inverts the comparison result, including for a missing path.
type Leaf struct {
	Path    string
	Op      string // Operator without the not_ prefix
	Negate  bool
	Operand Operand

	match Matcher
}

func (*Leaf) filterNode() {}

func (l *Leaf) String() string {
	s := l.Path + " " + l.Op + " " + l.Operand.String()
	if l.Negate {
		return "NOT " + s
	}
	return s
}

// And is true when every child is true.
type And struct {
	Children []Node
}

func (*And) filterNode() {}

func (a *And) String() string {
	return joinChildren(a.Children, " AND ")
}

// Or is true when at least one child is true.
type Or struct {
	Children []Node
}

func (*Or) filterNode() {}

func (o *Or) String() string {
	return joinChildren(o.Children, " OR ")
}

func joinChildren(children []Node, sep string) string {
	parts := make([]string, len(children))
	for i, c := range children {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

func renderValue(v ir.Value) string {
	data, err := ir.MarshalValue(v)
	if err != nil {
		return "<invalid>"
	}
	return string(data)
}
