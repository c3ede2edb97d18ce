package filter

import "github.com/roach88/beacon/internal/ir"

// PropertiesRoot prefixes every key path visible to filters.
const PropertiesRoot = "event.properties."

// Projection is the flat key path to value view a filter evaluates against.
type Projection map[string]ir.Value

// Project exposes an event's properties under PropertiesRoot.
// Context is not visible.
func Project(ev ir.Event) Projection {
	p := make(Projection, len(ev.Properties))
	for k, v := range ev.Properties {
		p[PropertiesRoot+k] = v
	}
	return p
}

// Matches evaluates the filter against an event.
func (f *Filter) Matches(ev ir.Event) bool {
	return Evaluate(f.Root, Project(ev))
}

// Evaluate reports whether n holds for p. It never fails: a missing key
// path or a type mismatch makes a leaf false before negation.
func Evaluate(n Node, p Projection) bool {
	switch node := n.(type) {
	case *Leaf:
		v, ok := p[node.Path]
		result := ok && node.match != nil && node.match(v)
		if node.Negate {
			return !result
		}
		return result
	case *And:
		for _, c := range node.Children {
			if !Evaluate(c, p) {
				return false
			}
		}
		return true
	case *Or:
		for _, c := range node.Children {
			if Evaluate(c, p) {
				return true
			}
		}
		return false
	default:
		return false
	}
}
