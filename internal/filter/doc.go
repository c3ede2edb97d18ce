// Package filter compiles JSON filter expressions into predicate trees and
// evaluates them against event properties.
//
// A filter addresses properties by key path under "event.properties." and
// combines leaf comparisons with AND and OR:
//
//	{"AND": [
//	  {"event.properties.item_name": {"in": ["iPhone", "iPad"]}},
//	  {"event.properties.price": {"not_lt": 500}}
//	]}
//
// Built-in operators are eq, gt, gte, lt, lte, contains and in. Any operator
// may be negated with a not_ prefix. Other operators are accepted only when
// an Operators implementation such as CELOperators supports them.
package filter
