package queryir

import "github.com/roach88/beacon/internal/ir"

// Query represents a statement against one table.
//
// This is a sealed interface - only types in this package implement it.
type Query interface {
	queryNode() // Marker method - seals interface to this package
}

// Predicate represents a row filter.
//
// This is a sealed interface - only types in this package implement it.
//
// Predicate types:
//   - Equals: column = value
//   - In: column IN (values...)
//   - AtMost: column <= value
//   - And: all predicates must be true
//   - Or: at least one predicate must be true
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Select reads Columns from a table.
//
//	SELECT <columns> FROM <from> WHERE <filter> ORDER BY id ASC LIMIT <limit>
//
// Filter may be nil. Limit 0 means unlimited.
type Select struct {
	From    string
	Columns []string // Explicit column list, in scan order
	Filter  Predicate
	Limit   int
}

func (Select) queryNode() {}

// Delete removes rows from a table.
//
//	DELETE FROM <from> WHERE <filter>
//
// Filter is required; an unfiltered delete is rejected by Validate.
type Delete struct {
	From   string
	Filter Predicate
}

func (Delete) queryNode() {}

// Insert adds one row.
//
//	INSERT INTO <into> (<columns>) VALUES (?, ...)
type Insert struct {
	Into   string
	Values []Assignment
}

func (Insert) queryNode() {}

// Update overwrites columns of the rows matching Filter.
//
//	UPDATE <table> SET <column> = ?, ... WHERE <filter>
//
// Filter is required.
type Update struct {
	Table  string
	Set    []Assignment
	Filter Predicate
}

func (Update) queryNode() {}

// Assignment binds a column to a driver value. Value must be one of string,
// int64, float64, bool or []byte.
type Assignment struct {
	Column string
	Value  any
}

// Equals matches rows whose column equals Value.
type Equals struct {
	Field string
	Value ir.Value
}

func (Equals) predicateNode() {}

// In matches rows whose column equals any of Values.
// Values must not be empty.
type In struct {
	Field  string
	Values []ir.Value
}

func (In) predicateNode() {}

// AtMost matches rows whose column is less than or equal to Value.
type AtMost struct {
	Field string
	Value ir.Value
}

func (AtMost) predicateNode() {}

// And is a conjunction. An empty And is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Or is a disjunction. An empty Or is always false.
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}

// IDs builds the disjunctive key set id = a OR id = b ... used by batched
// deletes. An empty id list matches nothing.
func IDs(ids []int64) Or {
	preds := make([]Predicate, len(ids))
	for i, id := range ids {
		preds[i] = Equals{Field: "id", Value: ir.Int(id)}
	}
	return Or{Predicates: preds}
}
