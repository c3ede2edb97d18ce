// Package queryir is the small query representation the store compiles to
// SQL.
//
// Reads and batched deletes against the events and data tables are built as
// Query values rather than hand-concatenated strings. A backend (querysql)
// turns them into parameterized statements; literal values never reach the
// SQL text.
//
// Query and Predicate are sealed interfaces using the marker method pattern,
// so backends can type switch exhaustively:
//
//	switch q := query.(type) {
//	case Select:
//	    // Handle select
//	case Delete:
//	    // Handle delete
//	}
//
// Identifiers (table and column names) are the only part of a query that is
// interpolated. Validate rejects anything that is not a plain identifier.
//
// Every Select is ordered by the table's id ascending. Callers cannot
// override the order; insertion order is the delivery order.
package queryir
