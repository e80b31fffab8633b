// Package query translates book search requests into parameterized SQL that
// every shard can execute unchanged.
//
// # Overview
//
// A search is a Chain of typed predicates over a closed set of fields:
//
//	title = :title0
//	  AND
//	author LIKE :author1        (value bound as "%tolkien%")
//
// Values never appear in the SQL text. Each predicate binds one named
// parameter keyed by field and position, so a chain that filters the same
// field twice still binds two distinct parameters.
//
// # Forms
//
// BuildSimple handles the single-field form used by the basic search box;
// BuildAdvanced handles the multi-field form with explicit AND/OR connectors.
// Both produce a Compiled pair:
//
//	RowQuery:   SELECT * FROM books WHERE (...) LIMIT 20 OFFSET 40
//	CountQuery: SELECT COUNT(*) FROM books WHERE (...)
//
// The count query never carries pagination, so the per-shard counts can be
// summed into an exact total.
//
// # Evaluation order
//
// Chains evaluate strictly left to right with no AND-over-OR precedence.
// Every predicate is parenthesized and each connector applies to everything
// before it:
//
//	a AND b OR c   →   ((a) AND (b)) OR (c)
//
// # Validation
//
// Any malformed request is rejected with a *ValidationError naming the
// violated Constraint before a shard is contacted. errors.Is(err,
// ErrValidation) identifies the whole family.
package query
