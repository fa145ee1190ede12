// Package keyset compiles keyset (seek) pagination queries for SQLite.
//
// Given a base SELECT, an ordered keyset of sort columns, a page size and an
// optional cursor, Build returns one executable query:
//
//	<base> [WHERE|AND] <cursor condition> ORDER BY <keyset> LIMIT <size+1>
//
// The extra row is a sentinel: Shape uses it to decide HasMore and then
// trims it. Cursor placeholders are numbered ?N starting after the caller's
// own parameters, so they never collide.
//
// # Base Query Rules
//
// The base query must not contain a top-level ORDER BY or LIMIT; the
// keyset supplies both. Top-level means outside parentheses, quoted spans
// and comments, so subqueries may use either freely.
//
// # Cursor Algebra
//
// When every keyset column sorts the same way the condition is a row-value
// comparison, which SQLite plans as an index seek:
//
//	("a", "b") > (?1, ?2)
//
// Mixed directions expand to one branch per column, each equal on the
// earlier columns and strictly beyond the cursor on its own:
//
//	("a" > ?1) OR ("a" = ?2 AND "b" < ?3)
//
// Paging backward flips every direction, and Shape reverses the fetched
// rows so a page always reads in the caller's requested order.
package keyset
