// Package value provides the typed column value used throughout sqlitekit.
//
// A Value is a closed variant over SQLite's five storage classes: NULL,
// INTEGER, REAL, TEXT and BLOB. Values flow in both directions:
//   - Out of the engine: decoded result rows, captured pre-update images,
//     primary keys of change notifications and pagination cursors.
//   - Into the engine: bind arguments, via Value.Arg and Normalize.
//
// This package imports nothing internal. Every other package may import it.
package value
