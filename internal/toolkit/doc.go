// Package toolkit is the query surface over a connmgr.Database.
//
// A Wrapper routes reads through the read pool and writes through the
// single write connection, optionally observed so committed changes reach
// subscribers. Queries are built and then run:
//
//	rows, err := w.FetchAll("SELECT * FROM posts WHERE category = ?", "tech").Run(ctx)
//	page, err := w.FetchPage("SELECT id, title FROM posts", nil, keyset, 20).After(3).Run(ctx)
//	res, err := w.Execute("UPDATE posts SET score = ? WHERE id = ?", 90, 3).Run(ctx)
//
// Attach makes other databases visible under an alias for a single call.
//
// # Errors
//
// ErrorCode maps any error returned here to a stable machine-readable code
// such as INVALID_PAGE_SIZE or SQLITE_2067.
package toolkit
