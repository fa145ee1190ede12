// Command sqlitekit queries, pages through and watches a SQLite database.
//
// Build with the sqlite_preupdate_hook tag so watch can report column
// values and observe WITHOUT ROWID tables:
//
//	go build -tags sqlite_preupdate_hook ./cmd/sqlitekit
package main

import (
	"fmt"
	"os"

	"github.com/roach88/sqlitekit/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
