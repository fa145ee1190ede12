package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/sqlitekit/internal/toolkit"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	One bool
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <sql> [values...]",
		Short: "Run a read query",
		Long: `Run a read query on the read pool and print the rows.

With --one the query must match at most one row.

Example:
  sqlitekit query --db app.db "SELECT * FROM posts WHERE category = ?" tech`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, cmd, args[0], args[1:])
		},
	}

	cmd.Flags().BoolVar(&opts.One, "one", false, "expect at most one row")

	return cmd
}

func runQuery(opts *QueryOptions, cmd *cobra.Command, query string, rawValues []string) error {
	formatter := opts.formatter(cmd)
	values, err := parseArgs(rawValues)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid values", err)
	}

	w, err := opts.open(cmd)
	if err != nil {
		return err
	}
	defer opts.closeDB(cmd, w)

	ctx := commandContext(cmd)
	if opts.One {
		row, err := w.FetchOne(query, values...).Run(ctx)
		if err != nil {
			return formatter.Fail("query failed", err)
		}
		if formatter.Format == "json" {
			return formatter.Success(row)
		}
		if row == nil {
			return formatter.Rows(nil)
		}
		return formatter.Rows([]toolkit.Row{*row})
	}

	rows, err := w.FetchAll(query, values...).Run(ctx)
	if err != nil {
		return formatter.Fail("query failed", err)
	}
	return formatter.Rows(rows)
}
