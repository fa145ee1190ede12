package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/sqlitekit/internal/keyset"
	"github.com/roach88/sqlitekit/internal/value"
)

// PageOptions holds flags for the page command.
type PageOptions struct {
	*RootOptions
	Keyset string
	Size   int
	After  string
	Before string
}

// NewPageCommand creates the page command.
func NewPageCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PageOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "page <sql> [values...]",
		Short: "Fetch one keyset page",
		Long: `Fetch one page of a query ordered by a keyset.

The query must not have its own ORDER BY, LIMIT or OFFSET. The keyset
must identify rows uniquely; end it with a primary key column. Pass the
printed cursor to --after for the next page, or to --before to go back.

Example:
  sqlitekit page --db app.db "SELECT id, title FROM posts" --keyset score:desc,id --size 20
  sqlitekit page --db app.db "SELECT id, title FROM posts" --keyset score:desc,id --after '[85,4]'`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPage(opts, cmd, args[0], args[1:])
		},
	}

	cmd.Flags().StringVarP(&opts.Keyset, "keyset", "k", "", "ordering columns, e.g. category:asc,id:asc (required)")
	cmd.Flags().IntVarP(&opts.Size, "size", "n", 20, "page size")
	cmd.Flags().StringVar(&opts.After, "after", "", "JSON array cursor to page forward from")
	cmd.Flags().StringVar(&opts.Before, "before", "", "JSON array cursor to page backward from")
	_ = cmd.MarkFlagRequired("keyset")

	return cmd
}

func runPage(opts *PageOptions, cmd *cobra.Command, query string, rawValues []string) error {
	formatter := opts.formatter(cmd)

	ks, err := keyset.ParseColumns(opts.Keyset)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --keyset", err)
	}
	values, err := parseArgs(rawValues)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid values", err)
	}

	w, err := opts.open(cmd)
	if err != nil {
		return err
	}
	defer opts.closeDB(cmd, w)

	pq := w.FetchPage(query, values, ks, opts.Size)
	if opts.After != "" {
		cursor, err := decodeJSONValues([]byte(opts.After))
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --after cursor", err)
		}
		pq.After(cursor...)
	}
	if opts.Before != "" {
		cursor, err := decodeJSONValues([]byte(opts.Before))
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --before cursor", err)
		}
		pq.Before(cursor...)
	}

	page, err := pq.Run(commandContext(cmd))
	if err != nil {
		return formatter.Fail("page failed", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(page)
	}
	if err := formatter.Rows(page.Rows); err != nil {
		return err
	}
	if page.HasMore {
		fmt.Fprintf(formatter.Writer, "next cursor: %s\n", cursorJSON(page.NextCursor))
	}
	return nil
}

// cursorJSON renders a cursor the way --after and --before accept it.
func cursorJSON(cursor []value.Value) string {
	data, err := json.Marshal(cursor)
	if err != nil {
		return fmt.Sprint(cursor)
	}
	return string(data)
}
