package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/sqlitekit/internal/observer"
	"github.com/roach88/sqlitekit/internal/toolkit"
	"github.com/roach88/sqlitekit/internal/value"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Run []string
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <table>... --run <sql>",
		Short: "Show the row changes a transaction commits",
		Long: `Observe tables, run statements in one transaction through the observed
write connection, and print the row changes delivered on commit.

A failing transaction rolls back and prints no changes.

Example:
  sqlitekit watch --db app.db posts --run "UPDATE posts SET score = 0 WHERE id = 3"`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd, args)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Run, "run", "r", nil, "statement to run (repeatable, required)")
	_ = cmd.MarkFlagRequired("run")

	return cmd
}

func runWatch(opts *WatchOptions, cmd *cobra.Command, tables []string) error {
	formatter := opts.formatter(cmd)

	w, err := opts.open(cmd, tables...)
	if err != nil {
		return err
	}
	defer opts.closeDB(cmd, w)

	stream, err := w.SubscribeStream(tables...)
	if err != nil {
		return formatter.Fail("subscribe failed", err)
	}
	defer stream.Close()

	stmts := make([]toolkit.Statement, len(opts.Run))
	for i, q := range opts.Run {
		stmts[i] = toolkit.Statement{Query: q}
	}
	if _, err := w.ExecuteTransaction(commandContext(cmd), stmts); err != nil {
		return formatter.Fail("transaction failed", err)
	}

	// Changes are published before the write returns.
	changes := []observer.TableChange{}
	var lagged uint64
	for {
		ev, ok, err := stream.TryNext()
		if err != nil {
			return formatter.Fail("receive failed", err)
		}
		if !ok {
			break
		}
		if ev.IsLagged() {
			lagged += ev.Lagged
			continue
		}
		changes = append(changes, ev.Change)
	}
	if lagged > 0 {
		formatter.VerboseLog("%d change(s) were dropped from the buffer", lagged)
	}

	if formatter.Format == "json" {
		return formatter.Success(changes)
	}
	for _, c := range changes {
		fmt.Fprintln(formatter.Writer, describeChange(c))
	}
	fmt.Fprintf(formatter.Writer, "(%d change(s))\n", len(changes))
	return nil
}

// describeChange renders a change on one line, e.g.
// "update posts rowid=3 key=[3] old=[...] new=[...]".
func describeChange(c observer.TableChange) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", c.Operation, c.Table)
	if c.Rowid != nil {
		fmt.Fprintf(&b, " rowid=%d", *c.Rowid)
	}
	if c.KeyResolved {
		fmt.Fprintf(&b, " key=%s", valueList(c.PrimaryKey))
	}
	if c.OldValues != nil {
		fmt.Fprintf(&b, " old=%s", valueList(c.OldValues))
	}
	if c.NewValues != nil {
		fmt.Fprintf(&b, " new=%s", valueList(c.NewValues))
	}
	return b.String()
}

func valueList(vals []value.Value) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = value.String(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
