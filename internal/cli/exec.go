package cli

import (
	"github.com/spf13/cobra"
)

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec <sql> [values...]",
		Short: "Execute one write statement",
		Long: `Execute one write statement on the write connection.

Values bind the statement's ? parameters in order. JSON scalars keep their
type; anything else binds as text.

Example:
  sqlitekit exec --db app.db "UPDATE posts SET score = ? WHERE id = ?" 90 3`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(rootOpts, cmd, args[0], args[1:])
		},
	}
	return cmd
}

func runExec(opts *RootOptions, cmd *cobra.Command, query string, rawValues []string) error {
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

	formatter.VerboseLog("Executing: %s", query)
	res, err := w.Execute(query, values...).Run(commandContext(cmd))
	if err != nil {
		return formatter.Fail("execute failed", err)
	}
	return formatter.WriteResult(res)
}
