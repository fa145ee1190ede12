package cli

import (
	"github.com/spf13/cobra"
)

// NewRemoveCommand creates the remove command.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Delete the database and its WAL files",
		Long: `Delete the database file and its -wal and -shm companions.

Example:
  sqlitekit remove --db app.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(rootOpts, cmd)
		},
	}
	return cmd
}

func runRemove(opts *RootOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	w, err := opts.open(cmd)
	if err != nil {
		return err
	}
	path := w.Path()
	if err := w.Remove(); err != nil {
		return formatter.Fail("remove failed", err)
	}
	return formatter.Success("removed " + path)
}
