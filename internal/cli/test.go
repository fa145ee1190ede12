package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/sqlitekit/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run conformance scenarios",
		Long: `Run conformance scenarios using the harness framework.

Each scenario YAML file runs against a fresh database. Step expectations
and assertions are checked, and when golden/<name>.golden exists beside a
scenario its trace must match it byte for byte.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  sqlitekit test ./scenarios
  sqlitekit test ./scenarios --filter "posts_*"
  sqlitekit test ./scenarios --update
  sqlitekit test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(cmd, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(cmd *cobra.Command, opts *TestOptions, dir string) error {
	f := opts.formatter(cmd)

	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", dir))
	}

	files, err := harness.FindScenarios(dir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}
	f.VerboseLog("found %d scenario(s) in %s", len(files), dir)

	result, err := harness.RunSuite(commandContext(cmd), files, harness.SuiteOptions{Update: opts.Update})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to run scenarios", err)
	}

	if opts.Format == "json" {
		if result.Failed > 0 {
			if err := f.Error("E_TEST_FAILED", fmt.Sprintf("%d scenario(s) failed", result.Failed), result); err != nil {
				return err
			}
			return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
		}
		return f.Success(result)
	}

	return outputTestText(cmd, result, files)
}

// outputTestText prints one line per scenario and a summary.
func outputTestText(cmd *cobra.Command, result *harness.SuiteResult, files []string) error {
	w := cmd.OutOrStdout()

	if len(files) == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return nil
	}

	failed := make(map[string][]string, len(result.Failures))
	for _, fail := range result.Failures {
		failed[fail.ScenarioPath] = fail.Errors
	}
	for _, path := range files {
		errs, bad := failed[path]
		if !bad {
			fmt.Fprintf(w, "✓ %s\n", path)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", path)
		for _, e := range errs {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
