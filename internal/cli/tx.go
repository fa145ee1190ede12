package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/sqlitekit/internal/toolkit"
	"github.com/roach88/sqlitekit/internal/txn"
)

// TxOptions holds flags for the tx command.
type TxOptions struct {
	*RootOptions
	File    string
	Session bool

	// Tokens overrides the session token generator (for testing).
	Tokens txn.TokenGenerator
}

// NewTxCommand creates the tx command.
func NewTxCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TxOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "tx [sql...]",
		Short: "Run statements in one transaction",
		Long: `Run statements atomically: all commit or none do.

Statements come from the arguments, or from a YAML file of
{query, values} entries with --file.

With --session, statements are read from stdin one per line inside an
interruptible transaction. SELECT lines print rows, "commit" and
"rollback" end the session, and end of input rolls back.

Example:
  sqlitekit tx --db app.db "DELETE FROM tags" "DELETE FROM posts"
  sqlitekit tx --db app.db --file migrate.yaml
  sqlitekit tx --db app.db --session < script.sql`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Session {
				return runSession(opts, cmd)
			}
			return runTx(opts, cmd, args)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "YAML file of statements")
	cmd.Flags().BoolVar(&opts.Session, "session", false, "read statements from stdin in an interruptible transaction")

	return cmd
}

// loadStatements reads a YAML list of statements.
func loadStatements(path string) ([]toolkit.Statement, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read statements file: %w", err)
	}
	var stmts []toolkit.Statement
	if err := yaml.Unmarshal(data, &stmts); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	for i, s := range stmts {
		if strings.TrimSpace(s.Query) == "" {
			return nil, fmt.Errorf("statement %d: query is required", i)
		}
	}
	return stmts, nil
}

func runTx(opts *TxOptions, cmd *cobra.Command, args []string) error {
	formatter := opts.formatter(cmd)

	var stmts []toolkit.Statement
	if opts.File != "" {
		loaded, err := loadStatements(opts.File)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --file", err)
		}
		stmts = loaded
	}
	for _, a := range args {
		stmts = append(stmts, toolkit.Statement{Query: a})
	}
	if len(stmts) == 0 {
		return NewExitError(ExitCommandError, "no statements: pass SQL arguments or --file")
	}

	w, err := opts.open(cmd)
	if err != nil {
		return err
	}
	defer opts.closeDB(cmd, w)

	coord := txn.New(txn.Config{Tokens: opts.Tokens, Logger: opts.logger(cmd)})
	ctx, stop := abortOnSignal(commandContext(cmd), coord)
	defer stop()

	formatter.VerboseLog("Running %d statement(s) atomically", len(stmts))
	results, err := coord.RunAtomic(ctx, w, stmts)
	if err != nil {
		return formatter.Fail("transaction failed", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(results)
	}
	for i, r := range results {
		fmt.Fprintf(formatter.Writer, "[%d] %d row(s) affected, last insert id %d\n", i, r.RowsAffected, r.LastInsertID)
	}
	fmt.Fprintln(formatter.Writer, "committed")
	return nil
}

func runSession(opts *TxOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	w, err := opts.open(cmd)
	if err != nil {
		return err
	}
	defer opts.closeDB(cmd, w)

	coord := txn.New(txn.Config{Tokens: opts.Tokens, Logger: opts.logger(cmd)})
	ctx, stop := abortOnSignal(commandContext(cmd), coord)
	defer stop()
	// Anything still open at exit rolls back.
	defer coord.AbortAll()

	s, err := coord.Begin(ctx, w, nil)
	if err != nil {
		return formatter.Fail("begin failed", err)
	}
	formatter.VerboseLog("Session %s started", s.ID())

	return readSession(ctx, formatter, coord, s, cmd.InOrStdin())
}

func readSession(ctx context.Context, formatter *OutputFormatter, coord *txn.Coordinator, s *txn.Session, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSuffix(strings.TrimSpace(scanner.Text()), ";")
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}

		switch keyword := strings.ToUpper(strings.Fields(line)[0]); keyword {
		case "COMMIT":
			if err := coord.Commit(ctx, s.ID(), s.Token()); err != nil {
				return formatter.Fail("commit failed", err)
			}
			return formatter.Success("committed")
		case "ROLLBACK":
			if err := coord.Rollback(ctx, s.ID(), s.Token()); err != nil {
				return formatter.Fail("rollback failed", err)
			}
			return formatter.Success("rolled back")
		case "SELECT", "WITH", "VALUES":
			rows, err := coord.Read(ctx, s.ID(), s.Token(), line)
			if err != nil {
				return formatter.Fail("read failed", err)
			}
			if err := formatter.Rows(rows); err != nil {
				return err
			}
		default:
			results, err := coord.Continue(ctx, s.ID(), s.Token(), []toolkit.Statement{{Query: line}})
			if err != nil {
				return formatter.Fail("statement failed", err)
			}
			if err := formatter.WriteResult(results[0]); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return WrapExitError(ExitCommandError, "failed to read stdin", err)
	}
	return formatter.Success("rolled back (end of input)")
}

// abortOnSignal cancels ctx and aborts every transaction on SIGINT or
// SIGTERM.
func abortOnSignal(parent context.Context, coord *txn.Coordinator) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-sigChan:
			coord.AbortAll()
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
