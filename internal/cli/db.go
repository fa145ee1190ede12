package cli

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/roach88/sqlitekit/internal/config"
	"github.com/roach88/sqlitekit/internal/metrics"
	"github.com/roach88/sqlitekit/internal/toolkit"
)

// formatter builds the OutputFormatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// logger writes to stderr; debug level when verbose.
func (o *RootOptions) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// open connects to the database named by --db or the config file.
// Tables in observe are observed in addition to any configured ones.
func (o *RootOptions) open(cmd *cobra.Command, observe ...string) (*toolkit.Wrapper, error) {
	logger := o.logger(cmd)

	file := &config.File{}
	if o.ConfigPath != "" {
		loaded, err := config.Load(o.ConfigPath)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load config", err)
		}
		file = loaded
	}

	path := o.Database
	if path == "" {
		path = file.Database.Path
	}
	if path == "" {
		return nil, NewExitError(ExitCommandError, "database path required: use --db or set database.path in --config")
	}

	var opts []toolkit.Option
	if file.ObserverEnabled() || len(observe) > 0 {
		cfg := file.ObserverConfig(logger)
		cfg.Tables = append(cfg.Tables, observe...)
		opts = append(opts, toolkit.WithObserver(cfg))
	}

	w, err := toolkit.Connect(commandContext(cmd), path, file.ConnConfig(logger), opts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	logger.Debug("database opened", "path", w.Path())
	return w, nil
}

// closeDB closes w and, with --metrics, dumps the collectors.
func (o *RootOptions) closeDB(cmd *cobra.Command, w *toolkit.Wrapper) {
	if err := w.Close(); err != nil {
		o.logger(cmd).Error("error closing database", "error", err)
	}
	if o.Metrics {
		if err := writeMetrics(cmd); err != nil {
			o.logger(cmd).Error("error writing metrics", "error", err)
		}
	}
}

// writeMetrics prints every collector in Prometheus text format.
func writeMetrics(cmd *cobra.Command) error {
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		return err
	}
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(cmd.ErrOrStderr(), mf); err != nil {
			return err
		}
	}
	return nil
}

// commandContext returns cmd's context, or Background when unset.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
