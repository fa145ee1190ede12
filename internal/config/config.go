// Package config loads the sqlitekit YAML configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/sqlitekit/internal/connmgr"
	"github.com/roach88/sqlitekit/internal/observer"
)

// File is the on-disk configuration.
//
//	database:
//	  path: data/app.db
//	  max_read_connections: 6
//	  idle_timeout: 30s
//	  busy_timeout: 5s
//	observer:
//	  tables: [posts]
//	  channel_capacity: 256
//	  capture_values: true
type File struct {
	Database Database `yaml:"database"`
	Observer Observer `yaml:"observer"`
}

// Database configures the connection pools.
type Database struct {
	Path               string   `yaml:"path"`
	MaxReadConnections int      `yaml:"max_read_connections,omitempty"`
	IdleTimeout        Duration `yaml:"idle_timeout,omitempty"`
	BusyTimeout        Duration `yaml:"busy_timeout,omitempty"`
}

// Observer configures change observation. Observation is enabled when
// the section lists at least one table.
type Observer struct {
	Tables          []string `yaml:"tables,omitempty"`
	ChannelCapacity int      `yaml:"channel_capacity,omitempty"`

	// CaptureValues defaults to true when omitted.
	CaptureValues *bool `yaml:"capture_values,omitempty"`
}

// Duration is a time.Duration written as "30s" or "1m30s".
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string: %w", node.Line, err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	if parsed < 0 {
		return fmt.Errorf("line %d: duration must not be negative", node.Line)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration in time.Duration string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Load reads and validates the file at path. A relative database path is
// resolved against the directory holding the file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	f, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if f.Database.Path != "" && !filepath.IsAbs(f.Database.Path) {
		f.Database.Path = filepath.Join(filepath.Dir(path), f.Database.Path)
	}
	return f, nil
}

// Parse decodes and validates YAML. Unknown fields are rejected.
func Parse(data []byte) (*File, error) {
	var f File
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &f, nil
}

func (f *File) validate() error {
	if f.Database.MaxReadConnections < 0 {
		return fmt.Errorf("database.max_read_connections must not be negative")
	}
	if f.Observer.ChannelCapacity < 0 {
		return fmt.Errorf("observer.channel_capacity must not be negative")
	}
	for i, t := range f.Observer.Tables {
		if t == "" {
			return fmt.Errorf("observer.tables[%d] must not be empty", i)
		}
	}
	return nil
}

// ConnConfig returns the pool configuration. Zero fields take the
// connmgr defaults.
func (f *File) ConnConfig(logger *slog.Logger) *connmgr.Config {
	return &connmgr.Config{
		MaxReadConnections: f.Database.MaxReadConnections,
		IdleTimeout:        time.Duration(f.Database.IdleTimeout),
		BusyTimeout:        time.Duration(f.Database.BusyTimeout),
		Logger:             logger,
	}
}

// ObserverEnabled reports whether any table is configured for observation.
func (f *File) ObserverEnabled() bool {
	return len(f.Observer.Tables) > 0
}

// ObserverConfig returns the broker configuration.
func (f *File) ObserverConfig(logger *slog.Logger) observer.Config {
	cfg := observer.DefaultConfig()
	cfg.Tables = f.Observer.Tables
	if f.Observer.ChannelCapacity > 0 {
		cfg.ChannelCapacity = f.Observer.ChannelCapacity
	}
	if f.Observer.CaptureValues != nil {
		cfg.CaptureValues = *f.Observer.CaptureValues
	}
	cfg.Logger = logger
	return cfg
}
