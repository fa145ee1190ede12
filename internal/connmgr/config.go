package connmgr

import (
	"log/slog"
	"time"
)

// Default configuration values.
const (
	DefaultMaxReadConnections = 6
	DefaultIdleTimeout        = 30 * time.Second
	DefaultBusyTimeout        = 5 * time.Second
)

// Config controls pool sizing and timeouts. Zero fields take defaults.
type Config struct {
	// MaxReadConnections bounds the read pool. Default 6.
	MaxReadConnections int

	// IdleTimeout closes pooled connections (read and write) that stay
	// idle this long. Default 30s.
	IdleTimeout time.Duration

	// BusyTimeout is how long SQLite retries a locked database before
	// returning SQLITE_BUSY. Default 5s.
	BusyTimeout time.Duration

	// Logger receives lifecycle messages. Nil uses slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns the configuration used when Connect gets nil.
func DefaultConfig() Config {
	return Config{
		MaxReadConnections: DefaultMaxReadConnections,
		IdleTimeout:        DefaultIdleTimeout,
		BusyTimeout:        DefaultBusyTimeout,
	}
}

// withDefaults fills zero fields.
func (c Config) withDefaults() Config {
	if c.MaxReadConnections <= 0 {
		c.MaxReadConnections = DefaultMaxReadConnections
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = DefaultBusyTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}
