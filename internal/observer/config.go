package observer

import (
	"log/slog"
	"time"
)

// DefaultChannelCapacity is the broadcast buffer size when Config leaves it zero.
const DefaultChannelCapacity = 256

// Clock supplies change timestamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Config configures a Broker. Start from DefaultConfig; the zero value
// disables value capture.
type Config struct {
	// Tables are observed from the start, before any Subscribe.
	Tables []string

	// ChannelCapacity bounds the broadcast buffer. Default 256.
	ChannelCapacity int

	// CaptureValues includes old/new column values in changes.
	CaptureValues bool

	// Clock stamps changes. Nil uses the system clock.
	Clock Clock

	// Logger receives schema-resolution and key-extraction warnings.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with value capture enabled.
func DefaultConfig() Config {
	return Config{
		ChannelCapacity: DefaultChannelCapacity,
		CaptureValues:   true,
	}
}

func (c Config) withDefaults() Config {
	if c.ChannelCapacity <= 0 {
		c.ChannelCapacity = DefaultChannelCapacity
	}
	if c.Clock == nil {
		c.Clock = systemClock{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}
