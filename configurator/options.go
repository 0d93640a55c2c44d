package configurator

import (
	"context"
	"time"

	"github.com/talos-macropad/go-talos/serial"
)

// Dialer opens the connection used by Connect.
type Dialer func(ctx context.Context) (Conn, error)

// Config holds the configurator configuration.
type Config struct {
	// ProgressCallback is called during Apply (optional)
	ProgressCallback ProgressCallback

	// Logger is used for logging operations (optional)
	Logger Logger

	// AckTimeout bounds the wait for a single line acknowledgement
	AckTimeout time.Duration

	// ConfigTimeout bounds the wait for each record of the GET_CONF stream
	ConfigTimeout time.Duration

	// ReadyTimeout bounds the wait for READY during a script upload
	ReadyTimeout time.Duration

	// SettleDelay is the pause after opening the port before the first command
	SettleDelay time.Duration

	// StepDelay is the pause between changes written by Apply
	StepDelay time.Duration

	// Serial selects and configures the port used by the default dialer
	Serial serial.Config

	// Dialer replaces the serial port dialer (optional)
	Dialer Dialer
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		AckTimeout:    5 * time.Second,
		ConfigTimeout: 10 * time.Second,
		ReadyTimeout:  2 * time.Second,
		SettleDelay:   500 * time.Millisecond,
		StepDelay:     150 * time.Millisecond,
		Serial:        serial.DefaultConfig(),
	}
}

// Option is a functional option for configuring the Configurator.
type Option func(*Config)

// WithProgressCallback sets a callback function to track Apply progress.
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithLogger sets a logger for configurator, transport and reader diagnostics.
//
// Example:
//
//	cfg := configurator.New(configurator.WithLogger(myLogger))
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithAckTimeout sets the acknowledgement timeout.
func WithAckTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.AckTimeout = timeout
		}
	}
}

// WithConfigTimeout sets the per-record timeout of a config read.
func WithConfigTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.ConfigTimeout = timeout
		}
	}
}

// WithReadyTimeout sets the timeout of the script upload handshake.
func WithReadyTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.ReadyTimeout = timeout
		}
	}
}

// WithSettleDelay sets the delay between opening the port and the first command.
func WithSettleDelay(delay time.Duration) Option {
	return func(c *Config) {
		if delay >= 0 {
			c.SettleDelay = delay
		}
	}
}

// WithStepDelay sets the delay between changes written by Apply.
func WithStepDelay(delay time.Duration) Option {
	return func(c *Config) {
		if delay >= 0 {
			c.StepDelay = delay
		}
	}
}

// WithSerialConfig sets the port used by the default dialer.
//
// Example:
//
//	sc := serial.DefaultConfig()
//	sc.Device = "/dev/ttyACM1"
//	cfg := configurator.New(configurator.WithSerialConfig(sc))
func WithSerialConfig(sc serial.Config) Option {
	return func(c *Config) {
		c.Serial = sc
	}
}

// WithDialer replaces the serial port dialer, e.g. with a simulator.
func WithDialer(d Dialer) Option {
	return func(c *Config) {
		c.Dialer = d
	}
}
