// Package config carries the process configuration surface.
// Precedence: built-in defaults, then PARLOR_* environment variables,
// then command-line flags applied by the binary.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the server's tunable surface.
type Config struct {
	// ListenAddr is the address the server accepts connections on.
	ListenAddr string `env:"PARLOR_LISTEN_ADDR"`
	// MinSendInterval is the minimum spacing between two accepted
	// sends in one session.
	MinSendInterval time.Duration `env:"PARLOR_MIN_SEND_INTERVAL"`
	// MaxMessageLength bounds a single message text, in bytes.
	MaxMessageLength int `env:"PARLOR_MAX_MESSAGE_LENGTH"`
	// Backlog bounds how many connections may be open at once.
	Backlog int `env:"PARLOR_BACKLOG"`
	// Quiet raises the log level so only errors are emitted.
	Quiet bool `env:"PARLOR_QUIET"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ListenAddr:       ":5000",
		MinSendInterval:  time.Second,
		MaxMessageLength: 4096,
		Backlog:          64,
	}
}

// Load returns the defaults overridden by any PARLOR_* environment
// variables.
func Load() (*Config, error) {
	cfg := Default()
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address cannot be empty")
	}
	if c.MinSendInterval < 0 {
		return fmt.Errorf("minimum send interval cannot be negative")
	}
	if c.MaxMessageLength < 0 {
		return fmt.Errorf("maximum message length cannot be negative")
	}
	if c.Backlog < 0 {
		return fmt.Errorf("backlog cannot be negative")
	}
	return nil
}
