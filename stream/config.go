package stream

import (
	"fmt"
	"net/url"
	"time"

	"github.com/c360/hapticbridge/errors"
)

// Config configures the stream loop.
type Config struct {
	URL              string        `yaml:"url" json:"url"`
	PingInterval     time.Duration `yaml:"ping_interval" json:"ping_interval"`
	PingTimeout      time.Duration `yaml:"ping_timeout" json:"ping_timeout"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" json:"handshake_timeout"`
	ReconnectInitial time.Duration `yaml:"reconnect_initial" json:"reconnect_initial"`
	ReconnectMax     time.Duration `yaml:"reconnect_max" json:"reconnect_max"`
}

// DefaultConfig returns the stock timings: protocol ping every 25s with a 10s
// timeout, reconnect backoff from 2s doubling up to 30s.
func DefaultConfig() Config {
	return Config{
		PingInterval:     25 * time.Second,
		PingTimeout:      10 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		ReconnectInitial: 2 * time.Second,
		ReconnectMax:     30 * time.Second,
	}
}

// withDefaults fills zero timings from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = d.PingTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.ReconnectInitial <= 0 {
		c.ReconnectInitial = d.ReconnectInitial
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = d.ReconnectMax
	}
	return c
}

// Validate checks the URL and timings.
func (c Config) Validate() error {
	if c.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "StreamLoop", "Validate", "check url")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err), "StreamLoop", "Validate", "parse url")
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return errors.WrapInvalid(fmt.Errorf("%w: scheme %q", errors.ErrInvalidConfig, u.Scheme),
			"StreamLoop", "Validate", "check url scheme")
	}
	if c.ReconnectMax > 0 && c.ReconnectInitial > c.ReconnectMax {
		return errors.WrapInvalid(fmt.Errorf("%w: reconnect_initial above reconnect_max", errors.ErrInvalidConfig),
			"StreamLoop", "Validate", "check backoff")
	}
	return nil
}
