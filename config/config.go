package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/hapticbridge/channel"
	"github.com/c360/hapticbridge/convert"
	"github.com/c360/hapticbridge/dispatch"
	"github.com/c360/hapticbridge/errors"
	"github.com/c360/hapticbridge/stream"
)

// Vendor SDK selections
const (
	VendorSDKNone     = "none"
	VendorSDKLoopback = "loopback"
)

// Config is the complete bridge configuration.
type Config struct {
	WSURL            string   `yaml:"ws_url" json:"ws_url"`
	ClientID         string   `yaml:"client_id" json:"client_id"`
	Debug            bool     `yaml:"debug" json:"debug"`
	Mode             string   `yaml:"mode" json:"mode"`
	PingInterval     Duration `yaml:"ping_interval" json:"ping_interval"`
	PingTimeout      Duration `yaml:"ping_timeout" json:"ping_timeout"`
	HandshakeTimeout Duration `yaml:"handshake_timeout" json:"handshake_timeout"`
	ReconnectInitial Duration `yaml:"reconnect_initial" json:"reconnect_initial"`
	ReconnectMax     Duration `yaml:"reconnect_max" json:"reconnect_max"`

	Serial     SerialConfig       `yaml:"serial" json:"serial"`
	Vendor     VendorConfig       `yaml:"vendor" json:"vendor"`
	ColorNodes convert.ColorNodes `yaml:"color_nodes" json:"color_nodes"`
	Metrics    MetricsConfig      `yaml:"metrics" json:"metrics"`
	NATS       NATSConfig         `yaml:"nats" json:"nats"`
}

// SerialConfig configures the serial actuator bus. An empty port disables it.
type SerialConfig struct {
	Port        string   `yaml:"port" json:"port"`
	Baudrate    int      `yaml:"baudrate" json:"baudrate"`
	Terminator  string   `yaml:"terminator" json:"terminator"`
	ChunkSize   int      `yaml:"chunk_size" json:"chunk_size"`
	ChunkDelay  Duration `yaml:"chunk_delay" json:"chunk_delay"`
	SettleDelay Duration `yaml:"settle_delay" json:"settle_delay"`
}

// VendorConfig selects the vendor engine.
type VendorConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	SDK     string `yaml:"sdk" json:"sdk"`
}

// MetricsConfig configures the Prometheus endpoint. Port 0 disables it.
type MetricsConfig struct {
	Port int    `yaml:"port" json:"port"`
	Path string `yaml:"path" json:"path"`
}

// NATSConfig configures dispatch result publishing. An empty URL disables it.
type NATSConfig struct {
	URL     string `yaml:"url" json:"url"`
	Subject string `yaml:"subject" json:"subject"`
}

// Default returns the stock configuration.
func Default() *Config {
	serial := channel.DefaultSerialConfig()
	streamCfg := stream.DefaultConfig()
	return &Config{
		WSURL:            "ws://localhost:8000",
		ClientID:         "test",
		Mode:             string(dispatch.ModeAuto),
		PingInterval:     Duration(streamCfg.PingInterval),
		PingTimeout:      Duration(streamCfg.PingTimeout),
		HandshakeTimeout: Duration(streamCfg.HandshakeTimeout),
		ReconnectInitial: Duration(streamCfg.ReconnectInitial),
		ReconnectMax:     Duration(streamCfg.ReconnectMax),
		Serial: SerialConfig{
			Baudrate:    serial.Baudrate,
			ChunkSize:   serial.ChunkSize,
			ChunkDelay:  Duration(serial.ChunkDelay),
			SettleDelay: Duration(serial.SettleDelay),
		},
		Vendor:     VendorConfig{SDK: VendorSDKNone},
		ColorNodes: convert.DefaultColorNodes(),
		Metrics:    MetricsConfig{Path: "/metrics"},
		NATS:       NATSConfig{Subject: "hapticbridge.dispatch"},
	}
}

// Validate checks the configuration for values the bridge cannot run with.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.WSURL) == "" {
		problems = append(problems, "ws_url is required")
	}
	if _, err := dispatch.ParseMode(c.Mode); err != nil {
		problems = append(problems, fmt.Sprintf("mode %q must be one of serial, vendor, both, auto, none", c.Mode))
	}
	for name, d := range map[string]Duration{
		"ping_interval":     c.PingInterval,
		"ping_timeout":      c.PingTimeout,
		"handshake_timeout": c.HandshakeTimeout,
		"reconnect_initial": c.ReconnectInitial,
		"reconnect_max":     c.ReconnectMax,
	} {
		if d <= 0 {
			problems = append(problems, name+" must be positive")
		}
	}
	if c.ReconnectInitial > c.ReconnectMax {
		problems = append(problems, "reconnect_initial must not exceed reconnect_max")
	}
	if c.Serial.Baudrate <= 0 {
		problems = append(problems, "serial.baudrate must be positive")
	}
	if c.Serial.ChunkSize <= 0 {
		problems = append(problems, "serial.chunk_size must be positive")
	}
	if c.Serial.ChunkDelay < 0 || c.Serial.SettleDelay < 0 {
		problems = append(problems, "serial delays must not be negative")
	}
	if c.Vendor.Enabled && c.Vendor.SDK != VendorSDKNone && c.Vendor.SDK != VendorSDKLoopback {
		problems = append(problems, fmt.Sprintf("vendor.sdk %q must be none or loopback", c.Vendor.SDK))
	}
	for name, n := range map[string]int{"red": c.ColorNodes.Red, "green": c.ColorNodes.Green, "blue": c.ColorNodes.Blue} {
		if n < 0 {
			problems = append(problems, "color_nodes."+name+" must not be negative")
		}
	}
	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		problems = append(problems, "metrics.port out of range")
	}
	if c.NATS.URL != "" && c.NATS.Subject == "" {
		problems = append(problems, "nats.subject is required when nats.url is set")
	}

	if len(problems) > 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(problems, "; ")),
			"Config", "Validate", "check values")
	}
	return nil
}

// URL returns the sanitized listen URL.
func (c *Config) URL() string {
	return SanitizeURL(c.WSURL, c.ClientID)
}

// ParsedMode returns the configured output mode, auto when unparsable.
func (c *Config) ParsedMode() dispatch.Mode {
	m, err := dispatch.ParseMode(c.Mode)
	if err != nil {
		return dispatch.ModeAuto
	}
	return m
}

// Stream returns the stream loop configuration.
func (c *Config) Stream() stream.Config {
	return stream.Config{
		URL:              c.URL(),
		PingInterval:     c.PingInterval.Std(),
		PingTimeout:      c.PingTimeout.Std(),
		HandshakeTimeout: c.HandshakeTimeout.Std(),
		ReconnectInitial: c.ReconnectInitial.Std(),
		ReconnectMax:     c.ReconnectMax.Std(),
	}
}

// SerialChannel returns the serial channel configuration.
func (c *Config) SerialChannel() channel.SerialConfig {
	return channel.SerialConfig{
		Port:        c.Serial.Port,
		Baudrate:    c.Serial.Baudrate,
		Terminator:  c.Serial.Terminator,
		ChunkSize:   c.Serial.ChunkSize,
		ChunkDelay:  c.Serial.ChunkDelay.Std(),
		SettleDelay: c.Serial.SettleDelay.Std(),
	}
}

// ConverterOptions returns the frame converter options.
func (c *Config) ConverterOptions() convert.Options {
	return convert.Options{ColorNodes: c.ColorNodes}
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// SaveToFile writes the configuration as YAML, or JSON for a .json path.
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	if strings.HasSuffix(strings.ToLower(path), ".json") {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return errors.Wrap(err, "Config", "SaveToFile", "encode")
	}
	if err := safeWriteFile(path, data); err != nil {
		return errors.Wrap(err, "Config", "SaveToFile", "write")
	}
	return nil
}

func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// seconds converts an env value of whole seconds or a duration string.
func seconds(v string) (Duration, error) {
	d, err := ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", time.Duration(d))
	}
	return d, nil
}
