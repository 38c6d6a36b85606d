package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/hapticbridge/errors"
)

// DefaultEnvPrefix prefixes every environment override.
const DefaultEnvPrefix = "BHX"

// Loader builds a Config from defaults, file layers and environment overrides.
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
	lookupEnv  func(string) (string, bool)
}

// NewLoader creates a loader with validation enabled.
func NewLoader() *Loader {
	return &Loader{
		validation: true,
		envPrefix:  DefaultEnvPrefix,
		lookupEnv:  os.LookupEnv,
	}
}

// AddLayer adds a file layer. Later layers override earlier ones.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation turns validation of the final configuration on or off.
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads a single file layer on top of the defaults.
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load applies defaults, every file layer, then environment overrides.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	for _, path := range l.layers {
		if err := l.loadLayer(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// loadLayer decodes path onto cfg. Keys missing from the file keep their value.
// YAML is a superset of JSON, so .json files decode the same way.
func (l *Loader) loadLayer(path string, cfg *Config) error {
	data, err := safeReadFile(path)
	if err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err), "Loader", "Load", "read "+path)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err), "Loader", "Load", "decode "+path)
	}
	return nil
}

func (l *Loader) env(name string) (string, bool) {
	key := l.envPrefix + "_" + name
	val, ok := l.lookupEnv(key)
	if !ok {
		return "", false
	}
	if err := validateEnvVar(key, val); err != nil {
		return "", false
	}
	return val, true
}

// applyEnvOverrides applies the <prefix>_* variables. Duration values accept whole
// seconds or Go duration strings.
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"WS_URL":      &cfg.WSURL,
		"CLIENT_ID":   &cfg.ClientID,
		"MODE":        &cfg.Mode,
		"SERIAL_PORT": &cfg.Serial.Port,
		"VENDOR_SDK":  &cfg.Vendor.SDK,
		"NATS_URL":    &cfg.NATS.URL,
	}
	for name, dst := range strs {
		if v, ok := l.env(name); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	cfg.Mode = strings.ToLower(cfg.Mode)

	if v, ok := l.env("VENDOR_SDK"); ok && v != "" && v != VendorSDKNone {
		cfg.Vendor.Enabled = true
	}
	if v, ok := l.env("DEBUG"); ok {
		cfg.Debug = parseBool(v)
	}

	ints := map[string]*int{
		"SERIAL_BAUD":  &cfg.Serial.Baudrate,
		"METRICS_PORT": &cfg.Metrics.Port,
	}
	for name, dst := range ints {
		v, ok := l.env(name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return l.envError(name, v, err)
		}
		*dst = n
	}

	durations := map[string]*Duration{
		"PING_INTERVAL":     &cfg.PingInterval,
		"PING_TIMEOUT":      &cfg.PingTimeout,
		"RECONNECT_INITIAL": &cfg.ReconnectInitial,
		"RECONNECT_MAX":     &cfg.ReconnectMax,
	}
	for name, dst := range durations {
		v, ok := l.env(name)
		if !ok {
			continue
		}
		d, err := seconds(v)
		if err != nil {
			return l.envError(name, v, err)
		}
		*dst = d
	}
	return nil
}

func (l *Loader) envError(name, value string, err error) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s_%s=%q: %v", errors.ErrInvalidConfig, l.envPrefix, name, value, err),
		"Loader", "Load", "apply environment")
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
