package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	LogFile         string
	Debug           bool
	ShutdownTimeout time.Duration
	ShowVersion     bool
	Validate        bool
	SaveConfig      string
}

// parseFlags reads args with HAPTICBRIDGE_* environment fallbacks. getenv is
// os.Getenv outside tests.
func parseFlags(args []string, getenv func(string) string, stderr io.Writer) (*CLIConfig, error) {
	env := envReader{getenv: getenv}
	cfg := &CLIConfig{}

	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&cfg.ConfigPath, "config",
		env.str("HAPTICBRIDGE_CONFIG", ""),
		"Path to a YAML or JSON configuration file (env: HAPTICBRIDGE_CONFIG)")
	fs.StringVar(&cfg.ConfigPath, "c",
		env.str("HAPTICBRIDGE_CONFIG", ""),
		"Path to a YAML or JSON configuration file (env: HAPTICBRIDGE_CONFIG)")

	fs.StringVar(&cfg.LogLevel, "log-level",
		env.str("HAPTICBRIDGE_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: HAPTICBRIDGE_LOG_LEVEL)")

	fs.StringVar(&cfg.LogFormat, "log-format",
		env.str("HAPTICBRIDGE_LOG_FORMAT", "text"),
		"Log format: json, text (env: HAPTICBRIDGE_LOG_FORMAT)")

	fs.StringVar(&cfg.LogFile, "log-file",
		env.str("HAPTICBRIDGE_LOG_FILE", ""),
		"Also append logs to this file (env: HAPTICBRIDGE_LOG_FILE)")

	fs.BoolVar(&cfg.Debug, "debug",
		env.boolean("HAPTICBRIDGE_DEBUG", false),
		"Enable debug logging (env: HAPTICBRIDGE_DEBUG)")

	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		env.duration("HAPTICBRIDGE_SHUTDOWN_TIMEOUT", 10*time.Second),
		"Graceful shutdown timeout (env: HAPTICBRIDGE_SHUTDOWN_TIMEOUT)")

	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")
	fs.StringVar(&cfg.SaveConfig, "save-config", "",
		"Write the effective configuration to this path and exit")

	fs.Usage = func() { printDetailedHelp(fs, stderr) }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion {
		return nil
	}

	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	if !slices.Contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout: %s", cfg.ShutdownTimeout)
	}

	return nil
}

func printDetailedHelp(fs *flag.FlagSet, w io.Writer) {
	_, _ = fmt.Fprintf(w, `%s - WebSocket to haptic device bridge

Usage: %s [options]

Options:
`, appName, appName)
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(w, `
Bridge settings come from the config file and BHX_* variables, for example:
  BHX_WS_URL=wss://haptics.example.com BHX_CLIENT_ID=studio-1 BHX_SERIAL_PORT=/dev/ttyACM0 %s

Examples:
  # Run with a config file and text logs
  %s --config=bridge.yaml --log-format=text

  # Check a configuration without connecting
  %s --config=bridge.yaml --validate

  # Persist the effective configuration
  %s --save-config=bridge.yaml

Version: %s
Build: %s
`, appName, appName, appName, appName, Version, BuildTime)
}

type envReader struct {
	getenv func(string) string
}

func (e envReader) str(key, defaultValue string) string {
	if value := e.getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (e envReader) boolean(key string, defaultValue bool) bool {
	if value := e.getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func (e envReader) duration(key string, defaultValue time.Duration) time.Duration {
	if value := e.getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
