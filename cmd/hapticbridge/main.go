// Package main implements the hapticbridge command. It connects to the haptic
// message stream and drives serial and vendor haptic devices.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/c360/hapticbridge/config"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "hapticbridge"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Getenv, os.Stdout, os.Stderr); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, getenv func(string) string, stdout, stderr io.Writer) error {
	cliCfg, err := parseFlags(args, getenv, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		_, _ = fmt.Fprintf(stdout, "%s version %s\n", appName, Version)
		return nil
	}

	cfg, err := loadConfig(cliCfg.ConfigPath)
	if err != nil {
		return err
	}
	if cfg.Debug {
		cliCfg.LogLevel = "debug"
	}

	logger, closer, err := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat, cliCfg.LogFile, stdout)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = closer.Close() }()
	slog.SetDefault(logger)

	if cliCfg.Validate {
		logger.Info("Configuration is valid", "url", cfg.URL(), "mode", cfg.ParsedMode().String())
		return nil
	}

	if cliCfg.SaveConfig != "" {
		if err := cfg.SaveToFile(cliCfg.SaveConfig); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		logger.Info("Configuration saved", "path", cliCfg.SaveConfig)
		return nil
	}

	logger.Info("Starting hapticbridge",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath,
		"url", cfg.URL(),
		"mode", cfg.ParsedMode().String())

	b, err := newBridge(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.close(); err != nil {
			logger.Warn("Shutdown cleanup failed", "error", err)
		}
	}()

	if err := b.run(ctx, cliCfg.ShutdownTimeout); err != nil {
		return err
	}
	logger.Info("hapticbridge shutdown complete")
	return nil
}

// loadConfig loads defaults, the optional file and BHX_* overrides.
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = loader.LoadFile(path)
	} else {
		cfg, err = loader.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
