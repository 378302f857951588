// Package main implements the flowcanvas command. It drives flow documents
// without a canvas: checking them against the instruction catalogue,
// running them on the remote engine, and moving them between files, the
// flow store and compressed archives.
package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/c360/flowcanvas/config"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "flowcanvas"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if stderrors.Is(err, flag.ErrHelp) {
			return
		}
		slog.Error("Command failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	cliCfg, shouldExit, err := initializeCLI(args, stdout, stderr)
	if shouldExit || err != nil {
		return err
	}

	cfg, err := initializeConfiguration(cliCfg)
	if err != nil {
		return err
	}

	logger := setupLogger(stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)
	slog.Debug("Starting flowcanvas",
		"version", Version,
		"command", cliCfg.Command,
		"config_path", cliCfg.ConfigPath)

	if cliCfg.Command == "config" {
		_, _ = fmt.Fprintln(stdout, cfg.String())
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close(cliCfg.ShutdownTimeout)

	return a.dispatch(ctx, cliCfg, stdout)
}

// initializeCLI parses and validates flags
func initializeCLI(args []string, stdout, stderr io.Writer) (*CLIConfig, bool, error) {
	cliCfg, err := parseFlags(args, stderr)
	if err != nil {
		return nil, true, err
	}

	if cliCfg.ShowVersion {
		_, _ = fmt.Fprintf(stdout, "%s version %s\n", appName, Version)
		return nil, true, nil
	}

	if cliCfg.ShowHelp {
		return nil, true, nil
	}

	if err := validateFlags(cliCfg); err != nil {
		return nil, true, fmt.Errorf("invalid flags: %w", err)
	}
	return cliCfg, false, nil
}

// initializeConfiguration loads and validates configuration. Flags override
// the logging section.
func initializeConfiguration(cliCfg *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()
	loader.EnableValidation(false)
	if cliCfg.ConfigPath != "" {
		loader.AddLayer(cliCfg.ConfigPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cliCfg.LogLevel != "" {
		cfg.Log.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Log.Format = cliCfg.LogFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
