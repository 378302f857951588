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
	Debug           bool
	ShutdownTimeout time.Duration
	RunTimeout      time.Duration
	ShowVersion     bool
	ShowHelp        bool

	Command string
	Args    []string
}

// commands maps every subcommand to its positional argument count.
var commands = map[string]int{
	"config":    0,
	"health":    0,
	"catalogue": 0,
	"check":     1,
	"run":       1,
	"save":      1,
	"list":      0,
	"delete":    1,
	"export":    2,
	"import":    1,
	"history":   1,
}

func parseFlags(args []string, stderr io.Writer) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(stderr)

	// Define flags with environment variable fallback
	fs.StringVar(&cfg.ConfigPath, "config",
		getEnv("FLOWCANVAS_CONFIG", ""),
		"Path to a JSON or YAML configuration file (env: FLOWCANVAS_CONFIG)")

	fs.StringVar(&cfg.ConfigPath, "c",
		getEnv("FLOWCANVAS_CONFIG", ""),
		"Path to a JSON or YAML configuration file (env: FLOWCANVAS_CONFIG)")

	fs.StringVar(&cfg.LogLevel, "log-level", "",
		"Log level: debug, info, warn, error; overrides log.level")

	fs.StringVar(&cfg.LogFormat, "log-format", "",
		"Log format: json, text; overrides log.format")

	fs.BoolVar(&cfg.Debug, "debug",
		getEnvBool("FLOWCANVAS_DEBUG", false),
		"Enable debug logging (env: FLOWCANVAS_DEBUG)")

	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("FLOWCANVAS_SHUTDOWN_TIMEOUT", 10*time.Second),
		"Graceful shutdown timeout (env: FLOWCANVAS_SHUTDOWN_TIMEOUT)")

	fs.DurationVar(&cfg.RunTimeout, "run-timeout",
		getEnvDuration("FLOWCANVAS_RUN_TIMEOUT", 0),
		"Give up on a run after this long, 0 waits forever (env: FLOWCANVAS_RUN_TIMEOUT)")

	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	fs.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")

	fs.Usage = func() {
		printDetailedHelp(fs, stderr)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.ShowHelp {
		fs.Usage()
	}

	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	if rest := fs.Args(); len(rest) > 0 {
		cfg.Command = rest[0]
		cfg.Args = rest[1:]
	}
	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	// Skip validation for special flags
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if cfg.Command == "" {
		return fmt.Errorf("missing command")
	}
	want, ok := commands[cfg.Command]
	if !ok {
		return fmt.Errorf("unknown command: %s", cfg.Command)
	}
	if len(cfg.Args) != want {
		return fmt.Errorf("%s takes %d argument(s), got %d", cfg.Command, want, len(cfg.Args))
	}

	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}

	if cfg.LogLevel != "" && !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if cfg.LogFormat != "" && !slices.Contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout: %s", cfg.ShutdownTimeout)
	}
	if cfg.RunTimeout < 0 {
		return fmt.Errorf("invalid run timeout: %s", cfg.RunTimeout)
	}
	return nil
}

func printDetailedHelp(fs *flag.FlagSet, w io.Writer) {
	_, _ = fmt.Fprintf(w, `%s - headless flow editor

Usage: %s [options] <command> [args]

Commands:
  config                 validate the configuration and print it
  health                 probe the engine, flow store, catalogue and NATS
  catalogue              list the instruction catalogue by category
  check <flow>           validate a flow file against the catalogue
  run <flow|id>          run a flow file or stored flow and wait for it
  save <flow>            save a flow file to the store, printing its id
  list                   list stored flows
  delete <id>            delete a stored flow
  export <id> <file>     write a stored flow to a compressed archive (.fca)
  import <file>          save a flow file or archive to the store
  history <id>           list past runs of a stored flow

Options:
`, appName, appName)
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(w, `
Examples:
  # Check a flow before running it
  %s --config=flowcanvas.yaml check flows/report.json

  # Run with debug logging
  %s --log-level=debug --log-format=text run flows/report.json

  # Run against another engine
  export FLOWCANVAS_ENGINE_URL=http://engine.internal:8000
  %s run 3f2a9c

Environment is read from .env when present.

Version: %s
Build: %s
`, appName, appName, appName, Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
