// Package main is the entry point for the user service gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/vyrodovalexey/usergw/internal/config"
	"github.com/vyrodovalexey/usergw/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	envFile     string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	os.Exit(run(flags))
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", os.Getenv("USERGW_CONFIG_PATH"), "Path to an optional YAML configuration file")
	envFile := flag.String("env-file", ".env", "Path to an optional dotenv file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		envFile:     *envFile,
		showVersion: *showVersion,
	}
}

// printVersion prints version information.
func printVersion() {
	fmt.Printf("usergw version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// run loads the configuration, builds the application and runs it to
// completion, returning the process exit code.
func run(flags cliFlags) int {
	cfg, err := config.Load(config.Sources{File: flags.configPath, EnvFile: flags.envFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return 1
	}
	if cfg.Service.Version == "" {
		cfg.Service.Version = version
	}

	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting usergw",
		observability.String("version", cfg.Service.Version),
		observability.String("service", cfg.Service.Name),
		observability.String("config", flags.configPath),
	)

	app, err := newApplication(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize application", observability.Error(err))
		return 1
	}

	return app.run(context.Background())
}
