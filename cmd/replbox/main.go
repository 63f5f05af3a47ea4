// Package main provides the entry point for replbox.
//
// replbox is a sandboxed code-execution service driven over line-delimited
// JSON-RPC on stdin/stdout. A host process spawns it, executes small
// scripts in a restricted namespace, and resolves the deferred operations
// (LLM calls, summarization, embeddings) those scripts request.
//
// Usage:
//
//	replbox                  Start the server (default)
//	replbox serve            Start the server
//	replbox version          Show version
//	replbox init-config      Create example configuration file
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ternarybob/replbox/internal/config"
	"github.com/ternarybob/replbox/internal/logger"
	"github.com/ternarybob/replbox/internal/server"
)

// version is set via -ldflags at build time
var version = "0.1.0"

// Command-line flags
var (
	configPath string
)

func main() {
	// A local .env can carry REPLBOX_* overrides during development.
	_ = godotenv.Load()

	// Parse global flags that appear before the command
	args := os.Args[1:]
	command := ""

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if strings.HasPrefix(arg, "--config=") {
			configPath = strings.TrimPrefix(arg, "--config=")
		} else if arg == "--config" && i+1 < len(args) {
			configPath = args[i+1]
			i++
		} else if strings.HasPrefix(arg, "-") {
			// Skip unknown flags for now
		} else if command == "" {
			command = arg
		}
	}

	if command == "" {
		command = "serve"
	}

	var err error
	switch command {
	case "serve", "start":
		err = cmdServe()
	case "version", "-v", "--version":
		cmdVersion()
	case "init-config":
		err = cmdInitConfig()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`replbox - sandboxed script execution over stdio JSON-RPC

Usage:
  replbox [flags] [command]

Commands:
  serve         Start the server on stdin/stdout (default)
  version       Show version information
  init-config   Create example configuration file
  help          Show this help

Flags:
  --config PATH   Path to configuration file (default: ~/.replbox/config.toml)

Environment:
  REPLBOX_CONFIG             Path to configuration file (alternative to --config)
  REPLBOX_DATA_DIR           Override data directory
  REPLBOX_LOG_LEVEL          Override log level
  REPLBOX_MAX_REQUEST_BYTES  Override maximum request line size

Notes:
  Standard output carries the JSON-RPC stream; logs are written under
  <data_dir>/logs. The host process owns execution timeouts and process
  lifetime.`)
}

func cmdVersion() {
	fmt.Printf("replbox version %s\n", version)
}

func getConfigPath() string {
	// Priority: --config flag > REPLBOX_CONFIG env > default
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("REPLBOX_CONFIG"); envPath != "" {
		return envPath
	}
	return config.DefaultConfigPath()
}

func cmdServe() error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if envDataDir := os.Getenv("REPLBOX_DATA_DIR"); envDataDir != "" {
		cfg.Service.DataDir = envDataDir
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log := logger.SetupLogger(cfg)
	defer logger.Stop()

	// Re-apply reloadable settings when the config file changes.
	watcher, err := config.NewWatcher(getConfigPath(), func(next *config.Config) {
		logger.ApplyLevel(next.Logging.Level)
		logger.GetLogger().Info().Str("level", next.Logging.Level).Msg("config reloaded")
	})
	if err == nil {
		if werr := watcher.Start(); werr == nil {
			defer watcher.Stop()
		}
	}

	srv := server.New(cfg, version, os.Stdin, os.Stdout)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		srv.Stop()
	}()

	return srv.Run()
}

func cmdInitConfig() error {
	path := getConfigPath()
	if err := config.WriteExample(path); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}
