// Package config provides configuration management for replbox.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Config represents the service configuration.
type Config struct {
	Service ServiceConfig `toml:"service"`
	Execute ExecuteConfig `toml:"execute"`
	Logging LoggingConfig `toml:"logging"`
}

// ServiceConfig contains service-level settings.
type ServiceConfig struct {
	DataDir        string `toml:"data_dir"`
	MaxRequestSize int64  `toml:"max_request_size_bytes"`
}

// ExecuteConfig contains sandbox execution settings. The timeout is
// advisory: enforcement belongs to the host process that owns this one.
type ExecuteConfig struct {
	DefaultTimeoutMs int  `toml:"default_timeout_ms"`
	CaptureOutput    bool `toml:"capture_output"`
}

// LoggingConfig contains logging settings. Output never includes the
// console while serving: standard output carries the protocol stream.
type LoggingConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	TimeFormat string `toml:"time_format"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

// DefaultConfig returns the default configuration with all values set.
// REPLBOX_DATA_DIR overrides the data directory.
func DefaultConfig() *Config {
	dataDir := DefaultDataDir()
	if envDir := os.Getenv("REPLBOX_DATA_DIR"); envDir != "" {
		dataDir = envDir
	}

	maxRequest := int64(10 * 1024 * 1024)
	if envMax := os.Getenv("REPLBOX_MAX_REQUEST_BYTES"); envMax != "" {
		if n, err := strconv.ParseInt(envMax, 10, 64); err == nil && n > 0 {
			maxRequest = n
		}
	}

	level := "info"
	if envLevel := os.Getenv("REPLBOX_LOG_LEVEL"); envLevel != "" {
		level = envLevel
	}

	return &Config{
		Service: ServiceConfig{
			DataDir:        dataDir,
			MaxRequestSize: maxRequest,
		},
		Execute: ExecuteConfig{
			DefaultTimeoutMs: 30000,
			CaptureOutput:    true,
		},
		Logging: LoggingConfig{
			Level:      level,
			Format:     "text",
			TimeFormat: "15:04:05.000",
			MaxSizeMB:  100,
			MaxBackups: 5,
		},
	}
}

// Load reads the TOML config at path, merged over defaults. A missing file
// is not an error; the defaults apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Service.MaxRequestSize <= 0 {
		return fmt.Errorf("max_request_size_bytes must be positive")
	}
	if c.Execute.DefaultTimeoutMs < 0 {
		return fmt.Errorf("default_timeout_ms must not be negative")
	}
	switch c.Logging.Level {
	case "", "trace", "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	return nil
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() string {
	return filepath.Join(DefaultDataDir(), "config.toml")
}

// DefaultDataDir returns the default data directory based on OS.
func DefaultDataDir() string {
	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "replbox")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "AppData", "Roaming", "replbox")
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "replbox")
	default: // linux and others
		xdgData := os.Getenv("XDG_DATA_HOME")
		if xdgData != "" {
			return filepath.Join(xdgData, "replbox")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".replbox")
	}
}

// ExampleConfig is the commented template written by `replbox init-config`.
const ExampleConfig = `# replbox configuration

[service]
# data_dir = "~/.replbox"
# max_request_size_bytes = 10485760

[execute]
# Advisory execution timeout applied when a request omits timeout_ms.
# The host process is responsible for enforcement.
# default_timeout_ms = 30000
# capture_output = true

[logging]
# level = "info"          # trace, debug, info, warn, error
# format = "text"         # text or json
# time_format = "15:04:05.000"
# max_size_mb = 100
# max_backups = 5
`

// WriteExample writes the example config to path, refusing to overwrite.
func WriteExample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, []byte(ExampleConfig), 0644)
}
