package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.NotEmpty(t, cfg.Service.DataDir)
	assert.Equal(t, int64(10*1024*1024), cfg.Service.MaxRequestSize)
	assert.Equal(t, 30000, cfg.Execute.DefaultTimeoutMs)
	assert.True(t, cfg.Execute.CaptureOutput)
	assert.Equal(t, "info", cfg.Logging.Level)
	require.NoError(t, cfg.Validate())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("REPLBOX_DATA_DIR", "/tmp/replbox-test")
	t.Setenv("REPLBOX_LOG_LEVEL", "debug")
	t.Setenv("REPLBOX_MAX_REQUEST_BYTES", "2048")

	cfg := DefaultConfig()
	assert.Equal(t, "/tmp/replbox-test", cfg.Service.DataDir)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, int64(2048), cfg.Service.MaxRequestSize)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, 30000, cfg.Execute.DefaultTimeoutMs)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[service]
max_request_size_bytes = 1024

[execute]
default_timeout_ms = 5000

[logging]
level = "warn"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(1024), cfg.Service.MaxRequestSize)
	assert.Equal(t, 5000, cfg.Execute.DefaultTimeoutMs)
	assert.Equal(t, "warn", cfg.Logging.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoadInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("not [valid toml"), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateRejectsBadLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "verbose"
	assert.Error(t, cfg.Validate())
}

func TestWriteExample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.toml")
	require.NoError(t, WriteExample(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Error(t, WriteExample(path), "refuses to overwrite")
}
