// Package logger provides centralized logging using arbor.
//
// While serving, standard output carries the JSON-RPC stream, so the logger
// writes to a file under the data directory and never to the console.
package logger

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/ternarybob/arbor"
	arborcommon "github.com/ternarybob/arbor/common"
	"github.com/ternarybob/arbor/models"

	"github.com/ternarybob/replbox/internal/config"
)

var (
	globalLogger arbor.ILogger
	loggerMutex  sync.RWMutex
)

// GetLogger returns the global logger instance. If SetupLogger hasn't run
// yet, a memory-writer fallback is installed so nothing leaks onto stdout.
func GetLogger() arbor.ILogger {
	loggerMutex.RLock()
	if globalLogger != nil {
		loggerMutex.RUnlock()
		return globalLogger
	}
	loggerMutex.RUnlock()

	loggerMutex.Lock()
	defer loggerMutex.Unlock()

	if globalLogger == nil {
		globalLogger = arbor.NewLogger().WithMemoryWriter(createWriterConfig(nil, models.LogWriterTypeMemory, ""))
	}
	return globalLogger
}

// InitLogger stores the provided logger as the global singleton instance.
func InitLogger(logger arbor.ILogger) {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	globalLogger = logger
}

// SetupLogger configures and initializes the global logger based on
// configuration. Logs land in <data_dir>/logs/replbox.log.
func SetupLogger(cfg *config.Config) arbor.ILogger {
	logger := arbor.NewLogger()

	logsDir := filepath.Join(cfg.Service.DataDir, "logs")
	if err := os.MkdirAll(logsDir, 0755); err == nil {
		logFile := filepath.Join(logsDir, "replbox.log")
		logger = logger.WithFileWriter(createWriterConfig(cfg, models.LogWriterTypeFile, logFile))
	}

	// Memory writer keeps recent entries available for diagnostics even when
	// the file writer could not be created.
	logger = logger.WithMemoryWriter(createWriterConfig(cfg, models.LogWriterTypeMemory, ""))
	logger = logger.WithLevelFromString(cfg.Logging.Level)

	InitLogger(logger)
	return logger
}

// ApplyLevel updates the global logger's level at runtime, used by the
// config watcher.
func ApplyLevel(level string) {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	if globalLogger != nil {
		globalLogger = globalLogger.WithLevelFromString(level)
	}
}

// createWriterConfig creates a standard writer configuration with user
// preferences.
func createWriterConfig(cfg *config.Config, writerType models.LogWriterType, filename string) models.WriterConfiguration {
	timeFormat := "15:04:05.000"
	if cfg != nil && cfg.Logging.TimeFormat != "" {
		timeFormat = cfg.Logging.TimeFormat
	}

	outputType := models.OutputFormatJSON
	if cfg != nil && cfg.Logging.Format == "text" {
		outputType = models.OutputFormatLogfmt
	}

	var maxSize int64 = 100 * 1024 * 1024
	if cfg != nil && cfg.Logging.MaxSizeMB > 0 {
		maxSize = int64(cfg.Logging.MaxSizeMB) * 1024 * 1024
	}

	maxBackups := 5
	if cfg != nil && cfg.Logging.MaxBackups > 0 {
		maxBackups = cfg.Logging.MaxBackups
	}

	return models.WriterConfiguration{
		Type:             writerType,
		FileName:         filename,
		TimeFormat:       timeFormat,
		OutputType:       outputType,
		DisableTimestamp: false,
		MaxSize:          maxSize,
		MaxBackups:       maxBackups,
	}
}

// Stop flushes any remaining context logs before application shutdown.
// Safe to call multiple times.
func Stop() {
	arborcommon.Stop()
}
