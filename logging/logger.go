// Package logging owns the process-wide logger. Interactive commands log to
// a file under ~/.thread-weaver/logs so TUI output stays clean; batch
// commands can log straight to stderr.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
)

var (
	// Logger is the global logger instance.
	Logger = log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Level:           log.InfoLevel,
	})

	logFile *os.File
)

// InitFile redirects the global logger to a dated file under
// ~/.thread-weaver/logs.
func InitFile() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	logDir := filepath.Join(homeDir, ".thread-weaver", "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	logPath := filepath.Join(logDir, fmt.Sprintf("weaver-%s.log", time.Now().Format("2006-01-02")))
	logFile, err = os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	Logger = log.NewWithOptions(logFile, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Level:           log.DebugLevel,
	})
	return nil
}

// SetOutput points the global logger at w.
func SetOutput(w io.Writer) {
	Logger.SetOutput(w)
}

// Close flushes and closes the log file, if one is open.
func Close() {
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

// Debug logs at debug level.
func Debug(msg string, keyvals ...any) { Logger.Debug(msg, keyvals...) }

// Info logs at info level.
func Info(msg string, keyvals ...any) { Logger.Info(msg, keyvals...) }

// Warn logs at warn level.
func Warn(msg string, keyvals ...any) { Logger.Warn(msg, keyvals...) }

// Error logs at error level.
func Error(msg string, keyvals ...any) { Logger.Error(msg, keyvals...) }
