// Shared logger setup for all services.
package utils

import (
	"log/slog"
	"os"
	"strings"
	"sync"

	slogmulti "github.com/samber/slog-multi"
)

var (
	loggerOnce sync.Once
	logger     *slog.Logger
)

// GetLogger returns the process-wide logger, initializing it on first use.
// Text output goes to stderr for readability; when COACH_LOG_FILE is set, a
// JSON copy is appended there for machine parsing.
func GetLogger() *slog.Logger {
	loggerOnce.Do(func() {
		logger = NewLogger(os.Getenv("COACH_LOG_FILE"), ParseLogLevel(os.Getenv("COACH_LOG_LEVEL")))
	})
	return logger
}

// NewLogger builds a logger writing text to stderr and, if logFile is
// non-empty and writable, JSON to the file as well.
func NewLogger(logFile string, level slog.Level) *slog.Logger {
	stderrHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})

	if logFile == "" {
		return slog.New(stderrHandler)
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		l := slog.New(stderrHandler)
		l.Warn("Failed to open log file, using stderr only", "file", logFile, "error", err)
		return l
	}

	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	return slog.New(slogmulti.Fanout(stderrHandler, fileHandler))
}

// ParseLogLevel maps a level name to a slog.Level, defaulting to info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
