package logging

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
)

// Level is the severity of a log line.
type Level int

const (
	// LevelDebug enables per-item ingestion tracing.
	LevelDebug Level = iota
	// LevelInfo is the default.
	LevelInfo
	// LevelWarn reports skipped items and recoverable problems.
	LevelWarn
	// LevelError reports failures that abort an operation.
	LevelError
)

var (
	levelMu  sync.RWMutex
	level    Level
	resolved bool
)

// ParseLevel maps a LOG_LEVEL string to a Level. Unknown values fall back to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func levelFromEnv() Level {
	switch strings.ToLower(os.Getenv("DEBUG")) {
	case "1", "true", "yes", "on":
		return LevelDebug
	}
	return ParseLevel(os.Getenv("LOG_LEVEL"))
}

// GetLevel returns the active level, reading DEBUG and LOG_LEVEL on first use.
func GetLevel() Level {
	levelMu.RLock()
	if resolved {
		l := level
		levelMu.RUnlock()
		return l
	}
	levelMu.RUnlock()

	levelMu.Lock()
	defer levelMu.Unlock()
	if !resolved {
		level = levelFromEnv()
		resolved = true
	}
	return level
}

// SetLevel overrides the environment-derived level. Used by the rescan CLI's
// -v flag and by tests.
func SetLevel(l Level) {
	levelMu.Lock()
	level = l
	resolved = true
	levelMu.Unlock()
}

// IsDebugEnabled reports whether Debug lines are written.
func IsDebugEnabled() bool {
	return GetLevel() <= LevelDebug
}

func logAt(l Level, tag, format string, args ...any) {
	if GetLevel() <= l {
		log.Printf(tag+format, args...)
	}
}

// Debug logs at debug level.
func Debug(format string, args ...any) { logAt(LevelDebug, "[DEBUG] ", format, args...) }

// Info logs at info level.
func Info(format string, args ...any) { logAt(LevelInfo, "[INFO] ", format, args...) }

// Warn logs at warn level.
func Warn(format string, args ...any) { logAt(LevelWarn, "[WARN] ", format, args...) }

// Error logs at error level.
func Error(format string, args ...any) { logAt(LevelError, "[ERROR] ", format, args...) }

// Fatal logs and exits the process.
func Fatal(format string, args ...any) {
	log.Fatalf("[FATAL] "+format, args...)
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}
