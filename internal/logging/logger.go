// Package logging provides leveled logging for the client.
//
// Because the TUI owns the terminal, the default destination is a log file
// rather than stderr; plain mode may log to stderr instead. Messages below
// the configured level are silently discarded.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// Level represents a log level.
type Level int

const (
	// LevelDebug is the debug log level.
	LevelDebug Level = iota
	// LevelInfo is the info log level.
	LevelInfo
	// LevelWarn is the warn log level.
	LevelWarn
	// LevelError is the error log level.
	LevelError
)

// String returns the string representation of a log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a log level string. Returns LevelInfo for unrecognized
// input.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger provides leveled logging with an optional component prefix.
type Logger struct {
	level  Level
	prefix string
	logger *log.Logger
	closer io.Closer
}

// New creates a Logger writing to output at the given level. If output is
// nil, os.Stderr is used.
func New(level Level, output io.Writer) *Logger {
	if output == nil {
		output = os.Stderr
	}
	return &Logger{
		level:  level,
		logger: log.New(output, "", log.LstdFlags),
	}
}

// NewFile creates a Logger appending to the file at path, creating parent
// directories as needed. Close releases the file.
func NewFile(level Level, path string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	l := New(level, f)
	l.closer = f
	return l, nil
}

// With returns a logger sharing this logger's output and level, tagging
// every message with the given component name.
func (l *Logger) With(component string) *Logger {
	return &Logger{
		level:  l.level,
		prefix: component,
		logger: l.logger,
	}
}

// Close releases the underlying file when the logger owns one.
func (l *Logger) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, v ...any) {
	l.log(LevelDebug, format, v...)
}

// Info logs an info message.
func (l *Logger) Info(format string, v ...any) {
	l.log(LevelInfo, format, v...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, v ...any) {
	l.log(LevelWarn, format, v...)
}

// Error logs an error message.
func (l *Logger) Error(format string, v ...any) {
	l.log(LevelError, format, v...)
}

// SetLevel changes the logger's level.
func (l *Logger) SetLevel(level Level) {
	l.level = level
}

// GetLevel returns the logger's current level.
func (l *Logger) GetLevel() Level {
	return l.level
}

func (l *Logger) log(level Level, format string, v ...any) {
	if l.level > level {
		return
	}
	msg := fmt.Sprintf(format, v...)
	if l.prefix != "" {
		l.logger.Printf("[%s] %s: %s", level.String(), l.prefix, msg)
		return
	}
	l.logger.Printf("[%s] %s", level.String(), msg)
}
