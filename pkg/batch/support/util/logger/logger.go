// Package logger provides the leveled logger used across salesync.
// Messages are written through the standard `log` package with a "[LEVEL] " prefix
// and filtered by a process-wide level.
package logger

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync/atomic"
)

// LogLevel is a type representing the logging level.
// Smaller numbers indicate more detailed log levels.
type LogLevel int32

const (
	// LevelDebug is used for detailed diagnostic output (chunk boundaries, checkpoint saves).
	LevelDebug LogLevel = iota
	// LevelInfo is used for job and step lifecycle messages.
	LevelInfo
	// LevelWarn is used for recoverable anomalies.
	LevelWarn
	// LevelError is used for step and job failures.
	LevelError
	// LevelFatal is used for errors that terminate the process.
	LevelFatal
)

var (
	level  atomic.Int32
	output = log.New(log.Writer(), "", log.LstdFlags)
)

func init() {
	level.Store(int32(LevelInfo))
}

// ParseLevel converts a level name ("DEBUG", "INFO", "WARN", "ERROR", "FATAL", case-insensitive)
// into a LogLevel. The boolean is false for unknown names.
func ParseLevel(name string) (LogLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	default:
		return LevelInfo, false
	}
}

// SetLogLevel sets the global log level.
// An unknown value falls back to INFO and a notice is printed.
func SetLogLevel(name string) {
	lvl, ok := ParseLevel(name)
	if !ok {
		fmt.Printf("Unknown log level '%s' specified. Defaulting to INFO level.\n", name)
	}
	level.Store(int32(lvl))
}

// Level returns the current global log level.
func Level() LogLevel {
	return LogLevel(level.Load())
}

// SetOutput redirects log output. Tests use it to capture messages.
func SetOutput(w io.Writer) {
	output.SetOutput(w)
}

func enabled(l LogLevel) bool {
	return LogLevel(level.Load()) <= l
}

// Debugf formats and outputs a DEBUG level log message.
func Debugf(format string, v ...interface{}) {
	if enabled(LevelDebug) {
		output.Printf("[DEBUG] "+format, v...)
	}
}

// Infof formats and outputs an INFO level log message.
func Infof(format string, v ...interface{}) {
	if enabled(LevelInfo) {
		output.Printf("[INFO] "+format, v...)
	}
}

// Warnf formats and outputs a WARN level log message.
func Warnf(format string, v ...interface{}) {
	if enabled(LevelWarn) {
		output.Printf("[WARN] "+format, v...)
	}
}

// Errorf formats and outputs an ERROR level log message.
func Errorf(format string, v ...interface{}) {
	if enabled(LevelError) {
		output.Printf("[ERROR] "+format, v...)
	}
}

// Fatalf outputs a FATAL level log message and terminates the program with os.Exit(1).
func Fatalf(format string, v ...interface{}) {
	output.Fatalf("[FATAL] "+format, v...)
}
