// SPDX-License-Identifier: MIT

// Package log is a leveled logger on top of the standard library logger.
// Package-level functions log without a prefix; Named returns a logger
// that tags every line with a component, and Limited throttles a logger
// for use on the audio callback.
package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

// LogLevel defines the severity of a log message.
type LogLevel uint32

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string (case-insensitive) to a LogLevel.
// Returns LevelInfo and false if the string is not recognized.
func ParseLevel(levelStr string) (LogLevel, bool) {
	switch strings.ToUpper(levelStr) {
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

var (
	currentLevel atomic.Uint32
	logger       = stdlog.New(os.Stderr, "", stdlog.Ldate|stdlog.Ltime|stdlog.Lmicroseconds)
)

func init() {
	SetLevel(LevelInfo)
}

// SetLevel sets the global logging level.
func SetLevel(level LogLevel) {
	currentLevel.Store(uint32(level))
}

// GetLevel returns the global logging level.
func GetLevel() LogLevel {
	return LogLevel(currentLevel.Load())
}

// SetOutput redirects all log output, e.g. to a file while the terminal
// monitor owns the screen.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

func enabled(level LogLevel) bool {
	return level >= GetLevel()
}

// write emits one line. Level names are padded to a common width.
func write(level LogLevel, prefix, msg string) {
	if level == LevelFatal {
		logger.Fatalf("[%-5s] %s%s", level, prefix, msg)
	}
	logger.Printf("[%-5s] %s%s", level, prefix, msg)
}

// Logger tags messages with a component name and may be throttled.
// The zero value logs without a prefix.
type Logger struct {
	prefix string
	limit  *limiter
}

// Named returns a logger whose lines start with "component: ".
func Named(component string) *Logger {
	return &Logger{prefix: component + ": "}
}

// Limited returns a copy of l that prints at most one message per
// interval. Messages in between are dropped and counted; the next line
// that gets through reports how many were suppressed. Limited loggers are
// safe to call from the audio callback at any rate.
func (l *Logger) Limited(interval time.Duration) *Logger {
	return &Logger{prefix: l.prefix, limit: &limiter{interval: int64(interval)}}
}

func (l *Logger) logf(level LogLevel, format string, v []any) {
	if !enabled(level) {
		return
	}
	suffix := ""
	if l.limit != nil {
		dropped, ok := l.limit.allow(time.Now().UnixNano())
		if !ok {
			return
		}
		if dropped > 0 {
			suffix = fmt.Sprintf(" (%d similar suppressed)", dropped)
		}
	}
	write(level, l.prefix, fmt.Sprintf(format, v...)+suffix)
}

func (l *Logger) Debugf(format string, v ...any) { l.logf(LevelDebug, format, v) }
func (l *Logger) Infof(format string, v ...any)  { l.logf(LevelInfo, format, v) }
func (l *Logger) Warnf(format string, v ...any)  { l.logf(LevelWarn, format, v) }
func (l *Logger) Errorf(format string, v ...any) { l.logf(LevelError, format, v) }

// limiter admits one event per interval without locking.
type limiter struct {
	interval   int64 // ns
	last       atomic.Int64
	suppressed atomic.Uint64
}

// allow reports whether an event at now may pass and, if so, how many
// events were dropped since the previous one that did.
func (r *limiter) allow(now int64) (dropped uint64, ok bool) {
	last := r.last.Load()
	if last != 0 && now-last < r.interval {
		r.suppressed.Add(1)
		return 0, false
	}
	if !r.last.CompareAndSwap(last, now) {
		r.suppressed.Add(1)
		return 0, false
	}
	return r.suppressed.Swap(0), true
}

var std = &Logger{}

// Debugf logs a formatted debug message if the level is appropriate.
func Debugf(format string, v ...any) { std.logf(LevelDebug, format, v) }

// Infof logs a formatted info message if the level is appropriate.
func Infof(format string, v ...any) { std.logf(LevelInfo, format, v) }

// Warnf logs a formatted warning message if the level is appropriate.
func Warnf(format string, v ...any) { std.logf(LevelWarn, format, v) }

// Errorf logs a formatted error message if the level is appropriate.
func Errorf(format string, v ...any) { std.logf(LevelError, format, v) }

// Fatalf logs regardless of level and exits the application.
func Fatalf(format string, v ...any) {
	write(LevelFatal, "", fmt.Sprintf(format, v...))
}
