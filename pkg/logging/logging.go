// Package logging provides the structured logger shared by the bot's
// packages. Entries are written through zerolog; file output is rotated with
// lumberjack.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger defines the interface for structured logging
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)
	With(fields ...Field) Logger
}

// Field represents a structured logging field
type Field struct {
	Key   string
	Value interface{}
}

// String creates a string field
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an integer field
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 creates an int64 field
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a boolean field
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Duration creates a duration field
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Error creates an error field
func Error(err error) Field {
	return Field{Key: "error", Value: err}
}

// Any creates a field with any value
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Config contains configuration for logging
type Config struct {
	Level       string // debug, info, warn, error, fatal
	Format      string // json or console
	Output      string // stdout or stderr, ignored when File is set
	File        string
	RotateSize  int // megabytes
	RotateCount int
}

// DefaultConfig returns console logging at info level to stdout
func DefaultConfig() Config {
	return Config{
		Level:       "info",
		Format:      "console",
		Output:      "stdout",
		RotateSize:  10,
		RotateCount: 5,
	}
}

// Validate checks the level and format values
func (c Config) Validate() error {
	var errors []string

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLevels[strings.ToLower(c.Level)] {
		errors = append(errors, "logging level must be one of: debug, info, warn, error, fatal")
	}

	validFormats := map[string]bool{"json": true, "console": true, "text": true}
	if !validFormats[strings.ToLower(c.Format)] {
		errors = append(errors, "logging format must be one of: json, console, text")
	}

	if c.File != "" && c.RotateSize <= 0 {
		errors = append(errors, "logging rotate size must be > 0 when a file is set")
	}

	if len(errors) > 0 {
		return fmt.Errorf("logging configuration invalid: %v", errors)
	}
	return nil
}

// StructuredLogger implements Logger on top of zerolog
type StructuredLogger struct {
	zl     zerolog.Logger
	closer io.Closer
}

// NewLogger builds a logger writing to the configured destination
func NewLogger(config Config) (*StructuredLogger, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var output io.Writer = os.Stdout
	var closer io.Closer
	switch {
	case config.File != "":
		rotating := &lumberjack.Logger{
			Filename:   config.File,
			MaxSize:    config.RotateSize,
			MaxBackups: config.RotateCount,
			Compress:   true,
		}
		output = rotating
		closer = rotating
	case config.Output == "stderr":
		output = os.Stderr
	}

	logger := New(output, config)
	logger.closer = closer
	return logger, nil
}

// New creates a logger writing to w
func New(w io.Writer, config Config) *StructuredLogger {
	if strings.ToLower(config.Format) != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "2006-01-02 15:04:05.000", NoColor: config.File != ""}
	}

	zl := zerolog.New(w).
		Level(parseLogLevel(config.Level)).
		With().
		Timestamp().
		Logger()

	return &StructuredLogger{zl: zl}
}

// parseLogLevel converts string log level to a zerolog level
func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// Debug logs a debug message
func (l *StructuredLogger) Debug(msg string, fields ...Field) {
	write(l.zl.Debug(), msg, fields)
}

// Info logs an info message
func (l *StructuredLogger) Info(msg string, fields ...Field) {
	write(l.zl.Info(), msg, fields)
}

// Warn logs a warning message
func (l *StructuredLogger) Warn(msg string, fields ...Field) {
	write(l.zl.Warn(), msg, fields)
}

// Error logs an error message
func (l *StructuredLogger) Error(msg string, fields ...Field) {
	write(l.zl.Error(), msg, fields)
}

// Fatal logs a fatal message and exits
func (l *StructuredLogger) Fatal(msg string, fields ...Field) {
	write(l.zl.Fatal(), msg, fields)
}

// With creates a new logger with additional fields
func (l *StructuredLogger) With(fields ...Field) Logger {
	ctx := l.zl.With()
	for _, f := range fields {
		switch v := f.Value.(type) {
		case string:
			ctx = ctx.Str(f.Key, v)
		case int:
			ctx = ctx.Int(f.Key, v)
		case bool:
			ctx = ctx.Bool(f.Key, v)
		case time.Duration:
			ctx = ctx.Dur(f.Key, v)
		case error:
			ctx = ctx.AnErr(f.Key, v)
		default:
			ctx = ctx.Interface(f.Key, v)
		}
	}
	return &StructuredLogger{zl: ctx.Logger(), closer: l.closer}
}

// Close releases the rotating file, if any
func (l *StructuredLogger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// write adds fields to a zerolog event; a nil event means the level is disabled
func write(e *zerolog.Event, msg string, fields []Field) {
	if e == nil {
		return
	}
	for _, f := range fields {
		switch v := f.Value.(type) {
		case string:
			e = e.Str(f.Key, v)
		case int:
			e = e.Int(f.Key, v)
		case int64:
			e = e.Int64(f.Key, v)
		case bool:
			e = e.Bool(f.Key, v)
		case time.Duration:
			e = e.Dur(f.Key, v)
		case error:
			e = e.AnErr(f.Key, v)
		default:
			e = e.Interface(f.Key, v)
		}
	}
	e.Msg(msg)
}

// NullLogger creates a logger that discards all output (useful for testing)
func NullLogger() Logger {
	return &StructuredLogger{zl: zerolog.Nop()}
}

// StdLogAdapter routes the standard log package into a Logger
type StdLogAdapter struct {
	logger Logger
}

// NewStdLogAdapter creates a new adapter for the standard log package
func NewStdLogAdapter(logger Logger) *StdLogAdapter {
	return &StdLogAdapter{logger: logger}
}

// Write implements io.Writer to capture standard log output
func (a *StdLogAdapter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		a.logger.Info(msg)
	}
	return len(p), nil
}

// SetAsStdLogger sets this adapter as the output for the standard log package
func (a *StdLogAdapter) SetAsStdLogger() {
	log.SetOutput(a)
	log.SetFlags(0)
}
