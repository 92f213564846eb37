package logger

import (
	"io"
	"os"
	"syscall"
	"time"

	"codeberg.org/mutker/swervectl/internal/errors"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var log = zerolog.New(io.Discard)

type LogLevel int8

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

const (
	defaultMaxSizeMB  = 10
	defaultMaxBackups = 3
)

type LogEvent struct {
	*zerolog.Event
}

func (e *LogEvent) Msg(msg string) {
	e.Event.Msg(msg)
}

func (e *LogEvent) Send() {
	e.Event.Send()
}

// Options controls where and how log lines are written.
type Options struct {
	Level     LogLevel
	File      string
	MaxSizeMB int
	IsService bool
}

// Init initializes the logger based on the given options
func Init(opts Options) {
	var output io.Writer
	if opts.File != "" {
		maxSize := opts.MaxSizeMB
		if maxSize <= 0 {
			maxSize = defaultMaxSizeMB
		}
		output = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxSize,
			MaxBackups: defaultMaxBackups,
			Compress:   true,
		}
	} else {
		console := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		if opts.IsService {
			console.TimeFormat = ""
			console.FormatTimestamp = func(_ interface{}) string {
				return ""
			}
		}
		output = console
	}

	log = zerolog.New(output).With().Timestamp().Logger()
	SetLogLevel(opts.Level)
}

// InitWriter points the logger at w, used by tests to capture output.
func InitWriter(w io.Writer, level LogLevel) {
	log = zerolog.New(w).With().Timestamp().Logger()
	SetLogLevel(level)
}

// ParseLevel maps a configured level name to a LogLevel.
func ParseLevel(level string) (LogLevel, bool) {
	switch level {
	case "debug":
		return DebugLevel, true
	case "info":
		return InfoLevel, true
	case "warning", "warn":
		return WarnLevel, true
	case "error":
		return ErrorLevel, true
	default:
		return InfoLevel, false
	}
}

// SetLogLevel sets the global log level
func SetLogLevel(level LogLevel) {
	zerolog.SetGlobalLevel(zerolog.Level(level))
}

// IsService checks if the application is running as a service
func IsService() bool {
	if _, err := os.Stdin.Stat(); err != nil {
		return true
	}
	if os.Getenv("SERVICE_NAME") != "" || os.Getenv("INVOCATION_ID") != "" {
		return true
	}
	if os.Getppid() == 1 {
		return true
	}

	return syscall.Getpgrp() == syscall.Getpid()
}

// Debug logs a debug message
func Debug() *LogEvent {
	return &LogEvent{log.Debug()}
}

// Info logs an info message
func Info() *LogEvent {
	return &LogEvent{log.Info()}
}

// Warn logs a warning message
func Warn() *LogEvent {
	return &LogEvent{log.Warn()}
}

// Error logs an error message
func Error() *LogEvent {
	return &LogEvent{log.Error()}
}

// ErrorWithCode logs an error message with a specific error code
func ErrorWithCode(err errors.Error) *LogEvent {
	return withCode(log.Error(), err)
}

// Fatal logs a fatal message and exits the program
func Fatal() *LogEvent {
	return &LogEvent{log.Fatal()}
}

// FatalWithCode logs a fatal message with a specific error code and exits the program
func FatalWithCode(err errors.Error) *LogEvent {
	return withCode(log.Fatal(), err)
}

func withCode(ev *zerolog.Event, err errors.Error) *LogEvent {
	return &LogEvent{ev.
		Str("error_code", string(err.Code())).
		Str("error_message", err.Error()).
		AnErr("error", err.Unwrap())}
}

// componentLogger carries fixed context fields into every event.
type componentLogger struct {
	fields []string
}

// Get returns a Logger bound to the package-level output.
func Get() Logger {
	return &componentLogger{}
}

// With returns a Logger that adds key=value to every event.
func With(key, value string) Logger {
	return Get().With(key, value)
}

func (c *componentLogger) With(key, value string) Logger {
	fields := make([]string, 0, len(c.fields)+2)
	fields = append(fields, c.fields...)
	fields = append(fields, key, value)

	return &componentLogger{fields: fields}
}

func (c *componentLogger) event(ev *zerolog.Event) *LogEvent {
	for i := 0; i+1 < len(c.fields); i += 2 {
		ev = ev.Str(c.fields[i], c.fields[i+1])
	}

	return &LogEvent{ev}
}

func (c *componentLogger) Debug() *LogEvent { return c.event(log.Debug()) }
func (c *componentLogger) Info() *LogEvent  { return c.event(log.Info()) }
func (c *componentLogger) Warn() *LogEvent  { return c.event(log.Warn()) }
func (c *componentLogger) Error() *LogEvent { return c.event(log.Error()) }

func (c *componentLogger) ErrorWithCode(err errors.Error) *LogEvent {
	return c.event(withCode(log.Error(), err).Event)
}
