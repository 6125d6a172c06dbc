package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Logger struct {
	*zerolog.Logger
	config Config
}

var (
	configureOnce sync.Once

	// Global log levels for different environments
	logLevel = map[string]zerolog.Level{
		"development": zerolog.DebugLevel,
		"staging":     zerolog.InfoLevel,
		"production":  zerolog.InfoLevel,
	}
)

// Config represents logger configuration
type Config struct {
	IsProduction bool
	AppEnv       string
	// Out receives the human readable console output. Defaults to stdout.
	Out io.Writer
	// Sink, when set, receives every event as a JSON line (the telemetry log).
	Sink io.Writer
}

// NewWithSink creates an environment configured logger that also feeds sink.
func NewWithSink(component string, sink io.Writer) *Logger {
	return NewWithConfig(component, Config{
		IsProduction: os.Getenv("APP_ENV") == "production",
		AppEnv:       os.Getenv("APP_ENV"),
		Sink:         sink,
	})
}

// Nop returns a logger that writes nowhere except sink (which may be nil).
func Nop(sink io.Writer) *Logger {
	return NewWithConfig("test", Config{AppEnv: "development", Out: io.Discard, Sink: sink})
}

// Named derives a logger for another component sharing the same outputs.
func (l *Logger) Named(component string) *Logger {
	return NewWithConfig(component, l.config)
}

// NewWithConfig creates a new logger instance with custom configuration
func NewWithConfig(component string, config Config) *Logger {
	// Configure zerolog
	configureOnce.Do(func() { zerolog.TimeFieldFormat = time.RFC3339 })

	out := config.Out
	if out == nil {
		out = os.Stdout
	}

	// Create console writer with color and custom format
	output := zerolog.ConsoleWriter{
		Out:           out,
		FieldsExclude: []string{"component"},
		FormatMessage: func(i interface{}) string {
			return fmt.Sprintf("[%s] %s", component, i)
		},
		FormatLevel: func(i interface{}) string {
			if level, ok := i.(string); ok {
				// Always use colors for console output
				switch level {
				case "debug":
					return "\033[36m[DEBUG]\033[0m" // Cyan
				case "info":
					return "\033[34m[INFO]\033[0m" // Blue
				case "success":
					return "\033[32m[SUCCESS]\033[0m" // Green
				case "warn":
					return "\033[33m[WARN]\033[0m" // Yellow
				case "error":
					return "\033[31m[ERROR]\033[0m" // Red
				case "fatal":
					return "\033[35m[FATAL]\033[0m" // Purple
				default:
					return fmt.Sprintf("[%s]", level)
				}
			}
			return "???"
		},
	}

	// Remove timestamp in production
	if config.IsProduction {
		output.TimeFormat = ""
	} else {
		output.TimeFormat = "2006-01-02 15:04:05"
	}

	var w io.Writer = output
	if config.Sink != nil {
		w = zerolog.MultiLevelWriter(output, config.Sink)
	}

	// The telemetry sink needs the component on every event and a timestamp
	// even in production; the console writer prints the component in the message.
	ctx := zerolog.New(w).Level(getLogLevel(config.AppEnv)).With().Str("component", component)
	if !config.IsProduction || config.Sink != nil {
		ctx = ctx.Timestamp()
	}
	logger := ctx.Logger()

	return &Logger{
		Logger: &logger,
		config: config,
	}
}

// getLogLevel returns the appropriate log level based on environment
func getLogLevel(env string) zerolog.Level {
	if level, exists := logLevel[env]; exists {
		return level
	}
	return zerolog.DebugLevel
}

// Legacy methods for backward compatibility
func (l *Logger) Debug() *zerolog.Event   { return l.Logger.Debug() }
func (l *Logger) Info() *zerolog.Event    { return l.Logger.Info() }
func (l *Logger) Success() *zerolog.Event { return l.Logger.Info().Bool("success", true) }
func (l *Logger) Warn() *zerolog.Event    { return l.Logger.Warn() }
func (l *Logger) Error() *zerolog.Event   { return l.Logger.Error() }

// Simple logging methods
func (l *Logger) LogDebug(msg string) {
	l.Debug().Msg(msg)
}

func (l *Logger) LogInfo(msg string) {
	l.Info().Msg(msg)
}

func (l *Logger) LogWarn(msg string) {
	l.Warn().Msg(msg)
}

func (l *Logger) LogError(msg string, err error) {
	if err != nil {
		l.Error().Err(err).Msg(msg)
		return
	}
	l.Error().Msg(msg)
}

func (l *Logger) LogFatal(msg string, err error) {
	if err != nil {
		l.Fatal().Err(err).Msg(msg)
		return
	}
	l.Fatal().Msg(msg)
}

// Formatted logging methods with variable arguments
func (l *Logger) LogDebugf(format string, v ...interface{}) {
	l.Debug().Msgf(format, v...)
}

func (l *Logger) LogInfof(format string, v ...interface{}) {
	l.Info().Msgf(format, v...)
}

func (l *Logger) LogSuccessf(format string, v ...interface{}) {
	l.Success().Msgf(format, v...)
}

func (l *Logger) LogWarnf(format string, v ...interface{}) {
	l.Warn().Msgf(format, v...)
}

func (l *Logger) LogErrorf(format string, v ...interface{}) {
	l.Error().Msgf(format, v...)
}

// ErrorWithFields starts an error event carrying fields.
func (l *Logger) ErrorWithFields(fields map[string]interface{}) *zerolog.Event {
	event := l.Error()
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	return event
}
