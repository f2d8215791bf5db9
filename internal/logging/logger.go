// Package logging configures the zap loggers used across the engine, the
// lifecycle controller and hsmctl.
package logging

import (
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is a textual log level, e.g. "DEBUG".
type Level string

// Format selects the encoder.
type Format string

const (
	DebugLevel      Level = "DEBUG"
	InfoLevel       Level = "INFO"
	WarnLevel       Level = "WARN"
	ErrorLevel      Level = "ERROR"
	ProductionLevel Level = "PRODUCTION"

	// FormatConsole is the human-readable console format.
	FormatConsole Format = "CONSOLE"
	// FormatJSON is structured JSON.
	FormatJSON Format = "JSON"
)

// Environment variables read by Initialize.
const (
	EnvLevel  = "LOGGING_LEVEL"
	EnvFormat = "LOGGING_FORMAT"
)

var (
	initOnce    sync.Once
	initialized bool
)

func parseLevel(level Level) zapcore.Level {
	switch Level(strings.ToUpper(string(level))) {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseFormat returns the matching Format, or def for anything unknown.
func ParseFormat(s string, def Format) Format {
	switch f := Format(strings.ToUpper(s)); f {
	case FormatConsole, FormatJSON:
		return f
	default:
		return def
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func timeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006-01-02 15:04:05 MST"))
}

// New creates a zap logger writing to stdout.
func New(level string, format Format) *zap.Logger {
	return NewWithSink(level, format, zapcore.AddSync(os.Stdout))
}

// NewWithSink creates a zap logger writing to sink.
func NewWithSink(level string, format Format, sink zapcore.WriteSyncer) *zap.Logger {
	cfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "component",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if format == FormatConsole {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.EncodeTime = timeEncoder
		cfg.ConsoleSeparator = " | "
		encoder = zapcore.NewConsoleEncoder(cfg)
	} else {
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(cfg)
	}

	core := zapcore.NewCore(encoder, sink, zap.NewAtomicLevelAt(parseLevel(Level(level))))
	return zap.New(core, zap.AddCaller())
}

// Initialize replaces the global zap loggers once, using LOGGING_LEVEL and
// LOGGING_FORMAT.
func Initialize() {
	initOnce.Do(func() {
		level := getEnv(EnvLevel, string(ProductionLevel))
		format := ParseFormat(getEnv(EnvFormat, ""), FormatConsole)
		logger := New(level, format)
		zap.ReplaceGlobals(logger)
		initialized = true
		logger.Debug("Logger initialized",
			zap.String("level", level),
			zap.String("format", string(format)))
	})
}

// SetGlobal installs l as the global logger. Initialize does nothing
// afterwards.
func SetGlobal(l *zap.Logger) {
	initOnce.Do(func() {})
	zap.ReplaceGlobals(l)
	initialized = true
}

// For returns a named sugared logger for a component.
func For(component string) *zap.SugaredLogger {
	if !initialized {
		Initialize()
	}
	return zap.S().Named(component)
}

// Nop returns a logger that discards everything.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// Sync flushes buffered entries of the global logger.
func Sync() error {
	return zap.L().Sync()
}
