// Package logger wraps zap with the fields and lifecycle the rest of the
// control plane expects: a base logger built once at startup and narrowed
// per component with WithFields.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggingConfig controls how the base logger is constructed.
type LoggingConfig struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	OutputPath string // "stdout" or a file path
}

// Logger is the application-wide structured logger.
type Logger struct {
	*zap.Logger
}

// NewLogger builds a Logger from config, defaulting to sane production
// settings when fields are left zero.
func NewLogger(cfg LoggingConfig) (*Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			level = zapcore.InfoLevel
		}
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	outputPath := cfg.OutputPath
	if outputPath == "" {
		outputPath = "stdout"
	}
	sink, _, err := zap.Open(outputPath)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(encoder, sink, level)
	zl := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	return &Logger{Logger: zl}, nil
}

// NewNop returns a Logger that discards everything, for tests.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// WithFields returns a child Logger carrying the given structured fields.
func (l *Logger) WithFields(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

// Sync flushes any buffered log entries. Safe to call on process shutdown.
func (l *Logger) Sync() error {
	return l.Logger.Sync()
}

var defaultLogger *Logger

// SetDefault installs l as the package-level default logger.
func SetDefault(l *Logger) {
	defaultLogger = l
}

// Default returns the package-level default logger, falling back to a nop
// logger if SetDefault was never called.
func Default() *Logger {
	if defaultLogger == nil {
		return NewNop()
	}
	return defaultLogger
}
