// Package logging builds the zap loggers used by the client when the caller
// does not supply one.
//
// LOG_LEVEL selects the level (debug, info, warn/warning, error) and
// LOG_FORMAT=development switches to a colored console encoder on stderr;
// anything else produces sampled JSON on stdout.
package logging

import (
	"net/url"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	baseOnce   sync.Once
	baseLogger *zap.Logger
)

// NewConfig returns the zap configuration selected by the environment.
func NewConfig() zap.Config {
	development := os.Getenv("LOG_FORMAT") == "development"

	encoder := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "severity",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	config := zap.Config{
		Level:         zap.NewAtomicLevelAt(zap.InfoLevel),
		Encoding:      "json",
		EncoderConfig: encoder,
		OutputPaths:   []string{"stdout"},
		Sampling:      &zap.SamplingConfig{Initial: 100, Thereafter: 100},
	}

	if development {
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		config.Development = true
		config.DisableStacktrace = true
		config.Encoding = "console"
		config.OutputPaths = []string{"stderr"}
		config.Sampling = nil
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.EncoderConfig.NameKey = ""
	}

	if level, ok := levelFromEnv(); ok {
		config.Level = zap.NewAtomicLevelAt(level)
	}

	return config
}

// levelFromEnv parses LOG_LEVEL. "warning" is accepted for warn; unset or
// unparseable values report false.
func levelFromEnv() (zapcore.Level, bool) {
	raw, ok := os.LookupEnv("LOG_LEVEL")
	if !ok {
		return zapcore.InfoLevel, false
	}

	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "warning" {
		raw = "warn"
	}

	level, err := zapcore.ParseLevel(raw)
	if err != nil {
		return zapcore.InfoLevel, false
	}

	return level, true
}

// New returns a logger named name carrying fields, derived from a
// process-wide base logger built lazily from [NewConfig]. If the
// configuration cannot be built the base falls back to zap's production
// defaults.
func New(name string, fields ...zap.Field) *zap.Logger {
	baseOnce.Do(func() {
		logger, err := NewConfig().Build()
		if err != nil {
			logger = zap.Must(zap.NewProduction())
		}

		baseLogger = logger
	})

	return baseLogger.Named(name).With(fields...)
}

// ForCall returns logger annotated with the method and target of one call.
// Credentials embedded in target are redacted.
func ForCall(logger *zap.Logger, method, target string) *zap.Logger {
	if u, err := url.Parse(target); err == nil {
		target = u.Redacted()
	}

	return logger.With(
		zap.String("method", method),
		zap.String("url", target),
	)
}
