// Package logger provides a shared zap-backed logger for Cubicler.
package logger

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu  sync.RWMutex
	log *zap.SugaredLogger
)

// Initialize builds the global logger from the LOG_LEVEL environment
// variable. Safe to call multiple times; the last call wins.
func Initialize() {
	level := parseLevel(os.Getenv("LOG_LEVEL"))

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    encoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	built, err := cfg.Build()
	if err != nil {
		built, _ = zap.NewProduction()
	}

	mu.Lock()
	log = built.Named("cubicler").Sugar()
	mu.Unlock()
}

func current() *zap.SugaredLogger {
	mu.RLock()
	l := log
	mu.RUnlock()
	if l == nil {
		Initialize()
		mu.RLock()
		l = log
		mu.RUnlock()
	}
	return l
}

// Infof logs an info-level message.
func Infof(format string, args ...interface{}) { current().Infof(format, args...) }

// Warnf logs a warn-level message.
func Warnf(format string, args ...interface{}) { current().Warnf(format, args...) }

// Errorf logs an error-level message.
func Errorf(format string, args ...interface{}) { current().Errorf(format, args...) }

// Debugf logs a debug-level message.
func Debugf(format string, args ...interface{}) { current().Debugf(format, args...) }

// Panicf logs a panic-level message and then panics.
func Panicf(format string, args ...interface{}) { current().Panicf(format, args...) }

// Sync flushes any buffered log entries.
func Sync() error {
	return current().Sync()
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "info", "":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}
