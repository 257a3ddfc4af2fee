// Package logging builds the shared *zap.Logger threaded through every
// gateway component by constructor injection.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ParseLevel maps the gateway's textual log-level configuration onto a
// zapcore.Level, defaulting to InfoLevel for an empty or unrecognized
// value.
func ParseLevel(s string) zapcore.Level {
	var lvl zapcore.Level
	if s == "" {
		return zapcore.InfoLevel
	}
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// New builds a production-style logger at the given level.
func New(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(level))
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build logger: %w", err)
	}
	return logger, nil
}
