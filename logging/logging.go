// Package logging builds the zap loggers used across leakguard.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a console logger. Debug enables development output;
// otherwise level (debug, info, warn, error) applies, defaulting to warn.
func New(debug bool, level string) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		lvl := zapcore.WarnLevel
		if level != "" {
			if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
				return nil, fmt.Errorf("invalid log level %q: %w", level, err)
			}
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	cfg.Encoding = "console"
	// stdout carries reports and MCP traffic, keep logs off it
	cfg.OutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger.Sugar(), nil
}

// Must is New that panics on error, for process entry points
func Must(debug bool, level string) *zap.SugaredLogger {
	logger, err := New(debug, level)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	return logger
}
