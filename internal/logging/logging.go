// Package logging builds the service's zap logger.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a production JSON logger at the given level. verbose forces debug.
func New(level string, verbose bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}
	if verbose {
		lvl = zapcore.DebugLevel
	}
	config.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
