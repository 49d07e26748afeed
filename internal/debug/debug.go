package debug

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the production zap logger used by every command.
// verbose lowers the level to debug.
func NewLogger(verbose bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// OrNop returns logger, or a no-op logger when it is nil.
func OrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

// Timing logs the start of an operation at debug level and returns a func
// that logs its completion with the elapsed time.
func Timing(logger *zap.Logger, operation string) func() {
	logger = OrNop(logger)
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		return func() {}
	}

	start := time.Now()
	logger.Debug("Starting", zap.String("operation", operation))

	return func() {
		logger.Debug("Completed",
			zap.String("operation", operation),
			zap.Duration("took", time.Since(start)))
	}
}
