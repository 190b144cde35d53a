// Package logging builds the service loggers.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the root zap.Logger. Development mode uses the colored console
// encoder; production emits JSON with stacktraces enabled.
func New(development bool) (*zap.Logger, error) {
	logger, err := buildConfig(development).Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// ForSubsystem derives a named child logger with a matching subsystem field.
func ForSubsystem(logger *zap.Logger, name string) *zap.Logger {
	return logger.Named(name).With(zap.String("subsystem", name))
}

func buildConfig(development bool) zap.Config {
	if development {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = false
	cfg.EncoderConfig.TimeKey = "ts"
	return cfg
}
