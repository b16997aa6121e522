// Package logging builds the zap logger from a preset name and a level.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a *zap.Logger for the given preset and level.
// Available presets: console, console-nocolor, production.
func NewLogger(preset string, level zapcore.Level) (*zap.Logger, error) {
	var cfg zap.Config

	switch preset {
	case "console":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case "console-nocolor":
		cfg = zap.NewDevelopmentConfig()
	case "production":
		cfg = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("unknown logging preset %q", preset)
	}

	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}
