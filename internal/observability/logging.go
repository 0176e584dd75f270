// Package observability builds the relay's process logger.
package observability

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Pranay-ai/match-relay/internal/config"
)

// ServiceName is attached to every entry the relay logs.
const ServiceName = "match-relay"

// NewLogger builds the relay logger. "json" selects zap's production encoder
// for log collectors and "console" the development encoder with colored
// levels for local runs. Session code adds match_id, player_id and conn_id.
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("logging.level %q: %w", cfg.Level, err)
	}

	zapCfg, err := encoderConfig(cfg.Format)
	if err != nil {
		return nil, err
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.InitialFields = map[string]any{"service": ServiceName}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building %s logger: %w", cfg.Format, err)
	}
	return logger, nil
}

func encoderConfig(format string) (zap.Config, error) {
	var c zap.Config
	switch format {
	case "json":
		c = zap.NewProductionConfig()
	case "console":
		c = zap.NewDevelopmentConfig()
		c.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return zap.Config{}, fmt.Errorf("logging.format %q: want json or console", format)
	}
	c.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return c, nil
}
