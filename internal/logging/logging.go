package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls the process logger. Enabled is the global switch, when it is
// off nothing is written at any level.
type Config struct {
	Enabled     bool
	Level       string
	Development bool
}

// New returns the process logger described by cfg.
func New(cfg Config) (*zap.Logger, error) {
	if !cfg.Enabled {
		return zap.NewNop(), nil
	}

	level := zapcore.DebugLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build(zap.WithCaller(true))
	if err != nil {
		return nil, fmt.Errorf("unable to build logger: %w", err)
	}

	return logger, nil
}
