package logging

import (
	"fmt"

	"github.com/example/ec-stock-reservation/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CriticalKey marks log entries that signal ledger drift and need an operator.
const CriticalKey = "critical"

// Critical is attached to every drift-related error log.
func Critical() zap.Field {
	return zap.Bool(CriticalKey, true)
}

// New builds the process logger from the logger section of the config.
func New(cfg config.LoggerConfig, appEnv string) (*zap.Logger, error) {
	var zc zap.Config
	if appEnv == "prod" || appEnv == "production" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	if cfg.Encoding != "" {
		zc.Encoding = cfg.Encoding
	}
	zc.DisableCaller = cfg.DisableCaller
	zc.DisableStacktrace = cfg.DisableStacktrace
	zc.InitialFields = map[string]any{"service": config.ServiceName}

	return zc.Build()
}
