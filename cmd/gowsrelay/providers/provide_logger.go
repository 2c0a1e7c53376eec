package providers

import (
	"github.com/gbdevw/gowsrelay/configuration"
	"go.uber.org/zap"
)

// Build the application logger from the configuration.
func ProvideLogger(cfg configuration.Configuration) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.LogDevelopment {
		zapCfg = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zapCfg.Level = level
	return zapCfg.Build()
}
