package logger

import (
	"go.uber.org/zap"
)

// New builds the process logger. Release mode gets the JSON production
// encoder, everything else the console development one.
func New(env, level string) (*zap.Logger, error) {
	var cfg zap.Config
	if env == "release" || env == "production" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}

	if level != "" {
		if lvl, err := zap.ParseAtomicLevel(level); err == nil {
			cfg.Level = lvl
		}
	}

	return cfg.Build()
}
