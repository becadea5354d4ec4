package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a colored console logger for local runs, a no-op logger for
// tests and a JSON production logger everywhere else.
func New(env string) (*zap.Logger, error) {
	switch env {
	case "test":
		return zap.NewNop(), nil
	case "local", "":
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg.Build()
	default:
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "time"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		logger, err := cfg.Build()
		if err != nil {
			return nil, err
		}
		return logger.With(zap.String("env", env)), nil
	}
}
