package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a sugared logger tagged with the given service name. The
// level is taken from the LOG_LEVEL environment variable.
func New(service string) (*zap.SugaredLogger, error) {
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(level())
	config.EncoderConfig.TimeKey = "ts"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.DisableStacktrace = true
	config.InitialFields = map[string]interface{}{
		"service": service,
	}

	log, err := config.Build()
	if err != nil {
		return zap.NewNop().Sugar(), err
	}

	return log.Sugar(), nil
}

func level() zapcore.Level {
	return parseLevel(os.Getenv("LOG_LEVEL"))
}

// parseLevel falls back to info for empty or unknown levels.
func parseLevel(text string) zapcore.Level {
	lvl, err := zapcore.ParseLevel(text)
	if err != nil {
		return zapcore.InfoLevel
	}

	return lvl
}
