// Package logger builds the zap loggers used by the server, the worker and
// the CLI, and sanitizes untrusted values before they are logged.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceName is attached to every production log line
const ServiceName = "inbox-gateway"

// NewProductionLogger creates a JSON logger for one process of the gateway.
// component distinguishes the HTTP server from the queue worker in shared log
// storage; debugMode lowers the level to debug.
func NewProductionLogger(component string, debugMode bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(level(debugMode))
	config.EncoderConfig.TimeKey = "ts"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeDuration = zapcore.MillisDurationEncoder
	config.InitialFields = map[string]any{
		"service":   ServiceName,
		"component": component,
	}
	// Upload bursts should not drop request logs
	config.Sampling = nil

	return config.Build()
}

// NewDevelopmentLogger creates a console logger for local runs of the CLI
func NewDevelopmentLogger(debugMode bool) (*zap.Logger, error) {
	config := zap.NewDevelopmentConfig()
	config.Level = zap.NewAtomicLevelAt(level(debugMode))
	config.DisableStacktrace = !debugMode
	return config.Build()
}

func level(debugMode bool) zapcore.Level {
	if debugMode {
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}

// Sync flushes buffered entries; safe to call on a nil logger
func Sync(logger *zap.Logger) error {
	if logger == nil {
		return nil
	}
	return logger.Sync()
}
