// Package logger holds the process-wide structured logger.
package logger

import (
	"github.com/hsdfat/go-zlog/logger"
	"go.uber.org/zap"
)

// Log is the logger every component falls back to when none is injected.
var Log logger.LoggerI = logger.NewLogger()

func init() {
	Log.(*logger.Logger).SugaredLogger = Log.(*logger.Logger).SugaredLogger.WithOptions(zap.AddCallerSkip(1))
}

// SetLevel sets the global log level.
// Valid levels: "debug", "info", "warn", "error", "fatal"
func SetLevel(level string) {
	logger.SetLevel(level)
}

// WithFields returns a child of Log carrying the given key/value pairs.
func WithFields(args ...any) logger.LoggerI {
	return Log.With(args...).(logger.LoggerI)
}

// ForAssociation tags log lines with the association ID and local role so the
// lines of concurrent associations can be told apart.
func ForAssociation(base logger.LoggerI, id, role string) logger.LoggerI {
	if base == nil {
		base = Log
	}
	return base.With("assoc_id", id, "role", role).(logger.LoggerI)
}
