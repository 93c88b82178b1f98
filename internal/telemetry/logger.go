package telemetry

import (
	"context"
	"log/slog"

	"github.com/getpup/pupsourcing/es"

	"github.com/getpup/glpi-bootstrap/lifecycle"
)

// Logger adapts a slog.Logger to the es.Logger interface accepted by the
// bootstrap packages, so step logs carry trace correlation.
type Logger struct {
	logger *slog.Logger
}

var (
	_ es.Logger        = (*Logger)(nil)
	_ lifecycle.Warner = (*Logger)(nil)
)

// NewLogger returns an es.Logger backed by l, or by slog.Default() if l is nil.
func NewLogger(l *slog.Logger) *Logger {
	if l == nil {
		l = slog.Default()
	}
	return &Logger{logger: l}
}

func (l *Logger) Debug(ctx context.Context, msg string, keyvals ...interface{}) {
	l.logger.DebugContext(ctx, msg, keyvals...)
}

func (l *Logger) Info(ctx context.Context, msg string, keyvals ...interface{}) {
	l.logger.InfoContext(ctx, msg, keyvals...)
}

// Warn logs at slog.LevelWarn. The lifecycle manager uses it for best-effort
// step failures.
func (l *Logger) Warn(ctx context.Context, msg string, keyvals ...interface{}) {
	l.logger.WarnContext(ctx, msg, keyvals...)
}

func (l *Logger) Error(ctx context.Context, msg string, keyvals ...interface{}) {
	l.logger.ErrorContext(ctx, msg, keyvals...)
}
