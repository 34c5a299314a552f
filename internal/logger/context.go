package logger

import (
	"context"
	"fmt"
	"log/slog"
)

type contextKey struct{}

var defaultLogger Logger = NewLogger()

// WithLogger attaches l to ctx for retrieval by the package-level
// Debug/Info/Warn/Error helpers.
func WithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext returns the Logger attached to ctx, or a default
// text-to-stdout Logger if none was attached.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(contextKey{}).(Logger); ok {
		return l
	}
	return defaultLogger
}

func Debug(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).logAt(3, slog.LevelDebug, msg, args...)
}

func Info(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).logAt(3, slog.LevelInfo, msg, args...)
}

func Warn(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).logAt(3, slog.LevelWarn, msg, args...)
}

func Error(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).logAt(3, slog.LevelError, msg, args...)
}

func Debugf(ctx context.Context, format string, args ...any) {
	FromContext(ctx).logAt(3, slog.LevelDebug, fmt.Sprintf(format, args...))
}

func Infof(ctx context.Context, format string, args ...any) {
	FromContext(ctx).logAt(3, slog.LevelInfo, fmt.Sprintf(format, args...))
}

func Warnf(ctx context.Context, format string, args ...any) {
	FromContext(ctx).logAt(3, slog.LevelWarn, fmt.Sprintf(format, args...))
}

func Errorf(ctx context.Context, format string, args ...any) {
	FromContext(ctx).logAt(3, slog.LevelError, fmt.Sprintf(format, args...))
}
