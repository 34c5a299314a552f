// Package logger provides the structured logger used across the engine,
// the registry client, and the CLI. It wraps log/slog but reports the
// call site of the Logger method itself (never logger.go), following the
// "wrapping output methods" pattern documented by log/slog.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"

	slogmulti "github.com/samber/slog-multi"
)

// Logger is the structured logger interface passed through the engine.
// It is sealed: the unexported logAt method means only this package can
// produce implementations.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)

	With(args ...any) Logger
	WithGroup(name string) Logger

	logAt(skip int, level slog.Level, msg string, args ...any)
}

type logger struct {
	sl *slog.Logger
}

// Option configures NewLogger.
type Option func(*options)

type options struct {
	debug   bool
	format  string
	writer  io.Writer
	quiet   bool
	logFile *os.File
}

// WithDebug enables debug-level logging and source-location attributes.
func WithDebug() Option { return func(o *options) { o.debug = true } }

// WithFormat selects "text" (default) or "json" output.
func WithFormat(format string) Option { return func(o *options) { o.format = format } }

// WithWriter adds an additional destination, mainly for tests.
func WithWriter(w io.Writer) Option { return func(o *options) { o.writer = w } }

// WithQuiet suppresses the default os.Stdout destination, leaving only
// whatever WithWriter/WithLogFile supplied.
func WithQuiet() Option { return func(o *options) { o.quiet = true } }

// WithLogFile tees output to an already-open file, in addition to
// os.Stdout unless WithQuiet is also given.
func WithLogFile(f *os.File) Option { return func(o *options) { o.logFile = f } }

// NewLogger builds a Logger from the given options. With no options it
// logs text at info level to os.Stdout.
func NewLogger(opts ...Option) Logger {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	level := slog.LevelInfo
	if o.debug {
		level = slog.LevelDebug
	}

	var writers []io.Writer
	if !o.quiet {
		writers = append(writers, os.Stdout)
	}
	if o.writer != nil {
		writers = append(writers, o.writer)
	}
	if o.logFile != nil {
		writers = append(writers, o.logFile)
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	handlerOpts := &slog.HandlerOptions{Level: level, AddSource: o.debug}
	newHandler := func(w io.Writer) slog.Handler {
		if o.format == "json" {
			return slog.NewJSONHandler(w, handlerOpts)
		}
		return slog.NewTextHandler(w, handlerOpts)
	}

	var handler slog.Handler
	if len(writers) == 1 {
		handler = newHandler(writers[0])
	} else {
		handlers := make([]slog.Handler, len(writers))
		for i, w := range writers {
			handlers[i] = newHandler(w)
		}
		handler = slogmulti.Fanout(handlers...)
	}

	return &logger{sl: slog.New(handler)}
}

func (l *logger) Debug(msg string, args ...any) { l.logAt(3, slog.LevelDebug, msg, args...) }
func (l *logger) Info(msg string, args ...any)  { l.logAt(3, slog.LevelInfo, msg, args...) }
func (l *logger) Warn(msg string, args ...any)  { l.logAt(3, slog.LevelWarn, msg, args...) }
func (l *logger) Error(msg string, args ...any) { l.logAt(3, slog.LevelError, msg, args...) }

func (l *logger) Debugf(format string, args ...any) {
	l.logAt(3, slog.LevelDebug, fmt.Sprintf(format, args...))
}
func (l *logger) Infof(format string, args ...any) {
	l.logAt(3, slog.LevelInfo, fmt.Sprintf(format, args...))
}
func (l *logger) Warnf(format string, args ...any) {
	l.logAt(3, slog.LevelWarn, fmt.Sprintf(format, args...))
}
func (l *logger) Errorf(format string, args ...any) {
	l.logAt(3, slog.LevelError, fmt.Sprintf(format, args...))
}

func (l *logger) With(args ...any) Logger {
	return &logger{sl: l.sl.With(args...)}
}

func (l *logger) WithGroup(name string) Logger {
	return &logger{sl: l.sl.WithGroup(name)}
}

// logAt records a slog.Record whose source is the frame skip steps up
// the call stack from here, so a thin wrapper (Info, Infof, or a
// context-bound package function) reports its caller's location rather
// than its own.
func (l *logger) logAt(skip int, level slog.Level, msg string, args ...any) {
	ctx := context.Background()
	if !l.sl.Enabled(ctx, level) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(skip, pcs[:])
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.Add(args...)
	_ = l.sl.Handler().Handle(ctx, r)
}
