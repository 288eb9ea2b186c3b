// Package logging configures the process-wide slog logger.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// levelRouter is a slog.Handler that routes INFO/WARN to one handler and
// ERROR+ to another.
type levelRouter struct {
	out slog.Handler
	err slog.Handler
}

func (lr *levelRouter) Enabled(ctx context.Context, level slog.Level) bool {
	return lr.out.Enabled(ctx, level) || lr.err.Enabled(ctx, level)
}

func (lr *levelRouter) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		return lr.err.Handle(ctx, r)
	}
	return lr.out.Handle(ctx, r)
}

func (lr *levelRouter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelRouter{out: lr.out.WithAttrs(attrs), err: lr.err.WithAttrs(attrs)}
}

func (lr *levelRouter) WithGroup(name string) slog.Handler {
	return &levelRouter{out: lr.out.WithGroup(name), err: lr.err.WithGroup(name)}
}

// Options describes where logs go.
type Options struct {
	Stdout io.Writer
	Stderr io.Writer
	Level  slog.Level

	// File, when set, receives every record in addition to stdout/stderr
	// and is rotated by size.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New builds a logger from opts. The returned cleanup closes the log file,
// if one was opened.
func New(opts Options) (*slog.Logger, func()) {
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	cleanup := func() {}
	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
			LocalTime:  true,
		}
		cleanup = func() { rotator.Close() }
		stdout = io.MultiWriter(stdout, rotator)
		stderr = io.MultiWriter(stderr, rotator)
	}

	handlerOpts := &slog.HandlerOptions{Level: opts.Level}
	handler := &levelRouter{
		out: slog.NewTextHandler(stdout, handlerOpts),
		err: slog.NewTextHandler(stderr, handlerOpts),
	}
	return slog.New(handler), cleanup
}

// Setup builds a logger with New and installs it as the slog default.
func Setup(opts Options) func() {
	logger, cleanup := New(opts)
	slog.SetDefault(logger)
	return cleanup
}
