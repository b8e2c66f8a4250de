// Package klog sets up logging for the syscall layer: a slog handler
// that numbers records, a zap tracer that feeds the same handler, flag
// formatting for trace fields and a parser for the JSON output.
package klog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/kmrgirish/starry/internal/prettylog"
)

// LevelEnv names the environment variable that overrides the log level.
const LevelEnv = "STARRY_LOG_LEVEL"

// seqHandler stamps every record with a process-wide sequence number, so
// that interleaved output from concurrent callers can be put back in
// order.
type seqHandler struct {
	inner slog.Handler
	seq   *atomic.Int64
}

func (h seqHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h seqHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(slog.Int64("seq", h.seq.Add(1)))
	return h.inner.Handle(ctx, r)
}

func (h seqHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return seqHandler{inner: h.inner.WithAttrs(attrs), seq: h.seq}
}

func (h seqHandler) WithGroup(name string) slog.Handler {
	return seqHandler{inner: h.inner.WithGroup(name), seq: h.seq}
}

type Options struct {
	// Level is the minimum level; LevelEnv wins when set.
	Level string
	// Format is "json" or "pretty".
	Format    string
	AddSource bool
}

// ParseLevel parses a level name like "debug" or "warn+2". The empty
// string is info.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return level, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, err
	}
	return level, nil
}

// New returns a logger writing to w.
func New(w io.Writer, opts Options) (*slog.Logger, error) {
	levelName := opts.Level
	if env := os.Getenv(LevelEnv); env != "" {
		levelName = env
	}
	level, err := ParseLevel(levelName)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	switch opts.Format {
	case "", "json":
	case "pretty":
		w = prettylog.NewWriter(w)
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: opts.AddSource,
	})
	return slog.New(seqHandler{inner: handler, seq: new(atomic.Int64)}), nil
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
