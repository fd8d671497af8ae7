// Package logging provides structured logging for basket.
//
// It wraps log/slog with a process-wide handler and component loggers.
// Component loggers are safe to create at package initialization: they
// resolve the active handler on every record, so a later Init takes effect
// for loggers created before it.
//
// Usage:
//
//	var log = logging.Component("importer")
//
//	func main() {
//		logging.Init(slog.LevelInfo, false)
//		log.Info("import started", "files", 3)
//	}
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

var current atomic.Pointer[slog.Handler]

func init() {
	InitWithWriter(os.Stderr, slog.LevelWarn, false)
}

// Init installs a text or JSON handler on stderr at level.
func Init(level slog.Level, jsonFormat bool) {
	InitWithWriter(os.Stderr, level, jsonFormat)
}

// InitWithWriter is like Init but writes to w.
func InitWithWriter(w io.Writer, level slog.Level, jsonFormat bool) {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}
	var handler slog.Handler
	if jsonFormat {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	InitWithHandler(handler)
}

// InitWithHandler installs a custom handler. Tests use it to capture output.
func InitWithHandler(handler slog.Handler) {
	current.Store(&handler)
	slog.SetDefault(slog.New(handler))
}

// Component returns a logger tagging every record with component=name.
func Component(name string) *slog.Logger {
	return slog.New(dynamicHandler{}).With("component", name)
}

// ParseLevel maps a config string to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// dynamicHandler forwards to the handler installed at the time of each call.
// Attributes and groups added through With are replayed onto it.
type dynamicHandler struct {
	ops []func(slog.Handler) slog.Handler
}

func (h dynamicHandler) resolve() slog.Handler {
	handler := *current.Load()
	for _, op := range h.ops {
		handler = op(handler)
	}
	return handler
}

func (h dynamicHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return (*current.Load()).Enabled(ctx, level)
}

func (h dynamicHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.resolve().Handle(ctx, r)
}

func (h dynamicHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.with(func(next slog.Handler) slog.Handler { return next.WithAttrs(attrs) })
}

func (h dynamicHandler) WithGroup(name string) slog.Handler {
	return h.with(func(next slog.Handler) slog.Handler { return next.WithGroup(name) })
}

func (h dynamicHandler) with(op func(slog.Handler) slog.Handler) dynamicHandler {
	ops := make([]func(slog.Handler) slog.Handler, len(h.ops), len(h.ops)+1)
	copy(ops, h.ops)
	return dynamicHandler{ops: append(ops, op)}
}
