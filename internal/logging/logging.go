// Package logging configures log/slog and carries per-run attributes in the context.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

type ctxKey string

const (
	RunIDKey      ctxKey = "run_id"
	StageKey      ctxKey = "stage"
	DocumentIDKey ctxKey = "document_id"
	RequestIDKey  ctxKey = "request_id"
)

var contextKeys = []ctxKey{RunIDKey, StageKey, DocumentIDKey, RequestIDKey}

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger
)

// Init installs the process logger writing to stderr. format is "json" or "text".
func Init(level, format string) {
	InitWithWriter(os.Stderr, level, format)
}

// InitWithWriter is Init with an explicit destination.
func InitWithWriter(w io.Writer, level, format string) {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(handler)

	mu.Lock()
	defaultLogger = logger
	mu.Unlock()
	slog.SetDefault(logger)
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func Default() *slog.Logger {
	mu.RLock()
	l := defaultLogger
	mu.RUnlock()
	if l == nil {
		return slog.Default()
	}
	return l
}

// With stores a logging attribute in ctx.
func With(ctx context.Context, key ctxKey, value any) context.Context {
	return context.WithValue(ctx, key, value)
}

// FromContext returns the default logger enriched with the attributes stored in ctx.
func FromContext(ctx context.Context) *slog.Logger {
	logger := Default()
	if ctx == nil {
		return logger
	}
	for _, k := range contextKeys {
		if v := ctx.Value(k); v != nil {
			logger = logger.With(string(k), v)
		}
	}
	return logger
}
