// Package logging provides structured logging configuration using log/slog.
//
// This package integrates with chi's RequestID middleware to propagate
// request IDs through structured log entries, enabling request tracing
// across the entire request lifecycle.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	slogmulti "github.com/samber/slog-multi"
)

// Setup configures the global slog logger based on level and format.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
//
// When file is set, entries are also appended to it as JSON so ingestion
// history survives console scrollback on unattended instrument PCs.
// The returned func closes the file.
func Setup(level, format, file string) func() error {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	console := newHandler(os.Stdout, format, opts)
	if file == "" {
		slog.SetDefault(slog.New(console))
		return func() error { return nil }
	}

	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		// Fall back to console-only if the file cannot be opened
		slog.SetDefault(slog.New(console))
		slog.Error("failed to open log file, using stdout only", "error", err, "file", file)
		return func() error { return nil }
	}

	slog.SetDefault(slog.New(slogmulti.Fanout(console, slog.NewJSONHandler(f, opts))))
	return f.Close
}

// NewWithWriters builds a fan-out logger over arbitrary writers (for tests).
func NewWithWriters(console, file io.Writer, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	return slog.New(slogmulti.Fanout(
		slog.NewTextHandler(console, opts),
		slog.NewJSONHandler(file, opts),
	))
}

func newHandler(w io.Writer, format string, opts *slog.HandlerOptions) slog.Handler {
	if strings.ToLower(format) == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// FromContext returns a logger enriched with request context.
//
// When called with a request context that contains a chi RequestID,
// the returned logger automatically includes request_id in all log entries.
// This enables correlation of all log entries for a single request.
//
// Usage:
//
//	func handleStart(w http.ResponseWriter, r *http.Request) {
//	    logger := logging.FromContext(r.Context())
//	    logger.Info("starting job", "adapter", adapterID)
//	}
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	// Chi's RequestID middleware stores the ID in context
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}

	return logger
}

// WithFields returns a logger with additional structured fields.
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}

// WithJob returns a request logger carrying the job's identity.
func WithJob(ctx context.Context, jobID, adapterID, sourceDir string) *slog.Logger {
	return FromContext(ctx).With(
		"job_id", jobID,
		"adapter", adapterID,
		"source_dir", sourceDir,
	)
}
