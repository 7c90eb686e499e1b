package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// contextKey is a type for context keys
type contextKey string

const (
	// JobIDKey is the context key for the batch job ID
	JobIDKey contextKey = "job_id"
	// EndpointKey is the context key for the endpoint name
	EndpointKey contextKey = "endpoint"
	// NodeKey is the context key for the node hostname
	NodeKey contextKey = "node"
)

// Config holds logging configuration
type Config struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "json" or "text"
	Output io.Writer
}

// Setup configures the global logger
func Setup(cfg Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}

	// Wrap with context handler
	handler = &ContextHandler{Handler: handler}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}

// ContextHandler adds context values to log records
type ContextHandler struct {
	slog.Handler
}

// Handle adds context values to the record before passing to the wrapped handler
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if jobID, ok := ctx.Value(JobIDKey).(string); ok && jobID != "" {
		r.AddAttrs(slog.String("job_id", jobID))
	}

	if endpoint, ok := ctx.Value(EndpointKey).(string); ok && endpoint != "" {
		r.AddAttrs(slog.String("endpoint", endpoint))
	}

	if node, ok := ctx.Value(NodeKey).(string); ok && node != "" {
		r.AddAttrs(slog.String("node", node))
	}

	return h.Handler.Handle(ctx, r)
}

// WithJobID adds the batch job ID to the context
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, JobIDKey, jobID)
}

// WithEndpoint adds an endpoint name to the context
func WithEndpoint(ctx context.Context, endpoint string) context.Context {
	return context.WithValue(ctx, EndpointKey, endpoint)
}

// WithNode adds a node hostname to the context
func WithNode(ctx context.Context, node string) context.Context {
	return context.WithValue(ctx, NodeKey, node)
}

// Logger returns a logger with additional context
func Logger(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	var attrs []any
	if jobID, ok := ctx.Value(JobIDKey).(string); ok && jobID != "" {
		attrs = append(attrs, "job_id", jobID)
	}
	if endpoint, ok := ctx.Value(EndpointKey).(string); ok && endpoint != "" {
		attrs = append(attrs, "endpoint", endpoint)
	}
	if node, ok := ctx.Value(NodeKey).(string); ok && node != "" {
		attrs = append(attrs, "node", node)
	}

	if len(attrs) > 0 {
		return logger.With(attrs...)
	}
	return logger
}

// Debug logs a debug message
func Debug(ctx context.Context, msg string, args ...any) {
	Logger(ctx).Debug(msg, args...)
}

// Info logs an info message
func Info(ctx context.Context, msg string, args ...any) {
	Logger(ctx).Info(msg, args...)
}

// Warn logs a warning message
func Warn(ctx context.Context, msg string, args ...any) {
	Logger(ctx).Warn(msg, args...)
}

// Error logs an error message
func Error(ctx context.Context, msg string, args ...any) {
	Logger(ctx).Error(msg, args...)
}
