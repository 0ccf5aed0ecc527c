package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	shopperIDKey contextKey = "shopper_id"
)

var logger *slog.Logger

// InitLogger initializes the global structured logger writing to stdout
func InitLogger(level, format string) {
	InitLoggerWithWriter(level, format, os.Stdout)
}

// InitLoggerWithWriter initializes the global structured logger writing to w
func InitLoggerWithWriter(level, format string, w io.Writer) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level:     parseLevel(level),
		AddSource: level == "debug",
	}

	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// FromContext returns a logger with context values attached
func FromContext(ctx context.Context) *slog.Logger {
	if logger == nil {
		// Fallback to default logger if not initialized
		return slog.Default()
	}

	attrs := make([]any, 0, 2)

	if reqID, ok := ctx.Value(requestIDKey).(string); ok && reqID != "" {
		attrs = append(attrs, slog.String("request_id", reqID))
	}

	if shopperID, ok := ctx.Value(shopperIDKey).(string); ok && shopperID != "" {
		attrs = append(attrs, slog.String("shopper_id", shopperID))
	}

	if len(attrs) > 0 {
		return logger.With(attrs...)
	}
	return logger
}

// WithRequestID adds request ID to context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithShopperID adds the shopper (browser) ID to context
func WithShopperID(ctx context.Context, shopperID string) context.Context {
	return context.WithValue(ctx, shopperIDKey, shopperID)
}

// parseLevel converts string level to slog.Level
func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Info logs at info level
func Info(msg string, args ...any) {
	if logger != nil {
		logger.Info(msg, args...)
	} else {
		slog.Info(msg, args...)
	}
}

// Error logs at error level
func Error(msg string, args ...any) {
	if logger != nil {
		logger.Error(msg, args...)
	} else {
		slog.Error(msg, args...)
	}
}

// Warn logs at warn level
func Warn(msg string, args ...any) {
	if logger != nil {
		logger.Warn(msg, args...)
	} else {
		slog.Warn(msg, args...)
	}
}

// Debug logs at debug level
func Debug(msg string, args ...any) {
	if logger != nil {
		logger.Debug(msg, args...)
	} else {
		slog.Debug(msg, args...)
	}
}
