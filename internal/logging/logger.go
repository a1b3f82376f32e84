package logging

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type contextKey string

const requestIDKey contextKey = "requestID"

// NewLogger builds a production JSON logger at the requested level.
// Unknown or empty levels fall back to info.
func NewLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// WithOperation enriches the logger with operation and request identifiers.
func WithOperation(logger *zap.Logger, operation, requestID string) *zap.Logger {
	fields := []zap.Field{zap.String("operation", operation)}
	if requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	return logger.With(fields...)
}

// ContextWithRequestID stores the inbound request id on ctx.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request id stored by ContextWithRequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
