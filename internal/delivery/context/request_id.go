// Package context carries per-request values (request id and a request-scoped
// logger) from the HTTP layer down to the use cases.
package context

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// ContextKey namespaces values stored in context.Context and echo.Context.
type ContextKey string

const (
	// KeyRequestID holds the request id.
	KeyRequestID ContextKey = "request_id"

	// KeyLogger holds the logger annotated with the request id.
	KeyLogger ContextKey = "logger"

	// HeaderXRequestID is read from incoming requests and echoed on every response.
	HeaderXRequestID = "X-Request-Id"
)

// GetRequestID returns the id stored by the request-id middleware.
// Outside a request pipeline it falls back to a fresh random id so response
// envelopes always carry one.
func GetRequestID(c echo.Context) string {
	if id, ok := c.Get(string(KeyRequestID)).(string); ok && id != "" {
		return id
	}

	return uuid.NewString()
}

// SetRequestID records the request id on the echo context for response envelopes.
func SetRequestID(c echo.Context, requestID string) {
	c.Set(string(KeyRequestID), requestID)
}

// GetRequestIDFromContext returns the request id that account events are
// tagged with, or "" when the call did not originate from an HTTP request.
func GetRequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(KeyRequestID).(string); ok {
		return id
	}

	return ""
}

// WithRequestID attaches the request id to ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, KeyRequestID, requestID)
}

// GetLogger returns the request-scoped logger, or nil when none is attached.
func GetLogger(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(KeyLogger).(*slog.Logger); ok {
		return logger
	}

	return nil
}

// GetLoggerOrDefault is what services call to log: the request-scoped logger
// when present, fallback otherwise.
func GetLoggerOrDefault(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if logger := GetLogger(ctx); logger != nil {
		return logger
	}

	return fallback
}

// WithLogger attaches a request-scoped logger to ctx.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, KeyLogger, logger)
}
