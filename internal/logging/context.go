// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Context keys for logging.
type contextKey string

const (
	// operationIDKey carries the id of the long-running operation
	// (ingest pass, approval, label sync) that owns the current call
	// tree. The same id is published on the progress bus, so log lines
	// and progress events correlate.
	operationIDKey contextKey = "operation_id"

	// loggerKey carries a pre-configured logger instance.
	loggerKey contextKey = "logger"
)

// NewOperationID creates a short unique operation id. Eight UUID
// characters keep log lines readable while staying unique within any
// realistic retention window.
func NewOperationID() string {
	return uuid.New().String()[:8]
}

// ContextWithOperationID returns a new context carrying the given
// operation id.
func ContextWithOperationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, operationIDKey, id)
}

// OperationIDFromContext retrieves the operation id from context, or ""
// when the call tree is not part of a tracked operation.
func OperationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(operationIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithLogger stores a pre-configured logger in the context, e.g. a
// component-scoped child logger a service wants its whole call tree to
// use.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func ContextWithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFromContext retrieves a logger from context, falling back to the
// global logger.
func LoggerFromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(loggerKey).(zerolog.Logger); ok {
		return logger
	}
	return Logger()
}

// Ctx returns a logger with the context's operation id attached. This is
// the way long-running flows log: every line carries the id the flow
// published on the progress bus.
//
//	logging.Ctx(ctx).Info().Msg("snapshot persisted")
//	// Output: {"level":"info","operation_id":"abc12345","message":"snapshot persisted"}
func Ctx(ctx context.Context) *zerolog.Logger {
	logger := LoggerFromContext(ctx)
	if id := OperationIDFromContext(ctx); id != "" {
		logger = logger.With().Str("operation_id", id).Logger()
	}
	return &logger
}

// CtxWith returns a logger context builder with the operation id
// pre-populated, for callers adding further fields.
//
//	logger := logging.CtxWith(ctx).Str("user", name).Logger()
func CtxWith(ctx context.Context) zerolog.Context {
	logCtx := LoggerFromContext(ctx).With()
	if id := OperationIDFromContext(ctx); id != "" {
		logCtx = logCtx.Str("operation_id", id)
	}
	return logCtx
}

// WithComponent creates a child logger with a component field.
//
//	ingestLogger := logging.WithComponent("ingester")
func WithComponent(component string) zerolog.Logger {
	return With().Str("component", component).Logger()
}
