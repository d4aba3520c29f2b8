package log

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// ContextKey type for context keys
type ContextKey string

const (
	// LoggerContextKey is the context key for the logger
	LoggerContextKey ContextKey = "logger"
)

// NewContext stores logger in ctx.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

// FromContext extracts a logger from the context
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	return &Logger{
		Logger:    slog.Default(),
		component: "unknown",
	}
}

// WithOperationID tags the context logger with a fresh operation id and
// returns both. Restores and exports use it to correlate their log lines.
func WithOperationID(ctx context.Context) (context.Context, string) {
	id := uuid.NewString()
	logger := FromContext(ctx).With(FieldOperationID, id)
	return NewContext(ctx, logger), id
}

// StructuredLogger provides structured logging methods with context awareness
type StructuredLogger struct {
	logger *Logger
}

// NewStructuredLogger creates a new structured logger
func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{
		logger: logger,
	}
}

func (sl *StructuredLogger) LogReceiptCreated(ctx context.Context, id, bookID, number, amountCents int64, auto bool) {
	fields := NewFields().
		WithReceipt(id, bookID, number, amountCents).
		WithOperation(OpCreate).
		WithComponent(ComponentLedger).
		ToSlice()
	fields = append(fields, "auto_allocated", auto)
	sl.logger.InfoContext(ctx, "Receipt created", fields...)
}

func (sl *StructuredLogger) LogReportPublished(ctx context.Context, reportID int64, incomeCents, expenseCents int64) {
	fields := NewFields().
		WithOperation(OpPublish).
		WithComponent(ComponentLedger).
		ToSlice()
	fields = append(fields, FieldReportID, reportID, "income_cents", incomeCents, "expense_cents", expenseCents)
	sl.logger.InfoContext(ctx, "Report published", fields...)
}

// LogError logs an error with structured context
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, component string, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	allFields := fields.
		WithError(err).
		WithOperation(operation).
		WithComponent(component)

	sl.logger.ErrorContext(ctx, msg, allFields.ToSlice()...)
}
