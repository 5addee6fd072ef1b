package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ServiceLogger logs the outcome of session operations with a level that
// depends on the kind of failure.
type ServiceLogger struct {
	logger *slog.Logger
}

type LogConfig struct {
	Service   string
	Component string
}

func NewServiceLogger(logger *slog.Logger, config LogConfig) *ServiceLogger {
	return &ServiceLogger{
		logger: logger.With("service", config.Service, "component", config.Component),
	}
}

// ===== OPERATION LOGGING =====

// outcome classifies err. Learner mistakes are warnings, missing sessions
// are informational, anything else is an error.
func outcome(err error) (slog.Level, string) {
	switch {
	case err == nil:
		return slog.LevelInfo, "success"
	case IsValidation(err), IsBusinessRule(err):
		return slog.LevelWarn, "rejected"
	case IsConflict(err):
		return slog.LevelWarn, "conflict"
	case IsNotFound(err):
		return slog.LevelInfo, "not_found"
	default:
		return slog.LevelError, "error"
	}
}

func (l *ServiceLogger) LogOperation(ctx context.Context, operation, sessionID, quizName string, duration time.Duration, err error) {
	level, status := outcome(err)

	attrs := []slog.Attr{
		slog.String("operation", operation),
		slog.String("session_id", sessionID),
		slog.String("quiz_name", quizName),
		slog.String("status", status),
		slog.Duration("duration", duration),
	}

	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))

		var validationErrors ValidationErrors
		var businessErr *BusinessRuleError
		switch {
		case errors.As(err, &validationErrors):
			attrs = append(attrs, slog.Group("validation", validationAttrs(validationErrors)...))
		case errors.As(err, &businessErr):
			attrs = append(attrs, slog.Group("rule", ruleAttrs(businessErr)...))
		}
	}

	l.logger.LogAttrs(ctx, level, fmt.Sprintf("%s %s", operation, status), attrs...)
}

func validationAttrs(validationErrors ValidationErrors) []any {
	attrs := []any{slog.Int("count", len(validationErrors))}
	for i, err := range validationErrors {
		if i == 3 {
			break
		}
		attrs = append(attrs, slog.String(err.Field, err.Message))
	}
	return attrs
}

func ruleAttrs(rule *BusinessRuleError) []any {
	attrs := []any{slog.String("name", rule.Rule)}
	for key, value := range rule.Context {
		attrs = append(attrs, slog.Any(key, value))
	}
	return attrs
}

// LogRecovery records a panic that was turned into an error response.
func (l *ServiceLogger) LogRecovery(ctx context.Context, operation string, recovered interface{}, stack []byte) {
	l.logger.LogAttrs(ctx, slog.LevelError, "Panic recovered",
		slog.String("operation", operation),
		slog.Any("panic_value", recovered),
		slog.String("stack_trace", string(stack)),
	)
}

// ===== TIMED OPERATIONS =====

// ContextualLogger times one operation and logs its result once it ends.
type ContextualLogger struct {
	logger    *ServiceLogger
	operation string
	sessionID string
	startTime time.Time
	ctx       context.Context
}

func (l *ServiceLogger) WithOperation(ctx context.Context, operation, sessionID string) *ContextualLogger {
	return &ContextualLogger{
		logger:    l,
		operation: operation,
		sessionID: sessionID,
		startTime: time.Now(),
		ctx:       ctx,
	}
}

func (cl *ContextualLogger) LogResult(quizName string, err error) {
	cl.logger.LogOperation(cl.ctx, cl.operation, cl.sessionID, quizName, time.Since(cl.startTime), err)
}
