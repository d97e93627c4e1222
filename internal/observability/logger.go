package observability

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with convenience methods for request-scoped and
// component-scoped logging.
type Logger struct {
	*zap.Logger
}

// loggerContextKey is the context key for storing logger instances.
type loggerContextKey struct{}

// requestIDContextKey is the context key under which middleware stores the
// request ID.
type requestIDContextKey struct{}

var (
	// GlobalLogger is the default logger instance. Exported for testing.
	GlobalLogger *Logger
)

// InitLogger initializes the global logger for the given environment.
// Valid environments: development, test, staging, production.
func InitLogger(env string) (*Logger, error) {
	var config zap.Config

	switch env {
	case "development", "test":
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case "production", "staging":
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		return nil, fmt.Errorf("invalid environment: %s (must be development, test, staging, or production)", env)
	}

	// LOG_LEVEL overrides the environment's default level.
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(logLevel)); err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
		config.Level = zap.NewAtomicLevelAt(level)
	}

	zapLogger, err := config.Build(
		zap.AddCallerSkip(1), // Skip wrapper functions in stack trace
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	logger := &Logger{Logger: zapLogger}
	GlobalLogger = logger

	return logger, nil
}

// GetLogger returns the global logger instance.
// Panics if InitLogger has not been called.
func GetLogger() *Logger {
	if GlobalLogger == nil {
		panic("logger not initialized - call InitLogger first")
	}
	return GlobalLogger
}

// WithContext returns a logger carrying the fields stored in ctx, currently
// the request ID when middleware has set one.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	fields := ExtractContextFields(ctx)
	if len(fields) > 0 {
		return &Logger{Logger: l.With(fields...)}
	}
	return l
}

// WithFields creates a new logger with additional fields.
func (l *Logger) WithFields(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.With(fields...)}
}

// WithError adds an error field to the logger.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{Logger: l.With(zap.Error(err))}
}

// WithComponent adds a component field to the logger.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.With(zap.String("component", component))}
}

// ContextWithLogger adds the logger to the context.
func ContextWithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, logger)
}

// LoggerFromContext retrieves the logger from context.
// Returns the global logger if not found in context.
func LoggerFromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerContextKey{}).(*Logger); ok {
		return logger
	}
	return GetLogger()
}

// ContextWithRequestID stores a request ID in ctx for later extraction by
// WithContext.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, requestID)
}

// RequestIDFromContext returns the request ID stored in ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDContextKey{}).(string); ok {
		return id
	}
	return ""
}

// ExtractContextFields extracts logging fields from context.
func ExtractContextFields(ctx context.Context) []zap.Field {
	var fields []zap.Field

	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}

	return fields
}

// Sync flushes any buffered log entries.
// Should be called before application shutdown.
func (l *Logger) Sync() error {
	if err := l.Logger.Sync(); err != nil {
		return fmt.Errorf("failed to sync logger: %w", err)
	}
	return nil
}

// Helper methods for common logging patterns

// LogRequest logs an HTTP request.
func (l *Logger) LogRequest(method, path string, statusCode int, duration float64) {
	l.Info("http request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", statusCode),
		zap.Float64("duration_ms", duration),
	)
}

// LogRedisOperation logs a Redis operation.
func (l *Logger) LogRedisOperation(operation string, key string, err error) {
	if err != nil {
		l.Error("redis operation failed",
			zap.String("operation", operation),
			zap.String("key", key),
			zap.Error(err),
		)
	} else {
		l.Debug("redis operation completed",
			zap.String("operation", operation),
			zap.String("key", key),
		)
	}
}

// LogStorageOperation logs a release-history storage operation.
func (l *Logger) LogStorageOperation(operation, deploymentKey string, err error) {
	if err != nil {
		l.Error("storage operation failed",
			zap.String("operation", operation),
			zap.String("deployment_key", deploymentKey),
			zap.Error(err),
		)
	} else {
		l.Debug("storage operation completed",
			zap.String("operation", operation),
			zap.String("deployment_key", deploymentKey),
		)
	}
}
