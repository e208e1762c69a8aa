package observability

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pitabwire/suitekit/internal/config"
	"github.com/pitabwire/suitekit/model"
)

// Context key for the logger.
type loggerKey struct{}

// NewLogger creates a zap.Logger configured for JSON output to stderr, so
// that CLI output on stdout stays machine readable.
//
// Log level usage conventions:
//   - error: failed calls presented to the user, storage failures
//   - warn:  authentication expiry, unparseable credentials, failed background refreshes
//   - info:  login/logout, configuration summary
//   - debug: every outbound request, cache hits and refreshes
func NewLogger(cfg config.ObservabilityConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(level),
		Development: false,
		Encoding:    "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.MillisDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return zapCfg.Build()
}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFrom returns the logger stored in the context, or the provided
// fallback if none is found. A nil fallback yields a no-op logger.
func LoggerFrom(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	if fallback == nil {
		return zap.NewNop()
	}
	return fallback
}

// RequestLogger returns a logger enriched with RequestContext fields.
// If no logger is in the context, the fallback is used.
func RequestLogger(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	logger := LoggerFrom(ctx, fallback)

	rctx := model.RequestContextFrom(ctx)
	if rctx == nil {
		return logger
	}

	fields := []zap.Field{
		zap.String("tenant_id", rctx.TenantID),
		zap.String("correlation_id", rctx.CorrelationID),
	}
	if rctx.PartitionID != "" {
		fields = append(fields, zap.String("partition_id", rctx.PartitionID))
	}
	if traceID := TraceIDFromContext(ctx); traceID != "" {
		fields = append(fields, zap.String("trace_id", traceID))
	}

	return logger.With(fields...)
}

// defaultSensitiveFields is the default set of field names that should be
// redacted in debug logging output.
var defaultSensitiveFields = map[string]bool{
	"password":       true,
	"secret":         true,
	"token":          true,
	"access_token":   true,
	"refresh_token":  true,
	"api_key":        true,
	"authorization":  true,
	"credit_card":    true,
	"iban":           true,
	"account_number": true,
	"pin":            true,
}

// sensitiveHeaders are always redacted from logged headers.
var sensitiveHeaders = map[string]bool{
	"Authorization": true,
	"Cookie":        true,
	"Set-Cookie":    true,
	"X-Api-Key":     true,
}

const redacted = "[REDACTED]"

// RedactBody returns a copy of body with sensitive fields replaced by
// "[REDACTED]". The sensitiveFields list is merged with default sensitive
// field names. This is intended for debug-level logging only.
func RedactBody(body map[string]any, sensitiveFields []string) map[string]any {
	if body == nil {
		return nil
	}

	redactSet := make(map[string]bool, len(defaultSensitiveFields)+len(sensitiveFields))
	for k, v := range defaultSensitiveFields {
		redactSet[k] = v
	}
	for _, f := range sensitiveFields {
		redactSet[strings.ToLower(f)] = true
	}

	return redactMap(body, redactSet)
}

func redactMap(body map[string]any, redactSet map[string]bool) map[string]any {
	result := make(map[string]any, len(body))
	for k, v := range body {
		if redactSet[strings.ToLower(k)] {
			result[k] = redacted
			continue
		}
		result[k] = redactValue(v, redactSet)
	}
	return result
}

func redactValue(v any, redactSet map[string]bool) any {
	switch val := v.(type) {
	case map[string]any:
		return redactMap(val, redactSet)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = redactValue(item, redactSet)
		}
		return out
	default:
		return v
	}
}

// RedactHeaders flattens h for logging, replacing credential-bearing header
// values with "[REDACTED]". The input is never modified.
func RedactHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		key := http.CanonicalHeaderKey(k)
		if sensitiveHeaders[key] {
			out[key] = redacted
			continue
		}
		out[key] = strings.Join(v, ", ")
	}
	return out
}
