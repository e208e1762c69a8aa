package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pitabwire/suitekit/internal/config"
	"github.com/pitabwire/suitekit/model"
)

// newBufferLogger creates a debug-level JSON logger writing into buf.
func newBufferLogger(buf *bytes.Buffer) *zap.Logger {
	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		LevelKey:    "level",
		MessageKey:  "msg",
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	})
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(buf), zapcore.DebugLevel))
}

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry %q: %v", buf.String(), err)
	}
	return entry
}

func TestNewLogger_levels(t *testing.T) {
	tests := []struct {
		level     string
		enabled   zapcore.Level
		disabled  zapcore.Level
		checkDown bool
	}{
		{level: "debug", enabled: zapcore.DebugLevel},
		{level: "info", enabled: zapcore.InfoLevel, disabled: zapcore.DebugLevel, checkDown: true},
		{level: "warn", enabled: zapcore.WarnLevel, disabled: zapcore.InfoLevel, checkDown: true},
		{level: "bogus", enabled: zapcore.InfoLevel, disabled: zapcore.DebugLevel, checkDown: true},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, err := NewLogger(config.ObservabilityConfig{LogLevel: tt.level})
			if err != nil {
				t.Fatalf("NewLogger() error = %v", err)
			}
			defer logger.Sync()

			if !logger.Core().Enabled(tt.enabled) {
				t.Errorf("%s should be enabled", tt.enabled)
			}
			if tt.checkDown && logger.Core().Enabled(tt.disabled) {
				t.Errorf("%s should be disabled", tt.disabled)
			}
		})
	}
}

func TestLoggerFrom(t *testing.T) {
	stored := zap.NewNop()
	fallback := zap.NewNop()

	if got := LoggerFrom(WithLogger(context.Background(), stored), fallback); got != stored {
		t.Error("LoggerFrom should prefer the context logger")
	}
	if got := LoggerFrom(context.Background(), fallback); got != fallback {
		t.Error("LoggerFrom should return the fallback")
	}
	if got := LoggerFrom(context.Background(), nil); got == nil {
		t.Error("LoggerFrom(nil fallback) must not return nil")
	}
}

func TestRequestLogger_addsTenantFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf)

	ctx := model.WithRequestContext(context.Background(), &model.RequestContext{
		TenantID:      "acme",
		PartitionID:   "eu-1",
		CorrelationID: "corr-1",
	})
	RequestLogger(ctx, logger).Info("listing")

	entry := decodeEntry(t, &buf)
	for key, want := range map[string]string{
		"tenant_id":      "acme",
		"partition_id":   "eu-1",
		"correlation_id": "corr-1",
		"msg":            "listing",
	} {
		if got, _ := entry[key].(string); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
	if _, ok := entry["trace_id"]; ok {
		t.Error("trace_id should be absent without an active span")
	}
}

func TestRequestLogger_withoutRequestContext(t *testing.T) {
	var buf bytes.Buffer
	RequestLogger(context.Background(), newBufferLogger(&buf)).Info("bare")

	entry := decodeEntry(t, &buf)
	if _, ok := entry["tenant_id"]; ok {
		t.Error("tenant_id should be absent without RequestContext")
	}
}

func TestRedactBody(t *testing.T) {
	body := map[string]any{
		"memo":         "rent",
		"password":     "hunter2",
		"Access_Token": "abc",
		"payee": map[string]any{
			"name": "Landlord",
			"iban": "DE89370400440532013000",
		},
		"lines": []any{
			map[string]any{"amount": 10.0, "pin": "1234"},
			"plain",
		},
	}

	got := RedactBody(body, []string{"memo"})

	if got["memo"] != redacted {
		t.Errorf("memo = %v, want redacted (custom field)", got["memo"])
	}
	if got["password"] != redacted || got["Access_Token"] != redacted {
		t.Errorf("default fields not redacted: %v", got)
	}
	payee := got["payee"].(map[string]any)
	if payee["name"] != "Landlord" || payee["iban"] != redacted {
		t.Errorf("payee = %v", payee)
	}
	lines := got["lines"].([]any)
	if lines[0].(map[string]any)["pin"] != redacted || lines[1] != "plain" {
		t.Errorf("lines = %v", lines)
	}
	if body["password"] != "hunter2" {
		t.Error("original body was mutated")
	}
	if RedactBody(nil, nil) != nil {
		t.Error("RedactBody(nil) should be nil")
	}
}

func TestRedactHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer secret")
	h.Set("Content-Type", "application/json")
	h.Add("Accept", "application/json")
	h.Add("Accept", "text/plain")

	got := RedactHeaders(h)

	if got["Authorization"] != redacted {
		t.Errorf("Authorization = %q", got["Authorization"])
	}
	if got["Content-Type"] != "application/json" {
		t.Errorf("Content-Type = %q", got["Content-Type"])
	}
	if got["Accept"] != "application/json, text/plain" {
		t.Errorf("Accept = %q", got["Accept"])
	}
	if h.Get("Authorization") != "Bearer secret" {
		t.Error("input header was modified")
	}
}
