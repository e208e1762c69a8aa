package httpclient

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitabwire/suitekit/internal/observability"
	"github.com/pitabwire/suitekit/model"
)

// Header names set by the built-in middleware.
const (
	HeaderCorrelationID = "X-Correlation-Id"
	HeaderTenantID      = "X-Tenant-Id"
	HeaderPartitionID   = "X-Partition-Id"
)

// CorrelationID sets X-Correlation-Id from the RequestContext, or a fresh
// UUID when there is none. An id already on the request is kept.
func CorrelationID() RequestMiddleware {
	return func(ctx context.Context, req *Request) error {
		if req.Header.Get(HeaderCorrelationID) != "" {
			return nil
		}
		id := ""
		if rctx := model.RequestContextFrom(ctx); rctx != nil {
			id = rctx.CorrelationID
		}
		if id == "" {
			id = uuid.NewString()
		}
		req.Header.Set(HeaderCorrelationID, sanitizeHeader(id))
		return nil
	}
}

// TenantHeaders forwards the tenant and partition of the RequestContext.
func TenantHeaders() RequestMiddleware {
	return func(ctx context.Context, req *Request) error {
		rctx := model.RequestContextFrom(ctx)
		if rctx == nil {
			return nil
		}
		if rctx.TenantID != "" {
			req.Header.Set(HeaderTenantID, sanitizeHeader(rctx.TenantID))
		}
		if rctx.PartitionID != "" {
			req.Header.Set(HeaderPartitionID, sanitizeHeader(rctx.PartitionID))
		}
		return nil
	}
}

// RequestLogging writes a debug entry per outgoing request with method,
// URL, headers and body. Credentials and sensitive body fields are
// redacted. The request itself is never modified.
func RequestLogging(logger *zap.Logger) RequestMiddleware {
	return func(ctx context.Context, req *Request) error {
		l := observability.RequestLogger(ctx, logger)
		if ce := l.Check(zap.DebugLevel, "outgoing request"); ce != nil {
			ce.Write(
				zap.String("method", req.Method),
				zap.String("url", req.URL),
				zap.Any("headers", observability.RedactHeaders(req.Header)),
				zap.Any("body", loggableBody(req.Body)),
			)
		}
		return nil
	}
}

// TraceInjection propagates the active span as W3C trace headers.
func TraceInjection() RequestMiddleware {
	return func(ctx context.Context, req *Request) error {
		observability.InjectTraceHeaders(ctx, req.Header)
		return nil
	}
}

// loggableBody returns a redacted copy of body suitable for logging.
func loggableBody(body any) any {
	if body == nil {
		return nil
	}

	var raw []byte
	switch b := body.(type) {
	case []byte:
		raw = b
	case json.RawMessage:
		raw = b
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return "<unencodable>"
		}
		raw = data
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "<non-json body>"
	}
	if m, ok := decoded.(map[string]any); ok {
		return observability.RedactBody(m, nil)
	}
	return decoded
}

// sanitizeHeader strips newlines and carriage returns to prevent header injection.
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return s
}
