package model

import (
	"context"
	"errors"
)

// RequestContext carries the tenancy and tracing information for outbound
// calls. It is passed explicitly to every feature API function so that base
// URL resolution never depends on ambient state. It is immutable after
// construction and safe for concurrent reads.
type RequestContext struct {
	TenantID      string
	PartitionID   string
	SubjectID     string
	CorrelationID string
	Locale        string
}

// Validate checks that the tenant is present.
func (rc *RequestContext) Validate() error {
	if rc == nil || rc.TenantID == "" {
		return errors.New("TenantID is required")
	}
	return nil
}

type contextKey struct{}

// WithRequestContext attaches a RequestContext to the given context.
func WithRequestContext(ctx context.Context, rctx *RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rctx)
}

// RequestContextFrom extracts the RequestContext from the context, or returns nil
// if not present.
func RequestContextFrom(ctx context.Context) *RequestContext {
	rctx, _ := ctx.Value(contextKey{}).(*RequestContext)
	return rctx
}
