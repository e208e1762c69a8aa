// Package auth attaches the persisted credential to outgoing requests and
// reacts to the backend rejecting it.
package auth

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/suitekit/internal/httpclient"
	"github.com/pitabwire/suitekit/internal/observability"
	"github.com/pitabwire/suitekit/internal/session"
	"github.com/pitabwire/suitekit/model"
)

// BearerToken returns request middleware that sets
// "Authorization: Bearer <access_token>" from the session. A missing,
// unreadable or unparseable credential is logged and the request is sent
// without the header; the backend decides what to do with it.
func BearerToken(sess *session.Session, logger *zap.Logger) httpclient.RequestMiddleware {
	return func(ctx context.Context, req *httpclient.Request) error {
		cred, found, err := sess.Credential(ctx)
		if err != nil {
			observability.RequestLogger(ctx, logger).Warn("auth: stored credential unusable, sending request unauthenticated",
				zap.String("method", req.Method),
				zap.String("url", req.URL),
				zap.Error(err),
			)
			return nil
		}
		if !found || !cred.Valid() {
			return nil
		}
		req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
		return nil
	}
}

// AuthExpiry returns response middleware that, on a 401, deletes the
// persisted credential and publishes one model.AuthExpired on bus. The
// response and error are always returned unchanged.
func AuthExpiry(sess *session.Session, bus *Bus, logger *zap.Logger, metrics *observability.Metrics) httpclient.ResponseMiddleware {
	return func(ctx context.Context, req *httpclient.Request, resp *httpclient.Response, err error) (*httpclient.Response, error) {
		if err == nil || model.StatusCode(err) != http.StatusUnauthorized {
			return resp, err
		}

		log := observability.RequestLogger(ctx, logger)
		if clearErr := sess.ClearCredential(ctx); clearErr != nil {
			log.Error("auth: failed to clear rejected credential", zap.Error(clearErr))
		}
		metrics.RecordAuthExpired()
		log.Info("auth: credential rejected by backend",
			zap.String("method", req.Method),
			zap.String("url", req.URL),
		)

		bus.Publish(ctx, model.AuthExpired{
			Method:     req.Method,
			URL:        req.URL,
			StatusCode: http.StatusUnauthorized,
			At:         time.Now(),
		})
		return resp, err
	}
}
