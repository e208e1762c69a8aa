// Package session keeps the persisted credential and navigation memory on
// top of a client-local storage backend.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pitabwire/suitekit/internal/storage"
	"github.com/pitabwire/suitekit/model"
)

// settingsPrefix marks paths that are never remembered as the last page.
const settingsPrefix = "/settings"

// Session reads and writes the credential and navigation keys. It holds no
// state of its own; concurrent calls are only as coordinated as the backing
// store makes them.
type Session struct {
	store storage.Store
}

// New creates a Session over store.
func New(store storage.Store) *Session {
	return &Session{store: store}
}

// Store returns the backing store.
func (s *Session) Store() storage.Store {
	return s.store
}

// ParseError reports a persisted credential that could not be decoded.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("session: stored credential is not valid JSON: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Credential returns the persisted credential. found is false when nothing
// is stored. A stored value that fails to parse yields a *ParseError.
func (s *Session) Credential(ctx context.Context) (cred model.Credential, found bool, err error) {
	raw, found, err := s.store.Get(ctx, model.AuthTokensKey)
	if err != nil {
		return model.Credential{}, false, fmt.Errorf("session: read credential: %w", err)
	}
	if !found {
		return model.Credential{}, false, nil
	}

	if err := json.Unmarshal([]byte(raw), &cred); err != nil {
		return model.Credential{}, true, &ParseError{Err: err}
	}
	return cred, true, nil
}

// SaveCredential persists cred, replacing any previous credential. When no
// expiry is set and the access token is a JWT, the exp claim is copied into
// ExpiresAt. The token signature is not checked; the backend does that.
func (s *Session) SaveCredential(ctx context.Context, cred model.Credential) error {
	if !cred.Valid() {
		return model.NewBadRequestError("credential has no access token")
	}
	if cred.TokenType == "" {
		cred.TokenType = "Bearer"
	}
	if cred.ExpiresAt.IsZero() {
		if exp, ok := tokenExpiry(cred.AccessToken); ok {
			cred.ExpiresAt = exp
		}
	}

	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("session: marshal credential: %w", err)
	}
	if err := s.store.Set(ctx, model.AuthTokensKey, string(data)); err != nil {
		return fmt.Errorf("session: save credential: %w", err)
	}
	return nil
}

// ClearCredential deletes the persisted credential.
func (s *Session) ClearCredential(ctx context.Context) error {
	if err := s.store.Delete(ctx, model.AuthTokensKey); err != nil {
		return fmt.Errorf("session: clear credential: %w", err)
	}
	return nil
}

// LastPage returns the last remembered non-settings path, or "/".
func (s *Session) LastPage(ctx context.Context) (string, error) {
	v, found, err := s.store.Get(ctx, model.LastNonSettingsPageKey)
	if err != nil {
		return "", fmt.Errorf("session: read last page: %w", err)
	}
	if !found || v == "" {
		return "/", nil
	}
	return v, nil
}

// RememberPage records path as the last visited page unless it belongs to
// the settings area. It reports whether the path was stored.
func (s *Session) RememberPage(ctx context.Context, path string) (bool, error) {
	if path == "" || IsSettingsPath(path) {
		return false, nil
	}
	if err := s.store.Set(ctx, model.LastNonSettingsPageKey, path); err != nil {
		return false, fmt.Errorf("session: remember page: %w", err)
	}
	return true, nil
}

// IsSettingsPath reports whether path is /settings or below it.
func IsSettingsPath(path string) bool {
	return path == settingsPrefix || strings.HasPrefix(path, settingsPrefix+"/")
}

// tokenExpiry reads the exp claim of a JWT without verifying it.
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
