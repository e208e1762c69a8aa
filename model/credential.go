package model

import "time"

// Storage keys shared with the rest of the suite.
const (
	AuthTokensKey          = "auth_tokens"
	LastNonSettingsPageKey = "lastNonSettingsPage"
)

// Credential is the persisted access token plus optional refresh metadata.
// At most one credential is active per session.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitzero"`
}

// Valid reports whether the credential carries an access token.
func (c Credential) Valid() bool {
	return c.AccessToken != ""
}

// Expired reports whether the credential has a known expiry before now.
func (c Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// AuthExpired is published when the backend rejects the credential.
type AuthExpired struct {
	Method     string
	URL        string
	StatusCode int
	At         time.Time
}
