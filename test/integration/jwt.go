package integration

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"maps"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testKeyID = "test-key-1"

// TestClaims holds the configurable claims for generating test access tokens.
type TestClaims struct {
	SubjectID string
	TenantID  string
	Email     string
	Extra     map[string]any
}

// UserClaims returns claims for an ordinary user of tenant.
func UserClaims(tenant string) TestClaims {
	return TestClaims{SubjectID: "user-1", TenantID: tenant, Email: "user@" + tenant + ".test"}
}

// tokenIssuer plays the identity provider: it signs access tokens and the
// mock backends verify them with its public key.
type tokenIssuer struct {
	privateKey *rsa.PrivateKey
	issuer     string
	audience   string
}

// newTokenIssuer creates a token issuer with a fresh RSA key pair.
func newTokenIssuer(t *testing.T) *tokenIssuer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate RSA key: %v", err)
	}
	return &tokenIssuer{
		privateKey: key,
		issuer:     "https://auth.test.suitekit.dev",
		audience:   "suite-backends",
	}
}

// GenerateToken creates a signed access token valid for one hour.
func (ti *tokenIssuer) GenerateToken(claims TestClaims) string {
	return ti.sign(claims, time.Now(), time.Now().Add(time.Hour))
}

// GenerateExpiredToken creates a signed access token that expired an hour ago.
func (ti *tokenIssuer) GenerateExpiredToken(claims TestClaims) string {
	now := time.Now()
	return ti.sign(claims, now.Add(-2*time.Hour), now.Add(-time.Hour))
}

func (ti *tokenIssuer) sign(claims TestClaims, issuedAt, expiresAt time.Time) string {
	mapClaims := jwt.MapClaims{
		"iss":       ti.issuer,
		"aud":       ti.audience,
		"iat":       jwt.NewNumericDate(issuedAt),
		"exp":       jwt.NewNumericDate(expiresAt),
		"sub":       claims.SubjectID,
		"tenant_id": claims.TenantID,
		"email":     claims.Email,
	}
	maps.Copy(mapClaims, claims.Extra)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, mapClaims)
	token.Header["kid"] = testKeyID

	signed, err := token.SignedString(ti.privateKey)
	if err != nil {
		panic("sign JWT: " + err.Error())
	}
	return signed
}

// verify checks the signature, expiry, issuer and audience of raw and
// returns the tenant it was issued for.
func (ti *tokenIssuer) verify(raw string) (string, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(tok *jwt.Token) (any, error) {
		if kid, _ := tok.Header["kid"].(string); kid != testKeyID {
			return nil, fmt.Errorf("unknown key id %q", kid)
		}
		return &ti.privateKey.PublicKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(ti.issuer),
		jwt.WithAudience(ti.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", err
	}
	tenant, _ := claims["tenant_id"].(string)
	if tenant == "" {
		return "", errors.New("token has no tenant")
	}
	return tenant, nil
}
