package proxy

import (
	"fmt"
	"net/http"
	"time"

	"clip-wizard-server/modules/common/apperr"
	"github.com/golang-jwt/jwt/v5"
)

// Authorizer attaches the server-held credentials to an upstream request
type Authorizer interface {
	Authorize(h http.Header) error
	Name() string
}

// Credentials - the access/secret pair for the video service
type Credentials struct {
	AccessKey string
	SecretKey string
}

const (
	SchemeBearer = "bearer"
	SchemeJWT    = "jwt"

	// jwtTTL - Kling tokens are valid for 30 minutes
	jwtTTL = 30 * time.Minute
	// jwtSkew - nbf is backdated to tolerate clock drift
	jwtSkew = 5 * time.Second
)

// NewAuthorizer picks the credential strategy by scheme name
func NewAuthorizer(scheme string, creds Credentials) (Authorizer, error) {
	switch scheme {
	case "", SchemeBearer:
		return &BearerAuthorizer{creds: creds}, nil
	case SchemeJWT:
		return &KlingJWTAuthorizer{creds: creds, now: time.Now}, nil
	default:
		return nil, apperr.New(apperr.CodeServerMisconfigured, fmt.Sprintf("unknown KLING_AUTH_SCHEME %q", scheme))
	}
}

// BearerAuthorizer sends the secret key as a bearer token
type BearerAuthorizer struct {
	creds Credentials
}

func (a *BearerAuthorizer) Name() string { return SchemeBearer }

func (a *BearerAuthorizer) Authorize(h http.Header) error {
	h.Set("Authorization", "Bearer "+a.creds.SecretKey)
	return nil
}

// KlingJWTAuthorizer signs a short-lived HS256 token: iss is the access key,
// the secret key is the signing key
type KlingJWTAuthorizer struct {
	creds Credentials
	now   func() time.Time
}

func (a *KlingJWTAuthorizer) Name() string { return SchemeJWT }

func (a *KlingJWTAuthorizer) Authorize(h http.Header) error {
	token, err := a.Token()
	if err != nil {
		return err
	}
	h.Set("Authorization", "Bearer "+token)
	return nil
}

// Token - a freshly signed JWT
func (a *KlingJWTAuthorizer) Token() (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Issuer:    a.creds.AccessKey,
		ExpiresAt: jwt.NewNumericDate(now.Add(jwtTTL)),
		NotBefore: jwt.NewNumericDate(now.Add(-jwtSkew)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(a.creds.SecretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}
	return signed, nil
}
