package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenInfo is what can be read from an access token without its key
type TokenInfo struct {
	Subject   string
	Kind      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the token expiry is before now. Tokens without an
// exp claim never expire locally.
func (i *TokenInfo) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && now.After(i.ExpiresAt)
}

// InspectAccessToken decodes the claims of a JWT access token without
// verifying its signature. Only for display; the server stays authoritative.
func InspectAccessToken(token string) (*TokenInfo, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("access token is not a JWT: %w", err)
	}

	info := &TokenInfo{}
	if sub, err := claims.GetSubject(); err == nil {
		info.Subject = sub
	}
	if kind, ok := claims["kind"].(string); ok {
		info.Kind = kind
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		info.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}
	return info, nil
}
