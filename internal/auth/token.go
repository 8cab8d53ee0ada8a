// Package auth inspects configured bearer tokens before they are presented
// to the gateway.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenInfo is what could be learned about a configured bearer token.
type TokenInfo struct {
	// IsJWT reports whether the token parsed as a JWT.
	IsJWT bool
	// Subject is the JWT subject claim, when present.
	Subject string
	// ExpiresAt is the JWT expiry, when present (zero otherwise).
	ExpiresAt time.Time
}

// Expired reports whether the token has a known expiry in the past.
func (t TokenInfo) Expired(now time.Time) bool {
	return t.IsJWT && !t.ExpiresAt.IsZero() && t.ExpiresAt.Before(now)
}

// Inspect parses token without verifying its signature. Verification is the
// gateway's job; the client only wants to warn early about tokens that can
// no longer work (e.g. expired JWTs) instead of discovering it one failed
// handshake at a time.
func Inspect(token string) (TokenInfo, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return TokenInfo{}, errors.New("empty token")
	}
	if strings.Count(token, ".") != 2 {
		// Opaque token; nothing to inspect.
		return TokenInfo{}, nil
	}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		// Not a JWT after all; treat as opaque.
		return TokenInfo{}, nil
	}
	info := TokenInfo{IsJWT: true}
	if sub, err := claims.GetSubject(); err == nil {
		info.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}
	return info, nil
}
