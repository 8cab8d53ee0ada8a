package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return token
}

func TestInspect_OpaqueToken(t *testing.T) {
	info, err := Inspect("some-opaque-token")
	require.NoError(t, err)
	require.False(t, info.IsJWT)
	require.False(t, info.Expired(time.Now()))
}

func TestInspect_EmptyToken(t *testing.T) {
	_, err := Inspect("  ")
	require.Error(t, err)
}

func TestInspect_ExpiredJWT(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{
		"sub": "roost",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	info, err := Inspect(token)
	require.NoError(t, err)
	require.True(t, info.IsJWT)
	require.Equal(t, "roost", info.Subject)
	require.True(t, info.Expired(time.Now()))
}

func TestInspect_ValidJWT(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{
		"sub": "roost",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	info, err := Inspect(token)
	require.NoError(t, err)
	require.True(t, info.IsJWT)
	require.False(t, info.Expired(time.Now()))
}

func TestInspect_JWTWithoutExpiry(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"sub": "roost"})

	info, err := Inspect(token)
	require.NoError(t, err)
	require.True(t, info.IsJWT)
	require.True(t, info.ExpiresAt.IsZero())
	require.False(t, info.Expired(time.Now()))
}
