package auth

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestVerifyValidToken(t *testing.T) {
	v, err := NewJWTVerifier("s3cret")
	require.NoError(t, err)

	token := signToken(t, "s3cret", jwt.MapClaims{"sub": "u1", "name": "Sam"})
	subject, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, "u1", subject.UserID)
	require.Equal(t, "Sam", subject.UserName)
}

func TestVerifyRejectsBadSignature(t *testing.T) {
	v, err := NewJWTVerifier("s3cret")
	require.NoError(t, err)

	token := signToken(t, "wrong-secret", jwt.MapClaims{"sub": "u1"})
	_, err = v.Verify(context.Background(), token)
	require.Error(t, err)
}

func TestVerifyRejectsMissingSubject(t *testing.T) {
	v, err := NewJWTVerifier("s3cret")
	require.NoError(t, err)

	token := signToken(t, "s3cret", jwt.MapClaims{"name": "Sam"})
	_, err = v.Verify(context.Background(), token)
	require.Error(t, err)

	_, err = v.Verify(context.Background(), "")
	require.Error(t, err)

	_, err = v.Verify(context.Background(), "garbage")
	require.Error(t, err)
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/rooms/r1/ws", nil)
	require.Empty(t, TokenFromRequest(r))

	r.Header.Set("Authorization", "Bearer abc123")
	require.Equal(t, "abc123", TokenFromRequest(r))

	r = httptest.NewRequest("GET", "/rooms/r1/ws?token=qp456", nil)
	require.Equal(t, "qp456", TokenFromRequest(r))
}
