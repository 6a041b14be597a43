// Package auth resolves bearer credentials to verified subjects. The policy
// is deny-by-default: any failure, ambiguity, or missing credential leaves
// the caller with the read-only role.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Subject is a verified identity.
type Subject struct {
	UserID   string
	UserName string
}

// Verifier turns an opaque token into a verified subject or an error.
type Verifier interface {
	Verify(ctx context.Context, token string) (Subject, error)
}

// JWTVerifier verifies HS256-signed tokens with a shared secret. The subject
// comes from the standard `sub` claim; `name` is optional.
type JWTVerifier struct {
	secret []byte
}

var _ Verifier = &JWTVerifier{}

func NewJWTVerifier(secret string) (*JWTVerifier, error) {
	if secret == "" {
		return nil, errors.New("auth: empty jwt secret")
	}
	return &JWTVerifier{secret: []byte(secret)}, nil
}

func (v *JWTVerifier) Verify(ctx context.Context, token string) (Subject, error) {
	_ = ctx
	if token == "" {
		return Subject{}, errors.New("auth: empty token")
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return Subject{}, errors.Wrap(err, "auth: parse token")
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Subject{}, errors.New("auth: unexpected claims type")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return Subject{}, errors.New("auth: missing subject claim")
	}
	s := Subject{UserID: sub}
	if name, ok := claims["name"].(string); ok {
		s.UserName = name
	}
	return s, nil
}

// TokenFromRequest extracts the bearer credential from the Authorization
// header or, for websocket upgrades where headers are awkward, the `token`
// query parameter.
func TokenFromRequest(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		if after, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(after)
		}
		return h
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
