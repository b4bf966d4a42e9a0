// Package auth gates admin routes on the bearer token issued by the backend.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing or invalid authorization header")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

type Verifier interface {
	VerifyToken(ctx context.Context, token string) (bool, error)
}

// Claims is the part of the backend-issued admin token the BFF reads. The
// signature is never checked here; only the backend holds the secret.
type Claims struct {
	AdminID string `json:"id"`
	jwt.RegisteredClaims
}

type Gate struct {
	verifier Verifier
	parser   *jwt.Parser
	now      func() time.Time
}

func NewGate(v Verifier) *Gate {
	return &Gate{
		verifier: v,
		parser:   jwt.NewParser(jwt.WithoutClaimsValidation()),
		now:      time.Now,
	}
}

// Check rejects malformed or expired tokens locally and asks the backend about
// the rest.
func (g *Gate) Check(ctx context.Context, token string) (Claims, error) {
	var claims Claims
	if _, _, err := g.parser.ParseUnverified(token, &claims); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.ExpiresAt != nil && !g.now().Before(claims.ExpiresAt.Time) {
		return Claims{}, ErrTokenExpired
	}

	ok, err := g.verifier.VerifyToken(ctx, token)
	if err != nil {
		return Claims{}, fmt.Errorf("verify token: %w", err)
	}
	if !ok {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

func BearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", ErrMissingToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

type ctxKey struct{}

type Admin struct {
	Token  string
	Claims Claims
}

func WithAdmin(ctx context.Context, a Admin) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

func AdminFromContext(ctx context.Context) (Admin, bool) {
	a, ok := ctx.Value(ctxKey{}).(Admin)
	return a, ok
}
