package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockVerifier struct {
	valid bool
	err   error
	calls int
}

func (m *mockVerifier) VerifyToken(context.Context, string) (bool, error) {
	m.calls++
	return m.valid, m.err
}

func signed(t *testing.T, expires time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		AdminID: "admin-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	s, err := token.SignedString([]byte("backend-secret"))
	require.NoError(t, err)
	return s
}

func TestCheck_Valid(t *testing.T) {
	v := &mockVerifier{valid: true}
	g := NewGate(v)

	claims, err := g.Check(context.Background(), signed(t, time.Now().Add(time.Hour)))

	require.NoError(t, err)
	assert.Equal(t, "admin-1", claims.AdminID)
	assert.Equal(t, 1, v.calls)
}

func TestCheck_ExpiredSkipsBackend(t *testing.T) {
	v := &mockVerifier{valid: true}
	g := NewGate(v)

	_, err := g.Check(context.Background(), signed(t, time.Now().Add(-time.Minute)))

	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.Equal(t, 0, v.calls)
}

func TestCheck_MalformedSkipsBackend(t *testing.T) {
	v := &mockVerifier{valid: true}
	g := NewGate(v)

	_, err := g.Check(context.Background(), "not.a.jwt")

	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Equal(t, 0, v.calls)
}

func TestCheck_BackendRejects(t *testing.T) {
	g := NewGate(&mockVerifier{valid: false})

	_, err := g.Check(context.Background(), signed(t, time.Now().Add(time.Hour)))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCheck_BackendUnavailable(t *testing.T) {
	boom := errors.New("backend down")
	g := NewGate(&mockVerifier{err: boom})

	_, err := g.Check(context.Background(), signed(t, time.Now().Add(time.Hour)))
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrInvalidToken)
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	_, err := BearerToken(r)
	assert.ErrorIs(t, err, ErrMissingToken)

	r.Header.Set("Authorization", "Basic abc")
	_, err = BearerToken(r)
	assert.ErrorIs(t, err, ErrMissingToken)

	r.Header.Set("Authorization", "Bearer   ")
	_, err = BearerToken(r)
	assert.ErrorIs(t, err, ErrMissingToken)

	r.Header.Set("Authorization", "Bearer abc.def.ghi")
	token, err := BearerToken(r)
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", token)
}

func TestAdminContext(t *testing.T) {
	_, ok := AdminFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithAdmin(context.Background(), Admin{Token: "t", Claims: Claims{AdminID: "a"}})
	a, ok := AdminFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "a", a.Claims.AdminID)
}
