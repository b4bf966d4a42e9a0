package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/qrorder/internal/auth"
	"github.com/fjod/qrorder/internal/session"
	"github.com/fjod/qrorder/pkg/logger"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

const SessionCookie = "qr_session"

type ctxKey int

const sessionKey ctxKey = iota

type SessionStore interface {
	Get(ctx context.Context, id string) (*session.Session, error)
}

// RequestLogger puts a request-scoped logger into the context and writes one
// line per request.
func RequestLogger(base zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			l := logger.WithTrace(r.Context(), base).With().
				Str("request_id", middleware.GetReqID(r.Context())).
				Logger()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(l.WithContext(r.Context())))

			l.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}

// SessionMiddleware binds the request to the browser session named by the
// session cookie, issuing a new session when the cookie is missing or invalid.
func SessionMiddleware(store SessionStore, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ""
			if c, err := r.Cookie(SessionCookie); err == nil && session.ValidID(c.Value) {
				id = c.Value
			}
			if id == "" {
				id = session.NewID()
				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookie,
					Value:    id,
					Path:     "/",
					MaxAge:   int((7 * 24 * time.Hour).Seconds()),
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			s, err := store.Get(r.Context(), id)
			if err != nil {
				handleError(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), sessionKey, s)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionFromContext(ctx context.Context) *session.Session {
	s, _ := ctx.Value(sessionKey).(*session.Session)
	return s
}

type TokenChecker interface {
	Check(ctx context.Context, token string) (auth.Claims, error)
}

// AdminAuth validates the bearer token on every admin request.
func AdminAuth(gate TokenChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.BearerToken(r)
			if err != nil {
				respondError(w, http.StatusUnauthorized, "unauthorized", "missing admin authentication")
				return
			}
			claims, err := gate.Check(r.Context(), token)
			if err != nil {
				handleError(w, r, err)
				return
			}
			ctx := auth.WithAdmin(r.Context(), auth.Admin{Token: token, Claims: claims})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func adminToken(ctx context.Context) string {
	a, _ := auth.AdminFromContext(ctx)
	return a.Token
}
