package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/wolfman30/dental-agenda/internal/session"
)

type contextKey string

const (
	sessionKey contextKey = "session"
	tokenKey   contextKey = "sessionToken"
)

// SessionResolver turns a bearer token into a live session.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (*session.Session, error)
}

// RequireSession rejects requests without a valid session token and stores
// the resolved session in the request context.
func RequireSession(resolver SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			sess, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrInvalidToken) {
					http.Error(w, "session expired or invalid", http.StatusUnauthorized)
					return
				}
				http.Error(w, "session lookup failed", http.StatusServiceUnavailable)
				return
			}
			ctx := context.WithValue(r.Context(), sessionKey, sess)
			ctx = context.WithValue(ctx, tokenKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from an Authorization: Bearer header.
func BearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(auth[7:])
	return token, token != ""
}

// SessionFromContext returns the session stored by RequireSession.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	sess, ok := ctx.Value(sessionKey).(*session.Session)
	return sess, ok && sess != nil
}

// TokenFromContext returns the bearer token stored by RequireSession.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey).(string)
	return token, ok && token != ""
}

// WithSession attaches a session to ctx, for handlers mounted without
// RequireSession and for tests.
func WithSession(ctx context.Context, sess *session.Session, token string) context.Context {
	ctx = context.WithValue(ctx, sessionKey, sess)
	return context.WithValue(ctx, tokenKey, token)
}
