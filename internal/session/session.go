// Package session holds the signed-in staff member for the dashboard. A
// session is an explicit value resolved from a bearer token on every request.
package session

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("session: invalid email or password")
	ErrNotFound           = errors.New("session: not found or expired")
	ErrInvalidToken       = errors.New("session: invalid token")
)

// Session is one signed-in staff member. Role is informational only.
type Session struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Role        string    `json:"role"`
	AvatarColor string    `json:"avatar_color,omitempty"`
	RememberMe  bool      `json:"remember_me"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the session has lapsed at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Store persists sessions by id. Get returns ErrNotFound for unknown or
// expired ids.
type Store interface {
	Save(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}
