package session

import (
	"context"
	"time"

	"wayfarer/internal/auth"
)

// Session is the identity provider's record of a signed-in identity.
type Session struct {
	SessionID string        `json:"session_id"`
	Identity  auth.Identity `json:"identity"`
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at"` // absolute expiry time
}

// Expired reports whether the session is past its absolute expiry.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Store defines how sessions are stored and retrieved. At most one session
// is active at a time; the active pointer survives process restarts.
type Store interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, sessionID string) (*Session, error)
	Delete(ctx context.Context, sessionID string) error

	SetActive(ctx context.Context, sessionID string, expiresAt time.Time) error
	Active(ctx context.Context) (*Session, error)
	ClearActive(ctx context.Context) error
}
