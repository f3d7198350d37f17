// Package auth defines the signed-in user and the hosted provider that issues sessions.
package auth

import (
	"context"
	"time"
)

// User is an account on the hosted auth backend.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is a signed-in user and its tokens.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

// Expired reports whether the session is past its expiry at now.
// A zero expiry never expires.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// TTL returns the remaining lifetime, capped at max when max > 0.
func (s *Session) TTL(now time.Time, max time.Duration) time.Duration {
	if s.ExpiresAt.IsZero() {
		return max
	}
	ttl := s.ExpiresAt.Sub(now)
	if max > 0 && ttl > max {
		return max
	}
	return ttl
}

// Provider is the hosted auth backend.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context, accessToken string) error
	GetUser(ctx context.Context, accessToken string) (*User, error)
}
