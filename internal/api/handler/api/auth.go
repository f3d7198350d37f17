package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/newthinker/nextsignal/internal/api/middleware"
	"github.com/newthinker/nextsignal/internal/api/response"
	"github.com/newthinker/nextsignal/internal/auth"
	"github.com/newthinker/nextsignal/internal/core"
)

// SessionManager signs users in and out.
type SessionManager interface {
	SignIn(ctx context.Context, email, password string) (*auth.Session, error)
	SignOut(ctx context.Context, token string) error
}

// IdentityLookup resolves the display id of a signed-in user.
type IdentityLookup interface {
	Lookup(ctx context.Context, authUserID string) (string, error)
}

// LoginRequest is the request body for signing in.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SessionView is what the client sees of a session.
type SessionView struct {
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         auth.User `json:"user"`
	Email        string    `json:"email"`
	UserID       string    `json:"user_id,omitempty"`
	NeedsUserID  bool      `json:"needs_user_id"`
}

// AuthHandler handles sign in, sign out and session restore.
type AuthHandler struct {
	sessions   SessionManager
	identities IdentityLookup
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(sessions SessionManager, identities IdentityLookup) *AuthHandler {
	return &AuthHandler{sessions: sessions, identities: identities}
}

// Login signs in with email and password.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decode(r, &req); err != nil {
		response.Fail(w, err)
		return
	}

	s, err := h.sessions.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		response.Fail(w, err)
		return
	}

	view, err := h.view(r.Context(), s, true)
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, view)
}

// Logout ends the current session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentSession(w, r); !ok {
		return
	}

	if err := h.sessions.SignOut(r.Context(), middleware.BearerToken(r)); err != nil {
		response.Error(w, http.StatusBadGateway, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"signed_out": true})
}

// Session returns the current session and whether a user id still has to be chosen.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok {
		return
	}

	view, err := h.view(r.Context(), s, false)
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, view)
}

func (h *AuthHandler) view(ctx context.Context, s *auth.Session, withTokens bool) (SessionView, error) {
	v := SessionView{
		ExpiresAt: s.ExpiresAt,
		User:      s.User,
		Email:     s.User.Email,
	}
	if withTokens {
		v.AccessToken = s.AccessToken
		v.RefreshToken = s.RefreshToken
	}

	userID, err := h.identities.Lookup(ctx, s.User.ID)
	switch {
	case err == nil:
		v.UserID = userID
	case errors.Is(err, core.ErrIdentityNotFound):
		v.NeedsUserID = true
	default:
		return SessionView{}, err
	}
	return v, nil
}
