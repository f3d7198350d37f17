package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/newthinker/nextsignal/internal/auth"
	"github.com/newthinker/nextsignal/internal/core"
	"github.com/newthinker/nextsignal/internal/storage/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSessions struct {
	password  string
	signedOut []string
	signOut   error
}

func (f *fakeSessions) SignIn(_ context.Context, email, password string) (*auth.Session, error) {
	if password != f.password {
		return nil, core.WrapError(core.ErrAuthFailed, errors.New("invalid login credentials"))
	}
	return &auth.Session{
		AccessToken:  "access",
		RefreshToken: "refresh",
		User:         auth.User{ID: "u-1", Email: email},
	}, nil
}

func (f *fakeSessions) SignOut(_ context.Context, token string) error {
	f.signedOut = append(f.signedOut, token)
	return f.signOut
}

func TestAuthHandler_Login(t *testing.T) {
	ids := identity.NewService(identity.NewMemoryStore())
	h := NewAuthHandler(&fakeSessions{password: "secret"}, ids)

	req := newRequest("POST", "/api/v1/auth/login", `{"email":"a@example.com","password":"secret"}`, nil)
	w := httptest.NewRecorder()
	h.Login(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decodeData(t, w)
	assert.Equal(t, "access", data["access_token"])
	assert.Equal(t, "a@example.com", data["email"])
	assert.Equal(t, true, data["needs_user_id"])
	assert.NotContains(t, data, "user_id")
}

func TestAuthHandler_LoginWithExistingUserID(t *testing.T) {
	ids := identity.NewService(identity.NewMemoryStore())
	_, err := ids.Claim(context.Background(), "u-1", "trader42")
	require.NoError(t, err)
	h := NewAuthHandler(&fakeSessions{password: "secret"}, ids)

	req := newRequest("POST", "/api/v1/auth/login", `{"email":"a@example.com","password":"secret"}`, nil)
	w := httptest.NewRecorder()
	h.Login(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "trader42", data["user_id"])
	assert.Equal(t, false, data["needs_user_id"])
}

func TestAuthHandler_LoginValidation(t *testing.T) {
	h := NewAuthHandler(&fakeSessions{password: "secret"}, identity.NewService(identity.NewMemoryStore()))

	tests := []struct {
		name string
		body string
	}{
		{"bad email", `{"email":"nope","password":"secret"}`},
		{"missing password", `{"email":"a@example.com"}`},
		{"not json", `email=a`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.Login(w, newRequest("POST", "/api/v1/auth/login", tt.body, nil))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "VALIDATION_FAILED", decodeError(t, w).Code)
		})
	}
}

func TestAuthHandler_LoginWrongPassword(t *testing.T) {
	h := NewAuthHandler(&fakeSessions{password: "secret"}, identity.NewService(identity.NewMemoryStore()))

	w := httptest.NewRecorder()
	h.Login(w, newRequest("POST", "/api/v1/auth/login", `{"email":"a@example.com","password":"wrong"}`, nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "AUTH_FAILED", decodeError(t, w).Code)
}

func TestAuthHandler_Logout(t *testing.T) {
	sessions := &fakeSessions{}
	h := NewAuthHandler(sessions, identity.NewService(identity.NewMemoryStore()))

	s := signedIn("u-1")
	w := httptest.NewRecorder()
	h.Logout(w, newRequest("POST", "/api/v1/auth/logout", "", s))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{s.AccessToken}, sessions.signedOut)
}

func TestAuthHandler_LogoutWithoutSession(t *testing.T) {
	h := NewAuthHandler(&fakeSessions{}, identity.NewService(identity.NewMemoryStore()))

	w := httptest.NewRecorder()
	h.Logout(w, newRequest("POST", "/api/v1/auth/logout", "", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandler_Session(t *testing.T) {
	ids := identity.NewService(identity.NewMemoryStore())
	h := NewAuthHandler(&fakeSessions{}, ids)
	s := signedIn("u-2")

	w := httptest.NewRecorder()
	h.Session(w, newRequest("GET", "/api/v1/auth/session", "", s))

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "u-2@example.com", data["email"])
	assert.Equal(t, true, data["needs_user_id"])
	assert.NotContains(t, data, "access_token")

	_, err := ids.Claim(context.Background(), "u-2", "night_owl")
	require.NoError(t, err)

	w = httptest.NewRecorder()
	h.Session(w, newRequest("GET", "/api/v1/auth/session", "", s))
	data = decodeData(t, w)
	assert.Equal(t, "night_owl", data["user_id"])
	assert.Equal(t, false, data["needs_user_id"])
}
