package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/newthinker/nextsignal/internal/api/response"
	"github.com/newthinker/nextsignal/internal/auth"
	"github.com/newthinker/nextsignal/internal/core"
)

type ctxKey struct{}

// SessionResolver restores a session from an access token.
type SessionResolver interface {
	Init(ctx context.Context, token string) (*auth.Session, error)
}

// SessionAuth returns middleware that requires a Bearer access token
// resolving to a live session. The session is stored in the request context.
func SessionAuth(sessions SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				response.Error(w, http.StatusUnauthorized, core.ErrUnauthorized)
				return
			}

			s, err := sessions.Init(r.Context(), token)
			if err != nil {
				if isAuthError(err) {
					response.Error(w, http.StatusUnauthorized, core.WrapError(core.ErrUnauthorized, err))
					return
				}
				response.Error(w, http.StatusBadGateway, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
		})
	}
}

func isAuthError(err error) bool {
	return errors.Is(err, core.ErrUnauthorized) ||
		errors.Is(err, core.ErrSessionNotFound) ||
		errors.Is(err, core.ErrAuthFailed)
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// WithSession returns ctx carrying s.
func WithSession(ctx context.Context, s *auth.Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// SessionFrom returns the session stored by SessionAuth.
func SessionFrom(ctx context.Context) (*auth.Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*auth.Session)
	return s, ok && s != nil
}
