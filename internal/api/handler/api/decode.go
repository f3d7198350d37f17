package api

import (
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/newthinker/nextsignal/internal/api/middleware"
	"github.com/newthinker/nextsignal/internal/api/response"
	"github.com/newthinker/nextsignal/internal/auth"
	"github.com/newthinker/nextsignal/internal/core"
	"github.com/newthinker/nextsignal/internal/validate"
)

const maxBodyBytes = 64 << 10

// decode reads a JSON body into v and validates it.
func decode(r *http.Request, v any) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return core.WrapError(core.ErrValidation, err)
	}
	if err := sonic.Unmarshal(data, v); err != nil {
		return core.WrapError(core.ErrValidation, err)
	}
	return validate.Struct(r.Context(), v)
}

// currentSession writes a 401 and returns false when the request has no session.
func currentSession(w http.ResponseWriter, r *http.Request) (*auth.Session, bool) {
	s, ok := middleware.SessionFrom(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, core.ErrUnauthorized)
		return nil, false
	}
	return s, true
}
