package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/newthinker/nextsignal/internal/api/middleware"
	"github.com/newthinker/nextsignal/internal/api/response"
	"github.com/newthinker/nextsignal/internal/auth"
	"github.com/stretchr/testify/require"
)

func signedIn(userID string) *auth.Session {
	return &auth.Session{
		AccessToken: "tok-" + userID,
		User:        auth.User{ID: userID, Email: userID + "@example.com"},
	}
}

func newRequest(method, target, body string, s *auth.Session) *http.Request {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if s != nil {
		req.Header.Set("Authorization", "Bearer "+s.AccessToken)
		req = req.WithContext(middleware.WithSession(req.Context(), s))
	}
	return req
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp response.SuccessResponse
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok, "data is %T", resp.Data)
	return data
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) response.ErrorDetail {
	t.Helper()
	var resp response.ErrorResponse
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp.Error
}
