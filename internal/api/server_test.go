package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/newthinker/nextsignal/internal/api/job"
	"github.com/newthinker/nextsignal/internal/api/response"
	"github.com/newthinker/nextsignal/internal/app"
	"github.com/newthinker/nextsignal/internal/auth"
	"github.com/newthinker/nextsignal/internal/config"
	"github.com/newthinker/nextsignal/internal/core"
	"github.com/newthinker/nextsignal/internal/generator"
	"github.com/newthinker/nextsignal/internal/metrics"
	"github.com/newthinker/nextsignal/internal/session"
	"github.com/newthinker/nextsignal/internal/source"
	"github.com/newthinker/nextsignal/internal/storage/archive"
	"github.com/newthinker/nextsignal/internal/storage/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubProvider struct{}

func (stubProvider) SignIn(_ context.Context, email, password string) (*auth.Session, error) {
	if password != "secret" {
		return nil, core.ErrAuthFailed
	}
	return &auth.Session{
		AccessToken: "token-" + email,
		ExpiresAt:   time.Now().Add(time.Hour),
		User:        auth.User{ID: "id-" + email, Email: email},
	}, nil
}

func (stubProvider) SignOut(context.Context, string) error { return nil }

func (stubProvider) GetUser(_ context.Context, token string) (*auth.User, error) {
	if token == "external-token" {
		return &auth.User{ID: "ext", Email: "ext@example.com"}, nil
	}
	return nil, core.ErrUnauthorized
}

func newTestServer(t *testing.T, reg *metrics.Registry) *Server {
	t.Helper()
	return newTestServerWithArchive(t, reg, nil)
}

func newTestServerWithArchive(t *testing.T, reg *metrics.Registry, snaps *archive.Snapshots) *Server {
	t.Helper()

	cfg := config.Defaults()
	set := core.SignalSet{
		Live: []core.Signal{
			{Name: "EUR/USD", Time: "09:00", Action: core.ActionCall},
			{Name: "GBP/JPY", Time: "14:30", Action: core.ActionPut},
		},
		OTC: []core.Signal{{Name: "AUD/CAD OTC", Time: "22:00", Action: core.ActionPut}},
	}
	var repoOpts []source.Option
	if snaps != nil {
		repoOpts = append(repoOpts, source.WithArchive(snaps))
	}
	a := app.New(cfg, source.NewRepository(source.StaticFetcher{Set: set}, repoOpts...), zap.NewNop())
	if reg != nil {
		a.SetMetrics(reg)
	}
	require.True(t, a.Reload(context.Background()).OK())

	gen, err := generator.New(config.GeneratorConfig{Timezone: "UTC"}, a, job.NewStore(10, time.Hour))
	require.NoError(t, err)
	t.Cleanup(gen.Shutdown)

	srv, err := NewServer(Config{Host: "localhost", Port: 0, MetricsPath: "/metrics"}, Dependencies{
		App:        a,
		Generator:  gen,
		Sessions:   session.NewManager(stubProvider{}, session.NewMemoryStore()),
		Identities: identity.NewService(identity.NewMemoryStore()),
		Archive:    snaps,
		Metrics:    reg,
		UserCount:  4493,
	}, zap.NewNop())
	require.NoError(t, err)
	return srv
}

func do(t *testing.T, srv *Server, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func data(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp response.SuccessResponse
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp.Data.(map[string]any)
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	_, err := NewServer(Config{Port: 8080}, Dependencies{}, zap.NewNop())
	assert.Error(t, err)
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(t, nil)

	w := do(t, srv, "GET", "/api/health", "", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestServer_Stats(t *testing.T) {
	srv := newTestServer(t, nil)

	w := do(t, srv, "GET", "/api/v1/stats", "", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "4,493", data(t, w)["display"])
	assert.EqualValues(t, 0, data(t, w)["claimed_users"])
}

func TestServer_SignalRoutesRequireSession(t *testing.T) {
	srv := newTestServer(t, nil)

	routes := []struct{ method, path string }{
		{"GET", "/api/v1/signals"},
		{"POST", "/api/v1/signals/refresh"},
		{"GET", "/api/v1/signals/next"},
		{"POST", "/api/v1/generate"},
		{"GET", "/api/v1/generate/abc"},
		{"GET", "/api/v1/me/user-id"},
		{"PUT", "/api/v1/me/user-id"},
		{"GET", "/api/v1/auth/session"},
		{"POST", "/api/v1/auth/logout"},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			w := do(t, srv, rt.method, rt.path, "", "")
			assert.Equal(t, http.StatusUnauthorized, w.Code)

			w = do(t, srv, rt.method, rt.path, "bogus", "")
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestServer_SignInFlow(t *testing.T) {
	srv := newTestServer(t, nil)

	w := do(t, srv, "POST", "/api/v1/auth/login", "", `{"email":"a@example.com","password":"secret"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	login := data(t, w)
	token := login["access_token"].(string)
	assert.Equal(t, true, login["needs_user_id"])

	w = do(t, srv, "PUT", "/api/v1/me/user-id", token, `{"user_id":"trader42"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, srv, "GET", "/api/v1/auth/session", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "trader42", data(t, w)["user_id"])

	w = do(t, srv, "PUT", "/api/v1/me/user-id", token, `{"user_id":"renamed"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, srv, "GET", "/api/v1/stats", "", "")
	assert.EqualValues(t, 1, data(t, w)["claimed_users"])

	w = do(t, srv, "GET", "/api/v1/signals/next?market=live&at=10:00", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	signals := data(t, w)["signals"].([]any)
	require.Len(t, signals, 1)
	assert.Equal(t, "GBP/JPY", signals[0].(map[string]any)["name"])

	w = do(t, srv, "POST", "/api/v1/generate", token, `{"market":"otc"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	id := data(t, w)["id"].(string)

	w = do(t, srv, "GET", "/api/v1/generate/"+id, token, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "complete", data(t, w)["status"])

	w = do(t, srv, "POST", "/api/v1/auth/logout", token, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, srv, "GET", "/api/v1/signals", token, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code, "signed out token is rejected")
}

func TestServer_RestoresExternalSession(t *testing.T) {
	srv := newTestServer(t, nil)

	w := do(t, srv, "GET", "/api/v1/signals", "external-token", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, data(t, w)["live"])
}

func TestServer_Metrics(t *testing.T) {
	reg := metrics.NewRegistry()
	srv := newTestServer(t, reg)

	do(t, srv, "GET", "/api/health", "", "")
	w := do(t, srv, "GET", "/metrics", "", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `http_requests_total{method="GET",path="/api/health",status="2xx"} 1`)
	assert.Contains(t, w.Body.String(), "nextsignal_signals_loaded")
}

func TestServer_NotFound(t *testing.T) {
	srv := newTestServer(t, nil)

	w := do(t, srv, "GET", "/nope", "", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_FOUND")
}

func TestServer_ArchiveRoutes(t *testing.T) {
	w := do(t, newTestServer(t, nil), "GET", "/api/v1/signals/archive/latest", "external-token", "")
	assert.Equal(t, http.StatusNotFound, w.Code, "archive routes need an archive")

	store, err := archive.NewLocalFS(t.TempDir())
	require.NoError(t, err)
	srv := newTestServerWithArchive(t, nil, archive.NewSnapshots(store))

	w = do(t, srv, "GET", "/api/v1/signals/archive/latest", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, srv, "GET", "/api/v1/signals/archive/latest", "external-token", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 2, data(t, w)["live"])

	w = do(t, srv, "GET", "/api/v1/signals/archive", "external-token", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, data(t, w)["snapshots"], 1)
}
