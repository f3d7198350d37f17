package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticStats map[string]any

func (s staticStats) GetStats() map[string]any { return s }

func TestStatsHandler_Get(t *testing.T) {
	tests := []struct {
		count int64
		want  string
	}{
		{4493, "4,493"},
		{999, "999"},
		{1234567, "1,234,567"},
		{0, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			h := NewStatsHandler(tt.count, nil, nil)

			w := httptest.NewRecorder()
			h.Get(w, httptest.NewRequest("GET", "/api/v1/stats", nil))

			require.Equal(t, http.StatusOK, w.Code)
			data := decodeData(t, w)
			assert.EqualValues(t, tt.count, data["total_users"])
			assert.Equal(t, tt.want, data["display"])
			assert.NotContains(t, data, "app")
			assert.NotContains(t, data, "claimed_users")
		})
	}
}

func TestStatsHandler_IncludesAppStats(t *testing.T) {
	h := NewStatsHandler(10, staticStats{"live": 3}, nil)

	w := httptest.NewRecorder()
	h.Get(w, httptest.NewRequest("GET", "/api/v1/stats", nil))

	data := decodeData(t, w)
	app := data["app"].(map[string]any)
	assert.EqualValues(t, 3, app["live"])
}

type fixedClaims struct {
	n   int64
	ok  bool
	err error
}

func (f fixedClaims) Count(context.Context) (int64, bool, error) { return f.n, f.ok, f.err }

func TestStatsHandler_ClaimedUsers(t *testing.T) {
	tests := []struct {
		name    string
		claims  fixedClaims
		present bool
	}{
		{"counted", fixedClaims{n: 7, ok: true}, true},
		{"unsupported", fixedClaims{}, false},
		{"failing", fixedClaims{ok: true, err: errors.New("db down")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewStatsHandler(4493, nil, tt.claims)

			w := httptest.NewRecorder()
			h.Get(w, httptest.NewRequest("GET", "/api/v1/stats", nil))

			require.Equal(t, http.StatusOK, w.Code)
			data := decodeData(t, w)
			assert.Equal(t, "4,493", data["display"])
			if tt.present {
				assert.EqualValues(t, tt.claims.n, data["claimed_users"])
			} else {
				assert.NotContains(t, data, "claimed_users")
			}
		})
	}
}
