package session

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/nextsignal/internal/auth"
	"github.com/newthinker/nextsignal/internal/config"
	"github.com/newthinker/nextsignal/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStores_ImplementStore(t *testing.T) {
	var _ Store = (*MemoryStore)(nil)
	var _ Store = (*RedisStore)(nil)
}

func TestTokenKey(t *testing.T) {
	k := tokenKey("secret-token")
	assert.Len(t, k, 64)
	assert.NotContains(t, k, "secret")
	assert.Equal(t, k, tokenKey("secret-token"))
	assert.NotEqual(t, k, tokenKey("other"))
}

func TestMemoryStore_SaveGetDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	s := &auth.Session{AccessToken: "at", User: auth.User{ID: "u1"}}

	require.NoError(t, store.Save(ctx, s, time.Hour))

	got, err := store.Get(ctx, "at")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.User.ID)

	got.User.ID = "mutated"
	again, _ := store.Get(ctx, "at")
	assert.Equal(t, "u1", again.User.ID, "Get returns a copy")

	require.NoError(t, store.Delete(ctx, "at"))
	_, err = store.Get(ctx, "at")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestMemoryStore_Expiry(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &auth.Session{AccessToken: "short"}, time.Minute))
	require.NoError(t, store.Save(ctx, &auth.Session{AccessToken: "long"}, time.Hour))

	n, _ := store.Count(ctx)
	assert.Equal(t, 2, n)

	now = now.Add(2 * time.Minute)
	_, err := store.Get(ctx, "short")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)

	n, _ = store.Count(ctx)
	assert.Equal(t, 1, n)
}

func TestMemoryStore_SaveDropsExpired(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &auth.Session{AccessToken: "stale"}, time.Minute))
	now = now.Add(time.Hour)
	require.NoError(t, store.Save(ctx, &auth.Session{AccessToken: "fresh"}, time.Minute))

	assert.Len(t, store.sessions, 1)
	_, ok := store.sessions[tokenKey("fresh")]
	assert.True(t, ok)
}

func TestRedisStore_Integration(t *testing.T) {
	addr := os.Getenv("NEXTSIGNAL_TEST_REDIS_ADDR")
	if testing.Short() || addr == "" {
		t.Skip("NEXTSIGNAL_TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	store, err := NewRedisStore(ctx, config.RedisConfig{Addr: addr, Prefix: "nextsignal-test-" + uuid.NewString()})
	require.NoError(t, err)
	defer store.Close()

	s := &auth.Session{AccessToken: "at", User: auth.User{ID: "u1", Email: "a@b.co"}, ExpiresAt: time.Now().Add(time.Hour).Truncate(time.Second)}
	require.NoError(t, store.Save(ctx, s, time.Minute))

	got, err := store.Get(ctx, "at")
	require.NoError(t, err)
	assert.Equal(t, s.User, got.User)
	assert.True(t, s.ExpiresAt.Equal(got.ExpiresAt))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, store.Delete(ctx, "at"))
	_, err = store.Get(ctx, "at")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}
