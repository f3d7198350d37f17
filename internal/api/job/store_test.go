package job

import (
	"testing"
	"time"

	"github.com/newthinker/nextsignal/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CreateAndGet(t *testing.T) {
	store := NewStore(100, time.Hour)

	job := store.Create("generate", "user-1", time.Now().Add(5*time.Second))
	require.NotEmpty(t, job.ID)
	assert.Equal(t, StatusPending, job.Status)

	retrieved, err := store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, retrieved.ID)
	assert.Equal(t, "user-1", retrieved.Owner)
}

func TestStore_Update(t *testing.T) {
	store := NewStore(100, time.Hour)
	job := store.Create("generate", "user-1", time.Now())

	err := store.Update(job.ID, func(j *Job) {
		j.Status = StatusComplete
		j.Result = []string{"x"}
	})
	require.NoError(t, err)

	retrieved, _ := store.Get(job.ID)
	assert.Equal(t, StatusComplete, retrieved.Status)
	assert.Equal(t, []string{"x"}, retrieved.Result)

	assert.ErrorIs(t, store.Update("missing", func(*Job) {}), core.ErrJobNotFound)
}

func TestStore_MaxSize(t *testing.T) {
	store := NewStore(2, time.Hour)

	job1 := store.Create("generate", "a", time.Now())
	store.Create("generate", "b", time.Now())
	store.Create("generate", "c", time.Now()) // Should evict job1

	_, err := store.Get(job1.ID)
	assert.ErrorIs(t, err, core.ErrJobNotFound)
	assert.Len(t, store.List(), 2)
}

func TestStore_NotFound(t *testing.T) {
	store := NewStore(100, time.Hour)

	_, err := store.Get("nonexistent")
	assert.ErrorIs(t, err, core.ErrJobNotFound)
}

func TestStore_Pending(t *testing.T) {
	store := NewStore(100, time.Hour)

	_, ok := store.Pending("user-1")
	assert.False(t, ok)

	job := store.Create("generate", "user-1", time.Now())
	store.Create("generate", "user-2", time.Now())

	pending, ok := store.Pending("user-1")
	require.True(t, ok)
	assert.Equal(t, job.ID, pending.ID)

	require.NoError(t, store.Update(job.ID, func(j *Job) { j.Status = StatusComplete }))
	_, ok = store.Pending("user-1")
	assert.False(t, ok)
}

func TestStore_TTL(t *testing.T) {
	store := NewStore(100, time.Minute)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	old := store.Create("generate", "user-1", now)

	now = now.Add(2 * time.Minute)
	_, err := store.Get(old.ID)
	assert.ErrorIs(t, err, core.ErrJobNotFound)

	_, ok := store.Pending("user-1")
	assert.False(t, ok, "expired jobs do not block new ones")

	store.Create("generate", "user-1", now)
	assert.Len(t, store.List(), 1)
}

func TestStore_ListOrder(t *testing.T) {
	store := NewStore(100, time.Hour)
	a := store.Create("generate", "a", time.Now())
	b := store.Create("generate", "b", time.Now())

	jobs := store.List()
	require.Len(t, jobs, 2)
	assert.Equal(t, a.ID, jobs[0].ID)
	assert.Equal(t, b.ID, jobs[1].ID)
}
