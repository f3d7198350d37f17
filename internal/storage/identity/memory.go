package identity

import (
	"context"
	"sync"

	"github.com/newthinker/nextsignal/internal/core"
)

// MemoryStore is an in-memory identity store.
type MemoryStore struct {
	ids map[string]string
	mu  sync.RWMutex
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ids: make(map[string]string)}
}

func (m *MemoryStore) Get(ctx context.Context, authUserID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.ids[authUserID]
	if !ok {
		return "", core.ErrIdentityNotFound
	}
	return id, nil
}

func (m *MemoryStore) Set(ctx context.Context, authUserID, displayID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ids[authUserID] = displayID
	return nil
}

func (m *MemoryStore) Claim(ctx context.Context, authUserID, displayID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.ids[authUserID]; ok {
		return core.ErrIdentityTaken
	}
	m.ids[authUserID] = displayID
	return nil
}

// Count returns the number of claimed ids.
func (m *MemoryStore) Count(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, id := range m.ids {
		if id != "" {
			n++
		}
	}
	return n, nil
}
