// Package session tracks signed-in sessions and broadcasts auth changes.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/newthinker/nextsignal/internal/auth"
	"github.com/newthinker/nextsignal/internal/core"
)

// Store persists sessions keyed by access token.
type Store interface {
	Save(ctx context.Context, s *auth.Session, ttl time.Duration) error
	// Get returns core.ErrSessionNotFound when the token is unknown or expired.
	Get(ctx context.Context, token string) (*auth.Session, error)
	Delete(ctx context.Context, token string) error
	Count(ctx context.Context) (int, error)
}

// tokenKey hashes an access token so raw tokens are never used as keys.
func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

type memoryEntry struct {
	session   auth.Session
	expiresAt time.Time
}

// MemoryStore is an in-process session store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]memoryEntry
	now      func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]memoryEntry),
		now:      time.Now,
	}
}

// Save stores s and drops expired entries.
func (m *MemoryStore) Save(ctx context.Context, s *auth.Session, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pruneLocked()

	entry := memoryEntry{session: *s}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.sessions[tokenKey(s.AccessToken)] = entry
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, token string) (*auth.Session, error) {
	m.mu.RLock()
	entry, ok := m.sessions[tokenKey(token)]
	m.mu.RUnlock()

	if !ok || m.expired(entry) {
		return nil, core.ErrSessionNotFound
	}
	s := entry.session
	return &s, nil
}

func (m *MemoryStore) Delete(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, tokenKey(token))
	return nil
}

// Count returns live sessions and drops expired ones.
func (m *MemoryStore) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pruneLocked()
	return len(m.sessions), nil
}

func (m *MemoryStore) pruneLocked() {
	for k, entry := range m.sessions {
		if m.expired(entry) {
			delete(m.sessions, k)
		}
	}
}

func (m *MemoryStore) expired(e memoryEntry) bool {
	return !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt)
}
