package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/newthinker/nextsignal/internal/auth"
	"github.com/newthinker/nextsignal/internal/core"
	"github.com/newthinker/nextsignal/internal/metrics"
	"go.uber.org/zap"
)

// EventType names an auth state change.
type EventType string

const (
	EventSignedIn       EventType = "signed_in"
	EventSignedOut      EventType = "signed_out"
	EventTokenRefreshed EventType = "token_refreshed"
	EventUserUpdated    EventType = "user_updated"
)

// Event is an auth state change. Token is the access token the event
// replaces or removes; Session is the new state, nil on sign-out.
type Event struct {
	Type    EventType
	Token   string
	Session *auth.Session
}

// Manager owns session state: it signs users in and out through the
// provider, keeps sessions in a Store and notifies subscribers.
type Manager struct {
	provider auth.Provider
	store    Store
	ttl      time.Duration
	logger   *zap.Logger
	metrics  *metrics.Registry
	now      func() time.Time

	mu     sync.Mutex
	subs   map[uint64]func(Event)
	nextID uint64
	closed bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL caps how long a session is kept.
func WithTTL(d time.Duration) Option {
	return func(m *Manager) { m.ttl = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics reports the active session count.
func WithMetrics(r *metrics.Registry) Option {
	return func(m *Manager) { m.metrics = r }
}

// NewManager creates a manager.
func NewManager(provider auth.Provider, store Store, opts ...Option) *Manager {
	m := &Manager{
		provider: provider,
		store:    store,
		ttl:      24 * time.Hour,
		logger:   zap.NewNop(),
		now:      time.Now,
		subs:     make(map[uint64]func(Event)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SignIn authenticates with the provider and stores the session.
func (m *Manager) SignIn(ctx context.Context, email, password string) (*auth.Session, error) {
	s, err := m.provider.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := m.Update(ctx, Event{Type: EventSignedIn, Session: s}); err != nil {
		return nil, err
	}
	m.logger.Info("user signed in", zap.String("user", s.User.ID))
	return s, nil
}

// SignOut revokes the session with the provider and forgets it locally.
// The local session is dropped even when the provider call fails.
func (m *Manager) SignOut(ctx context.Context, token string) error {
	providerErr := m.provider.SignOut(ctx, token)
	if providerErr != nil {
		m.logger.Warn("provider sign out failed", zap.Error(providerErr))
	}
	if err := m.Update(ctx, Event{Type: EventSignedOut, Token: token}); err != nil {
		return err
	}
	return providerErr
}

// Lookup returns the stored session for token.
func (m *Manager) Lookup(ctx context.Context, token string) (*auth.Session, error) {
	if token == "" {
		return nil, core.ErrSessionNotFound
	}
	s, err := m.store.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if s.Expired(m.now()) {
		_ = m.store.Delete(ctx, token)
		return nil, core.ErrSessionNotFound
	}
	return s, nil
}

// Init restores a session from an access token: a stored session is
// returned as is, otherwise the token is validated with the provider and
// kept until its exp claim, capped at the manager TTL.
func (m *Manager) Init(ctx context.Context, token string) (*auth.Session, error) {
	s, err := m.Lookup(ctx, token)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, core.ErrSessionNotFound) {
		return nil, err
	}
	if token == "" {
		return nil, core.ErrUnauthorized
	}

	now := m.now()
	expiresAt := now.Add(m.ttl)
	if exp, ok := tokenExpiry(token); ok {
		if !exp.After(now) {
			return nil, core.WrapError(core.ErrUnauthorized, fmt.Errorf("token expired at %s", exp.UTC().Format(time.RFC3339)))
		}
		if exp.Before(expiresAt) {
			expiresAt = exp
		}
	}

	user, err := m.provider.GetUser(ctx, token)
	if err != nil {
		return nil, err
	}

	s = &auth.Session{
		AccessToken: token,
		ExpiresAt:   expiresAt,
		User:        *user,
	}
	if err := m.Update(ctx, Event{Type: EventSignedIn, Session: s}); err != nil {
		return nil, err
	}
	return s, nil
}

// Update applies an auth event to the store and notifies subscribers.
func (m *Manager) Update(ctx context.Context, ev Event) error {
	if err := m.apply(ctx, &ev); err != nil {
		return err
	}
	m.reportCount(ctx)
	m.publish(ev)
	return nil
}

func (m *Manager) apply(ctx context.Context, ev *Event) error {
	switch ev.Type {
	case EventSignedIn, EventTokenRefreshed:
		if ev.Session == nil || ev.Session.AccessToken == "" {
			return fmt.Errorf("%s event without session", ev.Type)
		}
		if ev.Type == EventTokenRefreshed && ev.Token != "" && ev.Token != ev.Session.AccessToken {
			if err := m.store.Delete(ctx, ev.Token); err != nil {
				return fmt.Errorf("dropping old session: %w", err)
			}
		}
		return m.save(ctx, ev.Session)

	case EventUserUpdated:
		if ev.Session == nil {
			return fmt.Errorf("%s event without session", ev.Type)
		}
		token := ev.Token
		if token == "" {
			token = ev.Session.AccessToken
		}
		current, err := m.store.Get(ctx, token)
		if err != nil {
			return err
		}
		current.User = ev.Session.User
		ev.Session = current
		return m.save(ctx, current)

	case EventSignedOut:
		token := ev.Token
		if token == "" && ev.Session != nil {
			token = ev.Session.AccessToken
		}
		ev.Token, ev.Session = token, nil
		return m.store.Delete(ctx, token)

	default:
		return fmt.Errorf("unknown session event %q", ev.Type)
	}
}

func (m *Manager) save(ctx context.Context, s *auth.Session) error {
	ttl := s.TTL(m.now(), m.ttl)
	if ttl <= 0 {
		return core.WrapError(core.ErrSessionNotFound, fmt.Errorf("session already expired"))
	}
	return m.store.Save(ctx, s, ttl)
}

func (m *Manager) reportCount(ctx context.Context) {
	if m.metrics == nil {
		return
	}
	n, err := m.store.Count(ctx)
	if err != nil {
		m.logger.Debug("counting sessions", zap.Error(err))
		return
	}
	m.metrics.SetSessionsActive(n)
}

// Subscribe registers fn for every subsequent event. The returned func unsubscribes.
func (m *Manager) Subscribe(fn func(Event)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return func() {}
	}

	id := m.nextID
	m.nextID++
	m.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

func (m *Manager) publish(ev Event) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	ids := make([]uint64, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(Event), len(ids))
	for i, id := range ids {
		fns[i] = m.subs[id]
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Teardown drops all subscribers. Later events are applied but not broadcast.
func (m *Manager) Teardown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.subs = make(map[uint64]func(Event))
}

// Subscribers returns the number of registered subscribers.
func (m *Manager) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}
