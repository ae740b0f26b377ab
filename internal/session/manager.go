package session

import (
	"context"
	"sync"
	"time"

	"storefront-service/internal/abandon"
	"storefront-service/internal/cart"
	"storefront-service/internal/cartcache"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// Session bundles the per-visitor state: one cart controller and one
// abandoned-cart watcher, wired together through the controller's
// update stream
type Session struct {
	ID         string
	Controller *cart.Controller
	Watcher    *abandon.Watcher

	lastSeen    time.Time
	unsubscribe func()
}

// Deps are the collaborators every session shares
type Deps struct {
	Backend   cart.Backend
	Reporter  abandon.Reporter
	Snapshots cartcache.SnapshotStore
	Markers   abandon.MarkerStore
	Events    cart.EventPublisher
	Abandons  abandon.EventPublisher

	AbandonIdleDelay time.Duration
	AbandonCooldown  time.Duration
}

// Manager owns the live sessions. Each session id maps to exactly one
// controller, so a cart has a single owner for its whole lifetime in
// this process.
type Manager struct {
	deps    Deps
	idleTTL time.Duration
	logger  *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session registry. idleTTL bounds how long an
// untouched session stays in memory.
func NewManager(deps Deps, idleTTL time.Duration) *Manager {
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	return &Manager{
		deps:     deps,
		idleTTL:  idleTTL,
		logger:   util.GetLogger(),
		sessions: map[string]*Session{},
	}
}

// Get returns the session for id, creating it on first use
func (m *Manager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		s.lastSeen = time.Now()
		return s
	}

	controller := cart.NewController(id, m.deps.Backend, m.deps.Snapshots, m.deps.Events)
	watcher := abandon.NewWatcher(id, m.deps.Reporter, m.deps.Markers, m.deps.Abandons,
		m.deps.AbandonIdleDelay, m.deps.AbandonCooldown)

	unsubscribe := controller.Subscribe(func(u cart.Update) {
		watcher.ObserveCart(u.Cart)
	})

	s := &Session{
		ID:          id,
		Controller:  controller,
		Watcher:     watcher,
		lastSeen:    time.Now(),
		unsubscribe: unsubscribe,
	}
	m.sessions[id] = s
	util.ActiveSessions.Set(float64(len(m.sessions)))

	m.logger.Debug("Session created", zap.String("session_id", id))
	return s
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// ClearMarkerByPhone clears the abandon dedup marker; used by the
// event worker when a checkout completes on another instance
func (m *Manager) ClearMarkerByPhone(ctx context.Context, phone string) error {
	return m.deps.Markers.ClearAbandonMarker(ctx, phone)
}

// RunJanitor evicts idle sessions until the context is cancelled
func (m *Manager) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.evictIdle()
		}
	}
}

func (m *Manager) evictIdle() {
	cutoff := time.Now().Add(-m.idleTTL)

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, s := range m.sessions {
		if s.lastSeen.After(cutoff) {
			continue
		}
		s.unsubscribe()
		s.Watcher.Stop()
		delete(m.sessions, id)
		m.logger.Debug("Session evicted", zap.String("session_id", id))
	}
	util.ActiveSessions.Set(float64(len(m.sessions)))
}

// Evict removes a session immediately
func (m *Manager) Evict(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		s.unsubscribe()
		s.Watcher.Stop()
		delete(m.sessions, id)
		util.ActiveSessions.Set(float64(len(m.sessions)))
	}
}
