package extension

import (
    "sync"

    "github.com/google/uuid"

    "consentgate/internal/model"
    "consentgate/internal/settings"
)

// Manager is the explicit session registry: created at server start,
// closed at shutdown. No package-level state.
type Manager struct {
    mu       sync.Mutex
    sessions map[string]*Session
    feed     Feed
}

func NewManager(feed Feed) *Manager {
    return &Manager{sessions: map[string]*Session{}, feed: feed}
}

// Create builds a session for a checkout, subscribes it to the feed,
// and registers it.
func (m *Manager) Create(req model.SessionRequest, cfg settings.Settings) *Session {
    id := uuid.New().String()
    sess := newSession(id, req, cfg, m.feed)
    m.mu.Lock()
    m.sessions[id] = sess
    m.mu.Unlock()
    return sess
}

// Get returns the session, or nil.
func (m *Manager) Get(id string) *Session {
    m.mu.Lock()
    defer m.mu.Unlock()
    return m.sessions[id]
}

// Close tears down and forgets a session. Unknown ids are a no-op.
func (m *Manager) Close(id string) {
    m.mu.Lock()
    sess := m.sessions[id]
    delete(m.sessions, id)
    m.mu.Unlock()
    if sess != nil {
        sess.Close()
    }
}

// CloseAll tears down every session (server shutdown).
func (m *Manager) CloseAll() {
    m.mu.Lock()
    all := make([]*Session, 0, len(m.sessions))
    for id, s := range m.sessions {
        all = append(all, s)
        delete(m.sessions, id)
    }
    m.mu.Unlock()
    for _, s := range all {
        s.Close()
    }
}

// ForShop visits every live session of a shop; used to push settings
// edits into running checkouts.
func (m *Manager) ForShop(shopID string, fn func(*Session)) {
    m.mu.Lock()
    var hits []*Session
    for _, s := range m.sessions {
        if s.ShopID == shopID {
            hits = append(hits, s)
        }
    }
    m.mu.Unlock()
    for _, s := range hits {
        fn(s)
    }
}
