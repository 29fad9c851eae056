package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/user/daqrelay/internal/wire"
)

const defaultBuffer = 64

// Manager exclusively owns the session set and the module->sessions
// membership map ("rooms"). Joins and disconnects mutate it; every
// multicast reads it. Nothing else touches the membership directly.
type Manager struct {
	mu       sync.RWMutex
	sessions map[ID]*session
	rooms    map[string]map[ID]*session
	buffer   int
	log      *slog.Logger
}

// NewManager creates an empty Manager. buffer is the outbound queue depth
// per session; zero selects the default.
func NewManager(buffer int, log *slog.Logger) *Manager {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		sessions: make(map[ID]*session),
		rooms:    make(map[string]map[ID]*session),
		buffer:   buffer,
		log:      log,
	}
}

// Register creates a session for a new connection and returns its ID and
// the outbound envelope channel the connection's writer must drain.
func (m *Manager) Register() (ID, <-chan wire.Envelope) {
	s := &session{
		id:          NewID(),
		out:         make(chan wire.Envelope, m.buffer),
		connectedAt: time.Now(),
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	m.log.Debug("session registered", "session", string(s.id))
	return s.id, s.out
}

// Unregister removes a session and closes its outbound channel.
// Unknown IDs are a no-op, so a disconnect racing an in-flight multicast
// is harmless.
func (m *Manager) Unregister(id ID) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		if s.module != "" {
			delete(m.rooms[s.module], id)
		}
	}
	m.mu.Unlock()

	if ok {
		close(s.out)
		m.log.Debug("session unregistered", "session", string(id), "module", s.module)
	}
}

// Bind joins the session to a module's room, overwriting any previous
// binding. Validation against the registry is the caller's concern.
func (m *Manager) Bind(id ID, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("session not found: %s", id)
	}

	if s.module != "" {
		delete(m.rooms[s.module], id)
	}
	s.module = module
	room, ok := m.rooms[module]
	if !ok {
		room = make(map[ID]*session)
		m.rooms[module] = room
	}
	room[id] = s
	return nil
}

// Module returns the session's bound module, or false while unbound.
func (m *Manager) Module(id ID) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok || s.module == "" {
		return "", false
	}
	return s.module, true
}

// Multicast delivers the envelope to every session bound to the module,
// and only those. Returns the number of sessions that accepted it.
func (m *Manager) Multicast(module string, env wire.Envelope) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var delivered int
	for _, s := range m.rooms[module] {
		if s.deliver(env) {
			delivered++
		}
	}
	return delivered
}

// Broadcast delivers the envelope to every connected session regardless
// of binding. Used by the heartbeat.
func (m *Manager) Broadcast(env wire.Envelope) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.sessions {
		s.deliver(env)
	}
}

// Send delivers the envelope to a single session. Unknown sessions are a
// no-op; reports whether the envelope was accepted.
func (m *Manager) Send(id ID, env wire.Envelope) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return false
	}
	return s.deliver(env)
}

// RecordPong notes a heartbeat answer from the session. Advisory only;
// a silent session is never evicted.
func (m *Manager) RecordPong(id ID, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		s.lastPong = at
	}
}

// Count returns the number of connected sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// StatsSnapshot returns per-session bookkeeping for the stats API.
func (m *Manager) StatsSnapshot() []Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Stats, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, Stats{
			ID:          s.id,
			Module:      s.module,
			ConnectedAt: s.connectedAt,
			LastPong:    s.lastPong,
			Sent:        s.sent.Load(),
			Dropped:     s.dropped.Load(),
		})
	}
	return out
}
