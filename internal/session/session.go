package session

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/user/daqrelay/internal/wire"
)

// ID identifies one connected client session.
type ID string

// NewID returns a fresh session identifier.
func NewID() ID {
	return ID(uuid.New().String())
}

// session is the Manager-owned state of one connected client. The module
// binding and pong bookkeeping are guarded by the Manager's mutex; the
// delivery counters are atomics so multicast can bump them under RLock.
type session struct {
	id          ID
	module      string // "" while unbound
	out         chan wire.Envelope
	connectedAt time.Time
	lastPong    time.Time

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// deliver hands an envelope to the session's writer without ever blocking.
// A session that cannot keep up drops its own frames; it never stalls the
// dispatcher or delivery to other sessions.
func (s *session) deliver(env wire.Envelope) bool {
	select {
	case s.out <- env:
		s.sent.Add(1)
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// Stats is a point-in-time snapshot of one session's bookkeeping,
// exposed by the stats API.
type Stats struct {
	ID          ID        `json:"id"`
	Module      string    `json:"module,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
	LastPong    time.Time `json:"last_pong,omitzero"`
	Sent        uint64    `json:"sent"`
	Dropped     uint64    `json:"dropped"`
}
