package eventlog

import (
	"sync"

	"github.com/user/daqrelay/internal/wire"
)

// Log accumulates the events published by each module since process start.
// Append-only for the process lifetime; order is arrival order.
type Log struct {
	mu       sync.RWMutex
	byModule map[string][]wire.EventRecord
}

// New creates an empty Log.
func New() *Log {
	return &Log{byModule: make(map[string][]wire.EventRecord)}
}

// Append adds an event to the module's history and returns a snapshot of
// the full history including it. The snapshot is a copy; callers may hold
// it across goroutines.
func (l *Log) Append(module string, rec wire.EventRecord) []wire.EventRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.byModule[module] = append(l.byModule[module], rec)
	return snapshot(l.byModule[module])
}

// Snapshot returns a copy of the module's full history in arrival order.
// Unknown modules yield an empty history.
func (l *Log) Snapshot(module string) []wire.EventRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return snapshot(l.byModule[module])
}

// Len returns the number of events recorded for the module.
func (l *Log) Len(module string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.byModule[module])
}

func snapshot(events []wire.EventRecord) []wire.EventRecord {
	out := make([]wire.EventRecord, len(events))
	copy(out, events)
	return out
}
