package command

import (
	"log/slog"
	"sync"
)

// Sink is one outbound command destination for a module.
type Sink interface {
	Send(payload []byte) error
	Close() error
}

// Router holds the command sinks registered per module and broadcasts
// operator commands to all of them. Registration happens during startup;
// afterwards the sets are read-only.
type Router struct {
	mu    sync.RWMutex
	sinks map[string][]Sink
	log   *slog.Logger
}

// NewRouter creates an empty Router.
func NewRouter(log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		sinks: make(map[string][]Sink),
		log:   log,
	}
}

// Register adds a sink to the module's set.
func (r *Router) Register(module string, sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[module] = append(r.sinks[module], sink)
}

// Broadcast sends the payload to every sink registered for the module,
// independently. A module with no sinks is a no-op, not an error; a
// failing sink is logged and does not stop delivery to the others.
func (r *Router) Broadcast(module string, payload []byte) {
	r.mu.RLock()
	sinks := r.sinks[module]
	r.mu.RUnlock()

	for _, sink := range sinks {
		if err := sink.Send(payload); err != nil {
			r.log.Error("command sink send failed", "module", module, "error", err)
		}
	}
}

// SinkCount returns the number of sinks registered for the module.
func (r *Router) SinkCount(module string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sinks[module])
}

// Close closes every registered sink.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for module, sinks := range r.sinks {
		for _, sink := range sinks {
			if err := sink.Close(); err != nil {
				r.log.Warn("closing command sink", "module", module, "error", err)
			}
		}
	}
	r.sinks = make(map[string][]Sink)
}
