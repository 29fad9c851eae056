package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/user/daqrelay/internal/command"
	"github.com/user/daqrelay/internal/eventlog"
	"github.com/user/daqrelay/internal/ingest"
	"github.com/user/daqrelay/internal/registry"
	"github.com/user/daqrelay/internal/session"
	"github.com/user/daqrelay/internal/wire"
)

const inboxBuffer = 256

// Options tunes a Relay. Zero values select defaults.
type Options struct {
	Heartbeat     time.Duration // ping interval, default 500ms
	SessionBuffer int           // outbound queue depth per session
	Logger        *slog.Logger
}

// Relay wires the registry, event logs, command router and session
// manager together. A single dispatch goroutine consumes every ingested
// message and every join, so event replay and live delivery can never
// race across the join boundary.
type Relay struct {
	reg       *registry.Registry
	logs      *eventlog.Log
	router    *command.Router
	sessions  *session.Manager
	inbox     chan ingest.Message
	joins     chan joinRequest
	heartbeat time.Duration
	log       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type joinRequest struct {
	session session.ID
	module  string
}

// New creates a Relay for the registry's modules. No sockets are opened
// until ConnectBus.
func New(reg *registry.Registry, opts Options) *Relay {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 500 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Relay{
		reg:       reg,
		logs:      eventlog.New(),
		router:    command.NewRouter(opts.Logger),
		sessions:  session.NewManager(opts.SessionBuffer, opts.Logger),
		inbox:     make(chan ingest.Message, inboxBuffer),
		joins:     make(chan joinRequest, inboxBuffer),
		heartbeat: opts.Heartbeat,
		log:       opts.Logger,
	}
}

// Inbox is the dispatch channel ingestors feed. Exposed for alternative
// transports and tests.
func (r *Relay) Inbox() chan<- ingest.Message { return r.inbox }

// Commands returns the relay's command router, so transports can register
// additional sinks.
func (r *Relay) Commands() *command.Router { return r.router }

// Registry returns the module registry the relay was built from.
func (r *Relay) Registry() *registry.Registry { return r.reg }

// Sessions returns the session manager for connection bookkeeping.
func (r *Relay) Sessions() *session.Manager { return r.sessions }

// EventCount returns the number of events recorded for a module.
func (r *Relay) EventCount(module string) int { return r.logs.Len(module) }

// Start launches the dispatch loop and the heartbeat ticker. It opens no
// sockets; ConnectBus does that.
func (r *Relay) Start(ctx context.Context) {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		r.dispatch(r.ctx)
	}()
	go func() {
		defer r.wg.Done()
		r.heartbeatLoop(r.ctx)
	}()
}

// ConnectBus opens one subscription per module channel and one push sink
// per commands channel. Must be called after Start. An unreachable
// commands endpoint costs that module one sink; it never stops the relay.
func (r *Relay) ConnectBus() error {
	for _, mod := range r.reg.Descriptors() {
		for _, ch := range mod.Channels {
			if ch.Kind == registry.KindCommands {
				sink, err := ingest.NewPushSink(r.ctx, ch)
				if err != nil {
					r.log.Error("command sink unavailable",
						"module", mod.Name, "address", ch.ResolveAddress(), "error", err)
					continue
				}
				r.router.Register(mod.Name, sink)
				r.log.Info("command sink connected", "module", mod.Name, "address", sink.Addr())
				continue
			}

			in, err := ingest.NewIngestor(mod.Name, ch, r.inbox, r.log)
			if err != nil {
				return fmt.Errorf("ingestor for %s: %w", mod.Name, err)
			}
			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				in.Run(r.ctx)
			}()
		}
	}
	return nil
}

// Stop cancels every loop, waits for them, and closes the command sinks.
func (r *Relay) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.router.Close()
}

// dispatch is the single consumer of ingested messages and join requests.
// Processing both on one goroutine makes the replay snapshot and the room
// binding atomic with respect to every append.
func (r *Relay) dispatch(ctx context.Context) {
	for {
		select {
		case msg := <-r.inbox:
			r.handleMessage(msg)
		case req := <-r.joins:
			r.handleJoin(req)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Relay) handleMessage(msg ingest.Message) {
	switch msg.Kind {
	case registry.KindEvents:
		rec, err := wire.ParseEvent(msg.Payload)
		if err != nil {
			r.log.Warn("dropping unparseable event",
				"module", msg.Module, "topic", msg.Topic, "error", err)
			return
		}
		history := r.logs.Append(msg.Module, rec)
		env, err := wire.NewEnvelope(wire.EventEvents, history)
		if err != nil {
			r.log.Error("encoding event history", "module", msg.Module, "error", err)
			return
		}
		r.sessions.Multicast(msg.Module, env)

	case registry.KindStatus, registry.KindData:
		env, err := wire.NewEnvelope(msg.Kind.String(), msg.Payload)
		if err != nil {
			r.log.Error("encoding payload", "module", msg.Module, "error", err)
			return
		}
		r.sessions.Multicast(msg.Module, env)

	default:
		r.log.Warn("message on non-subscription channel kind",
			"module", msg.Module, "kind", msg.Kind.String())
	}
}

// Acknowledgement and error bodies sent to clients around a join.
type joinMessage struct {
	Message string `json:"message"`
}

// Join binds the session to a module. Unknown modules are rejected with
// an error envelope instead of binding to a non-existent room.
func (r *Relay) Join(id session.ID, module string) {
	module = registry.SanitizeName(module)
	if !r.reg.Has(module) {
		r.log.Warn("join to unknown module", "session", string(id), "module", module)
		if env, err := wire.NewEnvelope(wire.EventError,
			joinMessage{Message: "unknown module: " + module}); err == nil {
			r.sessions.Send(id, env)
		}
		return
	}
	r.joins <- joinRequest{session: id, module: module}
}

// handleJoin runs on the dispatch goroutine: bind the session to the
// room, acknowledge, then replay the full event history to it. Appends
// also run on this goroutine, so none can land between the binding and
// the snapshot.
func (r *Relay) handleJoin(req joinRequest) {
	r.log.Info("joining session to module", "session", string(req.session), "module", req.module)

	if err := r.sessions.Bind(req.session, req.module); err != nil {
		// The session disconnected between the request and now.
		r.log.Debug("join after disconnect", "session", string(req.session), "error", err)
		return
	}

	if env, err := wire.NewEnvelope(wire.EventAcknowledge,
		joinMessage{Message: "joined to module: " + req.module}); err == nil {
		r.sessions.Send(req.session, env)
	}

	history := r.logs.Snapshot(req.module)
	env, err := wire.NewEnvelope(wire.EventEvents, history)
	if err != nil {
		r.log.Error("encoding event history", "module", req.module, "error", err)
		return
	}
	r.sessions.Send(req.session, env)
}

// HandleCommand routes a client command to the sinks of the session's
// bound module. A command from an unbound session is logged and dropped.
func (r *Relay) HandleCommand(id session.ID, body []byte) {
	module, ok := r.sessions.Module(id)
	if !ok {
		r.log.Warn("dropping command from unbound session", "session", string(id))
		return
	}

	if env, err := wire.DecodeCommand(body); err == nil {
		r.log.Info("command", "session", string(id), "module", module,
			"command", env.Command, "msg_id", env.MsgID)
	} else {
		r.log.Info("command", "session", string(id), "module", module, "opaque", true)
	}

	r.router.Broadcast(module, body)
}

// HandlePong records a heartbeat answer. Advisory only.
func (r *Relay) HandlePong(id session.ID, hb wire.Heartbeat) {
	r.sessions.RecordPong(id, time.Now())
	r.log.Debug("pong", "session", string(id), "timestamp", hb.Timestamp)
}

// heartbeatLoop pings every connected session at the configured interval,
// regardless of module binding.
func (r *Relay) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(r.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			env, err := wire.NewEnvelope(wire.EventPing,
				wire.Heartbeat{Timestamp: time.Now().UTC().Format(time.RFC3339Nano)})
			if err != nil {
				continue
			}
			r.sessions.Broadcast(env)
		case <-ctx.Done():
			return
		}
	}
}
