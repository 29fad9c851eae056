package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/user/daqrelay/internal/relay"
	"github.com/user/daqrelay/internal/session"
	"github.com/user/daqrelay/internal/wire"
)

const writeTimeout = 10 * time.Second

// Server exposes the relay to browser clients: a websocket endpoint for
// the live protocol and JSON APIs for the module list and bookkeeping.
type Server struct {
	relay    *relay.Relay
	upgrader websocket.Upgrader
	log      *slog.Logger
}

// NewServer creates a Server for the given relay.
func NewServer(r *relay.Relay, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		relay: r,
		upgrader: websocket.Upgrader{
			// The GUI is served from the same host and commands carry no
			// credentials; origin checks are not part of this surface.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

// Router returns the HTTP handler for the server.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Get("/socket", s.handleSocket)
	r.Get("/api/modules", s.handleModules)
	r.Get("/api/stats", s.handleStats)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleModules(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.relay.Registry().Descriptors())
}

// statsResponse is the body of GET /api/stats.
type statsResponse struct {
	Sessions []session.Stats `json:"sessions"`
	Modules  []moduleStats   `json:"modules"`
}

type moduleStats struct {
	Name   string `json:"name"`
	Events int    `json:"events"`
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	resp := statsResponse{Sessions: s.relay.Sessions().StatsSnapshot()}
	for _, mod := range s.relay.Registry().Descriptors() {
		resp.Modules = append(resp.Modules, moduleStats{
			Name:   mod.Name,
			Events: s.relay.EventCount(mod.Name),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSocket upgrades the connection and runs one client session until
// the peer goes away.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	id, out := s.relay.Sessions().Register()
	s.log.Info("client connected", "session", string(id), "remote", r.RemoteAddr)

	// Single writer: everything the session receives, heartbeats included,
	// flows through its outbound channel.
	go func() {
		for env := range out {
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(env); err != nil {
				s.log.Debug("write to client failed", "session", string(id), "error", err)
				break
			}
		}
		conn.Close()
	}()

	s.readLoop(conn, id)

	s.relay.Sessions().Unregister(id)
	s.log.Info("client disconnected", "session", string(id))
}

func (s *Server) readLoop(conn *websocket.Conn, id session.ID) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("client read error", "session", string(id), "error", err)
			}
			return
		}

		var env wire.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.log.Warn("dropping malformed client frame", "session", string(id), "error", err)
			continue
		}

		switch env.Event {
		case wire.EventJoinModule:
			var module string
			if err := json.Unmarshal(env.Data, &module); err != nil {
				s.log.Warn("malformed join_module body", "session", string(id), "error", err)
				continue
			}
			s.relay.Join(id, module)

		case wire.EventCommand:
			s.relay.HandleCommand(id, env.Data)

		case wire.EventPong:
			var hb wire.Heartbeat
			if err := json.Unmarshal(env.Data, &hb); err == nil {
				s.relay.HandlePong(id, hb)
			}

		default:
			s.log.Warn("unknown client event", "session", string(id), "event", env.Event)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
