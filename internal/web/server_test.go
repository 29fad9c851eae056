package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/user/daqrelay/internal/ingest"
	"github.com/user/daqrelay/internal/registry"
	"github.com/user/daqrelay/internal/relay"
	"github.com/user/daqrelay/internal/wire"
	"github.com/user/daqrelay/pkg/client"
)

func startServer(t *testing.T) (*relay.Relay, *httptest.Server) {
	t.Helper()

	raw := []registry.RawModule{
		{Name: "det1", Type: "abcd", Sockets: []registry.RawSocket{
			{Type: "status", Address: "tcp://127.0.0.1:16180", Topic: "status"},
			{Type: "events", Address: "tcp://127.0.0.1:16180", Topic: "events"},
			{Type: "commands", Address: "tcp://127.0.0.1:16182"},
		}},
	}
	rel := relay.New(registry.Parse(raw, nil), relay.Options{Heartbeat: time.Hour})
	rel.Start(context.Background())
	t.Cleanup(rel.Stop)

	srv := httptest.NewServer(NewServer(rel, nil).Router())
	t.Cleanup(srv.Close)
	return rel, srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/socket"
}

func nextEvent(t *testing.T, c *client.Client, want string) wire.Envelope {
	t.Helper()
	env, err := c.Next()
	if err != nil {
		t.Fatal(err)
	}
	if env.Event != want {
		t.Fatalf("expected %s envelope, got %s", want, env.Event)
	}
	return env
}

func TestHealth(t *testing.T) {
	_, srv := startServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestModulesAPI(t *testing.T) {
	_, srv := startServer(t)

	resp, err := http.Get(srv.URL + "/api/modules")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var modules []registry.ModuleDescriptor
	if err := json.NewDecoder(resp.Body).Decode(&modules); err != nil {
		t.Fatal(err)
	}
	if len(modules) != 1 || modules[0].Name != "det1" {
		t.Fatalf("modules = %+v", modules)
	}
	if len(modules[0].Channels) != 3 {
		t.Errorf("expected 3 channels, got %d", len(modules[0].Channels))
	}
}

func TestStatsAPI(t *testing.T) {
	_, srv := startServer(t)

	resp, err := http.Get(srv.URL + "/api/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var stats statsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if len(stats.Modules) != 1 || stats.Modules[0].Name != "det1" {
		t.Fatalf("stats modules = %+v", stats.Modules)
	}
	if stats.Modules[0].Events != 0 {
		t.Errorf("fresh relay should report 0 events, got %d", stats.Modules[0].Events)
	}
}

func TestSocketJoinAndStatusDelivery(t *testing.T) {
	rel, srv := startServer(t)

	c, err := client.Dial(context.Background(), wsURL(srv))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.JoinModule("det1"); err != nil {
		t.Fatal(err)
	}
	nextEvent(t, c, wire.EventAcknowledge)
	nextEvent(t, c, wire.EventEvents)

	rel.Inbox() <- ingest.Message{
		Module:  "det1",
		Kind:    registry.KindStatus,
		Topic:   "status",
		Payload: []byte(`{"timestamp":"t1"}`),
	}

	env := nextEvent(t, c, wire.EventStatus)
	var payload []byte
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatal(err)
	}
	if string(payload) != `{"timestamp":"t1"}` {
		t.Errorf("payload = %s", payload)
	}
}

type recordingSink struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (s *recordingSink) Send(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, append([]byte(nil), p...))
	return nil
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payloads)
}

func TestSocketCommandReachesSinks(t *testing.T) {
	rel, srv := startServer(t)

	sink := &recordingSink{}
	rel.Commands().Register("det1", sink)

	c, err := client.Dial(context.Background(), wsURL(srv))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.JoinModule("det1"); err != nil {
		t.Fatal(err)
	}
	nextEvent(t, c, wire.EventAcknowledge)
	nextEvent(t, c, wire.EventEvents)

	if err := c.SendCommand("start", map[string]int{"channel": 0}); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(time.Second)
	for sink.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("command never reached the sink")
		case <-time.After(5 * time.Millisecond):
		}
	}

	sink.mu.Lock()
	env, err := wire.DecodeCommand(sink.payloads[0])
	sink.mu.Unlock()
	if err != nil {
		t.Fatal(err)
	}
	if env.Command != "start" || env.MsgID != 0 {
		t.Errorf("sink received %+v", env)
	}
}

func TestSocketJoinUnknownModule(t *testing.T) {
	_, srv := startServer(t)

	c, err := client.Dial(context.Background(), wsURL(srv))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.JoinModule("does-not-exist"); err != nil {
		t.Fatal(err)
	}
	nextEvent(t, c, wire.EventError)
}

func TestSocketSurvivesMalformedFrame(t *testing.T) {
	_, srv := startServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatal(err)
	}

	// The session is still alive: a join still round-trips.
	join, _ := json.Marshal(wire.Envelope{Event: wire.EventJoinModule, Data: json.RawMessage(`"det1"`)})
	if err := conn.WriteMessage(websocket.TextMessage, join); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var env wire.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatal(err)
	}
	if env.Event != wire.EventAcknowledge {
		t.Errorf("expected acknowledge, got %s", env.Event)
	}
}

func TestSocketDisconnectCleansUp(t *testing.T) {
	rel, srv := startServer(t)

	c, err := client.Dial(context.Background(), wsURL(srv))
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.After(time.Second)
	for rel.Sessions().Count() != 1 {
		select {
		case <-deadline:
			t.Fatal("session never registered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	c.Close()

	deadline = time.After(time.Second)
	for rel.Sessions().Count() != 0 {
		select {
		case <-deadline:
			t.Fatal("session never unregistered")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
