// Package client is a minimal Go client for the daqrelay websocket
// protocol, used by the integration tests and by command-line tooling
// that wants to observe or drive a module without a browser.
package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/user/daqrelay/internal/wire"
)

// Client is one relay session over a websocket.
type Client struct {
	conn *websocket.Conn
	enc  wire.CommandEncoder
}

// Dial connects to a relay's /socket endpoint (ws:// or wss:// URL).
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}
	return &Client{conn: conn}, nil
}

// JoinModule binds this session to the named module. The relay answers
// with an acknowledge envelope followed by the module's event history.
func (c *Client) JoinModule(name string) error {
	return c.send(wire.EventJoinModule, name)
}

// SendCommand issues an operator command to the joined module's sinks.
// msg_id is assigned monotonically per client, starting at 0.
func (c *Client) SendCommand(command string, arguments any) error {
	body, err := c.enc.Encode(command, arguments)
	if err != nil {
		return err
	}
	env := wire.Envelope{Event: wire.EventCommand, Data: body}
	return c.conn.WriteJSON(env)
}

// Pong answers a heartbeat ping.
func (c *Client) Pong(timestamp string) error {
	return c.send(wire.EventPong, wire.Heartbeat{Timestamp: timestamp})
}

// Next blocks for the next envelope from the relay.
func (c *Client) Next() (wire.Envelope, error) {
	var env wire.Envelope
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return env, fmt.Errorf("read envelope: %w", err)
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// Close tears down the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) send(event string, data any) error {
	env, err := wire.NewEnvelope(event, data)
	if err != nil {
		return err
	}
	return c.conn.WriteJSON(env)
}
