package wire

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"
)

// CommandEnvelope is the JSON body an operator client sends with a command.
// The relay forwards it to the module's sinks verbatim; the struct exists
// for the encoder below and for inspection in logs and tests.
type CommandEnvelope struct {
	Command   string          `json:"command"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	MsgID     uint64          `json:"msg_id"`
	Timestamp string          `json:"timestamp"`
}

// DecodeCommand parses a command envelope.
func DecodeCommand(data []byte) (CommandEnvelope, error) {
	var env CommandEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return CommandEnvelope{}, fmt.Errorf("decode command envelope: %w", err)
	}
	return env, nil
}

// CommandEncoder produces command envelopes with a monotonically
// increasing msg_id, starting at 0. One encoder per client session.
type CommandEncoder struct {
	next atomic.Uint64
}

// Encode builds the JSON envelope for a command and its arguments.
func (e *CommandEncoder) Encode(command string, arguments any) ([]byte, error) {
	var args json.RawMessage
	if arguments != nil {
		data, err := json.Marshal(arguments)
		if err != nil {
			return nil, fmt.Errorf("marshal command arguments: %w", err)
		}
		args = data
	}
	env := CommandEnvelope{
		Command:   command,
		Arguments: args,
		MsgID:     e.next.Add(1) - 1,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	return json.Marshal(env)
}

// Client event names carried by Envelope, mirroring the browser protocol.
const (
	EventJoinModule  = "join_module"
	EventAcknowledge = "acknowledge"
	EventError       = "error"
	EventStatus      = "status"
	EventData        = "data"
	EventEvents      = "events"
	EventPing        = "ping"
	EventPong        = "pong"
	EventCommand     = "command"
)

// Envelope is one frame of the client-facing websocket protocol: an event
// name plus its JSON body.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into an Envelope for the given event.
func NewEnvelope(event string, data any) (Envelope, error) {
	if data == nil {
		return Envelope{Event: event}, nil
	}
	body, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s envelope: %w", event, err)
	}
	return Envelope{Event: event, Data: body}, nil
}

// Heartbeat is the body of ping and pong envelopes.
type Heartbeat struct {
	Timestamp string `json:"timestamp"`
}
