package ingest

import (
	"context"
	"fmt"

	"github.com/go-zeromq/zmq4"

	"github.com/user/daqrelay/internal/registry"
)

// PushSink is an outbound command sink backed by a ZMQ PUSH socket.
// It implements command.Sink.
type PushSink struct {
	sock zmq4.Socket
	addr string
}

// NewPushSink dials the commands channel of a module. zmq4's automatic
// reconnect keeps the sink usable across module restarts.
func NewPushSink(ctx context.Context, channel registry.ChannelDescriptor) (*PushSink, error) {
	if channel.Kind != registry.KindCommands {
		return nil, fmt.Errorf("ingest: push sink requires a commands channel, got %s", channel.Kind)
	}

	addr := channel.ResolveAddress()
	sock := zmq4.NewPush(ctx, zmq4.WithAutomaticReconnect(true))
	if err := sock.Dial(addr); err != nil {
		sock.Close()
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &PushSink{sock: sock, addr: addr}, nil
}

// Send pushes one command payload as-is. No response is expected.
func (s *PushSink) Send(payload []byte) error {
	if err := s.sock.Send(zmq4.NewMsg(payload)); err != nil {
		return fmt.Errorf("push to %s: %w", s.addr, err)
	}
	return nil
}

// Close closes the underlying socket.
func (s *PushSink) Close() error {
	return s.sock.Close()
}

// Addr returns the resolved address the sink is connected to.
func (s *PushSink) Addr() string {
	return s.addr
}
