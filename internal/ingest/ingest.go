package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-zeromq/zmq4"

	"github.com/user/daqrelay/internal/registry"
	"github.com/user/daqrelay/internal/wire"
)

// Message is one decoded bus frame handed to the dispatcher.
type Message struct {
	Module  string
	Kind    registry.ChannelKind
	Topic   string
	Payload []byte
}

// SubSocket is the slice of the ZMQ SUB socket surface the ingestor needs.
// zmq4 sockets satisfy it; tests inject fakes.
type SubSocket interface {
	Dial(addr string) error
	SetOption(name string, value interface{}) error
	Recv() (zmq4.Msg, error)
	Close() error
}

// SubFactory creates a fresh SUB socket for one connection attempt.
type SubFactory func(ctx context.Context) SubSocket

func defaultSubFactory(ctx context.Context) SubSocket {
	return zmq4.NewSub(ctx)
}

// Ingestor maintains one live subscription for a (module, channel) pair
// and forwards every decoded frame to the shared dispatch channel.
type Ingestor struct {
	module  string
	channel registry.ChannelDescriptor
	out     chan<- Message
	retry   *RetryPolicy
	factory SubFactory
	log     *slog.Logger
}

// NewIngestor creates an Ingestor for a subscription channel. The channel
// kind must not be commands; those register sinks instead of ingesting.
func NewIngestor(module string, channel registry.ChannelDescriptor, out chan<- Message, log *slog.Logger) (*Ingestor, error) {
	if channel.Kind == registry.KindCommands {
		return nil, fmt.Errorf("ingest: commands channel of module %s has no subscription", module)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Ingestor{
		module:  module,
		channel: channel,
		out:     out,
		retry:   DefaultRetryPolicy(),
		factory: defaultSubFactory,
		log:     log,
	}, nil
}

// SetSocketFactory overrides how SUB sockets are created. Test hook.
func (in *Ingestor) SetSocketFactory(f SubFactory) { in.factory = f }

// SetRetryPolicy overrides the reconnect backoff policy.
func (in *Ingestor) SetRetryPolicy(p *RetryPolicy) { in.retry = p }

// Run connects and consumes frames until the context is cancelled.
// A connection or receive failure tears down the socket and reconnects
// with backoff; it is never fatal to the relay.
func (in *Ingestor) Run(ctx context.Context) error {
	attempt := 0
	for {
		if err := in.connectAndConsume(ctx); err != nil {
			attempt++
			delay := in.retry.NextDelay(attempt)
			in.log.Warn("subscription lost, reconnecting",
				"module", in.module, "kind", in.channel.Kind.String(),
				"address", in.channel.ResolveAddress(),
				"attempt", attempt, "delay", delay, "error", err)

			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return nil
			}
		}
		// consume returned cleanly: context cancelled
		return nil
	}
}

// connectAndConsume runs one socket lifetime: dial, subscribe, receive
// until an error or cancellation. Returns nil only on cancellation.
func (in *Ingestor) connectAndConsume(ctx context.Context) error {
	sock := in.factory(ctx)
	defer sock.Close()

	// Recv has no context parameter; closing the socket on cancellation
	// unblocks it.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			sock.Close()
		case <-done:
		}
	}()

	addr := in.channel.ResolveAddress()
	if err := sock.Dial(addr); err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	if err := sock.SetOption(zmq4.OptionSubscribe, in.channel.Topic); err != nil {
		return fmt.Errorf("subscribe %q: %w", in.channel.Topic, err)
	}

	in.log.Info("subscribed",
		"module", in.module, "kind", in.channel.Kind.String(),
		"address", addr, "topic", in.channel.Topic)

	for {
		msg, err := sock.Recv()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("recv: %w", err)
		}

		topic, payload, err := wire.SplitFrame(msg.Bytes())
		if err != nil {
			// Only this frame is dropped; the subscription stays live.
			in.log.Warn("dropping malformed bus frame",
				"module", in.module, "kind", in.channel.Kind.String(), "error", err)
			continue
		}

		select {
		case in.out <- Message{
			Module:  in.module,
			Kind:    in.channel.Kind,
			Topic:   topic,
			Payload: payload,
		}:
		case <-ctx.Done():
			return nil
		}
	}
}
