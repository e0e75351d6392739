package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultBuffer is the queue depth used when NewBus is given a non-positive size.
const DefaultBuffer = 256

// Bus is a bounded in-memory event queue with a single delivery goroutine.
// Publish never blocks: when the queue is full the message is dropped.
type Bus struct {
	ch     chan Message
	logger *slog.Logger
	done   chan struct{}

	mu     sync.RWMutex
	sinks  []Sink
	closed bool

	onDrop    func(Message)
	onPublish func(Message)
}

// NewBus creates a Bus with the given queue depth and sinks.
func NewBus(buffer int, logger *slog.Logger, sinks ...Sink) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Bus{
		ch:     make(chan Message, buffer),
		logger: logger,
		done:   make(chan struct{}),
		sinks:  sinks,
	}
}

// AddSink registers another subscriber. Safe to call while running.
func (b *Bus) AddSink(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
}

// OnDrop installs a callback invoked for every message that could not be queued.
func (b *Bus) OnDrop(fn func(Message)) { b.onDrop = fn }

// OnPublish installs a callback invoked for every queued message.
func (b *Bus) OnPublish(fn func(Message)) { b.onPublish = fn }

// Publish queues msg for delivery.
func (b *Bus) Publish(_ context.Context, msg Message) {
	if msg.At.IsZero() {
		msg.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.drop(msg, "bus closed")
		return
	}

	select {
	case b.ch <- msg:
		if b.onPublish != nil {
			b.onPublish(msg)
		}
	default:
		b.drop(msg, "queue full")
	}
}

func (b *Bus) drop(msg Message, reason string) {
	b.logger.Warn("event dropped", "kind", msg.Kind, "probe_id", msg.ProbeID, "reason", reason)
	if b.onDrop != nil {
		b.onDrop(msg)
	}
}

// Run delivers queued messages until ctx is cancelled or Close is called.
// Messages still queued at cancellation are delivered before Run returns.
func (b *Bus) Run(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			b.drain(context.WithoutCancel(ctx))
			return
		case msg, ok := <-b.ch:
			if !ok {
				return
			}
			b.deliver(ctx, msg)
		}
	}
}

func (b *Bus) drain(ctx context.Context) {
	for {
		select {
		case msg, ok := <-b.ch:
			if !ok {
				return
			}
			b.deliver(ctx, msg)
		default:
			return
		}
	}
}

func (b *Bus) deliver(ctx context.Context, msg Message) {
	b.mu.RLock()
	sinks := make([]Sink, len(b.sinks))
	copy(sinks, b.sinks)
	b.mu.RUnlock()

	for _, s := range sinks {
		if err := s.Handle(ctx, msg); err != nil {
			b.logger.Warn("event sink failed", "sink", s.Name(), "kind", msg.Kind, "probe_id", msg.ProbeID, "error", err)
		}
	}
}

// Close stops accepting messages. Run delivers what is already queued and returns.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.ch)
}

// Done is closed when Run has returned.
func (b *Bus) Done() <-chan struct{} { return b.done }

// Len returns the number of queued, undelivered messages.
func (b *Bus) Len() int { return len(b.ch) }
