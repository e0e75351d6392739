package events

import (
	"context"
	"log/slog"
	"sync"
)

// LogSink writes every delivered event to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

func (LogSink) Name() string { return "log" }

func (s LogSink) Handle(ctx context.Context, msg Message) error {
	s.Logger.InfoContext(ctx, "event",
		"kind", msg.Kind,
		"probe_id", msg.ProbeID,
		"topic", msg.Topic,
		"status", msg.Status(),
	)
	return nil
}

// Recorder is an in-memory Publisher that keeps every message. For tests.
type Recorder struct {
	mu   sync.Mutex
	msgs []Message
}

func (r *Recorder) Publish(_ context.Context, msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

// Messages returns a copy of everything published so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.msgs))
	copy(out, r.msgs)
	return out
}

// Kinds returns the kinds of all published messages in order.
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]Kind, len(r.msgs))
	for i, m := range r.msgs {
		kinds[i] = m.Kind
	}
	return kinds
}

// Reset forgets recorded messages.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = nil
}
