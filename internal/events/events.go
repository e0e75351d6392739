// Package events carries domain events out of the control plane.
//
// Services hand messages to a Publisher after their writes commit. The Bus
// implementation queues them on a buffered channel and a single consumer
// goroutine delivers each one to every registered Sink, so a slow or failing
// subscriber never affects the request that produced the event.
package events

import (
	"context"
	"time"
)

// Kind is the downstream event category.
type Kind string

const (
	KindHeartbeat  Kind = "heartbeat"
	KindFailure    Kind = "failure"
	KindDeployment Kind = "deployment"
	KindEvidence   Kind = "evidence"
)

// Message is one published domain event keyed by probe.
type Message struct {
	Kind     Kind           `json:"kind"`
	ProbeID  string         `json:"probeId"`
	Topic    string         `json:"topic,omitempty"`
	Channels []string       `json:"channels,omitempty"`
	Payload  map[string]any `json:"payload"`
	At       time.Time      `json:"at"`
}

// Status returns payload["status"] when it is a string.
func (m Message) Status() string {
	s, _ := m.Payload["status"].(string)
	return s
}

// Publisher accepts events fire-and-forget. Publish never reports failure
// to the caller.
type Publisher interface {
	Publish(ctx context.Context, msg Message)
}

// Sink consumes delivered events.
type Sink interface {
	Name() string
	Handle(ctx context.Context, msg Message) error
}

// Discard is a Publisher that drops everything.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(context.Context, Message) {}
