package alert

import "github.com/ppiankov/probeplane/internal/events"

// AlertConfig defines a webhook alert destination.
type AlertConfig struct {
	// Name is the channel this webhook serves. An unnamed webhook receives
	// every matching event regardless of the event's channels.
	Name    string            `yaml:"name"    toml:"name"    json:"name,omitempty"`
	URL     string            `yaml:"url"     toml:"url"     json:"url"`
	Format  string            `yaml:"format"  toml:"format"  json:"format"` // "generic", "slack", "pagerduty"
	Events  []string          `yaml:"events"  toml:"events"  json:"events"` // ["failure", "deployment", "*"]
	Headers map[string]string `yaml:"headers" toml:"headers" json:"headers"`
}

// AlertEvent is the payload sent to webhook endpoints.
type AlertEvent struct {
	Timestamp string         `json:"timestamp"`
	Kind      string         `json:"kind"`
	ProbeID   string         `json:"probe_id"`
	Topic     string         `json:"topic,omitempty"`
	Status    string         `json:"status,omitempty"`
	Channels  []string       `json:"channels,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// EventFrom converts a bus message into a webhook payload.
func EventFrom(msg events.Message) AlertEvent {
	return AlertEvent{
		Timestamp: msg.At.UTC().Format("2006-01-02T15:04:05.000Z"),
		Kind:      string(msg.Kind),
		ProbeID:   msg.ProbeID,
		Topic:     msg.Topic,
		Status:    msg.Status(),
		Channels:  msg.Channels,
		Payload:   msg.Payload,
	}
}
