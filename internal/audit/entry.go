package audit

import "github.com/ppiankov/probeplane/internal/events"

// AuditEntry is one line in the hash-chained JSONL evidence log.
// Payload is a map; encoding/json sorts map keys, so the marshalled line
// is stable for a given entry.
type AuditEntry struct {
	Timestamp string         `json:"ts"`
	Kind      string         `json:"kind"`
	ProbeID   string         `json:"probe_id"`
	Topic     string         `json:"topic,omitempty"`
	Status    string         `json:"status,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	PrevHash  string         `json:"prev_hash"`
}

// EntryFrom converts a bus message into an audit entry.
func EntryFrom(msg events.Message) AuditEntry {
	e := AuditEntry{
		Kind:    string(msg.Kind),
		ProbeID: msg.ProbeID,
		Topic:   msg.Topic,
		Status:  msg.Status(),
		Payload: msg.Payload,
	}
	if !msg.At.IsZero() {
		e.Timestamp = msg.At.UTC().Format(TimestampFormat)
	}
	return e
}
