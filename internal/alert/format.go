package alert

import (
	"encoding/json"
	"fmt"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event AlertEvent) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return formatGeneric(event)
	}
}

func formatGeneric(event AlertEvent) ([]byte, error) {
	return json.Marshal(event)
}

func formatSlack(event AlertEvent) ([]byte, error) {
	fields := []any{
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Probe:* %s", event.ProbeID)},
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Status:* %s", orDash(event.Status))},
	}
	if event.Topic != "" {
		fields = append(fields, map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Topic:* %s", event.Topic)})
	}

	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("probeplane: %s", event.Kind),
				},
			},
			map[string]any{
				"type":   "section",
				"fields": fields,
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event AlertEvent) ([]byte, error) {
	payload := map[string]any{
		"event_action": "trigger",
		"dedup_key":    fmt.Sprintf("%s:%s", event.ProbeID, event.Kind),
		"payload": map[string]any{
			"summary":  fmt.Sprintf("probeplane %s: %s", event.Kind, event.ProbeID),
			"severity": severityFor(event),
			"source":   "probeplane",
			"custom_details": map[string]any{
				"probe_id": event.ProbeID,
				"status":   event.Status,
				"topic":    event.Topic,
				"payload":  event.Payload,
			},
		},
	}
	return json.Marshal(payload)
}

func severityFor(event AlertEvent) string {
	switch {
	case event.Kind == "failure":
		return "critical"
	case event.Kind == "deployment" && event.Payload["outcome"] == "failure":
		return "error"
	case event.Status == "degraded":
		return "warning"
	default:
		return "info"
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
