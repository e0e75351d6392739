package audit

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

const separator = "------------------------------------------------------------------"

// FormatTimeline renders a ReplayResult as a human-readable text timeline.
func FormatTimeline(result *ReplayResult) string {
	label := result.ProbeID
	if label == "" {
		label = "all probes"
	}
	if len(result.Entries) == 0 {
		return fmt.Sprintf("Probe: %s | No entries found.\n", label)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Probe: %s | %s to %s UTC\n", label,
		formatDateTime(result.Summary.FirstTimestamp),
		formatDateTime(result.Summary.LastTimestamp))
	b.WriteString(separator + "\n")

	for _, e := range result.Entries {
		fmt.Fprintf(&b, "%-10s %-11s %-13s %-38s\n",
			formatTimeOnly(e.Timestamp),
			e.Kind,
			orDash(e.Status),
			truncate(e.ProbeID, 38))
	}

	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(result.Summary))
	return b.String()
}

// FormatJSON renders a ReplayResult as indented JSON.
func FormatJSON(result *ReplayResult) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("audit: marshal replay result: %w", err)
	}
	return string(data), nil
}

func formatDateTime(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatTimeOnly(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("15:04:05")
}

func formatSummary(s ReplaySummary) string {
	kinds := make([]string, 0, len(s.ByKind))
	for k := range s.ByKind {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)

	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, fmt.Sprintf("%d %s", s.ByKind[k], k))
	}
	return fmt.Sprintf("Summary: %s | Failures: %d\n", strings.Join(parts, ", "), s.Failures)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
