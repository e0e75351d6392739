package audit

import (
	"encoding/json"
	"fmt"
	"time"
)

// ReplayFilter holds filtering criteria for a probe timeline.
type ReplayFilter struct {
	ProbeID string    // empty = all probes
	Kind    string    // empty = all kinds
	From    time.Time // zero value = no lower bound
	To      time.Time // zero value = no upper bound
}

// ReplaySummary holds per-kind counts for a replayed timeline.
type ReplaySummary struct {
	Total          int            `json:"total"`
	ByKind         map[string]int `json:"by_kind"`
	Failures       int            `json:"failures"`
	FirstTimestamp string         `json:"first_timestamp"`
	LastTimestamp  string         `json:"last_timestamp"`
}

// ReplayResult holds filtered entries and summary.
type ReplayResult struct {
	ProbeID string        `json:"probe_id,omitempty"`
	Entries []AuditEntry  `json:"entries"`
	Summary ReplaySummary `json:"summary"`
}

// Replay reads the audit log and returns entries matching the filter.
func Replay(path string, filter ReplayFilter) (*ReplayResult, error) {
	result := &ReplayResult{
		ProbeID: filter.ProbeID,
		Summary: ReplaySummary{ByKind: map[string]int{}},
	}

	err := eachLine(path, func(_ int, line []byte) error {
		var entry AuditEntry
		if json.Unmarshal(line, &entry) != nil {
			return nil // malformed lines are reported by Verify
		}
		if filter.match(entry) {
			result.Entries = append(result.Entries, entry)
			updateSummary(&result.Summary, entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("audit: replay %s: %w", path, err)
	}
	return result, nil
}

func (f ReplayFilter) match(entry AuditEntry) bool {
	if f.ProbeID != "" && entry.ProbeID != f.ProbeID {
		return false
	}
	if f.Kind != "" && entry.Kind != f.Kind {
		return false
	}
	if f.From.IsZero() && f.To.IsZero() {
		return true
	}
	ts, err := time.Parse(TimestampFormat, entry.Timestamp)
	if err != nil {
		return false
	}
	if !f.From.IsZero() && ts.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && ts.After(f.To) {
		return false
	}
	return true
}

func updateSummary(s *ReplaySummary, entry AuditEntry) {
	s.Total++
	s.ByKind[entry.Kind]++
	if entry.Kind == "failure" || entry.Payload["outcome"] == "failure" {
		s.Failures++
	}
	if s.FirstTimestamp == "" {
		s.FirstTimestamp = entry.Timestamp
	}
	s.LastTimestamp = entry.Timestamp
}
