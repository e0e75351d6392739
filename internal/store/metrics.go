package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ppiankov/probeplane/internal/model"
)

// UpsertMetric writes the full snapshot, replacing any existing row.
func (s *SQLStore) UpsertMetric(ctx context.Context, m *model.Metric) error {
	meta, err := encodeJSON(m.Metadata, "{}")
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `INSERT INTO probe_metrics (
			probe_id, heartbeat_status, heartbeat_interval_seconds, last_heartbeat_at,
			failure_count_24h, latency_p95_ms, latency_p99_ms, error_rate_percent,
			last_error_code, metadata, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (probe_id) DO UPDATE SET
			heartbeat_status = excluded.heartbeat_status,
			heartbeat_interval_seconds = excluded.heartbeat_interval_seconds,
			last_heartbeat_at = excluded.last_heartbeat_at,
			failure_count_24h = excluded.failure_count_24h,
			latency_p95_ms = excluded.latency_p95_ms,
			latency_p99_ms = excluded.latency_p99_ms,
			error_rate_percent = excluded.error_rate_percent,
			last_error_code = excluded.last_error_code,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`,
		m.ProbeID, string(m.HeartbeatStatus), m.HeartbeatIntervalSeconds, formatTimePtr(m.LastHeartbeatAt),
		m.FailureCount24h, nullInt(m.LatencyP95Ms), nullInt(m.LatencyP99Ms), nullFloat(m.ErrorRatePercent),
		nullString(m.LastErrorCode), meta, formatTime(m.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("store: upsert metric: %w", err)
	}
	return nil
}

// TouchMetric stamps status and last heartbeat without touching counters or
// latency, creating the row when it is missing.
func (s *SQLStore) TouchMetric(ctx context.Context, probeID string, intervalSeconds int, status model.HeartbeatStatus, at time.Time) error {
	_, err := s.exec(ctx, `INSERT INTO probe_metrics (
			probe_id, heartbeat_status, heartbeat_interval_seconds, last_heartbeat_at,
			failure_count_24h, metadata, updated_at)
		VALUES (?, ?, ?, ?, 0, '{}', ?)
		ON CONFLICT (probe_id) DO UPDATE SET
			heartbeat_status = excluded.heartbeat_status,
			last_heartbeat_at = excluded.last_heartbeat_at,
			updated_at = excluded.updated_at`,
		probeID, string(status), intervalSeconds, formatTime(at), formatTime(at),
	)
	if err != nil {
		return fmt.Errorf("store: touch metric: %w", err)
	}
	return nil
}

// GetMetric reads the metric row. Inside a Postgres transaction the row is
// locked until commit so read-modify-write callers do not lose updates.
func (s *SQLStore) GetMetric(ctx context.Context, probeID string) (*model.Metric, error) {
	query := `SELECT probe_id, heartbeat_status, heartbeat_interval_seconds,
			last_heartbeat_at, failure_count_24h, latency_p95_ms, latency_p99_ms,
			error_rate_percent, last_error_code, metadata, updated_at
		FROM probe_metrics WHERE probe_id = ?`
	if s.inTx && s.dialect.rowLocks {
		query += " FOR UPDATE"
	}

	var (
		m                     model.Metric
		status, meta, updated string
		lastHeartbeat, code   sql.NullString
		p95, p99              sql.NullInt64
		errRate               sql.NullFloat64
	)
	err := s.queryRow(ctx, query, probeID).Scan(&m.ProbeID, &status, &m.HeartbeatIntervalSeconds,
		&lastHeartbeat, &m.FailureCount24h, &p95, &p99,
		&errRate, &code, &meta, &updated)
	if err != nil {
		return nil, fmt.Errorf("store: get metric: %w", mapErr(err))
	}

	m.HeartbeatStatus = model.HeartbeatStatus(status)
	m.LatencyP95Ms = intPtr(p95)
	m.LatencyP99Ms = intPtr(p99)
	m.ErrorRatePercent = floatPtr(errRate)
	m.LastErrorCode = stringPtr(code)
	if err := decodeJSON(meta, &m.Metadata); err != nil {
		return nil, err
	}
	if m.LastHeartbeatAt, err = parseTimePtr(lastHeartbeat); err != nil {
		return nil, err
	}
	if m.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &m, nil
}
