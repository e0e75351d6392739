// Package health ingests probe heartbeats and classifies fleet health.
package health

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/probeplane/internal/events"
	"github.com/ppiankov/probeplane/internal/model"
	"github.com/ppiankov/probeplane/internal/store"
	"github.com/ppiankov/probeplane/internal/telemetry"
)

// Classify maps a raw status string onto the closed heartbeat enum.
// Unknown or empty input is operational.
func Classify(raw string) model.HeartbeatStatus {
	switch model.HeartbeatStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case model.Degraded:
		return model.Degraded
	case model.Outage:
		return model.Outage
	default:
		return model.Operational
	}
}

// Resolver finds a probe by ID or slug.
type Resolver interface {
	Resolve(ctx context.Context, identifier string) (*model.Probe, error)
}

// HeartbeatInput is one heartbeat report from a probe.
type HeartbeatInput struct {
	ProbeID   string  `json:"probeId"`
	Status    string  `json:"status"`
	LatencyMs *int    `json:"latencyMs,omitempty"`
	ErrorCode *string `json:"errorCode,omitempty"`
}

// Monitor records heartbeats and serves metric snapshots.
type Monitor struct {
	store   store.Store
	probes  Resolver
	events  events.Publisher
	logger  *slog.Logger
	metrics *telemetry.Metrics
	now     func() time.Time
}

// New creates a Monitor. logger and metrics may be nil.
func New(st store.Store, probes Resolver, pub events.Publisher, logger *slog.Logger, metrics *telemetry.Metrics) *Monitor {
	if pub == nil {
		pub = events.Discard
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Monitor{
		store:   st,
		probes:  probes,
		events:  pub,
		logger:  logger,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Summary returns the probe's metric snapshot.
func (m *Monitor) Summary(ctx context.Context, identifier string) (*model.Metric, error) {
	p, err := m.probes.Resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}
	metric, err := m.store.GetMetric(ctx, p.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &model.NotFoundError{Kind: "metrics", ID: p.ID}
	}
	if err != nil {
		return nil, &model.OpError{Op: "metrics summary", ProbeID: p.ID, Err: err}
	}
	return metric, nil
}

// RecordHeartbeat classifies the report, updates the metric snapshot and
// appends a heartbeat or failure event in one unit of work, then publishes
// exactly one event of the matching kind.
func (m *Monitor) RecordHeartbeat(ctx context.Context, in HeartbeatInput) (*model.Metric, error) {
	if strings.TrimSpace(in.ProbeID) == "" {
		return nil, model.Invalid("probeId", "is required")
	}
	if in.LatencyMs != nil && *in.LatencyMs < 0 {
		return nil, model.Invalid("latencyMs", "must not be negative")
	}

	p, err := m.probes.Resolve(ctx, in.ProbeID)
	if err != nil {
		return nil, err
	}

	status := Classify(in.Status)
	now := m.now()
	evType := model.EventHeartbeat
	if status == model.Outage {
		evType = model.EventFailure
	}

	var metric *model.Metric
	err = m.store.WithinTx(ctx, func(tx store.Store) error {
		prev, err := tx.GetMetric(ctx, p.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			prev = &model.Metric{ProbeID: p.ID, HeartbeatIntervalSeconds: p.HeartbeatIntervalSeconds}
		case err != nil:
			return err
		}

		metric = prev
		metric.HeartbeatStatus = status
		metric.LastHeartbeatAt = &now
		metric.LatencyP95Ms = in.LatencyMs
		metric.LastErrorCode = in.ErrorCode
		metric.UpdatedAt = now
		if status == model.Outage {
			metric.FailureCount24h++
		}
		if err := tx.UpsertMetric(ctx, metric); err != nil {
			return err
		}

		return tx.InsertEvent(ctx, &model.Event{
			ID:        uuid.NewString(),
			ProbeID:   p.ID,
			Type:      evType,
			Payload:   heartbeatPayload(p.ID, status, in),
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, &model.OpError{Op: "record heartbeat", ProbeID: p.ID, Err: err}
	}

	m.metrics.HeartbeatRecorded(string(status))
	kind := events.KindHeartbeat
	if status == model.Outage {
		kind = events.KindFailure
		m.logger.WarnContext(ctx, "probe outage", "probe_id", p.ID, "failures", metric.FailureCount24h, "error_code", deref(in.ErrorCode))
	}
	m.events.Publish(ctx, events.Message{
		Kind:     kind,
		ProbeID:  p.ID,
		Channels: p.AlertChannels,
		Payload:  heartbeatPayload(p.ID, status, in),
	})

	return metric, nil
}

func heartbeatPayload(probeID string, status model.HeartbeatStatus, in HeartbeatInput) map[string]any {
	payload := map[string]any{
		"probeId": probeID,
		"status":  string(status),
	}
	if in.LatencyMs != nil {
		payload["latencyMs"] = *in.LatencyMs
	}
	if in.ErrorCode != nil {
		payload["errorCode"] = *in.ErrorCode
	}
	return payload
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
