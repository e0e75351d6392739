// Package schedule computes and persists probe execution windows and accepts
// ad-hoc evidence runs. It never executes probes itself.
package schedule

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/probeplane/internal/config"
	"github.com/ppiankov/probeplane/internal/events"
	"github.com/ppiankov/probeplane/internal/model"
	"github.com/ppiankov/probeplane/internal/store"
	"github.com/ppiankov/probeplane/internal/telemetry"
)

const maxTriggerLength = 64

// Resolver finds a probe by ID or slug.
type Resolver interface {
	Resolve(ctx context.Context, identifier string) (*model.Probe, error)
}

// CreateInput is a schedule creation request.
type CreateInput struct {
	Type       model.ScheduleType `json:"type"`
	Expression string             `json:"expression,omitempty"`
	Priority   model.Priority     `json:"priority,omitempty"`
	Controls   []string           `json:"controls,omitempty"`
}

// TriggerInput is an ad-hoc run request.
type TriggerInput struct {
	Trigger string         `json:"trigger"`
	Context map[string]any `json:"context,omitempty"`
}

// RunReceipt acknowledges an accepted ad-hoc run.
type RunReceipt struct {
	ProbeID   string    `json:"probeId"`
	RunID     string    `json:"runId"`
	Status    string    `json:"status"`
	NextRunAt time.Time `json:"nextRunAt"`
}

// Scheduler manages probe schedules.
type Scheduler struct {
	store   store.Store
	probes  Resolver
	events  events.Publisher
	windows Windows
	logger  *slog.Logger
	metrics *telemetry.Metrics
	now     func() time.Time
}

// New creates a Scheduler. logger and metrics may be nil.
func New(st store.Store, probes Resolver, pub events.Publisher, cfg config.Scheduler, logger *slog.Logger, metrics *telemetry.Metrics) *Scheduler {
	if pub == nil {
		pub = events.Discard
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{
		store:   st,
		probes:  probes,
		events:  pub,
		windows: WindowsFrom(cfg),
		logger:  logger,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create validates in, derives the first window and stores an active schedule.
func (s *Scheduler) Create(ctx context.Context, identifier string, in CreateInput, actor model.Actor) (*model.Schedule, error) {
	v := &model.ValidationError{}
	if !in.Type.Valid() {
		v.Add("type", "must be one of cron, event, adhoc")
	}
	if in.Priority == "" {
		in.Priority = model.PriorityNormal
	}
	if !in.Priority.Valid() {
		v.Add("priority", "must be one of low, normal, high, urgent")
	}
	controls, ok := normalizeControls(in.Controls)
	if !ok {
		v.Add("controls", "must not contain blank entries")
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	p, err := s.probes.Resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}

	now := s.now()
	next, expr, err := NextWindow(in.Type, in.Expression, now, s.windows)
	if err != nil {
		return nil, model.Invalid("expression", "%v", err)
	}

	sc := &model.Schedule{
		ID:         uuid.NewString(),
		ProbeID:    p.ID,
		Type:       in.Type,
		Expression: expr,
		Priority:   in.Priority,
		Status:     model.ScheduleActive,
		Controls:   controls,
		NextRunAt:  next,
		CreatedBy:  actor,
		CreatedAt:  now,
	}
	if err := s.store.InsertSchedule(ctx, sc); err != nil {
		return nil, &model.OpError{Op: "create schedule", ProbeID: p.ID, Err: err}
	}

	s.logger.InfoContext(ctx, "schedule created", "probe_id", p.ID, "type", sc.Type, "next_run_at", sc.NextRunAt)
	return sc, nil
}

// List returns the probe's schedules in creation order.
func (s *Scheduler) List(ctx context.Context, identifier string) ([]model.Schedule, error) {
	p, err := s.probes.Resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}
	out, err := s.store.ListSchedules(ctx, p.ID)
	if err != nil {
		return nil, &model.OpError{Op: "list schedules", ProbeID: p.ID, Err: err}
	}
	return out, nil
}

// TriggerRun accepts an ad-hoc evidence run. The run event, the metric
// touch and the schedule stamps are one unit of work; an evidence event is
// published afterwards.
func (s *Scheduler) TriggerRun(ctx context.Context, identifier string, in TriggerInput, actor model.Actor) (RunReceipt, error) {
	in.Trigger = strings.TrimSpace(in.Trigger)
	v := &model.ValidationError{}
	if in.Trigger == "" {
		v.Add("trigger", "is required")
	} else if len(in.Trigger) > maxTriggerLength {
		v.Add("trigger", "must be at most %d characters", maxTriggerLength)
	}
	controls, err := contextControls(in.Context)
	if err != nil {
		v.Add("context.controls", "%v", err)
	}
	if err := v.OrNil(); err != nil {
		return RunReceipt{}, err
	}

	p, err := s.probes.Resolve(ctx, identifier)
	if err != nil {
		return RunReceipt{}, err
	}

	now := s.now()
	runID := uuid.NewString()
	next, _, err := NextWindow(model.ScheduleAdhoc, "", now, s.windows)
	if err != nil {
		return RunReceipt{}, &model.OpError{Op: "trigger run", ProbeID: p.ID, Err: err}
	}

	err = s.store.WithinTx(ctx, func(tx store.Store) error {
		if err := tx.InsertEvent(ctx, &model.Event{
			ID:      uuid.NewString(),
			ProbeID: p.ID,
			Type:    model.EventRun,
			Payload: map[string]any{
				"runId":       runID,
				"trigger":     in.Trigger,
				"context":     in.Context,
				"requestedBy": actor,
			},
			CreatedAt: now,
		}); err != nil {
			return err
		}

		if err := tx.TouchMetric(ctx, p.ID, p.HeartbeatIntervalSeconds, model.Operational, now); err != nil {
			return err
		}

		_, err := tx.MarkSchedulesRun(ctx, p.ID, now, next)
		return err
	})
	if err != nil {
		return RunReceipt{}, &model.OpError{Op: "trigger run", ProbeID: p.ID, Err: err}
	}

	s.metrics.RunTriggered()
	s.logger.InfoContext(ctx, "run accepted", "probe_id", p.ID, "run_id", runID, "trigger", in.Trigger)
	s.events.Publish(ctx, events.Message{
		Kind:     events.KindEvidence,
		ProbeID:  p.ID,
		Channels: p.AlertChannels,
		Payload: map[string]any{
			"probeId":  p.ID,
			"runId":    runID,
			"status":   "accepted",
			"controls": controls,
			"trigger":  in.Trigger,
		},
	})

	return RunReceipt{ProbeID: p.ID, RunID: runID, Status: "accepted", NextRunAt: next}, nil
}

// normalizeControls trims entries and removes duplicates, keeping order.
// It reports false if any entry is blank.
func normalizeControls(in []string) ([]string, bool) {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, c := range in {
		c = strings.TrimSpace(c)
		if c == "" {
			return nil, false
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out, true
}
