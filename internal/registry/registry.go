// Package registry owns probe definitions: registration, lookup and listing.
package registry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/probeplane/internal/config"
	"github.com/ppiankov/probeplane/internal/events"
	"github.com/ppiankov/probeplane/internal/model"
	"github.com/ppiankov/probeplane/internal/store"
	"github.com/ppiankov/probeplane/internal/telemetry"
)

const (
	hydratedDeployments = 50
	defaultEventLimit   = 50
	maxEventLimit       = 500
)

// RegisterInput is a probe registration request.
type RegisterInput struct {
	Name                     string                    `json:"name"`
	Description              string                    `json:"description,omitempty"`
	OwnerEmail               string                    `json:"ownerEmail"`
	OwnerTeam                string                    `json:"ownerTeam,omitempty"`
	FrameworkBindings        []string                  `json:"frameworkBindings"`
	EvidenceSchema           map[string]any            `json:"evidenceSchema,omitempty"`
	Tags                     []string                  `json:"tags,omitempty"`
	EnvironmentOverlays      map[string]map[string]any `json:"environmentOverlays,omitempty"`
	SDKVersionMin            string                    `json:"sdkVersionMin,omitempty"`
	SDKVersionTarget         string                    `json:"sdkVersionTarget,omitempty"`
	HeartbeatIntervalSeconds *int                      `json:"heartbeatIntervalSeconds,omitempty"`
	AlertChannels            []string                  `json:"alertChannels,omitempty"`
	Metadata                 map[string]any            `json:"metadata,omitempty"`
}

// ListFilter narrows List results. Zero values do not filter.
type ListFilter struct {
	Status       model.ProbeStatus
	FrameworkIDs []string
	Owner        string
	Search       string
}

// ListResult is one page of probes.
type ListResult struct {
	Data       []model.Probe    `json:"data"`
	Pagination model.Pagination `json:"pagination"`
}

// Service implements the probe registry.
type Service struct {
	store   store.Store
	events  events.Publisher
	cfg     config.Config
	logger  *slog.Logger
	metrics *telemetry.Metrics
	now     func() time.Time
}

// New creates a registry. logger and metrics may be nil.
func New(st store.Store, pub events.Publisher, cfg config.Config, logger *slog.Logger, metrics *telemetry.Metrics) *Service {
	if pub == nil {
		pub = events.Discard
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		store:   st,
		events:  pub,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Register validates in, creates the probe with its initial metric and a
// registration event in one unit of work, then publishes an initial
// operational heartbeat.
func (s *Service) Register(ctx context.Context, in RegisterInput, actor model.Actor) (*model.Probe, error) {
	norm, err := s.validateRegistration(in)
	if err != nil {
		return nil, err
	}

	now := s.now()
	interval := s.cfg.Defaults.HeartbeatIntervalSeconds
	if norm.HeartbeatIntervalSeconds != nil {
		interval = *norm.HeartbeatIntervalSeconds
	}

	probe := &model.Probe{
		ID:                       uuid.NewString(),
		Slug:                     newSlug(norm.Name),
		Name:                     norm.Name,
		Description:              norm.Description,
		OwnerEmail:               norm.OwnerEmail,
		OwnerTeam:                norm.OwnerTeam,
		Status:                   model.ProbeDraft,
		FrameworkBindings:        norm.FrameworkBindings,
		EvidenceSchema:           norm.EvidenceSchema,
		Tags:                     nonNil(norm.Tags),
		EnvironmentOverlays:      MergeOverlays(s.cfg.Defaults, norm.EnvironmentOverlays, norm.HeartbeatIntervalSeconds),
		SDKVersionMin:            norm.SDKVersionMin,
		SDKVersionTarget:         norm.SDKVersionTarget,
		HeartbeatIntervalSeconds: interval,
		AlertChannels:            nonNil(norm.AlertChannels),
		Metadata:                 norm.Metadata,
		CreatedAt:                now,
		UpdatedAt:                now,
	}
	metric := &model.Metric{
		ProbeID:                  probe.ID,
		HeartbeatStatus:          model.Operational,
		HeartbeatIntervalSeconds: interval,
		UpdatedAt:                now,
	}
	event := &model.Event{
		ID:      uuid.NewString(),
		ProbeID: probe.ID,
		Type:    model.EventRegistration,
		Payload: map[string]any{
			"slug":        probe.Slug,
			"name":        probe.Name,
			"requestedBy": actor,
		},
		CreatedAt: now,
	}

	err = s.store.WithinTx(ctx, func(tx store.Store) error {
		if err := tx.InsertProbe(ctx, probe); err != nil {
			return err
		}
		if err := tx.UpsertMetric(ctx, metric); err != nil {
			return err
		}
		return tx.InsertEvent(ctx, event)
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, &model.ConflictError{Field: "slug", Value: probe.Slug}
		}
		return nil, &model.OpError{Op: "register", ProbeID: probe.ID, Err: err}
	}

	s.logger.InfoContext(ctx, "probe registered", "probe_id", probe.ID, "slug", probe.Slug, "actor", actor.ID)
	s.metrics.RegistrationRecorded()
	s.events.Publish(ctx, events.Message{
		Kind:     events.KindHeartbeat,
		ProbeID:  probe.ID,
		Channels: probe.AlertChannels,
		Payload: map[string]any{
			"probeId": probe.ID,
			"slug":    probe.Slug,
			"status":  string(model.Operational),
			"reason":  "registered",
		},
	})

	hydrated, err := s.Get(ctx, probe.ID)
	if err != nil {
		// The registration is committed and announced; hand back what was written.
		s.logger.WarnContext(ctx, "reload registered probe", "probe_id", probe.ID, "error", err)
		probe.Metrics = metric
		probe.Schedules = []model.Schedule{}
		probe.Deployments = []model.Deployment{}
		return probe, nil
	}
	return hydrated, nil
}

// Resolve finds a probe by ID, then by slug, without hydration.
func (s *Service) Resolve(ctx context.Context, identifier string) (*model.Probe, error) {
	p, err := s.store.GetProbe(ctx, identifier)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, &model.OpError{Op: "resolve probe", ProbeID: identifier, Err: err}
	}

	p, err = s.store.GetProbeBySlug(ctx, identifier)
	if err == nil {
		return p, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, &model.NotFoundError{Kind: "probe", ID: identifier}
	}
	return nil, &model.OpError{Op: "resolve probe", ProbeID: identifier, Err: err}
}

// Get returns the probe with its metrics, schedules and newest deployments.
func (s *Service) Get(ctx context.Context, identifier string) (*model.Probe, error) {
	p, err := s.Resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}

	m, err := s.store.GetMetric(ctx, p.ID)
	switch {
	case err == nil:
		p.Metrics = m
	case !errors.Is(err, store.ErrNotFound):
		return nil, &model.OpError{Op: "get probe", ProbeID: p.ID, Err: err}
	}

	if p.Schedules, err = s.store.ListSchedules(ctx, p.ID); err != nil {
		return nil, &model.OpError{Op: "get probe", ProbeID: p.ID, Err: err}
	}
	if p.Deployments, err = s.store.ListDeployments(ctx, p.ID, hydratedDeployments); err != nil {
		return nil, &model.OpError{Op: "get probe", ProbeID: p.ID, Err: err}
	}
	return p, nil
}

// List returns one page of probes, newest first.
func (s *Service) List(ctx context.Context, filter ListFilter, page model.Page) (ListResult, error) {
	if page.Limit == 0 {
		page.Limit = s.cfg.Pagination.DefaultLimit
	}
	v := &model.ValidationError{}
	if page.Limit < 1 || page.Limit > s.cfg.Pagination.MaxLimit {
		v.Add("limit", "must be between 1 and %d", s.cfg.Pagination.MaxLimit)
	}
	if page.Offset < 0 {
		v.Add("offset", "must not be negative")
	}
	if filter.Status != "" && !filter.Status.Valid() {
		v.Add("status", "must be one of draft, active, deprecated")
	}
	if err := v.OrNil(); err != nil {
		return ListResult{}, err
	}

	probes, total, err := s.store.ListProbes(ctx, store.ProbeQuery{
		Status:       filter.Status,
		FrameworkIDs: filter.FrameworkIDs,
		Owner:        filter.Owner,
		Search:       filter.Search,
		Limit:        page.Limit,
		Offset:       page.Offset,
	})
	if err != nil {
		return ListResult{}, &model.OpError{Op: "list probes", Err: err}
	}

	return ListResult{
		Data: probes,
		Pagination: model.Pagination{
			Limit:   page.Limit,
			Offset:  page.Offset,
			Total:   total,
			HasMore: page.Offset+len(probes) < total,
		},
	}, nil
}

// Events returns the probe's event log, newest first.
func (s *Service) Events(ctx context.Context, identifier string, limit int) ([]model.Event, error) {
	if limit == 0 {
		limit = defaultEventLimit
	}
	if limit < 1 || limit > maxEventLimit {
		return nil, model.Invalid("limit", "must be between 1 and %d", maxEventLimit)
	}

	p, err := s.Resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}
	evs, err := s.store.ListEvents(ctx, p.ID, limit)
	if err != nil {
		return nil, &model.OpError{Op: "list events", ProbeID: p.ID, Err: err}
	}
	return evs, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
