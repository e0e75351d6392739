// Package deploy rolls out probe versions behind a binary self-test gate.
//
// A launch synthesizes a manifest from the probe's merged overlays, runs the
// SelfTester against it and records the attempt as completed or failed.
// Only completed launches move the probe's LastDeployedAt.
package deploy

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

const listLimit = 50

// Resolver finds a probe by ID or slug.
type Resolver interface {
	Resolve(ctx context.Context, identifier string) (*model.Probe, error)
}

// LaunchInput is a deployment request.
type LaunchInput struct {
	Version       string         `json:"version"`
	Environment   string         `json:"environment"`
	CanaryPercent *int           `json:"canaryPercent,omitempty"`
	OverlayID     string         `json:"overlayId,omitempty"`
	Summary       string         `json:"summary,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Orchestrator launches and lists deployments.
type Orchestrator struct {
	store    store.Store
	probes   Resolver
	events   events.Publisher
	tester   SelfTester
	defaults config.Defaults
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	now      func() time.Time
	locks    keyedMutex
}

// New creates an Orchestrator. A nil tester uses SyntheticSelfTest against
// the configured platform SDK minimum. logger and metrics may be nil.
func New(st store.Store, probes Resolver, pub events.Publisher, tester SelfTester, cfg config.Config, logger *slog.Logger, metrics *telemetry.Metrics) *Orchestrator {
	if pub == nil {
		pub = events.Discard
	}
	if tester == nil {
		tester = SyntheticSelfTest{PlatformSDKMin: cfg.SDK.MinVersion}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{
		store:    st,
		probes:   probes,
		events:   pub,
		tester:   tester,
		defaults: cfg.Defaults,
		logger:   logger,
		metrics:  metrics,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Launch runs one rollout attempt. A failed self-test is not an error: the
// returned deployment carries status failed and the diagnostics.
func (o *Orchestrator) Launch(ctx context.Context, identifier string, in LaunchInput, actor model.Actor) (*model.Deployment, error) {
	p, err := o.probes.Resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}

	in, err = validateLaunch(in, p)
	if err != nil {
		return nil, err
	}

	unlock := o.locks.Lock(p.ID)
	defer unlock()

	started := o.now()
	manifest := BuildManifest(p, in, o.defaults)

	testStart := time.Now()
	result := o.tester.Run(ctx, manifest)
	elapsed := time.Since(testStart)
	if result.DurationMs == 0 {
		result.DurationMs = elapsed.Milliseconds()
	}
	o.metrics.SelfTestObserved(elapsed)

	finished := o.now()
	d := &model.Deployment{
		ID:            uuid.NewString(),
		ProbeID:       p.ID,
		Version:       in.Version,
		Environment:   in.Environment,
		CanaryPercent: in.CanaryPercent,
		OverlayID:     in.OverlayID,
		Summary:       in.Summary,
		Manifest:      manifest,
		SelfTest:      result,
		Metadata:      in.Metadata,
		InitiatedBy:   actor,
		StartedAt:     started,
	}
	outcome := "success"
	if result.Passed {
		d.Status = model.DeploymentCompleted
		d.CompletedAt = &finished
	} else {
		d.Status = model.DeploymentFailed
		d.RolledBackAt = &finished
		outcome = "failure"
	}

	payload := map[string]any{
		"probeId":      p.ID,
		"deploymentId": d.ID,
		"version":      d.Version,
		"environment":  d.Environment,
		"status":       string(d.Status),
		"outcome":      outcome,
		"topic":        manifest.DeploymentTopic,
	}

	err = o.store.WithinTx(ctx, func(tx store.Store) error {
		if err := tx.InsertDeployment(ctx, d); err != nil {
			return err
		}
		if d.CompletedAt != nil {
			if err := tx.SetLastDeployedAt(ctx, p.ID, *d.CompletedAt); err != nil {
				return err
			}
		}
		return tx.InsertEvent(ctx, &model.Event{
			ID:        uuid.NewString(),
			ProbeID:   p.ID,
			Type:      model.EventDeployment,
			Payload:   payload,
			CreatedAt: finished,
		})
	})
	if err != nil {
		return nil, &model.OpError{Op: "launch deployment", ProbeID: p.ID, Err: err}
	}

	o.metrics.DeploymentRecorded(string(d.Status))
	if d.Status == model.DeploymentFailed {
		o.logger.WarnContext(ctx, "deployment rolled back", "probe_id", p.ID, "version", d.Version, "environment", d.Environment, "failed_checks", failedChecks(result))
	} else {
		o.logger.InfoContext(ctx, "deployment completed", "probe_id", p.ID, "version", d.Version, "environment", d.Environment)
	}
	o.events.Publish(ctx, events.Message{
		Kind:     events.KindDeployment,
		ProbeID:  p.ID,
		Topic:    manifest.DeploymentTopic,
		Channels: p.AlertChannels,
		Payload:  payload,
	})

	return d, nil
}

// List returns the probe's newest deployments, newest first.
func (o *Orchestrator) List(ctx context.Context, identifier string) ([]model.Deployment, error) {
	p, err := o.probes.Resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}
	out, err := o.store.ListDeployments(ctx, p.ID, listLimit)
	if err != nil {
		return nil, &model.OpError{Op: "list deployments", ProbeID: p.ID, Err: err}
	}
	return out, nil
}

func validateLaunch(in LaunchInput, p *model.Probe) (LaunchInput, error) {
	in.Version = strings.TrimSpace(in.Version)
	in.Environment = strings.TrimSpace(in.Environment)
	in.OverlayID = strings.TrimSpace(in.OverlayID)
	in.Summary = strings.TrimSpace(in.Summary)

	v := &model.ValidationError{}
	if in.Version == "" {
		v.Add("version", "is required")
	}
	if len(in.Environment) < 2 {
		v.Add("environment", "must be at least 2 characters")
	}
	if in.CanaryPercent != nil && (*in.CanaryPercent < 0 || *in.CanaryPercent > 100) {
		v.Add("canaryPercent", "must be between 0 and 100")
	}
	if in.OverlayID != "" {
		if _, ok := p.EnvironmentOverlays[in.OverlayID]; !ok {
			v.Add("overlayId", "unknown overlay %q", in.OverlayID)
		}
	}
	return in, v.OrNil()
}

func failedChecks(r model.SelfTestResult) []string {
	var out []string
	for _, d := range r.Diagnostics {
		if !d.Passed {
			out = append(out, d.Check)
		}
	}
	return out
}
