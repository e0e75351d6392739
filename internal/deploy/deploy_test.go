package deploy

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ppiankov/probeplane/internal/config"
	"github.com/ppiankov/probeplane/internal/events"
	"github.com/ppiankov/probeplane/internal/model"
	"github.com/ppiankov/probeplane/internal/registry"
	"github.com/ppiankov/probeplane/internal/store"
	"github.com/ppiankov/probeplane/internal/store/storetest"
)

var actor = model.Actor{ID: "u-1", Email: "release@co.com"}

var failing = SelfTestFunc(func(context.Context, model.Manifest) model.SelfTestResult {
	return model.SelfTestResult{
		Passed:      false,
		Diagnostics: []model.Diagnostic{{Check: "forced", Passed: false, Detail: "forced failure"}},
	}
})

type fixture struct {
	reg   *registry.Service
	probe *model.Probe
	rec   *events.Recorder
	cfg   config.Config
}

func setup(t *testing.T, st store.Store, overlays map[string]map[string]any) fixture {
	t.Helper()
	cfg := *config.DefaultConfig()
	reg := registry.New(st, nil, cfg, nil, nil)
	p, err := reg.Register(context.Background(), registry.RegisterInput{
		Name:                "Release Probe",
		OwnerEmail:          "owner@co.com",
		FrameworkBindings:   []string{"soc2", "iso27001"},
		EnvironmentOverlays: overlays,
	}, actor)
	if err != nil {
		t.Fatal(err)
	}
	return fixture{reg: reg, probe: p, rec: &events.Recorder{}, cfg: cfg}
}

func TestLaunchFailedSelfTestRollsBack(t *testing.T) {
	st := storetest.Open(t)
	f := setup(t, st, nil)
	o := New(st, f.reg, f.rec, failing, f.cfg, nil, nil)
	ctx := context.Background()

	d, err := o.Launch(ctx, f.probe.ID, LaunchInput{Version: "1.2.0", Environment: "prod"}, actor)
	if err != nil {
		t.Fatalf("expected nil error on failed self-test, got %v", err)
	}
	if d.Status != model.DeploymentFailed {
		t.Errorf("expected failed, got %s", d.Status)
	}
	if d.CompletedAt != nil || d.RolledBackAt == nil {
		t.Errorf("expected only rolledBackAt set, got completed=%v rolledBack=%v", d.CompletedAt, d.RolledBackAt)
	}

	p, err := f.reg.Get(ctx, f.probe.ID)
	if err != nil {
		t.Fatal(err)
	}
	if p.LastDeployedAt != nil {
		t.Errorf("expected lastDeployedAt unchanged, got %v", p.LastDeployedAt)
	}

	msgs := f.rec.Messages()
	if len(msgs) != 1 || msgs[0].Kind != events.KindDeployment {
		t.Fatalf("expected one deployment event, got %v", f.rec.Kinds())
	}
	if msgs[0].Payload["outcome"] != "failure" || msgs[0].Status() != "failed" {
		t.Errorf("unexpected payload %v", msgs[0].Payload)
	}
}

func TestLaunchPassingSelfTestCommits(t *testing.T) {
	st := storetest.Open(t)
	f := setup(t, st, nil)
	o := New(st, f.reg, f.rec, nil, f.cfg, nil, nil)
	ctx := context.Background()

	d, err := o.Launch(ctx, f.probe.Slug, LaunchInput{Version: "1.2.0", Environment: "prod"}, actor)
	if err != nil {
		t.Fatal(err)
	}
	if d.Status != model.DeploymentCompleted {
		t.Fatalf("expected completed, got %s (diagnostics %+v)", d.Status, d.SelfTest.Diagnostics)
	}
	if d.CompletedAt == nil || d.RolledBackAt != nil {
		t.Errorf("expected only completedAt set, got completed=%v rolledBack=%v", d.CompletedAt, d.RolledBackAt)
	}
	if len(d.SelfTest.Diagnostics) != 5 {
		t.Errorf("expected 5 diagnostics, got %d", len(d.SelfTest.Diagnostics))
	}

	p, err := f.reg.Get(ctx, f.probe.ID)
	if err != nil {
		t.Fatal(err)
	}
	if p.LastDeployedAt == nil || !p.LastDeployedAt.Equal(*d.CompletedAt) {
		t.Errorf("expected lastDeployedAt %v, got %v", d.CompletedAt, p.LastDeployedAt)
	}
	if len(p.Deployments) != 1 || p.Deployments[0].ID != d.ID {
		t.Errorf("expected hydrated deployment, got %+v", p.Deployments)
	}

	msg := f.rec.Messages()[0]
	if msg.Topic != "probe.deployments" || msg.Payload["outcome"] != "success" {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestLaunchStatusMatchesTimestamps(t *testing.T) {
	st := storetest.Open(t)
	f := setup(t, st, nil)
	ctx := context.Background()

	for _, tester := range []SelfTester{nil, failing} {
		o := New(st, f.reg, nil, tester, f.cfg, nil, nil)
		d, err := o.Launch(ctx, f.probe.ID, LaunchInput{Version: "2.0.0", Environment: "staging"}, actor)
		if err != nil {
			t.Fatal(err)
		}
		switch d.Status {
		case model.DeploymentCompleted:
			if d.CompletedAt == nil || d.RolledBackAt != nil {
				t.Errorf("completed deployment has inconsistent timestamps")
			}
		case model.DeploymentFailed:
			if d.CompletedAt != nil || d.RolledBackAt == nil {
				t.Errorf("failed deployment has inconsistent timestamps")
			}
		default:
			t.Errorf("unexpected status %s", d.Status)
		}
	}

	o := New(st, f.reg, nil, nil, f.cfg, nil, nil)
	list, err := o.List(ctx, f.probe.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 deployments, got %d", len(list))
	}
	if list[0].Status != model.DeploymentFailed {
		t.Errorf("expected newest first, got %s", list[0].Status)
	}
}

func TestLaunchValidation(t *testing.T) {
	st := storetest.Open(t)
	f := setup(t, st, map[string]map[string]any{"prod": {"region": "eu"}})
	o := New(st, f.reg, f.rec, nil, f.cfg, nil, nil)

	tests := []struct {
		name  string
		in    LaunchInput
		field string
	}{
		{"missing version", LaunchInput{Environment: "prod"}, "version"},
		{"short environment", LaunchInput{Version: "1.0.0", Environment: "p"}, "environment"},
		{"canary above 100", LaunchInput{Version: "1.0.0", Environment: "prod", CanaryPercent: model.Ptr(101)}, "canaryPercent"},
		{"negative canary", LaunchInput{Version: "1.0.0", Environment: "prod", CanaryPercent: model.Ptr(-1)}, "canaryPercent"},
		{"unknown overlay", LaunchInput{Version: "1.0.0", Environment: "prod", OverlayID: "qa"}, "overlayId"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := o.Launch(context.Background(), f.probe.ID, tt.in, actor)
			var v *model.ValidationError
			if !errors.As(err, &v) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if v.Fields[0].Field != tt.field {
				t.Errorf("expected field %s, got %+v", tt.field, v.Fields)
			}
		})
	}
	if len(f.rec.Messages()) != 0 {
		t.Errorf("expected no events for rejected launches")
	}
}

func TestLaunchUnknownProbe(t *testing.T) {
	st := storetest.Open(t)
	f := setup(t, st, nil)
	o := New(st, f.reg, nil, nil, f.cfg, nil, nil)

	if _, err := o.Launch(context.Background(), "nope", LaunchInput{Version: "1", Environment: "prod"}, actor); !model.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := o.List(context.Background(), "nope"); !model.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestLaunchRollsBackOnStoreFailure(t *testing.T) {
	base := storetest.Open(t)
	faulty := &storetest.Faulty{Store: base}
	f := setup(t, faulty, nil)
	o := New(faulty, f.reg, f.rec, nil, f.cfg, nil, nil)
	ctx := context.Background()

	faulty.InsertEventErr = errors.New("disk full")
	if _, err := o.Launch(ctx, f.probe.ID, LaunchInput{Version: "1.0.0", Environment: "prod"}, actor); err == nil {
		t.Fatal("expected error")
	}

	deps, err := base.ListDeployments(ctx, f.probe.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(deps) != 0 {
		t.Errorf("expected deployment insert rolled back, got %d rows", len(deps))
	}
	p, err := base.GetProbe(ctx, f.probe.ID)
	if err != nil {
		t.Fatal(err)
	}
	if p.LastDeployedAt != nil {
		t.Error("expected lastDeployedAt rolled back")
	}
	if len(f.rec.Messages()) != 0 {
		t.Error("expected nothing published")
	}
}

func TestLaunchUsesOverlayConfig(t *testing.T) {
	st := storetest.Open(t)
	f := setup(t, st, map[string]map[string]any{
		"default": {"retries": 1.0},
		"prod":    {"deploymentTopic": "prod.deployments", "retries": 5.0},
		"canary":  {"heartbeatIntervalSeconds": 30.0},
	})
	o := New(st, f.reg, f.rec, nil, f.cfg, nil, nil)
	ctx := context.Background()

	d, err := o.Launch(ctx, f.probe.ID, LaunchInput{Version: "1.0.0", Environment: "prod"}, actor)
	if err != nil {
		t.Fatal(err)
	}
	if d.Manifest.DeploymentTopic != "prod.deployments" || d.Manifest.Config["retries"] != 5.0 {
		t.Errorf("expected prod overlay, got %+v", d.Manifest)
	}

	d, err = o.Launch(ctx, f.probe.ID, LaunchInput{Version: "1.0.0", Environment: "prod", OverlayID: "canary"}, actor)
	if err != nil {
		t.Fatal(err)
	}
	if d.Manifest.HeartbeatIntervalSeconds != 30 || d.Manifest.OverlayID != "canary" {
		t.Errorf("expected canary overlay, got %+v", d.Manifest)
	}

	d, err = o.Launch(ctx, f.probe.ID, LaunchInput{Version: "1.0.0", Environment: "dev"}, actor)
	if err != nil {
		t.Fatal(err)
	}
	if d.Manifest.Config["retries"] != 1.0 {
		t.Errorf("expected default overlay fallback, got %v", d.Manifest.Config)
	}
}

func TestLaunchKeepsExplicitIntervalWithoutOverlay(t *testing.T) {
	st := storetest.Open(t)
	cfg := *config.DefaultConfig()
	reg := registry.New(st, nil, cfg, nil, nil)
	ctx := context.Background()

	tests := []struct {
		name     string
		overlays map[string]map[string]any
	}{
		{"no overlays", nil},
		{"other environment only", map[string]map[string]any{"staging": {"region": "eu"}}},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := reg.Register(ctx, registry.RegisterInput{
				Name:                     "Interval Check " + string(rune('A'+i)),
				OwnerEmail:               "owner@co.com",
				HeartbeatIntervalSeconds: model.Ptr(7),
				EnvironmentOverlays:      tt.overlays,
			}, actor)
			if err != nil {
				t.Fatal(err)
			}
			o := New(st, reg, nil, nil, cfg, nil, nil)
			d, err := o.Launch(ctx, p.ID, LaunchInput{Version: "1.0.0", Environment: "prod"}, actor)
			if err != nil {
				t.Fatal(err)
			}
			if d.Manifest.HeartbeatIntervalSeconds != 7 {
				t.Errorf("expected manifest interval 7, got %d", d.Manifest.HeartbeatIntervalSeconds)
			}
			if n, ok := intValue(d.Manifest.Config["heartbeatIntervalSeconds"]); !ok || n != 7 {
				t.Errorf("expected config interval 7, got %v", d.Manifest.Config["heartbeatIntervalSeconds"])
			}
			if d.Manifest.Config["deploymentTopic"] != cfg.Defaults.DeploymentTopic {
				t.Errorf("expected global topic, got %v", d.Manifest.Config["deploymentTopic"])
			}
		})
	}
}

func TestLaunchSerializesPerProbe(t *testing.T) {
	st := storetest.Open(t)
	f := setup(t, st, nil)
	o := New(st, f.reg, nil, nil, f.cfg, nil, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.Launch(context.Background(), f.probe.ID, LaunchInput{Version: "1.0.0", Environment: "prod"}, actor)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Error(err)
		}
	}

	list, err := o.List(context.Background(), f.probe.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 4 {
		t.Fatalf("expected 4 deployments, got %d", len(list))
	}
	p, _ := f.reg.Get(context.Background(), f.probe.ID)
	if p.LastDeployedAt == nil || !p.LastDeployedAt.Equal(*list[0].CompletedAt) {
		t.Errorf("expected lastDeployedAt to match newest deployment")
	}
	if len(o.locks.locks) != 0 {
		t.Errorf("expected lock table to be empty, got %d", len(o.locks.locks))
	}
}
