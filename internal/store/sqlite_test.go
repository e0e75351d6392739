package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ppiankov/probeplane/internal/model"
)

func openTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "probeplane.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testProbe(id, slug string, created time.Time) *model.Probe {
	return &model.Probe{
		ID:                       id,
		Slug:                     slug,
		Name:                     "Access Reviewer " + id,
		Description:              "collects quarterly access reviews",
		OwnerEmail:               "owner@co.com",
		OwnerTeam:                "GRC Platform",
		Status:                   model.ProbeDraft,
		FrameworkBindings:        []string{"soc2", "iso27001"},
		Tags:                     []string{"access"},
		EnvironmentOverlays:      map[string]map[string]any{"prod": {"region": "eu"}},
		SDKVersionMin:            "1.0.0",
		SDKVersionTarget:         "1.4.0",
		HeartbeatIntervalSeconds: 300,
		AlertChannels:            []string{"oncall"},
		Metadata:                 map[string]any{"source": "test"},
		CreatedAt:                created,
		UpdatedAt:                created,
	}
}

func TestProbeRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 1, 15, 10, 0, 0, 123456789, time.UTC)

	if err := s.InsertProbe(ctx, testProbe("p-1", "access-reviewer-abc123", now)); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetProbe(ctx, "p-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Slug != "access-reviewer-abc123" || got.Status != model.ProbeDraft {
		t.Errorf("unexpected probe %+v", got)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("expected created %v, got %v", now, got.CreatedAt)
	}
	if len(got.FrameworkBindings) != 2 || got.EnvironmentOverlays["prod"]["region"] != "eu" {
		t.Errorf("json columns did not round trip: %+v", got)
	}
	if got.LastDeployedAt != nil {
		t.Errorf("expected nil last deployed, got %v", got.LastDeployedAt)
	}

	bySlug, err := s.GetProbeBySlug(ctx, "access-reviewer-abc123")
	if err != nil || bySlug.ID != "p-1" {
		t.Fatalf("lookup by slug failed: %v %+v", err, bySlug)
	}
}

func TestGetProbeNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetProbe(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDuplicateSlugIsConflict(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := s.InsertProbe(ctx, testProbe("p-1", "same-slug", now)); err != nil {
		t.Fatal(err)
	}
	err := s.InsertProbe(ctx, testProbe("p-2", "same-slug", now))
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestListProbesFiltersAndPages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"p-1", "p-2", "p-3"} {
		p := testProbe(id, "slug-"+id, base.Add(time.Duration(i)*time.Minute))
		if id == "p-2" {
			p.FrameworkBindings = []string{"hipaa"}
			p.OwnerTeam = "Security"
			p.Name = "Encryption Auditor"
			p.Status = model.ProbeActive
		}
		if err := s.InsertProbe(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	probes, total, err := s.ListProbes(ctx, ProbeQuery{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(probes) != 2 {
		t.Fatalf("expected 2 of 3, got %d of %d", len(probes), total)
	}
	if probes[0].ID != "p-3" {
		t.Errorf("expected newest first, got %s", probes[0].ID)
	}

	tests := []struct {
		name  string
		query ProbeQuery
		want  int
	}{
		{"status", ProbeQuery{Status: model.ProbeActive}, 1},
		{"framework any", ProbeQuery{FrameworkIDs: []string{"hipaa", "nist"}}, 1},
		{"framework shared", ProbeQuery{FrameworkIDs: []string{"soc2"}}, 2},
		{"framework prefix is not a match", ProbeQuery{FrameworkIDs: []string{"soc"}}, 0},
		{"owner team case-insensitive", ProbeQuery{Owner: "security"}, 1},
		{"owner email", ProbeQuery{Owner: "OWNER@"}, 3},
		{"search name", ProbeQuery{Search: "encryption"}, 1},
		{"search slug", ProbeQuery{Search: "slug-p-1"}, 1},
		{"search wildcard is literal", ProbeQuery{Search: "%"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.query.Limit = 10
			_, total, err := s.ListProbes(ctx, tt.query)
			if err != nil {
				t.Fatal(err)
			}
			if total != tt.want {
				t.Errorf("expected %d, got %d", tt.want, total)
			}
		})
	}
}

func TestListProbesFoldsNonASCII(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p := testProbe("p-1", "slug-1", time.Now().UTC())
	p.OwnerTeam = "ÉQUIPE Sécurité"
	p.Name = "Überwachung Zugriff"
	if err := s.InsertProbe(ctx, p); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		query ProbeQuery
	}{
		{"owner lower", ProbeQuery{Owner: "équipe sécurité"}},
		{"owner mixed", ProbeQuery{Owner: "Équipe"}},
		{"search lower", ProbeQuery{Search: "überwachung"}},
		{"search upper", ProbeQuery{Search: "ÜBERWACHUNG"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.query.Limit = 10
			_, total, err := s.ListProbes(ctx, tt.query)
			if err != nil {
				t.Fatal(err)
			}
			if total != 1 {
				t.Errorf("expected 1, got %d", total)
			}
		})
	}
}

func TestWithinTxRollsBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(tx Store) error {
		if err := tx.InsertProbe(ctx, testProbe("p-1", "slug-1", now)); err != nil {
			return err
		}
		if err := tx.UpsertMetric(ctx, &model.Metric{ProbeID: "p-1", HeartbeatStatus: model.Operational, HeartbeatIntervalSeconds: 60, UpdatedAt: now}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if _, err := s.GetProbe(ctx, "p-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected probe to be rolled back, got %v", err)
	}
	if _, err := s.GetMetric(ctx, "p-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected metric to be rolled back, got %v", err)
	}
}

func TestMetricUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	s.InsertProbe(ctx, testProbe("p-1", "slug-1", now))

	m := &model.Metric{ProbeID: "p-1", HeartbeatStatus: model.Operational, HeartbeatIntervalSeconds: 60, UpdatedAt: now}
	if err := s.UpsertMetric(ctx, m); err != nil {
		t.Fatal(err)
	}

	m.HeartbeatStatus = model.Outage
	m.FailureCount24h = 2
	m.LatencyP95Ms = model.Ptr(850)
	m.ErrorRatePercent = model.Ptr(12.5)
	m.LastErrorCode = model.Ptr("E1")
	m.LastHeartbeatAt = &now
	if err := s.UpsertMetric(ctx, m); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetMetric(ctx, "p-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.HeartbeatStatus != model.Outage || got.FailureCount24h != 2 {
		t.Errorf("unexpected metric %+v", got)
	}
	if got.LatencyP95Ms == nil || *got.LatencyP95Ms != 850 || got.LatencyP99Ms != nil {
		t.Errorf("unexpected latency fields %v %v", got.LatencyP95Ms, got.LatencyP99Ms)
	}
	if got.LastErrorCode == nil || *got.LastErrorCode != "E1" {
		t.Errorf("unexpected error code %v", got.LastErrorCode)
	}
	if got.ErrorRatePercent == nil || *got.ErrorRatePercent != 12.5 {
		t.Errorf("unexpected error rate %v", got.ErrorRatePercent)
	}
}

func TestTouchMetricKeepsCounters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	s.InsertProbe(ctx, testProbe("p-1", "slug-1", now))
	s.InsertProbe(ctx, testProbe("p-2", "slug-2", now))

	m := &model.Metric{
		ProbeID: "p-1", HeartbeatStatus: model.Outage, HeartbeatIntervalSeconds: 60,
		FailureCount24h: 3, LatencyP95Ms: model.Ptr(900), UpdatedAt: now,
	}
	if err := s.UpsertMetric(ctx, m); err != nil {
		t.Fatal(err)
	}

	later := now.Add(time.Minute)
	if err := s.TouchMetric(ctx, "p-1", 60, model.Operational, later); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetMetric(ctx, "p-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.HeartbeatStatus != model.Operational || got.FailureCount24h != 3 {
		t.Errorf("expected operational with 3 failures, got %+v", got)
	}
	if got.LatencyP95Ms == nil || *got.LatencyP95Ms != 900 {
		t.Errorf("expected latency kept, got %v", got.LatencyP95Ms)
	}
	if got.LastHeartbeatAt == nil || !got.LastHeartbeatAt.Equal(later) {
		t.Errorf("expected last heartbeat %s, got %v", later, got.LastHeartbeatAt)
	}

	if err := s.TouchMetric(ctx, "p-2", 45, model.Operational, later); err != nil {
		t.Fatal(err)
	}
	created, err := s.GetMetric(ctx, "p-2")
	if err != nil {
		t.Fatal(err)
	}
	if created.HeartbeatIntervalSeconds != 45 || created.FailureCount24h != 0 {
		t.Errorf("expected new row with interval 45, got %+v", created)
	}
}

func TestEventsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	s.InsertProbe(ctx, testProbe("p-1", "slug-1", now))

	for i, typ := range []model.EventType{model.EventRegistration, model.EventHeartbeat, model.EventFailure} {
		e := &model.Event{ID: string(typ), ProbeID: "p-1", Type: typ, Payload: map[string]any{"i": i}, CreatedAt: now}
		if err := s.InsertEvent(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	events, err := s.ListEvents(ctx, "p-1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != model.EventFailure || events[1].Type != model.EventHeartbeat {
		t.Errorf("expected insertion order to break timestamp ties, got %s, %s", events[0].Type, events[1].Type)
	}
}

func TestDeploymentsAndLastDeployed(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	s.InsertProbe(ctx, testProbe("p-1", "slug-1", now))

	d := &model.Deployment{
		ID:           "d-1",
		ProbeID:      "p-1",
		Version:      "1.2.0",
		Environment:  "prod",
		Status:       model.DeploymentFailed,
		Manifest:     model.Manifest{ProbeID: "p-1", Version: "1.2.0", Config: map[string]any{"a": 1.0}},
		SelfTest:     model.SelfTestResult{Passed: false, Diagnostics: []model.Diagnostic{{Check: "version", Passed: false}}},
		InitiatedBy:  model.Actor{ID: "u-1", Email: "ops@co.com"},
		StartedAt:    now,
		RolledBackAt: &now,
	}
	if err := s.InsertDeployment(ctx, d); err != nil {
		t.Fatal(err)
	}

	list, err := s.ListDeployments(ctx, "p-1", 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 deployment, got %d", len(list))
	}
	got := list[0]
	if got.CompletedAt != nil || got.RolledBackAt == nil {
		t.Errorf("expected only rolledBackAt set, got %+v", got)
	}
	if got.InitiatedBy.Email != "ops@co.com" || len(got.SelfTest.Diagnostics) != 1 {
		t.Errorf("unexpected deployment %+v", got)
	}

	if err := s.SetLastDeployedAt(ctx, "p-1", now); err != nil {
		t.Fatal(err)
	}
	p, _ := s.GetProbe(ctx, "p-1")
	if p.LastDeployedAt == nil || !p.LastDeployedAt.Equal(now) {
		t.Errorf("expected last deployed %v, got %v", now, p.LastDeployedAt)
	}
	if err := s.SetLastDeployedAt(ctx, "missing", now); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown probe, got %v", err)
	}
}

func TestSchedulesMarkRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	s.InsertProbe(ctx, testProbe("p-1", "slug-1", now))

	for i, status := range []model.ScheduleStatus{model.ScheduleActive, model.SchedulePaused} {
		sc := &model.Schedule{
			ID:         []string{"s-1", "s-2"}[i],
			ProbeID:    "p-1",
			Type:       model.ScheduleCron,
			Expression: "0 * * * *",
			Priority:   model.PriorityNormal,
			Status:     status,
			Controls:   []string{"AC-2"},
			NextRunAt:  now.Add(time.Hour),
			CreatedAt:  now.Add(time.Duration(i) * time.Second),
		}
		if err := s.InsertSchedule(ctx, sc); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.MarkSchedulesRun(ctx, "p-1", now, now.Add(5*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 active schedule updated, got %d", n)
	}

	list, err := s.ListSchedules(ctx, "p-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "s-1" {
		t.Fatalf("expected creation order, got %+v", list)
	}
	if list[0].LastRunAt == nil || !list[0].NextRunAt.Equal(now.Add(5*time.Minute)) {
		t.Errorf("expected active schedule stamped, got %+v", list[0])
	}
	if list[1].LastRunAt != nil {
		t.Errorf("expected paused schedule untouched, got %+v", list[1])
	}
}
