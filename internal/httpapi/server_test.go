package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ppiankov/probeplane/internal/access"
	"github.com/ppiankov/probeplane/internal/config"
	"github.com/ppiankov/probeplane/internal/deploy"
	"github.com/ppiankov/probeplane/internal/events"
	"github.com/ppiankov/probeplane/internal/health"
	"github.com/ppiankov/probeplane/internal/model"
	"github.com/ppiankov/probeplane/internal/registry"
	"github.com/ppiankov/probeplane/internal/schedule"
	"github.com/ppiankov/probeplane/internal/store/storetest"
	"github.com/ppiankov/probeplane/internal/telemetry"
)

type testEnv struct {
	srv *httptest.Server
	hub *Hub
	rec *events.Recorder
}

func newTestEnv(t *testing.T, authz Authorizer) *testEnv {
	t.Helper()
	st := storetest.Open(t)
	cfg := *config.DefaultConfig()
	rec := &events.Recorder{}
	reg := prometheus.NewRegistry()
	metrics := telemetry.New(reg)

	probes := registry.New(st, rec, cfg, nil, metrics)
	hub := NewHub(nil)
	s := New(Options{
		Registry:   probes,
		Deploy:     deploy.New(st, probes, rec, nil, cfg, nil, metrics),
		Scheduler:  schedule.New(st, probes, rec, cfg.Scheduler, nil, metrics),
		Health:     health.New(st, probes, rec, nil, metrics),
		Authorizer: authz,
		Hub:        hub,
		Gatherer:   reg,
	})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return &testEnv{srv: srv, hub: hub, rec: rec}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (e *testEnv) register(t *testing.T, name string) map[string]any {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/v1/probes", map[string]any{
		"name":              name,
		"ownerEmail":        "owner@co.com",
		"frameworkBindings": []string{"soc2"},
	}, map[string]string{"X-Actor-Id": "u-1"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %v", resp.StatusCode, body)
	}
	return body
}

func TestRegisterAndGet(t *testing.T) {
	env := newTestEnv(t, nil)
	p := env.register(t, "SOC2 Access Reviewer")

	slug, _ := p["slug"].(string)
	if !strings.HasPrefix(slug, "soc2-access-reviewer-") {
		t.Errorf("unexpected slug %q", slug)
	}
	if p["status"] != "draft" {
		t.Errorf("expected draft, got %v", p["status"])
	}

	resp, got := env.do(t, http.MethodGet, "/v1/probes/"+slug, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got["id"] != p["id"] {
		t.Errorf("expected lookup by slug to return same probe")
	}
	metrics, _ := got["metrics"].(map[string]any)
	if metrics["status"] != "operational" {
		t.Errorf("expected operational metrics, got %v", metrics)
	}
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, http.MethodPost, "/v1/probes", map[string]any{"name": "x"}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
	fields, _ := body["fields"].([]any)
	if len(fields) < 2 {
		t.Errorf("expected per-field errors, got %v", body)
	}

	resp, _ = env.do(t, http.MethodGet, "/v1/probes/missing", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodGet, "/v1/probes?limit=500", nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for limit above max, got %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodGet, "/v1/probes?limit=abc", nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for non-numeric limit, got %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodPost, "/v1/probes", map[string]any{"unknown": true}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown field, got %d", resp.StatusCode)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{model.Invalid("x", "bad"), http.StatusBadRequest},
		{&model.NotFoundError{Kind: "probe", ID: "p"}, http.StatusNotFound},
		{&model.ConflictError{Field: "slug", Value: "s"}, http.StatusConflict},
		{access.ErrDenied, http.StatusForbidden},
		{&model.OpError{Op: "register", Err: context.Canceled}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, expected %d", tt.err, got, tt.want)
		}
	}
}

func TestWriteJSONEncodeFailure(t *testing.T) {
	var logs bytes.Buffer
	s := New(Options{Logger: slog.New(slog.NewTextHandler(&logs, nil))})
	req := httptest.NewRequest(http.MethodGet, "/v1/probes", nil)

	w := httptest.NewRecorder()
	s.writeJSON(w, req, http.StatusOK, map[string]any{"stream": make(chan int)})

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected a single JSON body, got %q", w.Body.String())
	}
	if body["error"] != "internal error" {
		t.Errorf("expected internal error, got %v", body)
	}
	if !strings.Contains(logs.String(), "encode response") {
		t.Errorf("expected encode failure logged, got %q", logs.String())
	}

	w = httptest.NewRecorder()
	s.writeJSON(w, req, http.StatusCreated, map[string]string{"status": "ok"})
	if w.Code != http.StatusCreated || w.Header().Get("Content-Type") != "application/json" {
		t.Errorf("expected 201 JSON, got %d %q", w.Code, w.Header().Get("Content-Type"))
	}
}

func TestListPagination(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, name := range []string{"Alpha Probe", "Beta Probe", "Gamma Probe"} {
		env.register(t, name)
	}

	resp, body := env.do(t, http.MethodGet, "/v1/probes?limit=2&offset=0", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	data, _ := body["data"].([]any)
	page, _ := body["pagination"].(map[string]any)
	if len(data) != 2 || page["total"] != 3.0 || page["hasMore"] != true {
		t.Errorf("unexpected page %v", page)
	}

	_, body = env.do(t, http.MethodGet, "/v1/probes?search=beta", nil, nil)
	data, _ = body["data"].([]any)
	if len(data) != 1 {
		t.Errorf("expected 1 search result, got %d", len(data))
	}
}

func TestLifecycleEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.register(t, "Lifecycle Probe")["id"].(string)
	base := "/v1/probes/" + id

	resp, d := env.do(t, http.MethodPost, base+"/deployments", map[string]any{"version": "1.2.0", "environment": "prod"}, nil)
	if resp.StatusCode != http.StatusCreated || d["status"] != "completed" {
		t.Fatalf("expected completed deployment, got %d %v", resp.StatusCode, d["status"])
	}

	resp, sc := env.do(t, http.MethodPost, base+"/schedules", map[string]any{"type": "cron"}, nil)
	if resp.StatusCode != http.StatusCreated || sc["expression"] != "0 * * * *" {
		t.Fatalf("expected default cron schedule, got %d %v", resp.StatusCode, sc)
	}

	resp, receipt := env.do(t, http.MethodPost, base+"/runs", map[string]any{"trigger": "manual"}, nil)
	if resp.StatusCode != http.StatusAccepted || receipt["status"] != "accepted" {
		t.Fatalf("expected accepted run, got %d %v", resp.StatusCode, receipt)
	}

	resp, m := env.do(t, http.MethodPost, base+"/heartbeat", map[string]any{"status": "outage", "errorCode": "E1"}, nil)
	if resp.StatusCode != http.StatusOK || m["failureCount24h"] != 1.0 {
		t.Fatalf("expected outage recorded, got %d %v", resp.StatusCode, m)
	}

	resp, m = env.do(t, http.MethodGet, base+"/metrics", nil, nil)
	if resp.StatusCode != http.StatusOK || m["status"] != "outage" {
		t.Errorf("expected outage metrics, got %v", m)
	}

	for _, path := range []string{"/deployments", "/schedules", "/events"} {
		resp, body := env.do(t, http.MethodGet, base+path, nil, nil)
		data, _ := body["data"].([]any)
		if resp.StatusCode != http.StatusOK || len(data) == 0 {
			t.Errorf("GET %s: expected data, got %d %v", path, resp.StatusCode, body)
		}
	}

	kinds := env.rec.Kinds()
	want := []events.Kind{events.KindHeartbeat, events.KindDeployment, events.KindEvidence, events.KindFailure}
	if len(kinds) != len(want) {
		t.Fatalf("expected %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], kinds[i])
		}
	}
}

func TestAuthorizerDenies(t *testing.T) {
	policy := access.NewPolicy([]access.Grant{{Actor: "*@co.com", Operations: []string{"probe.*"}}})
	env := newTestEnv(t, policy)

	resp, _ := env.do(t, http.MethodPost, "/v1/probes", map[string]any{
		"name": "Denied Probe", "ownerEmail": "owner@co.com", "frameworkBindings": []string{"soc2"},
	}, map[string]string{"X-Actor-Email": "intruder@evil.com"})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodGet, "/v1/probes", nil, map[string]string{"X-Actor-Email": "dev@co.com"})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 for granted actor, got %d", resp.StatusCode)
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "Metrics Probe")

	resp, body := env.do(t, http.MethodGet, "/healthz", nil, nil)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("unexpected healthz %d %v", resp.StatusCode, body)
	}

	r, err := http.Get(env.srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(r.Body)
	if !strings.Contains(buf.String(), "probeplane_registrations_total 1") {
		t.Errorf("expected registration counter in metrics output")
	}
}

func TestEventStream(t *testing.T) {
	env := newTestEnv(t, nil)

	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/v1/events/stream?probeId=p1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.hub.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if env.hub.Subscribers() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", env.hub.Subscribers())
	}

	ctx := context.Background()
	env.hub.Handle(ctx, events.Message{Kind: events.KindHeartbeat, ProbeID: "other"})
	env.hub.Handle(ctx, events.Message{Kind: events.KindFailure, ProbeID: "p1", Payload: map[string]any{"status": "outage"}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg events.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.ProbeID != "p1" || msg.Kind != events.KindFailure {
		t.Errorf("expected filtered failure event for p1, got %+v", msg)
	}
}
