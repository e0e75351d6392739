package mcp

import (
	"context"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/probeplane/internal/model"
	"github.com/ppiankov/probeplane/internal/registry"
	"github.com/ppiankov/probeplane/internal/schedule"
)

const timeFormat = time.RFC3339

// --- Input/Output types ---

// ListInput defines parameters for the probe_list tool.
type ListInput struct {
	Status    string   `json:"status,omitempty" jsonschema:"lifecycle status (draft/active/deprecated)"`
	Framework []string `json:"framework,omitempty" jsonschema:"match probes bound to any of these frameworks"`
	Owner     string   `json:"owner,omitempty" jsonschema:"substring of owner email or team"`
	Search    string   `json:"search,omitempty" jsonschema:"substring of name, description or slug"`
	Limit     int      `json:"limit,omitempty" jsonschema:"page size, default 20"`
	Offset    int      `json:"offset,omitempty" jsonschema:"page offset"`
}

// ListOutput is one page of probes.
type ListOutput struct {
	Probes  []ProbeItem `json:"probes"`
	Total   int         `json:"total"`
	HasMore bool        `json:"has_more"`
	Error   string      `json:"error,omitempty"`
}

// ProbeItem summarizes a probe.
type ProbeItem struct {
	ID             string   `json:"id"`
	Slug           string   `json:"slug"`
	Name           string   `json:"name"`
	Status         string   `json:"status"`
	OwnerEmail     string   `json:"owner_email"`
	Frameworks     []string `json:"frameworks"`
	SDKVersionMin  string   `json:"sdk_version_min"`
	LastDeployedAt string   `json:"last_deployed_at,omitempty"`
}

// ProbeInput identifies a probe by ID or slug.
type ProbeInput struct {
	Probe string `json:"probe" jsonschema:"probe ID or slug"`
}

// GetOutput is a hydrated probe.
type GetOutput struct {
	Probe       ProbeItem        `json:"probe"`
	Health      *MetricsOutput   `json:"health,omitempty"`
	Schedules   []ScheduleItem   `json:"schedules"`
	Deployments []DeploymentItem `json:"deployments"`
	Error       string           `json:"error,omitempty"`
}

// MetricsOutput is a probe health snapshot.
type MetricsOutput struct {
	Status          string  `json:"status"`
	LastHeartbeatAt string  `json:"last_heartbeat_at,omitempty"`
	FailureCount24h int     `json:"failure_count_24h"`
	LatencyP95Ms    *int    `json:"latency_p95_ms,omitempty"`
	LastErrorCode   *string `json:"last_error_code,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// ScheduleItem summarizes a schedule.
type ScheduleItem struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Expression string `json:"expression"`
	Priority   string `json:"priority"`
	NextRunAt  string `json:"next_run_at"`
}

// TriggerRunInput defines parameters for the probe_trigger_run tool.
type TriggerRunInput struct {
	Probe    string   `json:"probe" jsonschema:"probe ID or slug"`
	Trigger  string   `json:"trigger,omitempty" jsonschema:"label for the run, default mcp"`
	Controls []string `json:"controls,omitempty" jsonschema:"control IDs the run should collect evidence for"`
}

// TriggerRunOutput acknowledges an accepted run.
type TriggerRunOutput struct {
	RunID     string `json:"run_id,omitempty"`
	Status    string `json:"status"`
	NextRunAt string `json:"next_run_at,omitempty"`
	Error     string `json:"error,omitempty"`
}

// DeploymentsOutput lists deployments newest first.
type DeploymentsOutput struct {
	Deployments []DeploymentItem `json:"deployments"`
	Error       string           `json:"error,omitempty"`
}

// DeploymentItem summarizes a deployment.
type DeploymentItem struct {
	ID           string   `json:"id"`
	Version      string   `json:"version"`
	Environment  string   `json:"environment"`
	Status       string   `json:"status"`
	StartedAt    string   `json:"started_at"`
	FailedChecks []string `json:"failed_checks,omitempty"`
}

// --- Handlers ---

func (s *Server) handleList(ctx context.Context, req *mcpsdk.CallToolRequest, input ListInput) (*mcpsdk.CallToolResult, ListOutput, error) {
	res, err := s.svc.Registry.List(ctx, registry.ListFilter{
		Status:       model.ProbeStatus(input.Status),
		FrameworkIDs: input.Framework,
		Owner:        input.Owner,
		Search:       input.Search,
	}, model.Page{Limit: input.Limit, Offset: input.Offset})
	if err != nil {
		return toolError(err, ListOutput{Error: err.Error()})
	}

	out := ListOutput{Probes: make([]ProbeItem, 0, len(res.Data)), Total: res.Pagination.Total, HasMore: res.Pagination.HasMore}
	for i := range res.Data {
		out.Probes = append(out.Probes, probeItem(&res.Data[i]))
	}
	return nil, out, nil
}

func (s *Server) handleGet(ctx context.Context, req *mcpsdk.CallToolRequest, input ProbeInput) (*mcpsdk.CallToolResult, GetOutput, error) {
	p, err := s.svc.Registry.Get(ctx, input.Probe)
	if err != nil {
		return toolError(err, GetOutput{Error: err.Error()})
	}

	out := GetOutput{
		Probe:       probeItem(p),
		Schedules:   make([]ScheduleItem, 0, len(p.Schedules)),
		Deployments: make([]DeploymentItem, 0, len(p.Deployments)),
	}
	if p.Metrics != nil {
		m := metricsOutput(p.Metrics)
		out.Health = &m
	}
	for _, sc := range p.Schedules {
		out.Schedules = append(out.Schedules, ScheduleItem{
			ID:         sc.ID,
			Type:       string(sc.Type),
			Expression: sc.Expression,
			Priority:   string(sc.Priority),
			NextRunAt:  sc.NextRunAt.Format(timeFormat),
		})
	}
	for i := range p.Deployments {
		out.Deployments = append(out.Deployments, deploymentItem(&p.Deployments[i]))
	}
	return nil, out, nil
}

func (s *Server) handleMetrics(ctx context.Context, req *mcpsdk.CallToolRequest, input ProbeInput) (*mcpsdk.CallToolResult, MetricsOutput, error) {
	m, err := s.svc.Health.Summary(ctx, input.Probe)
	if err != nil {
		return toolError(err, MetricsOutput{Error: err.Error()})
	}
	return nil, metricsOutput(m), nil
}

func (s *Server) handleTriggerRun(ctx context.Context, req *mcpsdk.CallToolRequest, input TriggerRunInput) (*mcpsdk.CallToolResult, TriggerRunOutput, error) {
	trigger := input.Trigger
	if trigger == "" {
		trigger = "mcp"
	}
	in := schedule.TriggerInput{Trigger: trigger}
	if len(input.Controls) > 0 {
		in.Context = map[string]any{"controls": input.Controls}
	}

	receipt, err := s.svc.Scheduler.TriggerRun(ctx, input.Probe, in, s.actor)
	if err != nil {
		return toolError(err, TriggerRunOutput{Status: "rejected", Error: err.Error()})
	}
	return nil, TriggerRunOutput{
		RunID:     receipt.RunID,
		Status:    receipt.Status,
		NextRunAt: receipt.NextRunAt.Format(timeFormat),
	}, nil
}

func (s *Server) handleDeployments(ctx context.Context, req *mcpsdk.CallToolRequest, input ProbeInput) (*mcpsdk.CallToolResult, DeploymentsOutput, error) {
	deps, err := s.svc.Deploy.List(ctx, input.Probe)
	if err != nil {
		return toolError(err, DeploymentsOutput{Error: err.Error()})
	}
	out := DeploymentsOutput{Deployments: make([]DeploymentItem, 0, len(deps))}
	for i := range deps {
		out.Deployments = append(out.Deployments, deploymentItem(&deps[i]))
	}
	return nil, out, nil
}

// toolError reports caller mistakes as an IsError result and everything
// else as a protocol error.
func toolError[T any](err error, out T) (*mcpsdk.CallToolResult, T, error) {
	if model.IsValidation(err) || model.IsNotFound(err) {
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	var zero T
	return nil, zero, err
}

func probeItem(p *model.Probe) ProbeItem {
	item := ProbeItem{
		ID:            p.ID,
		Slug:          p.Slug,
		Name:          p.Name,
		Status:        string(p.Status),
		OwnerEmail:    p.OwnerEmail,
		Frameworks:    p.FrameworkBindings,
		SDKVersionMin: p.SDKVersionMin,
	}
	if p.LastDeployedAt != nil {
		item.LastDeployedAt = p.LastDeployedAt.Format(timeFormat)
	}
	return item
}

func metricsOutput(m *model.Metric) MetricsOutput {
	out := MetricsOutput{
		Status:          string(m.HeartbeatStatus),
		FailureCount24h: m.FailureCount24h,
		LatencyP95Ms:    m.LatencyP95Ms,
		LastErrorCode:   m.LastErrorCode,
	}
	if m.LastHeartbeatAt != nil {
		out.LastHeartbeatAt = m.LastHeartbeatAt.Format(timeFormat)
	}
	return out
}

func deploymentItem(d *model.Deployment) DeploymentItem {
	item := DeploymentItem{
		ID:          d.ID,
		Version:     d.Version,
		Environment: d.Environment,
		Status:      string(d.Status),
		StartedAt:   d.StartedAt.Format(timeFormat),
	}
	for _, diag := range d.SelfTest.Diagnostics {
		if !diag.Passed {
			item.FailedChecks = append(item.FailedChecks, diag.Check)
		}
	}
	return item
}
