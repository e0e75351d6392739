// Package mcp exposes read and run operations of the control plane as MCP
// tools over stdio.
package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/probeplane/internal/deploy"
	"github.com/ppiankov/probeplane/internal/health"
	"github.com/ppiankov/probeplane/internal/model"
	"github.com/ppiankov/probeplane/internal/registry"
	"github.com/ppiankov/probeplane/internal/schedule"
)

// Config holds MCP server configuration.
type Config struct {
	Version string
	// Actor is recorded as the requester of runs triggered through MCP.
	Actor model.Actor
}

// Services are the core components the tools call into.
type Services struct {
	Registry  *registry.Service
	Deploy    *deploy.Orchestrator
	Scheduler *schedule.Scheduler
	Health    *health.Monitor
}

// Server wraps the MCP SDK server.
type Server struct {
	mcpServer *mcpsdk.Server
	svc       Services
	actor     model.Actor
}

// New creates an MCP server with all probeplane tools registered.
func New(svc Services, cfg Config) *Server {
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.Actor.ID == "" && cfg.Actor.Email == "" {
		cfg.Actor.ID = "mcp"
	}

	s := &Server{svc: svc, actor: cfg.Actor}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "probeplane",
			Version: cfg.Version,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// registerTools adds all probeplane tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "probe_list",
		Description: "List registered probes, newest first. Filters by status, framework, owner and free-text search.",
	}, s.handleList)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "probe_get",
		Description: "Get one probe by ID or slug, including health, schedules and recent deployments.",
	}, s.handleGet)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "probe_metrics",
		Description: "Get the heartbeat health snapshot of a probe.",
	}, s.handleMetrics)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "probe_trigger_run",
		Description: "Request an ad-hoc evidence run. Returns the run ID and the next scheduled window.",
	}, s.handleTriggerRun)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "probe_deployments",
		Description: "List the newest deployments of a probe with their self-test outcome.",
	}, s.handleDeployments)
}
