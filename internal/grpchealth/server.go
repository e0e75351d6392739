// Package grpchealth exposes probe fleet health over the standard gRPC
// health checking protocol. Each probe ID is a service name.
package grpchealth

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/ppiankov/probeplane/internal/events"
	"github.com/ppiankov/probeplane/internal/model"
)

// Server is a gRPC server carrying only the health service. It is also an
// events.Sink: heartbeat, failure and evidence events update the serving
// status of the probe they concern.
type Server struct {
	health     *health.Server
	grpcServer *grpc.Server
	logger     *slog.Logger
}

// New creates the server. The empty service reports SERVING until
// GracefulStop.
func New(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		health:     health.NewServer(),
		grpcServer: grpc.NewServer(),
		logger:     logger,
	}
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	return s
}

// Serve listens on addr and serves until stopped.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpchealth: listen on %s: %w", addr, err)
	}
	return s.ServeOn(lis)
}

// ServeOn serves on an existing listener. For testing.
func (s *Server) ServeOn(lis net.Listener) error {
	s.logger.Info("grpc health listening", "addr", lis.Addr().String())
	return s.grpcServer.Serve(lis)
}

// GracefulStop marks every service NOT_SERVING and stops the server.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}

// SetStatus records a probe's heartbeat classification.
func (s *Server) SetStatus(probeID string, status model.HeartbeatStatus) {
	s.health.SetServingStatus(probeID, servingStatus(status))
}

func (s *Server) Name() string { return "grpchealth" }

func (s *Server) Handle(_ context.Context, msg events.Message) error {
	if msg.ProbeID == "" {
		return nil
	}
	switch msg.Kind {
	case events.KindFailure:
		s.SetStatus(msg.ProbeID, model.Outage)
	case events.KindHeartbeat:
		s.SetStatus(msg.ProbeID, model.HeartbeatStatus(msg.Status()))
	case events.KindEvidence:
		s.SetStatus(msg.ProbeID, model.Operational)
	}
	return nil
}

func servingStatus(status model.HeartbeatStatus) healthpb.HealthCheckResponse_ServingStatus {
	if status == model.Outage {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}
