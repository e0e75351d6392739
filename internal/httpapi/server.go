// Package httpapi is the HTTP adapter of the control plane. It translates
// JSON requests into registry, deploy, schedule and health calls and serves
// Prometheus metrics and a websocket event stream next to them.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ppiankov/probeplane/internal/access"
	"github.com/ppiankov/probeplane/internal/deploy"
	"github.com/ppiankov/probeplane/internal/health"
	"github.com/ppiankov/probeplane/internal/model"
	"github.com/ppiankov/probeplane/internal/registry"
	"github.com/ppiankov/probeplane/internal/schedule"
)

const shutdownTimeout = 10 * time.Second

// Authorizer decides whether actor may perform op.
type Authorizer interface {
	Authorize(actor model.Actor, op access.Operation) error
}

type allowAll struct{}

func (allowAll) Authorize(model.Actor, access.Operation) error { return nil }

// Options wires the server's collaborators. Authorizer, Hub, Gatherer and
// Logger are optional.
type Options struct {
	Registry   *registry.Service
	Deploy     *deploy.Orchestrator
	Scheduler  *schedule.Scheduler
	Health     *health.Monitor
	Authorizer Authorizer
	Hub        *Hub
	Gatherer   prometheus.Gatherer
	Logger     *slog.Logger
}

// Server serves the /v1 API.
type Server struct {
	registry  *registry.Service
	deploy    *deploy.Orchestrator
	scheduler *schedule.Scheduler
	health    *health.Monitor
	authz     Authorizer
	hub       *Hub
	gatherer  prometheus.Gatherer
	logger    *slog.Logger
}

// New creates a Server.
func New(opts Options) *Server {
	s := &Server{
		registry:  opts.Registry,
		deploy:    opts.Deploy,
		scheduler: opts.Scheduler,
		health:    opts.Health,
		authz:     opts.Authorizer,
		hub:       opts.Hub,
		gatherer:  opts.Gatherer,
		logger:    opts.Logger,
	}
	if s.authz == nil {
		s.authz = allowAll{}
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		s.writeJSON(w, req, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		if s.hub != nil {
			r.Handle("/events/stream", s.hub)
		}
		r.Route("/probes", func(r chi.Router) {
			r.Get("/", s.guard(access.OpProbeRead, s.listProbes))
			r.Post("/", s.guard(access.OpProbeRegister, s.registerProbe))

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.guard(access.OpProbeRead, s.getProbe))
				r.Get("/events", s.guard(access.OpProbeRead, s.probeEvents))
				r.Get("/metrics", s.guard(access.OpProbeRead, s.probeMetrics))
				r.Post("/heartbeat", s.guard(access.OpHeartbeatRecord, s.recordHeartbeat))
				r.Post("/runs", s.guard(access.OpRunTrigger, s.triggerRun))
				r.Get("/deployments", s.guard(access.OpProbeRead, s.listDeployments))
				r.Post("/deployments", s.guard(access.OpDeployLaunch, s.launchDeployment))
				r.Get("/schedules", s.guard(access.OpProbeRead, s.listSchedules))
				r.Post("/schedules", s.guard(access.OpScheduleWrite, s.createSchedule))
			})
		})
	})
	return r
}

// actorHandler receives the authenticated actor alongside the request.
type actorHandler func(w http.ResponseWriter, r *http.Request, actor model.Actor)

func (s *Server) guard(op access.Operation, next actorHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := actorFrom(r)
		if err := s.authz.Authorize(actor, op); err != nil {
			s.writeError(w, r, err)
			return
		}
		next(w, r, actor)
	}
}

// actorFrom reads the identity asserted by the authenticating proxy.
func actorFrom(r *http.Request) model.Actor {
	return model.Actor{
		ID:    r.Header.Get("X-Actor-Id"),
		Email: r.Header.Get("X-Actor-Email"),
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.DebugContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("httpapi: listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, lis)
}

// Serve serves on lis until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http listening", "addr", lis.Addr().String())
		errCh <- srv.Serve(lis)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("httpapi: serve: %w", err)
	case <-ctx.Done():
	}

	if s.hub != nil {
		s.hub.Close()
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("httpapi: shutdown: %w", err)
	}
	return nil
}
