// Package app assembles the control plane from a config snapshot: store,
// event bus with its sinks, metrics and the four core services.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/probeplane/internal/access"
	"github.com/ppiankov/probeplane/internal/alert"
	"github.com/ppiankov/probeplane/internal/audit"
	"github.com/ppiankov/probeplane/internal/config"
	"github.com/ppiankov/probeplane/internal/deploy"
	"github.com/ppiankov/probeplane/internal/events"
	"github.com/ppiankov/probeplane/internal/grpchealth"
	"github.com/ppiankov/probeplane/internal/health"
	"github.com/ppiankov/probeplane/internal/httpapi"
	"github.com/ppiankov/probeplane/internal/registry"
	"github.com/ppiankov/probeplane/internal/schedule"
	"github.com/ppiankov/probeplane/internal/store"
	"github.com/ppiankov/probeplane/internal/telemetry"
)

// App holds every long-lived component.
type App struct {
	Config     config.Config
	ConfigPath string
	Logger     *slog.Logger

	Store      *store.SQLStore
	Bus        *events.Bus
	Prometheus *prometheus.Registry
	Metrics    *telemetry.Metrics
	Dispatcher *alert.Dispatcher
	Audit      *audit.Log
	Health     *grpchealth.Server
	Hub        *httpapi.Hub

	Registry  *registry.Service
	Deploy    *deploy.Orchestrator
	Scheduler *schedule.Scheduler
	Monitor   *health.Monitor

	busCancel context.CancelFunc
}

// Open builds the application and starts event delivery. Close releases it.
// configPath is only used for hot reload and may be empty.
func Open(ctx context.Context, cfg config.Config, configPath string, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = cfg.Log.NewLogger(os.Stderr)
	}

	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:     cfg,
		ConfigPath: configPath,
		Logger:     logger,
		Store:      st,
		Prometheus: prometheus.NewRegistry(),
	}
	a.Prometheus.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = telemetry.New(a.Prometheus)

	a.Dispatcher = alert.NewDispatcher(cfg.Alerts, logger)
	a.Health = grpchealth.New(logger)
	a.Hub = httpapi.NewHub(logger)
	sinks := []events.Sink{events.LogSink{Logger: logger}, a.Dispatcher, a.Health, a.Hub}

	if cfg.Audit.Path != "" {
		a.Audit, err = audit.Open(cfg.Audit.Path)
		if err != nil {
			st.Close()
			return nil, err
		}
		sinks = append(sinks, a.Audit)
	}

	a.Bus = events.NewBus(cfg.Events.Buffer, logger, sinks...)
	a.Bus.OnDrop(func(events.Message) { a.Metrics.EventDropped() })
	a.Bus.OnPublish(func(m events.Message) { a.Metrics.EventPublished(string(m.Kind)) })
	telemetry.RegisterQueueLength(a.Prometheus, a.Bus.Len)

	a.Registry = registry.New(st, a.Bus, cfg, logger, a.Metrics)
	a.Deploy = deploy.New(st, a.Registry, a.Bus, nil, cfg, logger, a.Metrics)
	a.Scheduler = schedule.New(st, a.Registry, a.Bus, cfg.Scheduler, logger, a.Metrics)
	a.Monitor = health.New(st, a.Registry, a.Bus, logger, a.Metrics)

	busCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.busCancel = cancel
	go a.Bus.Run(busCtx)

	return a, nil
}

// HTTPServer returns the HTTP adapter bound to this application.
func (a *App) HTTPServer() *httpapi.Server {
	return httpapi.New(httpapi.Options{
		Registry:   a.Registry,
		Deploy:     a.Deploy,
		Scheduler:  a.Scheduler,
		Health:     a.Monitor,
		Authorizer: access.NewPolicy(a.Config.Access.Grants),
		Hub:        a.Hub,
		Gatherer:   a.Prometheus,
		Logger:     a.Logger,
	})
}

// Serve runs the HTTP API, the gRPC health service and the config watcher
// until ctx is cancelled or one of them fails.
func (a *App) Serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.HTTPServer().ListenAndServe(ctx, a.Config.HTTP.Addr)
	})

	if a.Config.GRPC.Addr != "" {
		g.Go(func() error {
			return a.Health.Serve(a.Config.GRPC.Addr)
		})
		g.Go(func() error {
			<-ctx.Done()
			a.Health.GracefulStop()
			return nil
		})
	}

	if a.ConfigPath != "" {
		if _, err := os.Stat(a.ConfigPath); err == nil {
			w, err := config.NewWatcher(a.ConfigPath, a.reload, a.Logger)
			if err != nil {
				return err
			}
			g.Go(func() error { return w.Run(ctx) })
		}
	}

	return g.Wait()
}

// reload applies the parts of a new snapshot that can change at runtime.
func (a *App) reload(cfg *config.Config) {
	a.Dispatcher.SetConfigs(cfg.Alerts)
	a.Logger.Info("config reloaded", "alerts", len(cfg.Alerts))
}

// Close stops accepting events, delivers what is queued, waits for webhook
// deliveries and closes the audit log and the store.
func (a *App) Close() error {
	a.Bus.Close()
	<-a.Bus.Done()
	a.busCancel()
	a.Dispatcher.Wait()

	var errs []error
	if a.Audit != nil {
		if err := a.Audit.Close(); err != nil {
			errs = append(errs, fmt.Errorf("app: close audit log: %w", err))
		}
	}
	if err := a.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("app: close store: %w", err))
	}
	return errors.Join(errs...)
}
