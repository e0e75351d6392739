package alert

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/ppiankov/probeplane/internal/events"
)

// Dispatcher fans out probe events to matching webhook configurations.
// It implements events.Sink.
type Dispatcher struct {
	mu      sync.RWMutex
	configs []AlertConfig
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher from webhook configurations.
// An empty list is valid; routes can be installed later with SetConfigs.
func NewDispatcher(configs []AlertConfig, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{configs: slices.Clone(configs), logger: logger}
}

// SetConfigs replaces the routing table. Used on config reload.
func (d *Dispatcher) SetConfigs(configs []AlertConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.configs = slices.Clone(configs)
}

// Configs returns a copy of the current routing table.
func (d *Dispatcher) Configs() []AlertConfig {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.configs)
}

func (d *Dispatcher) Name() string { return "webhook" }

// Handle dispatches msg and returns immediately.
func (d *Dispatcher) Handle(_ context.Context, msg events.Message) error {
	d.Dispatch(EventFrom(msg))
	return nil
}

// Dispatch sends the event to all webhooks whose Events list and channel match.
// Fires goroutines and does not block the caller.
func (d *Dispatcher) Dispatch(event AlertEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, cfg := range d.configs {
		if !matches(cfg, event) {
			continue
		}
		d.wg.Add(1)
		go func(cfg AlertConfig) {
			defer d.wg.Done()
			if err := Send(cfg, event); err != nil {
				d.logger.Warn("webhook delivery failed", "url", cfg.URL, "kind", event.Kind, "probe_id", event.ProbeID, "error", err)
			}
		}(cfg)
	}
}

// Wait blocks until in-flight deliveries finish.
func (d *Dispatcher) Wait() { d.wg.Wait() }

func matches(cfg AlertConfig, event AlertEvent) bool {
	if cfg.Name != "" && !slices.Contains(event.Channels, cfg.Name) {
		return false
	}
	for _, e := range cfg.Events {
		if e == "*" || e == event.Kind {
			return true
		}
	}
	return false
}
