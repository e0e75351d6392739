// Package telemetry exposes the control plane's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the services update.
type Metrics struct {
	registrations   prometheus.Counter
	deployments     *prometheus.CounterVec
	heartbeats      *prometheus.CounterVec
	eventsPublished *prometheus.CounterVec
	eventsDropped   prometheus.Counter
	selfTest        prometheus.Histogram
	runsTriggered   prometheus.Counter
}

// New creates the collectors and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "probeplane_registrations_total",
			Help: "Probes registered.",
		}),
		deployments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "probeplane_deployments_total",
			Help: "Deployment launches by terminal status.",
		}, []string{"status"}),
		heartbeats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "probeplane_heartbeats_total",
			Help: "Heartbeats ingested by classified status.",
		}, []string{"status"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "probeplane_events_published_total",
			Help: "Events queued on the bus by kind.",
		}, []string{"kind"}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "probeplane_events_dropped_total",
			Help: "Events lost because the bus queue was full or closed.",
		}),
		selfTest: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "probeplane_selftest_duration_seconds",
			Help:    "Deployment self-test duration.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		runsTriggered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "probeplane_runs_triggered_total",
			Help: "Ad-hoc evidence runs accepted.",
		}),
	}

	reg.MustRegister(
		m.registrations,
		m.deployments,
		m.heartbeats,
		m.eventsPublished,
		m.eventsDropped,
		m.selfTest,
		m.runsTriggered,
	)
	return m
}

// RegisterQueueLength exposes the current bus depth as a gauge.
func RegisterQueueLength(reg prometheus.Registerer, length func() int) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "probeplane_event_queue_length",
		Help: "Events queued and not yet delivered to sinks.",
	}, func() float64 { return float64(length()) }))
}

func (m *Metrics) RegistrationRecorded() {
	if m == nil {
		return
	}
	m.registrations.Inc()
}

func (m *Metrics) DeploymentRecorded(status string) {
	if m == nil {
		return
	}
	m.deployments.WithLabelValues(status).Inc()
}

func (m *Metrics) HeartbeatRecorded(status string) {
	if m == nil {
		return
	}
	m.heartbeats.WithLabelValues(status).Inc()
}

func (m *Metrics) EventPublished(kind string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(kind).Inc()
}

func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}

func (m *Metrics) SelfTestObserved(d time.Duration) {
	if m == nil {
		return
	}
	m.selfTest.Observe(d.Seconds())
}

func (m *Metrics) RunTriggered() {
	if m == nil {
		return
	}
	m.runsTriggered.Inc()
}
