package deploy

import (
	"github.com/ppiankov/probeplane/internal/config"
	"github.com/ppiankov/probeplane/internal/model"
	"github.com/ppiankov/probeplane/internal/registry"
)

// BuildManifest snapshots the configuration a launch is tested against.
// Config is the probe's merged overlay for overlayID, else for the target
// environment, else the probe default overlay, else the fallback layer of
// global defaults and the registered heartbeat interval.
func BuildManifest(p *model.Probe, in LaunchInput, d config.Defaults) model.Manifest {
	layer := selectLayer(p, in.OverlayID, in.Environment, d)

	m := model.Manifest{
		ProbeID:                  p.ID,
		Slug:                     p.Slug,
		Version:                  in.Version,
		Environment:              in.Environment,
		OverlayID:                in.OverlayID,
		CanaryPercent:            in.CanaryPercent,
		SDKVersionMin:            p.SDKVersionMin,
		SDKVersionTarget:         p.SDKVersionTarget,
		HeartbeatIntervalSeconds: p.HeartbeatIntervalSeconds,
		DeploymentTopic:          d.DeploymentTopic,
		FrameworkBindings:        p.FrameworkBindings,
		Config:                   layer,
	}
	if n, ok := intValue(layer["heartbeatIntervalSeconds"]); ok {
		m.HeartbeatIntervalSeconds = n
	}
	if topic, ok := layer["deploymentTopic"].(string); ok {
		m.DeploymentTopic = topic
	}
	return m
}

func selectLayer(p *model.Probe, overlayID, env string, d config.Defaults) map[string]any {
	for _, key := range []string{overlayID, env, registry.DefaultOverlayKey} {
		if key == "" {
			continue
		}
		if layer, ok := p.EnvironmentOverlays[key]; ok {
			return layer
		}
	}
	interval := p.HeartbeatIntervalSeconds
	if interval <= 0 {
		return registry.FallbackLayer(d, p.EnvironmentOverlays, nil)
	}
	return registry.FallbackLayer(d, p.EnvironmentOverlays, &interval)
}

// intValue accepts the numeric shapes an overlay may hold after a JSON
// round trip through the store.
func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
