package registry

import "github.com/ppiankov/probeplane/internal/config"

// DefaultOverlayKey names the probe-level layer applied to every environment.
const DefaultOverlayKey = "default"

// GlobalLayer is the platform-wide base of every merged overlay.
func GlobalLayer(d config.Defaults) map[string]any {
	return map[string]any{
		"heartbeatIntervalSeconds": d.HeartbeatIntervalSeconds,
		"deploymentTopic":          d.DeploymentTopic,
	}
}

// MergeOverlays resolves each environment overlay as
// global defaults < probe defaults < environment overlay.
// Probe defaults are overlays["default"] plus an explicit heartbeat interval.
func MergeOverlays(d config.Defaults, overlays map[string]map[string]any, interval *int) map[string]map[string]any {
	base := FallbackLayer(d, overlays, interval)
	merged := make(map[string]map[string]any, len(overlays))
	for env, layer := range overlays {
		merged[env] = deepMerge(base, layer)
	}
	return merged
}

// FallbackLayer is the layer for an environment without its own overlay:
// global defaults < overlays["default"] < an explicit heartbeat interval.
func FallbackLayer(d config.Defaults, overlays map[string]map[string]any, interval *int) map[string]any {
	layer := deepMerge(GlobalLayer(d), overlays[DefaultOverlayKey])
	if interval != nil {
		layer["heartbeatIntervalSeconds"] = *interval
	}
	return layer
}

// deepMerge returns a new map with over applied on top of base.
// Nested maps merge recursively; any other value in over replaces base.
func deepMerge(base, over map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(over))
	for k, v := range base {
		out[k] = cloneValue(v)
	}
	for k, v := range over {
		if om, ok := v.(map[string]any); ok {
			if bm, ok := out[k].(map[string]any); ok {
				out[k] = deepMerge(bm, om)
				continue
			}
		}
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	if m, ok := v.(map[string]any); ok {
		return deepMerge(nil, m)
	}
	return v
}
