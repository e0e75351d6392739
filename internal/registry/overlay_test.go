package registry

import (
	"testing"

	"github.com/ppiankov/probeplane/internal/config"
)

func TestMergeOverlaysLayering(t *testing.T) {
	defaults := config.Defaults{HeartbeatIntervalSeconds: 300, DeploymentTopic: "probe.deployments"}
	overlays := map[string]map[string]any{
		"default": {"collector": map[string]any{"timeout": "30s", "mode": "full"}},
		"staging": {"collector": map[string]any{"mode": "sample"}},
		"prod":    {"deploymentTopic": "prod.topic"},
	}

	merged := MergeOverlays(defaults, overlays, nil)

	staging := merged["staging"]
	collector := staging["collector"].(map[string]any)
	if collector["mode"] != "sample" || collector["timeout"] != "30s" {
		t.Errorf("expected nested merge, got %v", collector)
	}
	if staging["heartbeatIntervalSeconds"] != 300 {
		t.Errorf("expected global interval, got %v", staging["heartbeatIntervalSeconds"])
	}
	if merged["prod"]["deploymentTopic"] != "prod.topic" {
		t.Errorf("expected env to override global topic, got %v", merged["prod"]["deploymentTopic"])
	}

	// Inputs are not mutated.
	if overlays["default"]["collector"].(map[string]any)["mode"] != "full" {
		t.Error("merge mutated the probe defaults layer")
	}
}

func TestMergeOverlaysExplicitInterval(t *testing.T) {
	defaults := config.Defaults{HeartbeatIntervalSeconds: 300, DeploymentTopic: "t"}
	interval := 45
	merged := MergeOverlays(defaults, map[string]map[string]any{
		"dev":  {},
		"prod": {"heartbeatIntervalSeconds": 600},
	}, &interval)

	if merged["dev"]["heartbeatIntervalSeconds"] != 45 {
		t.Errorf("expected explicit interval to beat global, got %v", merged["dev"]["heartbeatIntervalSeconds"])
	}
	if merged["prod"]["heartbeatIntervalSeconds"] != 600 {
		t.Errorf("expected env overlay to beat explicit interval, got %v", merged["prod"]["heartbeatIntervalSeconds"])
	}
}

func TestMergeOverlaysEmpty(t *testing.T) {
	merged := MergeOverlays(config.Defaults{}, nil, nil)
	if len(merged) != 0 {
		t.Errorf("expected no environments, got %v", merged)
	}
}

func TestFallbackLayer(t *testing.T) {
	defaults := config.Defaults{HeartbeatIntervalSeconds: 300, DeploymentTopic: "t"}
	overlays := map[string]map[string]any{"default": {"retries": 2, "heartbeatIntervalSeconds": 60}}

	layer := FallbackLayer(defaults, overlays, nil)
	if layer["heartbeatIntervalSeconds"] != 60 || layer["retries"] != 2 || layer["deploymentTopic"] != "t" {
		t.Errorf("expected default overlay over global, got %v", layer)
	}

	interval := 7
	layer = FallbackLayer(defaults, overlays, &interval)
	if layer["heartbeatIntervalSeconds"] != 7 {
		t.Errorf("expected explicit interval 7, got %v", layer["heartbeatIntervalSeconds"])
	}
	if overlays["default"]["heartbeatIntervalSeconds"] != 60 {
		t.Error("layer mutated the default overlay")
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SOC2 Access Reviewer", "soc2-access-reviewer"},
		{"  Café Überwachung  ", "cafe-uberwachung"},
		{"ISO/IEC 27001 -- Annex A", "iso-iec-27001-annex-a"},
		{"!!!", "probe"},
		{"", "probe"},
		{"a very long probe name that keeps going well past the slug limit", "a-very-long-probe-name-that-keeps-going-well-pas"},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, expected %q", tt.in, got, tt.want)
		}
	}
}
