package deploy

import (
	"context"
	"fmt"
	"time"

	"github.com/ppiankov/probeplane/internal/config"
	"github.com/ppiankov/probeplane/internal/model"
)

// SelfTester decides whether a manifest may be committed.
type SelfTester interface {
	Run(ctx context.Context, m model.Manifest) model.SelfTestResult
}

// SelfTestFunc adapts a function to SelfTester.
type SelfTestFunc func(ctx context.Context, m model.Manifest) model.SelfTestResult

func (f SelfTestFunc) Run(ctx context.Context, m model.Manifest) model.SelfTestResult {
	return f(ctx, m)
}

// SyntheticSelfTest validates a manifest statically. It never contacts the
// probe itself.
type SyntheticSelfTest struct {
	PlatformSDKMin string
}

type check struct {
	name string
	fn   func(model.Manifest) (bool, string)
}

func (s SyntheticSelfTest) checks() []check {
	return []check{
		{"version", func(m model.Manifest) (bool, string) {
			if m.Version == "" {
				return false, "manifest version is empty"
			}
			return true, m.Version
		}},
		{"sdk_min", func(m model.Manifest) (bool, string) {
			declared, ok := config.CanonicalVersion(m.SDKVersionMin)
			if !ok {
				return false, fmt.Sprintf("invalid sdk min %q", m.SDKVersionMin)
			}
			platform, ok := config.CanonicalVersion(s.PlatformSDKMin)
			if !ok {
				return true, "no platform minimum"
			}
			if config.CompareVersions(declared, platform) < 0 {
				return false, fmt.Sprintf("sdk min %s below platform min %s", declared, platform)
			}
			return true, declared
		}},
		{"heartbeat_interval", func(m model.Manifest) (bool, string) {
			if m.HeartbeatIntervalSeconds <= 0 {
				return false, fmt.Sprintf("interval %ds must be positive", m.HeartbeatIntervalSeconds)
			}
			return true, fmt.Sprintf("%ds", m.HeartbeatIntervalSeconds)
		}},
		{"deployment_topic", func(m model.Manifest) (bool, string) {
			if m.DeploymentTopic == "" {
				return false, "deployment topic is empty"
			}
			return true, m.DeploymentTopic
		}},
		{"framework_bindings", func(m model.Manifest) (bool, string) {
			if len(m.FrameworkBindings) == 0 {
				return false, "no framework bindings"
			}
			return true, fmt.Sprintf("%d bound", len(m.FrameworkBindings))
		}},
	}
}

// Run evaluates every check. The result passes only if all checks pass.
func (s SyntheticSelfTest) Run(_ context.Context, m model.Manifest) model.SelfTestResult {
	start := time.Now()
	res := model.SelfTestResult{Passed: true}
	for _, c := range s.checks() {
		ok, detail := c.fn(m)
		res.Diagnostics = append(res.Diagnostics, model.Diagnostic{Check: c.name, Passed: ok, Detail: detail})
		if !ok {
			res.Passed = false
		}
	}
	res.DurationMs = time.Since(start).Milliseconds()
	return res
}
