package registry

import (
	"net/mail"
	"strings"

	"github.com/ppiankov/probeplane/internal/config"
	"github.com/ppiankov/probeplane/internal/model"
)

const minNameLength = 3

// validateRegistration checks every field and returns a trimmed copy of in.
// All failures are reported together.
func (s *Service) validateRegistration(in RegisterInput) (RegisterInput, error) {
	v := &model.ValidationError{}

	in.Name = strings.TrimSpace(in.Name)
	if len([]rune(in.Name)) < minNameLength {
		v.Add("name", "must be at least %d characters", minNameLength)
	}

	in.OwnerEmail = strings.TrimSpace(in.OwnerEmail)
	if addr, err := mail.ParseAddress(in.OwnerEmail); err != nil || addr.Address != in.OwnerEmail {
		v.Add("ownerEmail", "must be a valid email address")
	}

	in.Description = strings.TrimSpace(in.Description)
	in.OwnerTeam = strings.TrimSpace(in.OwnerTeam)
	in.FrameworkBindings = compact(in.FrameworkBindings)
	if len(in.FrameworkBindings) == 0 {
		v.Add("frameworkBindings", "must contain at least one framework")
	}
	in.Tags = compact(in.Tags)
	in.AlertChannels = compact(in.AlertChannels)

	if in.HeartbeatIntervalSeconds != nil && *in.HeartbeatIntervalSeconds <= 0 {
		v.Add("heartbeatIntervalSeconds", "must be positive")
	}

	in.SDKVersionMin, in.SDKVersionTarget = s.checkSDK(v, in.SDKVersionMin, in.SDKVersionTarget)

	if err := v.OrNil(); err != nil {
		return RegisterInput{}, err
	}
	return in, nil
}

// checkSDK applies the platform SDK range: the declared minimum defaults to
// the platform minimum and may not undercut it; the target defaults to the
// platform target and may not be below the declared minimum.
func (s *Service) checkSDK(v *model.ValidationError, declMin, declTarget string) (string, string) {
	declMin = strings.TrimSpace(declMin)
	declTarget = strings.TrimSpace(declTarget)
	if declMin == "" {
		declMin = s.cfg.SDK.MinVersion
	}
	if declTarget == "" {
		declTarget = s.cfg.SDK.TargetVersion
	}

	minV, okMin := config.CanonicalVersion(declMin)
	if !okMin {
		v.Add("sdkVersionMin", "must be a semantic version")
	}
	targetV, okTarget := config.CanonicalVersion(declTarget)
	if !okTarget {
		v.Add("sdkVersionTarget", "must be a semantic version")
	}

	platformMin, okPlatform := config.CanonicalVersion(s.cfg.SDK.MinVersion)
	if okMin && okPlatform && config.CompareVersions(minV, platformMin) < 0 {
		v.Add("sdkVersionMin", "must be at least the platform minimum %s", s.cfg.SDK.MinVersion)
	}
	if okMin && okTarget && config.CompareVersions(targetV, minV) < 0 {
		v.Add("sdkVersionTarget", "must not be below sdkVersionMin %s", declMin)
	}
	return declMin, declTarget
}

// compact trims entries and drops blanks and duplicates, keeping order.
func compact(in []string) []string {
	var out []string
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
