package config

import (
	"strings"

	"golang.org/x/mod/semver"
)

// CanonicalVersion normalizes a semantic version, accepting an optional
// leading "v". The second result is false when s is not valid semver.
func CanonicalVersion(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if !strings.HasPrefix(s, "v") {
		s = "v" + s
	}
	if !semver.IsValid(s) {
		return "", false
	}
	return semver.Canonical(s), true
}

// CompareVersions compares two canonical versions like semver.Compare.
func CompareVersions(a, b string) int {
	return semver.Compare(a, b)
}
