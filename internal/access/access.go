// Package access decides which actors may invoke which control-plane
// operations. An empty policy allows everything.
package access

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ppiankov/probeplane/internal/model"
)

// Operation names an inbound control-plane call.
type Operation string

const (
	OpProbeRegister   Operation = "probe.register"
	OpProbeRead       Operation = "probe.read"
	OpDeployLaunch    Operation = "deploy.launch"
	OpScheduleWrite   Operation = "schedule.write"
	OpRunTrigger      Operation = "run.trigger"
	OpHeartbeatRecord Operation = "heartbeat.record"
)

// ErrDenied is returned when no grant covers the request.
var ErrDenied = errors.New("access denied")

// Grant allows actors matching Actor to perform Operations.
// Actor is matched against the actor's email, then its ID.
type Grant struct {
	Actor      string   `yaml:"actor"      toml:"actor"      json:"actor"`
	Operations []string `yaml:"operations" toml:"operations" json:"operations"`
}

// Policy is an ordered list of grants.
type Policy struct {
	grants []Grant
}

// NewPolicy creates a Policy from configured grants.
func NewPolicy(grants []Grant) *Policy {
	return &Policy{grants: grants}
}

// Authorize returns nil if some grant covers actor and op.
func (p *Policy) Authorize(actor model.Actor, op Operation) error {
	if p == nil || len(p.grants) == 0 {
		return nil
	}
	for _, g := range p.grants {
		if !MatchPattern(g.Actor, actor.Email) && !MatchPattern(g.Actor, actor.ID) {
			continue
		}
		for _, pattern := range g.Operations {
			if MatchPattern(pattern, string(op)) {
				return nil
			}
		}
	}
	return fmt.Errorf("%w: %s may not %s", ErrDenied, describe(actor), op)
}

func describe(a model.Actor) string {
	switch {
	case a.Email != "":
		return a.Email
	case a.ID != "":
		return a.ID
	default:
		return "anonymous"
	}
}

// MatchPattern checks if a value matches a glob-like pattern.
// Supports: *x* (contains), *@domain (suffix), probe.* (prefix), exact match.
// Matching is case-insensitive. An empty value matches only "*".
func MatchPattern(pattern, value string) bool {
	if pattern == "*" {
		return true
	}
	if pattern == "" || value == "" {
		return false
	}

	lowerValue := strings.ToLower(value)
	lowerPattern := strings.ToLower(pattern)

	if len(lowerPattern) > 1 && strings.HasPrefix(lowerPattern, "*") && strings.HasSuffix(lowerPattern, "*") {
		return strings.Contains(lowerValue, lowerPattern[1:len(lowerPattern)-1])
	}
	if strings.HasPrefix(lowerPattern, "*") {
		return strings.HasSuffix(lowerValue, lowerPattern[1:])
	}
	if strings.HasSuffix(lowerPattern, "*") {
		return strings.HasPrefix(lowerValue, lowerPattern[:len(lowerPattern)-1])
	}
	return lowerValue == lowerPattern
}
