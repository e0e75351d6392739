package access

import (
	"errors"
	"testing"

	"github.com/ppiankov/probeplane/internal/model"
)

func testPolicy() *Policy {
	return NewPolicy([]Grant{
		{Actor: "*@grc.co.com", Operations: []string{"*"}},
		{Actor: "*@co.com", Operations: []string{"probe.read", "heartbeat.*"}},
		{Actor: "svc-deployer", Operations: []string{"deploy.launch", "probe.read"}},
	})
}

func TestEmptyPolicyAllowsAll(t *testing.T) {
	var nilPolicy *Policy
	if err := nilPolicy.Authorize(model.Actor{}, OpDeployLaunch); err != nil {
		t.Errorf("expected nil policy to allow, got %v", err)
	}
	if err := NewPolicy(nil).Authorize(model.Actor{}, OpDeployLaunch); err != nil {
		t.Errorf("expected empty policy to allow, got %v", err)
	}
}

func TestPolicyAuthorize(t *testing.T) {
	p := testPolicy()

	tests := []struct {
		name  string
		actor model.Actor
		op    Operation
		allow bool
	}{
		{"grc wildcard", model.Actor{Email: "lead@grc.co.com"}, OpDeployLaunch, true},
		{"employee read", model.Actor{Email: "dev@co.com"}, OpProbeRead, true},
		{"employee heartbeat prefix", model.Actor{Email: "dev@co.com"}, OpHeartbeatRecord, true},
		{"employee deploy denied", model.Actor{Email: "dev@co.com"}, OpDeployLaunch, false},
		{"service by id", model.Actor{ID: "svc-deployer"}, OpDeployLaunch, true},
		{"service cannot register", model.Actor{ID: "svc-deployer"}, OpProbeRegister, false},
		{"anonymous denied", model.Actor{}, OpProbeRead, false},
		{"case insensitive", model.Actor{Email: "Dev@CO.com"}, OpProbeRead, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.Authorize(tt.actor, tt.op)
			if tt.allow && err != nil {
				t.Errorf("expected allow, got %v", err)
			}
			if !tt.allow && !errors.Is(err, ErrDenied) {
				t.Errorf("expected ErrDenied, got %v", err)
			}
		})
	}
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern, value string
		want           bool
	}{
		{"*", "", true},
		{"*", "anything", true},
		{"", "x", false},
		{"*grc*", "lead@grc.co.com", true},
		{"*@co.com", "a@co.com", true},
		{"*@co.com", "a@co.org", false},
		{"probe.*", "probe.read", true},
		{"probe.*", "deploy.launch", false},
		{"deploy.launch", "DEPLOY.LAUNCH", true},
		{"*@co.com", "", false},
	}
	for _, tt := range tests {
		if got := MatchPattern(tt.pattern, tt.value); got != tt.want {
			t.Errorf("MatchPattern(%q, %q) = %v, expected %v", tt.pattern, tt.value, got, tt.want)
		}
	}
}
