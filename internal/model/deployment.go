package model

import "time"

// DeploymentStatus is the terminal outcome of a rollout attempt.
type DeploymentStatus string

const (
	DeploymentCompleted DeploymentStatus = "completed"
	DeploymentFailed    DeploymentStatus = "failed"
)

// Manifest is the configuration snapshot a deployment was tested against.
type Manifest struct {
	ProbeID                  string         `json:"probeId"`
	Slug                     string         `json:"slug"`
	Version                  string         `json:"version"`
	Environment              string         `json:"environment"`
	OverlayID                string         `json:"overlayId,omitempty"`
	CanaryPercent            *int           `json:"canaryPercent,omitempty"`
	SDKVersionMin            string         `json:"sdkVersionMin"`
	SDKVersionTarget         string         `json:"sdkVersionTarget"`
	HeartbeatIntervalSeconds int            `json:"heartbeatIntervalSeconds"`
	DeploymentTopic          string         `json:"deploymentTopic"`
	FrameworkBindings        []string       `json:"frameworkBindings"`
	Config                   map[string]any `json:"config"`
}

// Diagnostic is a single self-test check outcome.
type Diagnostic struct {
	Check  string `json:"check"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// SelfTestResult is the gate that decides commit versus rollback.
type SelfTestResult struct {
	Passed      bool         `json:"passed"`
	Diagnostics []Diagnostic `json:"diagnostics"`
	DurationMs  int64        `json:"durationMs"`
}

// Deployment is one rollout attempt of a probe version to an environment.
// Exactly one of CompletedAt and RolledBackAt is set, matching Status.
// Records are never updated after insert.
type Deployment struct {
	ID            string           `json:"id"`
	ProbeID       string           `json:"probeId"`
	Version       string           `json:"version"`
	Environment   string           `json:"environment"`
	CanaryPercent *int             `json:"canaryPercent,omitempty"`
	OverlayID     string           `json:"overlayId,omitempty"`
	Status        DeploymentStatus `json:"status"`
	Summary       string           `json:"summary,omitempty"`
	Manifest      Manifest         `json:"manifest"`
	SelfTest      SelfTestResult   `json:"selfTest"`
	Metadata      map[string]any   `json:"metadata,omitempty"`
	InitiatedBy   Actor            `json:"initiatedBy"`
	StartedAt     time.Time        `json:"startedAt"`
	CompletedAt   *time.Time       `json:"completedAt"`
	RolledBackAt  *time.Time       `json:"rolledBackAt"`
}
