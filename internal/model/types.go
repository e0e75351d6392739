package model

import "time"

// ProbeStatus is the lifecycle state of a probe definition.
type ProbeStatus string

const (
	ProbeDraft      ProbeStatus = "draft"
	ProbeActive     ProbeStatus = "active"
	ProbeDeprecated ProbeStatus = "deprecated"
)

// Valid reports whether s is one of the known probe states.
func (s ProbeStatus) Valid() bool {
	switch s {
	case ProbeDraft, ProbeActive, ProbeDeprecated:
		return true
	}
	return false
}

// Actor identifies the caller an operation is attributed to.
// It is supplied by the authentication layer in front of the control plane.
type Actor struct {
	ID    string `json:"id,omitempty"`
	Email string `json:"email,omitempty"`
}

// Probe is a registered definition of a compliance evidence collection agent.
// Slug is unique and never changes after creation.
type Probe struct {
	ID                       string                    `json:"id"`
	Slug                     string                    `json:"slug"`
	Name                     string                    `json:"name"`
	Description              string                    `json:"description,omitempty"`
	OwnerEmail               string                    `json:"ownerEmail"`
	OwnerTeam                string                    `json:"ownerTeam,omitempty"`
	Status                   ProbeStatus               `json:"status"`
	FrameworkBindings        []string                  `json:"frameworkBindings"`
	EvidenceSchema           map[string]any            `json:"evidenceSchema,omitempty"`
	Tags                     []string                  `json:"tags"`
	EnvironmentOverlays      map[string]map[string]any `json:"environmentOverlays,omitempty"`
	SDKVersionMin            string                    `json:"sdkVersionMin"`
	SDKVersionTarget         string                    `json:"sdkVersionTarget"`
	HeartbeatIntervalSeconds int                       `json:"heartbeatIntervalSeconds"`
	AlertChannels            []string                  `json:"alertChannels"`
	LastDeployedAt           *time.Time                `json:"lastDeployedAt"`
	Metadata                 map[string]any            `json:"metadata,omitempty"`
	CreatedAt                time.Time                 `json:"createdAt"`
	UpdatedAt                time.Time                 `json:"updatedAt"`

	// Populated on hydrated reads only.
	Metrics     *Metric      `json:"metrics,omitempty"`
	Schedules   []Schedule   `json:"schedules,omitempty"`
	Deployments []Deployment `json:"deployments,omitempty"`
}

// HeartbeatStatus is the closed set of fleet health classifications.
type HeartbeatStatus string

const (
	Operational HeartbeatStatus = "operational"
	Degraded    HeartbeatStatus = "degraded"
	Outage      HeartbeatStatus = "outage"
)

// Metric is the live health snapshot of a probe. There is one per probe.
type Metric struct {
	ProbeID                  string          `json:"probeId"`
	HeartbeatStatus          HeartbeatStatus `json:"status"`
	HeartbeatIntervalSeconds int             `json:"heartbeatIntervalSeconds"`
	LastHeartbeatAt          *time.Time      `json:"lastHeartbeatAt"`
	FailureCount24h          int             `json:"failureCount24h"`
	LatencyP95Ms             *int            `json:"latencyP95Ms"`
	LatencyP99Ms             *int            `json:"latencyP99Ms"`
	ErrorRatePercent         *float64        `json:"errorRatePercent"`
	LastErrorCode            *string         `json:"lastErrorCode"`
	Metadata                 map[string]any  `json:"metadata,omitempty"`
	UpdatedAt                time.Time       `json:"updatedAt"`
}

// EventType classifies entries in the probe event log.
type EventType string

const (
	EventRegistration EventType = "registration"
	EventHeartbeat    EventType = "heartbeat"
	EventFailure      EventType = "failure"
	EventDeployment   EventType = "deployment"
	EventRun          EventType = "run"
)

// Event is an append-only probe lifecycle log entry. Events are never
// mutated or deleted.
type Event struct {
	ID        string         `json:"id"`
	ProbeID   string         `json:"probeId"`
	Type      EventType      `json:"type"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Page is an offset/limit pagination window.
type Page struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Pagination describes a returned page relative to the full result set.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	Total   int  `json:"total"`
	HasMore bool `json:"hasMore"`
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
