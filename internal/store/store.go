// Package store persists probes, metrics, events, deployments and schedules.
//
// The SQL implementation runs on SQLite (modernc.org/sqlite, pure Go) or
// Postgres (lib/pq). Multi-row writes go through WithinTx so a failure
// leaves no partial state behind.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ppiankov/probeplane/internal/model"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned on a unique constraint violation.
	ErrConflict = errors.New("store: conflict")
)

// ProbeQuery filters and pages ListProbes. Zero values mean "no filter".
type ProbeQuery struct {
	Status       model.ProbeStatus
	FrameworkIDs []string // match any binding
	Owner        string   // substring of owner email or team, case-insensitive
	Search       string   // substring of name, description or slug, case-insensitive
	Limit        int
	Offset       int
}

// Store is the persistence port used by the control-plane services.
type Store interface {
	// WithinTx runs fn against a transaction-bound Store. fn's error rolls
	// back every write made through the Store it was given.
	WithinTx(ctx context.Context, fn func(tx Store) error) error

	InsertProbe(ctx context.Context, p *model.Probe) error
	GetProbe(ctx context.Context, id string) (*model.Probe, error)
	GetProbeBySlug(ctx context.Context, slug string) (*model.Probe, error)
	ListProbes(ctx context.Context, q ProbeQuery) ([]model.Probe, int, error)
	SetLastDeployedAt(ctx context.Context, probeID string, at time.Time) error

	UpsertMetric(ctx context.Context, m *model.Metric) error
	// TouchMetric updates only status, last heartbeat and updated_at.
	TouchMetric(ctx context.Context, probeID string, intervalSeconds int, status model.HeartbeatStatus, at time.Time) error
	GetMetric(ctx context.Context, probeID string) (*model.Metric, error)

	InsertEvent(ctx context.Context, e *model.Event) error
	ListEvents(ctx context.Context, probeID string, limit int) ([]model.Event, error)

	InsertDeployment(ctx context.Context, d *model.Deployment) error
	ListDeployments(ctx context.Context, probeID string, limit int) ([]model.Deployment, error)

	InsertSchedule(ctx context.Context, s *model.Schedule) error
	ListSchedules(ctx context.Context, probeID string) ([]model.Schedule, error)
	// MarkSchedulesRun stamps every active schedule of the probe and returns
	// how many rows changed.
	MarkSchedulesRun(ctx context.Context, probeID string, lastRunAt, nextRunAt time.Time) (int, error)

	Close() error
}
