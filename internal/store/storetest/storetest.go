// Package storetest provides SQLite-backed stores and fault injection for
// service tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ppiankov/probeplane/internal/model"
	"github.com/ppiankov/probeplane/internal/store"
)

// Open returns a migrated SQLite store in t.TempDir, closed on cleanup.
func Open(t testing.TB) *store.SQLStore {
	t.Helper()
	s, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "probeplane.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// Faulty wraps a Store and fails selected calls, including calls made
// through the transaction-bound Store handed out by WithinTx.
type Faulty struct {
	store.Store

	InsertProbeErr      error
	GetProbeErr         error
	UpsertMetricErr     error
	InsertEventErr      error
	InsertDeploymentErr error
}

func (f *Faulty) WithinTx(ctx context.Context, fn func(tx store.Store) error) error {
	return f.Store.WithinTx(ctx, func(tx store.Store) error {
		inner := *f
		inner.Store = tx
		return fn(&inner)
	})
}

func (f *Faulty) InsertProbe(ctx context.Context, p *model.Probe) error {
	if f.InsertProbeErr != nil {
		return f.InsertProbeErr
	}
	return f.Store.InsertProbe(ctx, p)
}

func (f *Faulty) GetProbe(ctx context.Context, id string) (*model.Probe, error) {
	if f.GetProbeErr != nil {
		return nil, f.GetProbeErr
	}
	return f.Store.GetProbe(ctx, id)
}

func (f *Faulty) UpsertMetric(ctx context.Context, m *model.Metric) error {
	if f.UpsertMetricErr != nil {
		return f.UpsertMetricErr
	}
	return f.Store.UpsertMetric(ctx, m)
}

// TouchMetric fails with UpsertMetricErr.
func (f *Faulty) TouchMetric(ctx context.Context, probeID string, intervalSeconds int, status model.HeartbeatStatus, at time.Time) error {
	if f.UpsertMetricErr != nil {
		return f.UpsertMetricErr
	}
	return f.Store.TouchMetric(ctx, probeID, intervalSeconds, status, at)
}

func (f *Faulty) InsertEvent(ctx context.Context, e *model.Event) error {
	if f.InsertEventErr != nil {
		return f.InsertEventErr
	}
	return f.Store.InsertEvent(ctx, e)
}

func (f *Faulty) InsertDeployment(ctx context.Context, d *model.Deployment) error {
	if f.InsertDeploymentErr != nil {
		return f.InsertDeploymentErr
	}
	return f.Store.InsertDeployment(ctx, d)
}
