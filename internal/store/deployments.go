package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ppiankov/probeplane/internal/model"
)

func (s *SQLStore) InsertDeployment(ctx context.Context, d *model.Deployment) error {
	manifest, err := encodeJSON(d.Manifest, "{}")
	if err != nil {
		return err
	}
	selfTest, err := encodeJSON(d.SelfTest, "{}")
	if err != nil {
		return err
	}
	meta, err := encodeJSON(d.Metadata, "{}")
	if err != nil {
		return err
	}

	_, err = s.exec(ctx, `INSERT INTO probe_deployments (
			id, probe_id, version, environment, canary_percent, overlay_id, status, summary,
			manifest, self_test, metadata, initiated_by_id, initiated_by_email,
			started_at, completed_at, rolled_back_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.ProbeID, d.Version, d.Environment, nullInt(d.CanaryPercent), d.OverlayID, string(d.Status), d.Summary,
		manifest, selfTest, meta, d.InitiatedBy.ID, d.InitiatedBy.Email,
		formatTime(d.StartedAt), formatTimePtr(d.CompletedAt), formatTimePtr(d.RolledBackAt),
	)
	if err != nil {
		return fmt.Errorf("store: insert deployment: %w", err)
	}
	return nil
}

// ListDeployments returns the newest deployments first.
func (s *SQLStore) ListDeployments(ctx context.Context, probeID string, limit int) ([]model.Deployment, error) {
	rows, err := s.query(ctx, `SELECT id, probe_id, version, environment, canary_percent, overlay_id,
			status, summary, manifest, self_test, metadata, initiated_by_id, initiated_by_email,
			started_at, completed_at, rolled_back_at
		FROM probe_deployments WHERE probe_id = ?
		ORDER BY started_at DESC, seq DESC LIMIT ?`, probeID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list deployments: %w", err)
	}
	defer rows.Close()

	out := []model.Deployment{}
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan deployment: %w", err)
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list deployments: %w", err)
	}
	return out, nil
}

func scanDeployment(sc scanner) (*model.Deployment, error) {
	var (
		d                                model.Deployment
		status, manifest, selfTest, meta string
		started                          string
		canary                           sql.NullInt64
		completed, rolledBack            sql.NullString
	)
	err := sc.Scan(&d.ID, &d.ProbeID, &d.Version, &d.Environment, &canary, &d.OverlayID,
		&status, &d.Summary, &manifest, &selfTest, &meta, &d.InitiatedBy.ID, &d.InitiatedBy.Email,
		&started, &completed, &rolledBack)
	if err != nil {
		return nil, err
	}

	d.Status = model.DeploymentStatus(status)
	d.CanaryPercent = intPtr(canary)
	if err := decodeJSON(manifest, &d.Manifest); err != nil {
		return nil, err
	}
	if err := decodeJSON(selfTest, &d.SelfTest); err != nil {
		return nil, err
	}
	if err := decodeJSON(meta, &d.Metadata); err != nil {
		return nil, err
	}
	if d.StartedAt, err = parseTime(started); err != nil {
		return nil, err
	}
	if d.CompletedAt, err = parseTimePtr(completed); err != nil {
		return nil, err
	}
	if d.RolledBackAt, err = parseTimePtr(rolledBack); err != nil {
		return nil, err
	}
	return &d, nil
}
