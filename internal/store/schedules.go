package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ppiankov/probeplane/internal/model"
)

func (s *SQLStore) InsertSchedule(ctx context.Context, sc *model.Schedule) error {
	controls, err := encodeJSON(sc.Controls, "[]")
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `INSERT INTO probe_schedules (
			id, probe_id, type, expression, priority, status, controls,
			next_run_at, last_run_at, created_by_id, created_by_email, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.ID, sc.ProbeID, string(sc.Type), sc.Expression, string(sc.Priority), string(sc.Status), controls,
		formatTime(sc.NextRunAt), formatTimePtr(sc.LastRunAt), sc.CreatedBy.ID, sc.CreatedBy.Email, formatTime(sc.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("store: insert schedule: %w", err)
	}
	return nil
}

// ListSchedules returns schedules in creation order.
func (s *SQLStore) ListSchedules(ctx context.Context, probeID string) ([]model.Schedule, error) {
	rows, err := s.query(ctx, `SELECT id, probe_id, type, expression, priority, status, controls,
			next_run_at, last_run_at, created_by_id, created_by_email, created_at
		FROM probe_schedules WHERE probe_id = ?
		ORDER BY created_at ASC, seq ASC`, probeID)
	if err != nil {
		return nil, fmt.Errorf("store: list schedules: %w", err)
	}
	defer rows.Close()

	out := []model.Schedule{}
	for rows.Next() {
		var (
			sc                              model.Schedule
			typ, priority, status, controls string
			nextRun, created                string
			lastRun                         sql.NullString
		)
		if err := rows.Scan(&sc.ID, &sc.ProbeID, &typ, &sc.Expression, &priority, &status, &controls,
			&nextRun, &lastRun, &sc.CreatedBy.ID, &sc.CreatedBy.Email, &created); err != nil {
			return nil, fmt.Errorf("store: scan schedule: %w", err)
		}
		sc.Type = model.ScheduleType(typ)
		sc.Priority = model.Priority(priority)
		sc.Status = model.ScheduleStatus(status)
		if err := decodeJSON(controls, &sc.Controls); err != nil {
			return nil, err
		}
		if sc.NextRunAt, err = parseTime(nextRun); err != nil {
			return nil, err
		}
		if sc.LastRunAt, err = parseTimePtr(lastRun); err != nil {
			return nil, err
		}
		if sc.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list schedules: %w", err)
	}
	return out, nil
}

func (s *SQLStore) MarkSchedulesRun(ctx context.Context, probeID string, lastRunAt, nextRunAt time.Time) (int, error) {
	res, err := s.exec(ctx, `UPDATE probe_schedules SET last_run_at = ?, next_run_at = ?
		WHERE probe_id = ? AND status = ?`,
		formatTime(lastRunAt), formatTime(nextRunAt), probeID, string(model.ScheduleActive))
	if err != nil {
		return 0, fmt.Errorf("store: mark schedules run: %w", err)
	}
	return affected(res)
}
