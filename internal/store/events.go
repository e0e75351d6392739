package store

import (
	"context"
	"fmt"

	"github.com/ppiankov/probeplane/internal/model"
)

func (s *SQLStore) InsertEvent(ctx context.Context, e *model.Event) error {
	payload, err := encodeJSON(e.Payload, "{}")
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `INSERT INTO probe_events (id, probe_id, type, payload, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.ProbeID, string(e.Type), payload, formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("store: insert event: %w", err)
	}
	return nil
}

// ListEvents returns the newest events first.
func (s *SQLStore) ListEvents(ctx context.Context, probeID string, limit int) ([]model.Event, error) {
	rows, err := s.query(ctx, `SELECT id, probe_id, type, payload, created_at
		FROM probe_events WHERE probe_id = ?
		ORDER BY created_at DESC, seq DESC LIMIT ?`, probeID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list events: %w", err)
	}
	defer rows.Close()

	out := []model.Event{}
	for rows.Next() {
		var (
			e                       model.Event
			typ, payload, createdAt string
		)
		if err := rows.Scan(&e.ID, &e.ProbeID, &typ, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scan event: %w", err)
		}
		e.Type = model.EventType(typ)
		if err := decodeJSON(payload, &e.Payload); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list events: %w", err)
	}
	return out, nil
}
