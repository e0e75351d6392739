package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/probeplane/internal/model"
)

const probeColumns = `id, slug, name, description, owner_email, owner_team, status,
	framework_bindings, evidence_schema, tags, environment_overlays,
	sdk_version_min, sdk_version_target, heartbeat_interval_seconds, alert_channels,
	last_deployed_at, metadata, created_at, updated_at`

func (s *SQLStore) InsertProbe(ctx context.Context, p *model.Probe) error {
	bindings, err := encodeJSON(p.FrameworkBindings, "[]")
	if err != nil {
		return err
	}
	schema, err := encodeJSON(p.EvidenceSchema, "{}")
	if err != nil {
		return err
	}
	tags, err := encodeJSON(p.Tags, "[]")
	if err != nil {
		return err
	}
	overlays, err := encodeJSON(p.EnvironmentOverlays, "{}")
	if err != nil {
		return err
	}
	channels, err := encodeJSON(p.AlertChannels, "[]")
	if err != nil {
		return err
	}
	meta, err := encodeJSON(p.Metadata, "{}")
	if err != nil {
		return err
	}

	_, err = s.exec(ctx, `INSERT INTO probes (`+probeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Slug, p.Name, p.Description, p.OwnerEmail, p.OwnerTeam, string(p.Status),
		bindings, schema, tags, overlays,
		p.SDKVersionMin, p.SDKVersionTarget, p.HeartbeatIntervalSeconds, channels,
		formatTimePtr(p.LastDeployedAt), meta, formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("store: insert probe: %w", err)
	}
	return nil
}

func (s *SQLStore) GetProbe(ctx context.Context, id string) (*model.Probe, error) {
	row := s.queryRow(ctx, `SELECT `+probeColumns+` FROM probes WHERE id = ?`, id)
	p, err := scanProbe(row)
	if err != nil {
		return nil, fmt.Errorf("store: get probe: %w", mapErr(err))
	}
	return p, nil
}

func (s *SQLStore) GetProbeBySlug(ctx context.Context, slug string) (*model.Probe, error) {
	row := s.queryRow(ctx, `SELECT `+probeColumns+` FROM probes WHERE slug = ?`, slug)
	p, err := scanProbe(row)
	if err != nil {
		return nil, fmt.Errorf("store: get probe by slug: %w", mapErr(err))
	}
	return p, nil
}

func (s *SQLStore) ListProbes(ctx context.Context, q ProbeQuery) ([]model.Probe, int, error) {
	where, args := probeFilter(q, s.dialect.fold)

	var total int
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM probes`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count probes: %w", mapErr(err))
	}

	pageArgs := append(args, q.Limit, q.Offset)
	rows, err := s.query(ctx, `SELECT `+probeColumns+` FROM probes`+where+`
		ORDER BY created_at DESC, seq DESC LIMIT ? OFFSET ?`, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list probes: %w", err)
	}
	defer rows.Close()

	probes := []model.Probe{}
	for rows.Next() {
		p, err := scanProbe(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("store: scan probe: %w", err)
		}
		probes = append(probes, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("store: list probes: %w", err)
	}
	return probes, total, nil
}

// probeFilter builds the WHERE clause. fold names the SQL function that
// lowercases a column the way containsPattern lowercases the term.
func probeFilter(q ProbeQuery, fold string) (string, []any) {
	var clauses []string
	var args []any

	if q.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(q.Status))
	}

	var anyOf []string
	for _, fw := range q.FrameworkIDs {
		fw = strings.TrimSpace(fw)
		if fw == "" {
			continue
		}
		quoted, _ := json.Marshal(fw)
		anyOf = append(anyOf, `framework_bindings LIKE ? ESCAPE '\'`)
		args = append(args, "%"+likeEscaper.Replace(string(quoted))+"%")
	}
	if len(anyOf) > 0 {
		clauses = append(clauses, "("+strings.Join(anyOf, " OR ")+")")
	}

	if owner := strings.TrimSpace(q.Owner); owner != "" {
		pat := containsPattern(owner)
		clauses = append(clauses, fmt.Sprintf(`(%[1]s(owner_email) LIKE ? ESCAPE '\' OR %[1]s(owner_team) LIKE ? ESCAPE '\')`, fold))
		args = append(args, pat, pat)
	}

	if search := strings.TrimSpace(q.Search); search != "" {
		pat := containsPattern(search)
		clauses = append(clauses, fmt.Sprintf(`(%[1]s(name) LIKE ? ESCAPE '\' OR %[1]s(description) LIKE ? ESCAPE '\' OR %[1]s(slug) LIKE ? ESCAPE '\')`, fold))
		args = append(args, pat, pat, pat)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (s *SQLStore) SetLastDeployedAt(ctx context.Context, probeID string, at time.Time) error {
	res, err := s.exec(ctx, `UPDATE probes SET last_deployed_at = ?, updated_at = ? WHERE id = ?`,
		formatTime(at), formatTime(at), probeID)
	if err != nil {
		return fmt.Errorf("store: set last deployed: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("store: set last deployed: %w", ErrNotFound)
	}
	return nil
}

func scanProbe(sc scanner) (*model.Probe, error) {
	var (
		p                                                    model.Probe
		status, created, updated                             string
		bindings, schema, tags, overlays, channels, metadata string
		lastDeployed                                         sql.NullString
	)
	err := sc.Scan(&p.ID, &p.Slug, &p.Name, &p.Description, &p.OwnerEmail, &p.OwnerTeam, &status,
		&bindings, &schema, &tags, &overlays,
		&p.SDKVersionMin, &p.SDKVersionTarget, &p.HeartbeatIntervalSeconds, &channels,
		&lastDeployed, &metadata, &created, &updated)
	if err != nil {
		return nil, err
	}
	p.Status = model.ProbeStatus(status)

	for _, f := range []struct {
		src string
		dst any
	}{
		{bindings, &p.FrameworkBindings},
		{schema, &p.EvidenceSchema},
		{tags, &p.Tags},
		{overlays, &p.EnvironmentOverlays},
		{channels, &p.AlertChannels},
		{metadata, &p.Metadata},
	} {
		if err := decodeJSON(f.src, f.dst); err != nil {
			return nil, err
		}
	}

	if p.LastDeployedAt, err = parseTimePtr(lastDeployed); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &p, nil
}
