package store

import "fmt"

// schemaDDL returns the table definitions. seqColumn is the dialect's
// auto-incrementing primary key, used to order rows created in the same instant.
func schemaDDL(seqColumn string) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS probes (
	seq                        %s,
	id                         TEXT NOT NULL UNIQUE,
	slug                       TEXT NOT NULL UNIQUE,
	name                       TEXT NOT NULL,
	description                TEXT NOT NULL DEFAULT '',
	owner_email                TEXT NOT NULL,
	owner_team                 TEXT NOT NULL DEFAULT '',
	status                     TEXT NOT NULL,
	framework_bindings         TEXT NOT NULL DEFAULT '[]',
	evidence_schema            TEXT NOT NULL DEFAULT '{}',
	tags                       TEXT NOT NULL DEFAULT '[]',
	environment_overlays       TEXT NOT NULL DEFAULT '{}',
	sdk_version_min            TEXT NOT NULL,
	sdk_version_target         TEXT NOT NULL,
	heartbeat_interval_seconds INTEGER NOT NULL,
	alert_channels             TEXT NOT NULL DEFAULT '[]',
	last_deployed_at           TEXT,
	metadata                   TEXT NOT NULL DEFAULT '{}',
	created_at                 TEXT NOT NULL,
	updated_at                 TEXT NOT NULL
)`, seqColumn),
		`CREATE TABLE IF NOT EXISTS probe_metrics (
	probe_id                   TEXT PRIMARY KEY REFERENCES probes(id),
	heartbeat_status           TEXT NOT NULL,
	heartbeat_interval_seconds INTEGER NOT NULL,
	last_heartbeat_at          TEXT,
	failure_count_24h          INTEGER NOT NULL DEFAULT 0,
	latency_p95_ms             INTEGER,
	latency_p99_ms             INTEGER,
	error_rate_percent         DOUBLE PRECISION,
	last_error_code            TEXT,
	metadata                   TEXT NOT NULL DEFAULT '{}',
	updated_at                 TEXT NOT NULL
)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS probe_events (
	seq        %s,
	id         TEXT NOT NULL UNIQUE,
	probe_id   TEXT NOT NULL REFERENCES probes(id),
	type       TEXT NOT NULL,
	payload    TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL
)`, seqColumn),
		`CREATE INDEX IF NOT EXISTS idx_probe_events_probe ON probe_events(probe_id, created_at)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS probe_deployments (
	seq                 %s,
	id                  TEXT NOT NULL UNIQUE,
	probe_id            TEXT NOT NULL REFERENCES probes(id),
	version             TEXT NOT NULL,
	environment         TEXT NOT NULL,
	canary_percent      INTEGER,
	overlay_id          TEXT NOT NULL DEFAULT '',
	status              TEXT NOT NULL,
	summary             TEXT NOT NULL DEFAULT '',
	manifest            TEXT NOT NULL,
	self_test           TEXT NOT NULL,
	metadata            TEXT NOT NULL DEFAULT '{}',
	initiated_by_id     TEXT NOT NULL DEFAULT '',
	initiated_by_email  TEXT NOT NULL DEFAULT '',
	started_at          TEXT NOT NULL,
	completed_at        TEXT,
	rolled_back_at      TEXT
)`, seqColumn),
		`CREATE INDEX IF NOT EXISTS idx_probe_deployments_probe ON probe_deployments(probe_id, started_at)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS probe_schedules (
	seq              %s,
	id               TEXT NOT NULL UNIQUE,
	probe_id         TEXT NOT NULL REFERENCES probes(id),
	type             TEXT NOT NULL,
	expression       TEXT NOT NULL DEFAULT '',
	priority         TEXT NOT NULL,
	status           TEXT NOT NULL,
	controls         TEXT NOT NULL DEFAULT '[]',
	next_run_at      TEXT NOT NULL,
	last_run_at      TEXT,
	created_by_id    TEXT NOT NULL DEFAULT '',
	created_by_email TEXT NOT NULL DEFAULT '',
	created_at       TEXT NOT NULL
)`, seqColumn),
		`CREATE INDEX IF NOT EXISTS idx_probe_schedules_probe ON probe_schedules(probe_id)`,
	}
}
