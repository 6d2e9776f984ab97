package metadata

// postgresSchema creates the seven tables of the metadata store.
// Every statement is additive and idempotent (CREATE TABLE IF NOT EXISTS),
// so that re-running migrate against an already-current database is a no-op. New
// columns are never added by editing an existing CREATE TABLE statement.
var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		sample_rate INTEGER NOT NULL,
		channels INTEGER NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ,
		processed_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS segments (
		id BIGSERIAL PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		segment_number INTEGER NOT NULL,
		channel_group TEXT NOT NULL,
		local_path TEXT NOT NULL,
		s3_key TEXT,
		file_size BIGINT NOT NULL,
		received_at TIMESTAMPTZ NOT NULL,
		UNIQUE (session_id, segment_number, channel_group)
	)`,
	`CREATE TABLE IF NOT EXISTS processed_channels (
		id BIGSERIAL PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		channel_number INTEGER NOT NULL,
		local_path TEXT NOT NULL,
		s3_key TEXT,
		s3_url TEXT,
		hls_url TEXT,
		peaks_url TEXT,
		file_size BIGINT NOT NULL,
		duration_seconds DOUBLE PRECISION,
		is_quiet BOOLEAN NOT NULL DEFAULT FALSE,
		is_silent BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE (session_id, channel_number)
	)`,
	`CREATE TABLE IF NOT EXISTS pipeline_runs (
		id BIGSERIAL PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		channel_number INTEGER,
		step_name TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		duration_ms BIGINT,
		input_snapshot BYTEA,
		output_snapshot BYTEA,
		error_message TEXT,
		retry_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pipeline_runs_session ON pipeline_runs(session_id)`,
	`CREATE TABLE IF NOT EXISTS annotations (
		id BIGSERIAL PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		body TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS channel_settings (
		id BIGSERIAL PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		channel_number INTEGER NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		disabled BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE (session_id, channel_number)
	)`,
	`CREATE TABLE IF NOT EXISTS recordings (
		id BIGSERIAL PRIMARY KEY,
		session_id TEXT NOT NULL UNIQUE REFERENCES sessions(id) ON DELETE CASCADE,
		channel_count INTEGER NOT NULL,
		failed_channels INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		finalized_at TIMESTAMPTZ
	)`,
}

// sqliteSchema mirrors postgresSchema with SQLite-compatible types. Both
// schemas are kept side by side rather than generated from one source so
// that either can gain a dialect-specific column without the other
// noticing — the two backends are independent, not one derived from the
// other.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		sample_rate INTEGER NOT NULL,
		channels INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		completed_at TEXT,
		processed_at TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS segments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		segment_number INTEGER NOT NULL,
		channel_group TEXT NOT NULL,
		local_path TEXT NOT NULL,
		s3_key TEXT,
		file_size INTEGER NOT NULL,
		received_at TEXT NOT NULL,
		UNIQUE (session_id, segment_number, channel_group)
	)`,
	`CREATE TABLE IF NOT EXISTS processed_channels (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		channel_number INTEGER NOT NULL,
		local_path TEXT NOT NULL,
		s3_key TEXT,
		s3_url TEXT,
		hls_url TEXT,
		peaks_url TEXT,
		file_size INTEGER NOT NULL,
		duration_seconds REAL,
		is_quiet INTEGER NOT NULL DEFAULT 0,
		is_silent INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		UNIQUE (session_id, channel_number)
	)`,
	`CREATE TABLE IF NOT EXISTS pipeline_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		channel_number INTEGER,
		step_name TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at TEXT,
		completed_at TEXT,
		duration_ms INTEGER,
		input_snapshot BLOB,
		output_snapshot BLOB,
		error_message TEXT,
		retry_count INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pipeline_runs_session ON pipeline_runs(session_id)`,
	`CREATE TABLE IF NOT EXISTS annotations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		body TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS channel_settings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		channel_number INTEGER NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		disabled INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL,
		UNIQUE (session_id, channel_number)
	)`,
	`CREATE TABLE IF NOT EXISTS recordings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL UNIQUE REFERENCES sessions(id) ON DELETE CASCADE,
		channel_count INTEGER NOT NULL,
		failed_channels INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		finalized_at TEXT
	)`,
}
