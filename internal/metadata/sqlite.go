package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"audioreceiver/internal/models"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the embeddable Store backend used for local development
// and the test suite: a single-file (or in-memory) database opened through
// database/sql with the pure-Go modernc.org/sqlite driver. It implements
// the same Store contract as PostgresStore so callers never branch on
// backend.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens path (use ":memory:" for an ephemeral store) and
// applies the schema additively.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid pool contention on a single file
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	store := &SQLiteStore{db: db}
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Migrate applies the schema additively; safe to call on every startup.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func iso(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func isoPtr(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return iso(*t)
}

func parseISO(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp %q: %w", s.String, err)
	}
	return &t, nil
}

func (s *SQLiteStore) UpsertSession(ctx context.Context, id string, sampleRate, channels int) (models.Session, error) {
	now := iso(time.Now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, status, sample_rate, channels, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`, id, models.SessionReceiving, sampleRate, channels, now, now)
	if err != nil {
		return models.Session{}, fmt.Errorf("upsert session %s: %w", id, err)
	}
	return s.GetSession(ctx, id)
}

func (s *SQLiteStore) TouchSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`, iso(time.Now()), id)
	if err != nil {
		return fmt.Errorf("touch session %s: %w", id, err)
	}
	return requireRowsAffected(res)
}

func (s *SQLiteStore) scanSessionRow(row *sql.Row) (models.Session, error) {
	var sess models.Session
	var created, updated string
	var completed, processed sql.NullString
	if err := row.Scan(&sess.ID, &sess.Status, &sess.SampleRate, &sess.Channels, &created, &updated, &completed, &processed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Session{}, ErrNotFound
		}
		return models.Session{}, err
	}
	var err error
	if sess.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return models.Session{}, err
	}
	if sess.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return models.Session{}, err
	}
	if sess.CompletedAt, err = parseISO(completed); err != nil {
		return models.Session{}, err
	}
	if sess.ProcessedAt, err = parseISO(processed); err != nil {
		return models.Session{}, err
	}
	return sess, nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (models.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, status, sample_rate, channels, created_at, updated_at, completed_at, processed_at
		FROM sessions WHERE id = ?
	`, id)
	return s.scanSessionRow(row)
}

func (s *SQLiteStore) SetSessionStatus(ctx context.Context, id string, status models.SessionStatus) (models.Session, error) {
	now := iso(time.Now())
	var completedAt, processedAt any
	switch status {
	case models.SessionComplete:
		completedAt = now
	case models.SessionProcessed:
		processedAt = now
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET
			status = ?,
			updated_at = ?,
			completed_at = COALESCE(completed_at, ?),
			processed_at = COALESCE(processed_at, ?)
		WHERE id = ?
	`, status, now, completedAt, processedAt, id)
	if err != nil {
		return models.Session{}, fmt.Errorf("set session status %s: %w", id, err)
	}
	if err := requireRowsAffected(res); err != nil {
		return models.Session{}, err
	}
	return s.GetSession(ctx, id)
}

func (s *SQLiteStore) listSessions(ctx context.Context, query string, args ...any) ([]models.Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()
	var out []models.Session
	for rows.Next() {
		var sess models.Session
		var created, updated string
		var completed, processed sql.NullString
		if err := rows.Scan(&sess.ID, &sess.Status, &sess.SampleRate, &sess.Channels, &created, &updated, &completed, &processed); err != nil {
			return nil, err
		}
		if sess.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, err
		}
		if sess.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
			return nil, err
		}
		if sess.CompletedAt, err = parseISO(completed); err != nil {
			return nil, err
		}
		if sess.ProcessedAt, err = parseISO(processed); err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListSessionsByStatus(ctx context.Context, status models.SessionStatus) ([]models.Session, error) {
	return s.listSessions(ctx, `
		SELECT id, status, sample_rate, channels, created_at, updated_at, completed_at, processed_at
		FROM sessions WHERE status = ? ORDER BY created_at ASC
	`, status)
}

func (s *SQLiteStore) ListStaleReceivingSessions(ctx context.Context, olderThan time.Time) ([]models.Session, error) {
	return s.listSessions(ctx, `
		SELECT id, status, sample_rate, channels, created_at, updated_at, completed_at, processed_at
		FROM sessions WHERE status = ? AND updated_at < ? ORDER BY updated_at ASC
	`, models.SessionReceiving, iso(olderThan))
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return requireRowsAffected(res)
}

func (s *SQLiteStore) UpsertSegment(ctx context.Context, seg models.Segment) (models.Segment, error) {
	if seg.ReceivedAt.IsZero() {
		seg.ReceivedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO segments (session_id, segment_number, channel_group, local_path, s3_key, file_size, received_at)
		VALUES (?, ?, ?, ?, NULL, ?, ?)
		ON CONFLICT (session_id, segment_number, channel_group) DO UPDATE SET
			local_path = excluded.local_path,
			s3_key = NULL,
			file_size = excluded.file_size,
			received_at = excluded.received_at
	`, seg.SessionID, seg.SegmentNumber, seg.ChannelGroup, seg.LocalPath, seg.FileSize, iso(seg.ReceivedAt))
	if err != nil {
		return models.Segment{}, fmt.Errorf("upsert segment: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, segment_number, channel_group, local_path, s3_key, file_size, received_at
		FROM segments WHERE session_id = ? AND segment_number = ? AND channel_group = ?
	`, seg.SessionID, seg.SegmentNumber, seg.ChannelGroup)
	return scanSQLiteSegment(row)
}

func scanSQLiteSegment(row *sql.Row) (models.Segment, error) {
	var out models.Segment
	var received string
	if err := row.Scan(&out.ID, &out.SessionID, &out.SegmentNumber, &out.ChannelGroup, &out.LocalPath, &out.S3Key, &out.FileSize, &received); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Segment{}, ErrNotFound
		}
		return models.Segment{}, err
	}
	var err error
	if out.ReceivedAt, err = time.Parse(time.RFC3339Nano, received); err != nil {
		return models.Segment{}, err
	}
	return out, nil
}

func (s *SQLiteStore) SetSegmentObjectKey(ctx context.Context, segmentID int64, s3Key string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE segments SET s3_key = ? WHERE id = ?`, s3Key, segmentID)
	if err != nil {
		return fmt.Errorf("set segment object key: %w", err)
	}
	return requireRowsAffected(res)
}

func (s *SQLiteStore) ListSegments(ctx context.Context, sessionID string) ([]models.Segment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, segment_number, channel_group, local_path, s3_key, file_size, received_at
		FROM segments WHERE session_id = ? ORDER BY segment_number ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	defer rows.Close()
	var out []models.Segment
	for rows.Next() {
		var seg models.Segment
		var received string
		if err := rows.Scan(&seg.ID, &seg.SessionID, &seg.SegmentNumber, &seg.ChannelGroup, &seg.LocalPath, &seg.S3Key, &seg.FileSize, &received); err != nil {
			return nil, err
		}
		if seg.ReceivedAt, err = time.Parse(time.RFC3339Nano, received); err != nil {
			return nil, err
		}
		out = append(out, seg)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SegmentExists(ctx context.Context, key SegmentKey) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM segments WHERE session_id = ? AND segment_number = ? AND channel_group = ?)
	`, key.SessionID, key.SegmentNumber, key.ChannelGroup).Scan(&exists)
	return exists, err
}

func (s *SQLiteStore) UpsertProcessedChannel(ctx context.Context, pc models.ProcessedChannel) (models.ProcessedChannel, error) {
	if pc.CreatedAt.IsZero() {
		pc.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processed_channels
			(session_id, channel_number, local_path, s3_key, s3_url, hls_url, peaks_url, file_size, duration_seconds, is_quiet, is_silent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, channel_number) DO UPDATE SET
			local_path = excluded.local_path,
			s3_key = excluded.s3_key,
			s3_url = excluded.s3_url,
			hls_url = excluded.hls_url,
			peaks_url = excluded.peaks_url,
			file_size = excluded.file_size,
			duration_seconds = excluded.duration_seconds,
			is_quiet = excluded.is_quiet,
			is_silent = excluded.is_silent
	`, pc.SessionID, pc.ChannelNumber, pc.LocalPath, pc.S3Key, pc.S3URL, pc.HLSURL, pc.PeaksURL, pc.FileSize, pc.DurationSeconds, pc.IsQuiet, pc.IsSilent, iso(pc.CreatedAt))
	if err != nil {
		return models.ProcessedChannel{}, fmt.Errorf("upsert processed channel: %w", err)
	}
	return s.GetProcessedChannel(ctx, pc.SessionID, pc.ChannelNumber)
}

func scanSQLiteProcessedChannel(row *sql.Row) (models.ProcessedChannel, error) {
	var out models.ProcessedChannel
	var created string
	if err := row.Scan(&out.ID, &out.SessionID, &out.ChannelNumber, &out.LocalPath, &out.S3Key, &out.S3URL, &out.HLSURL, &out.PeaksURL, &out.FileSize, &out.DurationSeconds, &out.IsQuiet, &out.IsSilent, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ProcessedChannel{}, ErrNotFound
		}
		return models.ProcessedChannel{}, err
	}
	var err error
	if out.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return models.ProcessedChannel{}, err
	}
	return out, nil
}

func (s *SQLiteStore) GetProcessedChannel(ctx context.Context, sessionID string, channel int) (models.ProcessedChannel, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, channel_number, local_path, s3_key, s3_url, hls_url, peaks_url, file_size, duration_seconds, is_quiet, is_silent, created_at
		FROM processed_channels WHERE session_id = ? AND channel_number = ?
	`, sessionID, channel)
	return scanSQLiteProcessedChannel(row)
}

func (s *SQLiteStore) ListProcessedChannels(ctx context.Context, sessionID string) ([]models.ProcessedChannel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, channel_number, local_path, s3_key, s3_url, hls_url, peaks_url, file_size, duration_seconds, is_quiet, is_silent, created_at
		FROM processed_channels WHERE session_id = ? ORDER BY channel_number ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list processed channels: %w", err)
	}
	defer rows.Close()
	var out []models.ProcessedChannel
	for rows.Next() {
		var pc models.ProcessedChannel
		var created string
		if err := rows.Scan(&pc.ID, &pc.SessionID, &pc.ChannelNumber, &pc.LocalPath, &pc.S3Key, &pc.S3URL, &pc.HLSURL, &pc.PeaksURL, &pc.FileSize, &pc.DurationSeconds, &pc.IsQuiet, &pc.IsSilent, &created); err != nil {
			return nil, err
		}
		if pc.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, err
		}
		out = append(out, pc)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CreatePipelineRun(ctx context.Context, run models.PipelineRun) (models.PipelineRun, error) {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs
			(session_id, channel_number, step_name, status, started_at, completed_at, duration_ms, input_snapshot, output_snapshot, error_message, retry_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.SessionID, run.ChannelNumber, run.StepName, run.Status, isoPtr(run.StartedAt), isoPtr(run.CompletedAt), run.DurationMs, run.InputSnapshot, run.OutputSnapshot, run.ErrorMessage, run.RetryCount, iso(run.CreatedAt))
	if err != nil {
		return models.PipelineRun{}, fmt.Errorf("create pipeline run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.PipelineRun{}, fmt.Errorf("read pipeline run id: %w", err)
	}
	return s.GetPipelineRun(ctx, id)
}

func scanSQLitePipelineRun(row *sql.Row) (models.PipelineRun, error) {
	var out models.PipelineRun
	var started, completed sql.NullString
	var created string
	if err := row.Scan(&out.ID, &out.SessionID, &out.ChannelNumber, &out.StepName, &out.Status, &started, &completed, &out.DurationMs, &out.InputSnapshot, &out.OutputSnapshot, &out.ErrorMessage, &out.RetryCount, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.PipelineRun{}, ErrNotFound
		}
		return models.PipelineRun{}, err
	}
	var err error
	if out.StartedAt, err = parseISO(started); err != nil {
		return models.PipelineRun{}, err
	}
	if out.CompletedAt, err = parseISO(completed); err != nil {
		return models.PipelineRun{}, err
	}
	if out.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return models.PipelineRun{}, err
	}
	return out, nil
}

func (s *SQLiteStore) UpdatePipelineRun(ctx context.Context, run models.PipelineRun) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pipeline_runs SET
			status = ?,
			started_at = ?,
			completed_at = ?,
			duration_ms = ?,
			output_snapshot = ?,
			error_message = ?,
			retry_count = ?
		WHERE id = ?
	`, run.Status, isoPtr(run.StartedAt), isoPtr(run.CompletedAt), run.DurationMs, run.OutputSnapshot, run.ErrorMessage, run.RetryCount, run.ID)
	if err != nil {
		return fmt.Errorf("update pipeline run %d: %w", run.ID, err)
	}
	return requireRowsAffected(res)
}

func (s *SQLiteStore) GetPipelineRun(ctx context.Context, id int64) (models.PipelineRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, channel_number, step_name, status, started_at, completed_at, duration_ms, input_snapshot, output_snapshot, error_message, retry_count, created_at
		FROM pipeline_runs WHERE id = ?
	`, id)
	return scanSQLitePipelineRun(row)
}

func (s *SQLiteStore) ListPipelineRuns(ctx context.Context, filter PipelineRunFilter) ([]models.PipelineRun, error) {
	query := `SELECT id, session_id, channel_number, step_name, status, started_at, completed_at, duration_ms, input_snapshot, output_snapshot, error_message, retry_count, created_at FROM pipeline_runs WHERE 1=1`
	var args []any
	if filter.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, filter.SessionID)
	}
	if filter.Channel != nil {
		query += " AND channel_number = ?"
		args = append(args, *filter.Channel)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	query += " ORDER BY created_at DESC"
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pipeline runs: %w", err)
	}
	defer rows.Close()
	var out []models.PipelineRun
	for rows.Next() {
		var run models.PipelineRun
		var started, completed sql.NullString
		var created string
		if err := rows.Scan(&run.ID, &run.SessionID, &run.ChannelNumber, &run.StepName, &run.Status, &started, &completed, &run.DurationMs, &run.InputSnapshot, &run.OutputSnapshot, &run.ErrorMessage, &run.RetryCount, &created); err != nil {
			return nil, err
		}
		if run.StartedAt, err = parseISO(started); err != nil {
			return nil, err
		}
		if run.CompletedAt, err = parseISO(completed); err != nil {
			return nil, err
		}
		if run.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CreateAnnotation(ctx context.Context, sessionID, body string) (models.Annotation, error) {
	now := iso(time.Now())
	res, err := s.db.ExecContext(ctx, `INSERT INTO annotations (session_id, body, created_at) VALUES (?, ?, ?)`, sessionID, body, now)
	if err != nil {
		return models.Annotation{}, fmt.Errorf("create annotation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Annotation{}, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, now)
	if err != nil {
		return models.Annotation{}, err
	}
	return models.Annotation{ID: id, SessionID: sessionID, Body: body, CreatedAt: createdAt}, nil
}

func (s *SQLiteStore) ListAnnotations(ctx context.Context, sessionID string) ([]models.Annotation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, session_id, body, created_at FROM annotations WHERE session_id = ? ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	defer rows.Close()
	var out []models.Annotation
	for rows.Next() {
		var a models.Annotation
		var created string
		if err := rows.Scan(&a.ID, &a.SessionID, &a.Body, &created); err != nil {
			return nil, err
		}
		if a.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpsertChannelSetting(ctx context.Context, cs models.ChannelSetting) (models.ChannelSetting, error) {
	now := iso(time.Now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO channel_settings (session_id, channel_number, label, disabled, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (session_id, channel_number) DO UPDATE SET
			label = excluded.label, disabled = excluded.disabled, updated_at = excluded.updated_at
	`, cs.SessionID, cs.ChannelNumber, cs.Label, cs.Disabled, now)
	if err != nil {
		return models.ChannelSetting{}, fmt.Errorf("upsert channel setting: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT id, session_id, channel_number, label, disabled, updated_at FROM channel_settings WHERE session_id = ? AND channel_number = ?`, cs.SessionID, cs.ChannelNumber)
	var out models.ChannelSetting
	var updated string
	if err := row.Scan(&out.ID, &out.SessionID, &out.ChannelNumber, &out.Label, &out.Disabled, &updated); err != nil {
		return models.ChannelSetting{}, err
	}
	if out.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return models.ChannelSetting{}, err
	}
	return out, nil
}

func (s *SQLiteStore) ListChannelSettings(ctx context.Context, sessionID string) ([]models.ChannelSetting, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, session_id, channel_number, label, disabled, updated_at FROM channel_settings WHERE session_id = ? ORDER BY channel_number ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list channel settings: %w", err)
	}
	defer rows.Close()
	var out []models.ChannelSetting
	for rows.Next() {
		var cs models.ChannelSetting
		var updated string
		if err := rows.Scan(&cs.ID, &cs.SessionID, &cs.ChannelNumber, &cs.Label, &cs.Disabled, &updated); err != nil {
			return nil, err
		}
		if cs.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
			return nil, err
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpsertRecording(ctx context.Context, rec models.Recording) (models.Recording, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recordings (session_id, channel_count, failed_channels, created_at, finalized_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET
			channel_count = excluded.channel_count,
			failed_channels = excluded.failed_channels,
			finalized_at = excluded.finalized_at
	`, rec.SessionID, rec.ChannelCount, rec.FailedChannels, iso(rec.CreatedAt), isoPtr(rec.FinalizedAt))
	if err != nil {
		return models.Recording{}, fmt.Errorf("upsert recording: %w", err)
	}
	return s.GetRecording(ctx, rec.SessionID)
}

func (s *SQLiteStore) GetRecording(ctx context.Context, sessionID string) (models.Recording, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, session_id, channel_count, failed_channels, created_at, finalized_at FROM recordings WHERE session_id = ?`, sessionID)
	var out models.Recording
	var created string
	var finalized sql.NullString
	if err := row.Scan(&out.ID, &out.SessionID, &out.ChannelCount, &out.FailedChannels, &created, &finalized); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Recording{}, ErrNotFound
		}
		return models.Recording{}, err
	}
	var err error
	if out.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return models.Recording{}, err
	}
	if out.FinalizedAt, err = parseISO(finalized); err != nil {
		return models.Recording{}, err
	}
	return out, nil
}

func requireRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Store = (*SQLiteStore)(nil)
