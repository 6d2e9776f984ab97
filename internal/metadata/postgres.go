package metadata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"audioreceiver/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the production Store backend: a pgxpool-managed
// connection pool against a Postgres (or Postgres-wire-compatible) server.
type PostgresStore struct {
	pool *pgxpool.Pool
	cfg  PostgresConfig
}

// NewPostgresStore opens a pool against dsn and applies the schema
// additively. It does not block waiting for the database to become
// reachable beyond a single Ping.
func NewPostgresStore(ctx context.Context, dsn string, opts ...Option) (*PostgresStore, error) {
	cfg := newPostgresConfig(dsn, opts...)

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConnections
	poolCfg.MinConns = cfg.MinConnections
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	if cfg.ApplicationName != "" {
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	store := &PostgresStore{pool: pool, cfg: cfg}
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// Migrate applies the schema additively; safe to call on every startup.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return s.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		for _, stmt := range postgresSchema {
			if _, err := conn.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply schema statement: %w", err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) withConn(ctx context.Context, fn func(context.Context, *pgxpool.Conn) error) error {
	acquireCtx := ctx
	var cancel context.CancelFunc
	if s.cfg.AcquireTimeout > 0 {
		acquireCtx, cancel = context.WithTimeout(ctx, s.cfg.AcquireTimeout)
		defer cancel()
	}
	conn, err := s.pool.Acquire(acquireCtx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()
	if err := fn(ctx, conn); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func rollbackTx(ctx context.Context, tx pgx.Tx) {
	_ = tx.Rollback(ctx)
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		return conn.Ping(ctx)
	})
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) UpsertSession(ctx context.Context, id string, sampleRate, channels int) (models.Session, error) {
	var sess models.Session
	now := time.Now().UTC()
	err := s.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		row := conn.QueryRow(ctx, `
			INSERT INTO sessions (id, status, sample_rate, channels, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5)
			ON CONFLICT (id) DO UPDATE SET updated_at = sessions.updated_at
			RETURNING id, status, sample_rate, channels, created_at, updated_at, completed_at, processed_at
		`, id, models.SessionReceiving, sampleRate, channels, now)
		return scanSession(row, &sess)
	})
	return sess, err
}

func (s *PostgresStore) TouchSession(ctx context.Context, id string) error {
	return s.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		tag, err := conn.Exec(ctx, `UPDATE sessions SET updated_at = $2 WHERE id = $1`, id, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("touch session %s: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (models.Session, error) {
	var sess models.Session
	err := s.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		row := conn.QueryRow(ctx, `
			SELECT id, status, sample_rate, channels, created_at, updated_at, completed_at, processed_at
			FROM sessions WHERE id = $1
		`, id)
		return scanSession(row, &sess)
	})
	return sess, err
}

func (s *PostgresStore) SetSessionStatus(ctx context.Context, id string, status models.SessionStatus) (models.Session, error) {
	var sess models.Session
	now := time.Now().UTC()
	err := s.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		var completedAt, processedAt any
		switch status {
		case models.SessionComplete:
			completedAt = now
		case models.SessionProcessed:
			processedAt = now
		}
		row := conn.QueryRow(ctx, `
			UPDATE sessions SET
				status = $2,
				updated_at = $3,
				completed_at = COALESCE(completed_at, $4),
				processed_at = COALESCE(processed_at, $5)
			WHERE id = $1
			RETURNING id, status, sample_rate, channels, created_at, updated_at, completed_at, processed_at
		`, id, status, now, completedAt, processedAt)
		return scanSession(row, &sess)
	})
	return sess, err
}

func (s *PostgresStore) ListSessionsByStatus(ctx context.Context, status models.SessionStatus) ([]models.Session, error) {
	var out []models.Session
	err := s.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT id, status, sample_rate, channels, created_at, updated_at, completed_at, processed_at
			FROM sessions WHERE status = $1 ORDER BY created_at ASC
		`, status)
		if err != nil {
			return fmt.Errorf("list sessions by status: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var sess models.Session
			if err := scanSession(rows, &sess); err != nil {
				return err
			}
			out = append(out, sess)
		}
		return rows.Err()
	})
	return out, err
}

func (s *PostgresStore) ListStaleReceivingSessions(ctx context.Context, olderThan time.Time) ([]models.Session, error) {
	var out []models.Session
	err := s.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT id, status, sample_rate, channels, created_at, updated_at, completed_at, processed_at
			FROM sessions WHERE status = $1 AND updated_at < $2 ORDER BY updated_at ASC
		`, models.SessionReceiving, olderThan.UTC())
		if err != nil {
			return fmt.Errorf("list stale sessions: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var sess models.Session
			if err := scanSession(rows, &sess); err != nil {
				return err
			}
			out = append(out, sess)
		}
		return rows.Err()
	})
	return out, err
}

func (s *PostgresStore) DeleteSession(ctx context.Context, id string) error {
	return s.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		tag, err := conn.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete session %s: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *PostgresStore) UpsertSegment(ctx context.Context, seg models.Segment) (models.Segment, error) {
	var out models.Segment
	if seg.ReceivedAt.IsZero() {
		seg.ReceivedAt = time.Now().UTC()
	}
	err := s.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		row := conn.QueryRow(ctx, `
			INSERT INTO segments (session_id, segment_number, channel_group, local_path, s3_key, file_size, received_at)
			VALUES ($1, $2, $3, $4, NULL, $5, $6)
			ON CONFLICT (session_id, segment_number, channel_group) DO UPDATE SET
				local_path = EXCLUDED.local_path,
				s3_key = NULL,
				file_size = EXCLUDED.file_size,
				received_at = EXCLUDED.received_at
			RETURNING id, session_id, segment_number, channel_group, local_path, s3_key, file_size, received_at
		`, seg.SessionID, seg.SegmentNumber, seg.ChannelGroup, seg.LocalPath, seg.FileSize, seg.ReceivedAt)
		return scanSegment(row, &out)
	})
	return out, err
}

func (s *PostgresStore) SetSegmentObjectKey(ctx context.Context, segmentID int64, s3Key string) error {
	return s.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		tag, err := conn.Exec(ctx, `UPDATE segments SET s3_key = $2 WHERE id = $1`, segmentID, s3Key)
		if err != nil {
			return fmt.Errorf("set segment object key: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *PostgresStore) ListSegments(ctx context.Context, sessionID string) ([]models.Segment, error) {
	var out []models.Segment
	err := s.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT id, session_id, segment_number, channel_group, local_path, s3_key, file_size, received_at
			FROM segments WHERE session_id = $1 ORDER BY segment_number ASC
		`, sessionID)
		if err != nil {
			return fmt.Errorf("list segments: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var seg models.Segment
			if err := scanSegment(rows, &seg); err != nil {
				return err
			}
			out = append(out, seg)
		}
		return rows.Err()
	})
	return out, err
}

func (s *PostgresStore) SegmentExists(ctx context.Context, key SegmentKey) (bool, error) {
	var exists bool
	err := s.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		return conn.QueryRow(ctx, `
			SELECT EXISTS(SELECT 1 FROM segments WHERE session_id = $1 AND segment_number = $2 AND channel_group = $3)
		`, key.SessionID, key.SegmentNumber, key.ChannelGroup).Scan(&exists)
	})
	return exists, err
}

func (s *PostgresStore) UpsertProcessedChannel(ctx context.Context, pc models.ProcessedChannel) (models.ProcessedChannel, error) {
	var out models.ProcessedChannel
	if pc.CreatedAt.IsZero() {
		pc.CreatedAt = time.Now().UTC()
	}
	err := s.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		row := conn.QueryRow(ctx, `
			INSERT INTO processed_channels
				(session_id, channel_number, local_path, s3_key, s3_url, hls_url, peaks_url, file_size, duration_seconds, is_quiet, is_silent, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (session_id, channel_number) DO UPDATE SET
				local_path = EXCLUDED.local_path,
				s3_key = EXCLUDED.s3_key,
				s3_url = EXCLUDED.s3_url,
				hls_url = EXCLUDED.hls_url,
				peaks_url = EXCLUDED.peaks_url,
				file_size = EXCLUDED.file_size,
				duration_seconds = EXCLUDED.duration_seconds,
				is_quiet = EXCLUDED.is_quiet,
				is_silent = EXCLUDED.is_silent
			RETURNING id, session_id, channel_number, local_path, s3_key, s3_url, hls_url, peaks_url, file_size, duration_seconds, is_quiet, is_silent, created_at
		`, pc.SessionID, pc.ChannelNumber, pc.LocalPath, pc.S3Key, pc.S3URL, pc.HLSURL, pc.PeaksURL, pc.FileSize, pc.DurationSeconds, pc.IsQuiet, pc.IsSilent, pc.CreatedAt)
		return scanProcessedChannel(row, &out)
	})
	return out, err
}

func (s *PostgresStore) GetProcessedChannel(ctx context.Context, sessionID string, channel int) (models.ProcessedChannel, error) {
	var out models.ProcessedChannel
	err := s.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		row := conn.QueryRow(ctx, `
			SELECT id, session_id, channel_number, local_path, s3_key, s3_url, hls_url, peaks_url, file_size, duration_seconds, is_quiet, is_silent, created_at
			FROM processed_channels WHERE session_id = $1 AND channel_number = $2
		`, sessionID, channel)
		return scanProcessedChannel(row, &out)
	})
	return out, err
}

func (s *PostgresStore) ListProcessedChannels(ctx context.Context, sessionID string) ([]models.ProcessedChannel, error) {
	var out []models.ProcessedChannel
	err := s.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT id, session_id, channel_number, local_path, s3_key, s3_url, hls_url, peaks_url, file_size, duration_seconds, is_quiet, is_silent, created_at
			FROM processed_channels WHERE session_id = $1 ORDER BY channel_number ASC
		`, sessionID)
		if err != nil {
			return fmt.Errorf("list processed channels: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var pc models.ProcessedChannel
			if err := scanProcessedChannel(rows, &pc); err != nil {
				return err
			}
			out = append(out, pc)
		}
		return rows.Err()
	})
	return out, err
}

func (s *PostgresStore) CreatePipelineRun(ctx context.Context, run models.PipelineRun) (models.PipelineRun, error) {
	var out models.PipelineRun
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	err := s.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		row := conn.QueryRow(ctx, `
			INSERT INTO pipeline_runs
				(session_id, channel_number, step_name, status, started_at, completed_at, duration_ms, input_snapshot, output_snapshot, error_message, retry_count, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING id, session_id, channel_number, step_name, status, started_at, completed_at, duration_ms, input_snapshot, output_snapshot, error_message, retry_count, created_at
		`, run.SessionID, run.ChannelNumber, run.StepName, run.Status, run.StartedAt, run.CompletedAt, run.DurationMs, run.InputSnapshot, run.OutputSnapshot, run.ErrorMessage, run.RetryCount, run.CreatedAt)
		return scanPipelineRun(row, &out)
	})
	return out, err
}

func (s *PostgresStore) UpdatePipelineRun(ctx context.Context, run models.PipelineRun) error {
	return s.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		tag, err := conn.Exec(ctx, `
			UPDATE pipeline_runs SET
				status = $2,
				started_at = $3,
				completed_at = $4,
				duration_ms = $5,
				output_snapshot = $6,
				error_message = $7,
				retry_count = $8
			WHERE id = $1
		`, run.ID, run.Status, run.StartedAt, run.CompletedAt, run.DurationMs, run.OutputSnapshot, run.ErrorMessage, run.RetryCount)
		if err != nil {
			return fmt.Errorf("update pipeline run %d: %w", run.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *PostgresStore) GetPipelineRun(ctx context.Context, id int64) (models.PipelineRun, error) {
	var out models.PipelineRun
	err := s.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		row := conn.QueryRow(ctx, `
			SELECT id, session_id, channel_number, step_name, status, started_at, completed_at, duration_ms, input_snapshot, output_snapshot, error_message, retry_count, created_at
			FROM pipeline_runs WHERE id = $1
		`, id)
		return scanPipelineRun(row, &out)
	})
	return out, err
}

func (s *PostgresStore) ListPipelineRuns(ctx context.Context, filter PipelineRunFilter) ([]models.PipelineRun, error) {
	var out []models.PipelineRun
	err := s.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		query := `SELECT id, session_id, channel_number, step_name, status, started_at, completed_at, duration_ms, input_snapshot, output_snapshot, error_message, retry_count, created_at FROM pipeline_runs WHERE 1=1`
		args := []any{}
		if filter.SessionID != "" {
			args = append(args, filter.SessionID)
			query += fmt.Sprintf(" AND session_id = $%d", len(args))
		}
		if filter.Channel != nil {
			args = append(args, *filter.Channel)
			query += fmt.Sprintf(" AND channel_number = $%d", len(args))
		}
		if filter.Status != "" {
			args = append(args, filter.Status)
			query += fmt.Sprintf(" AND status = $%d", len(args))
		}
		query += " ORDER BY created_at DESC"
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("list pipeline runs: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var run models.PipelineRun
			if err := scanPipelineRun(rows, &run); err != nil {
				return err
			}
			out = append(out, run)
		}
		return rows.Err()
	})
	return out, err
}

func (s *PostgresStore) CreateAnnotation(ctx context.Context, sessionID, body string) (models.Annotation, error) {
	var out models.Annotation
	err := s.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		return conn.QueryRow(ctx, `
			INSERT INTO annotations (session_id, body, created_at) VALUES ($1, $2, $3)
			RETURNING id, session_id, body, created_at
		`, sessionID, body, time.Now().UTC()).Scan(&out.ID, &out.SessionID, &out.Body, &out.CreatedAt)
	})
	return out, err
}

func (s *PostgresStore) ListAnnotations(ctx context.Context, sessionID string) ([]models.Annotation, error) {
	var out []models.Annotation
	err := s.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, `SELECT id, session_id, body, created_at FROM annotations WHERE session_id = $1 ORDER BY created_at ASC`, sessionID)
		if err != nil {
			return fmt.Errorf("list annotations: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var a models.Annotation
			if err := rows.Scan(&a.ID, &a.SessionID, &a.Body, &a.CreatedAt); err != nil {
				return err
			}
			out = append(out, a)
		}
		return rows.Err()
	})
	return out, err
}

func (s *PostgresStore) UpsertChannelSetting(ctx context.Context, cs models.ChannelSetting) (models.ChannelSetting, error) {
	var out models.ChannelSetting
	err := s.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		return conn.QueryRow(ctx, `
			INSERT INTO channel_settings (session_id, channel_number, label, disabled, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (session_id, channel_number) DO UPDATE SET
				label = EXCLUDED.label, disabled = EXCLUDED.disabled, updated_at = EXCLUDED.updated_at
			RETURNING id, session_id, channel_number, label, disabled, updated_at
		`, cs.SessionID, cs.ChannelNumber, cs.Label, cs.Disabled, time.Now().UTC()).Scan(&out.ID, &out.SessionID, &out.ChannelNumber, &out.Label, &out.Disabled, &out.UpdatedAt)
	})
	return out, err
}

func (s *PostgresStore) ListChannelSettings(ctx context.Context, sessionID string) ([]models.ChannelSetting, error) {
	var out []models.ChannelSetting
	err := s.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, `SELECT id, session_id, channel_number, label, disabled, updated_at FROM channel_settings WHERE session_id = $1 ORDER BY channel_number ASC`, sessionID)
		if err != nil {
			return fmt.Errorf("list channel settings: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var cs models.ChannelSetting
			if err := rows.Scan(&cs.ID, &cs.SessionID, &cs.ChannelNumber, &cs.Label, &cs.Disabled, &cs.UpdatedAt); err != nil {
				return err
			}
			out = append(out, cs)
		}
		return rows.Err()
	})
	return out, err
}

func (s *PostgresStore) UpsertRecording(ctx context.Context, rec models.Recording) (models.Recording, error) {
	var out models.Recording
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	err := s.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		return conn.QueryRow(ctx, `
			INSERT INTO recordings (session_id, channel_count, failed_channels, created_at, finalized_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (session_id) DO UPDATE SET
				channel_count = EXCLUDED.channel_count,
				failed_channels = EXCLUDED.failed_channels,
				finalized_at = EXCLUDED.finalized_at
			RETURNING id, session_id, channel_count, failed_channels, created_at, finalized_at
		`, rec.SessionID, rec.ChannelCount, rec.FailedChannels, rec.CreatedAt, rec.FinalizedAt).Scan(&out.ID, &out.SessionID, &out.ChannelCount, &out.FailedChannels, &out.CreatedAt, &out.FinalizedAt)
	})
	return out, err
}

func (s *PostgresStore) GetRecording(ctx context.Context, sessionID string) (models.Recording, error) {
	var out models.Recording
	err := s.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		return conn.QueryRow(ctx, `SELECT id, session_id, channel_count, failed_channels, created_at, finalized_at FROM recordings WHERE session_id = $1`, sessionID).
			Scan(&out.ID, &out.SessionID, &out.ChannelCount, &out.FailedChannels, &out.CreatedAt, &out.FinalizedAt)
	})
	return out, err
}

var _ Store = (*PostgresStore)(nil)
