// Package metadata implements the durable relational store of sessions,
// segments, processed channels, pipeline runs, and their minor collaborators.
// It is the single source of truth for lifecycle state; every other
// component treats it as synchronous and authoritative.
package metadata

import (
	"context"
	"errors"
	"time"

	"audioreceiver/internal/models"
)

// ErrNotFound is returned by lookups that address a single row by id.
var ErrNotFound = errors.New("metadata: not found")

// SegmentKey identifies a segment's unique constraint.
type SegmentKey struct {
	SessionID    string
	SegmentNumber int
	ChannelGroup string
}

// Store is the full set of metadata operations required by the ingest
// plane, the session manager, the upload queue, and the pipeline runner.
// Both backends (Postgres and SQLite) implement it identically; callers
// never branch on which is in use.
type Store interface {
	Ping(ctx context.Context) error
	Close() error

	// Sessions
	UpsertSession(ctx context.Context, id string, sampleRate, channels int) (models.Session, error)
	TouchSession(ctx context.Context, id string) error
	GetSession(ctx context.Context, id string) (models.Session, error)
	SetSessionStatus(ctx context.Context, id string, status models.SessionStatus) (models.Session, error)
	ListSessionsByStatus(ctx context.Context, status models.SessionStatus) ([]models.Session, error)
	ListStaleReceivingSessions(ctx context.Context, olderThan time.Time) ([]models.Session, error)
	DeleteSession(ctx context.Context, id string) error

	// Segments
	UpsertSegment(ctx context.Context, seg models.Segment) (models.Segment, error)
	SetSegmentObjectKey(ctx context.Context, segmentID int64, s3Key string) error
	ListSegments(ctx context.Context, sessionID string) ([]models.Segment, error)
	SegmentExists(ctx context.Context, key SegmentKey) (bool, error)

	// Processed channels
	UpsertProcessedChannel(ctx context.Context, pc models.ProcessedChannel) (models.ProcessedChannel, error)
	GetProcessedChannel(ctx context.Context, sessionID string, channel int) (models.ProcessedChannel, error)
	ListProcessedChannels(ctx context.Context, sessionID string) ([]models.ProcessedChannel, error)

	// Pipeline runs
	CreatePipelineRun(ctx context.Context, run models.PipelineRun) (models.PipelineRun, error)
	UpdatePipelineRun(ctx context.Context, run models.PipelineRun) error
	GetPipelineRun(ctx context.Context, id int64) (models.PipelineRun, error)
	ListPipelineRuns(ctx context.Context, filter PipelineRunFilter) ([]models.PipelineRun, error)

	// Annotations, channel settings, recordings
	CreateAnnotation(ctx context.Context, sessionID, body string) (models.Annotation, error)
	ListAnnotations(ctx context.Context, sessionID string) ([]models.Annotation, error)
	UpsertChannelSetting(ctx context.Context, cs models.ChannelSetting) (models.ChannelSetting, error)
	ListChannelSettings(ctx context.Context, sessionID string) ([]models.ChannelSetting, error)
	UpsertRecording(ctx context.Context, rec models.Recording) (models.Recording, error)
	GetRecording(ctx context.Context, sessionID string) (models.Recording, error)
}

// PipelineRunFilter narrows ListPipelineRuns. Zero values are wildcards.
type PipelineRunFilter struct {
	SessionID string
	Channel   *int
	Status    models.PipelineRunStatus
}
