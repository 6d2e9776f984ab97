// Package models defines the relational entities persisted by the metadata
// store: sessions, segments, processed channels, pipeline runs, and their
// minor collaborators.
package models

import "time"

// SessionStatus is the lifecycle state of a recording session.
type SessionStatus string

const (
	SessionReceiving  SessionStatus = "receiving"
	SessionComplete   SessionStatus = "complete"
	SessionProcessing SessionStatus = "processing"
	SessionProcessed  SessionStatus = "processed"
	SessionFailed     SessionStatus = "failed"
)

// Session is the root aggregate for a single logical recording.
type Session struct {
	ID           string        `json:"id"`
	Status       SessionStatus `json:"status"`
	SampleRate   int           `json:"sampleRate"`
	Channels     int           `json:"channels"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
	CompletedAt  *time.Time    `json:"completedAt,omitempty"`
	ProcessedAt  *time.Time    `json:"processedAt,omitempty"`
}

// Segment is a fixed-duration audio file covering one channel group.
type Segment struct {
	ID            int64     `json:"id"`
	SessionID     string    `json:"sessionId"`
	SegmentNumber int       `json:"segmentNumber"`
	ChannelGroup  string    `json:"channelGroup"`
	LocalPath     string    `json:"localPath"`
	S3Key         *string   `json:"s3Key,omitempty"`
	FileSize      int64     `json:"fileSize"`
	ReceivedAt    time.Time `json:"receivedAt"`
}

// ProcessedChannel is the per-channel outcome of processing: a master mp3
// rendition plus its streaming derivatives.
type ProcessedChannel struct {
	ID              int64      `json:"id"`
	SessionID       string     `json:"sessionId"`
	ChannelNumber   int        `json:"channelNumber"`
	LocalPath       string     `json:"localPath"`
	S3Key           *string    `json:"s3Key,omitempty"`
	S3URL           *string    `json:"s3Url,omitempty"`
	HLSURL          *string    `json:"hlsUrl,omitempty"`
	PeaksURL        *string    `json:"peaksUrl,omitempty"`
	FileSize        int64      `json:"fileSize"`
	DurationSeconds *float64   `json:"durationSeconds,omitempty"`
	IsQuiet         bool       `json:"isQuiet"`
	IsSilent        bool       `json:"isSilent"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// PipelineRunStatus is the lifecycle of one pipeline step execution.
type PipelineRunStatus string

const (
	RunPending   PipelineRunStatus = "pending"
	RunRunning   PipelineRunStatus = "running"
	RunCompleted PipelineRunStatus = "completed"
	RunFailed    PipelineRunStatus = "failed"
	RunSkipped   PipelineRunStatus = "skipped"
)

// PipelineRun is a persisted provenance row for one (session, channel, step)
// execution. Retries mutate the same row rather than inserting new ones.
type PipelineRun struct {
	ID             int64             `json:"id"`
	SessionID      string            `json:"sessionId"`
	ChannelNumber  *int              `json:"channelNumber,omitempty"`
	StepName       string            `json:"stepName"`
	Status         PipelineRunStatus `json:"status"`
	StartedAt      *time.Time        `json:"startedAt,omitempty"`
	CompletedAt    *time.Time        `json:"completedAt,omitempty"`
	DurationMs     *int64            `json:"durationMs,omitempty"`
	InputSnapshot  []byte            `json:"inputSnapshot,omitempty"`
	OutputSnapshot []byte            `json:"outputSnapshot,omitempty"`
	ErrorMessage   *string           `json:"errorMessage,omitempty"`
	RetryCount     int               `json:"retryCount"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// Annotation is an operator-authored note attached to a session.
type Annotation struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"sessionId"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// ChannelSetting stores a per-channel override (e.g. a label or a disabled
// flag) supplied out of band by an operator.
type ChannelSetting struct {
	ID            int64     `json:"id"`
	SessionID     string    `json:"sessionId"`
	ChannelNumber int       `json:"channelNumber"`
	Label         string    `json:"label,omitempty"`
	Disabled      bool      `json:"disabled"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Recording is the 1:1 session-level rollup record, finalized once the
// session reaches a terminal processed/failed state.
type Recording struct {
	ID             int64      `json:"id"`
	SessionID      string     `json:"sessionId"`
	ChannelCount   int        `json:"channelCount"`
	FailedChannels int        `json:"failedChannels"`
	CreatedAt      time.Time  `json:"createdAt"`
	FinalizedAt    *time.Time `json:"finalizedAt,omitempty"`
}
