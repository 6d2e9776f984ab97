// Package ingestapi implements the segment ingest HTTP surface: POST
// /stream accepts one segment's raw audio bytes, persists it to the
// blob store, records it in the metadata store, and hands it to the
// upload queue for background replication.
package ingestapi

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"audioreceiver/internal/blobstore"
	"audioreceiver/internal/channelgroup"
	"audioreceiver/internal/metadata"
	"audioreceiver/internal/models"
	"audioreceiver/internal/objectstore"
	"audioreceiver/internal/observability/metrics"
	"audioreceiver/internal/uploadqueue"
)

const (
	defaultSampleRate = 48000
	defaultChannels   = 18

	maxBodyBytes = 256 << 20 // generous cap; real segments are seconds of audio
)

// Config names the object-store key prefix ingested segments are queued
// under, matching the layout the channel pipeline's upload steps use.
type Config struct {
	SegmentsPrefix string
}

func (c Config) withDefaults() Config {
	if c.SegmentsPrefix == "" {
		c.SegmentsPrefix = "segments/"
	}
	return c
}

// Handler serves POST /stream.
type Handler struct {
	Store   metadata.Store
	Blobs   *blobstore.Store
	Queue   *uploadqueue.Queue
	Objects *objectstore.Client
	Metrics *metrics.Recorder
	Logger  *slog.Logger
	Config  Config
}

func New(store metadata.Store, blobs *blobstore.Store, queue *uploadqueue.Queue, objects *objectstore.Client, rec *metrics.Recorder, logger *slog.Logger, cfg Config) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Store:   store,
		Blobs:   blobs,
		Queue:   queue,
		Objects: objects,
		Metrics: rec,
		Logger:  logger,
		Config:  cfg.withDefaults(),
	}
}

type streamResponse struct {
	Success       bool   `json:"success"`
	SessionID     string `json:"sessionId"`
	SegmentNumber int    `json:"segmentNumber"`
	ChannelGroup  string `json:"channelGroup"`
	Size          int64  `json:"size"`
	LocalPath     string `json:"localPath"`
	S3Queued      bool   `json:"s3Queued"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Success: false, Error: err.Error()})
}

// ServeHTTP accepts one raw segment upload.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}

	correlationID := uuid.NewString()
	logger := h.Logger.With("correlation_id", correlationID)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("read request body: %w", err))
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("empty payload"))
		return
	}
	if len(body) > maxBodyBytes {
		writeError(w, http.StatusBadRequest, fmt.Errorf("payload exceeds maximum segment size"))
		return
	}

	attrs := parseIngestHeaders(r)

	format := "wav"
	if strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "flac") {
		format = "flac"
	}

	disposition := r.Header.Get("Content-Disposition")
	filename := filenameFromContentDisposition(disposition)
	if attrs.channelGroup == "" && filename != "" {
		if group, ok := channelGroupFromFilename(filename); ok {
			attrs.channelGroup = group
		}
	}
	if attrs.channelGroup == "" {
		attrs.channelGroup = channelgroup.Unknown
	}
	if !attrs.segmentNumberSet && filename != "" {
		if n, ok := segmentNumberFromFilename(filename); ok {
			attrs.segmentNumber = n
		}
	}

	ctx := r.Context()

	if _, err := h.Store.UpsertSession(ctx, attrs.sessionID, attrs.sampleRate, attrs.channels); err != nil {
		logger.Error("failed to upsert session", "session", attrs.sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, fmt.Errorf("persist session: %w", err))
		return
	}

	receivedAt := time.Now().UTC()
	localPath := h.Blobs.SegmentPath(attrs.sessionID, receivedAt, attrs.segmentNumber, attrs.channelGroup, format)
	size, err := h.Blobs.Write(localPath, body)
	if err != nil {
		logger.Error("failed to write segment blob", "session", attrs.sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, fmt.Errorf("persist segment: %w", err))
		return
	}

	segment := models.Segment{
		SessionID:     attrs.sessionID,
		SegmentNumber: attrs.segmentNumber,
		ChannelGroup:  attrs.channelGroup,
		LocalPath:     localPath,
		FileSize:      size,
		ReceivedAt:    receivedAt,
	}
	stored, err := h.Store.UpsertSegment(ctx, segment)
	if err != nil {
		logger.Error("failed to upsert segment", "session", attrs.sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, fmt.Errorf("persist segment record: %w", err))
		return
	}

	if err := h.Store.TouchSession(ctx, attrs.sessionID); err != nil {
		logger.Error("failed to touch session", "session", attrs.sessionID, "error", err)
	}

	s3Queued := false
	if h.Objects != nil && h.Objects.Enabled() && h.Queue != nil {
		objectKey := fmt.Sprintf("%s%s/%s", h.Config.SegmentsPrefix, attrs.sessionID, rawSegmentObjectName(receivedAt, attrs.segmentNumber, attrs.channelGroup, format))
		segmentID := stored.ID
		h.Queue.Enqueue(uploadqueue.Item{
			LocalPath:   localPath,
			ObjectKey:   objectKey,
			ContentType: contentTypeFor(format),
			SegmentID:   &segmentID,
		})
		s3Queued = true
	}

	if h.Metrics != nil {
		h.Metrics.SegmentIngested(attrs.channelGroup)
	}

	logger.Info("segment ingested",
		"session", attrs.sessionID,
		"segment_number", attrs.segmentNumber,
		"channel_group", attrs.channelGroup,
		"size", size,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(streamResponse{
		Success:       true,
		SessionID:     attrs.sessionID,
		SegmentNumber: attrs.segmentNumber,
		ChannelGroup:  attrs.channelGroup,
		Size:          size,
		LocalPath:     localPath,
		S3Queued:      s3Queued,
	})
}

type ingestAttrs struct {
	sessionID         string
	segmentNumber     int
	segmentNumberSet  bool
	sampleRate        int
	channels          int
	channelGroup      string
}

func parseIngestHeaders(r *http.Request) ingestAttrs {
	attrs := ingestAttrs{
		sampleRate: defaultSampleRate,
		channels:   defaultChannels,
	}

	attrs.sessionID = strings.TrimSpace(r.Header.Get("x-session-id"))
	if attrs.sessionID == "" {
		attrs.sessionID = fmt.Sprintf("session_%d", time.Now().UnixMilli())
	}

	if v := strings.TrimSpace(r.Header.Get("x-segment-number")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			attrs.segmentNumber = n
			attrs.segmentNumberSet = true
		}
	}

	if v := strings.TrimSpace(r.Header.Get("x-sample-rate")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			attrs.sampleRate = n
		}
	}

	if v := strings.TrimSpace(r.Header.Get("x-channels")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			attrs.channels = n
		}
	}

	attrs.channelGroup = strings.TrimSpace(r.Header.Get("x-channel-group"))
	return attrs
}

func rawSegmentObjectName(receivedAt time.Time, segmentNumber int, channelGroup, format string) string {
	return fmt.Sprintf("%s_seg%05d_%s.%s", receivedAt.Format("20060102T150405.000000000Z"), segmentNumber, channelGroup, format)
}

func contentTypeFor(format string) string {
	if format == "flac" {
		return "audio/flac"
	}
	return "audio/wav"
}
