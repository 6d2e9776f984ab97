// Package testsupport collects in-memory fakes used by this module's tests
// in place of a real Postgres or SQLite connection.
package testsupport

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"audioreceiver/internal/metadata"
	"audioreceiver/internal/models"
)

// MetadataStoreStub is an in-memory metadata.Store implementation for tests
// that would otherwise need a real Postgres or SQLite connection.
type MetadataStoreStub struct {
	mu sync.Mutex

	sessions          map[string]models.Session
	segments          map[int64]models.Segment
	processedChannels map[string]models.ProcessedChannel // key: sessionID|channel
	pipelineRuns      map[int64]models.PipelineRun
	annotations       []models.Annotation
	channelSettings   map[string]models.ChannelSetting
	recordings        map[string]models.Recording

	nextSegmentID int64
	nextRunID     int64
	nextAnnID     int64
	nextSettingID int64
	nextRecID     int64
}

// NewMetadataStoreStub constructs an empty stub.
func NewMetadataStoreStub() *MetadataStoreStub {
	return &MetadataStoreStub{
		sessions:          make(map[string]models.Session),
		segments:          make(map[int64]models.Segment),
		processedChannels: make(map[string]models.ProcessedChannel),
		pipelineRuns:      make(map[int64]models.PipelineRun),
		channelSettings:   make(map[string]models.ChannelSetting),
		recordings:        make(map[string]models.Recording),
	}
}

func (s *MetadataStoreStub) Ping(context.Context) error { return nil }
func (s *MetadataStoreStub) Close() error               { return nil }

func (s *MetadataStoreStub) UpsertSession(_ context.Context, id string, sampleRate, channels int) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := s.sessions[id]; ok {
		existing.UpdatedAt = now
		s.sessions[id] = existing
		return existing, nil
	}
	sess := models.Session{
		ID:         id,
		Status:     models.SessionReceiving,
		SampleRate: sampleRate,
		Channels:   channels,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.sessions[id] = sess
	return sess, nil
}

func (s *MetadataStoreStub) TouchSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return metadata.ErrNotFound
	}
	sess.UpdatedAt = time.Now().UTC()
	s.sessions[id] = sess
	return nil
}

func (s *MetadataStoreStub) GetSession(_ context.Context, id string) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return models.Session{}, metadata.ErrNotFound
	}
	return sess, nil
}

func (s *MetadataStoreStub) SetSessionStatus(_ context.Context, id string, status models.SessionStatus) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return models.Session{}, metadata.ErrNotFound
	}
	sess.Status = status
	now := time.Now().UTC()
	switch status {
	case models.SessionComplete:
		sess.CompletedAt = &now
	case models.SessionProcessed:
		sess.ProcessedAt = &now
	}
	s.sessions[id] = sess
	return sess, nil
}

func (s *MetadataStoreStub) ListSessionsByStatus(_ context.Context, status models.SessionStatus) ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Session
	for _, sess := range s.sessions {
		if sess.Status == status {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MetadataStoreStub) ListStaleReceivingSessions(_ context.Context, olderThan time.Time) ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Session
	for _, sess := range s.sessions {
		if sess.Status == models.SessionReceiving && sess.UpdatedAt.Before(olderThan) {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MetadataStoreStub) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return metadata.ErrNotFound
	}
	delete(s.sessions, id)
	for key, seg := range s.segments {
		if seg.SessionID == id {
			delete(s.segments, key)
		}
	}
	for key, pc := range s.processedChannels {
		if pc.SessionID == id {
			delete(s.processedChannels, key)
		}
	}
	for key, run := range s.pipelineRuns {
		if run.SessionID == id {
			delete(s.pipelineRuns, key)
		}
	}
	delete(s.recordings, id)
	return nil
}

func (s *MetadataStoreStub) UpsertSegment(_ context.Context, seg models.Segment) (models.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.segments {
		if existing.SessionID == seg.SessionID && existing.SegmentNumber == seg.SegmentNumber && existing.ChannelGroup == seg.ChannelGroup {
			seg.ID = id
			s.segments[id] = seg
			return seg, nil
		}
	}
	s.nextSegmentID++
	seg.ID = s.nextSegmentID
	s.segments[seg.ID] = seg
	return seg, nil
}

func (s *MetadataStoreStub) SetSegmentObjectKey(_ context.Context, segmentID int64, s3Key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seg, ok := s.segments[segmentID]
	if !ok {
		return metadata.ErrNotFound
	}
	key := s3Key
	seg.S3Key = &key
	s.segments[segmentID] = seg
	return nil
}

func (s *MetadataStoreStub) ListSegments(_ context.Context, sessionID string) ([]models.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Segment
	for _, seg := range s.segments {
		if seg.SessionID == sessionID {
			out = append(out, seg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MetadataStoreStub) SegmentExists(_ context.Context, key metadata.SegmentKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, seg := range s.segments {
		if seg.SessionID == key.SessionID && seg.SegmentNumber == key.SegmentNumber && seg.ChannelGroup == key.ChannelGroup {
			return true, nil
		}
	}
	return false, nil
}

func processedChannelKey(sessionID string, channel int) string {
	return fmt.Sprintf("%s|%d", sessionID, channel)
}

func (s *MetadataStoreStub) UpsertProcessedChannel(_ context.Context, pc models.ProcessedChannel) (models.ProcessedChannel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := processedChannelKey(pc.SessionID, pc.ChannelNumber)
	if existing, ok := s.processedChannels[key]; ok {
		pc.ID = existing.ID
		pc.CreatedAt = existing.CreatedAt
	} else {
		pc.ID = int64(len(s.processedChannels) + 1)
		pc.CreatedAt = time.Now().UTC()
	}
	s.processedChannels[key] = pc
	return pc, nil
}

func (s *MetadataStoreStub) GetProcessedChannel(_ context.Context, sessionID string, channel int) (models.ProcessedChannel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pc, ok := s.processedChannels[processedChannelKey(sessionID, channel)]
	if !ok {
		return models.ProcessedChannel{}, metadata.ErrNotFound
	}
	return pc, nil
}

func (s *MetadataStoreStub) ListProcessedChannels(_ context.Context, sessionID string) ([]models.ProcessedChannel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ProcessedChannel
	for _, pc := range s.processedChannels {
		if pc.SessionID == sessionID {
			out = append(out, pc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelNumber < out[j].ChannelNumber })
	return out, nil
}

func (s *MetadataStoreStub) CreatePipelineRun(_ context.Context, run models.PipelineRun) (models.PipelineRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRunID++
	run.ID = s.nextRunID
	run.CreatedAt = time.Now().UTC()
	s.pipelineRuns[run.ID] = run
	return run, nil
}

func (s *MetadataStoreStub) UpdatePipelineRun(_ context.Context, run models.PipelineRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pipelineRuns[run.ID]; !ok {
		return metadata.ErrNotFound
	}
	s.pipelineRuns[run.ID] = run
	return nil
}

func (s *MetadataStoreStub) GetPipelineRun(_ context.Context, id int64) (models.PipelineRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.pipelineRuns[id]
	if !ok {
		return models.PipelineRun{}, metadata.ErrNotFound
	}
	return run, nil
}

func (s *MetadataStoreStub) ListPipelineRuns(_ context.Context, filter metadata.PipelineRunFilter) ([]models.PipelineRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PipelineRun
	for _, run := range s.pipelineRuns {
		if filter.SessionID != "" && run.SessionID != filter.SessionID {
			continue
		}
		if filter.Channel != nil && (run.ChannelNumber == nil || *run.ChannelNumber != *filter.Channel) {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MetadataStoreStub) CreateAnnotation(_ context.Context, sessionID, body string) (models.Annotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextAnnID++
	ann := models.Annotation{ID: s.nextAnnID, SessionID: sessionID, Body: body, CreatedAt: time.Now().UTC()}
	s.annotations = append(s.annotations, ann)
	return ann, nil
}

func (s *MetadataStoreStub) ListAnnotations(_ context.Context, sessionID string) ([]models.Annotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Annotation
	for _, ann := range s.annotations {
		if ann.SessionID == sessionID {
			out = append(out, ann)
		}
	}
	return out, nil
}

func (s *MetadataStoreStub) UpsertChannelSetting(_ context.Context, cs models.ChannelSetting) (models.ChannelSetting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := processedChannelKey(cs.SessionID, cs.ChannelNumber)
	if existing, ok := s.channelSettings[key]; ok {
		cs.ID = existing.ID
	} else {
		s.nextSettingID++
		cs.ID = s.nextSettingID
	}
	cs.UpdatedAt = time.Now().UTC()
	s.channelSettings[key] = cs
	return cs, nil
}

func (s *MetadataStoreStub) ListChannelSettings(_ context.Context, sessionID string) ([]models.ChannelSetting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ChannelSetting
	for _, cs := range s.channelSettings {
		if cs.SessionID == sessionID {
			out = append(out, cs)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelNumber < out[j].ChannelNumber })
	return out, nil
}

func (s *MetadataStoreStub) UpsertRecording(_ context.Context, rec models.Recording) (models.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.recordings[rec.SessionID]; ok {
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
	} else {
		rec.ID = int64(len(s.recordings) + 1)
		rec.CreatedAt = time.Now().UTC()
	}
	now := time.Now().UTC()
	rec.FinalizedAt = &now
	s.recordings[rec.SessionID] = rec
	return rec, nil
}

func (s *MetadataStoreStub) GetRecording(_ context.Context, sessionID string) (models.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recordings[sessionID]
	if !ok {
		return models.Recording{}, metadata.ErrNotFound
	}
	return rec, nil
}

// SetUpdatedAtForTest backdates a session's UpdatedAt so retention-window
// tests don't need to sleep in real time.
func (s *MetadataStoreStub) SetUpdatedAtForTest(id string, updatedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return
	}
	sess.UpdatedAt = updatedAt
	s.sessions[id] = sess
}

var _ metadata.Store = (*MetadataStoreStub)(nil)
