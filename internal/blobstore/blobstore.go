// Package blobstore persists segment and rendition payloads to local disk,
// addressed by a path derived from session id, received timestamp, segment
// number, channel group, and format. All intermediates for a session live
// under a single per-session root so the whole tree can be purged at once.
package blobstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Store roots every blob under Root/<sessionID>/....
type Store struct {
	Root string
}

// New returns a Store rooted at root, creating it if necessary.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &Store{Root: root}, nil
}

// SessionDir returns the per-session root directory.
func (s *Store) SessionDir(sessionID string) string {
	return filepath.Join(s.Root, sessionID)
}

// WorkDir returns the scratch directory for one channel's pipeline run.
func (s *Store) WorkDir(sessionID string, channel int) string {
	return filepath.Join(s.SessionDir(sessionID), "work", fmt.Sprintf("ch%02d", channel))
}

// SegmentPath derives the local path for a received segment from
// (session_id, received_timestamp, segment_number, channel_group, format).
func (s *Store) SegmentPath(sessionID string, receivedAt time.Time, segmentNumber int, channelGroup, format string) string {
	name := fmt.Sprintf("%d-seg%04d-%s.%s", receivedAt.UTC().UnixNano(), segmentNumber, channelGroup, format)
	return filepath.Join(s.SessionDir(sessionID), "segments", name)
}

// Write saves payload to a temp file in the same directory as finalPath and
// renames it into place, so readers never observe a partially written file.
// Empty payloads are rejected — the ingest contract treats them as
// bad-request, not a storage concern, but Write enforces it defensively for
// any other caller.
func (s *Store) Write(finalPath string, payload []byte) (int64, error) {
	if len(payload) == 0 {
		return 0, fmt.Errorf("blobstore: empty payload for %s", finalPath)
	}
	dir := filepath.Dir(finalPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create blob directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "blob-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temp blob: %w", err)
	}
	tmpPath := tmp.Name()
	written, err := tmp.Write(payload)
	closeErr := tmp.Close()
	if err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("write blob: %w", err)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("close temp blob: %w", closeErr)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("rename blob into place: %w", err)
	}
	return int64(written), nil
}

// WriteStream is the streaming counterpart of Write: it copies r into
// finalPath through a temp file and rename instead of taking an in-memory
// buffer.
func (s *Store) WriteStream(finalPath string, r io.Reader) (int64, error) {
	dir := filepath.Dir(finalPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create blob directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "blob-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temp blob: %w", err)
	}
	tmpPath := tmp.Name()
	written, err := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("write blob stream: %w", err)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("close temp blob: %w", closeErr)
	}
	if written == 0 {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("blobstore: empty payload for %s", finalPath)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("rename blob into place: %w", err)
	}
	return written, nil
}

// Exists reports whether a file at path exists and is non-empty — the
// canonical "already processed" check used by pipeline steps to decide
// should_run.
func (s *Store) Exists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Size() > 0
}

// Open returns a read handle for path.
func (s *Store) Open(path string) (*os.File, error) {
	return os.Open(path)
}

// PurgeSession removes the entire per-session directory tree, renditions
// included. Called on explicit session delete.
func (s *Store) PurgeSession(sessionID string) error {
	dir := s.SessionDir(sessionID)
	if dir == s.Root || !strings.HasPrefix(dir, s.Root) {
		return fmt.Errorf("blobstore: refusing to purge outside root: %s", dir)
	}
	return os.RemoveAll(dir)
}

// PurgeWorkDir removes only the scratch work directory for one channel,
// leaving received segments and outputs untouched. Used after a channel's
// pipeline run or regeneration completes.
func (s *Store) PurgeWorkDir(sessionID string, channel int) error {
	return os.RemoveAll(s.WorkDir(sessionID, channel))
}

// MP3Dir, PeaksDir and HLSDir are the per-session rendition directories:
// "<root>/<session>/" with subdirectories "mp3/", "hls/", "peaks/".
func (s *Store) MP3Dir(sessionID string) string {
	return filepath.Join(s.SessionDir(sessionID), "mp3")
}

func (s *Store) PeaksDir(sessionID string) string {
	return filepath.Join(s.SessionDir(sessionID), "peaks")
}

func (s *Store) HLSDir(sessionID string) string {
	return filepath.Join(s.SessionDir(sessionID), "hls")
}

// FailedUploadsDir is the process-global dead-letter directory named in
// the local blob layout ("<root>/.failed_uploads/").
func (s *Store) FailedUploadsDir() string {
	return filepath.Join(s.Root, ".failed_uploads")
}

func (s *Store) MP3Path(sessionID string, channel int) string {
	return filepath.Join(s.MP3Dir(sessionID), fmt.Sprintf("channel_%02d.mp3", channel))
}

func (s *Store) PeaksPath(sessionID string, channel int) string {
	return filepath.Join(s.PeaksDir(sessionID), fmt.Sprintf("channel_%02d_peaks.json", channel))
}

func (s *Store) HLSPlaylistPath(sessionID string, channel int) string {
	return filepath.Join(s.HLSDir(sessionID), fmt.Sprintf("channel_%02d.m3u8", channel))
}

func (s *Store) HLSSegmentPattern(sessionID string, channel int) string {
	return filepath.Join(s.HLSDir(sessionID), fmt.Sprintf("channel_%02d_%%05d.ts", channel))
}
