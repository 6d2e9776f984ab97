package ingestapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"audioreceiver/internal/blobstore"
	"audioreceiver/internal/testsupport"
)

func newTestHandler(t *testing.T) (*Handler, *testsupport.MetadataStoreStub) {
	t.Helper()
	dir := t.TempDir()
	blobs, err := blobstore.New(dir)
	if err != nil {
		t.Fatalf("new blobstore: %v", err)
	}
	store := testsupport.NewMetadataStoreStub()
	h := New(store, blobs, nil, nil, nil, nil, Config{})
	return h, store
}

func TestServeHTTPRejectsEmptyBody(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/stream", bytes.NewReader(nil))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty body, got %d", rec.Code)
	}
}

func TestServeHTTPRejectsWrongMethod(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestServeHTTPAcceptsSegmentWithHeaders(t *testing.T) {
	h, store := newTestHandler(t)
	payload := []byte("not-really-flac-but-non-empty")
	req := httptest.NewRequest(http.MethodPost, "/stream", bytes.NewReader(payload))
	req.Header.Set("x-session-id", "session-1")
	req.Header.Set("x-segment-number", "3")
	req.Header.Set("x-sample-rate", "44100")
	req.Header.Set("x-channels", "6")
	req.Header.Set("x-channel-group", "ch01-06")
	req.Header.Set("Content-Type", "audio/flac")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp streamResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.SessionID != "session-1" || resp.SegmentNumber != 3 || resp.ChannelGroup != "ch01-06" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.S3Queued {
		t.Fatalf("expected s3Queued=false with no object store configured")
	}

	if _, err := os.Stat(resp.LocalPath); err != nil {
		t.Fatalf("expected blob written at %s: %v", resp.LocalPath, err)
	}

	segs, err := store.ListSegments(req.Context(), "session-1")
	if err != nil || len(segs) != 1 {
		t.Fatalf("expected one stored segment, got %d err=%v", len(segs), err)
	}
	if segs[0].ChannelGroup != "ch01-06" || segs[0].SegmentNumber != 3 {
		t.Fatalf("unexpected stored segment: %+v", segs[0])
	}

	sess, err := store.GetSession(req.Context(), "session-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sess.SampleRate != 44100 || sess.Channels != 6 {
		t.Fatalf("unexpected session: %+v", sess)
	}
}

func TestServeHTTPDefaultsSessionIDAndChannelGroup(t *testing.T) {
	h, store := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/stream", bytes.NewReader([]byte("payload")))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp streamResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.SessionID == "" {
		t.Fatalf("expected a generated session id")
	}
	if resp.ChannelGroup != "unknown" {
		t.Fatalf("expected default channel group 'unknown', got %s", resp.ChannelGroup)
	}
	if _, err := store.GetSession(req.Context(), resp.SessionID); err != nil {
		t.Fatalf("expected session to be recorded: %v", err)
	}
}

func TestServeHTTPParsesChannelGroupFromContentDisposition(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/stream", bytes.NewReader([]byte("payload")))
	req.Header.Set("x-session-id", "session-2")
	req.Header.Set("Content-Disposition", `form-data; name="file"; filename="rec_seg0007_ch07-12.flac"`)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp streamResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ChannelGroup != "ch07-12" {
		t.Fatalf("expected channel group parsed from filename, got %s", resp.ChannelGroup)
	}
	if resp.SegmentNumber != 7 {
		t.Fatalf("expected segment number parsed from filename, got %d", resp.SegmentNumber)
	}
}
