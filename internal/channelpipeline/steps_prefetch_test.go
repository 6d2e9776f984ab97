package channelpipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"audioreceiver/internal/blobstore"
	"audioreceiver/internal/metadata"
	"audioreceiver/internal/models"
	"audioreceiver/internal/objectstore"
	"audioreceiver/internal/pipeline"
)

func newTestStore(t *testing.T) metadata.Store {
	t.Helper()
	store, err := metadata.NewSQLiteStore(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPrefetchSkipsSegmentsOutsideChannelGroup(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	blobs, _ := blobstore.New(t.TempDir())
	store.UpsertSession(ctx, "s1", 48000, 12)

	seg, err := store.UpsertSegment(ctx, models.Segment{
		SessionID: "s1", SegmentNumber: 0, ChannelGroup: "ch07-12", FileSize: 3,
	})
	if err != nil {
		t.Fatalf("UpsertSegment: %v", err)
	}
	seg.LocalPath = blobs.SegmentPath("s1", seg.ReceivedAt, 0, "ch07-12", "flac")
	blobs.Write(seg.LocalPath, []byte("abc"))

	step := &prefetchFlacStep{store: store, blobs: blobs, concurrency: 4}
	sctx := pipeline.StepContext{SessionID: "s1", ChannelNumber: 3}
	result := step.Execute(ctx, sctx, pipeline.Data{})
	if result.Kind != pipeline.ResultSkipped {
		t.Fatalf("expected skip for channel outside any fetched group, got %+v", result)
	}
}

func TestPrefetchFailsWhenLocalMissingAndNoObjectStore(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	blobs, _ := blobstore.New(t.TempDir())
	store.UpsertSession(ctx, "s1", 48000, 12)

	localPath := blobs.SegmentPath("s1", time.Now(), 0, "ch01-06", "flac")
	_, err := store.UpsertSegment(ctx, models.Segment{
		SessionID: "s1", SegmentNumber: 0, ChannelGroup: "ch01-06",
		LocalPath: localPath, FileSize: 3,
	})
	if err != nil {
		t.Fatalf("UpsertSegment: %v", err)
	}
	// deliberately never written to disk

	step := &prefetchFlacStep{store: store, blobs: blobs, concurrency: 4}
	sctx := pipeline.StepContext{SessionID: "s1", ChannelNumber: 3}
	result := step.Execute(ctx, sctx, pipeline.Data{})
	if result.Kind != pipeline.ResultFailure {
		t.Fatalf("expected failure when segment missing locally with no object store, got %+v", result)
	}
}

func TestPrefetchRecoversFromObjectStoreWhenLocalMissing(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	blobs, _ := blobstore.New(t.TempDir())
	store.UpsertSession(ctx, "s1", 48000, 12)

	payload := []byte("recovered-flac-bytes")
	bucket := map[string][]byte{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path[len("/bucket/"):]
		switch r.Method {
		case http.MethodGet:
			body, ok := bucket[key]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Write(body)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer server.Close()
	bucket["recovered/s1/seg0.flac"] = payload

	objClient, err := objectstore.New(objectstore.Config{
		Endpoint: server.URL[len("http://"):], Bucket: "bucket", Region: "us-east-1",
	})
	if err != nil {
		t.Fatalf("objectstore.New: %v", err)
	}

	localPath := blobs.SegmentPath("s1", time.Now(), 0, "ch01-06", "flac")
	seg, _ := store.UpsertSegment(ctx, models.Segment{
		SessionID: "s1", SegmentNumber: 0, ChannelGroup: "ch01-06",
		LocalPath: localPath, FileSize: int64(len(payload)),
	})
	key := "recovered/s1/seg0.flac"
	if err := store.SetSegmentObjectKey(ctx, seg.ID, key); err != nil {
		t.Fatalf("SetSegmentObjectKey: %v", err)
	}

	step := &prefetchFlacStep{store: store, blobs: blobs, objects: objClient, concurrency: 4}
	sctx := pipeline.StepContext{SessionID: "s1", ChannelNumber: 3}
	result := step.Execute(ctx, sctx, pipeline.Data{})
	if result.Kind != pipeline.ResultSuccess {
		t.Fatalf("expected success, got %+v (err=%v)", result, result.Err)
	}
	if !blobs.Exists(localPath) {
		t.Fatal("expected recovered segment to be written locally")
	}
}
