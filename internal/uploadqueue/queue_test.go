package uploadqueue

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"audioreceiver/internal/objectstore"
)

type fakeUploader struct {
	mu       sync.Mutex
	failN    int
	calls    int32
	uploaded []string
}

func (f *fakeUploader) Upload(ctx context.Context, key, contentType string, body []byte) (objectstore.Reference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if int(f.calls) <= f.failN {
		return objectstore.Reference{}, errors.New("simulated upload failure")
	}
	f.uploaded = append(f.uploaded, key)
	return objectstore.Reference{Key: key}, nil
}

type fakeRecorder struct {
	mu   sync.Mutex
	keys map[int64]string
}

func (f *fakeRecorder) SetSegmentObjectKey(ctx context.Context, segmentID int64, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keys == nil {
		f.keys = map[int64]string{}
	}
	f.keys[segmentID] = key
	return nil
}

func writeLocalFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("payload"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestEnqueueUploadsAndRecordsSegmentKey(t *testing.T) {
	dir := t.TempDir()
	path := writeLocalFile(t, dir, "a.flac")
	uploader := &fakeUploader{}
	recorder := &fakeRecorder{}
	q := New(Config{DeadLetterDir: filepath.Join(dir, "dead")}, uploader, recorder, nil)
	q.Start()
	defer q.Shutdown(context.Background())

	segID := int64(42)
	q.Enqueue(Item{LocalPath: path, ObjectKey: "sessions/s1/a.flac", ContentType: "audio/flac", SegmentID: &segID})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		recorder.mu.Lock()
		got, ok := recorder.keys[segID]
		recorder.mu.Unlock()
		if ok && got == "sessions/s1/a.flac" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("segment object key was never recorded")
}

func TestRetryThenSucceed(t *testing.T) {
	dir := t.TempDir()
	path := writeLocalFile(t, dir, "a.flac")
	uploader := &fakeUploader{failN: 1}
	q := New(Config{RetryDelay: 20 * time.Millisecond, DeadLetterDir: filepath.Join(dir, "dead")}, uploader, nil, nil)
	q.Start()
	defer q.Shutdown(context.Background())

	q.Enqueue(Item{LocalPath: path, ObjectKey: "k1", ContentType: "audio/flac"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		uploader.mu.Lock()
		n := len(uploader.uploaded)
		uploader.mu.Unlock()
		if n == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected upload to eventually succeed after one retry")
}

func TestExhaustedRetriesWritesDeadLetter(t *testing.T) {
	dir := t.TempDir()
	path := writeLocalFile(t, dir, "a.flac")
	deadDir := filepath.Join(dir, "dead")
	uploader := &fakeUploader{failN: 1000}
	q := New(Config{RetryDelay: 5 * time.Millisecond, MaxRetries: 1, DeadLetterDir: deadDir}, uploader, nil, nil)
	q.Start()
	defer q.Shutdown(context.Background())

	q.Enqueue(Item{LocalPath: path, ObjectKey: "k-doomed", ContentType: "audio/flac"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		entries, err := os.ReadDir(deadDir)
		if err == nil && len(entries) == 1 {
			data, err := os.ReadFile(filepath.Join(deadDir, entries[0].Name()))
			if err != nil {
				t.Fatalf("ReadFile: %v", err)
			}
			var rec deadLetterRecord
			if err := json.Unmarshal(data, &rec); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if rec.ObjectKey != "k-doomed" {
				t.Errorf("ObjectKey = %q", rec.ObjectKey)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected dead-letter file to appear")
}

func TestRetryFailedDrainsDeadLetterDirectory(t *testing.T) {
	dir := t.TempDir()
	path := writeLocalFile(t, dir, "a.flac")
	deadDir := filepath.Join(dir, "dead")
	if err := os.MkdirAll(deadDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	rec := deadLetterRecord{LocalPath: path, ObjectKey: "k-revived", ContentType: "audio/flac", Retries: 5}
	data, _ := json.Marshal(rec)
	if err := os.WriteFile(filepath.Join(deadDir, "x.json"), data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	uploader := &fakeUploader{}
	q := New(Config{DeadLetterDir: deadDir}, uploader, nil, nil)
	q.Start()
	defer q.Shutdown(context.Background())

	n, err := q.RetryFailed(context.Background())
	if err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	if n != 1 {
		t.Fatalf("n = %d, want 1", n)
	}
	entries, _ := os.ReadDir(deadDir)
	if len(entries) != 0 {
		t.Errorf("expected dead-letter file to be removed, got %d entries", len(entries))
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		uploader.mu.Lock()
		n := len(uploader.uploaded)
		uploader.mu.Unlock()
		if n == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected revived item to be uploaded")
}

func TestShutdownWaitsForInFlightWorker(t *testing.T) {
	dir := t.TempDir()
	path := writeLocalFile(t, dir, "a.flac")
	var calls int32
	uploader := slowUploader{calls: &calls, delay: 50 * time.Millisecond}
	q := New(Config{Workers: 1, DeadLetterDir: filepath.Join(dir, "dead")}, uploader, nil, nil)
	q.Start()
	q.Enqueue(Item{LocalPath: path, ObjectKey: "k1", ContentType: "audio/flac"})
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := q.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestShutdownDeadLettersPendingRetry(t *testing.T) {
	dir := t.TempDir()
	path := writeLocalFile(t, dir, "a.flac")
	deadDir := filepath.Join(dir, "dead")
	uploader := &fakeUploader{failN: 1000}
	q := New(Config{RetryDelay: time.Hour, DeadLetterDir: deadDir}, uploader, nil, nil)
	q.Start()

	q.Enqueue(Item{LocalPath: path, ObjectKey: "k-racing", ContentType: "audio/flac"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		uploader.mu.Lock()
		calls := uploader.calls
		uploader.mu.Unlock()
		if calls >= 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := q.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	entries, err := os.ReadDir(deadDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 dead-letter entry for the item stuck mid-retry, got %d", len(entries))
	}
	data, err := os.ReadFile(filepath.Join(deadDir, entries[0].Name()))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var rec deadLetterRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if rec.ObjectKey != "k-racing" {
		t.Errorf("ObjectKey = %q, want k-racing", rec.ObjectKey)
	}
}

type slowUploader struct {
	calls *int32
	delay time.Duration
}

func (s slowUploader) Upload(ctx context.Context, key, contentType string, body []byte) (objectstore.Reference, error) {
	atomic.AddInt32(s.calls, 1)
	time.Sleep(s.delay)
	return objectstore.Reference{Key: key}, nil
}
