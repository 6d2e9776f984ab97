// Package uploadqueue replicates locally-written blobs to the object store
// in the background: a bounded worker pool drains a FIFO, retries failures
// after a fixed delay, and spills items that exhaust their retries to a
// dead-letter directory for later manual replay.
package uploadqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"audioreceiver/internal/objectstore"
)

// Item is one unit of replication work: a local file that needs to land at
// ObjectKey in the object store.
type Item struct {
	LocalPath   string `json:"localPath"`
	ObjectKey   string `json:"objectKey"`
	ContentType string `json:"contentType"`
	SegmentID   *int64 `json:"segmentId,omitempty"`
	Retries     int    `json:"retries"`
}

// Uploader is the subset of objectstore.Client the queue depends on.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, body []byte) (objectstore.Reference, error)
}

// SegmentRecorder lets a successful upload be written back onto its Segment
// row. Optional: a nil recorder simply skips the write-back.
type SegmentRecorder interface {
	SetSegmentObjectKey(ctx context.Context, segmentID int64, objectKey string) error
}

const (
	defaultWorkers    = 2
	defaultRetryDelay = 5 * time.Second
	defaultMaxRetries = 5
	defaultQueueDepth = 256
)

// Config tunes worker count, retry policy, and dead-letter location.
type Config struct {
	Workers       int
	RetryDelay    time.Duration
	MaxRetries    int
	QueueDepth    int
	DeadLetterDir string
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = defaultQueueDepth
	}
	return c
}

// Queue is an in-process, bounded-concurrency upload replicator.
type Queue struct {
	cfg      Config
	uploader Uploader
	recorder SegmentRecorder
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	items  chan Item
	sem    *semaphore.Weighted
	wg     sync.WaitGroup

	mu             sync.Mutex
	retryWg        sync.WaitGroup
	started        bool
	shuttingDown   bool
	pendingRetries map[*time.Timer]Item
}

// New builds a Queue. Start must be called before Enqueue has any effect.
func New(cfg Config, uploader Uploader, recorder SegmentRecorder, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		cfg:      cfg.withDefaults(),
		uploader: uploader,
		recorder: recorder,
		logger:   logger,
	}
}

// Start launches the dispatcher loop. Safe to call once.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true
	q.ctx, q.cancel = context.WithCancel(context.Background())
	q.items = make(chan Item, q.cfg.QueueDepth)
	q.sem = semaphore.NewWeighted(int64(q.cfg.Workers))
	q.wg.Add(1)
	go q.dispatch()
}

// Shutdown stops accepting new dispatch and waits for in-flight workers to
// finish their current item, or until ctx expires. Items caught mid-retry
// delay are not left to fire into a dispatcher that has already exited:
// their timers are cancelled and the items dead-lettered synchronously, so
// every item still reaches RetryFailed's replay path rather than vanishing.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return nil
	}
	q.shuttingDown = true
	q.mu.Unlock()
	q.cancel()

	if err := waitOrDeadline(ctx, &q.wg); err != nil {
		return err
	}

	// No worker can schedule a new retry once q.wg has drained, so this
	// snapshot is final: stop every timer that hasn't fired yet and
	// dead-letter its item directly instead of waiting out the delay.
	q.mu.Lock()
	pending := q.pendingRetries
	q.pendingRetries = nil
	q.mu.Unlock()
	for timer, item := range pending {
		if timer.Stop() {
			q.retryWg.Done()
			q.deadLetter(item, fmt.Errorf("upload queue shut down before retry could be dispatched"))
		}
	}

	if err := waitOrDeadline(ctx, &q.retryWg); err != nil {
		return err
	}

	// A retry (or a late Enqueue) can have landed in the buffered channel
	// after the dispatcher already exited; drain it here so it isn't lost.
	for {
		select {
		case item := <-q.items:
			q.deadLetter(item, fmt.Errorf("upload queue shut down before item could be dispatched"))
		default:
			return nil
		}
	}
}

func waitOrDeadline(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Depth returns the number of items currently buffered in the dispatch
// channel, not counting items a worker already pulled off it.
func (q *Queue) Depth() int {
	q.mu.Lock()
	items := q.items
	q.mu.Unlock()
	if items == nil {
		return 0
	}
	return len(items)
}

// DeadLetterCount returns the number of records currently sitting in the
// dead-letter directory, awaiting RetryFailed.
func (q *Queue) DeadLetterCount() int {
	entries, err := os.ReadDir(q.cfg.DeadLetterDir)
	if err != nil {
		return 0
	}
	n := 0
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			n++
		}
	}
	return n
}

// Enqueue hands an item to the queue. If the queue is shutting down, the
// item is dead-lettered immediately rather than silently dropped.
func (q *Queue) Enqueue(item Item) {
	q.mu.Lock()
	if q.shuttingDown {
		q.mu.Unlock()
		q.deadLetter(item, fmt.Errorf("upload queue shut down before item could be dispatched"))
		return
	}
	ctx, items := q.ctx, q.items
	q.mu.Unlock()
	if ctx == nil {
		return
	}
	select {
	case items <- item:
	case <-ctx.Done():
		q.deadLetter(item, fmt.Errorf("upload queue shut down before item could be dispatched"))
	}
}

// dispatch is the single consumer loop; it hands each item to its own
// goroutine gated by sem, bounding concurrency to cfg.Workers without a
// fixed-size worker pool.
func (q *Queue) dispatch() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case item := <-q.items:
			if err := q.sem.Acquire(q.ctx, 1); err != nil {
				return
			}
			q.wg.Add(1)
			go func(it Item) {
				defer q.wg.Done()
				defer q.sem.Release(1)
				q.process(it)
			}(item)
		}
	}
}

func (q *Queue) process(item Item) {
	body, err := os.ReadFile(item.LocalPath)
	if err != nil {
		q.retryOrDeadLetter(item, fmt.Errorf("read local blob: %w", err))
		return
	}

	ref, err := q.uploader.Upload(q.ctx, item.ObjectKey, item.ContentType, body)
	if err != nil {
		q.retryOrDeadLetter(item, fmt.Errorf("upload: %w", err))
		return
	}

	if item.SegmentID != nil && q.recorder != nil {
		if err := q.recorder.SetSegmentObjectKey(q.ctx, *item.SegmentID, ref.Key); err != nil {
			q.logger.Error("failed to record segment object key", "segment_id", *item.SegmentID, "error", err)
		}
	}
}

func (q *Queue) retryOrDeadLetter(item Item, cause error) {
	item.Retries++
	if item.Retries > q.cfg.MaxRetries {
		q.deadLetter(item, cause)
		return
	}
	q.logger.Warn("upload item failed, scheduling retry",
		"object_key", item.ObjectKey, "retries", item.Retries, "error", cause)

	q.retryWg.Add(1)
	q.mu.Lock()
	if q.pendingRetries == nil {
		q.pendingRetries = make(map[*time.Timer]Item)
	}
	var timer *time.Timer
	timer = time.AfterFunc(q.cfg.RetryDelay, func() {
		defer q.retryWg.Done()
		q.mu.Lock()
		delete(q.pendingRetries, timer)
		q.mu.Unlock()
		q.Enqueue(item)
	})
	q.pendingRetries[timer] = item
	q.mu.Unlock()
}

type deadLetterRecord struct {
	LocalPath   string    `json:"localPath"`
	ObjectKey   string    `json:"objectKey"`
	ContentType string    `json:"contentType"`
	SegmentID   *int64    `json:"segmentId,omitempty"`
	Retries     int       `json:"retries"`
	Error       string    `json:"error"`
	FailedAt    time.Time `json:"failedAt"`
}

func (q *Queue) deadLetter(item Item, cause error) {
	if err := os.MkdirAll(q.cfg.DeadLetterDir, 0o755); err != nil {
		q.logger.Error("failed to create dead-letter dir", "error", err)
		return
	}
	rec := deadLetterRecord{
		LocalPath:   item.LocalPath,
		ObjectKey:   item.ObjectKey,
		ContentType: item.ContentType,
		SegmentID:   item.SegmentID,
		Retries:     item.Retries,
		Error:       cause.Error(),
		FailedAt:    time.Now().UTC(),
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		q.logger.Error("failed to marshal dead-letter record", "error", err)
		return
	}
	path := filepath.Join(q.cfg.DeadLetterDir, deadLetterFileName(item))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		q.logger.Error("failed to write dead-letter record", "path", path, "error", err)
		return
	}
	q.logger.Error("upload item exhausted retries, dead-lettered", "object_key", item.ObjectKey, "path", path)
}

func deadLetterFileName(item Item) string {
	safe := strings.NewReplacer("/", "_", ":", "_", " ", "_").Replace(item.ObjectKey)
	return fmt.Sprintf("%s-%s.json", safe, uuid.NewString())
}

// RetryFailed drains the dead-letter directory back into the queue with
// retries reset to zero, removing each file as it is re-enqueued.
func (q *Queue) RetryFailed(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(q.cfg.DeadLetterDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read dead-letter dir: %w", err)
	}

	n := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(q.cfg.DeadLetterDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			q.logger.Error("failed to read dead-letter record", "path", path, "error", err)
			continue
		}
		var rec deadLetterRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			q.logger.Error("failed to parse dead-letter record", "path", path, "error", err)
			continue
		}
		if err := os.Remove(path); err != nil {
			q.logger.Error("failed to remove dead-letter record", "path", path, "error", err)
			continue
		}
		q.Enqueue(Item{
			LocalPath:   rec.LocalPath,
			ObjectKey:   rec.ObjectKey,
			ContentType: rec.ContentType,
			SegmentID:   rec.SegmentID,
			Retries:     0,
		})
		n++
		select {
		case <-ctx.Done():
			return n, ctx.Err()
		default:
		}
	}
	return n, nil
}
