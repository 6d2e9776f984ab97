package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow coalesces the burst of events a single atomic
// tmp-then-rename write produces into one reload.
const debounceWindow = 500 * time.Millisecond

// Holder holds the live Thresholds value behind an atomic pointer and,
// when started against a file path, watches that file's directory and
// reloads on every write. A zero-value Holder (no path) serves
// DefaultThresholds forever.
type Holder struct {
	current atomic.Pointer[Thresholds]
	loader  Loader
	logger  *slog.Logger
	watcher *fsnotify.Watcher
}

// NewHolder builds a Holder seeded with initial. Path may be empty, in
// which case Watch is a no-op and the holder never reloads.
func NewHolder(initial Thresholds, path string, logger *slog.Logger) *Holder {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Holder{loader: Loader{Path: path}, logger: logger}
	h.current.Store(&initial)
	return h
}

// Get returns the current Thresholds value.
func (h *Holder) Get() Thresholds {
	if v := h.current.Load(); v != nil {
		return *v
	}
	return DefaultThresholds()
}

// Reload re-reads the thresholds file and, if it parses and validates,
// atomically swaps it in. On failure the previously loaded value is kept
// untouched and the error is returned for the caller to log.
func (h *Holder) Reload() error {
	next, err := h.loader.Load()
	if err != nil {
		return err
	}
	h.current.Store(&next)
	h.logger.Info("thresholds reloaded", "path", h.loader.Path)
	return nil
}

// Watch starts an fsnotify watch on the thresholds file's directory and
// reloads on every write/create/rename event, debounced so a single
// editor save (which often produces write+rename) triggers one reload. A
// blank path makes this a no-op: the holder serves its initial value for
// the life of the process. Watch returns once the watcher is running;
// the watch loop itself runs in a background goroutine until ctx is done.
func (h *Holder) Watch(ctx context.Context) error {
	if h.loader.Path == "" {
		h.logger.Info("thresholds file watcher disabled, using initial configuration only")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	h.watcher = watcher

	dir := filepath.Dir(h.loader.Path)
	file := filepath.Base(h.loader.Path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return err
	}

	h.logger.Info("watching thresholds file for changes", "path", h.loader.Path)
	go h.watchLoop(ctx, file)
	return nil
}

func (h *Holder) watchLoop(ctx context.Context, file string) {
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
		_ = h.watcher.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != file {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceWindow, func() {
				if err := h.Reload(); err != nil {
					h.logger.Error("failed to reload thresholds, keeping previous value", "path", h.loader.Path, "error", err)
				}
			})
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error("thresholds watcher error", "error", err)
		}
	}
}
