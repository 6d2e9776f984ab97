package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoaderLoadAppliesDefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "thresholds.yaml")
	if err := os.WriteFile(path, []byte("quietThresholdDB: -45\nsilenceThresholdDB: -55\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := (Loader{Path: path}).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.QuietThresholdDB != -45 {
		t.Fatalf("QuietThresholdDB = %v, want -45", got.QuietThresholdDB)
	}
	if got.SilenceThresholdDB != -55 {
		t.Fatalf("SilenceThresholdDB = %v, want -55", got.SilenceThresholdDB)
	}
	// Untouched fields keep DefaultThresholds' values.
	want := DefaultThresholds()
	if got.TargetLUFS != want.TargetLUFS {
		t.Fatalf("TargetLUFS = %v, want default %v", got.TargetLUFS, want.TargetLUFS)
	}
}

func TestLoaderLoadRejectsInvalidThresholds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "thresholds.yaml")
	if err := os.WriteFile(path, []byte("quietThresholdDB: -50\nsilenceThresholdDB: -10\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := (Loader{Path: path}).Load(); err == nil {
		t.Fatal("expected validation error, got nil")
	}
}

func TestLoaderLoadMissingFile(t *testing.T) {
	if _, err := (Loader{Path: "/nonexistent/thresholds.yaml"}).Load(); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestHolderGetReturnsInitialWithoutWatch(t *testing.T) {
	h := NewHolder(DefaultThresholds(), "", nil)
	if h.Get() != DefaultThresholds() {
		t.Fatal("expected Get to return the seeded initial value")
	}
}

func TestHolderWatchNoopOnBlankPath(t *testing.T) {
	h := NewHolder(DefaultThresholds(), "", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := h.Watch(ctx); err != nil {
		t.Fatalf("Watch: %v", err)
	}
}

func TestHolderReloadPicksUpFileChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "thresholds.yaml")
	if err := os.WriteFile(path, []byte("quietThresholdDB: -50\nsilenceThresholdDB: -60\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	h := NewHolder(DefaultThresholds(), path, nil)
	if err := os.WriteFile(path, []byte("quietThresholdDB: -40\nsilenceThresholdDB: -50\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := h.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := h.Get().QuietThresholdDB; got != -40 {
		t.Fatalf("QuietThresholdDB after reload = %v, want -40", got)
	}
}

func TestHolderWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "thresholds.yaml")
	if err := os.WriteFile(path, []byte("quietThresholdDB: -50\nsilenceThresholdDB: -60\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	h := NewHolder(DefaultThresholds(), path, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := h.Watch(ctx); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if err := os.WriteFile(path, []byte("quietThresholdDB: -30\nsilenceThresholdDB: -40\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if h.Get().QuietThresholdDB == -30 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("thresholds not reloaded within deadline, got %v", h.Get().QuietThresholdDB)
}
