package blobstore

import (
	"path/filepath"
	"testing"
	"time"
)

func TestWriteThenExists(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	path := store.SegmentPath("sess-1", time.Now(), 0, "ch01-06", "flac")
	if store.Exists(path) {
		t.Fatal("expected file to not exist before Write")
	}
	n, err := store.Write(path, []byte("payload"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != 7 {
		t.Errorf("n = %d, want 7", n)
	}
	if !store.Exists(path) {
		t.Fatal("expected file to exist after Write")
	}
}

func TestWriteRejectsEmptyPayload(t *testing.T) {
	store, _ := New(t.TempDir())
	path := filepath.Join(store.Root, "sess-1", "segments", "empty.flac")
	if _, err := store.Write(path, nil); err == nil {
		t.Fatal("expected error for empty payload")
	}
	if store.Exists(path) {
		t.Fatal("empty write should not leave a file behind")
	}
}

func TestWriteIsAtomicNoPartialFileOnRename(t *testing.T) {
	store, _ := New(t.TempDir())
	path := filepath.Join(store.Root, "sess-1", "segments", "a.flac")
	if _, err := store.Write(path, []byte("one")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := store.Write(path, []byte("two")); err != nil {
		t.Fatalf("Write (overwrite): %v", err)
	}
	f, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	buf := make([]byte, 3)
	n, _ := f.Read(buf)
	if string(buf[:n]) != "two" {
		t.Errorf("content = %q, want %q", buf[:n], "two")
	}
}

func TestPurgeSessionRemovesTree(t *testing.T) {
	store, _ := New(t.TempDir())
	path := store.SegmentPath("sess-1", time.Now(), 0, "ch01-06", "flac")
	store.Write(path, []byte("x"))

	if err := store.PurgeSession("sess-1"); err != nil {
		t.Fatalf("PurgeSession: %v", err)
	}
	if store.Exists(path) {
		t.Fatal("expected segment to be gone after purge")
	}
}

func TestRenditionPathsAreNamedByChannel(t *testing.T) {
	store, _ := New(t.TempDir())
	if got := store.MP3Path("sess-1", 3); filepath.Base(got) != "channel_03.mp3" {
		t.Errorf("MP3Path = %s", got)
	}
	if got := store.PeaksPath("sess-1", 3); filepath.Base(got) != "channel_03_peaks.json" {
		t.Errorf("PeaksPath = %s", got)
	}
	if got := store.HLSPlaylistPath("sess-1", 3); filepath.Base(got) != "channel_03.m3u8" {
		t.Errorf("HLSPlaylistPath = %s", got)
	}
}

func TestWorkDirIsPerChannel(t *testing.T) {
	store, _ := New(t.TempDir())
	a := store.WorkDir("sess-1", 3)
	b := store.WorkDir("sess-1", 4)
	if a == b {
		t.Fatalf("expected distinct work dirs, got %s twice", a)
	}
}
