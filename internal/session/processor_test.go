package session

import (
	"context"
	"testing"

	"audioreceiver/internal/audiotoolbox"
	"audioreceiver/internal/blobstore"
	"audioreceiver/internal/channelpipeline"
	"audioreceiver/internal/models"
)

func TestProcessRejectsAlreadyProcessingSession(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	if _, err := store.UpsertSession(ctx, "sess-p1", 48000, 2); err != nil {
		t.Fatalf("UpsertSession: %v", err)
	}
	if _, err := store.SetSessionStatus(ctx, "sess-p1", models.SessionProcessing); err != nil {
		t.Fatalf("SetSessionStatus: %v", err)
	}

	blobs, err := blobstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("blobstore.New: %v", err)
	}
	proc := NewProcessor(ProcessorConfig{
		Store:          store,
		Blobs:          blobs,
		Tools:          audiotoolbox.Toolbox{},
		Logger:         testLogger(),
		PipelineConfig: channelpipeline.DefaultConfig(),
	})

	if err := proc.Process(ctx, "sess-p1"); err == nil {
		t.Fatal("expected Process to reject a session already processing")
	}
}

func TestProcessFailsSessionWithNoSegments(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	if _, err := store.UpsertSession(ctx, "sess-p2", 48000, 2); err != nil {
		t.Fatalf("UpsertSession: %v", err)
	}
	if _, err := store.SetSessionStatus(ctx, "sess-p2", models.SessionComplete); err != nil {
		t.Fatalf("SetSessionStatus: %v", err)
	}

	blobs, err := blobstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("blobstore.New: %v", err)
	}
	proc := NewProcessor(ProcessorConfig{
		Store:          store,
		Blobs:          blobs,
		Tools:          audiotoolbox.Toolbox{},
		Logger:         testLogger(),
		PipelineConfig: channelpipeline.DefaultConfig(),
	})

	if err := proc.Process(ctx, "sess-p2"); err == nil {
		t.Fatal("expected Process to fail a session with no received segments")
	}

	sess, err := store.GetSession(ctx, "sess-p2")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.Status != models.SessionFailed {
		t.Errorf("status = %s, want failed", sess.Status)
	}
}
