package channelpipeline

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"audioreceiver/internal/audiotoolbox"
	"audioreceiver/internal/blobstore"
	"audioreceiver/internal/metadata"
	"audioreceiver/internal/models"
	"audioreceiver/internal/pipeline"
)

// TestDefaultPipelineEndToEnd runs every step against real ffmpeg, ffprobe
// and audiowaveform output, skipping when any of them isn't installed.
func TestDefaultPipelineEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test requires ffmpeg")
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not available")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not available")
	}
	if _, err := exec.LookPath("audiowaveform"); err != nil {
		t.Skip("audiowaveform not available")
	}

	ctx := context.Background()
	tempDir := t.TempDir()
	blobs, err := blobstore.New(tempDir)
	if err != nil {
		t.Fatalf("blobstore.New: %v", err)
	}
	store, err := metadata.NewSQLiteStore(ctx, ":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer store.Close()

	if _, err := store.UpsertSession(ctx, "s1", 48000, 6); err != nil {
		t.Fatalf("UpsertSession: %v", err)
	}

	segmentPath := blobs.SegmentPath("s1", time.Now(), 0, "ch01-06", "flac")
	generate := exec.Command("ffmpeg", "-y",
		"-f", "lavfi", "-i", "sine=frequency=440:sample_rate=48000:duration=2",
		"-ac", "6", segmentPath)
	if out, err := generate.CombinedOutput(); err != nil {
		t.Fatalf("generate sample segment: %v (%s)", err, out)
	}

	seg, err := store.UpsertSegment(ctx, models.Segment{
		SessionID: "s1", SegmentNumber: 0, ChannelGroup: "ch01-06",
		LocalPath: segmentPath, FileSize: 1,
	})
	if err != nil {
		t.Fatalf("UpsertSegment: %v", err)
	}
	if seg.LocalPath != segmentPath {
		t.Fatalf("unexpected local path %s", seg.LocalPath)
	}

	deps := Deps{Store: store, Blobs: blobs, Tools: audiotoolbox.Toolbox{}}
	steps := BuildSteps(deps, DefaultConfig())

	runner := pipeline.Runner{Steps: steps, Options: pipeline.Options{MaxRetries: 0}, Store: store}
	sctx := pipeline.StepContext{SessionID: "s1", ChannelNumber: 3, WorkDir: blobs.WorkDir("s1", 3)}
	result := runner.Run(ctx, sctx, pipeline.Data{})

	if !result.Success {
		t.Fatalf("pipeline run failed: %+v", result.PerStepResults)
	}
	mp3Path, ok := result.FinalData[KeyMP3Path].(string)
	if !ok || !blobs.Exists(mp3Path) {
		t.Fatalf("expected an mp3 rendition to exist, got %v", result.FinalData[KeyMP3Path])
	}
}
