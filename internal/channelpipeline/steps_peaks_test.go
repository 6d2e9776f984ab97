package channelpipeline

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"audioreceiver/internal/audiotoolbox"
	"audioreceiver/internal/blobstore"
	"audioreceiver/internal/pipeline"
)

func TestNormalizePeaksToUnitRangeScalesByMaxAbs(t *testing.T) {
	peaks := audiotoolbox.Peaks{Length: 4, SampleRate: 1000, Data: []int{-200, 100, 0, 50}}
	out, ok := normalizePeaksToUnitRange(peaks)
	if !ok {
		t.Fatal("expected normalization to succeed")
	}
	want := []float64{-1, 0.5, 0, 0.25}
	for i, v := range want {
		if out.Data[i] != v {
			t.Errorf("Data[%d] = %v, want %v", i, out.Data[i], v)
		}
	}
}

func TestNormalizePeaksToUnitRangeSkipsAllZero(t *testing.T) {
	peaks := audiotoolbox.Peaks{Length: 3, SampleRate: 1000, Data: []int{0, 0, 0}}
	if _, ok := normalizePeaksToUnitRange(peaks); ok {
		t.Fatal("expected normalization to be skipped for all-zero data")
	}
}

// TestGeneratePeaksStepSkipsWhenToolUnavailable exercises spec §4.5 step 7's
// "skipped if... the peaks tool is unavailable" clause: a missing
// audiowaveform binary must produce a skip, not a pipeline failure.
func TestGeneratePeaksStepSkipsWhenToolUnavailable(t *testing.T) {
	if _, err := exec.LookPath("audiowaveform"); err == nil {
		t.Skip("audiowaveform is installed; cannot exercise the unavailable path")
	}

	tempDir := t.TempDir()
	blobs, err := blobstore.New(tempDir)
	if err != nil {
		t.Fatalf("blobstore.New: %v", err)
	}
	mp3Path := filepath.Join(tempDir, "channel_01.mp3")
	if err := os.WriteFile(mp3Path, []byte("not really an mp3"), 0o644); err != nil {
		t.Fatalf("write fake mp3: %v", err)
	}

	step := &generatePeaksStep{blobs: blobs, tools: audiotoolbox.Toolbox{}, cfg: DefaultConfig()}
	sctx := pipeline.StepContext{SessionID: "s1", ChannelNumber: 1, WorkDir: tempDir, OutputDir: tempDir}
	data := pipeline.Data{KeyMP3Path: mp3Path}

	result := step.Execute(context.Background(), sctx, data)
	if result.Kind != pipeline.ResultSkipped {
		t.Fatalf("Execute() kind = %v, want ResultSkipped (err=%v)", result.Kind, result.Err)
	}
}
