package channelpipeline

import (
	"testing"

	"audioreceiver/internal/audiotoolbox"
	"audioreceiver/internal/blobstore"
	"audioreceiver/internal/pipeline"
)

func TestBuildStepsReturnsAllStepsInOrder(t *testing.T) {
	blobs, _ := blobstore.New(t.TempDir())
	steps := BuildSteps(Deps{Blobs: blobs, Tools: audiotoolbox.Toolbox{}}, DefaultConfig())

	want := []string{
		"prefetch-flac", "extract-channel", "concatenate", "analyze-audio",
		"normalize-audio", "encode-mp3", "generate-peaks", "generate-hls",
		"upload-mp3", "upload-peaks", "upload-hls",
	}
	if len(steps) != len(want) {
		t.Fatalf("got %d steps, want %d", len(steps), len(want))
	}
	for i, s := range steps {
		if s.Name() != want[i] {
			t.Errorf("step %d = %q, want %q", i, s.Name(), want[i])
		}
	}
}

func TestUploadStepsSkipWithoutObjectStore(t *testing.T) {
	blobs, _ := blobstore.New(t.TempDir())
	steps := BuildSteps(Deps{Blobs: blobs, Tools: audiotoolbox.Toolbox{}}, DefaultConfig())

	for _, s := range steps {
		switch s.Name() {
		case "upload-mp3", "upload-peaks", "upload-hls":
			data := pipeline.Data{
				KeyMP3Path:     "x",
				KeyPeaksPath:   "x",
				KeyHLSPlaylist: "x",
			}
			if s.ShouldRun(pipeline.StepContext{}, data) {
				t.Errorf("%s should not run without an object store", s.Name())
			}
		}
	}
}
