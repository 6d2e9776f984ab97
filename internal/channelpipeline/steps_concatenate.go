package channelpipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"audioreceiver/internal/audiotoolbox"
	"audioreceiver/internal/blobstore"
	"audioreceiver/internal/pipeline"
)

// concatenateStep joins the ordered mono segment files into a single
// lossless master via ffmpeg's concat demuxer. Single-segment sessions skip
// the join and pass the one mono file through unchanged.
type concatenateStep struct {
	blobs *blobstore.Store
	tools audiotoolbox.Toolbox
}

func (s *concatenateStep) Name() string { return "concatenate" }

func (s *concatenateStep) ShouldRun(sctx pipeline.StepContext, data pipeline.Data) bool {
	_, ok := data[KeyMonoPaths]
	return ok
}

func (s *concatenateStep) Execute(ctx context.Context, sctx pipeline.StepContext, data pipeline.Data) pipeline.StepResult {
	monoPaths, ok := data[KeyMonoPaths].([]string)
	if !ok || len(monoPaths) == 0 {
		return pipeline.Failure(fmt.Errorf("concatenate: no mono paths in data"))
	}

	workDir := s.blobs.WorkDir(sctx.SessionID, sctx.ChannelNumber)
	out := filepath.Join(workDir, "concatenated.flac")

	if len(monoPaths) == 1 {
		data, err := os.ReadFile(monoPaths[0])
		if err != nil {
			return pipeline.Failure(fmt.Errorf("read single mono segment: %w", err))
		}
		if _, err := s.blobs.Write(out, data); err != nil {
			return pipeline.Failure(fmt.Errorf("write concatenated output: %w", err))
		}
		return pipeline.Success(pipeline.Data{KeyConcatPath: out}, map[string]any{"segments_joined": 1})
	}

	listPath := filepath.Join(workDir, "concat_list.txt")
	var sb strings.Builder
	for _, p := range monoPaths {
		fmt.Fprintf(&sb, "file '%s'\n", p)
	}
	if err := os.WriteFile(listPath, []byte(sb.String()), 0o644); err != nil {
		return pipeline.Failure(fmt.Errorf("write concat list: %w", err))
	}

	if err := s.tools.Concatenate(ctx, listPath, out, "flac"); err != nil {
		return pipeline.Failure(fmt.Errorf("concatenate segments: %w", err))
	}

	return pipeline.Success(pipeline.Data{KeyConcatPath: out}, map[string]any{"segments_joined": len(monoPaths)})
}

func (s *concatenateStep) Cleanup(ctx context.Context, sctx pipeline.StepContext, data pipeline.Data) {}
