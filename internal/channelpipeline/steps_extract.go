package channelpipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"audioreceiver/internal/audiotoolbox"
	"audioreceiver/internal/blobstore"
	"audioreceiver/internal/pipeline"
)

// extractChannelStep runs ffmpeg's pan filter over every fetched segment to
// pull out the one channel this run cares about, producing one mono FLAC
// per segment.
type extractChannelStep struct {
	blobs *blobstore.Store
	tools audiotoolbox.Toolbox
}

func (s *extractChannelStep) Name() string { return "extract-channel" }

func (s *extractChannelStep) ShouldRun(sctx pipeline.StepContext, data pipeline.Data) bool {
	_, ok := data[KeySegmentFetches]
	return ok
}

func (s *extractChannelStep) Execute(ctx context.Context, sctx pipeline.StepContext, data pipeline.Data) pipeline.StepResult {
	fetches, ok := data[KeySegmentFetches].([]SegmentFetch)
	if !ok || len(fetches) == 0 {
		return pipeline.Failure(fmt.Errorf("extract-channel: no segment fetches in data"))
	}

	workDir := s.blobs.WorkDir(sctx.SessionID, sctx.ChannelNumber)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return pipeline.Failure(fmt.Errorf("create work dir: %w", err))
	}

	monoPaths := make([]string, 0, len(fetches))
	for _, f := range fetches {
		out := filepath.Join(workDir, fmt.Sprintf("seg%04d_mono.flac", f.SegmentNumber))
		if err := s.tools.Extract(ctx, f.LocalPath, f.ChannelIndexInGroup, out); err != nil {
			return pipeline.Failure(fmt.Errorf("extract segment %d: %w", f.SegmentID, err))
		}
		monoPaths = append(monoPaths, out)
	}

	return pipeline.Success(pipeline.Data{KeyMonoPaths: monoPaths}, map[string]any{
		"extracted_count": len(monoPaths),
	})
}

func (s *extractChannelStep) Cleanup(ctx context.Context, sctx pipeline.StepContext, data pipeline.Data) {}
