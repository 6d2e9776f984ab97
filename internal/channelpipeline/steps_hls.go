package channelpipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"audioreceiver/internal/audiotoolbox"
	"audioreceiver/internal/blobstore"
	"audioreceiver/internal/pipeline"
)

// generateHLSStep segments the MP3 master into an HLS playlist for
// low-latency seek-anywhere streaming.
type generateHLSStep struct {
	blobs *blobstore.Store
	tools audiotoolbox.Toolbox
	cfg   Config
}

func (s *generateHLSStep) Name() string { return "generate-hls" }

func (s *generateHLSStep) ShouldRun(sctx pipeline.StepContext, data pipeline.Data) bool {
	if isSilentFromData(data) {
		return false
	}
	_, ok := data[KeyMP3Path]
	return ok
}

func (s *generateHLSStep) Execute(ctx context.Context, sctx pipeline.StepContext, data pipeline.Data) pipeline.StepResult {
	mp3Path, ok := data[KeyMP3Path].(string)
	if !ok || mp3Path == "" {
		return pipeline.Failure(fmt.Errorf("generate-hls: no mp3 path in data"))
	}

	playlist := s.blobs.HLSPlaylistPath(sctx.SessionID, sctx.ChannelNumber)
	pattern := s.blobs.HLSSegmentPattern(sctx.SessionID, sctx.ChannelNumber)
	if err := s.tools.HLS(ctx, mp3Path, playlist, pattern, s.cfg.HLSSegmentDurationSeconds, s.cfg.HLSAudioBitrateKbps); err != nil {
		return pipeline.Failure(fmt.Errorf("generate hls: %w", err))
	}

	segments, err := filepath.Glob(filepath.Join(filepath.Dir(playlist), fmt.Sprintf("channel_%02d_*.ts", sctx.ChannelNumber)))
	if err != nil {
		return pipeline.Failure(fmt.Errorf("list hls segments: %w", err))
	}

	return pipeline.Success(pipeline.Data{KeyHLSPlaylist: playlist, KeyHLSSegments: segments}, map[string]any{
		"segment_count": len(segments),
	})
}

func (s *generateHLSStep) Cleanup(ctx context.Context, sctx pipeline.StepContext, data pipeline.Data) {}
