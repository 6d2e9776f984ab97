package channelpipeline

import (
	"context"
	"fmt"

	"audioreceiver/internal/audiotoolbox"
	"audioreceiver/internal/blobstore"
	"audioreceiver/internal/pipeline"
)

// encodeMP3Step produces the lossy master rendition. It reads render_path,
// which is the normalized file when normalize-audio ran, or the
// concatenated master when normalization was skipped or disabled. Quiet
// channels (flagged by analyze-audio) use a higher VBR quality setting to
// keep near-silent files small.
type encodeMP3Step struct {
	blobs *blobstore.Store
	tools audiotoolbox.Toolbox
	cfg   Config
}

func (s *encodeMP3Step) Name() string { return "encode-mp3" }

func (s *encodeMP3Step) ShouldRun(sctx pipeline.StepContext, data pipeline.Data) bool {
	if _, ok := data[KeyRenderPath]; ok {
		return true
	}
	_, ok := data[KeyConcatPath]
	return ok
}

func (s *encodeMP3Step) Execute(ctx context.Context, sctx pipeline.StepContext, data pipeline.Data) pipeline.StepResult {
	renderPath, ok := data[KeyRenderPath].(string)
	if !ok || renderPath == "" {
		renderPath, ok = data[KeyConcatPath].(string)
		if !ok || renderPath == "" {
			return pipeline.Failure(fmt.Errorf("encode-mp3: no render path or concat path in data"))
		}
	}

	quality := s.cfg.MP3VBRQuality
	if analysis, ok := analysisFromData(data); ok && analysis.IsQuiet {
		quality = s.cfg.MP3VBRQualityQuiet
	}

	out := s.blobs.MP3Path(sctx.SessionID, sctx.ChannelNumber)
	opts := audiotoolbox.EncodeMP3Options{
		UseVBR:      s.cfg.MP3UseVBR,
		VBRQuality:  quality,
		BitrateKbps: s.cfg.MP3BitrateKbps,
	}
	if err := s.tools.EncodeMP3(ctx, renderPath, out, opts); err != nil {
		return pipeline.Failure(fmt.Errorf("encode mp3: %w", err))
	}

	duration, err := s.tools.Duration(ctx, out)
	if err != nil {
		return pipeline.Failure(fmt.Errorf("probe mp3 duration: %w", err))
	}

	return pipeline.Success(pipeline.Data{KeyMP3Path: out, KeyDurationSecs: duration}, map[string]any{
		"duration_seconds": duration,
		"render_path":      renderPath,
	})
}

func (s *encodeMP3Step) Cleanup(ctx context.Context, sctx pipeline.StepContext, data pipeline.Data) {}
