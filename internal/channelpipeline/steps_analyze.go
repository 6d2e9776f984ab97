package channelpipeline

import (
	"context"
	"fmt"

	"audioreceiver/internal/audiotoolbox"
	"audioreceiver/internal/pipeline"
)

// analyzeAudioStep measures loudness and amplitude of the concatenated
// master, classifying it quiet/silent against the configured thresholds.
type analyzeAudioStep struct {
	tools audiotoolbox.Toolbox
	cfg   Config
}

func (s *analyzeAudioStep) Name() string { return "analyze-audio" }

func (s *analyzeAudioStep) ShouldRun(sctx pipeline.StepContext, data pipeline.Data) bool {
	_, ok := data[KeyConcatPath]
	return ok
}

func (s *analyzeAudioStep) Execute(ctx context.Context, sctx pipeline.StepContext, data pipeline.Data) pipeline.StepResult {
	concatPath, ok := data[KeyConcatPath].(string)
	if !ok || concatPath == "" {
		return pipeline.Failure(fmt.Errorf("analyze-audio: no concat path in data"))
	}

	res, err := s.tools.Analyze(ctx, concatPath, s.cfg.QuietThresholdDB)
	if err != nil {
		return pipeline.Failure(fmt.Errorf("analyze audio: %w", err))
	}
	isSilent := res.MeanVolumeDB < s.cfg.SilenceThresholdDB

	return pipeline.Success(pipeline.Data{KeyAnalysis: res, KeyIsSilent: isSilent}, map[string]any{
		"max_volume_db":  res.MaxVolumeDB,
		"mean_volume_db": res.MeanVolumeDB,
		"is_quiet":       res.IsQuiet,
		"is_silent":      isSilent,
	})
}

func (s *analyzeAudioStep) Cleanup(ctx context.Context, sctx pipeline.StepContext, data pipeline.Data) {}
