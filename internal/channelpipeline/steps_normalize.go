package channelpipeline

import (
	"context"
	"fmt"
	"math"
	"path/filepath"

	"audioreceiver/internal/audiotoolbox"
	"audioreceiver/internal/blobstore"
	"audioreceiver/internal/pipeline"
)

// normalizeAudioStep brings the channel's loudness to the target LUFS.
// A required gain below Config.MinGainLU is left alone (render_path passes
// through the concatenated master); a gain above Config.HighGainThresholdDB
// uses a flat gain-plus-limiter instead of two-pass loudnorm, since
// loudnorm's dynamics processing distorts very quiet sources.
type normalizeAudioStep struct {
	blobs *blobstore.Store
	tools audiotoolbox.Toolbox
	cfg   Config
}

func (s *normalizeAudioStep) Name() string { return "normalize-audio" }

func (s *normalizeAudioStep) ShouldRun(sctx pipeline.StepContext, data pipeline.Data) bool {
	if !s.cfg.NormalizeEnabled {
		return false
	}
	analysis, ok := analysisFromData(data)
	return ok && !analysis.IsQuiet
}

func (s *normalizeAudioStep) Execute(ctx context.Context, sctx pipeline.StepContext, data pipeline.Data) pipeline.StepResult {
	concatPath, ok := data[KeyConcatPath].(string)
	if !ok || concatPath == "" {
		return pipeline.Failure(fmt.Errorf("normalize-audio: no concat path in data"))
	}
	analysis, ok := analysisFromData(data)
	if !ok {
		return pipeline.Failure(fmt.Errorf("normalize-audio: no analysis in data"))
	}

	requiredGain := s.cfg.TargetLUFS - analysis.IntegratedLoudnessLUFS
	if math.Abs(requiredGain) < s.cfg.MinGainLU {
		return pipeline.Skipped(fmt.Sprintf("required gain %.2f LU below minimum %.2f", requiredGain, s.cfg.MinGainLU))
	}

	workDir := s.blobs.WorkDir(sctx.SessionID, sctx.ChannelNumber)
	out := filepath.Join(workDir, "normalized.flac")

	if math.Abs(requiredGain) > s.cfg.HighGainThresholdDB {
		if err := s.tools.GainNormalize(ctx, concatPath, out, requiredGain, s.cfg.TargetTruePeakDB); err != nil {
			return pipeline.Failure(fmt.Errorf("gain normalize: %w", err))
		}
		return pipeline.Success(pipeline.Data{KeyNormalizedPath: out, KeyRenderPath: out, KeyIsSilent: false}, map[string]any{
			"mode":          "gain",
			"required_gain": requiredGain,
		})
	}

	result, err := s.tools.LoudnessNormalize(ctx, concatPath, out,
		s.cfg.TargetLUFS, s.cfg.TargetTruePeakDB, s.cfg.TargetLRA,
		analysis.IntegratedLoudnessLUFS, analysis.TruePeakDBTP, analysis.LoudnessRangeLU)
	if err != nil {
		return pipeline.Failure(fmt.Errorf("loudness normalize: %w", err))
	}

	return pipeline.Success(pipeline.Data{KeyNormalizedPath: out, KeyRenderPath: out, KeyIsSilent: false}, map[string]any{
		"mode":        "loudnorm",
		"input_lufs":  result.InputLUFS,
		"output_lufs": result.OutputLUFS,
	})
}

func (s *normalizeAudioStep) Cleanup(ctx context.Context, sctx pipeline.StepContext, data pipeline.Data) {}
