package channelpipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"audioreceiver/internal/audiotoolbox"
	"audioreceiver/internal/blobstore"
	"audioreceiver/internal/pipeline"
)

// generatePeaksStep produces the waveform-peaks JSON used by the player's
// scrubber, derived from the MP3 master so its timing matches what clients
// actually stream. Amplitudes are rescaled to [-1, 1] by the max absolute
// sample and rounded to two decimals; a silent or empty waveform keeps the
// raw file rather than dividing by zero.
type generatePeaksStep struct {
	blobs  *blobstore.Store
	tools  audiotoolbox.Toolbox
	cfg    Config
	logger *slog.Logger
}

func (s *generatePeaksStep) Name() string { return "generate-peaks" }

func (s *generatePeaksStep) logf() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

func (s *generatePeaksStep) ShouldRun(sctx pipeline.StepContext, data pipeline.Data) bool {
	if isSilentFromData(data) {
		return false
	}
	_, ok := data[KeyMP3Path]
	return ok
}

func (s *generatePeaksStep) Execute(ctx context.Context, sctx pipeline.StepContext, data pipeline.Data) pipeline.StepResult {
	mp3Path, ok := data[KeyMP3Path].(string)
	if !ok || mp3Path == "" {
		return pipeline.Failure(fmt.Errorf("generate-peaks: no mp3 path in data"))
	}

	out := s.blobs.PeaksPath(sctx.SessionID, sctx.ChannelNumber)
	peaks, err := s.tools.Peaks(ctx, mp3Path, out, s.cfg.PeaksPixelsPerSecond, s.cfg.PeaksBits)
	if err != nil {
		if errors.Is(err, audiotoolbox.ErrToolUnavailable) {
			s.logf().Warn("peaks tool unavailable, skipping peaks generation", "channel", sctx.ChannelNumber, "error", err)
			return pipeline.Skipped("peaks tool unavailable")
		}
		return pipeline.Failure(fmt.Errorf("generate peaks: %w", err))
	}

	if normalized, ok := normalizePeaksToUnitRange(peaks); ok {
		body, err := json.Marshal(normalized)
		if err != nil {
			return pipeline.Failure(fmt.Errorf("marshal normalized peaks: %w", err))
		}
		if _, err := s.blobs.Write(out, body); err != nil {
			return pipeline.Failure(fmt.Errorf("write normalized peaks: %w", err))
		}
	} else {
		s.logf().Warn("skipping peaks normalization: waveform is empty or all-zero", "channel", sctx.ChannelNumber)
	}

	return pipeline.Success(pipeline.Data{KeyPeaksPath: out}, map[string]any{
		"peaks_length": peaks.Length,
	})
}

// normalizedPeaks mirrors audiotoolbox.Peaks but with float sample values,
// since rescaling to [-1, 1] can no longer be represented as integers.
type normalizedPeaks struct {
	Length     int       `json:"length"`
	SampleRate int       `json:"sample_rate"`
	Data       []float64 `json:"data"`
}

func normalizePeaksToUnitRange(peaks audiotoolbox.Peaks) (normalizedPeaks, bool) {
	maxAbs := 0
	for _, v := range peaks.Data {
		if v < 0 {
			v = -v
		}
		if v > maxAbs {
			maxAbs = v
		}
	}
	if maxAbs == 0 {
		return normalizedPeaks{}, false
	}
	out := normalizedPeaks{Length: peaks.Length, SampleRate: peaks.SampleRate, Data: make([]float64, len(peaks.Data))}
	for i, v := range peaks.Data {
		out.Data[i] = math.Round(float64(v)/float64(maxAbs)*100) / 100
	}
	return out, true
}

func (s *generatePeaksStep) Cleanup(ctx context.Context, sctx pipeline.StepContext, data pipeline.Data) {}
