package session

import (
	"context"
	"fmt"
	"log/slog"

	"audioreceiver/internal/audiotoolbox"
	"audioreceiver/internal/blobstore"
	"audioreceiver/internal/channelpipeline"
	"audioreceiver/internal/metadata"
	"audioreceiver/internal/models"
	"audioreceiver/internal/objectstore"
	"audioreceiver/internal/pipeline"
)

// ProcessorConfig wires the Processor's collaborators and the pipeline
// tuning it hands to every channel run.
type ProcessorConfig struct {
	Store   metadata.Store
	Blobs   *blobstore.Store
	Objects *objectstore.Client
	Tools   audiotoolbox.Toolbox
	Logger  *slog.Logger

	PipelineConfig channelpipeline.Config
	MaxRetries     int
}

// Processor runs the default channel pipeline once per channel and rolls
// the per-channel outcomes up into the session's terminal status.
type Processor struct {
	cfg   ProcessorConfig
	steps []pipeline.Step
}

func NewProcessor(cfg ProcessorConfig) *Processor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	steps := channelpipeline.BuildSteps(channelpipeline.Deps{
		Store:   cfg.Store,
		Blobs:   cfg.Blobs,
		Objects: cfg.Objects,
		Tools:   cfg.Tools,
		Logger:  cfg.Logger,
	}, cfg.PipelineConfig)
	return &Processor{cfg: cfg, steps: steps}
}

// Process runs every channel of a `complete` session through the channel
// pipeline, continuing past individual channel failures, then transitions
// the session to `processed` if at least one channel succeeded or `failed`
// otherwise.
func (p *Processor) Process(ctx context.Context, sessionID string) error {
	sess, err := p.cfg.Store.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if sess.Status == models.SessionProcessing || sess.Status == models.SessionProcessed {
		return fmt.Errorf("session %s already %s", sessionID, sess.Status)
	}

	segments, err := p.cfg.Store.ListSegments(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("list segments for session %s: %w", sessionID, err)
	}
	if len(segments) == 0 {
		if _, err := p.cfg.Store.SetSessionStatus(ctx, sessionID, models.SessionFailed); err != nil {
			p.cfg.Logger.Error("failed to mark empty session failed", "session", sessionID, "error", err)
		}
		return fmt.Errorf("session %s has no received segments", sessionID)
	}

	if _, err := p.cfg.Store.SetSessionStatus(ctx, sessionID, models.SessionProcessing); err != nil {
		return fmt.Errorf("mark session %s processing: %w", sessionID, err)
	}

	var failedChannels []int
	for ch := 1; ch <= sess.Channels; ch++ {
		if err := p.processChannel(ctx, sess, ch); err != nil {
			p.cfg.Logger.Error("channel processing failed", "session", sessionID, "channel", ch, "error", err)
			failedChannels = append(failedChannels, ch)
		}
		if err := p.cfg.Blobs.PurgeWorkDir(sessionID, ch); err != nil {
			p.cfg.Logger.Warn("failed to purge channel work dir", "session", sessionID, "channel", ch, "error", err)
		}
	}

	succeeded := sess.Channels - len(failedChannels)
	finalStatus := models.SessionProcessed
	if succeeded == 0 {
		finalStatus = models.SessionFailed
	}
	if _, err := p.cfg.Store.SetSessionStatus(ctx, sessionID, finalStatus); err != nil {
		return fmt.Errorf("mark session %s %s: %w", sessionID, finalStatus, err)
	}

	if _, err := p.cfg.Store.UpsertRecording(ctx, models.Recording{
		SessionID:      sessionID,
		ChannelCount:   sess.Channels,
		FailedChannels: len(failedChannels),
	}); err != nil {
		p.cfg.Logger.Error("failed to upsert recording rollup", "session", sessionID, "error", err)
	}

	if len(failedChannels) > 0 {
		return fmt.Errorf("session %s: %d of %d channels failed: %v", sessionID, len(failedChannels), sess.Channels, failedChannels)
	}
	return nil
}

func (p *Processor) processChannel(ctx context.Context, sess models.Session, channel int) error {
	_, err := p.runChannel(ctx, sess, channel, p.steps, pipeline.Data{})
	return err
}

// runChannel drives one channel through steps, seeding the pipeline's data
// bag with seed, then upserts the resulting models.ProcessedChannel row. It
// backs both the default full run (Process) and the narrower regeneration
// entry points below.
func (p *Processor) runChannel(ctx context.Context, sess models.Session, channel int, steps []pipeline.Step, seed pipeline.Data) (models.ProcessedChannel, error) {
	sctx := pipeline.StepContext{
		SessionID:     sess.ID,
		ChannelNumber: channel,
		WorkDir:       p.cfg.Blobs.WorkDir(sess.ID, channel),
		OutputDir:     p.cfg.Blobs.SessionDir(sess.ID),
	}

	runner := pipeline.Runner{
		Steps: steps,
		Options: pipeline.Options{
			MaxRetries: p.cfg.MaxRetries,
			TrackInDB:  true,
		},
		Store:  p.cfg.Store,
		Logger: p.cfg.Logger,
	}

	result := runner.Run(ctx, sctx, seed)
	if !result.Success {
		return models.ProcessedChannel{}, fmt.Errorf("channel %d: failed steps %v", channel, result.FailedSteps)
	}

	pc := models.ProcessedChannel{
		SessionID:     sess.ID,
		ChannelNumber: channel,
		LocalPath:     stringFromData(result.FinalData, channelpipeline.KeyMP3Path),
		IsSilent:      isSilentFrom(result.FinalData),
	}
	if analysis, ok := result.FinalData[channelpipeline.KeyAnalysis].(audiotoolbox.AnalysisResult); ok {
		pc.IsQuiet = analysis.IsQuiet
	}
	if d, ok := result.FinalData[channelpipeline.KeyDurationSecs].(float64); ok {
		pc.DurationSeconds = &d
	}
	if url := stringFromData(result.FinalData, channelpipeline.KeyMP3URL); url != "" {
		pc.S3URL = &url
	}
	if url := stringFromData(result.FinalData, channelpipeline.KeyPeaksURL); url != "" {
		pc.PeaksURL = &url
	}
	if url := stringFromData(result.FinalData, channelpipeline.KeyHLSURL); url != "" {
		pc.HLSURL = &url
	}

	if _, err := p.cfg.Store.UpsertProcessedChannel(ctx, pc); err != nil {
		return models.ProcessedChannel{}, fmt.Errorf("channel %d: persist processed channel: %w", channel, err)
	}
	return pc, nil
}

// RegenerateChannel reruns a single channel through variant's step subset,
// rebuilding a channel's MP3, or just its peaks/HLS renditions, without
// reprocessing the whole session.
func (p *Processor) RegenerateChannel(ctx context.Context, sessionID string, channel int, variant channelpipeline.Variant) (models.ProcessedChannel, error) {
	sess, err := p.cfg.Store.GetSession(ctx, sessionID)
	if err != nil {
		return models.ProcessedChannel{}, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if channel < 1 || channel > sess.Channels {
		return models.ProcessedChannel{}, fmt.Errorf("channel %d out of range for session %s (%d channels)", channel, sessionID, sess.Channels)
	}

	seed := pipeline.Data{}
	if variant == channelpipeline.VariantPeaksHLSOnly {
		existing, err := p.cfg.Store.GetProcessedChannel(ctx, sessionID, channel)
		if err != nil {
			return models.ProcessedChannel{}, fmt.Errorf("load processed channel %d for %s: %w", channel, sessionID, err)
		}
		if existing.LocalPath == "" {
			return models.ProcessedChannel{}, fmt.Errorf("channel %d for session %s has no encoded mp3 to regenerate peaks/hls from", channel, sessionID)
		}
		seed = channelpipeline.SeedFromProcessedChannel(existing.LocalPath, existing.IsSilent)
	}

	steps := channelpipeline.BuildVariantSteps(variant, channelpipeline.Deps{
		Store:   p.cfg.Store,
		Blobs:   p.cfg.Blobs,
		Objects: p.cfg.Objects,
		Tools:   p.cfg.Tools,
		Logger:  p.cfg.Logger,
	}, p.cfg.PipelineConfig)

	pc, err := p.runChannel(ctx, sess, channel, steps, seed)
	if err != nil {
		return models.ProcessedChannel{}, err
	}
	if err := p.cfg.Blobs.PurgeWorkDir(sessionID, channel); err != nil {
		p.cfg.Logger.Warn("failed to purge channel work dir after regeneration", "session", sessionID, "channel", channel, "error", err)
	}
	return pc, nil
}

// RegenerateSession reruns every channel of sess through variant's step
// subset, continuing past individual channel failures. It returns the
// channels that failed to regenerate.
func (p *Processor) RegenerateSession(ctx context.Context, sessionID string, variant channelpipeline.Variant) ([]int, error) {
	sess, err := p.cfg.Store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	var failedChannels []int
	for ch := 1; ch <= sess.Channels; ch++ {
		if _, err := p.RegenerateChannel(ctx, sessionID, ch, variant); err != nil {
			p.cfg.Logger.Error("channel regeneration failed", "session", sessionID, "channel", ch, "error", err)
			failedChannels = append(failedChannels, ch)
		}
	}
	return failedChannels, nil
}

func stringFromData(data pipeline.Data, key string) string {
	v, _ := data[key].(string)
	return v
}

func isSilentFrom(data pipeline.Data) bool {
	v, _ := data[channelpipeline.KeyIsSilent].(bool)
	return v
}
