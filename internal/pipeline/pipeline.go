// Package pipeline provides a generic, DB-tracked step runner: an ordered
// list of Steps executes against a StepContext and a growing data bag,
// with per-step skip logic, retry-with-backoff, and cleanup-on-failure.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"audioreceiver/internal/metadata"
	"audioreceiver/internal/models"
)

// StepContext carries the fixed addressing information every step needs;
// it does not change across the run.
type StepContext struct {
	SessionID     string
	ChannelNumber int
	WorkDir       string
	OutputDir     string
}

// Data is the mutable bag a pipeline run accumulates. Steps read prior
// steps' output and write their own data delta into it.
type Data map[string]any

// Clone returns a shallow copy of the bag.
func (d Data) Clone() Data {
	out := make(Data, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Merge writes every key of delta into d.
func (d Data) Merge(delta Data) {
	for k, v := range delta {
		d[k] = v
	}
}

// ResultKind tags the three shapes a StepResult can take.
type ResultKind int

const (
	ResultSuccess ResultKind = iota
	ResultSkipped
	ResultFailure
)

// StepResult is the tagged variant a Step.Execute returns.
type StepResult struct {
	Kind    ResultKind
	Delta   Data
	Metrics map[string]any
	Reason  string // set when Kind == ResultSkipped
	Err     error  // set when Kind == ResultFailure
}

func Success(delta Data, metrics map[string]any) StepResult {
	return StepResult{Kind: ResultSuccess, Delta: delta, Metrics: metrics}
}

func Skipped(reason string) StepResult {
	return StepResult{Kind: ResultSkipped, Reason: reason}
}

func Failure(err error) StepResult {
	return StepResult{Kind: ResultFailure, Err: err}
}

// Step is one unit of pipeline work. ShouldRun decides applicability from
// (ctx, data) alone and must be idempotent with respect to pre-existing
// outputs on disk — the canonical check is "output already exists and is
// non-empty, so skip."
type Step interface {
	Name() string
	ShouldRun(sctx StepContext, data Data) bool
	Execute(ctx context.Context, sctx StepContext, data Data) StepResult
	Cleanup(ctx context.Context, sctx StepContext, data Data)
}

// Callbacks are optional per-step observation hooks.
type Callbacks struct {
	OnSkip     func(step string, reason string)
	OnComplete func(step string, result StepResult)
	OnError    func(step string, err error)
}

// Options tunes retry behavior and DB provenance tracking.
type Options struct {
	MaxRetries             int
	RetryDelay             time.Duration
	RetryBackoffMultiplier float64
	TrackInDB              bool
	Callbacks              Callbacks
}

func (o Options) withDefaults() Options {
	if o.RetryBackoffMultiplier <= 0 {
		o.RetryBackoffMultiplier = 1
	}
	return o
}

// StepOutcome records one step's final disposition for the run summary.
type StepOutcome struct {
	Step       string
	Kind       ResultKind
	Reason     string
	Err        error
	RetryCount int
	DurationMs int64
}

// Result is the Runner's complete summary of one pipeline execution.
type Result struct {
	Success         bool
	FinalData       Data
	PerStepResults  []StepOutcome
	TotalDurationMs int64
	FailedSteps     []string
	SkippedSteps    []string
}

// Runner executes an ordered list of Steps.
type Runner struct {
	Steps   []Step
	Options Options
	Store   metadata.Store // optional; required only when Options.TrackInDB
	Logger  *slog.Logger
}

func (r Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Run executes every step in order, stopping at the first step whose
// retries are exhausted.
func (r Runner) Run(ctx context.Context, sctx StepContext, data Data) Result {
	opts := r.Options.withDefaults()
	start := time.Now()
	result := Result{FinalData: data, Success: true}

	for _, step := range r.Steps {
		outcome := r.runStep(ctx, step, sctx, data, opts)
		result.PerStepResults = append(result.PerStepResults, outcome)

		switch outcome.Kind {
		case ResultSkipped:
			result.SkippedSteps = append(result.SkippedSteps, step.Name())
		case ResultFailure:
			result.FailedSteps = append(result.FailedSteps, step.Name())
			result.Success = false
			result.TotalDurationMs = time.Since(start).Milliseconds()
			return result
		}
	}

	result.TotalDurationMs = time.Since(start).Milliseconds()
	return result
}

func (r Runner) runStep(ctx context.Context, step Step, sctx StepContext, data Data, opts Options) StepOutcome {
	name := step.Name()
	stepStart := time.Now()

	var runID int64
	if opts.TrackInDB && r.Store != nil {
		inputSnapshot, _ := json.Marshal(data)
		channel := &sctx.ChannelNumber
		run, err := r.Store.CreatePipelineRun(ctx, models.PipelineRun{
			SessionID:     sctx.SessionID,
			ChannelNumber: channel,
			StepName:      name,
			Status:        models.RunPending,
			InputSnapshot: inputSnapshot,
		})
		if err != nil {
			r.logger().Error("failed to create pipeline run row", "step", name, "error", err)
		} else {
			runID = run.ID
		}
	}

	if !step.ShouldRun(sctx, data) {
		reason := "output already present"
		r.markSkipped(ctx, runID, reason)
		if opts.Callbacks.OnSkip != nil {
			opts.Callbacks.OnSkip(name, reason)
		}
		return StepOutcome{Step: name, Kind: ResultSkipped, Reason: reason, DurationMs: time.Since(stepStart).Milliseconds()}
	}

	r.markRunning(ctx, runID)

	var lastResult StepResult
	attempt := 0
attempts:
	for {
		lastResult = step.Execute(ctx, sctx, data)
		if lastResult.Kind != ResultFailure {
			break
		}
		if attempt >= opts.MaxRetries {
			break
		}
		delay := scaledDelay(opts.RetryDelay, opts.RetryBackoffMultiplier, attempt+1)
		r.logger().Warn("pipeline step failed, retrying", "step", name, "attempt", attempt+1, "delay", delay, "error", lastResult.Err)
		attempt++
		r.bumpRetry(ctx, runID, attempt)
		select {
		case <-ctx.Done():
			lastResult = Failure(ctx.Err())
			break attempts
		case <-time.After(delay):
		}
	}

	switch lastResult.Kind {
	case ResultSuccess:
		data.Merge(lastResult.Delta)
		outputSnapshot, _ := json.Marshal(data)
		r.markCompleted(ctx, runID, outputSnapshot)
		if opts.Callbacks.OnComplete != nil {
			opts.Callbacks.OnComplete(name, lastResult)
		}
		return StepOutcome{Step: name, Kind: ResultSuccess, RetryCount: attempt, DurationMs: time.Since(stepStart).Milliseconds()}
	case ResultSkipped:
		r.markSkipped(ctx, runID, lastResult.Reason)
		if opts.Callbacks.OnSkip != nil {
			opts.Callbacks.OnSkip(name, lastResult.Reason)
		}
		return StepOutcome{Step: name, Kind: ResultSkipped, Reason: lastResult.Reason, RetryCount: attempt, DurationMs: time.Since(stepStart).Milliseconds()}
	default:
		r.runCleanup(ctx, step, sctx, data, name)
		r.markFailed(ctx, runID, lastResult.Err)
		if opts.Callbacks.OnError != nil {
			opts.Callbacks.OnError(name, lastResult.Err)
		}
		return StepOutcome{Step: name, Kind: ResultFailure, Err: lastResult.Err, RetryCount: attempt, DurationMs: time.Since(stepStart).Milliseconds()}
	}
}

func (r Runner) runCleanup(ctx context.Context, step Step, sctx StepContext, data Data, name string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger().Warn("step cleanup panicked, swallowed", "step", name, "recover", rec)
		}
	}()
	step.Cleanup(ctx, sctx, data)
}

func scaledDelay(base time.Duration, multiplier float64, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	scale := 1.0
	for i := 1; i < attempt; i++ {
		scale *= multiplier
	}
	return time.Duration(float64(base) * scale)
}

func (r Runner) markRunning(ctx context.Context, runID int64) {
	r.updateRun(ctx, runID, func(run *models.PipelineRun) {
		now := time.Now().UTC()
		run.Status = models.RunRunning
		run.StartedAt = &now
	})
}

func (r Runner) markSkipped(ctx context.Context, runID int64, reason string) {
	r.updateRun(ctx, runID, func(run *models.PipelineRun) {
		run.Status = models.RunSkipped
		run.ErrorMessage = &reason
	})
}

func (r Runner) markCompleted(ctx context.Context, runID int64, outputSnapshot []byte) {
	r.updateRun(ctx, runID, func(run *models.PipelineRun) {
		now := time.Now().UTC()
		run.Status = models.RunCompleted
		run.CompletedAt = &now
		run.OutputSnapshot = outputSnapshot
	})
}

func (r Runner) markFailed(ctx context.Context, runID int64, cause error) {
	r.updateRun(ctx, runID, func(run *models.PipelineRun) {
		now := time.Now().UTC()
		msg := ""
		if cause != nil {
			msg = cause.Error()
		}
		run.Status = models.RunFailed
		run.CompletedAt = &now
		run.ErrorMessage = &msg
	})
}

func (r Runner) bumpRetry(ctx context.Context, runID int64, retryCount int) {
	r.updateRun(ctx, runID, func(run *models.PipelineRun) {
		run.Status = models.RunRunning
		run.RetryCount = retryCount
	})
}

func (r Runner) updateRun(ctx context.Context, runID int64, mutate func(*models.PipelineRun)) {
	if runID == 0 || r.Store == nil {
		return
	}
	run, err := r.Store.GetPipelineRun(ctx, runID)
	if err != nil {
		r.logger().Error("failed to load pipeline run for update", "run_id", runID, "error", err)
		return
	}
	mutate(&run)
	if err := r.Store.UpdatePipelineRun(ctx, run); err != nil {
		r.logger().Error("failed to update pipeline run", "run_id", runID, "error", err, "status", run.Status)
	}
}
